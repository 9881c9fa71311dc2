package security

import (
	"os"
	"path/filepath"
	"testing"
)

func TestValidatePathWithinDirectory(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "trials"), 0o755); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{"file in root", filepath.Join(root, "walk.trc"), false},
		{"nested new file", filepath.Join(root, "trials", "new", "run.trc"), false},
		{"dot dot escape", filepath.Join(root, "..", "etc", "passwd"), true},
		{"absolute elsewhere", "/etc/passwd", true},
		{"root itself", root, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidatePathWithinDirectory(tc.path, root)
			if (err != nil) != tc.wantErr {
				t.Errorf("ValidatePathWithinDirectory(%q) err = %v, wantErr %v", tc.path, err, tc.wantErr)
			}
		})
	}
}

func TestValidatePathWithinDirectory_Symlink(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	link := filepath.Join(root, "escape")
	if err := os.Symlink(outside, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}
	if err := ValidatePathWithinDirectory(filepath.Join(link, "x.trc"), root); err == nil {
		t.Error("expected symlinked parent outside root to be rejected")
	}
}

func TestResolveWithinDirectory(t *testing.T) {
	root := t.TempDir()
	got, err := ResolveWithinDirectory(root, "trials/walk.trc")
	if err != nil {
		t.Fatalf("ResolveWithinDirectory: %v", err)
	}
	if filepath.Base(got) != "walk.trc" || !filepath.IsAbs(got) {
		t.Errorf("got %q", got)
	}
	if _, err := ResolveWithinDirectory(root, "../walk.trc"); err == nil {
		t.Error("expected ../ to be rejected")
	}
	if _, err := ResolveWithinDirectory(root, "/tmp/walk.trc"); err == nil {
		t.Error("expected absolute name to be rejected")
	}
}

func TestEnsureDir(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "plots", "s1")
	if err := EnsureDir(root, dir); err != nil {
		t.Fatalf("EnsureDir: %v", err)
	}
	if fi, err := os.Stat(dir); err != nil || !fi.IsDir() {
		t.Errorf("dir not created: %v", err)
	}
	if err := EnsureDir(root, filepath.Join(root, "..", "elsewhere")); err == nil {
		t.Error("expected escape to be rejected")
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := map[string]string{
		"walk.trc":          "walk.trc",
		"trial 01 / left":   "trial_01_left",
		"..hidden":          "hidden",
		"":                  "unknown",
		"***":               "unknown",
		"a__b":              "a__b",
		"café-run":          "caf_-run",
		"session:2026-03-1": "session_2026-03-1",
	}
	for in, want := range tests {
		if got := SanitizeFilename(in); got != want {
			t.Errorf("SanitizeFilename(%q) = %q, want %q", in, got, want)
		}
	}
}
