// Package security guards file paths taken from requests and names derived
// from user data.
package security

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ResolveWithinDirectory joins name onto dir and returns the resulting
// absolute path, or an error when the result escapes dir. Symlinks are
// resolved on both sides, including on the deepest existing parent when the
// target itself does not exist yet.
func ResolveWithinDirectory(dir, name string) (string, error) {
	if filepath.IsAbs(name) {
		return "", fmt.Errorf("path %s must be relative to %s", name, dir)
	}
	target := filepath.Join(dir, name)
	if err := ValidatePathWithinDirectory(target, dir); err != nil {
		return "", err
	}
	return filepath.Abs(target)
}

// ValidatePathWithinDirectory rejects filePath when its canonical form lies
// outside safeDir.
func ValidatePathWithinDirectory(filePath, safeDir string) error {
	absPath, err := filepath.Abs(filepath.Clean(filePath))
	if err != nil {
		return fmt.Errorf("failed to resolve absolute path: %w", err)
	}
	absSafeDir, err := filepath.Abs(safeDir)
	if err != nil {
		return fmt.Errorf("failed to resolve safe directory path: %w", err)
	}
	canonicalSafeDir, err := filepath.EvalSymlinks(absSafeDir)
	if err != nil {
		return fmt.Errorf("failed to resolve safe directory symlinks: %w", err)
	}

	rel, err := filepath.Rel(canonicalSafeDir, canonicalize(absPath))
	if err != nil {
		return fmt.Errorf("path is outside safe directory: %w", err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return fmt.Errorf("path traversal detected: %s attempts to escape %s", filePath, safeDir)
	}
	return nil
}

// canonicalize resolves symlinks in p, or in its deepest existing parent
// when p does not exist.
func canonicalize(p string) string {
	if resolved, err := filepath.EvalSymlinks(p); err == nil {
		return resolved
	}
	for dir := filepath.Dir(p); ; dir = filepath.Dir(dir) {
		if resolved, err := filepath.EvalSymlinks(dir); err == nil {
			rest, _ := filepath.Rel(dir, p)
			return filepath.Join(resolved, rest)
		}
		if parent := filepath.Dir(dir); parent == dir {
			return p
		}
	}
}

// EnsureDir validates that dir lies inside root and creates it.
func EnsureDir(root, dir string) error {
	if err := ValidatePathWithinDirectory(dir, root); err != nil {
		return err
	}
	return os.MkdirAll(dir, 0o755)
}

// SanitizeFilename maps s onto ASCII letters, digits, dot, underscore and
// dash. Runs of other characters become one underscore and the result is
// capped at 128 bytes.
func SanitizeFilename(s string) string {
	const maxLen = 128
	var b strings.Builder
	lastUnderscore := false
	for _, r := range s {
		if b.Len() >= maxLen {
			break
		}
		switch {
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'),
			r == '.' || r == '_' || r == '-':
			b.WriteRune(r)
			lastUnderscore = r == '_'
		case !lastUnderscore:
			b.WriteRune('_')
			lastUnderscore = true
		}
	}
	out := strings.Trim(b.String(), "._")
	if out == "" {
		return "unknown"
	}
	return out
}
