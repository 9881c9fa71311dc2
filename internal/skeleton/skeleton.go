package skeleton

import (
	"sort"
	"strings"

	"github.com/banshee-data/marker.studio/internal/markers"
)

// ModelNone selects no topology: no rigid pairs, standard report patterns only.
const ModelNone = "none"

// Pair is an assumed-rigid marker pair used by outlier detection.
type Pair struct {
	A string `json:"a"`
	B string `json:"b"`
}

func (p Pair) String() string { return p.A + "-" + p.B }

// Segment is a named marker pair resolved for reporting.
type Segment struct {
	Name string `json:"name"`
	A    string `json:"a"`
	B    string `json:"b"`
}

// Joint is a named marker triple; the angle is measured at B.
type Joint struct {
	Name string `json:"name"`
	A    string `json:"a"`
	B    string `json:"b"`
	C    string `json:"c"`
}

// SegmentPattern lists candidate marker pairs for one named segment.
type SegmentPattern struct {
	Name       string
	Candidates [][2]string
}

// JointPattern lists candidate marker triples for one named joint.
type JointPattern struct {
	Name       string
	Candidates [][3]string
}

// Topology is what a skeleton model contributes to the engine.
type Topology struct {
	Model           string
	Links           []Pair
	SegmentPatterns []SegmentPattern
	JointPatterns   []JointPattern
}

// MarkerSet is satisfied by *markers.Store.
type MarkerSet interface {
	ColumnExists(marker string) bool
}

// Models returns the names accepted by Lookup, sorted, with ModelNone first.
func Models() []string {
	names := make([]string, 0, len(modelTrees)+1)
	for name := range modelTrees {
		names = append(names, name)
	}
	sort.Strings(names)
	return append([]string{ModelNone}, names...)
}

// Lookup returns the topology for a model name. Matching ignores case. The
// returned value owns its slices, so callers may extend it freely.
func Lookup(model string) (Topology, error) {
	t := Topology{
		SegmentPatterns: cloneSegments(standardSegments),
		JointPatterns:   cloneJoints(standardJoints),
	}
	if model == "" || strings.EqualFold(model, ModelNone) {
		t.Model = ModelNone
		return t, nil
	}
	for name, tree := range modelTrees {
		if strings.EqualFold(name, model) {
			t.Model = name
			t.Links = tree.links()
			return t, nil
		}
	}
	return Topology{}, &markers.NotFoundError{Kind: "skeleton model", Name: model}
}

func cloneSegments(in []SegmentPattern) []SegmentPattern {
	out := make([]SegmentPattern, len(in))
	for i, p := range in {
		out[i] = SegmentPattern{Name: p.Name, Candidates: append([][2]string(nil), p.Candidates...)}
	}
	return out
}

func cloneJoints(in []JointPattern) []JointPattern {
	out := make([]JointPattern, len(in))
	for i, p := range in {
		out[i] = JointPattern{Name: p.Name, Candidates: append([][3]string(nil), p.Candidates...)}
	}
	return out
}

// WithSegment returns a copy of t with a segment pattern added, replacing any
// existing pattern of the same name.
func (t Topology) WithSegment(name string, candidates ...[2]string) Topology {
	out := t
	out.SegmentPatterns = cloneSegments(t.SegmentPatterns)
	p := SegmentPattern{Name: name, Candidates: candidates}
	for i := range out.SegmentPatterns {
		if out.SegmentPatterns[i].Name == name {
			out.SegmentPatterns[i] = p
			return out
		}
	}
	out.SegmentPatterns = append(out.SegmentPatterns, p)
	return out
}

// WithJoint returns a copy of t with a joint pattern added, replacing any
// existing pattern of the same name.
func (t Topology) WithJoint(name string, candidates ...[3]string) Topology {
	out := t
	out.JointPatterns = cloneJoints(t.JointPatterns)
	p := JointPattern{Name: name, Candidates: candidates}
	for i := range out.JointPatterns {
		if out.JointPatterns[i].Name == name {
			out.JointPatterns[i] = p
			return out
		}
	}
	out.JointPatterns = append(out.JointPatterns, p)
	return out
}

// PairsFor builds the rigid pair set for a dataset: the topology links whose
// markers are both present, followed by the user-defined extra pairs. Links
// with absent markers are dropped silently. An extra pair naming an absent
// marker or joining a marker to itself is an error. Duplicates, in either
// orientation, keep their first occurrence.
func PairsFor(t Topology, set MarkerSet, extra []Pair) ([]Pair, error) {
	for _, p := range extra {
		if p.A == p.B {
			return nil, &markers.InvalidSelectionError{Marker: p.A, Reason: "pair joins a marker to itself"}
		}
		for _, m := range []string{p.A, p.B} {
			if !set.ColumnExists(m) {
				return nil, &markers.NotFoundError{Kind: "marker", Name: m}
			}
		}
	}

	seen := make(map[Pair]bool)
	var out []Pair
	add := func(p Pair) {
		if seen[p] || seen[Pair{A: p.B, B: p.A}] {
			return
		}
		seen[p] = true
		out = append(out, p)
	}
	for _, p := range t.Links {
		if set.ColumnExists(p.A) && set.ColumnExists(p.B) {
			add(p)
		}
	}
	for _, p := range extra {
		add(p)
	}
	return out, nil
}

// ResolveSegments picks, for each segment pattern, the first candidate whose
// markers are all present. Patterns with no matching candidate are skipped.
func ResolveSegments(t Topology, set MarkerSet) []Segment {
	var out []Segment
	for _, p := range t.SegmentPatterns {
		for _, c := range p.Candidates {
			if set.ColumnExists(c[0]) && set.ColumnExists(c[1]) {
				out = append(out, Segment{Name: p.Name, A: c[0], B: c[1]})
				break
			}
		}
	}
	return out
}

// ResolveJoints is the joint counterpart of ResolveSegments.
func ResolveJoints(t Topology, set MarkerSet) []Joint {
	var out []Joint
	for _, p := range t.JointPatterns {
		for _, c := range p.Candidates {
			if set.ColumnExists(c[0]) && set.ColumnExists(c[1]) && set.ColumnExists(c[2]) {
				out = append(out, Joint{Name: p.Name, A: c[0], B: c[1], C: c[2]})
				break
			}
		}
	}
	return out
}
