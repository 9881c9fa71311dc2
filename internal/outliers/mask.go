package outliers

import "sort"

// Mask maps marker name to one flag per frame. A true flag means an adjacent
// rigid segment changed length abruptly at that frame.
type Mask map[string][]bool

// NewMask returns an all-false mask covering markers over numFrames frames.
func NewMask(markers []string, numFrames int) Mask {
	m := make(Mask, len(markers))
	for _, name := range markers {
		m[name] = make([]bool, numFrames)
	}
	return m
}

// Flagged reports whether marker is flagged at frame. Unknown markers and
// out-of-range frames are not flagged.
func (m Mask) Flagged(marker string, frame int) bool {
	flags, ok := m[marker]
	if !ok || frame < 0 || frame >= len(flags) {
		return false
	}
	return flags[frame]
}

// Count returns the number of flagged frames for marker.
func (m Mask) Count(marker string) int {
	n := 0
	for _, v := range m[marker] {
		if v {
			n++
		}
	}
	return n
}

// Frames returns the flagged frame indices for marker in ascending order.
func (m Mask) Frames(marker string) []int {
	var out []int
	for f, v := range m[marker] {
		if v {
			out = append(out, f)
		}
	}
	return out
}

// Any reports whether any marker is flagged at frame.
func (m Mask) Any(frame int) bool {
	for _, flags := range m {
		if frame >= 0 && frame < len(flags) && flags[frame] {
			return true
		}
	}
	return false
}

// Total returns the number of flagged marker-frames.
func (m Mask) Total() int {
	n := 0
	for name := range m {
		n += m.Count(name)
	}
	return n
}

// Markers returns the names of markers with at least one flag, sorted.
func (m Mask) Markers() []string {
	var out []string
	for name := range m {
		if m.Count(name) > 0 {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}
