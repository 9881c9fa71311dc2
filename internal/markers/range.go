package markers

import "fmt"

// Range is an inclusive frame interval scoping a repair or filter operation.
type Range struct {
	Start int
	End   int
}

// NewRange builds a Range from two frame indices in either order, the way a
// drag selection can run backwards.
func NewRange(a, b int) Range {
	if a > b {
		a, b = b, a
	}
	return Range{Start: a, End: b}
}

// Whole returns the range covering every frame of a store with numFrames frames.
func Whole(numFrames int) Range {
	return Range{Start: 0, End: numFrames - 1}
}

// Len returns the number of frames in the range.
func (r Range) Len() int {
	if r.End < r.Start {
		return 0
	}
	return r.End - r.Start + 1
}

// Contains reports whether frame lies inside the range.
func (r Range) Contains(frame int) bool {
	return frame >= r.Start && frame <= r.End
}

// Validate checks that the range is ordered and lies within [0, numFrames).
func (r Range) Validate(numFrames int) error {
	if r.Start > r.End {
		return InvalidParam("range", r, "start after end")
	}
	if r.Start < 0 || r.End >= numFrames {
		return InvalidParam("range", r, fmt.Sprintf("outside frames 0..%d", numFrames-1))
	}
	return nil
}

func (r Range) String() string {
	return fmt.Sprintf("[%d..%d]", r.Start, r.End)
}
