package markers

import (
	"math"
	"sort"
	"sync"

	"gonum.org/v1/gonum/spatial/r3"
)

// column holds the X, Y and Z series of one marker.
type column [3][]float64

func (c column) clone() column {
	var out column
	for a := range c {
		out[a] = append([]float64(nil), c[a]...)
	}
	return out
}

// Store is the per-frame, per-marker XYZ position table. Frames are indexed
// 0..NumFrames-1 and every marker spans the full range. Missing samples are
// NaN. The marker set and frame count are fixed at construction.
//
// Store is safe for concurrent use: reads take a shared lock and mutations
// an exclusive one. Callers that fan out over many frames should read from
// a Snapshot instead of holding the live store.
type Store struct {
	mu sync.RWMutex

	names     []string
	index     map[string]int
	numFrames int
	fps       float64

	data     []column
	original []column
	version  uint64
}

// New creates a store with every sample missing. The restore point is the
// empty table until SetRestorePoint is called.
func New(names []string, numFrames int, fps float64) (*Store, error) {
	if len(names) == 0 {
		return nil, InvalidParam("markers", nil, "at least one marker required")
	}
	if numFrames <= 0 {
		return nil, InvalidParam("num_frames", numFrames, "must be positive")
	}
	if !(fps > 0) || math.IsInf(fps, 0) {
		return nil, InvalidParam("fps", fps, "must be a positive finite number")
	}

	s := &Store{
		names:     make([]string, len(names)),
		index:     make(map[string]int, len(names)),
		numFrames: numFrames,
		fps:       fps,
		data:      make([]column, len(names)),
	}
	for i, name := range names {
		if name == "" {
			return nil, InvalidParam("markers", i, "empty marker name")
		}
		if _, dup := s.index[name]; dup {
			return nil, InvalidParam("markers", name, "duplicate marker name")
		}
		s.names[i] = name
		s.index[name] = i
		for a := range s.data[i] {
			col := make([]float64, numFrames)
			for f := range col {
				col[f] = math.NaN()
			}
			s.data[i][a] = col
		}
	}
	s.original = cloneColumns(s.data)
	return s, nil
}

// FromColumns builds a store from columns named {marker}_{X|Y|Z}. Columns that
// do not follow the convention (Frame#, Time) are ignored. A marker missing
// one of its axes keeps that axis as all-NaN. Markers are ordered by name.
// The loaded content becomes the restore point.
func FromColumns(columns map[string][]float64, fps float64) (*Store, error) {
	numFrames := -1
	seen := make(map[string]bool)
	var names []string
	for col, values := range columns {
		marker, _, ok := SplitColumnName(col)
		if !ok {
			continue
		}
		if numFrames < 0 {
			numFrames = len(values)
		} else if len(values) != numFrames {
			return nil, InvalidParam("column", col, "length differs from other columns")
		}
		if !seen[marker] {
			seen[marker] = true
			names = append(names, marker)
		}
	}
	sort.Strings(names)

	s, err := New(names, numFrames, fps)
	if err != nil {
		return nil, err
	}
	for col, values := range columns {
		marker, a, ok := SplitColumnName(col)
		if !ok {
			continue
		}
		copy(s.data[s.index[marker]][a], values)
	}
	s.original = cloneColumns(s.data)
	return s, nil
}

func cloneColumns(src []column) []column {
	out := make([]column, len(src))
	for i, c := range src {
		out[i] = c.clone()
	}
	return out
}

// Markers returns the marker names in column order.
func (s *Store) Markers() []string {
	return append([]string(nil), s.names...)
}

// NumFrames returns the fixed frame count.
func (s *Store) NumFrames() int { return s.numFrames }

// FPS returns the capture frame rate.
func (s *Store) FPS() float64 { return s.fps }

// Duration returns the capture length in seconds.
func (s *Store) Duration() float64 { return float64(s.numFrames) / s.fps }

// Version increments on every mutation. Cached masks and kinematics compare
// it to decide whether they are stale.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// ColumnExists reports whether marker is part of the store.
func (s *Store) ColumnExists(marker string) bool {
	_, ok := s.index[marker]
	return ok
}

func (s *Store) lookup(marker string) (int, error) {
	i, ok := s.index[marker]
	if !ok {
		return 0, markerNotFound(marker)
	}
	return i, nil
}

func (s *Store) checkFrame(frame int) error {
	if frame < 0 || frame >= s.numFrames {
		return frameNotFound(frame)
	}
	return nil
}

func checkAxis(a Axis) error {
	if !a.Valid() {
		return &NotFoundError{Kind: "axis", Name: a.String()}
	}
	return nil
}

// Get returns the value of marker's axis at frame. Missing data is NaN, not
// an error; unknown markers, axes and out-of-range frames are NotFoundErrors.
func (s *Store) Get(frame int, marker string, a Axis) (float64, error) {
	i, err := s.lookup(marker)
	if err != nil {
		return math.NaN(), err
	}
	if err := checkAxis(a); err != nil {
		return math.NaN(), err
	}
	if err := s.checkFrame(frame); err != nil {
		return math.NaN(), err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data[i][a][frame], nil
}

// Position returns marker's XYZ at frame. Components may be NaN.
func (s *Store) Position(marker string, frame int) (r3.Vec, error) {
	i, err := s.lookup(marker)
	if err != nil {
		return r3.Vec{}, err
	}
	if err := s.checkFrame(frame); err != nil {
		return r3.Vec{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.position(i, frame), nil
}

func (s *Store) position(i, frame int) r3.Vec {
	c := s.data[i]
	return r3.Vec{X: c[X][frame], Y: c[Y][frame], Z: c[Z][frame]}
}

// HasValue reports whether marker has finite X, Y and Z at frame. Unknown
// markers and out-of-range frames have no value.
func (s *Store) HasValue(marker string, frame int) bool {
	i, ok := s.index[marker]
	if !ok || frame < 0 || frame >= s.numFrames {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return IsValid(s.position(i, frame))
}

// IsValid reports whether every component of p is finite.
func IsValid(p r3.Vec) bool {
	return !math.IsNaN(p.X) && !math.IsNaN(p.Y) && !math.IsNaN(p.Z) &&
		!math.IsInf(p.X, 0) && !math.IsInf(p.Y, 0) && !math.IsInf(p.Z, 0)
}

// Column returns a copy of marker's axis series.
func (s *Store) Column(marker string, a Axis) ([]float64, error) {
	i, err := s.lookup(marker)
	if err != nil {
		return nil, err
	}
	if err := checkAxis(a); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]float64(nil), s.data[i][a]...), nil
}

// ValidFrames returns every frame at which marker has a full XYZ sample.
func (s *Store) ValidFrames(marker string) ([]int, error) {
	i, err := s.lookup(marker)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var frames []int
	for f := 0; f < s.numFrames; f++ {
		if IsValid(s.position(i, f)) {
			frames = append(frames, f)
		}
	}
	return frames, nil
}

// Completeness returns the fraction of frames at which marker has a full
// XYZ sample.
func (s *Store) Completeness(marker string) (float64, error) {
	frames, err := s.ValidFrames(marker)
	if err != nil {
		return 0, err
	}
	return float64(len(frames)) / float64(s.numFrames), nil
}

// Set writes a single sample.
func (s *Store) Set(frame int, marker string, a Axis, v float64) error {
	i, err := s.lookup(marker)
	if err != nil {
		return err
	}
	if err := checkAxis(a); err != nil {
		return err
	}
	if err := s.checkFrame(frame); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[i][a][frame] = v
	s.version++
	return nil
}

// SetPosition writes marker's XYZ at frame.
func (s *Store) SetPosition(marker string, frame int, p r3.Vec) error {
	i, err := s.lookup(marker)
	if err != nil {
		return err
	}
	if err := s.checkFrame(frame); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[i][X][frame] = p.X
	s.data[i][Y][frame] = p.Y
	s.data[i][Z][frame] = p.Z
	s.version++
	return nil
}

// SetRange overwrites marker's axis over rng with values. The write is all or
// nothing: a bad marker, axis, range or length leaves the store unchanged.
// Callers must recompute any outlier mask or kinematics afterwards.
func (s *Store) SetRange(marker string, a Axis, rng Range, values []float64) error {
	i, err := s.lookup(marker)
	if err != nil {
		return err
	}
	if err := checkAxis(a); err != nil {
		return err
	}
	if err := rng.Validate(s.numFrames); err != nil {
		return err
	}
	if len(values) != rng.Len() {
		return InvalidParam("values", len(values), "length must match range "+rng.String())
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	copy(s.data[i][a][rng.Start:rng.End+1], values)
	s.version++
	return nil
}

// SetColumn replaces marker's full axis series.
func (s *Store) SetColumn(marker string, a Axis, values []float64) error {
	return s.SetRange(marker, a, Whole(s.numFrames), values)
}

// ClearRange marks marker as missing on every axis over rng.
func (s *Store) ClearRange(marker string, rng Range) error {
	i, err := s.lookup(marker)
	if err != nil {
		return err
	}
	if err := rng.Validate(s.numFrames); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for a := range s.data[i] {
		col := s.data[i][a]
		for f := rng.Start; f <= rng.End; f++ {
			col[f] = math.NaN()
		}
	}
	s.version++
	return nil
}

// SetRestorePoint records the current content as the table Restore returns
// to. Loaders call it once after filling a fresh store.
func (s *Store) SetRestorePoint() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.original = cloneColumns(s.data)
}

// Restore replaces the current content with the restore point verbatim.
func (s *Store) Restore() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = cloneColumns(s.original)
	s.version++
}

// Snapshot returns an independent deep copy of the store, including its
// restore point.
func (s *Store) Snapshot() *Store {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return &Store{
		names:     append([]string(nil), s.names...),
		index:     s.index, // read-only after construction
		numFrames: s.numFrames,
		fps:       s.fps,
		data:      cloneColumns(s.data),
		original:  cloneColumns(s.original),
		version:   s.version,
	}
}

// Original returns a store holding the restore point content.
func (s *Store) Original() *Store {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return &Store{
		names:     append([]string(nil), s.names...),
		index:     s.index,
		numFrames: s.numFrames,
		fps:       s.fps,
		data:      cloneColumns(s.original),
		original:  cloneColumns(s.original),
	}
}

// Equal reports whether o holds bit-identical samples for the same markers,
// treating NaN as equal to NaN.
func (s *Store) Equal(o *Store) bool {
	if s.numFrames != o.numFrames || len(s.names) != len(o.names) || s.fps != o.fps {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	o.mu.RLock()
	defer o.mu.RUnlock()
	for i, name := range s.names {
		j, ok := o.index[name]
		if !ok {
			return false
		}
		for a := range s.data[i] {
			for f, v := range s.data[i][a] {
				if math.Float64bits(v) != math.Float64bits(o.data[j][a][f]) {
					if !(math.IsNaN(v) && math.IsNaN(o.data[j][a][f])) {
						return false
					}
				}
			}
		}
	}
	return true
}
