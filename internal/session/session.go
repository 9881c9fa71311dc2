package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/marker.studio/internal/filter"
	"github.com/banshee-data/marker.studio/internal/markers"
	"github.com/banshee-data/marker.studio/internal/monitoring"
	"github.com/banshee-data/marker.studio/internal/outliers"
	"github.com/banshee-data/marker.studio/internal/repair"
	"github.com/banshee-data/marker.studio/internal/report"
	"github.com/banshee-data/marker.studio/internal/skeleton"
	"github.com/banshee-data/marker.studio/internal/timeutil"
)

// Op names a session operation in the edit history.
type Op string

const (
	OpDelete      Op = "delete"
	OpInterpolate Op = "interpolate"
	OpPattern     Op = "pattern"
	OpFilter      Op = "filter"
	OpRestore     Op = "restore"
	OpSetModel    Op = "set_model"
	OpAddPair     Op = "add_pair"
)

// Edit is one entry of the session history.
type Edit struct {
	ID     string          `json:"id"`
	At     time.Time       `json:"at"`
	Op     Op              `json:"op"`
	Marker string          `json:"marker,omitempty"`
	Range  *markers.Range  `json:"range,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	// Filled counts frames that gained a full sample; Changed counts filtered
	// samples that moved.
	Filled  int `json:"filled"`
	Changed int `json:"changed"`
	// Outliers is the total outlier flag count after the edit.
	Outliers int `json:"outliers"`
}

// Recorder persists edits as they happen.
type Recorder interface {
	RecordEdit(ctx context.Context, sessionID string, e Edit) error
}

// ErrNotPersisted matches a NotPersistedError.
var ErrNotPersisted = errors.New("edit not persisted")

// NotPersistedError reports an edit that was applied to the session and
// appended to its history but could not be recorded.
type NotPersistedError struct {
	Op  Op
	Err error
}

func (e *NotPersistedError) Error() string {
	return fmt.Sprintf("%s applied but not persisted: %v", e.Op, e.Err)
}

func (e *NotPersistedError) Unwrap() []error { return []error{ErrNotPersisted, e.Err} }

// Options configures a session.
type Options struct {
	Model      string
	Threshold  float64
	Epsilon    float64
	Workers    int
	Clock      timeutil.Clock
	Recorder   Recorder
	ExtraPairs []skeleton.Pair
}

// Session is the editing state around one loaded store: the active skeleton,
// rigid pairs, the outlier mask and the edit history. Every mutating
// operation validates first, edits the store, re-detects outliers and then
// records the edit. Session methods are serialised by a mutex.
type Session struct {
	mu sync.Mutex

	id       string
	store    *markers.Store
	topo     skeleton.Topology
	extra    []skeleton.Pair
	pairs    []skeleton.Pair
	detector *outliers.Detector
	repairer *repair.Repairer
	clock    timeutil.Clock
	recorder Recorder

	mask        outliers.Mask
	maskVersion uint64
	history     []Edit
}

// New opens a session over store and runs the initial outlier detection.
func New(ctx context.Context, store *markers.Store, opts Options) (*Session, error) {
	if store == nil {
		return nil, fmt.Errorf("session: nil store")
	}
	topo, err := skeleton.Lookup(opts.Model)
	if err != nil {
		return nil, err
	}
	pairs, err := skeleton.PairsFor(topo, store, opts.ExtraPairs)
	if err != nil {
		return nil, err
	}
	clock := opts.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	threshold := opts.Threshold
	if threshold == 0 {
		threshold = outliers.DefaultThreshold
	}
	epsilon := opts.Epsilon
	if epsilon == 0 {
		epsilon = repair.DefaultEpsilon
	}
	s := &Session{
		id:       uuid.NewString(),
		store:    store,
		topo:     topo,
		extra:    append([]skeleton.Pair(nil), opts.ExtraPairs...),
		pairs:    pairs,
		detector: &outliers.Detector{Threshold: threshold, Workers: opts.Workers},
		repairer: &repair.Repairer{Epsilon: epsilon, Workers: opts.Workers},
		clock:    clock,
		recorder: opts.Recorder,
	}
	if err := s.redetect(ctx); err != nil {
		return nil, err
	}
	monitoring.Logf("session %s: %d markers, %d frames at %g fps, model %s, %d pairs, %d outlier flags",
		s.id, len(store.Markers()), store.NumFrames(), store.FPS(), topo.Model, len(pairs), s.mask.Total())
	return s, nil
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Store returns the live store. Mutate it only through the session so the
// mask stays current.
func (s *Session) Store() *markers.Store { return s.store }

// Topology returns the active skeleton topology.
func (s *Session) Topology() skeleton.Topology {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.topo
}

// Snapshot returns a copy of the store taken under the session lock.
func (s *Session) Snapshot() *markers.Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Snapshot()
}

// Pairs returns the rigid pairs used for detection.
func (s *Session) Pairs() []skeleton.Pair {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]skeleton.Pair(nil), s.pairs...)
}

// Mask returns the current outlier mask, re-detecting if the store changed
// since the last detection.
func (s *Session) Mask(ctx context.Context) (outliers.Mask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.maskVersion != s.store.Version() {
		if err := s.redetect(ctx); err != nil {
			return nil, err
		}
	}
	return s.mask, nil
}

// History returns the edits applied so far, oldest first.
func (s *Session) History() []Edit {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Edit(nil), s.history...)
}

func (s *Session) redetect(ctx context.Context) error {
	v := s.store.Version()
	mask, err := s.detector.Detect(ctx, s.store, s.pairs)
	if err != nil {
		return fmt.Errorf("outlier detection: %w", err)
	}
	s.mask, s.maskVersion = mask, v
	return nil
}

// commit re-detects outliers and appends e to the history.
func (s *Session) commit(ctx context.Context, e Edit, params any) error {
	if err := s.redetect(ctx); err != nil {
		return err
	}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("encode %s params: %w", e.Op, err)
		}
		e.Params = raw
	}
	e.ID = uuid.NewString()
	e.At = s.clock.Now().UTC()
	e.Outliers = s.mask.Total()
	s.history = append(s.history, e)
	monitoring.Logf("session %s: %s %s %s filled=%d changed=%d outliers=%d",
		s.id, e.Op, e.Marker, rangeString(e.Range), e.Filled, e.Changed, e.Outliers)
	if s.recorder != nil {
		if err := s.recorder.RecordEdit(ctx, s.id, e); err != nil {
			return &NotPersistedError{Op: e.Op, Err: err}
		}
	}
	return nil
}

func rangeString(r *markers.Range) string {
	if r == nil {
		return ""
	}
	return r.String()
}

// Delete marks marker as missing over rng.
func (s *Session) Delete(ctx context.Context, marker string, rng markers.Range) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	before, err := s.store.ValidFrames(marker)
	if err != nil {
		return err
	}
	if err := s.store.ClearRange(marker, rng); err != nil {
		return err
	}
	removed := 0
	for _, f := range before {
		if rng.Contains(f) {
			removed++
		}
	}
	return s.commit(ctx, Edit{Op: OpDelete, Marker: marker, Range: &rng, Changed: removed}, nil)
}

type interpolateParams struct {
	Method string   `json:"method"`
	Order  int      `json:"order,omitempty"`
	Axes   []string `json:"axes"`
}

// Interpolate fills marker's gaps over rng with a classical method.
func (s *Session) Interpolate(ctx context.Context, marker string, axes []markers.Axis, rng markers.Range, p repair.Params) (repair.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.repairer.Interpolate(s.store, marker, axes, rng, p)
	if err != nil {
		return res, err
	}
	names := make([]string, len(res.Axes))
	for i, a := range res.Axes {
		names[i] = a.String()
	}
	err = s.commit(ctx, Edit{Op: OpInterpolate, Marker: marker, Range: &rng, Filled: res.Filled},
		interpolateParams{Method: p.Method.String(), Order: p.Order, Axes: names})
	return res, err
}

type patternParams struct {
	References []string `json:"references"`
	Anchor     int      `json:"anchor"`
	Epsilon    float64  `json:"epsilon"`
}

// InterpolatePattern reconstructs target over rng from reference markers.
func (s *Session) InterpolatePattern(ctx context.Context, target string, refs []string, rng markers.Range) (repair.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.repairer.InterpolatePattern(ctx, s.store, target, refs, rng)
	if err != nil {
		return res, err
	}
	err = s.commit(ctx, Edit{Op: OpPattern, Marker: target, Range: &rng, Filled: res.Filled},
		patternParams{References: refs, Anchor: res.Anchor, Epsilon: s.repairer.Epsilon})
	return res, err
}

// Filter smooths marker over rng.
func (s *Session) Filter(ctx context.Context, marker string, rng markers.Range, spec filter.Spec) (filter.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := filter.ApplyToStore(s.store, marker, rng, spec)
	if err != nil {
		return res, err
	}
	err = s.commit(ctx, Edit{Op: OpFilter, Marker: marker, Range: &rng, Changed: res.Changed}, spec)
	return res, err
}

// Restore returns the store to its loaded content.
func (s *Session) Restore(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.store.Restore()
	return s.commit(ctx, Edit{Op: OpRestore}, nil)
}

// SetModel switches the skeleton model, rebuilding the rigid pairs from the
// new topology and the user pairs added so far.
func (s *Session) SetModel(ctx context.Context, model string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	topo, err := skeleton.Lookup(model)
	if err != nil {
		return err
	}
	pairs, err := skeleton.PairsFor(topo, s.store, s.extra)
	if err != nil {
		return err
	}
	s.topo, s.pairs = topo, pairs
	return s.commit(ctx, Edit{Op: OpSetModel}, map[string]any{"model": topo.Model, "pairs": len(pairs)})
}

// AddPair adds a user-defined rigid pair and re-detects outliers.
func (s *Session) AddPair(ctx context.Context, p skeleton.Pair) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	extra := append(append([]skeleton.Pair(nil), s.extra...), p)
	pairs, err := skeleton.PairsFor(s.topo, s.store, extra)
	if err != nil {
		return err
	}
	s.extra, s.pairs = extra, pairs
	return s.commit(ctx, Edit{Op: OpAddPair}, p)
}

// Report aggregates the current store and mask.
func (s *Session) Report(ctx context.Context, opts report.Options) (*report.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.maskVersion != s.store.Version() {
		if err := s.redetect(ctx); err != nil {
			return nil, err
		}
	}
	if opts.Clock == nil {
		opts.Clock = s.clock
	}
	if opts.Workers == 0 {
		opts.Workers = s.detector.Workers
	}
	opts.ExtraPairs = s.extra
	return report.Build(ctx, s.store, s.mask, s.topo, opts)
}
