package api

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"slices"
	"strconv"
	"sync"

	"github.com/banshee-data/marker.studio/internal/config"
	"github.com/banshee-data/marker.studio/internal/db"
	"github.com/banshee-data/marker.studio/internal/httputil"
	"github.com/banshee-data/marker.studio/internal/markers"
	"github.com/banshee-data/marker.studio/internal/monitoring"
	"github.com/banshee-data/marker.studio/internal/security"
	"github.com/banshee-data/marker.studio/internal/session"
	"github.com/banshee-data/marker.studio/internal/timeutil"
	"github.com/banshee-data/marker.studio/internal/trc"
)

// ANSI escape codes for the request log.
const (
	colorCyan      = "\033[36m"
	colorReset     = "\033[0m"
	colorYellow    = "\033[33m"
	colorBoldGreen = "\033[1;32m"
	colorBoldRed   = "\033[1;31m"
)

// loaded is an open session with the file it was read from.
type loaded struct {
	sess   *session.Session
	source string
	units  string
}

// Server exposes editing sessions over HTTP. Sessions live in memory; their
// headers, edits and reports are persisted to the database when one is set.
type Server struct {
	cfg     *config.TuningConfig
	db      *db.DB
	dataDir string
	clock   timeutil.Clock

	mu       sync.RWMutex
	sessions map[string]*loaded
}

// NewServer returns a server loading TRC files from dataDir. database may be
// nil, in which case nothing is persisted.
func NewServer(cfg *config.TuningConfig, database *db.DB, dataDir string) *Server {
	if cfg == nil {
		cfg = config.EmptyTuningConfig()
	}
	return &Server{
		cfg:      cfg,
		db:       database,
		dataDir:  dataDir,
		clock:    timeutil.RealClock{},
		sessions: make(map[string]*loaded),
	}
}

// SetClock replaces the clock handed to new sessions.
func (s *Server) SetClock(c timeutil.Clock) { s.clock = c }

// Open reads a TRC file below the data directory and starts a session on it.
// An empty model falls back to the configured skeleton model.
func (s *Server) Open(ctx context.Context, name, model string) (*session.Session, error) {
	path, err := security.ResolveWithinDirectory(s.dataDir, name)
	if err != nil {
		return nil, markers.InvalidParam("path", name, err.Error())
	}
	f, err := trc.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return s.Adopt(ctx, f.Store, name, f.Units, model)
}

// Adopt starts a session on an already loaded store.
func (s *Server) Adopt(ctx context.Context, store *markers.Store, source, units, model string) (*session.Session, error) {
	opts := session.OptionsFromConfig(s.cfg)
	if model != "" {
		opts.Model = model
	}
	opts.Clock = s.clock
	if s.db != nil {
		opts.Recorder = s.db
	}
	sess, err := session.New(ctx, store, opts)
	if err != nil {
		return nil, err
	}
	if s.db != nil {
		if _, err := s.db.CreateSession(ctx, sess.ID(), source, sess.Topology().Model, store); err != nil {
			return nil, fmt.Errorf("persist session: %w", err)
		}
	}
	s.mu.Lock()
	s.sessions[sess.ID()] = &loaded{sess: sess, source: source, units: units}
	s.mu.Unlock()
	monitoring.Logf("opened session %s on %s (%d markers, %d frames)",
		sess.ID(), source, len(store.Markers()), store.NumFrames())
	return sess, nil
}

func (s *Server) lookup(id string) (*loaded, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.sessions[id]
	if !ok {
		return nil, &markers.NotFoundError{Kind: "session", Name: id}
	}
	return l, nil
}

// Session returns the open session with the given ID.
func (s *Server) Session(id string) (*session.Session, error) {
	l, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	return l.sess, nil
}

// Close drops a session from memory. Persisted rows are kept.
func (s *Server) Close(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return &markers.NotFoundError{Kind: "session", Name: id}
	}
	delete(s.sessions, id)
	return nil
}

// IDs returns the open session IDs, sorted.
func (s *Server) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, status and duration, timed by clock.
func LoggingMiddleware(next http.Handler, clock timeutil.Clock) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := clock.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(clock.Since(start).Nanoseconds())/1e6,
		)
	})
}

// ServeMux returns the API routes.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/config", s.showConfig)
	mux.HandleFunc("GET /api/models", s.listModels)
	mux.HandleFunc("GET /api/sessions", s.listSessions)
	mux.HandleFunc("POST /api/sessions", s.openSession)
	mux.HandleFunc("GET /api/sessions/{id}", s.showSession)
	mux.HandleFunc("DELETE /api/sessions/{id}", s.closeSession)
	mux.HandleFunc("GET /api/sessions/{id}/outliers", s.showOutliers)
	mux.HandleFunc("GET /api/sessions/{id}/edits", s.listEdits)
	mux.HandleFunc("POST /api/sessions/{id}/delete", s.deleteRange)
	mux.HandleFunc("POST /api/sessions/{id}/interpolate", s.interpolate)
	mux.HandleFunc("POST /api/sessions/{id}/pattern", s.interpolatePattern)
	mux.HandleFunc("POST /api/sessions/{id}/filter", s.filter)
	mux.HandleFunc("POST /api/sessions/{id}/restore", s.restore)
	mux.HandleFunc("POST /api/sessions/{id}/model", s.setModel)
	mux.HandleFunc("POST /api/sessions/{id}/pairs", s.addPair)
	mux.HandleFunc("GET /api/sessions/{id}/report", s.showReport)
	mux.HandleFunc("GET /api/sessions/{id}/charts", s.chartsHandler())
	mux.HandleFunc("GET /api/sessions/{id}/export", s.exportTRC)
	return mux
}

func (s *Server) showConfig(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, map[string]interface{}{
		"skeleton_model":        s.cfg.GetSkeletonModel(),
		"outlier_threshold":     s.cfg.GetOutlierThreshold(),
		"pattern_epsilon":       s.cfg.GetPatternEpsilon(),
		"default_interpolation": s.cfg.GetDefaultInterpolation(),
		"interpolation_order":   s.cfg.GetInterpolationOrder(),
		"default_filter":        s.cfg.GetDefaultFilter(),
		"data_dir":              filepath.Base(s.dataDir),
		"persisted":             s.db != nil,
	})
}
