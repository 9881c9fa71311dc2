package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"

	"github.com/banshee-data/marker.studio/internal/db"
	"github.com/banshee-data/marker.studio/internal/filter"
	"github.com/banshee-data/marker.studio/internal/httputil"
	"github.com/banshee-data/marker.studio/internal/markers"
	"github.com/banshee-data/marker.studio/internal/monitoring"
	"github.com/banshee-data/marker.studio/internal/repair"
	"github.com/banshee-data/marker.studio/internal/report"
	"github.com/banshee-data/marker.studio/internal/security"
	"github.com/banshee-data/marker.studio/internal/session"
	"github.com/banshee-data/marker.studio/internal/skeleton"
	"github.com/banshee-data/marker.studio/internal/trc"
	"github.com/banshee-data/marker.studio/internal/units"
)

const maxRequestBytes = 1 << 20

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return markers.InvalidParam("body", nil, err.Error())
	}
	return nil
}

// rangeRequest selects a marker and an optional inclusive frame range. With
// neither bound set the whole recording is used.
type rangeRequest struct {
	Marker string `json:"marker"`
	Start  *int   `json:"start,omitempty"`
	End    *int   `json:"end,omitempty"`
}

func (q rangeRequest) rangeFor(store *markers.Store) (markers.Range, error) {
	switch {
	case q.Start == nil && q.End == nil:
		return markers.Whole(store.NumFrames()), nil
	case q.Start == nil || q.End == nil:
		return markers.Range{}, markers.InvalidParam("range", nil, "start and end must be given together")
	default:
		return markers.NewRange(*q.Start, *q.End), nil
	}
}

type sessionInfo struct {
	ID           string          `json:"session_id"`
	Source       string          `json:"source"`
	Model        string          `json:"model"`
	Markers      []string        `json:"markers"`
	Frames       int             `json:"frames"`
	FPS          float64         `json:"fps"`
	Pairs        []skeleton.Pair `json:"pairs"`
	OutlierFlags int             `json:"outlier_flags"`
	Edits        int             `json:"edits"`
}

func (s *Server) info(r *http.Request, l *loaded) (sessionInfo, error) {
	mask, err := l.sess.Mask(r.Context())
	if err != nil {
		return sessionInfo{}, err
	}
	store := l.sess.Store()
	return sessionInfo{
		ID:           l.sess.ID(),
		Source:       l.source,
		Model:        l.sess.Topology().Model,
		Markers:      store.Markers(),
		Frames:       store.NumFrames(),
		FPS:          store.FPS(),
		Pairs:        l.sess.Pairs(),
		OutlierFlags: mask.Total(),
		Edits:        len(l.sess.History()),
	}, nil
}

func (s *Server) listModels(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, map[string][]string{
		"models":        skeleton.Models(),
		"interpolation": repair.Methods(),
		"filters":       filter.Kinds(),
	})
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	resp := struct {
		Open   []string           `json:"open"`
		Stored []db.SessionRecord `json:"stored,omitempty"`
	}{Open: s.IDs()}
	if s.db != nil {
		stored, err := s.db.ListSessions(r.Context())
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		resp.Stored = stored
	}
	httputil.WriteJSONOK(w, resp)
}

func (s *Server) openSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Path  string `json:"path"`
		Model string `json:"model,omitempty"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	if req.Path == "" {
		httputil.BadRequest(w, "path is required")
		return
	}
	sess, err := s.Open(r.Context(), req.Path, req.Model)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	l, err := s.lookup(sess.ID())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	info, err := s.info(r, l)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, info)
}

// withSession resolves the {id} path value before calling fn.
func (s *Server) withSession(w http.ResponseWriter, r *http.Request, fn func(*loaded)) {
	l, err := s.lookup(r.PathValue("id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	fn(l)
}

func (s *Server) showSession(w http.ResponseWriter, r *http.Request) {
	s.withSession(w, r, func(l *loaded) {
		info, err := s.info(r, l)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		httputil.WriteJSONOK(w, info)
	})
}

func (s *Server) closeSession(w http.ResponseWriter, r *http.Request) {
	if err := s.Close(r.PathValue("id")); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) showOutliers(w http.ResponseWriter, r *http.Request) {
	s.withSession(w, r, func(l *loaded) {
		mask, err := l.sess.Mask(r.Context())
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		frames := make(map[string][]int)
		for _, m := range mask.Markers() {
			frames[m] = mask.Frames(m)
		}
		httputil.WriteJSONOK(w, map[string]interface{}{
			"total":   mask.Total(),
			"markers": frames,
		})
	})
}

func (s *Server) listEdits(w http.ResponseWriter, r *http.Request) {
	s.withSession(w, r, func(l *loaded) {
		edits := l.sess.History()
		if s.db != nil {
			stored, err := s.db.ListEdits(r.Context(), l.sess.ID())
			if err != nil {
				httputil.WriteError(w, err)
				return
			}
			edits = stored
		}
		if edits == nil {
			edits = []session.Edit{}
		}
		httputil.WriteJSONOK(w, edits)
	})
}

func (s *Server) deleteRange(w http.ResponseWriter, r *http.Request) {
	s.withSession(w, r, func(l *loaded) {
		var req rangeRequest
		if err := decodeJSON(w, r, &req); err != nil {
			httputil.WriteError(w, err)
			return
		}
		rng, err := req.rangeFor(l.sess.Store())
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		s.finishEdit(w, l, l.sess.Delete(r.Context(), req.Marker, rng))
	})
}

func (s *Server) interpolate(w http.ResponseWriter, r *http.Request) {
	s.withSession(w, r, func(l *loaded) {
		var req struct {
			rangeRequest
			Method string `json:"method,omitempty"`
			Order  *int   `json:"order,omitempty"`
			Axes   string `json:"axes,omitempty"`
		}
		if err := decodeJSON(w, r, &req); err != nil {
			httputil.WriteError(w, err)
			return
		}
		params, err := session.RepairParamsFromConfig(s.cfg)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		if req.Method != "" {
			if params.Method, err = repair.ParseMethod(req.Method); err != nil {
				httputil.WriteError(w, err)
				return
			}
			params.Order = 0
			if params.Method.NeedsOrder() {
				params.Order = s.cfg.GetInterpolationOrder()
			}
		}
		if req.Order != nil {
			params.Order = *req.Order
		}
		var axes []markers.Axis
		if req.Axes != "" {
			if axes, err = markers.ParseAxes(req.Axes); err != nil {
				httputil.WriteError(w, err)
				return
			}
		}
		rng, err := req.rangeFor(l.sess.Store())
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		_, err = l.sess.Interpolate(r.Context(), req.Marker, axes, rng, params)
		s.finishEdit(w, l, err)
	})
}

func (s *Server) interpolatePattern(w http.ResponseWriter, r *http.Request) {
	s.withSession(w, r, func(l *loaded) {
		var req struct {
			rangeRequest
			References []string `json:"references"`
		}
		if err := decodeJSON(w, r, &req); err != nil {
			httputil.WriteError(w, err)
			return
		}
		rng, err := req.rangeFor(l.sess.Store())
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		_, err = l.sess.InterpolatePattern(r.Context(), req.Marker, req.References, rng)
		s.finishEdit(w, l, err)
	})
}

func (s *Server) filter(w http.ResponseWriter, r *http.Request) {
	s.withSession(w, r, func(l *loaded) {
		var req struct {
			rangeRequest
			Kind        string              `json:"kind,omitempty"`
			Butterworth *filter.Butterworth `json:"butterworth,omitempty"`
			Kalman      *filter.Kalman      `json:"kalman,omitempty"`
			Gaussian    *filter.Gaussian    `json:"gaussian,omitempty"`
			LOESS       *filter.LOESS       `json:"loess,omitempty"`
			Median      *filter.Median      `json:"median,omitempty"`
		}
		if err := decodeJSON(w, r, &req); err != nil {
			httputil.WriteError(w, err)
			return
		}
		name := req.Kind
		if name == "" {
			name = s.cfg.GetDefaultFilter()
		}
		kind, err := filter.ParseKind(name)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		spec := session.FilterSpecFromConfig(s.cfg, kind)
		if req.Butterworth != nil {
			spec.Butterworth = *req.Butterworth
		}
		if req.Kalman != nil {
			spec.Kalman = *req.Kalman
		}
		if req.Gaussian != nil {
			spec.Gaussian = *req.Gaussian
		}
		if req.LOESS != nil {
			spec.LOESS = *req.LOESS
		}
		if req.Median != nil {
			spec.Median = *req.Median
		}
		rng, err := req.rangeFor(l.sess.Store())
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		_, err = l.sess.Filter(r.Context(), req.Marker, rng, spec)
		s.finishEdit(w, l, err)
	})
}

func (s *Server) restore(w http.ResponseWriter, r *http.Request) {
	s.withSession(w, r, func(l *loaded) {
		s.finishEdit(w, l, l.sess.Restore(r.Context()))
	})
}

func (s *Server) setModel(w http.ResponseWriter, r *http.Request) {
	s.withSession(w, r, func(l *loaded) {
		var req struct {
			Model string `json:"model"`
		}
		if err := decodeJSON(w, r, &req); err != nil {
			httputil.WriteError(w, err)
			return
		}
		err := l.sess.SetModel(r.Context(), req.Model)
		applied := err == nil || errors.Is(err, session.ErrNotPersisted)
		if applied && s.db != nil {
			if dbErr := s.db.UpdateSessionModel(r.Context(), l.sess.ID(), l.sess.Topology().Model); dbErr != nil && err == nil {
				err = &session.NotPersistedError{Op: session.OpSetModel, Err: dbErr}
			}
		}
		s.finishEdit(w, l, err)
	})
}

func (s *Server) addPair(w http.ResponseWriter, r *http.Request) {
	s.withSession(w, r, func(l *loaded) {
		var p skeleton.Pair
		if err := decodeJSON(w, r, &p); err != nil {
			httputil.WriteError(w, err)
			return
		}
		s.finishEdit(w, l, l.sess.AddPair(r.Context(), p))
	})
}

// finishEdit answers a mutating request. An edit that was applied but could
// not be recorded is still returned, marked by X-Edit-Persisted: false.
func (s *Server) finishEdit(w http.ResponseWriter, l *loaded, err error) {
	switch {
	case errors.Is(err, session.ErrNotPersisted):
		monitoring.Logf("session %s: %v", l.sess.ID(), err)
		w.Header().Set("X-Edit-Persisted", "false")
	case err != nil:
		httputil.WriteError(w, err)
		return
	}
	s.writeLastEdit(w, l)
}

func (s *Server) writeLastEdit(w http.ResponseWriter, l *loaded) {
	h := l.sess.History()
	if len(h) == 0 {
		httputil.WriteJSONOK(w, nil)
		return
	}
	httputil.WriteJSONOK(w, h[len(h)-1])
}

func (s *Server) buildReport(r *http.Request, l *loaded) (*report.Report, error) {
	title := r.URL.Query().Get("title")
	if title == "" {
		title = filepath.Base(l.source)
	}
	return l.sess.Report(r.Context(), report.Options{Title: title})
}

// showReport serves the report as JSON (default) or CSV. With save=1 the
// report is also persisted and its ID returned in X-Report-ID.
func (s *Server) showReport(w http.ResponseWriter, r *http.Request) {
	s.withSession(w, r, func(l *loaded) {
		rep, err := s.buildReport(r, l)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		if r.URL.Query().Get("save") == "1" {
			if s.db == nil {
				httputil.BadRequest(w, "no database configured")
				return
			}
			id, err := s.db.SaveReport(r.Context(), l.sess.ID(), rep)
			if err != nil {
				httputil.WriteError(w, err)
				return
			}
			w.Header().Set("X-Report-ID", id)
		}
		switch format := r.URL.Query().Get("format"); format {
		case "", "json":
			w.Header().Set("Content-Type", "application/json")
			if err := rep.WriteJSON(w); err != nil {
				httputil.WriteError(w, err)
			}
		case "csv":
			w.Header().Set("Content-Type", "text/csv")
			w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s_report.csv",
				security.SanitizeFilename(rep.Overview.Title)))
			if err := rep.WriteCSV(w); err != nil {
				httputil.WriteError(w, err)
			}
		default:
			httputil.BadRequest(w, fmt.Sprintf("unknown format %q", format))
		}
	})
}

func (s *Server) chartsHandler() http.HandlerFunc {
	return report.Handler(func(r *http.Request) (*report.Report, error) {
		l, err := s.lookup(r.PathValue("id"))
		if err != nil {
			return nil, err
		}
		return s.buildReport(r, l)
	})
}

// exportTRC downloads the current edited data as a TRC file.
func (s *Server) exportTRC(w http.ResponseWriter, r *http.Request) {
	s.withSession(w, r, func(l *loaded) {
		name := security.SanitizeFilename(filepath.Base(l.source))
		opts := trc.WriteOptions{Path: name, Units: l.units}
		if u := r.URL.Query().Get("units"); u != "" {
			if !units.IsValid(u) {
				httputil.BadRequest(w, fmt.Sprintf("units must be one of %s", units.GetValidUnitsString()))
				return
			}
			opts.Units, opts.From = units.Normalize(u), l.units
		}
		w.Header().Set("Content-Type", "text/tab-separated-values")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", name))
		if err := trc.Write(w, l.sess.Snapshot(), opts); err != nil {
			httputil.WriteError(w, err)
		}
	})
}
