package visualiser

import (
	"context"
	"errors"
	"sort"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/banshee-data/marker.studio/internal/markers"
	"github.com/banshee-data/marker.studio/internal/monitoring"
	"github.com/banshee-data/marker.studio/internal/outliers"
	"github.com/banshee-data/marker.studio/internal/session"
)

// Sessions resolves open sessions by ID. *api.Server satisfies it.
type Sessions interface {
	Session(id string) (*session.Session, error)
	IDs() []string
}

var _ VisualiserServiceServer = (*Server)(nil)

// Server implements the visualiser gRPC service over a set of open sessions.
type Server struct {
	sessions Sessions
}

// NewServer creates a server streaming from sessions.
func NewServer(sessions Sessions) *Server {
	return &Server{sessions: sessions}
}

// ListSessions returns a summary of every open session.
func (s *Server) ListSessions(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	var list []SessionSummary
	for _, id := range s.sessions.IDs() {
		sess, err := s.sessions.Session(id)
		if err != nil {
			// closed between IDs and Session
			continue
		}
		mask, err := sess.Mask(ctx)
		if err != nil {
			return nil, statusError(err)
		}
		store := sess.Snapshot()
		list = append(list, SessionSummary{
			SessionID:    id,
			Model:        sess.Topology().Model,
			Markers:      store.Markers(),
			Frames:       store.NumFrames(),
			FPS:          store.FPS(),
			OutlierFlags: mask.Total(),
		})
	}
	return sessionListProto(list)
}

// StreamFrames sends the requested frames of one session. Positions come
// from a snapshot taken when the stream starts, so edits made while it runs
// are not seen.
func (s *Server) StreamFrames(in *structpb.Struct, stream grpc.ServerStreamingServer[structpb.Struct]) error {
	req, err := streamRequestFromProto(in)
	if err != nil {
		return statusError(err)
	}
	sess, err := s.sessions.Session(req.SessionID)
	if err != nil {
		return statusError(err)
	}
	ctx := stream.Context()
	mask, err := sess.Mask(ctx)
	if err != nil {
		return statusError(err)
	}
	store := sess.Snapshot()

	rng := markers.Whole(store.NumFrames())
	if req.Start != nil {
		rng.Start = *req.Start
	}
	if req.End != nil {
		rng.End = *req.End
	}
	if err := rng.Validate(store.NumFrames()); err != nil {
		return statusError(err)
	}

	monitoring.Logf("[gRPC] StreamFrames started: session=%s frames=%s rate=%g outliers_only=%v",
		req.SessionID, rng, req.Rate, req.OutliersOnly)

	var tick <-chan time.Time
	if req.Rate > 0 {
		ticker := time.NewTicker(time.Duration(float64(time.Second) / (store.FPS() * req.Rate)))
		defer ticker.Stop()
		tick = ticker.C
	}

	names := store.Markers()
	sent := 0
	for f := rng.Start; f <= rng.End; f++ {
		if req.OutliersOnly && !mask.Any(f) {
			continue
		}
		if tick != nil {
			select {
			case <-ctx.Done():
				monitoring.Logf("[gRPC] StreamFrames cancelled after %d frames", sent)
				return ctx.Err()
			case <-tick:
			}
		} else if err := ctx.Err(); err != nil {
			monitoring.Logf("[gRPC] StreamFrames cancelled after %d frames", sent)
			return err
		}

		pb, err := frameAt(store, mask, names, req.SessionID, f).proto()
		if err != nil {
			return status.Error(codes.Internal, err.Error())
		}
		if err := stream.Send(pb); err != nil {
			monitoring.Logf("[gRPC] Send error: %v", err)
			return err
		}
		sent++
	}
	monitoring.Debugf("[gRPC] StreamFrames done: session=%s sent=%d", req.SessionID, sent)
	return nil
}

func frameAt(store *markers.Store, mask outliers.Mask, names []string, id string, f int) Frame {
	fr := Frame{
		SessionID: id,
		Index:     f,
		Time:      float64(f) / store.FPS(),
		Positions: make(map[string][3]float64, len(names)),
	}
	for _, name := range names {
		if mask.Flagged(name, f) {
			fr.Outliers = append(fr.Outliers, name)
		}
		if !store.HasValue(name, f) {
			continue
		}
		if p, err := store.Position(name, f); err == nil {
			fr.Positions[name] = [3]float64{p.X, p.Y, p.Z}
		}
	}
	sort.Strings(fr.Outliers)
	return fr
}

// statusError maps domain errors onto gRPC status codes.
func statusError(err error) error {
	switch {
	case errors.Is(err, markers.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, markers.ErrInvalidParameter), errors.Is(err, markers.ErrInvalidSelection):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
