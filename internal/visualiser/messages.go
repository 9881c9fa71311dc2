package visualiser

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/banshee-data/marker.studio/internal/markers"
)

// StreamRequest selects the frames of one session to stream.
type StreamRequest struct {
	SessionID string
	// Start and End bound the frames, inclusive. Both nil streams the whole
	// recording.
	Start, End *int
	// Rate paces the stream relative to the recording's frame rate. Zero
	// sends frames as fast as the client reads them.
	Rate float64
	// OutliersOnly skips frames with no flagged marker.
	OutliersOnly bool
}

// Frame is one streamed frame.
type Frame struct {
	SessionID string
	Index     int
	Time      float64
	// Positions holds X, Y, Z per marker. Markers missing at this frame are
	// absent.
	Positions map[string][3]float64
	// Outliers lists the markers flagged at this frame, sorted.
	Outliers []string
}

// SessionSummary describes an open session.
type SessionSummary struct {
	SessionID    string
	Model        string
	Markers      []string
	Frames       int
	FPS          float64
	OutlierFlags int
}

func (r StreamRequest) proto() (*structpb.Struct, error) {
	m := map[string]any{
		"session_id":    r.SessionID,
		"rate":          r.Rate,
		"outliers_only": r.OutliersOnly,
	}
	if r.Start != nil {
		m["start"] = *r.Start
	}
	if r.End != nil {
		m["end"] = *r.End
	}
	return structpb.NewStruct(m)
}

func streamRequestFromProto(pb *structpb.Struct) (StreamRequest, error) {
	f := pb.GetFields()
	req := StreamRequest{
		SessionID:    f["session_id"].GetStringValue(),
		Rate:         f["rate"].GetNumberValue(),
		OutliersOnly: f["outliers_only"].GetBoolValue(),
	}
	if req.SessionID == "" {
		return req, markers.InvalidParam("session_id", nil, "required")
	}
	if req.Rate < 0 || math.IsNaN(req.Rate) || math.IsInf(req.Rate, 0) {
		return req, markers.InvalidParam("rate", req.Rate, "must be a finite value >= 0")
	}
	var err error
	if req.Start, err = optionalFrame(f, "start"); err != nil {
		return req, err
	}
	if req.End, err = optionalFrame(f, "end"); err != nil {
		return req, err
	}
	return req, nil
}

func optionalFrame(f map[string]*structpb.Value, key string) (*int, error) {
	v, ok := f[key]
	if !ok {
		return nil, nil
	}
	n, isNum := v.GetKind().(*structpb.Value_NumberValue)
	if !isNum || n.NumberValue != math.Trunc(n.NumberValue) {
		return nil, markers.InvalidParam(key, v.AsInterface(), "must be a frame number")
	}
	i := int(n.NumberValue)
	return &i, nil
}

func (fr Frame) proto() (*structpb.Struct, error) {
	positions := make(map[string]any, len(fr.Positions))
	for name, p := range fr.Positions {
		positions[name] = []any{p[0], p[1], p[2]}
	}
	outliers := make([]any, len(fr.Outliers))
	for i, name := range fr.Outliers {
		outliers[i] = name
	}
	return structpb.NewStruct(map[string]any{
		"session_id": fr.SessionID,
		"frame":      fr.Index,
		"time":       fr.Time,
		"positions":  positions,
		"outliers":   outliers,
	})
}

// FrameFromProto decodes a streamed frame.
func FrameFromProto(pb *structpb.Struct) (Frame, error) {
	f := pb.GetFields()
	fr := Frame{
		SessionID: f["session_id"].GetStringValue(),
		Index:     int(f["frame"].GetNumberValue()),
		Time:      f["time"].GetNumberValue(),
		Positions: make(map[string][3]float64),
	}
	for name, v := range f["positions"].GetStructValue().GetFields() {
		xyz := v.GetListValue().GetValues()
		if len(xyz) != 3 {
			return fr, fmt.Errorf("frame %d: marker %s has %d coordinates", fr.Index, name, len(xyz))
		}
		fr.Positions[name] = [3]float64{xyz[0].GetNumberValue(), xyz[1].GetNumberValue(), xyz[2].GetNumberValue()}
	}
	for _, v := range f["outliers"].GetListValue().GetValues() {
		fr.Outliers = append(fr.Outliers, v.GetStringValue())
	}
	return fr, nil
}

func sessionListProto(list []SessionSummary) (*structpb.Struct, error) {
	items := make([]any, len(list))
	for i, s := range list {
		names := make([]any, len(s.Markers))
		for j, n := range s.Markers {
			names[j] = n
		}
		items[i] = map[string]any{
			"session_id":    s.SessionID,
			"model":         s.Model,
			"markers":       names,
			"frames":        s.Frames,
			"fps":           s.FPS,
			"outlier_flags": s.OutlierFlags,
		}
	}
	return structpb.NewStruct(map[string]any{"sessions": items})
}

func sessionListFromProto(pb *structpb.Struct) []SessionSummary {
	var out []SessionSummary
	for _, v := range pb.GetFields()["sessions"].GetListValue().GetValues() {
		f := v.GetStructValue().GetFields()
		s := SessionSummary{
			SessionID:    f["session_id"].GetStringValue(),
			Model:        f["model"].GetStringValue(),
			Frames:       int(f["frames"].GetNumberValue()),
			FPS:          f["fps"].GetNumberValue(),
			OutlierFlags: int(f["outlier_flags"].GetNumberValue()),
		}
		for _, n := range f["markers"].GetListValue().GetValues() {
			s.Markers = append(s.Markers, n.GetStringValue())
		}
		out = append(out, s)
	}
	return out
}
