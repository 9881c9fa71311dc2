package filter

import (
	"fmt"
	"math"
	"strings"

	"github.com/banshee-data/marker.studio/internal/markers"
)

// Kind selects a filter family.
type Kind int

const (
	KindButterworth Kind = iota
	KindKalman
	KindGaussian
	KindLOESS
	KindMedian
)

var kindNames = [...]string{
	KindButterworth: "butterworth",
	KindKalman:      "kalman",
	KindGaussian:    "gaussian",
	KindLOESS:       "loess",
	KindMedian:      "median",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

// Kinds lists every name accepted by ParseKind.
func Kinds() []string {
	return append([]string(nil), kindNames[:]...)
}

// ParseKind maps a filter name to a Kind, ignoring case.
func ParseKind(s string) (Kind, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for k, n := range kindNames {
		if n == name {
			return Kind(k), nil
		}
	}
	return 0, markers.InvalidParam("filter", s, "unknown filter kind")
}

// Butterworth is a zero-phase low-pass filter.
type Butterworth struct {
	Order    int     `json:"order"`
	CutoffHz float64 `json:"cut_off_frequency"`
}

// Kalman is a constant-acceleration Kalman filter. TrustRatio scales the
// process noise against the measurement noise: higher values follow the
// measurements more closely.
type Kalman struct {
	TrustRatio float64 `json:"trust_ratio"`
	Smooth     bool    `json:"smooth"`
}

// Gaussian is a Gaussian kernel smoother with a standard deviation in frames.
type Gaussian struct {
	SigmaKernel float64 `json:"sigma_kernel"`
}

// LOESS is locally weighted linear regression over NbValuesUsed neighbours.
type LOESS struct {
	NbValuesUsed int `json:"nb_values_used"`
}

// Median is a running median over an odd window.
type Median struct {
	KernelSize int `json:"kernel_size"`
}

// Spec selects a filter kind and carries its parameters. Only the block
// matching Kind is read.
type Spec struct {
	Kind        Kind        `json:"kind"`
	Butterworth Butterworth `json:"butterworth"`
	Kalman      Kalman      `json:"kalman"`
	Gaussian    Gaussian    `json:"gaussian"`
	LOESS       LOESS       `json:"loess"`
	Median      Median      `json:"median"`
}

// Params returns the active parameter block.
func (s Spec) Params() interface{} {
	switch s.Kind {
	case KindButterworth:
		return s.Butterworth
	case KindKalman:
		return s.Kalman
	case KindGaussian:
		return s.Gaussian
	case KindLOESS:
		return s.LOESS
	case KindMedian:
		return s.Median
	}
	return nil
}

func (s Spec) String() string {
	return fmt.Sprintf("%s%+v", s.Kind, s.Params())
}

// Validate checks the active parameters against the capture rate. Errors
// name the offending field.
func (s Spec) Validate(fps float64) error {
	if !(fps > 0) || math.IsInf(fps, 0) {
		return markers.InvalidParam("fps", fps, "must be a positive finite number")
	}
	switch s.Kind {
	case KindButterworth:
		p := s.Butterworth
		if p.Order < 1 {
			return markers.InvalidParam("order", p.Order, "must be at least 1")
		}
		if !(p.CutoffHz > 0) {
			return markers.InvalidParam("cut_off_frequency", p.CutoffHz, "must be greater than 0")
		}
		if p.CutoffHz >= fps/2 {
			return markers.InvalidParam("cut_off_frequency", p.CutoffHz, fmt.Sprintf("must be below the Nyquist frequency %g Hz", fps/2))
		}
	case KindKalman:
		if !(s.Kalman.TrustRatio > 0) {
			return markers.InvalidParam("trust_ratio", s.Kalman.TrustRatio, "must be greater than 0")
		}
	case KindGaussian:
		if !(s.Gaussian.SigmaKernel > 0) {
			return markers.InvalidParam("sigma_kernel", s.Gaussian.SigmaKernel, "must be greater than 0")
		}
	case KindLOESS:
		if s.LOESS.NbValuesUsed < 2 {
			return markers.InvalidParam("nb_values_used", s.LOESS.NbValuesUsed, "must be at least 2")
		}
	case KindMedian:
		k := s.Median.KernelSize
		if k < 1 || k%2 == 0 {
			return markers.InvalidParam("kernel_size", k, "must be a positive odd number")
		}
	default:
		return markers.InvalidParam("filter", s.Kind, "unknown filter kind")
	}
	return nil
}

// MarshalText encodes the kind by name.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText decodes a kind name.
func (k *Kind) UnmarshalText(b []byte) error {
	v, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = v
	return nil
}
