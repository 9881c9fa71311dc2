package session

import (
	"github.com/banshee-data/marker.studio/internal/config"
	"github.com/banshee-data/marker.studio/internal/filter"
	"github.com/banshee-data/marker.studio/internal/repair"
)

// OptionsFromConfig fills session options from the tuning config.
func OptionsFromConfig(cfg *config.TuningConfig) Options {
	return Options{
		Model:     cfg.GetSkeletonModel(),
		Threshold: cfg.GetOutlierThreshold(),
		Epsilon:   cfg.GetPatternEpsilon(),
		Workers:   cfg.GetDetectorWorkers(),
	}
}

// FilterSpecFromConfig returns the configured parameters for kind.
func FilterSpecFromConfig(cfg *config.TuningConfig, kind filter.Kind) filter.Spec {
	return filter.Spec{
		Kind:        kind,
		Butterworth: filter.Butterworth{Order: cfg.GetButterworthOrder(), CutoffHz: cfg.GetButterworthCutoffHz()},
		Kalman:      filter.Kalman{TrustRatio: cfg.GetKalmanTrustRatio(), Smooth: cfg.GetKalmanSmooth()},
		Gaussian:    filter.Gaussian{SigmaKernel: cfg.GetGaussianSigma()},
		LOESS:       filter.LOESS{NbValuesUsed: cfg.GetLOESSValues()},
		Median:      filter.Median{KernelSize: cfg.GetMedianKernel()},
	}
}

// RepairParamsFromConfig returns the configured default interpolation.
func RepairParamsFromConfig(cfg *config.TuningConfig) (repair.Params, error) {
	m, err := repair.ParseMethod(cfg.GetDefaultInterpolation())
	if err != nil {
		return repair.Params{}, err
	}
	p := repair.Params{Method: m}
	if m.NeedsOrder() {
		p.Order = cfg.GetInterpolationOrder()
	}
	return p, nil
}
