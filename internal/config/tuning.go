package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig represents the root configuration for the trajectory engine.
// Every field is optional; the Get* accessors supply the documented default
// when a field is absent so partial files are safe.
type TuningConfig struct {
	// Outlier detection
	OutlierThreshold *float64 `json:"outlier_threshold,omitempty"` // relative segment length change
	DetectorWorkers  *int     `json:"detector_workers,omitempty"`

	// Gap repair
	PatternEpsilon       *float64 `json:"pattern_epsilon,omitempty"`
	DefaultInterpolation *string  `json:"default_interpolation,omitempty"`
	InterpolationOrder   *int     `json:"interpolation_order,omitempty"`

	// Filter defaults
	DefaultFilter       *string  `json:"default_filter,omitempty"`
	ButterworthOrder    *int     `json:"butterworth_order,omitempty"`
	ButterworthCutoffHz *float64 `json:"butterworth_cutoff_hz,omitempty"`
	KalmanTrustRatio    *float64 `json:"kalman_trust_ratio,omitempty"`
	KalmanSmooth        *bool    `json:"kalman_smooth,omitempty"`
	GaussianSigma       *float64 `json:"gaussian_sigma,omitempty"`
	LOESSValues         *int     `json:"loess_values,omitempty"`
	MedianKernel        *int     `json:"median_kernel,omitempty"`

	// Skeleton / report
	SkeletonModel     *string  `json:"skeleton_model,omitempty"`
	ReportPlotWidthIn *float64 `json:"report_plot_width_in,omitempty"`
	ReportPlotHeight  *float64 `json:"report_plot_height_in,omitempty"`

	// Persistence
	DatabasePath *string `json:"database_path,omitempty"`
}

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from the defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
// Fields omitted from the JSON file retain their default values, so
// partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // from cmd/marker-tool/ and deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	if c.OutlierThreshold != nil && *c.OutlierThreshold <= 0 {
		return fmt.Errorf("outlier_threshold must be positive, got %f", *c.OutlierThreshold)
	}
	if c.DetectorWorkers != nil && *c.DetectorWorkers < 0 {
		return fmt.Errorf("detector_workers must be non-negative, got %d", *c.DetectorWorkers)
	}
	if c.PatternEpsilon != nil && *c.PatternEpsilon <= 0 {
		return fmt.Errorf("pattern_epsilon must be positive, got %g", *c.PatternEpsilon)
	}
	if c.InterpolationOrder != nil && *c.InterpolationOrder < 1 {
		return fmt.Errorf("interpolation_order must be at least 1, got %d", *c.InterpolationOrder)
	}
	if c.ButterworthOrder != nil && *c.ButterworthOrder < 1 {
		return fmt.Errorf("butterworth_order must be at least 1, got %d", *c.ButterworthOrder)
	}
	if c.ButterworthCutoffHz != nil && *c.ButterworthCutoffHz <= 0 {
		return fmt.Errorf("butterworth_cutoff_hz must be positive, got %f", *c.ButterworthCutoffHz)
	}
	if c.KalmanTrustRatio != nil && *c.KalmanTrustRatio <= 0 {
		return fmt.Errorf("kalman_trust_ratio must be positive, got %f", *c.KalmanTrustRatio)
	}
	if c.GaussianSigma != nil && *c.GaussianSigma <= 0 {
		return fmt.Errorf("gaussian_sigma must be positive, got %f", *c.GaussianSigma)
	}
	if c.LOESSValues != nil && *c.LOESSValues < 2 {
		return fmt.Errorf("loess_values must be at least 2, got %d", *c.LOESSValues)
	}
	if c.MedianKernel != nil && (*c.MedianKernel < 1 || *c.MedianKernel%2 == 0) {
		return fmt.Errorf("median_kernel must be a positive odd number, got %d", *c.MedianKernel)
	}
	if c.ReportPlotWidthIn != nil && *c.ReportPlotWidthIn <= 0 {
		return fmt.Errorf("report_plot_width_in must be positive, got %f", *c.ReportPlotWidthIn)
	}
	if c.ReportPlotHeight != nil && *c.ReportPlotHeight <= 0 {
		return fmt.Errorf("report_plot_height_in must be positive, got %f", *c.ReportPlotHeight)
	}
	return nil
}

// GetOutlierThreshold returns the outlier_threshold value or the default.
func (c *TuningConfig) GetOutlierThreshold() float64 {
	if c.OutlierThreshold == nil {
		return 0.2
	}
	return *c.OutlierThreshold
}

// GetDetectorWorkers returns the detector_workers value or the default.
// Zero and one both mean a serial pass.
func (c *TuningConfig) GetDetectorWorkers() int {
	if c.DetectorWorkers == nil {
		return 1
	}
	return *c.DetectorWorkers
}

// GetPatternEpsilon returns the pattern_epsilon value or the default.
func (c *TuningConfig) GetPatternEpsilon() float64 {
	if c.PatternEpsilon == nil {
		return 1e-6
	}
	return *c.PatternEpsilon
}

// GetDefaultInterpolation returns the default_interpolation value or the default.
func (c *TuningConfig) GetDefaultInterpolation() string {
	if c.DefaultInterpolation == nil || *c.DefaultInterpolation == "" {
		return "linear"
	}
	return *c.DefaultInterpolation
}

// GetInterpolationOrder returns the interpolation_order value or the default.
func (c *TuningConfig) GetInterpolationOrder() int {
	if c.InterpolationOrder == nil {
		return 3
	}
	return *c.InterpolationOrder
}

// GetDefaultFilter returns the default_filter value or the default.
func (c *TuningConfig) GetDefaultFilter() string {
	if c.DefaultFilter == nil || *c.DefaultFilter == "" {
		return "butterworth"
	}
	return *c.DefaultFilter
}

// GetButterworthOrder returns the butterworth_order value or the default.
func (c *TuningConfig) GetButterworthOrder() int {
	if c.ButterworthOrder == nil {
		return 4
	}
	return *c.ButterworthOrder
}

// GetButterworthCutoffHz returns the butterworth_cutoff_hz value or the default.
func (c *TuningConfig) GetButterworthCutoffHz() float64 {
	if c.ButterworthCutoffHz == nil {
		return 6
	}
	return *c.ButterworthCutoffHz
}

// GetKalmanTrustRatio returns the kalman_trust_ratio value or the default.
func (c *TuningConfig) GetKalmanTrustRatio() float64 {
	if c.KalmanTrustRatio == nil {
		return 100
	}
	return *c.KalmanTrustRatio
}

// GetKalmanSmooth returns the kalman_smooth value or the default.
func (c *TuningConfig) GetKalmanSmooth() bool {
	if c.KalmanSmooth == nil {
		return true
	}
	return *c.KalmanSmooth
}

// GetGaussianSigma returns the gaussian_sigma value or the default.
func (c *TuningConfig) GetGaussianSigma() float64 {
	if c.GaussianSigma == nil {
		return 3
	}
	return *c.GaussianSigma
}

// GetLOESSValues returns the loess_values value or the default.
func (c *TuningConfig) GetLOESSValues() int {
	if c.LOESSValues == nil {
		return 30
	}
	return *c.LOESSValues
}

// GetMedianKernel returns the median_kernel value or the default.
func (c *TuningConfig) GetMedianKernel() int {
	if c.MedianKernel == nil {
		return 3
	}
	return *c.MedianKernel
}

// GetSkeletonModel returns the skeleton_model value or the default.
func (c *TuningConfig) GetSkeletonModel() string {
	if c.SkeletonModel == nil || *c.SkeletonModel == "" {
		return "none"
	}
	return *c.SkeletonModel
}

// GetReportPlotWidthIn returns the report_plot_width_in value or the default.
func (c *TuningConfig) GetReportPlotWidthIn() float64 {
	if c.ReportPlotWidthIn == nil {
		return 14
	}
	return *c.ReportPlotWidthIn
}

// GetReportPlotHeightIn returns the report_plot_height_in value or the default.
func (c *TuningConfig) GetReportPlotHeightIn() float64 {
	if c.ReportPlotHeight == nil {
		return 6
	}
	return *c.ReportPlotHeight
}

// GetDatabasePath returns the database_path value or the default.
func (c *TuningConfig) GetDatabasePath() string {
	if c.DatabasePath == nil || *c.DatabasePath == "" {
		return "marker_sessions.db"
	}
	return *c.DatabasePath
}
