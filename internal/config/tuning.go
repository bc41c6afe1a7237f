package config

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// defaultsTOML is the canonical set of tuning defaults. The Get* accessors
// fall back to the same values, so a partial user file is always safe.
//
//go:embed tuning.defaults.toml
var defaultsTOML []byte

// Position methods accepted by feature detection.
const (
	PositionWeightedDiff = "weighted_diff"
	PositionWeightedAbs  = "weighted_abs"
	PositionCenter       = "center"
	PositionExtreme      = "extreme"
)

// Linking methods.
const (
	LinkingPredict = "predict"
	LinkingRandom  = "random"
)

// TuningConfig holds every tunable parameter of the track and plot
// workflows. All fields are pointers so "unset" is distinguishable from a
// zero value; use the Get* methods to read effective values.
type TuningConfig struct {
	// Quality control
	QCRhohvMin *float64 `json:"qc_rhohv_min,omitempty" toml:"qc_rhohv_min,omitempty"`
	QCReflMin  *float64 `json:"qc_refl_min,omitempty" toml:"qc_refl_min,omitempty"`

	// Feature detection
	Thresholds        []float64 `json:"thresholds,omitempty" toml:"thresholds,omitempty"`
	PositionThreshold *string   `json:"position_threshold,omitempty" toml:"position_threshold,omitempty"`
	SigmaThreshold    *float64  `json:"sigma_threshold,omitempty" toml:"sigma_threshold,omitempty"`
	NMinThreshold     *int      `json:"n_min_threshold,omitempty" toml:"n_min_threshold,omitempty"`
	MinDistanceKm     *float64  `json:"min_distance_km,omitempty" toml:"min_distance_km,omitempty"`
	Target            *string   `json:"target,omitempty" toml:"target,omitempty"`

	// Segmentation
	SegmentationMethod    *string  `json:"segmentation_method,omitempty" toml:"segmentation_method,omitempty"`
	SegmentationThreshold *float64 `json:"segmentation_threshold,omitempty" toml:"segmentation_threshold,omitempty"`

	// Linking
	MethodLinking  *string  `json:"method_linking,omitempty" toml:"method_linking,omitempty"`
	Stubs          *int     `json:"stubs,omitempty" toml:"stubs,omitempty"`
	AdaptiveStop   *float64 `json:"adaptive_stop,omitempty" toml:"adaptive_stop,omitempty"`
	AdaptiveStep   *float64 `json:"adaptive_step,omitempty" toml:"adaptive_step,omitempty"`
	Order          *int     `json:"order,omitempty" toml:"order,omitempty"`
	SubnetworkSize *int     `json:"subnetwork_size,omitempty" toml:"subnetwork_size,omitempty"`
	Memory         *int     `json:"memory,omitempty" toml:"memory,omitempty"`
	VMax           *float64 `json:"v_max,omitempty" toml:"v_max,omitempty"`
	DMin           *float64 `json:"d_min,omitempty" toml:"d_min,omitempty"`

	// Merge/split
	MergeSplitDistanceM *float64 `json:"merge_split_distance_m,omitempty" toml:"merge_split_distance_m,omitempty"`
	MergeSplitFrameLen  *int     `json:"merge_split_frame_len,omitempty" toml:"merge_split_frame_len,omitempty"`

	// Neighbour counts
	NeighborRadiiKm []float64 `json:"neighbor_radii_km,omitempty" toml:"neighbor_radii_km,omitempty"`

	// Plotting
	PlotVMin     *float64  `json:"plot_vmin,omitempty" toml:"plot_vmin,omitempty"`
	PlotVMax     *float64  `json:"plot_vmax,omitempty" toml:"plot_vmax,omitempty"`
	PlotWidthIn  *float64  `json:"plot_width_in,omitempty" toml:"plot_width_in,omitempty"`
	PlotHeightIn *float64  `json:"plot_height_in,omitempty" toml:"plot_height_in,omitempty"`
	PlotExtent   []float64 `json:"plot_extent,omitempty" toml:"plot_extent,omitempty"` // lon_min, lon_max, lat_min, lat_max
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// DefaultTuningConfig returns the embedded canonical defaults.
func DefaultTuningConfig() *TuningConfig {
	cfg := EmptyTuningConfig()
	if err := toml.Unmarshal(defaultsTOML, cfg); err != nil {
		panic(fmt.Sprintf("embedded tuning defaults are invalid: %v", err))
	}
	return cfg
}

// LoadTuningConfig loads a TuningConfig from a .toml or .json file.
// Fields omitted from the file fall back to the defaults in the Get*
// methods, so partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(cleanPath))
	if ext != ".toml" && ext != ".json" {
		return nil, fmt.Errorf("config file must have .toml or .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
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
	switch ext {
	case ".toml":
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config TOML: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config JSON: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	if c.QCRhohvMin != nil && (*c.QCRhohvMin < 0 || *c.QCRhohvMin > 1) {
		return fmt.Errorf("qc_rhohv_min must be between 0 and 1, got %f", *c.QCRhohvMin)
	}
	if c.PositionThreshold != nil {
		switch *c.PositionThreshold {
		case PositionWeightedDiff, PositionWeightedAbs, PositionCenter, PositionExtreme:
		default:
			return fmt.Errorf("unknown position_threshold %q", *c.PositionThreshold)
		}
	}
	if c.Target != nil && *c.Target != "maximum" && *c.Target != "minimum" {
		return fmt.Errorf("target must be maximum or minimum, got %q", *c.Target)
	}
	if c.SigmaThreshold != nil && *c.SigmaThreshold < 0 {
		return fmt.Errorf("sigma_threshold must be non-negative, got %f", *c.SigmaThreshold)
	}
	if c.NMinThreshold != nil && *c.NMinThreshold < 0 {
		return fmt.Errorf("n_min_threshold must be non-negative, got %d", *c.NMinThreshold)
	}
	if c.SegmentationMethod != nil && *c.SegmentationMethod != "watershed" {
		return fmt.Errorf("unsupported segmentation_method %q", *c.SegmentationMethod)
	}
	if c.MethodLinking != nil && *c.MethodLinking != LinkingPredict && *c.MethodLinking != LinkingRandom {
		return fmt.Errorf("method_linking must be predict or random, got %q", *c.MethodLinking)
	}
	if c.Stubs != nil && *c.Stubs < 1 {
		return fmt.Errorf("stubs must be at least 1, got %d", *c.Stubs)
	}
	if c.AdaptiveStep != nil && (*c.AdaptiveStep <= 0 || *c.AdaptiveStep >= 1) {
		return fmt.Errorf("adaptive_step must be in (0, 1), got %f", *c.AdaptiveStep)
	}
	if c.AdaptiveStop != nil && (*c.AdaptiveStop <= 0 || *c.AdaptiveStop > 1) {
		return fmt.Errorf("adaptive_stop must be in (0, 1], got %f", *c.AdaptiveStop)
	}
	if c.Order != nil && (*c.Order < 0 || *c.Order > 3) {
		return fmt.Errorf("order must be between 0 and 3, got %d", *c.Order)
	}
	if c.Memory != nil && *c.Memory < 0 {
		return fmt.Errorf("memory must be non-negative, got %d", *c.Memory)
	}
	if c.VMax != nil && *c.VMax <= 0 {
		return fmt.Errorf("v_max must be positive, got %f", *c.VMax)
	}
	for _, r := range c.NeighborRadiiKm {
		if r <= 0 {
			return fmt.Errorf("neighbor_radii_km entries must be positive, got %f", r)
		}
	}
	if len(c.PlotExtent) != 0 && len(c.PlotExtent) != 4 {
		return fmt.Errorf("plot_extent needs 4 values (lon_min, lon_max, lat_min, lat_max), got %d", len(c.PlotExtent))
	}
	if c.PlotVMin != nil && c.PlotVMax != nil && *c.PlotVMin >= *c.PlotVMax {
		return fmt.Errorf("plot_vmin (%f) must be below plot_vmax (%f)", *c.PlotVMin, *c.PlotVMax)
	}
	return nil
}

// ApplyCommandLine overrides detection, segmentation and linking values with
// the values given on the command line. Zero values leave the file settings
// in place.
func (c *TuningConfig) ApplyCommandLine(threshold, speed float64) {
	if threshold != 0 {
		c.Thresholds = []float64{threshold}
		c.SegmentationThreshold = ptrFloat64(threshold)
	}
	if speed != 0 {
		c.VMax = ptrFloat64(speed)
	}
}

// GetQCRhohvMin returns the qc_rhohv_min value or the default.
func (c *TuningConfig) GetQCRhohvMin() float64 {
	if c.QCRhohvMin == nil {
		return 0.9
	}
	return *c.QCRhohvMin
}

// GetQCReflMin returns the qc_refl_min value or the default.
func (c *TuningConfig) GetQCReflMin() float64 {
	if c.QCReflMin == nil {
		return 10.0
	}
	return *c.QCReflMin
}

// GetThresholds returns the detection thresholds, or nil when none were set.
func (c *TuningConfig) GetThresholds() []float64 {
	return c.Thresholds
}

// GetPositionThreshold returns the position_threshold value or the default.
func (c *TuningConfig) GetPositionThreshold() string {
	if c.PositionThreshold == nil {
		return PositionWeightedDiff
	}
	return *c.PositionThreshold
}

// GetSigmaThreshold returns the sigma_threshold value or the default.
func (c *TuningConfig) GetSigmaThreshold() float64 {
	if c.SigmaThreshold == nil {
		return 1.0
	}
	return *c.SigmaThreshold
}

// GetNMinThreshold returns the n_min_threshold value or the default.
func (c *TuningConfig) GetNMinThreshold() int {
	if c.NMinThreshold == nil {
		return 0
	}
	return *c.NMinThreshold
}

// GetMinDistanceKm returns the min_distance_km value or the default.
func (c *TuningConfig) GetMinDistanceKm() float64 {
	if c.MinDistanceKm == nil {
		return 0
	}
	return *c.MinDistanceKm
}

// GetTargetMaximum reports whether features are maxima (the default).
func (c *TuningConfig) GetTargetMaximum() bool {
	return c.Target == nil || *c.Target == "maximum"
}

// GetSegmentationThreshold returns the segmentation threshold, falling back
// to the lowest detection threshold.
func (c *TuningConfig) GetSegmentationThreshold() float64 {
	if c.SegmentationThreshold != nil {
		return *c.SegmentationThreshold
	}
	if len(c.Thresholds) > 0 {
		lowest := c.Thresholds[0]
		for _, t := range c.Thresholds[1:] {
			if t < lowest {
				lowest = t
			}
		}
		return lowest
	}
	return 15.0
}

// GetMethodLinking returns the method_linking value or the default.
func (c *TuningConfig) GetMethodLinking() string {
	if c.MethodLinking == nil {
		return LinkingPredict
	}
	return *c.MethodLinking
}

// GetStubs returns the stubs value or the default.
func (c *TuningConfig) GetStubs() int {
	if c.Stubs == nil {
		return 5
	}
	return *c.Stubs
}

// GetAdaptiveStop returns the adaptive_stop value or the default.
func (c *TuningConfig) GetAdaptiveStop() float64 {
	if c.AdaptiveStop == nil {
		return 0.2
	}
	return *c.AdaptiveStop
}

// GetAdaptiveStep returns the adaptive_step value or the default.
func (c *TuningConfig) GetAdaptiveStep() float64 {
	if c.AdaptiveStep == nil {
		return 0.95
	}
	return *c.AdaptiveStep
}

// GetOrder returns the order value or the default.
func (c *TuningConfig) GetOrder() int {
	if c.Order == nil {
		return 2
	}
	return *c.Order
}

// GetSubnetworkSize returns the subnetwork_size value or the default.
func (c *TuningConfig) GetSubnetworkSize() int {
	if c.SubnetworkSize == nil {
		return 100
	}
	return *c.SubnetworkSize
}

// GetMemory returns the memory value or the default.
func (c *TuningConfig) GetMemory() int {
	if c.Memory == nil {
		return 3
	}
	return *c.Memory
}

// GetVMax returns the v_max value or the default.
func (c *TuningConfig) GetVMax() float64 {
	if c.VMax == nil {
		return 1.0
	}
	return *c.VMax
}

// GetDMin returns d_min, or 0 when linking should use v_max instead.
func (c *TuningConfig) GetDMin() float64 {
	if c.DMin == nil {
		return 0
	}
	return *c.DMin
}

// GetMergeSplitDistanceM returns the merge_split_distance_m value or the default.
func (c *TuningConfig) GetMergeSplitDistanceM() float64 {
	if c.MergeSplitDistanceM == nil {
		return 15000.0
	}
	return *c.MergeSplitDistanceM
}

// GetMergeSplitFrameLen returns the merge_split_frame_len value or the default.
func (c *TuningConfig) GetMergeSplitFrameLen() int {
	if c.MergeSplitFrameLen == nil {
		return 5
	}
	return *c.MergeSplitFrameLen
}

// GetNeighborRadiiKm returns the neighbour count radii or the default.
func (c *TuningConfig) GetNeighborRadiiKm() []float64 {
	if len(c.NeighborRadiiKm) == 0 {
		return []float64{5.0, 10.0, 15.0, 20.0}
	}
	return c.NeighborRadiiKm
}

// GetPlotVMin returns the plot_vmin value or the default.
func (c *TuningConfig) GetPlotVMin() float64 {
	if c.PlotVMin == nil {
		return -25.0
	}
	return *c.PlotVMin
}

// GetPlotVMax returns the plot_vmax value or the default.
func (c *TuningConfig) GetPlotVMax() float64 {
	if c.PlotVMax == nil {
		return 85.0
	}
	return *c.PlotVMax
}

// GetPlotWidthIn returns the plot_width_in value or the default.
func (c *TuningConfig) GetPlotWidthIn() float64 {
	if c.PlotWidthIn == nil {
		return 9.0
	}
	return *c.PlotWidthIn
}

// GetPlotHeightIn returns the plot_height_in value or the default.
func (c *TuningConfig) GetPlotHeightIn() float64 {
	if c.PlotHeightIn == nil {
		return 9.0
	}
	return *c.PlotHeightIn
}

// GetPlotExtent returns lon_min, lon_max, lat_min, lat_max and whether an
// explicit extent was configured.
func (c *TuningConfig) GetPlotExtent() ([4]float64, bool) {
	var e [4]float64
	if len(c.PlotExtent) != 4 {
		return e, false
	}
	copy(e[:], c.PlotExtent)
	return e, true
}
