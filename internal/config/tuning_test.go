package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmptyTuningConfigUsesDefaults(t *testing.T) {
	cfg := EmptyTuningConfig()

	assert.Equal(t, 0.9, cfg.GetQCRhohvMin())
	assert.Equal(t, 10.0, cfg.GetQCReflMin())
	assert.Equal(t, PositionWeightedDiff, cfg.GetPositionThreshold())
	assert.Equal(t, 1.0, cfg.GetSigmaThreshold())
	assert.Equal(t, 5, cfg.GetStubs())
	assert.Equal(t, 0.2, cfg.GetAdaptiveStop())
	assert.Equal(t, 0.95, cfg.GetAdaptiveStep())
	assert.Equal(t, 2, cfg.GetOrder())
	assert.Equal(t, 100, cfg.GetSubnetworkSize())
	assert.Equal(t, 3, cfg.GetMemory())
	assert.Equal(t, 15000.0, cfg.GetMergeSplitDistanceM())
	assert.Equal(t, []float64{5, 10, 15, 20}, cfg.GetNeighborRadiiKm())
	assert.Equal(t, -25.0, cfg.GetPlotVMin())
	assert.Equal(t, 85.0, cfg.GetPlotVMax())
	assert.True(t, cfg.GetTargetMaximum())

	_, ok := cfg.GetPlotExtent()
	assert.False(t, ok)
}

// The embedded defaults file and the Get* fallbacks must agree.
func TestDefaultTuningConfigMatchesAccessors(t *testing.T) {
	def := DefaultTuningConfig()
	empty := EmptyTuningConfig()

	require.NoError(t, def.Validate())
	assert.Equal(t, empty.GetQCRhohvMin(), def.GetQCRhohvMin())
	assert.Equal(t, empty.GetQCReflMin(), def.GetQCReflMin())
	assert.Equal(t, empty.GetPositionThreshold(), def.GetPositionThreshold())
	assert.Equal(t, empty.GetSigmaThreshold(), def.GetSigmaThreshold())
	assert.Equal(t, empty.GetNMinThreshold(), def.GetNMinThreshold())
	assert.Equal(t, empty.GetStubs(), def.GetStubs())
	assert.Equal(t, empty.GetAdaptiveStop(), def.GetAdaptiveStop())
	assert.Equal(t, empty.GetAdaptiveStep(), def.GetAdaptiveStep())
	assert.Equal(t, empty.GetOrder(), def.GetOrder())
	assert.Equal(t, empty.GetSubnetworkSize(), def.GetSubnetworkSize())
	assert.Equal(t, empty.GetMemory(), def.GetMemory())
	assert.Equal(t, empty.GetMergeSplitDistanceM(), def.GetMergeSplitDistanceM())
	assert.Equal(t, empty.GetMergeSplitFrameLen(), def.GetMergeSplitFrameLen())
	assert.Equal(t, empty.GetNeighborRadiiKm(), def.GetNeighborRadiiKm())
	assert.Equal(t, empty.GetPlotVMin(), def.GetPlotVMin())
	assert.Equal(t, empty.GetPlotVMax(), def.GetPlotVMax())
	assert.Equal(t, empty.GetPlotWidthIn(), def.GetPlotWidthIn())
}

func TestLoadTuningConfigTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tuning.toml")
	body := `
thresholds = [30.0, 40.0]
stubs = 3
plot_extent = [-100.0, -95.0, 30.0, 35.0]
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := LoadTuningConfig(path)
	require.NoError(t, err)
	assert.Equal(t, []float64{30, 40}, cfg.GetThresholds())
	assert.Equal(t, 3, cfg.GetStubs())
	assert.Equal(t, 30.0, cfg.GetSegmentationThreshold())
	assert.Equal(t, 3, cfg.GetMemory(), "omitted fields fall back to defaults")

	ext, ok := cfg.GetPlotExtent()
	require.True(t, ok)
	assert.Equal(t, [4]float64{-100, -95, 30, 35}, ext)
}

func TestLoadTuningConfigJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tuning.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"memory": 1, "position_threshold": "center"}`), 0o644))

	cfg, err := LoadTuningConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.GetMemory())
	assert.Equal(t, PositionCenter, cfg.GetPositionThreshold())
}

func TestLoadTuningConfigErrors(t *testing.T) {
	dir := t.TempDir()

	yaml := filepath.Join(dir, "tuning.yaml")
	require.NoError(t, os.WriteFile(yaml, []byte("stubs: 3"), 0o644))
	_, err := LoadTuningConfig(yaml)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "extension")

	_, err = LoadTuningConfig(filepath.Join(dir, "missing.toml"))
	require.Error(t, err)

	bad := filepath.Join(dir, "bad.toml")
	require.NoError(t, os.WriteFile(bad, []byte("stubs = ["), 0o644))
	_, err = LoadTuningConfig(bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config TOML")

	invalid := filepath.Join(dir, "invalid.toml")
	require.NoError(t, os.WriteFile(invalid, []byte(`position_threshold = "middle"`), 0o644))
	_, err = LoadTuningConfig(invalid)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")

	big := filepath.Join(dir, "big.json")
	require.NoError(t, os.WriteFile(big, []byte(strings.Repeat(" ", 2*1024*1024)), 0o644))
	_, err = LoadTuningConfig(big)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too large")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     TuningConfig
		wantErr bool
	}{
		{"empty", TuningConfig{}, false},
		{"rhohv out of range", TuningConfig{QCRhohvMin: ptrFloat64(1.5)}, true},
		{"bad target", TuningConfig{Target: ptrString("middle")}, true},
		{"minimum target", TuningConfig{Target: ptrString("minimum")}, false},
		{"zero stubs", TuningConfig{Stubs: ptrInt(0)}, true},
		{"adaptive step one", TuningConfig{AdaptiveStep: ptrFloat64(1)}, true},
		{"order too high", TuningConfig{Order: ptrInt(4)}, true},
		{"negative memory", TuningConfig{Memory: ptrInt(-1)}, true},
		{"negative radius", TuningConfig{NeighborRadiiKm: []float64{5, -1}}, true},
		{"short extent", TuningConfig{PlotExtent: []float64{1, 2}}, true},
		{"vmin above vmax", TuningConfig{PlotVMin: ptrFloat64(90), PlotVMax: ptrFloat64(85)}, true},
		{"random linking", TuningConfig{MethodLinking: ptrString(LinkingRandom)}, false},
		{"unknown segmentation", TuningConfig{SegmentationMethod: ptrString("felzenszwalb")}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestApplyCommandLine(t *testing.T) {
	cfg := EmptyTuningConfig()
	cfg.ApplyCommandLine(35, 12)
	assert.Equal(t, []float64{35}, cfg.GetThresholds())
	assert.Equal(t, 35.0, cfg.GetSegmentationThreshold())
	assert.Equal(t, 12.0, cfg.GetVMax())

	cfg = &TuningConfig{Thresholds: []float64{20}, VMax: ptrFloat64(8)}
	cfg.ApplyCommandLine(0, 0)
	assert.Equal(t, []float64{20}, cfg.GetThresholds())
	assert.Equal(t, 8.0, cfg.GetVMax())
}
