package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/celltrack/internal/monitoring"
	"github.com/banshee-data/celltrack/internal/pipeline"
	"github.com/banshee-data/celltrack/internal/store"
	"github.com/banshee-data/celltrack/internal/version"
)

func TestMain(m *testing.M) {
	monitoring.SetLogger(nil)
	m.Run()
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := runCLI(t, "version")
	require.NoError(t, err)
	assert.Equal(t, version.String()+"\n", out)
}

func TestMigrateCommands(t *testing.T) {
	db := filepath.Join(t.TempDir(), "runs.db")

	out, err := runCLI(t, "migrate", "version", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "Schema version 0")

	out, err = runCLI(t, "migrate", "up", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "Schema version 2")

	out, err = runCLI(t, "migrate", "down", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "Schema version 1")
}

func TestRunsCommand(t *testing.T) {
	db := filepath.Join(t.TempDir(), "runs.db")

	out, err := runCLI(t, "runs", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "No runs archived")

	st, err := store.OpenAndMigrate(db)
	require.NoError(t, err)
	start := time.Date(2022, 6, 2, 18, 0, 0, 0, time.UTC)
	id, err := st.RecordRun(context.Background(), store.Run{
		Source: "NEXRAD", Site: "khgx", Date: "20220602",
		ThresholdDBZ: 15, SpeedMS: 1, Frames: 6, Features: 6, Cells: 1, Tracks: 1,
		StartedAt: start, FinishedAt: start.Add(time.Minute),
	}, []store.TrackSummary{
		{Track: 1, Cells: 1, Features: 6, FirstTime: start, LastTime: start.Add(25 * time.Minute), MaxRefl: 50},
	})
	require.NoError(t, err)
	require.NoError(t, st.Close())

	out, err = runCLI(t, "runs", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, id)
	assert.Contains(t, out, "khgx")
	assert.Contains(t, out, "2022-06-02 18:00:00")

	out, err = runCLI(t, "runs", "show", id, "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "MAX DBZ")
	assert.Contains(t, out, "50.0")
	assert.Contains(t, out, "2022-06-02 18:25:00")
}

func TestTrackCommandRequiresFlags(t *testing.T) {
	_, err := runCLI(t, "track", "--path", t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "type")
}

func TestTrackCommandUnknownType(t *testing.T) {
	_, err := runCLI(t, "track", "--path", t.TempDir(), "--type", "GOES", "-o", t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown data source")
}

func TestTrackCommandMissingConfig(t *testing.T) {
	_, err := runCLI(t, "--config", filepath.Join(t.TempDir(), "missing.toml"),
		"track", "--path", t.TempDir(), "--type", "NEXRAD")
	require.Error(t, err)
}

func TestPlotCommandRejectsNegativeStart(t *testing.T) {
	_, err := runCLI(t, "plot", "--path", t.TempDir(), "--trackpath", t.TempDir(),
		"--type", "NEXRAD", "--start-index", "-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--start-index")
}

func TestRenderTable(t *testing.T) {
	assert.Empty(t, renderTable(nil, nil, nil))

	out := renderTable(
		[]string{"Stage", "Duration"},
		[][]string{{"load", "1.5s"}, {"detect"}},
		[]columnAlignment{alignLeft, alignRight},
	)
	lines := strings.Split(out, "\n")
	require.Len(t, lines, 6)
	assert.Contains(t, lines[1], "STAGE")
	assert.Contains(t, lines[3], "load")
	assert.Contains(t, lines[3], "1.5s")
	assert.Contains(t, lines[4], "detect")
}

func TestFormatRunSummary(t *testing.T) {
	out := formatRunSummary(&pipeline.RunSummary{
		RunID:    "abc",
		Source:   "NEXRAD",
		Date:     "20220602",
		SaveDir:  "/out/NEXRAD_tobac_Save_20220602",
		Frames:   6,
		Features: 6,
		Cells:    1,
		Tracks:   1,
		Oversize: 2,
		Files:    []string{"/out/NEXRAD_tobac_Save_20220602/Features.nc"},
		Stages:   []pipeline.StageTiming{{Stage: "load", Duration: 2 * time.Second}},
	})
	assert.Contains(t, out, "Run abc")
	assert.Contains(t, out, "NEXRAD 20220602: 6 frames, 6 features, 1 cells, 1 tracks")
	assert.Contains(t, out, "2 oversize subnetworks")
	assert.Contains(t, out, "2s")
	assert.Contains(t, out, "Features.nc")
}

func TestFormatTime(t *testing.T) {
	assert.Equal(t, "-", formatTime(time.Time{}))
	assert.Equal(t, "2022-06-02 18:00:00", formatTime(time.Date(2022, 6, 2, 18, 0, 0, 0, time.UTC)))
}
