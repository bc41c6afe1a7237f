// Package pipeline runs the track and plot workflows end to end.
package pipeline

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/jonboulle/clockwork"

	"github.com/banshee-data/celltrack/internal/fsutil"
	"github.com/banshee-data/celltrack/internal/monitoring"
)

var (
	// ErrNoFeatures is returned when detection finds nothing to track.
	ErrNoFeatures = errors.New("no features detected")
	// ErrLocked is returned when another run holds the save directory.
	ErrLocked = errors.New("save directory is locked by another run")
)

// LockFile is the advisory lock taken inside a save directory.
const LockFile = ".celltrack.lock"

// SaveDirName is the per-run save directory name for a source and date.
func SaveDirName(source, date string) string {
	return fmt.Sprintf("%s_tobac_Save_%s", fsutil.SafeName(source), fsutil.SafeName(date))
}

// StageTiming is the wall time of one workflow stage.
type StageTiming struct {
	Stage    string
	Duration time.Duration
}

// stages times workflow stages against an injectable clock and reports
// them to the run metrics.
type stages struct {
	clock   clockwork.Clock
	metrics *monitoring.Metrics
	timings []StageTiming
}

func newStages(clock clockwork.Clock, m *monitoring.Metrics) *stages {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &stages{clock: clock, metrics: m}
}

func (s *stages) run(name string, f func() error) error {
	start := s.clock.Now()
	err := f()
	d := s.clock.Since(start)
	s.timings = append(s.timings, StageTiming{Stage: name, Duration: d})
	s.metrics.ObserveStage(name, d)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	monitoring.Debugf("stage %s took %s", name, d)
	return nil
}

// lockDir takes the advisory lock in dir without blocking.
func lockDir(dir string) (*flock.Flock, error) {
	lk := flock.New(filepath.Join(dir, LockFile))
	ok, err := lk.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLocked, dir)
	}
	return lk, nil
}
