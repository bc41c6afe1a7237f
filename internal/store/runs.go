package store

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// Run is one archived tracking run.
type Run struct {
	ID           string
	Source       string
	Site         string
	Date         string
	InputDir     string
	SaveDir      string
	ThresholdDBZ float64
	SpeedMS      float64
	Frames       int
	Features     int
	Cells        int
	Tracks       int
	StartedAt    time.Time
	FinishedAt   time.Time
}

// TrackSummary is the per-track row stored with a run.
type TrackSummary struct {
	Track     int
	Cells     int
	Features  int
	FirstTime time.Time
	LastTime  time.Time
	MaxRefl   float64 // NaN when unknown
}

// RecordRun stores run and its tracks in one transaction. An empty run.ID
// is replaced with a new UUID, which is returned.
func (s *Store) RecordRun(ctx context.Context, run Run, tracks []TrackSummary) (string, error) {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin record run: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (run_id, source, site, date_stamp, input_dir, save_dir,
			threshold_dbz, speed_ms, frames, features, cells, tracks, started_unix, finished_unix)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Source, run.Site, run.Date, run.InputDir, run.SaveDir,
		run.ThresholdDBZ, run.SpeedMS, run.Frames, run.Features, run.Cells, run.Tracks,
		unixSeconds(run.StartedAt), unixSeconds(run.FinishedAt))
	if err != nil {
		return "", fmt.Errorf("insert run %s: %w", run.ID, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO run_tracks (run_id, track_id, cells, features, first_unix, last_unix, max_refl)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return "", fmt.Errorf("prepare track insert: %w", err)
	}
	defer stmt.Close()
	for _, t := range tracks {
		var maxRefl sql.NullFloat64
		if !math.IsNaN(t.MaxRefl) {
			maxRefl = sql.NullFloat64{Float64: t.MaxRefl, Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, run.ID, t.Track, t.Cells, t.Features,
			unixSeconds(t.FirstTime), unixSeconds(t.LastTime), maxRefl); err != nil {
			return "", fmt.Errorf("insert track %d of run %s: %w", t.Track, run.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit run %s: %w", run.ID, err)
	}
	return run.ID, nil
}

// ListRuns returns archived runs, newest first.
func (s *Store) ListRuns(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, source, site, date_stamp, input_dir, save_dir,
			threshold_dbz, speed_ms, frames, features, cells, tracks, started_unix, finished_unix
		FROM runs ORDER BY started_unix DESC, run_id`)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var started, finished float64
		if err := rows.Scan(&r.ID, &r.Source, &r.Site, &r.Date, &r.InputDir, &r.SaveDir,
			&r.ThresholdDBZ, &r.SpeedMS, &r.Frames, &r.Features, &r.Cells, &r.Tracks,
			&started, &finished); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.StartedAt, r.FinishedAt = fromUnix(started), fromUnix(finished)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// RunTracks returns the tracks archived with a run, ordered by track id.
func (s *Store) RunTracks(ctx context.Context, runID string) ([]TrackSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT track_id, cells, features, first_unix, last_unix, max_refl
		FROM run_tracks WHERE run_id = ? ORDER BY track_id`, runID)
	if err != nil {
		return nil, fmt.Errorf("list tracks of run %s: %w", runID, err)
	}
	defer rows.Close()

	var out []TrackSummary
	for rows.Next() {
		var t TrackSummary
		var first, last float64
		var maxRefl sql.NullFloat64
		if err := rows.Scan(&t.Track, &t.Cells, &t.Features, &first, &last, &maxRefl); err != nil {
			return nil, fmt.Errorf("scan track: %w", err)
		}
		t.FirstTime, t.LastTime = fromUnix(first), fromUnix(last)
		t.MaxRefl = math.NaN()
		if maxRefl.Valid {
			t.MaxRefl = maxRefl.Float64
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func unixSeconds(t time.Time) float64 {
	if t.IsZero() {
		return 0
	}
	return float64(t.UnixNano()) / 1e9
}

func fromUnix(s float64) time.Time {
	if s == 0 {
		return time.Time{}
	}
	sec, frac := math.Modf(s)
	return time.Unix(int64(sec), int64(math.Round(frac*1e9))).UTC()
}
