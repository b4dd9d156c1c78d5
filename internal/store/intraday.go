package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/vitalsync/vitalsync/internal/config"
	"github.com/vitalsync/vitalsync/internal/metric"
)

// IntradayUpsert is one whole-window sample series to persist.
type IntradayUpsert struct {
	UserID     string
	Provider   string
	Metric     metric.Metric
	Date       metric.Date
	Resolution string
	StartUTC   time.Time
	EndUTC     time.Time
	Samples    []metric.Sample
}

// replaceIntradaySQL overwrites the whole window on conflict: the stored
// series for a key is always the latest fetch, never a union of fetches.
var replaceIntradaySQL = `
	INSERT INTO ` + config.MetricIntradayTable + ` (
		user_id, provider, metric, date_local, resolution,
		start_at_utc, end_at_utc, samples
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	ON CONFLICT (user_id, provider, metric, date_local, resolution) DO UPDATE SET
		start_at_utc = EXCLUDED.start_at_utc,
		end_at_utc = EXCLUDED.end_at_utc,
		samples = EXCLUDED.samples,
		updated_at = NOW()`

// ReplaceIntraday replaces the entire sample set for a
// (user, provider, metric, date, resolution) key. Never appends — providers
// revise whole recent windows, so the stored series is always the latest
// fetch, not a union.
func (s *Store) ReplaceIntraday(ctx context.Context, up IntradayUpsert) error {
	samples := up.Samples
	if samples == nil {
		samples = []metric.Sample{}
	}
	blob, err := json.Marshal(samples)
	if err != nil {
		return &PersistenceError{Op: "encode intraday samples", Err: err}
	}

	_, err = s.pool.Exec(ctx, replaceIntradaySQL,
		up.UserID, up.Provider, string(up.Metric), dateArg(up.Date), up.Resolution,
		up.StartUTC, up.EndUTC, blob,
	)
	if err != nil {
		return &PersistenceError{Op: "replace intraday " + string(up.Metric), Err: err}
	}
	return nil
}

// GetIntraday returns the stored series for a key, or nil when absent.
func (s *Store) GetIntraday(ctx context.Context, userID, provider string, m metric.Metric, date metric.Date, resolution string) (*IntradayWindow, error) {
	var (
		w    IntradayWindow
		blob []byte
	)
	err := s.pool.QueryRow(ctx, "intraday_by_key",
		userID, provider, string(m), dateArg(date), resolution,
	).Scan(&w.StartUTC, &w.EndUTC, &blob)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, &PersistenceError{Op: "get intraday", Err: err}
	}
	if err := json.Unmarshal(blob, &w.Samples); err != nil {
		return nil, &PersistenceError{Op: "decode intraday samples", Err: err}
	}
	w.Provider = provider
	w.Metric = m
	w.Date = date
	w.Resolution = resolution
	return &w, nil
}

// LatestIntraday returns the freshest stored series for a metric across all
// providers and resolutions. Nil when the user has none.
func (s *Store) LatestIntraday(ctx context.Context, userID string, m metric.Metric) (*IntradayWindow, error) {
	var (
		w    IntradayWindow
		day  time.Time
		blob []byte
	)
	err := s.pool.QueryRow(ctx, "latest_intraday_for_metric",
		userID, string(m),
	).Scan(&w.Provider, &day, &w.StartUTC, &w.EndUTC, &blob, &w.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, &PersistenceError{Op: "latest intraday", Err: err}
	}
	if err := json.Unmarshal(blob, &w.Samples); err != nil {
		return nil, &PersistenceError{Op: "decode intraday samples", Err: err}
	}
	w.Metric = m
	w.Date = metric.DateOf(day.UTC())
	return &w, nil
}
