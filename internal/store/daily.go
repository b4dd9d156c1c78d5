package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/vitalsync/vitalsync/internal/config"
	"github.com/vitalsync/vitalsync/internal/metric"
)

// DailyUpsert is one canonical daily value to persist.
type DailyUpsert struct {
	UserID          string
	Provider        string
	Metric          metric.Metric
	Date            metric.Date
	Value           *float64 // nil means "observed nothing"; never fabricated zero
	Timezone        string
	SourceUpdatedAt *time.Time
}

// UpsertDaily writes one daily row keyed by (user, provider, metric, date).
// Additive counters (steps, distance) take the GREATEST of the stored and
// incoming value for the day, so a stale partial provider response can never
// regress a previously larger total. Everything else is last-write-wins.
// A nil incoming value never erases a stored one.
func (s *Store) UpsertDaily(ctx context.Context, up DailyUpsert) error {
	_, err := s.pool.Exec(ctx, dailyUpsertSQL(up.Metric),
		up.UserID, up.Provider, string(up.Metric), dateArg(up.Date),
		up.Value, up.Metric.Unit(), nilEmpty(up.Timezone), up.SourceUpdatedAt,
	)
	if err != nil {
		return &PersistenceError{Op: "upsert daily " + string(up.Metric), Err: err}
	}
	return nil
}

// dailyUpsertSQL builds the upsert statement for one metric. The merge mode
// is the statement's whole point: additive counters never go backwards for a
// day, everything else is last-write-wins with nil never erasing a value.
func dailyUpsertSQL(m metric.Metric) string {
	valueExpr := "COALESCE(EXCLUDED.value, " + config.MetricDailyTable + ".value)"
	if m.Additive() {
		valueExpr = "GREATEST(" + config.MetricDailyTable + ".value, EXCLUDED.value)"
	}
	return `
		INSERT INTO ` + config.MetricDailyTable + ` (
			user_id, provider, metric, date_local,
			value, unit, tz, source_updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (user_id, provider, metric, date_local) DO UPDATE SET
			value = ` + valueExpr + `,
			unit = EXCLUDED.unit,
			tz = COALESCE(EXCLUDED.tz, ` + config.MetricDailyTable + `.tz),
			source_updated_at = COALESCE(EXCLUDED.source_updated_at, ` + config.MetricDailyTable + `.source_updated_at),
			updated_at = NOW()`
}

// GetDaily returns the stored daily row for a key, or nil when absent.
func (s *Store) GetDaily(ctx context.Context, userID, provider string, m metric.Metric, date metric.Date) (*DailyReading, error) {
	var (
		r   DailyReading
		tz  *string
		src *time.Time
	)
	err := s.pool.QueryRow(ctx, "daily_by_key",
		userID, provider, string(m), dateArg(date),
	).Scan(&r.Value, &r.Unit, &tz, &src, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, &PersistenceError{Op: "get daily", Err: err}
	}
	r.Provider = provider
	r.Metric = m
	r.Date = date
	if tz != nil {
		r.Timezone = *tz
	}
	r.SourceUpdatedAt = src
	return &r, nil
}

// DailyForDay returns all stored metrics for one (user, provider, day).
func (s *Store) DailyForDay(ctx context.Context, userID, provider string, date metric.Date) ([]DailyReading, error) {
	rows, err := s.pool.Query(ctx, "daily_for_day", userID, provider, dateArg(date))
	if err != nil {
		return nil, &PersistenceError{Op: "daily for day", Err: err}
	}
	defer rows.Close()

	var out []DailyReading
	for rows.Next() {
		var (
			r    DailyReading
			name string
			tz   *string
			src  *time.Time
		)
		if err := rows.Scan(&name, &r.Value, &r.Unit, &tz, &src, &r.UpdatedAt); err != nil {
			return nil, &PersistenceError{Op: "scan daily", Err: err}
		}
		r.Provider = provider
		r.Metric = metric.Metric(name)
		r.Date = date
		if tz != nil {
			r.Timezone = *tz
		}
		r.SourceUpdatedAt = src
		out = append(out, r)
	}
	return out, rows.Err()
}

// LatestDailyMetric returns the freshest non-null daily value for a metric
// across all providers, no older than since. Nil when nothing qualifies.
func (s *Store) LatestDailyMetric(ctx context.Context, userID string, m metric.Metric, since metric.Date) (*DailyReading, error) {
	var (
		r   DailyReading
		day time.Time
		tz  *string
		src *time.Time
	)
	err := s.pool.QueryRow(ctx, "latest_daily_metric",
		userID, string(m), dateArg(since),
	).Scan(&r.Provider, &day, &r.Value, &tz, &src, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, &PersistenceError{Op: "latest daily", Err: err}
	}
	r.Metric = m
	r.Date = metric.DateOf(day.UTC())
	r.Unit = m.Unit()
	if tz != nil {
		r.Timezone = *tz
	}
	r.SourceUpdatedAt = src
	return &r, nil
}

// nilEmpty returns nil for empty strings (maps to SQL NULL).
func nilEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
