// Package store persists canonical daily records, intraday sample blobs, and
// per-user notification state under natural composite keys. All writes are
// insert-or-update; repeated syncs never duplicate rows.
package store

import (
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vitalsync/vitalsync/internal/metric"
)

// Store wraps the connection pool with the persistence contracts of the
// metrics pipeline. Each operation is atomic per key; concurrent writers to
// the same key race last-write-wins, so callers needing strict serialization
// single-flight per user (the scheduler does).
type Store struct {
	pool *pgxpool.Pool
}

// New creates a Store on an existing pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// PersistenceError marks a failed storage write. The sync for that key is
// considered failed; prior state is untouched.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("store: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// DailyReading is one stored daily row joined with its key context.
type DailyReading struct {
	Provider        string
	Metric          metric.Metric
	Date            metric.Date
	Value           *float64
	Unit            string
	Timezone        string
	SourceUpdatedAt *time.Time
	UpdatedAt       time.Time
}

// IntradayWindow is one stored intraday series row.
type IntradayWindow struct {
	Provider   string
	Metric     metric.Metric
	Date       metric.Date
	Resolution string
	StartUTC   time.Time
	EndUTC     time.Time
	Samples    []metric.Sample
	UpdatedAt  time.Time
}

// NotificationState tracks the last values that triggered an alert for one
// user. Created lazily on first evaluation; mutated only right after a
// notification is actually dispatched.
type NotificationState struct {
	LastMaxNotified      *float64
	LastMinNotified      *float64
	LastNotificationTime time.Time
}

// User is an alert-eligible user row.
type User struct {
	ID              string
	DisplayName     string
	Email           string
	HRThresholdLow  *float64
	HRThresholdHigh *float64
}

// dateArg converts a Date to the time.Time pgx encodes as a SQL DATE.
func dateArg(d metric.Date) time.Time {
	return d.Midnight(time.UTC)
}
