package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/vitalsync/vitalsync/internal/config"
)

// GetNotificationState returns the per-user suppression state, or nil when
// the user has never been evaluated.
func (s *Store) GetNotificationState(ctx context.Context, userID string) (*NotificationState, error) {
	var st NotificationState
	err := s.pool.QueryRow(ctx, "notification_state_by_user", userID).Scan(
		&st.LastMaxNotified, &st.LastMinNotified, &st.LastNotificationTime,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, &PersistenceError{Op: "get notification state", Err: err}
	}
	return &st, nil
}

// InitNotificationState creates the row for a user seen for the first time:
// last_notification_time = now, no last notified values, so the very first
// violation always fires. Does nothing if the row already exists.
func (s *Store) InitNotificationState(ctx context.Context, userID string, now time.Time) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO `+config.NotificationStateTable+` (user_id, last_notification_time)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO NOTHING`,
		userID, now,
	)
	if err != nil {
		return &PersistenceError{Op: "init notification state", Err: err}
	}
	return nil
}

// RecordNotified persists the value that just triggered a dispatched
// notification. kind is "high" or "low". Called only after the Notifier
// reported success — a failed dispatch must leave the state untouched so
// the alert can fire again next cycle.
func (s *Store) RecordNotified(ctx context.Context, userID, kind string, value float64, at time.Time) error {
	column := "last_max_notified"
	if kind == "low" {
		column = "last_min_notified"
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO `+config.NotificationStateTable+` (user_id, `+column+`, last_notification_time)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE SET
			`+column+` = EXCLUDED.`+column+`,
			last_notification_time = EXCLUDED.last_notification_time,
			updated_at = NOW()`,
		userID, value, at,
	)
	if err != nil {
		return &PersistenceError{Op: "record notified", Err: err}
	}
	return nil
}
