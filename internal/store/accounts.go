package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/vitalsync/vitalsync/internal/config"
	"github.com/vitalsync/vitalsync/internal/provider"
)

// ResolveAccount returns the credential for one (user, provider) link, or
// nil when the user has not linked that provider.
func (s *Store) ResolveAccount(ctx context.Context, userID, prov string) (*provider.Credential, error) {
	var cred provider.Credential
	var tz *string
	err := s.pool.QueryRow(ctx, "account_by_user_provider", userID, prov).Scan(
		&cred.UserID, &cred.Provider, &cred.AccessToken, &tz,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, &PersistenceError{Op: "resolve account", Err: err}
	}
	if tz != nil {
		cred.TimezoneHint = *tz
	}
	return &cred, nil
}

// AccountsForUser returns all linked provider credentials for a user in
// account-creation order, which doubles as alert-selection priority.
func (s *Store) AccountsForUser(ctx context.Context, userID string) ([]provider.Credential, error) {
	rows, err := s.pool.Query(ctx, "accounts_for_user", userID)
	if err != nil {
		return nil, &PersistenceError{Op: "accounts for user", Err: err}
	}
	defer rows.Close()

	var out []provider.Credential
	for rows.Next() {
		var cred provider.Credential
		var tz *string
		if err := rows.Scan(&cred.UserID, &cred.Provider, &cred.AccessToken, &tz); err != nil {
			return nil, &PersistenceError{Op: "scan account", Err: err}
		}
		if tz != nil {
			cred.TimezoneHint = *tz
		}
		out = append(out, cred)
	}
	return out, rows.Err()
}

// FlagReauth marks an account whose token the provider rejected. The OAuth
// glue surfaces the flag to the user; the pipeline just skips the account.
func (s *Store) FlagReauth(ctx context.Context, userID, prov string) error {
	_, err := s.pool.Exec(ctx, "flag_account_reauth", userID, prov)
	if err != nil {
		return &PersistenceError{Op: "flag reauth", Err: err}
	}
	return nil
}

// UpsertAccount stores or refreshes a provider link after token exchange.
func (s *Store) UpsertAccount(ctx context.Context, userID, prov, accessToken, refreshToken, tzHint string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO `+config.AccountsTable+` (
			user_id, provider, access_token, refresh_token, timezone_hint
		) VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (user_id, provider) DO UPDATE SET
			access_token = EXCLUDED.access_token,
			refresh_token = COALESCE(EXCLUDED.refresh_token, `+config.AccountsTable+`.refresh_token),
			timezone_hint = COALESCE(EXCLUDED.timezone_hint, `+config.AccountsTable+`.timezone_hint),
			needs_reauth = false,
			updated_at = NOW()`,
		userID, prov, accessToken, nilEmpty(refreshToken), nilEmpty(tzHint),
	)
	if err != nil {
		return &PersistenceError{Op: "upsert account", Err: err}
	}
	return nil
}

// UsersWithThresholds returns every user with at least one heart-rate
// threshold configured — the alert-eligible set.
func (s *Store) UsersWithThresholds(ctx context.Context) ([]User, error) {
	rows, err := s.pool.Query(ctx, "users_with_thresholds")
	if err != nil {
		return nil, &PersistenceError{Op: "users with thresholds", Err: err}
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.DisplayName, &u.Email, &u.HRThresholdLow, &u.HRThresholdHigh); err != nil {
			return nil, &PersistenceError{Op: "scan user", Err: err}
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// GetUser returns one user row, or nil when absent.
func (s *Store) GetUser(ctx context.Context, userID string) (*User, error) {
	var u User
	err := s.pool.QueryRow(ctx, "user_by_id", userID).Scan(
		&u.ID, &u.DisplayName, &u.Email, &u.HRThresholdLow, &u.HRThresholdHigh,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, &PersistenceError{Op: "get user", Err: err}
	}
	return &u, nil
}

// SetThresholds updates a user's low/high heart-rate thresholds. Nil clears
// a side, disabling that direction.
func (s *Store) SetThresholds(ctx context.Context, userID string, low, high *float64) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE `+config.UsersTable+`
		SET hr_threshold_low = $2, hr_threshold_high = $3, updated_at = NOW()
		WHERE id = $1`,
		userID, low, high,
	)
	if err != nil {
		return &PersistenceError{Op: "set thresholds", Err: err}
	}
	return nil
}

// --------------------------------------------------------------------------
// Sync cursors
// --------------------------------------------------------------------------

// SyncState is the incremental-sync cursor for one metric family.
type SyncState struct {
	Cursor       string
	LastSyncedAt *time.Time
	Status       string
	ErrorCount   int
}

// GetSyncState returns the cursor row for a key, or nil when absent.
func (s *Store) GetSyncState(ctx context.Context, userID, prov, family string) (*SyncState, error) {
	var (
		st     SyncState
		cursor *string
		status *string
	)
	err := s.pool.QueryRow(ctx, "sync_state_by_key", userID, prov, family).Scan(
		&cursor, &st.LastSyncedAt, &status, &st.ErrorCount,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, &PersistenceError{Op: "get sync state", Err: err}
	}
	if cursor != nil {
		st.Cursor = *cursor
	}
	if status != nil {
		st.Status = *status
	}
	return &st, nil
}

// MarkSynced records a successful sync for a metric family and resets the
// error count.
func (s *Store) MarkSynced(ctx context.Context, userID, prov, family, cursor string, at time.Time) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO `+config.SyncStateTable+` (
			user_id, provider, metric_family, cursor, last_synced_at, status, error_count
		) VALUES ($1,$2,$3,$4,$5,'ok',0)
		ON CONFLICT (user_id, provider, metric_family) DO UPDATE SET
			cursor = EXCLUDED.cursor,
			last_synced_at = EXCLUDED.last_synced_at,
			status = 'ok',
			error_count = 0,
			updated_at = NOW()`,
		userID, prov, family, nilEmpty(cursor), at,
	)
	if err != nil {
		return &PersistenceError{Op: "mark synced", Err: err}
	}
	return nil
}

// RecordSyncError bumps the error count for a metric family without moving
// the cursor.
func (s *Store) RecordSyncError(ctx context.Context, userID, prov, family string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO `+config.SyncStateTable+` (
			user_id, provider, metric_family, status, error_count
		) VALUES ($1,$2,$3,'error',1)
		ON CONFLICT (user_id, provider, metric_family) DO UPDATE SET
			status = 'error',
			error_count = `+config.SyncStateTable+`.error_count + 1,
			updated_at = NOW()`,
		userID, prov, family,
	)
	if err != nil {
		return &PersistenceError{Op: "record sync error", Err: err}
	}
	return nil
}
