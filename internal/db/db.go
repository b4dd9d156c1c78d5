// Package db provides a pgxpool-based connection pool with prepared statement
// registration and health checking.
package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vitalsync/vitalsync/internal/config"
)

// Pool wraps pgxpool.Pool with application-specific helpers.
type Pool struct {
	*pgxpool.Pool
}

// New creates and validates a new connection pool.
func New(ctx context.Context, cfg *config.Config) (*Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	poolCfg.MinConns = int32(cfg.DBPoolMinConns)
	poolCfg.MaxConns = int32(cfg.DBPoolMaxConns)
	poolCfg.MaxConnLifetime = cfg.DBPoolMaxLife
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	// Register prepared statements on every new connection.
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return registerPreparedStatements(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	// Verify connectivity
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Pool{Pool: pool}, nil
}

// HealthCheck runs a trivial query to verify the database is reachable.
func (p *Pool) HealthCheck(ctx context.Context) error {
	var n int
	return p.QueryRow(ctx, "health_check").Scan(&n)
}

// EnsureSchema applies the embedded DDL. Idempotent — every statement is
// CREATE IF NOT EXISTS.
func (p *Pool) EnsureSchema(ctx context.Context) error {
	if _, err := p.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// registerPreparedStatements registers all statements the API and sync
// layers use. Prepared statements eliminate parse overhead on every request.
func registerPreparedStatements(ctx context.Context, conn *pgx.Conn) error {
	stmts := map[string]string{
		// Health
		"health_check": "SELECT 1",

		// Accounts / credential resolution
		"account_by_user_provider": `
			SELECT user_id, provider, access_token, timezone_hint
			FROM accounts
			WHERE user_id = $1 AND provider = $2`,
		"accounts_for_user": `
			SELECT user_id, provider, access_token, timezone_hint
			FROM accounts
			WHERE user_id = $1
			ORDER BY created_at`,
		"flag_account_reauth": `
			UPDATE accounts SET needs_reauth = true, updated_at = NOW()
			WHERE user_id = $1 AND provider = $2`,

		// Users eligible for alerting
		"users_with_thresholds": `
			SELECT id, COALESCE(display_name, ''), COALESCE(email, ''),
			       hr_threshold_low, hr_threshold_high
			FROM users
			WHERE hr_threshold_low IS NOT NULL OR hr_threshold_high IS NOT NULL
			ORDER BY id`,
		"user_by_id": `
			SELECT id, COALESCE(display_name, ''), COALESCE(email, ''),
			       hr_threshold_low, hr_threshold_high
			FROM users
			WHERE id = $1`,

		// Daily metrics
		"daily_by_key": `
			SELECT value, unit, tz, source_updated_at, updated_at
			FROM metric_daily
			WHERE user_id = $1 AND provider = $2 AND metric = $3 AND date_local = $4`,
		"daily_for_day": `
			SELECT metric, value, unit, tz, source_updated_at, updated_at
			FROM metric_daily
			WHERE user_id = $1 AND provider = $2 AND date_local = $3
			ORDER BY metric`,
		"latest_daily_metric": `
			SELECT provider, date_local, value, tz, source_updated_at, updated_at
			FROM metric_daily
			WHERE user_id = $1 AND metric = $2 AND value IS NOT NULL
			  AND date_local >= $3
			ORDER BY date_local DESC, updated_at DESC
			LIMIT 1`,

		// Intraday series
		"intraday_by_key": `
			SELECT start_at_utc, end_at_utc, samples
			FROM metric_intraday
			WHERE user_id = $1 AND provider = $2 AND metric = $3
			  AND date_local = $4 AND resolution = $5`,
		"latest_intraday_for_metric": `
			SELECT provider, date_local, start_at_utc, end_at_utc, samples, updated_at
			FROM metric_intraday
			WHERE user_id = $1 AND metric = $2
			ORDER BY date_local DESC, updated_at DESC
			LIMIT 1`,

		// Notification state
		"notification_state_by_user": `
			SELECT last_max_notified, last_min_notified, last_notification_time
			FROM notification_state
			WHERE user_id = $1`,

		// Sync cursors
		"sync_state_by_key": `
			SELECT cursor, last_synced_at, status, error_count
			FROM sync_state
			WHERE user_id = $1 AND provider = $2 AND metric_family = $3`,
	}

	for name, sql := range stmts {
		if _, err := conn.Prepare(ctx, name, sql); err != nil {
			return fmt.Errorf("prepare %q: %w", name, err)
		}
	}
	return nil
}
