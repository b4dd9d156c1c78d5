package db

// schema is the full DDL for the metrics pipeline. Composite natural keys
// back the idempotent upserts; every statement is safe to re-run.
const schema = `
CREATE TABLE IF NOT EXISTS users (
    id                TEXT PRIMARY KEY,
    display_name      TEXT,
    email             TEXT,
    hr_threshold_low  DOUBLE PRECISION,
    hr_threshold_high DOUBLE PRECISION,
    created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS accounts (
    user_id       TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    provider      TEXT NOT NULL,
    access_token  TEXT NOT NULL,
    refresh_token TEXT,
    timezone_hint TEXT,
    needs_reauth  BOOLEAN NOT NULL DEFAULT false,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (user_id, provider)
);

CREATE TABLE IF NOT EXISTS metric_daily (
    user_id           TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    provider          TEXT NOT NULL,
    metric            TEXT NOT NULL,
    date_local        DATE NOT NULL,
    value             DOUBLE PRECISION,
    unit              TEXT NOT NULL,
    tz                TEXT,
    source_updated_at TIMESTAMPTZ,
    updated_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (user_id, provider, metric, date_local)
);

CREATE INDEX IF NOT EXISTS idx_metric_daily_user_metric_date
    ON metric_daily (user_id, metric, date_local DESC);

CREATE TABLE IF NOT EXISTS metric_intraday (
    user_id      TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    provider     TEXT NOT NULL,
    metric       TEXT NOT NULL,
    date_local   DATE NOT NULL,
    resolution   TEXT NOT NULL,
    start_at_utc TIMESTAMPTZ NOT NULL,
    end_at_utc   TIMESTAMPTZ NOT NULL,
    samples      JSONB NOT NULL,
    updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (user_id, provider, metric, date_local, resolution)
);

CREATE TABLE IF NOT EXISTS notification_state (
    user_id                TEXT PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
    last_max_notified      DOUBLE PRECISION,
    last_min_notified      DOUBLE PRECISION,
    last_notification_time TIMESTAMPTZ NOT NULL,
    updated_at             TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS sync_state (
    user_id        TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    provider       TEXT NOT NULL,
    metric_family  TEXT NOT NULL,
    cursor         TEXT,
    last_synced_at TIMESTAMPTZ,
    status         TEXT,
    error_count    INTEGER NOT NULL DEFAULT 0,
    updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (user_id, provider, metric_family)
);
`
