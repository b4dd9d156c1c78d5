package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitalsync/vitalsync/internal/metric"
)

func TestDailyUpsertSQL(t *testing.T) {
	t.Run("additive metrics merge with GREATEST", func(t *testing.T) {
		for _, m := range []metric.Metric{metric.Steps, metric.DistanceM} {
			sql := dailyUpsertSQL(m)
			assert.Contains(t, sql, "GREATEST(metric_daily.value, EXCLUDED.value)",
				"%s must never go backwards for a day", m)
			assert.NotContains(t, sql, "COALESCE(EXCLUDED.value")
		}
	})

	t.Run("non-additive metrics are last-write-wins, nil never erases", func(t *testing.T) {
		for _, m := range []metric.Metric{metric.Calories, metric.SleepHours, metric.HRAvg, metric.WeightKg} {
			sql := dailyUpsertSQL(m)
			assert.Contains(t, sql, "COALESCE(EXCLUDED.value, metric_daily.value)", string(m))
			assert.NotContains(t, sql, "GREATEST")
		}
	})

	t.Run("conflict key is the composite identity", func(t *testing.T) {
		sql := dailyUpsertSQL(metric.Steps)
		assert.Contains(t, sql, "ON CONFLICT (user_id, provider, metric, date_local) DO UPDATE")
	})

	t.Run("timezone and source timestamp never regress to NULL", func(t *testing.T) {
		sql := dailyUpsertSQL(metric.Steps)
		assert.Contains(t, sql, "tz = COALESCE(EXCLUDED.tz, metric_daily.tz)")
		assert.Contains(t, sql, "source_updated_at = COALESCE(EXCLUDED.source_updated_at, metric_daily.source_updated_at)")
	})
}

func TestReplaceIntradaySQL(t *testing.T) {
	t.Run("conflict key includes resolution", func(t *testing.T) {
		assert.Contains(t, replaceIntradaySQL,
			"ON CONFLICT (user_id, provider, metric, date_local, resolution) DO UPDATE")
	})

	t.Run("conflict replaces the whole window, never appends", func(t *testing.T) {
		assert.Contains(t, replaceIntradaySQL, "samples = EXCLUDED.samples")
		assert.Contains(t, replaceIntradaySQL, "start_at_utc = EXCLUDED.start_at_utc")
		assert.Contains(t, replaceIntradaySQL, "end_at_utc = EXCLUDED.end_at_utc")
		assert.NotContains(t, replaceIntradaySQL, "||", "no array/JSON concatenation")
	})
}

func TestDateArg(t *testing.T) {
	d, err := metric.ParseDate("2026-08-20")
	require.NoError(t, err)

	arg := dateArg(d)

	assert.Equal(t, time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC), arg,
		"DATE params must encode as UTC midnight so the calendar day survives")
}

func TestNilEmpty(t *testing.T) {
	assert.Nil(t, nilEmpty(""))
	assert.Equal(t, "Europe/Berlin", nilEmpty("Europe/Berlin"))
}
