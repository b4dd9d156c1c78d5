package window

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitalsync/vitalsync/internal/metric"
)

func fixedResolver(t *testing.T, defaultZone string, now time.Time) *Resolver {
	t.Helper()
	r := New(defaultZone, nil)
	r.now = func() time.Time { return now }
	return r
}

func TestResolve(t *testing.T) {
	t.Run("past day spans local midnight to midnight in UTC", func(t *testing.T) {
		now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
		r := fixedResolver(t, "UTC", now)
		date, err := metric.ParseDate("2026-08-20")
		require.NoError(t, err)

		start, end := r.Resolve(date, "America/New_York")

		// EDT is UTC-4 in August.
		assert.Equal(t, time.Date(2026, 8, 20, 4, 0, 0, 0, time.UTC), start)
		assert.Equal(t, time.Date(2026, 8, 21, 4, 0, 0, 0, time.UTC), end)
	})

	t.Run("today is clamped to now", func(t *testing.T) {
		now := time.Date(2026, 8, 24, 15, 30, 0, 0, time.UTC)
		r := fixedResolver(t, "UTC", now)
		date := metric.DateOf(now)

		start, end := r.Resolve(date, "UTC")

		assert.Equal(t, time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC), start)
		assert.Equal(t, now, end, "end must be clamped to now for an in-progress day")
	})

	t.Run("yesterday is not clamped", func(t *testing.T) {
		now := time.Date(2026, 8, 24, 15, 30, 0, 0, time.UTC)
		r := fixedResolver(t, "UTC", now)
		date := metric.DateOf(now).AddDays(-1)

		_, end := r.Resolve(date, "UTC")

		assert.Equal(t, time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC), end)
	})

	t.Run("invalid timezone falls back to default zone", func(t *testing.T) {
		now := time.Date(2026, 8, 24, 23, 0, 0, 0, time.UTC)
		r := fixedResolver(t, "Europe/Berlin", now)
		date, err := metric.ParseDate("2026-08-20")
		require.NoError(t, err)

		start, _ := r.Resolve(date, "Not/AZone")

		// CEST is UTC+2 in August.
		assert.Equal(t, time.Date(2026, 8, 19, 22, 0, 0, 0, time.UTC), start)
	})

	t.Run("empty timezone with no default uses UTC", func(t *testing.T) {
		now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
		r := fixedResolver(t, "", now)
		date, err := metric.ParseDate("2026-08-20")
		require.NoError(t, err)

		start, end := r.Resolve(date, "")

		assert.Equal(t, time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC), start)
		assert.Equal(t, time.Date(2026, 8, 21, 0, 0, 0, 0, time.UTC), end)
	})
}

func TestToday(t *testing.T) {
	t.Run("reflects the local calendar day", func(t *testing.T) {
		// 02:00 UTC on the 24th is still the 23rd in New York.
		now := time.Date(2026, 8, 24, 2, 0, 0, 0, time.UTC)
		r := fixedResolver(t, "UTC", now)

		assert.Equal(t, "2026-08-23", r.Today("America/New_York").String())
		assert.Equal(t, "2026-08-24", r.Today("UTC").String())
	})
}
