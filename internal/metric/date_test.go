package metric

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDate(t *testing.T) {
	t.Run("parse and format round-trip", func(t *testing.T) {
		d, err := ParseDate("2026-08-20")
		require.NoError(t, err)
		assert.Equal(t, "2026-08-20", d.String())
	})

	t.Run("rejects malformed input", func(t *testing.T) {
		_, err := ParseDate("20/08/2026")
		assert.Error(t, err)
		_, err = ParseDate("2026-13-01")
		assert.Error(t, err)
	})

	t.Run("AddDays crosses month boundaries", func(t *testing.T) {
		d, err := ParseDate("2026-08-30")
		require.NoError(t, err)

		assert.Equal(t, "2026-09-02", d.AddDays(3).String())
		assert.Equal(t, "2026-07-31", d.AddDays(-30).String())
	})

	t.Run("DateOf uses the instant's location", func(t *testing.T) {
		ny, err := time.LoadLocation("America/New_York")
		require.NoError(t, err)
		// 02:00 UTC on the 24th is still the evening of the 23rd in New York.
		instant := time.Date(2026, 8, 24, 2, 0, 0, 0, time.UTC)

		assert.Equal(t, "2026-08-24", DateOf(instant).String())
		assert.Equal(t, "2026-08-23", DateOf(instant.In(ny)).String())
	})

	t.Run("Before orders days", func(t *testing.T) {
		a, _ := ParseDate("2026-08-20")
		b, _ := ParseDate("2026-08-21")

		assert.True(t, a.Before(b))
		assert.False(t, b.Before(a))
		assert.False(t, a.Before(a))
	})

	t.Run("Midnight anchors the day in a zone", func(t *testing.T) {
		d, _ := ParseDate("2026-08-20")
		ny, err := time.LoadLocation("America/New_York")
		require.NoError(t, err)

		// EDT is UTC-4 in August.
		assert.Equal(t, time.Date(2026, 8, 20, 4, 0, 0, 0, time.UTC),
			d.Midnight(ny).UTC())
	})

	t.Run("zero value", func(t *testing.T) {
		assert.True(t, Date{}.IsZero())
		d, _ := ParseDate("2026-08-20")
		assert.False(t, d.IsZero())
	})
}
