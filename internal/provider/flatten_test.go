package provider

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlattenSeries(t *testing.T) {
	t.Run("list of sample objects", func(t *testing.T) {
		body := json.RawMessage(`[
			{"timestamp": 1717000060, "heart_rate": 64},
			{"timestamp": 1717000000, "heart_rate": 62}
		]`)

		samples, skipped, err := FlattenSeries(body, "heart_rate")

		require.NoError(t, err)
		assert.Equal(t, 0, skipped)
		require.Len(t, samples, 2)
		assert.Equal(t, time.Unix(1717000000, 0).UTC(), samples[0].TS)
		assert.Equal(t, 62.0, samples[0].Value)
		assert.Equal(t, 64.0, samples[1].Value)
	})

	t.Run("list with nested data object and time key", func(t *testing.T) {
		body := json.RawMessage(`[
			{"time": 1717000000, "data": {"heart_rate": 71}}
		]`)

		samples, skipped, err := FlattenSeries(body, "heart_rate")

		require.NoError(t, err)
		assert.Equal(t, 0, skipped)
		require.Len(t, samples, 1)
		assert.Equal(t, 71.0, samples[0].Value)
	})

	t.Run("epoch to value map", func(t *testing.T) {
		body := json.RawMessage(`{"1717000000": 62, "1717000060": 64}`)

		samples, skipped, err := FlattenSeries(body, "heart_rate")

		require.NoError(t, err)
		assert.Equal(t, 0, skipped)
		require.Len(t, samples, 2)
		assert.True(t, samples[0].TS.Before(samples[1].TS), "output must be sorted")
	})

	t.Run("metric name to epoch map", func(t *testing.T) {
		body := json.RawMessage(`{"steps": {"1717000000": 12, "1717000060": 30}}`)

		samples, skipped, err := FlattenSeries(body, "steps")

		require.NoError(t, err)
		assert.Equal(t, 0, skipped)
		require.Len(t, samples, 2)
		assert.Equal(t, 12.0, samples[0].Value)
	})

	t.Run("series wrapper recurses", func(t *testing.T) {
		body := json.RawMessage(`{"series": [{"timestamp": 1717000000, "steps": 8}]}`)

		samples, _, err := FlattenSeries(body, "steps")

		require.NoError(t, err)
		require.Len(t, samples, 1)
		assert.Equal(t, 8.0, samples[0].Value)
	})

	t.Run("duplicate timestamps keep last entry", func(t *testing.T) {
		body := json.RawMessage(`[
			{"timestamp": 1717000000, "heart_rate": 62},
			{"timestamp": 1717000000, "heart_rate": 65}
		]`)

		samples, _, err := FlattenSeries(body, "heart_rate")

		require.NoError(t, err)
		require.Len(t, samples, 1)
		assert.Equal(t, 65.0, samples[0].Value)
	})

	t.Run("unparseable entries are skipped and counted", func(t *testing.T) {
		body := json.RawMessage(`[
			{"timestamp": 1717000000, "heart_rate": 62},
			{"heart_rate": 70},
			{"timestamp": 1717000060},
			"garbage"
		]`)

		samples, skipped, err := FlattenSeries(body, "heart_rate")

		require.NoError(t, err)
		assert.Equal(t, 3, skipped)
		require.Len(t, samples, 1)
	})

	t.Run("duplicates across map shapes resolve deterministically", func(t *testing.T) {
		// "series" sorts before "steps", so the map-shaped sample is walked
		// last and wins the dedupe, run after run.
		body := json.RawMessage(`{
			"series": [{"timestamp": 1717000000, "steps": 20}],
			"steps": {"1717000000": 10}
		}`)

		for i := 0; i < 5; i++ {
			samples, _, err := FlattenSeries(body, "steps")

			require.NoError(t, err)
			require.Len(t, samples, 1)
			assert.Equal(t, 10.0, samples[0].Value)
		}
	})

	t.Run("rfc3339 timestamps accepted", func(t *testing.T) {
		body := json.RawMessage(`[{"time": "2026-08-20T10:00:00Z", "value": 88}]`)

		samples, _, err := FlattenSeries(body, "heart_rate")

		require.NoError(t, err)
		require.Len(t, samples, 1)
		assert.Equal(t, time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC), samples[0].TS)
	})

	t.Run("empty body yields nothing", func(t *testing.T) {
		samples, skipped, err := FlattenSeries(nil, "steps")

		require.NoError(t, err)
		assert.Equal(t, 0, skipped)
		assert.Empty(t, samples)
	})

	t.Run("scalar body returns DataShapeError", func(t *testing.T) {
		_, _, err := FlattenSeries(json.RawMessage(`42`), "steps")

		var shapeErr *DataShapeError
		require.ErrorAs(t, err, &shapeErr)
	})
}

func TestStatusError(t *testing.T) {
	t.Run("401 and 403 map to ErrUnauthorized", func(t *testing.T) {
		assert.ErrorIs(t, StatusError(401, 0), ErrUnauthorized)
		assert.ErrorIs(t, StatusError(403, 0), ErrUnauthorized)
	})

	t.Run("429 maps to RateLimitedError with retry hint", func(t *testing.T) {
		err := StatusError(429, 90*time.Second)

		var rateErr *RateLimitedError
		require.ErrorAs(t, err, &rateErr)
		assert.Equal(t, 90*time.Second, rateErr.RetryAfter)
	})

	t.Run("429 without hint defaults to a minute", func(t *testing.T) {
		err := StatusError(429, 0)

		var rateErr *RateLimitedError
		require.ErrorAs(t, err, &rateErr)
		assert.Equal(t, time.Minute, rateErr.RetryAfter)
	})

	t.Run("5xx maps to UnavailableError", func(t *testing.T) {
		err := StatusError(503, 0)

		var unavailErr *UnavailableError
		require.ErrorAs(t, err, &unavailErr)
		assert.Equal(t, 503, unavailErr.Status)
	})
}
