package fitbit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitalsync/vitalsync/internal/metric"
	"github.com/vitalsync/vitalsync/internal/provider"
)

func cred() provider.Credential {
	return provider.Credential{
		UserID:       "u1",
		Provider:     "fitbit",
		AccessToken:  "tok",
		TimezoneHint: "UTC",
	}
}

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(srv.URL, 60000, 5*time.Second, nil)
}

func TestNew(t *testing.T) {
	t.Run("timeout is configurable with a default", func(t *testing.T) {
		assert.Equal(t, 5*time.Second, New("", 60, 5*time.Second, nil).httpClient.Timeout)
		assert.Equal(t, 30*time.Second, New("", 60, 0, nil).httpClient.Timeout)
	})
}

func mustDate(t *testing.T, s string) metric.Date {
	t.Helper()
	d, err := metric.ParseDate(s)
	require.NoError(t, err)
	return d
}

func TestFetchDaily(t *testing.T) {
	t.Run("assembles the full rollup", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("/1/user/-/profile.json", func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
			w.Write([]byte(`{"user": {"timezone": "America/New_York"}}`))
		})
		mux.HandleFunc("/1/user/-/activities/date/2026-08-20.json", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"summary": {
				"steps": 5000,
				"caloriesOut": 2100,
				"distances": [
					{"activity": "veryActive", "distance": 1.1},
					{"activity": "total", "distance": 3.2}
				]
			}}`))
		})
		mux.HandleFunc("/1.2/user/-/sleep/date/2026-08-20.json", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"sleep": [
				{"isMainSleep": true, "minutesAsleep": 420},
				{"isMainSleep": false, "minutesAsleep": 60}
			]}`))
		})
		mux.HandleFunc("/1/user/-/activities/heart/date/2026-08-20/1d.json", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"activities-heart": [{"value": {"restingHeartRate": 58}}]}`))
		})
		mux.HandleFunc("/1/user/-/body/log/weight/date/2026-08-20/7d.json", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"weight": [
				{"date": "2026-08-18", "time": "08:00:00", "weight": 73.1},
				{"date": "2026-08-20", "time": "07:45:00", "weight": 72.5}
			]}`))
		})
		mux.HandleFunc("/1/user/-/spo2/date/2026-08-20.json", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"spo2": [{"value": {"avg": 96.5}}]}`))
		})
		mux.HandleFunc("/1/user/-/temp/skin/date/2026-08-20.json", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"tempSkin": [{"value": {"nightlyRelative": -0.4}}]}`))
		})
		c := newTestClient(t, mux)

		rollup, err := c.FetchDaily(context.Background(), cred(), mustDate(t, "2026-08-20"))

		require.NoError(t, err)
		assert.Equal(t, "America/New_York", rollup.Timezone)
		require.NotNil(t, rollup.Steps)
		assert.Equal(t, 5000.0, *rollup.Steps)
		require.NotNil(t, rollup.DistanceM)
		assert.InDelta(t, 3200.0, *rollup.DistanceM, 0.001, "total distance must convert km to meters")
		require.NotNil(t, rollup.SleepHours)
		assert.Equal(t, 7.0, *rollup.SleepHours, "naps must not count toward sleep")
		require.NotNil(t, rollup.HRAvg)
		assert.Equal(t, 58.0, *rollup.HRAvg)
		require.NotNil(t, rollup.WeightKg)
		assert.Equal(t, 72.5, *rollup.WeightKg, "most recent weight log wins")
		require.NotNil(t, rollup.SpO2Pct)
		assert.Equal(t, 96.5, *rollup.SpO2Pct)
		require.NotNil(t, rollup.TempDeltaC)
		assert.Equal(t, -0.4, *rollup.TempDeltaC)
	})

	t.Run("supplemental misses degrade to absent values", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("/1/user/-/activities/date/2026-08-20.json", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"summary": {"steps": 100}}`))
		})
		c := newTestClient(t, mux)

		rollup, err := c.FetchDaily(context.Background(), cred(), mustDate(t, "2026-08-20"))

		require.NoError(t, err)
		require.NotNil(t, rollup.Steps)
		assert.Nil(t, rollup.SleepHours)
		assert.Nil(t, rollup.WeightKg)
	})

	t.Run("pending spo2 summary is skipped", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("/1/user/-/activities/date/2026-08-20.json", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"summary": {"steps": 100}}`))
		})
		mux.HandleFunc("/1/user/-/spo2/date/2026-08-20.json", func(w http.ResponseWriter, r *http.Request) {
			// The API returns a literal "--" before the nightly summary exists.
			w.Write([]byte(`{"spo2": [{"value": "--"}]}`))
		})
		c := newTestClient(t, mux)

		rollup, err := c.FetchDaily(context.Background(), cred(), mustDate(t, "2026-08-20"))

		require.NoError(t, err)
		assert.Nil(t, rollup.SpO2Pct)
	})

	t.Run("rejected token fails the fetch", func(t *testing.T) {
		c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}))

		_, err := c.FetchDaily(context.Background(), cred(), mustDate(t, "2026-08-20"))

		assert.ErrorIs(t, err, provider.ErrUnauthorized)
	})

	t.Run("rate limit surfaces the retry hint", func(t *testing.T) {
		c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Retry-After", "120")
			w.WriteHeader(http.StatusTooManyRequests)
		}))

		_, err := c.FetchDaily(context.Background(), cred(), mustDate(t, "2026-08-20"))

		var rateErr *provider.RateLimitedError
		require.ErrorAs(t, err, &rateErr)
		assert.Equal(t, 2*time.Minute, rateErr.RetryAfter)
	})
}

func TestFetchIntraday(t *testing.T) {
	start := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)

	t.Run("anchors local clocks and filters the window", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("/1/user/-/activities/steps/date/2026-08-20/1d/1min.json", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"activities-steps-intraday": {"dataset": [
				{"time": "08:00:00", "value": 12},
				{"time": "08:01:00", "value": 30}
			]}}`))
		})
		c := newTestClient(t, mux)

		samples, err := c.FetchIntraday(context.Background(), cred(), start, end, metric.Steps)

		require.NoError(t, err)
		require.Len(t, samples, 2)
		assert.Equal(t, time.Date(2026, 8, 20, 8, 0, 0, 0, time.UTC), samples[0].TS)
		assert.Equal(t, 12.0, samples[0].Value)
	})

	t.Run("samples outside the window are dropped", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("/1/user/-/activities/heart/date/2026-08-20/1d/1min.json", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"activities-heart-intraday": {"dataset": [
				{"time": "07:59:00", "value": 60},
				{"time": "09:00:00", "value": 72}
			]}}`))
		})
		c := newTestClient(t, mux)

		samples, err := c.FetchIntraday(context.Background(), cred(),
			start.Add(8*time.Hour), start.Add(10*time.Hour), metric.HeartRate)

		require.NoError(t, err)
		require.Len(t, samples, 1)
		assert.Equal(t, 72.0, samples[0].Value)
	})

	t.Run("distance converts km to meters", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("/1/user/-/activities/distance/date/2026-08-20/1d/1min.json", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"activities-distance-intraday": {"dataset": [
				{"time": "10:00:00", "value": 0.05}
			]}}`))
		})
		c := newTestClient(t, mux)

		samples, err := c.FetchIntraday(context.Background(), cred(), start, end, metric.DistanceM)

		require.NoError(t, err)
		require.Len(t, samples, 1)
		assert.InDelta(t, 50.0, samples[0].Value, 0.001)
	})

	t.Run("unsupported metric is a silent no-op", func(t *testing.T) {
		c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Error("no request expected")
		}))

		samples, err := c.FetchIntraday(context.Background(), cred(), start, end, metric.WeightKg)

		require.NoError(t, err)
		assert.Nil(t, samples)
	})

	t.Run("missing dataset is a shape error", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("/1/user/-/activities/steps/date/2026-08-20/1d/1min.json", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"activities-steps": []}`))
		})
		c := newTestClient(t, mux)

		_, err := c.FetchIntraday(context.Background(), cred(), start, end, metric.Steps)

		var shapeErr *provider.DataShapeError
		require.ErrorAs(t, err, &shapeErr)
	})
}
