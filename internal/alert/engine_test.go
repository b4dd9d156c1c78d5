package alert

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitalsync/vitalsync/internal/metric"
	"github.com/vitalsync/vitalsync/internal/store"
)

// fakeStateStore holds notification state and readings in memory.
type fakeStateStore struct {
	state    *store.NotificationState
	intraday *store.IntradayWindow
	daily    map[metric.Metric]*store.DailyReading
	inits    int
}

func (f *fakeStateStore) GetNotificationState(ctx context.Context, userID string) (*store.NotificationState, error) {
	return f.state, nil
}

func (f *fakeStateStore) InitNotificationState(ctx context.Context, userID string, now time.Time) error {
	f.inits++
	if f.state == nil {
		f.state = &store.NotificationState{LastNotificationTime: now}
	}
	return nil
}

func (f *fakeStateStore) RecordNotified(ctx context.Context, userID, kind string, value float64, at time.Time) error {
	if kind == KindHigh {
		f.state.LastMaxNotified = &value
	} else {
		f.state.LastMinNotified = &value
	}
	f.state.LastNotificationTime = at
	return nil
}

func (f *fakeStateStore) LatestIntraday(ctx context.Context, userID string, m metric.Metric) (*store.IntradayWindow, error) {
	return f.intraday, nil
}

func (f *fakeStateStore) LatestDailyMetric(ctx context.Context, userID string, m metric.Metric, since metric.Date) (*store.DailyReading, error) {
	return f.daily[m], nil
}

// fakeNotifier records dispatches and can be told to fail.
type fakeNotifier struct {
	sent []ThresholdAlert
	err  error
}

func (f *fakeNotifier) SendThresholdAlert(ctx context.Context, a ThresholdAlert) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, a)
	return nil
}

func ptr(v float64) *float64 { return &v }

var now = time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)

func newEngine(st *fakeStateStore, n *fakeNotifier) *Engine {
	e := New(st, n, Config{}, nil)
	e.now = func() time.Time { return now }
	return e
}

func liveReading(bpm float64, age time.Duration) *store.IntradayWindow {
	return &store.IntradayWindow{
		Provider: "withings",
		Metric:   metric.HeartRate,
		Samples:  []metric.Sample{{TS: now.Add(-age), Value: bpm}},
	}
}

func alertUser() store.User {
	return store.User{
		ID:              "u1",
		DisplayName:     "Ada",
		Email:           "ada@example.com",
		HRThresholdHigh: ptr(100),
	}
}

func TestEvaluateUser(t *testing.T) {
	t.Run("cold start violation always fires", func(t *testing.T) {
		st := &fakeStateStore{intraday: liveReading(105, time.Minute)}
		n := &fakeNotifier{}

		d, err := newEngine(st, n).EvaluateUser(context.Background(), alertUser())

		require.NoError(t, err)
		assert.Equal(t, OutcomeFired, d.High.Outcome)
		assert.Equal(t, 1, st.inits)
		require.Len(t, n.sent, 1)
		assert.Equal(t, 105.0, n.sent[0].Value)
		require.NotNil(t, st.state.LastMaxNotified)
		assert.Equal(t, 105.0, *st.state.LastMaxNotified)
	})

	t.Run("small delta inside the window is suppressed", func(t *testing.T) {
		st := &fakeStateStore{
			state: &store.NotificationState{
				LastMaxNotified:      ptr(105),
				LastNotificationTime: now.Add(-10 * time.Minute),
			},
			intraday: liveReading(106, time.Minute),
		}
		n := &fakeNotifier{}

		d, err := newEngine(st, n).EvaluateUser(context.Background(), alertUser())

		require.NoError(t, err)
		assert.Equal(t, OutcomeSuppressed, d.High.Outcome)
		assert.Empty(t, n.sent)
		assert.Equal(t, 105.0, *st.state.LastMaxNotified, "suppression must not move state")
	})

	t.Run("delta of five or more re-fires inside the window", func(t *testing.T) {
		st := &fakeStateStore{
			state: &store.NotificationState{
				LastMaxNotified:      ptr(105),
				LastNotificationTime: now.Add(-10 * time.Minute),
			},
			intraday: liveReading(112, time.Minute),
		}
		n := &fakeNotifier{}

		d, err := newEngine(st, n).EvaluateUser(context.Background(), alertUser())

		require.NoError(t, err)
		assert.Equal(t, OutcomeFired, d.High.Outcome)
		assert.Equal(t, 112.0, *st.state.LastMaxNotified)
	})

	t.Run("elapsed interval re-fires regardless of delta", func(t *testing.T) {
		st := &fakeStateStore{
			state: &store.NotificationState{
				LastMaxNotified:      ptr(105),
				LastNotificationTime: now.Add(-2 * time.Hour),
			},
			intraday: liveReading(106, time.Minute),
		}
		n := &fakeNotifier{}

		d, err := newEngine(st, n).EvaluateUser(context.Background(), alertUser())

		require.NoError(t, err)
		assert.Equal(t, OutcomeFired, d.High.Outcome)
	})

	t.Run("reading within range does not fire", func(t *testing.T) {
		st := &fakeStateStore{intraday: liveReading(95, time.Minute)}
		n := &fakeNotifier{}

		d, err := newEngine(st, n).EvaluateUser(context.Background(), alertUser())

		require.NoError(t, err)
		assert.Equal(t, OutcomeWithinRange, d.High.Outcome)
		assert.Empty(t, n.sent)
	})

	t.Run("dispatch failure leaves state untouched", func(t *testing.T) {
		st := &fakeStateStore{intraday: liveReading(120, time.Minute)}
		n := &fakeNotifier{err: errors.New("smtp down")}

		d, err := newEngine(st, n).EvaluateUser(context.Background(), alertUser())

		require.NoError(t, err)
		assert.Equal(t, OutcomeDispatchFailed, d.High.Outcome)
		assert.Error(t, d.High.Err)
		assert.Nil(t, st.state.LastMaxNotified, "failed dispatch must not suppress the next attempt")
	})

	t.Run("low threshold is symmetric", func(t *testing.T) {
		user := alertUser()
		user.HRThresholdHigh = nil
		user.HRThresholdLow = ptr(50)
		st := &fakeStateStore{intraday: liveReading(42, time.Minute)}
		n := &fakeNotifier{}

		d, err := newEngine(st, n).EvaluateUser(context.Background(), user)

		require.NoError(t, err)
		assert.Equal(t, OutcomeFired, d.Low.Outcome)
		assert.Equal(t, OutcomeNotConfigured, d.High.Outcome)
		require.Len(t, n.sent, 1)
		assert.Equal(t, KindLow, n.sent[0].Kind)
	})

	t.Run("stale intraday falls back to the daily rollup", func(t *testing.T) {
		st := &fakeStateStore{
			intraday: liveReading(130, 2*time.Hour), // too old to be live
			daily: map[metric.Metric]*store.DailyReading{
				metric.HRMax: {Provider: "fitbit", Value: ptr(104), UpdatedAt: now.Add(-time.Hour)},
				metric.HRAvg: {Provider: "fitbit", Value: ptr(80), UpdatedAt: now.Add(-time.Hour)},
			},
		}
		n := &fakeNotifier{}

		d, err := newEngine(st, n).EvaluateUser(context.Background(), alertUser())

		require.NoError(t, err)
		require.NotNil(t, d.Reading)
		assert.Equal(t, "rollup", d.Reading.Source)
		assert.Equal(t, OutcomeFired, d.High.Outcome)
		assert.Equal(t, 104.0, d.High.Value, "high side must use the day's max, not the average")
	})

	t.Run("no reading anywhere skips evaluation", func(t *testing.T) {
		st := &fakeStateStore{}
		n := &fakeNotifier{}

		d, err := newEngine(st, n).EvaluateUser(context.Background(), alertUser())

		require.NoError(t, err)
		assert.Equal(t, OutcomeNoReading, d.High.Outcome)
		assert.Empty(t, n.sent)
	})

	t.Run("user without email is not evaluated", func(t *testing.T) {
		user := alertUser()
		user.Email = ""
		st := &fakeStateStore{intraday: liveReading(120, time.Minute)}
		n := &fakeNotifier{}

		d, err := newEngine(st, n).EvaluateUser(context.Background(), user)

		require.NoError(t, err)
		assert.Equal(t, OutcomeNotConfigured, d.High.Outcome)
		assert.Empty(t, n.sent)
	})
}
