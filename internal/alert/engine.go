// Package alert implements the heart-rate threshold engine: reading
// selection, the per-user suppression state machine, and the decision
// records the scheduler aggregates.
package alert

import (
	"context"
	"log/slog"
	"time"

	"github.com/vitalsync/vitalsync/internal/metric"
	"github.com/vitalsync/vitalsync/internal/store"
)

// Kind labels which threshold side fired.
const (
	KindHigh = "high"
	KindLow  = "low"
)

// Notifier dispatches one threshold alert. Implementations must be
// synchronous: the engine records suppression state only after a nil return.
type Notifier interface {
	SendThresholdAlert(ctx context.Context, a ThresholdAlert) error
}

// ThresholdAlert carries everything the notifier needs to render a message.
type ThresholdAlert struct {
	Recipient  string
	UserName   string
	Kind       string // KindHigh or KindLow
	Value      float64
	Threshold  float64
	ObservedAt time.Time
}

// StateStore is the slice of the metrics store the engine reads and writes.
type StateStore interface {
	GetNotificationState(ctx context.Context, userID string) (*store.NotificationState, error)
	InitNotificationState(ctx context.Context, userID string, now time.Time) error
	RecordNotified(ctx context.Context, userID, kind string, value float64, at time.Time) error
	LatestIntraday(ctx context.Context, userID string, m metric.Metric) (*store.IntradayWindow, error)
	LatestDailyMetric(ctx context.Context, userID string, m metric.Metric, since metric.Date) (*store.DailyReading, error)
}

// Outcome classifies one threshold side of a decision.
type Outcome string

const (
	// OutcomeFired means the alert was dispatched and state recorded.
	OutcomeFired Outcome = "fired"
	// OutcomeSuppressed means the value exceeded the threshold but neither
	// the delta nor the re-notify interval justified another alert.
	OutcomeSuppressed Outcome = "suppressed"
	// OutcomeWithinRange means the value did not cross the threshold.
	OutcomeWithinRange Outcome = "within_range"
	// OutcomeNotConfigured means the user has no threshold on this side.
	OutcomeNotConfigured Outcome = "not_configured"
	// OutcomeNoReading means no usable reading was found.
	OutcomeNoReading Outcome = "no_reading"
	// OutcomeDispatchFailed means the alert should have fired but the
	// notifier errored; state stays untouched so it can fire next cycle.
	OutcomeDispatchFailed Outcome = "dispatch_failed"
)

// SideResult is the decision for one threshold side.
type SideResult struct {
	Outcome   Outcome
	Value     float64
	Threshold float64
	Err       error
}

// Decision is the full evaluation record for one user in one cycle.
type Decision struct {
	UserID      string
	EvaluatedAt time.Time
	Reading     *Reading
	High        SideResult
	Low         SideResult
}

// Fired reports whether either side dispatched.
func (d *Decision) Fired() bool {
	return d.High.Outcome == OutcomeFired || d.Low.Outcome == OutcomeFired
}

// Reading is the selected heart-rate candidate for an evaluation.
type Reading struct {
	// Value is the representative bpm. For intraday readings Min and Max
	// equal Value; for roll-ups they are the day's extremes.
	Value      float64
	Min        *float64
	Max        *float64
	Provider   string
	Source     string // "intraday" or "rollup"
	ObservedAt time.Time
}

// Config tunes the engine. Zero values take the defaults below.
type Config struct {
	// Delta is the minimum change from the last notified value that
	// re-fires inside the re-notify interval.
	Delta float64
	// ReNotifyAfter is the interval after which a persisting violation
	// re-fires regardless of delta.
	ReNotifyAfter time.Duration
	// Freshness bounds how old an intraday sample may be and still count
	// as a live reading.
	Freshness time.Duration
	// LookbackDays bounds the roll-up search when no live reading exists.
	LookbackDays int
}

func (c Config) withDefaults() Config {
	if c.Delta <= 0 {
		c.Delta = 5
	}
	if c.ReNotifyAfter <= 0 {
		c.ReNotifyAfter = time.Hour
	}
	if c.Freshness <= 0 {
		c.Freshness = 30 * time.Minute
	}
	if c.LookbackDays <= 0 {
		c.LookbackDays = 8
	}
	return c
}

// Engine evaluates users against their thresholds.
type Engine struct {
	store    StateStore
	notifier Notifier
	cfg      Config
	logger   *slog.Logger
	now      func() time.Time
}

// New creates an Engine.
func New(st StateStore, notifier Notifier, cfg Config, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:    st,
		notifier: notifier,
		cfg:      cfg.withDefaults(),
		logger:   logger,
		now:      time.Now,
	}
}

// EvaluateUser runs one threshold evaluation for one user and returns the
// decision record. The returned error covers only infrastructure failures;
// dispatch failures live inside the decision.
func (e *Engine) EvaluateUser(ctx context.Context, user store.User) (*Decision, error) {
	now := e.now()
	d := &Decision{UserID: user.ID, EvaluatedAt: now}

	if user.Email == "" {
		d.High.Outcome = OutcomeNotConfigured
		d.Low.Outcome = OutcomeNotConfigured
		return d, nil
	}

	state, err := e.store.GetNotificationState(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	if state == nil {
		// Cold start: no last-notified values, so the first violation
		// always fires.
		if err := e.store.InitNotificationState(ctx, user.ID, now); err != nil {
			return nil, err
		}
		state = &store.NotificationState{LastNotificationTime: now}
	}

	reading, err := e.selectReading(ctx, user.ID, now)
	if err != nil {
		return nil, err
	}
	if reading == nil {
		d.High.Outcome = OutcomeNoReading
		d.Low.Outcome = OutcomeNoReading
		return d, nil
	}
	d.Reading = reading

	d.High = e.evaluateSide(ctx, user, state, reading, KindHigh, now)
	d.Low = e.evaluateSide(ctx, user, state, reading, KindLow, now)
	return d, nil
}

// evaluateSide applies the decision rule for one side: threshold configured,
// value crosses it, and (never notified before, or moved by at least Delta,
// or ReNotifyAfter elapsed).
func (e *Engine) evaluateSide(ctx context.Context, user store.User, state *store.NotificationState, reading *Reading, kind string, now time.Time) SideResult {
	var (
		threshold    *float64
		candidate    *float64
		lastNotified *float64
	)
	if kind == KindHigh {
		threshold = user.HRThresholdHigh
		candidate = reading.Max
		lastNotified = state.LastMaxNotified
	} else {
		threshold = user.HRThresholdLow
		candidate = reading.Min
		lastNotified = state.LastMinNotified
	}
	if candidate == nil {
		candidate = &reading.Value
	}

	if threshold == nil {
		return SideResult{Outcome: OutcomeNotConfigured}
	}
	res := SideResult{Value: *candidate, Threshold: *threshold}

	crossed := *candidate > *threshold
	if kind == KindLow {
		crossed = *candidate < *threshold
	}
	if !crossed {
		res.Outcome = OutcomeWithinRange
		return res
	}

	if lastNotified != nil &&
		abs(*candidate-*lastNotified) < e.cfg.Delta &&
		now.Sub(state.LastNotificationTime) < e.cfg.ReNotifyAfter {
		res.Outcome = OutcomeSuppressed
		return res
	}

	err := e.notifier.SendThresholdAlert(ctx, ThresholdAlert{
		Recipient:  user.Email,
		UserName:   user.DisplayName,
		Kind:       kind,
		Value:      *candidate,
		Threshold:  *threshold,
		ObservedAt: reading.ObservedAt,
	})
	if err != nil {
		// State stays untouched: a failed dispatch must not suppress the
		// next attempt.
		e.logger.Error("Threshold alert dispatch failed",
			"user_id", user.ID, "kind", kind, "value", *candidate, "error", err)
		res.Outcome = OutcomeDispatchFailed
		res.Err = err
		return res
	}

	if err := e.store.RecordNotified(ctx, user.ID, kind, *candidate, now); err != nil {
		// The alert went out; a state-write failure only risks one
		// duplicate next cycle.
		e.logger.Error("Recording notification state failed",
			"user_id", user.ID, "kind", kind, "error", err)
	}
	state.LastNotificationTime = now

	e.logger.Info("Threshold alert sent",
		"user_id", user.ID, "kind", kind, "value", *candidate,
		"threshold", *threshold, "source", reading.Source)
	res.Outcome = OutcomeFired
	return res
}

// selectReading picks the candidate heart-rate reading: a live intraday
// sample when fresh enough, otherwise the freshest roll-up within the
// lookback window. Nil when the user has neither.
func (e *Engine) selectReading(ctx context.Context, userID string, now time.Time) (*Reading, error) {
	window, err := e.store.LatestIntraday(ctx, userID, metric.HeartRate)
	if err != nil {
		return nil, err
	}
	if window != nil && len(window.Samples) > 0 {
		last := window.Samples[len(window.Samples)-1]
		if now.Sub(last.TS) <= e.cfg.Freshness {
			v := last.Value
			return &Reading{
				Value:      v,
				Min:        &v,
				Max:        &v,
				Provider:   window.Provider,
				Source:     "intraday",
				ObservedAt: last.TS,
			}, nil
		}
	}

	since := metric.DateOf(now.UTC()).AddDays(-e.cfg.LookbackDays)
	maxReading, err := e.store.LatestDailyMetric(ctx, userID, metric.HRMax, since)
	if err != nil {
		return nil, err
	}
	minReading, err := e.store.LatestDailyMetric(ctx, userID, metric.HRMin, since)
	if err != nil {
		return nil, err
	}
	avgReading, err := e.store.LatestDailyMetric(ctx, userID, metric.HRAvg, since)
	if err != nil {
		return nil, err
	}
	r := &Reading{Source: "rollup"}
	for _, reading := range []*store.DailyReading{avgReading, maxReading, minReading} {
		if reading != nil && reading.Value != nil {
			r.Value = *reading.Value
			r.Provider = reading.Provider
			r.ObservedAt = reading.UpdatedAt
			break
		}
	}
	if r.Provider == "" {
		return nil, nil
	}
	if maxReading != nil && maxReading.Value != nil {
		r.Max = maxReading.Value
	}
	if minReading != nil && minReading.Value != nil {
		r.Min = minReading.Value
	}
	return r, nil
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
