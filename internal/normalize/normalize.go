// Package normalize reconciles a provider's daily roll-up with its intraday
// series into one canonical record per (user, provider, local date), and
// persists the result. On an empty day it walks backward up to a bounded
// lookback and returns the first non-empty day, tagged with the requested
// date.
package normalize

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/vitalsync/vitalsync/internal/metric"
	"github.com/vitalsync/vitalsync/internal/provider"
	"github.com/vitalsync/vitalsync/internal/store"
	"github.com/vitalsync/vitalsync/internal/window"
)

// Sink is the slice of the metrics store the normalizer writes through.
type Sink interface {
	UpsertDaily(ctx context.Context, up store.DailyUpsert) error
	ReplaceIntraday(ctx context.Context, up store.IntradayUpsert) error
}

// Options tune one SyncDay call.
type Options struct {
	// Fallback enables the backward day-by-day search when the requested
	// day is empty.
	Fallback bool
	// LookbackDays bounds the fallback search. Zero means the configured
	// default.
	LookbackDays int
	// Debug attaches raw provider payloads to the returned record. Never
	// required in production paths.
	Debug bool
}

// Result is the outcome of one sync_day pass.
type Result struct {
	// Record is the canonical record, nil when NoData.
	Record *metric.DailyRecord
	// NoData is set when the requested day and the whole lookback window
	// carried no daily values. A zero is never synthesized. Intraday series
	// found along the way are persisted regardless.
	NoData bool
	// DaysSearched counts the days fetched (1 = no fallback needed).
	DaysSearched int
	// RowsPersisted counts daily rows written.
	RowsPersisted int
	// SamplesSkipped counts intraday entries dropped as unparseable.
	SamplesSkipped int
}

// Normalizer merges roll-up and intraday readings and persists them.
type Normalizer struct {
	sources    map[string]provider.ReadingSource
	sink       Sink
	windows    *window.Resolver
	lookback   int
	resolution string
	logger     *slog.Logger
}

// New creates a Normalizer. sources maps provider name to its client.
func New(sources map[string]provider.ReadingSource, sink Sink, windows *window.Resolver, lookbackDays int, resolution string, logger *slog.Logger) *Normalizer {
	if logger == nil {
		logger = slog.Default()
	}
	if lookbackDays <= 0 {
		lookbackDays = 3
	}
	if resolution == "" {
		resolution = "1min"
	}
	return &Normalizer{
		sources:    sources,
		sink:       sink,
		windows:    windows,
		lookback:   lookbackDays,
		resolution: resolution,
		logger:     logger,
	}
}

// intradayMetrics are the series fetched alongside the roll-up: the additive
// counters (whose sums participate in the merge) plus raw heart rate (kept
// for live alerting, never summed).
var intradayMetrics = []metric.Metric{metric.Steps, metric.DistanceM, metric.HeartRate}

// SyncDay fetches, merges, and persists one (user, provider, local date).
// Roll-up is fetched first — its timezone bounds the intraday window — then
// intraday, then persistence. On an empty day with fallback enabled it
// repeats for earlier days up to the lookback bound; the returned record is
// then tagged with the requested date in FallbackFrom.
func (n *Normalizer) SyncDay(ctx context.Context, cred provider.Credential, date metric.Date, opts Options) (*Result, error) {
	source, ok := n.sources[cred.Provider]
	if !ok {
		return nil, fmt.Errorf("no reading source for provider %q", cred.Provider)
	}

	lookback := opts.LookbackDays
	if lookback <= 0 {
		lookback = n.lookback
	}
	if !opts.Fallback {
		lookback = 0
	}

	var res Result
	for back := 0; back <= lookback; back++ {
		day := date.AddDays(-back)
		res.DaysSearched++

		record, series, skipped, err := n.fetchDay(ctx, source, cred, day, opts.Debug)
		if err != nil {
			return nil, err
		}
		res.SamplesSkipped += skipped

		if record.Empty() {
			// The daily side is empty but live series (heart rate) may still
			// exist; alerting reads them independently of the daily fallback,
			// so they are persisted before walking back.
			if err := n.persistIntraday(ctx, series); err != nil {
				return nil, err
			}
			continue
		}
		if back > 0 {
			origin := date
			record.FallbackFrom = &origin
			n.logger.Info("Day empty, fell back to earlier day",
				"user_id", cred.UserID, "provider", cred.Provider,
				"requested", date.String(), "found", day.String())
		}

		persisted, err := n.persist(ctx, record, series)
		if err != nil {
			return nil, err
		}
		res.Record = record
		res.RowsPersisted = persisted
		return &res, nil
	}

	res.NoData = true
	return &res, nil
}

// fetchDay runs steps 1–4 for a single day: roll-up, window, intraday,
// merge. No persistence.
func (n *Normalizer) fetchDay(ctx context.Context, source provider.ReadingSource, cred provider.Credential, day metric.Date, debug bool) (*metric.DailyRecord, []store.IntradayUpsert, int, error) {
	rollup, err := source.FetchDaily(ctx, cred, day)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("fetch daily %s: %w", day, err)
	}

	tz := ""
	if rollup != nil {
		tz = rollup.Timezone
	}
	if tz == "" {
		tz = cred.TimezoneHint
	}
	startUTC, endUTC := n.windows.Resolve(day, tz)

	record := &metric.DailyRecord{
		UserID:   cred.UserID,
		Provider: cred.Provider,
		Date:     day,
		Timezone: tz,
		Values:   make(map[metric.Metric]float64),
	}
	if rollup != nil {
		record.SourceUpdatedAt = rollup.SourceUpdatedAt
		if debug {
			record.RawRollUp = rollup.Raw
		}
	}

	var (
		series  []store.IntradayUpsert
		skipped int
	)
	for _, m := range intradayMetrics {
		samples, err := source.FetchIntraday(ctx, cred, startUTC, endUTC, m)
		if err != nil {
			var shapeErr *provider.DataShapeError
			if errors.As(err, &shapeErr) {
				// Shape trouble drops the series, never the sync.
				n.logger.Warn("Skipping unparseable intraday series",
					"user_id", cred.UserID, "provider", cred.Provider,
					"metric", string(m), "error", err)
				skipped++
				continue
			}
			return nil, nil, skipped, fmt.Errorf("fetch intraday %s %s: %w", m, day, err)
		}
		if len(samples) == 0 {
			continue
		}
		series = append(series, store.IntradayUpsert{
			UserID:     cred.UserID,
			Provider:   cred.Provider,
			Metric:     m,
			Date:       day,
			Resolution: n.resolution,
			StartUTC:   startUTC,
			EndUTC:     endUTC,
			Samples:    samples,
		})
	}

	merge(record, rollup, series)
	return record, series, skipped, nil
}

// merge applies the reconciliation rule: additive metrics take
// max(rollup, intraday sum) — roll-up is authoritative at rest, intraday is
// authoritative for an in-progress day; everything else comes from the
// roll-up alone.
func merge(record *metric.DailyRecord, rollup *metric.RollUp, series []store.IntradayUpsert) {
	sums := make(map[metric.Metric]float64)
	counted := make(map[metric.Metric]bool)
	for _, s := range series {
		if !s.Metric.Additive() {
			continue
		}
		for _, sample := range s.Samples {
			sums[s.Metric] += sample.Value
		}
		counted[s.Metric] = true
	}

	for _, m := range metric.All {
		rv := rollup.Value(m)
		if m.Additive() {
			switch {
			case rv != nil && counted[m]:
				record.Values[m] = maxFloat(*rv, sums[m])
			case rv != nil:
				record.Values[m] = *rv
			case counted[m]:
				record.Values[m] = sums[m]
			}
			continue
		}
		if rv != nil {
			record.Values[m] = *rv
		}
	}
}

// persist writes the canonical daily values, then the intraday windows.
func (n *Normalizer) persist(ctx context.Context, record *metric.DailyRecord, series []store.IntradayUpsert) (int, error) {
	persisted := 0
	for _, m := range metric.All {
		v := record.Get(m)
		if v == nil {
			continue
		}
		err := n.sink.UpsertDaily(ctx, store.DailyUpsert{
			UserID:          record.UserID,
			Provider:        record.Provider,
			Metric:          m,
			Date:            record.Date,
			Value:           v,
			Timezone:        record.Timezone,
			SourceUpdatedAt: record.SourceUpdatedAt,
		})
		if err != nil {
			return persisted, err
		}
		persisted++
	}

	if err := n.persistIntraday(ctx, series); err != nil {
		return persisted, err
	}
	return persisted, nil
}

func (n *Normalizer) persistIntraday(ctx context.Context, series []store.IntradayUpsert) error {
	for _, s := range series {
		if err := n.sink.ReplaceIntraday(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
