// Package window resolves a local calendar date to the UTC instant range it
// covers in a given timezone.
package window

import (
	"log/slog"
	"time"

	"github.com/vitalsync/vitalsync/internal/metric"
)

// Resolver computes day windows. The zero value uses UTC as the fallback
// zone and a silent logger.
type Resolver struct {
	// DefaultZone is used when the provider-reported zone is missing or
	// invalid. Empty means UTC.
	DefaultZone string
	Logger      *slog.Logger

	// now is swappable for tests.
	now func() time.Time
}

// New creates a Resolver with the given fallback zone.
func New(defaultZone string, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{DefaultZone: defaultZone, Logger: logger, now: time.Now}
}

// Resolve returns the [start, end) UTC range covering date in tz. If date is
// the current day in tz, end is clamped to now — the day is still in
// progress. An unknown tz falls back to DefaultZone (then UTC); the fallback
// is logged, not silent.
func (r *Resolver) Resolve(date metric.Date, tz string) (startUTC, endUTC time.Time) {
	loc := r.location(tz)

	start := date.Midnight(loc)
	end := date.AddDays(1).Midnight(loc)

	now := r.clock()
	if date.Equal(metric.DateOf(now.In(loc))) && now.Before(end) {
		end = now
	}
	return start.UTC(), end.UTC()
}

// Location resolves tz with the same fallback chain as Resolve.
func (r *Resolver) Location(tz string) *time.Location {
	return r.location(tz)
}

// Today returns the current calendar day in tz.
func (r *Resolver) Today(tz string) metric.Date {
	return metric.DateOf(r.clock().In(r.location(tz)))
}

func (r *Resolver) location(tz string) *time.Location {
	if tz != "" {
		if loc, err := time.LoadLocation(tz); err == nil {
			return loc
		}
		r.logger().Warn("Unknown timezone, using default",
			"tz", tz, "default", r.defaultZoneName())
	}
	if r.DefaultZone != "" {
		if loc, err := time.LoadLocation(r.DefaultZone); err == nil {
			return loc
		}
	}
	return time.UTC
}

func (r *Resolver) defaultZoneName() string {
	if r.DefaultZone == "" {
		return "UTC"
	}
	return r.DefaultZone
}

func (r *Resolver) clock() time.Time {
	if r.now != nil {
		return r.now()
	}
	return time.Now()
}

func (r *Resolver) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}
