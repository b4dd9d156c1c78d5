// Package metric defines the canonical metric registry and the reading
// types shared by providers, the normalizer, and the store.
package metric

import "time"

// Metric identifies one tracked physiological metric.
type Metric string

const (
	Steps      Metric = "steps"
	DistanceM  Metric = "distance_m"
	Calories   Metric = "calories"
	SleepHours Metric = "sleep_hours"
	HRAvg      Metric = "hr_avg"
	HRMin      Metric = "hr_min"
	HRMax      Metric = "hr_max"
	WeightKg   Metric = "weight_kg"
	SpO2Pct    Metric = "spo2_pct"
	TempDeltaC Metric = "temp_delta_c"

	// HeartRate is the raw intraday bpm series. It never appears in daily
	// roll-ups (those use hr_avg/min/max) and is excluded from All; it exists
	// so live readings can feed threshold alerting.
	HeartRate Metric = "heart_rate"
)

// All lists every tracked metric in stable order.
var All = []Metric{
	Steps, DistanceM, Calories, SleepHours,
	HRAvg, HRMin, HRMax, WeightKg, SpO2Pct, TempDeltaC,
}

// units maps each metric to its fixed storage unit.
var units = map[Metric]string{
	Steps:      "count",
	DistanceM:  "m",
	Calories:   "kcal",
	SleepHours: "h",
	HRAvg:      "bpm",
	HRMin:      "bpm",
	HRMax:      "bpm",
	WeightKg:   "kg",
	SpO2Pct:    "%",
	TempDeltaC: "degC",
	HeartRate:  "bpm",
}

// Unit returns the storage unit for a metric.
func (m Metric) Unit() string {
	return units[m]
}

// Additive reports whether the metric is a daily counter whose intraday
// samples sum to the daily total. Only additive metrics participate in the
// max(rollup, intraday sum) reconciliation; summing anything else would
// double count.
func (m Metric) Additive() bool {
	return m == Steps || m == DistanceM
}

// Sample is one fine-grained intraday reading.
type Sample struct {
	TS    time.Time `json:"ts"`
	Value float64   `json:"v"`
}

// RollUp is a provider's own daily-aggregate reading for one local day.
// Nil fields mean the provider reported nothing for that metric — absence
// is meaningful and must not become zero downstream.
type RollUp struct {
	Date       Date
	Timezone   string // provider-reported IANA zone, "" if absent
	Steps      *float64
	DistanceM  *float64
	Calories   *float64
	SleepHours *float64
	HRAvg      *float64
	HRMin      *float64
	HRMax      *float64
	WeightKg   *float64
	SpO2Pct    *float64
	TempDeltaC *float64

	// SourceUpdatedAt is the provider's own modification timestamp for the
	// day, when reported.
	SourceUpdatedAt *time.Time

	// Raw holds the provider response body, attached only in debug mode.
	Raw []byte `json:"-"`
}

// Value returns the roll-up value for a metric, nil if absent.
func (r *RollUp) Value(m Metric) *float64 {
	if r == nil {
		return nil
	}
	switch m {
	case Steps:
		return r.Steps
	case DistanceM:
		return r.DistanceM
	case Calories:
		return r.Calories
	case SleepHours:
		return r.SleepHours
	case HRAvg:
		return r.HRAvg
	case HRMin:
		return r.HRMin
	case HRMax:
		return r.HRMax
	case WeightKg:
		return r.WeightKg
	case SpO2Pct:
		return r.SpO2Pct
	case TempDeltaC:
		return r.TempDeltaC
	}
	return nil
}

// Empty reports whether the roll-up carries no value for any metric.
func (r *RollUp) Empty() bool {
	if r == nil {
		return true
	}
	for _, m := range All {
		if r.Value(m) != nil {
			return false
		}
	}
	return true
}

// DailyRecord is the reconciled canonical record for one
// (user, provider, local date): at most one value per metric.
type DailyRecord struct {
	UserID   string
	Provider string
	Date     Date
	Timezone string
	Values   map[Metric]float64

	// FallbackFrom is set when the record was produced by lookback: it holds
	// the originally requested date, while Date holds the day the data
	// actually belongs to.
	FallbackFrom *Date

	SourceUpdatedAt *time.Time

	// RawRollUp / RawIntraday hold provider payloads in debug mode only.
	RawRollUp   []byte `json:"-"`
	RawIntraday []byte `json:"-"`
}

// Empty reports whether the record has no value for any metric.
func (r *DailyRecord) Empty() bool {
	return r == nil || len(r.Values) == 0
}

// Get returns the canonical value for a metric, nil if absent.
func (r *DailyRecord) Get(m Metric) *float64 {
	if r == nil {
		return nil
	}
	v, ok := r.Values[m]
	if !ok {
		return nil
	}
	return &v
}
