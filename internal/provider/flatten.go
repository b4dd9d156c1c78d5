package provider

import (
	"encoding/json"
	"sort"
	"strconv"
	"time"

	"github.com/vitalsync/vitalsync/internal/metric"
)

// FlattenSeries normalizes the intraday series shapes providers return into
// one sorted, timestamp-deduplicated sample list. Known shapes:
//
//   - list of sample objects:        [{"timestamp": 1717000000, "heart_rate": 62}, ...]
//     (the value may also sit under a nested "data" object, and the
//     timestamp under "time")
//   - epoch→value map:               {"1717000000": 62, ...}
//   - metric-name→epoch→value map:   {"heart_rate": {"1717000000": 62}, ...}
//
// field names the provider uses for the value (e.g. "heart_rate", "steps").
// Unparseable entries are skipped, never fatal; skipped is the count of
// entries dropped. A body that matches no shape at all returns DataShapeError.
func FlattenSeries(body json.RawMessage, valueFields ...string) (samples []metric.Sample, skipped int, err error) {
	if len(body) == 0 {
		return nil, 0, nil
	}

	var asList []json.RawMessage
	if err := json.Unmarshal(body, &asList); err == nil {
		samples, skipped = flattenList(asList, valueFields)
		return dedupe(samples), skipped, nil
	}

	var asMap map[string]json.RawMessage
	if err := json.Unmarshal(body, &asMap); err != nil {
		return nil, 0, &DataShapeError{Detail: truncate(body, 120)}
	}

	// Metric-name→epoch→value: every value is itself an object of scalars.
	// Epoch→value: every value is a scalar. Keys are walked in sorted order
	// so the output (and which duplicate survives dedupe) never depends on
	// map iteration order.
	keys := make([]string, 0, len(asMap))
	for k := range asMap {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := asMap[k]
		var scalar float64
		if json.Unmarshal(v, &scalar) == nil {
			if ts, ok := parseEpoch(k); ok {
				samples = append(samples, metric.Sample{TS: ts, Value: scalar})
			} else {
				skipped++
			}
			continue
		}

		var inner map[string]float64
		if json.Unmarshal(v, &inner) == nil && matchesField(k, valueFields) {
			epochs := make([]string, 0, len(inner))
			for ek := range inner {
				epochs = append(epochs, ek)
			}
			sort.Strings(epochs)
			for _, ek := range epochs {
				if ts, ok := parseEpoch(ek); ok {
					samples = append(samples, metric.Sample{TS: ts, Value: inner[ek]})
				} else {
					skipped++
				}
			}
			continue
		}

		// Some providers wrap the list under "data" or "series".
		if k == "data" || k == "series" {
			sub, subSkipped, subErr := FlattenSeries(v, valueFields...)
			if subErr == nil {
				samples = append(samples, sub...)
				skipped += subSkipped
				continue
			}
		}
		skipped++
	}

	return dedupe(samples), skipped, nil
}

func flattenList(items []json.RawMessage, valueFields []string) (samples []metric.Sample, skipped int) {
	for _, item := range items {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(item, &obj); err != nil {
			skipped++
			continue
		}

		// Value may sit under a nested "data" object.
		fields := obj
		if data, ok := obj["data"]; ok {
			var nested map[string]json.RawMessage
			if json.Unmarshal(data, &nested) == nil {
				fields = nested
			}
		}

		value, okV := pickValue(fields, valueFields)
		ts, okT := pickTimestamp(obj)
		if !okV || !okT {
			skipped++
			continue
		}
		samples = append(samples, metric.Sample{TS: ts, Value: value})
	}
	return samples, skipped
}

func pickValue(fields map[string]json.RawMessage, valueFields []string) (float64, bool) {
	for _, name := range valueFields {
		raw, ok := fields[name]
		if !ok {
			continue
		}
		var v float64
		if json.Unmarshal(raw, &v) == nil {
			return v, true
		}
	}
	// Generic fallback used by chunked exports.
	if raw, ok := fields["value"]; ok {
		var v float64
		if json.Unmarshal(raw, &v) == nil {
			return v, true
		}
	}
	return 0, false
}

func pickTimestamp(obj map[string]json.RawMessage) (time.Time, bool) {
	for _, name := range []string{"timestamp", "time", "ts"} {
		raw, ok := obj[name]
		if !ok {
			continue
		}
		var epoch float64
		if json.Unmarshal(raw, &epoch) == nil && epoch > 0 {
			return time.Unix(int64(epoch), 0).UTC(), true
		}
		var s string
		if json.Unmarshal(raw, &s) == nil {
			if ts, ok := parseEpoch(s); ok {
				return ts, true
			}
			if t, err := time.Parse(time.RFC3339, s); err == nil {
				return t.UTC(), true
			}
		}
	}
	return time.Time{}, false
}

func parseEpoch(s string) (time.Time, bool) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return time.Time{}, false
	}
	return time.Unix(n, 0).UTC(), true
}

func matchesField(name string, valueFields []string) bool {
	for _, f := range valueFields {
		if f == name {
			return true
		}
	}
	return false
}

// dedupe sorts by timestamp and keeps the last sample for each instant —
// providers revise recent points, so later entries win. The sort is stable
// and callers feed samples in deterministic order (list order, or sorted map
// keys), so the survivor is deterministic too.
func dedupe(samples []metric.Sample) []metric.Sample {
	if len(samples) == 0 {
		return nil
	}
	sort.SliceStable(samples, func(i, j int) bool {
		return samples[i].TS.Before(samples[j].TS)
	})
	out := samples[:0]
	for _, s := range samples {
		if len(out) > 0 && out[len(out)-1].TS.Equal(s.TS) {
			out[len(out)-1] = s
			continue
		}
		out = append(out, s)
	}
	return out
}

// truncate returns a truncated string representation for error messages.
func truncate(b []byte, maxLen int) string {
	if len(b) <= maxLen {
		return string(b)
	}
	return string(b[:maxLen]) + "..."
}
