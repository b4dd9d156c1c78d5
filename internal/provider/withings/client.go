// Package withings implements the Withings Web API as a ReadingSource.
//
// Withings endpoints are form-encoded POSTs with an "action" parameter.
// Every response carries an application-level status field: 0 is success,
// anything else means "no usable data" and yields an empty result rather
// than an error, so one misbehaving endpoint never sinks a sync.
package withings

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/vitalsync/vitalsync/internal/metric"
	"github.com/vitalsync/vitalsync/internal/provider"
)

const (
	// DefaultBaseURL is the production Withings API host.
	DefaultBaseURL = "https://wbsapi.withings.net"

	measurePath   = "/measure"
	measureV2Path = "/v2/measure"
	sleepV2Path   = "/v2/sleep"
)

// Measure type codes from the getmeas endpoint.
const (
	measWeight   = 1
	measSpO2     = 54
	measBodyTemp = 71
	measSkinTemp = 73
)

// Client is the Withings HTTP client. One client serves all users; the
// access token travels in the Credential per call.
type Client struct {
	httpClient *http.Client
	baseURL    string
	limiter    *rate.Limiter
	logger     *slog.Logger
}

var _ provider.ReadingSource = (*Client)(nil)

// New creates a Withings client with rate limiting. A non-positive timeout
// takes the 30s default.
func New(baseURL string, requestsPerMinute int, timeout time.Duration, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	rps := float64(requestsPerMinute) / 60.0
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
		logger:     logger,
	}
}

// envelope is the common Withings response wrapper.
type envelope struct {
	Status int             `json:"status"`
	Body   json.RawMessage `json:"body"`
}

// post performs a rate-limited form POST. A non-zero application status
// returns (nil, nil): the caller treats it as an empty result.
func (c *Client) post(ctx context.Context, token, path string, form url.Values) (json.RawMessage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path,
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &provider.UnavailableError{Err: fmt.Errorf("http request %s: %w", path, err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &provider.UnavailableError{Err: fmt.Errorf("read response body: %w", err)}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, provider.StatusError(resp.StatusCode, 0)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, &provider.DataShapeError{Detail: path + ": " + err.Error()}
	}
	if env.Status != 0 {
		c.logger.Debug("Withings non-zero status", "path", path, "status", env.Status)
		return nil, nil
	}
	return env.Body, nil
}

// --------------------------------------------------------------------------
// Daily roll-up
// --------------------------------------------------------------------------

// FetchDaily assembles the roll-up from getactivity (steps, distance,
// calories, HR summary), the sleep summary, and getmeas (weight, SpO2,
// temperature).
func (c *Client) FetchDaily(ctx context.Context, cred provider.Credential, date metric.Date) (*metric.RollUp, error) {
	rollup := &metric.RollUp{Date: date}
	d := date.String()

	if err := c.fetchActivity(ctx, cred.AccessToken, d, rollup); err != nil {
		return nil, err
	}
	if err := c.fetchSleep(ctx, cred.AccessToken, d, rollup); err != nil {
		return nil, err
	}
	if err := c.fetchMeasures(ctx, cred.AccessToken, d, rollup); err != nil {
		return nil, err
	}
	return rollup, nil
}

func (c *Client) fetchActivity(ctx context.Context, token, d string, rollup *metric.RollUp) error {
	body, err := c.post(ctx, token, measureV2Path, url.Values{
		"action":       {"getactivity"},
		"startdateymd": {d},
		"enddateymd":   {d},
		"data_fields":  {"steps,distance,calories,hr_average,hr_min,hr_max"},
	})
	if err != nil || body == nil {
		return err
	}

	var act struct {
		Activities []struct {
			Timezone  string   `json:"timezone"`
			Steps     *float64 `json:"steps"`
			Distance  *float64 `json:"distance"`
			Calories  *float64 `json:"calories"`
			HRAverage *float64 `json:"hr_average"`
			HRMin     *float64 `json:"hr_min"`
			HRMax     *float64 `json:"hr_max"`
			Modified  int64    `json:"modified"`
		} `json:"activities"`
	}
	if err := json.Unmarshal(body, &act); err != nil {
		return &provider.DataShapeError{Detail: "getactivity: " + err.Error()}
	}
	if len(act.Activities) == 0 {
		return nil
	}
	a := act.Activities[0]
	rollup.Timezone = a.Timezone
	rollup.Steps = a.Steps
	rollup.Calories = a.Calories
	rollup.HRAvg = a.HRAverage
	rollup.HRMin = a.HRMin
	rollup.HRMax = a.HRMax
	if a.Distance != nil {
		// Devices disagree on the distance unit: large values are meters,
		// small ones kilometers.
		m := *a.Distance
		if m <= 1000 {
			m *= 1000
		}
		rollup.DistanceM = &m
	}
	if a.Modified > 0 {
		t := time.Unix(a.Modified, 0).UTC()
		rollup.SourceUpdatedAt = &t
	}
	return nil
}

func (c *Client) fetchSleep(ctx context.Context, token, d string, rollup *metric.RollUp) error {
	body, err := c.post(ctx, token, sleepV2Path, url.Values{
		"action":       {"getsummary"},
		"startdateymd": {d},
		"enddateymd":   {d},
		"data_fields":  {"totalsleepduration,asleepduration"},
	})
	if err != nil || body == nil {
		return err
	}

	var sleep struct {
		Series []struct {
			Data struct {
				TotalSleepDuration *float64 `json:"totalsleepduration"`
				AsleepDuration     *float64 `json:"asleepduration"`
			} `json:"data"`
		} `json:"series"`
	}
	if err := json.Unmarshal(body, &sleep); err != nil {
		return &provider.DataShapeError{Detail: "sleep getsummary: " + err.Error()}
	}
	var seconds float64
	for _, item := range sleep.Series {
		switch {
		case item.Data.TotalSleepDuration != nil:
			seconds += *item.Data.TotalSleepDuration
		case item.Data.AsleepDuration != nil:
			seconds += *item.Data.AsleepDuration
		}
	}
	if seconds > 0 {
		h := seconds / 3600
		rollup.SleepHours = &h
	}
	return nil
}

// fetchMeasures pulls weight, SpO2, and temperature from getmeas for the
// day. Measure values are mantissa/exponent pairs: value * 10^unit.
func (c *Client) fetchMeasures(ctx context.Context, token, d string, rollup *metric.RollUp) error {
	body, err := c.post(ctx, token, measurePath, url.Values{
		"action":       {"getmeas"},
		"meastype":     {meastypes()},
		"category":     {"1"},
		"startdateymd": {d},
		"enddateymd":   {d},
	})
	if err != nil || body == nil {
		return err
	}

	var meas struct {
		MeasureGrps []struct {
			Date     int64 `json:"date"`
			Measures []struct {
				Type  int     `json:"type"`
				Value float64 `json:"value"`
				Unit  int     `json:"unit"`
			} `json:"measures"`
		} `json:"measuregrps"`
	}
	if err := json.Unmarshal(body, &meas); err != nil {
		return &provider.DataShapeError{Detail: "getmeas: " + err.Error()}
	}

	// Later groups win within the day.
	latest := map[int]int64{}
	for _, grp := range meas.MeasureGrps {
		for _, m := range grp.Measures {
			if prev, ok := latest[m.Type]; ok && grp.Date <= prev {
				continue
			}
			latest[m.Type] = grp.Date
			v := decodeMeasure(m.Value, m.Unit)
			switch m.Type {
			case measWeight:
				rollup.WeightKg = &v
			case measSpO2:
				rollup.SpO2Pct = &v
			case measBodyTemp, measSkinTemp:
				rollup.TempDeltaC = &v
			}
		}
	}
	return nil
}

func meastypes() string {
	return strconv.Itoa(measWeight) + "," + strconv.Itoa(measSpO2) + "," +
		strconv.Itoa(measBodyTemp) + "," + strconv.Itoa(measSkinTemp)
}

// decodeMeasure expands a Withings mantissa/exponent measure value.
func decodeMeasure(value float64, unit int) float64 {
	return value * math.Pow10(unit)
}

// --------------------------------------------------------------------------
// Intraday series
// --------------------------------------------------------------------------

// intradayFields maps metrics to getintradayactivity data_fields names.
var intradayFields = map[metric.Metric]string{
	metric.Steps:     "steps",
	metric.DistanceM: "distance",
	metric.HeartRate: "heart_rate",
}

// FetchIntraday fetches fine-grained samples for [startUTC, endUTC) via
// getintradayactivity. The series payload arrives in several historical
// shapes; FlattenSeries normalizes all of them.
func (c *Client) FetchIntraday(ctx context.Context, cred provider.Credential, startUTC, endUTC time.Time, m metric.Metric) ([]metric.Sample, error) {
	field, ok := intradayFields[m]
	if !ok {
		return nil, nil
	}

	body, err := c.post(ctx, cred.AccessToken, measureV2Path, url.Values{
		"action":      {"getintradayactivity"},
		"startdate":   {strconv.FormatInt(startUTC.Unix(), 10)},
		"enddate":     {strconv.FormatInt(endUTC.Unix(), 10)},
		"data_fields": {field},
	})
	if err != nil || body == nil {
		return nil, err
	}

	var wrapper struct {
		Series json.RawMessage `json:"series"`
		Data   json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &wrapper); err != nil {
		return nil, &provider.DataShapeError{Detail: "getintradayactivity: " + err.Error()}
	}
	series := wrapper.Series
	if len(series) == 0 {
		series = wrapper.Data
	}

	samples, skipped, err := provider.FlattenSeries(series, field)
	if err != nil {
		return nil, err
	}
	if skipped > 0 {
		c.logger.Debug("Withings intraday entries skipped",
			"metric", string(m), "skipped", skipped)
	}

	// The API occasionally returns samples just outside the requested range.
	out := samples[:0]
	for _, s := range samples {
		if s.TS.Before(startUTC) || !s.TS.Before(endUTC) {
			continue
		}
		out = append(out, s)
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}
