// Package fitbit implements the Fitbit Web API as a ReadingSource.
//
// Fitbit uses Bearer-token auth over GET endpoints, one resource per URL.
// Rate limiting is handled via a token bucket limiter.
package fitbit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/vitalsync/vitalsync/internal/metric"
	"github.com/vitalsync/vitalsync/internal/provider"
)

// DefaultBaseURL is the production Fitbit API host.
const DefaultBaseURL = "https://api.fitbit.com"

// Client is the Fitbit HTTP client. One client serves all users; the access
// token travels in the Credential per call.
type Client struct {
	httpClient *http.Client
	baseURL    string
	limiter    *rate.Limiter
	logger     *slog.Logger
}

var _ provider.ReadingSource = (*Client)(nil)

// New creates a Fitbit client with rate limiting. A non-positive timeout
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

// get performs a rate-limited authorized GET and returns the body. Non-200
// statuses map through the provider error taxonomy.
func (c *Client) get(ctx context.Context, token, path string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

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
		return nil, provider.StatusError(resp.StatusCode, retryAfter(resp))
	}
	return body, nil
}

func retryAfter(resp *http.Response) time.Duration {
	if s := resp.Header.Get("Retry-After"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return time.Duration(n) * time.Second
		}
	}
	return 0
}

// --------------------------------------------------------------------------
// Daily roll-up
// --------------------------------------------------------------------------

// FetchDaily assembles the roll-up from the per-resource daily endpoints.
// The activities summary is the anchor: its failure fails the fetch. The
// supplemental resources (sleep, heart, weight, spo2, skin temp) degrade to
// absent values on non-auth errors, matching how partial Fitbit accounts
// behave in practice.
func (c *Client) FetchDaily(ctx context.Context, cred provider.Credential, date metric.Date) (*metric.RollUp, error) {
	rollup := &metric.RollUp{Date: date}
	d := date.String()

	if tz, err := c.profileTimezone(ctx, cred.AccessToken); err == nil {
		rollup.Timezone = tz
	}

	body, err := c.get(ctx, cred.AccessToken, "/1/user/-/activities/date/"+d+".json")
	if err != nil {
		return nil, err
	}
	var act struct {
		Summary struct {
			Steps       *float64 `json:"steps"`
			CaloriesOut *float64 `json:"caloriesOut"`
			Distances   []struct {
				Activity string  `json:"activity"`
				Distance float64 `json:"distance"`
			} `json:"distances"`
		} `json:"summary"`
	}
	if err := json.Unmarshal(body, &act); err != nil {
		return nil, &provider.DataShapeError{Detail: "activities summary: " + err.Error()}
	}
	rollup.Steps = act.Summary.Steps
	rollup.Calories = act.Summary.CaloriesOut
	for _, dist := range act.Summary.Distances {
		if dist.Activity == "total" {
			m := dist.Distance * 1000 // Fitbit reports km
			rollup.DistanceM = &m
			break
		}
	}

	c.fetchSleep(ctx, cred.AccessToken, d, rollup)
	c.fetchHeart(ctx, cred.AccessToken, d, rollup)
	c.fetchWeight(ctx, cred.AccessToken, d, rollup)
	c.fetchSpO2(ctx, cred.AccessToken, d, rollup)
	c.fetchSkinTemp(ctx, cred.AccessToken, d, rollup)

	return rollup, nil
}

// profileTimezone returns the user's Fitbit profile timezone.
func (c *Client) profileTimezone(ctx context.Context, token string) (string, error) {
	body, err := c.get(ctx, token, "/1/user/-/profile.json")
	if err != nil {
		return "", err
	}
	var profile struct {
		User struct {
			Timezone string `json:"timezone"`
		} `json:"user"`
	}
	if err := json.Unmarshal(body, &profile); err != nil {
		return "", err
	}
	return profile.User.Timezone, nil
}

// fetchSleep sums main-sleep minutes only; naps would inflate the total.
func (c *Client) fetchSleep(ctx context.Context, token, d string, rollup *metric.RollUp) {
	body, err := c.get(ctx, token, "/1.2/user/-/sleep/date/"+d+".json")
	if err != nil {
		c.supplementalMiss(err, "sleep", d)
		return
	}
	var sleep struct {
		Sleep []struct {
			IsMainSleep   bool    `json:"isMainSleep"`
			MinutesAsleep float64 `json:"minutesAsleep"`
		} `json:"sleep"`
	}
	if json.Unmarshal(body, &sleep) != nil {
		return
	}
	var minutes float64
	for _, log := range sleep.Sleep {
		if log.IsMainSleep {
			minutes += log.MinutesAsleep
		}
	}
	if minutes > 0 {
		h := minutes / 60
		rollup.SleepHours = &h
	}
}

func (c *Client) fetchHeart(ctx context.Context, token, d string, rollup *metric.RollUp) {
	body, err := c.get(ctx, token, "/1/user/-/activities/heart/date/"+d+"/1d.json")
	if err != nil {
		c.supplementalMiss(err, "heart", d)
		return
	}
	var heart struct {
		ActivitiesHeart []struct {
			Value struct {
				RestingHeartRate *float64 `json:"restingHeartRate"`
			} `json:"value"`
		} `json:"activities-heart"`
	}
	if json.Unmarshal(body, &heart) != nil || len(heart.ActivitiesHeart) == 0 {
		return
	}
	// Fitbit's daily summary exposes only resting HR; min/max come from the
	// intraday series when available.
	rollup.HRAvg = heart.ActivitiesHeart[0].Value.RestingHeartRate
}

// fetchWeight takes the most recent log in a 7-day lookback ending at d —
// scales rarely report daily.
func (c *Client) fetchWeight(ctx context.Context, token, d string, rollup *metric.RollUp) {
	body, err := c.get(ctx, token, "/1/user/-/body/log/weight/date/"+d+"/7d.json")
	if err != nil {
		c.supplementalMiss(err, "weight", d)
		return
	}
	var weight struct {
		Weight []struct {
			Date   string  `json:"date"`
			Time   string  `json:"time"`
			Weight float64 `json:"weight"`
		} `json:"weight"`
	}
	if json.Unmarshal(body, &weight) != nil || len(weight.Weight) == 0 {
		return
	}
	latest := weight.Weight[0]
	for _, w := range weight.Weight[1:] {
		if w.Date > latest.Date || (w.Date == latest.Date && w.Time > latest.Time) {
			latest = w
		}
	}
	rollup.WeightKg = &latest.Weight
}

func (c *Client) fetchSpO2(ctx context.Context, token, d string, rollup *metric.RollUp) {
	body, err := c.get(ctx, token, "/1/user/-/spo2/date/"+d+".json")
	if err != nil {
		c.supplementalMiss(err, "spo2", d)
		return
	}
	// The value block is "--" instead of an object when the nightly summary
	// has not been computed yet, so it is decoded leniently.
	var spo2 struct {
		SpO2 []struct {
			Value json.RawMessage `json:"value"`
		} `json:"spo2"`
	}
	if json.Unmarshal(body, &spo2) != nil || len(spo2.SpO2) == 0 {
		return
	}
	var value struct {
		Avg *float64 `json:"avg"`
	}
	if json.Unmarshal(spo2.SpO2[0].Value, &value) != nil {
		return
	}
	rollup.SpO2Pct = value.Avg
}

func (c *Client) fetchSkinTemp(ctx context.Context, token, d string, rollup *metric.RollUp) {
	body, err := c.get(ctx, token, "/1/user/-/temp/skin/date/"+d+".json")
	if err != nil {
		c.supplementalMiss(err, "skin temp", d)
		return
	}
	var temp struct {
		TempSkin []struct {
			Value struct {
				NightlyRelative *float64 `json:"nightlyRelative"`
			} `json:"value"`
		} `json:"tempSkin"`
	}
	if json.Unmarshal(body, &temp) != nil || len(temp.TempSkin) == 0 {
		return
	}
	rollup.TempDeltaC = temp.TempSkin[0].Value.NightlyRelative
}

// supplementalMiss logs a failed supplemental resource. Auth failures are
// not swallowed here because the anchor request already surfaced them.
func (c *Client) supplementalMiss(err error, resource, d string) {
	c.logger.Debug("Fitbit supplemental resource unavailable",
		"resource", resource, "date", d, "error", err)
}

// --------------------------------------------------------------------------
// Intraday series
// --------------------------------------------------------------------------

// intradayResources maps metrics to Fitbit intraday resource paths.
var intradayResources = map[metric.Metric]string{
	metric.Steps:     "steps",
	metric.DistanceM: "distance",
	metric.HeartRate: "heart",
}

// FetchIntraday fetches the 1-minute dataset for the local day containing
// startUTC and filters it to [startUTC, endUTC). Fitbit datasets carry local
// clock times only, so the account's timezone hint anchors them.
func (c *Client) FetchIntraday(ctx context.Context, cred provider.Credential, startUTC, endUTC time.Time, m metric.Metric) ([]metric.Sample, error) {
	resource, ok := intradayResources[m]
	if !ok {
		return nil, nil
	}

	loc := time.UTC
	if cred.TimezoneHint != "" {
		if l, err := time.LoadLocation(cred.TimezoneHint); err == nil {
			loc = l
		}
	}
	localDay := startUTC.In(loc)
	d := localDay.Format("2006-01-02")

	body, err := c.get(ctx, cred.AccessToken,
		"/1/user/-/activities/"+resource+"/date/"+d+"/1d/1min.json")
	if err != nil {
		return nil, err
	}

	var payload map[string]json.RawMessage
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &provider.DataShapeError{Detail: "intraday " + resource + ": " + err.Error()}
	}
	raw, ok := payload["activities-"+resource+"-intraday"]
	if !ok {
		return nil, &provider.DataShapeError{Detail: "intraday " + resource + ": missing dataset"}
	}
	var intraday struct {
		Dataset []struct {
			Time  string  `json:"time"`
			Value float64 `json:"value"`
		} `json:"dataset"`
	}
	if err := json.Unmarshal(raw, &intraday); err != nil {
		return nil, &provider.DataShapeError{Detail: "intraday " + resource + ": " + err.Error()}
	}

	midnight := time.Date(localDay.Year(), localDay.Month(), localDay.Day(), 0, 0, 0, 0, loc)
	var samples []metric.Sample
	for _, point := range intraday.Dataset {
		clock, err := time.Parse("15:04:05", point.Time)
		if err != nil {
			continue
		}
		ts := midnight.Add(time.Duration(clock.Hour())*time.Hour +
			time.Duration(clock.Minute())*time.Minute +
			time.Duration(clock.Second())*time.Second).UTC()
		if ts.Before(startUTC) || !ts.Before(endUTC) {
			continue
		}
		value := point.Value
		if m == metric.DistanceM {
			value *= 1000 // km per minute
		}
		samples = append(samples, metric.Sample{TS: ts, Value: value})
	}
	return samples, nil
}
