// Package provider defines the boundary to external wearable-device APIs:
// the ReadingSource contract, the provider error taxonomy, and the parser
// that normalizes the intraday payload shapes providers actually return.
package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vitalsync/vitalsync/internal/metric"
)

// Credential is the opaque access handle for one linked provider account.
type Credential struct {
	UserID      string
	Provider    string
	AccessToken string
	// TimezoneHint comes from the account record; the roll-up response may
	// override it with a fresher provider-reported zone.
	TimezoneHint string
}

// ReadingSource fetches readings from one provider for one account.
// Implementations must return the typed errors below so per-user failures
// can be classified at the evaluation boundary.
type ReadingSource interface {
	// FetchDaily returns the provider's daily roll-up for a local calendar
	// date. A day the provider knows nothing about yields an empty RollUp,
	// not an error.
	FetchDaily(ctx context.Context, cred Credential, date metric.Date) (*metric.RollUp, error)

	// FetchIntraday returns fine-grained samples for m covering
	// [startUTC, endUTC), sorted and deduplicated by timestamp.
	FetchIntraday(ctx context.Context, cred Credential, startUTC, endUTC time.Time, m metric.Metric) ([]metric.Sample, error)
}

// --------------------------------------------------------------------------
// Error taxonomy
// --------------------------------------------------------------------------

// ErrUnauthorized means the access token is expired or invalid. The caller
// skips the user and flags the account for re-auth; it never aborts a batch.
var ErrUnauthorized = errors.New("provider: access token expired or invalid")

// RateLimitedError means the provider throttled us. The user is retried on
// the next tick, never in-loop.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("provider: rate limited, retry after %s", e.RetryAfter)
}

// UnavailableError covers transport failures and provider 5xx responses.
type UnavailableError struct {
	Status int
	Err    error
}

func (e *UnavailableError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("provider: unavailable: %v", e.Err)
	}
	return fmt.Sprintf("provider: unavailable (status %d)", e.Status)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// DataShapeError marks a payload that could not be interpreted at all.
// Individual bad samples are skipped silently; this fires only when the
// whole body defies every known shape.
type DataShapeError struct {
	Detail string
}

func (e *DataShapeError) Error() string {
	return "provider: unexpected payload shape: " + e.Detail
}

// StatusError converts an HTTP status into the taxonomy. Callers handle 200
// themselves; everything else goes through here.
func StatusError(status int, retryAfter time.Duration) error {
	switch {
	case status == 401 || status == 403:
		return ErrUnauthorized
	case status == 429:
		if retryAfter <= 0 {
			retryAfter = time.Minute
		}
		return &RateLimitedError{RetryAfter: retryAfter}
	default:
		return &UnavailableError{Status: status}
	}
}
