// Package token issues short-lived single-use correlation tokens for the
// OAuth link flow. A token is opaque, carries a JSON payload, and can be
// redeemed exactly once before its TTL expires.
package token

import (
	"context"
	"errors"
	"time"
)

// DefaultTTL is the issue-to-redeem window when the caller passes zero.
const DefaultTTL = 15 * time.Minute

// ErrNotFound means the token was never issued, already redeemed, or
// expired. Callers treat all three identically.
var ErrNotFound = errors.New("token: not found or expired")

// Store issues and redeems correlation tokens.
type Store interface {
	// Issue stores payload under a fresh random token valid for ttl.
	Issue(ctx context.Context, payload []byte, ttl time.Duration) (string, error)

	// Pop atomically retrieves and deletes a token's payload. A second Pop
	// of the same token returns ErrNotFound.
	Pop(ctx context.Context, tok string) ([]byte, error)
}
