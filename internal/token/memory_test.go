package token

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	base := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)

	newStore := func(now *time.Time) *MemoryStore {
		s := NewMemoryStore()
		s.now = func() time.Time { return *now }
		return s
	}

	t.Run("issued token pops exactly once", func(t *testing.T) {
		now := base
		s := newStore(&now)

		tok, err := s.Issue(context.Background(), []byte(`{"user":"u1"}`), time.Minute)
		require.NoError(t, err)
		require.NotEmpty(t, tok)

		payload, err := s.Pop(context.Background(), tok)
		require.NoError(t, err)
		assert.JSONEq(t, `{"user":"u1"}`, string(payload))

		_, err = s.Pop(context.Background(), tok)
		assert.ErrorIs(t, err, ErrNotFound, "a redeemed token must be single-use")
	})

	t.Run("expired token is not redeemable", func(t *testing.T) {
		now := base
		s := newStore(&now)

		tok, err := s.Issue(context.Background(), []byte("x"), time.Minute)
		require.NoError(t, err)

		now = base.Add(2 * time.Minute)
		_, err = s.Pop(context.Background(), tok)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("unknown token", func(t *testing.T) {
		now := base
		s := newStore(&now)

		_, err := s.Pop(context.Background(), "nope")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("zero ttl takes the default", func(t *testing.T) {
		now := base
		s := newStore(&now)

		tok, err := s.Issue(context.Background(), []byte("x"), 0)
		require.NoError(t, err)

		now = base.Add(DefaultTTL - time.Second)
		_, err = s.Pop(context.Background(), tok)
		assert.NoError(t, err)
	})

	t.Run("payload is copied on issue", func(t *testing.T) {
		now := base
		s := newStore(&now)
		payload := []byte("original")

		tok, err := s.Issue(context.Background(), payload, time.Minute)
		require.NoError(t, err)
		payload[0] = 'X'

		got, err := s.Pop(context.Background(), tok)
		require.NoError(t, err)
		assert.Equal(t, "original", string(got))
	})

	t.Run("sweep removes only expired entries", func(t *testing.T) {
		now := base
		s := newStore(&now)

		_, err := s.Issue(context.Background(), []byte("short"), time.Minute)
		require.NoError(t, err)
		keep, err := s.Issue(context.Background(), []byte("long"), time.Hour)
		require.NoError(t, err)

		now = base.Add(10 * time.Minute)
		assert.Equal(t, 1, s.Sweep())
		assert.Equal(t, 0, s.Sweep(), "second sweep finds nothing")

		_, err = s.Pop(context.Background(), keep)
		assert.NoError(t, err)
	})
}
