package api

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitalsync/vitalsync/internal/config"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestRequestLogger(t *testing.T) {
	t.Run("passes the request through untouched", func(t *testing.T) {
		h := RequestLogger(discardLogger())(okHandler())
		rec := httptest.NewRecorder()

		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/metrics/u1/latest", nil))

		assert.Equal(t, http.StatusNoContent, rec.Code)
	})
}

func TestRateLimitMiddleware(t *testing.T) {
	cfg := &config.Config{RateLimitRequests: 3, RateLimitWindow: time.Minute}

	newRequest := func(ip string) *http.Request {
		r := httptest.NewRequest(http.MethodGet, "/api/v1/metrics/u1/latest", nil)
		r.RemoteAddr = ip + ":52000"
		return r
	}

	t.Run("rejects past the configured burst with a retry hint", func(t *testing.T) {
		h := RateLimitMiddleware(cfg, discardLogger())(okHandler())

		for i := 0; i < cfg.RateLimitRequests; i++ {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, newRequest("10.0.0.1"))
			require.Equal(t, http.StatusNoContent, rec.Code)
		}

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, newRequest("10.0.0.1"))

		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	})

	t.Run("limits per client, not globally", func(t *testing.T) {
		h := RateLimitMiddleware(cfg, discardLogger())(okHandler())

		for i := 0; i <= cfg.RateLimitRequests; i++ {
			h.ServeHTTP(httptest.NewRecorder(), newRequest("10.0.0.1"))
		}

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, newRequest("10.0.0.2"))

		assert.Equal(t, http.StatusNoContent, rec.Code, "a second client gets its own bucket")
	})

	t.Run("idle buckets are evicted", func(t *testing.T) {
		l := newIPLimiter(3, time.Minute)

		l.allow("10.0.0.1")
		l.clients["10.0.0.1"].lastSeen = time.Now().Add(-time.Hour)
		l.allow("10.0.0.2") // new client triggers eviction

		_, stale := l.clients["10.0.0.1"]
		assert.False(t, stale)
		_, fresh := l.clients["10.0.0.2"]
		assert.True(t, fresh)
	})
}
