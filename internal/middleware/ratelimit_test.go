package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/werkstatthub/signpad-server-go/internal/service"
)

func TestRateLimitMiddleware(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	t.Run("allows requests inside the window and sets headers", func(t *testing.T) {
		mw := NewRateLimitMiddleware(service.NewRateLimiter(), "pairing", 10)

		req := httptest.NewRequest(http.MethodPost, "/v1/pairing/redeem", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		rec := httptest.NewRecorder()

		mw.Handler(next).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "10", rec.Header().Get("X-RateLimit-Limit"))
		assert.Equal(t, "9", rec.Header().Get("X-RateLimit-Remaining"))
	})

	t.Run("returns 429 with Retry-After once the bucket drains", func(t *testing.T) {
		mw := NewRateLimitMiddleware(service.NewRateLimiter(), "pairing", 2)
		handler := mw.Handler(next)

		for i := 0; i < 2; i++ {
			req := httptest.NewRequest(http.MethodPost, "/v1/pairing/redeem", nil)
			req.RemoteAddr = "10.0.0.1:1234"
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			require.Equal(t, http.StatusOK, rec.Code)
		}

		req := httptest.NewRequest(http.MethodPost, "/v1/pairing/redeem", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	})

	t.Run("clients are limited independently", func(t *testing.T) {
		mw := NewRateLimitMiddleware(service.NewRateLimiter(), "pairing", 1)
		handler := mw.Handler(next)

		first := httptest.NewRequest(http.MethodPost, "/v1/pairing/redeem", nil)
		first.RemoteAddr = "10.0.0.1:1234"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, first)
		require.Equal(t, http.StatusOK, rec.Code)

		second := httptest.NewRequest(http.MethodPost, "/v1/pairing/redeem", nil)
		second.RemoteAddr = "10.0.0.2:1234"
		rec = httptest.NewRecorder()
		handler.ServeHTTP(rec, second)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("endpoint classes do not share buckets", func(t *testing.T) {
		limiter := service.NewRateLimiter()
		pairing := NewRateLimitMiddleware(limiter, "pairing", 1).Handler(next)
		signature := NewRateLimitMiddleware(limiter, "signature", 1).Handler(next)

		req := httptest.NewRequest(http.MethodPost, "/v1/pairing/redeem", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		rec := httptest.NewRecorder()
		pairing.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)

		req = httptest.NewRequest(http.MethodPost, "/v1/sessions", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		rec = httptest.NewRecorder()
		signature.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}
