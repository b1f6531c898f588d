package middleware

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/werkstatthub/signpad-server-go/internal/audit"
	apperrors "github.com/werkstatthub/signpad-server-go/internal/errors"
	"github.com/werkstatthub/signpad-server-go/internal/httputil"
	"github.com/werkstatthub/signpad-server-go/internal/service"
)

// RateLimitMiddleware applies a per-client token bucket for one endpoint
// class. Client identity is the authenticated tablet when present, otherwise
// the caller's company, otherwise the remote address (pairing redemption runs
// before any identity exists).
type RateLimitMiddleware struct {
	limiter       *service.RateLimiter
	class         string
	ratePerMinute int
}

func NewRateLimitMiddleware(limiter *service.RateLimiter, class string, ratePerMinute int) *RateLimitMiddleware {
	return &RateLimitMiddleware{
		limiter:       limiter,
		class:         class,
		ratePerMinute: ratePerMinute,
	}
}

func (m *RateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := fmt.Sprintf("%s:%s", clientIdentifier(r), m.class)

		if !m.limiter.Allow(key, m.ratePerMinute) {
			audit.LogFromRequest(r, audit.Event{
				Type:    audit.EventRateLimitExceed,
				Details: map[string]interface{}{"class": m.class},
			})
			w.Header().Set("Retry-After", "60")
			httputil.WriteError(w, apperrors.RateLimitExceeded())
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(m.ratePerMinute))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(m.limiter.Remaining(key, m.ratePerMinute)))

		next.ServeHTTP(w, r)
	})
}

func clientIdentifier(r *http.Request) string {
	if tablet := GetTablet(r.Context()); tablet != nil {
		return "tablet:" + tablet.ID
	}
	if companyID := GetCompanyID(r.Context()); companyID != "" {
		return "company:" + companyID
	}
	return "ip:" + r.RemoteAddr
}
