package middleware

import (
	"net/http"
	"time"

	apperrors "github.com/werkstatthub/signpad-server-go/internal/errors"
	"github.com/werkstatthub/signpad-server-go/internal/httputil"
)

// DefaultMaxBodySize must leave room for the largest signature upload: the
// image bytes arrive base64-encoded inside a JSON body, so the wire size is
// roughly 4/3 of the configured image limit.
const DefaultMaxBodySize = 8 << 20

type BodyLimitMiddleware struct {
	maxSize int64
}

func NewBodyLimitMiddleware(maxSize int64) *BodyLimitMiddleware {
	if maxSize <= 0 {
		maxSize = DefaultMaxBodySize
	}
	return &BodyLimitMiddleware{maxSize: maxSize}
}

func (m *BodyLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil && r.ContentLength > m.maxSize {
			writeJSON(w, http.StatusRequestEntityTooLarge, httputil.ErrorResponse{
				Success:   false,
				Message:   "Request body too large",
				Code:      apperrors.ErrCodeValidation,
				Timestamp: time.Now().UnixMilli(),
			})
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, m.maxSize)
		next.ServeHTTP(w, r)
	})
}
