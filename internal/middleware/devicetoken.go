package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/werkstatthub/signpad-server-go/internal/audit"
	apperrors "github.com/werkstatthub/signpad-server-go/internal/errors"
	"github.com/werkstatthub/signpad-server-go/internal/httputil"
	"github.com/werkstatthub/signpad-server-go/internal/model"
	"github.com/werkstatthub/signpad-server-go/internal/service"
)

type contextKey string

const TabletContextKey contextKey = "tablet"

func GetTablet(ctx context.Context) *model.Tablet {
	if tablet, ok := ctx.Value(TabletContextKey).(*model.Tablet); ok {
		return tablet
	}
	return nil
}

// DeviceTokenMiddleware authenticates tablet endpoints with the long-lived
// device credential handed out at pairing.
type DeviceTokenMiddleware struct {
	registry *service.DeviceRegistry
}

func NewDeviceTokenMiddleware(registry *service.DeviceRegistry) *DeviceTokenMiddleware {
	return &DeviceTokenMiddleware{registry: registry}
}

func (m *DeviceTokenMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractToken(r)
		if token == "" {
			httputil.WriteError(w, apperrors.Unauthorized("Missing device token"))
			return
		}

		tablet, err := m.registry.AuthenticateTablet(r.Context(), token)
		if err != nil {
			log.Error().Err(err).Msg("device auth: database error")
			httputil.WriteError(w, apperrors.Database(err))
			return
		}

		if tablet == nil {
			audit.LogFromRequest(r, audit.Event{Type: audit.EventDeviceAuthFailure})
			httputil.WriteError(w, apperrors.InvalidDeviceToken())
			return
		}

		ctx := context.WithValue(r.Context(), TabletContextKey, tablet)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// extractToken reads the device token from the query (event streams cannot
// set headers in every client) or from a bearer header.
func extractToken(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}

	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}

	return ""
}
