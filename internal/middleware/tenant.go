package middleware

import (
	"context"
	"net/http"

	apperrors "github.com/werkstatthub/signpad-server-go/internal/errors"
	"github.com/werkstatthub/signpad-server-go/internal/httputil"
)

const CompanyContextKey contextKey = "companyId"

// Company id resolution for workstation callers is a collaborator concern:
// the workshop backend's gateway authenticates the human user and injects the
// tenant header before requests reach this service.
const companyHeader = "X-Company-Id"

func GetCompanyID(ctx context.Context) string {
	if companyID, ok := ctx.Value(CompanyContextKey).(string); ok {
		return companyID
	}
	return ""
}

// TenantMiddleware requires the gateway-injected company id on workstation
// endpoints and stores it on the request context.
func TenantMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		companyID := r.Header.Get(companyHeader)
		if companyID == "" {
			httputil.WriteError(w, apperrors.Unauthorized("Missing company context"))
			return
		}

		ctx := context.WithValue(r.Context(), CompanyContextKey, companyID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
