package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/werkstatthub/signpad-server-go/internal/model"
	"github.com/werkstatthub/signpad-server-go/internal/service"
	"github.com/werkstatthub/signpad-server-go/internal/util"
)

// stubTabletRepo backs the registry with a single known credential.
type stubTabletRepo struct {
	tablet *model.Tablet
}

func (s *stubTabletRepo) FindByID(ctx context.Context, id string) (*model.Tablet, error) {
	if s.tablet != nil && s.tablet.ID == id {
		return s.tablet, nil
	}
	return nil, nil
}

func (s *stubTabletRepo) FindByTokenHash(ctx context.Context, tokenHash string) (*model.Tablet, error) {
	if s.tablet != nil && s.tablet.TokenHash == tokenHash {
		return s.tablet, nil
	}
	return nil, nil
}

func (s *stubTabletRepo) FindByCompanyID(ctx context.Context, companyID string) ([]model.Tablet, error) {
	return nil, nil
}

func (s *stubTabletRepo) Create(ctx context.Context, params model.CreateTabletParams) (*model.Tablet, error) {
	return nil, nil
}

func (s *stubTabletRepo) UpdateStatus(ctx context.Context, id string, status model.TabletStatus) error {
	return nil
}

func (s *stubTabletRepo) TouchLastSeen(ctx context.Context, id string, at time.Time) error {
	return nil
}

func (s *stubTabletRepo) Rename(ctx context.Context, id string, name string) error {
	return nil
}

func newDeviceTokenFixture(token string) *DeviceTokenMiddleware {
	repo := &stubTabletRepo{
		tablet: &model.Tablet{
			ID:        "tab-1",
			CompanyID: "company-7",
			TokenHash: util.HashToken(token),
		},
	}
	return NewDeviceTokenMiddleware(service.NewDeviceRegistry(repo))
}

func TestDeviceTokenMiddleware(t *testing.T) {
	const token = "valid-device-token"

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tablet := GetTablet(r.Context())
		require.NotNil(t, tablet)
		w.Header().Set("X-Tablet-Id", tablet.ID)
		w.WriteHeader(http.StatusOK)
	})

	t.Run("accepts a bearer token", func(t *testing.T) {
		mw := newDeviceTokenFixture(token)
		req := httptest.NewRequest(http.MethodPost, "/v1/tablet/heartbeat", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()

		mw.Handler(next).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "tab-1", rec.Header().Get("X-Tablet-Id"))
	})

	t.Run("accepts a query token for event streams", func(t *testing.T) {
		mw := newDeviceTokenFixture(token)
		req := httptest.NewRequest(http.MethodGet, "/v1/tablet/stream?token="+token, nil)
		rec := httptest.NewRecorder()

		mw.Handler(next).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("rejects a missing token", func(t *testing.T) {
		mw := newDeviceTokenFixture(token)
		req := httptest.NewRequest(http.MethodPost, "/v1/tablet/heartbeat", nil)
		rec := httptest.NewRecorder()

		mw.Handler(next).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("rejects an unknown token", func(t *testing.T) {
		mw := newDeviceTokenFixture(token)
		req := httptest.NewRequest(http.MethodPost, "/v1/tablet/heartbeat", nil)
		req.Header.Set("Authorization", "Bearer wrong-token")
		rec := httptest.NewRecorder()

		mw.Handler(next).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)

		var body map[string]interface{}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "INVALID_DEVICE_TOKEN", body["code"])
	})
}

func TestTenantMiddleware(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Resolved-Company", GetCompanyID(r.Context()))
		w.WriteHeader(http.StatusOK)
	})

	t.Run("stores the gateway company id on the context", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/v1/pairing/codes", nil)
		req.Header.Set("X-Company-Id", "company-7")
		rec := httptest.NewRecorder()

		TenantMiddleware(next).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "company-7", rec.Header().Get("X-Resolved-Company"))
	})

	t.Run("rejects a request without company context", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/v1/pairing/codes", nil)
		rec := httptest.NewRecorder()

		TenantMiddleware(next).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}
