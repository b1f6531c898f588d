package jobs

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/werkstatthub/signpad-server-go/internal/cache"
	"github.com/werkstatthub/signpad-server-go/internal/hub"
	"github.com/werkstatthub/signpad-server-go/internal/model"
	"github.com/werkstatthub/signpad-server-go/internal/service"
)

type mockPairingCodeRepo struct {
	deleteExpiredCount int64
	deleteExpiredCalls atomic.Int64
}

func (m *mockPairingCodeRepo) FindByCode(ctx context.Context, code string) (*model.PairingCode, error) {
	return nil, nil
}

func (m *mockPairingCodeRepo) CountActiveByWorkstationID(ctx context.Context, workstationID string) (int, error) {
	return 0, nil
}

func (m *mockPairingCodeRepo) Create(ctx context.Context, params model.CreatePairingCodeParams) (*model.PairingCode, error) {
	return nil, nil
}

func (m *mockPairingCodeRepo) Consume(ctx context.Context, code string, usedBy string) (bool, error) {
	return false, nil
}

func (m *mockPairingCodeRepo) ConsumeAndCreateTablet(ctx context.Context, code string, params model.CreateTabletParams) (*model.Tablet, bool, error) {
	return nil, false, nil
}

func (m *mockPairingCodeRepo) DeleteExpired(ctx context.Context) (int64, error) {
	m.deleteExpiredCalls.Add(1)
	return m.deleteExpiredCount, nil
}

type stubTabletRepo struct{}

func (s *stubTabletRepo) FindByID(ctx context.Context, id string) (*model.Tablet, error) {
	return nil, nil
}

func (s *stubTabletRepo) FindByTokenHash(ctx context.Context, tokenHash string) (*model.Tablet, error) {
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

type stubFetcher struct{}

func (s *stubFetcher) FetchDocument(ctx context.Context, companyID, documentID string) ([]byte, error) {
	return nil, nil
}

type stubStore struct{}

func (s *stubStore) StoreSignedDocument(ctx context.Context, companyID, sessionID, documentID string, document, signature []byte, signerName string) error {
	return nil
}

func newCleanupFixture(pairingRepo *mockPairingCodeRepo, interval time.Duration) (*CleanupJob, *hub.Hub) {
	registry := service.NewDeviceRegistry(&stubTabletRepo{})
	h := hub.New(nil, registry)
	registry.SetHub(h)

	artifactCache := cache.NewArtifactCache(2 * time.Hour)
	signatureService := service.NewSignatureService(
		registry, h, artifactCache, &stubFetcher{}, &stubStore{},
		10*time.Minute, 5242880)

	return NewCleanupJob(pairingRepo, signatureService, artifactCache, h, 90*time.Second, interval), h
}

func TestCleanupJob(t *testing.T) {
	t.Run("creates job with correct interval", func(t *testing.T) {
		job, h := newCleanupFixture(&mockPairingCodeRepo{}, 5*time.Minute)
		defer h.Close()

		assert.NotNil(t, job)
		assert.Equal(t, 5*time.Minute, job.interval)
	})

	t.Run("starts and stops without panic", func(t *testing.T) {
		job, h := newCleanupFixture(&mockPairingCodeRepo{}, 100*time.Millisecond)
		defer h.Close()

		job.Start()
		time.Sleep(50 * time.Millisecond)
		job.Stop()
	})

	t.Run("runs cleanup on start", func(t *testing.T) {
		pairingRepo := &mockPairingCodeRepo{deleteExpiredCount: 3}
		job, h := newCleanupFixture(pairingRepo, 1*time.Hour)
		defer h.Close()

		job.Start()
		time.Sleep(20 * time.Millisecond)
		job.Stop()

		assert.GreaterOrEqual(t, pairingRepo.deleteExpiredCalls.Load(), int64(1))
	})
}
