package service

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/werkstatthub/signpad-server-go/internal/hub"
	"github.com/werkstatthub/signpad-server-go/internal/model"
	"github.com/werkstatthub/signpad-server-go/internal/repository"
	"github.com/werkstatthub/signpad-server-go/internal/util"
)

// DeviceRegistry fronts the durable device records. It is the single writer
// of tablet connectivity status; the hub reports transitions here and nowhere
// else.
type DeviceRegistry struct {
	tabletRepo repository.TabletRepository
	hub        *hub.Hub
}

// NewDeviceRegistry builds the registry. The hub reference is attached later
// via SetHub because the hub itself needs the registry as its StatusSink.
func NewDeviceRegistry(tabletRepo repository.TabletRepository) *DeviceRegistry {
	return &DeviceRegistry{tabletRepo: tabletRepo}
}

func (r *DeviceRegistry) SetHub(h *hub.Hub) {
	r.hub = h
}

// AuthenticateTablet resolves a device token to its tablet record.
func (r *DeviceRegistry) AuthenticateTablet(ctx context.Context, token string) (*model.Tablet, error) {
	if token == "" {
		return nil, nil
	}
	return r.tabletRepo.FindByTokenHash(ctx, util.HashToken(token))
}

func (r *DeviceRegistry) FindTablet(ctx context.Context, tabletID string) (*model.Tablet, error) {
	return r.tabletRepo.FindByID(ctx, tabletID)
}

// TabletView is the operational listing row: durable record plus live
// connectivity derived from the hub.
type TabletView struct {
	model.Tablet
	Online        bool  `json:"online"`
	UptimeSeconds int64 `json:"uptimeSeconds,omitempty"`
}

// ListTablets returns every tablet of a company with its live status.
func (r *DeviceRegistry) ListTablets(ctx context.Context, companyID string) ([]TabletView, error) {
	tablets, err := r.tabletRepo.FindByCompanyID(ctx, companyID)
	if err != nil {
		return nil, err
	}

	views := make([]TabletView, 0, len(tablets))
	for _, t := range tablets {
		view := TabletView{Tablet: t}
		if client := r.hub.Get(t.ID, hub.RoleTablet); client != nil {
			view.Online = true
			view.UptimeSeconds = int64(time.Since(client.ConnectedAt).Seconds())
		}
		views = append(views, view)
	}
	return views, nil
}

// Heartbeat stamps last-seen and defers the hub's stale sweep for the device.
func (r *DeviceRegistry) Heartbeat(ctx context.Context, tabletID string) error {
	r.hub.Touch(tabletID, hub.RoleTablet)
	return r.tabletRepo.TouchLastSeen(ctx, tabletID, time.Now())
}

// MarkOnline implements hub.StatusSink.
func (r *DeviceRegistry) MarkOnline(ctx context.Context, deviceID string, role hub.Role) {
	if role != hub.RoleTablet {
		return
	}
	if err := r.tabletRepo.UpdateStatus(ctx, deviceID, model.TabletStatusOnline); err != nil {
		log.Error().Err(err).Str("tabletId", deviceID).Msg("failed to mark tablet online")
	}
}

// MarkOffline implements hub.StatusSink.
func (r *DeviceRegistry) MarkOffline(ctx context.Context, deviceID string, role hub.Role, lastSeen time.Time) {
	if role != hub.RoleTablet {
		return
	}
	if err := r.tabletRepo.UpdateStatus(ctx, deviceID, model.TabletStatusOffline); err != nil {
		log.Error().Err(err).Str("tabletId", deviceID).Msg("failed to mark tablet offline")
	}
	if err := r.tabletRepo.TouchLastSeen(ctx, deviceID, lastSeen); err != nil {
		log.Error().Err(err).Str("tabletId", deviceID).Msg("failed to stamp tablet last seen")
	}
}
