package service

import (
	"context"

	"github.com/werkstatthub/signpad-server-go/internal/hub"
)

// ConnectionManager is the transport capability the coordinator needs. The
// hub implements it; the session logic stays independent of how device
// channels are carried.
type ConnectionManager interface {
	IsOnline(deviceID string, role hub.Role) bool
	Send(ctx context.Context, deviceID string, role hub.Role, event hub.Event) bool
	BroadcastToWorkstation(ctx context.Context, workstationID string, event hub.Event) error
	OnDisconnect(fn hub.DisconnectListener)
}

var _ ConnectionManager = (*hub.Hub)(nil)
