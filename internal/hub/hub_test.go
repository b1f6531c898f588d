package hub

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStatusSink records the connectivity transitions the hub reports.
type fakeStatusSink struct {
	mu      sync.Mutex
	online  []string
	offline []string
}

func (f *fakeStatusSink) MarkOnline(ctx context.Context, deviceID string, role Role) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.online = append(f.online, deviceID)
}

func (f *fakeStatusSink) MarkOffline(ctx context.Context, deviceID string, role Role, lastSeen time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.offline = append(f.offline, deviceID)
}

func (f *fakeStatusSink) offlineCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.offline)
}

// Redis is nil throughout: the hub runs in single-instance mode and delivers
// workstation events locally.
func newTestHub() (*Hub, *fakeStatusSink) {
	sink := &fakeStatusSink{}
	return New(nil, sink), sink
}

func TestHub_Register(t *testing.T) {
	ctx := context.Background()

	t.Run("admits a connection and marks the device online", func(t *testing.T) {
		h, sink := newTestHub()
		defer h.Close()

		client := h.Register(ctx, "tab-1", "company-7", RoleTablet)
		require.NotNil(t, client)
		assert.True(t, h.IsOnline("tab-1", RoleTablet))
		assert.Equal(t, []string{"tab-1"}, sink.online)
		assert.Equal(t, 1, h.ActiveTablets())
		assert.Equal(t, 0, h.ActiveWorkstations())
	})

	t.Run("roles are separate namespaces", func(t *testing.T) {
		h, _ := newTestHub()
		defer h.Close()

		tablet := h.Register(ctx, "dev-1", "company-7", RoleTablet)
		h.Register(ctx, "dev-1", "company-9", RoleWorkstation)

		select {
		case <-tablet.Done:
			t.Fatal("a workstation stream must not displace the tablet connection")
		default:
		}
		assert.Equal(t, 2, h.ActiveConnections())

		// Tablet traffic keeps flowing to the tablet, not the workstation.
		event, err := NewEvent("signature_request", map[string]string{"sessionId": "sess-1"})
		require.NoError(t, err)
		require.True(t, h.Send(ctx, "dev-1", RoleTablet, event))

		got := <-tablet.Events
		assert.Equal(t, "signature_request", got.Type)
	})

	t.Run("reconnect replaces the stale connection without an offline transition", func(t *testing.T) {
		h, sink := newTestHub()
		defer h.Close()

		first := h.Register(ctx, "tab-1", "company-7", RoleTablet)
		second := h.Register(ctx, "tab-1", "company-7", RoleTablet)

		select {
		case <-first.Done:
		default:
			t.Fatal("stale connection should be closed")
		}
		assert.Same(t, second, h.Get("tab-1", RoleTablet))
		assert.Equal(t, 1, h.ActiveConnections())
		assert.Equal(t, 0, sink.offlineCount(), "a replace is not a disconnect")
	})
}

func TestHub_Unregister(t *testing.T) {
	ctx := context.Background()

	t.Run("active connection runs the offline path and the listener", func(t *testing.T) {
		h, sink := newTestHub()
		defer h.Close()

		var gotDevice string
		var gotReason string
		h.OnDisconnect(func(deviceID string, role Role, reason string) {
			gotDevice = deviceID
			gotReason = reason
		})

		client := h.Register(ctx, "tab-1", "company-7", RoleTablet)
		h.Unregister(ctx, client, "stream closed")

		assert.False(t, h.IsOnline("tab-1", RoleTablet))
		assert.Equal(t, []string{"tab-1"}, sink.offline)
		assert.Equal(t, "tab-1", gotDevice)
		assert.Equal(t, "stream closed", gotReason)
	})

	t.Run("replaced connection unregistering is a no-op", func(t *testing.T) {
		h, sink := newTestHub()
		defer h.Close()

		stale := h.Register(ctx, "tab-1", "company-7", RoleTablet)
		h.Register(ctx, "tab-1", "company-7", RoleTablet)

		h.Unregister(ctx, stale, "stream closed")

		assert.True(t, h.IsOnline("tab-1", RoleTablet), "the newer connection stays registered")
		assert.Equal(t, 0, sink.offlineCount())
	})
}

func TestHub_Send(t *testing.T) {
	ctx := context.Background()

	t.Run("delivers to the device buffer", func(t *testing.T) {
		h, _ := newTestHub()
		defer h.Close()

		client := h.Register(ctx, "tab-1", "company-7", RoleTablet)
		event, err := NewEvent("signature_request", map[string]string{"sessionId": "sess-1"})
		require.NoError(t, err)

		require.True(t, h.Send(ctx, "tab-1", RoleTablet, event))

		got := <-client.Events
		assert.Equal(t, "signature_request", got.Type)
	})

	t.Run("offline device reports false", func(t *testing.T) {
		h, _ := newTestHub()
		defer h.Close()

		assert.False(t, h.Send(ctx, "ghost", RoleTablet, Event{Type: "ping"}))
	})

	t.Run("closed connection reports false", func(t *testing.T) {
		h, _ := newTestHub()
		defer h.Close()

		client := h.Register(ctx, "tab-1", "company-7", RoleTablet)
		h.Unregister(ctx, client, "stream closed")

		assert.False(t, h.Send(ctx, "tab-1", RoleTablet, Event{Type: "ping"}))
	})
}

func TestHub_BroadcastToWorkstation(t *testing.T) {
	ctx := context.Background()

	t.Run("delivers locally without redis", func(t *testing.T) {
		h, _ := newTestHub()
		defer h.Close()

		client := h.Register(ctx, "ws-1", "company-7", RoleWorkstation)
		event, err := NewEvent("session_completed", map[string]string{"sessionId": "sess-1"})
		require.NoError(t, err)

		require.NoError(t, h.BroadcastToWorkstation(ctx, "ws-1", event))

		got := <-client.Events
		assert.Equal(t, "session_completed", got.Type)
	})

	t.Run("no stream for the workstation drops the event without error", func(t *testing.T) {
		h, _ := newTestHub()
		defer h.Close()

		assert.NoError(t, h.BroadcastToWorkstation(ctx, "ws-ghost", Event{Type: "session_completed"}))
	})
}

func TestHub_CloseIdle(t *testing.T) {
	ctx := context.Background()

	t.Run("evicts connections beyond the grace window", func(t *testing.T) {
		h, sink := newTestHub()
		defer h.Close()

		idle := h.Register(ctx, "tab-idle", "company-7", RoleTablet)
		h.Register(ctx, "tab-live", "company-7", RoleTablet)

		idle.mu.Lock()
		idle.lastActive = time.Now().Add(-5 * time.Minute)
		idle.mu.Unlock()

		assert.Equal(t, 1, h.CloseIdle(ctx, 90*time.Second))
		assert.False(t, h.IsOnline("tab-idle", RoleTablet))
		assert.True(t, h.IsOnline("tab-live", RoleTablet))
		assert.Equal(t, []string{"tab-idle"}, sink.offline)
	})

	t.Run("a touch defers eviction", func(t *testing.T) {
		h, _ := newTestHub()
		defer h.Close()

		client := h.Register(ctx, "tab-1", "company-7", RoleTablet)
		client.mu.Lock()
		client.lastActive = time.Now().Add(-5 * time.Minute)
		client.mu.Unlock()

		h.Touch("tab-1", RoleTablet)

		assert.Equal(t, 0, h.CloseIdle(ctx, 90*time.Second))
		assert.True(t, h.IsOnline("tab-1", RoleTablet))
	})
}

func TestHub_Close(t *testing.T) {
	ctx := context.Background()

	h, _ := newTestHub()
	client := h.Register(ctx, "tab-1", "company-7", RoleTablet)

	h.Close()

	select {
	case <-client.Done:
	default:
		t.Fatal("Close should close every connection")
	}
	assert.Equal(t, 0, h.ActiveConnections())
}
