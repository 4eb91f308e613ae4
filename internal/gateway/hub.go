// Package gateway is the transport boundary: it accepts ledger commands
// from WebSocket clients, fans full-state snapshots back out to every
// connected client, and serves the read-only REST surface.
package gateway

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"warrant-ledgerv1/internal/auth"
	"warrant-ledgerv1/internal/ledger"
	"warrant-ledgerv1/internal/metrics"
	"warrant-ledgerv1/internal/model"
	"warrant-ledgerv1/internal/notification"
	"warrant-ledgerv1/internal/resolve"

	"github.com/gorilla/websocket"
)

// SnapshotMirror receives every broadcast snapshot (best-effort side
// channel, e.g. a Redis mirror). May be nil.
type SnapshotMirror interface {
	Mirror(snap model.Snapshot)
}

// Hub manages WebSocket clients and routes ledger commands. It owns no
// ledger state itself; every mutation goes through the Store and every
// outbound frame carries a full snapshot.
type Hub struct {
	store    *ledger.Store
	resolver *resolve.Pipeline
	creds    *auth.Credentials
	mirror   SnapshotMirror
	notifier notification.Notifier
	metrics  *metrics.Metrics

	mu      sync.RWMutex
	clients map[*Client]bool

	Broadcaster *Broadcaster
}

// NewHub creates a Hub. mirror, notifier, and m may be nil.
func NewHub(store *ledger.Store, resolver *resolve.Pipeline, creds *auth.Credentials, mirror SnapshotMirror, notifier notification.Notifier, m *metrics.Metrics) *Hub {
	h := &Hub{
		store:    store,
		resolver: resolver,
		creds:    creds,
		mirror:   mirror,
		notifier: notifier,
		metrics:  m,
		clients:  make(map[*Client]bool),
	}
	h.Broadcaster = NewBroadcaster(h)
	return h
}

// HandleWSRequest registers an upgraded connection and starts its pumps.
// The new client gets one unsolicited initial snapshot before any
// mutation-triggered broadcast.
func (h *Hub) HandleWSRequest(conn *websocket.Conn) {
	client := newClient(conn, h)

	h.mu.Lock()
	h.clients[client] = true
	count := len(h.clients)
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.ConnectedClients.Set(float64(count))
	}
	log.Printf("[gateway] ws client %s connected (%d total)", client.id, count)

	go client.sendInitialState()
	go client.writePump()
	go client.readPump()
}

// RemoveClient deregisters a client and closes its send channel.
func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	delete(h.clients, c)
	count := len(h.clients)
	h.mu.Unlock()
	c.closeSend()

	if h.metrics != nil {
		h.metrics.ConnectedClients.Set(float64(count))
	}
}

// ClientCount returns the number of connected WS clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// handleAddWarrant runs the add-entry command for one client.
func (h *Hub) handleAddWarrant(c *Client, msg AddWarrantMsg) {
	snap, isNew, err := h.store.AddEntry(
		msg.WarrantNumber,
		msg.Username,
		numberString(msg.GridsCut),
		numberString(msg.GridsRecovery),
	)
	if err != nil {
		h.sendValidationError(c, err)
		return
	}

	if h.metrics != nil {
		h.metrics.EntriesAdded.Inc()
		h.metrics.WarrantsTracked.Set(float64(len(snap)))
	}
	h.Broadcaster.BroadcastSnapshot(EvDataUpdated, snap)

	// A brand-new warrant needs its underlying stock resolved. The
	// external fetch can take seconds; it must not block this client's
	// command loop or commands for other warrants, so it runs detached
	// and triggers its own follow-up broadcast.
	if isNew {
		num, _ := model.NormalizeWarrantNumber(msg.WarrantNumber)
		go h.resolveAndStore(num)
	}
}

// resolveAndStore resolves a warrant in the background and broadcasts
// the updated ledger if the identity was written back. Failures are
// silent at the protocol level; the warrant keeps a nil identity until
// the next startup sweep.
func (h *Hub) resolveAndStore(warrantNumber string) {
	start := time.Now()
	info, outcome := h.resolver.Resolve(context.Background(), warrantNumber)
	if h.metrics != nil {
		h.metrics.Resolutions.WithLabelValues(outcome).Inc()
		h.metrics.ResolutionDur.Observe(time.Since(start).Seconds())
	}
	if info == nil {
		return
	}
	if snap, ok := h.store.SetStockInfo(warrantNumber, info); ok {
		h.Broadcaster.BroadcastSnapshot(EvDataUpdated, snap)
	}
}

// handleDeleteEntry runs the delete-entry command. Deletion is
// idempotent and always broadcasts.
func (h *Hub) handleDeleteEntry(msg DeleteEntryMsg) {
	snap := h.store.DeleteEntry(msg.WarrantNumber, msg.Timestamp)
	if h.metrics != nil {
		h.metrics.EntriesDeleted.Inc()
		h.metrics.WarrantsTracked.Set(float64(len(snap)))
	}
	h.Broadcaster.BroadcastSnapshot(EvDataUpdated, snap)
}

// handleClearAll wipes the ledger. When an admin TOTP secret is
// configured the command must carry a valid code; otherwise who may
// clear is the caller's concern.
func (h *Hub) handleClearAll(c *Client, msg ClearAllMsg) {
	if h.creds != nil && !h.creds.VerifyAdminAction(msg.TOTP) {
		c.sendEvent(EvError, ErrorEvent{Reason: "forbidden", Message: "清除數據需要有效的管理員驗證碼"})
		return
	}

	log.Printf("[gateway] clear-all requested by %q", msg.Username)
	snap := h.store.ClearAll()
	if h.metrics != nil {
		h.metrics.ClearAlls.Inc()
		h.metrics.WarrantsTracked.Set(0)
	}

	h.Broadcaster.BroadcastSnapshot(EvDataUpdated, snap)
	h.Broadcaster.BroadcastEvent(EvNotification, NotificationEvent{
		Level:   "warning",
		Message: "所有數據已被清除！",
	})

	if h.notifier != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := h.notifier.Send(ctx, notification.Alert{
			Level:   notification.AlertWarning,
			Title:   "ledger cleared",
			Message: "all warrant data cleared by " + msg.Username,
		}); err != nil {
			log.Printf("[gateway] clear-all alert failed: %v", err)
		}
	}
}

// sendValidationError maps a validation failure to its user-facing
// event, delivered to the originating client only.
func (h *Hub) sendValidationError(c *Client, err error) {
	ev := ErrorEvent{Reason: err.Error()}
	switch {
	case errors.Is(err, model.ErrInvalidCode):
		ev.Message = "窩輪號碼格式錯誤"
	case errors.Is(err, model.ErrInvalidGrids):
		ev.Message = "格數必須為非負整數"
	case errors.Is(err, model.ErrZeroGrids):
		ev.Message = "至少需要輸入斬了或回複的格數"
	default:
		ev.Message = err.Error()
	}

	if h.metrics != nil {
		h.metrics.ValidationFailures.WithLabelValues(ev.Reason).Inc()
	}
	c.sendEvent(EvError, ev)
}
