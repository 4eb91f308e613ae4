package gateway

import (
	"encoding/json"
	"log"
	"time"

	"warrant-ledgerv1/internal/model"
)

// Broadcaster builds event envelopes and fans them out to every
// connected client. Snapshots are sent whole, never as diffs: the ledger
// is small and bounded by manual entry, and full-state sync removes a
// whole class of merge bugs on the client side.
type Broadcaster struct {
	hub *Hub
}

// NewBroadcaster creates a Broadcaster backed by the given Hub.
func NewBroadcaster(hub *Hub) *Broadcaster {
	return &Broadcaster{hub: hub}
}

// BroadcastSnapshot sends the full ledger snapshot to all clients under
// the given event type, and feeds the snapshot mirror if one is wired.
func (b *Broadcaster) BroadcastSnapshot(event string, snap model.Snapshot) {
	data, err := json.Marshal(snap)
	if err != nil {
		log.Printf("[gateway] marshal snapshot: %v", err)
		return
	}
	b.fanOut(buildEnvelope(event, data, time.Now().UTC()))

	if b.hub.mirror != nil {
		b.hub.mirror.Mirror(snap)
	}
}

// BroadcastEvent sends an arbitrary payload to all clients.
func (b *Broadcaster) BroadcastEvent(event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("[gateway] marshal %s event: %v", event, err)
		return
	}
	b.fanOut(buildEnvelope(event, data, time.Now().UTC()))
}

// fanOut delivers a frame to every client, dropping it for clients whose
// send buffer is full or who have disconnected. A slow reader misses
// intermediate snapshots but the next broadcast makes it whole again.
func (b *Broadcaster) fanOut(frame []byte) {
	b.hub.mu.RLock()
	defer b.hub.mu.RUnlock()
	for client := range b.hub.clients {
		client.trySend(frame)
	}
}

// buildEnvelope hand-crafts the wire envelope
// {"type":"...","data":...,"ts":"..."} without a json.Marshal of the
// already-encoded payload.
func buildEnvelope(event string, data []byte, now time.Time) []byte {
	buf := make([]byte, 0, len(event)+len(data)+64)
	buf = append(buf, `{"type":"`...)
	buf = append(buf, event...)
	buf = append(buf, `","data":`...)
	buf = append(buf, data...)
	buf = append(buf, `,"ts":"`...)
	buf = now.AppendFormat(buf, time.RFC3339Nano)
	buf = append(buf, `"}`...)
	return buf
}
