package gateway

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	maxMsgSize = 4096
)

// Client represents a single WebSocket peer. The send channel is closed
// exactly once on deregistration; mu guards it so a queued initial-state
// or broadcast send racing a disconnect can never hit a closed channel.
type Client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	hub  *Hub

	mu     sync.Mutex
	closed bool
}

func newClient(conn *websocket.Conn, hub *Hub) *Client {
	conn.EnableWriteCompression(true)
	return &Client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, 64),
		hub:  hub,
	}
}

// trySend queues a frame for this client. Dropped without blocking when
// the buffer is full or the client has already been deregistered.
func (c *Client) trySend(frame []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- frame:
	default:
	}
}

// closeSend marks the client gone and closes its send channel, once.
func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// sendInitialState pushes the current ledger to a freshly connected
// client, before any broadcast reaches it.
func (c *Client) sendInitialState() {
	snap := c.hub.store.Snapshot()
	data, err := json.Marshal(snap)
	if err != nil {
		log.Printf("[gateway] marshal initial state: %v", err)
		return
	}
	c.trySend(buildEnvelope(EvInitialData, data, time.Now().UTC()))
}

// sendEvent queues an event for this client only.
func (c *Client) sendEvent(event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	c.trySend(buildEnvelope(event, data, time.Now().UTC()))
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))

			// Coalesce queued frames into one write
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(msg)
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}
			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump reads and dispatches commands until the connection drops.
// Malformed or unknown messages are ignored, never fatal.
func (c *Client) readPump() {
	defer func() {
		c.hub.RemoveClient(c)
		c.conn.Close()
		log.Printf("[gateway] ws client %s disconnected", c.id)
	}()

	c.conn.SetReadLimit(maxMsgSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			break
		}

		var base struct {
			Type string `json:"type"`
		}
		if json.Unmarshal(msg, &base) != nil {
			continue
		}

		switch base.Type {
		case MsgAddWarrant:
			var add AddWarrantMsg
			if json.Unmarshal(msg, &add) != nil {
				continue
			}
			c.hub.handleAddWarrant(c, add)

		case MsgDelete:
			var del DeleteEntryMsg
			if json.Unmarshal(msg, &del) != nil {
				continue
			}
			c.hub.handleDeleteEntry(del)

		case MsgClearAll:
			var clr ClearAllMsg
			if json.Unmarshal(msg, &clr) != nil {
				continue
			}
			c.hub.handleClearAll(c, clr)

		default:
			// unknown command, ignore
		}
	}
}
