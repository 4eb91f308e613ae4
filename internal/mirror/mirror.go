// Package mirror pushes ledger snapshots to Redis as a best-effort side
// channel for external consumers. The in-process ledger stays the source
// of truth; a failed mirror write is logged and forgotten.
package mirror

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"warrant-ledgerv1/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

const (
	snapshotKey    = "ledger:snapshot"
	updatesChannel = "ledger:updates"
	writeTimeout   = 2 * time.Second
)

// Mirror writes each snapshot under a fixed key and publishes it on a
// pub/sub channel.
type Mirror struct {
	rdb *goredis.Client
}

// New connects to Redis and verifies the connection. Returns nil (and
// no error) when addr is empty: mirroring is optional.
func New(ctx context.Context, addr, password string) (*Mirror, error) {
	if addr == "" {
		return nil, nil
	}
	rdb := goredis.NewClient(&goredis.Options{Addr: addr, Password: password})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	log.Printf("[mirror] redis connected at %s", addr)
	return &Mirror{rdb: rdb}, nil
}

// Mirror stores and publishes the snapshot, fire-and-forget.
func (m *Mirror) Mirror(snap model.Snapshot) {
	data, err := json.Marshal(snap)
	if err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	if err := m.rdb.Set(ctx, snapshotKey, data, 0).Err(); err != nil {
		log.Printf("[mirror] WARNING: snapshot write failed: %v", err)
		return
	}
	if err := m.rdb.Publish(ctx, updatesChannel, data).Err(); err != nil {
		log.Printf("[mirror] WARNING: publish failed: %v", err)
	}
}

// Close releases the Redis connection.
func (m *Mirror) Close() error {
	return m.rdb.Close()
}
