// Package sqlite persists ledger snapshots as JSON rows in a SQLite
// database. Every mutation writes a full snapshot; old rows are pruned
// so the table stays bounded. The newest row is the load-on-start state.
package sqlite

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"

	"warrant-ledgerv1/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

const keepSnapshots = 10

// Store is a single-writer SQLite-backed snapshot store.
type Store struct {
	db *sql.DB
}

// DB returns the underlying sql.DB for health checks.
func (s *Store) DB() *sql.DB { return s.db }

// New opens (or creates) the database at dbPath with WAL mode and the
// snapshot schema.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Single-writer: the ledger serializes mutations anyway
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS ledger_snapshots (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			data       TEXT    NOT NULL,
			created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
		);
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[sqlite] opened database at %s", dbPath)
	return &Store{db: db}, nil
}

// Save writes a full ledger snapshot as a new row and prunes old rows.
func (s *Store) Save(snap model.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	if _, err := s.db.Exec(`INSERT INTO ledger_snapshots (data) VALUES (?)`, string(data)); err != nil {
		return fmt.Errorf("sqlite insert snapshot: %w", err)
	}

	_, err = s.db.Exec(`DELETE FROM ledger_snapshots WHERE id NOT IN (SELECT id FROM ledger_snapshots ORDER BY id DESC LIMIT ?)`, keepSnapshots)
	if err != nil {
		log.Printf("[sqlite] prune snapshots warning: %v", err)
	}
	return nil
}

// LoadLatest restores the most recent snapshot. Returns nil (no error)
// when the table is empty. Legacy-shaped warrants inside the stored JSON
// are upgraded by the decoder.
func (s *Store) LoadLatest() (model.Snapshot, error) {
	var data string
	err := s.db.QueryRow(`SELECT data FROM ledger_snapshots ORDER BY id DESC LIMIT 1`).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("sqlite read snapshot: %w", err)
	}
	return model.DecodeSnapshot([]byte(data))
}

// ImportLegacy reads a data.json file from the pre-SQLite deployment and
// returns its snapshot, upgrading bare-array warrants on the way. The
// source file is never modified. A missing file yields an empty result.
func ImportLegacy(path string) (model.Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read legacy ledger: %w", err)
	}

	snap, err := model.DecodeSnapshot(data)
	if err != nil {
		return nil, err
	}
	log.Printf("[sqlite] imported legacy ledger from %s (%d warrants)", path, len(snap))
	return snap, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
