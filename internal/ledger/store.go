// Package ledger owns the shared warrant ledger: the only mutable state
// in the process. All mutations go through the Store, which persists
// synchronously after every change and hands out deep-copy snapshots.
package ledger

import (
	"log"
	"sync"
	"time"

	"warrant-ledgerv1/internal/hktime"
	"warrant-ledgerv1/internal/model"
)

// Persister writes a full ledger snapshot to durable storage.
type Persister interface {
	Save(snap model.Snapshot) error
}

// Store is the process-wide ledger. A single mutex serializes mutations
// and persistence; reads hand out deep copies so broadcast and
// leaderboard code never sees a partially-mutated structure.
type Store struct {
	mu        sync.Mutex
	warrants  model.Snapshot
	persister Persister

	// OnPersist observes every synchronous save (duration and outcome).
	// Persistence is best-effort: a failed save is reported here but the
	// in-memory ledger stays authoritative.
	OnPersist func(took time.Duration, err error)

	now func() time.Time
}

// NewStore creates a Store seeded with the given snapshot (nil for an
// empty ledger).
func NewStore(initial model.Snapshot, persister Persister) *Store {
	if initial == nil {
		initial = make(model.Snapshot)
	}
	return &Store{
		warrants:  initial,
		persister: persister,
		now:       time.Now,
	}
}

// AddEntry validates and appends a grid entry. Returns the post-mutation
// snapshot and whether the warrant was newly created (a new warrant
// still has no stock info and needs resolution). Validation failures
// leave the store untouched.
func (s *Store) AddEntry(warrantRaw, username, cutRaw, recoveryRaw string) (model.Snapshot, bool, error) {
	num, err := model.NormalizeWarrantNumber(warrantRaw)
	if err != nil {
		return nil, false, err
	}
	cut, recovery, err := model.ParseGrids(cutRaw, recoveryRaw)
	if err != nil {
		return nil, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	w, exists := s.warrants[num]
	if !exists {
		w = &model.Warrant{}
		s.warrants[num] = w
	}

	now := s.now()
	w.Entries = append(w.Entries, model.Entry{
		Username:      username,
		GridsCut:      cut,
		GridsRecovery: recovery,
		Time:          hktime.DisplayTime(now),
		Timestamp:     now.UnixMilli(),
		OffHours:      !hktime.IsTradingHours(now),
	})
	w.SortEntries()

	s.persistLocked()
	return s.warrants.Clone(), !exists, nil
}

// DeleteEntry removes the first entry matching timestamp under the
// given warrant. Emptying a warrant's entry list removes the warrant.
// Deleting a pair that does not exist is a no-op; the store persists
// and returns a snapshot regardless.
func (s *Store) DeleteEntry(warrantNumber string, timestamp int64) model.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	if w, ok := s.warrants[warrantNumber]; ok {
		for i, e := range w.Entries {
			if e.Timestamp == timestamp {
				w.Entries = append(w.Entries[:i], w.Entries[i+1:]...)
				break
			}
		}
		if len(w.Entries) == 0 {
			delete(s.warrants, warrantNumber)
		}
	}

	s.persistLocked()
	return s.warrants.Clone()
}

// ClearAll empties the whole ledger unconditionally. Authorization is
// the transport layer's concern.
func (s *Store) ClearAll() model.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.warrants = make(model.Snapshot)
	s.persistLocked()
	return s.warrants.Clone()
}

// Snapshot returns a deep copy of the current ledger.
func (s *Store) Snapshot() model.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.warrants.Clone()
}

// SetStockInfo writes back a resolved identity. Returns the snapshot and
// true if the identity was applied; a warrant that has been deleted in
// the meantime, or already carries an identity, is left alone.
func (s *Store) SetStockInfo(warrantNumber string, info *model.StockInfo) (model.Snapshot, bool) {
	if info == nil {
		return nil, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.warrants[warrantNumber]
	if !ok || w.StockInfo != nil {
		return nil, false
	}
	w.StockInfo = info
	s.persistLocked()
	return s.warrants.Clone(), true
}

// Unresolved lists warrant numbers that still have no stock info, for
// the startup resolution sweep.
func (s *Store) Unresolved() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var nums []string
	for num, w := range s.warrants {
		if w.StockInfo == nil {
			nums = append(nums, num)
		}
	}
	return nums
}

// WarrantCount returns the number of warrants currently tracked.
func (s *Store) WarrantCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.warrants)
}

// persistLocked saves the current state. Called with s.mu held. A failed
// save is logged and reported but never rolls back the mutation.
func (s *Store) persistLocked() {
	if s.persister == nil {
		return
	}
	start := s.now()
	err := s.persister.Save(s.warrants.Clone())
	if err != nil {
		log.Printf("[ledger] WARNING: persist failed: %v", err)
	}
	if s.OnPersist != nil {
		s.OnPersist(time.Since(start), err)
	}
}
