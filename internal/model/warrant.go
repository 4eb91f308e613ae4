package model

import (
	"encoding/json"
	"fmt"
	"sort"
)

// StockInfo is the resolved identity of a warrant's underlying stock.
// Code is the normalized (5-digit padded) HK stock code.
type StockInfo struct {
	Code               string `json:"code"`
	Name               string `json:"name"`
	WarrantProductName string `json:"warrantProductName,omitempty"`
}

// Entry is a single grid event logged by a user against a warrant.
// Timestamp is epoch milliseconds and doubles as the entry identifier
// for deletion; Time is the pre-rendered display string. OffHours marks
// entries logged outside the HKEX trading session.
type Entry struct {
	Username      string `json:"username"`
	GridsCut      int    `json:"gridsCut"`
	GridsRecovery int    `json:"gridsRecovery"`
	Time          string `json:"time"`
	Timestamp     int64  `json:"timestamp"`
	OffHours      bool   `json:"offHours,omitempty"`
}

// Warrant holds everything tracked for one warrant number: the resolved
// underlying stock (nil until resolution succeeds) and the entry log,
// sorted descending by timestamp. A Warrant with no entries is removed
// from the ledger rather than kept as a tombstone.
type Warrant struct {
	StockInfo *StockInfo `json:"stockInfo"`
	Entries   []Entry    `json:"entries"`
}

// Clone returns a deep copy of the warrant.
func (w *Warrant) Clone() *Warrant {
	cp := &Warrant{
		Entries: make([]Entry, len(w.Entries)),
	}
	copy(cp.Entries, w.Entries)
	if w.StockInfo != nil {
		info := *w.StockInfo
		cp.StockInfo = &info
	}
	return cp
}

// SortEntries orders the warrant's entries newest-first.
func (w *Warrant) SortEntries() {
	sort.SliceStable(w.Entries, func(i, j int) bool {
		return w.Entries[i].Timestamp > w.Entries[j].Timestamp
	})
}

// Snapshot is a point-in-time copy of the whole ledger, keyed by warrant
// number. Observers receive Snapshots, never references into the store.
type Snapshot map[string]*Warrant

// Clone returns a deep copy of the snapshot.
func (s Snapshot) Clone() Snapshot {
	cp := make(Snapshot, len(s))
	for num, w := range s {
		cp[num] = w.Clone()
	}
	return cp
}

// DecodeSnapshot parses a serialized ledger, accepting both the current
// shape (warrant number → {stockInfo, entries}) and the legacy shape
// (warrant number → bare entry array). Legacy values are upgraded in
// place to {stockInfo: null, entries: ...}. Entries are re-sorted
// newest-first and empty warrants are dropped.
func DecodeSnapshot(data []byte) (Snapshot, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode ledger: %w", err)
	}

	snap := make(Snapshot, len(raw))
	for num, val := range raw {
		var entries []Entry
		if err := json.Unmarshal(val, &entries); err == nil {
			// Legacy shape: bare array of entries.
			w := &Warrant{Entries: entries}
			w.SortEntries()
			if len(w.Entries) > 0 {
				snap[num] = w
			}
			continue
		}

		var w Warrant
		if err := json.Unmarshal(val, &w); err != nil {
			return nil, fmt.Errorf("decode ledger: warrant %s: %w", num, err)
		}
		w.SortEntries()
		if len(w.Entries) > 0 {
			snap[num] = &w
		}
	}
	return snap, nil
}
