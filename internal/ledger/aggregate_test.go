package ledger

import (
	"testing"

	"warrant-ledgerv1/internal/model"
)

func entry(user string, cut, recovery int, ts int64) model.Entry {
	return model.Entry{Username: user, GridsCut: cut, GridsRecovery: recovery, Timestamp: ts, Time: "t"}
}

func TestNetGrids_MaxPerUser(t *testing.T) {
	// u1 nets 5, u2 nets 2 → displayed total is the worst user, 5
	entries := []model.Entry{
		entry("u1", 5, 0, 1),
		entry("u2", 3, 1, 2),
	}
	if got := NetGrids(entries); got != 5 {
		t.Errorf("NetGrids = %d, want 5", got)
	}
}

func TestNetGrids_NeverNegative(t *testing.T) {
	entries := []model.Entry{
		entry("u1", 1, 5, 1),
		entry("u2", 0, 3, 2),
	}
	if got := NetGrids(entries); got != 0 {
		t.Errorf("NetGrids = %d, want 0 (floored)", got)
	}
}

func TestNetGrids_UsersNotAdditive(t *testing.T) {
	entries := []model.Entry{
		entry("u1", 4, 0, 1),
		entry("u2", 4, 0, 2),
	}
	if got := NetGrids(entries); got != 4 {
		t.Errorf("NetGrids = %d, want 4 (per-user max, not sum)", got)
	}
}

func TestNetGrids_SkipsZeroTimestamp(t *testing.T) {
	entries := []model.Entry{
		entry("u1", 9, 0, 0), // malformed, no timestamp
		entry("u1", 2, 0, 1),
	}
	if got := NetGrids(entries); got != 2 {
		t.Errorf("NetGrids = %d, want 2", got)
	}
}

func TestLeaderboard_SortedNonIncreasing(t *testing.T) {
	snap := model.Snapshot{
		"11111": &model.Warrant{Entries: []model.Entry{entry("u1", 2, 0, 1)}},
		"22222": &model.Warrant{Entries: []model.Entry{entry("u1", 7, 0, 1)}},
		"33333": &model.Warrant{Entries: []model.Entry{entry("u1", 4, 0, 1)}},
	}

	rows := Leaderboard(snap)
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	for i := 1; i < len(rows); i++ {
		if rows[i].TotalGrids > rows[i-1].TotalGrids {
			t.Errorf("leaderboard not sorted non-increasing at %d: %+v", i, rows)
		}
	}
	if rows[0].WarrantNumber != "22222" {
		t.Errorf("top row = %s, want 22222", rows[0].WarrantNumber)
	}
}

func TestLeaderboard_IdentityFields(t *testing.T) {
	snap := model.Snapshot{
		"24413": &model.Warrant{
			StockInfo: &model.StockInfo{Code: "00700", Name: "騰訊", WarrantProductName: "摩利騰訊認購"},
			Entries:   []model.Entry{entry("u1", 5, 0, 1), entry("u2", 3, 1, 2)},
		},
		"23296": &model.Warrant{
			Entries: []model.Entry{entry("u1", 1, 0, 1)},
		},
	}

	rows := Leaderboard(snap)
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}

	top := rows[0]
	if top.WarrantNumber != "24413" || top.TotalGrids != 5 || top.EntryCount != 2 {
		t.Errorf("unexpected top row: %+v", top)
	}
	if top.StockCode != "00700" || top.StockName != "騰訊" || top.WarrantProductName != "摩利騰訊認購" {
		t.Errorf("identity fields not surfaced: %+v", top)
	}

	unresolved := rows[1]
	if unresolved.StockCode != "N/A" || unresolved.StockName != "N/A" {
		t.Errorf("unresolved warrant should show N/A, got %+v", unresolved)
	}
}

func TestLeaderboard_EmptySnapshot(t *testing.T) {
	if rows := Leaderboard(model.Snapshot{}); len(rows) != 0 {
		t.Errorf("empty snapshot should yield no rows, got %d", len(rows))
	}
}

func TestLeaderboard_AllRecoveredStillListed(t *testing.T) {
	// net 0 but entries exist → still a row, total 0
	snap := model.Snapshot{
		"24413": &model.Warrant{Entries: []model.Entry{
			entry("u1", 2, 0, 1),
			entry("u1", 0, 2, 2),
		}},
	}
	rows := Leaderboard(snap)
	if len(rows) != 1 || rows[0].TotalGrids != 0 || rows[0].EntryCount != 2 {
		t.Errorf("unexpected rows: %+v", rows)
	}
}
