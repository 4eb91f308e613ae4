package ledger

import (
	"sort"

	"warrant-ledgerv1/internal/model"
)

// LeaderboardRow is one aggregated warrant in the leaderboard response.
type LeaderboardRow struct {
	WarrantNumber      string `json:"warrantNumber"`
	TotalGrids         int    `json:"totalGrids"`
	EntryCount         int    `json:"entryCount"`
	StockCode          string `json:"stockCode"`
	StockName          string `json:"stockName"`
	WarrantProductName string `json:"warrantProductName"`
}

// NetGrids computes the displayed total for a warrant: the worst single
// user's net exposure (sum of cut minus recovery per user, maximum across
// users), floored at zero. Different users' grids on the same warrant are
// not additive.
func NetGrids(entries []model.Entry) int {
	userNets := make(map[string]int)
	for _, e := range entries {
		if e.Timestamp == 0 {
			continue
		}
		userNets[e.Username] += e.GridsCut - e.GridsRecovery
	}

	max := 0
	for _, net := range userNets {
		if net > max {
			max = net
		}
	}
	return max
}

// Leaderboard builds the aggregated view over a snapshot: one row per
// warrant with entries (or positive net), sorted non-increasing by
// TotalGrids. Ties keep encounter order; warrants are visited in key
// order so the output is deterministic.
func Leaderboard(snap model.Snapshot) []LeaderboardRow {
	nums := make([]string, 0, len(snap))
	for num := range snap {
		nums = append(nums, num)
	}
	sort.Strings(nums)

	rows := make([]LeaderboardRow, 0, len(nums))
	for _, num := range nums {
		w := snap[num]
		total := NetGrids(w.Entries)
		if total <= 0 && len(w.Entries) == 0 {
			continue
		}

		row := LeaderboardRow{
			WarrantNumber: num,
			TotalGrids:    total,
			EntryCount:    len(w.Entries),
			StockCode:     "N/A",
			StockName:     "N/A",
		}
		if w.StockInfo != nil {
			if w.StockInfo.Code != "" {
				row.StockCode = w.StockInfo.Code
			}
			if w.StockInfo.Name != "" {
				row.StockName = w.StockInfo.Name
			}
			row.WarrantProductName = w.StockInfo.WarrantProductName
		}
		rows = append(rows, row)
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].TotalGrids > rows[j].TotalGrids
	})
	return rows
}
