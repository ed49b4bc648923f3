package features

import (
	"time"
)

// JoinStats reports data-quality counters from an opponent join.
// Drops are expected in small numbers; a spike means the upstream
// schedule data regressed.
type JoinStats struct {
	Input              int `json:"input"`
	Joined             int `json:"joined"`
	DroppedNoMatch     int `json:"dropped_no_match"`
	DroppedAmbiguous   int `json:"dropped_ambiguous"`
	DroppedNoPartition int `json:"dropped_no_partition"`
}

// Dropped returns the total number of excluded rows.
func (s JoinStats) Dropped() int {
	return s.DroppedNoMatch + s.DroppedAmbiguous + s.DroppedNoPartition
}

// joinKey proxies "same physical game" when no shared fixture ID
// exists: the opponent's row for this game names us as its opponent in
// the same month on the same weekday.
type joinKey struct {
	team     string
	opponent string
	month    time.Month
	weekday  time.Weekday
}

func rowKey(r *TeamFeatureRow) joinKey {
	return joinKey{
		team:     r.Team,
		opponent: r.Opponent,
		month:    r.Date.Month(),
		weekday:  r.Date.Weekday(),
	}
}

// JoinOpponents attaches each rival team's contemporaneous feature row
// to every input row. Rows whose opponent match is missing or
// ambiguous are excluded, not resolved arbitrarily; the caller should
// surface the returned stats.
//
// The input may span all teams in any order. Lookup is via a hash
// index, so the join is linear in the number of rows.
func JoinOpponents(rows []TeamFeatureRow) ([]OpponentAugmentedRow, JoinStats) {
	stats := JoinStats{Input: len(rows)}

	index := make(map[joinKey][]*TeamFeatureRow, len(rows))
	haveTeam := make(map[string]bool)
	for i := range rows {
		k := rowKey(&rows[i])
		index[k] = append(index[k], &rows[i])
		haveTeam[rows[i].Team] = true
	}

	out := make([]OpponentAugmentedRow, 0, len(rows))
	for i := range rows {
		row := &rows[i]

		if !haveTeam[row.Opponent] {
			stats.DroppedNoPartition++
			continue
		}

		// The opponent's side of this game has our team as its
		// opponent, same month and weekday.
		want := joinKey{
			team:     row.Opponent,
			opponent: row.Team,
			month:    row.Date.Month(),
			weekday:  row.Date.Weekday(),
		}
		matches := index[want]
		switch len(matches) {
		case 0:
			stats.DroppedNoMatch++
			continue
		case 1:
		default:
			stats.DroppedAmbiguous++
			continue
		}

		opp := matches[0]
		out = append(out, OpponentAugmentedRow{
			TeamFeatureRow: *row,
			Opp: OpponentFeatures{
				Rank:    opp.Rank,
				Streak:  opp.Streak,
				RunDiff: opp.RunDiff,
				Windows: copyWindows(opp.Windows),
			},
		})
		stats.Joined++
	}

	return out, stats
}

func copyWindows(in map[int]WindowStats) map[int]WindowStats {
	out := make(map[int]WindowStats, len(in))
	for w, s := range in {
		out[w] = s
	}
	return out
}
