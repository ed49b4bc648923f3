package matchup

import (
	"fmt"
	"math"
)

// SchemaVersion identifies the feature column contract. Bump it
// whenever column order or membership changes; the model is trained
// against a specific version.
const SchemaVersion = 1

// Schema is the fixed, ordered column contract the probability model
// expects. Column names follow the upstream stat sources; Opp_
// prefixes mark the away side under the home-oriented layout.
type Schema struct {
	Version int
	Columns []string
}

var baseFormColumns = []string{
	"Rank",
	"R_MA3", "R_MA5", "R_MA10",
	"RA_MA3", "RA_MA5", "RA_MA10",
	"RunDiff_MA3", "RunDiff_MA5", "RunDiff_MA10",
	"R_EWMA3", "R_EWMA5", "R_EWMA10",
	"RA_EWMA3", "RA_EWMA5", "RA_EWMA10",
	"RunDiff_EWMA3", "RunDiff_EWMA5", "RunDiff_EWMA10",
}

var pitcherColumns = []string{
	"SP_ERA", "SP_WAR", "SP_K9", "SP_BB9",
	"SP_WHIP", "SP_IP", "SP_HardHit%",
}

var snapshotStatColumns = []string{
	"B_HR", "B_RBI", "B_H", "B_wRC+", "B_wOBA",
	"B_SLG+", "B_OBP+", "B_AVG+", "B_ISO+",
	"B_HRFB%+", "B_BB%+", "B_K%+", "B_Spd",
	"B_EV", "B_LA", "B_Barrel%", "B_HardHit%",
	"B_Pull%+", "B_Oppo%+", "B_Cent%+", "B_WPA",
	"B_pLI", "B_Clutch", "B_WAR", "B_RAR",
	"B_BaseRunning", "B_Offense", "B_Defense",
	"B_Fielding", "B_wBsR", "B_Batting",
	"B_Positional", "B_wLeague",
	"RP_WPA", "RP_pLI", "RP_Clutch", "RP_MD",
	"RP_WAR", "RP_FIP", "RP_ERA", "RP_RAR",
}

// DefaultSchema returns the version-1 column contract: global fixture
// columns, then home-side form/pitcher/snapshot columns, then the same
// blocks Opp_-prefixed for the away side.
func DefaultSchema() Schema {
	cols := []string{"Home_Away", "Streak", "Opp_Streak", "D/N"}
	cols = append(cols, baseFormColumns...)
	cols = append(cols, pitcherColumns...)
	cols = append(cols, snapshotStatColumns...)
	for _, block := range [][]string{baseFormColumns, pitcherColumns, snapshotStatColumns} {
		for _, c := range block {
			cols = append(cols, "Opp_"+c)
		}
	}
	return Schema{Version: SchemaVersion, Columns: cols}
}

// FeatureVector is one assembled fixture side in schema order.
type FeatureVector struct {
	Event  Event              `json:"event"`
	Team   string             `json:"team"`
	Values map[string]float64 `json:"values"`
}

// Ordered projects the vector into the schema's column order. Columns
// absent from the vector come back as the unknown sentinel.
func (s Schema) Ordered(v FeatureVector) []float64 {
	out := make([]float64, len(s.Columns))
	for i, col := range s.Columns {
		val, ok := v.Values[col]
		if !ok {
			val = UnknownValue
		}
		out[i] = val
	}
	return out
}

// Validate checks a vector covers the schema and reports columns that
// are entirely missing (unknown-sentinel fills are fine).
func (s Schema) Validate(v FeatureVector) error {
	missing := 0
	for _, col := range s.Columns {
		if _, ok := v.Values[col]; !ok {
			missing++
		}
	}
	if missing == len(s.Columns) {
		return fmt.Errorf("vector for %s has no schema columns", v.Team)
	}
	return nil
}

// IsUnknown reports whether a value is the missing-stat sentinel.
func IsUnknown(v float64) bool { return math.IsNaN(v) }
