// Package features builds leakage-free recent-form statistics from
// chronological game logs and joins opponent features onto each row.
//
// Every derived value on a row is computed from games strictly before
// that row, so a feature table built here can be fed to a model without
// look-ahead bias.
package features

import (
	"fmt"

	"github.com/quantpond/mlbedge/pkg/gamelog"
)

// DefaultWindows is the standard rolling-window set.
var DefaultWindows = []int{3, 5, 10}

// WindowStats holds the moving statistics for one window size.
type WindowStats struct {
	RunsForMA       float64 `json:"runs_for_ma"`
	RunsAgainstMA   float64 `json:"runs_against_ma"`
	RunDiffMA       float64 `json:"run_diff_ma"`
	RunsForEWMA     float64 `json:"runs_for_ewma"`
	RunsAgainstEWMA float64 `json:"runs_against_ewma"`
	RunDiffEWMA     float64 `json:"run_diff_ewma"`
}

// TeamFeatureRow is a game row augmented with derived form features.
// Streak and all window statistics describe the team's form entering
// the game, excluding the game's own result.
type TeamFeatureRow struct {
	gamelog.GameRow

	RunDiff int                 `json:"run_diff"`
	Streak  int                 `json:"streak"`
	Windows map[int]WindowStats `json:"windows"`
}

// OpponentFeatures is the copy of a rival's feature row attached to an
// augmented row. Identity and result columns are deliberately absent.
type OpponentFeatures struct {
	Rank    int                 `json:"rank"`
	Streak  int                 `json:"streak"`
	RunDiff int                 `json:"run_diff"`
	Windows map[int]WindowStats `json:"windows"`
}

// OpponentAugmentedRow is a TeamFeatureRow merged with the opposing
// team's contemporaneous features for the same physical game.
type OpponentAugmentedRow struct {
	TeamFeatureRow
	Opp OpponentFeatures `json:"opp"`
}

// ConfigError indicates invalid feature-builder parameters. It is
// fatal and never retried.
type ConfigError struct {
	Msg string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("feature config: %s", e.Msg)
}

// Carry is the per-team streak state carried across incremental runs.
// Streak is the value entering the last processed game and LastResult
// is that game's outcome. A zero Carry starts a fresh period.
type Carry struct {
	Streak     int
	LastResult gamelog.Result
	Valid      bool
}
