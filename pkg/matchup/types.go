// Package matchup assembles model-ready feature vectors for upcoming
// fixtures from historical form, pitcher stats, and as-of team
// snapshots.
package matchup

import (
	"context"
	"fmt"
	"math"
	"time"
)

// UnknownValue is the sentinel for a missing optional stat. It is NaN,
// not zero, so the model can tell "missing" from "true zero".
var UnknownValue = math.NaN()

// Event is an unplayed fixture. It is created by the slate provider,
// consumed once by the assembler, and discarded.
type Event struct {
	Date       time.Time `json:"date"`
	HomeTeam   string    `json:"home_team"`
	AwayTeam   string    `json:"away_team"`
	Night      bool      `json:"night"`
	PreviewURL string    `json:"preview_url,omitempty"`
}

// NoHistoryError reports that a team has no recorded game before the
// fixture date. Fatal for that fixture only; callers skip it and
// continue with the rest of the slate.
type NoHistoryError struct {
	Team   string
	Before time.Time
}

func (e *NoHistoryError) Error() string {
	return fmt.Sprintf("no game history for %s before %s", e.Team, e.Before.Format("2006-01-02"))
}

// PitcherStats is one starting pitcher's aggregate line as of a date.
// Lookup failures upstream arrive as NaN-filled stats, never as errors.
type PitcherStats struct {
	Name    string  `json:"name"`
	ERA     float64 `json:"era"`
	WAR     float64 `json:"war"`
	KPer9   float64 `json:"k_per_9"`
	BBPer9  float64 `json:"bb_per_9"`
	WHIP    float64 `json:"whip"`
	HardHit float64 `json:"hard_hit_pct"`
	Innings float64 `json:"innings_pitched"`
}

// UnknownPitcher returns NaN-filled stats for an unresolved pitcher.
func UnknownPitcher(name string) PitcherStats {
	return PitcherStats{
		Name:    name,
		ERA:     UnknownValue,
		WAR:     UnknownValue,
		KPer9:   UnknownValue,
		BBPer9:  UnknownValue,
		WHIP:    UnknownValue,
		HardHit: UnknownValue,
		Innings: UnknownValue,
	}
}

// columns maps pitcher stats onto schema column names under a prefix.
func (p PitcherStats) columns(prefix string) map[string]float64 {
	return map[string]float64{
		prefix + "SP_ERA":      p.ERA,
		prefix + "SP_WAR":      p.WAR,
		prefix + "SP_K9":       p.KPer9,
		prefix + "SP_BB9":      p.BBPer9,
		prefix + "SP_WHIP":     p.WHIP,
		prefix + "SP_HardHit%": p.HardHit,
		prefix + "SP_IP":       p.Innings,
	}
}

// Snapshot is an externally supplied aggregate stat set for one team,
// valid as of a given date: named numeric columns, typically batting
// (B_*) and relief pitching (RP_*) aggregates.
type Snapshot map[string]float64

// SnapshotKey identifies one as-of snapshot request.
type SnapshotKey struct {
	Season int
	AsOf   time.Time
	Team   string
}

// SnapshotProvider resolves as-of team snapshots. Implementations live
// at the I/O boundary; the assembler only ever sees resolved values.
type SnapshotProvider interface {
	TeamSnapshot(ctx context.Context, key SnapshotKey) (Snapshot, error)
}

// PitcherProvider resolves a starting pitcher's stats as of a date.
// Implementations return UnknownPitcher-style NaN fills on lookup
// failure rather than an error.
type PitcherProvider interface {
	PitcherStats(ctx context.Context, name string, asOf time.Time, season int) (PitcherStats, error)
}

// Starters names the probable starting pitchers for one fixture.
type Starters struct {
	Home string
	Away string
}

// StarterProvider resolves probable starters for a fixture. External;
// empty names are acceptable and degrade to NaN pitcher stats.
type StarterProvider interface {
	Starters(ctx context.Context, ev Event) (Starters, error)
}
