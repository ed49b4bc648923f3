package matchup

import (
	"context"
	"fmt"
	"time"

	"github.com/quantpond/mlbedge/pkg/features"
	"github.com/quantpond/mlbedge/pkg/gamelog"
)

// Assembler featurizes unplayed fixtures. It owns no I/O: history is
// an in-memory snapshot and the external providers are injected
// already-resolved or behind the rate-limited cache.
type Assembler struct {
	builder   *features.Builder
	schema    Schema
	history   map[string]gamelog.Log
	carries   map[string]features.Carry
	snapshots *SnapshotCache
	pitchers  PitcherProvider
	starters  StarterProvider
}

// NewAssembler builds an assembler over a full game-log snapshot.
// carries may be nil when no prior-period streak state exists. Any of
// the providers may be nil; their columns then carry the unknown
// sentinel.
func NewAssembler(
	history gamelog.Log,
	carries map[string]features.Carry,
	snapshots *SnapshotCache,
	pitchers PitcherProvider,
	starters StarterProvider,
) (*Assembler, error) {
	builder, err := features.NewBuilder(features.DefaultWindows)
	if err != nil {
		return nil, err
	}
	if carries == nil {
		carries = make(map[string]features.Carry)
	}
	return &Assembler{
		builder:   builder,
		schema:    DefaultSchema(),
		history:   history.ByTeam(),
		carries:   carries,
		snapshots: snapshots,
		pitchers:  pitchers,
		starters:  starters,
	}, nil
}

// Schema returns the column contract vectors are assembled against.
func (a *Assembler) Schema() Schema { return a.schema }

// Assemble produces the home-oriented feature vector for one fixture.
// Away-side columns carry the Opp_ prefix. A team with no played game
// before the fixture date yields a NoHistoryError; the caller should
// skip that fixture and continue the slate.
func (a *Assembler) Assemble(ctx context.Context, ev Event) (FeatureVector, error) {
	homeForm, err := a.formBefore(ev.HomeTeam, ev.Date)
	if err != nil {
		return FeatureVector{}, err
	}
	awayForm, err := a.formBefore(ev.AwayTeam, ev.Date)
	if err != nil {
		return FeatureVector{}, err
	}

	values := map[string]float64{
		"Home_Away":  1,
		"D/N":        boolColumn(ev.Night),
		"Streak":     float64(homeForm.Streak),
		"Opp_Streak": float64(awayForm.Streak),
	}
	mergeColumns(values, formColumns(homeForm, ""))
	mergeColumns(values, formColumns(awayForm, "Opp_"))

	homeSP, awaySP := a.resolveStarters(ctx, ev)
	mergeColumns(values, homeSP.columns(""))
	mergeColumns(values, awaySP.columns("Opp_"))

	// Snapshots are taken as of the day before the fixture to avoid
	// same-day look-ahead.
	asOf := ev.Date.AddDate(0, 0, -1)
	mergeColumns(values, a.snapshotColumns(ctx, ev.Date.Year(), asOf, ev.HomeTeam, ""))
	mergeColumns(values, a.snapshotColumns(ctx, ev.Date.Year(), asOf, ev.AwayTeam, "Opp_"))

	vec := FeatureVector{Event: ev, Team: ev.HomeTeam, Values: values}
	if err := a.schema.Validate(vec); err != nil {
		return FeatureVector{}, err
	}
	return vec, nil
}

// formBefore derives a team's form entering the fixture from games
// strictly before the fixture date. The streak is the stored
// before-game streak of the last played row advanced one step by that
// row's result, via the same state machine the feature builder uses.
func (a *Assembler) formBefore(team string, date time.Time) (features.Form, error) {
	var prior gamelog.Log
	for _, g := range a.history[team] {
		if g.Date.Before(date) {
			prior = append(prior, g)
		}
	}
	if len(prior) == 0 {
		return features.Form{}, &NoHistoryError{Team: team, Before: date}
	}
	return a.builder.FormEntering(prior, a.carries[team])
}

func (a *Assembler) resolveStarters(ctx context.Context, ev Event) (home, away PitcherStats) {
	home = UnknownPitcher("")
	away = UnknownPitcher("")
	if a.starters == nil {
		return home, away
	}

	starters, err := a.starters.Starters(ctx, ev)
	if err != nil {
		// Pitcher identity resolution fails gracefully: the fixture is
		// still featurizable with sentinel pitcher columns.
		return home, away
	}

	home = a.pitcherStats(ctx, starters.Home, ev.Date)
	away = a.pitcherStats(ctx, starters.Away, ev.Date)
	return home, away
}

func (a *Assembler) pitcherStats(ctx context.Context, name string, asOf time.Time) PitcherStats {
	if name == "" || a.pitchers == nil {
		return UnknownPitcher(name)
	}
	stats, err := a.pitchers.PitcherStats(ctx, name, asOf, asOf.Year())
	if err != nil {
		return UnknownPitcher(name)
	}
	return stats
}

func (a *Assembler) snapshotColumns(ctx context.Context, season int, asOf time.Time, team, prefix string) map[string]float64 {
	if a.snapshots == nil {
		return nil
	}
	snap, err := a.snapshots.GetOrFetch(ctx, SnapshotKey{Season: season, AsOf: asOf, Team: team})
	if err != nil {
		return nil
	}
	out := make(map[string]float64, len(snap))
	for col, v := range snap {
		out[prefix+col] = v
	}
	return out
}

func formColumns(form features.Form, prefix string) map[string]float64 {
	out := map[string]float64{
		prefix + "Rank": float64(form.Rank),
	}
	for w, s := range form.Windows {
		out[fmt.Sprintf("%sR_MA%d", prefix, w)] = s.RunsForMA
		out[fmt.Sprintf("%sRA_MA%d", prefix, w)] = s.RunsAgainstMA
		out[fmt.Sprintf("%sRunDiff_MA%d", prefix, w)] = s.RunDiffMA
		out[fmt.Sprintf("%sR_EWMA%d", prefix, w)] = s.RunsForEWMA
		out[fmt.Sprintf("%sRA_EWMA%d", prefix, w)] = s.RunsAgainstEWMA
		out[fmt.Sprintf("%sRunDiff_EWMA%d", prefix, w)] = s.RunDiffEWMA
	}
	return out
}

func mergeColumns(dst map[string]float64, src map[string]float64) {
	for k, v := range src {
		dst[k] = v
	}
}

func boolColumn(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
