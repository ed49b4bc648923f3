// Package pipeline coordinates the daily run: derive per-team form
// features, join opponents, featurize the slate, and size stakes.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/quantpond/mlbedge/pkg/features"
	"github.com/quantpond/mlbedge/pkg/gamelog"
	"github.com/quantpond/mlbedge/pkg/logger"
	"github.com/quantpond/mlbedge/pkg/matchup"
	"github.com/quantpond/mlbedge/pkg/staking"
	"github.com/quantpond/mlbedge/pkg/storage"
)

// Stage represents a stage in the daily run.
type Stage string

const (
	StageFeatureBuild Stage = "feature_build"
	StageOpponentJoin Stage = "opponent_join"
	StagePersist      Stage = "persist"
	StageAssembly     Stage = "assembly"
	StageStaking      Stage = "staking"
)

// Fixture is one unplayed game with the model's home win probability
// and the candidate prices for the home side.
type Fixture struct {
	Event       matchup.Event   `json:"event"`
	HomeWinProb float64         `json:"home_win_prob"`
	Quotes      []staking.Quote `json:"quotes"`
}

// Options configures a Pipeline. Store and the matchup providers are
// optional; absent providers degrade to sentinel columns and absent
// storage skips persistence.
type Options struct {
	Windows   []int
	Staking   staking.Config
	Store     *storage.Storage
	Snapshots *matchup.SnapshotCache
	Pitchers  matchup.PitcherProvider
	Starters  matchup.StarterProvider
	Metrics   *Metrics
}

// Pipeline runs the feature and staking workflow.
type Pipeline struct {
	builder   *features.Builder
	engine    *staking.Engine
	store     *storage.Storage
	snapshots *matchup.SnapshotCache
	pitchers  matchup.PitcherProvider
	starters  matchup.StarterProvider
	metrics   *Metrics
}

// New validates the options and builds a pipeline. Configuration
// errors are fatal; nothing is retried.
func New(opts Options) (*Pipeline, error) {
	windows := opts.Windows
	if len(windows) == 0 {
		windows = features.DefaultWindows
	}
	builder, err := features.NewBuilder(windows)
	if err != nil {
		return nil, err
	}
	engine, err := staking.NewEngine(opts.Staking)
	if err != nil {
		return nil, err
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = DefaultMetrics()
	}
	return &Pipeline{
		builder:   builder,
		engine:    engine,
		store:     opts.Store,
		snapshots: opts.Snapshots,
		pitchers:  opts.Pitchers,
		starters:  opts.Starters,
		metrics:   metrics,
	}, nil
}

// BuildReport summarizes a feature build.
type BuildReport struct {
	Teams     int                             `json:"teams"`
	Rows      int                             `json:"rows"`
	Augmented []features.OpponentAugmentedRow `json:"-"`
	JoinStats features.JoinStats              `json:"join_stats"`
	Carries   map[string]features.Carry       `json:"-"`
	Duration  time.Duration                   `json:"duration"`
}

type teamBuild struct {
	team  string
	rows  []features.TeamFeatureRow
	carry features.Carry
	err   error
}

// BuildFeatures derives per-team feature rows from the game log,
// joins opponents, and persists rows and carry state when a store is
// configured. Teams build independently, so the per-team derivations
// run concurrently.
func (p *Pipeline) BuildFeatures(ctx context.Context, log gamelog.Log) (*BuildReport, error) {
	start := time.Now()

	log.Sort()
	if err := log.Validate(); err != nil {
		return nil, fmt.Errorf("game log: %w", err)
	}

	carries := make(map[string]features.Carry)
	if p.store != nil {
		loaded, err := p.store.LoadCarries()
		if err != nil {
			return nil, err
		}
		carries = loaded
	}

	byTeam := log.ByTeam()
	teams := make([]string, 0, len(byTeam))
	for team := range byTeam {
		teams = append(teams, team)
	}
	sort.Strings(teams)

	buildStart := time.Now()
	results := make(chan teamBuild, len(teams))
	var wg sync.WaitGroup
	for _, team := range teams {
		wg.Add(1)
		go func(team string) {
			defer wg.Done()
			rows, carry, err := p.builder.Build(byTeam[team], carries[team])
			results <- teamBuild{team: team, rows: rows, carry: carry, err: err}
		}(team)
	}
	wg.Wait()
	close(results)

	var allRows []features.TeamFeatureRow
	newCarries := make(map[string]features.Carry, len(teams))
	for r := range results {
		if r.err != nil {
			p.metrics.RecordTeamBuild(r.team, "error", 0)
			return nil, fmt.Errorf("build %s: %w", r.team, r.err)
		}
		p.metrics.RecordTeamBuild(r.team, "ok", len(r.rows))
		allRows = append(allRows, r.rows...)
		newCarries[r.team] = r.carry
	}
	p.metrics.RecordStage(StageFeatureBuild, time.Since(buildStart).Seconds())

	joinStart := time.Now()
	augmented, stats := features.JoinOpponents(allRows)
	p.metrics.RecordJoinDrops(stats.DroppedNoMatch, stats.DroppedAmbiguous, stats.DroppedNoPartition)
	p.metrics.RecordStage(StageOpponentJoin, time.Since(joinStart).Seconds())
	if stats.Dropped() > 0 {
		logger.Warn("opponent join dropped %d of %d rows", stats.Dropped(), stats.Input)
	}

	if p.store != nil {
		persistStart := time.Now()
		if err := p.store.UpsertFeatureRows(allRows); err != nil {
			return nil, err
		}
		for team, carry := range newCarries {
			if err := p.store.SaveCarry(team, carry); err != nil {
				return nil, err
			}
		}
		p.metrics.RecordStage(StagePersist, time.Since(persistStart).Seconds())
	}

	logger.Info("built %d feature rows for %d teams, joined %d", len(allRows), len(teams), stats.Joined)
	return &BuildReport{
		Teams:     len(teams),
		Rows:      len(allRows),
		Augmented: augmented,
		JoinStats: stats,
		Carries:   newCarries,
		Duration:  time.Since(start),
	}, nil
}

// SlateReport summarizes one slate evaluation.
type SlateReport struct {
	Fixtures        int                      `json:"fixtures"`
	Assembled       int                      `json:"assembled"`
	Skipped         int                      `json:"skipped"`
	Qualifying      int                      `json:"qualifying"`
	Recommendations []staking.Recommendation `json:"recommendations"`
	Vectors         []matchup.FeatureVector  `json:"-"`
	Duration        time.Duration            `json:"duration"`
}

// EvaluateSlate featurizes each fixture and sizes a stake on the home
// side at the best available price. Fixtures without enough history
// are skipped, not fatal. Recommendations are persisted per fixture
// date when a store is configured.
func (p *Pipeline) EvaluateSlate(ctx context.Context, history gamelog.Log, fixtures []Fixture) (*SlateReport, error) {
	start := time.Now()
	status := "ok"
	defer func() {
		p.metrics.RecordRun(status, time.Since(start).Seconds())
	}()

	carries := make(map[string]features.Carry)
	if p.store != nil {
		loaded, err := p.store.LoadCarries()
		if err != nil {
			status = "error"
			return nil, err
		}
		carries = loaded
	}

	asm, err := matchup.NewAssembler(history, carries, p.snapshots, p.pitchers, p.starters)
	if err != nil {
		status = "error"
		return nil, err
	}

	report := &SlateReport{Fixtures: len(fixtures)}
	byDate := make(map[time.Time][]staking.Recommendation)

	for _, f := range fixtures {
		if err := ctx.Err(); err != nil {
			status = "error"
			return nil, err
		}

		assembleStart := time.Now()
		vec, err := asm.Assemble(ctx, f.Event)
		p.metrics.RecordStage(StageAssembly, time.Since(assembleStart).Seconds())
		if err != nil {
			var nhe *matchup.NoHistoryError
			if errors.As(err, &nhe) {
				logger.Warn("skipping %s at %s on %s: %v",
					f.Event.AwayTeam, f.Event.HomeTeam, f.Event.Date.Format("2006-01-02"), err)
				p.metrics.RecordAssembly("skipped")
				p.metrics.RecordSkip("no_history")
				report.Skipped++
				continue
			}
			status = "error"
			p.metrics.RecordAssembly("error")
			return nil, fmt.Errorf("assemble %s vs %s: %w", f.Event.HomeTeam, f.Event.AwayTeam, err)
		}
		p.metrics.RecordAssembly("ok")
		report.Assembled++
		report.Vectors = append(report.Vectors, vec)

		best, ok := staking.BestPrice(f.Quotes)[f.Event.HomeTeam]
		if !ok {
			p.metrics.RecordSkip("no_quote")
			logger.Debug("no quote for %s on %s", f.Event.HomeTeam, f.Event.Date.Format("2006-01-02"))
			continue
		}

		stakeStart := time.Now()
		recs := p.engine.Evaluate([]staking.Opportunity{{
			Team:         f.Event.HomeTeam,
			Book:         best.Book,
			ModelProb:    f.HomeWinProb,
			DecimalPrice: best.DecimalPrice,
		}})
		p.metrics.RecordStage(StageStaking, time.Since(stakeStart).Seconds())

		for _, rec := range recs {
			p.metrics.RecordRecommendation(rec.Qualifies, rec.Edge, rec.StakeUnits)
			if rec.Qualifies {
				report.Qualifying++
			}
			report.Recommendations = append(report.Recommendations, rec)
			day := f.Event.Date.Truncate(24 * time.Hour)
			byDate[day] = append(byDate[day], rec)
		}
	}

	if p.store != nil {
		for day, recs := range byDate {
			if err := p.store.AddBets(day, recs); err != nil {
				status = "error"
				return nil, err
			}
		}
	}

	report.Duration = time.Since(start)
	logger.Info("slate: %d fixtures, %d assembled, %d skipped, %d qualifying",
		report.Fixtures, report.Assembled, report.Skipped, report.Qualifying)
	return report, nil
}

// Run executes a full cycle: build features from the game log, then
// evaluate the slate against it.
func (p *Pipeline) Run(ctx context.Context, log gamelog.Log, fixtures []Fixture) (*BuildReport, *SlateReport, error) {
	build, err := p.BuildFeatures(ctx, log)
	if err != nil {
		p.metrics.RecordRun("error", 0)
		return nil, nil, err
	}
	slate, err := p.EvaluateSlate(ctx, log, fixtures)
	if err != nil {
		return build, nil, err
	}
	return build, slate, nil
}
