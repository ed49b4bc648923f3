package features

import (
	"fmt"
	"math"

	"github.com/quantpond/mlbedge/pkg/gamelog"
)

// Builder derives TeamFeatureRows from one team's chronological log.
// It is a pure transform: identical input always produces identical
// output.
type Builder struct {
	windows []int
}

// NewBuilder creates a builder for the given window set.
func NewBuilder(windows []int) (*Builder, error) {
	if len(windows) == 0 {
		return nil, &ConfigError{Msg: "empty window list"}
	}
	seen := make(map[int]bool, len(windows))
	for _, w := range windows {
		if w < 1 {
			return nil, &ConfigError{Msg: fmt.Sprintf("window %d out of range", w)}
		}
		if seen[w] {
			return nil, &ConfigError{Msg: fmt.Sprintf("duplicate window %d", w)}
		}
		seen[w] = true
	}
	cp := make([]int, len(windows))
	copy(cp, windows)
	return &Builder{windows: cp}, nil
}

// Windows returns the builder's window set.
func (b *Builder) Windows() []int {
	cp := make([]int, len(b.windows))
	copy(cp, b.windows)
	return cp
}

// AdvanceStreak applies the streak transition rule for one played game:
// a result extending the current run lengthens it, a result breaking it
// resets to ±1.
func AdvanceStreak(streak int, result gamelog.Result) int {
	if result.IsWin() {
		if streak > 0 {
			return streak + 1
		}
		return 1
	}
	if streak < 0 {
		return streak - 1
	}
	return -1
}

// windowState accumulates prior-only moving statistics for one metric
// and one window size.
type windowState struct {
	size   int
	alpha  float64
	recent []float64 // last size prior values
	sum    float64
	ewma   float64
	seeded bool
}

func newWindowState(size int) *windowState {
	return &windowState{
		size:  size,
		alpha: 2.0 / (float64(size) + 1.0),
	}
}

// ma returns the mean of the prior values currently in the window.
// ok is false when no prior value exists yet.
func (s *windowState) ma() (v float64, ok bool) {
	if len(s.recent) == 0 {
		return 0, false
	}
	return s.sum / float64(len(s.recent)), true
}

func (s *windowState) ewmaValue() (v float64, ok bool) {
	if !s.seeded {
		return 0, false
	}
	return s.ewma, true
}

// observe feeds one played game's value into the state after that
// game's features have been emitted.
func (s *windowState) observe(x float64) {
	s.recent = append(s.recent, x)
	s.sum += x
	if len(s.recent) > s.size {
		s.sum -= s.recent[0]
		s.recent = s.recent[1:]
	}

	if !s.seeded {
		s.ewma = x
		s.seeded = true
		return
	}
	s.ewma = s.alpha*x + (1-s.alpha)*s.ewma
}

// cursor threads one team's sequential state: the streak machine plus
// the per-window accumulators. All derived values read from a cursor
// describe the moment entering the next game.
type cursor struct {
	windows []int
	states  map[int]*metricStates
	streak  int
}

type metricStates struct {
	runsFor, runsAgainst, runDiff *windowState
}

func (b *Builder) newCursor(carry Carry) *cursor {
	c := &cursor{
		windows: b.windows,
		states:  make(map[int]*metricStates, len(b.windows)),
	}
	for _, w := range b.windows {
		c.states[w] = &metricStates{
			runsFor:     newWindowState(w),
			runsAgainst: newWindowState(w),
			runDiff:     newWindowState(w),
		}
	}
	if carry.Valid {
		c.streak = AdvanceStreak(carry.Streak, carry.LastResult)
	}
	return c
}

// snapshot reads the window statistics entering the next game. When a
// window has no prior observation yet, fallback stands in so a team's
// first tracked game still gets finite features.
func (c *cursor) snapshot(fallbackFor, fallbackAgainst, fallbackDiff float64) map[int]WindowStats {
	out := make(map[int]WindowStats, len(c.windows))
	for _, w := range c.windows {
		st := c.states[w]
		out[w] = WindowStats{
			RunsForMA:       orFallback(st.runsFor.ma, fallbackFor),
			RunsAgainstMA:   orFallback(st.runsAgainst.ma, fallbackAgainst),
			RunDiffMA:       orFallback(st.runDiff.ma, fallbackDiff),
			RunsForEWMA:     orFallback(st.runsFor.ewmaValue, fallbackFor),
			RunsAgainstEWMA: orFallback(st.runsAgainst.ewmaValue, fallbackAgainst),
			RunDiffEWMA:     orFallback(st.runDiff.ewmaValue, fallbackDiff),
		}
	}
	return out
}

// observe folds one played game into the cursor.
func (c *cursor) observe(g gamelog.GameRow) {
	for _, w := range c.windows {
		st := c.states[w]
		st.runsFor.observe(float64(g.RunsFor))
		st.runsAgainst.observe(float64(g.RunsAgainst))
		st.runDiff.observe(float64(g.RunDiff()))
	}
	c.streak = AdvanceStreak(c.streak, g.Result)
}

// Build derives a feature row for every game in order. The input must
// be a single team's games, chronologically sorted. carry seeds the
// streak machine for incremental updates; a zero Carry means the team
// has no recorded game before the first input row.
//
// The returned Carry reflects the last input game and can seed the
// next incremental run.
func (b *Builder) Build(games gamelog.Log, carry Carry) ([]TeamFeatureRow, Carry, error) {
	if len(games) == 0 {
		return nil, carry, nil
	}
	if err := checkSequence(games); err != nil {
		return nil, carry, err
	}

	cur := b.newCursor(carry)
	rows := make([]TeamFeatureRow, 0, len(games))
	for _, g := range games {
		rows = append(rows, TeamFeatureRow{
			GameRow: g,
			RunDiff: g.RunDiff(),
			Streak:  cur.streak,
			Windows: cur.snapshot(float64(g.RunsFor), float64(g.RunsAgainst), float64(g.RunDiff())),
		})
		cur.observe(g)
	}

	last := games[len(games)-1]
	out := Carry{
		Streak:     rows[len(rows)-1].Streak,
		LastResult: last.Result,
		Valid:      true,
	}
	return rows, out, nil
}

// Form is a team's state entering a hypothetical next game, derived
// from every played game in the input. It is what an upcoming fixture
// should be featurized with.
type Form struct {
	Team       string
	Games      int
	Rank       int
	Streak     int
	LastResult gamelog.Result
	Windows    map[int]WindowStats
}

// FormEntering folds the whole log through the same cursor Build uses
// and returns the state entering the next (unplayed) game. The streak
// here is therefore the stored before-game streak of the last played
// row advanced one step by that row's result; a separate derivation
// from raw results would produce the same value because both paths
// share the cursor.
func (b *Builder) FormEntering(games gamelog.Log, carry Carry) (Form, error) {
	if len(games) == 0 && !carry.Valid {
		return Form{}, fmt.Errorf("no games and no carried state")
	}
	if err := checkSequence(games); err != nil {
		return Form{}, err
	}

	cur := b.newCursor(carry)
	for _, g := range games {
		cur.observe(g)
	}

	form := Form{
		Games:   len(games),
		Streak:  cur.streak,
		Windows: cur.snapshot(0, 0, 0),
	}
	if len(games) > 0 {
		last := games[len(games)-1]
		form.Team = last.Team
		form.Rank = last.Rank
		form.LastResult = last.Result
	} else {
		form.LastResult = carry.LastResult
	}
	return form, nil
}

func checkSequence(games gamelog.Log) error {
	if len(games) == 0 {
		return nil
	}
	team := games[0].Team
	for i, g := range games {
		if g.Team != team {
			return fmt.Errorf("mixed teams in input: %s and %s", team, g.Team)
		}
		if i > 0 && g.Date.Before(games[i-1].Date) {
			return fmt.Errorf("games out of order at %s", g.Date.Format("2006-01-02"))
		}
	}
	return nil
}

func orFallback(read func() (float64, bool), fallback float64) float64 {
	if v, ok := read(); ok {
		return round3(v)
	}
	return round3(fallback)
}

func round3(x float64) float64 {
	return math.Round(x*1000) / 1000
}
