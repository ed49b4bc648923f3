package features

import (
	"errors"
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/quantpond/mlbedge/pkg/gamelog"
)

func day(n int) time.Time {
	return time.Date(2025, 4, n, 0, 0, 0, 0, time.UTC)
}

// seasonGames builds a single-team log from run totals and results.
func seasonGames(team string, runsFor, runsAgainst []int, results []gamelog.Result) gamelog.Log {
	games := make(gamelog.Log, len(runsFor))
	for i := range runsFor {
		games[i] = gamelog.GameRow{
			Date:        day(i + 1),
			GameNumber:  1,
			Team:        team,
			Opponent:    "OPP",
			RunsFor:     runsFor[i],
			RunsAgainst: runsAgainst[i],
			Result:      results[i],
		}
	}
	return games
}

func TestNewBuilder_Config(t *testing.T) {
	tests := []struct {
		name    string
		windows []int
		wantErr bool
	}{
		{"default", DefaultWindows, false},
		{"empty", nil, true},
		{"zero window", []int{0}, true},
		{"negative window", []int{3, -5}, true},
		{"duplicate", []int{3, 3}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewBuilder(tt.windows)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewBuilder(%v) err = %v, wantErr %v", tt.windows, err, tt.wantErr)
			}
			if tt.wantErr {
				var cfgErr *ConfigError
				if !errors.As(err, &cfgErr) {
					t.Errorf("error %v is not a *ConfigError", err)
				}
			}
		})
	}
}

func TestBuild_MovingAverageExcludesCurrentGame(t *testing.T) {
	// Synthetic 5-game sequence: MA3 at row 4 must exclude row 4's own
	// value.
	runsFor := []int{2, 4, 6, 8, 10}
	runsAgainst := []int{1, 1, 1, 1, 1}
	results := []gamelog.Result{gamelog.Win, gamelog.Win, gamelog.Win, gamelog.Win, gamelog.Win}

	b, err := NewBuilder([]int{3})
	if err != nil {
		t.Fatal(err)
	}
	rows, _, err := b.Build(seasonGames("NYY", runsFor, runsAgainst, results), Carry{})
	if err != nil {
		t.Fatal(err)
	}

	// Row index 4 sees prior values {4, 6, 8} only.
	got := rows[4].Windows[3].RunsForMA
	if got != 6 {
		t.Errorf("MA3 at row 4 = %v, want 6 (prior-only mean)", got)
	}

	// min-periods-1: row 1 has a single prior value, row 2 has two.
	if rows[1].Windows[3].RunsForMA != 2 {
		t.Errorf("MA3 at row 1 = %v, want 2", rows[1].Windows[3].RunsForMA)
	}
	if rows[2].Windows[3].RunsForMA != 3 {
		t.Errorf("MA3 at row 2 = %v, want 3", rows[2].Windows[3].RunsForMA)
	}

	// Zero prior rows: the first game falls back to its own value
	// rather than failing.
	if rows[0].Windows[3].RunsForMA != 2 {
		t.Errorf("MA3 at row 0 = %v, want own-value fallback 2", rows[0].Windows[3].RunsForMA)
	}
}

func TestBuild_EWMARecurrence(t *testing.T) {
	// Prior-only inputs [3,5,2]; span 3 gives alpha = 0.5. Expected
	// recurrence outputs computed by hand.
	runsFor := []int{3, 5, 2, 7}
	runsAgainst := []int{0, 0, 0, 0}
	results := []gamelog.Result{gamelog.Win, gamelog.Win, gamelog.Win, gamelog.Win}

	b, err := NewBuilder([]int{3})
	if err != nil {
		t.Fatal(err)
	}
	rows, _, err := b.Build(seasonGames("NYY", runsFor, runsAgainst, results), Carry{})
	if err != nil {
		t.Fatal(err)
	}

	want := []float64{
		3, // no prior game, own value
		3, // seeded by first prior observation
		4, // 0.5*5 + 0.5*3
		3, // 0.5*2 + 0.5*4
	}
	for i, w := range want {
		got := rows[i].Windows[3].RunsForEWMA
		if math.Abs(got-w) > 1e-9 {
			t.Errorf("EWMA3 at row %d = %v, want %v", i, got, w)
		}
	}
}

func TestBuild_StreakStateMachine(t *testing.T) {
	results := []gamelog.Result{
		gamelog.Win, gamelog.Win, gamelog.Loss, gamelog.Loss, gamelog.Loss, gamelog.Win,
	}
	n := len(results)
	runs := make([]int, n)

	b, err := NewBuilder(DefaultWindows)
	if err != nil {
		t.Fatal(err)
	}
	rows, carry, err := b.Build(seasonGames("NYY", runs, runs, results), Carry{})
	if err != nil {
		t.Fatal(err)
	}

	want := []int{0, 1, 2, -1, -2, -3}
	for i, w := range want {
		if rows[i].Streak != w {
			t.Errorf("streak entering game %d = %d, want %d", i, rows[i].Streak, w)
		}
	}

	if !carry.Valid || carry.Streak != -3 || carry.LastResult != gamelog.Win {
		t.Errorf("carry = %+v, want streak -3 entering last game, last result W", carry)
	}
}

func TestBuild_CarryOverSeedsStreak(t *testing.T) {
	// Incremental run: the first new game's streak must be derived
	// from the carried (streak, last result) pair exactly as a
	// full-season rebuild would derive it.
	results := []gamelog.Result{gamelog.Win, gamelog.Loss}
	runs := []int{0, 0}

	b, err := NewBuilder(DefaultWindows)
	if err != nil {
		t.Fatal(err)
	}

	carry := Carry{Streak: 4, LastResult: gamelog.Win, Valid: true}
	rows, _, err := b.Build(seasonGames("NYY", runs, runs, results), carry)
	if err != nil {
		t.Fatal(err)
	}
	if rows[0].Streak != 5 {
		t.Errorf("carried streak advanced to %d, want 5", rows[0].Streak)
	}
	if rows[1].Streak != 6 {
		t.Errorf("streak entering game 1 = %d, want 6", rows[1].Streak)
	}
}

func TestBuild_IncrementalAgreesWithFullRebuild(t *testing.T) {
	runsFor := []int{5, 3, 8, 2, 6, 4, 9, 1}
	runsAgainst := []int{3, 4, 2, 7, 5, 4, 3, 2}
	results := make([]gamelog.Result, len(runsFor))
	for i := range results {
		if runsFor[i] > runsAgainst[i] {
			results[i] = gamelog.Win
		} else {
			results[i] = gamelog.Loss
		}
	}
	games := seasonGames("NYY", runsFor, runsAgainst, results)

	b, err := NewBuilder(DefaultWindows)
	if err != nil {
		t.Fatal(err)
	}

	full, _, err := b.Build(games, Carry{})
	if err != nil {
		t.Fatal(err)
	}

	// Split at game 5 and rebuild incrementally: streaks must agree.
	_, carry, err := b.Build(games[:5], Carry{})
	if err != nil {
		t.Fatal(err)
	}
	tail, _, err := b.Build(games[5:], carry)
	if err != nil {
		t.Fatal(err)
	}
	for i, row := range tail {
		if row.Streak != full[5+i].Streak {
			t.Errorf("incremental streak at game %d = %d, full rebuild = %d",
				5+i, row.Streak, full[5+i].Streak)
		}
	}
}

func TestBuild_Idempotent(t *testing.T) {
	runsFor := []int{5, 3, 8, 2}
	runsAgainst := []int{3, 4, 2, 7}
	results := []gamelog.Result{gamelog.Win, gamelog.Loss, gamelog.Win, gamelog.Loss}
	games := seasonGames("NYY", runsFor, runsAgainst, results)

	b, err := NewBuilder(DefaultWindows)
	if err != nil {
		t.Fatal(err)
	}
	first, _, err := b.Build(games, Carry{})
	if err != nil {
		t.Fatal(err)
	}
	second, _, err := b.Build(games, Carry{})
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Error("re-running the builder on identical input changed the output")
	}
}

func TestBuild_RejectsBadInput(t *testing.T) {
	mixed := gamelog.Log{
		{Date: day(1), Team: "NYY", Opponent: "BOS", Result: gamelog.Win},
		{Date: day(2), Team: "BOS", Opponent: "NYY", Result: gamelog.Loss},
	}
	b, err := NewBuilder(DefaultWindows)
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := b.Build(mixed, Carry{}); err == nil {
		t.Error("expected error for mixed-team input")
	}

	unordered := gamelog.Log{
		{Date: day(2), Team: "NYY", Opponent: "BOS", Result: gamelog.Win},
		{Date: day(1), Team: "NYY", Opponent: "BOS", Result: gamelog.Loss},
	}
	if _, _, err := b.Build(unordered, Carry{}); err == nil {
		t.Error("expected error for out-of-order input")
	}
}

func TestAdvanceStreak(t *testing.T) {
	tests := []struct {
		streak int
		result gamelog.Result
		want   int
	}{
		{0, gamelog.Win, 1},
		{0, gamelog.Loss, -1},
		{3, gamelog.Win, 4},
		{3, gamelog.Loss, -1}, // reset, not decrement
		{-2, gamelog.Loss, -3},
		{-2, gamelog.Win, 1}, // reset, not increment
	}
	for _, tt := range tests {
		if got := AdvanceStreak(tt.streak, tt.result); got != tt.want {
			t.Errorf("AdvanceStreak(%d, %s) = %d, want %d", tt.streak, tt.result, got, tt.want)
		}
	}
}
