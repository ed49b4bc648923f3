// Package gamelog provides types and codecs for per-team MLB game logs.
package gamelog

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Result is the outcome of a played game from one team's perspective.
type Result string

const (
	Win  Result = "W"
	Loss Result = "L"
)

// ParseResult parses a raw result string from a schedule source.
// Walk-off variants ("W-wo", "L-wo") map to plain wins/losses.
func ParseResult(s string) (Result, error) {
	switch strings.TrimSpace(s) {
	case "W", "W-wo", "w":
		return Win, nil
	case "L", "L-wo", "l":
		return Loss, nil
	}
	return "", fmt.Errorf("unknown result %q", s)
}

// IsWin reports whether the result is a win.
func (r Result) IsWin() bool { return r == Win }

// GameRow is one completed game for one team. Immutable once recorded.
type GameRow struct {
	Date        time.Time `json:"date"`
	GameNumber  int       `json:"game_number"` // double-header tiebreak, 1 for single games
	Team        string    `json:"team"`
	Opponent    string    `json:"opponent"`
	Home        bool      `json:"home"`
	Night       bool      `json:"night"`
	RunsFor     int       `json:"runs_for"`
	RunsAgainst int       `json:"runs_against"`
	Result      Result    `json:"result"`
	Rank        int       `json:"rank"`
	RawStreak   int       `json:"raw_streak"` // streak as reported by the source, not trusted
}

// RunDiff returns runs scored minus runs allowed.
func (g GameRow) RunDiff() int { return g.RunsFor - g.RunsAgainst }

// GameKey identifies a single game instance for one team.
type GameKey struct {
	Year       int
	Month      time.Month
	Day        int
	Team       string
	Opponent   string
	GameNumber int
}

// Key returns the uniqueness key for the row.
func (g GameRow) Key() GameKey {
	return GameKey{
		Year:       g.Date.Year(),
		Month:      g.Date.Month(),
		Day:        g.Date.Day(),
		Team:       g.Team,
		Opponent:   g.Opponent,
		GameNumber: g.GameNumber,
	}
}

// Log is an ordered collection of game rows, possibly spanning teams.
type Log []GameRow

// Sort orders the log chronologically, breaking date ties by game number.
func (l Log) Sort() {
	sort.SliceStable(l, func(i, j int) bool {
		if !l[i].Date.Equal(l[j].Date) {
			return l[i].Date.Before(l[j].Date)
		}
		return l[i].GameNumber < l[j].GameNumber
	})
}

// ByTeam partitions the log by team code. Each partition is sorted
// chronologically.
func (l Log) ByTeam() map[string]Log {
	out := make(map[string]Log)
	for _, g := range l {
		out[g.Team] = append(out[g.Team], g)
	}
	for _, part := range out {
		part.Sort()
	}
	return out
}

// Validate checks the at-most-one-row-per-game-instance invariant.
func (l Log) Validate() error {
	seen := make(map[GameKey]struct{}, len(l))
	for _, g := range l {
		k := g.Key()
		if _, dup := seen[k]; dup {
			return fmt.Errorf("duplicate game row: %s %s vs %s game %d",
				g.Date.Format("2006-01-02"), g.Team, g.Opponent, g.GameNumber)
		}
		seen[k] = struct{}{}
	}
	return nil
}
