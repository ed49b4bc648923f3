// Package teams maps MLB team names to the three-letter codes used by
// schedule sources, and normalizes the looser names odds feeds report.
package teams

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Team describes one club.
type Team struct {
	Code    string
	Name    string
	Aliases []string
}

// All is the full 30-team table. ATH replaced OAK when the club left
// Oakland; the OAK alias keeps pre-2025 logs resolvable.
var All = []Team{
	{Code: "NYY", Name: "New York Yankees"},
	{Code: "BOS", Name: "Boston Red Sox"},
	{Code: "TOR", Name: "Toronto Blue Jays"},
	{Code: "BAL", Name: "Baltimore Orioles"},
	{Code: "TBR", Name: "Tampa Bay Rays", Aliases: []string{"Tampa Bay"}},
	{Code: "CHW", Name: "Chicago White Sox"},
	{Code: "CLE", Name: "Cleveland Guardians", Aliases: []string{"Cleveland Indians"}},
	{Code: "DET", Name: "Detroit Tigers"},
	{Code: "KCR", Name: "Kansas City Royals"},
	{Code: "MIN", Name: "Minnesota Twins"},
	{Code: "HOU", Name: "Houston Astros"},
	{Code: "LAA", Name: "Los Angeles Angels"},
	{Code: "ATH", Name: "Athletics", Aliases: []string{"Oakland Athletics", "OAK"}},
	{Code: "SEA", Name: "Seattle Mariners"},
	{Code: "TEX", Name: "Texas Rangers"},
	{Code: "ATL", Name: "Atlanta Braves"},
	{Code: "MIA", Name: "Miami Marlins"},
	{Code: "NYM", Name: "New York Mets"},
	{Code: "PHI", Name: "Philadelphia Phillies"},
	{Code: "WSN", Name: "Washington Nationals"},
	{Code: "CHC", Name: "Chicago Cubs"},
	{Code: "CIN", Name: "Cincinnati Reds"},
	{Code: "MIL", Name: "Milwaukee Brewers"},
	{Code: "PIT", Name: "Pittsburgh Pirates"},
	{Code: "STL", Name: "St. Louis Cardinals", Aliases: []string{"Saint Louis Cardinals"}},
	{Code: "ARI", Name: "Arizona Diamondbacks", Aliases: []string{"Arizona D'Backs", "Arizona Dbacks"}},
	{Code: "COL", Name: "Colorado Rockies"},
	{Code: "LAD", Name: "Los Angeles Dodgers"},
	{Code: "SDP", Name: "San Diego Padres"},
	{Code: "SFG", Name: "San Francisco Giants"},
}

var (
	byName = make(map[string]string) // normalized name -> code
	byCode = make(map[string]Team)
)

func init() {
	for _, t := range All {
		byCode[t.Code] = t
		byName[normalizeName(t.Name)] = t.Code
		for _, alias := range t.Aliases {
			byName[normalizeName(alias)] = t.Code
		}
	}
}

// Codes returns all team codes in league/division order.
func Codes() []string {
	codes := make([]string, 0, len(All))
	for _, t := range All {
		codes = append(codes, t.Code)
	}
	return codes
}

// IsCode reports whether s is a known team code.
func IsCode(s string) bool {
	_, ok := byCode[strings.ToUpper(strings.TrimSpace(s))]
	return ok
}

// Resolve maps a team name or code from any source to its code.
func Resolve(name string) (string, bool) {
	trimmed := strings.ToUpper(strings.TrimSpace(name))
	if t, ok := byCode[trimmed]; ok {
		return t.Code, true
	}

	normName := normalizeName(name)
	if normName == "" {
		return "", false
	}
	if code, ok := byName[normName]; ok {
		return code, true
	}

	// Fall back to a containment match for truncated feed names
	// ("Yankees", "Boston Red").
	for key, code := range byName {
		if strings.Contains(key, normName) || strings.Contains(normName, key) {
			return code, true
		}
	}

	return "", false
}

// Name returns the canonical club name for a code.
func Name(code string) (string, bool) {
	t, ok := byCode[strings.ToUpper(strings.TrimSpace(code))]
	if !ok {
		return "", false
	}
	return t.Name, true
}

// normalizeName normalizes a team name for matching.
func normalizeName(name string) string {
	name = strings.ToLower(name)

	// Remove accents
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	name, _, _ = transform.String(t, name)

	// Drop punctuation the feeds disagree on ("St. Louis", "D'Backs")
	var b strings.Builder
	for _, r := range name {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}
	name = b.String()

	// Normalize spaces
	name = strings.Join(strings.Fields(name), " ")

	return strings.TrimSpace(name)
}
