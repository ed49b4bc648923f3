package gamelog

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

// Column names accepted by the CSV codec. Lookups are case-insensitive
// and tolerate a few upstream spellings.
var csvAliases = map[string][]string{
	"date":         {"date"},
	"game_number":  {"game_number", "game"},
	"team":         {"team", "tm"},
	"opponent":     {"opponent", "opp"},
	"home_away":    {"home_away", "home"},
	"day_night":    {"day_night", "d/n"},
	"runs_for":     {"runs_for", "r"},
	"runs_against": {"runs_against", "ra"},
	"result":       {"result", "w/l"},
	"rank":         {"rank"},
	"streak":       {"streak", "raw_streak"},
}

var dateLayouts = []string{time.RFC3339, "2006-01-02", "2006/01/02"}

// ReadCSV loads game rows from a CSV file with a header row.
func ReadCSV(path string) (Log, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open game log: %w", err)
	}
	defer f.Close()
	return DecodeCSV(f)
}

// DecodeCSV decodes game rows from CSV data with a header row.
func DecodeCSV(r io.Reader) (Log, error) {
	reader := csv.NewReader(r)

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	colIndex := make(map[string]int)
	for i, col := range header {
		colIndex[strings.ToLower(strings.TrimSpace(col))] = i
	}
	lookup := func(record []string, name string) (string, bool) {
		for _, alias := range csvAliases[name] {
			if idx, ok := colIndex[alias]; ok && idx < len(record) {
				return strings.TrimSpace(record[idx]), true
			}
		}
		return "", false
	}

	var log Log
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read record: %w", err)
		}
		line++

		row, err := decodeRecord(record, lookup)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		log = append(log, row)
	}

	log.Sort()
	if err := log.Validate(); err != nil {
		return nil, err
	}
	return log, nil
}

func decodeRecord(record []string, lookup func([]string, string) (string, bool)) (GameRow, error) {
	var row GameRow

	raw, ok := lookup(record, "date")
	if !ok {
		return row, fmt.Errorf("missing date column")
	}
	date, err := parseDate(raw)
	if err != nil {
		return row, err
	}
	row.Date = date

	row.GameNumber = 1
	if raw, ok := lookup(record, "game_number"); ok && raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return row, fmt.Errorf("bad game number %q: %w", raw, err)
		}
		row.GameNumber = n
	}

	row.Team, _ = lookup(record, "team")
	row.Opponent, _ = lookup(record, "opponent")
	if row.Team == "" || row.Opponent == "" {
		return row, fmt.Errorf("missing team or opponent")
	}

	if raw, ok := lookup(record, "home_away"); ok {
		row.Home = parseFlag(raw, "home")
	}
	if raw, ok := lookup(record, "day_night"); ok {
		row.Night = parseFlag(raw, "n")
	}

	for _, col := range []struct {
		name string
		dst  *int
	}{
		{"runs_for", &row.RunsFor},
		{"runs_against", &row.RunsAgainst},
		{"rank", &row.Rank},
		{"streak", &row.RawStreak},
	} {
		raw, ok := lookup(record, col.name)
		if !ok || raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return row, fmt.Errorf("bad %s %q: %w", col.name, raw, err)
		}
		*col.dst = n
	}

	raw, ok = lookup(record, "result")
	if !ok {
		return row, fmt.Errorf("missing result column")
	}
	res, err := ParseResult(raw)
	if err != nil {
		return row, err
	}
	row.Result = res

	return row, nil
}

func parseDate(s string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable date %q", s)
}

// parseFlag interprets 1/0, true/false, and source-specific markers
// ("home"/"@", "n"/"d") as a boolean.
func parseFlag(s, truthy string) bool {
	switch strings.ToLower(s) {
	case "1", "true", truthy:
		return true
	}
	return false
}

// WriteCSV writes game rows to a CSV file with a header row.
func WriteCSV(path string, log Log) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	header := []string{
		"date", "game_number", "team", "opponent", "home_away",
		"day_night", "runs_for", "runs_against", "result", "rank", "streak",
	}
	if err := w.Write(header); err != nil {
		return err
	}

	for _, g := range log {
		record := []string{
			g.Date.Format("2006-01-02"),
			strconv.Itoa(g.GameNumber),
			g.Team,
			g.Opponent,
			boolFlag(g.Home),
			boolFlag(g.Night),
			strconv.Itoa(g.RunsFor),
			strconv.Itoa(g.RunsAgainst),
			string(g.Result),
			strconv.Itoa(g.Rank),
			strconv.Itoa(g.RawStreak),
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}

	w.Flush()
	return w.Error()
}

func boolFlag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
