// mlbedge is the CLI for the MLB feature and staking pipeline.
package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/quantpond/mlbedge/pkg/config"
	"github.com/quantpond/mlbedge/pkg/gamelog"
	"github.com/quantpond/mlbedge/pkg/logger"
	"github.com/quantpond/mlbedge/pkg/matchup"
	"github.com/quantpond/mlbedge/pkg/pipeline"
	"github.com/quantpond/mlbedge/pkg/staking"
	"github.com/quantpond/mlbedge/pkg/storage"
	"github.com/quantpond/mlbedge/pkg/teams"
)

const usage = `Usage: mlbedge <command> [flags]

Commands:
  features   derive and persist per-team form features from game logs
  slate      featurize a slate of fixtures and size stakes
  settle     record a bet's outcome
  ledger     summarize the settled bet history
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "features":
		err = runFeatures(os.Args[2:])
	case "slate":
		err = runSlate(os.Args[2:])
	case "settle":
		err = runSettle(os.Args[2:])
	case "ledger":
		err = runLedger(os.Args[2:])
	case "-h", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", os.Args[1], usage)
		os.Exit(2)
	}
	if err != nil {
		logger.Fatal("%v", err)
	}
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	return cfg, nil
}

func runFeatures(args []string) error {
	fs := flag.NewFlagSet("features", flag.ExitOnError)
	cfgPath := fs.String("config", "", "Path to config file (defaults apply when empty)")
	logs := fs.String("gamelogs", "", "Game log CSV file or directory (overrides config)")
	out := fs.String("out", "", "Optional JSON report output file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		return err
	}
	source := cfg.Data.GameLogDir
	if *logs != "" {
		source = *logs
	}
	log, err := loadGameLogs(source)
	if err != nil {
		return err
	}

	store, err := storage.New(cfg.Storage.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	p, err := newPipeline(cfg, store)
	if err != nil {
		return err
	}
	report, err := p.BuildFeatures(context.Background(), log)
	if err != nil {
		return err
	}

	fmt.Printf("Built %d feature rows for %d teams in %s\n",
		report.Rows, report.Teams, report.Duration.Round(time.Millisecond))
	fmt.Printf("Opponent join: %d joined, %d dropped (%d no match, %d ambiguous, %d no partition)\n",
		report.JoinStats.Joined, report.JoinStats.Dropped(),
		report.JoinStats.DroppedNoMatch, report.JoinStats.DroppedAmbiguous,
		report.JoinStats.DroppedNoPartition)

	if *out != "" {
		if err := writeJSON(*out, report); err != nil {
			return err
		}
		fmt.Printf("Report written to %s\n", *out)
	}
	return nil
}

func runSlate(args []string) error {
	fs := flag.NewFlagSet("slate", flag.ExitOnError)
	cfgPath := fs.String("config", "", "Path to config file (defaults apply when empty)")
	logs := fs.String("gamelogs", "", "Game log CSV file or directory (overrides config)")
	slateFile := fs.String("slate", "", "Slate CSV: date,home,away,night,home_prob")
	oddsFile := fs.String("odds", "", "Odds CSV: date,team,book,decimal_price (overrides config)")
	out := fs.String("out", "", "Optional JSON output file for recommendations")
	dryRun := fs.Bool("dry-run", false, "Evaluate without persisting bets")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *slateFile == "" {
		return fmt.Errorf("-slate is required")
	}

	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		return err
	}
	source := cfg.Data.GameLogDir
	if *logs != "" {
		source = *logs
	}
	log, err := loadGameLogs(source)
	if err != nil {
		return err
	}
	odds := cfg.Data.OddsFile
	if *oddsFile != "" {
		odds = *oddsFile
	}
	quotes, err := loadQuotes(odds)
	if err != nil {
		return err
	}
	fixtures, err := loadSlate(*slateFile, quotes)
	if err != nil {
		return err
	}

	var store *storage.Storage
	if !*dryRun {
		store, err = storage.New(cfg.Storage.DBPath)
		if err != nil {
			return err
		}
		defer store.Close()
	}

	p, err := newPipeline(cfg, store)
	if err != nil {
		return err
	}
	report, err := p.EvaluateSlate(context.Background(), log, fixtures)
	if err != nil {
		return err
	}

	printSlate(report)
	if *out != "" {
		if err := writeJSON(*out, report); err != nil {
			return err
		}
		fmt.Printf("Recommendations written to %s\n", *out)
	}
	return nil
}

func runSettle(args []string) error {
	fs := flag.NewFlagSet("settle", flag.ExitOnError)
	cfgPath := fs.String("config", "", "Path to config file (defaults apply when empty)")
	id := fs.String("id", "", "Bet ID to settle")
	outcome := fs.String("outcome", "", "Outcome: W, L, or P")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == "" || *outcome == "" {
		return fmt.Errorf("-id and -outcome are required")
	}

	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		return err
	}
	store, err := storage.New(cfg.Storage.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Settle(*id, storage.Outcome(strings.ToUpper(*outcome))); err != nil {
		return err
	}
	fmt.Printf("Settled %s as %s\n", *id, strings.ToUpper(*outcome))
	return nil
}

func runLedger(args []string) error {
	fs := flag.NewFlagSet("ledger", flag.ExitOnError)
	cfgPath := fs.String("config", "", "Path to config file (defaults apply when empty)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		return err
	}
	store, err := storage.New(cfg.Storage.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	ledger, err := store.LedgerSummary()
	if err != nil {
		return err
	}
	open, err := store.OpenBets()
	if err != nil {
		return err
	}

	fmt.Println()
	fmt.Println("==================== BET LEDGER ====================")
	fmt.Printf("  Settled bets:  %d\n", ledger.Settled)
	fmt.Printf("  Open bets:     %d\n", ledger.Open)
	fmt.Printf("  Total staked:  %.2f units\n", ledger.StakedUnits)
	fmt.Printf("  Net P&L:       %+.2f units\n", ledger.PnLUnits)
	fmt.Println("====================================================")
	if len(open) > 0 {
		fmt.Println()
		fmt.Println("Open bets:")
		for _, b := range open {
			fmt.Printf("  %s  %s %s @ %.2f  stake %.2f  (%s)\n",
				b.GameDate.Format("2006-01-02"), b.Team, b.Book,
				b.DecimalPrice, b.StakeUnits, b.ID)
		}
	}
	return nil
}

func newPipeline(cfg *config.Config, store *storage.Storage) (*pipeline.Pipeline, error) {
	var snapshots *matchup.SnapshotCache
	// Snapshot, pitcher, and starter providers attach here when an
	// upstream stats source is configured.
	return pipeline.New(pipeline.Options{
		Windows:   cfg.Features.Windows,
		Staking:   cfg.Staking,
		Store:     store,
		Snapshots: snapshots,
	})
}

// loadGameLogs reads one CSV file, or every *.csv under a directory.
func loadGameLogs(path string) (gamelog.Log, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("game log source: %w", err)
	}
	if !info.IsDir() {
		return gamelog.ReadCSV(path)
	}

	matches, err := filepath.Glob(filepath.Join(path, "*.csv"))
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("no game log CSVs under %s", path)
	}
	var all gamelog.Log
	for _, m := range matches {
		log, err := gamelog.ReadCSV(m)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", m, err)
		}
		all = append(all, log...)
	}
	return all, nil
}

// loadSlate parses the fixture CSV and attaches each fixture's quotes.
// Team names resolve through the canonical code table.
func loadSlate(path string, quotes map[slateKey][]staking.Quote) ([]pipeline.Fixture, error) {
	rows, err := readCSVRows(path, 5)
	if err != nil {
		return nil, err
	}

	var fixtures []pipeline.Fixture
	for i, rec := range rows {
		date, err := time.Parse("2006-01-02", rec[0])
		if err != nil {
			return nil, fmt.Errorf("slate row %d: bad date %q", i+1, rec[0])
		}
		home, ok := teams.Resolve(rec[1])
		if !ok {
			return nil, fmt.Errorf("slate row %d: unknown home team %q", i+1, rec[1])
		}
		away, ok := teams.Resolve(rec[2])
		if !ok {
			return nil, fmt.Errorf("slate row %d: unknown away team %q", i+1, rec[2])
		}
		night := strings.EqualFold(rec[3], "N") || strings.EqualFold(rec[3], "night")
		prob, err := strconv.ParseFloat(rec[4], 64)
		if err != nil {
			return nil, fmt.Errorf("slate row %d: bad probability %q", i+1, rec[4])
		}

		fixtures = append(fixtures, pipeline.Fixture{
			Event:       matchup.Event{Date: date, HomeTeam: home, AwayTeam: away, Night: night},
			HomeWinProb: prob,
			Quotes:      quotes[slateKey{date: rec[0], team: home}],
		})
	}
	return fixtures, nil
}

type slateKey struct {
	date string
	team string
}

// loadQuotes parses the odds CSV into per-(date, team) quote lists.
func loadQuotes(path string) (map[slateKey][]staking.Quote, error) {
	rows, err := readCSVRows(path, 4)
	if err != nil {
		return nil, err
	}

	quotes := make(map[slateKey][]staking.Quote)
	for i, rec := range rows {
		team, ok := teams.Resolve(rec[1])
		if !ok {
			return nil, fmt.Errorf("odds row %d: unknown team %q", i+1, rec[1])
		}
		price, err := strconv.ParseFloat(rec[3], 64)
		if err != nil {
			return nil, fmt.Errorf("odds row %d: bad price %q", i+1, rec[3])
		}
		key := slateKey{date: rec[0], team: team}
		quotes[key] = append(quotes[key], staking.Quote{
			Team:         team,
			Book:         rec[2],
			DecimalPrice: price,
		})
	}
	return quotes, nil
}

// readCSVRows reads all data rows, skipping a header when the first
// field does not parse as a date.
func readCSVRows(path string, minFields int) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	var rows [][]string
	first := true
	for {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		if first {
			first = false
			if _, err := time.Parse("2006-01-02", rec[0]); err != nil {
				continue // header row
			}
		}
		if len(rec) < minFields {
			return nil, fmt.Errorf("%s: row has %d fields, want %d", path, len(rec), minFields)
		}
		rows = append(rows, rec)
	}
	return rows, nil
}

func printSlate(report *pipeline.SlateReport) {
	fmt.Println()
	fmt.Println("==================== SLATE ====================")
	fmt.Printf("  Fixtures:    %d\n", report.Fixtures)
	fmt.Printf("  Assembled:   %d\n", report.Assembled)
	fmt.Printf("  Skipped:     %d\n", report.Skipped)
	fmt.Printf("  Qualifying:  %d\n", report.Qualifying)
	fmt.Println("===============================================")
	for _, rec := range report.Recommendations {
		verdict := "PASS"
		if rec.Qualifies {
			verdict = fmt.Sprintf("BET %.2f units", rec.StakeUnits)
		}
		fmt.Printf("  %s @ %s %.2f | p=%.3f implied=%.3f edge=%+.3f ev=%+.3f | %s\n",
			rec.Team, rec.Book, rec.DecimalPrice,
			rec.ModelProb, rec.ImpliedProb, rec.Edge, rec.EV, verdict)
		if !rec.Qualifies && rec.Reason != "" {
			fmt.Printf("    reason: %s\n", rec.Reason)
		}
	}
	fmt.Println()
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
