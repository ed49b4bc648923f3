// Package storage provides SQLite-backed persistence for feature rows,
// carry state, and staking recommendations.
package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/quantpond/mlbedge/pkg/features"
	"github.com/quantpond/mlbedge/pkg/gamelog"
	"github.com/quantpond/mlbedge/pkg/staking"
	_ "modernc.org/sqlite"
)

// Outcome is the settled result of a recommendation.
type Outcome string

const (
	OutcomeWin  Outcome = "W"
	OutcomeLoss Outcome = "L"
	OutcomePush Outcome = "P"
)

// Bet is a persisted recommendation plus its settlement, if any.
type Bet struct {
	staking.Recommendation

	GameDate  time.Time `json:"game_date"`
	CreatedAt time.Time `json:"created_at"`
	Settled   bool      `json:"settled"`
	Outcome   Outcome   `json:"outcome,omitempty"`
	PnLUnits  float64   `json:"pnl_units"`
}

// Ledger summarizes the settled bet history.
type Ledger struct {
	Settled     int     `json:"settled"`
	Open        int     `json:"open"`
	StakedUnits float64 `json:"staked_units"`
	PnLUnits    float64 `json:"pnl_units"`
}

// Storage wraps a SQLite database for all persistence operations.
type Storage struct {
	db *sql.DB
}

// New opens or creates the SQLite database at dbPath.
// An empty dbPath defaults to $TMPDIR/mlbedge/data.db.
func New(dbPath string) (*Storage, error) {
	if dbPath == "" {
		dbPath = filepath.Join(os.TempDir(), "mlbedge", "data.db")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer; WAL allows concurrent readers
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys=ON`); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	s := &Storage{db: db}
	if err := s.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) createTables() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS feature_rows (
			team         TEXT NOT NULL,
			game_date    INTEGER NOT NULL,
			game_number  INTEGER NOT NULL,
			opponent     TEXT NOT NULL,
			home         INTEGER NOT NULL,
			night        INTEGER NOT NULL,
			runs_for     INTEGER NOT NULL,
			runs_against INTEGER NOT NULL,
			result       TEXT NOT NULL,
			rank         INTEGER NOT NULL,
			run_diff     INTEGER NOT NULL,
			streak       INTEGER NOT NULL,
			windows      TEXT NOT NULL DEFAULT '{}',
			PRIMARY KEY (team, game_date, game_number)
		)`,
		`CREATE TABLE IF NOT EXISTS carry_state (
			team        TEXT PRIMARY KEY,
			streak      INTEGER NOT NULL,
			last_result TEXT NOT NULL,
			updated_at  INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS bets (
			id            TEXT PRIMARY KEY,
			game_date     INTEGER NOT NULL,
			team          TEXT NOT NULL,
			book          TEXT NOT NULL,
			model_prob    REAL NOT NULL,
			decimal_price REAL NOT NULL,
			implied_prob  REAL NOT NULL,
			edge          REAL NOT NULL,
			ev            REAL NOT NULL,
			full_kelly    REAL NOT NULL,
			used_fraction REAL NOT NULL,
			stake_units   REAL NOT NULL,
			qualifies     INTEGER NOT NULL,
			reason        TEXT,
			created_at    INTEGER NOT NULL,
			outcome       TEXT,
			pnl_units     REAL NOT NULL DEFAULT 0,
			settled_at    INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_bets_game_date ON bets(game_date)`,
		`CREATE INDEX IF NOT EXISTS idx_feature_rows_date ON feature_rows(game_date)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// UpsertFeatureRows writes a batch of derived rows in one transaction.
// Replays of the same rows overwrite in place, so reruns are idempotent.
func (s *Storage) UpsertFeatureRows(rows []features.TeamFeatureRow) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO feature_rows
			(team, game_date, game_number, opponent, home, night,
			 runs_for, runs_against, result, rank, run_diff, streak, windows)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range rows {
		windowsJSON, err := json.Marshal(r.Windows)
		if err != nil {
			return fmt.Errorf("failed to marshal windows: %w", err)
		}
		if _, err := stmt.Exec(
			r.Team, r.Date.UnixNano(), r.GameNumber, r.Opponent,
			boolToInt(r.Home), boolToInt(r.Night),
			r.RunsFor, r.RunsAgainst, string(r.Result), r.Rank,
			r.RunDiff, r.Streak, string(windowsJSON),
		); err != nil {
			return fmt.Errorf("failed to insert feature row: %w", err)
		}
	}
	return tx.Commit()
}

// FeatureRows loads a team's rows ordered by date then game number.
func (s *Storage) FeatureRows(team string) ([]features.TeamFeatureRow, error) {
	rows, err := s.db.Query(`
		SELECT team, game_date, game_number, opponent, home, night,
		       runs_for, runs_against, result, rank, run_diff, streak, windows
		FROM feature_rows WHERE team = ?
		ORDER BY game_date, game_number`, team)
	if err != nil {
		return nil, fmt.Errorf("failed to query feature rows: %w", err)
	}
	defer rows.Close()

	var out []features.TeamFeatureRow
	for rows.Next() {
		var r features.TeamFeatureRow
		var dateNano int64
		var home, night int
		var result, windowsJSON string

		err := rows.Scan(
			&r.Team, &dateNano, &r.GameNumber, &r.Opponent, &home, &night,
			&r.RunsFor, &r.RunsAgainst, &result, &r.Rank,
			&r.RunDiff, &r.Streak, &windowsJSON,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan feature row: %w", err)
		}
		if err := json.Unmarshal([]byte(windowsJSON), &r.Windows); err != nil {
			return nil, fmt.Errorf("failed to unmarshal windows: %w", err)
		}
		r.Date = time.Unix(0, dateNano).UTC()
		r.Home = home != 0
		r.Night = night != 0
		r.Result = gamelog.Result(result)
		out = append(out, r)
	}
	return out, rows.Err()
}

// SaveCarry persists a team's streak state for the next incremental run.
func (s *Storage) SaveCarry(team string, carry features.Carry) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO carry_state (team, streak, last_result, updated_at)
		VALUES (?,?,?,?)`,
		team, carry.Streak, string(carry.LastResult), time.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to save carry: %w", err)
	}
	return nil
}

// LoadCarries returns all persisted carry states keyed by team.
func (s *Storage) LoadCarries() (map[string]features.Carry, error) {
	rows, err := s.db.Query(`SELECT team, streak, last_result FROM carry_state`)
	if err != nil {
		return nil, fmt.Errorf("failed to query carries: %w", err)
	}
	defer rows.Close()

	carries := make(map[string]features.Carry)
	for rows.Next() {
		var team, lastResult string
		var c features.Carry
		if err := rows.Scan(&team, &c.Streak, &lastResult); err != nil {
			return nil, fmt.Errorf("failed to scan carry: %w", err)
		}
		c.LastResult = gamelog.Result(lastResult)
		c.Valid = true
		carries[team] = c
	}
	return carries, rows.Err()
}

// AddBets records a run's recommendations against a fixture date.
// Recommendation IDs are deterministic, so replaying a run overwrites
// the same rows instead of duplicating them. Settled rows keep their
// settlement.
func (s *Storage) AddBets(gameDate time.Time, recs []staking.Recommendation) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UnixNano()
	for _, r := range recs {
		_, err := tx.Exec(`
			INSERT INTO bets
				(id, game_date, team, book, model_prob, decimal_price, implied_prob,
				 edge, ev, full_kelly, used_fraction, stake_units, qualifies, reason,
				 created_at)
			VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
			ON CONFLICT(id) DO UPDATE SET
				model_prob=excluded.model_prob, decimal_price=excluded.decimal_price,
				implied_prob=excluded.implied_prob, edge=excluded.edge, ev=excluded.ev,
				full_kelly=excluded.full_kelly, used_fraction=excluded.used_fraction,
				stake_units=excluded.stake_units, qualifies=excluded.qualifies,
				reason=excluded.reason
			WHERE bets.outcome IS NULL`,
			r.ID, gameDate.UnixNano(), r.Team, r.Book, r.ModelProb, r.DecimalPrice,
			r.ImpliedProb, r.Edge, r.EV, r.FullKelly, r.UsedFraction, r.StakeUnits,
			boolToInt(r.Qualifies), r.Reason, now,
		)
		if err != nil {
			return fmt.Errorf("failed to insert bet: %w", err)
		}
	}
	return tx.Commit()
}

// OpenBets returns qualifying, unsettled bets ordered by fixture date.
func (s *Storage) OpenBets() ([]Bet, error) {
	return s.queryBets(`WHERE outcome IS NULL AND qualifies = 1 ORDER BY game_date, id`)
}

// BetsByDate returns all bets recorded against one fixture date.
func (s *Storage) BetsByDate(gameDate time.Time) ([]Bet, error) {
	return s.queryBets(`WHERE game_date = ? ORDER BY id`, gameDate.UnixNano())
}

func (s *Storage) queryBets(where string, args ...any) ([]Bet, error) {
	rows, err := s.db.Query(`
		SELECT id, game_date, team, book, model_prob, decimal_price, implied_prob,
		       edge, ev, full_kelly, used_fraction, stake_units, qualifies, reason,
		       created_at, outcome, pnl_units
		FROM bets `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query bets: %w", err)
	}
	defer rows.Close()

	var bets []Bet
	for rows.Next() {
		var b Bet
		var gameDateNano, createdAtNano int64
		var qualifies int
		var reason, outcome sql.NullString

		err := rows.Scan(
			&b.ID, &gameDateNano, &b.Team, &b.Book, &b.ModelProb, &b.DecimalPrice,
			&b.ImpliedProb, &b.Edge, &b.EV, &b.FullKelly, &b.UsedFraction,
			&b.StakeUnits, &qualifies, &reason, &createdAtNano, &outcome, &b.PnLUnits,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan bet: %w", err)
		}
		b.GameDate = time.Unix(0, gameDateNano).UTC()
		b.CreatedAt = time.Unix(0, createdAtNano).UTC()
		b.Qualifies = qualifies != 0
		b.Reason = reason.String
		if outcome.Valid {
			b.Settled = true
			b.Outcome = Outcome(outcome.String)
		}
		bets = append(bets, b)
	}
	return bets, rows.Err()
}

// Settle records a bet's outcome and realized profit in units: a win
// pays stake times (price - 1), a loss forfeits the stake, a push
// returns it.
func (s *Storage) Settle(id string, outcome Outcome) error {
	switch outcome {
	case OutcomeWin, OutcomeLoss, OutcomePush:
	default:
		return fmt.Errorf("invalid outcome %q", outcome)
	}

	var stake, price float64
	row := s.db.QueryRow(`SELECT stake_units, decimal_price FROM bets WHERE id = ?`, id)
	if err := row.Scan(&stake, &price); err == sql.ErrNoRows {
		return fmt.Errorf("bet not found: %s", id)
	} else if err != nil {
		return fmt.Errorf("failed to load bet: %w", err)
	}

	var pnl float64
	switch outcome {
	case OutcomeWin:
		pnl = stake * (price - 1)
	case OutcomeLoss:
		pnl = -stake
	}

	_, err := s.db.Exec(`
		UPDATE bets SET outcome = ?, pnl_units = ?, settled_at = ? WHERE id = ?`,
		string(outcome), pnl, time.Now().UnixNano(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to settle bet: %w", err)
	}
	return nil
}

// LedgerSummary aggregates the qualifying bet history.
func (s *Storage) LedgerSummary() (Ledger, error) {
	var l Ledger
	row := s.db.QueryRow(`
		SELECT
			COUNT(CASE WHEN outcome IS NOT NULL THEN 1 END),
			COUNT(CASE WHEN outcome IS NULL THEN 1 END),
			COALESCE(SUM(CASE WHEN outcome IS NOT NULL THEN stake_units END), 0),
			COALESCE(SUM(pnl_units), 0)
		FROM bets WHERE qualifies = 1`)
	if err := row.Scan(&l.Settled, &l.Open, &l.StakedUnits, &l.PnLUnits); err != nil {
		return Ledger{}, fmt.Errorf("failed to summarize ledger: %w", err)
	}
	return l, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
