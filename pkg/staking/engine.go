// Package staking converts model probabilities and market prices into
// bounded fractional-Kelly bet recommendations.
package staking

import (
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Config holds the staking parameters.
type Config struct {
	BankrollUnits       float64 `mapstructure:"bankroll_units"`
	KellyFraction       float64 `mapstructure:"kelly_fraction"`
	MinEdge             float64 `mapstructure:"min_edge"`
	MinEV               float64 `mapstructure:"min_ev"`
	MaxBankrollFraction float64 `mapstructure:"max_bankroll_fraction"`
	RoundToUnits        float64 `mapstructure:"round_to_units"`
}

/// DefaultConfig returns the production staking parameters:
// quarter-Kelly capped at 2% of a 100-unit bankroll, 6% minimum edge,
// stakes rounded to hundredths of a unit.
func DefaultConfig() Config {
	return Config{
		BankrollUnits:       100.0,
		KellyFraction:       0.25,
		MinEdge:             0.06,
		MinEV:               0.0,
		MaxBankrollFraction: 0.02,
		RoundToUnits:        0.01,
	}
}

// ConfigError indicates invalid staking parameters. Fatal, surfaced
// immediately, never retried.
type ConfigError struct {
	Msg string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("staking config: %s", e.Msg)
}

// Validate checks the configuration ranges.
func (c Config) Validate() error {
	switch {
	case c.BankrollUnits <= 0:
		return &ConfigError{Msg: fmt.Sprintf("bankroll units must be positive, got %v", c.BankrollUnits)}
	case c.KellyFraction <= 0 || c.KellyFraction > 1:
		return &ConfigError{Msg: fmt.Sprintf("kelly fraction must be in (0,1], got %v", c.KellyFraction)}
	case c.MaxBankrollFraction <= 0 || c.MaxBankrollFraction > 1:
		return &ConfigError{Msg: fmt.Sprintf("max bankroll fraction must be in (0,1], got %v", c.MaxBankrollFraction)}
	case c.RoundToUnits <= 0:
		return &ConfigError{Msg: fmt.Sprintf("round-to granularity must be positive, got %v", c.RoundToUnits)}
	case math.IsNaN(c.MinEdge) || math.IsNaN(c.MinEV):
		return &ConfigError{Msg: "min edge / min EV must be numbers"}
	}
	return nil
}

// Quote is one book's decimal price for a team.
type Quote struct {
	Team         string  `json:"team"`
	DecimalPrice float64 `json:"decimal_price"`
	Book         string  `json:"book"`
}

// BestPrice returns the quote with the highest decimal price for each
// team. Ties keep the first quote encountered.
func BestPrice(quotes []Quote) map[string]Quote {
	best := make(map[string]Quote)
	for _, q := range quotes {
		cur, ok := best[q.Team]
		if !ok || q.DecimalPrice > cur.DecimalPrice {
			best[q.Team] = q
		}
	}
	return best
}

// Opportunity is one candidate bet: a model probability against a
// market price. Edge and EV may be supplied upstream; when nil they
// are derived here.
type Opportunity struct {
	Team         string
	Book         string
	ModelProb    float64
	DecimalPrice float64
	Edge         *float64
	EV           *float64
}

// Recommendation is the engine's verdict on one opportunity.
/// Derived, read-only: recomputed each run and never mutated in place.
type Recommendation struct {
	ID           string  `json:"id"`
	Team         string  `json:"team"`
	Book         string  `json:"book"`
	ModelProb    float64 `json:"model_prob"`
	DecimalPrice float64 `json:"decimal_price"`
	ImpliedProb  float64 `json:"implied_prob"`
	Edge         float64 `json:"edge"`
	EV           float64 `json:"ev"`
	FullKelly    float64 `json:"full_kelly"`
	UsedFraction float64 `json:"used_fraction"`
	StakeUnits   float64 `json:"kelly_stake_units"`
	Qualifies    bool    `json:"qualifies"`
	Reason       string  `json:"reason,omitempty"`
}

// Engine sizes bets from already-resolved opportunities. It holds no
// bankroll state, so the same opportunities can be re-evaluated across
// multiple candidate books safely.
type Engine struct {
	cfg Config
}

// NewEngine validates the configuration and returns an engine.
func NewEngine(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Engine{cfg: cfg}, nil
}

// Config returns the engine's configuration.
func (e *Engine) Config() Config { return e.cfg }

// Evaluate sizes every opportunity independently. Low-quality rows get
// a zero stake rather than an error; that is the business rule, not a
// failure path.
func (e *Engine) Evaluate(opps []Opportunity) []Recommendation {
	out := make([]Recommendation, 0, len(opps))
	for _, opp := range opps {
		out = append(out, e.evaluateOne(opp))
	}
	return out
}

func (e *Engine) evaluateOne(opp Opportunity) Recommendation {
	rec := Recommendation{
		ID:           recommendationID(opp),
		Team:         opp.Team,
		Book:         opp.Book,
		ModelProb:    opp.ModelProb,
		DecimalPrice: opp.DecimalPrice,
	}

	p := opp.ModelProb
	d := opp.DecimalPrice
	if math.IsNaN(p) || p <= 0 || p >= 1 || math.IsNaN(d) || d <= 1 {
		rec.Reason = "malformed probability or price"
		return rec
	}

	implied := 1.0 / d
	edge := p - implied
	if opp.Edge != nil {
		edge = *opp.Edge
	}
	ev := p*d - 1.0
	if opp.EV != nil {
		ev = *opp.EV
	}

	rec.ImpliedProb = round3(implied)
	rec.Edge = round3(edge)
	rec.EV = round3(ev)

	// Full Kelly for decimal odds, clipped at zero: never a lay stake.
	b := d - 1.0
	fullKelly := 0.0
	if b > 0 {
		fullKelly = math.Max(0, (b*p-(1-p))/b)
	}
	rec.FullKelly = round3(fullKelly)

	used := clamp(fullKelly*e.cfg.KellyFraction, 0, e.cfg.MaxBankrollFraction)
	rec.UsedFraction = used

	if edge < e.cfg.MinEdge {
		rec.Reason = fmt.Sprintf("edge %.3f below minimum %.3f", edge, e.cfg.MinEdge)
		return rec
	}
	if ev < e.cfg.MinEV {
		rec.Reason = fmt.Sprintf("EV %.3f below minimum %.3f", ev, e.cfg.MinEV)
		return rec
	}
	if used <= 0 {
		rec.Reason = "no positive Kelly fraction"
		return rec
	}

	rec.Qualifies = true
	rec.StakeUnits = roundToStep(e.cfg.BankrollUnits*used, e.cfg.RoundToUnits)
	return rec
}

// recommendationID derives a stable UUID from the opportunity so that
// re-evaluating identical input yields byte-identical output.
func recommendationID(opp Opportunity) string {
	seed := fmt.Sprintf("%s|%s|%g|%g", opp.Team, opp.Book, opp.ModelProb, opp.DecimalPrice)
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(seed)).String()
}

// roundToStep rounds raw to the nearest multiple of step, half-up.
// Stakes are non-negative, so decimal's round-half-away-from-zero is
// exactly half-up here.
func roundToStep(raw, step float64) float64 {
	d := decimal.NewFromFloat(raw)
	s := decimal.NewFromFloat(step)
	units := d.Div(s).Round(0).Mul(s)
	f, _ := units.Float64()
	return f
}

func clamp(x, lo, hi float64) float64 {
	return math.Min(math.Max(x, lo), hi)
}

func round3(x float64) float64 {
	return math.Round(x*1000) / 1000
}
