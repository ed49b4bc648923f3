package staking

import (
	"errors"
	"math"
	"reflect"
	"testing"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"zero bankroll", func(c *Config) { c.BankrollUnits = 0 }, true},
		{"kelly fraction zero", func(c *Config) { c.KellyFraction = 0 }, true},
		{"kelly fraction above one", func(c *Config) { c.KellyFraction = 1.5 }, true},
		{"full kelly allowed", func(c *Config) { c.KellyFraction = 1 }, false},
		{"negative cap", func(c *Config) { c.MaxBankrollFraction = -0.1 }, true},
		{"zero rounding step", func(c *Config) { c.RoundToUnits = 0 }, true},
		{"nan edge floor", func(c *Config) { c.MinEdge = math.NaN() }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() err = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				var cfgErr *ConfigError
				if !errors.As(err, &cfgErr) {
					t.Errorf("error %v is not a *ConfigError", err)
				}
			}
		})
	}
}

func TestEvaluate_KellyWorkedExample(t *testing.T) {
	eng, err := NewEngine(Config{
		BankrollUnits:       100,
		KellyFraction:       0.25,
		MinEdge:             0.10,
		MinEV:               0.20,
		MaxBankrollFraction: 0.02,
		RoundToUnits:        0.01,
	})
	if err != nil {
		t.Fatal(err)
	}

	recs := eng.Evaluate([]Opportunity{{
		Team:         "NYY",
		Book:         "fanduel",
		ModelProb:    0.60,
		DecimalPrice: 2.00,
	}})
	rec := recs[0]

	if rec.ImpliedProb != 0.500 {
		t.Errorf("ImpliedProb = %v, want 0.500", rec.ImpliedProb)
	}
	if rec.Edge != 0.100 {
		t.Errorf("Edge = %v, want 0.100", rec.Edge)
	}
	if rec.EV != 0.200 {
		t.Errorf("EV = %v, want 0.200", rec.EV)
	}
	if rec.FullKelly != 0.20 {
		t.Errorf("FullKelly = %v, want 0.20", rec.FullKelly)
	}
	if math.Abs(rec.UsedFraction-0.02) > 1e-12 {
		t.Errorf("UsedFraction = %v, want cap 0.02", rec.UsedFraction)
	}
	if !rec.Qualifies || rec.StakeUnits != 2.00 {
		t.Errorf("StakeUnits = %v (qualifies=%v), want 2.00 units", rec.StakeUnits, rec.Qualifies)
	}
}

func TestEvaluate_MinEdgeGate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinEdge = 0.15
	eng, err := NewEngine(cfg)
	if err != nil {
		t.Fatal(err)
	}

	recs := eng.Evaluate([]Opportunity{{
		Team:         "NYY",
		ModelProb:    0.60,
		DecimalPrice: 2.00,
	}})
	rec := recs[0]
	if rec.Qualifies || rec.StakeUnits != 0 {
		t.Errorf("stake = %v (qualifies=%v), want 0 when edge below MinEdge", rec.StakeUnits, rec.Qualifies)
	}
	if rec.Edge != 0.100 {
		t.Errorf("Edge = %v, want 0.100 still reported on gated row", rec.Edge)
	}
}

func TestEvaluate_SuppliedEdgeAndEV(t *testing.T) {
	eng, err := NewEngine(DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}

	edge := 0.01 // below default MinEdge of 0.06
	ev := 0.30
	recs := eng.Evaluate([]Opportunity{{
		Team:         "BOS",
		ModelProb:    0.60,
		DecimalPrice: 2.00,
		Edge:         &edge,
		EV:           &ev,
	}})
	rec := recs[0]
	if rec.Edge != 0.01 || rec.EV != 0.30 {
		t.Errorf("supplied edge/EV not honored: %+v", rec)
	}
	if rec.Qualifies {
		t.Error("supplied edge below floor should gate the row")
	}
}

func TestEvaluate_MalformedRows(t *testing.T) {
	eng, err := NewEngine(DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}

	opps := []Opportunity{
		{Team: "A", ModelProb: 0.5, DecimalPrice: 1.0},        // b == 0 guard
		{Team: "B", ModelProb: 0, DecimalPrice: 2.0},          // prob at boundary
		{Team: "C", ModelProb: math.NaN(), DecimalPrice: 2.0}, // NaN prob
		{Team: "D", ModelProb: 0.5, DecimalPrice: 0.8},        // sub-1 price
	}
	for _, rec := range eng.Evaluate(opps) {
		if rec.Qualifies || rec.StakeUnits != 0 {
			t.Errorf("malformed row %s produced a stake: %+v", rec.Team, rec)
		}
	}
}

func TestEvaluate_NegativeKellyClipsToZero(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinEdge = -1 // let the Kelly clip do the gating
	cfg.MinEV = -1
	eng, err := NewEngine(cfg)
	if err != nil {
		t.Fatal(err)
	}

	recs := eng.Evaluate([]Opportunity{{
		Team:         "COL",
		ModelProb:    0.30,
		DecimalPrice: 1.50,
	}})
	rec := recs[0]
	if rec.FullKelly != 0 {
		t.Errorf("FullKelly = %v, want 0 for negative-edge bet", rec.FullKelly)
	}
	if rec.Qualifies || rec.StakeUnits != 0 {
		t.Errorf("negative-Kelly row got a stake: %+v", rec)
	}
}

func TestEvaluate_RoundingHalfUp(t *testing.T) {
	// used fraction 0.0175 on 100 units with 0.5-unit steps:
	// 1.75 / 0.5 = 3.5, half-up to 4 steps = 2.0 units.
	eng, err := NewEngine(Config{
		BankrollUnits:       100,
		KellyFraction:       1,
		MinEdge:             -1,
		MinEV:               -1,
		MaxBankrollFraction: 0.0175,
		RoundToUnits:        0.5,
	})
	if err != nil {
		t.Fatal(err)
	}

	recs := eng.Evaluate([]Opportunity{{
		Team:         "NYY",
		ModelProb:    0.60,
		DecimalPrice: 2.00,
	}})
	if got := recs[0].StakeUnits; got != 2.0 {
		t.Errorf("StakeUnits = %v, want 2.0 (half-up at 0.5 granularity)", got)
	}
}

func TestEvaluate_Idempotent(t *testing.T) {
	eng, err := NewEngine(DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	opps := []Opportunity{
		{Team: "NYY", Book: "fanduel", ModelProb: 0.61, DecimalPrice: 1.95},
		{Team: "BOS", Book: "draftkings", ModelProb: 0.44, DecimalPrice: 2.40},
	}
	first := eng.Evaluate(opps)
	second := eng.Evaluate(opps)
	if !reflect.DeepEqual(first, second) {
		t.Error("re-evaluating identical input changed the output")
	}
}

func TestBestPrice(t *testing.T) {
	quotes := []Quote{
		{Team: "NYY", DecimalPrice: 1.90, Book: "fanduel"},
		{Team: "NYY", DecimalPrice: 1.95, Book: "betmgm"},
		{Team: "BOS", DecimalPrice: 2.10, Book: "fanduel"},
	}
	best := BestPrice(quotes)
	if best["NYY"].Book != "betmgm" {
		t.Errorf("best NYY quote = %+v, want betmgm 1.95", best["NYY"])
	}
	if best["BOS"].DecimalPrice != 2.10 {
		t.Errorf("best BOS quote = %+v", best["BOS"])
	}
}
