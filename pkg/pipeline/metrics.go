package pipeline

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics collects and exposes pipeline Prometheus metrics.
type Metrics struct {
	registry *prometheus.Registry

	// Feature build metrics
	FeatureRowsBuilt *prometheus.CounterVec
	TeamsBuilt       *prometheus.CounterVec
	JoinDrops        *prometheus.CounterVec

	// Assembly metrics
	FixturesAssembled *prometheus.CounterVec
	FixturesSkipped   *prometheus.CounterVec

	// Staking metrics
	RecommendationsTotal *prometheus.CounterVec
	SignalEdge           *prometheus.HistogramVec
	StakeUnits           *prometheus.HistogramVec

	// Run metrics
	RunsTotal    *prometheus.CounterVec
	RunDuration  *prometheus.HistogramVec
	StageLatency *prometheus.HistogramVec
}

// NewMetrics creates a pipeline metrics collector on its own registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		FeatureRowsBuilt: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mlbedge_feature_rows_built_total",
				Help: "Total number of feature rows derived",
			},
			[]string{"team"},
		),
		TeamsBuilt: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mlbedge_teams_built_total",
				Help: "Total number of per-team feature builds",
			},
			[]string{"status"},
		),
		JoinDrops: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mlbedge_join_drops_total",
				Help: "Rows dropped during the opponent join",
			},
			[]string{"reason"},
		),

		FixturesAssembled: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mlbedge_fixtures_assembled_total",
				Help: "Total number of fixtures featurized",
			},
			[]string{"status"},
		),
		FixturesSkipped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mlbedge_fixtures_skipped_total",
				Help: "Fixtures skipped during assembly",
			},
			[]string{"reason"},
		),

		RecommendationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mlbedge_recommendations_total",
				Help: "Total number of staking recommendations",
			},
			[]string{"qualifies"},
		),
		SignalEdge: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mlbedge_signal_edge",
				Help:    "Model edge over implied probability",
				Buckets: prometheus.LinearBuckets(-0.10, 0.02, 16), // -10% to +20%
			},
			[]string{},
		),
		StakeUnits: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mlbedge_stake_units",
				Help:    "Recommended stake size in bankroll units",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{},
		),

		RunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mlbedge_runs_total",
				Help: "Total number of pipeline runs",
			},
			[]string{"status"},
		),
		RunDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mlbedge_run_duration_seconds",
				Help:    "Total pipeline run duration",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
			},
			[]string{},
		),
		StageLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mlbedge_stage_latency_seconds",
				Help:    "Individual stage latency",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~8s
			},
			[]string{"stage"},
		),
	}

	m.registerAll()

	return m
}

func (m *Metrics) registerAll() {
	m.registry.MustRegister(
		m.FeatureRowsBuilt,
		m.TeamsBuilt,
		m.JoinDrops,
		m.FixturesAssembled,
		m.FixturesSkipped,
		m.RecommendationsTotal,
		m.SignalEdge,
		m.StakeUnits,
		m.RunsTotal,
		m.RunDuration,
		m.StageLatency,
	)
}

// Registry returns the prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordTeamBuild records one per-team feature build.
func (m *Metrics) RecordTeamBuild(team, status string, rows int) {
	m.TeamsBuilt.WithLabelValues(status).Inc()
	if rows > 0 {
		m.FeatureRowsBuilt.WithLabelValues(team).Add(float64(rows))
	}
}

// RecordJoinDrops records opponent-join drop counts by reason.
func (m *Metrics) RecordJoinDrops(noMatch, ambiguous, noPartition int) {
	m.JoinDrops.WithLabelValues("no_match").Add(float64(noMatch))
	m.JoinDrops.WithLabelValues("ambiguous").Add(float64(ambiguous))
	m.JoinDrops.WithLabelValues("no_partition").Add(float64(noPartition))
}

// RecordAssembly records a fixture assembly attempt.
func (m *Metrics) RecordAssembly(status string) {
	m.FixturesAssembled.WithLabelValues(status).Inc()
}

// RecordSkip records a skipped fixture.
func (m *Metrics) RecordSkip(reason string) {
	m.FixturesSkipped.WithLabelValues(reason).Inc()
}

// RecordRecommendation records one staking verdict.
func (m *Metrics) RecordRecommendation(qualifies bool, edge, stake float64) {
	q := "no"
	if qualifies {
		q = "yes"
	}
	m.RecommendationsTotal.WithLabelValues(q).Inc()
	m.SignalEdge.WithLabelValues().Observe(edge)
	if stake > 0 {
		m.StakeUnits.WithLabelValues().Observe(stake)
	}
}

// RecordRun records a pipeline run.
func (m *Metrics) RecordRun(status string, durationSec float64) {
	m.RunsTotal.WithLabelValues(status).Inc()
	if durationSec > 0 {
		m.RunDuration.WithLabelValues().Observe(durationSec)
	}
}

// RecordStage records a stage execution.
func (m *Metrics) RecordStage(stage Stage, durationSec float64) {
	m.StageLatency.WithLabelValues(string(stage)).Observe(durationSec)
}

var (
	defaultMetrics *Metrics
	once           sync.Once
)

// DefaultMetrics returns the shared global metrics instance.
func DefaultMetrics() *Metrics {
	once.Do(func() {
		defaultMetrics = NewMetrics()
	})
	return defaultMetrics
}
