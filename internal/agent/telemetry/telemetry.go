package telemetry

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lexhelper/counsel/config"
)

// Telemetry tracks pipeline performance and LLM spend. All methods are
// safe for concurrent use; a nil *Telemetry disables recording.
type Telemetry struct {
	cfg    config.TelemetryConfig
	logger *log.Logger

	mu          sync.RWMutex
	totalRuns   int64
	failedRuns  int64
	totalTokens int64
	totalCost   float64
	modelCosts  map[string]float64
	agentRuns   map[string]int64

	registry      *prometheus.Registry
	runsTotal     *prometheus.CounterVec
	runDuration   prometheus.Histogram
	runIterations prometheus.Histogram
	qualityScore  prometheus.Histogram
	llmTokens     *prometheus.CounterVec
	llmCost       *prometheus.CounterVec
	agentDuration *prometheus.HistogramVec
}

// RunEvent describes one completed end-to-end research run.
type RunEvent struct {
	Query        string
	StartTime    time.Time
	EndTime      time.Time
	Success      bool
	Error        string
	Iterations   int
	QualityScore float64
	FinalQuality string
}

// AgentEvent describes one agent capability invocation.
type AgentEvent struct {
	Role     string
	Duration time.Duration
	Success  bool
}

// New creates a Telemetry with its own prometheus registry.
func New(cfg config.TelemetryConfig, logger *log.Logger) *Telemetry {
	if logger == nil {
		logger = log.New(log.Writer(), "[TELEMETRY] ", log.LstdFlags)
	}
	registry := prometheus.NewRegistry()
	t := &Telemetry{
		cfg:        cfg,
		logger:     logger,
		modelCosts: map[string]float64{},
		agentRuns:  map[string]int64{},
		registry:   registry,
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "counsel_runs_total",
			Help: "Completed research runs by outcome.",
		}, []string{"outcome"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "counsel_run_duration_seconds",
			Help:    "End-to-end research run duration.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
		runIterations: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "counsel_run_iterations",
			Help:    "Verify/revise iterations per run.",
			Buckets: []float64{1, 2, 3, 4, 5},
		}),
		qualityScore: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "counsel_final_quality_score",
			Help:    "Final verification score per run.",
			Buckets: prometheus.LinearBuckets(0, 1, 11),
		}),
		llmTokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "counsel_llm_tokens_total",
			Help: "LLM tokens consumed by model and direction.",
		}, []string{"model", "direction"}),
		llmCost: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "counsel_llm_cost_dollars_total",
			Help: "Estimated LLM spend by model.",
		}, []string{"model"}),
		agentDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "counsel_agent_duration_seconds",
			Help:    "Agent capability invocation latency by role.",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
		}, []string{"role"}),
	}
	registry.MustRegister(t.runsTotal, t.runDuration, t.runIterations,
		t.qualityScore, t.llmTokens, t.llmCost, t.agentDuration)
	return t
}

// MetricsHandler serves this instance's prometheus registry.
func (t *Telemetry) MetricsHandler() http.Handler {
	if t == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(t.registry, promhttp.HandlerOpts{})
}

// RecordRunEvent records a completed research run.
func (t *Telemetry) RecordRunEvent(ev RunEvent) {
	if t == nil || !t.cfg.Enabled {
		return
	}
	t.mu.Lock()
	t.totalRuns++
	if !ev.Success {
		t.failedRuns++
	}
	t.mu.Unlock()

	outcome := "success"
	if !ev.Success {
		outcome = "failure"
	}
	t.runsTotal.WithLabelValues(outcome).Inc()
	if ev.Success {
		t.runDuration.Observe(ev.EndTime.Sub(ev.StartTime).Seconds())
		t.runIterations.Observe(float64(ev.Iterations))
		t.qualityScore.Observe(ev.QualityScore)
	}
	t.logger.Printf("run finished: success=%v iterations=%d quality=%s score=%.1f elapsed=%v",
		ev.Success, ev.Iterations, ev.FinalQuality, ev.QualityScore, ev.EndTime.Sub(ev.StartTime))
}

// RecordAgentEvent records one capability invocation.
func (t *Telemetry) RecordAgentEvent(ev AgentEvent) {
	if t == nil || !t.cfg.Enabled {
		return
	}
	t.mu.Lock()
	t.agentRuns[ev.Role]++
	t.mu.Unlock()
	t.agentDuration.WithLabelValues(ev.Role).Observe(ev.Duration.Seconds())
}

// RecordLLMUsage records token consumption and estimated cost for one
// model call.
func (t *Telemetry) RecordLLMUsage(model string, promptTokens, completionTokens int64, cost float64) {
	if t == nil || !t.cfg.Enabled || !t.cfg.CostTracking {
		return
	}
	t.mu.Lock()
	t.totalTokens += promptTokens + completionTokens
	t.totalCost += cost
	t.modelCosts[model] += cost
	t.mu.Unlock()
	t.llmTokens.WithLabelValues(model, "prompt").Add(float64(promptTokens))
	t.llmTokens.WithLabelValues(model, "completion").Add(float64(completionTokens))
	t.llmCost.WithLabelValues(model).Add(cost)
}

// CostSummary is a point-in-time snapshot of accumulated LLM spend.
type CostSummary struct {
	TotalCost   float64            `json:"total_cost"`
	TotalTokens int64              `json:"total_tokens"`
	ModelCosts  map[string]float64 `json:"model_costs"`
}

// GetCostSummary returns the accumulated spend snapshot.
func (t *Telemetry) GetCostSummary() CostSummary {
	if t == nil {
		return CostSummary{ModelCosts: map[string]float64{}}
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	models := make(map[string]float64, len(t.modelCosts))
	for k, v := range t.modelCosts {
		models[k] = v
	}
	return CostSummary{TotalCost: t.totalCost, TotalTokens: t.totalTokens, ModelCosts: models}
}

// RunCounts returns total and failed run counts.
func (t *Telemetry) RunCounts() (total, failed int64) {
	if t == nil {
		return 0, 0
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.totalRuns, t.failedRuns
}
