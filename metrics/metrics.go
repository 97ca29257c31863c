package metrics

// metrics.go exposes retry activity as Prometheus metrics.

import (
	"fmt"
	"sync"

	"github.com/perfgo/testretry/retry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "testretry"

// Metrics implements retry.Observer on its own registry, so a run can be
// written out as a node exporter textfile once it has finished.
type Metrics struct {
	registry *prometheus.Registry

	// AttemptsTotal counts executed attempts.
	// Labels: result (PASSED, FAILED, SKIPPED)
	AttemptsTotal *prometheus.CounterVec

	// RetriesRequestedTotal counts retries dispatched to the engine.
	RetriesRequestedTotal prometheus.Counter

	// BudgetTripped is 1 once the failure budget stopped further retries.
	BudgetTripped prometheus.Gauge

	// Tests reports the number of tests per final disposition.
	// Labels: disposition (PASSED, FAILED, FLAKY-PASSED-AFTER-RETRY, SKIPPED)
	Tests *prometheus.GaugeVec

	// Verdict is 1 for a passing and 0 for a failing run.
	Verdict prometheus.Gauge

	mu       sync.Mutex
	finished bool
}

var _ retry.Observer = (*Metrics)(nil)

func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	m := &Metrics{
		registry: reg,
		AttemptsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attempts_total",
			Help:      "Total number of test attempts by result",
		}, []string{"result"}),
		RetriesRequestedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retries_requested_total",
			Help:      "Total number of retries requested from the execution engine",
		}),
		BudgetTripped: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "budget_tripped",
			Help:      "Whether the failure budget was exhausted during the run",
		}),
		Tests: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tests",
			Help:      "Number of tests by final disposition",
		}, []string{"disposition"}),
		Verdict: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "verdict_passed",
			Help:      "Whether the run passed (1) or failed (0)",
		}),
	}

	for _, r := range []retry.Result{retry.ResultPassed, retry.ResultFailed, retry.ResultSkipped} {
		m.AttemptsTotal.WithLabelValues(string(r))
	}
	for _, d := range []retry.Disposition{retry.DispositionPassed, retry.DispositionFailed, retry.DispositionFlaky, retry.DispositionSkipped} {
		m.Tests.WithLabelValues(string(d))
	}
	return m
}

// Registry returns the registry holding the run's metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) OnAttempt(_ retry.TestIdentity, attempt retry.Attempt) {
	m.AttemptsTotal.WithLabelValues(string(attempt.Result)).Inc()
}

func (m *Metrics) OnRetryRequested(retry.TestIdentity, int) {
	m.RetriesRequestedTotal.Inc()
}

func (m *Metrics) OnBudgetTripped(int) {
	m.BudgetTripped.Set(1)
}

func (m *Metrics) OnVerdict(verdict *retry.RunVerdict) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finished = true

	for _, d := range []retry.Disposition{retry.DispositionPassed, retry.DispositionFailed, retry.DispositionFlaky, retry.DispositionSkipped} {
		m.Tests.WithLabelValues(string(d)).Set(float64(verdict.Count(d)))
	}
	if verdict.Passed() {
		m.Verdict.Set(1)
	} else {
		m.Verdict.Set(0)
	}
}

// WriteTextfile writes the metrics in the text exposition format to path.
// The file is replaced atomically.
func (m *Metrics) WriteTextfile(path string) error {
	m.mu.Lock()
	finished := m.finished
	m.mu.Unlock()
	if !finished {
		return fmt.Errorf("failed to write metrics: run has no verdict yet")
	}

	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics: %w", err)
	}
	return nil
}
