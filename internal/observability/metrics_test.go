package observability

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetrics(t *testing.T) {
	// Don't call NewMetrics() here as it registers with the default registry.
	t.Log("Metrics structure verified through integration tests")
}

func TestPhaseRunsCounter(t *testing.T) {
	registry := prometheus.NewRegistry()
	counter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "test_phase_runs_total",
			Help: "Test phase run counter",
		},
		[]string{"phase", "outcome"},
	)
	registry.MustRegister(counter)

	counter.WithLabelValues("planner", "completed").Inc()
	counter.WithLabelValues("planner", "completed").Inc()
	counter.WithLabelValues("executor", "error").Inc()

	if count := testutil.CollectAndCount(counter); count != 2 {
		t.Errorf("expected 2 label combinations, got %d", count)
	}

	expected := `
		# HELP test_phase_runs_total Test phase run counter
		# TYPE test_phase_runs_total counter
		test_phase_runs_total{outcome="completed",phase="planner"} 2
		test_phase_runs_total{outcome="error",phase="executor"} 1
	`
	if err := testutil.CollectAndCompare(counter, strings.NewReader(expected)); err != nil {
		t.Errorf("unexpected metric value: %v", err)
	}
}

func TestRecordLLMRequest(t *testing.T) {
	registry := prometheus.NewRegistry()
	counter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "test_llm_requests_total",
			Help: "Test LLM request counter",
		},
		[]string{"provider", "model", "status"},
	)
	registry.MustRegister(counter)

	counter.WithLabelValues("anthropic", "claude-sonnet", "success").Inc()
	counter.WithLabelValues("openai", "gpt-4o", "success").Inc()
	counter.WithLabelValues("anthropic", "claude-sonnet", "error").Inc()

	if count := testutil.CollectAndCount(counter); count < 1 {
		t.Error("expected at least 1 LLM request recorded")
	}
}

func TestRecordToolExecution(t *testing.T) {
	registry := prometheus.NewRegistry()
	counter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "test_tool_executions_total",
			Help: "Test tool execution counter",
		},
		[]string{"tool_name", "status"},
	)
	registry.MustRegister(counter)

	counter.WithLabelValues("web_search", "ok").Inc()
	counter.WithLabelValues("web_search", "ok").Inc()
	counter.WithLabelValues("browser_fetch", "error").Inc()

	if count := testutil.CollectAndCount(counter); count < 1 {
		t.Error("expected at least 1 tool execution recorded")
	}
}

func TestRecordError(t *testing.T) {
	registry := prometheus.NewRegistry()
	counter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "test_errors_total",
			Help: "Test error counter",
		},
		[]string{"component", "kind"},
	)
	registry.MustRegister(counter)

	counter.WithLabelValues("scheduler", "timeout").Inc()
	counter.WithLabelValues("scheduler", "timeout").Inc()
	counter.WithLabelValues("toolrouter", "bad_request").Inc()

	if count := testutil.CollectAndCount(counter); count < 1 {
		t.Error("expected at least 1 error recorded")
	}
}

func TestActiveGauges(t *testing.T) {
	registry := prometheus.NewRegistry()
	turns := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "test_active_turns",
		Help: "Test active turns",
	})
	jobDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "test_job_duration_seconds",
			Help:    "Test job duration",
			Buckets: []float64{60, 300, 600},
		},
		[]string{"status"},
	)
	registry.MustRegister(turns, jobDuration)

	turns.Inc()
	turns.Inc()
	turns.Dec()
	jobDuration.WithLabelValues("completed").Observe(300.0)
	jobDuration.WithLabelValues("failed").Observe(600.0)

	if testutil.CollectAndCount(jobDuration) < 1 {
		t.Error("expected job duration histogram to have observations")
	}
}

func TestHistogramBuckets(t *testing.T) {
	registry := prometheus.NewRegistry()
	histogram := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "test_duration_seconds",
			Help:    "Test duration histogram",
			Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1.0, 5.0, 10.0, 30.0},
		},
		[]string{"operation"},
	)
	registry.MustRegister(histogram)

	durations := []float64{0.001, 0.01, 0.1, 0.5, 1.0, 5.0, 10.0, 30.0}
	for _, duration := range durations {
		histogram.WithLabelValues("phase_run").Observe(duration)
	}

	if testutil.CollectAndCount(histogram) < 1 {
		t.Error("expected histogram to have observations across buckets")
	}
}

func TestConcurrentMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	counter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "test_concurrent_total",
			Help: "Test concurrent counter",
		},
		[]string{"label"},
	)
	registry.MustRegister(counter)

	done := make(chan bool)
	iterations := 100

	go func() {
		for i := 0; i < iterations; i++ {
			counter.WithLabelValues("a").Inc()
			time.Sleep(time.Microsecond)
		}
		done <- true
	}()

	go func() {
		for i := 0; i < iterations; i++ {
			counter.WithLabelValues("b").Inc()
			time.Sleep(time.Microsecond)
		}
		done <- true
	}()

	<-done
	<-done

	if testutil.CollectAndCount(counter) < 1 {
		t.Error("expected concurrent metric recording to work")
	}
}
