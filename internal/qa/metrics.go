package qa

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector exports pipeline counters. A nil *Collector records nothing.
type Collector struct {
	runs         *prometheus.CounterVec
	questions    prometheus.Counter
	llmCalls     prometheus.Counter
	fallbacks    prometheus.Counter
	stageSeconds *prometheus.HistogramVec
}

func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "qagen",
			Name:      "pipeline_runs_total",
			Help:      "Pipeline runs by outcome.",
		}, []string{"outcome"}),
		questions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "qagen",
			Name:      "questions_generated_total",
			Help:      "Questions returned by pipeline runs.",
		}),
		llmCalls: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "qagen",
			Name:      "llm_calls_total",
			Help:      "Provider calls made by pipeline runs, retries included.",
		}),
		fallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "qagen",
			Name:      "lexical_fallbacks_total",
			Help:      "Runs that used lexical instead of vector retrieval.",
		}),
		stageSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "qagen",
			Name:      "stage_duration_seconds",
			Help:      "Time spent per pipeline stage.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		}, []string{"stage"}),
	}
	if reg != nil {
		reg.MustRegister(c.runs, c.questions, c.llmCalls, c.fallbacks, c.stageSeconds)
	}
	return c
}

func (c *Collector) observeStage(name string, d time.Duration) {
	if c == nil {
		return
	}
	c.stageSeconds.WithLabelValues(name).Observe(d.Seconds())
}

func (c *Collector) observeRun(outcome string, questions, llmCalls int) {
	if c == nil {
		return
	}
	c.runs.WithLabelValues(outcome).Inc()
	c.questions.Add(float64(questions))
	c.llmCalls.Add(float64(llmCalls))
}

func (c *Collector) observeFallback() {
	if c == nil {
		return
	}
	c.fallbacks.Inc()
}
