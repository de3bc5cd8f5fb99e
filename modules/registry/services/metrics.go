package services

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	registryComputeRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sar",
		Subsystem: "compute",
		Name:      "runs_total",
		Help:      "Total number of registry computations broken down by result.",
	}, []string{"result"})

	registryComputeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "sar",
		Subsystem: "compute",
		Name:      "duration_seconds",
		Help:      "Latency of a full load + compute of the registry.",
		Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	})

	registryIssues = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "sar",
		Subsystem: "compute",
		Name:      "issues",
		Help:      "Issues raised by the last computation broken down by level, type and severity.",
	}, []string{"level", "issue_type", "severity"})

	registryViewRows = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "sar",
		Subsystem: "compute",
		Name:      "view_rows",
		Help:      "Rows in the joined view produced by the last computation.",
	})

	registryWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sar",
		Subsystem: "registry",
		Name:      "writes_total",
		Help:      "Total number of registry write operations broken down by op and result.",
	}, []string{"op", "result"})

	registryCacheRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sar",
		Subsystem: "cache",
		Name:      "requests_total",
		Help:      "Total number of computed-result cache lookups broken down by hit/miss.",
	}, []string{"result"})
)

func recordCompute(err error, d time.Duration) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	registryComputeRuns.WithLabelValues(result).Inc()
	registryComputeDuration.Observe(d.Seconds())
}

func recordResult(res *Result) {
	registryIssues.Reset()
	for _, iss := range res.Issues {
		registryIssues.WithLabelValues(string(iss.Level), string(iss.Type), string(iss.Severity)).Inc()
	}
	registryViewRows.Set(float64(len(res.View.Rows)))
}

func recordWrite(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	registryWrites.WithLabelValues(op, result).Inc()
}

func recordCacheRequest(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	registryCacheRequests.WithLabelValues(result).Inc()
}
