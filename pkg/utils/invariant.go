// Invariants mark conditions that only fail when there is a bug in this code base, e.g. a cache whose accounted
// memory went negative, or a constructor that received a non-positive capacity from another package.
// A violated invariant does not crash the server: it logs an error and bumps the `invariants_total` counter so
// that the violation can be alerted on. The caller is still responsible for recovering, usually by clamping the
// bad value or returning early.
//
// Do not raise invariants for failures caused by the outside world (missing files, corrupt images, upstream API
// errors). Those are regular errors.

package utils

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	promclient "github.com/prometheus/client_model/go"
)

var invariantsMetric = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "invariants_total",
	Help: "The total number of invariant violations",
}, []string{
	"module", // The package or component that detected the violation.
	"type",   // A short snake_case name for the violated condition.
})

// RaiseInvariant records a violated invariant. Test binaries built with TestMode=true panic instead.
func RaiseInvariant(module, invariantType, msg string, args ...any) {
	invariantsMetric.WithLabelValues(module, invariantType).Inc()
	slog.With("invariant", invariantType, "module", module).Error(msg, args...)
	if IsTestMode {
		panic("invariant violated: " + invariantType)
	}
}

// GetMetricValue returns the number of times the given invariant has been raised.
func GetMetricValue(module, invariantType string) int {
	var metric = &promclient.Metric{}
	if err := invariantsMetric.WithLabelValues(module, invariantType).Write(metric); err != nil {
		slog.Error("Failed to read the invariants metric.", "error", err)
		return 0
	}
	return int(metric.Counter.GetValue())
}
