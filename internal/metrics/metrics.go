// Package metrics declares the Prometheus collectors exported at /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ScanVerdicts counts scan responses by status, including the
	// RATE_LIMITED and UNAUTHORIZED answers of the HTTP layer.
	ScanVerdicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "admission",
		Name:      "scan_verdicts_total",
		Help:      "Scan responses by verdict status.",
	}, []string{"status"})

	// Invitations counts issuance attempts by outcome.
	Invitations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "admission",
		Name:      "invitations_total",
		Help:      "Invitation issuance attempts by outcome.",
	}, []string{"outcome"})

	AuditFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "admission",
		Name:      "audit_write_failures_total",
		Help:      "Scan audit records that could not be written.",
	})

	KeyRotations = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "admission",
		Name:      "signing_key_rotations_total",
		Help:      "Signing key rotations.",
	})

	ScanDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "admission",
		Name:      "scan_validation_seconds",
		Help:      "Time spent validating one scan.",
		Buckets:   prometheus.DefBuckets,
	})
)

// Handler serves the default registry.
func Handler() http.Handler { return promhttp.Handler() }
