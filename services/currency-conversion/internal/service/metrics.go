// services/currency-conversion/internal/service/metrics.go
package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	rateFetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fx_rate_fetch_duration_seconds",
			Help:    "Duration of outbound rate provider calls",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider", "outcome"},
	)

	quotesIssued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fx_quotes_issued_total",
			Help: "Total number of quotes issued",
		},
	)

	quotesCached = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fx_quotes_cached",
			Help: "Quotes held in process memory after the last sweep",
		},
	)

	quoteIssueFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fx_quote_issue_failures_total",
			Help: "Total number of quote issuances abandoned because a rate was unavailable",
		},
	)

	conversionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fx_conversions_total",
			Help: "Total number of conversion attempts by outcome",
		},
		[]string{"from", "to", "outcome"},
	)

	creditPendingTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fx_credit_pending_total",
			Help: "Conversions whose debit was issued but whose credit could not be confirmed",
		},
	)
)
