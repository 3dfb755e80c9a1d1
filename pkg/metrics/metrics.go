package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// VerificationCodesIssued counts codes generated and stored for a claim.
	VerificationCodesIssued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reviewhub_verification_codes_issued_total",
			Help: "Total number of domain verification codes issued",
		},
	)

	// VerificationSubmissions records code submissions by result
	// (success|invalid_or_expired|max_attempts_exceeded|ownership_conflict|error).
	VerificationSubmissions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reviewhub_verification_submissions_total",
			Help: "Total number of verification code submissions",
		},
		[]string{"result"},
	)

	// WebsiteClaims counts claim resolutions by outcome (claimed|conflict|error).
	WebsiteClaims = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reviewhub_website_claims_total",
			Help: "Total number of website claim resolutions",
		},
		[]string{"outcome"},
	)

	// NotificationFailures counts verification emails that could not be delivered.
	NotificationFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reviewhub_notification_failures_total",
			Help: "Total number of verification email delivery failures",
		},
	)

	// OrphanedWebsites is the number of verified websites found without a linked owner account
	// during the last reconciliation run.
	OrphanedWebsites = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "reviewhub_orphaned_websites",
			Help: "Verified websites whose owner account is not linked",
		},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "reviewhub_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
