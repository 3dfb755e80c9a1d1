package app

import (
	"time"

	"github.com/charlesng35/reviewhub/internal/services"
)

const (
	defaultStaleRetention = 7 * 24 * time.Hour
	defaultRateRequests   = 30
	defaultRateWindow     = time.Minute
)

// ServiceOptions converts VerificationConfig into DomainVerificationService options.
// Zero values fall back to the service defaults.
func (c VerificationConfig) ServiceOptions() []services.DomainVerificationOption {
	return []services.DomainVerificationOption{
		services.WithCodeTTL(c.CodeTTL),
		services.WithMaxAttempts(c.MaxAttempts),
		services.WithDeliveryTimeout(c.DeliveryTimeout),
	}
}

// ClaimOptions converts VerificationConfig into WebsiteClaimService options.
func (c VerificationConfig) ClaimOptions() []services.ClaimOption {
	var opts []services.ClaimOption
	if c.DefaultCategory != "" {
		opts = append(opts, services.WithDefaultCategory(c.DefaultCategory))
	}
	return opts
}

// Retention returns how long expired pending verifications are kept before purge.
func (c VerificationConfig) Retention() time.Duration {
	if c.StaleRetention <= 0 {
		return defaultStaleRetention
	}
	return c.StaleRetention
}

// Limits returns the rate limit applied to verification endpoints.
func (c RateLimitConfig) Limits() (int, time.Duration) {
	requests, window := c.Requests, c.Window
	if requests <= 0 {
		requests = defaultRateRequests
	}
	if window <= 0 {
		window = defaultRateWindow
	}
	return requests, window
}
