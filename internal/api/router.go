package api

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/charlesng35/reviewhub/internal/app"
	iauth "github.com/charlesng35/reviewhub/internal/auth"
	"github.com/charlesng35/reviewhub/internal/handlers"
	"github.com/charlesng35/reviewhub/internal/middleware"
	"github.com/charlesng35/reviewhub/internal/services"
	"github.com/charlesng35/reviewhub/pkg/mail"
)

// NewRouter builds the Gin engine, wires middleware and registers routes.
// mailer may be nil, in which case verification codes are stored but not delivered.
// A nil rateStore falls back to a process-local store.
func NewRouter(db *gorm.DB, jwt *iauth.JWTService, cfg *app.Config, mailer mail.Mailer, rateStore middleware.RateStore) (*gin.Engine, error) {
	if db == nil {
		return nil, fmt.Errorf("database handle must be provided")
	}
	if jwt == nil {
		return nil, fmt.Errorf("jwt service must be provided")
	}
	if cfg == nil {
		return nil, fmt.Errorf("config must be provided")
	}
	if rateStore == nil {
		rateStore = middleware.NewMemoryRateStore()
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())

	registerHealthRoutes(r, db)

	claims, err := services.NewWebsiteClaimService(db, cfg.Verification.ClaimOptions()...)
	if err != nil {
		return nil, err
	}
	verification, err := services.NewDomainVerificationService(db, mailer, claims, cfg.Verification.ServiceOptions()...)
	if err != nil {
		return nil, err
	}

	websiteHandler, err := handlers.NewWebsiteHandler(claims)
	if err != nil {
		return nil, err
	}
	verificationHandler, err := handlers.NewDomainVerificationHandler(verification)
	if err != nil {
		return nil, err
	}

	public := r.Group("/api")
	registerWebsiteRoutes(public, websiteHandler)

	requests, window := cfg.Server.RateLimit.Limits()
	protected := r.Group("/api")
	protected.Use(middleware.Auth(jwt))
	protected.Use(middleware.RateLimitWithStore(rateStore, requests, window))
	registerVerificationRoutes(protected, verificationHandler)

	if cfg.Monitoring.Prometheus.Enabled {
		endpoint := cfg.Monitoring.Prometheus.Endpoint
		if endpoint == "" {
			endpoint = "/metrics"
		}
		r.GET(endpoint, gin.WrapH(promhttp.Handler()))
	}

	// NotFound fallback
	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}
