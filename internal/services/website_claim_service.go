package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/charlesng35/reviewhub/internal/models"
	"github.com/charlesng35/reviewhub/pkg/metrics"
)

// ClaimStrategy selects how a claim is written to the websites table.
type ClaimStrategy int

const (
	// ClaimStrategyAuto picks the conditional upsert unless the dialect cannot express it.
	ClaimStrategyAuto ClaimStrategy = iota
	// ClaimStrategyUpsert issues INSERT ... ON CONFLICT (url) DO UPDATE ... WHERE owner matches.
	ClaimStrategyUpsert
	// ClaimStrategyUpdateThenInsert runs a conditional UPDATE and falls back to INSERT,
	// treating a unique violation as a lost race. Used for MySQL.
	ClaimStrategyUpdateThenInsert
)

const claimInsertSavepoint = "website_claim_insert"

// ClaimInput describes a verified request to own a domain.
type ClaimInput struct {
	Domain       string
	BusinessName string
	UserID       string
}

// ClaimOption customises the WebsiteClaimService.
type ClaimOption func(*WebsiteClaimService)

// WithClaimClock injects a custom time source.
func WithClaimClock(clock func() time.Time) ClaimOption {
	return func(s *WebsiteClaimService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// WithDefaultCategory sets the category assigned to claimed websites without one.
func WithDefaultCategory(category string) ClaimOption {
	return func(s *WebsiteClaimService) {
		s.defaultCategory = strings.TrimSpace(category)
	}
}

// WithClaimStrategy forces a write strategy regardless of dialect.
func WithClaimStrategy(strategy ClaimStrategy) ClaimOption {
	return func(s *WebsiteClaimService) {
		s.strategy = strategy
	}
}

// WebsiteClaimService resolves verified claims against the websites table and serves lookups.
type WebsiteClaimService struct {
	db              *gorm.DB
	now             func() time.Time
	defaultCategory string
	strategy        ClaimStrategy
}

// NewWebsiteClaimService constructs a claim resolver.
func NewWebsiteClaimService(db *gorm.DB, opts ...ClaimOption) (*WebsiteClaimService, error) {
	if db == nil {
		return nil, errors.New("website claim service: db is required")
	}

	service := &WebsiteClaimService{
		db:              db,
		now:             time.Now,
		defaultCategory: "general",
	}

	for _, opt := range opts {
		opt(service)
	}

	return service, nil
}

// ResolveClaim creates, merges or rejects the website for input.Domain on behalf of input.UserID.
// The ownership check and the write are one statement, so two concurrent claimants can never
// both win. Pass the surrounding transaction as tx; nil opens a transaction of its own.
func (s *WebsiteClaimService) ResolveClaim(ctx context.Context, tx *gorm.DB, input ClaimInput) (*models.Website, error) {
	if tx == nil {
		var website *models.Website
		err := s.db.WithContext(ctx).Transaction(func(inner *gorm.DB) error {
			var err error
			website, err = s.ResolveClaim(ctx, inner, input)
			return err
		})
		return website, err
	}
	tx = tx.WithContext(ctx)

	domain := NormalizeDomain(input.Domain)
	if domain == "" {
		return nil, ErrInvalidDomain
	}
	userID := strings.TrimSpace(input.UserID)
	if userID == "" {
		return nil, errors.New("website claim service: user id is required")
	}
	businessName := strings.TrimSpace(input.BusinessName)

	now := s.now().UTC()

	var (
		claimed bool
		err     error
	)
	switch s.strategyFor(tx) {
	case ClaimStrategyUpdateThenInsert:
		claimed, err = s.updateThenInsert(tx, domain, businessName, userID, now)
	default:
		claimed, err = s.upsert(tx, domain, businessName, userID, now)
	}
	if err != nil {
		metrics.WebsiteClaims.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("website claim service: claim %s: %w", domain, err)
	}
	if !claimed {
		metrics.WebsiteClaims.WithLabelValues("conflict").Inc()
		return nil, ErrOwnershipConflict
	}

	var website models.Website
	if err := tx.Where("url = ?", domain).First(&website).Error; err != nil {
		metrics.WebsiteClaims.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("website claim service: load %s: %w", domain, err)
	}
	if !website.OwnedBy(userID) {
		metrics.WebsiteClaims.WithLabelValues("conflict").Inc()
		return nil, ErrOwnershipConflict
	}

	if len(website.Categories) == 0 && s.defaultCategory != "" {
		categories := datatypes.NewJSONSlice([]string{s.defaultCategory})
		if err := tx.Model(&website).UpdateColumn("categories", categories).Error; err != nil {
			metrics.WebsiteClaims.WithLabelValues("error").Inc()
			return nil, fmt.Errorf("website claim service: set categories: %w", err)
		}
		website.Categories = categories
	}

	metrics.WebsiteClaims.WithLabelValues("claimed").Inc()
	return &website, nil
}

// GetByDomain returns the website stored under the normalised form of raw.
func (s *WebsiteClaimService) GetByDomain(ctx context.Context, raw string) (*models.Website, error) {
	domain := NormalizeDomain(raw)
	if domain == "" {
		return nil, ErrInvalidDomain
	}

	var website models.Website
	if err := s.db.WithContext(ctx).Where("url = ?", domain).First(&website).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrWebsiteNotFound
		}
		return nil, fmt.Errorf("website claim service: find %s: %w", domain, err)
	}
	return &website, nil
}

func (s *WebsiteClaimService) strategyFor(tx *gorm.DB) ClaimStrategy {
	if s.strategy != ClaimStrategyAuto {
		return s.strategy
	}
	if tx.Dialector != nil && tx.Dialector.Name() == "mysql" {
		return ClaimStrategyUpdateThenInsert
	}
	return ClaimStrategyUpsert
}

func (s *WebsiteClaimService) newWebsite(domain, businessName, userID string, now time.Time) models.Website {
	owner := userID
	verifiedAt := now
	website := models.Website{
		URL:          domain,
		Name:         businessName,
		OwnerID:      &owner,
		IsVerified:   true,
		VerifiedAt:   &verifiedAt,
		PricingModel: models.PricingFree,
		IsActive:     true,
	}
	if s.defaultCategory != "" {
		website.Categories = datatypes.NewJSONSlice([]string{s.defaultCategory})
	}
	return website
}

func (s *WebsiteClaimService) upsert(tx *gorm.DB, domain, businessName, userID string, now time.Time) (bool, error) {
	website := s.newWebsite(domain, businessName, userID, now)

	result := tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "url"}},
		DoUpdates: clause.Set{
			{Column: clause.Column{Name: "owner_id"}, Value: userID},
			{Column: clause.Column{Name: "is_verified"}, Value: true},
			{Column: clause.Column{Name: "verified_at"}, Value: now},
			{Column: clause.Column{Name: "pricing_model"}, Value: models.PricingFree},
			{Column: clause.Column{Name: "is_active"}, Value: true},
			{Column: clause.Column{Name: "updated_at"}, Value: now},
			{Column: clause.Column{Name: "name"}, Value: gorm.Expr(
				"CASE WHEN websites.name IS NULL OR websites.name = '' THEN ? ELSE websites.name END", businessName,
			)},
		},
		Where: clause.Where{Exprs: []clause.Expression{
			gorm.Expr("websites.owner_id IS NULL OR websites.owner_id = ?", userID),
		}},
	}).Create(&website)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (s *WebsiteClaimService) updateThenInsert(tx *gorm.DB, domain, businessName, userID string, now time.Time) (bool, error) {
	claimed, err := s.conditionalUpdate(tx, domain, businessName, userID, now)
	if err != nil || claimed {
		return claimed, err
	}

	if err := tx.SavePoint(claimInsertSavepoint).Error; err != nil {
		return false, err
	}

	website := s.newWebsite(domain, businessName, userID, now)
	if err := tx.Create(&website).Error; err != nil {
		if !isUniqueConstraintError(err) {
			return false, err
		}
		if rbErr := tx.RollbackTo(claimInsertSavepoint).Error; rbErr != nil {
			return false, rbErr
		}
		// Someone inserted the row between our UPDATE and INSERT. Retry once against it.
		return s.conditionalUpdate(tx, domain, businessName, userID, now)
	}
	return true, nil
}

func (s *WebsiteClaimService) conditionalUpdate(tx *gorm.DB, domain, businessName, userID string, now time.Time) (bool, error) {
	result := tx.Model(&models.Website{}).
		Where("url = ? AND (owner_id IS NULL OR owner_id = ?)", domain, userID).
		Updates(map[string]any{
			"owner_id":      userID,
			"is_verified":   true,
			"verified_at":   now,
			"pricing_model": models.PricingFree,
			"is_active":     true,
			"name":          gorm.Expr("CASE WHEN name IS NULL OR name = '' THEN ? ELSE name END", businessName),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
