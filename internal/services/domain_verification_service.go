package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/charlesng35/reviewhub/internal/models"
	"github.com/charlesng35/reviewhub/pkg/logger"
	"github.com/charlesng35/reviewhub/pkg/mail"
	"github.com/charlesng35/reviewhub/pkg/metrics"
)

const (
	defaultCodeTTL         = time.Hour
	defaultMaxAttempts     = 3
	defaultDeliveryTimeout = 5 * time.Second
)

// errNoMatchingCode marks a submission that did not consume a pending record.
var errNoMatchingCode = errors.New("domain verification: no matching code")

// Identity is the authenticated caller as established by the session layer.
type Identity struct {
	UserID string
	Email  string
}

func (i Identity) normalise() (Identity, bool) {
	i.UserID = strings.TrimSpace(i.UserID)
	i.Email = strings.ToLower(strings.TrimSpace(i.Email))
	return i, i.UserID != "" && i.Email != ""
}

// RequestCodeInput captures a claim request.
type RequestCodeInput struct {
	ClaimedDomain string
	BusinessName  string
	ContactEmail  string
}

// RequestCodeResult reports the outcome of issuing a code.
type RequestCodeResult struct {
	ExpiresAt time.Time
	Delivered bool
}

// ClaimResult describes a successful code submission.
type ClaimResult struct {
	NormalizedDomain string
	WebsiteID        string
	Website          *models.Website
}

// VerificationStatus is the caller's view of the in-flight verification. The code is never exposed.
type VerificationStatus struct {
	State             models.VerificationState
	ClaimedDomain     string
	BusinessName      string
	ContactEmail      string
	ExpiresAt         *time.Time
	AttemptsRemaining int
}

// DomainVerificationOption customises the DomainVerificationService.
type DomainVerificationOption func(*DomainVerificationService)

// WithCodeTTL overrides how long an issued code stays valid.
func WithCodeTTL(d time.Duration) DomainVerificationOption {
	return func(s *DomainVerificationService) {
		if d > 0 {
			s.codeTTL = d
		}
	}
}

// WithMaxAttempts overrides the number of failed submissions allowed per code.
func WithMaxAttempts(n int) DomainVerificationOption {
	return func(s *DomainVerificationService) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

// WithDeliveryTimeout bounds how long RequestCode waits on the mailer.
func WithDeliveryTimeout(d time.Duration) DomainVerificationOption {
	return func(s *DomainVerificationService) {
		if d > 0 {
			s.deliveryTimeout = d
		}
	}
}

// WithDomainVerificationClock injects a custom time source.
func WithDomainVerificationClock(clock func() time.Time) DomainVerificationOption {
	return func(s *DomainVerificationService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// WithCodeGenerator replaces the random code source.
func WithCodeGenerator(generate func() (string, error)) DomainVerificationOption {
	return func(s *DomainVerificationService) {
		if generate != nil {
			s.generate = generate
		}
	}
}

// WithDomainVerificationLogger overrides the module logger.
func WithDomainVerificationLogger(log *zap.Logger) DomainVerificationOption {
	return func(s *DomainVerificationService) {
		if log != nil {
			s.log = log
		}
	}
}

// DomainVerificationService issues and checks domain ownership codes and hands successful
// submissions to the claim resolver.
type DomainVerificationService struct {
	db              *gorm.DB
	mailer          mail.Mailer
	claims          *WebsiteClaimService
	codeTTL         time.Duration
	maxAttempts     int
	deliveryTimeout time.Duration
	now             func() time.Time
	generate        func() (string, error)
	log             *zap.Logger
}

// NewDomainVerificationService constructs the service. mailer may be nil, in which case codes
// are stored but never delivered.
func NewDomainVerificationService(db *gorm.DB, mailer mail.Mailer, claims *WebsiteClaimService, opts ...DomainVerificationOption) (*DomainVerificationService, error) {
	if db == nil {
		return nil, errors.New("domain verification service: db is required")
	}
	if claims == nil {
		return nil, errors.New("domain verification service: claim service is required")
	}

	service := &DomainVerificationService{
		db:              db,
		mailer:          mailer,
		claims:          claims,
		codeTTL:         defaultCodeTTL,
		maxAttempts:     defaultMaxAttempts,
		deliveryTimeout: defaultDeliveryTimeout,
		now:             time.Now,
		generate:        GenerateVerificationCode,
		log:             logger.WithModule("domain-verification"),
	}

	for _, opt := range opts {
		opt(service)
	}

	return service, nil
}

// MaxAttempts returns the configured failure ceiling.
func (s *DomainVerificationService) MaxAttempts() int {
	return s.maxAttempts
}

// RequestCode issues a fresh code for the caller, replacing any earlier one, and tries to
// email it to the contact address. Delivery failure is reported but never fails the call.
func (s *DomainVerificationService) RequestCode(ctx context.Context, identity Identity, input RequestCodeInput) (*RequestCodeResult, error) {
	identity, ok := identity.normalise()
	if !ok {
		return nil, ErrNotAuthenticated
	}

	claimedDomain := strings.TrimSpace(input.ClaimedDomain)
	if claimedDomain == "" {
		return nil, errors.New("domain verification service: claimed domain is required")
	}
	if NormalizeDomain(claimedDomain) == "" {
		return nil, ErrInvalidDomain
	}
	contactEmail := strings.ToLower(strings.TrimSpace(input.ContactEmail))
	if contactEmail == "" {
		return nil, errors.New("domain verification service: contact email is required")
	}
	businessName := strings.TrimSpace(input.BusinessName)

	user, err := s.ensureUser(ctx, identity)
	if err != nil {
		return nil, err
	}

	code, err := s.generate()
	if err != nil {
		return nil, fmt.Errorf("domain verification service: %w", err)
	}

	now := s.now().UTC()
	expiresAt := now.Add(s.codeTTL)
	pending := models.PendingVerification{
		UserID:        user.ID,
		CodeHash:      hashVerificationCode(code),
		ExpiresAt:     expiresAt,
		ClaimedDomain: claimedDomain,
		BusinessName:  businessName,
		ContactEmail:  contactEmail,
	}

	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"code_hash":      pending.CodeHash,
			"attempts":       0,
			"expires_at":     expiresAt,
			"claimed_domain": claimedDomain,
			"business_name":  businessName,
			"contact_email":  contactEmail,
			"updated_at":     now,
		}),
	}).Create(&pending).Error; err != nil {
		return nil, fmt.Errorf("domain verification service: store code: %w", err)
	}
	metrics.VerificationCodesIssued.Inc()

	delivered := s.deliver(ctx, user.ID, pending, code)

	return &RequestCodeResult{ExpiresAt: expiresAt, Delivered: delivered}, nil
}

// SubmitCode checks code against the caller's pending verification. A match claims the domain
// and promotes the account in one transaction; a miss counts against the attempt ceiling.
func (s *DomainVerificationService) SubmitCode(ctx context.Context, identity Identity, code string) (*ClaimResult, error) {
	identity, ok := identity.normalise()
	if !ok {
		return nil, ErrNotAuthenticated
	}

	user, err := s.findUser(ctx, identity.Email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			s.recordSubmission(ErrInvalidOrExpiredCode)
			return nil, ErrInvalidOrExpiredCode
		}
		return nil, err
	}

	now := s.now().UTC()
	codeHash := hashVerificationCode(code)

	var result *ClaimResult
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var pending models.PendingVerification
		if err := tx.Where("user_id = ? AND code_hash = ? AND expires_at > ? AND attempts < ?",
			user.ID, codeHash, now, s.maxAttempts).
			First(&pending).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errNoMatchingCode
			}
			return fmt.Errorf("domain verification service: find code: %w", err)
		}

		consumed := tx.Where("id = ? AND code_hash = ? AND expires_at > ? AND attempts < ?",
			pending.ID, codeHash, now, s.maxAttempts).
			Delete(&models.PendingVerification{})
		if consumed.Error != nil {
			return fmt.Errorf("domain verification service: consume code: %w", consumed.Error)
		}
		if consumed.RowsAffected != 1 {
			return errNoMatchingCode
		}

		website, err := s.claims.ResolveClaim(ctx, tx, ClaimInput{
			Domain:       pending.ClaimedDomain,
			BusinessName: pending.BusinessName,
			UserID:       user.ID,
		})
		if err != nil {
			return err
		}

		if err := PromoteUser(ctx, tx, PromotionInput{
			UserID:    user.ID,
			WebsiteID: website.ID,
			Domain:    website.URL,
		}); err != nil {
			return err
		}

		result = &ClaimResult{
			NormalizedDomain: website.URL,
			WebsiteID:        website.ID,
			Website:          website,
		}
		return nil
	})

	if errors.Is(err, errNoMatchingCode) {
		err = s.registerFailedAttempt(ctx, user.ID)
	}
	s.recordSubmission(err)
	if err != nil {
		return nil, err
	}

	s.log.Info("domain claimed",
		zap.String("user_id", user.ID),
		zap.String("domain", result.NormalizedDomain),
		zap.String("website_id", result.WebsiteID),
	)
	return result, nil
}

// Status reports the caller's current verification state.
func (s *DomainVerificationService) Status(ctx context.Context, identity Identity) (*VerificationStatus, error) {
	identity, ok := identity.normalise()
	if !ok {
		return nil, ErrNotAuthenticated
	}

	status := &VerificationStatus{State: models.VerificationNone}

	user, err := s.findUser(ctx, identity.Email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return status, nil
		}
		return nil, err
	}

	var pending models.PendingVerification
	if err := s.db.WithContext(ctx).Where("user_id = ?", user.ID).First(&pending).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return status, nil
		}
		return nil, fmt.Errorf("domain verification service: load status: %w", err)
	}

	expiresAt := pending.ExpiresAt
	status.State = pending.State(s.now(), s.maxAttempts)
	status.ClaimedDomain = pending.ClaimedDomain
	status.BusinessName = pending.BusinessName
	status.ContactEmail = pending.ContactEmail
	status.ExpiresAt = &expiresAt
	if status.State == models.VerificationCodeIssued {
		status.AttemptsRemaining = pending.AttemptsRemaining(s.maxAttempts)
	}
	return status, nil
}

// Abandon discards the caller's pending verification, if any.
func (s *DomainVerificationService) Abandon(ctx context.Context, identity Identity) error {
	identity, ok := identity.normalise()
	if !ok {
		return ErrNotAuthenticated
	}

	user, err := s.findUser(ctx, identity.Email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil
		}
		return err
	}

	if err := s.db.WithContext(ctx).
		Where("user_id = ?", user.ID).
		Delete(&models.PendingVerification{}).Error; err != nil {
		return fmt.Errorf("domain verification service: abandon: %w", err)
	}
	return nil
}

// ensureUser returns the account for identity.Email, creating a plain user when absent.
func (s *DomainVerificationService) ensureUser(ctx context.Context, identity Identity) (*models.User, error) {
	candidate := models.User{
		ID:    identity.UserID,
		Email: identity.Email,
		Role:  models.RoleUser,
	}
	if err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&candidate).Error; err != nil {
		return nil, fmt.Errorf("domain verification service: upsert user: %w", err)
	}

	user, err := s.findUser(ctx, identity.Email)
	if err != nil {
		return nil, err
	}
	if user.ID != identity.UserID {
		s.log.Warn("session user id differs from stored account",
			zap.String("session_user_id", identity.UserID),
			zap.String("user_id", user.ID),
		)
	}
	return user, nil
}

func (s *DomainVerificationService) findUser(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("domain verification service: find user: %w", err)
	}
	return &user, nil
}

// registerFailedAttempt bumps the attempt counter of whatever record the user holds, expired
// or not, and maps the new count onto the caller-facing error.
func (s *DomainVerificationService) registerFailedAttempt(ctx context.Context, userID string) error {
	var attempts int
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.PendingVerification{}).
			Where("user_id = ?", userID).
			UpdateColumn("attempts", gorm.Expr("attempts + ?", 1))
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}

		var pending models.PendingVerification
		if err := tx.Select("attempts").Where("user_id = ?", userID).First(&pending).Error; err != nil {
			return err
		}
		attempts = pending.Attempts
		return nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrInvalidOrExpiredCode
		}
		return fmt.Errorf("domain verification service: record attempt: %w", err)
	}

	if attempts >= s.maxAttempts {
		return ErrMaxAttemptsExceeded
	}
	return ErrInvalidOrExpiredCode
}

func (s *DomainVerificationService) deliver(ctx context.Context, userID string, pending models.PendingVerification, code string) bool {
	if s.mailer == nil {
		s.log.Warn("no mailer configured; verification code not delivered", zap.String("user_id", userID))
		return false
	}

	sendCtx, cancel := context.WithTimeout(ctx, s.deliveryTimeout)
	defer cancel()

	message := mail.Message{
		To:      []string{pending.ContactEmail},
		Subject: "Your website verification code",
		Body:    verificationCodeBody(pending, code, s.codeTTL),
	}
	if err := s.mailer.Send(sendCtx, message); err != nil {
		if errors.Is(err, mail.ErrSMTPDisabled) {
			s.log.Info("email delivery disabled; verification code not sent", zap.String("user_id", userID))
			return false
		}
		metrics.NotificationFailures.Inc()
		s.log.Warn("failed to deliver verification code",
			zap.String("user_id", userID),
			zap.String("domain", pending.ClaimedDomain),
			zap.Error(err),
		)
		return false
	}
	return true
}

func (s *DomainVerificationService) recordSubmission(err error) {
	result := "success"
	switch {
	case err == nil:
	case errors.Is(err, ErrInvalidOrExpiredCode):
		result = "invalid_or_expired"
	case errors.Is(err, ErrMaxAttemptsExceeded):
		result = "max_attempts_exceeded"
	case errors.Is(err, ErrOwnershipConflict):
		result = "ownership_conflict"
	default:
		result = "error"
	}
	metrics.VerificationSubmissions.WithLabelValues(result).Inc()
}

func verificationCodeBody(pending models.PendingVerification, code string, ttl time.Duration) string {
	name := pending.BusinessName
	if name == "" {
		name = pending.ClaimedDomain
	}
	return fmt.Sprintf(
		"Hello,\n\nUse the code below to verify ownership of %s (%s):\n\n    %s\n\nThe code expires in %d minutes. If you did not request it, you can ignore this message.\n",
		name, pending.ClaimedDomain, code, int(ttl.Minutes()),
	)
}
