package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"

	"github.com/charlesng35/reviewhub/internal/database/testutil"
	"github.com/charlesng35/reviewhub/internal/models"
)

type verificationFixture struct {
	db      *gorm.DB
	svc     *DomainVerificationService
	mailer  *recordingMailer
	current time.Time
	codes   []string
}

func newVerificationFixture(t *testing.T, opts ...DomainVerificationOption) *verificationFixture {
	t.Helper()

	fx := &verificationFixture{
		db:      openServiceTestDB(t),
		mailer:  &recordingMailer{},
		current: time.Date(2024, 3, 10, 8, 0, 0, 0, time.UTC),
		codes:   []string{"482913", "771204", "305558"},
	}

	claims, err := NewWebsiteClaimService(fx.db, WithClaimClock(fx.now))
	require.NoError(t, err)

	base := []DomainVerificationOption{
		WithDomainVerificationClock(fx.now),
		WithCodeGenerator(fx.nextCode),
	}
	svc, err := NewDomainVerificationService(fx.db, fx.mailer, claims, append(base, opts...)...)
	require.NoError(t, err)
	fx.svc = svc
	return fx
}

func (fx *verificationFixture) now() time.Time { return fx.current }

func (fx *verificationFixture) nextCode() (string, error) {
	if len(fx.codes) == 0 {
		return "", errors.New("no codes left")
	}
	code := fx.codes[0]
	fx.codes = fx.codes[1:]
	return code, nil
}

func (fx *verificationFixture) request(t *testing.T, identity Identity, domain string) *RequestCodeResult {
	t.Helper()
	result, err := fx.svc.RequestCode(context.Background(), identity, RequestCodeInput{
		ClaimedDomain: domain,
		BusinessName:  "My Shop",
		ContactEmail:  identity.Email,
	})
	require.NoError(t, err)
	return result
}

func (fx *verificationFixture) pending(t *testing.T, email string) *models.PendingVerification {
	t.Helper()
	var user models.User
	require.NoError(t, fx.db.Where("email = ?", email).First(&user).Error)
	var pending models.PendingVerification
	err := fx.db.Where("user_id = ?", user.ID).First(&pending).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	require.NoError(t, err)
	return &pending
}

var (
	aliceIdentity = Identity{UserID: "6f1c4a2e-0a4b-4d53-9a57-0d8b0a3f1c11", Email: "Alice@Example.com"}
	bobIdentity   = Identity{UserID: "9b7d2c10-3e5f-4a8b-8c21-5f6e7d8c9a22", Email: "bob@example.com"}
)

func TestDomainVerificationEndToEnd(t *testing.T) {
	fx := newVerificationFixture(t)

	result := fx.request(t, aliceIdentity, "https://www.my-shop.co.il")
	require.True(t, result.Delivered)
	require.Equal(t, fx.current.Add(time.Hour), result.ExpiresAt)

	sent := fx.mailer.sent()
	require.Len(t, sent, 1)
	require.Equal(t, []string{"alice@example.com"}, sent[0].To)
	require.Contains(t, sent[0].Body, "482913")

	pending := fx.pending(t, "alice@example.com")
	require.NotNil(t, pending)
	require.Equal(t, "https://www.my-shop.co.il", pending.ClaimedDomain)
	require.NotEqual(t, "482913", pending.CodeHash)
	require.Zero(t, pending.Attempts)

	fx.current = fx.current.Add(10 * time.Minute)
	claim, err := fx.svc.SubmitCode(context.Background(), aliceIdentity, "482913")
	require.NoError(t, err)
	require.Equal(t, "my-shop.co.il", claim.NormalizedDomain)
	require.NotEmpty(t, claim.WebsiteID)

	var user models.User
	require.NoError(t, fx.db.Where("email = ?", "alice@example.com").First(&user).Error)
	require.Equal(t, aliceIdentity.UserID, user.ID)
	require.Equal(t, models.RoleBusinessOwner, user.Role)
	require.True(t, user.IsVerifiedWebsiteOwner)
	require.Equal(t, "my-shop.co.il", user.RelatedWebsite)
	require.NotNil(t, user.WebsiteID)
	require.Equal(t, claim.WebsiteID, *user.WebsiteID)

	var website models.Website
	require.NoError(t, fx.db.Where("url = ?", "my-shop.co.il").First(&website).Error)
	require.True(t, website.OwnedBy(user.ID))
	require.True(t, website.IsVerified)
	require.Equal(t, "My Shop", website.Name)

	require.Nil(t, fx.pending(t, "alice@example.com"))

	// A consumed code cannot be replayed.
	_, err = fx.svc.SubmitCode(context.Background(), aliceIdentity, "482913")
	require.ErrorIs(t, err, ErrInvalidOrExpiredCode)
}

func TestDomainVerificationAttemptCeiling(t *testing.T) {
	fx := newVerificationFixture(t)
	fx.request(t, aliceIdentity, "ceiling.com")

	_, err := fx.svc.SubmitCode(context.Background(), aliceIdentity, "000001")
	require.ErrorIs(t, err, ErrInvalidOrExpiredCode)
	_, err = fx.svc.SubmitCode(context.Background(), aliceIdentity, "000002")
	require.ErrorIs(t, err, ErrInvalidOrExpiredCode)
	_, err = fx.svc.SubmitCode(context.Background(), aliceIdentity, "000003")
	require.ErrorIs(t, err, ErrMaxAttemptsExceeded)

	// The correct code is refused once the ceiling is reached.
	_, err = fx.svc.SubmitCode(context.Background(), aliceIdentity, "482913")
	require.ErrorIs(t, err, ErrMaxAttemptsExceeded)

	pending := fx.pending(t, "alice@example.com")
	require.Equal(t, 4, pending.Attempts)

	var count int64
	require.NoError(t, fx.db.Model(&models.Website{}).Count(&count).Error)
	require.Zero(t, count)

	// Requesting a new code resets the counter.
	fx.request(t, aliceIdentity, "ceiling.com")
	require.Zero(t, fx.pending(t, "alice@example.com").Attempts)

	claim, err := fx.svc.SubmitCode(context.Background(), aliceIdentity, "771204")
	require.NoError(t, err)
	require.Equal(t, "ceiling.com", claim.NormalizedDomain)
}

func TestDomainVerificationExpiredCode(t *testing.T) {
	fx := newVerificationFixture(t)
	fx.request(t, aliceIdentity, "expired.com")

	fx.current = fx.current.Add(time.Hour + time.Minute)

	_, err := fx.svc.SubmitCode(context.Background(), aliceIdentity, "482913")
	require.ErrorIs(t, err, ErrInvalidOrExpiredCode)
	require.Equal(t, 1, fx.pending(t, "alice@example.com").Attempts)

	status, err := fx.svc.Status(context.Background(), aliceIdentity)
	require.NoError(t, err)
	require.Equal(t, models.VerificationExpired, status.State)
	require.Zero(t, status.AttemptsRemaining)
}

func TestDomainVerificationExpiryBoundary(t *testing.T) {
	fx := newVerificationFixture(t)
	fx.request(t, aliceIdentity, "boundary.com")

	fx.current = fx.current.Add(time.Hour)

	_, err := fx.svc.SubmitCode(context.Background(), aliceIdentity, "482913")
	require.ErrorIs(t, err, ErrInvalidOrExpiredCode)
}

func TestDomainVerificationNewRequestInvalidatesOldCode(t *testing.T) {
	fx := newVerificationFixture(t)
	fx.request(t, aliceIdentity, "first.com")
	fx.request(t, aliceIdentity, "second.com")

	_, err := fx.svc.SubmitCode(context.Background(), aliceIdentity, "482913")
	require.ErrorIs(t, err, ErrInvalidOrExpiredCode)

	claim, err := fx.svc.SubmitCode(context.Background(), aliceIdentity, "771204")
	require.NoError(t, err)
	require.Equal(t, "second.com", claim.NormalizedDomain)
}

func TestDomainVerificationOwnershipConflict(t *testing.T) {
	fx := newVerificationFixture(t)

	fx.request(t, aliceIdentity, "contested.co.il")
	_, err := fx.svc.SubmitCode(context.Background(), aliceIdentity, "482913")
	require.NoError(t, err)

	fx.request(t, bobIdentity, "www.contested.co.il")
	_, err = fx.svc.SubmitCode(context.Background(), bobIdentity, "771204")
	require.ErrorIs(t, err, ErrOwnershipConflict)

	var bob models.User
	require.NoError(t, fx.db.Where("email = ?", "bob@example.com").First(&bob).Error)
	require.Equal(t, models.RoleUser, bob.Role)
	require.False(t, bob.IsVerifiedWebsiteOwner)
	require.Nil(t, bob.WebsiteID)

	// The conflict rolls back the consumed code instead of burning an attempt.
	pending := fx.pending(t, "bob@example.com")
	require.NotNil(t, pending)
	require.Zero(t, pending.Attempts)

	var website models.Website
	require.NoError(t, fx.db.Where("url = ?", "contested.co.il").First(&website).Error)
	require.True(t, website.OwnedBy(aliceIdentity.UserID))
}

func TestDomainVerificationConcurrentSubmitsForSameDomain(t *testing.T) {
	const rounds = 10

	db := openServiceTestDB(t, testutil.WithFileStore())
	claims, err := NewWebsiteClaimService(db)
	require.NoError(t, err)
	svc, err := NewDomainVerificationService(db, &recordingMailer{}, claims,
		WithCodeGenerator(func() (string, error) { return "123456", nil }),
	)
	require.NoError(t, err)

	for round := 0; round < rounds; round++ {
		domain := fmt.Sprintf("race-%d.com", round)
		identities := []Identity{
			{UserID: uuid.NewString(), Email: fmt.Sprintf("alice-%d@example.com", round)},
			{UserID: uuid.NewString(), Email: fmt.Sprintf("bob-%d@example.com", round)},
		}
		for _, identity := range identities {
			_, err := svc.RequestCode(context.Background(), identity, RequestCodeInput{
				ClaimedDomain: "https://www." + domain,
				BusinessName:  "Race Shop",
				ContactEmail:  identity.Email,
			})
			require.NoError(t, err)
		}

		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			start     = make(chan struct{})
			winners   []string
			conflicts int
		)
		for _, identity := range identities {
			wg.Add(1)
			go func(identity Identity) {
				defer wg.Done()
				<-start
				result, err := svc.SubmitCode(context.Background(), identity, "123456")
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					if result.NormalizedDomain != domain {
						t.Errorf("round %d: claimed %q, want %q", round, result.NormalizedDomain, domain)
					}
					winners = append(winners, identity.UserID)
				case errors.Is(err, ErrOwnershipConflict):
					conflicts++
				default:
					t.Errorf("round %d: unexpected error: %v", round, err)
				}
			}(identity)
		}
		close(start)
		wg.Wait()

		require.Len(t, winners, 1, "round %d", round)
		require.Equal(t, 1, conflicts, "round %d", round)

		var website models.Website
		require.NoError(t, db.Where("url = ?", domain).First(&website).Error)
		require.True(t, website.OwnedBy(winners[0]))

		var owners int64
		require.NoError(t, db.Model(&models.User{}).
			Where("email IN ? AND role = ?", []string{identities[0].Email, identities[1].Email}, models.RoleBusinessOwner).
			Count(&owners).Error)
		require.EqualValues(t, 1, owners)
	}
}

func TestDomainVerificationReclaimBySameOwner(t *testing.T) {
	fx := newVerificationFixture(t)

	fx.request(t, aliceIdentity, "mine.com")
	first, err := fx.svc.SubmitCode(context.Background(), aliceIdentity, "482913")
	require.NoError(t, err)

	fx.request(t, aliceIdentity, "http://mine.com/")
	second, err := fx.svc.SubmitCode(context.Background(), aliceIdentity, "771204")
	require.NoError(t, err)
	require.Equal(t, first.WebsiteID, second.WebsiteID)
}

func TestDomainVerificationDeliveryFailureIsNotFatal(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	fx := newVerificationFixture(t, WithDomainVerificationLogger(zap.New(core)))
	fx.mailer.err = errors.New("smtp unavailable")

	result := fx.request(t, aliceIdentity, "quiet.com")
	require.False(t, result.Delivered)
	require.NotNil(t, fx.pending(t, "alice@example.com"))

	entries := logs.FilterMessage("failed to deliver verification code").All()
	require.Len(t, entries, 1)
	require.Equal(t, "quiet.com", entries[0].ContextMap()["domain"])

	_, err := fx.svc.SubmitCode(context.Background(), aliceIdentity, "482913")
	require.NoError(t, err)
}

func TestDomainVerificationDeliveryTimeout(t *testing.T) {
	fx := newVerificationFixture(t, WithDeliveryTimeout(20*time.Millisecond))
	fx.mailer.block = true

	started := time.Now()
	result := fx.request(t, aliceIdentity, "slow.com")
	require.False(t, result.Delivered)
	require.Less(t, time.Since(started), 2*time.Second)
}

func TestDomainVerificationWithoutMailer(t *testing.T) {
	db := openServiceTestDB(t)
	claims, err := NewWebsiteClaimService(db)
	require.NoError(t, err)
	svc, err := NewDomainVerificationService(db, nil, claims)
	require.NoError(t, err)

	result, err := svc.RequestCode(context.Background(), aliceIdentity, RequestCodeInput{
		ClaimedDomain: "nomail.com",
		ContactEmail:  "alice@example.com",
	})
	require.NoError(t, err)
	require.False(t, result.Delivered)
}

func TestDomainVerificationRequiresIdentity(t *testing.T) {
	fx := newVerificationFixture(t)

	_, err := fx.svc.RequestCode(context.Background(), Identity{}, RequestCodeInput{
		ClaimedDomain: "anon.com",
		ContactEmail:  "anon@example.com",
	})
	require.ErrorIs(t, err, ErrNotAuthenticated)

	_, err = fx.svc.SubmitCode(context.Background(), Identity{Email: "anon@example.com"}, "123456")
	require.ErrorIs(t, err, ErrNotAuthenticated)

	_, err = fx.svc.Status(context.Background(), Identity{UserID: "x"})
	require.ErrorIs(t, err, ErrNotAuthenticated)

	require.ErrorIs(t, fx.svc.Abandon(context.Background(), Identity{}), ErrNotAuthenticated)
}

func TestDomainVerificationRejectsBadInput(t *testing.T) {
	fx := newVerificationFixture(t)

	_, err := fx.svc.RequestCode(context.Background(), aliceIdentity, RequestCodeInput{
		ClaimedDomain: "https://",
		ContactEmail:  "alice@example.com",
	})
	require.ErrorIs(t, err, ErrInvalidDomain)

	_, err = fx.svc.RequestCode(context.Background(), aliceIdentity, RequestCodeInput{
		ClaimedDomain: "fine.com",
	})
	require.Error(t, err)
	require.True(t, strings.Contains(err.Error(), "contact email"))
}

func TestDomainVerificationSubmitWithoutRequest(t *testing.T) {
	fx := newVerificationFixture(t)

	_, err := fx.svc.SubmitCode(context.Background(), aliceIdentity, "482913")
	require.ErrorIs(t, err, ErrInvalidOrExpiredCode)
}

func TestDomainVerificationStatusAndAbandon(t *testing.T) {
	fx := newVerificationFixture(t)

	status, err := fx.svc.Status(context.Background(), aliceIdentity)
	require.NoError(t, err)
	require.Equal(t, models.VerificationNone, status.State)

	fx.request(t, aliceIdentity, "status.com")
	_, err = fx.svc.SubmitCode(context.Background(), aliceIdentity, "999999")
	require.ErrorIs(t, err, ErrInvalidOrExpiredCode)

	status, err = fx.svc.Status(context.Background(), aliceIdentity)
	require.NoError(t, err)
	require.Equal(t, models.VerificationCodeIssued, status.State)
	require.Equal(t, 2, status.AttemptsRemaining)
	require.Equal(t, "status.com", status.ClaimedDomain)
	require.NotNil(t, status.ExpiresAt)

	require.NoError(t, fx.svc.Abandon(context.Background(), aliceIdentity))
	require.Nil(t, fx.pending(t, "alice@example.com"))

	status, err = fx.svc.Status(context.Background(), aliceIdentity)
	require.NoError(t, err)
	require.Equal(t, models.VerificationNone, status.State)

	_, err = fx.svc.SubmitCode(context.Background(), aliceIdentity, "482913")
	require.ErrorIs(t, err, ErrInvalidOrExpiredCode)
}

func TestDomainVerificationAttemptsExhaustedStatus(t *testing.T) {
	fx := newVerificationFixture(t, WithMaxAttempts(1))
	fx.request(t, aliceIdentity, "strict.com")

	_, err := fx.svc.SubmitCode(context.Background(), aliceIdentity, "111111")
	require.ErrorIs(t, err, ErrMaxAttemptsExceeded)

	status, err := fx.svc.Status(context.Background(), aliceIdentity)
	require.NoError(t, err)
	require.Equal(t, models.VerificationAttemptsExhausted, status.State)
}

func TestNewDomainVerificationServiceValidation(t *testing.T) {
	db := openServiceTestDB(t)
	claims, err := NewWebsiteClaimService(db)
	require.NoError(t, err)

	_, err = NewDomainVerificationService(nil, nil, claims)
	require.Error(t, err)

	_, err = NewDomainVerificationService(db, nil, nil)
	require.Error(t, err)
}
