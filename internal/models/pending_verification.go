package models

import "time"

// VerificationState is the lifecycle position of a user's domain verification.
type VerificationState string

const (
	VerificationNone              VerificationState = "none"
	VerificationCodeIssued        VerificationState = "code_issued"
	VerificationExpired           VerificationState = "expired"
	VerificationAttemptsExhausted VerificationState = "attempts_exhausted"
)

// PendingVerification is the single in-flight domain claim for a user.
// Requesting a new code overwrites the row; a successful claim deletes it.
type PendingVerification struct {
	BaseModel

	UserID        string    `gorm:"type:uuid;not null;uniqueIndex" json:"user_id"`
	CodeHash      string    `gorm:"not null" json:"-"`
	Attempts      int       `gorm:"not null;default:0" json:"attempts"`
	ExpiresAt     time.Time `gorm:"index" json:"expires_at"`
	ClaimedDomain string    `gorm:"not null" json:"claimed_domain"`
	BusinessName  string    `json:"business_name"`
	ContactEmail  string    `gorm:"not null" json:"contact_email"`
}

// State derives the verification state at now. Exhaustion wins over expiry so a
// flooded record keeps reporting the terminal ceiling.
func (p *PendingVerification) State(now time.Time, maxAttempts int) VerificationState {
	if p == nil {
		return VerificationNone
	}
	if maxAttempts > 0 && p.Attempts >= maxAttempts {
		return VerificationAttemptsExhausted
	}
	if !p.ExpiresAt.After(now) {
		return VerificationExpired
	}
	return VerificationCodeIssued
}

// AttemptsRemaining never goes below zero.
func (p *PendingVerification) AttemptsRemaining(maxAttempts int) int {
	if p == nil || maxAttempts <= 0 {
		return 0
	}
	if remaining := maxAttempts - p.Attempts; remaining > 0 {
		return remaining
	}
	return 0
}
