package services

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

var (
	// ErrNotAuthenticated indicates the caller did not present a usable identity.
	ErrNotAuthenticated = errors.New("domain verification: not authenticated")
	// ErrInvalidOrExpiredCode indicates a wrong or stale code; the caller may resubmit.
	ErrInvalidOrExpiredCode = errors.New("domain verification: invalid or expired code")
	// ErrMaxAttemptsExceeded is terminal for the current code.
	ErrMaxAttemptsExceeded = errors.New("domain verification: max attempts exceeded")
	// ErrOwnershipConflict signals the domain is owned by a different account.
	ErrOwnershipConflict = errors.New("website claim: ownership conflict")
	// ErrInvalidDomain indicates the claimed domain normalises to nothing.
	ErrInvalidDomain = errors.New("website claim: invalid domain")
	// ErrWebsiteNotFound indicates no website is stored under the normalised domain.
	ErrWebsiteNotFound = errors.New("website: not found")
	// ErrUserNotFound indicates the account row is missing.
	ErrUserNotFound = errors.New("user: not found")
)

// isUniqueConstraintError detects database uniqueness constraint violations across vendors.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr != nil && pgErr.Code == "23505" {
		return true
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr != nil && myErr.Number == 1062 {
		return true
	}

	lower := strings.ToLower(err.Error())
	return strings.Contains(lower, "unique constraint") ||
		strings.Contains(lower, "duplicate")
}
