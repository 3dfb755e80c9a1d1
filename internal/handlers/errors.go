package handlers

import (
	"errors"

	"github.com/charlesng35/reviewhub/internal/services"
	appErrors "github.com/charlesng35/reviewhub/pkg/errors"
)

// mapServiceError converts service sentinels into API errors.
func mapServiceError(err error) *appErrors.AppError {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, services.ErrNotAuthenticated), errors.Is(err, services.ErrUserNotFound):
		return appErrors.ErrUnauthorized
	case errors.Is(err, services.ErrInvalidOrExpiredCode):
		return appErrors.ErrInvalidOrExpiredCode
	case errors.Is(err, services.ErrMaxAttemptsExceeded):
		return appErrors.ErrMaxAttemptsExceeded
	case errors.Is(err, services.ErrOwnershipConflict):
		return appErrors.ErrOwnershipConflict
	case errors.Is(err, services.ErrInvalidDomain):
		return appErrors.NewBadRequest("domain is invalid")
	case errors.Is(err, services.ErrWebsiteNotFound):
		return appErrors.ErrNotFound
	default:
		return appErrors.ErrInternalServer.WithInternal(err)
	}
}
