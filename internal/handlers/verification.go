package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/charlesng35/reviewhub/internal/services"
	"github.com/charlesng35/reviewhub/pkg/logger"
	"github.com/charlesng35/reviewhub/pkg/response"
)

// DomainVerificationHandler exposes the domain ownership flow to authenticated owners.
type DomainVerificationHandler struct {
	svc *services.DomainVerificationService
}

// NewDomainVerificationHandler constructs the handler.
func NewDomainVerificationHandler(svc *services.DomainVerificationService) (*DomainVerificationHandler, error) {
	if svc == nil {
		return nil, errors.New("domain verification handler: service is required")
	}
	return &DomainVerificationHandler{svc: svc}, nil
}

type requestCodePayload struct {
	ClaimedDomain string `json:"claimed_domain" validate:"required,max=255"`
	BusinessName  string `json:"business_name" validate:"max=255"`
	ContactEmail  string `json:"contact_email" validate:"required,email"`
}

type submitCodePayload struct {
	Code string `json:"code" validate:"required,verification_code"`
}

type verificationStatusDTO struct {
	State             string `json:"state"`
	ClaimedDomain     string `json:"claimed_domain,omitempty"`
	BusinessName      string `json:"business_name,omitempty"`
	ContactEmail      string `json:"contact_email,omitempty"`
	ExpiresAt         string `json:"expires_at,omitempty"`
	AttemptsRemaining int    `json:"attempts_remaining"`
}

// Request issues a code for the claimed domain.
//
// POST /api/verification/request
func (h *DomainVerificationHandler) Request(c *gin.Context) {
	var payload requestCodePayload
	if !bindAndValidate(c, &payload) {
		return
	}

	result, err := h.svc.RequestCode(requestContext(c), identityFromContext(c), services.RequestCodeInput{
		ClaimedDomain: payload.ClaimedDomain,
		BusinessName:  payload.BusinessName,
		ContactEmail:  payload.ContactEmail,
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"ok":         true,
		"expires_at": result.ExpiresAt.UTC().Format(time.RFC3339),
		"delivered":  result.Delivered,
	})
}

// Submit checks a code and, on success, claims the website.
//
// POST /api/verification/submit
func (h *DomainVerificationHandler) Submit(c *gin.Context) {
	var payload submitCodePayload
	if !bindAndValidate(c, &payload) {
		return
	}

	result, err := h.svc.SubmitCode(requestContext(c), identityFromContext(c), payload.Code)
	if err != nil {
		h.fail(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"ok":                true,
		"normalized_domain": result.NormalizedDomain,
		"website_id":        result.WebsiteID,
	})
}

// Status reports the caller's pending verification.
//
// GET /api/verification
func (h *DomainVerificationHandler) Status(c *gin.Context) {
	status, err := h.svc.Status(requestContext(c), identityFromContext(c))
	if err != nil {
		h.fail(c, err)
		return
	}

	dto := verificationStatusDTO{
		State:             string(status.State),
		ClaimedDomain:     status.ClaimedDomain,
		BusinessName:      status.BusinessName,
		ContactEmail:      status.ContactEmail,
		AttemptsRemaining: status.AttemptsRemaining,
	}
	if status.ExpiresAt != nil {
		dto.ExpiresAt = status.ExpiresAt.UTC().Format(time.RFC3339)
	}
	response.Success(c, http.StatusOK, dto)
}

// Abandon discards the caller's pending verification.
//
// DELETE /api/verification
func (h *DomainVerificationHandler) Abandon(c *gin.Context) {
	if err := h.svc.Abandon(requestContext(c), identityFromContext(c)); err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"ok": true})
}

func (h *DomainVerificationHandler) fail(c *gin.Context, err error) {
	appErr := mapServiceError(err)
	if appErr.Internal != nil {
		logger.WithModule("http").Error("domain verification failed",
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
	}
	response.Error(c, appErr)
}
