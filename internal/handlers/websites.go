package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/reviewhub/internal/models"
	"github.com/charlesng35/reviewhub/internal/services"
	"github.com/charlesng35/reviewhub/pkg/response"
)

type WebsiteHandler struct {
	svc *services.WebsiteClaimService
}

func NewWebsiteHandler(svc *services.WebsiteClaimService) (*WebsiteHandler, error) {
	if svc == nil {
		return nil, errors.New("website handler: service is required")
	}
	return &WebsiteHandler{svc: svc}, nil
}

type websiteDTO struct {
	ID           string   `json:"id"`
	URL          string   `json:"url"`
	Name         string   `json:"name"`
	Categories   []string `json:"categories"`
	IsVerified   bool     `json:"is_verified"`
	VerifiedAt   string   `json:"verified_at,omitempty"`
	PricingModel string   `json:"pricing_model"`
	IsActive     bool     `json:"is_active"`
	Claimed      bool     `json:"claimed"`
}

func mapWebsite(website *models.Website) websiteDTO {
	dto := websiteDTO{
		ID:           website.ID,
		URL:          website.URL,
		Name:         website.Name,
		Categories:   []string(website.Categories),
		IsVerified:   website.IsVerified,
		PricingModel: string(website.PricingModel),
		IsActive:     website.IsActive,
		Claimed:      website.OwnerID != nil,
	}
	if dto.Categories == nil {
		dto.Categories = []string{}
	}
	if website.VerifiedAt != nil {
		dto.VerifiedAt = website.VerifiedAt.UTC().Format(time.RFC3339)
	}
	return dto
}

// Get looks up a website by any URL form of its domain.
//
// GET /api/websites/:domain
func (h *WebsiteHandler) Get(c *gin.Context) {
	website, err := h.svc.GetByDomain(requestContext(c), c.Param("domain"))
	if err != nil {
		response.Error(c, mapServiceError(err))
		return
	}
	response.Success(c, http.StatusOK, mapWebsite(website))
}
