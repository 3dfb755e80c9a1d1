package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/charlesng35/reviewhub/internal/models"
)

// PromotionInput names the account that just won a claim and the website it won.
type PromotionInput struct {
	UserID    string
	WebsiteID string
	Domain    string
}

// PromoteUser turns the account into a verified business owner of the claimed website and
// clears its pending verification. Run it inside the claim transaction so a failed promotion
// also rolls back the website write.
func PromoteUser(ctx context.Context, tx *gorm.DB, input PromotionInput) error {
	if tx == nil {
		return errors.New("user promotion: db is required")
	}
	userID := strings.TrimSpace(input.UserID)
	if userID == "" {
		return errors.New("user promotion: user id is required")
	}
	domain := NormalizeDomain(input.Domain)
	if domain == "" {
		return ErrInvalidDomain
	}

	updates := map[string]any{
		"role":                      models.RoleBusinessOwner,
		"is_website_owner":          true,
		"is_verified_website_owner": true,
		"related_website":           domain,
		"pricing_model":             models.PricingFree,
	}
	if websiteID := strings.TrimSpace(input.WebsiteID); websiteID != "" {
		updates["website_id"] = websiteID
	}

	tx = tx.WithContext(ctx)
	result := tx.Model(&models.User{}).Where("id = ?", userID).Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("user promotion: update user: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrUserNotFound
	}

	if err := tx.Where("user_id = ?", userID).Delete(&models.PendingVerification{}).Error; err != nil {
		return fmt.Errorf("user promotion: clear pending verification: %w", err)
	}
	return nil
}
