package models

import (
	"time"

	"gorm.io/datatypes"
)

// Website is a business listing keyed by its normalized domain.
// OwnerID only changes through the claim path; a set owner is never silently replaced.
type Website struct {
	BaseModel

	URL        string                      `gorm:"uniqueIndex;size:255;not null" json:"url"`
	Name       string                      `json:"name"`
	Categories datatypes.JSONSlice[string] `json:"categories"`

	OwnerID *string `gorm:"type:uuid;index" json:"owner_id,omitempty"`
	Owner   *User   `gorm:"foreignKey:OwnerID;constraint:OnDelete:SET NULL" json:"-"`

	IsVerified   bool         `gorm:"not null;default:false" json:"is_verified"`
	VerifiedAt   *time.Time   `json:"verified_at,omitempty"`
	PricingModel PricingModel `gorm:"type:varchar(16);not null;default:FREE" json:"pricing_model"`
	IsActive     bool         `gorm:"not null;default:true" json:"is_active"`
}

// OwnedBy reports whether userID currently owns the website.
func (w *Website) OwnedBy(userID string) bool {
	return w != nil && w.OwnerID != nil && *w.OwnerID == userID
}
