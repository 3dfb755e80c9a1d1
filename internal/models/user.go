package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Role gates which dashboards an account may reach.
type Role string

const (
	RoleUser          Role = "user"
	RoleAdmin         Role = "admin"
	RoleBusinessOwner Role = "business_owner"
	RoleBusinessUser  Role = "business_user"
)

// PricingModel is the listing tier of a website. Claiming always lands on PricingFree.
type PricingModel string

const (
	PricingFree    PricingModel = "FREE"
	PricingPlus    PricingModel = "PLUS"
	PricingPremium PricingModel = "PREMIUM"
)

// User is a marketplace account. Email is stored lowercased and is the identity key.
type User struct {
	ID    string `gorm:"primaryKey;type:uuid" json:"id"`
	Email string `gorm:"uniqueIndex;not null" json:"email"`
	Name  string `json:"name"`

	Role                   Role         `gorm:"type:varchar(32);not null;default:user" json:"role"`
	IsWebsiteOwner         bool         `gorm:"not null;default:false" json:"is_website_owner"`
	IsVerifiedWebsiteOwner bool         `gorm:"not null;default:false" json:"is_verified_website_owner"`
	RelatedWebsite         string       `gorm:"index" json:"related_website,omitempty"`
	PricingModel           PricingModel `gorm:"type:varchar(16);not null;default:FREE" json:"pricing_model"`
	// WebsiteID is a plain pointer; declaring the relation would create a users<->websites FK cycle.
	WebsiteID *string `gorm:"type:uuid" json:"website_id,omitempty"`

	PendingVerification *PendingVerification `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate ensures a UUID is present before persisting.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.Role == "" {
		u.Role = RoleUser
	}
	if u.PricingModel == "" {
		u.PricingModel = PricingFree
	}
	return nil
}
