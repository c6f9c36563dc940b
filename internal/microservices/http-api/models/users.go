package models

import (
	"time"

	"geminichat/internal/shared"
)

type User struct {
	ID               int64       `gorm:"primaryKey;autoIncrement" json:"id"`
	Mobile           string      `gorm:"uniqueIndex;not null;size:20" json:"mobile"`
	PasswordHash     string      `gorm:"column:password_hash" json:"-"` // empty for OTP-only accounts
	SubscriptionTier shared.Tier `gorm:"column:subscription_tier;size:16;not null;default:basic" json:"subscription_tier"`
	StripeCustomerID *string     `gorm:"column:stripe_customer_id;index" json:"-"`
	CreatedAt        time.Time   `json:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at"`
}

// HasPassword reports whether the user ever set a password.
func (u *User) HasPassword() bool {
	return u.PasswordHash != ""
}

func (User) TableName() string {
	return "users"
}
