package models

import (
	"time"

	"geminichat/internal/shared"
)

type SubscriptionStatus string

const (
	SubscriptionPending  SubscriptionStatus = "pending"
	SubscriptionActive   SubscriptionStatus = "active"
	SubscriptionPastDue  SubscriptionStatus = "past_due"
	SubscriptionCanceled SubscriptionStatus = "canceled"
)

type Subscription struct {
	ID        int64              `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    int64              `gorm:"not null;index" json:"user_id"`
	Tier      shared.Tier        `gorm:"size:16;not null" json:"tier"`
	StripeID  string             `gorm:"column:stripe_id;size:255;index" json:"stripe_id"` // checkout session id, then subscription id
	Status    SubscriptionStatus `gorm:"size:16;not null" json:"status"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
}

func (Subscription) TableName() string {
	return "subscriptions"
}
