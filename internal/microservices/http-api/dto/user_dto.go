package dto

import (
	"time"

	"geminichat/internal/microservices/http-api/models"
	"geminichat/internal/shared"
)

type UserResponse struct {
	ID               int64       `json:"id"`
	Mobile           string      `json:"mobile"`
	SubscriptionTier shared.Tier `json:"subscription_tier"`
	HasPassword      bool        `json:"has_password"`
	CreatedAt        time.Time   `json:"created_at"`
}

func NewUserResponse(u *models.User) UserResponse {
	return UserResponse{
		ID:               u.ID,
		Mobile:           u.Mobile,
		SubscriptionTier: u.SubscriptionTier,
		HasPassword:      u.HasPassword(),
		CreatedAt:        u.CreatedAt,
	}
}
