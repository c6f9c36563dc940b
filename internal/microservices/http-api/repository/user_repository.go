package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"geminichat/internal/microservices/http-api/models"
	"geminichat/internal/shared"
)

// UserRepository defines the interface for user data operations.
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	FindByID(ctx context.Context, id int64) (*models.User, error)
	FindByMobile(ctx context.Context, mobile string) (*models.User, error)
	FindByStripeCustomer(ctx context.Context, customerID string) (*models.User, error)
	UpdatePassword(ctx context.Context, id int64, passwordHash string) error
	UpdateTier(ctx context.Context, id int64, tier shared.Tier) error
	SetStripeCustomer(ctx context.Context, id int64, customerID string) error
	GetTier(ctx context.Context, id int64) (shared.Tier, error)
}

// userRepository is the GORM implementation of UserRepository.
type userRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) Create(ctx context.Context, user *models.User) error {
	if user.SubscriptionTier == "" {
		user.SubscriptionTier = shared.TierBasic
	}
	err := r.db.WithContext(ctx).Create(user).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return shared.ErrConflict
	}
	return err
}

func (r *userRepository) FindByID(ctx context.Context, id int64) (*models.User, error) {
	var user models.User
	// return nil on error so callers never mistake a zero-value struct for a found user
	if err := r.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, mapNotFound(err)
	}
	return &user, nil
}

func (r *userRepository) FindByMobile(ctx context.Context, mobile string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("mobile = ?", mobile).First(&user).Error; err != nil {
		return nil, mapNotFound(err)
	}
	return &user, nil
}

func (r *userRepository) FindByStripeCustomer(ctx context.Context, customerID string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("stripe_customer_id = ?", customerID).First(&user).Error; err != nil {
		return nil, mapNotFound(err)
	}
	return &user, nil
}

func (r *userRepository) UpdatePassword(ctx context.Context, id int64, passwordHash string) error {
	return r.updateColumn(ctx, id, "password_hash", passwordHash)
}

func (r *userRepository) UpdateTier(ctx context.Context, id int64, tier shared.Tier) error {
	return r.updateColumn(ctx, id, "subscription_tier", tier)
}

func (r *userRepository) SetStripeCustomer(ctx context.Context, id int64, customerID string) error {
	return r.updateColumn(ctx, id, "stripe_customer_id", customerID)
}

func (r *userRepository) GetTier(ctx context.Context, id int64) (shared.Tier, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Select("subscription_tier").First(&user, "id = ?", id).Error; err != nil {
		return "", mapNotFound(err)
	}
	if !user.SubscriptionTier.Valid() {
		return shared.TierBasic, nil
	}
	return user.SubscriptionTier, nil
}

func (r *userRepository) updateColumn(ctx context.Context, id int64, column string, value any) error {
	res := r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Update(column, value)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}
