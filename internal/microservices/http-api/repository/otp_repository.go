package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"geminichat/internal/microservices/http-api/models"
	"geminichat/internal/shared"
)

type OTPRepository interface {
	Create(ctx context.Context, otp *models.OTP) error
	// Consume marks the newest matching, unexpired, unused code as used.
	Consume(ctx context.Context, userID int64, code string, now time.Time) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type otpRepository struct {
	db *gorm.DB
}

func NewOTPRepository(db *gorm.DB) OTPRepository {
	return &otpRepository{db: db}
}

func (r *otpRepository) Create(ctx context.Context, otp *models.OTP) error {
	return r.db.WithContext(ctx).Create(otp).Error
}

func (r *otpRepository) Consume(ctx context.Context, userID int64, code string, now time.Time) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var otp models.OTP
		err := tx.Where("user_id = ? AND code = ? AND consumed_at IS NULL AND expires_at > ?", userID, code, now).
			Order("id DESC").
			First(&otp).Error
		if err != nil {
			if mapNotFound(err) == shared.ErrNotFound {
				return shared.ErrInvalidOTP
			}
			return err
		}

		// the consumed_at guard makes a concurrent second verify lose the race
		res := tx.Model(&models.OTP{}).
			Where("id = ? AND consumed_at IS NULL", otp.ID).
			Update("consumed_at", now)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return shared.ErrInvalidOTP
		}
		return nil
	})
}

func (r *otpRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("expires_at <= ? OR consumed_at IS NOT NULL", now).
		Delete(&models.OTP{})
	return res.RowsAffected, res.Error
}
