package models

import "time"

type OTP struct {
	ID         int64      `gorm:"primaryKey;autoIncrement"`
	UserID     int64      `gorm:"not null;index"`
	Code       string     `gorm:"not null;size:6"`
	ExpiresAt  time.Time  `gorm:"not null;index"`
	ConsumedAt *time.Time
	CreatedAt  time.Time
}

func (OTP) TableName() string {
	return "otps"
}
