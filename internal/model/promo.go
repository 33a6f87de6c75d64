package model

import (
	"time"
)

type PromoCode struct {
	ID          int64     `gorm:"primaryKey" json:"id"`
	Code        string    `gorm:"size:50;uniqueIndex;not null" json:"code"`
	MaxUses     int       `gorm:"not null" json:"max_uses"`
	CurrentUses int       `gorm:"not null;default:0" json:"current_uses"`
	GrantDays   int       `gorm:"not null;default:0" json:"grant_days"`
	IsActive    bool      `gorm:"not null;index" json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (PromoCode) TableName() string {
	return "promo_codes"
}

// PromoRedemption 兑换记录
type PromoRedemption struct {
	ID           int64     `gorm:"primaryKey" json:"id"`
	PromoCodeID  int64     `gorm:"not null;index" json:"promo_code_id"`
	UserID       int64     `gorm:"not null;index" json:"user_id"`
	GrantedUntil time.Time `gorm:"not null" json:"granted_until"`
	RedeemedAt   time.Time `gorm:"not null" json:"redeemed_at"`
}

func (PromoRedemption) TableName() string {
	return "promo_redemptions"
}
