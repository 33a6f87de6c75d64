package model

import (
	"time"
)

// 套餐
const (
	PlanEssential = "essential"
	PlanAdvanced  = "advanced"
)

type User struct {
	ID                    int64      `gorm:"primaryKey" json:"id"`
	Username              string     `gorm:"size:50;uniqueIndex;not null" json:"username"`
	Email                 *string    `gorm:"size:100;uniqueIndex" json:"email,omitempty"`
	PasswordHash          *string    `gorm:"size:255" json:"-"`
	AvatarURL             string     `gorm:"size:500" json:"avatar_url"`
	GithubID              *string    `gorm:"column:github_id;size:50;uniqueIndex" json:"-"`
	Plan                  string     `gorm:"size:20;not null;default:essential" json:"plan"`
	PlanExpiry            *time.Time `json:"plan_expiry,omitempty"`
	BillingCustomerID     *string    `gorm:"size:100;uniqueIndex" json:"-"`
	BillingSubscriptionID *string    `gorm:"size:100" json:"-"`
	BillingEventAt        *time.Time `json:"-"`
	MessagesUsedToday     int        `gorm:"not null;default:0" json:"messages_used_today"`
	LastMessageDate       *time.Time `json:"last_message_date,omitempty"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}

// HasAdvanced advanced 套餐且未过期；expiry 为空视为永久授权
func (u *User) HasAdvanced(now time.Time) bool {
	if u.Plan != PlanAdvanced {
		return false
	}
	return u.PlanExpiry == nil || u.PlanExpiry.After(now)
}

// EffectivePlan 读取时的实际套餐，过期的 advanced 按 essential 处理
func (u *User) EffectivePlan(now time.Time) string {
	if u.HasAdvanced(now) {
		return PlanAdvanced
	}
	return PlanEssential
}

// PlanLapsed advanced 套餐已过期但尚未降级
func (u *User) PlanLapsed(now time.Time) bool {
	return u.Plan == PlanAdvanced && !u.HasAdvanced(now)
}
