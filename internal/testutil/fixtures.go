package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/qs3c/pixelchat_server/internal/model"
)

var fixtureSeq int64

func nextSeq() int64 {
	return atomic.AddInt64(&fixtureSeq, 1)
}

// TestUser 创建测试用户
func TestUser(t *testing.T, db *gorm.DB, opts ...func(*model.User)) *model.User {
	t.Helper()

	n := nextSeq()
	email := fmt.Sprintf("test_%d@example.com", n)
	passwordHash := "$2a$10$abcdefghijklmnopqrstuvwxyz123456" // bcrypt hash placeholder
	user := &model.User{
		Username:     fmt.Sprintf("testuser_%d", n),
		Email:        &email,
		PasswordHash: &passwordHash,
		Plan:         model.PlanEssential,
	}

	for _, opt := range opts {
		opt(user)
	}

	if err := db.Create(user).Error; err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}

	return user
}

// WithUsername 设置用户名
func WithUsername(username string) func(*model.User) {
	return func(u *model.User) {
		u.Username = username
	}
}

// WithEmail 设置邮箱
func WithEmail(email string) func(*model.User) {
	return func(u *model.User) {
		u.Email = &email
	}
}

// WithPassword 设置密码哈希
func WithPassword(hash string) func(*model.User) {
	return func(u *model.User) {
		u.PasswordHash = &hash
	}
}

// WithPlan 设置套餐和到期时间
func WithPlan(plan string, expiry *time.Time) func(*model.User) {
	return func(u *model.User) {
		u.Plan = plan
		u.PlanExpiry = expiry
	}
}

// WithBillingCustomer 设置支付平台客户 ID
func WithBillingCustomer(customerID string) func(*model.User) {
	return func(u *model.User) {
		u.BillingCustomerID = &customerID
	}
}

// WithBillingEventAt 设置最近一次账单事件时间
func WithBillingEventAt(at time.Time) func(*model.User) {
	return func(u *model.User) {
		u.BillingEventAt = &at
	}
}

// WithMessagesUsed 设置某天已发送消息数
func WithMessagesUsed(used int, day time.Time) func(*model.User) {
	return func(u *model.User) {
		u.MessagesUsedToday = used
		u.LastMessageDate = &day
	}
}

// TestPromoCode 创建测试兑换码
func TestPromoCode(t *testing.T, db *gorm.DB, code string, maxUses, grantDays int, opts ...func(*model.PromoCode)) *model.PromoCode {
	t.Helper()

	promo := &model.PromoCode{
		Code:      code,
		MaxUses:   maxUses,
		GrantDays: grantDays,
		IsActive:  true,
	}

	for _, opt := range opts {
		opt(promo)
	}

	if err := db.Create(promo).Error; err != nil {
		t.Fatalf("Failed to create test promo code: %v", err)
	}

	return promo
}

// WithCurrentUses 设置已使用次数
func WithCurrentUses(uses int) func(*model.PromoCode) {
	return func(p *model.PromoCode) {
		p.CurrentUses = uses
	}
}

// WithInactive 设置为停用
func WithInactive() func(*model.PromoCode) {
	return func(p *model.PromoCode) {
		p.IsActive = false
	}
}

// TestChatMessage 创建测试聊天记录
func TestChatMessage(t *testing.T, db *gorm.DB, userID int64, role, content string, createdAt time.Time) *model.ChatMessage {
	t.Helper()

	msg := &model.ChatMessage{
		UserID:    userID,
		Role:      role,
		Content:   content,
		CreatedAt: createdAt,
	}

	if err := db.Create(msg).Error; err != nil {
		t.Fatalf("Failed to create test chat message: %v", err)
	}

	return msg
}
