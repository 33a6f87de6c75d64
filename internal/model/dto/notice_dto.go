package dto

import "time"

// 账单通知类型
const (
	NoticePaymentFailed = "payment_failed"
)

// BillingNotice 账单侧通道消息，经 Redis 队列发邮件、经 pub/sub 推送到在线页面
type BillingNotice struct {
	Type         string     `json:"type"`
	EventID      string     `json:"event_id"`
	UserID       int64      `json:"user_id"`
	Email        string     `json:"email,omitempty"`
	Username     string     `json:"username,omitempty"`
	InvoiceID    string     `json:"invoice_id,omitempty"`
	AmountDue    int64      `json:"amount_due,omitempty"`
	AttemptCount int64      `json:"attempt_count,omitempty"`
	NextAttempt  *time.Time `json:"next_attempt,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}
