package dto

// CheckoutRequest 创建订阅结账
type CheckoutRequest struct {
	Interval string `json:"interval" binding:"required,oneof=month year"`
}

// CheckoutResponse 结账会话
type CheckoutResponse struct {
	SessionID string `json:"session_id"`
	URL       string `json:"url"`
}

// PortalResponse 账单管理页
type PortalResponse struct {
	URL string `json:"url"`
}

// RedeemPromoRequest 兑换码兑换
type RedeemPromoRequest struct {
	Code string `json:"code" binding:"required,max=64"`
}

// RedeemPromoResponse 兑换结果
type RedeemPromoResponse struct {
	Plan         string `json:"plan"`
	GrantedUntil string `json:"granted_until"`
}

// WebhookAck webhook 处理结果
type WebhookAck struct {
	Received  bool   `json:"received"`
	Type      string `json:"type"`
	Duplicate bool   `json:"duplicate,omitempty"`
}
