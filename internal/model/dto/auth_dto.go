package dto

// RegisterRequest 注册请求
type RegisterRequest struct {
	Username string `json:"username" binding:"required,min=2,max=50"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8,max=72"`
}

// RegisterResponse 注册响应
type RegisterResponse struct {
	UserID int64 `json:"user_id"`
}

// LoginRequest 登录请求
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse 登录响应
type LoginResponse struct {
	Token string    `json:"token"`
	User  *UserInfo `json:"user"`
}

// GuestResponse 游客会话
type GuestResponse struct {
	Token   string     `json:"token"`
	GuestID string     `json:"guest_id"`
	Quota   *QuotaInfo `json:"quota"`
}

// UserInfo 用户信息（返回给前端）
type UserInfo struct {
	ID         int64   `json:"id"`
	Username   string  `json:"username"`
	Email      string  `json:"email,omitempty"`
	AvatarURL  string  `json:"avatar_url"`
	Plan       string  `json:"plan"`
	PlanExpiry *string `json:"plan_expiry,omitempty"`
	CreatedAt  string  `json:"created_at,omitempty"`
}

// ProfileResponse 用户资料及权益
type ProfileResponse struct {
	User          *UserInfo  `json:"user"`
	Quota         *QuotaInfo `json:"quota"`
	PlanDetail    *PlanInfo  `json:"plan_detail"`
	BillingLinked bool       `json:"billing_linked"`
}

// UpdateProfileRequest 更新用户信息请求
type UpdateProfileRequest struct {
	Username  *string `json:"username,omitempty" binding:"omitempty,min=2,max=50"`
	AvatarURL *string `json:"avatar_url,omitempty" binding:"omitempty,url,max=500"`
}
