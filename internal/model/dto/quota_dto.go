package dto

// QuotaInfo 当日配额；DailyLimit / Remaining 为 nil 表示不限
type QuotaInfo struct {
	Class          string `json:"class"`
	Unlimited      bool   `json:"unlimited"`
	DailyLimit     *int   `json:"daily_limit"`
	UsedToday      int    `json:"used_today"`
	Remaining      *int   `json:"remaining"`
	ResetAt        string `json:"reset_at"`
	ResetInSeconds int64  `json:"reset_in_seconds"`
}

// PlanInfo 套餐目录条目
type PlanInfo struct {
	Name        string   `json:"name"`
	DisplayName string   `json:"display_name"`
	DailyLimit  *int     `json:"daily_limit"`
	Model       string   `json:"model"`
	HistoryDays *int     `json:"history_days"`
	Features    []string `json:"features"`
}
