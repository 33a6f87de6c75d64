package service

import (
	"time"

	"github.com/qs3c/pixelchat_server/config"
	"github.com/qs3c/pixelchat_server/internal/model/dto"
)

// 目录展示顺序
var planOrder = []string{config.PlanEssential, config.PlanAdvanced}

// PlanService 套餐目录
type PlanService struct {
	cfg *config.Config
}

func NewPlanService(cfg *config.Config) *PlanService {
	return &PlanService{cfg: cfg}
}

// List 全部套餐
func (s *PlanService) List() []dto.PlanInfo {
	plans := make([]dto.PlanInfo, 0, len(planOrder))
	for _, name := range planOrder {
		plans = append(plans, *s.Info(name))
	}
	return plans
}

// Info 单个套餐详情
func (s *PlanService) Info(name string) *dto.PlanInfo {
	if name != config.PlanAdvanced {
		name = config.PlanEssential
	}
	plan := s.cfg.Plan(name)

	info := &dto.PlanInfo{
		Name:        name,
		DisplayName: plan.DisplayName,
		Model:       plan.Model,
		Features:    plan.Features,
	}
	if info.Features == nil {
		info.Features = []string{}
	}
	if name == config.PlanEssential {
		limit := s.cfg.Quota.EssentialDailyLimit
		info.DailyLimit = &limit
	}
	if plan.HistoryDays > 0 {
		days := plan.HistoryDays
		info.HistoryDays = &days
	}
	return info
}

// ModelFor 套餐使用的模型
func (s *PlanService) ModelFor(name string) string {
	return s.cfg.Plan(name).Model
}

// GuestModel 游客使用的模型，未配置时与 essential 相同
func (s *PlanService) GuestModel() string {
	if s.cfg.LLM.GuestModel != "" {
		return s.cfg.LLM.GuestModel
	}
	return s.ModelFor(config.PlanEssential)
}

// HistorySince 历史消息可见的起始时间，nil 表示不限
func (s *PlanService) HistorySince(name string, now time.Time) *time.Time {
	days := s.cfg.Plan(name).HistoryDays
	if days <= 0 {
		return nil
	}
	since := now.UTC().AddDate(0, 0, -days)
	return &since
}
