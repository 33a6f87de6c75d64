package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/qs3c/pixelchat_server/internal/model"
	"github.com/qs3c/pixelchat_server/internal/model/dto"
	"github.com/qs3c/pixelchat_server/internal/repository"
)

type UserService struct {
	userRepo *repository.UserRepository
	quotaSvc *QuotaService
	planSvc  *PlanService
}

func NewUserService(userRepo *repository.UserRepository, quotaSvc *QuotaService, planSvc *PlanService) *UserService {
	return &UserService{
		userRepo: userRepo,
		quotaSvc: quotaSvc,
		planSvc:  planSvc,
	}
}

// GetUser 读取账户，过期的 advanced 顺带降级
func (s *UserService) GetUser(ctx context.Context, userID int64) (*model.User, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	now := s.quotaSvc.now()
	if user.PlanLapsed(now) {
		if err := s.userRepo.DowngradeLapsed(ctx, user.ID, now); err != nil {
			return nil, err
		}
		user.Plan = model.PlanEssential
		user.PlanExpiry = nil
	}
	return user, nil
}

// GetProfile 获取用户资料及当前权益
func (s *UserService) GetProfile(ctx context.Context, userID int64) (*dto.ProfileResponse, error) {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.buildProfile(user), nil
}

// UpdateProfile 更新用户名或头像
func (s *UserService) UpdateProfile(ctx context.Context, userID int64, req *dto.UpdateProfileRequest) (*dto.ProfileResponse, error) {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	fields := map[string]interface{}{}
	if req.Username != nil {
		username := strings.TrimSpace(*req.Username)
		if username != user.Username {
			exists, err := s.userRepo.ExistsByUsername(ctx, username)
			if err != nil {
				return nil, err
			}
			if exists {
				return nil, ErrUsernameExists
			}
			fields["username"] = username
			user.Username = username
		}
	}
	if req.AvatarURL != nil {
		fields["avatar_url"] = *req.AvatarURL
		user.AvatarURL = *req.AvatarURL
	}

	if len(fields) > 0 {
		if _, err := s.userRepo.UpdateFields(ctx, userID, fields); err != nil {
			return nil, err
		}
	}

	return s.buildProfile(user), nil
}

func (s *UserService) buildProfile(user *model.User) *dto.ProfileResponse {
	now := s.quotaSvc.now()
	return &dto.ProfileResponse{
		User:          buildUserInfo(user, now),
		Quota:         s.quotaSvc.GetQuotaInfo(user),
		PlanDetail:    s.planSvc.Info(user.EffectivePlan(now)),
		BillingLinked: user.BillingCustomerID != nil,
	}
}

func buildUserInfo(user *model.User, now time.Time) *dto.UserInfo {
	info := &dto.UserInfo{
		ID:        user.ID,
		Username:  user.Username,
		AvatarURL: user.AvatarURL,
		Plan:      user.EffectivePlan(now),
		CreatedAt: user.CreatedAt.UTC().Format(time.RFC3339),
	}
	if user.Email != nil {
		info.Email = *user.Email
	}
	if info.Plan == model.PlanAdvanced && user.PlanExpiry != nil {
		expiry := user.PlanExpiry.UTC().Format(time.RFC3339)
		info.PlanExpiry = &expiry
	}
	return info
}
