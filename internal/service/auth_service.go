package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/oauth2"
	"gorm.io/gorm"

	"github.com/qs3c/pixelchat_server/config"
	"github.com/qs3c/pixelchat_server/internal/model"
	"github.com/qs3c/pixelchat_server/internal/model/dto"
	"github.com/qs3c/pixelchat_server/internal/pkg/jwt"
	"github.com/qs3c/pixelchat_server/internal/pkg/oauth"
	"github.com/qs3c/pixelchat_server/internal/repository"
)

var (
	ErrEmailExists        = errors.New("邮箱已被注册")
	ErrUsernameExists     = errors.New("用户名已被使用")
	ErrInvalidCredentials = errors.New("邮箱或密码错误")
	ErrUserNotFound       = errors.New("用户不存在")
	ErrGithubDisabled     = errors.New("未启用 GitHub 登录")
)

// githubProvider GitHub OAuth 的最小接口
type githubProvider interface {
	Enabled() bool
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
	GetUser(ctx context.Context, token *oauth2.Token) (*oauth.GithubUser, error)
}

type AuthService struct {
	userRepo *repository.UserRepository
	quotaSvc *QuotaService
	cfg      *config.Config
	github   githubProvider
}

func NewAuthService(userRepo *repository.UserRepository, quotaSvc *QuotaService, cfg *config.Config) *AuthService {
	return &AuthService{
		userRepo: userRepo,
		quotaSvc: quotaSvc,
		cfg:      cfg,
		github:   oauth.NewGithubOAuth(cfg.OAuth.Github),
	}
}

// Register 用户注册，新账户为 essential
func (s *AuthService) Register(ctx context.Context, req *dto.RegisterRequest) (*dto.RegisterResponse, error) {
	email := normalizeEmail(req.Email)
	username := strings.TrimSpace(req.Username)

	exists, err := s.userRepo.ExistsByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrEmailExists
	}

	exists, err = s.userRepo.ExistsByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrUsernameExists
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	passwordHash := string(hashed)

	user := &model.User{
		Username:     username,
		Email:        &email,
		PasswordHash: &passwordHash,
		Plan:         model.PlanEssential,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, err
	}

	return &dto.RegisterResponse{UserID: user.ID}, nil
}

// Login 邮箱密码登录
func (s *AuthService) Login(ctx context.Context, req *dto.LoginRequest) (*dto.LoginResponse, error) {
	user, err := s.userRepo.GetByEmail(ctx, normalizeEmail(req.Email))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if user.PasswordHash == nil {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(*user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	return s.issue(user)
}

// Guest 创建游客会话，游客没有账户记录
func (s *AuthService) Guest(ctx context.Context) (*dto.GuestResponse, error) {
	guestID := uuid.NewString()

	token, err := jwt.GenerateGuestToken(guestID, s.cfg.JWT.Secret, s.cfg.JWT.GuestExpireHours)
	if err != nil {
		return nil, err
	}

	quota, err := s.quotaSvc.GetGuestQuotaInfo(ctx, guestID)
	if err != nil {
		return nil, err
	}

	return &dto.GuestResponse{Token: token, GuestID: guestID, Quota: quota}, nil
}

// GithubAuthURL 获取 GitHub 授权 URL
func (s *AuthService) GithubAuthURL(state string) (string, error) {
	if !s.github.Enabled() {
		return "", ErrGithubDisabled
	}
	return s.github.AuthURL(state), nil
}

// GithubCallback 处理 GitHub 回调；首次登录创建账户，邮箱相同的已有账户直接绑定
func (s *AuthService) GithubCallback(ctx context.Context, code string) (*dto.LoginResponse, error) {
	token, err := s.github.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange code: %w", err)
	}

	githubUser, err := s.github.GetUser(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("failed to get github user: %w", err)
	}
	githubID := fmt.Sprintf("%d", githubUser.ID)

	user, err := s.userRepo.GetByGithubID(ctx, githubID)
	if err == nil {
		return s.issue(user)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	email := normalizeEmail(githubUser.Email)
	if email != "" {
		user, err = s.userRepo.GetByEmail(ctx, email)
		if err == nil {
			if _, err := s.userRepo.UpdateFields(ctx, user.ID, map[string]interface{}{"github_id": githubID}); err != nil {
				return nil, fmt.Errorf("failed to link github account: %w", err)
			}
			user.GithubID = &githubID
			return s.issue(user)
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}

	user = &model.User{
		Username:  githubUser.DisplayName(),
		GithubID:  &githubID,
		AvatarURL: githubUser.AvatarURL,
		Plan:      model.PlanEssential,
	}
	if email != "" {
		user.Email = &email
	}

	// 确保用户名唯一
	exists, err := s.userRepo.ExistsByUsername(ctx, user.Username)
	if err != nil {
		return nil, err
	}
	if exists {
		user.Username = fmt.Sprintf("%s_%d", githubUser.Login, githubUser.ID)
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return s.issue(user)
}

func (s *AuthService) issue(user *model.User) (*dto.LoginResponse, error) {
	token, err := jwt.GenerateToken(user.ID, s.cfg.JWT.Secret, s.cfg.JWT.ExpireHours)
	if err != nil {
		return nil, err
	}
	return &dto.LoginResponse{
		Token: token,
		User:  buildUserInfo(user, s.quotaSvc.now()),
	}, nil
}
