package handler

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/pixelchat_server/internal/model/dto"
	"github.com/qs3c/pixelchat_server/internal/pkg/logging"
	"github.com/qs3c/pixelchat_server/internal/pkg/oauth"
	"github.com/qs3c/pixelchat_server/internal/pkg/response"
	"github.com/qs3c/pixelchat_server/internal/service"
)

type AuthHandler struct {
	authService *service.AuthService
	states      *oauth.StateStore
	frontendURL string
}

func NewAuthHandler(authService *service.AuthService, states *oauth.StateStore, frontendURL string) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		states:      states,
		frontendURL: strings.TrimRight(frontendURL, "/"),
	}
}

// Register 用户注册
// POST /api/v1/auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	var req dto.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	resp, err := h.authService.Register(c.Request.Context(), &req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrEmailExists), errors.Is(err, service.ErrUsernameExists):
			response.ParamError(c, err.Error())
		default:
			logging.FromContext(c.Request.Context()).Error().Err(err).Msg("Register failed")
			response.ServerError(c, "")
		}
		return
	}

	response.SuccessWithMessage(c, "注册成功", resp)
}

// Login 用户登录
// POST /api/v1/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req dto.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	resp, err := h.authService.Login(c.Request.Context(), &req)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			response.AuthError(c, err.Error())
			return
		}
		response.ServerError(c, "")
		return
	}

	response.SuccessWithMessage(c, "登录成功", resp)
}

// Guest 游客模式
// POST /api/v1/auth/guest
func (h *AuthHandler) Guest(c *gin.Context) {
	resp, err := h.authService.Guest(c.Request.Context())
	if err != nil {
		logging.FromContext(c.Request.Context()).Error().Err(err).Msg("Guest session failed")
		response.ServerError(c, "")
		return
	}

	response.Success(c, resp)
}

// GithubAuth 跳转到 GitHub 授权页
// GET /api/v1/auth/github?redirect=xxx
func (h *AuthHandler) GithubAuth(c *gin.Context) {
	redirect := h.safeRedirect(c.Query("redirect"))

	state, err := h.states.GenerateState(c.Request.Context(), redirect)
	if err != nil {
		response.ServerError(c, "")
		return
	}

	authURL, err := h.authService.GithubAuthURL(state)
	if err != nil {
		if errors.Is(err, service.ErrGithubDisabled) {
			response.PermissionError(c, err.Error())
			return
		}
		response.ServerError(c, "")
		return
	}

	c.Redirect(http.StatusTemporaryRedirect, authURL)
}

// GithubCallback GitHub 授权回调
// GET /api/v1/auth/github/callback
func (h *AuthHandler) GithubCallback(c *gin.Context) {
	code := c.Query("code")
	if code == "" {
		response.ParamError(c, "缺少授权码")
		return
	}

	redirect, err := h.states.ValidateState(c.Request.Context(), c.Query("state"))
	if err != nil {
		if errors.Is(err, oauth.ErrInvalidState) {
			response.ParamError(c, "state 无效或已过期")
			return
		}
		response.ServerError(c, "")
		return
	}

	resp, err := h.authService.GithubCallback(c.Request.Context(), code)
	if err != nil {
		logging.FromContext(c.Request.Context()).Warn().Err(err).Msg("GitHub login failed")
		response.AuthError(c, "GitHub 登录失败")
		return
	}

	if redirect == "" {
		response.SuccessWithMessage(c, "登录成功", resp)
		return
	}

	target, err := url.Parse(redirect)
	if err != nil {
		response.SuccessWithMessage(c, "登录成功", resp)
		return
	}
	q := target.Query()
	q.Set("token", resp.Token)
	target.RawQuery = q.Encode()
	c.Redirect(http.StatusFound, target.String())
}

// safeRedirect 只允许跳回前端站点，默认 /auth/callback
func (h *AuthHandler) safeRedirect(redirect string) string {
	if h.frontendURL == "" {
		return ""
	}
	if redirect != "" && (redirect == h.frontendURL || strings.HasPrefix(redirect, h.frontendURL+"/")) {
		return redirect
	}
	return h.frontendURL + "/auth/callback"
}
