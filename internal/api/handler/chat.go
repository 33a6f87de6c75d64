package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/pixelchat_server/internal/api/middleware"
	"github.com/qs3c/pixelchat_server/internal/model/dto"
	"github.com/qs3c/pixelchat_server/internal/pkg/logging"
	"github.com/qs3c/pixelchat_server/internal/pkg/response"
	"github.com/qs3c/pixelchat_server/internal/service"
)

type ChatHandler struct {
	chatService  *service.ChatService
	userService  *service.UserService
	quotaService *service.QuotaService
}

func NewChatHandler(chatService *service.ChatService, userService *service.UserService, quotaService *service.QuotaService) *ChatHandler {
	return &ChatHandler{
		chatService:  chatService,
		userService:  userService,
		quotaService: quotaService,
	}
}

// Send 发送消息，登录用户与游客均可
// POST /api/v1/chat/messages
func (h *ChatHandler) Send(c *gin.Context) {
	var req dto.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}
	ctx := c.Request.Context()

	if guestID, ok := middleware.GetGuestID(c); ok {
		resp, err := h.chatService.SendForGuest(ctx, guestID, &req)
		if err != nil {
			if errors.Is(err, service.ErrQuotaExceeded) {
				info, _ := h.quotaService.GetGuestQuotaInfo(ctx, guestID)
				response.QuotaExceeded(c, err.Error(), info)
				return
			}
			h.sendError(c, err)
			return
		}
		response.Success(c, resp)
		return
	}

	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}
	user, err := h.userService.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			response.AuthError(c, err.Error())
			return
		}
		response.ServerError(c, "")
		return
	}

	resp, err := h.chatService.SendForUser(ctx, user, &req)
	if err != nil {
		if errors.Is(err, service.ErrQuotaExceeded) {
			response.QuotaExceeded(c, err.Error(), h.quotaService.GetQuotaInfo(user))
			return
		}
		h.sendError(c, err)
		return
	}

	response.Success(c, resp)
}

// History 历史消息
// GET /api/v1/chat/history
func (h *ChatHandler) History(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	user, err := h.userService.GetUser(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			response.AuthError(c, err.Error())
			return
		}
		response.ServerError(c, "")
		return
	}

	resp, err := h.chatService.History(c.Request.Context(), user)
	if err != nil {
		response.ServerError(c, "")
		return
	}

	response.Success(c, resp)
}

func (h *ChatHandler) sendError(c *gin.Context, err error) {
	if errors.Is(err, service.ErrLLMUnavailable) {
		response.Error(c, response.CodeServerError, service.ErrLLMUnavailable.Error())
		return
	}
	logging.FromContext(c.Request.Context()).Error().Err(err).Msg("Chat send failed")
	response.ServerError(c, "")
}
