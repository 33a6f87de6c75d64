package handler

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/pixelchat_server/config"
	"github.com/qs3c/pixelchat_server/internal/api/middleware"
	"github.com/qs3c/pixelchat_server/internal/model"
	"github.com/qs3c/pixelchat_server/internal/model/dto"
	"github.com/qs3c/pixelchat_server/internal/pkg/logging"
	"github.com/qs3c/pixelchat_server/internal/pkg/response"
	"github.com/qs3c/pixelchat_server/internal/service"
)

type BillingHandler struct {
	checkoutService *service.CheckoutService
	promoService    *service.PromoService
	userService     *service.UserService
}

func NewBillingHandler(checkoutService *service.CheckoutService, promoService *service.PromoService, userService *service.UserService) *BillingHandler {
	return &BillingHandler{
		checkoutService: checkoutService,
		promoService:    promoService,
		userService:     userService,
	}
}

// Checkout 创建订阅结账会话
// POST /api/v1/billing/checkout
func (h *BillingHandler) Checkout(c *gin.Context) {
	var req dto.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	user, ok := h.currentUser(c)
	if !ok {
		return
	}

	resp, err := h.checkoutService.Checkout(c.Request.Context(), user, req.Interval)
	if err != nil {
		h.billingError(c, err)
		return
	}

	response.Success(c, resp)
}

// Portal 账单管理门户
// POST /api/v1/billing/portal
func (h *BillingHandler) Portal(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}

	resp, err := h.checkoutService.Portal(c.Request.Context(), user)
	if err != nil {
		h.billingError(c, err)
		return
	}

	response.Success(c, resp)
}

// RedeemPromo 兑换码兑换 advanced
// POST /api/v1/promo/redeem
func (h *BillingHandler) RedeemPromo(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	var req dto.RedeemPromoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	grantedUntil, err := h.promoService.Redeem(c.Request.Context(), req.Code, userID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidCode):
			response.Error(c, response.CodePromoInvalid, err.Error())
		case errors.Is(err, service.ErrExhaustedCode):
			response.Error(c, response.CodePromoExhausted, err.Error())
		case errors.Is(err, service.ErrPromoBusy):
			response.DuplicateError(c, err.Error())
		case errors.Is(err, service.ErrUserNotFound):
			response.AuthError(c, err.Error())
		default:
			logging.FromContext(c.Request.Context()).Error().Err(err).Int64("user_id", userID).Msg("Promo redemption failed")
			response.ServerError(c, "")
		}
		return
	}

	response.SuccessWithMessage(c, "兑换成功", dto.RedeemPromoResponse{
		Plan:         config.PlanAdvanced,
		GrantedUntil: grantedUntil.UTC().Format(time.RFC3339),
	})
}

func (h *BillingHandler) currentUser(c *gin.Context) (*model.User, bool) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return nil, false
	}
	user, err := h.userService.GetUser(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			response.AuthError(c, err.Error())
		} else {
			response.ServerError(c, "")
		}
		return nil, false
	}
	return user, true
}

func (h *BillingHandler) billingError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidInterval), errors.Is(err, service.ErrEmailRequired):
		response.ParamError(c, err.Error())
	case errors.Is(err, service.ErrNoBillingAccount):
		response.NotFoundError(c, err.Error())
	case errors.Is(err, service.ErrBillingUnavailable):
		logging.FromContext(c.Request.Context()).Warn().Err(err).Msg("Billing provider unavailable")
		response.Error(c, response.CodeBillingUnavailable, "")
	default:
		response.ServerError(c, "")
	}
}
