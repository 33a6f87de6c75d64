package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/pixelchat_server/internal/api/middleware"
	"github.com/qs3c/pixelchat_server/internal/pkg/logging"
	"github.com/qs3c/pixelchat_server/internal/pkg/response"
	"github.com/qs3c/pixelchat_server/internal/service"
)

type PlansHandler struct {
	planService *service.PlanService
	userService *service.UserService
}

func NewPlansHandler(planService *service.PlanService, userService *service.UserService) *PlansHandler {
	return &PlansHandler{planService: planService, userService: userService}
}

// List 套餐列表，登录用户附带当前套餐
// GET /api/v1/plans
func (h *PlansHandler) List(c *gin.Context) {
	data := gin.H{
		"plans": h.planService.List(),
	}

	if userID, ok := middleware.GetUserID(c); ok {
		user, err := h.userService.GetUser(c.Request.Context(), userID)
		if err != nil {
			logging.FromContext(c.Request.Context()).Warn().Err(err).Int64("user_id", userID).Msg("Current plan lookup failed")
		} else {
			data["current_plan"] = user.EffectivePlan(time.Now())
		}
	}

	response.Success(c, data)
}
