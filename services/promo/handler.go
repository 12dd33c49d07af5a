package promo

import (
	"net/http"

	"vpnstore/pkg/config"
	"vpnstore/pkg/middleware"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

type HandlerParams struct {
	fx.In
	Engine  *gin.Engine
	Config  *config.Config
	Handler *Handler
}

func RegisterRoutes(p HandlerParams) {
	admin := p.Engine.Group("/admin", middleware.AdminAuth(p.Config.Admin.Token))
	admin.POST("/promos", p.Handler.Create)
}

func (h *Handler) Create(c *gin.Context) {
	var in CreatePromoInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.Error(err)
		return
	}

	promo, err := h.svc.Create(c.Request.Context(), in)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, promo)
}
