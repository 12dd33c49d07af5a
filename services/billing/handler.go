package billing

import (
	"net/http"
	"strings"

	"vpnstore/pkg/config"
	"vpnstore/pkg/errutil"
	"vpnstore/pkg/middleware"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
	"go.uber.org/zap"
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
	p.Engine.POST("/webhooks/payment", p.Handler.Postback)

	admin := p.Engine.Group("/admin", middleware.AdminAuth(p.Config.Admin.Token))
	admin.POST("/topups/:id/approve", p.Handler.Approve)
	admin.POST("/topups/:id/reject", p.Handler.Reject)
	admin.DELETE("/topups/:id", p.Handler.Delete)
}

type postbackRequest struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
}

// Postback receives the provider push. Garbled or unknown postbacks are
// logged and dropped with a 200 so the provider stops retrying; they never
// mutate the ledger.
func (h *Handler) Postback(c *gin.Context) {
	var req postbackRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.OrderID == "" {
		zap.L().Warn("dropping malformed payment postback", zap.Error(err))
		c.Status(http.StatusOK)
		return
	}

	outcome, err := h.svc.ResolveFromPostback(c.Request.Context(), req.OrderID, strings.ToUpper(req.Status))
	if err != nil {
		if errutil.HasStatus(err, errutil.StatusNotFound) || errutil.HasStatus(err, errutil.StatusValidationFailed) {
			zap.L().Warn("dropping unresolvable payment postback",
				zap.String("order_id", req.OrderID),
				zap.String("status", req.Status),
				zap.Error(err))
			c.Status(http.StatusOK)
			return
		}
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"outcome": outcome})
}

// Approve is the manual equivalent of a successful postback. It reuses
// ResolveSuccess, so a postback racing an admin click still credits once.
func (h *Handler) Approve(c *gin.Context) {
	outcome, err := h.svc.ResolveSuccess(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"outcome": outcome})
}

func (h *Handler) Reject(c *gin.Context) {
	outcome, err := h.svc.ResolveFailure(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"outcome": outcome})
}

func (h *Handler) Delete(c *gin.Context) {
	if err := h.svc.DeleteTopUp(c.Request.Context(), c.Param("id")); err != nil {
		c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}
