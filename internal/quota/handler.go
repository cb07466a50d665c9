package quota

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"dispute-backend/internal/shared/server/middleware"
	"dispute-backend/internal/shared/server/respond"
)

// Handler exposes the current attempt window.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches quota routes to the authenticated router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/quota/:operation", h.get)
}

// RegisterDevRoutes attaches dev-only quota tooling.
func (h *Handler) RegisterDevRoutes(rg *gin.RouterGroup) {
	rg.POST("/quota/:operation/reset", h.reset)
}

func (h *Handler) get(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	operation := c.Param("operation")

	w, err := h.Svc.Get(c.Request.Context(), userID, operation)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to load quota", nil)
		return
	}
	respond.JSON(c, http.StatusOK, gin.H{
		"operation": w.Operation,
		"limit":     w.Limit,
		"used":      w.Used,
		"remaining": max(0, w.Limit-w.Used),
		"resetsAt":  w.ResetsAt,
	})
}

func (h *Handler) reset(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	operation := c.Param("operation")

	if err := h.Svc.Reset(c.Request.Context(), userID, operation); err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to reset quota", nil)
		return
	}
	respond.JSON(c, http.StatusOK, gin.H{"ok": true})
}
