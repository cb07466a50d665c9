package cases

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"dispute-backend/internal/shared/server/middleware"
	"dispute-backend/internal/shared/server/respond"
)

// Handler wires HTTP handlers to the cases service.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches case routes to the authenticated router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/cases", h.createCase)
	rg.GET("/cases", h.listCases)
	rg.GET("/cases/:id", h.getCase)
	rg.POST("/cases/:id/letter", h.lifecycleEvent(func(s *Service, ctx context.Context, id string) (Case, error) {
		return s.RecordLetterDrafted(ctx, id)
	}))
	rg.POST("/cases/:id/bailiff", h.lifecycleEvent(func(s *Service, ctx context.Context, id string) (Case, error) {
		return s.RecordBailiffOrdered(ctx, id)
	}))
	rg.POST("/cases/:id/summons", h.lifecycleEvent(func(s *Service, ctx context.Context, id string) (Case, error) {
		return s.RecordSummonsDrafted(ctx, id)
	}))
	rg.POST("/cases/:id/filing", h.lifecycleEvent(func(s *Service, ctx context.Context, id string) (Case, error) {
		return s.RecordFiled(ctx, id)
	}))
	rg.POST("/cases/:id/proceedings", h.lifecycleEvent(func(s *Service, ctx context.Context, id string) (Case, error) {
		return s.RecordProceedingsStarted(ctx, id)
	}))
	rg.POST("/cases/:id/judgment", h.lifecycleEvent(func(s *Service, ctx context.Context, id string) (Case, error) {
		return s.RecordJudgment(ctx, id)
	}))
}

// RegisterCallbackRoutes attaches the unauthenticated bailiff confirmation
// endpoint. The bailiff's system cannot present our credentials.
func (h *Handler) RegisterCallbackRoutes(rg *gin.RouterGroup) {
	rg.POST("/bailiff/callback", h.bailiffCallback)
}

type createCaseRequest struct {
	Title       string  `json:"title"`
	Narrative   string  `json:"narrative"`
	ClaimAmount float64 `json:"claimAmount"`
	Currency    string  `json:"currency"`
	Kanton      string  `json:"kanton"`
	Parties     []Party `json:"parties"`
}

func (h *Handler) createCase(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)

	var req createCaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}

	created, err := h.Svc.Create(c.Request.Context(), userID, req.Title, req.Narrative, req.ClaimAmount, req.Currency, req.Kanton, req.Parties)
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
		return
	}
	respond.JSON(c, http.StatusCreated, caseResponse(created))
}

func (h *Handler) getCase(c *gin.Context) {
	found, ok := h.ownedCase(c)
	if !ok {
		return
	}
	respond.JSON(c, http.StatusOK, caseResponse(found))
}

func (h *Handler) listCases(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)

	limit := 20
	offset := 0
	if v := c.Query("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed >= 0 {
			limit = parsed
		}
	}
	if v := c.Query("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	list, err := h.Svc.List(c.Request.Context(), userID, limit, offset)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to list cases", nil)
		return
	}
	resp := make([]gin.H, 0, len(list))
	for _, item := range list {
		resp = append(resp, gin.H{
			"caseId":          item.ID,
			"title":           item.Title,
			"status":          item.Status,
			"progress":        Progress(item.Status),
			"currentStep":     item.CurrentStep,
			"nextActionLabel": item.NextActionLabel,
			"updatedAt":       item.UpdatedAt,
		})
	}
	respond.JSON(c, http.StatusOK, resp)
}

func (h *Handler) lifecycleEvent(event func(*Service, context.Context, string) (Case, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		found, ok := h.ownedCase(c)
		if !ok {
			return
		}
		updated, err := event(h.Svc, c.Request.Context(), found.ID)
		if err != nil {
			switch {
			case errors.Is(err, ErrInvalidTransition):
				respond.Error(c, http.StatusConflict, "invalid_transition", err.Error(), nil)
			case errors.Is(err, ErrNotFound):
				respond.Error(c, http.StatusNotFound, "not_found", "case not found", nil)
			default:
				respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to update case", nil)
			}
			return
		}
		c.Set("caseId", updated.ID)
		c.Set("statusTransition", string(found.Status)+"->"+string(updated.Status))
		respond.JSON(c, http.StatusOK, caseResponse(updated))
	}
}

type bailiffCallbackRequest struct {
	CaseID    string `json:"caseId"`
	ServedAt  string `json:"servedAt"`
	Reference string `json:"reference"`
}

func (h *Handler) bailiffCallback(c *gin.Context) {
	var req bailiffCallbackRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.CaseID == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "caseId is required", nil)
		return
	}
	updated, err := h.Svc.RecordServed(c.Request.Context(), req.CaseID)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "case not found", nil)
		case errors.Is(err, ErrInvalidTransition):
			respond.Error(c, http.StatusConflict, "invalid_transition", err.Error(), nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to record service", nil)
		}
		return
	}
	respond.JSON(c, http.StatusOK, gin.H{"caseId": updated.ID, "status": updated.Status})
}

func (h *Handler) ownedCase(c *gin.Context) (Case, bool) {
	userID := middleware.UserIDFromContext(c)
	caseID := c.Param("id")
	if caseID == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "case id is required", nil)
		return Case{}, false
	}
	found, err := h.Svc.Get(c.Request.Context(), caseID)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "case not found", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to fetch case", nil)
		}
		return Case{}, false
	}
	if found.UserID != userID {
		respond.Error(c, http.StatusNotFound, "not_found", "case not found", nil)
		return Case{}, false
	}
	return found, true
}

func caseResponse(c Case) gin.H {
	return gin.H{
		"caseId":          c.ID,
		"title":           c.Title,
		"narrative":       c.Narrative,
		"claimAmount":     c.ClaimAmount,
		"currency":        c.Currency,
		"kanton":          c.Kanton,
		"parties":         c.Parties,
		"status":          c.Status,
		"progress":        Progress(c.Status),
		"currentStep":     c.CurrentStep,
		"nextActionLabel": c.NextActionLabel,
		"createdAt":       c.CreatedAt,
		"updatedAt":       c.UpdatedAt,
	}
}
