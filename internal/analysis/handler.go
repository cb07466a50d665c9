package analysis

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"dispute-backend/internal/cases"
	"dispute-backend/internal/shared/server/middleware"
	"dispute-backend/internal/shared/server/respond"
)

// Handler wires HTTP handlers to the analysis orchestrator.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches analysis routes to the authenticated router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/cases/:id/analyze", h.runPhase(PhaseKantonCheck))
	rg.POST("/cases/:id/full-analyze", h.runPhase(PhaseFullAnalysis))
	rg.POST("/cases/:id/second-run", h.runPhase(PhaseSecondRun))
	rg.POST("/cases/:id/extract-details", h.extractDetails)
	rg.GET("/cases/:id/analyses", h.listAnalyses)
	rg.GET("/cases/:id/analyses/latest", h.latestAnalysis)
	rg.GET("/analyses/:id", h.getAnalysis)
	rg.GET("/analysis-requests/:id", h.requestStatus)
}

type runRequestBody struct {
	Async              bool              `json:"async"`
	MissingInfoAnswers map[string]string `json:"missingInfoAnswers"`
}

func (h *Handler) runPhase(phase Phase) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.UserIDFromContext(c)
		caseID := c.Param("id")

		var body runRequestBody
		if err := c.ShouldBindJSON(&body); err != nil && !errors.Is(err, io.EOF) {
			respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
			return
		}

		outcome, err := h.Svc.Run(c.Request.Context(), caseID, userID, phase, RunOptions{
			Async:              body.Async,
			MissingInfoAnswers: body.MissingInfoAnswers,
		})
		if err != nil {
			writeAnalysisError(c, err)
			return
		}
		if outcome.Async {
			respond.JSON(c, http.StatusAccepted, gin.H{
				"requestId": outcome.RequestID,
				"threadId":  outcome.ThreadID,
				"status":    RequestPending,
			})
			return
		}
		c.Set("caseId", caseID)
		c.Set("analysisId", outcome.Analysis.ID)
		resp := gin.H{
			"requestId": outcome.RequestID,
			"analysis":  analysisResponse(*outcome.Analysis),
		}
		if outcome.Case != nil {
			resp["caseStatus"] = outcome.Case.Status
			resp["nextActionLabel"] = outcome.Case.NextActionLabel
		}
		respond.JSON(c, http.StatusOK, resp)
	}
}

func (h *Handler) extractDetails(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	caseID := c.Param("id")

	res, applied, err := h.Svc.ExtractDetails(c.Request.Context(), caseID, userID)
	if err != nil {
		writeAnalysisError(c, err)
		return
	}
	respond.JSON(c, http.StatusOK, gin.H{
		"result":  res,
		"applied": applied,
	})
}

func (h *Handler) listAnalyses(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	caseID := c.Param("id")

	list, err := h.Svc.List(c.Request.Context(), caseID, userID)
	if err != nil {
		writeAnalysisError(c, err)
		return
	}
	resp := make([]gin.H, 0, len(list))
	for _, a := range list {
		resp = append(resp, gin.H{
			"analysisId": a.ID,
			"phase":      a.Phase,
			"version":    a.Version,
			"confidence": a.Confidence,
			"createdAt":  a.CreatedAt,
		})
	}
	respond.JSON(c, http.StatusOK, resp)
}

func (h *Handler) latestAnalysis(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	caseID := c.Param("id")

	a, err := h.Svc.Latest(c.Request.Context(), caseID, userID)
	if err != nil {
		writeAnalysisError(c, err)
		return
	}
	respond.JSON(c, http.StatusOK, analysisResponse(a))
}

func (h *Handler) getAnalysis(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	analysisID := c.Param("id")

	a, err := h.Svc.Get(c.Request.Context(), analysisID, userID)
	if err != nil {
		writeAnalysisError(c, err)
		return
	}
	respond.JSON(c, http.StatusOK, analysisResponse(a))
}

// requestStatus reports a dispatch record. A pending record whose thread
// already finished is finalized on the spot, which covers callbacks that
// landed while no poller was waiting.
func (h *Handler) requestStatus(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	requestID := c.Param("id")

	req, err := h.Svc.RequestStatus(c.Request.Context(), requestID, userID)
	if err != nil {
		writeAnalysisError(c, err)
		return
	}
	if req.Status == RequestPending {
		outcome, err := h.Svc.Finalize(c.Request.Context(), requestID)
		switch {
		case err == nil:
			respond.JSON(c, http.StatusOK, gin.H{
				"requestId": requestID,
				"status":    RequestCompleted,
				"analysis":  analysisResponse(*outcome.Analysis),
			})
			return
		case errors.Is(err, ErrStillRunning):
			respond.JSON(c, http.StatusAccepted, gin.H{
				"requestId": requestID,
				"threadId":  req.ThreadID,
				"status":    RequestPending,
			})
			return
		case errors.Is(err, ErrPrecondition):
			// The background waiter resolved the request between our read
			// and the finalize claim; report the resolved record.
			req, err = h.Svc.RequestStatus(c.Request.Context(), requestID, userID)
			if err != nil {
				writeAnalysisError(c, err)
				return
			}
		default:
			writeAnalysisError(c, err)
			return
		}
	}
	resp := gin.H{
		"requestId": req.ID,
		"status":    req.Status,
		"threadId":  req.ThreadID,
		"phase":     req.Phase,
		"updatedAt": req.UpdatedAt,
	}
	if req.Error != "" {
		resp["error"] = req.Error
	}
	respond.JSON(c, http.StatusOK, resp)
}

func analysisResponse(a Analysis) gin.H {
	return gin.H{
		"analysisId": a.ID,
		"caseId":     a.CaseID,
		"phase":      a.Phase,
		"version":    a.Version,
		"result":     a.Result,
		"confidence": a.Confidence,
		"createdAt":  a.CreatedAt,
	}
}

func writeAnalysisError(c *gin.Context, err error) {
	var rateLimited *RateLimitedError
	if errors.As(err, &rateLimited) {
		c.Header("Retry-After", strconv.Itoa(rateLimited.RetryAfterSeconds))
		respond.Error(c, http.StatusTooManyRequests, ErrorCodeRateLimited, err.Error(), gin.H{
			"retryAfterSeconds": rateLimited.RetryAfterSeconds,
		})
		return
	}
	var lowConfidence *LowConfidenceError
	if errors.As(err, &lowConfidence) {
		respond.Error(c, http.StatusUnprocessableEntity, ErrorCodeLowConfidence, err.Error(), gin.H{
			"confidence": lowConfidence.Confidence,
			"threshold":  lowConfidence.Threshold,
		})
		return
	}
	switch {
	case errors.Is(err, ErrRateLimited):
		respond.Error(c, http.StatusTooManyRequests, ErrorCodeRateLimited, err.Error(), nil)
	case errors.Is(err, ErrTimeout):
		respond.Error(c, http.StatusGatewayTimeout, ErrorCodeWorkerTimeout, "analysis worker timed out", nil)
	case errors.Is(err, ErrWorkerUnavailable):
		respond.Error(c, http.StatusBadGateway, ErrorCodeWorkerUnavailable, "analysis worker unavailable", nil)
	case errors.Is(err, ErrInvalidResponseShape):
		respond.Error(c, http.StatusBadGateway, ErrorCodeInvalidResponseShape, "analysis worker returned nothing usable", nil)
	case errors.Is(err, ErrLowConfidence):
		respond.Error(c, http.StatusUnprocessableEntity, ErrorCodeLowConfidence, err.Error(), nil)
	case errors.Is(err, ErrPrecondition):
		respond.Error(c, http.StatusConflict, ErrorCodePrecondition, err.Error(), nil)
	case errors.Is(err, ErrNotFound):
		respond.Error(c, http.StatusNotFound, "not_found", "analysis not found", nil)
	case errors.Is(err, cases.ErrNotFound):
		respond.Error(c, http.StatusNotFound, "not_found", "case not found", nil)
	default:
		respond.Error(c, http.StatusInternalServerError, ErrorCodeInternal, "analysis failed", nil)
	}
}
