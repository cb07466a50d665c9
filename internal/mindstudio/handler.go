package mindstudio

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"dispute-backend/internal/shared/server/respond"
	"dispute-backend/internal/shared/telemetry"
)

// Handler exposes the worker callback and poll endpoints.
type Handler struct {
	Threads ThreadStore

	limiter *pollLimiter
}

// NewHandler constructs a Handler.
func NewHandler(threads ThreadStore) *Handler {
	return &Handler{
		Threads: threads,
		limiter: newPollLimiter(pollLimitWindow, nil),
	}
}

// RegisterRoutes attaches the callback and poll endpoints. The callback is
// unauthenticated by necessity: the worker cannot present our credentials.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/mindstudio/callback", h.callback)
	rg.GET("/mindstudio/result", h.pollResult)
}

// callback accepts result pushes of arbitrary shape. Unknown thread ids are
// stored anyway so a later poller can find them.
func (h *Handler) callback(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, 10<<20))
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "failed to read callback body", nil)
		return
	}

	threadID := strings.TrimSpace(c.Query("threadId"))
	if threadID == "" {
		threadID = threadIDFromBody(body)
	}
	if threadID == "" {
		telemetry.Error("mindstudio.callback", map[string]any{
			"error": "callback without thread id",
			"bytes": len(body),
		})
		respond.Error(c, http.StatusBadRequest, "validation_error", "threadId is required", nil)
		return
	}

	status, errMessage := statusFromBody(body)
	if status == ThreadError {
		if err := h.Threads.Fail(c.Request.Context(), threadID, errMessage); err != nil {
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to store result", nil)
			return
		}
	} else {
		if err := h.Threads.Complete(c.Request.Context(), threadID, json.RawMessage(body), nil); err != nil {
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to store result", nil)
			return
		}
	}

	telemetry.Info("mindstudio.callback", map[string]any{
		"thread_id": threadID,
		"status":    status,
		"bytes":     len(body),
	})
	respond.JSON(c, http.StatusOK, gin.H{"ok": true})
}

func (h *Handler) pollResult(c *gin.Context) {
	threadID := strings.TrimSpace(c.Query("threadId"))
	if threadID == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "threadId is required", nil)
		return
	}

	clientKey := c.GetString("userId")
	if clientKey == "" {
		clientKey = c.ClientIP()
	}
	if !h.limiter.Allow(clientKey, threadID) {
		c.Header("Retry-After", strconv.Itoa(h.limiter.RetryAfterSeconds()))
		respond.Error(c, http.StatusTooManyRequests, "rate_limited", "polling too fast", nil)
		return
	}

	result, err := h.Threads.Get(c.Request.Context(), threadID)
	if err != nil {
		switch {
		case errors.Is(err, ErrThreadNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "unknown thread", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to fetch result", nil)
		}
		return
	}

	resp := gin.H{
		"threadId": result.ThreadID,
		"status":   result.Status,
	}
	if result.Status == ThreadDone {
		resp["output"] = json.RawMessage(result.Output)
		if len(result.Cost) > 0 {
			resp["cost"] = json.RawMessage(result.Cost)
		}
	}
	if result.Status == ThreadError && result.Error != "" {
		resp["error"] = result.Error
	}
	respond.JSON(c, http.StatusOK, resp)
}

// threadIDFromBody probes the known historical locations of the thread id.
func threadIDFromBody(body []byte) string {
	var top map[string]any
	if err := json.Unmarshal(body, &top); err != nil {
		return ""
	}
	for _, key := range []string{"threadId", "thread_id", "id"} {
		if v, ok := top[key].(string); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	if thread, ok := top["thread"].(map[string]any); ok {
		if v, ok := thread["id"].(string); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func statusFromBody(body []byte) (string, string) {
	var top map[string]any
	if err := json.Unmarshal(body, &top); err != nil {
		return ThreadDone, ""
	}
	status, _ := top["status"].(string)
	if strings.EqualFold(status, "error") || strings.EqualFold(status, "failed") {
		message, _ := top["message"].(string)
		if message == "" {
			if errField, ok := top["error"].(string); ok {
				message = errField
			}
		}
		if message == "" {
			message = "worker reported an error"
		}
		return ThreadError, message
	}
	return ThreadDone, ""
}
