package documents

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"dispute-backend/internal/cases"
	"dispute-backend/internal/shared/server/middleware"
	"dispute-backend/internal/shared/server/respond"
)

const maxUploadSize = 10 << 20 // 10MB

// Handler wires HTTP handlers to the documents service.
type Handler struct {
	Svc      *Service
	CaseRepo cases.Repo
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service, caseRepo cases.Repo) *Handler {
	return &Handler{Svc: svc, CaseRepo: caseRepo}
}

// RegisterRoutes attaches document routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/cases/:id/documents", h.upload)
	rg.GET("/cases/:id/documents", h.list)
	rg.DELETE("/cases/:id/documents/:docId", h.deleteDocument)
}

func (h *Handler) upload(c *gin.Context) {
	caseID, ok := h.ownedCaseID(c)
	if !ok {
		return
	}
	userID := middleware.UserIDFromContext(c)
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadSize)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "file is required", nil)
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "unable to read file", nil)
		return
	}
	defer file.Close()

	doc, err := h.Svc.Upload(c.Request.Context(), caseID, userID, fileHeader.Filename, file)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidInput):
			respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to upload document", nil)
		}
		return
	}
	c.Set("documentId", doc.ID)
	respond.JSON(c, http.StatusCreated, doc)
}

func (h *Handler) list(c *gin.Context) {
	caseID, ok := h.ownedCaseID(c)
	if !ok {
		return
	}
	docs, err := h.Svc.List(c.Request.Context(), caseID)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to list documents", nil)
		return
	}
	respond.JSON(c, http.StatusOK, docs)
}

func (h *Handler) deleteDocument(c *gin.Context) {
	caseID, ok := h.ownedCaseID(c)
	if !ok {
		return
	}
	documentID := c.Param("docId")
	if documentID == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "document id is required", nil)
		return
	}
	if err := h.Svc.Delete(c.Request.Context(), caseID, documentID); err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "document not found", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to delete document", nil)
		}
		return
	}
	respond.JSON(c, http.StatusOK, gin.H{"deleted": true})
}

func (h *Handler) ownedCaseID(c *gin.Context) (string, bool) {
	userID := middleware.UserIDFromContext(c)
	caseID := c.Param("id")
	if caseID == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "case id is required", nil)
		return "", false
	}
	found, err := h.CaseRepo.GetByID(c.Request.Context(), caseID)
	if err != nil {
		switch {
		case errors.Is(err, cases.ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "case not found", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to fetch case", nil)
		}
		return "", false
	}
	if found.UserID != userID {
		respond.Error(c, http.StatusNotFound, "not_found", "case not found", nil)
		return "", false
	}
	return caseID, true
}
