package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/spotter/internal/models"
	"github.com/your-org/spotter/internal/storage"
	"github.com/your-org/spotter/pkg/dto"
)

// LabelHandler manages the verification label bank. Workers load the bank
// at startup, so changes here apply to newly started workers.
type LabelHandler struct {
	db           *storage.PostgresStore
	embeddingDim int
}

func NewLabelHandler(db *storage.PostgresStore, embeddingDim int) *LabelHandler {
	return &LabelHandler{db: db, embeddingDim: embeddingDim}
}

func (h *LabelHandler) Create(c *gin.Context) {
	var req dto.CreateLabelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "label name is empty"})
		return
	}
	if len(req.Embedding) != h.embeddingDim {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":    "embedding dimension mismatch",
			"expected": h.embeddingDim,
			"got":      len(req.Embedding),
		})
		return
	}

	label, err := h.db.CreateLabel(c.Request.Context(), name, req.Embedding)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, labelToResponse(label))
}

func (h *LabelHandler) List(c *gin.Context) {
	labels, err := h.db.ListLabels(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := make([]dto.LabelResponse, 0, len(labels))
	for i := range labels {
		resp = append(resp, labelToResponse(&labels[i]))
	}

	c.JSON(http.StatusOK, dto.LabelListResponse{Labels: resp, Total: len(resp)})
}

func (h *LabelHandler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid label id"})
		return
	}

	if err := h.db.DeleteLabel(c.Request.Context(), id); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

func labelToResponse(l *models.Label) dto.LabelResponse {
	return dto.LabelResponse{
		ID:        l.ID,
		Name:      l.Name,
		Dim:       len(l.Embedding),
		CreatedAt: l.CreatedAt.Format("2006-01-02T15:04:05Z"),
	}
}
