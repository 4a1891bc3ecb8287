package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/spotter/internal/models"
	"github.com/your-org/spotter/internal/storage"
	"github.com/your-org/spotter/pkg/dto"
)

type EventHandler struct {
	db    *storage.PostgresStore
	minio *storage.MinIOStore
}

func NewEventHandler(db *storage.PostgresStore, minio *storage.MinIOStore) *EventHandler {
	return &EventHandler{db: db, minio: minio}
}

// ListByStream returns stored object events for one stream, filterable by
// label and time range.
func (h *EventHandler) ListByStream(c *gin.Context) {
	streamID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid stream id"})
		return
	}

	label := c.Query("label")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	var from, to *time.Time
	if v := c.Query("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid 'from' timestamp"})
			return
		}
		from = &t
	}
	if v := c.Query("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid 'to' timestamp"})
			return
		}
		to = &t
	}

	events, total, err := h.db.QueryObjectEvents(c.Request.Context(), streamID, label, from, to, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := make([]dto.ObjectEventResponse, 0, len(events))
	for i := range events {
		resp = append(resp, eventToResponse(&events[i]))
	}

	c.JSON(http.StatusOK, dto.ObjectEventListResponse{
		Events: resp,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	})
}

func (h *EventHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid event id"})
		return
	}

	ev, err := h.db.GetObjectEvent(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "event not found"})
		return
	}

	c.JSON(http.StatusOK, eventToResponse(ev))
}

// Snapshot serves the JPEG crop stored when the event was announced.
func (h *EventHandler) Snapshot(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid event id"})
		return
	}

	ev, err := h.db.GetObjectEvent(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "event not found"})
		return
	}
	if ev.SnapshotKey == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "event has no snapshot"})
		return
	}

	data, err := h.minio.GetObject(c.Request.Context(), ev.SnapshotKey)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "snapshot not found in storage"})
		return
	}

	c.Data(http.StatusOK, "image/jpeg", data)
}

// Similar finds past events whose crop embedding is close to this one's.
func (h *EventHandler) Similar(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid event id"})
		return
	}

	threshold := 0.75
	if v := c.Query("threshold"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			threshold = f
		}
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "5"))

	matches, err := h.db.SearchSimilarEvents(c.Request.Context(), id, threshold, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := make([]dto.SimilarEventResponse, 0, len(matches))
	for _, m := range matches {
		resp = append(resp, dto.SimilarEventResponse{
			EventID: m.EventID,
			Label:   m.Label,
			Score:   m.Score,
		})
	}

	c.JSON(http.StatusOK, dto.SimilarEventListResponse{Matches: resp})
}

func eventToResponse(ev *models.ObjectEvent) dto.ObjectEventResponse {
	return dto.ObjectEventResponse{
		ID:          ev.ID,
		StreamID:    ev.StreamID,
		TrackID:     ev.TrackID,
		Timestamp:   ev.Timestamp,
		Label:       ev.Label,
		Confidence:  ev.Confidence,
		Box:         ev.Box,
		SnapshotKey: ev.SnapshotKey,
		CreatedAt:   ev.CreatedAt,
	}
}
