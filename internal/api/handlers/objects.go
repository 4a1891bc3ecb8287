package handlers

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/spotter/internal/models"
	"github.com/your-org/spotter/pkg/dto"
)

// ObjectsCache holds the most recent fused object snapshot per stream,
// fed by the event consumer. It backs the polling endpoint for clients
// that don't hold a WebSocket open.
type ObjectsCache struct {
	mu        sync.RWMutex
	snapshots map[uuid.UUID]models.FrameObjects
}

func NewObjectsCache() *ObjectsCache {
	return &ObjectsCache{snapshots: make(map[uuid.UUID]models.FrameObjects)}
}

func (c *ObjectsCache) Set(snap models.FrameObjects) {
	c.mu.Lock()
	defer c.mu.Unlock()
	// Stale completions can arrive out of order; never regress.
	if prev, ok := c.snapshots[snap.StreamID]; ok && snap.Timestamp.Before(prev.Timestamp) {
		return
	}
	c.snapshots[snap.StreamID] = snap
}

func (c *ObjectsCache) Get(streamID uuid.UUID) (models.FrameObjects, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	snap, ok := c.snapshots[streamID]
	return snap, ok
}

func (c *ObjectsCache) Delete(streamID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.snapshots, streamID)
}

type ObjectsHandler struct {
	cache *ObjectsCache
}

func NewObjectsHandler(cache *ObjectsCache) *ObjectsHandler {
	return &ObjectsHandler{cache: cache}
}

// Latest returns the current fused object set for a stream.
func (h *ObjectsHandler) Latest(c *gin.Context) {
	streamID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid stream id"})
		return
	}

	snap, ok := h.cache.Get(streamID)
	if !ok {
		c.JSON(http.StatusOK, dto.ObjectsSnapshotResponse{
			StreamID: streamID,
			Objects:  []dto.FusedObject{},
		})
		return
	}

	objects := make([]dto.FusedObject, 0, len(snap.Objects))
	for _, o := range snap.Objects {
		objects = append(objects, dto.FusedObject{
			TrackID:    o.TrackID,
			Label:      o.Label,
			Confidence: o.Confidence,
			Box:        o.Box,
		})
	}

	c.JSON(http.StatusOK, dto.ObjectsSnapshotResponse{
		StreamID:  snap.StreamID,
		Timestamp: snap.Timestamp,
		FPS:       snap.FPS,
		Objects:   objects,
	})
}
