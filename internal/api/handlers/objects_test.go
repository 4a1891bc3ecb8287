package handlers

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/spotter/internal/models"
)

func TestObjectsCacheSetGet(t *testing.T) {
	cache := NewObjectsCache()
	streamID := uuid.New()

	_, ok := cache.Get(streamID)
	assert.False(t, ok)

	snap := models.FrameObjects{
		StreamID:  streamID,
		Timestamp: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		FPS:       5.0,
	}
	cache.Set(snap)

	got, ok := cache.Get(streamID)
	require.True(t, ok)
	assert.Equal(t, snap.Timestamp, got.Timestamp)
}

func TestObjectsCacheIgnoresStaleSnapshots(t *testing.T) {
	cache := NewObjectsCache()
	streamID := uuid.New()
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	cache.Set(models.FrameObjects{StreamID: streamID, Timestamp: t0, FPS: 5.0})
	// A completion from an earlier frame arrives late.
	cache.Set(models.FrameObjects{StreamID: streamID, Timestamp: t0.Add(-time.Second), FPS: 1.0})

	got, ok := cache.Get(streamID)
	require.True(t, ok)
	assert.Equal(t, t0, got.Timestamp)
	assert.Equal(t, 5.0, got.FPS)
}

func TestObjectsCacheDelete(t *testing.T) {
	cache := NewObjectsCache()
	streamID := uuid.New()

	cache.Set(models.FrameObjects{StreamID: streamID, Timestamp: time.Now()})
	cache.Delete(streamID)

	_, ok := cache.Get(streamID)
	assert.False(t, ok)
}
