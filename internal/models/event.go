package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/your-org/spotter/internal/geom"
)

// FrameTask is the message published to NATS for worker processing.
type FrameTask struct {
	StreamID  uuid.UUID `json:"stream_id"`
	FrameID   uuid.UUID `json:"frame_id"`
	Timestamp time.Time `json:"timestamp"`
	FrameRef  string    `json:"frame_ref"` // MinIO object key
	Width     int       `json:"width"`
	Height    int       `json:"height"`
}

// FusedObject is one stabilized object as emitted by the tracker.
type FusedObject struct {
	TrackID    string    `json:"track_id"`
	Label      string    `json:"label"`
	Confidence float64   `json:"confidence"`
	Box        geom.Rect `json:"box"`
}

// FrameObjects is the per-frame stabilized snapshot published by a worker:
// the current emitted object set plus the pipeline's processing rate.
type FrameObjects struct {
	StreamID  uuid.UUID     `json:"stream_id"`
	Timestamp time.Time     `json:"timestamp"`
	FPS       float64       `json:"fps"`
	Objects   []FusedObject `json:"objects"`
}

// ObjectEvent records the first stable appearance of a tracked object.
// Published by workers and persisted by the API service.
type ObjectEvent struct {
	ID          uuid.UUID `json:"id" db:"id"`
	StreamID    uuid.UUID `json:"stream_id" db:"stream_id"`
	TrackID     string    `json:"track_id" db:"track_id"`
	Timestamp   time.Time `json:"timestamp" db:"timestamp"`
	Label       string    `json:"label" db:"label"`
	Confidence  float64   `json:"confidence" db:"confidence"`
	Box         geom.Rect `json:"box" db:"box"`
	Embedding   []float32 `json:"embedding,omitempty" db:"embedding"`
	SnapshotKey string    `json:"snapshot_key" db:"snapshot_key"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}
