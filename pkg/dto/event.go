package dto

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/spotter/internal/geom"
)

// WSEvent is the envelope for WebSocket broadcasts. Type is "objects" for
// per-frame fused snapshots and "object_event" for new-track announcements.
type WSEvent struct {
	Type     string          `json:"type"`
	StreamID uuid.UUID       `json:"stream_id"`
	Data     json.RawMessage `json:"data"`
}

type ObjectEventResponse struct {
	ID          uuid.UUID `json:"id"`
	StreamID    uuid.UUID `json:"stream_id"`
	TrackID     string    `json:"track_id"`
	Timestamp   time.Time `json:"timestamp"`
	Label       string    `json:"label"`
	Confidence  float64   `json:"confidence"`
	Box         geom.Rect `json:"box"`
	SnapshotKey string    `json:"snapshot_key,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

type ObjectEventListResponse struct {
	Events []ObjectEventResponse `json:"events"`
	Total  int                   `json:"total"`
	Limit  int                   `json:"limit"`
	Offset int                   `json:"offset"`
}

type SimilarEventResponse struct {
	EventID uuid.UUID `json:"event_id"`
	Label   string    `json:"label"`
	Score   float32   `json:"score"`
}

type SimilarEventListResponse struct {
	Matches []SimilarEventResponse `json:"matches"`
}

// ObjectsSnapshotResponse is the latest fused object set for a stream.
type ObjectsSnapshotResponse struct {
	StreamID  uuid.UUID      `json:"stream_id"`
	Timestamp time.Time      `json:"timestamp"`
	FPS       float64        `json:"fps"`
	Objects   []FusedObject  `json:"objects"`
}

type FusedObject struct {
	TrackID    string    `json:"track_id"`
	Label      string    `json:"label"`
	Confidence float64   `json:"confidence"`
	Box        geom.Rect `json:"box"`
}
