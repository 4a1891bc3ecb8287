package dto

import "github.com/google/uuid"

// CreateLabelRequest registers a label in the verification bank. The
// embedding is the label's precomputed text-encoder output; the service
// only runs the image side of the encoder pair.
type CreateLabelRequest struct {
	Name      string    `json:"name" binding:"required"`
	Embedding []float32 `json:"embedding" binding:"required"`
}

type LabelResponse struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Dim       int       `json:"dim"`
	CreatedAt string    `json:"created_at"`
}

type LabelListResponse struct {
	Labels []LabelResponse `json:"labels"`
	Total  int             `json:"total"`
}
