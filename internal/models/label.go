package models

import (
	"time"

	"github.com/google/uuid"
)

// Label is one label-bank entry: a candidate label with its precomputed
// text embedding.
type Label struct {
	ID        uuid.UUID `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Embedding []float32 `json:"-" db:"embedding"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
