package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/your-org/spotter/internal/config"
	"github.com/your-org/spotter/internal/geom"
	"github.com/your-org/spotter/internal/models"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(cfg config.DatabaseConfig) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxConns)

	pool, err := pgxpool.NewWithConfig(context.Background(), poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Label bank ---

func (s *PostgresStore) CreateLabel(ctx context.Context, name string, embedding []float32) (*models.Label, error) {
	l := &models.Label{
		ID:        uuid.New(),
		Name:      name,
		Embedding: embedding,
	}
	vec := pgvector.NewVector(embedding)
	err := s.pool.QueryRow(ctx,
		`INSERT INTO labels (id, name, embedding) VALUES ($1, $2, $3)
		 ON CONFLICT (name) DO UPDATE SET embedding = EXCLUDED.embedding
		 RETURNING id, created_at`,
		l.ID, l.Name, vec,
	).Scan(&l.ID, &l.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create label: %w", err)
	}
	return l, nil
}

// ListLabels returns the full label bank in insertion order, embeddings
// included.
func (s *PostgresStore) ListLabels(ctx context.Context) ([]models.Label, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, embedding, created_at FROM labels ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list labels: %w", err)
	}
	defer rows.Close()

	var labels []models.Label
	for rows.Next() {
		var l models.Label
		var vec pgvector.Vector
		if err := rows.Scan(&l.ID, &l.Name, &vec, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan label: %w", err)
		}
		l.Embedding = vec.Slice()
		labels = append(labels, l)
	}
	return labels, nil
}

func (s *PostgresStore) DeleteLabel(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM labels WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete label: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("label not found")
	}
	return nil
}

// --- Streams ---

func (s *PostgresStore) CreateStream(ctx context.Context, st *models.Stream) error {
	st.ID = uuid.New()
	st.Status = models.StreamStatusStopped
	if st.Config == nil {
		st.Config = json.RawMessage("{}")
	}
	return s.pool.QueryRow(ctx,
		`INSERT INTO streams (id, url, stream_type, fps, status, config)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING created_at, updated_at`,
		st.ID, st.URL, st.StreamType, st.FPS, st.Status, st.Config,
	).Scan(&st.CreatedAt, &st.UpdatedAt)
}

func (s *PostgresStore) GetStream(ctx context.Context, id uuid.UUID) (*models.Stream, error) {
	st := &models.Stream{}
	err := s.pool.QueryRow(ctx,
		`SELECT id, url, stream_type, fps, status, config, error_message, created_at, updated_at
		 FROM streams WHERE id = $1`, id,
	).Scan(&st.ID, &st.URL, &st.StreamType, &st.FPS, &st.Status,
		&st.Config, &st.ErrorMessage, &st.CreatedAt, &st.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get stream: %w", err)
	}
	return st, nil
}

func (s *PostgresStore) ListStreams(ctx context.Context) ([]models.Stream, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, url, stream_type, fps, status, config, error_message, created_at, updated_at
		 FROM streams ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list streams: %w", err)
	}
	defer rows.Close()

	var streams []models.Stream
	for rows.Next() {
		var st models.Stream
		if err := rows.Scan(&st.ID, &st.URL, &st.StreamType, &st.FPS, &st.Status,
			&st.Config, &st.ErrorMessage, &st.CreatedAt, &st.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan stream: %w", err)
		}
		streams = append(streams, st)
	}
	return streams, nil
}

func (s *PostgresStore) UpdateStreamStatus(ctx context.Context, id uuid.UUID, status models.StreamStatus, errMsg string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE streams SET status = $1, error_message = $2 WHERE id = $3`,
		status, errMsg, id)
	return err
}

func (s *PostgresStore) DeleteStream(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM streams WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete stream: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("stream not found")
	}
	return nil
}

// --- Object events ---

func (s *PostgresStore) CreateObjectEvent(ctx context.Context, ev *models.ObjectEvent) error {
	ev.ID = uuid.New()
	ev.CreatedAt = time.Now()
	var vec *pgvector.Vector
	if len(ev.Embedding) > 0 {
		v := pgvector.NewVector(ev.Embedding)
		vec = &v
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO object_events (id, stream_id, track_id, timestamp, label, confidence, box_x, box_y, box_w, box_h, embedding, snapshot_key, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		ev.ID, ev.StreamID, ev.TrackID, ev.Timestamp, ev.Label, ev.Confidence,
		ev.Box.X, ev.Box.Y, ev.Box.W, ev.Box.H,
		vec, ev.SnapshotKey, ev.CreatedAt)
	return err
}

func (s *PostgresStore) QueryObjectEvents(ctx context.Context, streamID uuid.UUID, label string, from, to *time.Time, limit, offset int) ([]models.ObjectEvent, int, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}

	baseWhere := "WHERE stream_id = $1"
	args := []interface{}{streamID}
	argIdx := 2

	if label != "" {
		baseWhere += fmt.Sprintf(" AND lower(label) = lower($%d)", argIdx)
		args = append(args, label)
		argIdx++
	}
	if from != nil {
		baseWhere += fmt.Sprintf(" AND timestamp >= $%d", argIdx)
		args = append(args, *from)
		argIdx++
	}
	if to != nil {
		baseWhere += fmt.Sprintf(" AND timestamp <= $%d", argIdx)
		args = append(args, *to)
		argIdx++
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM object_events " + baseWhere
	if err := s.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count object events: %w", err)
	}

	query := fmt.Sprintf(
		`SELECT id, stream_id, track_id, timestamp, label, confidence, box_x, box_y, box_w, box_h, snapshot_key, created_at
		 FROM object_events %s ORDER BY timestamp DESC LIMIT $%d OFFSET $%d`,
		baseWhere, argIdx, argIdx+1)
	args = append(args, limit, offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query object events: %w", err)
	}
	defer rows.Close()

	var events []models.ObjectEvent
	for rows.Next() {
		ev, err := scanObjectEvent(rows)
		if err != nil {
			return nil, 0, err
		}
		events = append(events, ev)
	}
	return events, total, nil
}

// GetObjectEvent returns a single event by ID.
func (s *PostgresStore) GetObjectEvent(ctx context.Context, id uuid.UUID) (*models.ObjectEvent, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, stream_id, track_id, timestamp, label, confidence, box_x, box_y, box_w, box_h, snapshot_key, created_at
		 FROM object_events WHERE id = $1`, id)
	ev, err := scanObjectEvent(row)
	if err != nil {
		return nil, fmt.Errorf("get object event: %w", err)
	}
	return &ev, nil
}

// SimilarMatch is one result of an embedding similarity search.
type SimilarMatch struct {
	EventID uuid.UUID `json:"event_id"`
	Label   string    `json:"label"`
	Score   float32   `json:"score"`
}

// SearchSimilarEvents finds stored object events whose crop embedding is
// closest to the given event's, by cosine similarity.
func (s *PostgresStore) SearchSimilarEvents(ctx context.Context, eventID uuid.UUID, threshold float64, limit int) ([]SimilarMatch, error) {
	if limit <= 0 {
		limit = 5
	}

	rows, err := s.pool.Query(ctx,
		`SELECT e.id, e.label, 1 - (e.embedding <=> q.embedding) AS score
		 FROM object_events e, object_events q
		 WHERE q.id = $1
		   AND e.id != q.id
		   AND e.embedding IS NOT NULL
		   AND q.embedding IS NOT NULL
		   AND 1 - (e.embedding <=> q.embedding) >= $2
		 ORDER BY e.embedding <=> q.embedding
		 LIMIT $3`,
		eventID, threshold, limit)
	if err != nil {
		return nil, fmt.Errorf("search similar events: %w", err)
	}
	defer rows.Close()

	var matches []SimilarMatch
	for rows.Next() {
		var m SimilarMatch
		if err := rows.Scan(&m.EventID, &m.Label, &m.Score); err != nil {
			return nil, fmt.Errorf("scan similar match: %w", err)
		}
		matches = append(matches, m)
	}
	return matches, nil
}

func scanObjectEvent(row pgx.Row) (models.ObjectEvent, error) {
	var ev models.ObjectEvent
	var box geom.Rect
	if err := row.Scan(&ev.ID, &ev.StreamID, &ev.TrackID, &ev.Timestamp,
		&ev.Label, &ev.Confidence, &box.X, &box.Y, &box.W, &box.H,
		&ev.SnapshotKey, &ev.CreatedAt); err != nil {
		return ev, fmt.Errorf("scan object event: %w", err)
	}
	ev.Box = box
	return ev, nil
}
