package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/your-org/spotter/internal/api"
	"github.com/your-org/spotter/internal/api/handlers"
	"github.com/your-org/spotter/internal/api/ws"
	"github.com/your-org/spotter/internal/config"
	"github.com/your-org/spotter/internal/models"
	"github.com/your-org/spotter/internal/observability"
	"github.com/your-org/spotter/internal/queue"
	"github.com/your-org/spotter/internal/storage"
	"github.com/your-org/spotter/pkg/dto"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("starting spotter API service", "port", cfg.Server.Port)

	// Connect to Postgres
	db, err := storage.NewPostgresStore(cfg.Database)
	if err != nil {
		slog.Error("connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Connect to MinIO
	minioStore, err := storage.NewMinIOStore(cfg.MinIO)
	if err != nil {
		slog.Error("connect to minio", "error", err)
		os.Exit(1)
	}
	if err := minioStore.EnsureBucket(context.Background()); err != nil {
		slog.Warn("ensure minio bucket", "error", err)
	}

	// Connect to NATS
	producer, err := queue.NewProducer(cfg.NATS.URL)
	if err != nil {
		slog.Error("connect to nats", "error", err)
		os.Exit(1)
	}
	defer producer.Close()

	if err := producer.EnsureStreams(context.Background()); err != nil {
		slog.Warn("ensure nats streams", "error", err)
	}

	// WebSocket hub
	hub := ws.NewHub()
	go hub.Run()

	// Latest fused objects per stream, fed by the event consumer below.
	objectsCache := handlers.NewObjectsCache()

	consumer, err := queue.NewConsumer(cfg.NATS.URL)
	if err != nil {
		slog.Error("create event consumer", "error", err)
		os.Exit(1)
	}
	defer consumer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Workers publish on events.<stream>.frame (per-frame snapshots) and
	// events.<stream>.object (new-track announcements); dispatch by suffix.
	err = consumer.ConsumeEvents(ctx, "api-events", func(ctx context.Context, msg jetstream.Msg) error {
		switch {
		case strings.HasSuffix(msg.Subject(), ".frame"):
			return handleFrameSnapshot(msg.Data(), objectsCache, hub)
		case strings.HasSuffix(msg.Subject(), ".object"):
			return handleObjectEvent(ctx, msg.Data(), db, hub)
		default:
			slog.Warn("unknown event subject", "subject", msg.Subject())
			return nil
		}
	})
	if err != nil {
		slog.Warn("start event consumer", "error", err)
	}

	router := api.NewRouter(api.RouterConfig{
		APIKey:       cfg.Server.APIKey,
		EmbeddingDim: cfg.Vision.EmbeddingDim,
		DB:           db,
		MinIO:        minioStore,
		Producer:     producer,
		Hub:          hub,
		Objects:      objectsCache,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("API server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down API server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("API server stopped")
}

func handleFrameSnapshot(data []byte, cache *handlers.ObjectsCache, hub *ws.Hub) error {
	var snap models.FrameObjects
	if err := json.Unmarshal(data, &snap); err != nil {
		return err
	}

	cache.Set(snap)

	payload, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	hub.BroadcastEvent(&dto.WSEvent{
		Type:     "objects",
		StreamID: snap.StreamID,
		Data:     payload,
	})
	return nil
}

func handleObjectEvent(ctx context.Context, data []byte, db *storage.PostgresStore, hub *ws.Hub) error {
	var ev models.ObjectEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return err
	}

	if err := db.CreateObjectEvent(ctx, &ev); err != nil {
		slog.Error("store object event", "track", ev.TrackID, "error", err)
	}

	payload, err := json.Marshal(dto.ObjectEventResponse{
		ID:          ev.ID,
		StreamID:    ev.StreamID,
		TrackID:     ev.TrackID,
		Timestamp:   ev.Timestamp,
		Label:       ev.Label,
		Confidence:  ev.Confidence,
		Box:         ev.Box,
		SnapshotKey: ev.SnapshotKey,
		CreatedAt:   ev.CreatedAt,
	})
	if err != nil {
		return err
	}
	hub.BroadcastEvent(&dto.WSEvent{
		Type:     "object_event",
		StreamID: ev.StreamID,
		Data:     payload,
	})
	return nil
}
