package vision

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/spotter/internal/config"
	"github.com/your-org/spotter/internal/models"
	"github.com/your-org/spotter/internal/observability"
	"github.com/your-org/spotter/internal/queue"
	"github.com/your-org/spotter/internal/storage"
)

// Pipeline fuses raw detector output into stabilized tracked objects:
// detect → filter → verify → merge → track → emit. Each stream gets its own
// fuser, tracker, and admission gate; the detector and verification oracle
// sessions are shared.
type Pipeline struct {
	detector *Detector
	oracle   *ClipOracle
	scorer   *Scorer
	minio    *storage.MinIOStore
	producer *queue.Producer

	fuserCfg    FuserConfig
	trackerCfg  TrackerConfig
	pipelineCfg config.PipelineConfig

	prep    prepOnce
	streams *streamStates
}

// NewPipeline wires the fusion pipeline from config. The detector model is
// required; the verification oracle is optional — when its model or label
// bank is missing the pipeline runs in no-verifier mode and logs why.
func NewPipeline(
	cfg *config.Config,
	bank *LabelBank,
	minio *storage.MinIOStore,
	producer *queue.Producer,
) (*Pipeline, error) {

	vocab, err := LoadVocabulary(cfg.Vision.VocabPath)
	if err != nil {
		return nil, fmt.Errorf("load vocabulary: %w", err)
	}

	detPath := filepath.Join(cfg.Vision.ModelsDir, "ovd_yolo.onnx")
	slog.Info("configuring detector", "path", detPath, "classes", len(vocab))
	detector := NewDetector(detPath, vocab, cfg.Vision.DetectionThreshold, nil)

	var oracle *ClipOracle
	var scorer *Scorer
	clipPath := filepath.Join(cfg.Vision.ModelsDir, "clip_image.onnx")
	oracle, err = NewClipOracle(clipPath, cfg.Vision.EmbeddingDim, bank, nil)
	if err != nil {
		slog.Warn("verification oracle unavailable, running without verification", "error", err)
		oracle = nil
	} else {
		slog.Info("verification oracle ready", "path", clipPath, "bank_labels", bank.Len())
		scorer = NewScorer(oracle, verifyConfigFrom(cfg.Verification))
	}

	p := &Pipeline{
		detector:    detector,
		oracle:      oracle,
		scorer:      scorer,
		minio:       minio,
		producer:    producer,
		fuserCfg:    fuserConfigFrom(cfg.Fusion),
		trackerCfg:  trackerConfigFrom(cfg.Tracking),
		pipelineCfg: cfg.Pipeline,
	}
	p.streams = newStreamStates(p)
	return p, nil
}

// ProcessFrame handles one frame task end to end. Detector preparation
// happens exactly once even under concurrent first frames; callers that
// arrive during preparation await the same attempt. A failed preparation is
// fatal for the frame and retried by the next one.
func (p *Pipeline) ProcessFrame(ctx context.Context, task models.FrameTask) error {
	if err := p.prep.do(ctx, p.detector.Prepare); err != nil {
		return fmt.Errorf("prepare detector: %w", err)
	}

	streamID := task.StreamID.String()
	st := p.streams.get(task.StreamID)

	ok, reason := st.gate.admit(task.Timestamp)
	if !ok {
		// Dropping is deliberate backpressure, not an error.
		observability.FramesDropped.WithLabelValues(streamID, reason).Inc()
		slog.Debug("frame dropped", "stream_id", streamID, "reason", reason)
		return nil
	}
	defer st.gate.release()

	frameData, err := p.minio.GetObject(ctx, task.FrameRef)
	if err != nil {
		return fmt.Errorf("load frame: %w", err)
	}
	img, err := jpeg.Decode(bytes.NewReader(frameData))
	if err != nil {
		return fmt.Errorf("%w: decode jpeg: %v", ErrInvalidInput, err)
	}

	start := time.Now()
	st.mu.Lock()
	fused, err := st.fuser.Fuse(ctx, img)
	if err != nil {
		st.mu.Unlock()
		return fmt.Errorf("fuse frame %s: %w", task.FrameID, err)
	}
	st.tracker.Update(fused, task.Timestamp)
	emitted := st.tracker.Emitted()
	fps := st.tracker.FPS()
	trackCount := st.tracker.TrackCount()
	st.mu.Unlock()
	observability.InferenceDuration.WithLabelValues("fuse").Observe(time.Since(start).Seconds())

	observability.FramesProcessed.WithLabelValues(streamID).Inc()
	observability.ObjectsFused.WithLabelValues(streamID).Add(float64(len(fused)))
	observability.ActiveTracks.WithLabelValues(streamID).Set(float64(trackCount))
	observability.PipelineFPS.WithLabelValues(streamID).Set(fps)

	snapshot := models.FrameObjects{
		StreamID:  task.StreamID,
		Timestamp: task.Timestamp,
		FPS:       fps,
		Objects:   toFusedObjects(emitted),
	}
	if err := p.producer.PublishObjects(ctx, streamID, snapshot); err != nil {
		slog.Error("publish objects snapshot", "stream_id", streamID, "error", err)
	}

	p.announceNew(ctx, st, task, img, emitted)
	return nil
}

// announceNew publishes a durable object event the first time a track
// reaches emission, with a crop snapshot and (when the oracle is up) the
// crop's embedding for later similarity search.
func (p *Pipeline) announceNew(ctx context.Context, st *streamState, task models.FrameTask, img image.Image, emitted []Detection) {
	for _, obj := range emitted {
		if !st.markAnnounced(obj.ID) {
			continue
		}

		crop := cropRegion(img, obj.Box)

		var embedding []float32
		if p.oracle.Ready() && crop != nil {
			emb, err := p.oracle.Embed(ctx, crop)
			if err != nil {
				slog.Warn("embed object crop", "track", obj.ID, "error", err)
			} else {
				embedding = emb
			}
		}

		snapshotKey := ""
		if crop != nil {
			snapshotKey = fmt.Sprintf("snapshots/%s/%s_%s.jpg",
				task.StreamID.String(), obj.ID, task.Timestamp.Format("20060102_150405"))
			if err := p.minio.PutObject(ctx, snapshotKey, encodeJPEG(crop, 85), "image/jpeg"); err != nil {
				slog.Warn("save object snapshot", "track", obj.ID, "error", err)
				snapshotKey = ""
			}
		}

		event := models.ObjectEvent{
			StreamID:    task.StreamID,
			TrackID:     obj.ID,
			Timestamp:   task.Timestamp,
			Label:       obj.Label,
			Confidence:  obj.Confidence,
			Box:         obj.Box,
			Embedding:   embedding,
			SnapshotKey: snapshotKey,
		}
		if err := p.producer.PublishObjectEvent(ctx, task.StreamID.String(), event); err != nil {
			slog.Error("publish object event", "track", obj.ID, "error", err)
		}
	}
}

// Close releases all ONNX sessions.
func (p *Pipeline) Close() {
	if p.detector != nil {
		p.detector.Close()
	}
	if p.oracle != nil {
		p.oracle.Close()
	}
}

// streamState is the per-stream slice of pipeline state. The mutex
// serializes fusion and tracking so each stream has a single logical
// writer even when frame completions overlap.
type streamState struct {
	mu      sync.Mutex
	fuser   *Fuser
	tracker *Tracker
	gate    *frameGate

	announceMu sync.Mutex
	announced  map[string]bool
}

// markAnnounced records a track id, returning true on its first appearance.
func (s *streamState) markAnnounced(id string) bool {
	s.announceMu.Lock()
	defer s.announceMu.Unlock()
	if s.announced[id] {
		return false
	}
	// Track ids are monotonic; bound the set so long-running streams don't
	// grow it forever.
	if len(s.announced) > 4096 {
		s.announced = make(map[string]bool)
	}
	s.announced[id] = true
	return true
}

type streamStates struct {
	mu sync.Mutex
	m  map[uuid.UUID]*streamState
	p  *Pipeline
}

func newStreamStates(p *Pipeline) *streamStates {
	return &streamStates{m: make(map[uuid.UUID]*streamState), p: p}
}

func (s *streamStates) get(id uuid.UUID) *streamState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.m[id]; ok {
		return st
	}
	st := &streamState{
		fuser:     NewFuser(s.p.detector, s.p.scorer, s.p.fuserCfg),
		tracker:   NewTracker(id.String(), s.p.trackerCfg),
		gate:      newFrameGate(s.p.pipelineCfg.MinFrameInterval, s.p.pipelineCfg.MaxInFlight),
		announced: make(map[string]bool),
	}
	s.m[id] = st
	return st
}

func toFusedObjects(dets []Detection) []models.FusedObject {
	out := make([]models.FusedObject, 0, len(dets))
	for _, d := range dets {
		out = append(out, models.FusedObject{
			TrackID:    d.ID,
			Label:      d.Label,
			Confidence: d.Confidence,
			Box:        d.Box,
		})
	}
	return out
}

func verifyConfigFrom(c config.VerificationConfig) VerifyConfig {
	return VerifyConfig{
		AcceptGate:          c.AcceptGate,
		RelaxedGate:         c.RelaxedGate,
		RelaxedAtConfidence: c.RelaxedAtConfidence,
		MinKeepGate:         c.MinKeepGate,
		MinCropSize:         c.MinCropSize,
	}
}

func fuserConfigFrom(c config.FusionConfig) FuserConfig {
	return FuserConfig{
		Filter: FilterConfig{
			MinBoxSize:           c.MinBoxSize,
			MaxBoxAreaRatio:      c.MaxBoxAreaRatio,
			NMSIoUThreshold:      c.NMSIoUThreshold,
			MaxInstancesPerClass: c.MaxInstancesPerClass,
		},
		VerifyBudget:     c.VerifyBudget,
		MinResults:       c.MinResults,
		NoVerifierGate:   c.NoVerifierGate,
		FinalNMSIoU:      c.FinalNMSIoU,
		EmptyStreakLimit: c.EmptyStreakLimit,
	}
}

func trackerConfigFrom(c config.TrackingConfig) TrackerConfig {
	policy := ConstantHits(c.RequiredHits)
	if c.HitsLowConfidence > c.RequiredHits {
		policy = TieredHits(c.HitsConfidenceFloor, c.RequiredHits, c.HitsLowConfidence)
	}
	return TrackerConfig{
		IoUThreshold:   c.IoUThreshold,
		SmoothingAlpha: c.SmoothingAlpha,
		VotingWindow:   c.VotingWindow,
		VotingDecay:    c.VotingDecay,
		MaxTrackAge:    c.MaxTrackAge,
		MaxTracks:      c.MaxTracks,
		GridSize:       c.GridSize,
		RequiredHits:   policy,
	}
}
