package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Database     DatabaseConfig     `yaml:"database"`
	NATS         NATSConfig         `yaml:"nats"`
	MinIO        MinIOConfig        `yaml:"minio"`
	Vision       VisionConfig       `yaml:"vision"`
	Fusion       FusionConfig       `yaml:"fusion"`
	Verification VerificationConfig `yaml:"verification"`
	Tracking     TrackingConfig     `yaml:"tracking"`
	Pipeline     PipelineConfig     `yaml:"pipeline"`
	Storage      StorageConfig      `yaml:"storage"`
	Logging      LoggingConfig      `yaml:"logging"`
}

type ServerConfig struct {
	Port   int    `yaml:"port"`
	APIKey string `yaml:"api_key"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	MaxConns int    `yaml:"max_conns"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

type NATSConfig struct {
	URL string `yaml:"url"`
}

type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// VisionConfig covers the model files and frame geometry.
type VisionConfig struct {
	ModelsDir string `yaml:"models_dir"`
	// VocabPath lists the detector's class names, one per line.
	VocabPath string `yaml:"vocab_path"`
	// DetectionThreshold is the detector's emission floor. It sits at the
	// noise floor so the strict-gate verification band stays populated.
	DetectionThreshold float64 `yaml:"detection_threshold"`
	// EmbeddingDim is the verification encoder's output width.
	EmbeddingDim int `yaml:"embedding_dim"`
	DefaultFPS   int `yaml:"default_fps"`
	MaxFPS       int `yaml:"max_fps"`
	WorkerCount  int `yaml:"worker_count"`
	FrameWidth   int `yaml:"frame_width"`
}

// FusionConfig tunes the per-frame fusion pass. Zero values take the
// documented defaults.
type FusionConfig struct {
	MinBoxSize           float64 `yaml:"min_box_size"`
	MaxBoxAreaRatio      float64 `yaml:"max_box_area_ratio"`
	NMSIoUThreshold      float64 `yaml:"nms_iou_threshold"`
	MaxInstancesPerClass int     `yaml:"max_instances_per_class"`
	VerifyBudget         int     `yaml:"verify_budget"`
	MinResults           int     `yaml:"min_results"`
	NoVerifierGate       float64 `yaml:"no_verifier_gate"`
	FinalNMSIoU          float64 `yaml:"final_nms_iou"`
	EmptyStreakLimit     int     `yaml:"empty_streak_limit"`
}

// VerificationConfig holds the tiered oracle gates.
type VerificationConfig struct {
	AcceptGate          float64 `yaml:"accept_gate"`
	RelaxedGate         float64 `yaml:"relaxed_gate"`
	RelaxedAtConfidence float64 `yaml:"relaxed_at_confidence"`
	MinKeepGate         float64 `yaml:"min_keep_gate"`
	MinCropSize         int     `yaml:"min_crop_px"`
}

// TrackingConfig tunes the stabilizer.
type TrackingConfig struct {
	IoUThreshold   float64       `yaml:"iou_threshold"`
	SmoothingAlpha float64       `yaml:"smoothing_alpha"`
	VotingWindow   int           `yaml:"voting_window"`
	VotingDecay    float64       `yaml:"voting_decay"`
	MaxTrackAge    time.Duration `yaml:"max_track_age"`
	MaxTracks      int           `yaml:"max_tracks"`
	GridSize       int           `yaml:"grid_size"`
	// RequiredHits is the emission policy: hits needed before a track is
	// shown. HitsLowConfidence, when set above RequiredHits, demands extra
	// confirmation from tracks below HitsConfidenceFloor.
	RequiredHits        int     `yaml:"required_hits"`
	HitsLowConfidence   int     `yaml:"hits_low_confidence"`
	HitsConfidenceFloor float64 `yaml:"hits_confidence_floor"`
}

// PipelineConfig bounds per-stream pressure.
type PipelineConfig struct {
	MinFrameInterval time.Duration `yaml:"min_frame_interval"`
	MaxInFlight      int           `yaml:"max_in_flight"`
}

type StorageConfig struct {
	// FrameRetention is how many recent raw frames to keep per stream.
	FrameRetention int `yaml:"frame_retention"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads config from a YAML file and applies environment variable
// overrides, then defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(cfg)
	setDefaults(cfg)

	return cfg, nil
}

func setDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = 20
	}
	if cfg.Vision.DetectionThreshold == 0 {
		cfg.Vision.DetectionThreshold = 0.10
	}
	if cfg.Vision.EmbeddingDim == 0 {
		cfg.Vision.EmbeddingDim = 512
	}
	if cfg.Vision.DefaultFPS == 0 {
		cfg.Vision.DefaultFPS = 5
	}
	if cfg.Vision.MaxFPS == 0 {
		cfg.Vision.MaxFPS = 10
	}
	if cfg.Vision.WorkerCount == 0 {
		cfg.Vision.WorkerCount = 6
	}
	if cfg.Vision.FrameWidth == 0 {
		cfg.Vision.FrameWidth = 640
	}

	if cfg.Fusion.MinBoxSize == 0 {
		cfg.Fusion.MinBoxSize = 0.02
	}
	if cfg.Fusion.MaxBoxAreaRatio == 0 {
		cfg.Fusion.MaxBoxAreaRatio = 0.90
	}
	if cfg.Fusion.NMSIoUThreshold == 0 {
		cfg.Fusion.NMSIoUThreshold = 0.45
	}
	if cfg.Fusion.VerifyBudget == 0 {
		cfg.Fusion.VerifyBudget = 16
	}
	if cfg.Fusion.MinResults == 0 {
		cfg.Fusion.MinResults = 3
	}
	if cfg.Fusion.NoVerifierGate == 0 {
		cfg.Fusion.NoVerifierGate = 0.40
	}
	if cfg.Fusion.FinalNMSIoU == 0 {
		cfg.Fusion.FinalNMSIoU = 0.50
	}
	if cfg.Fusion.EmptyStreakLimit == 0 {
		cfg.Fusion.EmptyStreakLimit = 60
	}

	if cfg.Verification.AcceptGate == 0 {
		cfg.Verification.AcceptGate = 0.85
	}
	if cfg.Verification.RelaxedGate == 0 {
		cfg.Verification.RelaxedGate = 0.80
	}
	if cfg.Verification.RelaxedAtConfidence == 0 {
		cfg.Verification.RelaxedAtConfidence = 0.30
	}
	if cfg.Verification.MinKeepGate == 0 {
		cfg.Verification.MinKeepGate = 0.60
	}
	if cfg.Verification.MinCropSize == 0 {
		cfg.Verification.MinCropSize = 10
	}

	if cfg.Tracking.IoUThreshold == 0 {
		cfg.Tracking.IoUThreshold = 0.30
	}
	if cfg.Tracking.SmoothingAlpha == 0 {
		cfg.Tracking.SmoothingAlpha = 0.10
	}
	if cfg.Tracking.VotingWindow == 0 {
		cfg.Tracking.VotingWindow = 5
	}
	if cfg.Tracking.VotingDecay == 0 {
		cfg.Tracking.VotingDecay = 0.80
	}
	if cfg.Tracking.MaxTrackAge == 0 {
		cfg.Tracking.MaxTrackAge = 2 * time.Second
	}
	if cfg.Tracking.MaxTracks == 0 {
		cfg.Tracking.MaxTracks = 64
	}
	if cfg.Tracking.GridSize == 0 {
		cfg.Tracking.GridSize = 10
	}
	if cfg.Tracking.RequiredHits == 0 {
		cfg.Tracking.RequiredHits = 3
	}

	if cfg.Pipeline.MinFrameInterval == 0 {
		cfg.Pipeline.MinFrameInterval = 100 * time.Millisecond
	}
	if cfg.Pipeline.MaxInFlight == 0 {
		cfg.Pipeline.MaxInFlight = 3
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SPOTTER_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("SPOTTER_API_KEY"); v != "" {
		cfg.Server.APIKey = v
	}
	if v := os.Getenv("SPOTTER_DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("SPOTTER_DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = port
		}
	}
	if v := os.Getenv("SPOTTER_DB_NAME"); v != "" {
		cfg.Database.Name = v
	}
	if v := os.Getenv("SPOTTER_DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("SPOTTER_DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("SPOTTER_NATS_URL"); v != "" {
		cfg.NATS.URL = v
	}
	if v := os.Getenv("SPOTTER_MINIO_ENDPOINT"); v != "" {
		cfg.MinIO.Endpoint = v
	}
	if v := os.Getenv("SPOTTER_MINIO_ACCESS_KEY"); v != "" {
		cfg.MinIO.AccessKey = v
	}
	if v := os.Getenv("SPOTTER_MINIO_SECRET_KEY"); v != "" {
		cfg.MinIO.SecretKey = v
	}
	if v := os.Getenv("SPOTTER_MINIO_BUCKET"); v != "" {
		cfg.MinIO.Bucket = v
	}
	if v := os.Getenv("SPOTTER_MODELS_DIR"); v != "" {
		cfg.Vision.ModelsDir = v
	}
	if v := os.Getenv("SPOTTER_VOCAB_PATH"); v != "" {
		cfg.Vision.VocabPath = v
	}
	if v := os.Getenv("SPOTTER_WORKER_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Vision.WorkerCount = n
		}
	}
}
