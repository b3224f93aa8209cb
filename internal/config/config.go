package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	NATS     NATSConfig     `yaml:"nats"`
	MinIO    MinIOConfig    `yaml:"minio"`
	Vision   VisionConfig   `yaml:"vision"`
	Tracking TrackingConfig `yaml:"tracking"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig controls the ops-only metrics/healthz listener. There is no
// business RPC surface here (see DESIGN.md), so no API key or routes.
type ServerConfig struct {
	MetricsPort int `yaml:"metrics_port"`
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

type VisionConfig struct {
	ModelsDir          string  `yaml:"models_dir"`
	KnownSetDir        string  `yaml:"known_set_dir"`
	DetectionThreshold float64 `yaml:"detection_threshold"`
	NMSIoUThreshold    float64 `yaml:"nms_iou_threshold"` // overlap above which a lower-confidence detection box is suppressed
	FrameWidth         int     `yaml:"frame_width"`
	StillsDir          string  `yaml:"stills_dir"`
	UploadWorkers      int     `yaml:"upload_workers"`
	AttributesModel    string  `yaml:"attributes_model"` // optional gender/age model filename under models_dir; empty disables the estimate
}

// TrackingConfig carries the per-frame decision thresholds of the tracker
// state machine, replacing the SORT-style tracker's MaxAge/MinHits knobs.
type TrackingConfig struct {
	RecognitionThreshold float64       `yaml:"recognition_threshold"` // τ_recog
	DuplicateThreshold   float64       `yaml:"duplicate_threshold"`   // τ_dup
	StabilityCount       int           `yaml:"stability_count"`       // N_stability
	QualitySampleCount   int           `yaml:"quality_sample_count"`  // N_quality
	MinSharpness         float64       `yaml:"min_sharpness"`         // Q_min
	CandidateStaleAfter  time.Duration `yaml:"candidate_stale_after"` // T_candidate_stale
	EnableQualityCheck   bool          `yaml:"enable_quality_check"`
	PollInterval         time.Duration `yaml:"poll_interval"`     // T_poll
	PollMaxDuration      time.Duration `yaml:"poll_max_duration"` // T_poll_max
	RegistryPath         string        `yaml:"registry_path"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads config from YAML file and applies environment variable overrides.
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
	if cfg.Server.MetricsPort == 0 {
		cfg.Server.MetricsPort = 9090
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = 10
	}
	if cfg.Vision.FrameWidth == 0 {
		cfg.Vision.FrameWidth = 640
	}
	if cfg.Vision.DetectionThreshold == 0 {
		cfg.Vision.DetectionThreshold = 0.5
	}
	if cfg.Vision.NMSIoUThreshold == 0 {
		cfg.Vision.NMSIoUThreshold = 0.4
	}
	if cfg.Vision.StillsDir == "" {
		cfg.Vision.StillsDir = "./stills"
	}
	if cfg.Vision.UploadWorkers == 0 {
		cfg.Vision.UploadWorkers = 4
	}
	if cfg.Tracking.RecognitionThreshold == 0 {
		cfg.Tracking.RecognitionThreshold = 0.6
	}
	if cfg.Tracking.DuplicateThreshold == 0 {
		cfg.Tracking.DuplicateThreshold = 0.45
	}
	if cfg.Tracking.StabilityCount == 0 {
		cfg.Tracking.StabilityCount = 5
	}
	if cfg.Tracking.QualitySampleCount == 0 {
		cfg.Tracking.QualitySampleCount = 5
	}
	if cfg.Tracking.MinSharpness == 0 {
		cfg.Tracking.MinSharpness = 100.0
	}
	if cfg.Tracking.CandidateStaleAfter == 0 {
		cfg.Tracking.CandidateStaleAfter = 2 * time.Second
	}
	if cfg.Tracking.PollInterval == 0 {
		cfg.Tracking.PollInterval = 1 * time.Second
	}
	if cfg.Tracking.PollMaxDuration == 0 {
		cfg.Tracking.PollMaxDuration = 300 * time.Second
	}
	if cfg.Tracking.RegistryPath == "" {
		cfg.Tracking.RegistryPath = "./registry.json"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FD_METRICS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.MetricsPort = port
		}
	}
	if v := os.Getenv("FD_DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("FD_DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = port
		}
	}
	if v := os.Getenv("FD_DB_NAME"); v != "" {
		cfg.Database.Name = v
	}
	if v := os.Getenv("FD_DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("FD_DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("FD_NATS_URL"); v != "" {
		cfg.NATS.URL = v
	}
	if v := os.Getenv("FD_MINIO_ENDPOINT"); v != "" {
		cfg.MinIO.Endpoint = v
	}
	if v := os.Getenv("FD_MINIO_ACCESS_KEY"); v != "" {
		cfg.MinIO.AccessKey = v
	}
	if v := os.Getenv("FD_MINIO_SECRET_KEY"); v != "" {
		cfg.MinIO.SecretKey = v
	}
	if v := os.Getenv("FD_MINIO_BUCKET"); v != "" {
		cfg.MinIO.Bucket = v
	}
	if v := os.Getenv("FD_MODELS_DIR"); v != "" {
		cfg.Vision.ModelsDir = v
	}
	if v := os.Getenv("FD_KNOWN_SET_DIR"); v != "" {
		cfg.Vision.KnownSetDir = v
	}
	if v := os.Getenv("FD_REGISTRY_PATH"); v != "" {
		cfg.Tracking.RegistryPath = v
	}
}
