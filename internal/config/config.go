// Package config loads service configuration from the environment and the
// optional scene tuning file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/urbanscope/urbanscope/internal/camera"
	"github.com/urbanscope/urbanscope/internal/database"
	"github.com/urbanscope/urbanscope/internal/geometry"
)

// Data source names accepted in DATA_SOURCE.
const (
	SourceBundled  = "bundled"
	SourceAPI      = "api"
	SourcePostgres = "postgres"
)

// ErrInvalid wraps every configuration error.
var ErrInvalid = errors.New("invalid configuration")

// Config is the process configuration.
type Config struct {
	Port        string
	Environment string
	LogLevel    string
	RequireTLS  bool

	TelemetryEnabled bool
	OTLPEndpoint     string

	DataSource      string
	UrbanAPIBaseURL string
	UrbanAPIKey     string
	Database        database.Config

	DatasetCacheTTL        time.Duration
	DatasetStaleTTL        time.Duration
	DatasetRefreshInterval time.Duration

	FrameInterval  time.Duration
	PlayInterval   time.Duration
	SessionIdleTTL time.Duration

	PubSubProjectID    string
	PubSubSubscription string

	SceneConfigPath string
	Scene           Scene
}

// Scene is the tuning file content. Fields left out of the file keep
// their compiled defaults.
type Scene struct {
	Geometry geometry.Config `yaml:"geometry"`
	Camera   *camera.Config  `yaml:"camera,omitempty"`
}

// DefaultScene returns the compiled scene defaults.
func DefaultScene() Scene {
	return Scene{Geometry: geometry.Default()}
}

// Load reads the environment and, when SCENE_CONFIG_PATH is set, the
// scene file.
func Load() (Config, error) {
	var errs []error
	duration := func(key, def string) time.Duration {
		d, err := time.ParseDuration(getEnvOrDefault(key, def))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
		}
		return d
	}

	cfg := Config{
		Port:                   getEnvOrDefault("APP_PORT", "8080"),
		Environment:            getEnvOrDefault("APP_ENV", "development"),
		LogLevel:               getEnvOrDefault("LOG_LEVEL", "info"),
		RequireTLS:             os.Getenv("REQUIRE_TLS") == "true",
		TelemetryEnabled:       os.Getenv("OTEL_ENABLED") == "true",
		OTLPEndpoint:           getEnvOrDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		DataSource:             getEnvOrDefault("DATA_SOURCE", SourceBundled),
		UrbanAPIBaseURL:        os.Getenv("URBAN_API_BASE_URL"),
		UrbanAPIKey:            os.Getenv("URBAN_API_KEY"),
		Database:               database.ConfigFromEnv(),
		DatasetCacheTTL:        duration("DATASET_CACHE_TTL", "1h"),
		DatasetStaleTTL:        duration("DATASET_STALE_TTL", "24h"),
		DatasetRefreshInterval: duration("DATASET_REFRESH_INTERVAL", "15m"),
		FrameInterval:          duration("FRAME_INTERVAL", "50ms"),
		PlayInterval:           duration("PLAY_INTERVAL", "1s"),
		SessionIdleTTL:         duration("SESSION_IDLE_TTL", "15m"),
		PubSubProjectID:        os.Getenv("PUBSUB_PROJECT_ID"),
		PubSubSubscription:     os.Getenv("PUBSUB_SUBSCRIPTION"),
		SceneConfigPath:        os.Getenv("SCENE_CONFIG_PATH"),
		Scene:                  DefaultScene(),
	}
	if err := errors.Join(errs...); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalid, err)
	}

	switch cfg.DataSource {
	case SourceBundled, SourcePostgres:
	case SourceAPI:
		if cfg.UrbanAPIBaseURL == "" {
			return Config{}, fmt.Errorf("%w: DATA_SOURCE=api needs URBAN_API_BASE_URL", ErrInvalid)
		}
	default:
		return Config{}, fmt.Errorf("%w: unknown DATA_SOURCE %q", ErrInvalid, cfg.DataSource)
	}

	if cfg.FrameInterval <= 0 || cfg.PlayInterval <= 0 {
		return Config{}, fmt.Errorf("%w: frame and play intervals must be positive", ErrInvalid)
	}

	if cfg.SceneConfigPath != "" {
		scene, err := LoadScene(cfg.SceneConfigPath)
		if err != nil {
			return Config{}, err
		}
		cfg.Scene = scene
	}
	return cfg, nil
}

// LoadScene reads a YAML scene file over the compiled defaults.
func LoadScene(path string) (Scene, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Scene{}, fmt.Errorf("read scene config: %w", err)
	}
	return ParseScene(data)
}

// ParseScene decodes YAML scene tuning over the compiled defaults and
// validates the result.
func ParseScene(data []byte) (Scene, error) {
	scene := DefaultScene()
	if err := yaml.Unmarshal(data, &scene); err != nil {
		return Scene{}, fmt.Errorf("%w: decode scene config: %w", ErrInvalid, err)
	}
	if err := scene.Geometry.Validate(); err != nil {
		return Scene{}, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if c := scene.Camera; c != nil && (c.MinZoom > c.MaxZoom || c.FocusZoom <= 0) {
		return Scene{}, fmt.Errorf("%w: camera zoom bounds", ErrInvalid)
	}
	return scene, nil
}

// IsProduction reports whether APP_ENV is production.
func (c Config) IsProduction() bool {
	return c.Environment == "production"
}

// Addr is the HTTP listen address.
func (c Config) Addr() string {
	return ":" + c.Port
}

// Int reads an integer environment variable, falling back to def when it
// is unset or malformed.
func Int(key string, def int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return def
	}
	return v
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
