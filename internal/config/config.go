// Package config loads and validates runtime configuration. Values come from
// an optional YAML file, overridden by environment variables; CLI flags sit
// on top in cmd.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults for the recognized options.
const (
	DefaultTolerance       = 0.45
	DefaultCooldownSeconds = 5
	DefaultFrameScale      = 0.25
	DefaultImagesDir       = "images"
	DefaultCachePath       = "models/encodings.gob"
	DefaultLedgerPath      = "Attendance.csv"
	DefaultEmbedderURL     = "http://localhost:8000"
	DefaultEmbedderDim     = 128
)

// ValidationError reports an invalid configuration value. Fatal at startup.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s %s", e.Field, e.Reason)
}

type Config struct {
	// Tolerance is the maximum match distance; lower is stricter. In [0, 1].
	Tolerance float64
	// CooldownSeconds is the minimum time between two accepted matches for
	// the same identity. Positive.
	CooldownSeconds int
	// FrameScale downscales captured frames before detection. In (0, 1].
	// Affects only the capture path, never the matching math.
	FrameScale float64

	ImagesDir  string
	CachePath  string
	LedgerPath string

	ForceRebuild bool

	Embedder EmbedderConfig
}

type EmbedderConfig struct {
	URL string
	Dim int
}

// fileConfig mirrors Config for the optional YAML file.
type fileConfig struct {
	Tolerance       *float64 `yaml:"tolerance"`
	CooldownSeconds *int     `yaml:"cooldown_seconds"`
	FrameScale      *float64 `yaml:"frame_resize_scale"`
	ImagesDir       string   `yaml:"images_dir"`
	CachePath       string   `yaml:"cache_path"`
	LedgerPath      string   `yaml:"ledger_path"`
	ForceRebuild    *bool    `yaml:"force_rebuild"`
	Embedder        struct {
		URL string `yaml:"url"`
		Dim int    `yaml:"dim"`
	} `yaml:"embedder"`
}

// Cooldown returns the cooldown window as a duration.
func (c *Config) Cooldown() time.Duration {
	return time.Duration(c.CooldownSeconds) * time.Second
}

// Validate checks value ranges. Invalid values are rejected at startup.
func (c *Config) Validate() error {
	if c.Tolerance < 0 || c.Tolerance > 1 {
		return &ValidationError{Field: "tolerance", Reason: fmt.Sprintf("must be in [0, 1], got %g", c.Tolerance)}
	}
	if c.CooldownSeconds <= 0 {
		return &ValidationError{Field: "cooldown_seconds", Reason: fmt.Sprintf("must be positive, got %d", c.CooldownSeconds)}
	}
	if c.FrameScale <= 0 || c.FrameScale > 1 {
		return &ValidationError{Field: "frame_resize_scale", Reason: fmt.Sprintf("must be in (0, 1], got %g", c.FrameScale)}
	}
	if c.Embedder.Dim <= 0 {
		return &ValidationError{Field: "embedder.dim", Reason: fmt.Sprintf("must be positive, got %d", c.Embedder.Dim)}
	}
	return nil
}

// Load builds the configuration from defaults, the optional YAML file
// (ATTENDANCE_CONFIG, falling back to ./attendance.yaml), and environment
// variables, then validates it.
func Load() (*Config, error) {
	cfg := &Config{
		Tolerance:       DefaultTolerance,
		CooldownSeconds: DefaultCooldownSeconds,
		FrameScale:      DefaultFrameScale,
		ImagesDir:       DefaultImagesDir,
		CachePath:       DefaultCachePath,
		LedgerPath:      DefaultLedgerPath,
		Embedder: EmbedderConfig{
			URL: DefaultEmbedderURL,
			Dim: DefaultEmbedderDim,
		},
	}

	if err := applyFile(cfg); err != nil {
		return nil, err
	}
	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyFile(cfg *Config) error {
	path := os.Getenv("ATTENDANCE_CONFIG")
	explicit := path != ""
	if !explicit {
		path = "attendance.yaml"
	}

	data, err := os.ReadFile(path) //nolint:gosec // path is from trusted config
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("reading config file %s: %w", path, err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if fc.Tolerance != nil {
		cfg.Tolerance = *fc.Tolerance
	}
	if fc.CooldownSeconds != nil {
		cfg.CooldownSeconds = *fc.CooldownSeconds
	}
	if fc.FrameScale != nil {
		cfg.FrameScale = *fc.FrameScale
	}
	if fc.ImagesDir != "" {
		cfg.ImagesDir = fc.ImagesDir
	}
	if fc.CachePath != "" {
		cfg.CachePath = fc.CachePath
	}
	if fc.LedgerPath != "" {
		cfg.LedgerPath = fc.LedgerPath
	}
	if fc.ForceRebuild != nil {
		cfg.ForceRebuild = *fc.ForceRebuild
	}
	if fc.Embedder.URL != "" {
		cfg.Embedder.URL = fc.Embedder.URL
	}
	if fc.Embedder.Dim > 0 {
		cfg.Embedder.Dim = fc.Embedder.Dim
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.Tolerance = envFloat("ATTENDANCE_TOLERANCE", cfg.Tolerance)
	cfg.CooldownSeconds = envInt("ATTENDANCE_COOLDOWN_SECONDS", cfg.CooldownSeconds)
	cfg.FrameScale = envFloat("ATTENDANCE_FRAME_SCALE", cfg.FrameScale)
	cfg.ImagesDir = envString("ATTENDANCE_IMAGES_DIR", cfg.ImagesDir)
	cfg.CachePath = envString("ATTENDANCE_CACHE_PATH", cfg.CachePath)
	cfg.LedgerPath = envString("ATTENDANCE_LEDGER_PATH", cfg.LedgerPath)
	cfg.ForceRebuild = envBool("ATTENDANCE_FORCE_REBUILD", cfg.ForceRebuild)
	cfg.Embedder.URL = envString("EMBEDDER_URL", cfg.Embedder.URL)
	cfg.Embedder.Dim = envInt("EMBEDDER_DIM", cfg.Embedder.Dim)
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

// envInt reads an environment variable and parses it as an integer.
// Unset or empty returns the default; a set but unparsable value yields -1
// so that Validate rejects it loudly instead of silently falling back.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return -1
	}
	return n
}

func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return -1
	}
	return f
}

func envBool(key string, defaultVal bool) bool {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return defaultVal
	}
	return b
}
