package config

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"
)

type contextKey string

const configKey contextKey = "config"

// Config holds all application configuration
type Config struct {
	// Core settings
	WorkDir     string `yaml:"work_dir"`
	Concurrency int    `yaml:"concurrency"`

	// Composition settings
	Compose ComposeConfig `yaml:"compose"`

	// Output settings
	Output OutputConfig `yaml:"output"`

	// FFmpeg settings
	FFmpeg FFmpegConfig `yaml:"ffmpeg"`
}

// ComposeConfig holds the reconciliation and sync policy knobs
type ComposeConfig struct {
	MinClips           int     `yaml:"min_clips"`
	DegradedFloor      int     `yaml:"degraded_floor"`
	ClipToleranceSec   float64 `yaml:"clip_tolerance_sec"`
	SyncToleranceSec   float64 `yaml:"sync_tolerance_sec"`
	MaxSpeedDeviation  float64 `yaml:"max_speed_deviation"`
	TransitionDuration float64 `yaml:"transition_duration"`
	LoopSimilarity     float64 `yaml:"loop_similarity"`
}

// OutputConfig holds fixed encode settings for the final artifact
type OutputConfig struct {
	FPS       float64 `yaml:"fps"`
	ShortEdge int     `yaml:"short_edge"`
	CRF       int     `yaml:"crf"`
	Preset    string  `yaml:"preset"`
}

// FFmpegConfig holds subprocess execution settings
type FFmpegConfig struct {
	Threads       int           `yaml:"threads"`
	ClipTimeout   time.Duration `yaml:"clip_timeout"`
	EncodeTimeout time.Duration `yaml:"encode_timeout"`
	RetryBackoff  time.Duration `yaml:"retry_backoff"`
}

// Load reads configuration from file or returns defaults
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path == "" {
		path = findConfigFile()
	}

	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes configuration to file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

func defaultConfig() *Config {
	return &Config{
		WorkDir:     filepath.Join(os.TempDir(), "beatlock"),
		Concurrency: runtime.NumCPU(),
		Compose: ComposeConfig{
			MinClips:           3,
			DegradedFloor:      2,
			ClipToleranceSec:   2.0,
			SyncToleranceSec:   0.1,
			MaxSpeedDeviation:  0.05,
			TransitionDuration: 0.5,
			LoopSimilarity:     0.12,
		},
		Output: OutputConfig{
			FPS:       30,
			ShortEdge: 1080,
			CRF:       23,
			Preset:    "medium",
		},
		FFmpeg: FFmpegConfig{
			Threads:       0,
			ClipTimeout:   60 * time.Second,
			EncodeTimeout: 300 * time.Second,
			RetryBackoff:  2 * time.Second,
		},
	}
}

func findConfigFile() string {
	candidates := []string{
		"./beatlock.yaml",
		"./beatlock.yml",
		filepath.Join(os.Getenv("HOME"), ".beatlock", "config.yaml"),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// WithConfig stores config in context
func WithConfig(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configKey, cfg)
}

// FromContext retrieves config from context
func FromContext(ctx context.Context) *Config {
	if cfg, ok := ctx.Value(configKey).(*Config); ok {
		return cfg
	}
	return defaultConfig()
}
