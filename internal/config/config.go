// Package config reads command line defaults from LAYERALIGN_* environment
// variables and an optional .env file.
package config

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"layer-align/internal/alignment"
	"layer-align/pkg/colorutil"
)

// Backends accepted by Config.Backend.
const (
	BackendNative = "native"
	BackendOpenCV = "opencv"
)

// Config holds the defaults of the layeralign command. Flags override it.
type Config struct {
	MaxKeypoints      int     `env:"LAYERALIGN_MAX_KEYPOINTS" envDefault:"5000"`
	RetentionFraction float64 `env:"LAYERALIGN_RETENTION" envDefault:"0.15"`
	RansacThreshold   float64 `env:"LAYERALIGN_RANSAC_THRESHOLD" envDefault:"3.0"`
	RansacIterations  int     `env:"LAYERALIGN_RANSAC_ITERATIONS" envDefault:"2000"`
	Confidence        float64 `env:"LAYERALIGN_CONFIDENCE" envDefault:"0.995"`
	MinInlierRatio    float64 `env:"LAYERALIGN_MIN_INLIER_RATIO" envDefault:"0.1"`
	Seed              uint64  `env:"LAYERALIGN_SEED" envDefault:"0"`
	CrossCheck        bool    `env:"LAYERALIGN_CROSS_CHECK" envDefault:"false"`
	RatioTest         float64 `env:"LAYERALIGN_RATIO_TEST" envDefault:"0"`
	Background        string  `env:"LAYERALIGN_BACKGROUND" envDefault:"#000000"`

	Backend   string `env:"LAYERALIGN_BACKEND" envDefault:"native"`
	Jobs      int    `env:"LAYERALIGN_JOBS" envDefault:"0"`
	LogLevel  string `env:"LAYERALIGN_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LAYERALIGN_LOG_FORMAT" envDefault:"text"`
}

// Load reads the given .env files (".env" when none are named) and then
// the environment. Missing .env files are not an error.
func Load(files ...string) (*Config, error) {
	_ = godotenv.Load(files...)

	cfg := &Config{}
	if err := ParseEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ParseEnv fills target from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Validate checks the fields that alignment.Options does not cover.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Backend) {
	case BackendNative, BackendOpenCV:
	default:
		return fmt.Errorf("unknown backend %q (want %s or %s)", c.Backend, BackendNative, BackendOpenCV)
	}
	if c.Jobs < 0 {
		return fmt.Errorf("jobs %d must not be negative", c.Jobs)
	}
	if _, err := colorutil.ParseHex(c.Background); err != nil {
		return fmt.Errorf("background: %w", err)
	}
	return nil
}

// Options converts the configuration into validated alignment options.
func (c *Config) Options() (alignment.Options, error) {
	if err := c.Validate(); err != nil {
		return alignment.Options{}, err
	}
	bg, err := colorutil.ParseHex(c.Background)
	if err != nil {
		return alignment.Options{}, fmt.Errorf("background: %w", err)
	}
	opts := alignment.Options{
		MaxKeypoints:      c.MaxKeypoints,
		RetentionFraction: c.RetentionFraction,
		RansacThreshold:   c.RansacThreshold,
		RansacIterations:  c.RansacIterations,
		Background:        bg,
		Confidence:        c.Confidence,
		Seed:              c.Seed,
		MinInlierRatio:    c.MinInlierRatio,
		CrossCheck:        c.CrossCheck,
		RatioTest:         c.RatioTest,
	}
	if err := opts.Validate(); err != nil {
		return alignment.Options{}, err
	}
	return opts, nil
}
