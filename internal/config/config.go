// Package config loads the engine configuration from defaults, an optional
// YAML file, and environment variables.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/sirupsen/logrus"
)

// Config holds all externally supplied engine settings. Invalid values are
// replaced by their defaults at validation time rather than failing the run.
type Config struct {
	Addr   string `koanf:"addr"`
	DBPath string `koanf:"db_path"`

	ConfidenceThreshold float64 `koanf:"confidence_threshold"`
	MaxGapFrames        int     `koanf:"max_gap_frames"`
	DTWBand             int     `koanf:"dtw_band"`

	DecayK             float64 `koanf:"decay_k"`
	LowConfidenceBelow float64 `koanf:"low_confidence_below"`
	FeedbackLow        float64 `koanf:"feedback_low"`
	FeedbackHigh       float64 `koanf:"feedback_high"`
	FeedbackMax        int     `koanf:"feedback_max"`

	MaxStoredAlignmentPairs int `koanf:"max_stored_alignment_pairs"`
	ThrottleIntervalMs      int `koanf:"throttle_interval_ms"`
	PersistRetries          int `koanf:"persist_retries"`
	PersistBackoffMs        int `koanf:"persist_backoff_ms"`
}

// New returns the default configuration.
func New() *Config {
	return &Config{
		Addr:                    ":8080",
		DBPath:                  "abhyasa.db",
		ConfidenceThreshold:     0.5,
		MaxGapFrames:            5,
		DTWBand:                 0,
		DecayK:                  3.0,
		LowConfidenceBelow:      0.85,
		FeedbackLow:             60,
		FeedbackHigh:            85,
		FeedbackMax:             5,
		MaxStoredAlignmentPairs: 200,
		ThrottleIntervalMs:      500,
		PersistRetries:          3,
		PersistBackoffMs:        100,
	}
}

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) if ABHYASA_CONFIG is set
//  3. env (prefix ABHYASA_)
func Load() (*Config, error) {
	base := New()

	k := koanf.New(".")

	// Load from file if provided
	if path := os.Getenv("ABHYASA_CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, err
		}
	}

	// Environment variables: ABHYASA_ADDR, ABHYASA_DTW_BAND, ...
	envProvider := env.Provider("ABHYASA_", ".", func(s string) string {
		s = strings.ToLower(s)
		s = strings.TrimPrefix(s, "abhyasa_")
		return s
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, err
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, err
	}

	cfg.validate()
	return &cfg, nil
}

// validate pushes out-of-range values back to their defaults, logging each
// fallback.
func (c *Config) validate() {
	def := New()
	log := logrus.WithField("component", "config")

	if c.Addr == "" {
		c.Addr = def.Addr
	}
	if c.DBPath == "" {
		c.DBPath = def.DBPath
	}
	if c.ConfidenceThreshold <= 0 || c.ConfidenceThreshold >= 1 {
		log.Warnf("invalid confidence_threshold %v, using %v", c.ConfidenceThreshold, def.ConfidenceThreshold)
		c.ConfidenceThreshold = def.ConfidenceThreshold
	}
	if c.MaxGapFrames < 0 {
		log.Warnf("invalid max_gap_frames %d, using %d", c.MaxGapFrames, def.MaxGapFrames)
		c.MaxGapFrames = def.MaxGapFrames
	}
	if c.DTWBand < 0 {
		log.Warnf("invalid dtw_band %d, using %d", c.DTWBand, def.DTWBand)
		c.DTWBand = def.DTWBand
	}
	if c.DecayK <= 0 {
		log.Warnf("invalid decay_k %v, using %v", c.DecayK, def.DecayK)
		c.DecayK = def.DecayK
	}
	if c.LowConfidenceBelow <= 0 || c.LowConfidenceBelow > 1 {
		log.Warnf("invalid low_confidence_below %v, using %v", c.LowConfidenceBelow, def.LowConfidenceBelow)
		c.LowConfidenceBelow = def.LowConfidenceBelow
	}
	if c.FeedbackLow <= 0 || c.FeedbackLow >= 100 {
		log.Warnf("invalid feedback_low %v, using %v", c.FeedbackLow, def.FeedbackLow)
		c.FeedbackLow = def.FeedbackLow
	}
	if c.FeedbackHigh <= c.FeedbackLow || c.FeedbackHigh >= 100 {
		log.Warnf("invalid feedback_high %v, using %v", c.FeedbackHigh, def.FeedbackHigh)
		c.FeedbackHigh = def.FeedbackHigh
	}
	if c.FeedbackMax <= 0 {
		c.FeedbackMax = def.FeedbackMax
	}
	if c.MaxStoredAlignmentPairs <= 0 {
		c.MaxStoredAlignmentPairs = def.MaxStoredAlignmentPairs
	}
	if c.ThrottleIntervalMs <= 0 {
		c.ThrottleIntervalMs = def.ThrottleIntervalMs
	}
	if c.PersistRetries <= 0 {
		c.PersistRetries = def.PersistRetries
	}
	if c.PersistBackoffMs <= 0 {
		c.PersistBackoffMs = def.PersistBackoffMs
	}
}

// ThrottleInterval returns the notification throttle interval as a duration.
func (c *Config) ThrottleInterval() time.Duration {
	return time.Duration(c.ThrottleIntervalMs) * time.Millisecond
}

// PersistBackoff returns the persistence retry backoff as a duration.
func (c *Config) PersistBackoff() time.Duration {
	return time.Duration(c.PersistBackoffMs) * time.Millisecond
}
