// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads kernel configuration from a YAML file, then lets
// environment variables override individual fields. It covers exactly the
// option surface the kernel exposes; it is not a general-purpose
// application config system.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	kernelerrors "github.com/conveyorhq/conveyor/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config is the complete kernel configuration.
type Config struct {
	// DatabaseURL selects the storage backend: "memory", a bare file path
	// (sqlite), "sqlite://...", or "postgresql://...". Falls back to the
	// embedded memory backend if a configured server is unreachable.
	DatabaseURL string `yaml:"database_url"`

	// DataDir is the base path for relative file storage (sqlite files,
	// checkpoints).
	DataDir string `yaml:"data_dir"`

	// InitSchema creates/migrates core tables on startup when true.
	InitSchema bool `yaml:"init_schema"`

	// DefaultLane is a lane name carried in the configuration. No component
	// reads it: the dispatcher assigns the fixed lane "default" to runs
	// submitted without an explicit lane.
	DefaultLane string `yaml:"default_lane"`

	// MaxConcurrency sizes the executor's worker pool.
	MaxConcurrency int `yaml:"max_concurrency"`

	// LeaseTTLSeconds is a lease TTL carried in the configuration. No
	// component reads it: every Concurrency Guard Acquire call passes its
	// own TTL.
	LeaseTTLSeconds int `yaml:"lease_ttl_seconds"`

	// SchedulerTickSeconds is the interval between scheduler Tick calls.
	SchedulerTickSeconds int `yaml:"scheduler_tick_seconds"`

	// MisfireGraceSeconds is a misfire grace window carried in the
	// configuration. No component reads it: the scheduler uses each
	// schedule's own MisfireGraceSeconds, which is zero when unset.
	MisfireGraceSeconds int `yaml:"misfire_grace_seconds"`

	// DLQMaxRetries is a retry limit carried in the configuration. No
	// component reads it; the dispatcher does not retry or dead-letter
	// failed runs on its own.
	DLQMaxRetries int `yaml:"dlq_max_retries"`

	Log LogConfig `yaml:"log"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	// Level is the minimum level logged (debug, info, warn, error).
	// Environment: CONVEYOR_LOG_LEVEL
	Level string `yaml:"level"`

	// Format is the output encoding (json, text).
	// Environment: CONVEYOR_LOG_FORMAT
	Format string `yaml:"format"`

	// AddSource adds the calling file and line to each log entry.
	AddSource bool `yaml:"add_source"`
}

// Default returns a Config with the kernel's baked-in defaults.
func Default() *Config {
	return &Config{
		DatabaseURL:          "memory",
		DataDir:              defaultDataDir(),
		InitSchema:           true,
		DefaultLane:          "default",
		MaxConcurrency:       10,
		LeaseTTLSeconds:      300,
		SchedulerTickSeconds: 5,
		MisfireGraceSeconds:  60,
		DLQMaxRetries:        3,
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads configPath (if non-empty) over Default(), then applies
// environment overrides and validates the result.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	if configPath != "" {
		if err := cfg.loadFromFile(configPath); err != nil {
			return nil, &kernelerrors.ConfigError{Key: "config_file", Reason: fmt.Sprintf("failed to load %s", configPath), Cause: err}
		}
	}

	cfg.loadFromEnv()

	if err := cfg.Validate(); err != nil {
		return nil, &kernelerrors.ConfigError{Key: "validation", Reason: "configuration validation failed", Cause: err}
	}
	return cfg, nil
}

func (c *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config yaml: %w", err)
	}
	return nil
}

func (c *Config) loadFromEnv() {
	if v := os.Getenv("CONVEYOR_DATABASE_URL"); v != "" {
		c.DatabaseURL = v
	}
	if v := os.Getenv("CONVEYOR_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("CONVEYOR_INIT_SCHEMA"); v != "" {
		c.InitSchema = asBool(v)
	}
	if v := os.Getenv("CONVEYOR_DEFAULT_LANE"); v != "" {
		c.DefaultLane = v
	}
	if v := os.Getenv("CONVEYOR_MAX_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxConcurrency = n
		}
	}
	if v := os.Getenv("CONVEYOR_LEASE_TTL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.LeaseTTLSeconds = n
		}
	}
	if v := os.Getenv("CONVEYOR_SCHEDULER_TICK_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.SchedulerTickSeconds = n
		}
	}
	if v := os.Getenv("CONVEYOR_MISFIRE_GRACE_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MisfireGraceSeconds = n
		}
	}
	if v := os.Getenv("CONVEYOR_DLQ_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.DLQMaxRetries = n
		}
	}
	if v := os.Getenv("CONVEYOR_LOG_LEVEL"); v != "" {
		c.Log.Level = strings.ToLower(v)
	}
	if v := os.Getenv("CONVEYOR_LOG_FORMAT"); v != "" {
		c.Log.Format = strings.ToLower(v)
	}
	if v := os.Getenv("CONVEYOR_LOG_SOURCE"); v != "" {
		c.Log.AddSource = asBool(v)
	}
}

// Validate checks that Config holds a consistent, usable set of values.
func (c *Config) Validate() error {
	var errs []string

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Log.Level] {
		errs = append(errs, fmt.Sprintf("log.level must be one of [debug, info, warn, error], got %q", c.Log.Level))
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Log.Format] {
		errs = append(errs, fmt.Sprintf("log.format must be one of [json, text], got %q", c.Log.Format))
	}
	if c.MaxConcurrency <= 0 {
		errs = append(errs, fmt.Sprintf("max_concurrency must be positive, got %d", c.MaxConcurrency))
	}
	if c.LeaseTTLSeconds <= 0 {
		errs = append(errs, fmt.Sprintf("lease_ttl_seconds must be positive, got %d", c.LeaseTTLSeconds))
	}
	if c.SchedulerTickSeconds <= 0 {
		errs = append(errs, fmt.Sprintf("scheduler_tick_seconds must be positive, got %d", c.SchedulerTickSeconds))
	}
	if c.MisfireGraceSeconds <= 0 {
		errs = append(errs, fmt.Sprintf("misfire_grace_seconds must be positive, got %d", c.MisfireGraceSeconds))
	}
	if c.DLQMaxRetries < 0 {
		errs = append(errs, fmt.Sprintf("dlq_max_retries must be non-negative, got %d", c.DLQMaxRetries))
	}
	if c.DatabaseURL == "" {
		errs = append(errs, "database_url must not be empty")
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func asBool(v string) bool {
	return v == "1" || strings.EqualFold(v, "true")
}

func defaultDataDir() string {
	if dataHome := os.Getenv("XDG_DATA_HOME"); dataHome != "" {
		return dataHome + "/conveyor"
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "/tmp/conveyor-data"
	}
	return homeDir + "/.conveyor/data"
}
