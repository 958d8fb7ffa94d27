// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the mapping service configuration.
//
// Resolution order: embedded defaults, then an optional YAML file, then
// MSBRIDGE_* environment variables. The result is validated once and
// immutable afterwards; there is no package-level cached instance.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"strconv"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// MaxYAMLFileSize caps a config file at 1MB.
const MaxYAMLFileSize = 1 * 1024 * 1024

// Config is the full mapping service configuration.
//
// Thread Safety: Immutable after Load; safe for concurrent use.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Corpus    CorpusConfig    `yaml:"corpus"`
	Registry  RegistryConfig  `yaml:"registry"`
	Resolver  ResolverConfig  `yaml:"resolver"`
	Scanner   ScannerConfig   `yaml:"scanner"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	// Host is the bind address.
	Host string `yaml:"host" validate:"required"`

	// Port is the listen port.
	Port int `yaml:"port" validate:"min=1,max=65535"`

	// Mode is the gin mode: "debug", "release", or "test".
	Mode string `yaml:"mode" validate:"oneof=debug release test"`

	// ShutdownTimeoutSeconds bounds graceful shutdown.
	ShutdownTimeoutSeconds int `yaml:"shutdown_timeout_seconds" validate:"min=1,max=300"`
}

// CorpusConfig locates the mapping corpus.
type CorpusConfig struct {
	// ConsistentFile is the base consistent mapping file.
	ConsistentFile string `yaml:"consistent_file" validate:"required"`

	// DiffFile is the base diff mapping file.
	DiffFile string `yaml:"diff_file" validate:"required"`

	// SectionConsistentDir holds per-section consistent shards. Optional.
	SectionConsistentDir string `yaml:"section_consistent_dir"`

	// SectionDiffDir holds per-section diff shards. Optional.
	SectionDiffDir string `yaml:"section_diff_dir"`

	// Watch enables the fsnotify corpus watcher.
	Watch bool `yaml:"watch"`

	// WatchDebounceMS collapses bursts of file events into one reload.
	WatchDebounceMS int `yaml:"watch_debounce_ms" validate:"min=0,max=60000"`
}

// RegistryConfig locates the model registry.
type RegistryConfig struct {
	// Enabled turns the model endpoints on.
	Enabled bool `yaml:"enabled"`

	// ModelsFile is the registry JSON path. Required when Enabled.
	ModelsFile string `yaml:"models_file" validate:"required_if=Enabled true"`
}

// ResolverConfig tunes query resolution.
type ResolverConfig struct {
	// CacheSize is the LRU capacity; 0 disables caching.
	CacheSize int `yaml:"cache_size" validate:"min=0,max=1000000"`

	// MaxResults caps one resolution's ranked output.
	MaxResults int `yaml:"max_results" validate:"min=1,max=1000"`
}

// ScannerConfig tunes the call-site scanner.
type ScannerConfig struct {
	// MaxSourceBytes caps one translation input buffer.
	MaxSourceBytes int `yaml:"max_source_bytes" validate:"min=1"`
}

// TelemetryConfig controls tracing output.
type TelemetryConfig struct {
	// StdoutTrace wires the stdout span exporter (debug aid).
	StdoutTrace bool `yaml:"stdout_trace"`
}

var configValidator = validator.New()

// Load builds the configuration from defaults, an optional file, and env.
//
// Inputs:
//
//	path - Optional YAML config file. Empty means defaults + env only.
//
// Outputs:
//
//	*Config - Validated configuration. Nil on error.
//	error - Non-nil if parsing or validation fails.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(defaultsYAML, &cfg); err != nil {
		return nil, fmt.Errorf("config: parsing embedded defaults: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", path, err)
		}
		if len(data) > MaxYAMLFileSize {
			return nil, fmt.Errorf("config: %s exceeds maximum size (%d > %d)", path, len(data), MaxYAMLFileSize)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parsing %s: %w", path, err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := configValidator.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("config: validation: %w", err)
	}
	return &cfg, nil
}

// applyEnvOverrides layers MSBRIDGE_* variables over the parsed config.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MSBRIDGE_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("MSBRIDGE_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("MSBRIDGE_MODE"); v != "" {
		cfg.Server.Mode = v
	}
	if v := os.Getenv("MSBRIDGE_CORPUS_CONSISTENT"); v != "" {
		cfg.Corpus.ConsistentFile = v
	}
	if v := os.Getenv("MSBRIDGE_CORPUS_DIFF"); v != "" {
		cfg.Corpus.DiffFile = v
	}
	if v := os.Getenv("MSBRIDGE_CORPUS_CONSISTENT_DIR"); v != "" {
		cfg.Corpus.SectionConsistentDir = v
	}
	if v := os.Getenv("MSBRIDGE_CORPUS_DIFF_DIR"); v != "" {
		cfg.Corpus.SectionDiffDir = v
	}
	if v := os.Getenv("MSBRIDGE_MODELS_FILE"); v != "" {
		cfg.Registry.ModelsFile = v
	}
	if v := os.Getenv("MSBRIDGE_STDOUT_TRACE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Telemetry.StdoutTrace = b
		}
	}
}
