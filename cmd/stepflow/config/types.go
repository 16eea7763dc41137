// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"time"

	"github.com/AleutianAI/stepflow/services/workflow/recovery"
)

// Config is the stepflow configuration file.
type Config struct {
	Engine   EngineConfig   `yaml:"engine"`
	Cache    CacheConfig    `yaml:"cache"`
	Recovery RecoveryConfig `yaml:"recovery"`
	History  HistoryConfig  `yaml:"history"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// EngineConfig sets how remediation steps are scheduled.
type EngineConfig struct {
	Concurrent    bool          `yaml:"concurrent"`
	ExitOnError   bool          `yaml:"exit_on_error"`
	MaxConcurrent int           `yaml:"max_concurrent" validate:"min=1,max=256"`
	StepTimeout   time.Duration `yaml:"step_timeout" validate:"gte=0"`
}

// CacheConfig sizes the classification cache.
type CacheConfig struct {
	MaxSize int           `yaml:"max_size" validate:"min=1"`
	TTL     time.Duration `yaml:"ttl" validate:"gte=0"`
}

// RecoveryConfig controls remediation commands and playbook overrides.
type RecoveryConfig struct {
	// Workdir is where remediation commands run. Empty is the current
	// directory.
	Workdir string `yaml:"workdir" validate:"omitempty,dir"`

	// MaxOutput caps captured command output in bytes. Zero uses the
	// runner default.
	MaxOutput int `yaml:"max_output" validate:"gte=0"`

	// Verify replaces the default verification command.
	Verify []string `yaml:"verify,omitempty"`

	// Playbook replaces the actions of the named categories.
	Playbook map[string][]recovery.Action `yaml:"playbook,omitempty" validate:"dive,keys,oneof=build dependency type-check lint unknown,endkeys"`
}

// HistoryConfig enables the on-disk log of recovery runs.
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path" validate:"required_if=Enabled true"`
}

// LoggingConfig sets log level and destinations.
type LoggingConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn warning error"`
	Dir   string `yaml:"dir,omitempty"`
	JSON  bool   `yaml:"json"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() Config {
	return Config{
		Engine: EngineConfig{
			Concurrent:    true,
			ExitOnError:   true,
			MaxConcurrent: 4,
		},
		Cache: CacheConfig{
			MaxSize: 1000,
			TTL:     5 * time.Minute,
		},
		History: HistoryConfig{
			Enabled: false,
			Path:    "~/.stepflow/history",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// BuildPlaybook applies the Recovery overrides to the default playbook.
func (c Config) BuildPlaybook() (recovery.Playbook, error) {
	pb := recovery.DefaultPlaybook()
	for name, actions := range c.Recovery.Playbook {
		cat, err := recovery.ParseCategory(name)
		if err != nil {
			return recovery.Playbook{}, err
		}
		pb = pb.With(cat, actions)
	}
	if len(c.Recovery.Verify) > 0 {
		pb.Verify = append([]string(nil), c.Recovery.Verify...)
	}
	if err := pb.Validate(); err != nil {
		return recovery.Playbook{}, err
	}
	return pb, nil
}
