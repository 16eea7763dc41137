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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/stepflow/services/workflow/recovery"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stepflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_EmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_OverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, `
engine:
  max_concurrent: 8
  step_timeout: 90s
cache:
  ttl: 1m
recovery:
  workdir: `+dir+`
  verify: [go, test, ./...]
  playbook:
    lint:
      - id: golangci
        title: Run linter fixes
        command: [golangci-lint, run, --fix]
history:
  enabled: true
  path: /tmp/stepflow-history
logging:
  level: debug
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.Engine.MaxConcurrent)
	assert.Equal(t, 90*time.Second, cfg.Engine.StepTimeout)
	assert.True(t, cfg.Engine.Concurrent, "unset keys keep their defaults")
	assert.Equal(t, 1000, cfg.Cache.MaxSize)
	assert.Equal(t, time.Minute, cfg.Cache.TTL)
	assert.Equal(t, dir, cfg.Recovery.Workdir)
	assert.True(t, cfg.History.Enabled)
	assert.Equal(t, "debug", cfg.Logging.Level)

	pb, err := cfg.BuildPlaybook()
	require.NoError(t, err)
	assert.Equal(t, []string{"go", "test", "./..."}, pb.Verify)
	lint := pb.Actions(recovery.CategoryLint)
	require.Len(t, lint, 1)
	assert.Equal(t, "golangci", lint[0].ID)
	assert.Len(t, pb.Actions(recovery.CategoryDependency), 2, "other categories keep defaults")
}

func TestLoad_EmptyFile(t *testing.T) {
	cfg, err := Load(writeFile(t, ""))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"zero concurrency", "engine:\n  max_concurrent: 0\n"},
		{"negative timeout", "engine:\n  step_timeout: -1s\n"},
		{"bad log level", "logging:\n  level: loud\n"},
		{"history without path", "history:\n  enabled: true\n  path: \"\"\n"},
		{"unknown category", "recovery:\n  playbook:\n    docs:\n      - id: x\n        command: [x]\n"},
		{"reserved action id", "recovery:\n  playbook:\n    lint:\n      - id: verify\n        command: [x]\n"},
		{"missing workdir", "recovery:\n  workdir: /does/not/exist/stepflow\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, tt.body))
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestLoad_UnknownKey(t *testing.T) {
	_, err := Load(writeFile(t, "engine:\n  workers: 3\n"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidConfig)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestWrite_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "stepflow.yaml")
	cfg := DefaultConfig()
	cfg.Engine.StepTimeout = 2 * time.Minute
	cfg.Logging.JSON = true

	require.NoError(t, Write(path, cfg))
	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, got)
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	assert.Equal(t, filepath.Join(home, ".stepflow"), ExpandPath("~/.stepflow"))
	assert.Equal(t, "/abs", ExpandPath("/abs"))
	assert.Equal(t, "~user/x", ExpandPath("~user/x"))
}
