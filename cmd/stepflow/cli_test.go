// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"bytes"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/stepflow/cmd/stepflow/config"
	"github.com/AleutianAI/stepflow/services/workflow/recovery"
)

type cliResult struct {
	stdout string
	stderr string
	err    error
}

func runCLI(t *testing.T, stdin string, args ...string) cliResult {
	t.Helper()
	var out, errOut bytes.Buffer
	err := execute(args, strings.NewReader(stdin), &out, &errOut)
	return cliResult{stdout: out.String(), stderr: errOut.String(), err: err}
}

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

// writeConfig writes a config whose playbook only runs shell builtins.
func writeConfig(t *testing.T, verify string, historyDir string) string {
	t.Helper()
	body := `
engine:
  max_concurrent: 2
recovery:
  verify: [sh, -c, "` + verify + `"]
  playbook:
    dependency:
      - id: fetch
        title: Fetch modules
        command: [sh, -c, "echo fetched"]
      - id: rebuild
        title: Rebuild
        command: [sh, -c, "exit 0"]
        depends_on: [fetch]
logging:
  level: error
`
	if historyDir != "" {
		body += "history:\n  enabled: true\n  path: " + historyDir + "\n"
	}
	path := filepath.Join(t.TempDir(), "stepflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

const goSumFailure = "main.go:5:2: missing go.sum entry for module providing package github.com/x/y"

func TestClassify_JSONFromFlag(t *testing.T) {
	res := runCLI(t, "", "classify", "--json", "-m", goSumFailure)
	require.NoError(t, res.err)

	var c recovery.Classification
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &c))
	assert.Equal(t, recovery.CategoryDependency, c.Category)
	assert.True(t, c.Fixable)
	assert.Len(t, c.Fingerprint, 64)
}

func TestClassify_FromStdin(t *testing.T) {
	res := runCLI(t, "./x.go:3:1: undefined: helper\n", "classify", "-o", "machine")
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "Diagnosis:\tcategory=type-check")
	assert.Contains(t, res.stdout, "Diagnosis:\tfixable=false")
}

func TestClassify_NoInput(t *testing.T) {
	res := runCLI(t, "", "classify")
	assert.ErrorIs(t, res.err, errNoFailure)
}

func TestClassify_StackFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "build.log")
	require.NoError(t, os.WriteFile(path, []byte("file main.go is not formatted\n"), 0o600))

	res := runCLI(t, "", "classify", "--json", "--stack-file", path)
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, `"category": "lint"`)
}

func TestRecover_SucceedsAndRecordsHistory(t *testing.T) {
	requireShell(t)
	historyDir := filepath.Join(t.TempDir(), "history")
	cfg := writeConfig(t, "exit 0", historyDir)

	res := runCLI(t, "", "-c", cfg, "-o", "machine", "recover", "-m", goSumFailure)
	require.NoError(t, res.err, res.stderr)

	out := res.stdout
	assert.Contains(t, out, "START\tanalyze\n")
	assert.Contains(t, out, "SUCCEEDED\tfetch\n")
	assert.Contains(t, out, "SUCCEEDED\tverify\n")
	assert.Contains(t, out, "Diagnosis:\tcategory=dependency")
	assert.Contains(t, out, "SUMMARY\tsucceeded=4 failed=0")
	assert.Contains(t, out, "OK\trecovered (2 remediation steps)")
	assert.Less(t, strings.Index(out, "SUCCEEDED\tfetch"), strings.Index(out, "START\trebuild"))

	list := runCLI(t, "", "-c", cfg, "-o", "machine", "history", "list")
	require.NoError(t, list.err, list.stderr)
	lines := strings.Split(strings.TrimSpace(list.stdout), "\n")
	require.Len(t, lines, 1)
	fields := strings.Split(lines[0], "\t")
	require.Len(t, fields, 5)
	assert.Equal(t, "dependency", fields[2])
	assert.Equal(t, "recovered", fields[3])

	show := runCLI(t, "", "-c", cfg, "history", "show", "--json", fields[0])
	require.NoError(t, show.err, show.stderr)
	assert.Contains(t, show.stdout, `"id": "`+fields[0]+`"`)
	assert.Contains(t, show.stdout, `"status": "succeeded"`)
}

func TestRecover_FailureIsDiagnosed(t *testing.T) {
	requireShell(t)
	cfg := writeConfig(t, "exit 3", "")

	res := runCLI(t, "", "-c", cfg, "-o", "machine", "recover", "-m", goSumFailure)
	require.ErrorIs(t, res.err, errNotRecovered)

	assert.Contains(t, res.stdout, "FAILED\tverify\t")
	assert.Contains(t, res.stdout, recovery.ManualInterventionMessage+":\tfailure="+goSumFailure)
	assert.Contains(t, res.stderr, recovery.ManualInterventionMessage)
}

func TestRecover_RunCleanCommand(t *testing.T) {
	requireShell(t)
	res := runCLI(t, "", "-o", "machine", "recover", "--run", "--command", "sh -c true")
	require.NoError(t, res.err)
	assert.Equal(t, "OK\tsh -c true succeeded, nothing to recover\n", res.stdout)
}

func TestRecover_RunRequiresCommand(t *testing.T) {
	res := runCLI(t, "", "recover", "--run")
	require.Error(t, res.err)
	assert.Contains(t, res.err.Error(), "--run requires --command")
}

func TestHistory_Disabled(t *testing.T) {
	res := runCLI(t, "", "history", "list")
	assert.ErrorIs(t, res.err, errHistoryDisabled)
}

func TestConfig_ShowAndInit(t *testing.T) {
	res := runCLI(t, "", "config", "show")
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "max_concurrent: 4")

	path := filepath.Join(t.TempDir(), "stepflow.yaml")
	res = runCLI(t, "", "-o", "machine", "config", "init", path)
	require.NoError(t, res.err)
	assert.Equal(t, "OK\twrote "+path+"\n", res.stdout)

	loaded, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultConfig(), loaded)

	res = runCLI(t, "", "config", "init", path)
	require.Error(t, res.err)
	assert.Contains(t, res.err.Error(), "already exists")
}

func TestRoot_InvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("engine:\n  max_concurrent: 0\n"), 0o600))

	res := runCLI(t, "", "-c", path, "config", "show")
	assert.ErrorIs(t, res.err, config.ErrInvalidConfig)
}

func TestRoot_InvalidLogLevel(t *testing.T) {
	res := runCLI(t, "", "--log-level", "loud", "config", "show")
	require.Error(t, res.err)
	assert.Contains(t, res.err.Error(), "unknown log level")
}

func TestRoot_TraceExportsSpans(t *testing.T) {
	res := runCLI(t, "", "--trace", "classify", "-m", "build failed")
	require.NoError(t, res.err)
	assert.Contains(t, res.stderr, "recovery.Classify")
}

func TestRoot_PrometheusMetrics(t *testing.T) {
	res := runCLI(t, "", "--metrics", "prometheus", "classify", "-m", "build failed")
	require.NoError(t, res.err)
	assert.Contains(t, res.stderr, "stepflow_recovery_classification_cache_total")
	assert.Contains(t, res.stderr, "workflow_cache")
}

func TestRoot_UnknownMetricsExporter(t *testing.T) {
	res := runCLI(t, "", "--metrics", "statsd", "config", "show")
	assert.ErrorIs(t, res.err, ErrUnknownExporter)
}
