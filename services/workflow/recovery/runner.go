// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package recovery

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// ErrEmptyCommand is returned when a command has no argv.
var ErrEmptyCommand = errors.New("command must not be empty")

// DefaultMaxOutput is how many trailing bytes of output ExecRunner keeps.
const DefaultMaxOutput = 64 * 1024

// CommandResult is the outcome of one command.
type CommandResult struct {
	Argv     []string
	ExitCode int
	Output   string
	Duration time.Duration
}

// CommandError reports a command that exited non-zero or could not start.
type CommandError struct {
	Argv     []string
	ExitCode int
	Output   string
	Err      error
}

// Error returns the error message.
func (e *CommandError) Error() string {
	return fmt.Sprintf("command %q exited with code %d: %v", strings.Join(e.Argv, " "), e.ExitCode, e.Err)
}

// Unwrap returns the underlying error.
func (e *CommandError) Unwrap() error {
	return e.Err
}

// CommandRunner executes remediation commands.
//
// Thread Safety: Implementations must be safe for concurrent use.
type CommandRunner interface {
	Run(ctx context.Context, argv []string) (CommandResult, error)
}

// ExecRunner runs commands as local processes.
type ExecRunner struct {
	// Dir is the working directory. Empty uses the current directory.
	Dir string

	// Env is appended to the process environment.
	Env []string

	// MaxOutput caps the captured output. Zero uses DefaultMaxOutput.
	MaxOutput int
}

// Run implements CommandRunner.
//
// Outputs:
//
//	CommandResult - Always populated with whatever was captured.
//	error - *CommandError if the command failed to start or exited non-zero.
func (r *ExecRunner) Run(ctx context.Context, argv []string) (CommandResult, error) {
	res := CommandResult{Argv: argv}
	if len(argv) == 0 {
		return res, ErrEmptyCommand
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = r.Dir
	if len(r.Env) > 0 {
		cmd.Env = append(cmd.Environ(), r.Env...)
	}

	start := time.Now()
	out, err := cmd.CombinedOutput()
	res.Duration = time.Since(start)
	res.Output = tail(string(out), r.maxOutput())

	if err != nil {
		res.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
		}
		return res, &CommandError{Argv: argv, ExitCode: res.ExitCode, Output: res.Output, Err: err}
	}
	return res, nil
}

func (r *ExecRunner) maxOutput() int {
	if r.MaxOutput > 0 {
		return r.MaxOutput
	}
	return DefaultMaxOutput
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
