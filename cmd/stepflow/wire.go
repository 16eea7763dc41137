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
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/stepflow/cmd/stepflow/config"
	"github.com/AleutianAI/stepflow/pkg/ux"
	"github.com/AleutianAI/stepflow/services/workflow/cache"
	"github.com/AleutianAI/stepflow/services/workflow/engine"
	"github.com/AleutianAI/stepflow/services/workflow/history"
	"github.com/AleutianAI/stepflow/services/workflow/recovery"
)

var (
	errNoFailure       = errors.New("no failure given: use --message, --stack-file, --run or pipe the output on stdin")
	errHistoryDisabled = errors.New("history is disabled; set history.enabled in the config file")
)

func (a *app) runner() *recovery.ExecRunner {
	return &recovery.ExecRunner{
		Dir:       a.cfg.Recovery.Workdir,
		MaxOutput: a.cfg.Recovery.MaxOutput,
	}
}

func (a *app) newAnalyzer() *recovery.Analyzer {
	c := cache.New[string, recovery.Classification](
		cache.WithMaxSize(a.cfg.Cache.MaxSize),
		cache.WithTTL(a.cfg.Cache.TTL),
		cache.WithName("classification"),
	)
	return recovery.NewAnalyzer(nil,
		recovery.WithCache(c),
		recovery.WithAnalyzerLogger(a.logger.Slog()),
	)
}

// openHistory returns nil when history is disabled. The store is closed by
// app.close.
func (a *app) openHistory() (*history.Store, error) {
	if !a.cfg.History.Enabled {
		return nil, nil
	}
	cfg := history.DefaultConfig()
	cfg.Path = config.ExpandPath(a.cfg.History.Path)
	cfg.Logger = a.logger.Slog()
	store, err := history.Open(cfg)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, store)
	return store, nil
}

func (a *app) newRecoverer() (*recovery.Recoverer, error) {
	pb, err := a.cfg.BuildPlaybook()
	if err != nil {
		return nil, err
	}
	ec := a.cfg.Engine
	eng, err := engine.New(
		engine.WithConcurrent(ec.Concurrent),
		engine.WithExitOnError(ec.ExitOnError),
		engine.WithMaxConcurrent(ec.MaxConcurrent),
		engine.WithStepTimeout(ec.StepTimeout),
		engine.WithReporter(ux.NewStepReporter(a.printer)),
		engine.WithLogger(a.logger.Slog()),
	)
	if err != nil {
		return nil, err
	}

	opts := []recovery.RecovererOption{recovery.WithLogger(a.logger.Slog())}
	store, err := a.openHistory()
	if err != nil {
		return nil, err
	}
	if store != nil {
		opts = append(opts, recovery.WithHistory(store))
	}
	return recovery.NewRecoverer(a.newAnalyzer(), recovery.NewBuilder(pb, a.runner()), eng, opts...)
}

// failureFlags describe where a command reads its failure from.
type failureFlags struct {
	message   string
	stackFile string
	command   string
	exitCode  int
	run       bool
}

func (f *failureFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVarP(&f.message, "message", "m", "", "failure message")
	fs.StringVar(&f.stackFile, "stack-file", "", "file holding a stack trace or build log")
	fs.StringVar(&f.command, "command", "", "command that failed, re-run to verify the fix")
	fs.IntVar(&f.exitCode, "exit-code", 0, "exit code of the failed command")
	fs.BoolVar(&f.run, "run", false, "run --command first and use its output as the failure")
}

// readFailure builds the failure from flags, stdin or by running the
// command. clean is true when --run was given and the command succeeded.
func (a *app) readFailure(ctx context.Context, f *failureFlags) (failure recovery.Failure, clean bool, err error) {
	failure.Command = strings.Fields(f.command)
	failure.ExitCode = f.exitCode

	if f.run {
		if len(failure.Command) == 0 {
			return failure, false, errors.New("--run requires --command")
		}
		res, runErr := a.runner().Run(ctx, failure.Command)
		if runErr == nil {
			return failure, true, nil
		}
		var cmdErr *recovery.CommandError
		if !errors.As(runErr, &cmdErr) || cmdErr.ExitCode < 0 {
			return failure, false, runErr
		}
		failure.Message = strings.TrimSpace(res.Output)
		if failure.Message == "" {
			failure.Message = runErr.Error()
		}
		failure.Output = res.Output
		failure.ExitCode = res.ExitCode
		return failure, false, nil
	}

	failure.Message = f.message
	if f.stackFile != "" {
		data, err := os.ReadFile(f.stackFile)
		if err != nil {
			return failure, false, fmt.Errorf("read stack file: %w", err)
		}
		failure.Stack = string(data)
	}
	if failure.Message == "" && failure.Stack == "" && !isTerminal(a.stdin) {
		data, err := io.ReadAll(a.stdin)
		if err != nil {
			return failure, false, fmt.Errorf("read stdin: %w", err)
		}
		failure.Message = strings.TrimSpace(string(data))
	}
	if failure.Message == "" && failure.Stack == "" {
		return failure, false, errNoFailure
	}
	return failure, false, nil
}

func isTerminal(r io.Reader) bool {
	if r == nil {
		return true
	}
	f, ok := r.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
