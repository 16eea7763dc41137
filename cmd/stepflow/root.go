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
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/stepflow/cmd/stepflow/config"
	"github.com/AleutianAI/stepflow/pkg/logging"
	"github.com/AleutianAI/stepflow/pkg/ux"
)

// errNotRecovered makes the process exit non-zero after the diagnosis has
// already been printed.
var errNotRecovered = errors.New("recovery failed")

type rootFlags struct {
	configPath string
	logLevel   string
	output     string
	trace      bool
	metrics    string
}

// app is the per-invocation state built by the root command.
type app struct {
	cfg     config.Config
	logger  *logging.Logger
	printer *ux.Printer
	stdin   io.Reader
	closers []io.Closer

	telemetry *telemetry
}

// execute runs the CLI with args and releases everything setup acquired,
// including when the command fails.
func execute(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	a := &app{stdin: stdin}
	root := newRootCmd(a, stdout, stderr)
	root.SetArgs(args)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	err := root.ExecuteContext(ctx)
	return errors.Join(err, a.close())
}

func newRootCmd(a *app, stdout, stderr io.Writer) *cobra.Command {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:   "stepflow",
		Short: "Run dependency-aware workflows and recover from build failures",
		Long: `stepflow classifies toolchain failures and runs remediation
workflows (reinstall, rebuild, verify) as dependency-ordered steps.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(flags, stdout, stderr)
		},
	}
	root.SetIn(a.stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	pf := root.PersistentFlags()
	pf.StringVarP(&flags.configPath, "config", "c", "", "path to a stepflow.yaml file")
	pf.StringVar(&flags.logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.StringVarP(&flags.output, "output", "o", "", "output mode: rich, plain, machine (default: detect)")
	pf.BoolVar(&flags.trace, "trace", false, "print OpenTelemetry spans to stderr")
	pf.StringVar(&flags.metrics, "metrics", "", "print metrics to stderr on exit: stdout (OpenTelemetry JSON) or prometheus (text exposition)")

	root.AddCommand(
		newRecoverCmd(a),
		newClassifyCmd(a),
		newHistoryCmd(a),
		newConfigCmd(a),
	)
	return root
}

func (a *app) setup(flags *rootFlags, stdout, stderr io.Writer) error {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return err
	}
	if flags.logLevel != "" {
		cfg.Logging.Level = flags.logLevel
	}
	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return err
	}
	a.cfg = cfg

	a.logger = logging.New(logging.Config{
		Level:  level,
		LogDir: cfg.Logging.Dir,
		JSON:   cfg.Logging.JSON,
		Output: stderr,
	})
	var mode ux.Mode
	if flags.output != "" {
		mode = ux.ParseMode(flags.output)
	}
	a.printer = ux.NewPrinter(stdout, mode)

	tel, err := startTelemetry(flags.trace, flags.metrics, stderr)
	if err != nil {
		return err
	}
	a.telemetry = tel
	return nil
}

func (a *app) close() error {
	var errs []error
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil

	if a.telemetry != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.telemetry.shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
		a.telemetry = nil
	}
	if a.logger != nil {
		if err := a.logger.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
