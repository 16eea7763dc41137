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
	"fmt"
	"strings"

	"github.com/AleutianAI/stepflow/services/workflow/engine"
)

// Keys written to the workflow context by recovery steps.
const (
	KeyFailure        = "recovery.failure"
	KeyClassification = "recovery.classification"
	// KeyOutputPrefix + step ID holds each command's CommandResult.
	KeyOutputPrefix = "recovery.output."
)

// Builder turns a classified failure into a recovery step batch.
type Builder struct {
	playbook Playbook
	runner   CommandRunner
}

// NewBuilder creates a builder. A nil runner uses an ExecRunner in the
// current directory.
func NewBuilder(playbook Playbook, runner CommandRunner) *Builder {
	if runner == nil {
		runner = &ExecRunner{}
	}
	return &Builder{playbook: playbook, runner: runner}
}

// BuildRecoverySteps synthesizes the remediation batch.
//
// Description:
//
//	The batch is: an analyze step with no dependencies, the playbook
//	actions for c.Category with their declared dependencies, and a verify
//	step depending on every remediation step but not on analyze. A
//	classification that is not fixable, or has no playbook entry, yields
//	only analyze and verify.
//
//	Verify re-runs f.Command when set, else the playbook's Verify command.
//
// Inputs:
//
//	c - The classification.
//	f - The original failure.
//
// Outputs:
//
//	[]engine.Step - The batch, ready for a concurrent engine.
func (b *Builder) BuildRecoverySteps(c Classification, f Failure) []engine.Step {
	var actions []Action
	if c.Fixable {
		actions = b.playbook.Actions(c.Category)
	}

	steps := make([]engine.Step, 0, len(actions)+2)
	steps = append(steps, engine.Leaf("Analyze failure", b.analyzeTask(c, f), engine.WithID(StepAnalyze)))

	remediation := make([]string, 0, len(actions))
	for _, a := range actions {
		steps = append(steps, engine.Leaf(a.Title, b.commandTask(a.ID, a.Command),
			engine.WithID(a.ID),
			engine.WithDependencies(a.DependsOn...),
		))
		remediation = append(remediation, a.ID)
	}

	verify := f.Command
	if len(verify) == 0 {
		verify = b.playbook.Verify
	}
	steps = append(steps, engine.Leaf("Verify fix", b.verifyTask(verify),
		engine.WithID(StepVerify),
		engine.WithDependencies(remediation...),
	))

	return steps
}

func (b *Builder) analyzeTask(c Classification, f Failure) engine.TaskFunc {
	return func(_ context.Context, wc *engine.Context, h engine.Helpers) (any, error) {
		wc.Set(KeyFailure, f)
		wc.Set(KeyClassification, c)
		h.Status(fmt.Sprintf("%s / %s: %s", c.Category, c.Severity, c.Summary))
		return c, nil
	}
}

func (b *Builder) commandTask(id string, argv []string) engine.TaskFunc {
	return func(ctx context.Context, wc *engine.Context, h engine.Helpers) (any, error) {
		h.Status(strings.Join(argv, " "))
		res, err := b.runner.Run(ctx, argv)
		wc.Set(KeyOutputPrefix+id, res)
		return res, err
	}
}

func (b *Builder) verifyTask(argv []string) engine.TaskFunc {
	if len(argv) == 0 {
		return func(_ context.Context, _ *engine.Context, h engine.Helpers) (any, error) {
			h.Status("no verification command configured")
			return nil, nil
		}
	}
	return b.commandTask(StepVerify, argv)
}
