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
	"errors"
	"fmt"
)

// Reserved step IDs used by every recovery batch.
const (
	StepAnalyze = "analyze"
	StepVerify  = "verify"
)

// ErrInvalidPlaybook is returned when a playbook entry is malformed.
var ErrInvalidPlaybook = errors.New("invalid playbook")

// Action is one remediation command.
type Action struct {
	ID        string   `yaml:"id" json:"id"`
	Title     string   `yaml:"title" json:"title"`
	Command   []string `yaml:"command" json:"command"`
	DependsOn []string `yaml:"depends_on,omitempty" json:"depends_on,omitempty"`
}

// Playbook maps categories to remediation actions.
type Playbook struct {
	Remediations map[Category][]Action

	// Verify is the fallback verification command used when the failure
	// carries no command of its own. Empty means verification is a no-op.
	Verify []string
}

// DefaultPlaybook returns remediation for a Go module.
func DefaultPlaybook() Playbook {
	rebuild := []string{"go", "build", "./..."}
	return Playbook{
		Remediations: map[Category][]Action{
			CategoryDependency: {
				{ID: "reinstall-dependencies", Title: "Reinstall dependencies", Command: []string{"go", "mod", "download"}},
				{ID: "rebuild", Title: "Rebuild", Command: rebuild, DependsOn: []string{"reinstall-dependencies"}},
			},
			CategoryBuild: {
				{ID: "clean-build-cache", Title: "Clean build cache", Command: []string{"go", "clean", "-cache"}},
				{ID: "rebuild", Title: "Rebuild", Command: rebuild, DependsOn: []string{"clean-build-cache"}},
			},
			CategoryLint: {
				{ID: "lint-fix", Title: "Apply formatting fixes", Command: []string{"gofmt", "-w", "."}},
			},
		},
		Verify: []string{"go", "vet", "./..."},
	}
}

// Actions returns the remediation actions for c.
func (p Playbook) Actions(c Category) []Action {
	return p.Remediations[c]
}

// With returns a copy of p with the actions for c replaced.
func (p Playbook) With(c Category, actions []Action) Playbook {
	out := Playbook{
		Remediations: make(map[Category][]Action, len(p.Remediations)+1),
		Verify:       p.Verify,
	}
	for k, v := range p.Remediations {
		out.Remediations[k] = v
	}
	out.Remediations[c] = actions
	return out
}

// Validate checks every category's actions for empty or reserved IDs,
// duplicates, empty commands, and unknown DependsOn references. Cycles are
// left to the engine's batch validation.
func (p Playbook) Validate() error {
	for c, actions := range p.Remediations {
		seen := make(map[string]bool, len(actions))
		for _, a := range actions {
			switch {
			case a.ID == "":
				return fmt.Errorf("%w: %s: action with empty id", ErrInvalidPlaybook, c)
			case a.ID == StepAnalyze || a.ID == StepVerify:
				return fmt.Errorf("%w: %s: action id %q is reserved", ErrInvalidPlaybook, c, a.ID)
			case seen[a.ID]:
				return fmt.Errorf("%w: %s: duplicate action %q", ErrInvalidPlaybook, c, a.ID)
			case len(a.Command) == 0:
				return fmt.Errorf("%w: %s: action %q has no command", ErrInvalidPlaybook, c, a.ID)
			}
			seen[a.ID] = true
		}
		for _, a := range actions {
			for _, dep := range a.DependsOn {
				if !seen[dep] {
					return fmt.Errorf("%w: %s: action %q depends on unknown %q", ErrInvalidPlaybook, c, a.ID, dep)
				}
			}
		}
	}
	return nil
}
