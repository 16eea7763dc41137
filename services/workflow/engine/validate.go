// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package engine

// Validate checks a batch and every nested subtask batch.
//
// Description:
//
//	Rejects steps that set both a task and subtasks, steps that declare
//	dependencies without an ID, duplicate IDs, dependencies that do not
//	resolve within the same batch, and dependency cycles (including a step
//	depending on itself). Subtask lists are validated as independent
//	batches. Subtasks always run in declaration order, so a subtask may
//	only depend on siblings declared before it.
//
// Outputs:
//
//	error - *ConfigurationError for the first problem found, or nil.
func Validate(steps []Step) error {
	return validateBatch(steps, nil, false)
}

// ValidateSequential is Validate for a batch run in declaration order. It
// also rejects a dependency on a step declared later in the same batch.
func ValidateSequential(steps []Step) error {
	return validateBatch(steps, nil, true)
}

func validateBatch(steps []Step, parent []int, ordered bool) error {
	ids := make(map[string]int, len(steps))

	for i, s := range steps {
		ref := childRef(parent, i, s)

		if s.Task != nil && len(s.Subtasks) > 0 {
			return &ConfigurationError{Step: ref.Name(), Err: ErrAmbiguousStep}
		}
		if len(s.Dependencies) > 0 && s.ID == "" {
			return &ConfigurationError{Step: ref.Name(), Err: ErrMissingID}
		}
		if s.ID == "" {
			continue
		}
		if _, exists := ids[s.ID]; exists {
			return &ConfigurationError{Step: s.ID, Err: ErrDuplicateID}
		}
		ids[s.ID] = i
	}

	for _, s := range steps {
		for _, dep := range s.Dependencies {
			if dep == s.ID {
				return &ConfigurationError{Step: s.ID, Cycle: []string{s.ID, s.ID}, Err: ErrCycleDetected}
			}
			if _, ok := ids[dep]; !ok {
				return &ConfigurationError{Step: s.ID, Detail: dep, Err: ErrDanglingDependency}
			}
		}
	}

	if err := detectCycles(steps); err != nil {
		return err
	}

	if ordered {
		for i, s := range steps {
			for _, dep := range s.Dependencies {
				if ids[dep] > i {
					return &ConfigurationError{Step: s.ID, Detail: dep, Err: ErrForwardDependency}
				}
			}
		}
	}

	for i, s := range steps {
		if len(s.Subtasks) == 0 {
			continue
		}
		path := append(append([]int(nil), parent...), i)
		if err := validateBatch(s.Subtasks, path, true); err != nil {
			return err
		}
	}

	return nil
}

// detectCycles walks dependency edges depth-first in declaration order.
func detectCycles(steps []Step) error {
	deps := make(map[string][]string, len(steps))
	for _, s := range steps {
		if s.ID != "" {
			deps[s.ID] = s.Dependencies
		}
	}

	visited := make(map[string]bool)
	onStack := make(map[string]bool)
	path := make([]string, 0, len(steps))

	var dfs func(id string) error
	dfs = func(id string) error {
		visited[id] = true
		onStack[id] = true
		path = append(path, id)

		for _, dep := range deps[id] {
			if !visited[dep] {
				if err := dfs(dep); err != nil {
					return err
				}
			} else if onStack[dep] {
				start := 0
				for i, n := range path {
					if n == dep {
						start = i
						break
					}
				}
				cycle := append(append([]string(nil), path[start:]...), dep)
				return &ConfigurationError{Step: id, Cycle: cycle, Err: ErrCycleDetected}
			}
		}

		path = path[:len(path)-1]
		onStack[id] = false
		return nil
	}

	for _, s := range steps {
		if s.ID != "" && !visited[s.ID] {
			if err := dfs(s.ID); err != nil {
				return err
			}
		}
	}
	return nil
}
