// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pool

import (
	"errors"
	"fmt"
)

// Sentinel errors for the pool package.
var (
	// ErrNilContext is returned when a nil context is passed.
	ErrNilContext = errors.New("context must not be nil")

	// ErrInvalidConcurrency is returned when the concurrency bound is not positive.
	ErrInvalidConcurrency = errors.New("max concurrency must be positive")

	// ErrNilTask is returned when a task list contains a nil task.
	ErrNilTask = errors.New("task must not be nil")
)

// ConfigError reports invalid executor configuration or input.
type ConfigError struct {
	Field string
	Value any
	Err   error
}

// Error returns the error message.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid %s (%v): %v", e.Field, e.Value, e.Err)
}

// Unwrap returns the underlying error.
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// TaskError wraps the error of a failed task with its input position.
type TaskError struct {
	Index int
	Err   error
}

// Error returns the error message.
func (e *TaskError) Error() string {
	return fmt.Sprintf("task %d: %v", e.Index, e.Err)
}

// Unwrap returns the underlying error.
func (e *TaskError) Unwrap() error {
	return e.Err
}
