// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package pool runs independent tasks with a fixed bound on how many are in
// flight at once.
//
// Executor.ExecuteAll is the list form: results come back in input order
// regardless of completion order, and a failure stops further tasks from
// starting without cancelling those already running.
//
// Window is the underlying sliding window. The workflow engine feeds it
// directly so that steps which become ready while others run can be
// started as soon as a slot frees.
//
// # Example
//
//	exec, err := pool.NewExecutor[string](4, pool.WithTimeout(time.Minute))
//	results, err := exec.ExecuteAll(ctx, []pool.Task[string]{fetchA, fetchB, fetchC})
package pool
