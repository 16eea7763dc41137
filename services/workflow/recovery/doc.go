// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package recovery turns toolchain failures into remediation workflows.
//
// A Failure is fingerprinted and classified into a Category by the
// Analyzer, which memoizes classifications in a cache.Cache keyed by
// fingerprint. The Builder maps the classification through a Playbook to a
// step batch:
//
//	analyze                          (no dependencies)
//	reinstall-dependencies           (playbook actions, with their own
//	rebuild -> reinstall-dependencies  dependencies)
//	verify -> every remediation step  (not on analyze)
//
// The Recoverer runs that batch on a concurrent engine. It is best-effort:
// Run never returns an error, it logs a manual-intervention diagnostic and
// reports the outcome in a Summary.
package recovery
