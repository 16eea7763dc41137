// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package history

import (
	"fmt"
	"time"
)

// Record is the audit entry for one recovery run.
type Record struct {
	ID        string        `json:"id"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`

	Fingerprint string `json:"fingerprint"`
	Category    string `json:"category"`
	Severity    string `json:"severity"`
	Fixable     bool   `json:"fixable"`

	// Message is the original failure message.
	Message string `json:"message"`

	Recovered bool   `json:"recovered"`
	Error     string `json:"error,omitempty"`

	Steps []StepRecord `json:"steps"`
}

// StepRecord is the outcome of one step of a recovery run.
type StepRecord struct {
	ID        string        `json:"id"`
	Title     string        `json:"title"`
	Status    string        `json:"status"`
	Error     string        `json:"error,omitempty"`
	BlockedBy []string      `json:"blocked_by,omitempty"`
	Duration  time.Duration `json:"duration"`
}

const (
	runPrefix = "run/"
	idPrefix  = "id/"
)

// runKey orders records by start time. The timestamp is zero-padded so
// lexical order matches numeric order.
func runKey(r *Record) []byte {
	return []byte(fmt.Sprintf("%s%020d/%s", runPrefix, r.StartedAt.UnixNano(), r.ID))
}

func idKey(id string) []byte {
	return []byte(idPrefix + id)
}
