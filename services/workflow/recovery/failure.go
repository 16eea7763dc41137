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
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

// Failure is a raw failure reported by a build or toolchain command.
type Failure struct {
	// Message is the primary error text.
	Message string `json:"message"`

	// Stack is an optional stack trace or extended log.
	Stack string `json:"stack,omitempty"`

	// Command is the argv that failed. Used as the verification command
	// when present.
	Command []string `json:"command,omitempty"`

	// Output is the captured output of the failed command.
	Output string `json:"output,omitempty"`

	ExitCode int `json:"exit_code,omitempty"`
}

// Text returns the message, stack and output joined for matching.
func (f Failure) Text() string {
	parts := make([]string, 0, 3)
	for _, s := range []string{f.Message, f.Stack, f.Output} {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n")
}

var (
	hexAddrPattern   = regexp.MustCompile(`0x[0-9a-fA-F]+`)
	goroutinePattern = regexp.MustCompile(`goroutine \d+`)
	spacePattern     = regexp.MustCompile(`[ \t]+`)
)

// normalize strips run-specific noise so repeated occurrences of the same
// failure produce the same text.
func normalize(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = hexAddrPattern.ReplaceAllString(s, "0x?")
	s = goroutinePattern.ReplaceAllString(s, "goroutine ?")

	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, line := range lines {
		line = strings.TrimSpace(spacePattern.ReplaceAllString(line, " "))
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

// Fingerprint returns the hex SHA-256 of the normalized message and stack.
//
// Output and exit code are not part of the fingerprint.
func Fingerprint(f Failure) string {
	h := sha256.New()
	h.Write([]byte(normalize(f.Message)))
	h.Write([]byte{0})
	h.Write([]byte(normalize(f.Stack)))
	return hex.EncodeToString(h.Sum(nil))
}
