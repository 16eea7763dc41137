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
	"regexp"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("stepflow.recovery")

// Category is the closed set of failure kinds.
type Category string

const (
	CategoryLint       Category = "lint"
	CategoryTypeCheck  Category = "type-check"
	CategoryBuild      Category = "build"
	CategoryDependency Category = "dependency"
	CategoryUnknown    Category = "unknown"
)

// Categories lists every category.
func Categories() []Category {
	return []Category{CategoryLint, CategoryTypeCheck, CategoryBuild, CategoryDependency, CategoryUnknown}
}

// ParseCategory converts a string to a Category.
func ParseCategory(s string) (Category, error) {
	for _, c := range Categories() {
		if string(c) == strings.ToLower(strings.TrimSpace(s)) {
			return c, nil
		}
	}
	return CategoryUnknown, fmt.Errorf("unknown failure category %q", s)
}

// Severity ranks how disruptive a failure is.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Classification is the result of analyzing a Failure.
type Classification struct {
	Fingerprint string   `json:"fingerprint"`
	Category    Category `json:"category"`
	Severity    Severity `json:"severity"`

	// Fixable means automated remediation is worth attempting.
	Fixable bool `json:"fixable"`

	Summary string `json:"summary"`

	// Matched is the text that triggered the rule, empty for unknown.
	Matched string `json:"matched,omitempty"`
}

// Classifier assigns a Classification to a Failure.
//
// Thread Safety: Implementations must be safe for concurrent use.
type Classifier interface {
	Classify(ctx context.Context, f Failure) (Classification, error)
}

// Rule maps a pattern to a classification.
type Rule struct {
	Name     string
	Pattern  *regexp.Regexp
	Category Category
	Severity Severity
	Fixable  bool
}

// RuleClassifier returns the classification of the first matching rule.
type RuleClassifier struct {
	rules []Rule
}

// NewRuleClassifier creates a classifier. Nil rules uses DefaultRules.
func NewRuleClassifier(rules []Rule) *RuleClassifier {
	if rules == nil {
		rules = DefaultRules()
	}
	return &RuleClassifier{rules: rules}
}

// DefaultRules covers common Go and Node toolchain failures.
//
// Order matters: the first match wins.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name:     "resource-exhausted",
			Pattern:  regexp.MustCompile(`(?i)(out of memory|signal: killed|no space left on device)`),
			Category: CategoryBuild,
			Severity: SeverityCritical,
		},
		{
			Name:     "missing-module",
			Pattern:  regexp.MustCompile(`(?i)(no required module provides package|missing go\.sum entry|cannot find module|cannot find package|go: updates to go\.mod needed|npm err! code (e404|eresolve))`),
			Category: CategoryDependency,
			Severity: SeverityHigh,
			Fixable:  true,
		},
		{
			Name:     "type-mismatch",
			Pattern:  regexp.MustCompile(`(?i)(cannot use .+ as .+ (value|type)|undefined: \S+|has no field or method|mismatched types|too many arguments in call|not enough arguments in call|error TS\d{4}:)`),
			Category: CategoryTypeCheck,
			Severity: SeverityMedium,
		},
		{
			Name:     "formatting",
			Pattern:  regexp.MustCompile(`(?i)(golangci-lint|gofmt|goimports|eslint|prettier|is not formatted|lint (error|warning))`),
			Category: CategoryLint,
			Severity: SeverityLow,
			Fixable:  true,
		},
		{
			Name:     "build-failure",
			Pattern:  regexp.MustCompile(`(?i)(build failed|compilation failed|undefined reference|build constraints exclude|\[build failed\]|could not import)`),
			Category: CategoryBuild,
			Severity: SeverityHigh,
			Fixable:  true,
		},
	}
}

// Classify implements Classifier.
func (c *RuleClassifier) Classify(ctx context.Context, f Failure) (Classification, error) {
	_, span := tracer.Start(ctx, "recovery.Classify",
		trace.WithAttributes(attribute.Int("recovery.rule_count", len(c.rules))),
	)
	defer span.End()

	if err := ctx.Err(); err != nil {
		return Classification{}, err
	}

	text := f.Text()
	for _, r := range c.rules {
		m := r.Pattern.FindString(text)
		if m == "" {
			continue
		}
		span.SetAttributes(
			attribute.String("recovery.rule", r.Name),
			attribute.String("recovery.category", string(r.Category)),
		)
		return Classification{
			Category: r.Category,
			Severity: r.Severity,
			Fixable:  r.Fixable,
			Summary:  fmt.Sprintf("%s failure (%s)", r.Category, r.Name),
			Matched:  m,
		}, nil
	}

	span.SetAttributes(attribute.String("recovery.category", string(CategoryUnknown)))
	return Classification{
		Category: CategoryUnknown,
		Severity: SeverityMedium,
		Summary:  "unrecognized failure",
	}, nil
}
