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
	"errors"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/AleutianAI/stepflow/services/workflow/cache"
)

// ErrNilContext is returned when a nil context is passed.
var ErrNilContext = errors.New("context must not be nil")

// AnalyzerOption configures an Analyzer.
type AnalyzerOption func(*Analyzer)

// WithCache sets the classification cache.
func WithCache(c *cache.Cache[string, Classification]) AnalyzerOption {
	return func(a *Analyzer) {
		if c != nil {
			a.cache = c
		}
	}
}

// WithAnalyzerLogger sets the analyzer logger.
func WithAnalyzerLogger(logger *slog.Logger) AnalyzerOption {
	return func(a *Analyzer) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// Analyzer classifies failures and memoizes results by fingerprint.
//
// Description:
//
//	A fingerprint is classified at most once per cache TTL. Concurrent
//	requests for the same uncached fingerprint share one classification.
//
// Thread Safety:
//
//	Analyzer is safe for concurrent use.
type Analyzer struct {
	classifier Classifier
	cache      *cache.Cache[string, Classification]
	flight     singleflight.Group
	logger     *slog.Logger

	computes atomic.Int64
}

// NewAnalyzer creates an analyzer. A nil classifier uses the default rules.
// Without WithCache it owns a cache with default size and TTL.
func NewAnalyzer(classifier Classifier, opts ...AnalyzerOption) *Analyzer {
	if classifier == nil {
		classifier = NewRuleClassifier(nil)
	}
	a := &Analyzer{
		classifier: classifier,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.cache == nil {
		a.cache = cache.New[string, Classification](cache.WithName("classification"))
	}
	return a
}

// Analyze returns the classification of f.
//
// Outputs:
//
//	Classification - With Fingerprint set.
//	error - ErrNilContext, ctx.Err() when this caller is cancelled on a
//	        miss, or the classifier's error. Errors are not cached.
func (a *Analyzer) Analyze(ctx context.Context, f Failure) (Classification, error) {
	if ctx == nil {
		return Classification{}, ErrNilContext
	}

	fp := Fingerprint(f)
	if c, ok := a.cache.Get(fp); ok {
		RecordCacheHit()
		return c, nil
	}
	RecordCacheMiss()

	if err := ctx.Err(); err != nil {
		return Classification{}, err
	}

	// Callers waiting on fp share one classification, detached from any
	// single caller's cancellation.
	flightCtx := context.WithoutCancel(ctx)
	ch := a.flight.DoChan(fp, func() (any, error) {
		if c, ok := a.cache.Get(fp); ok {
			return c, nil
		}

		c, err := a.classifier.Classify(flightCtx, f)
		if err != nil {
			return Classification{}, err
		}
		c.Fingerprint = fp
		a.cache.Set(fp, c)
		a.computes.Add(1)

		a.logger.Debug("failure classified",
			slog.String("fingerprint", fp[:12]),
			slog.String("category", string(c.Category)),
			slog.String("severity", string(c.Severity)),
			slog.Bool("fixable", c.Fixable),
		)
		return c, nil
	})

	select {
	case <-ctx.Done():
		return Classification{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Classification{}, res.Err
		}
		if res.Shared {
			a.logger.Debug("classification shared with concurrent caller", slog.String("fingerprint", fp[:12]))
		}
		return res.Val.(Classification), nil
	}
}

// Computes returns how many times the classifier was actually invoked.
func (a *Analyzer) Computes() int64 {
	return a.computes.Load()
}

// Cache returns the classification cache.
func (a *Analyzer) Cache() *cache.Cache[string, Classification] {
	return a.cache
}
