// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package cache

import "time"

// Default configuration values.
const (
	// DefaultMaxSize is the default maximum number of entries.
	DefaultMaxSize = 1000

	// DefaultTTL is the default entry lifetime.
	DefaultTTL = time.Hour
)

// Options configures Cache behavior.
type Options struct {
	// MaxSize is the maximum number of entries held at once.
	MaxSize int

	// TTL is how long an entry stays valid after it was set.
	TTL time.Duration

	// Name labels the cache in metrics. Empty means "default".
	Name string

	// Now returns the current time. Overridden in tests.
	Now func() time.Time
}

// DefaultOptions returns the default cache configuration.
func DefaultOptions() Options {
	return Options{
		MaxSize: DefaultMaxSize,
		TTL:     DefaultTTL,
		Name:    "default",
		Now:     time.Now,
	}
}

// Option is a functional option for configuring a Cache.
type Option func(*Options)

// WithMaxSize sets the maximum number of entries.
func WithMaxSize(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.MaxSize = n
		}
	}
}

// WithTTL sets the entry lifetime.
func WithTTL(d time.Duration) Option {
	return func(o *Options) {
		if d > 0 {
			o.TTL = d
		}
	}
}

// WithName sets the metrics label for the cache.
func WithName(name string) Option {
	return func(o *Options) {
		if name != "" {
			o.Name = name
		}
	}
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(o *Options) {
		if now != nil {
			o.Now = now
		}
	}
}
