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

import (
	"sort"
	"sync"
)

// Context is the key/value store shared by every step of a run.
//
// Description:
//
//	One Context is passed by reference to all steps and subtasks. Each
//	individual operation is atomic; sequences of operations from steps with
//	no dependency between them are not ordered relative to each other. Use
//	Update for read-modify-write.
//
// Thread Safety:
//
//	Context is safe for concurrent use.
type Context struct {
	mu     sync.RWMutex
	values map[string]any
}

// NewContext creates an empty context.
func NewContext() *Context {
	return &Context{values: make(map[string]any)}
}

// NewContextFrom creates a context holding a copy of m.
func NewContextFrom(m map[string]any) *Context {
	c := &Context{values: make(map[string]any, len(m))}
	for k, v := range m {
		c.values[k] = v
	}
	return c
}

// Get returns the value stored under key.
func (c *Context) Get(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.values[key]
	return v, ok
}

// Set stores value under key.
func (c *Context) Set(key string, value any) {
	c.mu.Lock()
	c.values[key] = value
	c.mu.Unlock()
}

// Delete removes key.
func (c *Context) Delete(key string) {
	c.mu.Lock()
	delete(c.values, key)
	c.mu.Unlock()
}

// Update replaces the value under key with fn(old, present) while holding
// the lock. fn must not call back into c.
func (c *Context) Update(key string, fn func(old any, ok bool) any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	old, ok := c.values[key]
	c.values[key] = fn(old, ok)
}

// Snapshot returns a shallow copy of all entries.
func (c *Context) Snapshot() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]any, len(c.values))
	for k, v := range c.values {
		out[k] = v
	}
	return out
}

// Keys returns the keys in sorted order.
func (c *Context) Keys() []string {
	c.mu.RLock()
	keys := make([]string, 0, len(c.values))
	for k := range c.values {
		keys = append(keys, k)
	}
	c.mu.RUnlock()
	sort.Strings(keys)
	return keys
}

// Len returns the number of entries.
func (c *Context) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.values)
}

// Value returns the value under key if it exists and has type T.
func Value[T any](c *Context, key string) (T, bool) {
	var zero T
	v, ok := c.Get(key)
	if !ok {
		return zero, false
	}
	t, ok := v.(T)
	if !ok {
		return zero, false
	}
	return t, true
}
