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

import (
	"container/list"
	"sync"
	"time"
)

// Cache is a bounded key/value store with a time-to-live.
//
// Description:
//
//	Entries are kept in insertion order. Set evicts the earliest-inserted
//	entry when the cache is full and the key is new. Get and Has treat
//	entries older than the TTL as absent and remove them.
//
// Thread Safety:
//
//	Cache is safe for concurrent use.
type Cache[K comparable, V any] struct {
	mu      sync.Mutex
	entries map[K]*list.Element
	order   *list.List // front = oldest insertion
	options Options

	hits        int64
	misses      int64
	evictions   int64
	expirations int64
}

// entry is a cached value with the time it was set.
type entry[K comparable, V any] struct {
	key       K
	value     V
	timestamp time.Time
}

// Stats contains counters describing cache activity.
type Stats struct {
	// Size is the number of entries currently stored (expired or not).
	Size int

	// Hits is the number of Get calls that returned a value.
	Hits int64

	// Misses is the number of Get calls that returned absent.
	Misses int64

	// Evictions is the number of entries removed by capacity pressure.
	Evictions int64

	// Expirations is the number of entries removed after their TTL.
	Expirations int64

	// MaxSize is the configured capacity.
	MaxSize int

	// TTL is the configured lifetime.
	TTL time.Duration
}

// HitRate returns hits / (hits + misses), or 0 with no lookups.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// New creates a cache with the given options.
//
// Inputs:
//
//	opts - Functional options. Defaults are MaxSize 1000 and TTL 1 hour.
//
// Outputs:
//
//	*Cache[K, V] - Ready-to-use cache.
func New[K comparable, V any](opts ...Option) *Cache[K, V] {
	options := DefaultOptions()
	for _, opt := range opts {
		opt(&options)
	}

	// Metrics are best effort; a failed meter leaves the counters nil.
	_ = initMetrics()

	return &Cache[K, V]{
		entries: make(map[K]*list.Element),
		order:   list.New(),
		options: options,
	}
}

// Set stores value under key.
//
// Description:
//
//	A new key inserted into a full cache evicts exactly one entry, the one
//	inserted earliest. Overwriting an existing key replaces its value,
//	refreshes its timestamp and moves it to the newest position without
//	evicting anything.
func (c *Cache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.options.Now()

	if elem, ok := c.entries[key]; ok {
		e := elem.Value.(*entry[K, V])
		e.value = value
		e.timestamp = now
		c.order.MoveToBack(elem)
		return
	}

	if c.order.Len() >= c.options.MaxSize {
		c.evictOldest()
	}

	elem := c.order.PushBack(&entry[K, V]{key: key, value: value, timestamp: now})
	c.entries[key] = elem
}

// Get returns the value stored under key.
//
// Outputs:
//
//	V - The value, or the zero value when absent.
//	bool - False if the key is missing or its entry has expired.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	e, ok := c.lookup(key)
	if !ok {
		c.misses++
		recordCounter(cacheMisses, c.options.Name, 1)
		return zero, false
	}

	c.hits++
	recordCounter(cacheHits, c.options.Name, 1)
	return e.value, true
}

// Has reports whether key holds a live entry. Expired entries are removed.
func (c *Cache[K, V]) Has(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.lookup(key)
	return ok
}

// Delete removes key and reports whether it was present.
func (c *Cache[K, V]) Delete(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key]
	if !ok {
		return false
	}
	c.removeElement(elem)
	return true
}

// Clear removes every entry. Counters are kept.
func (c *Cache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[K]*list.Element)
	c.order = list.New()
}

// Reset clears the cache and zeroes its counters.
func (c *Cache[K, V]) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[K]*list.Element)
	c.order = list.New()
	c.hits, c.misses, c.evictions, c.expirations = 0, 0, 0, 0
}

// Prune removes every expired entry and returns how many were removed.
func (c *Cache[K, V]) Prune() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.options.Now()
	removed := 0

	for elem := c.order.Front(); elem != nil; {
		next := elem.Next()
		if c.expired(elem.Value.(*entry[K, V]), now) {
			c.removeElement(elem)
			removed++
		}
		elem = next
	}

	c.expirations += int64(removed)
	recordCounter(cacheExpirations, c.options.Name, int64(removed))
	return removed
}

// Len returns the number of stored entries, including expired ones not yet
// removed.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Stats returns a snapshot of the cache counters.
func (c *Cache[K, V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Stats{
		Size:        c.order.Len(),
		Hits:        c.hits,
		Misses:      c.misses,
		Evictions:   c.evictions,
		Expirations: c.expirations,
		MaxSize:     c.options.MaxSize,
		TTL:         c.options.TTL,
	}
}

// lookup returns the live entry for key, removing it if expired.
// Must be called with lock held.
func (c *Cache[K, V]) lookup(key K) (*entry[K, V], bool) {
	elem, ok := c.entries[key]
	if !ok {
		return nil, false
	}

	e := elem.Value.(*entry[K, V])
	if c.expired(e, c.options.Now()) {
		c.removeElement(elem)
		c.expirations++
		recordCounter(cacheExpirations, c.options.Name, 1)
		return nil, false
	}
	return e, true
}

// expired reports whether the entry's age exceeds the TTL.
func (c *Cache[K, V]) expired(e *entry[K, V], now time.Time) bool {
	return now.Sub(e.timestamp) > c.options.TTL
}

// evictOldest removes the earliest-inserted entry.
// Must be called with lock held.
func (c *Cache[K, V]) evictOldest() {
	elem := c.order.Front()
	if elem == nil {
		return
	}
	c.removeElement(elem)
	c.evictions++
	recordCounter(cacheEvictions, c.options.Name, 1)
}

// removeElement removes an element from both map and list.
// Must be called with lock held.
func (c *Cache[K, V]) removeElement(elem *list.Element) {
	e := elem.Value.(*entry[K, V])
	delete(c.entries, e.key)
	c.order.Remove(elem)
}
