// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package cache provides a bounded, TTL-expiring key/value cache used to
// memoize expensive deterministic computations (for example classifying a
// failure by its fingerprint).
//
// # Eviction Policy
//
// Eviction is FIFO by insertion order, not LRU: reads never change an
// entry's position and never extend its lifetime. When the cache holds
// MaxSize entries and a new key is set, the entry inserted earliest among
// those still present is evicted.
//
// Overwriting an existing key does not evict anything. The value and
// timestamp are replaced and the key moves to the newest insertion position.
//
// # Expiry
//
// Entries older than the TTL are treated as absent and removed lazily by Get
// and Has. Prune removes every expired entry eagerly.
//
// # Thread Safety
//
// Cache is safe for concurrent use.
package cache
