// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package history keeps an audit log of recovery runs in BadgerDB.
//
// Records are JSON values keyed run/<unix-nanos>/<id>, with an id/<id>
// index for lookups. The log is write-and-inspect only: nothing reads it
// back to resume a workflow.
//
// License: BadgerDB is Apache 2.0 licensed (github.com/dgraph-io/badger).
package history
