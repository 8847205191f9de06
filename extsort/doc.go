// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package extsort is a bounded-memory external sort for *sam.Record
// streams: records accumulate in RAM up to a configurable threshold, get
// sorted and spilled to disk, and are finally combined with a k-way merge.
// see DESIGN.md for the on-disk spill framing (plain length-prefixed
// snappy blocks).
package extsort
