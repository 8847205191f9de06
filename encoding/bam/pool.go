// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package bam

import (
	"sync"

	"github.com/biogo/hts/sam"
)

// recordPool recycles *sam.Record values across the merge driver's clone
// points (hit fan-out, supplementary expansion). An earlier implementation
// of this pool used a go:linkname trick into the runtime's per-P scheduler
// state to shave allocations on many-core machines; that trick depends on
// unexported runtime symbols that drift across Go versions, so this uses
// the standard sync.Pool instead. See DESIGN.md for the full justification.
var recordPool = sync.Pool{
	New: func() interface{} { return &sam.Record{} },
}

// GetFromFreePool returns a *sam.Record from the singleton pool, zeroed of
// any prior record's fields, allocating a new one if the pool is empty.
func GetFromFreePool() *sam.Record {
	rec := recordPool.Get().(*sam.Record)
	rec.Name = ""
	rec.Ref = nil
	rec.Pos = 0
	rec.MapQ = 0
	rec.Flags = 0
	rec.MateRef = nil
	rec.MatePos = 0
	rec.TempLen = 0
	rec.Cigar = nil
	rec.Seq = sam.Seq{}
	rec.Qual = nil
	rec.AuxFields = nil
	return rec
}
