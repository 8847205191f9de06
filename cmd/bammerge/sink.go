// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package main

import (
	"context"

	"github.com/biogo/hts/bam"
	"github.com/biogo/hts/sam"
	"github.com/grailbio/bamjoin/mergebam"
	"github.com/grailbio/bamjoin/sink"
)

// newSink builds the output sink matching cfg.SortOrder: a direct writer
// for query-name/unsorted output, or an external-sort-backed sink for
// coordinate output. Recomputation is left
// disabled here: it needs a caller-supplied mergebam.ReferenceWalker over
// an indexed reference, which is outside this command's scope (see
// DESIGN.md) -- wire one in by passing a non-nil sink.Recomputer below.
func newSink(ctx context.Context, cfg *mergebam.Config, header *sam.Header, w *bam.Writer, tmpDir string) mergebam.Sink {
	if cfg.SortOrder != mergebam.Coordinate {
		return sink.NewDirect(w)
	}
	var recompute sink.Recomputer
	return sink.NewSorting(ctx, header, w, cfg.MaxRecordsInRAM, tmpDir, recompute)
}
