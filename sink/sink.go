// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package sink

import (
	"context"

	"github.com/biogo/hts/bam"
	"github.com/biogo/hts/sam"
	"github.com/grailbio/bamjoin/extsort"
)

// Sink is the add/close abstraction the merge driver writes through,
// matching mergebam.Sink so either implementation here satisfies it
// directly.
type Sink interface {
	Add(rec *sam.Record) error
	Close() error
}

// Recomputer applies NM/MD/UQ recomputation to rec in place.
// It is invoked only for mapped records during a coordinate sink's drain
// pass; callers that don't need recomputation (e.g. tests) may pass nil.
type Recomputer func(rec *sam.Record) error

// Direct writes records through to w in the order Add is called, for
// query-name and unsorted output ("query-name and unsorted
// modes bypass" the sort collection).
type Direct struct {
	w *bam.Writer
}

// NewDirect wraps an already-opened *bam.Writer as a Sink.
func NewDirect(w *bam.Writer) *Direct {
	return &Direct{w: w}
}

func (d *Direct) Add(rec *sam.Record) error { return d.w.Write(rec) }

func (d *Direct) Close() error { return d.w.Close() }

// Sorting routes every added record through an extsort.Sorter and, on
// Close, drains the sorter's merged output in coordinate order, applying
// recompute to each mapped record before writing it to w. This is the
// coordinate-order path that requires a full external sort.
type Sorting struct {
	ctx       context.Context
	sorter    *extsort.Sorter
	header    *sam.Header
	w         *bam.Writer
	recompute Recomputer
}

// NewSorting constructs a Sorting sink. maxRecordsInRAM and tmpDir are
// forwarded to extsort.NewSorter; recompute may be nil to skip NM/MD/UQ
// recomputation entirely.
func NewSorting(ctx context.Context, header *sam.Header, w *bam.Writer, maxRecordsInRAM int, tmpDir string, recompute Recomputer) *Sorting {
	return &Sorting{
		ctx:       ctx,
		sorter:    extsort.NewSorter(maxRecordsInRAM, tmpDir),
		header:    header,
		w:         w,
		recompute: recompute,
	}
}

func (s *Sorting) Add(rec *sam.Record) error { return s.sorter.Add(rec) }

// Close drains the sort to completion and writes the fully coordinate-
// ordered stream to the underlying writer, closing it when done. It
// discards the sort's spill files via MergedReader.Close even on a
// mid-drain error.
func (s *Sorting) Close() error {
	reader, err := s.sorter.Finish(s.ctx)
	if err != nil {
		return err
	}
	defer reader.Close()

	for {
		rec, ok, err := reader.Next(s.header)
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		if s.recompute != nil && rec.Flags&sam.Unmapped == 0 {
			if err := s.recompute(rec); err != nil {
				return err
			}
		}
		if err := s.w.Write(rec); err != nil {
			return err
		}
	}
	return s.w.Close()
}

// Abort discards the sort's in-flight state without producing output, for
// the driver's cancellation path.
func (s *Sorting) Abort() {
	s.sorter.Abort()
}
