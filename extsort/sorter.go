// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package extsort

import (
	"context"
	"io/ioutil"
	"os"
	"sort"
	"sync"

	"github.com/biogo/hts/sam"
	"github.com/biogo/store/llrb"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
)

// DefaultParallelism mirrors a typical background-sort fan-out: the
// number of batches that may be sorting and spilling concurrently.
const DefaultParallelism = 2

// Sorter accumulates *sam.Record values up to MaxRecordsInRAM, spills
// sorted batches to temporary files, and on Close produces the fully
// merged, coordinate-ordered sequence. It is the only concurrent component
// in the merge core: the driver itself stays single-threaded,
// but a Sorter's batch sort+spill runs on a small background worker pool,
// using a background worker channel to own all spill-file I/O.
type Sorter struct {
	maxRecordsInRAM int
	tmpDir          string
	parallelism     int

	pending []entry
	next    uint64

	bgCh chan []entry
	wg   sync.WaitGroup
	mu   sync.Mutex
	err  errors.Once

	spillPaths []string
}

// NewSorter returns a Sorter that spills to tmpDir (the OS default if
// empty) once maxRecordsInRAM records are pending.
func NewSorter(maxRecordsInRAM int, tmpDir string) *Sorter {
	if maxRecordsInRAM <= 0 {
		maxRecordsInRAM = 500000
	}
	s := &Sorter{
		maxRecordsInRAM: maxRecordsInRAM,
		tmpDir:          tmpDir,
		parallelism:     DefaultParallelism,
		bgCh:            make(chan []entry, DefaultParallelism),
	}
	for i := 0; i < s.parallelism; i++ {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			for batch := range s.bgCh {
				if path, err := s.sortAndSpill(batch); err != nil {
					s.err.Set(err)
				} else {
					s.mu.Lock()
					s.spillPaths = append(s.spillPaths, path)
					s.mu.Unlock()
				}
			}
		}()
	}
	return s
}

// Add takes ownership of rec and schedules it for output.
func (s *Sorter) Add(rec *sam.Record) error {
	if err := s.err.Err(); err != nil {
		return err
	}
	body, err := rec.MarshalSAM(sam.FlagDecimal)
	if err != nil {
		return err
	}
	s.next++
	s.pending = append(s.pending, entry{
		key:     coordOf(rec),
		flags:   uint16(rec.Flags),
		ordinal: s.next,
		body:    body,
	})
	if len(s.pending) >= s.maxRecordsInRAM {
		s.flushBatch()
	}
	return nil
}

func (s *Sorter) flushBatch() {
	if len(s.pending) == 0 {
		return
	}
	s.bgCh <- s.pending
	s.pending = nil
}

func (s *Sorter) sortAndSpill(batch []entry) (string, error) {
	sort.SliceStable(batch, func(i, j int) bool { return batch[i].compare(batch[j]) < 0 })
	tmp, err := ioutil.TempFile(s.tmpDir, "bamjoin-extsort-")
	if err != nil {
		return "", err
	}
	w := newSpillWriter(tmp)
	for _, e := range batch {
		if err := w.write(e); err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
			return "", err
		}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	log.Debug.Printf("extsort: spilled %d records to %s", len(batch), tmp.Name())
	return tmp.Name(), nil
}

// Finish closes the in-RAM accumulation phase, waits for every background
// spill to complete, and returns a MergedReader that yields the fully
// sorted sequence. Cleanup removes every spill file when the returned
// reader's Close is called.
func (s *Sorter) Finish(ctx context.Context) (*MergedReader, error) {
	s.flushBatch()
	close(s.bgCh)
	s.wg.Wait()
	if err := s.err.Err(); err != nil {
		s.cleanup()
		return nil, err
	}
	return newMergedReader(ctx, s.spillPaths)
}

// Abort discards every spill file without producing output, for the
// cancellation path.
func (s *Sorter) Abort() {
	s.cleanup()
}

func (s *Sorter) cleanup() {
	for _, p := range s.spillPaths {
		os.Remove(p)
	}
}

// mergeLeaf adapts one spill file's entry stream into an llrb.Comparable,
// via a k-way heap merge over the spilled runs.
type mergeLeaf struct {
	seq    int
	reader *spillReader
	closer func() error
	cur    entry
	err    *errors.Once
}

func newMergeLeaf(ctx context.Context, seq int, path string, errReporter *errors.Once) *mergeLeaf {
	f, err := file.Open(ctx, path)
	if err != nil {
		errReporter.Set(err)
		return nil
	}
	leaf := &mergeLeaf{
		seq:    seq,
		reader: newSpillReader(f.Reader(ctx)),
		closer: func() error { return f.Close(ctx) },
		err:    errReporter,
	}
	if !leaf.advance() {
		leaf.closer()
		return nil
	}
	return leaf
}

func (l *mergeLeaf) advance() bool {
	e, ok, err := l.reader.next()
	if err != nil {
		l.err.Set(err)
		return false
	}
	if !ok {
		return false
	}
	l.cur = e
	return true
}

func (l *mergeLeaf) Compare(other llrb.Comparable) int {
	o := other.(*mergeLeaf)
	if c := l.cur.compare(o.cur); c != 0 {
		return c
	}
	return l.seq - o.seq
}

// MergedReader yields the fully sorted, merged entry stream produced by a
// finished Sorter, parsing each entry's stashed SAM text back into a
// *sam.Record against the caller's header.
type MergedReader struct {
	leafs  llrb.Tree
	paths  []string
	closed []func() error
	err    errors.Once
	done   bool
}

func newMergedReader(ctx context.Context, paths []string) (*MergedReader, error) {
	m := &MergedReader{paths: paths}
	for i, p := range paths {
		if leaf := newMergeLeaf(ctx, i, p, &m.err); leaf != nil {
			m.leafs.Insert(leaf)
			m.closed = append(m.closed, leaf.closer)
		}
	}
	if err := m.err.Err(); err != nil {
		return nil, err
	}
	return m, nil
}

// Next returns the next record in sorted order against header, or
// ok=false once every spill is exhausted.
func (m *MergedReader) Next(header *sam.Header) (rec *sam.Record, ok bool, err error) {
	if m.done || m.leafs.Len() == 0 {
		return nil, false, m.err.Err()
	}
	var top *mergeLeaf
	m.leafs.Do(func(item llrb.Comparable) bool {
		top = item.(*mergeLeaf)
		return false
	})
	rec = &sam.Record{}
	if uerr := rec.UnmarshalSAM(header, top.cur.body); uerr != nil {
		return nil, false, uerr
	}
	m.leafs.DeleteMin()
	if top.advance() {
		m.leafs.Insert(top)
	}
	if err := m.err.Err(); err != nil {
		return nil, false, err
	}
	return rec, true, nil
}

// Close releases every open spill file handle and removes the spill files.
// Safe to call multiple times.
func (m *MergedReader) Close() error {
	for _, closer := range m.closed {
		if err := closer(); err != nil {
			m.err.Set(err)
		}
	}
	m.closed = nil
	for _, p := range m.paths {
		os.Remove(p)
	}
	m.paths = nil
	return m.err.Err()
}
