// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package extsort

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/biogo/hts/sam"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testHeader(t *testing.T) (*sam.Header, *sam.Reference, *sam.Reference) {
	t.Helper()
	chr1, err := sam.NewReference("chr1", "", "", 1000, nil, nil)
	require.NoError(t, err)
	chr2, err := sam.NewReference("chr2", "", "", 2000, nil, nil)
	require.NoError(t, err)
	h, err := sam.NewHeader(nil, []*sam.Reference{chr1, chr2})
	require.NoError(t, err)
	return h, h.Refs()[0], h.Refs()[1]
}

func testRecord(t *testing.T, name string, ref *sam.Reference, pos int, flags sam.Flags) *sam.Record {
	t.Helper()
	seq := strings.Repeat("A", 10)
	qual := strings.Repeat("I", 10)
	q := make([]byte, len(qual))
	for i := range qual {
		q[i] = qual[i] - 33
	}
	r, err := sam.NewRecord(name, ref, ref, pos, pos, 0, 60, nil, []byte(seq), q, nil)
	require.NoError(t, err)
	r.Flags = flags
	return r
}

func TestSorterOrdersByCoordinate(t *testing.T) {
	h, chr1, chr2 := testHeader(t)
	s := NewSorter(1000, "")

	require.NoError(t, s.Add(testRecord(t, "b", chr2, 100, 0)))
	require.NoError(t, s.Add(testRecord(t, "a", chr1, 200, 0)))
	require.NoError(t, s.Add(testRecord(t, "c", chr1, 100, 0)))
	require.NoError(t, s.Add(testRecord(t, "d", nil, -1, sam.Unmapped)))

	reader, err := s.Finish(context.Background())
	require.NoError(t, err)
	defer reader.Close()

	var names []string
	for {
		rec, ok, err := reader.Next(h)
		require.NoError(t, err)
		if !ok {
			break
		}
		names = append(names, rec.Name)
	}
	assert.Equal(t, []string{"c", "a", "b", "d"}, names)
}

func TestSorterSpillsAcrossMultipleBatches(t *testing.T) {
	h, chr1, _ := testHeader(t)
	s := NewSorter(2, "")

	for i := 9; i >= 0; i-- {
		require.NoError(t, s.Add(testRecord(t, "r", chr1, i, 0)))
	}

	reader, err := s.Finish(context.Background())
	require.NoError(t, err)
	defer reader.Close()

	var positions []int
	for {
		rec, ok, err := reader.Next(h)
		require.NoError(t, err)
		if !ok {
			break
		}
		positions = append(positions, rec.Pos)
	}
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, positions)
}

func TestSorterAbortRemovesSpillFiles(t *testing.T) {
	_, chr1, _ := testHeader(t)
	s := NewSorter(2, "")
	for i := 0; i < 10; i++ {
		require.NoError(t, s.Add(testRecord(t, "r", chr1, i, 0)))
	}
	s.flushBatch()
	close(s.bgCh)
	s.wg.Wait()
	require.NoError(t, s.err.Err())
	require.NotEmpty(t, s.spillPaths)
	paths := append([]string(nil), s.spillPaths...)

	s.Abort()
	for _, p := range paths {
		_, err := os.Stat(p)
		assert.True(t, os.IsNotExist(err))
	}
}
