// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package hitgroup

import (
	"errors"
	"testing"

	"github.com/biogo/hts/sam"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sliceSource struct {
	recs []*sam.Record
	i    int
}

func (s *sliceSource) Scan() bool {
	if s.i >= len(s.recs) {
		return false
	}
	s.i++
	return true
}
func (s *sliceSource) Record() *sam.Record { return s.recs[s.i-1] }
func (s *sliceSource) Err() error          { return nil }
func (s *sliceSource) Close() error        { return nil }

type firstWins struct{}

func (firstWins) SelectPrimary(h *HitsForRead) {
	if h.End1.Primary == nil && len(h.End1.Secondary) > 0 {
		h.End1.Primary, h.End1.Secondary = h.End1.Secondary[0], h.End1.Secondary[1:]
	}
	if h.End2.Primary == nil && len(h.End2.Secondary) > 0 {
		h.End2.Primary, h.End2.Secondary = h.End2.Secondary[0], h.End2.Secondary[1:]
	}
}

func rec(name string, flags sam.Flags) *sam.Record {
	return &sam.Record{Name: name, Flags: flags, Pos: -1, MatePos: -1}
}

func TestGrouperBasic(t *testing.T) {
	recs := []*sam.Record{
		rec("r1", 0),
		rec("r1", sam.Secondary),
		rec("r2", sam.Paired|sam.Read1),
		rec("r2", sam.Paired|sam.Read2),
	}
	g := NewGrouper(&sliceSource{recs: recs}, nil, firstWins{})

	require.True(t, g.Scan())
	h := g.Group()
	assert.Equal(t, "r1", h.Name)
	assert.NotNil(t, h.End1.Primary)
	assert.Equal(t, 2, h.End1.Count())

	require.True(t, g.Scan())
	h = g.Group()
	assert.Equal(t, "r2", h.Name)
	assert.True(t, h.Paired)
	assert.NotNil(t, h.End1.Primary)
	assert.NotNil(t, h.End2.Primary)

	assert.False(t, g.Scan())
	assert.NoError(t, g.Err())
}

func TestGrouperOutOfOrder(t *testing.T) {
	recs := []*sam.Record{rec("r2", 0), rec("r1", 0)}
	g := NewGrouper(&sliceSource{recs: recs}, nil, firstWins{})
	assert.False(t, g.Scan())
	assert.True(t, errors.Is(g.Err(), ErrOutOfOrder))
}

func TestGrouperSkipDropsEmptyGroup(t *testing.T) {
	recs := []*sam.Record{
		rec("r1", sam.QCFail),
		rec("r2", 0),
	}
	skip := func(r *sam.Record) bool { return r.Flags&sam.QCFail != 0 }
	g := NewGrouper(&sliceSource{recs: recs}, skip, firstWins{})
	require.True(t, g.Scan())
	assert.Equal(t, "r2", g.Group().Name)
	assert.False(t, g.Scan())
}

func TestGrouperSupplementary(t *testing.T) {
	recs := []*sam.Record{
		rec("r1", 0),
		rec("r1", sam.Supplementary),
	}
	g := NewGrouper(&sliceSource{recs: recs}, nil, firstWins{})
	require.True(t, g.Scan())
	h := g.Group()
	assert.True(t, h.HasSupplementary())
	assert.Len(t, h.End1.Supplementary, 1)
}
