// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package mergebam

import (
	"strings"
	"testing"

	"github.com/biogo/hts/sam"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mappedRecord(t *testing.T, name string, ref *sam.Reference, pos int, cig string, flags sam.Flags) *sam.Record {
	t.Helper()
	co, err := sam.ParseCigar([]byte(cig))
	require.NoError(t, err)
	n := 0
	for _, op := range co {
		switch op.Type() {
		case sam.CigarMatch, sam.CigarInsertion, sam.CigarSoftClipped, sam.CigarEqual, sam.CigarMismatch:
			n += op.Len()
		}
	}
	if n == 0 {
		n = 10
	}
	seq := strings.Repeat("A", n)
	qual := make([]byte, n)
	for i := range qual {
		qual[i] = 30
	}
	r, err := sam.NewRecord(name, ref, ref, pos, pos, 0, 60, co, []byte(seq), qual, nil)
	require.NoError(t, err)
	r.Flags = flags
	return r
}

func TestClipOverlapSoftClipsOverlappingOppositeStrandMates(t *testing.T) {
	cfg := baseConfig()
	ref := testRef(t, "chr1", 1000)

	// t1 forward, 30 bases starting at 100 (ends at 130).
	// t2 reverse, 20 bases starting at 90 (ends at 110). Each mate's far
	// edge falls inside the other's aligned span, so both get clipped.
	t1 := mappedRecord(t, "r", ref, 100, "30M", sam.Paired|sam.Read1)
	t2 := mappedRecord(t, "r", ref, 90, "20M", sam.Paired|sam.Read2|sam.Reverse)

	require.NoError(t, clipOverlap(cfg, t1, t2))

	assert.Contains(t, t1.Cigar.String(), "S")
	assert.Contains(t, t2.Cigar.String(), "S")
}

// TestClipOverlapClipsDisjointCoordinates pins the actual post-clip
// coordinates for two mates whose overlap sits in the middle of each
// read's aligned span, not at either read's far edge: R1 forward
// chr1:100-200 (1-based inclusive), R2 reverse chr1:150-250. The expected
// result is a clean handoff at the overlap boundary -- R1's aligned end
// at or before 149, R2's aligned start at or after 201 -- with no gap or
// residual overlap.
func TestClipOverlapClipsDisjointCoordinates(t *testing.T) {
	cfg := baseConfig()
	ref := testRef(t, "chr1", 1000)

	t1 := mappedRecord(t, "r", ref, 99, "101M", sam.Paired|sam.Read1)
	t2 := mappedRecord(t, "r", ref, 149, "101M", sam.Paired|sam.Read2|sam.Reverse)

	require.NoError(t, clipOverlap(cfg, t1, t2))

	assert.Equal(t, "50M51S", t1.Cigar.String())
	assert.Equal(t, 149, t1.End()) // 1-based aligned end 149

	assert.Equal(t, "51S50M", t2.Cigar.String())
	assert.Equal(t, 200, t2.Pos) // 1-based aligned start 201
}

func TestClipOverlapSkipsSameStrandMates(t *testing.T) {
	cfg := baseConfig()
	ref := testRef(t, "chr1", 1000)
	t1 := mappedRecord(t, "r", ref, 100, "20M", sam.Paired|sam.Read1)
	t2 := mappedRecord(t, "r", ref, 110, "20M", sam.Paired|sam.Read2)

	require.NoError(t, clipOverlap(cfg, t1, t2))

	assert.Equal(t, "20M", t1.Cigar.String())
	assert.Equal(t, "20M", t2.Cigar.String())
}

func TestClipOverlapSkipsNonOverlapping(t *testing.T) {
	cfg := baseConfig()
	ref := testRef(t, "chr1", 1000)
	t1 := mappedRecord(t, "r", ref, 100, "20M", sam.Paired|sam.Read1)
	t2 := mappedRecord(t, "r", ref, 500, "20M", sam.Paired|sam.Read2|sam.Reverse)

	require.NoError(t, clipOverlap(cfg, t1, t2))

	assert.Equal(t, "20M", t1.Cigar.String())
	assert.Equal(t, "20M", t2.Cigar.String())
}

func TestClipOverlapHardClipWhenConfigured(t *testing.T) {
	cfg := baseConfig()
	cfg.HardClipOverlapping = true
	ref := testRef(t, "chr1", 1000)
	t1 := mappedRecord(t, "r", ref, 100, "30M", sam.Paired|sam.Read1)
	t2 := mappedRecord(t, "r", ref, 90, "20M", sam.Paired|sam.Read2|sam.Reverse)

	require.NoError(t, clipOverlap(cfg, t1, t2))

	assert.Contains(t, t1.Cigar.String(), "H")
	assert.Contains(t, t2.Cigar.String(), "H")
}

func TestLinkMatesSetsMateFieldsAndTemplateLength(t *testing.T) {
	cfg := baseConfig()
	cfg.AddMateCigar = true
	ref := testRef(t, "chr1", 1000)
	t1 := mappedRecord(t, "r", ref, 100, "20M", sam.Paired|sam.Read1)
	t2 := mappedRecord(t, "r", ref, 110, "20M", sam.Paired|sam.Read2|sam.Reverse)

	linkMates(cfg, t1, t2)

	assert.Equal(t, ref, t1.MateRef)
	assert.Equal(t, 110, t1.MatePos)
	assert.True(t, t1.Flags&sam.MateReverse != 0)
	assert.False(t, t1.Flags&sam.MateUnmapped != 0)
	assert.Equal(t, ref, t2.MateRef)
	assert.Equal(t, 100, t2.MatePos)

	mc, ok := t1.Tag([]byte("MC"))
	require.True(t, ok)
	assert.Equal(t, "20M", mc.Value().(string))

	assert.Equal(t, t1.TempLen, -t2.TempLen)
	assert.NotZero(t, t1.TempLen)
}

func TestLinkMatesMateUnmapped(t *testing.T) {
	cfg := baseConfig()
	ref := testRef(t, "chr1", 1000)
	t1 := mappedRecord(t, "r", ref, 100, "20M", sam.Paired|sam.Read1)
	t2 := unalignedTemplate(t, "r", strings.Repeat("A", 20), strings.Repeat("I", 20), sam.Paired|sam.Read2)

	linkMates(cfg, t1, t2)

	assert.True(t, t1.Flags&sam.MateUnmapped != 0)
	assert.Equal(t, t1.Ref, t1.MateRef)
	assert.Equal(t, t1.Pos, t1.MatePos)
	assert.Equal(t, 0, t1.TempLen)
	assert.Equal(t, 0, t2.TempLen)
}

func TestResolveProperPairSetsFlagWhenOrientationAndInsertOK(t *testing.T) {
	cfg := baseConfig()
	ref := testRef(t, "chr1", 1000)
	t1 := mappedRecord(t, "r", ref, 100, "20M", sam.Paired|sam.Read1)
	t2 := mappedRecord(t, "r", ref, 110, "20M", sam.Paired|sam.Read2|sam.Reverse)
	linkMates(cfg, t1, t2)

	resolveProperPair(cfg, t1, t2)

	assert.True(t, t1.Flags&sam.ProperPair != 0)
	assert.True(t, t2.Flags&sam.ProperPair != 0)
}

func TestResolveProperPairClearsFlagWhenInsertTooLarge(t *testing.T) {
	cfg := baseConfig()
	cfg.MaxInsertSize = 5
	ref := testRef(t, "chr1", 1000)
	t1 := mappedRecord(t, "r", ref, 100, "20M", sam.Paired|sam.Read1|sam.ProperPair)
	t2 := mappedRecord(t, "r", ref, 110, "20M", sam.Paired|sam.Read2|sam.Reverse|sam.ProperPair)
	linkMates(cfg, t1, t2)

	resolveProperPair(cfg, t1, t2)

	assert.False(t, t1.Flags&sam.ProperPair != 0)
	assert.False(t, t2.Flags&sam.ProperPair != 0)
}

func TestResolveProperPairKeepsAlignerDecisionWhenConfigured(t *testing.T) {
	cfg := baseConfig()
	cfg.KeepAlignerProper = true
	cfg.MaxInsertSize = 5
	ref := testRef(t, "chr1", 1000)
	t1 := mappedRecord(t, "r", ref, 100, "20M", sam.Paired|sam.Read1|sam.ProperPair)
	t2 := mappedRecord(t, "r", ref, 110, "20M", sam.Paired|sam.Read2|sam.Reverse|sam.ProperPair)
	linkMates(cfg, t1, t2)

	resolveProperPair(cfg, t1, t2)

	assert.True(t, t1.Flags&sam.ProperPair != 0)
	assert.True(t, t2.Flags&sam.ProperPair != 0)
}

func TestResolveProperPairFalseForUnexpectedOrientation(t *testing.T) {
	cfg := baseConfig()
	ref := testRef(t, "chr1", 1000)
	t1 := mappedRecord(t, "r", ref, 100, "20M", sam.Paired|sam.Read1|sam.ProperPair)
	t2 := mappedRecord(t, "r", ref, 110, "20M", sam.Paired|sam.Read2|sam.ProperPair)
	linkMates(cfg, t1, t2)

	resolveProperPair(cfg, t1, t2)

	assert.False(t, t1.Flags&sam.ProperPair != 0)
}

func TestLinkSupplementaryLinksToOppositePrimary(t *testing.T) {
	cfg := baseConfig()
	h := testOutHeader(t)
	ref := testRef(t, "chr1", 1000)

	template := unalignedTemplate(t, "r1", strings.Repeat("A", 20), strings.Repeat("I", 20), sam.Paired|sam.Read1)
	supp := alignedHit(t, "r1", ref, 300, "20M", sam.Paired|sam.Read1|sam.Supplementary)
	primary := mappedRecord(t, "r1", ref, 110, "20M", sam.Paired|sam.Read2|sam.Reverse)

	rec, err := LinkSupplementary(cfg, h, template, supp, primary, false, false)
	require.NoError(t, err)
	assert.True(t, rec.Flags&sam.Supplementary != 0)
	assert.Equal(t, primary.Ref, rec.MateRef)
	assert.Equal(t, primary.Pos, rec.MatePos)
	assert.True(t, rec.Flags&sam.MateReverse != 0)
	// template itself must be untouched: LinkSupplementary operates on a clone.
	assert.True(t, template.Flags&sam.Unmapped != 0)
}

func TestLinkSupplementaryNoOppositePrimary(t *testing.T) {
	cfg := baseConfig()
	h := testOutHeader(t)
	ref := testRef(t, "chr1", 1000)

	template := unalignedTemplate(t, "r1", strings.Repeat("A", 20), strings.Repeat("I", 20), sam.Paired|sam.Read1)
	supp := alignedHit(t, "r1", ref, 300, "20M", sam.Paired|sam.Read1|sam.Supplementary)

	rec, err := LinkSupplementary(cfg, h, template, supp, nil, false, false)
	require.NoError(t, err)
	assert.False(t, rec.Flags&sam.MateUnmapped != 0) // no opposite primary supplied: mate fields left as TransferFragment set them
}
