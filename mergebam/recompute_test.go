// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package mergebam

import (
	"testing"

	"github.com/biogo/hts/sam"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mapWalker is a fixed in-memory ReferenceWalker for recompute tests.
type mapWalker map[int][]byte

func (w mapWalker) Get(refIndex int) ([]byte, error) { return w[refIndex], nil }

func recomputeRecord(t *testing.T, ref *sam.Reference, pos int, cig string, seq string, qual []byte, flags sam.Flags) *sam.Record {
	t.Helper()
	co, err := sam.ParseCigar([]byte(cig))
	require.NoError(t, err)
	r, err := sam.NewRecord("r1", ref, ref, pos, pos, 0, 60, co, []byte(seq), qual, nil)
	require.NoError(t, err)
	r.Flags = flags
	return r
}

func constQual(n int, v byte) []byte {
	q := make([]byte, n)
	for i := range q {
		q[i] = v
	}
	return q
}

func TestRecomputePerfectMatch(t *testing.T) {
	cfg := baseConfig()
	ref := testRef(t, "chr1", 1000)
	walker := mapWalker{ref.ID(): []byte("AAAAAAAAAAAAAAAAAAAA")}

	rec := recomputeRecord(t, ref, 0, "10M", "AAAAAAAAAA", constQual(10, 30), 0)
	require.NoError(t, Recompute(cfg, rec, walker))

	md, ok := rec.Tag([]byte("MD"))
	require.True(t, ok)
	assert.Equal(t, "10", md.Value().(string))

	nm, ok := rec.Tag([]byte("NM"))
	require.True(t, ok)
	assert.EqualValues(t, 0, nm.Value())

	uq, ok := rec.Tag([]byte("UQ"))
	require.True(t, ok)
	assert.EqualValues(t, 0, uq.Value())
}

func TestRecomputeSingleMismatch(t *testing.T) {
	cfg := baseConfig()
	ref := testRef(t, "chr1", 1000)
	// Reference: AAAAAAAAAA; read has a T at position 4 (0-based).
	walker := mapWalker{ref.ID(): []byte("AAAAAAAAAAAAAAAAAAAA")}

	rec := recomputeRecord(t, ref, 0, "10M", "AAAATAAAAA", constQual(10, 20), 0)
	require.NoError(t, Recompute(cfg, rec, walker))

	md, ok := rec.Tag([]byte("MD"))
	require.True(t, ok)
	assert.Equal(t, "4A5", md.Value().(string))

	nm, ok := rec.Tag([]byte("NM"))
	require.True(t, ok)
	assert.EqualValues(t, 1, nm.Value())

	uq, ok := rec.Tag([]byte("UQ"))
	require.True(t, ok)
	assert.EqualValues(t, 20, uq.Value())
}

func TestRecomputeDeletion(t *testing.T) {
	cfg := baseConfig()
	ref := testRef(t, "chr1", 1000)
	// Reference: AAAAGGAAAA; read skips the GG at [4,6).
	walker := mapWalker{ref.ID(): []byte("AAAAGGAAAAAAAAAAAAAA")}

	rec := recomputeRecord(t, ref, 0, "4M2D4M", "AAAAAAAA", constQual(8, 30), 0)
	require.NoError(t, Recompute(cfg, rec, walker))

	md, ok := rec.Tag([]byte("MD"))
	require.True(t, ok)
	assert.Equal(t, "4^GG4", md.Value().(string))

	nm, ok := rec.Tag([]byte("NM"))
	require.True(t, ok)
	assert.EqualValues(t, 2, nm.Value())
}

func TestRecomputeInsertion(t *testing.T) {
	cfg := baseConfig()
	ref := testRef(t, "chr1", 1000)
	walker := mapWalker{ref.ID(): []byte("AAAAAAAAAAAAAAAAAAAA")}

	// 4 matched bases, 2 inserted (not in reference), 4 more matched.
	rec := recomputeRecord(t, ref, 0, "4M2I4M", "AAAATTAAAA", constQual(10, 30), 0)
	require.NoError(t, Recompute(cfg, rec, walker))

	md, ok := rec.Tag([]byte("MD"))
	require.True(t, ok)
	assert.Equal(t, "8", md.Value().(string))

	nm, ok := rec.Tag([]byte("NM"))
	require.True(t, ok)
	assert.EqualValues(t, 2, nm.Value())
}

func TestRecomputeBisulfiteExemptsForwardCtoT(t *testing.T) {
	cfg := baseConfig()
	cfg.Bisulfite = true
	ref := testRef(t, "chr1", 1000)
	// Reference has a C at position 4; the bisulfite-converted read shows T.
	walker := mapWalker{ref.ID(): []byte("AAAACAAAAAAAAAAAAAAA")}

	rec := recomputeRecord(t, ref, 0, "10M", "AAAATAAAAA", constQual(10, 25), 0)
	require.NoError(t, Recompute(cfg, rec, walker))

	nm, ok := rec.Tag([]byte("NM"))
	require.True(t, ok)
	assert.EqualValues(t, 0, nm.Value())

	uq, ok := rec.Tag([]byte("UQ"))
	require.True(t, ok)
	assert.EqualValues(t, 0, uq.Value())

	// MD still records the literal reference base at the mismatch position.
	md, ok := rec.Tag([]byte("MD"))
	require.True(t, ok)
	assert.Equal(t, "4C5", md.Value().(string))
}

func TestRecomputeBisulfiteExemptsReverseGtoA(t *testing.T) {
	cfg := baseConfig()
	cfg.Bisulfite = true
	ref := testRef(t, "chr1", 1000)
	// Reference has a G at position 4; on the reverse strand the expected
	// bisulfite artifact is G>A.
	walker := mapWalker{ref.ID(): []byte("AAAAGAAAAAAAAAAAAAAA")}

	rec := recomputeRecord(t, ref, 0, "10M", "AAAAAAAAAA", constQual(10, 25), sam.Reverse)
	require.NoError(t, Recompute(cfg, rec, walker))

	nm, ok := rec.Tag([]byte("NM"))
	require.True(t, ok)
	assert.EqualValues(t, 0, nm.Value())
}

func TestRecomputeBisulfiteDoesNotExemptOtherMismatches(t *testing.T) {
	cfg := baseConfig()
	cfg.Bisulfite = true
	ref := testRef(t, "chr1", 1000)
	walker := mapWalker{ref.ID(): []byte("AAAAGAAAAAAAAAAAAAAA")}

	// A G>T mismatch on the forward strand is not a bisulfite artifact.
	rec := recomputeRecord(t, ref, 0, "10M", "AAAATAAAAA", constQual(10, 15), 0)
	require.NoError(t, Recompute(cfg, rec, walker))

	nm, ok := rec.Tag([]byte("NM"))
	require.True(t, ok)
	assert.EqualValues(t, 1, nm.Value())

	uq, ok := rec.Tag([]byte("UQ"))
	require.True(t, ok)
	assert.EqualValues(t, 15, uq.Value())
}

func TestRecomputeNoOpForUnmappedRecord(t *testing.T) {
	cfg := baseConfig()
	rec := unalignedTemplate(t, "r1", "AAAAAAAAAA", "IIIIIIIIII", 0)
	require.NoError(t, Recompute(cfg, rec, mapWalker{}))
	_, ok := rec.Tag([]byte("MD"))
	assert.False(t, ok)
}

func TestRecomputeNoOpForNoQualitySentinel(t *testing.T) {
	cfg := baseConfig()
	ref := testRef(t, "chr1", 1000)
	walker := mapWalker{ref.ID(): []byte("AAAAAAAAAAAAAAAAAAAA")}

	rec := recomputeRecord(t, ref, 0, "10M", "AAAATAAAAA", constQual(10, 0xff), 0)
	require.NoError(t, Recompute(cfg, rec, walker))
	_, ok := rec.Tag([]byte("MD"))
	assert.False(t, ok)
}
