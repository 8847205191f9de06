// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package mergebam

import (
	"strconv"
	"strings"

	"github.com/biogo/hts/sam"
	"github.com/grailbio/bamjoin/encoding/bam"
)

const (
	tagMD = "MD"
	tagUQ = "UQ"
)

// ReferenceWalker supplies the reference bases the final coordinate-sorted
// pass needs to recompute MD/NM/UQ. Implementations are
// expected, but not required, to serve calls with monotonically increasing
// refIndex, mirroring bamprovider.Provider's shard-ordered access contract;
// Recompute itself makes no such assumption.
type ReferenceWalker interface {
	// Get returns the full base sequence of the reference with the given
	// index, upper- or lower-case.
	Get(refIndex int) ([]byte, error)
}

// hasNoQuality reports whether rec carries the SAM sentinel "no qualities"
// value (a '*' QUAL field, expanded by the decoder to an all-0xff slice).
func hasNoQuality(rec *sam.Record) bool {
	return len(rec.Qual) == 0 || rec.Qual[0] == 0xff
}

// Recompute rewrites rec's MD, NM and UQ tags from its CIGAR, sequence and
// the reference bases walker supplies. It is a no-op for
// unmapped records and for records carrying the "no qualities" sentinel.
func Recompute(cfg *Config, rec *sam.Record, walker ReferenceWalker) error {
	if bam.IsUnmapped(rec) || hasNoQuality(rec) {
		return nil
	}
	refBases, err := walker.Get(rec.Ref.ID())
	if err != nil {
		return err
	}
	reverse := rec.Flags&sam.Reverse != 0
	seq := rec.Seq.Expand()

	var md strings.Builder
	matchRun := 0
	nm, uq := 0, 0
	flush := func() {
		md.WriteString(strconv.Itoa(matchRun))
		matchRun = 0
	}

	refPos, seqPos := rec.Pos, 0
	for _, op := range rec.Cigar {
		n := op.Len()
		switch op.Type() {
		case sam.CigarMatch, sam.CigarEqual, sam.CigarMismatch:
			for i := 0; i < n; i++ {
				rb := toUpper(refBases[refPos+i])
				qb := seq[seqPos+i]
				if rb == qb {
					matchRun++
					continue
				}
				flush()
				md.WriteByte(rb)
				if !(cfg.Bisulfite && bisulfiteExempt(rb, qb, reverse)) {
					nm++
					if seqPos+i < len(rec.Qual) {
						uq += int(rec.Qual[seqPos+i])
					}
				}
			}
			refPos += n
			seqPos += n
		case sam.CigarDeletion:
			flush()
			md.WriteByte('^')
			for i := 0; i < n; i++ {
				md.WriteByte(toUpper(refBases[refPos+i]))
			}
			nm += n
			refPos += n
		case sam.CigarInsertion:
			nm += n
			seqPos += n
		case sam.CigarSoftClipped:
			seqPos += n
		case sam.CigarSkipped:
			refPos += n
		case sam.CigarHardClipped, sam.CigarPadded:
		}
	}
	flush()

	setTextTag(rec, tagMD, md.String())
	setIntTag(rec, tagNM, nm)
	setIntTag(rec, tagUQ, uq)
	return nil
}

// bisulfiteExempt reports whether a reference/read mismatch is the
// expected bisulfite-conversion signature: C>T on the forward strand, or
// its reverse-strand complement G>A, and so must not count toward NM/UQ.
func bisulfiteExempt(refBase, readBase byte, reverse bool) bool {
	if !reverse {
		return refBase == 'C' && readBase == 'T'
	}
	return refBase == 'G' && readBase == 'A'
}

func toUpper(b byte) byte {
	if b >= 'a' && b <= 'z' {
		return b - ('a' - 'A')
	}
	return b
}

func setTextTag(rec *sam.Record, tag, value string) {
	removeTagByName(rec, tag)
	if aux, err := sam.NewAux(sam.Tag{tag[0], tag[1]}, value); err == nil {
		rec.AuxFields = append(rec.AuxFields, aux)
	}
}

func setIntTag(rec *sam.Record, tag string, value int) {
	removeTagByName(rec, tag)
	if aux, err := sam.NewAux(sam.Tag{tag[0], tag[1]}, value); err == nil {
		rec.AuxFields = append(rec.AuxFields, aux)
	}
}
