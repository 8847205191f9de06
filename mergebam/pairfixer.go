// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package mergebam

import (
	"github.com/biogo/hts/sam"
	"github.com/grailbio/bamjoin/encoding/bam"
)

const tagMC = "MC"

// FixPair applies overlap clipping (when cfg.ClipOverlapping or
// cfg.HardClipOverlapping is set), mate linkage and proper-pair
// resolution to a finalized pair of records. Both t1 and
// t2 must be non-nil; either may still be unmapped. It fails only when a
// hard clip needed to stash XB/XQ but one was already present.
func FixPair(cfg *Config, t1, t2 *sam.Record) error {
	if cfg.ClipOverlapping || cfg.HardClipOverlapping {
		if err := clipOverlap(cfg, t1, t2); err != nil {
			return err
		}
	}
	linkMates(cfg, t1, t2)
	resolveProperPair(cfg, t1, t2)
	return nil
}

// clipOverlap soft- (and optionally hard-) clips the reference overlap
// between two mapped, opposite-strand, overlapping mates: the forward
// mate (pos) is trimmed from where the reverse mate (neg) begins through
// its own 3' end, and the reverse mate is trimmed from its reference-low
// start (its 3' end) through where the forward mate ends. ClipThreePrimeEnd only ever trims
// the reference-high end of a record, so neg's reference-low overlap goes
// through ClipReferenceLowEnd instead.
func clipOverlap(cfg *Config, t1, t2 *sam.Record) error {
	if bam.IsUnmapped(t1) || bam.IsUnmapped(t2) {
		return nil
	}
	if t1.Ref != t2.Ref {
		return nil
	}
	if (t1.Flags&sam.Reverse != 0) == (t2.Flags&sam.Reverse != 0) {
		return nil
	}
	pos, neg := t1, t2
	if pos.Flags&sam.Reverse != 0 {
		pos, neg = t2, t1
	}
	posEnd, negStart := pos.End(), neg.Pos
	if posEnd <= negStart || neg.End() <= pos.Pos {
		return nil // reference intervals do not overlap
	}

	// negStart/posEnd are the overlap boundary captured before clipping;
	// the soft-clip pass below moves neg.Pos forward and pulls pos.End()
	// back, so the optional hard-clip pass reuses these captured values.
	clipHigh := func(rec *sam.Record, refPos int, op sam.CigarOpType) error {
		at := bam.ReadPositionAtRefIgnoringSoftclip(rec, refPos)
		if at == 0 {
			return nil
		}
		return bam.ClipThreePrimeEnd(rec, at, op)
	}
	clipLow := func(rec *sam.Record, refPos int, op sam.CigarOpType) error {
		at := bam.ReadPositionAtRefIgnoringSoftclip(rec, refPos)
		if at == 0 {
			return nil
		}
		return bam.ClipReferenceLowEnd(rec, at, op)
	}

	if err := clipHigh(pos, negStart, sam.CigarSoftClipped); err != nil {
		return err
	}
	if err := clipLow(neg, posEnd-1, sam.CigarSoftClipped); err != nil {
		return err
	}

	if !cfg.HardClipOverlapping {
		return nil
	}
	if err := clipHigh(pos, negStart, sam.CigarHardClipped); err != nil {
		return err
	}
	if err := clipLow(neg, posEnd-1, sam.CigarHardClipped); err != nil {
		return err
	}
	return nil
}

// linkMates sets each record's mate-reference, mate-start, mate-strand,
// mate-unmapped flag, template length, and (if enabled) the MC tag, from
// the other record's final, already-clipped state.
func linkMates(cfg *Config, t1, t2 *sam.Record) {
	link := func(self, mate *sam.Record) {
		self.Flags |= sam.Paired
		if bam.IsUnmapped(mate) {
			self.Flags |= sam.MateUnmapped
			self.MateRef = self.Ref
			self.MatePos = self.Pos
		} else {
			self.Flags &^= sam.MateUnmapped
			self.MateRef = mate.Ref
			self.MatePos = mate.Pos
		}
		if mate.Flags&sam.Reverse != 0 {
			self.Flags |= sam.MateReverse
		} else {
			self.Flags &^= sam.MateReverse
		}
		if cfg.AddMateCigar && !bam.IsUnmapped(mate) {
			setMateCigarTag(self, mate)
		}
	}
	link(t1, t2)
	link(t2, t1)

	tlen := templateLength(t1, t2)
	t1.TempLen = tlen
	t2.TempLen = -tlen
}

func setMateCigarTag(self, mate *sam.Record) {
	removeTagByName(self, tagMC)
	aux, err := sam.NewAux(sam.Tag{tagMC[0], tagMC[1]}, mate.Cigar.String())
	if err != nil {
		return
	}
	self.AuxFields = append(self.AuxFields, aux)
}

// templateLength computes the signed outer-to-outer span of a mapped pair
// on the same reference, 0 if either end is unmapped or they sit on
// different references.
func templateLength(t1, t2 *sam.Record) int {
	if bam.IsUnmapped(t1) || bam.IsUnmapped(t2) || t1.Ref != t2.Ref {
		return 0
	}
	lo, hi := t1.Pos, t2.End()
	if t2.Pos < lo {
		lo = t2.Pos
	}
	if t1.End() > hi {
		hi = t1.End()
	}
	tlen := hi - lo
	if t1.Pos > t2.Pos || (t1.Pos == t2.Pos && t1.Flags&sam.Reverse != 0) {
		tlen = -tlen
	}
	return tlen
}

// resolveProperPair sets or clears the proper-pair flag on both records
// based on both mapped, same reference, expected orientation and
// acceptable insert size -- unless the caller asked to keep the aligner's
// own decision.
func resolveProperPair(cfg *Config, t1, t2 *sam.Record) {
	if cfg.KeepAlignerProper {
		return
	}
	proper := isProperPair(cfg, t1, t2)
	for _, r := range [...]*sam.Record{t1, t2} {
		if proper {
			r.Flags |= sam.ProperPair
		} else {
			r.Flags &^= sam.ProperPair
		}
	}
}

func isProperPair(cfg *Config, t1, t2 *sam.Record) bool {
	if bam.IsUnmapped(t1) || bam.IsUnmapped(t2) || t1.Ref != t2.Ref {
		return false
	}
	o, ok := orientationOf(t1, t2)
	if !ok || !cfg.Orientations[o] {
		return false
	}
	insert := t1.TempLen
	if insert < 0 {
		insert = -insert
	}
	return insert >= cfg.MinInsertSize && insert <= cfg.MaxInsertSize
}

func orientationOf(t1, t2 *sam.Record) (Orientation, bool) {
	r1, r2 := t1.Flags&sam.Reverse != 0, t2.Flags&sam.Reverse != 0
	if t1.Flags&sam.Read2 != 0 {
		r1, r2 = r2, r1
	}
	switch {
	case !r1 && r2:
		return ForwardReverse, true
	case r1 && !r2:
		return ReverseForward, true
	case !r1 && !r2:
		return ForwardForward, true
	default:
		return ReverseReverse, true
	}
}

// LinkSupplementary clones template, runs TransferFragment against the
// supplementary hit, then sets mate info from the primary hit of the
// opposite end.
func LinkSupplementary(cfg *Config, outHeader *sam.Header, template *sam.Record, supp *sam.Record, oppositePrimary *sam.Record, contam, safeRC bool) (*sam.Record, error) {
	clone := CloneRecord(template)
	if err := TransferFragment(cfg, outHeader, clone, supp, contam, safeRC); err != nil {
		return nil, err
	}
	if oppositePrimary != nil {
		clone.Flags |= sam.Paired
		if bam.IsUnmapped(oppositePrimary) {
			clone.Flags |= sam.MateUnmapped
			clone.MateRef = clone.Ref
			clone.MatePos = clone.Pos
		} else {
			clone.Flags &^= sam.MateUnmapped
			clone.MateRef = oppositePrimary.Ref
			clone.MatePos = oppositePrimary.Pos
			if cfg.AddMateCigar {
				setMateCigarTag(clone, oppositePrimary)
			}
		}
		if oppositePrimary.Flags&sam.Reverse != 0 {
			clone.Flags |= sam.MateReverse
		} else {
			clone.Flags &^= sam.MateReverse
		}
	}
	return clone, nil
}
