// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package bam

import (
	"errors"
	"fmt"

	"github.com/biogo/hts/sam"
	"github.com/grailbio/bamjoin/seqtools"
)

// ErrHardClipTagCollision is returned by ClipThreePrimeEnd when the record
// already carries an XB or XQ tag and a hard clip would need to overwrite
// it. The merge core surfaces this as the fatal HardClipTagCollision kind.
var ErrHardClipTagCollision = errors.New("bam: XB/XQ tag already present, refusing to overwrite")

const (
	tagXB = "XB"
	tagXQ = "XQ"
)

// QueryLength returns the number of query-consuming bases (M/I/S/=/X)
// described by c -- the read length implied by the CIGAR alone.
func QueryLength(c sam.Cigar) int {
	n := 0
	for _, op := range c {
		switch op.Type() {
		case sam.CigarMatch, sam.CigarInsertion, sam.CigarSoftClipped, sam.CigarEqual, sam.CigarMismatch:
			n += op.Len()
		}
	}
	return n
}

// splitCigarAtQueryPos returns the prefix of c that consumes exactly the
// first keepQuery query bases, splitting a straddling op if necessary.
// Reference-consuming-only ops (D/N) fully inside the prefix are kept;
// ops entirely at or past the cut point are dropped by the caller, which
// replaces them with a single clip op.
func splitCigarAtQueryPos(c sam.Cigar, keepQuery int) sam.Cigar {
	if keepQuery <= 0 {
		out := sam.Cigar{}
		for _, op := range c {
			if op.Type() == sam.CigarHardClipped {
				out = append(out, op)
				continue
			}
			break
		}
		return out
	}
	out := make(sam.Cigar, 0, len(c))
	consumed := 0
	for _, op := range c {
		con := op.Type().Consumes()
		if con.Query == 0 {
			out = append(out, op)
			continue
		}
		if consumed+op.Len() <= keepQuery {
			out = append(out, op)
			consumed += op.Len()
			if consumed == keepQuery {
				break
			}
			continue
		}
		// op straddles the cut point; keep only the portion before it.
		head := keepQuery - consumed
		if head > 0 {
			out = append(out, sam.NewCigarOp(op.Type(), head))
		}
		break
	}
	return out
}

// ClipThreePrimeEnd rewrites rec's CIGAR so that the 1-based read positions
// [clipFrom1Based, readLength] become a single clip operation of type op
// (sam.CigarSoftClipped or sam.CigarHardClipped). Read positions are
// counted along the record's stored (reference-oriented) sequence.
//
// For a hard clip, the bases and qualities in that window are removed from
// the record and stashed into tags XB/XQ in sequencer order -- that is,
// reverse-complemented and reversed respectively when the record is on the
// reverse strand, so that appending the decoded tag back after the
// remaining bases reconstructs the sequence as it existed before clipping.
// It is an error to hard-clip a record that already carries XB or XQ.
func ClipThreePrimeEnd(rec *sam.Record, clipFrom1Based int, op sam.CigarOpType) error {
	readLen := QueryLength(rec.Cigar)
	if clipFrom1Based < 1 {
		clipFrom1Based = 1
	}
	if clipFrom1Based > readLen {
		return nil // nothing in [clipFrom, readLen] to clip
	}
	keep := clipFrom1Based - 1
	clipLen := readLen - keep

	if op == sam.CigarHardClipped {
		if _, ok := rec.Tag([]byte(tagXB)); ok {
			return ErrHardClipTagCollision
		}
		if _, ok := rec.Tag([]byte(tagXQ)); ok {
			return ErrHardClipTagCollision
		}
	}

	newCigar := splitCigarAtQueryPos(rec.Cigar, keep)
	if clipLen > 0 {
		newCigar = append(newCigar, sam.NewCigarOp(op, clipLen))
	}

	if op == sam.CigarHardClipped {
		full := rec.Seq.Expand()
		window := append([]byte(nil), full[keep:readLen]...)
		prefix := full[:keep]

		reverse := rec.Flags&sam.Reverse != 0
		if reverse {
			seqtools.ReverseComp8Inplace(window)
		}
		aux, err := sam.NewAux(sam.Tag{tagXB[0], tagXB[1]}, sam.Text(window))
		if err != nil {
			return fmt.Errorf("bam: stashing XB: %w", err)
		}
		rec.AuxFields = append(rec.AuxFields, aux)

		if len(rec.Qual) == len(full) {
			qWindow := append([]byte(nil), rec.Qual[keep:readLen]...)
			if reverse {
				seqtools.ReverseInplace(qWindow)
			}
			ascii := make([]byte, len(qWindow))
			for i, q := range qWindow {
				ascii[i] = q + 33
			}
			auxQ, err := sam.NewAux(sam.Tag{tagXQ[0], tagXQ[1]}, sam.Text(ascii))
			if err != nil {
				return fmt.Errorf("bam: stashing XQ: %w", err)
			}
			rec.AuxFields = append(rec.AuxFields, auxQ)
			rec.Qual = append([]byte(nil), rec.Qual[:keep]...)
		}
		rec.Seq = sam.NewSeq(append([]byte(nil), prefix...))
	}

	rec.Cigar = newCigar
	return nil
}

// dropCigarPrefix splits c into any pre-existing leading hard clip, the
// CIGAR ops remaining once the next dropQuery query-consuming bases are
// removed, and the number of reference bases that removed prefix consumed
// (the caller must advance rec.Pos by this much).
func dropCigarPrefix(c sam.Cigar, dropQuery int) (leadingHardClip, remainder sam.Cigar, refConsumed int) {
	n := 0
	for n < len(c) && c[n].Type() == sam.CigarHardClipped {
		n++
	}
	leadingHardClip, rest := c[:n], c[n:]
	if dropQuery <= 0 {
		return leadingHardClip, append(sam.Cigar{}, rest...), 0
	}

	consumed := 0
	i := 0
	for ; i < len(rest); i++ {
		op := rest[i]
		con := op.Type().Consumes()
		if con.Query == 0 {
			refConsumed += con.Reference * op.Len()
			continue
		}
		if consumed+op.Len() <= dropQuery {
			consumed += op.Len()
			refConsumed += con.Reference * op.Len()
			if consumed == dropQuery {
				i++
				break
			}
			continue
		}
		// op straddles the cut point; keep only the tail portion of it.
		head := dropQuery - consumed
		refConsumed += con.Reference * head
		tail := op.Len() - head
		remainder = append(sam.Cigar{}, rest[i+1:]...)
		if tail > 0 {
			remainder = append(sam.Cigar{sam.NewCigarOp(op.Type(), tail)}, remainder...)
		}
		return leadingHardClip, remainder, refConsumed
	}
	remainder = append(sam.Cigar{}, rest[i:]...)
	return leadingHardClip, remainder, refConsumed
}

// ClipReferenceLowEnd rewrites rec's CIGAR so that the 1-based read
// positions [1, clipThrough1Based] (counted, like ClipThreePrimeEnd's
// argument, along the record's stored, reference-oriented sequence) become
// a single clip operation of type op at the start of the CIGAR, advancing
// rec.Pos past the reference bases the clip removes.
//
// This is the mirror image of ClipThreePrimeEnd: that one only ever trims
// the reference-high end of an alignment, so a reverse-strand mate's
// reference-low overlap with a forward mate has to go through this one
// instead. Hard-clip stashing and collision handling mirror
// ClipThreePrimeEnd exactly.
func ClipReferenceLowEnd(rec *sam.Record, clipThrough1Based int, op sam.CigarOpType) error {
	if clipThrough1Based < 1 {
		return nil
	}
	readLen := QueryLength(rec.Cigar)
	if clipThrough1Based > readLen {
		clipThrough1Based = readLen
	}

	if op == sam.CigarHardClipped {
		if _, ok := rec.Tag([]byte(tagXB)); ok {
			return ErrHardClipTagCollision
		}
		if _, ok := rec.Tag([]byte(tagXQ)); ok {
			return ErrHardClipTagCollision
		}
	}

	leadingHardClip, remainder, refConsumed := dropCigarPrefix(rec.Cigar, clipThrough1Based)
	newCigar := append(sam.Cigar{}, leadingHardClip...)
	if clipThrough1Based > 0 {
		newCigar = append(newCigar, sam.NewCigarOp(op, clipThrough1Based))
	}
	newCigar = append(newCigar, remainder...)

	if op == sam.CigarHardClipped {
		full := rec.Seq.Expand()
		window := append([]byte(nil), full[:clipThrough1Based]...)
		suffix := append([]byte(nil), full[clipThrough1Based:]...)

		reverse := rec.Flags&sam.Reverse != 0
		if reverse {
			seqtools.ReverseComp8Inplace(window)
		}
		aux, err := sam.NewAux(sam.Tag{tagXB[0], tagXB[1]}, sam.Text(window))
		if err != nil {
			return fmt.Errorf("bam: stashing XB: %w", err)
		}
		rec.AuxFields = append(rec.AuxFields, aux)

		if len(rec.Qual) == len(full) {
			qWindow := append([]byte(nil), rec.Qual[:clipThrough1Based]...)
			if reverse {
				seqtools.ReverseInplace(qWindow)
			}
			ascii := make([]byte, len(qWindow))
			for i, q := range qWindow {
				ascii[i] = q + 33
			}
			auxQ, err := sam.NewAux(sam.Tag{tagXQ[0], tagXQ[1]}, sam.Text(ascii))
			if err != nil {
				return fmt.Errorf("bam: stashing XQ: %w", err)
			}
			rec.AuxFields = append(rec.AuxFields, auxQ)
			rec.Qual = append([]byte(nil), rec.Qual[clipThrough1Based:]...)
		}
		rec.Seq = sam.NewSeq(suffix)
	}

	rec.Pos += refConsumed
	rec.Cigar = newCigar
	return nil
}

// ReadPositionAtRefIgnoringSoftclip returns the 1-based read position
// aligned to refPos, treating soft clips as if they consumed reference
// (matched) bases -- i.e. the read's effective reference span is extended
// by its soft-clip lengths. It returns 0 when refPos lies outside that
// extended span. When refPos falls inside a deletion, the position of the
// last read base before the deletion is returned.
func ReadPositionAtRefIgnoringSoftclip(rec *sam.Record, refPos int) int {
	// rec.Pos is the first aligned base; leading soft clips sit to its left.
	ref := rec.Pos
	for _, op := range rec.Cigar {
		if op.Type() == sam.CigarHardClipped {
			continue
		}
		if op.Type() != sam.CigarSoftClipped {
			break
		}
		ref -= op.Len()
	}
	query := 0
	for _, op := range rec.Cigar {
		n := op.Len()
		switch op.Type() {
		case sam.CigarMatch, sam.CigarEqual, sam.CigarMismatch, sam.CigarSoftClipped:
			if refPos >= ref && refPos < ref+n {
				return query + (refPos - ref) + 1
			}
			ref += n
			query += n
		case sam.CigarInsertion:
			query += n
		case sam.CigarDeletion, sam.CigarSkipped:
			if refPos >= ref && refPos < ref+n {
				return query
			}
			ref += n
		case sam.CigarHardClipped, sam.CigarPadded:
			// consumes neither.
		}
	}
	return 0
}

// SoftClipOverhangEnd soft-clips the portion of rec's alignment that falls
// past the end of the reference sequence (length refSeqLength). If the
// record's CIGAR already ends in a soft clip, that clip is extended rather
// than a second one being appended next to it.
func SoftClipOverhangEnd(rec *sam.Record, refSeqLength int) error {
	if rec.Ref == nil || rec.Flags&sam.Unmapped != 0 {
		return nil
	}
	if rec.End() <= refSeqLength {
		return nil
	}
	clipFrom := ReadPositionAtRefIgnoringSoftclip(rec, refSeqLength)
	if clipFrom == 0 {
		// the whole alignment is past the end of the reference.
		clipFrom = 1
	}
	return ClipThreePrimeEnd(rec, clipFrom, sam.CigarSoftClipped)
}
