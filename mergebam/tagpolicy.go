// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package mergebam

import (
	"github.com/biogo/hts/sam"
	"github.com/grailbio/bamjoin/encoding/bam"
	"github.com/grailbio/bamjoin/seqtools"
	"github.com/grailbio/base/log"
)

// IsReservedTag reports whether tag is reserved: its first byte is an
// ASCII lowercase letter, or one of 'X', 'Y', 'Z'. Reserved tags are
// carried from the unaligned template and never overridden by the
// aligner's output unless explicitly listed in a retain set.
func IsReservedTag(tag [2]byte) bool {
	b := tag[0]
	return (b >= 'a' && b <= 'z') || b == 'X' || b == 'Y' || b == 'Z'
}

func tagName(a sam.Aux) [2]byte { return [2]byte{a[0], a[1]} }

// CloneRecord returns an independent copy of r, suitable for the single
// fan-out point the merge driver uses when more than one downstream owner
// needs the template (multiple hits, supplementary expansion).
func CloneRecord(r *sam.Record) *sam.Record { return bam.Clone(r) }

// TransferTags copies aux.Fields from aligned onto template following the
// reserved/retain/remove rule: a tag T is set on template iff
// (!IsReservedTag(T) || retain[T]) && !remove[T]. The remove set always
// wins; any tag both retained and removed was already resolved by
// Config.Validate. A tag that collides with an existing template tag of
// the same name is logged at debug level (TagOverridden) and overwritten.
func TransferTags(template, aligned *sam.Record, retain, remove map[string]bool) {
	for _, a := range aligned.AuxFields {
		name := tagName(a)
		tagStr := string(name[:])
		if remove[tagStr] {
			continue
		}
		if IsReservedTag(name) && !retain[tagStr] {
			continue
		}
		if _, ok := template.Tag(name[:]); ok {
			log.Debug.Printf("mergebam: tag %s overridden by aligner output", tagStr)
			removeTagFrom(template, name)
		}
		template.AuxFields = append(template.AuxFields, append(sam.Aux(nil), a...))
	}
}

func removeTagFrom(r *sam.Record, name [2]byte) {
	for i, a := range r.AuxFields {
		if tagName(a) == name {
			r.AuxFields = append(r.AuxFields[:i], r.AuxFields[i+1:]...)
			return
		}
	}
}

// ReverseComplementInPlace flips rec's sequence and qualities back into
// reference orientation for a negative-strand alignment: bases are
// reverse-complemented, qualities are reversed, tags named in rcTags are
// reverse-complemented (treated as base sequences), and tags named in
// revTags are reversed (treated as per-base annotation strings). When fast
// is true, the IUPAC-safety pre-scan is skipped -- callers that already
// know their input alphabet is ACGTN use this to avoid a second pass over
// the sequence.
func ReverseComplementInPlace(rec *sam.Record, rcTags, revTags map[string]bool, fast bool) {
	bases := rec.Seq.Expand()
	if !fast {
		for _, b := range bases {
			switch b {
			case 'A', 'C', 'G', 'T', 'N', 'a', 'c', 'g', 't', 'n':
			default:
				log.Debug.Printf("mergebam: non-IUPAC base %q in record %s, mapped to N on reverse-complement", b, rec.Name)
			}
		}
	}
	seqtools.ReverseComp8Inplace(bases)
	rec.Seq = sam.NewSeq(bases)
	seqtools.ReverseInplace(rec.Qual)

	for i, a := range rec.AuxFields {
		name := tagName(a)
		tagStr := string(name[:])
		if !rcTags[tagStr] && !revTags[tagStr] {
			continue
		}
		val, ok := a.Value().(string)
		if !ok {
			continue
		}
		buf := []byte(val)
		if rcTags[tagStr] {
			seqtools.ReverseComp8Inplace(buf)
		} else {
			seqtools.ReverseInplace(buf)
		}
		newAux, err := sam.NewAux(sam.Tag(name), sam.Text(buf))
		if err == nil {
			rec.AuxFields[i] = newAux
		}
	}
}
