// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package mergebam

import (
	"fmt"

	"github.com/biogo/hts/sam"
	"github.com/grailbio/bamjoin/encoding/bam"
	"github.com/grailbio/base/log"
)

const (
	tagXT = "XT"
	tagNM = "NM"
	tagOA = "OA"
	tagCO = "CO"
)

// TransferFragment copies the alignment described by aligned onto template
// (an unmapped record straight from the unaligned source), in place,
// following the nine-step transfer sequence. outHeader is the header the
// result will eventually be written under; aligned's reference is resolved
// against it by name so a differently-ordered aligner dictionary never
// corrupts the record. unmapForContam requests the contamination
// unmap path using cfg.UnmapStrategy; needsSafeRC lets a caller that
// already validated the alphabet skip ReverseComplementInPlace's
// (redundant) IUPAC scan.
func TransferFragment(cfg *Config, outHeader *sam.Header, template, aligned *sam.Record, unmapForContam, needsSafeRC bool) error {
	// Step 1.
	if !bam.IsUnmapped(template) {
		return errorf(UnalignedBamContainsMapped, "template %s already mapped", template.Name)
	}

	// Step 2.
	TransferTags(template, aligned, cfg.AttrsRetain, cfg.AttrsRemove)

	// Step 3.
	origLen := template.Seq.Length
	alignedMapped := !bam.IsUnmapped(aligned)
	template.Flags = (template.Flags &^ (sam.Unmapped | sam.Secondary | sam.Supplementary)) |
		(aligned.Flags & (sam.Unmapped | sam.Secondary | sam.Supplementary | sam.Reverse))
	if alignedMapped {
		ref, err := referenceByName(outHeader, aligned.Ref)
		if err != nil {
			return fmt.Errorf("mergebam: resolving reference %s: %w", aligned.Ref.Name(), err)
		}
		template.Ref = ref
		template.Pos = aligned.Pos
		template.Cigar = append(sam.Cigar(nil), aligned.Cigar...)
		template.MapQ = aligned.MapQ
		if bam.IsPaired(template) {
			if aligned.Flags&sam.ProperPair != 0 {
				template.Flags |= sam.ProperPair
			} else {
				template.Flags &^= sam.ProperPair
			}
		}
	} else {
		template.Ref = nil
		template.Pos = -1
		template.Cigar = nil
		template.MapQ = 0
	}

	// Step 4.
	if template.Flags&sam.Reverse != 0 {
		ReverseComplementInPlace(template, cfg.RCTags, cfg.RevTags, needsSafeRC)
	}

	// Step 5: re-pad for bases the aligner never saw (5' trim, 3' not-written).
	if alignedMapped {
		trim := 0
		if bam.IsPaired(template) && bam.IsRead2(template) {
			trim = cfg.Read2Trim
		} else {
			trim = cfg.Read1Trim
		}
		notWritten := (origLen - trim) - bam.QueryLength(template.Cigar)
		if notWritten < 0 {
			notWritten = 0
		}
		frontClip, backClip := trim, notWritten
		if template.Flags&sam.Reverse != 0 {
			frontClip, backClip = notWritten, trim
		}
		padCigar(template, frontClip, backClip)
	}

	// Step 6: end-of-reference overhang, on the read and on the mate-CIGAR
	// tag. The mate-CIGAR tag itself is derived fresh from each mate's
	// fully-clipped CIGAR during mate linkage (pair fixer), so there is
	// nothing further to do to MC here.
	if alignedMapped {
		if err := bam.SoftClipOverhangEnd(template, template.Ref.Len()); err != nil {
			return fmt.Errorf("mergebam: overhang clip: %w", err)
		}
	}

	// Step 7: adapter clip from XT (1-based start) to the read's end.
	if cfg.ClipAdapters && alignedMapped {
		if xt, ok := template.Tag([]byte(tagXT)); ok {
			if start, ok := auxInt(xt); ok {
				if err := bam.ClipThreePrimeEnd(template, start, sam.CigarSoftClipped); err != nil {
					return fmt.Errorf("mergebam: adapter clip: %w", err)
				}
			}
		}
	}

	// Step 8: unmap if the CIGAR maps nothing to the reference, or the
	// alignment now falls entirely past the end of the reference.
	if alignedMapped {
		refLen, _ := template.Cigar.Lengths()
		if refLen == 0 || template.Pos >= template.Ref.Len() {
			log.Error.Printf("mergebam: %s: alignment maps zero reference bases, unmapping", template.Name)
			template.Flags |= sam.Unmapped
			template.Flags &^= sam.ProperPair
			template.Ref = nil
			template.Pos = -1
			template.Cigar = nil
			template.MapQ = 0
			alignedMapped = false
		}
	}

	// Step 9: contamination unmapping.
	if unmapForContam && alignedMapped {
		unmapForContamination(cfg, template)
	}

	return nil
}

// padCigar prepends/appends soft-clip operations of length front/back to
// rec's CIGAR -- distinct from bam.ClipThreePrimeEnd, which removes aligned
// bases rather than restoring ones the aligner never saw.
func padCigar(rec *sam.Record, front, back int) {
	if front <= 0 && back <= 0 {
		return
	}
	out := make(sam.Cigar, 0, len(rec.Cigar)+2)
	if front > 0 {
		out = append(out, sam.NewCigarOp(sam.CigarSoftClipped, front))
	}
	out = append(out, rec.Cigar...)
	if back > 0 {
		out = append(out, sam.NewCigarOp(sam.CigarSoftClipped, back))
	}
	rec.Cigar = out
}

func auxInt(a sam.Aux) (int, bool) {
	switch v := a.Value().(type) {
	case int8:
		return int(v), true
	case uint8:
		return int(v), true
	case int16:
		return int(v), true
	case uint16:
		return int(v), true
	case int32:
		return int(v), true
	case uint32:
		return int(v), true
	default:
		return 0, false
	}
}

// unmapForContamination applies cfg.UnmapStrategy's facets to rec, which is
// presumed mapped: it optionally stashes the original mapping into OA,
// optionally clears the mapping fields, always sets the unmapped flag, and
// always appends a contamination note to CO.
func unmapForContamination(cfg *Config, rec *sam.Record) {
	facets := unmapStrategyFacets[cfg.UnmapStrategy]

	if facets.populateOA {
		nm := 0
		if a, ok := rec.Tag([]byte(tagNM)); ok {
			nm, _ = auxInt(a)
		}
		oaEntry := fmt.Sprintf("%s,%d,%s,%d,%d;", rec.Ref.Name(), rec.Pos+1, rec.Cigar.String(), rec.MapQ, nm)
		appendTagText(rec, tagOA, oaEntry, "")
	}
	if facets.clearMapping {
		rec.Ref = nil
		rec.Pos = -1
		removeTagByName(rec, tagNM)
	}
	rec.Flags |= sam.Unmapped
	rec.Flags &^= sam.ProperPair
	if facets.clearMapQCig {
		rec.MapQ = 0
		rec.Cigar = nil
	}
	if facets.validateEmpty && rec.Ref != nil {
		log.Debug.Printf("mergebam: %s: unmapped by contamination but UnmapStrategy leaves mapping fields set", rec.Name)
	}
	appendTagText(rec, tagCO, "Cross-species contamination", " | ")
}

// appendTagText sets tag on rec to the concatenation of its current value
// (if any) and suffix, joined by sep when the tag already carries text.
func appendTagText(rec *sam.Record, tag, suffix, sep string) {
	existing := ""
	if a, ok := rec.Tag([]byte(tag)); ok {
		if s, ok := a.Value().(string); ok {
			existing = s
		}
	}
	var value string
	if existing == "" {
		value = suffix
	} else {
		value = existing + sep + suffix
	}
	removeTagByName(rec, tag)
	if aux, err := sam.NewAux(sam.Tag{tag[0], tag[1]}, value); err == nil {
		rec.AuxFields = append(rec.AuxFields, aux)
	}
}

func removeTagByName(rec *sam.Record, tag string) {
	name := [2]byte{tag[0], tag[1]}
	for i, a := range rec.AuxFields {
		if tagName(a) == name {
			rec.AuxFields = append(rec.AuxFields[:i], rec.AuxFields[i+1:]...)
			return
		}
	}
}

// TransferPair applies TransferFragment to each non-nil side of a pair,
// then the pair fixer's overlap clipping and mate-info/proper-pair
// resolution. Either t1/a1 or t2/a2 may be nil for a hit that only placed
// one end.
func TransferPair(cfg *Config, outHeader *sam.Header, t1, t2, a1, a2 *sam.Record, contam, safeRC bool) error {
	if t1 != nil && a1 != nil {
		if err := TransferFragment(cfg, outHeader, t1, a1, contam, safeRC); err != nil {
			return err
		}
	}
	if t2 != nil && a2 != nil {
		if err := TransferFragment(cfg, outHeader, t2, a2, contam, safeRC); err != nil {
			return err
		}
	}
	if t1 != nil && t2 != nil {
		if err := FixPair(cfg, t1, t2); err != nil {
			if err == bam.ErrHardClipTagCollision {
				return errorf(HardClipTagCollision, "%s: %v", t1.Name, err)
			}
			return err
		}
	}
	return nil
}
