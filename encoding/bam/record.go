// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package bam

import (
	"github.com/biogo/hts/sam"
)

// Clone returns a deep-enough copy of r: an independent *sam.Record backed by
// freshly allocated Cigar, Seq, Qual and AuxFields slices, so that mutating
// the copy (trimming, re-flagging, tag rewriting) never touches r. Ref and
// MateRef are reference pointers shared with the header and are copied by
// value, matching sam.Record's own convention.
//
// Clone is the single allocation point the merge driver uses at hit fan-out
// and supplementary expansion: every emitted row must own an independent
// record once more than one downstream owner exists.
func Clone(r *sam.Record) *sam.Record {
	c := GetFromFreePool()
	c.Name = r.Name
	c.Ref = r.Ref
	c.Pos = r.Pos
	c.MapQ = r.MapQ
	c.Flags = r.Flags
	c.MateRef = r.MateRef
	c.MatePos = r.MatePos
	c.TempLen = r.TempLen
	c.Seq = r.Seq
	if r.Seq.Seq != nil {
		c.Seq.Seq = make([]sam.Doublet, len(r.Seq.Seq))
		copy(c.Seq.Seq, r.Seq.Seq)
	}
	if r.Cigar != nil {
		c.Cigar = make(sam.Cigar, len(r.Cigar))
		copy(c.Cigar, r.Cigar)
	}
	if r.Qual != nil {
		c.Qual = make([]byte, len(r.Qual))
		copy(c.Qual, r.Qual)
	}
	if r.AuxFields != nil {
		c.AuxFields = make(sam.AuxFields, len(r.AuxFields))
		for i, a := range r.AuxFields {
			c.AuxFields[i] = append(sam.Aux(nil), a...)
		}
	}
	return c
}
