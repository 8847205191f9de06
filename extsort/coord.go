// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package extsort

import (
	"fmt"

	"github.com/biogo/hts/sam"
)

// coord encodes (reference index, position, reverse-strand bit) into one
// comparable uint64 so records sort into SAM coordinate order by a plain
// numeric comparison: increasing reference id, then increasing position,
// then forward before reverse. Unmapped records get a sentinel coord
// larger than any mapped one, so they always sort last.
type coord uint64

// unmappedCoord is (refid,pos)=(-1,-1), sorting after every mapped coord.
const unmappedCoord coord = 0x7ffffffffffffffe

func coordOf(rec *sam.Record) coord {
	var c coord
	if rec.Ref == nil || rec.Flags&sam.Unmapped != 0 {
		c = unmappedCoord
	} else {
		c = coord(rec.Ref.ID())<<33 | coord(rec.Pos)<<1
	}
	if rec.Flags&sam.Reverse != 0 {
		c |= 1
	}
	return c
}

func (c coord) String() string {
	if c&unmappedCoord == unmappedCoord {
		return "(unmapped)"
	}
	refid := int32(c >> 33)
	pos := int32((c & 0x1ffffffff) >> 1)
	return fmt.Sprintf("(%d,%d,rev=%v)", refid, pos, c&1 != 0)
}
