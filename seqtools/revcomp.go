// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package seqtools

var revComp8Table = [256]byte{
	'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N',
	'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N',
	'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N',
	'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N',
	'N', 'T', 'N', 'G', 'N', 'N', 'N', 'C', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N',
	'N', 'N', 'N', 'N', 'A', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N',
	'N', 'T', 'N', 'G', 'N', 'N', 'N', 'C', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N',
	'N', 'N', 'N', 'N', 'A', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N',
	'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N',
	'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N',
	'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N',
	'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N',
	'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N',
	'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N',
	'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N',
	'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N', 'N',
}

// ReverseComp8Inplace reverse-complements ascii8 in place, assuming ASCII
// base encoding. It maps 'A'/'a' to 'T', 'C'/'c' to 'G', 'G'/'g' to 'C',
// 'T'/'t' to 'A', and everything else (including 'N') to 'N'.
func ReverseComp8Inplace(ascii8 []byte) {
	n := len(ascii8)
	half := n >> 1
	for i, j := 0, n-1; i != half; i, j = i+1, j-1 {
		ascii8[i], ascii8[j] = revComp8Table[ascii8[j]], revComp8Table[ascii8[i]]
	}
	if n&1 == 1 {
		ascii8[half] = revComp8Table[ascii8[half]]
	}
}

// ReverseComp8 writes the reverse-complement of src to dst, assuming ASCII
// base encoding. It panics if len(dst) != len(src).
func ReverseComp8(dst, src []byte) {
	if len(dst) != len(src) {
		panic("seqtools.ReverseComp8: len(dst) != len(src)")
	}
	n := len(src)
	for i, j := 0, n-1; i != n; i, j = i+1, j-1 {
		dst[i] = revComp8Table[src[j]]
	}
}

// ReverseInplace reverses buf in place. Used to put per-base qualities back
// into sequencer order after a strand flip; unlike bases, qualities are not
// complemented, only reversed.
func ReverseInplace(buf []byte) {
	for i, j := 0, len(buf)-1; i < j; i, j = i+1, j-1 {
		buf[i], buf[j] = buf[j], buf[i]
	}
}
