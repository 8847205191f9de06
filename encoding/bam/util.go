// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package bam

// CompareQueryName orders two read names using SAM's prescribed query-name
// collation: a byte-wise comparison, except that runs of ASCII digits are
// compared numerically (so "read2" sorts before "read10"). This is the
// comparator the merge driver and the hit grouper both use to detect
// out-of-order or mismatched streams; plain byte-wise lexicographic order
// would misorder multi-digit suffixes.
func CompareQueryName(a, b string) int {
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		ca, cb := a[i], b[j]
		if isDigit(ca) && isDigit(cb) {
			ei := i
			for ei < len(a) && isDigit(a[ei]) {
				ei++
			}
			ej := j
			for ej < len(b) && isDigit(b[ej]) {
				ej++
			}
			na := trimLeadingZeros(a[i:ei])
			nb := trimLeadingZeros(b[j:ej])
			if len(na) != len(nb) {
				if len(na) < len(nb) {
					return -1
				}
				return 1
			}
			if c := compareString(na, nb); c != 0 {
				return c
			}
			i, j = ei, ej
			continue
		}
		if ca != cb {
			if ca < cb {
				return -1
			}
			return 1
		}
		i++
		j++
	}
	switch {
	case len(a)-i < len(b)-j:
		return -1
	case len(a)-i > len(b)-j:
		return 1
	default:
		return 0
	}
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func trimLeadingZeros(s string) string {
	i := 0
	for i < len(s)-1 && s[i] == '0' {
		i++
	}
	return s[i:]
}

func compareString(a, b string) int {
	if a < b {
		return -1
	}
	if a > b {
		return 1
	}
	return 0
}
