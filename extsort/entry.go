// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package extsort

import "bytes"

// entry is the sortable, on-disk unit: a record's coordinate key plus its
// SAM-text encoded body. ordinal breaks ties between otherwise-identical
// coordinates with a stable, Sorter-wide monotonic sequence number.
type entry struct {
	key     coord
	flags   uint16
	ordinal uint64
	body    []byte
}

// compare orders entries by coordinate
// ascending (unmapped last), ties broken by flag bits, then by the stable
// input-order ordinal.
func (e entry) compare(o entry) int {
	if e.key != o.key {
		if e.key < o.key {
			return -1
		}
		return 1
	}
	if e.flags != o.flags {
		if e.flags < o.flags {
			return -1
		}
		return 1
	}
	if e.ordinal != o.ordinal {
		if e.ordinal < o.ordinal {
			return -1
		}
		return 1
	}
	return bytes.Compare(e.body, o.body)
}
