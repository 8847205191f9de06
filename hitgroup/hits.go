// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package hitgroup

import "github.com/biogo/hts/sam"

// EndHits is the set of alignment records seen for one end of a read (or
// for an unpaired fragment, its only end): at most one primary hit, any
// number of secondary hits, and any number of supplementary hits.
type EndHits struct {
	Primary       *sam.Record
	Secondary     []*sam.Record
	Supplementary []*sam.Record
}

// Count returns the number of primary+secondary hits for this end (the
// "hits.count" the merge driver consults to decide whether to
// clone the template).
func (e *EndHits) Count() int {
	n := len(e.Secondary)
	if e.Primary != nil {
		n++
	}
	return n
}

// HitsForRead is the grouping produced by the hit grouper for one read
// name: the End1/End2 hit sets (End2 unused for unpaired fragments) plus
// whether the underlying template is paired.
type HitsForRead struct {
	Name   string
	Paired bool
	End1   EndHits
	End2   EndHits
}

// HasSupplementary reports whether either end carries a supplementary hit.
func (h *HitsForRead) HasSupplementary() bool {
	return len(h.End1.Supplementary) > 0 || len(h.End2.Supplementary) > 0
}

func (h *HitsForRead) end(isRead2 bool) *EndHits {
	if isRead2 {
		return &h.End2
	}
	return &h.End1
}
