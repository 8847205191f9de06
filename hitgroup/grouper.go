// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package hitgroup

import (
	"errors"
	"fmt"

	"github.com/biogo/hts/sam"
	"github.com/grailbio/bamjoin/encoding/bam"
)

// ErrOutOfOrder is returned by Err after Scan returns false if the
// underlying source was not non-decreasing by query name. The merge
// driver re-raises this as its own fatal OutOfOrderAligned kind.
var ErrOutOfOrder = errors.New("hitgroup: aligned stream not sorted by query name")

// Source is the pull-style iterator contract the grouper reads from --
// the same Scan/Record/Err/Close shape as
// bamprovider.Iterator; a reader without that shape, such as *bam.Reader,
// needs a small adapter (cmd/bammerge/bamsource.go is one).
type Source interface {
	Scan() bool
	Record() *sam.Record
	Err() error
	Close() error
}

// SkipFunc decides, per record, whether a hit should be dropped from its
// group entirely before grouping (e.g. excluding secondary alignments
// when Config.IncludeSecondary is false).
type SkipFunc func(*sam.Record) bool

// PrimarySelector is the externally supplied, per-read-group policy that
// marks exactly one hit per end as primary. The core ships no
// implementation of its own (primary-hit election is an explicit
// Non-goal); tests use a trivial "first wins" stand-in.
type PrimarySelector interface {
	SelectPrimary(hits *HitsForRead)
}

// Grouper turns a query-name sorted Source into a lazy sequence of
// HitsForRead groups.
type Grouper struct {
	src      Source
	skip     SkipFunc
	selector PrimarySelector

	pending *sam.Record
	lastName string
	haveLast bool

	cur *HitsForRead
	err error
}

// NewGrouper returns a Grouper reading from src. skip may be nil (keep
// every record); selector must not be nil.
func NewGrouper(src Source, skip SkipFunc, selector PrimarySelector) *Grouper {
	return &Grouper{src: src, skip: skip, selector: selector}
}

// Scan advances to the next non-empty HitsForRead group, returning false
// at end of stream or on error (distinguishable via Err).
func (g *Grouper) Scan() bool {
	if g.err != nil {
		return false
	}
	for {
		group, name, ok, err := g.nextGroup()
		if err != nil {
			g.err = err
			return false
		}
		if !ok {
			return false
		}
		if !groupIsEmpty(group) {
			group.Name = name
			g.selector.SelectPrimary(group)
			g.cur = group
			return true
		}
		// every record in the group was filtered out by skip: drop silently
		// and continue to the next name.
	}
}

// Group returns the HitsForRead most recently produced by Scan.
func (g *Grouper) Group() *HitsForRead { return g.cur }

// Err returns the first error encountered, including ErrOutOfOrder.
func (g *Grouper) Err() error {
	if g.err != nil {
		return g.err
	}
	return g.src.Err()
}

// Close releases the underlying source.
func (g *Grouper) Close() error { return g.src.Close() }

// nextGroup consumes every record sharing the next distinct read name and
// returns the grouped hits for it (which may be groupIsEmpty if every
// record in it was filtered by skip).
func (g *Grouper) nextGroup() (*HitsForRead, string, bool, error) {
	rec, ok, err := g.pull()
	if err != nil {
		return nil, "", false, err
	}
	if !ok {
		return nil, "", false, nil
	}
	name := rec.Name
	group := &HitsForRead{}
	for {
		g.addRecord(group, rec)
		next, ok, err := g.pull()
		if err != nil {
			return nil, "", false, err
		}
		if !ok {
			break
		}
		if next.Name != name {
			g.unpull(next)
			break
		}
		rec = next
	}
	return group, name, true, nil
}

// pull reads the next record from the source, enforcing non-decreasing
// query-name order.
func (g *Grouper) pull() (*sam.Record, bool, error) {
	if g.pending != nil {
		r := g.pending
		g.pending = nil
		return r, true, nil
	}
	if !g.src.Scan() {
		if err := g.src.Err(); err != nil {
			return nil, false, err
		}
		return nil, false, nil
	}
	rec := g.src.Record()
	if g.haveLast && bam.CompareQueryName(rec.Name, g.lastName) < 0 {
		return nil, false, fmt.Errorf("%w: %q seen after %q", ErrOutOfOrder, rec.Name, g.lastName)
	}
	g.lastName = rec.Name
	g.haveLast = true
	return rec, true, nil
}

func (g *Grouper) unpull(r *sam.Record) { g.pending = r }

func (g *Grouper) addRecord(group *HitsForRead, rec *sam.Record) {
	if g.skip != nil && g.skip(rec) {
		return
	}
	if bam.IsPaired(rec) {
		group.Paired = true
	}
	end := group.end(bam.IsRead2(rec))
	switch {
	case bam.IsSupplementary(rec):
		end.Supplementary = append(end.Supplementary, rec)
	case bam.IsPrimary(rec):
		end.Primary = rec
	default:
		end.Secondary = append(end.Secondary, rec)
	}
}

func groupIsEmpty(h *HitsForRead) bool {
	return h.End1.Primary == nil && len(h.End1.Secondary) == 0 && len(h.End1.Supplementary) == 0 &&
		h.End2.Primary == nil && len(h.End2.Secondary) == 0 && len(h.End2.Supplementary) == 0
}
