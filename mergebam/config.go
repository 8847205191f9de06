// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package mergebam

import (
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
)

// SortOrder names the order the output sink emits records in.
type SortOrder int

const (
	// Coordinate orders output by (reference index, position, strand),
	// routed through the external sort.
	Coordinate SortOrder = iota
	// QueryName streams output in the merge driver's natural visitation
	// order, grouped by read name.
	QueryName
	// Unsorted passes records straight through without reordering.
	Unsorted
)

// UnmapStrategy controls how a contamination-flagged record is converted
// to unmapped. The three boolean facets below are
// looked up per strategy rather than modeled as a type hierarchy.
type UnmapStrategy int

const (
	// DoNotChange leaves the mapping fields untouched aside from setting
	// the unmapped flag (an intentionally invalid record, for callers that
	// want to inspect the original alignment downstream).
	DoNotChange UnmapStrategy = iota
	// DoNotChangeInvalid is identical to DoNotChange, but additionally
	// exempts the record from the "unmapped implies ref=NONE" invariant
	// check.
	DoNotChangeInvalid
	// CopyToTag copies the original mapping into OA before clearing it.
	CopyToTag
	// MoveToTag is CopyToTag plus clearing MapQ and CIGAR so the record is
	// a fully valid unmapped record.
	MoveToTag
)

type unmapFacets struct {
	populateOA    bool
	clearMapping  bool
	clearMapQCig  bool
	validateEmpty bool
}

var unmapStrategyFacets = map[UnmapStrategy]unmapFacets{
	DoNotChange:        {populateOA: false, clearMapping: false, clearMapQCig: false, validateEmpty: true},
	DoNotChangeInvalid: {populateOA: false, clearMapping: false, clearMapQCig: false, validateEmpty: false},
	CopyToTag:          {populateOA: true, clearMapping: true, clearMapQCig: false, validateEmpty: true},
	MoveToTag:          {populateOA: true, clearMapping: true, clearMapQCig: true, validateEmpty: true},
}

// Orientation is one member of the expected-orientations set used to
// decide the proper-pair flag.
type Orientation int

const (
	// ForwardReverse: read1 forward, read2 reverse (the common "FR" case).
	ForwardReverse Orientation = iota
	// ReverseForward: read1 reverse, read2 forward.
	ReverseForward
	// ForwardForward: both reads on the forward strand.
	ForwardForward
	// ReverseReverse: both reads on the reverse strand.
	ReverseReverse
)

// Config carries every knob the merge core exposes. It has
// defaults (DefaultConfig) and a Validate method that returns the first
// structural problem found, grounded on markduplicates.Opts + validate.go.
type Config struct {
	ClipAdapters  bool
	Bisulfite     bool
	AlignedOnly   bool
	AttrsRetain   map[string]bool
	AttrsRemove   map[string]bool
	Read1Trim     int
	Read2Trim     int
	Orientations  map[Orientation]bool
	SortOrder     SortOrder
	AddMateCigar  bool
	UnmapContam   bool
	UnmapStrategy UnmapStrategy

	ClipOverlapping     bool
	HardClipOverlapping bool
	IncludeSecondary    bool
	KeepAlignerProper   bool
	AddProgramTag       bool
	ProgramID           string

	MaxRecordsInRAM int

	MinInsertSize int
	MaxInsertSize int

	// RCTags and RevTags name the aux tags that must be flipped alongside
	// the primary sequence/quality when a record's resolved strand is
	// reverse: RCTags hold per-base sequence data and are
	// reverse-complemented, RevTags hold per-base annotation data (e.g.
	// secondary quality scores) and are only reversed. The SAM spec's own
	// secondary-call tags are the natural default.
	RCTags  map[string]bool
	RevTags map[string]bool
}

// DefaultConfig returns a Config with sane, explicit
// defaults (grounded on markduplicates.Opts's commandline-default pattern).
func DefaultConfig() Config {
	return Config{
		Orientations:    map[Orientation]bool{ForwardReverse: true, ReverseForward: true},
		SortOrder:       Coordinate,
		UnmapStrategy:   MoveToTag,
		MaxRecordsInRAM: 500000,
		MinInsertSize:   0,
		MaxInsertSize:   1000,
		RCTags:          map[string]bool{"E2": true},
		RevTags:         map[string]bool{"U2": true},
	}
}

// Validate resolves attribute collisions (remove wins over retain, logged)
// and returns the first structural error found, as a
// *errors.Error{Kind: errors.Invalid}.
func (c *Config) Validate() error {
	if _, ok := unmapStrategyFacets[c.UnmapStrategy]; !ok {
		return errors.E(errors.Invalid, "mergebam: unknown UnmapStrategy")
	}
	switch c.SortOrder {
	case Coordinate, QueryName, Unsorted:
	default:
		return errors.E(errors.Invalid, "mergebam: unknown SortOrder")
	}
	if c.MaxRecordsInRAM <= 0 {
		return errors.E(errors.Invalid, "mergebam: MaxRecordsInRAM must be positive")
	}
	if c.Read1Trim < 0 || c.Read2Trim < 0 {
		return errors.E(errors.Invalid, "mergebam: trim lengths must be non-negative")
	}
	for tag := range c.AttrsRetain {
		if c.AttrsRemove[tag] {
			log.Debug.Printf("mergebam: tag %s present in both retain and remove sets, remove wins", tag)
			delete(c.AttrsRetain, tag)
		}
	}
	return nil
}
