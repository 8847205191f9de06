// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package mergebam

import (
	"fmt"

	"github.com/grailbio/base/errors"
)

// Kind distinguishes the fatal conditions the merge driver can raise from
// one another without callers needing to string-match error text.
type Kind int

const (
	// UnalignedBamContainsMapped: a record from the unaligned source was
	// already flagged mapped.
	UnalignedBamContainsMapped Kind = iota
	// PairingViolation: consecutive unaligned records did not form a
	// well-formed read1/read2 pair.
	PairingViolation
	// AlignedAhead: the aligned stream named a read the unaligned stream
	// has not (yet, or ever) produced.
	AlignedAhead
	// UnalignedExhaustedEarly: the aligned stream still had records after
	// the unaligned stream was consumed.
	UnalignedExhaustedEarly
	// ProgramRecordCollision: the configured @PG id already exists in the
	// header being built.
	ProgramRecordCollision
	// OutOfOrderAligned: the aligned stream was not non-decreasing by
	// query name.
	OutOfOrderAligned
	// HardClipTagCollision: a hard clip needed to stash XB/XQ but one was
	// already present.
	HardClipTagCollision
)

func (k Kind) String() string {
	switch k {
	case UnalignedBamContainsMapped:
		return "UnalignedBamContainsMapped"
	case PairingViolation:
		return "PairingViolation"
	case AlignedAhead:
		return "AlignedAhead"
	case UnalignedExhaustedEarly:
		return "UnalignedExhaustedEarly"
	case ProgramRecordCollision:
		return "ProgramRecordCollision"
	case OutOfOrderAligned:
		return "OutOfOrderAligned"
	case HardClipTagCollision:
		return "HardClipTagCollision"
	default:
		return "Unknown"
	}
}

// MergeError is a fatal merge-core error tagged with the Kind that caused
// it, so callers can distinguish "abort, this is a structural violation"
// conditions from ordinary I/O failures while still getting a %v-friendly
// message.
type MergeError struct {
	Kind Kind
	Err  *errors.Error
}

func (e *MergeError) Error() string { return e.Err.Error() }

// Unwrap lets errors.As/errors.Is see through to the underlying
// *errors.Error, matching the stdlib errors wrapping convention the rest
// of the module uses alongside grailbio/base/errors.
func (e *MergeError) Unwrap() error { return e.Err }

func errorf(kind Kind, format string, args ...interface{}) *MergeError {
	return &MergeError{
		Kind: kind,
		Err:  errors.E(errors.Precondition, fmt.Sprintf("mergebam: %s: %s", kind, fmt.Sprintf(format, args...))),
	}
}
