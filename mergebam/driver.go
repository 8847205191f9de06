// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package mergebam

import (
	"context"
	goerrors "errors"

	"github.com/biogo/hts/sam"
	"github.com/grailbio/bamjoin/encoding/bam"
	"github.com/grailbio/bamjoin/hitgroup"
	"github.com/grailbio/base/log"
)

// UnalignedSource is the pull-style iterator the driver reads the original,
// unmapped template records from. Its Scan/Record/Err/Close shape mirrors
// the common BAM-reader iterator pattern; a reader without that shape, such
// as *bam.Reader, needs a small adapter (see cmd/bammerge/bamsource.go).
type UnalignedSource interface {
	Scan() bool
	Record() *sam.Record
	Err() error
	Close() error
}

// AlignedSource is the pull-style iterator the hit grouper reads aligned
// hits from; it is the same shape as hitgroup.Source.
type AlignedSource = hitgroup.Source

// Sink is the single add/close abstraction every output route (direct
// writer, external sort collection) satisfies.
type Sink interface {
	Add(*sam.Record) error
	Close() error
}

// ContaminationDetector decides, once per read, whether the alignment
// described by the elected primary hit is cross-species contamination.
// The core ships no implementation (the decision policy is an explicit
// Non-goal); tests use a trivial field-based stand-in.
type ContaminationDetector interface {
	IsContaminant(primary *sam.Record) bool
}

// Driver is the single-threaded cooperative outer loop of the merge: it
// joins the unaligned stream and the grouped aligned-hits stream by read
// name, drives the transfer engine and pair fixer, and pushes finished
// records to the sink.
type Driver struct {
	cfg       *Config
	outHeader *sam.Header
	unaligned UnalignedSource
	grouper   *hitgroup.Grouper
	sink      Sink
	contam    ContaminationDetector
	prog      *sam.Program
}

// NewDriver constructs a Driver. contam may be nil, meaning no record is
// ever treated as contaminated. prog may be nil, meaning no PG tag is
// chained onto emitted records (RegisterProgram returns nil when
// cfg.AddProgramTag is false).
func NewDriver(cfg *Config, outHeader *sam.Header, unaligned UnalignedSource, grouper *hitgroup.Grouper, sink Sink, contam ContaminationDetector, prog *sam.Program) *Driver {
	return &Driver{cfg: cfg, outHeader: outHeader, unaligned: unaligned, grouper: grouper, sink: sink, contam: contam, prog: prog}
}

// emit chains the driver's program tag onto rec (a no-op when prog is nil)
// and pushes it to the sink; every Add call in this file routes through it.
func (d *Driver) emit(rec *sam.Record) error {
	ChainProgramTag(rec, d.prog)
	return d.sink.Add(rec)
}

// unit is one template: either a single unpaired fragment (t2 nil) or a
// read1/read2 pair pulled as two consecutive unaligned records.
type unit struct {
	t1, t2 *sam.Record
}

func (u *unit) name() string { return u.t1.Name }

// Run drives the merge to completion, returning the first fatal error
// encountered or nil on a clean, fully-consumed run. Merge-semantics
// failures are *MergeError values; a source or sink I/O error, or ctx.Err()
// after cancellation, is returned as is. ctx is observed for cancellation
// between records.
func (d *Driver) Run(ctx context.Context) error {
	haveGroup := d.grouper.Scan()
	if err := d.groupScanErr(); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		u, ok, err := d.pullUnit()
		if err != nil {
			return err
		}
		if !ok {
			break
		}

		if haveGroup {
			cmp := bam.CompareQueryName(u.name(), d.grouper.Group().Name)
			if cmp > 0 {
				return errorf(AlignedAhead, "aligned stream named %q, not yet seen in unaligned stream", d.grouper.Group().Name)
			}
			if cmp == 0 {
				if err := d.processHits(u, d.grouper.Group()); err != nil {
					return err
				}
				haveGroup = d.grouper.Scan()
				if err := d.groupScanErr(); err != nil {
					return err
				}
				continue
			}
		}
		// Names differ (or the aligned stream is exhausted): this read had
		// no aligned hits at all.
		if !d.cfg.AlignedOnly {
			if err := d.emitUnit(u); err != nil {
				return err
			}
		}
	}

	if haveGroup {
		return errorf(UnalignedExhaustedEarly, "aligned stream still has records for %q after unaligned stream was exhausted", d.grouper.Group().Name)
	}
	return nil
}

// groupScanErr reports the grouper's current error, re-raising a
// hitgroup.ErrOutOfOrder as the driver's own fatal OutOfOrderAligned kind
// so callers can distinguish it from ordinary I/O failures without
// depending on the hitgroup package's sentinel.
func (d *Driver) groupScanErr() error {
	err := d.grouper.Err()
	if err == nil {
		return nil
	}
	if goerrors.Is(err, hitgroup.ErrOutOfOrder) {
		return errorf(OutOfOrderAligned, "%v", err)
	}
	return err
}

func (d *Driver) pullUnit() (*unit, bool, error) {
	if !d.unaligned.Scan() {
		if err := d.unaligned.Err(); err != nil {
			return nil, false, err
		}
		return nil, false, nil
	}
	t1 := d.unaligned.Record()
	if !bam.IsUnmapped(t1) {
		return nil, false, errorf(UnalignedBamContainsMapped, "record %s", t1.Name)
	}
	if !bam.IsPaired(t1) {
		return &unit{t1: t1}, true, nil
	}
	if !d.unaligned.Scan() {
		if err := d.unaligned.Err(); err != nil {
			return nil, false, err
		}
		return nil, false, errorf(PairingViolation, "paired record %s has no following mate", t1.Name)
	}
	t2 := d.unaligned.Record()
	if !bam.IsUnmapped(t2) {
		return nil, false, errorf(UnalignedBamContainsMapped, "record %s", t2.Name)
	}
	if t1.Name != t2.Name {
		return nil, false, errorf(PairingViolation, "expected mate of %s, got %s", t1.Name, t2.Name)
	}
	r1, r2 := bam.IsRead2(t1), bam.IsRead2(t2)
	if r1 == r2 {
		return nil, false, errorf(PairingViolation, "%s: both records have the same read-in-pair flag", t1.Name)
	}
	if r1 {
		t1, t2 = t2, t1
	}
	return &unit{t1: t1, t2: t2}, true, nil
}

// emitUnit writes u's records through unchanged (the read had no hits).
func (d *Driver) emitUnit(u *unit) error {
	if err := d.emit(u.t1); err != nil {
		return err
	}
	if u.t2 != nil {
		if err := d.emit(u.t2); err != nil {
			return err
		}
	}
	return nil
}

// processHits transfers every hit index for the read,
// then every supplementary hit, for a template whose name matched the
// grouper's current group.
func (d *Driver) processHits(u *unit, hits *hitgroup.HitsForRead) error {
	contam := false
	if d.contam != nil {
		primary := hits.End1.Primary
		if primary == nil {
			primary = hits.End2.Primary
		}
		if primary != nil {
			contam = d.contam.IsContaminant(primary)
		}
	}

	n1, n2 := hits.End1.Count(), hits.End2.Count()
	maxHits := n1
	if n2 > maxHits {
		maxHits = n2
	}
	if maxHits == 0 {
		maxHits = 1 // neither end placed; still run the (no-op) fall-through below
	}
	needsClone := maxHits > 1 || hits.HasSupplementary()

	// Every hit index after the first, and the supplementary linkage below,
	// need the pristine, still-unmapped template: the i==0 loop iteration
	// mutates u.t1/u.t2 in place into the primary alignment record, so a
	// clone must be taken up front.
	var pristineT1, pristineT2 *sam.Record
	if needsClone {
		if u.t1 != nil {
			pristineT1 = CloneRecord(u.t1)
		}
		if u.t2 != nil {
			pristineT2 = CloneRecord(u.t2)
		}
	}

	var end1Primary, end2Primary *sam.Record

	for i := 0; i < maxHits; i++ {
		a1 := hitAt(&hits.End1, i)
		a2 := hitAt(&hits.End2, i)
		if a1 == nil && a2 == nil && i > 0 {
			continue
		}
		t1, t2 := u.t1, u.t2
		if needsClone && i > 0 {
			if pristineT1 != nil {
				t1 = CloneRecord(pristineT1)
			}
			if pristineT2 != nil {
				t2 = CloneRecord(pristineT2)
			}
		}
		if err := d.transferIndexed(t1, t2, a1, a2, contam); err != nil {
			return err
		}
		if i == 0 {
			end1Primary, end2Primary = t1, t2
		}
		if err := d.emitTransferred(t1, a1 != nil, i == 0); err != nil {
			return err
		}
		if t2 != nil {
			if err := d.emitTransferred(t2, a2 != nil, i == 0); err != nil {
				return err
			}
		}
	}

	return d.emitSupplementary(pristineT1, pristineT2, hits, end1Primary, end2Primary, contam)
}

func hitAt(e *hitgroup.EndHits, i int) *sam.Record {
	if i == 0 {
		return e.Primary
	}
	idx := i - 1
	if idx < len(e.Secondary) {
		return e.Secondary[idx]
	}
	return nil
}

func (d *Driver) transferIndexed(t1, t2, a1, a2 *sam.Record, contam bool) error {
	if t1 != nil && a1 != nil {
		if err := TransferFragment(d.cfg, d.outHeader, t1, a1, contam, false); err != nil {
			return err
		}
	}
	if t2 != nil && a2 != nil {
		if err := TransferFragment(d.cfg, d.outHeader, t2, a2, contam, false); err != nil {
			return err
		}
	}
	if t1 != nil && t2 != nil && a1 != nil && a2 != nil {
		if err := FixPair(d.cfg, t1, t2); err != nil {
			if err == bam.ErrHardClipTagCollision {
				return errorf(HardClipTagCollision, "%s: %v", t1.Name, err)
			}
			return err
		}
	}
	return nil
}

// emitTransferred applies the merge driver's emit rule: mapped records always
// go out; unmapped ones only from the primary slot (isPrimarySlot), so N
// secondary hits for an otherwise-unmapped end don't produce N duplicate
// unmapped rows.
func (d *Driver) emitTransferred(rec *sam.Record, hadHit, isPrimarySlot bool) error {
	if !hadHit {
		if !isPrimarySlot {
			return nil
		}
		log.Debug.Printf("mergebam: %s: no hit for this end, emitting unaligned unchanged", rec.Name)
		return d.emit(rec)
	}
	if bam.IsUnmapped(rec) && !isPrimarySlot {
		return nil
	}
	return d.emit(rec)
}

func (d *Driver) emitSupplementary(pristineT1, pristineT2 *sam.Record, hits *hitgroup.HitsForRead, end1Primary, end2Primary *sam.Record, contam bool) error {
	for _, supp := range hits.End1.Supplementary {
		if pristineT1 == nil {
			continue
		}
		rec, err := LinkSupplementary(d.cfg, d.outHeader, pristineT1, supp, end2Primary, contam, false)
		if err != nil {
			return err
		}
		if err := d.emit(rec); err != nil {
			return err
		}
	}
	for _, supp := range hits.End2.Supplementary {
		if pristineT2 == nil {
			continue
		}
		rec, err := LinkSupplementary(d.cfg, d.outHeader, pristineT2, supp, end1Primary, contam, false)
		if err != nil {
			return err
		}
		if err := d.emit(rec); err != nil {
			return err
		}
	}
	return nil
}
