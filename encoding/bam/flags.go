// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package bam

import "github.com/biogo/hts/sam"

// IsPaired reports whether r is paired in sequencing.
func IsPaired(r *sam.Record) bool { return r.Flags&sam.Paired != 0 }

// IsProperPair reports whether r is part of a properly-aligned pair.
func IsProperPair(r *sam.Record) bool { return r.Flags&sam.ProperPair != 0 }

// IsUnmapped reports whether r itself is unmapped.
func IsUnmapped(r *sam.Record) bool { return r.Flags&sam.Unmapped != 0 }

// IsMateUnmapped reports whether r's mate is unmapped.
func IsMateUnmapped(r *sam.Record) bool { return r.Flags&sam.MateUnmapped != 0 }

// IsReverse reports whether r is mapped to the reverse strand.
func IsReverse(r *sam.Record) bool { return r.Flags&sam.Reverse != 0 }

// IsMateReverse reports whether r's mate is mapped to the reverse strand.
func IsMateReverse(r *sam.Record) bool { return r.Flags&sam.MateReverse != 0 }

// IsRead1 reports whether r is the first read of a pair.
func IsRead1(r *sam.Record) bool { return r.Flags&sam.Read1 != 0 }

// IsRead2 reports whether r is the second read of a pair.
func IsRead2(r *sam.Record) bool { return r.Flags&sam.Read2 != 0 }

// IsSecondary reports whether r is a secondary (non-primary) alignment.
func IsSecondary(r *sam.Record) bool { return r.Flags&sam.Secondary != 0 }

// IsSupplementary reports whether r is a supplementary (chimeric) alignment.
func IsSupplementary(r *sam.Record) bool { return r.Flags&sam.Supplementary != 0 }

// IsQCFail reports whether r failed vendor/platform quality checks.
func IsQCFail(r *sam.Record) bool { return r.Flags&sam.QCFail != 0 }

// IsDuplicate reports whether r is flagged as an optical or PCR duplicate.
func IsDuplicate(r *sam.Record) bool { return r.Flags&sam.Duplicate != 0 }

// IsPrimary reports whether r is neither secondary nor supplementary, i.e.
// it is the one record per end that the hit grouper's selection policy
// designates primary.
func IsPrimary(r *sam.Record) bool {
	return r.Flags&(sam.Secondary|sam.Supplementary) == 0
}

// HasNoMappedMate returns true if record is unpaired or has an unmapped mate.
func HasNoMappedMate(record *sam.Record) bool {
	return !IsPaired(record) || IsMateUnmapped(record)
}
