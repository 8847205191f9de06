// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package seqtools provides the reverse-complement and quality-reversal
// primitives the merge core uses whenever a record's resolved strand
// requires flipping bases and qualities back into reference orientation.
//
// It is trimmed down to the portable,
// ASCII-byte-oriented operations the transfer engine needs; see
// DESIGN.md for why the amd64-vectorized and 4-bit-packed variants were
// dropped.
package seqtools
