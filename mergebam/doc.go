// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package mergebam implements the alignment merge core: it fuses a stream
// of unaligned template records with a stream of externally-produced
// alignment hits into one coherent, post-processed output stream, applying
// tag-policy transfer, CIGAR fix-ups, mate-pair linkage, NM/MD/UQ
// recomputation and contamination unmapping along the way.
package mergebam
