// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package bam provides record-pooling, flag-predicate, and CIGAR-rewriting
// helpers shared by the merge core on top of github.com/biogo/hts/sam.
package bam
