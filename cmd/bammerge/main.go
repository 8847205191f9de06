// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

/*
  bammerge fuses a stream of unaligned template reads with a stream of
  externally-produced alignment hits into one coherent, post-processed BAM
  file. For more information, see
  github.com/grailbio/bamjoin/mergebam/doc.go
*/
package main

import (
	"flag"
	"os"
	"strings"

	"github.com/biogo/hts/bam"
	"github.com/biogo/hts/sam"
	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/bamjoin/hitgroup"
	"github.com/grailbio/bamjoin/mergebam"
)

var (
	unalignedPath = flag.String("unaligned", "", "Input BAM of original, unaligned template reads")
	alignedPath   = flag.String("aligned", "", "Input BAM of externally-produced alignment hits, sorted by query name")
	outputPath    = flag.String("output", "", "Output BAM filename")
	scratchDir    = flag.String("scratch-dir", "/tmp", "Directory to put external-sort spill files")

	sortOrder          = flag.String("sort-order", "coordinate", "Output sort order: coordinate, queryname, or unsorted")
	clipAdapters       = flag.Bool("clip-adapters", true, "Clip adapter sequence using the XT tag")
	bisulfite          = flag.Bool("bisulfite", false, "Exempt C>T/G>A bisulfite-conversion mismatches from NM/MD/UQ")
	alignedOnly        = flag.Bool("aligned-only", false, "Drop reads that have no aligned hit instead of emitting them unchanged")
	read1Trim          = flag.Int("read1-trim", 0, "Bases trimmed from read 1 before alignment")
	read2Trim          = flag.Int("read2-trim", 0, "Bases trimmed from read 2 before alignment")
	addMateCigar       = flag.Bool("add-mate-cigar", true, "Add the MC mate-CIGAR tag")
	unmapContam        = flag.Bool("unmap-contaminants", false, "Unmap reads flagged as cross-species contamination")
	clipOverlapping    = flag.Bool("clip-overlapping", true, "Soft-clip the 3' overlap between opposite-strand mates")
	hardClipOverlap    = flag.Bool("hard-clip-overlapping", false, "Also hard-clip the overlap region")
	includeSecondary   = flag.Bool("include-secondary", true, "Include secondary alignment hits")
	keepAlignerProper  = flag.Bool("keep-aligner-proper-pair", false, "Keep the aligner's own proper-pair decision instead of recomputing it")
	addProgramTag      = flag.Bool("add-program-tag", true, "Register a @PG header record and chain it onto every record")
	programID          = flag.String("program-id", "bammerge", "Unique @PG id to register")
	maxRecordsInRAM    = flag.Int("max-records-in-ram", 500000, "External-sort in-memory record threshold")
	minInsertSize      = flag.Int("min-insert-size", 0, "Minimum insert size accepted as a proper pair")
	maxInsertSize      = flag.Int("max-insert-size", 1000, "Maximum insert size accepted as a proper pair")
)

func main() {
	shutdown := grail.Init()
	defer shutdown()

	if flag.NArg() > 0 {
		log.Fatalf("unparsed flags, please check flag syntax: '%s'", strings.Join(flag.Args(), " "))
	}
	if *unalignedPath == "" || *alignedPath == "" || *outputPath == "" {
		log.Fatalf("-unaligned, -aligned and -output are all required")
	}

	cfg := mergebam.DefaultConfig()
	cfg.ClipAdapters = *clipAdapters
	cfg.Bisulfite = *bisulfite
	cfg.AlignedOnly = *alignedOnly
	cfg.Read1Trim = *read1Trim
	cfg.Read2Trim = *read2Trim
	cfg.AddMateCigar = *addMateCigar
	cfg.UnmapContam = *unmapContam
	cfg.ClipOverlapping = *clipOverlapping
	cfg.HardClipOverlapping = *hardClipOverlap
	cfg.IncludeSecondary = *includeSecondary
	cfg.KeepAlignerProper = *keepAlignerProper
	cfg.AddProgramTag = *addProgramTag
	cfg.ProgramID = *programID
	cfg.MaxRecordsInRAM = *maxRecordsInRAM
	cfg.MinInsertSize = *minInsertSize
	cfg.MaxInsertSize = *maxInsertSize
	switch strings.ToLower(*sortOrder) {
	case "coordinate":
		cfg.SortOrder = mergebam.Coordinate
	case "queryname":
		cfg.SortOrder = mergebam.QueryName
	case "unsorted":
		cfg.SortOrder = mergebam.Unsorted
	default:
		log.Fatalf("unknown -sort-order %q", *sortOrder)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	unaligned, err := openBAMSource(*unalignedPath)
	if err != nil {
		log.Fatalf("opening -unaligned %s: %v", *unalignedPath, err)
	}
	defer unaligned.Close()

	aligned, err := openBAMSource(*alignedPath)
	if err != nil {
		log.Fatalf("opening -aligned %s: %v", *alignedPath, err)
	}
	defer aligned.Close()

	outHeader := unaligned.Header().Clone()

	var skip hitgroup.SkipFunc
	if !cfg.IncludeSecondary {
		skip = func(rec *sam.Record) bool { return rec.Flags&sam.Secondary != 0 }
	}
	grouper := hitgroup.NewGrouper(aligned, skip, firstHitWinsSelector{})

	prog, err := mergebam.RegisterProgram(&cfg, outHeader, "bammerge", strings.Join(os.Args, " "), "1.0")
	if err != nil {
		log.Fatalf("registering program record: %v", err)
	}

	out, err := os.Create(*outputPath)
	if err != nil {
		log.Fatalf("creating -output %s: %v", *outputPath, err)
	}
	defer out.Close()
	writer, err := bam.NewWriter(out, outHeader, 0)
	if err != nil {
		log.Fatalf("opening BAM writer: %v", err)
	}

	ctx := vcontext.Background()
	sink := newSink(ctx, &cfg, outHeader, writer, *scratchDir)
	driver := mergebam.NewDriver(&cfg, outHeader, unaligned, grouper, sink, nil, prog)
	if err := driver.Run(ctx); err != nil {
		if aborter, ok := sink.(interface{ Abort() }); ok {
			aborter.Abort()
		}
		log.Fatalf("merge failed: %v", err)
	}
	if err := sink.Close(); err != nil {
		log.Fatalf("closing output: %v", err)
	}
	log.Debug.Printf("bammerge: done")
}

// firstHitWinsSelector is the trivial primary-selection policy used when
// no read-group-specific policy is configured: an end keeps the hit the
// aligner flagged as primary, and only an end with no such hit promotes
// the first secondary hit the aligned stream listed for it.
type firstHitWinsSelector struct{}

func (firstHitWinsSelector) SelectPrimary(hits *hitgroup.HitsForRead) {
	promote(&hits.End1)
	promote(&hits.End2)
}

// promote fills in a still-unset Primary from the first secondary hit, for
// an aligned end that only ever reported secondary alignments.
func promote(end *hitgroup.EndHits) {
	if end.Primary == nil && len(end.Secondary) > 0 {
		end.Primary, end.Secondary = end.Secondary[0], end.Secondary[1:]
	}
}
