// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package main

import (
	"io"
	"os"

	"github.com/biogo/hts/bam"
	"github.com/biogo/hts/sam"
)

// bamSource adapts a *bam.Reader into the Scan/Record/Err/Close shape that
// mergebam.Driver and hitgroup.Grouper both read from.
type bamSource struct {
	r     *bam.Reader
	c     io.Closer
	cur   *sam.Record
	err   error
	atEOF bool
}

func openBAMSource(path string) (*bamSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	r, err := bam.NewReader(f, 0)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &bamSource{r: r, c: f}, nil
}

func (s *bamSource) Header() *sam.Header { return s.r.Header() }

func (s *bamSource) Scan() bool {
	if s.atEOF || s.err != nil {
		return false
	}
	rec, err := s.r.Read()
	if err != nil {
		if err != io.EOF {
			s.err = err
		}
		s.atEOF = true
		return false
	}
	s.cur = rec
	return true
}

func (s *bamSource) Record() *sam.Record { return s.cur }

func (s *bamSource) Err() error { return s.err }

func (s *bamSource) Close() error { return s.c.Close() }
