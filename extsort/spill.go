// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package extsort

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/golang/snappy"
)

// spillWriter appends entries to a spill file as a sequence of
// length-prefixed, individually snappy-compressed frames. This replaces
// a columnar record framing (unavailable to
// this module; see DESIGN.md) with a format built entirely on the already
// wired snappy dependency.
type spillWriter struct {
	w   io.Writer
	buf []byte
}

func newSpillWriter(w io.Writer) *spillWriter { return &spillWriter{w: w} }

func (s *spillWriter) write(e entry) error {
	frame := encodeFrame(e)
	s.buf = snappy.Encode(s.buf[:cap(s.buf)], frame)
	var lenPrefix [4]byte
	binary.LittleEndian.PutUint32(lenPrefix[:], uint32(len(s.buf)))
	if _, err := s.w.Write(lenPrefix[:]); err != nil {
		return err
	}
	_, err := s.w.Write(s.buf)
	return err
}

// spillReader reads entries back out of a spill file written by
// spillWriter, in the order they were written (the caller is responsible
// for having written them pre-sorted).
type spillReader struct {
	r io.Reader
}

func newSpillReader(r io.Reader) *spillReader { return &spillReader{r: r} }

// next returns the next entry, or ok=false at a clean end of stream.
func (s *spillReader) next() (e entry, ok bool, err error) {
	var lenPrefix [4]byte
	if _, err := io.ReadFull(s.r, lenPrefix[:]); err != nil {
		if err == io.EOF {
			return entry{}, false, nil
		}
		return entry{}, false, err
	}
	n := binary.LittleEndian.Uint32(lenPrefix[:])
	compressed := make([]byte, n)
	if _, err := io.ReadFull(s.r, compressed); err != nil {
		return entry{}, false, err
	}
	frame, err := snappy.Decode(nil, compressed)
	if err != nil {
		return entry{}, false, err
	}
	e, err = decodeFrame(frame)
	return e, err == nil, err
}

const frameHeaderLen = 8 + 2 + 8

func encodeFrame(e entry) []byte {
	buf := make([]byte, frameHeaderLen+len(e.body))
	binary.LittleEndian.PutUint64(buf[0:8], uint64(e.key))
	binary.LittleEndian.PutUint16(buf[8:10], e.flags)
	binary.LittleEndian.PutUint64(buf[10:18], e.ordinal)
	copy(buf[frameHeaderLen:], e.body)
	return buf
}

func decodeFrame(buf []byte) (entry, error) {
	if len(buf) < frameHeaderLen {
		return entry{}, fmt.Errorf("extsort: truncated spill frame (%d bytes)", len(buf))
	}
	e := entry{
		key:     coord(binary.LittleEndian.Uint64(buf[0:8])),
		flags:   binary.LittleEndian.Uint16(buf[8:10]),
		ordinal: binary.LittleEndian.Uint64(buf[10:18]),
	}
	e.body = append([]byte(nil), buf[frameHeaderLen:]...)
	return e, nil
}
