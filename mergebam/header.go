// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package mergebam

import "github.com/biogo/hts/sam"

// referenceByName returns the *sam.Reference in h whose name matches name,
// registering a new one (carrying src's name and length; h assigns its id,
// and no MD5 or URI is copied) if h does not already know it. Resolving aligned hits against the output
// header by name rather than by index is what lets the aligned stream carry
// its own, potentially differently-ordered, reference dictionary.
func referenceByName(h *sam.Header, src *sam.Reference) (*sam.Reference, error) {
	for _, r := range h.Refs() {
		if r.Name() == src.Name() {
			return r, nil
		}
	}
	clone, err := sam.NewReference(src.Name(), "", "", src.Len(), nil, nil)
	if err != nil {
		return nil, err
	}
	if err := h.AddReference(clone); err != nil {
		return nil, err
	}
	return clone, nil
}

// RegisterProgram adds a program record named by cfg.ProgramID to h, when
// cfg.AddProgramTag is set, returning the resulting *sam.Program for use
// with ChainProgramTag. It is a no-op (nil, nil) when AddProgramTag is
// false. The new record's PP field is left empty; it is not linked to any
// program already in h. A collision with an existing @PG id in h is
// reported as ProgramRecordCollision.
func RegisterProgram(cfg *Config, h *sam.Header, name, command, version string) (*sam.Program, error) {
	if !cfg.AddProgramTag {
		return nil, nil
	}
	prog := sam.NewProgram(cfg.ProgramID, name, command, "", version)
	if err := h.AddProgram(prog); err != nil {
		return nil, errorf(ProgramRecordCollision, "id %q: %v", cfg.ProgramID, err)
	}
	return prog, nil
}

// ChainProgramTag sets rec's PG tag to prog's uid, replacing any PG value
// the record already carried. A nil prog is a no-op, so callers can call
// this unconditionally.
func ChainProgramTag(rec *sam.Record, prog *sam.Program) {
	if prog == nil {
		return
	}
	setTextTag(rec, "PG", prog.UID())
}
