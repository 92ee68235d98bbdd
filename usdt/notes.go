// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package usdt reads USDT probes from ELF files and resolves their argument
// locations against an architecture register map.
package usdt // import "go.opentelemetry.io/ebpf-tracer/usdt"

import (
	"debug/elf"
	"errors"
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"

	"go.opentelemetry.io/ebpf-tracer/util"
)

const (
	noteSectionName = ".note.stapsdt"
	baseSectionName = ".stapsdt.base"

	// ntStapsdt is the note type of USDT probe descriptors.
	ntStapsdt = 3

	// maxNotesSize bounds the size of the note section that is read.
	maxNotesSize = 16 * 1024 * 1024
)

var errTruncatedNote = errors.New("truncated USDT note")

// Probe represents a USDT probe found in an ELF file.
type Probe struct {
	Provider        string
	Name            string
	Location        uint64
	Base            uint64
	SemaphoreOffset uint64
	Arguments       string
}

func (p *Probe) String() string {
	return p.Provider + ":" + p.Name
}

func align4(n int) int {
	return (n + 3) &^ 3
}

// ParseProbes reads USDT probe information from the .note.stapsdt section.
// A file without the section has no probes.
func ParseProbes(ef *elf.File) ([]Probe, error) {
	sec := ef.Section(noteSectionName)
	if sec == nil {
		return nil, nil
	}
	if sec.Type != elf.SHT_NOTE {
		return nil, fmt.Errorf("section %s is not a note", noteSectionName)
	}
	if sec.Size > maxNotesSize {
		return nil, fmt.Errorf("section %s too large: %d bytes", noteSectionName, sec.Size)
	}
	data, err := sec.Data()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", noteSectionName, err)
	}

	wordSize := 4
	if ef.Class == elf.ELFCLASS64 {
		wordSize = 8
	}
	word := func(b []byte) uint64 {
		if wordSize == 8 {
			return ef.ByteOrder.Uint64(b)
		}
		return uint64(ef.ByteOrder.Uint32(b))
	}

	var probes []Probe
	offset := 0
	for offset+12 <= len(data) {
		// Note header: namesz(4) + descsz(4) + type(4)
		namesz := ef.ByteOrder.Uint32(data[offset : offset+4])
		descsz := ef.ByteOrder.Uint32(data[offset+4 : offset+8])
		noteType := ef.ByteOrder.Uint32(data[offset+8 : offset+12])
		offset += 12

		// Both sizes are bounded by the section size before any padding
		// is added, so the arithmetic below cannot overflow.
		remaining := uint64(len(data) - offset)
		if uint64(namesz) > remaining || uint64(descsz) > remaining {
			return nil, errTruncatedNote
		}
		nameEnd := offset + align4(int(namesz))
		descEnd := nameEnd + int(descsz)
		if descEnd > len(data) {
			return nil, errTruncatedNote
		}
		next := nameEnd + align4(int(descsz))

		if noteType != ntStapsdt || string(data[offset:offset+int(namesz)]) != "stapsdt\x00" {
			offset = next
			continue
		}

		desc := data[nameEnd:descEnd]
		offset = next
		if len(desc) < 3*wordSize {
			log.Debugf("Skipping short USDT note descriptor (%d bytes)", len(desc))
			continue
		}

		probe := Probe{
			Location:        word(desc[0:wordSize]),
			Base:            word(desc[wordSize : 2*wordSize]),
			SemaphoreOffset: word(desc[2*wordSize : 3*wordSize]),
		}

		// Strings: provider\0probe\0arguments\0
		var ok1, ok2, ok3 bool
		rest := desc[3*wordSize:]
		probe.Provider, rest, ok1 = util.NextCString(rest)
		probe.Name, rest, ok2 = util.NextCString(rest)
		probe.Arguments, _, ok3 = util.NextCString(rest)
		if !ok1 || !ok2 || !ok3 {
			log.Debugf("Skipping malformed USDT note descriptor")
			continue
		}
		if !util.IsValidString(probe.Provider) || !util.IsValidString(probe.Name) {
			log.Debugf("Skipping USDT probe with invalid name %q:%q",
				probe.Provider, probe.Name)
			continue
		}
		probes = append(probes, probe)
	}

	return probes, nil
}

// BaseAddress returns the address of the .stapsdt.base section, which the
// Base of each probe refers to. Prelinking may move the section, so
// locations need to be adjusted by the difference.
func BaseAddress(ef *elf.File) (uint64, bool) {
	sec := ef.Section(baseSectionName)
	if sec == nil {
		return 0, false
	}
	return sec.Addr, true
}

// ParseFile opens an ELF file and returns its USDT probes, with locations
// adjusted to the file's .stapsdt.base section.
func ParseFile(path string) ([]Probe, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	ef, err := elf.NewFile(f)
	if err != nil {
		return nil, fmt.Errorf("reading elf file %q: %w", path, err)
	}
	defer ef.Close()

	probes, err := ParseProbes(ef)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if base, ok := BaseAddress(ef); ok {
		Relocate(probes, base)
	}
	return probes, nil
}

// Relocate moves the locations of probes recorded against a different
// .stapsdt.base address to base. Probes without a recorded base are left
// as they are.
func Relocate(probes []Probe, base uint64) {
	for i := range probes {
		p := &probes[i]
		if p.Base == 0 || p.Base == base {
			continue
		}
		p.Location += base - p.Base
		p.Base = base
	}
}
