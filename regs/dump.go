// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package regs reads register values out of a raw register dump using the
// register map of the architecture the dump was taken on.
package regs // import "go.opentelemetry.io/ebpf-tracer/regs"

import (
	"encoding/binary"
	"errors"
	"fmt"

	"go.opentelemetry.io/ebpf-tracer/arch"
)

// ErrRegisterArg is returned by StackArgAddr for arguments that are passed
// in a register.
var ErrRegisterArg = errors.New("argument is passed in a register")

// ErrStackArg is returned by Arg for arguments that are passed on the stack.
var ErrStackArg = errors.New("argument is passed on the stack")

// Dump is a register dump together with the architecture describing it.
type Dump struct {
	arch  arch.Arch
	words []uint64
}

// New wraps the words of a register dump. The slice is not copied.
func New(a arch.Arch, words []uint64) *Dump {
	return &Dump{arch: a, words: words}
}

// FromBytes decodes a raw register dump made of machine words of the
// architecture's pointer width.
func FromBytes(a arch.Arch, raw []byte, order binary.ByteOrder) (*Dump, error) {
	wordSize := arch.WordSize(a)
	if len(raw)%wordSize != 0 {
		return nil, fmt.Errorf("register dump of %d bytes is not a multiple of the %d byte word size",
			len(raw), wordSize)
	}

	words := make([]uint64, len(raw)/wordSize)
	for i := range words {
		b := raw[i*wordSize : (i+1)*wordSize]
		if wordSize == 8 {
			words[i] = order.Uint64(b)
		} else {
			words[i] = uint64(order.Uint32(b))
		}
	}
	return New(a, words), nil
}

// Arch returns the architecture of the dump.
func (d *Dump) Arch() arch.Arch {
	return d.arch
}

// Len returns the number of words in the dump.
func (d *Dump) Len() int {
	return len(d.words)
}

func (d *Dump) word(off int) (uint64, error) {
	if off < 0 || off >= len(d.words) {
		return 0, fmt.Errorf("offset %d beyond register dump of %d words", off, len(d.words))
	}
	return d.words[off], nil
}

// Reg returns the value of a register named by the user. Unknown names are
// reported as *arch.UnknownRegisterError.
func (d *Dump) Reg(name string) (uint64, error) {
	off, err := arch.ResolveRegister(d.arch, name)
	if err != nil {
		return 0, err
	}
	return d.word(off)
}

func (d *Dump) role(role string, off int, ok bool) (uint64, error) {
	if !ok {
		return 0, fmt.Errorf("%s: %s register does not resolve: %w",
			d.arch.Name(), role, arch.ErrInconsistent)
	}
	return d.word(off)
}

// PC returns the program counter.
func (d *Dump) PC() (uint64, error) {
	off, ok := d.arch.PCOffset()
	return d.role("program counter", off, ok)
}

// Ret returns the return value.
func (d *Dump) Ret() (uint64, error) {
	off, ok := d.arch.RetOffset()
	return d.role("return value", off, ok)
}

// SP returns the stack pointer.
func (d *Dump) SP() (uint64, error) {
	off, ok := d.arch.SPOffset()
	return d.role("stack pointer", off, ok)
}

// Arg returns the value of the register carrying argument index. Arguments
// passed on the stack return ErrStackArg; use StackArgAddr for them.
func (d *Dump) Arg(index int) (uint64, error) {
	maxArg := d.arch.MaxArg()
	if index < 0 {
		return 0, fmt.Errorf("invalid argument index %d", index)
	}
	if arch.IsStackArg(d.arch, index) {
		return 0, fmt.Errorf("argument %d: %w", index, ErrStackArg)
	}

	off, ok := d.arch.ArgOffset(index)
	if !ok {
		return 0, fmt.Errorf("%s: argument %d of %d does not resolve: %w",
			d.arch.Name(), index, maxArg+1, arch.ErrInconsistent)
	}
	return d.word(off)
}

// StackArgAddr returns the address of a stack-passed argument at function
// entry.
func (d *Dump) StackArgAddr(index int) (uint64, error) {
	if index < 0 {
		return 0, fmt.Errorf("invalid argument index %d", index)
	}
	if !arch.IsStackArg(d.arch, index) {
		return 0, fmt.Errorf("argument %d: %w", index, ErrRegisterArg)
	}

	// Position among the stack-passed arguments.
	slot := 0
	for i := range index {
		if arch.IsStackArg(d.arch, i) {
			slot++
		}
	}

	sp, err := d.SP()
	if err != nil {
		return 0, err
	}
	wordSize := uint64(arch.WordSize(d.arch))
	return sp + uint64(d.arch.ArgStackOffset()+slot)*wordSize, nil
}
