// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package bpfgen emits eBPF instructions that read values out of the probe
// context, i.e. the register dump the kernel passes to a kprobe or uprobe
// program.
package bpfgen // import "go.opentelemetry.io/ebpf-tracer/bpfgen"

import (
	"errors"
	"fmt"
	"math"

	"github.com/cilium/ebpf/asm"

	"go.opentelemetry.io/ebpf-tracer/arch"
	"go.opentelemetry.io/ebpf-tracer/usdt"
)

// ErrStackArg is returned by LoadArg for arguments that are not passed in a
// register.
var ErrStackArg = errors.New("argument is passed on the stack")

// Generator emits context loads for one architecture. Ctx is the register
// holding the context pointer. It must not be one of R0-R5, which are
// clobbered by helper calls.
type Generator struct {
	Arch arch.Arch
	Ctx  asm.Register
}

// New returns a Generator reading the context from ctx.
func New(a arch.Arch, ctx asm.Register) (*Generator, error) {
	if ctx <= asm.R5 || ctx == asm.RFP {
		return nil, fmt.Errorf("context register %s is clobbered by helper calls", ctx)
	}
	return &Generator{Arch: a, Ctx: ctx}, nil
}

func (g *Generator) wordSize() asm.Size {
	if arch.WordSize(g.Arch) == 4 {
		return asm.Word
	}
	return asm.DWord
}

func (g *Generator) load(dst asm.Register, off int) (asm.Instructions, error) {
	byteOff := off * arch.WordSize(g.Arch)
	if byteOff > math.MaxInt16 {
		return nil, fmt.Errorf("context offset %d out of range", byteOff)
	}
	return asm.Instructions{
		asm.LoadMem(dst, g.Ctx, int16(byteOff), g.wordSize()),
	}, nil
}

func (g *Generator) role(dst asm.Register, role string, off int, ok bool) (asm.Instructions, error) {
	if !ok {
		return nil, fmt.Errorf("%s: %s register does not resolve: %w",
			g.Arch.Name(), role, arch.ErrInconsistent)
	}
	return g.load(dst, off)
}

// LoadRegister loads the register named by the user into dst.
func (g *Generator) LoadRegister(dst asm.Register, name string) (asm.Instructions, error) {
	off, err := arch.ResolveRegister(g.Arch, name)
	if err != nil {
		return nil, err
	}
	return g.load(dst, off)
}

// LoadArg loads argument index into dst. Indexes beyond MaxArg() and
// stack-passed arguments return ErrStackArg.
func (g *Generator) LoadArg(dst asm.Register, index int) (asm.Instructions, error) {
	if index < 0 {
		return nil, fmt.Errorf("invalid argument index %d", index)
	}
	if arch.IsStackArg(g.Arch, index) {
		return nil, fmt.Errorf("argument %d: %w", index, ErrStackArg)
	}
	off, ok := g.Arch.ArgOffset(index)
	return g.role(dst, fmt.Sprintf("argument %d", index), off, ok)
}

// LoadRet loads the return value into dst.
func (g *Generator) LoadRet(dst asm.Register) (asm.Instructions, error) {
	off, ok := g.Arch.RetOffset()
	return g.role(dst, "return value", off, ok)
}

// LoadPC loads the program counter into dst.
func (g *Generator) LoadPC(dst asm.Register) (asm.Instructions, error) {
	off, ok := g.Arch.PCOffset()
	return g.role(dst, "program counter", off, ok)
}

// LoadSP loads the stack pointer into dst.
func (g *Generator) LoadSP(dst asm.Register) (asm.Instructions, error) {
	off, ok := g.Arch.SPOffset()
	return g.role(dst, "stack pointer", off, ok)
}

// extend truncates the 64-bit value in dst to size bytes, sign extending it
// if signed is set.
func extend(dst asm.Register, size int, signed bool) asm.Instructions {
	if size >= 8 {
		return nil
	}
	shift := int32(64 - size*8)
	insns := asm.Instructions{asm.LSh.Imm(dst, shift)}
	if signed {
		return append(insns, asm.ArSh.Imm(dst, shift))
	}
	return append(insns, asm.RSh.Imm(dst, shift))
}

func memSize(size int) asm.Size {
	switch size {
	case 1:
		return asm.Byte
	case 2:
		return asm.Half
	case 4:
		return asm.Word
	default:
		return asm.DWord
	}
}

// LoadUSDTArg loads a parsed USDT argument into dst. Dereferences read user
// memory with bpf_probe_read_user through the 8 byte stack slot at
// slot(R10); they clobber R0-R5.
func (g *Generator) LoadUSDTArg(dst asm.Register, spec *usdt.ArgSpec, slot int16) (asm.Instructions, error) {
	switch spec.Type {
	case usdt.ArgConst:
		return append(asm.Instructions{asm.LoadImm(dst, spec.ValOff, asm.DWord)},
			extend(dst, spec.Size, spec.Signed)...), nil

	case usdt.ArgReg:
		insns, err := g.load(dst, spec.RegOffset)
		if err != nil {
			return nil, err
		}
		return append(insns, extend(dst, spec.Size, spec.Signed)...), nil

	case usdt.ArgRegDeref:
		if spec.ValOff < math.MinInt32 || spec.ValOff > math.MaxInt32 {
			return nil, fmt.Errorf("dereference offset %d out of range", spec.ValOff)
		}
		if slot > -8 {
			return nil, fmt.Errorf("invalid stack slot %d", slot)
		}
		insns, err := g.load(asm.R3, spec.RegOffset)
		if err != nil {
			return nil, err
		}
		insns = append(insns,
			asm.Add.Imm(asm.R3, int32(spec.ValOff)),
			asm.StoreImm(asm.RFP, slot, 0, asm.DWord),
			asm.Mov.Reg(asm.R1, asm.RFP),
			asm.Add.Imm(asm.R1, int32(slot)),
			asm.Mov.Imm(asm.R2, int32(spec.Size)),
			asm.FnProbeReadUser.Call(),
			asm.LoadMem(dst, asm.RFP, slot, memSize(spec.Size)),
		)
		if spec.Signed {
			insns = append(insns, extend(dst, spec.Size, true)...)
		}
		return insns, nil
	}
	return nil, fmt.Errorf("unknown USDT argument type %s", spec.Type)
}
