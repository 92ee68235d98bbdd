// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package mips64 provides the register map of 64-bit MIPS Linux kernels.
package mips64 // import "go.opentelemetry.io/ebpf-tracer/arch/mips64"

import (
	"go.opentelemetry.io/ebpf-tracer/arch"
)

// Name is the identity of the architecture.
const Name = "mips64"

// SP + 8 points to the first argument passed on the stack.
const argStackBytes = 8

const ptrWidth = 64

var registers = [32]string{
	"zero",
	"at",
	"v0",
	"v1",
	"a0",
	"a1",
	"a2",
	"a3",
	"a4",
	"a5",
	"a6",
	"a7",
	"t0",
	"t1",
	"t2",
	"t3",
	"s0",
	"s1",
	"s2",
	"s3",
	"s4",
	"s5",
	"s6",
	"s7",
	"t8",
	"t9",
	"k0",
	"k1",
	"gp",
	"sp",
	"fp/s8",
	"ra",
}

// ptraceRegisters follows the field names of struct pt_regs, which appear
// in USDT probe arguments. The layout is the one of 64-bit kernels built
// without CONFIG_CPU_HAS_SMARTMIPS (no acx slot after lo), see
// arch/mips/include/asm/ptrace.h.
var ptraceRegisters = [38]string{
	"regs[0]",
	"regs[1]",
	"regs[2]",
	"regs[3]",
	"regs[4]",
	"regs[5]",
	"regs[6]",
	"regs[7]",
	"regs[8]",
	"regs[9]",
	"regs[10]",
	"regs[11]",
	"regs[12]",
	"regs[13]",
	"regs[14]",
	"regs[15]",
	"regs[16]",
	"regs[17]",
	"regs[18]",
	"regs[19]",
	"regs[20]",
	"regs[21]",
	"regs[22]",
	"regs[23]",
	"regs[24]",
	"regs[25]",
	"regs[26]",
	"regs[27]",
	"regs[28]",
	"regs[29]",
	"regs[30]",
	"regs[31]",
	"cp0_status",
	"hi",
	"lo",
	"cp0_badvaddr",
	"cp0_cause",
	"cp0_epc",
}

var argRegisters = [8]string{
	"a0",
	"a1",
	"a2",
	"a3",
	"a4",
	"a5",
	"a6",
	"a7",
}

const (
	pcRegister  = "cp0_epc"
	retRegister = "v0"
	spRegister  = "sp"
)

// Arch implements arch.Arch for mips64. The zero value is ready to use.
type Arch struct{}

var (
	_ arch.Arch      = Arch{}
	_ arch.Describer = Arch{}
)

func init() {
	arch.Register(Arch{})
}

// Name implements arch.Arch.
func (Arch) Name() string {
	return Name
}

// Offset implements arch.Arch. Names matching the fields of struct
// pt_regs resolve against the ptrace table when they are not canonical.
func (Arch) Offset(name string) (int, bool) {
	if off, ok := arch.Table(registers[:]).Index(name); ok {
		return off, true
	}
	return arch.Table(ptraceRegisters[:]).Index(name)
}

// MaxArg implements arch.Arch.
func (Arch) MaxArg() int {
	return len(argRegisters) - 1
}

// ArgOffset implements arch.Arch. It panics if index is beyond MaxArg.
func (a Arch) ArgOffset(index int) (int, bool) {
	return a.Offset(argRegisters[index])
}

// PCOffset implements arch.Arch.
func (a Arch) PCOffset() (int, bool) {
	return a.Offset(pcRegister)
}

// RetOffset implements arch.Arch.
func (a Arch) RetOffset() (int, bool) {
	return a.Offset(retRegister)
}

// SPOffset implements arch.Arch.
func (a Arch) SPOffset() (int, bool) {
	return a.Offset(spRegister)
}

// ArgStackOffset implements arch.Arch.
func (Arch) ArgStackOffset() int {
	return argStackBytes / (ptrWidth / 8)
}

// WatchpointModes implements arch.Arch. Hardware watchpoints are not
// supported.
func (Arch) WatchpointModes() []string {
	return nil
}

// KernelPtrWidth implements arch.Arch.
func (Arch) KernelPtrWidth() int {
	return ptrWidth
}

// Registers returns a copy of the canonical register table.
func (Arch) Registers() arch.Table {
	return arch.Table(registers[:]).Clone()
}

// PtraceRegisters returns a copy of the ptrace-style register table.
func (Arch) PtraceRegisters() arch.Table {
	return arch.Table(ptraceRegisters[:]).Clone()
}

// ArgRegisters returns a copy of the argument register table.
func (Arch) ArgRegisters() arch.Table {
	return arch.Table(argRegisters[:]).Clone()
}
