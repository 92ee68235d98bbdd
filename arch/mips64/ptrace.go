// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package mips64 // import "go.opentelemetry.io/ebpf-tracer/arch/mips64"

// Word offsets of the registers following regs[] in struct pt_regs.
const (
	offStatus   = 32
	offHi       = 33
	offLo       = 34
	offBadvaddr = 35
	offCause    = 36
	offEpc      = 37
)

// UserRegs is the register set as returned by PTRACE_GETREGS. Its field
// order differs from the kernel's struct pt_regs.
type UserRegs struct {
	Regs     [32]uint64
	Lo       uint64
	Hi       uint64
	Epc      uint64
	Badvaddr uint64
	Status   uint64
	Cause    uint64
}

// Dump returns the registers as a register dump laid out like struct
// pt_regs, so the offsets of this package apply to it.
func (u *UserRegs) Dump() []uint64 {
	words := make([]uint64, len(ptraceRegisters))
	copy(words, u.Regs[:])
	words[offStatus] = u.Status
	words[offHi] = u.Hi
	words[offLo] = u.Lo
	words[offBadvaddr] = u.Badvaddr
	words[offCause] = u.Cause
	words[offEpc] = u.Epc
	return words
}
