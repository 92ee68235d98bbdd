// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

//go:build linux && (mips64 || mips64le)

package mips64 // import "go.opentelemetry.io/ebpf-tracer/arch/mips64"

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// FromPtrace converts the PTRACE_GETREGS register set into a register dump.
func FromPtrace(regs *unix.PtraceRegs) []uint64 {
	u := UserRegs(*regs)
	return u.Dump()
}

// ReadDump reads the registers of a stopped, ptrace-attached thread.
func ReadDump(tid int) ([]uint64, error) {
	var regs unix.PtraceRegs
	if err := unix.PtraceGetRegs(tid, &regs); err != nil {
		return nil, fmt.Errorf("failed to read registers of %d: %w", tid, err)
	}
	return FromPtrace(&regs), nil
}
