// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package arch describes where registers live inside the raw register dump
// the kernel hands to a probe, for each supported CPU architecture.
package arch // import "go.opentelemetry.io/ebpf-tracer/arch"

import (
	"errors"
	"fmt"
	"slices"
)

var (
	// ErrUnknownRegister is returned when a register name is in neither
	// register table of an architecture.
	ErrUnknownRegister = errors.New("unknown register")

	// ErrInconsistent reports a defect in the architecture description
	// itself, e.g. a mandatory role register that does not resolve.
	ErrInconsistent = errors.New("inconsistent architecture description")

	// ErrUnsupported is returned when a capability is not available on
	// the architecture.
	ErrUnsupported = errors.New("not supported on this architecture")

	// ErrUnknownArch is returned when no architecture is registered
	// under the requested name.
	ErrUnknownArch = errors.New("unknown architecture")
)

// Arch is the register map of a single CPU architecture. All methods are
// pure queries over immutable data and are safe for concurrent use.
type Arch interface {
	// Name returns the architecture identity, e.g. "mips64".
	Name() string

	// Offset returns the word offset of the named register in the
	// register dump. The canonical table is searched first, then the
	// ptrace-style table. The returned position is relative to the
	// table the name was found in.
	Offset(name string) (int, bool)

	// MaxArg returns the highest valid zero-based argument index.
	MaxArg() int

	// ArgOffset returns the word offset of the register carrying
	// argument index. It reports false for an argument that is passed
	// on the stack. It panics if index is outside [0, MaxArg()].
	ArgOffset(index int) (int, bool)

	// PCOffset returns the word offset of the program counter.
	PCOffset() (int, bool)

	// RetOffset returns the word offset of the return value register.
	RetOffset() (int, bool)

	// SPOffset returns the word offset of the stack pointer.
	SPOffset() (int, bool)

	// ArgStackOffset returns the number of words from the stack pointer
	// at function entry to the first stack-passed argument.
	ArgStackOffset() int

	// WatchpointModes returns the supported watchpoint trigger modes.
	// An empty result means hardware watchpoints are unsupported.
	WatchpointModes() []string

	// KernelPtrWidth returns the width of a kernel pointer in bits.
	KernelPtrWidth() int
}

// UnknownRegisterError names a register that could not be resolved.
type UnknownRegisterError struct {
	Arch string
	Name string
}

func (e *UnknownRegisterError) Error() string {
	return fmt.Sprintf("unknown register %q for architecture %s", e.Name, e.Arch)
}

func (e *UnknownRegisterError) Unwrap() error {
	return ErrUnknownRegister
}

// ResolveRegister is Offset for names that come from user input. A miss
// is returned as *UnknownRegisterError.
func ResolveRegister(a Arch, name string) (int, error) {
	off, ok := a.Offset(name)
	if !ok {
		return 0, &UnknownRegisterError{Arch: a.Name(), Name: name}
	}
	return off, nil
}

// WordSize returns the size of a register dump word in bytes.
func WordSize(a Arch) int {
	return a.KernelPtrWidth() / 8
}

// HasWatchpointMode checks whether mode is one of the watchpoint trigger
// modes of the architecture.
func HasWatchpointMode(a Arch, mode string) bool {
	return slices.Contains(a.WatchpointModes(), mode)
}

func inconsistent(a Arch, role string) error {
	return fmt.Errorf("%s: %s register does not resolve: %w", a.Name(), role, ErrInconsistent)
}

// MustPCOffset returns the program counter offset. A miss is a defect in
// the register tables, so it panics.
func MustPCOffset(a Arch) int {
	off, ok := a.PCOffset()
	if !ok {
		panic(inconsistent(a, "program counter"))
	}
	return off
}

// MustRetOffset returns the return value offset or panics.
func MustRetOffset(a Arch) int {
	off, ok := a.RetOffset()
	if !ok {
		panic(inconsistent(a, "return value"))
	}
	return off
}

// MustSPOffset returns the stack pointer offset or panics.
func MustSPOffset(a Arch) int {
	off, ok := a.SPOffset()
	if !ok {
		panic(inconsistent(a, "stack pointer"))
	}
	return off
}
