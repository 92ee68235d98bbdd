// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package arch // import "go.opentelemetry.io/ebpf-tracer/arch"

import "slices"

// Table is an ordered list of register names. The index of a name is the
// word offset of that register in the register dump.
type Table []string

// Index returns the position of the first exact, case-sensitive match.
func (t Table) Index(name string) (int, bool) {
	i := slices.Index(t, name)
	return i, i >= 0
}

// Clone returns a copy of the table that callers may modify.
func (t Table) Clone() Table {
	return slices.Clone(t)
}

// Describer is implemented by architectures that can list their register
// tables, e.g. for diagnostics.
type Describer interface {
	// Registers returns the canonical register table.
	Registers() Table
	// PtraceRegisters returns the ptrace-style register table.
	PtraceRegisters() Table
	// ArgRegisters returns the argument register table.
	ArgRegisters() Table
}
