// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package arch // import "go.opentelemetry.io/ebpf-tracer/arch"

import (
	"fmt"
	"maps"
	"runtime"
	"slices"
	"sync"

	log "github.com/sirupsen/logrus"
)

// StackArgReporter is implemented by architectures whose argument table
// marks some indexes as passed on the stack rather than in a register.
type StackArgReporter interface {
	IsStackArg(index int) bool
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Arch)

	// goarchAliases maps GOARCH values to the register map serving them.
	goarchAliases = map[string]string{
		"mips64":   "mips64",
		"mips64le": "mips64",
	}
)

// Register makes an architecture available by its name. It is meant to be
// called from the init function of the implementing package and panics if
// the name is taken or if the description fails Validate.
func Register(a Arch) {
	if err := Validate(a); err != nil {
		panic(err)
	}

	registryMu.Lock()
	defer registryMu.Unlock()

	name := a.Name()
	if _, ok := registry[name]; ok {
		panic(fmt.Sprintf("arch: architecture %s registered twice", name))
	}
	registry[name] = a
	log.Debugf("Registered register map for %s", name)
}

// Lookup returns the architecture registered under name.
func Lookup(name string) (Arch, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	if a, ok := registry[name]; ok {
		return a, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownArch, name)
}

// Host returns the architecture matching the GOARCH of the running binary.
func Host() (Arch, error) {
	name, ok := goarchAliases[runtime.GOARCH]
	if !ok {
		return nil, fmt.Errorf("%w: no register map for GOARCH %s",
			ErrUnknownArch, runtime.GOARCH)
	}
	return Lookup(name)
}

// Names returns the sorted names of all registered architectures.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	return slices.Sorted(maps.Keys(registry))
}

// IsStackArg reports whether argument index is passed on the stack: either
// it is beyond the argument table or the table marks it as such.
func IsStackArg(a Arch, index int) bool {
	if index > a.MaxArg() {
		return true
	}
	if r, ok := a.(StackArgReporter); ok {
		return r.IsStackArg(index)
	}
	return false
}

// Validate checks that an architecture description is internally
// consistent. Errors wrap ErrInconsistent.
func Validate(a Arch) error {
	name := a.Name()
	if name == "" {
		return fmt.Errorf("architecture without a name: %w", ErrInconsistent)
	}
	if w := a.KernelPtrWidth(); w != 32 && w != 64 {
		return fmt.Errorf("%s: invalid kernel pointer width %d: %w",
			name, w, ErrInconsistent)
	}
	if a.MaxArg() < 0 {
		return fmt.Errorf("%s: empty argument register table: %w", name, ErrInconsistent)
	}
	if a.ArgStackOffset() < 0 {
		return fmt.Errorf("%s: negative stack argument offset: %w", name, ErrInconsistent)
	}
	if _, ok := a.PCOffset(); !ok {
		return inconsistent(a, "program counter")
	}
	if _, ok := a.RetOffset(); !ok {
		return inconsistent(a, "return value")
	}
	if _, ok := a.SPOffset(); !ok {
		return inconsistent(a, "stack pointer")
	}
	for i := 0; i <= a.MaxArg(); i++ {
		if _, ok := a.ArgOffset(i); !ok && !IsStackArg(a, i) {
			return inconsistent(a, fmt.Sprintf("argument %d", i))
		}
	}
	return nil
}
