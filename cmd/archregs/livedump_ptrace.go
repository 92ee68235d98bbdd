// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

//go:build linux && (mips64 || mips64le)

package main

import (
	"fmt"
	"runtime"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"go.opentelemetry.io/ebpf-tracer/arch"
	"go.opentelemetry.io/ebpf-tracer/arch/mips64"
)

// readLiveDump attaches to tid, reads its registers and detaches again.
func readLiveDump(a arch.Arch, tid int) ([]uint64, error) {
	if a.Name() != mips64.Name {
		return nil, fmt.Errorf("reading live %s registers on %s: %w",
			a.Name(), mips64.Name, arch.ErrUnsupported)
	}

	// ptrace requests must come from the attaching thread.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if err := unix.PtraceAttach(tid); err != nil {
		return nil, fmt.Errorf("failed to attach to %d: %w", tid, err)
	}
	defer func() {
		if err := unix.PtraceDetach(tid); err != nil {
			log.Warnf("Failed to detach from %d: %v", tid, err)
		}
	}()

	var ws unix.WaitStatus
	if _, err := unix.Wait4(tid, &ws, unix.WALL, nil); err != nil {
		return nil, fmt.Errorf("failed to wait for %d: %w", tid, err)
	}
	return mips64.ReadDump(tid)
}
