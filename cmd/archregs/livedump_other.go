// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

//go:build !(linux && (mips64 || mips64le))

package main

import (
	"fmt"
	"runtime"

	"go.opentelemetry.io/ebpf-tracer/arch"
)

func readLiveDump(a arch.Arch, _ int) ([]uint64, error) {
	return nil, fmt.Errorf("reading live %s registers on %s: %w",
		a.Name(), runtime.GOARCH, arch.ErrUnsupported)
}
