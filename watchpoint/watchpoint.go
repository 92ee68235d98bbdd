// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package watchpoint programs hardware watchpoints on architectures that
// support them.
package watchpoint // import "go.opentelemetry.io/ebpf-tracer/watchpoint"

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/elastic/go-perf"
	log "github.com/sirupsen/logrus"

	"go.opentelemetry.io/ebpf-tracer/arch"
)

// Mode is a watchpoint trigger mode made of the letters r (read), w
// (write) and x (execute), e.g. "rw".
type Mode string

// ParseMode normalizes a mode string. Letters may appear in any order but
// only once, and execute cannot be combined with read or write.
func ParseMode(s string) (Mode, error) {
	if s == "" {
		return "", errors.New("empty watchpoint mode")
	}
	var r, w, x bool
	for _, c := range s {
		var seen *bool
		switch c {
		case 'r':
			seen = &r
		case 'w':
			seen = &w
		case 'x':
			seen = &x
		default:
			return "", fmt.Errorf("invalid watchpoint mode %q: unknown flag %q", s, c)
		}
		if *seen {
			return "", fmt.Errorf("invalid watchpoint mode %q: duplicate flag %q", s, c)
		}
		*seen = true
	}
	if x && (r || w) {
		return "", fmt.Errorf("invalid watchpoint mode %q: execute cannot be combined", s)
	}

	var sb strings.Builder
	for _, f := range []struct {
		set    bool
		letter byte
	}{{r, 'r'}, {w, 'w'}, {x, 'x'}} {
		if f.set {
			sb.WriteByte(f.letter)
		}
	}
	return Mode(sb.String()), nil
}

func (m Mode) breakpointType() perf.BreakpointType {
	var t perf.BreakpointType
	for _, c := range m {
		switch c {
		case 'r':
			t |= perf.BreakpointTypeR
		case 'w':
			t |= perf.BreakpointTypeW
		case 'x':
			t |= perf.BreakpointTypeX
		}
	}
	return t
}

// Request describes a watchpoint.
type Request struct {
	Addr uint64
	// Len is the number of bytes watched: 1, 2, 4 or 8.
	Len  int
	Mode Mode
}

func (r Request) String() string {
	return fmt.Sprintf("%s watchpoint at 0x%x (%d bytes)", r.Mode, r.Addr, r.Len)
}

func (r Request) breakpointLength() (perf.BreakpointLength, error) {
	switch r.Len {
	case 1:
		return perf.BreakpointLength1, nil
	case 2:
		return perf.BreakpointLength2, nil
	case 4:
		return perf.BreakpointLength4, nil
	case 8:
		return perf.BreakpointLength8, nil
	}
	return 0, fmt.Errorf("invalid watchpoint length %d", r.Len)
}

// Check validates a request against the capabilities of the architecture
// without touching the system. Architectures without watchpoint modes
// reject every request with arch.ErrUnsupported.
func Check(a arch.Arch, req Request) error {
	modes := a.WatchpointModes()
	if len(modes) == 0 {
		return fmt.Errorf("watchpoints on %s: %w", a.Name(), arch.ErrUnsupported)
	}
	mode, err := ParseMode(string(req.Mode))
	if err != nil {
		return err
	}
	if !slices.Contains(modes, string(mode)) {
		return fmt.Errorf("watchpoint mode %s on %s: %w", mode, a.Name(), arch.ErrUnsupported)
	}
	if mode == "x" {
		// Execution breakpoints always cover one instruction.
		return nil
	}
	_, err = req.breakpointLength()
	return err
}

// Watchpoint is a programmed hardware watchpoint.
type Watchpoint struct {
	Request Request
	event   *perf.Event
}

// openEvent is replaced in tests.
var openEvent = perf.Open

// attr returns the perf event attributes for a checked request.
func attr(req Request) (*perf.Attr, error) {
	mode, err := ParseMode(string(req.Mode))
	if err != nil {
		return nil, err
	}
	var cf perf.Configurator
	if mode == "x" {
		cf = perf.ExecutionBreakpoint(req.Addr)
	} else {
		length, err := req.breakpointLength()
		if err != nil {
			return nil, err
		}
		cf = perf.Breakpoint(mode.breakpointType(), req.Addr, length)
	}
	pa := new(perf.Attr)
	if err := cf.Configure(pa); err != nil {
		return nil, fmt.Errorf("failed to configure %s: %w", req, err)
	}
	return pa, nil
}

// Open checks the request and programs the watchpoint for pid on cpu, with
// the perf_event_open conventions for pid and cpu.
func Open(a arch.Arch, req Request, pid, cpu int) (*Watchpoint, error) {
	if err := Check(a, req); err != nil {
		return nil, err
	}
	pa, err := attr(req)
	if err != nil {
		return nil, err
	}
	ev, err := openEvent(pa, pid, cpu, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", req, err)
	}
	log.Debugf("Opened %s for pid %d", req, pid)
	return &Watchpoint{Request: req, event: ev}, nil
}

// Close removes the watchpoint.
func (w *Watchpoint) Close() error {
	if w.event == nil {
		return nil
	}
	err := w.event.Close()
	w.event = nil
	log.Debugf("Closed %s", w.Request)
	return err
}
