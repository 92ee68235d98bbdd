// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package usdt // import "go.opentelemetry.io/ebpf-tracer/usdt"

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.opentelemetry.io/ebpf-tracer/arch"
)

// ArgType describes where the value of a USDT argument comes from.
type ArgType uint8

const (
	// ArgConst is an immediate value.
	ArgConst ArgType = iota
	// ArgReg is the value of a register.
	ArgReg
	// ArgRegDeref is the value in memory at register plus offset.
	ArgRegDeref
)

func (t ArgType) String() string {
	switch t {
	case ArgConst:
		return "const"
	case ArgReg:
		return "reg"
	case ArgRegDeref:
		return "deref"
	default:
		return fmt.Sprintf("ArgType(%d)", uint8(t))
	}
}

// MaxArgs is the maximum number of arguments of a single probe.
const MaxArgs = 12

// ArgSpec is a single parsed USDT argument.
type ArgSpec struct {
	Type ArgType
	// Size of the value in bytes.
	Size int
	// Signed values are sign extended from Size to 64 bits.
	Signed bool
	// RegName is the register as named in the probe argument, resolved
	// to a table name. Empty for constants.
	RegName string
	// RegOffset is the word offset of RegName in the register dump.
	RegOffset int
	// ValOff is the constant value or the dereference offset.
	ValOff int64
}

// BitShift returns the shift that moves a Size byte value to the top of a
// 64-bit word, as used for sign or zero extension.
func (s *ArgSpec) BitShift() int8 {
	return int8(64 - s.Size*8)
}

// Spec holds all arguments of a USDT probe.
type Spec struct {
	Args []ArgSpec
}

// Clone returns a deep copy of the spec.
func (s *Spec) Clone() *Spec {
	args := make([]ArgSpec, len(s.Args))
	copy(args, s.Args)
	return &Spec{Args: args}
}

// Regex patterns for the GNU as operand syntax used in the MIPS
// .note.stapsdt argument strings: SIZE@LOCATION where registers are
// written $N or $name and constants are bare numbers.
var (
	// Memory dereference with offset: -4@16($29) or 8@-8($sp)
	regexRegDerefWithOffset = regexp.MustCompile(
		`^\s*(-?\d+)\s*@\s*(-?\d+)\s*\(\s*\$([a-z0-9_]+)\s*\)\s*$`)
	// Memory dereference without offset: 8@($4)
	regexRegDerefNoOffset = regexp.MustCompile(
		`^\s*(-?\d+)\s*@\s*\(\s*\$([a-z0-9_]+)\s*\)\s*$`)
	// Constant: -4@100 or 4@0
	regexConst = regexp.MustCompile(`^\s*(-?\d+)\s*@\s*(-?\d+)\s*$`)
	// Register value: 8@$4 or -4@$a0
	regexReg = regexp.MustCompile(`^\s*(-?\d+)\s*@\s*\$([a-z0-9_]+)\s*$`)
)

// registerName maps an operand register to a name of the register map.
// Numeric registers use the struct pt_regs naming, regs[N]. The assembler
// prints register 30 as $fp or $s8, which the register map only knows in
// its combined form.
func registerName(operand string) string {
	if _, err := strconv.ParseUint(operand, 10, 8); err == nil {
		return "regs[" + operand + "]"
	}
	switch operand {
	case "fp", "s8":
		return "regs[30]"
	}
	return operand
}

func parseSize(s string, spec *ArgSpec) error {
	argSz, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid arg size: %w", err)
	}
	spec.Signed = argSz < 0
	if argSz < 0 {
		argSz = -argSz
	}
	switch argSz {
	case 1, 2, 4, 8:
		spec.Size = int(argSz)
	default:
		return fmt.Errorf("invalid arg size: %d", argSz)
	}
	return nil
}

func resolve(a arch.Arch, operand string, spec *ArgSpec) error {
	name := registerName(operand)
	off, err := arch.ResolveRegister(a, name)
	if err != nil {
		return err
	}
	spec.RegName = name
	spec.RegOffset = off
	return nil
}

// https://sourceware.org/systemtap/wiki/UserSpaceProbeImplementation
// ParseArgSpec parses a single USDT argument specification string.
// Examples: "-4@16($29)", "8@$4", "-4@$a0", "4@100", "8@($sp)"
func ParseArgSpec(a arch.Arch, argStr string) (*ArgSpec, error) {
	argStr = strings.TrimSpace(argStr)
	if argStr == "" {
		return nil, errors.New("empty argument string")
	}

	spec := &ArgSpec{}

	if matches := regexRegDerefWithOffset.FindStringSubmatch(argStr); matches != nil {
		if err := parseSize(matches[1], spec); err != nil {
			return nil, err
		}
		offset, err := strconv.ParseInt(matches[2], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid memory offset: %w", err)
		}
		spec.Type = ArgRegDeref
		spec.ValOff = offset
		if err := resolve(a, matches[3], spec); err != nil {
			return nil, err
		}
		return spec, nil
	}

	if matches := regexRegDerefNoOffset.FindStringSubmatch(argStr); matches != nil {
		if err := parseSize(matches[1], spec); err != nil {
			return nil, err
		}
		spec.Type = ArgRegDeref
		if err := resolve(a, matches[2], spec); err != nil {
			return nil, err
		}
		return spec, nil
	}

	if matches := regexConst.FindStringSubmatch(argStr); matches != nil {
		if err := parseSize(matches[1], spec); err != nil {
			return nil, err
		}
		constVal, err := strconv.ParseInt(matches[2], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid constant value: %w", err)
		}
		spec.Type = ArgConst
		spec.ValOff = constVal
		return spec, nil
	}

	if matches := regexReg.FindStringSubmatch(argStr); matches != nil {
		if err := parseSize(matches[1], spec); err != nil {
			return nil, err
		}
		spec.Type = ArgReg
		if err := resolve(a, matches[2], spec); err != nil {
			return nil, err
		}
		return spec, nil
	}

	return nil, fmt.Errorf("unrecognized argument format: %s", argStr)
}

// ParseArguments parses the space separated argument string of a probe,
// e.g. "-4@$4 8@16($sp) 4@7".
func ParseArguments(a arch.Arch, argString string) (*Spec, error) {
	argStrs := strings.Fields(argString)
	if len(argStrs) > MaxArgs {
		return nil, fmt.Errorf("too many arguments: %d (max %d)", len(argStrs), MaxArgs)
	}

	spec := &Spec{Args: make([]ArgSpec, 0, len(argStrs))}
	for i, argStr := range argStrs {
		argSpec, err := ParseArgSpec(a, argStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse argument %d (%s): %w", i, argStr, err)
		}
		spec.Args = append(spec.Args, *argSpec)
	}
	return spec, nil
}
