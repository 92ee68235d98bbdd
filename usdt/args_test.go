// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package usdt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.opentelemetry.io/ebpf-tracer/arch"
	"go.opentelemetry.io/ebpf-tracer/arch/mips64"
)

func TestParseArgSpec(t *testing.T) {
	tests := []struct {
		name        string
		argStr      string
		expectError bool
		expected    *ArgSpec
	}{
		{
			name:   "numeric register value",
			argStr: "8@$4",
			expected: &ArgSpec{
				Type:      ArgReg,
				Size:      8,
				RegName:   "regs[4]",
				RegOffset: 4,
			},
		},
		{
			name:   "signed named register value",
			argStr: "-4@$a1",
			expected: &ArgSpec{
				Type:      ArgReg,
				Size:      4,
				Signed:    true,
				RegName:   "a1",
				RegOffset: 5,
			},
		},
		{
			name:   "memory dereference with negative offset",
			argStr: "-4@-1204($30)",
			expected: &ArgSpec{
				Type:      ArgRegDeref,
				Size:      4,
				Signed:    true,
				RegName:   "regs[30]",
				RegOffset: 30,
				ValOff:    -1204,
			},
		},
		{
			name:   "memory dereference with positive offset",
			argStr: "8@16($sp)",
			expected: &ArgSpec{
				Type:      ArgRegDeref,
				Size:      8,
				RegName:   "sp",
				RegOffset: 29,
				ValOff:    16,
			},
		},
		{
			name:   "memory dereference without offset",
			argStr: "2@($29)",
			expected: &ArgSpec{
				Type:      ArgRegDeref,
				Size:      2,
				RegName:   "regs[29]",
				RegOffset: 29,
			},
		},
		{
			name:   "frame pointer value",
			argStr: "-4@$fp",
			expected: &ArgSpec{
				Type:      ArgReg,
				Size:      4,
				Signed:    true,
				RegName:   "regs[30]",
				RegOffset: 30,
			},
		},
		{
			name:   "frame pointer dereference",
			argStr: "-4@24($fp)",
			expected: &ArgSpec{
				Type:      ArgRegDeref,
				Size:      4,
				Signed:    true,
				RegName:   "regs[30]",
				RegOffset: 30,
				ValOff:    24,
			},
		},
		{
			name:   "s8 alias dereference",
			argStr: "8@-16($s8)",
			expected: &ArgSpec{
				Type:      ArgRegDeref,
				Size:      8,
				RegName:   "regs[30]",
				RegOffset: 30,
				ValOff:    -16,
			},
		},
		{
			name:   "constant value",
			argStr: "-4@5",
			expected: &ArgSpec{
				Type:   ArgConst,
				Size:   4,
				Signed: true,
				ValOff: 5,
			},
		},
		{
			name:   "negative constant",
			argStr: "-8@-9",
			expected: &ArgSpec{
				Type:   ArgConst,
				Size:   8,
				Signed: true,
				ValOff: -9,
			},
		},
		{
			name:   "surrounding whitespace",
			argStr: "  1 @ $v0 ",
			expected: &ArgSpec{
				Type:      ArgReg,
				Size:      1,
				RegName:   "v0",
				RegOffset: 2,
			},
		},
		{
			name:        "empty string",
			argStr:      "",
			expectError: true,
		},
		{
			name:        "invalid size",
			argStr:      "3@$4",
			expectError: true,
		},
		{
			name:        "x86 syntax",
			argStr:      "8@%rax",
			expectError: true,
		},
		{
			name:        "missing size",
			argStr:      "@$4",
			expectError: true,
		},
	}

	a := mips64.Arch{}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			spec, err := ParseArgSpec(a, tc.argStr)
			if tc.expectError {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, spec)
		})
	}
}

func TestParseArgSpecUnknownRegister(t *testing.T) {
	a := mips64.Arch{}
	for _, argStr := range []string{"8@$40", "4@8($rbp)", "8@($x0)", "-4@$s9"} {
		_, err := ParseArgSpec(a, argStr)
		require.ErrorIs(t, err, arch.ErrUnknownRegister, argStr)

		var unknown *arch.UnknownRegisterError
		require.ErrorAs(t, err, &unknown)
		assert.NotEmpty(t, unknown.Name)
		assert.Equal(t, "mips64", unknown.Arch)
	}
}

func TestBitShift(t *testing.T) {
	for size, shift := range map[int]int8{1: 56, 2: 48, 4: 32, 8: 0} {
		s := ArgSpec{Size: size}
		assert.Equal(t, shift, s.BitShift())
	}
}

func TestParseArguments(t *testing.T) {
	a := mips64.Arch{}

	spec, err := ParseArguments(a, "-4@$4 8@16($sp) 4@7")
	require.NoError(t, err)
	require.Len(t, spec.Args, 3)
	assert.Equal(t, ArgReg, spec.Args[0].Type)
	assert.Equal(t, ArgRegDeref, spec.Args[1].Type)
	assert.Equal(t, ArgConst, spec.Args[2].Type)

	spec, err = ParseArguments(a, "   ")
	require.NoError(t, err)
	assert.Empty(t, spec.Args)

	_, err = ParseArguments(a, "8@$4 8@$5 8@$6 8@$7 8@$8 8@$9 8@$10 8@$11 8@$12 8@$13 8@$14 8@$15 8@$16")
	require.Error(t, err)

	_, err = ParseArguments(a, "8@$4 8@$bogus")
	require.ErrorIs(t, err, arch.ErrUnknownRegister)
	assert.Contains(t, err.Error(), "argument 1")
	assert.Contains(t, err.Error(), "bogus")
}

func TestArgTypeString(t *testing.T) {
	assert.Equal(t, "const", ArgConst.String())
	assert.Equal(t, "reg", ArgReg.String())
	assert.Equal(t, "deref", ArgRegDeref.String())
	assert.Equal(t, "ArgType(9)", ArgType(9).String())
}
