// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.opentelemetry.io/ebpf-tracer/arch"
	"go.opentelemetry.io/ebpf-tracer/bpfgen"
	"go.opentelemetry.io/ebpf-tracer/usdt"
)

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := run(context.Background(), args, &out)
	return out.String(), err
}

func TestInfo(t *testing.T) {
	out, err := runCommand(t, "-arch", "mips64", "info")
	require.NoError(t, err)
	assert.Regexp(t, `architecture\s+mips64`, out)
	assert.Regexp(t, `kernel pointer width\s+64 bits`, out)
	assert.Regexp(t, `register arguments\s+8`, out)
	assert.Regexp(t, `program counter\s+37`, out)
	assert.Regexp(t, `stack pointer\s+29`, out)
	assert.Regexp(t, `watchpoint modes\s+unsupported`, out)
}

func TestTable(t *testing.T) {
	out, err := runCommand(t, "-arch=mips64", "table")
	require.NoError(t, err)
	assert.Regexp(t, `canonical\s+29\s+sp`, out)
	assert.Regexp(t, `ptrace\s+37\s+cp0_epc`, out)
	assert.Regexp(t, `argument\s+0\s+a0`, out)
}

func TestResolve(t *testing.T) {
	out, err := runCommand(t, "-arch", "mips64", "resolve", "sp", "v0", "regs[4]")
	require.NoError(t, err)
	assert.Regexp(t, `sp\s+29`, out)
	assert.Regexp(t, `v0\s+2`, out)
	assert.Regexp(t, `regs\[4\]\s+4`, out)

	out, err = runCommand(t, "-arch", "mips64", "resolve", "a0", "not_a_register")
	require.ErrorIs(t, err, arch.ErrUnknownRegister)
	assert.Contains(t, err.Error(), "not_a_register")
	assert.Regexp(t, `a0\s+4`, out)

	_, err = runCommand(t, "-arch", "mips64", "resolve")
	require.Error(t, err)
}

func TestUnknownArch(t *testing.T) {
	_, err := runCommand(t, "-arch", "vax", "info")
	require.ErrorIs(t, err, arch.ErrUnknownArch)
}

func TestDefaultArch(t *testing.T) {
	out, err := runCommand(t, "info")
	require.NoError(t, err)
	assert.Contains(t, out, "mips64")
}

func TestWatch(t *testing.T) {
	_, err := runCommand(t, "-arch", "mips64", "watch", "-addr", "0x1000", "-mode", "w")
	require.ErrorIs(t, err, arch.ErrUnsupported)

	_, err = runCommand(t, "-arch", "mips64", "watch", "-addr", "nope")
	require.Error(t, err)
}

func TestBadLogLevel(t *testing.T) {
	_, err := runCommand(t, "-log-level", "loud", "info")
	require.Error(t, err)
}

func TestScanFilesMissing(t *testing.T) {
	a, err := arch.Lookup("mips64")
	require.NoError(t, err)
	p, err := usdt.NewParser(a, 8)
	require.NoError(t, err)

	_, err = scanFiles(context.Background(), p,
		[]string{filepath.Join(t.TempDir(), "missing")}, 2)
	require.Error(t, err)

	_, err = runCommand(t, "-arch", "mips64", "usdt")
	require.Error(t, err)
}

func TestFormatArg(t *testing.T) {
	assert.Equal(t, "-4:const(5)", formatArg(&usdt.ArgSpec{Type: usdt.ArgConst, Size: 4, Signed: true, ValOff: 5}))
	assert.Equal(t, "8:a0[4]", formatArg(&usdt.ArgSpec{Type: usdt.ArgReg, Size: 8, RegName: "a0", RegOffset: 4}))
	assert.Equal(t, "8:*(sp[29]-16)", formatArg(&usdt.ArgSpec{
		Type: usdt.ArgRegDeref, Size: 8, RegName: "sp", RegOffset: 29, ValOff: -16,
	}))
}

// writeDump stores a 38 word mips64 register dump and returns its path.
func writeDump(t *testing.T, order binary.ByteOrder) string {
	t.Helper()
	raw := make([]byte, 38*8)
	put := func(off int, v uint64) { order.PutUint64(raw[off*8:], v) }
	put(2, 42)          // v0
	put(4, 0xa0)        // a0
	put(11, 0xa7)       // a7
	put(29, 0x7fff0000) // sp
	put(31, 0x120000ff) // ra
	put(37, 0x120001234)

	path := filepath.Join(t.TempDir(), "regs.bin")
	require.NoError(t, os.WriteFile(path, raw, 0o600))
	return path
}

func TestDump(t *testing.T) {
	for _, tc := range []struct {
		order binary.ByteOrder
		flag  string
	}{
		{binary.LittleEndian, "little"},
		{binary.BigEndian, "big"},
	} {
		t.Run(tc.flag, func(t *testing.T) {
			path := writeDump(t, tc.order)
			out, err := runCommand(t, "-arch", "mips64", "dump",
				"-file", path, "-order", tc.flag, "ra")
			require.NoError(t, err)
			assert.Regexp(t, `pc\s+0x120001234`, out)
			assert.Regexp(t, `sp\s+0x7fff0000`, out)
			assert.Regexp(t, `ret\s+0x2a`, out)
			assert.Regexp(t, `arg0\s+0xa0`, out)
			assert.Regexp(t, `arg7\s+0xa7`, out)
			assert.Regexp(t, `arg8\s+stack at 0x7fff0008`, out)
			assert.Regexp(t, `arg9\s+stack at 0x7fff0010`, out)
			assert.Regexp(t, `ra\s+0x120000ff`, out)
		})
	}
}

func TestDumpErrors(t *testing.T) {
	path := writeDump(t, binary.LittleEndian)

	_, err := runCommand(t, "-arch", "mips64", "dump", "-file", path, "not_a_register")
	require.ErrorIs(t, err, arch.ErrUnknownRegister)

	_, err = runCommand(t, "-arch", "mips64", "dump", "-file", path, "-order", "middle")
	require.Error(t, err)

	_, err = runCommand(t, "-arch", "mips64", "dump")
	require.Error(t, err)

	_, err = runCommand(t, "-arch", "mips64", "dump", "-file", path, "-pid", "1")
	require.Error(t, err)

	short := filepath.Join(t.TempDir(), "short.bin")
	require.NoError(t, os.WriteFile(short, make([]byte, 12), 0o600))
	_, err = runCommand(t, "-arch", "mips64", "dump", "-file", short)
	require.Error(t, err)
}

func TestGen(t *testing.T) {
	out, err := runCommand(t, "-arch", "mips64", "gen", "pc", "sp", "ret", "arg0", "ra")
	require.NoError(t, err)
	assert.Contains(t, out, "pc:\n")
	assert.Contains(t, out, "src: r6 off: 296")
	assert.Contains(t, out, "src: r6 off: 232")
	assert.Contains(t, out, "src: r6 off: 16")
	assert.Contains(t, out, "src: r6 off: 32")
	assert.Contains(t, out, "src: r6 off: 248")

	out, err = runCommand(t, "-arch", "mips64", "gen", "-ctx", "9", "-dst", "7", "-4@24($fp)")
	require.NoError(t, err)
	assert.Contains(t, out, "src: r9 off: 240")
	assert.Contains(t, out, "FnProbeReadUser")
	assert.Contains(t, out, "dst: r7")
}

func TestGenErrors(t *testing.T) {
	_, err := runCommand(t, "-arch", "mips64", "gen", "arg8")
	require.ErrorIs(t, err, bpfgen.ErrStackArg)

	_, err = runCommand(t, "-arch", "mips64", "gen", "bogus")
	require.ErrorIs(t, err, arch.ErrUnknownRegister)

	_, err = runCommand(t, "-arch", "mips64", "gen", "-ctx", "1", "pc")
	require.Error(t, err)

	_, err = runCommand(t, "-arch", "mips64", "gen", "-dst", "10", "pc")
	require.Error(t, err)

	_, err = runCommand(t, "-arch", "mips64", "gen")
	require.Error(t, err)
}
