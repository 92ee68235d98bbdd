// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/binary"
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/cilium/ebpf/asm"
	"github.com/peterbourgon/ff/v3/ffcli"

	"go.opentelemetry.io/ebpf-tracer/arch"
	"go.opentelemetry.io/ebpf-tracer/bpfgen"
	"go.opentelemetry.io/ebpf-tracer/regs"
	"go.opentelemetry.io/ebpf-tracer/usdt"
)

func newDumpCommand(cfg *config) *ffcli.Command {
	fs := flag.NewFlagSet("archregs dump", flag.ContinueOnError)
	file := fs.String("file", "", "Raw register dump laid out like struct pt_regs.")
	order := fs.String("order", "little", "Byte order of -file: little or big.")
	pid := fs.Int("pid", 0, "Thread to attach to and read the registers of.")
	nargs := fs.Int("args", 10, "Number of function arguments to print.")

	return &ffcli.Command{
		Name:       "dump",
		ShortUsage: "archregs dump (-file FILE | -pid TID) [-args N] [register...]",
		ShortHelp:  "Print the role registers and arguments held in a register dump.",
		FlagSet:    fs,
		Exec: func(_ context.Context, names []string) error {
			a, err := cfg.arch()
			if err != nil {
				return err
			}
			d, err := loadDump(a, *file, *order, *pid)
			if err != nil {
				return err
			}
			return printDump(cfg.out, d, *nargs, names)
		},
	}
}

func loadDump(a arch.Arch, file, order string, pid int) (*regs.Dump, error) {
	switch {
	case file != "" && pid != 0:
		return nil, errors.New("-file and -pid are mutually exclusive")
	case file != "":
		var bo binary.ByteOrder
		switch order {
		case "little":
			bo = binary.LittleEndian
		case "big":
			bo = binary.BigEndian
		default:
			return nil, fmt.Errorf("invalid byte order %q", order)
		}
		raw, err := os.ReadFile(file)
		if err != nil {
			return nil, err
		}
		return regs.FromBytes(a, raw, bo)
	case pid != 0:
		words, err := readLiveDump(a, pid)
		if err != nil {
			return nil, err
		}
		return regs.New(a, words), nil
	}
	return nil, errors.New("dump requires -file or -pid")
}

func printDump(out io.Writer, d *regs.Dump, nargs int, names []string) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, r := range []struct {
		name string
		read func() (uint64, error)
	}{
		{"pc", d.PC},
		{"sp", d.SP},
		{"ret", d.Ret},
	} {
		v, err := r.read()
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\t0x%x\n", r.name, v)
	}

	for i := range nargs {
		v, err := d.Arg(i)
		if err == nil {
			fmt.Fprintf(w, "arg%d\t0x%x\n", i, v)
			continue
		}
		if !errors.Is(err, regs.ErrStackArg) {
			return err
		}
		addr, err := d.StackArgAddr(i)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "arg%d\tstack at 0x%x\n", i, addr)
	}

	var errs []error
	for _, name := range names {
		v, err := d.Reg(name)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		fmt.Fprintf(w, "%s\t0x%x\n", name, v)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	return errors.Join(errs...)
}

// bpfRegister converts a flag value into one of the general purpose
// registers R0-R9.
func bpfRegister(flagName string, n int) (asm.Register, error) {
	if n < 0 || n >= int(asm.RFP) {
		return 0, fmt.Errorf("invalid -%s register r%d", flagName, n)
	}
	return asm.Register(n), nil
}

func newGenCommand(cfg *config) *ffcli.Command {
	fs := flag.NewFlagSet("archregs gen", flag.ContinueOnError)
	ctxReg := fs.Int("ctx", int(asm.R6), "BPF register holding the context pointer.")
	dstReg := fs.Int("dst", int(asm.R0), "BPF register the value is loaded into.")
	slot := fs.Int("slot", -8, "Stack offset of the scratch slot used by USDT dereferences.")

	return &ffcli.Command{
		Name:       "gen",
		ShortUsage: "archregs gen [-ctx N] [-dst N] <operand>...",
		ShortHelp: "Emit the eBPF loads for pc, sp, ret, argN, a register name " +
			"or a USDT argument like -4@24($fp).",
		FlagSet: fs,
		Exec: func(_ context.Context, operands []string) error {
			if len(operands) == 0 {
				return errors.New("gen requires at least one operand")
			}
			a, err := cfg.arch()
			if err != nil {
				return err
			}
			ctx, err := bpfRegister("ctx", *ctxReg)
			if err != nil {
				return err
			}
			dst, err := bpfRegister("dst", *dstReg)
			if err != nil {
				return err
			}
			if *slot < math.MinInt16 || *slot > math.MaxInt16 {
				return fmt.Errorf("invalid stack slot %d", *slot)
			}
			g, err := bpfgen.New(a, ctx)
			if err != nil {
				return err
			}

			for _, op := range operands {
				insns, err := genOperand(g, dst, op, int16(*slot))
				if err != nil {
					return fmt.Errorf("%s: %w", op, err)
				}
				fmt.Fprintf(cfg.out, "%s:\n%v", op, insns)
			}
			return nil
		},
	}
}

func genOperand(g *bpfgen.Generator, dst asm.Register, op string, slot int16) (asm.Instructions, error) {
	switch {
	case op == "pc":
		return g.LoadPC(dst)
	case op == "sp":
		return g.LoadSP(dst)
	case op == "ret":
		return g.LoadRet(dst)
	case strings.Contains(op, "@"):
		spec, err := usdt.ParseArgSpec(g.Arch, op)
		if err != nil {
			return nil, err
		}
		return g.LoadUSDTArg(dst, spec, slot)
	case strings.HasPrefix(op, "arg"):
		if index, err := strconv.Atoi(op[len("arg"):]); err == nil {
			return g.LoadArg(dst, index)
		}
	}
	return g.LoadRegister(dst, op)
}
