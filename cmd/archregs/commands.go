// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"runtime"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/peterbourgon/ff/v3/ffcli"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"go.opentelemetry.io/ebpf-tracer/arch"
	"go.opentelemetry.io/ebpf-tracer/usdt"
	"go.opentelemetry.io/ebpf-tracer/watchpoint"
)

func newInfoCommand(cfg *config) *ffcli.Command {
	return &ffcli.Command{
		Name:       "info",
		ShortUsage: "archregs info",
		ShortHelp:  "Print the constants and role registers of the architecture.",
		Exec: func(context.Context, []string) error {
			a, err := cfg.arch()
			if err != nil {
				return err
			}
			return printInfo(cfg, a)
		},
	}
}

func printInfo(cfg *config, a arch.Arch) error {
	modes := "unsupported"
	if m := a.WatchpointModes(); len(m) > 0 {
		modes = strings.Join(m, ",")
	}

	w := tabwriter.NewWriter(cfg.out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "architecture\t%s\n", a.Name())
	fmt.Fprintf(w, "kernel pointer width\t%d bits\n", a.KernelPtrWidth())
	fmt.Fprintf(w, "register arguments\t%d\n", a.MaxArg()+1)
	fmt.Fprintf(w, "first stack argument\tsp + %d words\n", a.ArgStackOffset())
	fmt.Fprintf(w, "program counter\t%d\n", arch.MustPCOffset(a))
	fmt.Fprintf(w, "return value\t%d\n", arch.MustRetOffset(a))
	fmt.Fprintf(w, "stack pointer\t%d\n", arch.MustSPOffset(a))
	fmt.Fprintf(w, "watchpoint modes\t%s\n", modes)
	return w.Flush()
}

func newTableCommand(cfg *config) *ffcli.Command {
	return &ffcli.Command{
		Name:       "table",
		ShortUsage: "archregs table",
		ShortHelp:  "Print the register tables with their dump offsets.",
		Exec: func(context.Context, []string) error {
			a, err := cfg.arch()
			if err != nil {
				return err
			}
			d, ok := a.(arch.Describer)
			if !ok {
				return fmt.Errorf("listing tables of %s: %w", a.Name(), arch.ErrUnsupported)
			}

			w := tabwriter.NewWriter(cfg.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TABLE\tOFFSET\tNAME")
			for _, t := range []struct {
				name  string
				table arch.Table
			}{
				{"canonical", d.Registers()},
				{"ptrace", d.PtraceRegisters()},
				{"argument", d.ArgRegisters()},
			} {
				for i, reg := range t.table {
					fmt.Fprintf(w, "%s\t%d\t%s\n", t.name, i, reg)
				}
			}
			return w.Flush()
		},
	}
}

func newResolveCommand(cfg *config) *ffcli.Command {
	return &ffcli.Command{
		Name:       "resolve",
		ShortUsage: "archregs resolve <register>...",
		ShortHelp:  "Print the dump offset of each named register.",
		Exec: func(_ context.Context, args []string) error {
			if len(args) == 0 {
				return errors.New("resolve requires at least one register name")
			}
			a, err := cfg.arch()
			if err != nil {
				return err
			}

			var errs []error
			w := tabwriter.NewWriter(cfg.out, 0, 4, 2, ' ', 0)
			for _, name := range args {
				off, err := arch.ResolveRegister(a, name)
				if err != nil {
					errs = append(errs, err)
					continue
				}
				fmt.Fprintf(w, "%s\t%d\n", name, off)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			return errors.Join(errs...)
		},
	}
}

func formatArg(s *usdt.ArgSpec) string {
	size := strconv.Itoa(s.Size)
	if s.Signed {
		size = "-" + size
	}
	switch s.Type {
	case usdt.ArgConst:
		return fmt.Sprintf("%s:const(%d)", size, s.ValOff)
	case usdt.ArgReg:
		return fmt.Sprintf("%s:%s[%d]", size, s.RegName, s.RegOffset)
	default:
		return fmt.Sprintf("%s:*(%s[%d]%+d)", size, s.RegName, s.RegOffset, s.ValOff)
	}
}

func newUSDTCommand(cfg *config) *ffcli.Command {
	fs := flag.NewFlagSet("archregs usdt", flag.ContinueOnError)
	jobs := fs.Int("j", runtime.NumCPU(), "Number of files parsed concurrently.")
	cacheSize := fs.Uint("cache-size", usdt.DefaultCacheSize, "Number of cached argument strings.")

	return &ffcli.Command{
		Name:       "usdt",
		ShortUsage: "archregs usdt [-j N] <elf-file>...",
		ShortHelp:  "List USDT probes of ELF files with resolved argument locations.",
		FlagSet:    fs,
		Exec: func(ctx context.Context, args []string) error {
			if len(args) == 0 {
				return errors.New("usdt requires at least one ELF file")
			}
			a, err := cfg.arch()
			if err != nil {
				return err
			}
			parser, err := usdt.NewParser(a, uint32(*cacheSize))
			if err != nil {
				return err
			}
			reports, err := scanFiles(ctx, parser, args, *jobs)
			if err != nil {
				return err
			}
			for _, r := range reports {
				if _, err := fmt.Fprint(cfg.out, r); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

// scanFiles parses the probes of all files concurrently and returns one
// report per file, in the order of paths.
func scanFiles(ctx context.Context, parser *usdt.Parser, paths []string, jobs int) ([]string, error) {
	reports := make([]string, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(jobs, 1))

	for i, path := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			probes, err := usdt.ParseFile(path)
			if err != nil {
				return err
			}
			log.Debugf("Found %d USDT probes in %s", len(probes), path)

			var sb strings.Builder
			w := tabwriter.NewWriter(&sb, 0, 4, 2, ' ', 0)
			for j := range probes {
				probe := &probes[j]
				spec, err := parser.ParseProbe(probe)
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				args := make([]string, len(spec.Args))
				for k := range spec.Args {
					args[k] = formatArg(&spec.Args[k])
				}
				fmt.Fprintf(w, "%s\t%s\t0x%x\t%s\n", path, probe, probe.Location,
					strings.Join(args, " "))
			}
			if err := w.Flush(); err != nil {
				return err
			}
			reports[i] = sb.String()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return reports, nil
}

func newWatchCommand(cfg *config) *ffcli.Command {
	fs := flag.NewFlagSet("archregs watch", flag.ContinueOnError)
	addr := fs.String("addr", "", "Address to watch (decimal or 0x prefixed hex).")
	length := fs.Int("len", 8, "Number of bytes watched.")
	mode := fs.String("mode", "w", "Trigger mode: r, w, rw or x.")
	pid := fs.Int("pid", -1, "Process to watch; -1 watches all processes on -cpu.")
	cpu := fs.Int("cpu", 0, "CPU to watch on; -1 for any CPU.")
	open := fs.Bool("open", false, "Program the watchpoint until interrupted.")

	return &ffcli.Command{
		Name:       "watch",
		ShortUsage: "archregs watch -addr ADDR [-len N] [-mode MODE] [-open]",
		ShortHelp:  "Check whether a watchpoint can be programmed, optionally program it.",
		FlagSet:    fs,
		Exec: func(ctx context.Context, _ []string) error {
			a, err := cfg.arch()
			if err != nil {
				return err
			}
			address, err := strconv.ParseUint(*addr, 0, 64)
			if err != nil {
				return fmt.Errorf("invalid address %q: %w", *addr, err)
			}
			req := watchpoint.Request{Addr: address, Len: *length, Mode: watchpoint.Mode(*mode)}
			if err := watchpoint.Check(a, req); err != nil {
				return err
			}
			fmt.Fprintf(cfg.out, "%s supported on %s\n", req, a.Name())
			if !*open {
				return nil
			}

			wp, err := watchpoint.Open(a, req, *pid, *cpu)
			if err != nil {
				return err
			}
			defer wp.Close()
			log.Infof("Programmed %s, waiting for interrupt", req)
			<-ctx.Done()
			return nil
		},
	}
}
