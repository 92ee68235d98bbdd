// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// archregs inspects the register maps used to locate probe arguments,
// return values and control registers in kernel register dumps.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/peterbourgon/ff/v3"
	"github.com/peterbourgon/ff/v3/ffcli"
	log "github.com/sirupsen/logrus"

	"go.opentelemetry.io/ebpf-tracer/arch"
	"go.opentelemetry.io/ebpf-tracer/arch/mips64"
)

const envVarPrefix = "ARCHREGS"

type config struct {
	archName string
	logLevel string
	verbose  bool

	out io.Writer
}

func (c *config) registerFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.archName, "arch", "",
		"Architecture whose register map is used. Defaults to the host architecture, "+
			"or "+mips64.Name+" if the host has no register map.")
	fs.StringVar(&c.logLevel, "log-level", "info", "Log level (debug, info, warn, error).")
	fs.BoolVar(&c.verbose, "v", false, "Shorthand for -log-level=debug.")
	fs.String("config", "", "Path to a config file with one flag per line.")
}

func (c *config) setupLogging() error {
	level, err := log.ParseLevel(c.logLevel)
	if err != nil {
		return err
	}
	if c.verbose {
		level = log.DebugLevel
	}
	log.SetLevel(level)
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp: true,
	})
	return nil
}

func (c *config) arch() (arch.Arch, error) {
	if c.archName != "" {
		return arch.Lookup(c.archName)
	}
	a, err := arch.Host()
	if err != nil {
		log.Debugf("Falling back to %s: %v", mips64.Name, err)
		return arch.Lookup(mips64.Name)
	}
	return a, nil
}

func newRootCommand(cfg *config) *ffcli.Command {
	fs := flag.NewFlagSet("archregs", flag.ContinueOnError)
	cfg.registerFlags(fs)

	return &ffcli.Command{
		Name:       "archregs",
		ShortUsage: "archregs [flags] <subcommand> [args...]",
		ShortHelp:  "Inspect architecture register maps.",
		FlagSet:    fs,
		Options: []ff.Option{
			ff.WithEnvVarPrefix(envVarPrefix),
			ff.WithConfigFileFlag("config"),
			ff.WithConfigFileParser(ff.PlainParser),
			ff.WithAllowMissingConfigFile(true),
		},
		Subcommands: []*ffcli.Command{
			newInfoCommand(cfg),
			newTableCommand(cfg),
			newResolveCommand(cfg),
			newUSDTCommand(cfg),
			newWatchCommand(cfg),
			newDumpCommand(cfg),
			newGenCommand(cfg),
		},
		Exec: func(context.Context, []string) error {
			return flag.ErrHelp
		},
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	cfg := &config{out: out}
	root := newRootCommand(cfg)
	if err := root.Parse(args); err != nil {
		return err
	}
	if err := cfg.setupLogging(); err != nil {
		return err
	}
	return root.Run(ctx)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		var unknown *arch.UnknownRegisterError
		if errors.As(err, &unknown) {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		log.Error(err)
		os.Exit(1)
	}
}
