// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package usdt // import "go.opentelemetry.io/ebpf-tracer/usdt"

import (
	"fmt"

	lru "github.com/elastic/go-freelru"
	log "github.com/sirupsen/logrus"
	"github.com/zeebo/xxh3"

	"go.opentelemetry.io/ebpf-tracer/arch"
)

// DefaultCacheSize is the number of argument strings a Parser remembers.
const DefaultCacheSize = 1024

func hashString(s string) uint32 {
	return uint32(xxh3.HashString(s))
}

// Parser parses probe argument strings for one architecture. Many probes
// of a binary share the same argument string, so results are cached. It is
// safe for concurrent use.
type Parser struct {
	arch  arch.Arch
	cache *lru.SyncedLRU[string, *Spec]
}

// NewParser creates a Parser remembering up to size argument strings.
func NewParser(a arch.Arch, size uint32) (*Parser, error) {
	cache, err := lru.NewSynced[string, *Spec](size, hashString)
	if err != nil {
		return nil, fmt.Errorf("failed to create argument cache: %w", err)
	}
	return &Parser{arch: a, cache: cache}, nil
}

// Arch returns the architecture the parser resolves registers for.
func (p *Parser) Arch() arch.Arch {
	return p.arch
}

// Parse parses the argument string of a probe. Errors are not cached.
func (p *Parser) Parse(args string) (*Spec, error) {
	if spec, ok := p.cache.Get(args); ok {
		return spec.Clone(), nil
	}

	spec, err := ParseArguments(p.arch, args)
	if err != nil {
		return nil, err
	}
	log.Debugf("Parsed %d USDT arguments for %s", len(spec.Args), p.arch.Name())
	p.cache.Add(args, spec)
	return spec.Clone(), nil
}

// ParseProbe parses the arguments of probe, naming the probe in errors.
func (p *Parser) ParseProbe(probe *Probe) (*Spec, error) {
	spec, err := p.Parse(probe.Arguments)
	if err != nil {
		return nil, fmt.Errorf("probe %s: %w", probe, err)
	}
	return spec, nil
}

// Len returns the number of cached argument strings.
func (p *Parser) Len() int {
	return p.cache.Len()
}
