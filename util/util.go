// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package util // import "go.opentelemetry.io/ebpf-tracer/util"

import (
	"bytes"
	"unicode"
	"unicode/utf8"
)

// IsValidString checks if string is UTF-8-encoded and only contains expected characters.
func IsValidString(s string) bool {
	if s == "" {
		return false
	}
	if !utf8.ValidString(s) {
		return false
	}
	for _, r := range s {
		if !unicode.IsPrint(r) {
			return false
		}
	}
	return true
}

// NextCString splits the NUL terminated string at the start of b from the
// bytes following its terminator. It reports false if b has no terminator.
func NextCString(b []byte) (s string, rest []byte, ok bool) {
	index := bytes.IndexByte(b, 0)
	if index < 0 {
		return "", nil, false
	}
	return string(b[:index]), b[index+1:], true
}
