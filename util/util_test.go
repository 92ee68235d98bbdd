// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsValidString(t *testing.T) {
	tests := map[string]bool{
		"":              false,
		"libc":          true,
		"memory_sbrk":   true,
		"tab\there":     false,
		"\xff\xfe":      false,
		"münchen":       true,
		"bell\a":        false,
		"with space ok": true,
	}
	for s, valid := range tests {
		assert.Equal(t, valid, IsValidString(s), "%q", s)
	}
}

func TestNextCString(t *testing.T) {
	s, rest, ok := NextCString([]byte("provider\x00probe\x00"))
	assert.True(t, ok)
	assert.Equal(t, "provider", s)
	assert.Equal(t, []byte("probe\x00"), rest)

	s, rest, ok = NextCString(rest)
	assert.True(t, ok)
	assert.Equal(t, "probe", s)
	assert.Empty(t, rest)

	_, _, ok = NextCString([]byte("unterminated"))
	assert.False(t, ok)

	s, _, ok = NextCString([]byte{0})
	assert.True(t, ok)
	assert.Empty(t, s)
}
