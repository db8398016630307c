// Copyright (c) The GoTEE authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package util

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"
)

// loopback is a remote terminal end which never sends input
type loopback struct {
	bytes.Buffer
}

func (l *loopback) Read(_ []byte) (int, error) {
	return 0, io.EOF
}

func TestLogger(t *testing.T) {
	var console bytes.Buffer

	out := NewOutput(&console)
	log := NewLogger(out, zapcore.InfoLevel)

	log.Debug("hidden")
	log.Named("ffa").Info("FF-A proxy enabled", zap.Uint16("id", 0))

	assert.NotContains(t, console.String(), "hidden")
	assert.Contains(t, console.String(), "INFO")
	assert.Contains(t, console.String(), "ffa")
	assert.Contains(t, console.String(), "FF-A proxy enabled")
	assert.Contains(t, console.String(), `{"id": 0}`)
}

func TestOutputAttach(t *testing.T) {
	var console bytes.Buffer

	remote := &loopback{}
	tt := term.NewTerminal(remote, "")

	out := NewOutput(&console)
	out.Attach(tt)

	n, err := out.Write([]byte("attached\n"))
	require.NoError(t, err)
	assert.Equal(t, 9, n)

	out.Attach(nil)

	_, err = out.Write([]byte("detached\n"))
	require.NoError(t, err)

	assert.Equal(t, "attached\ndetached\n", console.String())
	assert.Contains(t, remote.String(), "attached")
	assert.NotContains(t, remote.String(), "detached")
	assert.NoError(t, out.Sync())
}

func TestParseSize(t *testing.T) {
	payload := []byte{0, 0, 0, 80, 0, 0, 0, 24}

	w, h, ok := parseSize(payload, 0)
	require.True(t, ok)
	assert.Equal(t, 80, w)
	assert.Equal(t, 24, h)

	_, _, ok = parseSize(payload, 1)
	assert.False(t, ok)

	_, _, ok = parseSize(nil, 0)
	assert.False(t, ok)
}

func TestLogLevel(t *testing.T) {
	var console bytes.Buffer

	level := zap.NewAtomicLevelAt(zapcore.WarnLevel)
	log := NewLogger(NewOutput(&console), level)

	log.Info("first")
	require.NoError(t, level.UnmarshalText([]byte("debug")))
	log.Debug("second")

	assert.NotContains(t, console.String(), "first")
	assert.Contains(t, console.String(), "second")
}
