// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package util

import (
	"io"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"
)

// Output is a log sink writing to the serial console and, when attached, to
// a remote terminal.
type Output struct {
	sync.Mutex

	console io.Writer
	term    *term.Terminal
}

// NewOutput returns a log sink writing to the argument console, os.Stdout is
// used when nil.
func NewOutput(console io.Writer) *Output {
	if console == nil {
		console = os.Stdout
	}

	return &Output{console: console}
}

// Attach mirrors log output to the argument terminal, a nil terminal
// detaches any previous one.
func (o *Output) Attach(t *term.Terminal) {
	o.Lock()
	defer o.Unlock()

	o.term = t
}

// Write implements io.Writer, each call carries a single log entry.
func (o *Output) Write(p []byte) (n int, err error) {
	o.Lock()
	defer o.Unlock()

	if n, err = o.console.Write(p); err != nil {
		return
	}

	if o.term != nil {
		o.term.Write(o.term.Escape.Green)
		o.term.Write(p)
		o.term.Write(o.term.Escape.Reset)
	}

	return
}

// Sync implements zapcore.WriteSyncer.
func (o *Output) Sync() error {
	return nil
}

// LogLevel is the monitor logging level, adjustable at runtime.
var LogLevel = zap.NewAtomicLevelAt(zapcore.InfoLevel)

// NewLogger returns a console encoded logger on the argument output.
func NewLogger(out *Output, level zapcore.LevelEnabler) *zap.Logger {
	enc := zap.NewDevelopmentEncoderConfig()
	enc.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")

	core := zapcore.NewCore(zapcore.NewConsoleEncoder(enc), out, level)

	return zap.New(core, zap.AddStacktrace(zapcore.DPanicLevel))
}
