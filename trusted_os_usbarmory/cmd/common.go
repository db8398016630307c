// Copyright (c) The GoTEE authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package cmd

import (
	"bytes"
	"io"
	"regexp"
	"runtime/debug"
	"runtime/pprof"

	"golang.org/x/term"

	"github.com/usbarmory/GoTEE-ffa/util"
)

func init() {
	Add(Cmd{
		Name: "help",
		Help: "this help",
		Fn:   helpCmd,
	})

	Add(Cmd{
		Name:    "exit, quit",
		Args:    1,
		Pattern: regexp.MustCompile(`^(exit|quit)$`),
		Help:    "close session",
		Fn:      exitCmd,
	})

	Add(Cmd{
		Name:    "stack",
		Args:    1,
		Pattern: regexp.MustCompile(`^stack( all)?$`),
		Syntax:  "(all)?",
		Help:    "stack trace of current (or all) goroutine(s)",
		Fn:      stackCmd,
	})

	Add(Cmd{
		Name:    "log ",
		Args:    1,
		Pattern: regexp.MustCompile(`^log (debug|info|warn|error)$`),
		Syntax:  "<debug|info|warn|error>",
		Help:    "set logging level",
		Fn:      logCmd,
	})
}

func helpCmd(term *term.Terminal, _ []string) (string, error) {
	return Help(term), nil
}

func exitCmd(_ *term.Terminal, _ []string) (string, error) {
	return "logout", io.EOF
}

func stackCmd(_ *term.Terminal, arg []string) (string, error) {
	if len(arg) == 0 || len(arg[0]) == 0 {
		return string(debug.Stack()), nil
	}

	buf := new(bytes.Buffer)
	pprof.Lookup("goroutine").WriteTo(buf, 1)

	return buf.String(), nil
}

func logCmd(_ *term.Terminal, arg []string) (string, error) {
	if err := util.LogLevel.UnmarshalText([]byte(arg[0])); err != nil {
		return "", err
	}

	return "log level: " + util.LogLevel.String(), nil
}
