// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package cmd

import (
	"errors"
	"regexp"

	"golang.org/x/term"

	"github.com/usbarmory/tamago/soc/nxp/imx6ul"

	"github.com/usbarmory/GoTEE-ffa/trusted_os_usbarmory/internal"
)

func init() {
	Add(Cmd{
		Name:    "linux",
		Args:    1,
		Pattern: regexp.MustCompile(`^linux (uSD|eMMC)$`),
		Syntax:  "<uSD|eMMC>",
		Help:    "boot NonSecure USB armory Debian base image w/ FF-A proxy",
		Fn:      linuxCmd,
	})

	Add(Cmd{
		Name: "selftest",
		Help: "FF-A map/share/reclaim/unmap sequence as Normal World",
		Fn:   selftestCmd,
	})
}

func linuxCmd(term *term.Terminal, arg []string) (res string, err error) {
	if !imx6ul.Native {
		return "", errors.New("unsupported under emulation")
	}

	return "", gotee.Linux(arg[0])
}

func selftestCmd(term *term.Terminal, _ []string) (res string, err error) {
	if err = gotee.SelfTest(); err != nil {
		return
	}

	return "self test passed", nil
}
