// Copyright (c) The GoTEE authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"text/tabwriter"

	"golang.org/x/term"

	"github.com/usbarmory/GoTEE-ffa/s2"
	"github.com/usbarmory/GoTEE-ffa/trusted_os_usbarmory/internal"
)

var errDisabled = errors.New("FF-A proxy not initialized")

func init() {
	Add(Cmd{
		Name: "ffa",
		Help: "FF-A proxy status",
		Fn:   ffaCmd,
	})

	Add(Cmd{
		Name: "pages",
		Help: "Normal World pages not owned by the host",
		Fn:   pagesCmd,
	})

	Add(Cmd{
		Name: "txs",
		Help: "pending FF-A memory transactions",
		Fn:   txsCmd,
	})
}

func ffaCmd(_ *term.Terminal, _ []string) (string, error) {
	var buf bytes.Buffer

	if gotee.Proxy == nil {
		return "", errDisabled
	}

	s := gotee.Proxy.Status()

	fmt.Fprintf(&buf, "enabled ..........: %v\n", s.Enabled)
	fmt.Fprintf(&buf, "host id ..........: %#.4x\n", s.HostID)

	if s.Mapped {
		fmt.Fprintf(&buf, "buffers ..........: tx:%#x rx:%#x\n", s.TX, s.RX)
	} else {
		fmt.Fprintf(&buf, "buffers ..........: unmapped\n")
	}

	fmt.Fprintf(&buf, "calls ............: %d (%d errors)\n", s.Calls, s.Errors)
	fmt.Fprintf(&buf, "rollbacks ........: %d\n", s.Rollbacks)
	fmt.Fprintf(&buf, "divergences ......: %d", s.Divergences)

	return buf.String(), nil
}

func pagesCmd(_ *term.Terminal, _ []string) (string, error) {
	var buf bytes.Buffer

	if gotee.Pages == nil {
		return "", errDisabled
	}

	t := tabwriter.NewWriter(&buf, 16, 8, 0, '\t', tabwriter.TabIndent)
	fmt.Fprintf(t, "PFN\tAddress\tState\n")

	gotee.Pages.Walk(func(pfn uint64, s s2.State) bool {
		fmt.Fprintf(t, "%#x\t%#.8x\t%s\n", pfn, pfn*gotee.Pages.PageSize(), s)
		return true
	})

	t.Flush()

	return buf.String(), nil
}

func txsCmd(_ *term.Terminal, _ []string) (string, error) {
	var buf bytes.Buffer

	if gotee.SPMC == nil {
		return "", errDisabled
	}

	t := tabwriter.NewWriter(&buf, 16, 8, 0, '\t', tabwriter.TabIndent)
	fmt.Fprintf(t, "Handle\tType\tReceiver\tPages\tAcquired\n")

	for _, tx := range gotee.SPMC.Transactions() {
		kind := "share"

		if tx.Lend {
			kind = "lend"
		}

		fmt.Fprintf(t, "%#x\t%s\t%#.4x\t%d\t%v\n", tx.Handle, kind, tx.Region.Access.Receiver, tx.Region.TotalPages, tx.Acquired)
	}

	t.Flush()

	return buf.String(), nil
}
