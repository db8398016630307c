// Copyright (c) The GoTEE authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package gotee

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/usbarmory/GoTEE-ffa/mem"
	"github.com/usbarmory/GoTEE-ffa/proxy"
	"github.com/usbarmory/GoTEE-ffa/s2"
	"github.com/usbarmory/GoTEE-ffa/spmc"
)

// PartitionID is the FF-A endpoint identifier of the secure partition served
// by the monitor SPMC.
const PartitionID = 0x8001

var (
	// Proxy mediates Normal World FF-A memory management calls.
	Proxy *proxy.Proxy
	// SPMC is the secure world partition manager.
	SPMC *spmc.SPMC
	// Pages tracks Normal World page ownership.
	Pages *s2.Tracker
)

// InitFFA configures the FF-A proxy between the Normal World and the
// monitor secure partition manager, it must be invoked after mem.Init().
func InitFFA(conf proxy.Config) (err error) {
	log := zap.L()

	if Pages, err = s2.NewTracker(mem.NonSecureStart, mem.NonSecureSize, conf.PageSize); err != nil {
		return
	}

	if SPMC, err = spmc.New(mem.Physical, log, PartitionID); err != nil {
		return
	}

	pa, buf, err := mem.Staging(conf.BufferSize())

	if err != nil {
		return fmt.Errorf("could not allocate staging buffers, %v", err)
	}

	if Proxy, err = proxy.New(conf, Pages, mem.Physical, SPMC, log); err != nil {
		return
	}

	return Proxy.Init(buf, pa)
}
