// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package gotee

import (
	"errors"

	"go.uber.org/zap"

	"github.com/usbarmory/GoTEE/monitor"
	"github.com/usbarmory/tamago/arm"
)

const (
	// TrustZone Watchdog interval (in ms) to force Non-Secure to Secure
	// World switching.
	watchdogTimeout = 10000

	// TrustZone Watchdog warning interrupt interval (in ms), raised before
	// timeout expiration.
	watchdogWarningInterval = 1000
)

// Linux launches a Linux kernel in the Normal World, FF-A memory management
// calls are mediated as long as the FF-A proxy is enabled.
func Linux(device string) (err error) {
	var os *monitor.ExecCtx

	if Proxy == nil || !Proxy.Enabled() {
		return errors.New("FF-A proxy not enabled")
	}

	if os, err = loadLinux(device); err != nil {
		return
	}

	zap.L().Info("enabling TrustZone Watchdog")
	enableTrustZoneWatchdog()

	zap.L().Info("launching Linux")

	return run(os)
}

func run(ctx *monitor.ExecCtx) (err error) {
	log := zap.L().With(
		zap.String("mode", arm.ModeName(int(ctx.SPSR)&0x1f)),
		zap.Bool("ns", ctx.NonSecure()),
	)

	log.Info("starting", zap.Uint32("sp", ctx.R13), zap.Uint32("pc", ctx.R15))

	err = ctx.Run()

	log.Info("stopped",
		zap.Uint32("sp", ctx.R13),
		zap.Uint32("lr", ctx.R14),
		zap.Uint32("pc", ctx.R15),
		zap.Error(err),
		zap.Stringer("ctx", ctx))

	return
}
