// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package gotee

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/usbarmory/tamago/arm"
	"github.com/usbarmory/tamago/soc/nxp/imx6ul"

	"github.com/usbarmory/GoTEE/monitor"

	"github.com/usbarmory/GoTEE-ffa/ffa"
)

// ffaHandler serves Normal World SMC calls, FF-A memory management calls are
// mediated by the proxy while any other FF-A call is relayed to the SPMC.
func ffaHandler(ctx *monitor.ExecCtx) (err error) {
	regs := registers{ctx}

	if Proxy != nil && Proxy.Handle(regs) {
		return
	}

	if SPMC != nil && ffa.IsCall(ctx.R0) {
		regs.SetResult(SPMC.Call(regs.args()))
		return
	}

	return monitor.NonSecureHandler(ctx)
}

func linuxHandler(ctx *monitor.ExecCtx) (err error) {
	if !ctx.NonSecure() {
		return errors.New("unexpected processor mode")
	}

	switch ctx.ExceptionVector {
	case arm.FIQ:
		switch imx6ul.GIC.GetInterrupt(true) {
		case imx6ul.TZ_WDOG.IRQ:
			imx6ul.TZ_WDOG.Service(watchdogTimeout)
			zap.L().Debug("serviced TrustZone Watchdog")
		}

		return
	case arm.SUPERVISOR:
		return ffaHandler(ctx)
	case arm.DATA_ABORT:
		zap.L().Error("trapped Non-secure data abort", zap.String("pc", fmt.Sprintf("%#.8x", ctx.R15-8)))
		ctx.Stop()

		return
	default:
		return fmt.Errorf("unhandled exception %x", ctx.ExceptionVector)
	}
}
