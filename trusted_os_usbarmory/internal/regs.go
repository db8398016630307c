// Copyright (c) The GoTEE authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package gotee

import (
	"github.com/usbarmory/GoTEE/monitor"

	"github.com/usbarmory/GoTEE-ffa/ffa"
)

// registers exposes an execution context SMC arguments and results, on
// 32-bit ARM only the lower half of each value is transferred.
type registers struct {
	ctx *monitor.ExecCtx
}

func (r registers) Arg(n int) uint64 {
	switch n {
	case 0:
		return uint64(r.ctx.R0)
	case 1:
		return uint64(r.ctx.R1)
	case 2:
		return uint64(r.ctx.R2)
	case 3:
		return uint64(r.ctx.R3)
	case 4:
		return uint64(r.ctx.R4)
	case 5:
		return uint64(r.ctx.R5)
	case 6:
		return uint64(r.ctx.R6)
	case 7:
		return uint64(r.ctx.R7)
	}

	return 0
}

func (r registers) SetResult(res ffa.Result) {
	r.ctx.R0 = uint32(res.A0)
	r.ctx.R1 = uint32(res.A1)
	r.ctx.R2 = uint32(res.A2)
	r.ctx.R3 = uint32(res.A3)
}

func (r registers) args() (args ffa.Args) {
	for i := range args {
		args[i] = r.Arg(i)
	}

	return
}

// callRegs holds the registers of a monitor originated call.
type callRegs struct {
	a   ffa.Args
	res ffa.Result
}

func (r *callRegs) Arg(n int) uint64 {
	return r.a[n]
}

func (r *callRegs) SetResult(res ffa.Result) {
	r.res = res
}
