// Copyright (c) The GoTEE authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package proxy

import (
	"github.com/usbarmory/GoTEE-ffa/ffa"
)

// denylist represents FF-A calls which are answered as not supported.
var denylist = map[uint32]bool{
	ffa.FFA_FN64_MEM_RETRIEVE_REQ: true,
	ffa.FFA_MEM_RETRIEVE_RESP:     true,
	ffa.FFA_MEM_RELINQUISH:        true,
	ffa.FFA_MEM_OP_PAUSE:          true,
	ffa.FFA_MEM_OP_RESUME:         true,
	ffa.FFA_MEM_FRAG_RX:           true,
	ffa.FFA_MEM_FRAG_TX:           true,
	ffa.FFA_FN64_MEM_DONATE:       true,
	// indirect messaging
	ffa.FFA_MSG_SEND: true,
	ffa.FFA_MSG_POLL: true,
	ffa.FFA_MSG_WAIT: true,
	// 32-bit variants of 64-bit calls
	ffa.FFA_MSG_SEND_DIRECT_REQ:  true,
	ffa.FFA_MSG_SEND_DIRECT_RESP: true,
	ffa.FFA_RXTX_MAP:             true,
	ffa.FFA_MEM_DONATE:           true,
	ffa.FFA_MEM_RETRIEVE_REQ:     true,
}

// Supported reports whether a call is let through to the secure world when
// not handled by the proxy.
func Supported(fid uint32) bool {
	return !denylist[fid]
}

// Handle processes a call trapped from the host, it returns false when the
// call is not handled and must be forwarded to the secure world unmodified.
func (p *Proxy) Handle(regs Registers) bool {
	fid := uint32(regs.Arg(0))

	if !p.enabled.Load() || !ffa.IsCall(fid) {
		return false
	}

	var res ffa.Result

	switch fid {
	case ffa.FFA_FEATURES:
		var ok bool

		if res, ok = p.queryFeatures(uint32(regs.Arg(1))); !ok {
			return false
		}
	case ffa.FFA_FN64_RXTX_MAP:
		res = ffa.Status(p.rxtxMap(regs), 0)
	case ffa.FFA_RXTX_UNMAP:
		res = ffa.Status(p.rxtxUnmap(regs), 0)
	case ffa.FFA_MEM_SHARE, ffa.FFA_FN64_MEM_SHARE, ffa.FFA_MEM_LEND, ffa.FFA_FN64_MEM_LEND:
		res = p.memXfer(fid, regs)
	case ffa.FFA_MEM_RECLAIM:
		res = p.memReclaim(regs)
	default:
		if Supported(fid) {
			return false
		}

		res = ffa.ErrorResult(ffa.ErrNotSupported)
	}

	p.stats.calls.Add(1)

	if uint32(res.A0) == ffa.FFA_ERROR {
		p.stats.errors.Add(1)
	}

	regs.SetResult(res)

	return true
}

// queryFeatures answers FFA_FEATURES for the calls filtered by the proxy.
func (p *Proxy) queryFeatures(id uint32) (res ffa.Result, ok bool) {
	if !Supported(id) {
		return ffa.ErrorResult(ffa.ErrNotSupported), true
	}

	switch id {
	case ffa.FFA_MEM_SHARE, ffa.FFA_FN64_MEM_SHARE, ffa.FFA_MEM_LEND, ffa.FFA_FN64_MEM_LEND:
		return ffa.Success(0), true
	}

	return
}
