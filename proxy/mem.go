// Copyright (c) The GoTEE authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package proxy

import (
	"go.uber.org/zap"

	"github.com/usbarmory/GoTEE-ffa/ffa"
)

// memXfer relays FFA_MEM_SHARE and FFA_MEM_LEND calls, the described ranges
// are shared before the secure world is involved and returned to the host
// if the transfer is not accepted.
func (p *Proxy) memXfer(fid uint32, regs Registers) ffa.Result {
	length := uint32(regs.Arg(1))
	fraglen := uint32(regs.Arg(2))
	addr := regs.Arg(3)
	npages := uint32(regs.Arg(4))

	// only transfers through the RX/TX buffers are supported
	if addr != 0 || npages != 0 {
		return ffa.ErrorResult(ffa.ErrInvalidParameters)
	}

	if fraglen > length || uint64(fraglen) > uint64(p.conf.BufferSize()) {
		return ffa.ErrorResult(ffa.ErrInvalidParameters)
	}

	if fraglen < length {
		return ffa.ErrorResult(ffa.ErrAborted)
	}

	if fraglen < ffa.MemRegionSize+ffa.MemAccessSize {
		return ffa.ErrorResult(ffa.ErrInvalidParameters)
	}

	p.Lock()
	defer p.Unlock()

	if p.host == nil {
		return ffa.ErrorResult(ffa.ErrInvalidParameters)
	}

	buf := p.staging.tx
	copy(buf, p.host.tx[:fraglen])

	m, err := ffa.ParseMemRegion(buf, length, fraglen, p.conf.HostID)

	if err != nil {
		return ffa.Status(err, 0)
	}

	if err = p.shareRanges(m.Ranges); err != nil {
		return ffa.Status(err, 0)
	}

	res := p.transferMemory(fid, length, fraglen)

	if !res.IsSuccess() {
		p.stats.rollbacks.Add(1)

		if err = p.unshareRanges(m.Ranges); err != nil {
			p.diverged("could not return rejected transfer ranges",
				zap.Uint32("fid", fid),
				zap.Stringer("res", res))
		}
	}

	return res
}

// memReclaim relays FFA_MEM_RECLAIM calls, the ranges of the transaction are
// retrieved from the secure world and returned to the host once the reclaim
// is accepted.
func (p *Proxy) memReclaim(regs Registers) ffa.Result {
	lo := uint32(regs.Arg(1))
	hi := uint32(regs.Arg(2))
	flags := uint32(regs.Arg(3))

	handle := ffa.PackHandle(lo, hi)

	p.Lock()
	defer p.Unlock()

	if p.host == nil {
		return ffa.ErrorResult(ffa.ErrInvalidParameters)
	}

	n, err := ffa.MarshalRetrieveReq(p.staging.tx, p.conf.HostID, handle)

	if err != nil {
		return ffa.Status(err, 0)
	}

	res := p.retrieveReq(uint32(n))

	switch uint32(res.A0) {
	case ffa.FFA_MEM_RETRIEVE_RESP:
	case ffa.FFA_ERROR:
		return res
	default:
		p.log.Warn("unexpected retrieve response", zap.Uint64("handle", handle), zap.Stringer("res", res))
		return ffa.ErrorResult(ffa.ErrAborted)
	}

	length := uint32(res.A1)
	fraglen := uint32(res.A2)

	if fraglen != length || uint64(length) > uint64(p.conf.BufferSize()) {
		p.log.Warn("unsupported retrieve response", zap.Uint64("handle", handle), zap.Stringer("res", res))
		_ = p.rxRelease()
		return ffa.ErrorResult(ffa.ErrAborted)
	}

	m, err := ffa.ParseMemRegion(p.staging.rx, length, fraglen, p.conf.HostID)

	if rerr := p.rxRelease(); rerr != nil {
		p.log.Warn("could not release rx buffer", zap.Error(rerr))
		return ffa.ErrorResult(ffa.ErrAborted)
	}

	if err != nil {
		p.log.Warn("invalid retrieve response descriptor", zap.Uint64("handle", handle), zap.Error(err))
		return ffa.ErrorResult(ffa.ErrAborted)
	}

	res = p.reclaimMemory(lo, hi, flags)

	if !res.IsSuccess() {
		return res
	}

	if err = p.unshareRanges(m.Ranges); err != nil {
		p.diverged("could not return reclaimed ranges", zap.Uint64("handle", handle))
	}

	return res
}
