// Copyright (c) The GoTEE authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package proxy

import (
	"github.com/usbarmory/GoTEE-ffa/ffa"
)

// Secure world calls, each one is a single blocking exchange with the
// conduit. Staging buffer transfers are issued with the lock held.

func (p *Proxy) call(fid uint32, args ...uint64) ffa.Result {
	a := ffa.Args{uint64(fid)}
	copy(a[1:], args)

	return p.spmd.Call(a)
}

func (p *Proxy) smcccVersion() uint64 {
	return p.call(ffa.SMCCC_VERSION).A0
}

func (p *Proxy) version(v uint32) ffa.Result {
	return p.call(ffa.FFA_VERSION, uint64(v))
}

func (p *Proxy) idGet() ffa.Result {
	return p.call(ffa.FFA_ID_GET)
}

func (p *Proxy) features(id uint32) ffa.Result {
	return p.call(ffa.FFA_FEATURES, uint64(id))
}

func (p *Proxy) mapBuffers(npages uint32) error {
	return p.call(ffa.FFA_FN64_RXTX_MAP, p.staging.txPA, p.staging.rxPA, uint64(npages)).Err()
}

func (p *Proxy) unmapBuffers() error {
	return p.call(ffa.FFA_RXTX_UNMAP, uint64(p.conf.HostID)<<16).Err()
}

func (p *Proxy) transferMemory(fid uint32, length uint32, fraglen uint32) ffa.Result {
	return p.call(fid, uint64(length), uint64(fraglen))
}

func (p *Proxy) retrieveReq(length uint32) ffa.Result {
	return p.call(ffa.FFA_FN64_MEM_RETRIEVE_REQ, uint64(length), uint64(length))
}

func (p *Proxy) rxRelease() error {
	return p.call(ffa.FFA_RX_RELEASE, uint64(p.conf.HostID)).Err()
}

func (p *Proxy) reclaimMemory(lo uint32, hi uint32, flags uint32) ffa.Result {
	return p.call(ffa.FFA_MEM_RECLAIM, uint64(lo), uint64(hi), uint64(flags))
}
