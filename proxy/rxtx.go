// Copyright (c) The GoTEE authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package proxy

import (
	"go.uber.org/zap"
	"gvisor.dev/gvisor/pkg/cleanup"

	"github.com/usbarmory/GoTEE-ffa/ffa"
)

func (p *Proxy) rxtxMap(regs Registers) (err error) {
	tx := regs.Arg(1)
	rx := regs.Arg(2)
	npages := uint32(regs.Arg(3))

	if npages != p.conf.ffaPages() {
		return ffa.ErrInvalidParameters
	}

	if !p.aligned(tx) || !p.aligned(rx) {
		return ffa.ErrInvalidParameters
	}

	p.Lock()
	defer p.Unlock()

	if p.host != nil {
		return ffa.ErrDenied
	}

	return p.mapHostBuffers(tx, rx, npages)
}

// mapHostBuffers maps the staging buffers in the secure world and grants
// the monitor access to the host buffers, any failure unwinds the completed
// steps.
func (p *Proxy) mapHostBuffers(tx uint64, rx uint64, npages uint32) (err error) {
	if err = p.mapBuffers(npages); err != nil {
		return
	}

	cu := cleanup.Make(func() {
		p.stats.rollbacks.Add(1)

		if err := p.unmapBuffers(); err != nil {
			p.diverged("could not unmap staging buffers", zap.Error(err))
		}
	})
	defer cu.Clean()

	if err = p.shareHyp(tx); err != nil {
		p.log.Debug("could not access host tx", zap.Uint64("tx", tx), zap.Error(err))
		return ffa.ErrInvalidParameters
	}

	cu.Add(func() { p.unshareHyp(tx) })

	if err = p.shareHyp(rx); err != nil {
		p.log.Debug("could not access host rx", zap.Uint64("rx", rx), zap.Error(err))
		return ffa.ErrInvalidParameters
	}

	cu.Add(func() { p.unshareHyp(rx) })

	size := p.conf.BufferSize()
	host := &mailbox{txPA: tx, rxPA: rx}

	if host.tx, err = p.mem.Slice(tx, size); err != nil {
		return ffa.ErrInvalidParameters
	}

	if host.rx, err = p.mem.Slice(rx, size); err != nil {
		return ffa.ErrInvalidParameters
	}

	p.host = host
	cu.Release()

	return
}

func (p *Proxy) rxtxUnmap(regs Registers) (err error) {
	id := uint16(uint32(regs.Arg(1)) >> 16)

	if id != p.conf.HostID {
		return ffa.ErrInvalidParameters
	}

	p.Lock()
	defer p.Unlock()

	if p.host == nil {
		return ffa.ErrInvalidParameters
	}

	p.unmapHostBuffers()

	return
}

// unmapHostBuffers revokes monitor access to the host buffers and unmaps the
// staging buffers from the secure world, anomalies are logged as teardown
// always completes.
func (p *Proxy) unmapHostBuffers() {
	p.unshareHyp(p.host.txPA)
	p.unshareHyp(p.host.rxPA)

	p.host = nil

	if err := p.unmapBuffers(); err != nil {
		p.diverged("could not unmap staging buffers", zap.Error(err))
	}
}

// shareHyp grants the monitor access to all pages of a host buffer.
func (p *Proxy) shareHyp(pa uint64) (err error) {
	pfn := p.pfn(pa)

	for i := uint64(0); i < p.conf.MailboxPages; i++ {
		if err = p.pgt.ShareHyp(pfn + i); err != nil {
			for ; i > 0; i-- {
				if err := p.pgt.UnshareHyp(pfn + i - 1); err != nil {
					p.diverged("could not revoke host buffer access", zap.Uint64("pfn", pfn+i-1), zap.Error(err))
				}
			}

			return
		}
	}

	return
}

// unshareHyp revokes monitor access to all pages of a host buffer.
func (p *Proxy) unshareHyp(pa uint64) {
	pfn := p.pfn(pa)

	for i := uint64(0); i < p.conf.MailboxPages; i++ {
		if err := p.pgt.UnshareHyp(pfn + i); err != nil {
			p.diverged("could not revoke host buffer access", zap.Uint64("pfn", pfn+i), zap.Error(err))
		}
	}
}
