// Copyright (c) The GoTEE authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package proxy

import (
	"go.uber.org/zap"

	"github.com/usbarmory/GoTEE-ffa/ffa"
)

type rangeOp func(pfn uint64, nr uint64) error

// walkRanges applies op to each range in order and returns the number of
// ranges successfully processed, stopping at the first failure.
func (p *Proxy) walkRanges(ranges []ffa.AddrRange, op rangeOp) int {
	for i, r := range ranges {
		sz := r.Size()

		if sz == 0 || !p.aligned(sz) || !p.aligned(r.Address) {
			return i
		}

		if err := op(p.pfn(r.Address), sz/p.conf.PageSize); err != nil {
			p.log.Debug("range transition failed",
				zap.Uint64("addr", r.Address),
				zap.Uint32("pages", r.PageCount),
				zap.Error(err))
			return i
		}
	}

	return len(ranges)
}

// shareRanges shares every range with the secure world, on failure the
// ownership of all ranges is restored and ErrDenied is returned.
func (p *Proxy) shareRanges(ranges []ffa.AddrRange) error {
	n := p.walkRanges(ranges, p.pgt.ShareFFA)

	if n == len(ranges) {
		return nil
	}

	p.stats.rollbacks.Add(1)

	if k := p.walkRanges(reverse(ranges[:n]), p.pgt.UnshareFFA); k != n {
		p.diverged("could not undo range share",
			zap.Int("shared", n),
			zap.Int("restored", k))
	}

	return ffa.ErrDenied
}

// unshareRanges returns every range to the host, on failure the ranges
// already returned are shared again and ErrDenied is returned.
func (p *Proxy) unshareRanges(ranges []ffa.AddrRange) error {
	n := p.walkRanges(ranges, p.pgt.UnshareFFA)

	if n == len(ranges) {
		return nil
	}

	p.stats.rollbacks.Add(1)

	if k := p.walkRanges(reverse(ranges[:n]), p.pgt.ShareFFA); k != n {
		p.diverged("could not undo range unshare",
			zap.Int("unshared", n),
			zap.Int("restored", k))
	}

	return ffa.ErrDenied
}

func reverse(ranges []ffa.AddrRange) []ffa.AddrRange {
	r := make([]ffa.AddrRange, len(ranges))

	for i := range ranges {
		r[len(ranges)-1-i] = ranges[i]
	}

	return r
}
