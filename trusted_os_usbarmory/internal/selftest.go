// Copyright (c) The GoTEE authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package gotee

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/usbarmory/GoTEE-ffa/ffa"
	"github.com/usbarmory/GoTEE-ffa/mem"
	"github.com/usbarmory/GoTEE-ffa/s2"
)

// Normal World buffers used by the self test, placed below the Linux kernel
// offset.
const (
	testTX     = mem.NonSecureStart + 0x1000
	testRX     = mem.NonSecureStart + 0x2000
	testRegion = mem.NonSecureStart + 0x10000
)

// hostCall issues an FF-A call on behalf of the Normal World.
func hostCall(args ...uint64) (res ffa.Result, err error) {
	r := &callRegs{}
	copy(r.a[:], args)

	if !Proxy.Handle(r) {
		return res, fmt.Errorf("call %#x not handled", args[0])
	}

	return r.res, r.res.Err()
}

func expectState(pfn uint64, nr uint64, s s2.State) error {
	for i := uint64(0); i < nr; i++ {
		if got := Pages.State(pfn + i); got != s {
			return fmt.Errorf("pfn %#x is %s, expected %s", pfn+i, got, s)
		}
	}

	return nil
}

// SelfTest exercises, as Normal World, a complete RX/TX map, memory share,
// reclaim and unmap sequence through the FF-A proxy.
func SelfTest() (err error) {
	if Proxy == nil || !Proxy.Enabled() {
		return errors.New("FF-A proxy not enabled")
	}

	log := zap.L().Named("selftest")

	pageSize := uint64(ffa.PageSize)
	pfn := uint64(testRegion) / pageSize
	nr := uint64(4)

	if _, err = hostCall(ffa.FFA_FN64_RXTX_MAP, testTX, testRX, 1); err != nil {
		return fmt.Errorf("RXTX_MAP failed, %v", err)
	}

	defer func() {
		if _, e := hostCall(ffa.FFA_RXTX_UNMAP, 0); e != nil && err == nil {
			err = fmt.Errorf("RXTX_UNMAP failed, %v", e)
		}
	}()

	if err = expectState(testTX/pageSize, 1, s2.SharedHyp); err != nil {
		return
	}

	m := &ffa.MemRegion{
		Sender:     Proxy.Status().HostID,
		Attributes: ffa.MEM_NORMAL | ffa.MEM_WRITE_BACK | ffa.MEM_INNER_SHAREABLE,
		Access: ffa.MemAccess{
			Receiver:    PartitionID,
			Permissions: ffa.MEM_DATA_ACCESS_RW | ffa.MEM_INSTR_NX,
		},
		TotalPages: uint32(nr),
		Ranges: []ffa.AddrRange{
			{Address: testRegion, PageCount: 1},
			{Address: testRegion + pageSize, PageCount: uint32(nr - 1)},
		},
	}

	tx, err := mem.Physical.Slice(testTX, int(pageSize))

	if err != nil {
		return
	}

	n, err := m.Marshal(tx)

	if err != nil {
		return
	}

	res, err := hostCall(ffa.FFA_FN64_MEM_SHARE, uint64(n), uint64(n))

	if err != nil {
		return fmt.Errorf("MEM_SHARE failed, %v", err)
	}

	handle := res.Handle()
	lo, hi := ffa.UnpackHandle(handle)

	log.Info("memory shared", zap.Uint64("handle", handle), zap.Uint64("pages", nr))

	if err = expectState(pfn, nr, s2.SharedFFA); err != nil {
		return
	}

	if err = SPMC.Acquire(handle, PartitionID); err != nil {
		return fmt.Errorf("could not acquire region, %v", err)
	}

	// the region cannot be reclaimed while in use
	if _, err = hostCall(ffa.FFA_MEM_RECLAIM, uint64(lo), uint64(hi), 0); err != ffa.ErrDenied {
		return fmt.Errorf("MEM_RECLAIM of acquired region returned %v", err)
	}

	if err = expectState(pfn, nr, s2.SharedFFA); err != nil {
		return
	}

	if err = SPMC.Relinquish(handle, PartitionID); err != nil {
		return fmt.Errorf("could not relinquish region, %v", err)
	}

	if _, err = hostCall(ffa.FFA_MEM_RECLAIM, uint64(lo), uint64(hi), 0); err != nil {
		return fmt.Errorf("MEM_RECLAIM failed, %v", err)
	}

	if err = expectState(pfn, nr, s2.Owned); err != nil {
		return
	}

	log.Info("memory reclaimed", zap.Uint64("handle", handle))

	return
}
