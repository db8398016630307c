// Copyright (c) The GoTEE authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package spmc implements a minimal secure partition manager, serving FF-A
// memory management calls issued by the Normal World through its RX/TX
// buffer pair.
//
// Memory transactions are recorded, and can be acquired by secure
// partitions, until reclaimed by their owner.
package spmc

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/usbarmory/GoTEE-ffa/ffa"
)

// NormalWorldID is the FF-A endpoint identifier of the Normal World caller.
const NormalWorldID = 0

// Memory represents access to Normal World physical memory.
type Memory interface {
	Slice(pa uint64, size int) ([]byte, error)
}

// Transaction represents a memory transaction.
type Transaction struct {
	// Handle is the transaction identifier.
	Handle uint64
	// Lend is set for FFA_MEM_LEND transactions.
	Lend bool
	// Acquired is set while the receiver holds the memory region.
	Acquired bool
	// Region is the transaction memory region descriptor.
	Region ffa.MemRegion
}

type mailbox struct {
	tx []byte
	rx []byte
	// set while the caller owns the RX buffer
	busy bool
}

// SPMC represents a secure partition manager instance.
type SPMC struct {
	sync.Mutex

	mem  Memory
	log  *zap.Logger
	mbox *mailbox

	partitions map[uint16]bool
	handles    map[uint64]*Transaction
	next       uint64
}

// New returns a secure partition manager for the argument secure partition
// endpoint identifiers.
func New(mem Memory, log *zap.Logger, partitions ...uint16) (s *SPMC, err error) {
	if mem == nil {
		return nil, errors.New("missing memory accessor")
	}

	if log == nil {
		log = zap.NewNop()
	}

	s = &SPMC{
		mem:        mem,
		log:        log.Named("spmc"),
		partitions: make(map[uint16]bool),
		handles:    make(map[uint64]*Transaction),
		next:       1,
	}

	for _, id := range partitions {
		if id&0x8000 == 0 {
			return nil, fmt.Errorf("invalid secure partition id %#x", id)
		}

		s.partitions[id] = true
	}

	return
}

// Call serves an FF-A call.
func (s *SPMC) Call(args ffa.Args) (res ffa.Result) {
	fid := uint32(args[0])

	switch fid {
	case ffa.SMCCC_VERSION:
		return ffa.Result{A0: ffa.SMCCCVersion1_2}
	case ffa.FFA_VERSION:
		return ffa.Result{A0: ffa.Version1_0}
	case ffa.FFA_ID_GET:
		return ffa.Success(NormalWorldID)
	case ffa.FFA_FEATURES:
		return features(uint32(args[1]))
	}

	s.Lock()
	defer s.Unlock()

	var err error

	switch fid {
	case ffa.FFA_FN64_RXTX_MAP:
		err = s.rxtxMap(args[1], args[2], uint32(args[3]))
	case ffa.FFA_RXTX_UNMAP:
		err = s.rxtxUnmap(uint16(uint32(args[1]) >> 16))
	case ffa.FFA_RX_RELEASE:
		err = s.rxRelease()
	case ffa.FFA_MEM_SHARE, ffa.FFA_FN64_MEM_SHARE, ffa.FFA_MEM_LEND, ffa.FFA_FN64_MEM_LEND:
		return s.memXfer(fid, args)
	case ffa.FFA_MEM_RETRIEVE_REQ, ffa.FFA_FN64_MEM_RETRIEVE_REQ:
		return s.retrieveReq(uint32(args[1]), uint32(args[2]))
	case ffa.FFA_MEM_RECLAIM:
		err = s.reclaim(ffa.PackHandle(uint32(args[1]), uint32(args[2])))
	default:
		err = ffa.ErrNotSupported
	}

	if err != nil {
		s.log.Debug("call failed", zap.Uint32("fid", fid), zap.Error(err))
	}

	return ffa.Status(err, 0)
}

func features(id uint32) ffa.Result {
	switch id {
	case ffa.FFA_FN64_RXTX_MAP:
		return ffa.Success(ffa.FEAT_RXTX_MIN_SZ_4K)
	case ffa.FFA_VERSION, ffa.FFA_ID_GET, ffa.FFA_FEATURES,
		ffa.FFA_RXTX_UNMAP, ffa.FFA_RX_RELEASE,
		ffa.FFA_MEM_SHARE, ffa.FFA_FN64_MEM_SHARE,
		ffa.FFA_MEM_LEND, ffa.FFA_FN64_MEM_LEND,
		ffa.FFA_MEM_RETRIEVE_REQ, ffa.FFA_FN64_MEM_RETRIEVE_REQ,
		ffa.FFA_MEM_RECLAIM:
		return ffa.Success(0)
	default:
		return ffa.ErrorResult(ffa.ErrNotSupported)
	}
}

func (s *SPMC) rxtxMap(tx uint64, rx uint64, npages uint32) (err error) {
	if s.mbox != nil {
		return ffa.ErrDenied
	}

	size := int(npages) * ffa.PageSize

	if npages == 0 || tx%ffa.PageSize != 0 || rx%ffa.PageSize != 0 {
		return ffa.ErrInvalidParameters
	}

	mbox := &mailbox{}

	if mbox.tx, err = s.mem.Slice(tx, size); err != nil {
		return ffa.ErrInvalidParameters
	}

	if mbox.rx, err = s.mem.Slice(rx, size); err != nil {
		return ffa.ErrInvalidParameters
	}

	s.mbox = mbox

	s.log.Debug("buffers mapped", zap.Uint64("tx", tx), zap.Uint64("rx", rx), zap.Uint32("pages", npages))

	return
}

func (s *SPMC) rxtxUnmap(id uint16) error {
	if id != NormalWorldID || s.mbox == nil {
		return ffa.ErrInvalidParameters
	}

	s.mbox = nil

	return nil
}

func (s *SPMC) rxRelease() error {
	if s.mbox == nil || !s.mbox.busy {
		return ffa.ErrDenied
	}

	s.mbox.busy = false

	return nil
}

func (s *SPMC) memXfer(fid uint32, args ffa.Args) ffa.Result {
	if s.mbox == nil || args[3] != 0 || args[4] != 0 {
		return ffa.ErrorResult(ffa.ErrInvalidParameters)
	}

	m, err := ffa.ParseMemRegion(s.mbox.tx, uint32(args[1]), uint32(args[2]), NormalWorldID)

	if err != nil {
		return ffa.Status(err, 0)
	}

	if !s.partitions[m.Access.Receiver] || len(m.Ranges) == 0 {
		return ffa.ErrorResult(ffa.ErrInvalidParameters)
	}

	var total uint32

	for _, r := range m.Ranges {
		if r.PageCount == 0 || r.Address%ffa.PageSize != 0 {
			return ffa.ErrorResult(ffa.ErrInvalidParameters)
		}

		total += r.PageCount
	}

	if m.TotalPages != total {
		return ffa.ErrorResult(ffa.ErrInvalidParameters)
	}

	m.Handle = s.next
	s.next++

	lend := fid == ffa.FFA_MEM_LEND || fid == ffa.FFA_FN64_MEM_LEND

	s.handles[m.Handle] = &Transaction{
		Handle: m.Handle,
		Lend:   lend,
		Region: *m,
	}

	s.log.Debug("memory transaction",
		zap.Uint64("handle", m.Handle),
		zap.Bool("lend", lend),
		zap.Uint16("receiver", m.Access.Receiver),
		zap.Uint32("pages", total))

	lo, hi := ffa.UnpackHandle(m.Handle)

	return ffa.Result{
		A0: ffa.FFA_SUCCESS,
		A2: uint64(lo),
		A3: uint64(hi),
	}
}

// retrieveReq serves retrieve requests issued by transaction owners, the
// transaction descriptor is returned in the RX buffer.
func (s *SPMC) retrieveReq(length uint32, fraglen uint32) ffa.Result {
	if s.mbox == nil || fraglen != length {
		return ffa.ErrorResult(ffa.ErrInvalidParameters)
	}

	sender, handle, err := ffa.ParseRetrieveReq(s.mbox.tx, length)

	if err != nil {
		return ffa.Status(err, 0)
	}

	t, ok := s.handles[handle]

	if !ok || t.Region.Sender != sender {
		return ffa.ErrorResult(ffa.ErrInvalidParameters)
	}

	if s.mbox.busy {
		return ffa.ErrorResult(ffa.ErrBusy)
	}

	n, err := t.Region.Marshal(s.mbox.rx)

	if err != nil {
		return ffa.Status(err, 0)
	}

	s.mbox.busy = true

	return ffa.Result{
		A0: ffa.FFA_MEM_RETRIEVE_RESP,
		A1: uint64(n),
		A2: uint64(n),
	}
}

func (s *SPMC) reclaim(handle uint64) error {
	t, ok := s.handles[handle]

	if !ok {
		return ffa.ErrInvalidParameters
	}

	if t.Acquired {
		return ffa.ErrDenied
	}

	delete(s.handles, handle)

	return nil
}

// Acquire marks a memory transaction as retrieved by its receiver.
func (s *SPMC) Acquire(handle uint64, receiver uint16) error {
	s.Lock()
	defer s.Unlock()

	t, ok := s.handles[handle]

	if !ok || t.Region.Access.Receiver != receiver {
		return ffa.ErrInvalidParameters
	}

	if t.Acquired {
		return ffa.ErrDenied
	}

	t.Acquired = true

	return nil
}

// Relinquish marks a memory transaction as released by its receiver.
func (s *SPMC) Relinquish(handle uint64, receiver uint16) error {
	s.Lock()
	defer s.Unlock()

	t, ok := s.handles[handle]

	if !ok || t.Region.Access.Receiver != receiver || !t.Acquired {
		return ffa.ErrInvalidParameters
	}

	t.Acquired = false

	return nil
}

// Transactions returns the pending memory transactions sorted by handle.
func (s *SPMC) Transactions() (txs []Transaction) {
	s.Lock()
	defer s.Unlock()

	for _, t := range s.handles {
		c := *t
		c.Region.Ranges = append([]ffa.AddrRange(nil), t.Region.Ranges...)
		txs = append(txs, c)
	}

	sort.Slice(txs, func(i, j int) bool {
		return txs[i].Handle < txs[j].Handle
	})

	return
}
