// Copyright (c) The GoTEE authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package ffa

import (
	"encoding/binary"
)

// Memory region descriptor layout (FF-A v1.0, Table 5.19 to 5.25)
const (
	MemRegionSize       = 32
	MemAccessSize       = 16
	CompositeRegionSize = 16
	AddrRangeSize       = 16

	// memory region header
	memSender  = 0
	memAttrs   = 2
	memFlags   = 4
	memHandle  = 8
	memTag     = 16
	memEPCount = 28

	// endpoint memory access descriptor
	accReceiver  = 0
	accPerms     = 2
	accFlags     = 3
	accComposite = 4

	// composite memory region descriptor
	compTotalPages = 0
	compRangeCount = 4

	// constituent memory region descriptor
	rangeAddress = 0
	rangePages   = 8
)

// Memory access permissions
const (
	MEM_DATA_ACCESS_RO = 1 << 0
	MEM_DATA_ACCESS_RW = 1 << 1
	MEM_INSTR_NX       = 1 << 2
)

// Memory region attributes
const (
	MEM_NORMAL          = 1 << 5
	MEM_WRITE_BACK      = 3 << 2
	MEM_INNER_SHAREABLE = 3
)

// AddrRange represents a constituent memory region descriptor, the page
// count is expressed in FF-A pages (see PageSize).
type AddrRange struct {
	Address   uint64
	PageCount uint32
}

// Size returns the range size in bytes.
func (r AddrRange) Size() uint64 {
	return uint64(r.PageCount) * PageSize
}

// MemAccess represents an endpoint memory access descriptor.
type MemAccess struct {
	Receiver    uint16
	Permissions uint8
	Flags       uint8
}

// MemRegion represents a memory region descriptor with a single endpoint
// memory access descriptor, the only form accepted by this package.
type MemRegion struct {
	Sender     uint16
	Attributes uint8
	Flags      uint32
	Handle     uint64
	Tag        uint64

	Access MemAccess

	// TotalPages is the composite descriptor total page count.
	TotalPages uint32
	// Ranges are the constituent memory regions.
	Ranges []AddrRange
}

// ParseMemRegion decodes a memory region descriptor of total length length,
// of which only the first fraglen bytes have been transferred in buf. The
// descriptor must be originated by the argument sender identifier.
//
// The validation fails closed: ErrAborted is returned for incomplete
// (fragmented) transfers and ErrInvalidParameters for any other malformed
// input. The returned value never aliases buf.
func ParseMemRegion(buf []byte, length uint32, fraglen uint32, sender uint16) (m *MemRegion, err error) {
	if uint64(length) > uint64(len(buf)) || fraglen > length {
		return nil, ErrInvalidParameters
	}

	if fraglen < length {
		return nil, ErrAborted
	}

	if fraglen < MemRegionSize+MemAccessSize {
		return nil, ErrInvalidParameters
	}

	le := binary.LittleEndian

	m = &MemRegion{
		Sender:     le.Uint16(buf[memSender:]),
		Attributes: buf[memAttrs],
		Flags:      le.Uint32(buf[memFlags:]),
		Handle:     le.Uint64(buf[memHandle:]),
		Tag:        le.Uint64(buf[memTag:]),
	}

	epCount := le.Uint32(buf[memEPCount:])

	acc := buf[MemRegionSize : MemRegionSize+MemAccessSize]
	off := le.Uint32(acc[accComposite:])

	if m.Sender != sender || epCount != 1 || off == 0 {
		return nil, ErrInvalidParameters
	}

	m.Access = MemAccess{
		Receiver:    le.Uint16(acc[accReceiver:]),
		Permissions: acc[accPerms],
		Flags:       acc[accFlags],
	}

	end := uint64(off) + CompositeRegionSize

	if uint64(fraglen) < end {
		return nil, ErrInvalidParameters
	}

	comp := buf[off:end]
	count := le.Uint32(comp[compRangeCount:])

	if uint64(fraglen) < end+uint64(count)*AddrRangeSize {
		return nil, ErrInvalidParameters
	}

	m.TotalPages = le.Uint32(comp[compTotalPages:])
	m.Ranges = make([]AddrRange, count)

	for i := range m.Ranges {
		r := buf[end+uint64(i)*AddrRangeSize:]

		m.Ranges[i] = AddrRange{
			Address:   le.Uint64(r[rangeAddress:]),
			PageCount: le.Uint32(r[rangePages:]),
		}
	}

	return
}

// Len returns the encoded descriptor length, with the composite descriptor
// placed right after the endpoint memory access descriptor.
func (m *MemRegion) Len() int {
	return MemRegionSize + MemAccessSize + CompositeRegionSize + len(m.Ranges)*AddrRangeSize
}

// Marshal encodes the descriptor in buf and returns the number of bytes
// written. A zero TotalPages is computed from the constituent ranges.
func (m *MemRegion) Marshal(buf []byte) (n int, err error) {
	n = m.Len()

	if n > len(buf) {
		return 0, ErrNoMemory
	}

	for i := range buf[:n] {
		buf[i] = 0
	}

	le := binary.LittleEndian

	le.PutUint16(buf[memSender:], m.Sender)
	buf[memAttrs] = m.Attributes
	le.PutUint32(buf[memFlags:], m.Flags)
	le.PutUint64(buf[memHandle:], m.Handle)
	le.PutUint64(buf[memTag:], m.Tag)
	le.PutUint32(buf[memEPCount:], 1)

	acc := buf[MemRegionSize:]
	le.PutUint16(acc[accReceiver:], m.Access.Receiver)
	acc[accPerms] = m.Access.Permissions
	acc[accFlags] = m.Access.Flags
	le.PutUint32(acc[accComposite:], MemRegionSize+MemAccessSize)

	total := m.TotalPages

	if total == 0 {
		for _, r := range m.Ranges {
			total += r.PageCount
		}
	}

	comp := acc[MemAccessSize:]
	le.PutUint32(comp[compTotalPages:], total)
	le.PutUint32(comp[compRangeCount:], uint32(len(m.Ranges)))

	for i, r := range m.Ranges {
		off := CompositeRegionSize + i*AddrRangeSize
		le.PutUint64(comp[off+rangeAddress:], r.Address)
		le.PutUint32(comp[off+rangePages:], r.PageCount)
	}

	return
}

// MarshalRetrieveReq encodes in buf a minimal memory retrieve request, as
// issued by the owner of a memory transaction to look up its descriptor,
// and returns its length.
func MarshalRetrieveReq(buf []byte, sender uint16, handle uint64) (n int, err error) {
	if len(buf) < MemRegionSize {
		return 0, ErrNoMemory
	}

	for i := range buf[:MemRegionSize] {
		buf[i] = 0
	}

	binary.LittleEndian.PutUint16(buf[memSender:], sender)
	binary.LittleEndian.PutUint64(buf[memHandle:], handle)

	return MemRegionSize, nil
}

// ParseRetrieveReq decodes the sender and handle of a memory retrieve
// request of the given length.
func ParseRetrieveReq(buf []byte, length uint32) (sender uint16, handle uint64, err error) {
	if length < MemRegionSize || uint64(length) > uint64(len(buf)) {
		return 0, 0, ErrInvalidParameters
	}

	sender = binary.LittleEndian.Uint16(buf[memSender:])
	handle = binary.LittleEndian.Uint64(buf[memHandle:])

	return
}
