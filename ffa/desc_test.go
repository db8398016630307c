// Copyright (c) The GoTEE authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package ffa

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const hostID = 0

func testRegion() *MemRegion {
	return &MemRegion{
		Sender:     hostID,
		Attributes: MEM_NORMAL | MEM_WRITE_BACK | MEM_INNER_SHAREABLE,
		Tag:        0xcafe,
		Access: MemAccess{
			Receiver:    0x8001,
			Permissions: MEM_DATA_ACCESS_RW | MEM_INSTR_NX,
		},
		Ranges: []AddrRange{
			{Address: 0x80000000, PageCount: 1},
			{Address: 0x80010000, PageCount: 4},
		},
	}
}

func marshal(t *testing.T, m *MemRegion) ([]byte, uint32) {
	buf := make([]byte, 4096)

	n, err := m.Marshal(buf)
	require.NoError(t, err)

	return buf, uint32(n)
}

func TestParseMemRegion(t *testing.T) {
	in := testRegion()
	buf, n := marshal(t, in)

	require.Equal(t, MemRegionSize+MemAccessSize+CompositeRegionSize+2*AddrRangeSize, int(n))

	out, err := ParseMemRegion(buf, n, n, hostID)
	require.NoError(t, err)

	assert.Equal(t, in.Sender, out.Sender)
	assert.Equal(t, in.Attributes, out.Attributes)
	assert.Equal(t, in.Tag, out.Tag)
	assert.Equal(t, in.Access, out.Access)
	assert.Equal(t, uint32(5), out.TotalPages)
	assert.Equal(t, in.Ranges, out.Ranges)
}

func TestParseMemRegionDoesNotAlias(t *testing.T) {
	buf, n := marshal(t, testRegion())

	out, err := ParseMemRegion(buf, n, n, hostID)
	require.NoError(t, err)

	// overwrite the first constituent address
	binary.LittleEndian.PutUint64(buf[MemRegionSize+MemAccessSize+CompositeRegionSize:], 0xdead0000)

	assert.Equal(t, uint64(0x80000000), out.Ranges[0].Address)
}

func TestParseMemRegionShortFragment(t *testing.T) {
	buf, _ := marshal(t, testRegion())

	for fraglen := uint32(0); fraglen < MemRegionSize+MemAccessSize; fraglen++ {
		_, err := ParseMemRegion(buf, fraglen, fraglen, hostID)
		require.Equal(t, ErrInvalidParameters, err, "fraglen %d", fraglen)
	}
}

func TestParseMemRegionFragmented(t *testing.T) {
	buf, n := marshal(t, testRegion())

	_, err := ParseMemRegion(buf, n, n-AddrRangeSize, hostID)
	assert.Equal(t, ErrAborted, err)
}

func TestParseMemRegionInvalid(t *testing.T) {
	le := binary.LittleEndian

	for _, tt := range []struct {
		name    string
		length  func(n uint32) uint32
		fraglen func(n uint32) uint32
		mangle  func(buf []byte)
	}{
		{
			name:    "fraglen exceeds length",
			fraglen: func(n uint32) uint32 { return n + 1 },
		},
		{
			name:   "length exceeds buffer",
			length: func(n uint32) uint32 { return 8192 },
		},
		{
			name:   "foreign sender",
			mangle: func(buf []byte) { le.PutUint16(buf[memSender:], 0x8001) },
		},
		{
			name:   "no endpoints",
			mangle: func(buf []byte) { le.PutUint32(buf[memEPCount:], 0) },
		},
		{
			name:   "multiple endpoints",
			mangle: func(buf []byte) { le.PutUint32(buf[memEPCount:], 2) },
		},
		{
			name:   "zero composite offset",
			mangle: func(buf []byte) { le.PutUint32(buf[MemRegionSize+accComposite:], 0) },
		},
		{
			name:   "composite offset beyond fragment",
			mangle: func(buf []byte) { le.PutUint32(buf[MemRegionSize+accComposite:], 0x70) },
		},
		{
			name:   "composite offset overflow",
			mangle: func(buf []byte) { le.PutUint32(buf[MemRegionSize+accComposite:], 0xfffffff8) },
		},
		{
			name: "range count beyond fragment",
			mangle: func(buf []byte) {
				le.PutUint32(buf[MemRegionSize+MemAccessSize+compRangeCount:], 3)
			},
		},
		{
			name: "range count overflow",
			mangle: func(buf []byte) {
				le.PutUint32(buf[MemRegionSize+MemAccessSize+compRangeCount:], 0xffffffff)
			},
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			buf, n := marshal(t, testRegion())
			buf = buf[:4096]

			length := n
			fraglen := n

			if tt.length != nil {
				length = tt.length(n)
				fraglen = length
			}

			if tt.fraglen != nil {
				fraglen = tt.fraglen(n)
			}

			if tt.mangle != nil {
				tt.mangle(buf)
			}

			_, err := ParseMemRegion(buf, length, fraglen, hostID)
			assert.Equal(t, ErrInvalidParameters, err)
		})
	}
}

func TestParseMemRegionTrailingBytes(t *testing.T) {
	buf, n := marshal(t, testRegion())

	// bytes past the constituents are ignored
	out, err := ParseMemRegion(buf, n+64, n+64, hostID)
	require.NoError(t, err)
	assert.Len(t, out.Ranges, 2)
}

func TestMarshalNoMemory(t *testing.T) {
	m := testRegion()

	_, err := m.Marshal(make([]byte, m.Len()-1))
	assert.Equal(t, ErrNoMemory, err)
}

func TestRetrieveReq(t *testing.T) {
	buf := make([]byte, 64)

	for i := range buf {
		buf[i] = 0xff
	}

	n, err := MarshalRetrieveReq(buf, hostID, 0x1122334455667788)
	require.NoError(t, err)
	require.Equal(t, MemRegionSize, n)

	sender, handle, err := ParseRetrieveReq(buf, uint32(n))
	require.NoError(t, err)

	assert.Equal(t, uint16(hostID), sender)
	assert.Equal(t, uint64(0x1122334455667788), handle)
	assert.Equal(t, uint32(0), binary.LittleEndian.Uint32(buf[memEPCount:]))

	_, _, err = ParseRetrieveReq(buf, MemRegionSize-1)
	assert.Equal(t, ErrInvalidParameters, err)
}
