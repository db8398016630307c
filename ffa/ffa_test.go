// Copyright (c) The GoTEE authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package ffa

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFunctionIdentifiers(t *testing.T) {
	assert.Equal(t, uint32(0x84000060), uint32(FFA_ERROR))
	assert.Equal(t, uint32(0x84000061), uint32(FFA_SUCCESS))
	assert.Equal(t, uint32(0xc4000061), uint32(FFA_FN64_SUCCESS))
	assert.Equal(t, uint32(0xc4000066), uint32(FFA_FN64_RXTX_MAP))
	assert.Equal(t, uint32(0x84000073), uint32(FFA_MEM_SHARE))
	assert.Equal(t, uint32(0xc4000073), uint32(FFA_FN64_MEM_SHARE))
	assert.Equal(t, uint32(0x84000077), uint32(FFA_MEM_RECLAIM))
	assert.Equal(t, uint32(0x80000000), uint32(SMCCC_VERSION))
}

func TestIsCall(t *testing.T) {
	for fid, want := range map[uint32]bool{
		FFA_ERROR:               true,
		FFA_MEM_SHARE:           true,
		FFA_FN64_MEM_LEND:       true,
		FFA_NORMAL_WORLD_RESUME: true,
		fn32 | 0x7f:             true,
		fn32 | 0x5f:             false,
		fn32 | 0x80:             false,
		SMCCC_VERSION:           false,
		// yielding call
		OwnerStandard<<ownerShift | 0x63: false,
		// trusted OS owner
		FastCall | 50<<ownerShift | 0x63: false,
	} {
		assert.Equal(t, want, IsCall(fid), "%#x", fid)
	}
}

func TestHandle(t *testing.T) {
	lo, hi := UnpackHandle(0xaabbccdd11223344)

	assert.Equal(t, uint32(0x11223344), lo)
	assert.Equal(t, uint32(0xaabbccdd), hi)
	assert.Equal(t, uint64(0xaabbccdd11223344), PackHandle(lo, hi))

	res := Result{A0: FFA_SUCCESS, A2: uint64(lo), A3: uint64(hi)}
	assert.Equal(t, uint64(0xaabbccdd11223344), res.Handle())
}

func TestResult(t *testing.T) {
	res := ErrorResult(ErrDenied)

	assert.Equal(t, uint64(FFA_ERROR), res.A0)
	assert.Equal(t, uint64(0xfffffffa), res.A2)
	assert.False(t, res.IsSuccess())
	assert.Equal(t, ErrDenied, res.Err())

	assert.True(t, Success(0).IsSuccess())
	assert.True(t, Result{A0: FFA_FN64_SUCCESS}.IsSuccess())
	assert.NoError(t, Result{A0: FFA_FN64_SUCCESS}.Err())

	assert.Equal(t, ErrAborted, Result{A0: FFA_MEM_RETRIEVE_RESP}.Err())
}

func TestStatus(t *testing.T) {
	assert.Equal(t, Success(7), Status(nil, 7))
	assert.Equal(t, ErrorResult(ErrBusy), Status(ErrBusy, 0))
	assert.Equal(t, ErrorResult(ErrAborted), Status(errors.New("spurious"), 0))
}

func TestErrorString(t *testing.T) {
	assert.Equal(t, "ffa: invalid parameters", ErrInvalidParameters.Error())
	assert.Equal(t, "ffa: error -42", Error(-42).Error())
}
