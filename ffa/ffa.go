// Copyright (c) The GoTEE authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package ffa provides definitions for the Arm Firmware Framework for
// A-profile (FF-A) v1.0 memory management interface (Arm DEN0077A) and the
// SMC Calling Convention (Arm DEN0028) function identifiers it is built on.
//
// The package is architecture independent and does not perform any call
// itself, see package proxy for the host call filter and package spmc for a
// secure world implementation.
package ffa

// SMC Calling Convention function identifier fields
const (
	FastCall = 1 << 31
	SMC64    = 1 << 30

	ownerShift = 24
	ownerMask  = 0x3f
	funcMask   = 0xffff

	OwnerArch     = 0
	OwnerStandard = 4
)

// SMCCC_VERSION returns the implemented SMC Calling Convention version.
const SMCCC_VERSION = FastCall | OwnerArch<<ownerShift

// SMCCC versions
const (
	SMCCCVersion1_1 = 1<<16 | 1
	SMCCCVersion1_2 = 1<<16 | 2
)

// FF-A function number range
const (
	FFA_MIN_FUNC_NUM = 0x60
	FFA_MAX_FUNC_NUM = 0x7f
)

const (
	fn32 = FastCall | OwnerStandard<<ownerShift
	fn64 = fn32 | SMC64
)

// FF-A function identifiers
const (
	FFA_ERROR                     = fn32 | 0x60
	FFA_SUCCESS                   = fn32 | 0x61
	FFA_FN64_SUCCESS              = fn64 | 0x61
	FFA_INTERRUPT                 = fn32 | 0x62
	FFA_VERSION                   = fn32 | 0x63
	FFA_FEATURES                  = fn32 | 0x64
	FFA_RX_RELEASE                = fn32 | 0x65
	FFA_RXTX_MAP                  = fn32 | 0x66
	FFA_FN64_RXTX_MAP             = fn64 | 0x66
	FFA_RXTX_UNMAP                = fn32 | 0x67
	FFA_PARTITION_INFO_GET        = fn32 | 0x68
	FFA_ID_GET                    = fn32 | 0x69
	FFA_MSG_POLL                  = fn32 | 0x6a
	FFA_MSG_WAIT                  = fn32 | 0x6b
	FFA_YIELD                     = fn32 | 0x6c
	FFA_RUN                       = fn32 | 0x6d
	FFA_MSG_SEND                  = fn32 | 0x6e
	FFA_MSG_SEND_DIRECT_REQ       = fn32 | 0x6f
	FFA_FN64_MSG_SEND_DIRECT_REQ  = fn64 | 0x6f
	FFA_MSG_SEND_DIRECT_RESP      = fn32 | 0x70
	FFA_FN64_MSG_SEND_DIRECT_RESP = fn64 | 0x70
	FFA_MEM_DONATE                = fn32 | 0x71
	FFA_FN64_MEM_DONATE           = fn64 | 0x71
	FFA_MEM_LEND                  = fn32 | 0x72
	FFA_FN64_MEM_LEND             = fn64 | 0x72
	FFA_MEM_SHARE                 = fn32 | 0x73
	FFA_FN64_MEM_SHARE            = fn64 | 0x73
	FFA_MEM_RETRIEVE_REQ          = fn32 | 0x74
	FFA_FN64_MEM_RETRIEVE_REQ     = fn64 | 0x74
	FFA_MEM_RETRIEVE_RESP         = fn32 | 0x75
	FFA_MEM_RELINQUISH            = fn32 | 0x76
	FFA_MEM_RECLAIM               = fn32 | 0x77
	FFA_MEM_OP_PAUSE              = fn32 | 0x78
	FFA_MEM_OP_RESUME             = fn32 | 0x79
	FFA_MEM_FRAG_RX               = fn32 | 0x7a
	FFA_MEM_FRAG_TX               = fn32 | 0x7b
	FFA_NORMAL_WORLD_RESUME       = fn32 | 0x7c
)

// FF-A versions
const (
	Version1_0 = 1<<16 | 0
)

// FFA_FEATURES properties for FFA_FN64_RXTX_MAP, minimum buffer size and
// alignment.
const (
	FEAT_RXTX_MIN_SZ_4K  = 0
	FEAT_RXTX_MIN_SZ_64K = 1
	FEAT_RXTX_MIN_SZ_16K = 2
)

// PageSize is the FF-A translation granule used to express page counts in
// memory region descriptors and buffer mapping calls.
const PageSize = 4096

// IsFastCall reports whether the function identifier uses the fast call
// type.
func IsFastCall(fid uint32) bool {
	return fid&FastCall != 0
}

// Owner returns the function identifier owning entity number.
func Owner(fid uint32) uint32 {
	return (fid >> ownerShift) & ownerMask
}

// FuncNum returns the function identifier function number.
func FuncNum(fid uint32) uint32 {
	return fid & funcMask
}

// IsCall reports whether the function identifier falls within the FF-A
// range of the standard secure service calls.
func IsCall(fid uint32) bool {
	n := FuncNum(fid)

	return IsFastCall(fid) &&
		Owner(fid) == OwnerStandard &&
		n >= FFA_MIN_FUNC_NUM &&
		n <= FFA_MAX_FUNC_NUM
}

// PackHandle assembles a memory transaction handle from its register
// halves.
func PackHandle(lo uint32, hi uint32) uint64 {
	return uint64(hi)<<32 | uint64(lo)
}

// UnpackHandle splits a memory transaction handle in its register halves.
func UnpackHandle(h uint64) (lo uint32, hi uint32) {
	return uint32(h), uint32(h >> 32)
}
