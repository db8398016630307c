// Copyright (c) The GoTEE authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package ffa

import (
	"fmt"
)

// Error represents an FF-A error status code, as returned in w2/x2 of an
// FFA_ERROR response.
type Error int32

// FF-A error status codes
const (
	ErrNotSupported      Error = -1
	ErrInvalidParameters Error = -2
	ErrNoMemory          Error = -3
	ErrBusy              Error = -4
	ErrInterrupted       Error = -5
	ErrDenied            Error = -6
	ErrRetry             Error = -7
	ErrAborted           Error = -8
)

var errorNames = map[Error]string{
	ErrNotSupported:      "not supported",
	ErrInvalidParameters: "invalid parameters",
	ErrNoMemory:          "no memory",
	ErrBusy:              "busy",
	ErrInterrupted:       "interrupted",
	ErrDenied:            "denied",
	ErrRetry:             "retry",
	ErrAborted:           "aborted",
}

func (e Error) Error() string {
	if s, ok := errorNames[e]; ok {
		return "ffa: " + s
	}

	return fmt.Sprintf("ffa: error %d", int32(e))
}

// Args represents the argument registers (w0-w7/x0-x7) of an SMC, with the
// function identifier in the first one.
type Args [8]uint64

// Result represents the result registers of an SMC, mirrored back to the
// caller.
type Result struct {
	A0 uint64
	A1 uint64
	A2 uint64
	A3 uint64
}

// Success returns a generic success result with an optional property in w2.
func Success(prop uint64) Result {
	return Result{
		A0: FFA_SUCCESS,
		A2: prop,
	}
}

// ErrorResult returns an FFA_ERROR result for the argument status code.
func ErrorResult(e Error) Result {
	return Result{
		A0: FFA_ERROR,
		A2: uint64(uint32(int32(e))),
	}
}

// Status returns the result encoding of an error, a nil error yields a
// success result with the given property. Errors which do not carry an FF-A
// status code are reported as aborted.
func Status(err error, prop uint64) Result {
	if err == nil {
		return Success(prop)
	}

	if e, ok := err.(Error); ok {
		return ErrorResult(e)
	}

	return ErrorResult(ErrAborted)
}

// IsSuccess reports whether the result carries either the 32-bit or the
// 64-bit success function identifier.
func (r Result) IsSuccess() bool {
	fid := uint32(r.A0)
	return fid == FFA_SUCCESS || fid == FFA_FN64_SUCCESS
}

// Err returns nil on success results, the error status code on FFA_ERROR
// results and ErrAborted for any other function identifier.
func (r Result) Err() error {
	switch {
	case r.IsSuccess():
		return nil
	case uint32(r.A0) == FFA_ERROR:
		return Error(int32(uint32(r.A2)))
	default:
		return ErrAborted
	}
}

// Handle returns the memory transaction handle carried in w2/w3 of a
// successful memory transfer result.
func (r Result) Handle() uint64 {
	return PackHandle(uint32(r.A2), uint32(r.A3))
}

func (r Result) String() string {
	return fmt.Sprintf("a0:%#x a1:%#x a2:%#x a3:%#x", r.A0, r.A1, r.A2, r.A3)
}
