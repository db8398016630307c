// Copyright (c) The GoTEE authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package mem

import (
	"fmt"

	"github.com/usbarmory/tamago/dma"
)

const (
	// Secure Monitor
	SecureStart = 0x90000000
	SecureSize  = 0x05f00000 // 95MB

	// Secure Monitor DMA (relocated to avoid conflicts with Main OS),
	// holds the FF-A staging buffers.
	SecureDMAStart = 0x95f00000
	SecureDMASize  = 0x00100000 // 1MB

	// Main OS
	NonSecureStart = 0x80000000
	NonSecureSize  = 0x10000000 // 256MB
)

var (
	NonSecureRegion *dma.Region

	// Physical provides monitor access to Normal World memory and to the
	// staging buffers.
	Physical = &Windows{}
)

// Init reserves the Normal World memory region.
func Init() (err error) {
	if NonSecureRegion, err = dma.NewRegion(NonSecureStart, NonSecureSize, false); err != nil {
		return
	}

	addr, buf := NonSecureRegion.Reserve(NonSecureSize, 0)

	return Physical.Add(uint64(addr), buf)
}

// Staging reserves, from the Secure Monitor DMA region, the FF-A staging
// buffer pair shared with the secure world, each buffer is size bytes long.
func Staging(size int) (pa uint64, buf []byte, err error) {
	addr, buf := dma.Default().Reserve(2*size, size)

	if addr == 0 {
		return 0, nil, fmt.Errorf("could not reserve %d bytes", 2*size)
	}

	pa = uint64(addr)

	return pa, buf, Physical.Add(pa, buf)
}
