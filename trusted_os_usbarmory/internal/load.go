// Copyright (c) The GoTEE authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package gotee

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/usbarmory/tamago/arm"
	"github.com/usbarmory/tamago/bits"
	usbarmory "github.com/usbarmory/tamago/board/usbarmory/mk2"
	"github.com/usbarmory/tamago/soc/nxp/imx6ul"
	"github.com/usbarmory/tamago/soc/nxp/usdhc"

	"github.com/usbarmory/GoTEE/monitor"

	"github.com/usbarmory/armory-boot/config"
	"github.com/usbarmory/armory-boot/disk"
	"github.com/usbarmory/armory-boot/exec"

	"github.com/usbarmory/GoTEE-ffa/mem"
)

// bootConfLinux is the path to the armory-boot configuration file for loading a
// Linux kernel as Non-secure OS.
const bootConfLinux = "/boot/armory-boot-nonsecure.conf"

// Linux image offsets within the Normal World memory region, the kernel is
// expected to issue FF-A calls with addresses within this region only.
const (
	kernelOffset         = 0x00800000
	deviceTreeBlobOffset = 0x07000000
	initialRamDiskOffset = 0x08000000
)

func sdCard(device string) (id int, card *usdhc.USDHC, err error) {
	switch device {
	case "uSD":
		return 10, usbarmory.SD, nil
	case "eMMC":
		return 11, usbarmory.MMC, nil
	}

	return 0, nil, errors.New("invalid device")
}

// loadLinux loads a Linux kernel as Normal World OS, the kernel configuration
// is read from an armory-boot configuration file on the given device ("eMMC"
// or "uSD").
func loadLinux(device string) (os *monitor.ExecCtx, err error) {
	id, card, err := sdCard(device)

	if err != nil {
		return
	}

	// Set the device USDHC controller as Secure master to grant access to
	// the Trusted OS DMA region.
	if err = imx6ul.CSU.SetAccess(id, true, false); err != nil {
		return
	}

	part, err := disk.Detect(card, "")

	if err != nil {
		return
	}

	conf, err := config.Load(part, bootConfLinux, "", "")

	if err != nil {
		return
	}

	zap.L().Debug("loaded boot configuration", zap.ByteString("conf", conf.JSON))

	image := &exec.LinuxImage{
		Region:               mem.NonSecureRegion,
		Kernel:               conf.Kernel(),
		DeviceTreeBlob:       conf.DeviceTreeBlob(),
		InitialRamDisk:       conf.InitialRamDisk(),
		KernelOffset:         kernelOffset,
		DeviceTreeBlobOffset: deviceTreeBlobOffset,
		InitialRamDiskOffset: initialRamDiskOffset,
		CmdLine:              conf.CmdLine,
	}

	if err = image.Load(); err != nil {
		return
	}

	if os, err = monitor.Load(image.Entry(), image.Region, false); err != nil {
		return nil, fmt.Errorf("could not load kernel, %v", err)
	}

	zap.L().Info("loaded kernel",
		zap.String("addr", fmt.Sprintf("%#x", os.Memory.Start())),
		zap.Int("size", len(image.Kernel)),
		zap.Uint32("entry", os.R15))

	if err = configureTrustZone(); err != nil {
		return nil, fmt.Errorf("could not configure TrustZone, %v", err)
	}

	if err = grantPeripheralAccess(); err != nil {
		return nil, fmt.Errorf("could not configure TrustZone peripheral access, %v", err)
	}

	os.R0 = 0
	os.R2 = uint32(image.DTB())
	os.SPSR = arm.SVC_MODE

	// enable FIQ to receive TrustZone Watchdog IRQ
	bits.Clear(&os.SPSR, 6)

	os.Handler = linuxHandler

	return
}
