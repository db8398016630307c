// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package main

import (
	_ "embed"
	"fmt"
	"os"
	"runtime"
	"time"
	_ "unsafe"

	"go.uber.org/zap"

	usbarmory "github.com/usbarmory/tamago/board/usbarmory/mk2"
	"github.com/usbarmory/tamago/dma"
	"github.com/usbarmory/tamago/soc/nxp/imx6ul"

	"github.com/usbarmory/imx-usbnet"

	"github.com/usbarmory/GoTEE-ffa/mem"
	"github.com/usbarmory/GoTEE-ffa/proxy"
	"github.com/usbarmory/GoTEE-ffa/util"

	"github.com/usbarmory/GoTEE-ffa/trusted_os_usbarmory/cmd"
	"github.com/usbarmory/GoTEE-ffa/trusted_os_usbarmory/internal"
)

const (
	sshPort = 22
	IP      = "10.0.0.1"
	MAC     = "1a:55:89:a2:69:41"
	hostMAC = "1a:55:89:a2:69:42"
)

//go:linkname ramStart runtime.ramStart
var ramStart uint32 = mem.SecureStart

//go:linkname ramSize runtime.ramSize
var ramSize uint32 = mem.SecureSize

//go:embed ffa.toml
var ffaConf []byte

var (
	banner string
	output *util.Output
)

func init() {
	output = util.NewOutput(os.Stdout)
	zap.ReplaceGlobals(util.NewLogger(output, util.LogLevel))

	// Move DMA region to prevent NonSecure access, alternatively
	// iRAM/OCRAM (default DMA region) can be locked down on its own (as it
	// is outside TZASC control).
	dma.Init(mem.SecureDMAStart, mem.SecureDMASize)

	if imx6ul.Native {
		imx6ul.SetARMFreq(900)

		debugConsole, _ := usbarmory.DetectDebugAccessory(250 * time.Millisecond)
		<-debugConsole
	}

	banner = fmt.Sprintf("%s/%s (%s) • FF-A security monitor (Secure World system/monitor)", runtime.GOOS, runtime.GOARCH, runtime.Version())
	zap.L().Info(banner)
}

func main() {
	log := zap.L()
	defer log.Info("goodbye")

	conf, err := proxy.ParseConfig(ffaConf)

	if err != nil {
		log.Fatal("invalid FF-A configuration", zap.Error(err))
	}

	if err = mem.Init(); err != nil {
		log.Fatal("could not reserve Normal World memory", zap.Error(err))
	}

	if err = gotee.InitFFA(conf); err != nil {
		log.Fatal("could not initialize FF-A proxy", zap.Error(err))
	}

	if !imx6ul.Native {
		if err = gotee.SelfTest(); err != nil {
			log.Fatal("self test failed", zap.Error(err))
		}

		log.Info("self test passed")

		return
	}

	iface, err := usbnet.Init(IP, MAC, hostMAC, 1)

	if err != nil {
		log.Fatal("could not initialize USB networking", zap.Error(err))
	}

	iface.EnableICMP()

	listener, err := iface.ListenerTCP4(sshPort)

	if err != nil {
		log.Fatal("could not initialize SSH listener", zap.Error(err))
	}

	console := &util.Console{
		Banner:  banner,
		Handler: cmd.Handle,
		Output:  output,
		Log:     log.Named("ssh"),
	}

	if err = console.Start(listener); err != nil {
		log.Fatal("could not initialize SSH server", zap.Error(err))
	}

	usbarmory.USB1.Init()
	usbarmory.USB1.DeviceMode()
	usbarmory.USB1.Reset()

	// never returns
	usbarmory.USB1.Start(iface.NIC.Device)
}
