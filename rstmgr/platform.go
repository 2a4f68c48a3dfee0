// Copyright 2024 The SoCFPGA Firmware authors. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package rstmgr

import (
	"fmt"
	"sort"
)

// Reset Manager registers
const (
	RSTMGR_HDSKEN     = 0x10
	RSTMGR_HDSKREQ    = 0x14
	RSTMGR_HDSKACK    = 0x18
	RSTMGR_PER0MODRST = 0x24
	RSTMGR_PER1MODRST = 0x28
	RSTMGR_BRGMODRST  = 0x2c
)

// HDSKEN/HDSKREQ/HDSKACK fields
const (
	HDSK_EMIF_FLUSH  = 1 << 0
	HDSK_FPGAHS      = 1 << 2
	HDSK_ETRSTALLEN  = 1 << 3
	HDSK_LWS2F_FLUSH = 1 << 9
	HDSK_S2F_FLUSH   = 1 << 10
	HDSK_L3NOC_DBG   = 1 << 16
	HDSK_DEBUG_L3NOC = 1 << 17
)

// BRGMODRST fields
const (
	BRG_SOC2FPGA   = 1 << 0
	BRG_LWHPS2FPGA = 1 << 1
	BRG_FPGA2SOC   = 1 << 2
	BRG_F2SSDRAM0  = 1 << 3
	BRG_F2SSDRAM1  = 1 << 4
	BRG_F2SSDRAM2  = 1 << 5
	BRG_MPFE       = 1 << 6
)

// System Manager NoC idle handshake registers
const (
	SYSMGR_NOC_TIMEOUT     = 0xc0
	SYSMGR_NOC_IDLEREQ_SET = 0xc4
	SYSMGR_NOC_IDLEREQ_CLR = 0xc8
	SYSMGR_NOC_IDLEREQ_VAL = 0xcc
	SYSMGR_NOC_IDLEACK     = 0xd0
	SYSMGR_NOC_IDLESTATUS  = 0xd4
)

// NoC idle fields
const (
	IDLE_DATA_LWSOC2FPGA = 1 << 0
	IDLE_DATA_SOC2FPGA   = 1 << 4
)

// F2SDRAM Manager sideband flag registers
const (
	SIDEBANDMGR_FLAGINSTATUS0 = 0x14
	SIDEBANDMGR_FLAGOUTSET0   = 0x50
	SIDEBANDMGR_FLAGOUTCLR0   = 0x54
)

// Sideband flag fields are laid out per F2SDRAM port, three output flags
// and four input status flags each.
const (
	FLAGOUT_IDLEREQ     = 0
	FLAGOUT_ENABLE      = 1
	FLAGOUT_FORCE_DRAIN = 2
	flagOutWidth        = 3

	FLAGIN_IDLEACK   = 1
	FLAGIN_RESPEMPTY = 3
	flagInWidth      = 4
)

// FlagOut returns the sideband output flag bit for an F2SDRAM port.
func FlagOut(port int, flag int) uint32 {
	return 1 << (port*flagOutWidth + flag)
}

// FlagIn returns the sideband input status bit for an F2SDRAM port.
func FlagIn(port int, flag int) uint32 {
	return 1 << (port*flagInWidth + flag)
}

// noPort marks a fabric domain without F2SDRAM sideband signals.
const noPort = -1

type fabricPort struct {
	domain Domain
	brg    uint32
	port   int
}

// Platform describes the bridge layout of a SoC FPGA device family.
type Platform struct {
	Name string

	// Register window base addresses.
	RSTMGR     uint64
	SYSMGR     uint64
	F2SDRAMMGR uint64

	// NeverAssert holds BRGMODRST bits software must never set when
	// disabling bridges.
	NeverAssert uint32

	// MPFE indicates that the MPFE bridge is released along with the
	// peripherals.
	MPFE bool

	fabric []fabricPort
}

var platforms = map[string]*Platform{
	"stratix10": {
		Name:       "stratix10",
		RSTMGR:     0xffd11000,
		SYSMGR:     0xffd12000,
		F2SDRAMMGR: 0xf8024000,
		// Stratix 10 erratum: writing 1 to the FPGA2SOC reset field
		// hangs the FPGA to SoC bridge, software must leave it clear.
		NeverAssert: BRG_FPGA2SOC,
		fabric: []fabricPort{
			{FPGA2SOC, BRG_FPGA2SOC, noPort},
			{F2SDRAM0, BRG_F2SSDRAM0, 0},
			{F2SDRAM1, BRG_F2SSDRAM1, 1},
			{F2SDRAM2, BRG_F2SSDRAM2, 2},
		},
	},
	"agilex": {
		Name:       "agilex",
		RSTMGR:     0xffd11000,
		SYSMGR:     0xffd12000,
		F2SDRAMMGR: 0xf8024000,
		MPFE:       true,
		fabric: []fabricPort{
			{FPGA2SOC, BRG_FPGA2SOC, 0},
		},
	},
	"n5x": {
		Name:       "n5x",
		RSTMGR:     0xffd11000,
		SYSMGR:     0xffd12000,
		F2SDRAMMGR: 0xf8024000,
		fabric: []fabricPort{
			{FPGA2SOC, BRG_FPGA2SOC, 0},
		},
	},
	"agilex5": {
		Name:       "agilex5",
		RSTMGR:     0x10d11000,
		SYSMGR:     0x10d12000,
		F2SDRAMMGR: 0x18001000,
		fabric: []fabricPort{
			{FPGA2SOC, BRG_FPGA2SOC, 0},
			{F2SDRAM0, BRG_F2SSDRAM0, 0},
			{F2SDRAM1, BRG_F2SSDRAM1, 1},
			{F2SDRAM2, BRG_F2SSDRAM2, 2},
		},
	},
}

// Lookup returns the platform description for a device family name.
func Lookup(name string) (*Platform, error) {
	p, ok := platforms[name]

	if !ok {
		return nil, fmt.Errorf("unknown platform %q (supported: %v)", name, Platforms())
	}

	return p, nil
}

// Platforms returns the supported device family names.
func Platforms() (names []string) {
	for name := range platforms {
		names = append(names, name)
	}

	sort.Strings(names)

	return
}

// Domains returns the bridge domains present on the platform.
func (p *Platform) Domains() (d Domain) {
	d = Interconnect

	for _, f := range p.fabric {
		d |= f.domain
	}

	return
}

// interconnectBridge holds the signals driving the SoC to FPGA bridges
// selected by a domain mask.
type interconnectBridge struct {
	brg   uint32
	noc   uint32
	flush uint32
}

// fabricBridge holds the signals driving the FPGA to SoC and F2SDRAM
// bridges selected by a domain mask.
type fabricBridge struct {
	brg       uint32
	idleReq   uint32
	drain     uint32
	enable    uint32
	idleAck   uint32
	respEmpty uint32
}

func (p *Platform) interconnect(mask Domain) (b interconnectBridge) {
	if mask&SOC2FPGA != 0 {
		b.brg |= BRG_SOC2FPGA
		b.noc |= IDLE_DATA_SOC2FPGA
		b.flush |= HDSK_S2F_FLUSH
	}

	if mask&LWHPS2FPGA != 0 {
		b.brg |= BRG_LWHPS2FPGA
		b.noc |= IDLE_DATA_LWSOC2FPGA
		b.flush |= HDSK_LWS2F_FLUSH
	}

	return
}

func (p *Platform) fabricBridge(mask Domain) (b fabricBridge) {
	for _, f := range p.fabric {
		if mask&f.domain == 0 {
			continue
		}

		b.brg |= f.brg

		if f.port == noPort {
			continue
		}

		b.idleReq |= FlagOut(f.port, FLAGOUT_IDLEREQ)
		b.enable |= FlagOut(f.port, FLAGOUT_ENABLE)
		b.drain |= FlagOut(f.port, FLAGOUT_FORCE_DRAIN)
		b.idleAck |= FlagIn(f.port, FLAGIN_IDLEACK)
		b.respEmpty |= FlagIn(f.port, FLAGIN_RESPEMPTY)
	}

	return
}
