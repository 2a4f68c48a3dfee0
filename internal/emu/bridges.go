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

// Package emu models the SoC FPGA hardware blocks driven by the boot
// services, so that they can be exercised without a physical device.
package emu

import (
	"github.com/usbarmory/tamago/bits"
	"k8s.io/klog/v2"

	"github.com/transparency-dev/socfpga-firmware/internal/mmio"
	"github.com/transparency-dev/socfpga-firmware/rstmgr"
)

const f2sdramPorts = 3

// Faults selects handshake signals which never respond.
type Faults struct {
	// HandshakeAck holds the Reset Manager HDSKACK register at zero.
	HandshakeAck bool `yaml:"handshake_ack"`
	// NoCIdle holds the NoC idle acknowledge and status registers at zero.
	NoCIdle bool `yaml:"noc_idle"`
	// F2SIdleAck holds the F2SDRAM idle acknowledges asserted.
	F2SIdleAck bool `yaml:"f2s_idle_ack"`
	// ResponseQueue holds the F2SDRAM response queues non-empty.
	ResponseQueue bool `yaml:"response_queue"`
	// StuckQueues holds non-empty the response queues of the F2SDRAM
	// ports whose bit is set.
	StuckQueues uint32 `yaml:"stuck_queues"`
}

// AttachBridges installs on s a model of the Reset Manager, NoC idle and
// F2SDRAM sideband handshakes for platform p.
func AttachBridges(s *mmio.Sim, p *rstmgr.Platform, f Faults) {
	rst := func(off uint64) uint64 { return p.RSTMGR + off }
	sys := func(off uint64) uint64 { return p.SYSMGR + off }
	f2s := func(off uint64) uint64 { return p.F2SDRAMMGR + off }

	if f.F2SIdleAck {
		var in uint32

		for port := 0; port < f2sdramPorts; port++ {
			in |= rstmgr.FlagIn(port, rstmgr.FLAGIN_IDLEACK)
		}

		s.Poke(f2s(rstmgr.SIDEBANDMGR_FLAGINSTATUS0), in)
	}

	s.OnWrite(rst(rstmgr.RSTMGR_HDSKREQ), func(w mmio.Words, _ uint64, val uint32) {
		if f.HandshakeAck {
			return
		}

		w.Store(rst(rstmgr.RSTMGR_HDSKACK), val&(rstmgr.HDSK_FPGAHS|rstmgr.HDSK_S2F_FLUSH|rstmgr.HDSK_LWS2F_FLUSH))
	})

	noc := func(w mmio.Words) {
		val := w.Load(sys(rstmgr.SYSMGR_NOC_IDLEREQ_VAL))

		if f.NoCIdle {
			return
		}

		w.Store(sys(rstmgr.SYSMGR_NOC_IDLEACK), val)
		w.Store(sys(rstmgr.SYSMGR_NOC_IDLESTATUS), val)
	}

	// NoC idle request set/clear registers are write-1-to-set/clear and
	// read as zero.
	s.OnWrite(sys(rstmgr.SYSMGR_NOC_IDLEREQ_SET), func(w mmio.Words, addr uint64, val uint32) {
		w.Store(addr, 0)
		w.Store(sys(rstmgr.SYSMGR_NOC_IDLEREQ_VAL), w.Load(sys(rstmgr.SYSMGR_NOC_IDLEREQ_VAL))|val)
		noc(w)
	})

	s.OnWrite(sys(rstmgr.SYSMGR_NOC_IDLEREQ_CLR), func(w mmio.Words, addr uint64, val uint32) {
		w.Store(addr, 0)
		w.Store(sys(rstmgr.SYSMGR_NOC_IDLEREQ_VAL), w.Load(sys(rstmgr.SYSMGR_NOC_IDLEREQ_VAL))&^val)
		noc(w)
	})

	sideband := func(w mmio.Words) {
		out := w.Load(f2s(rstmgr.SIDEBANDMGR_FLAGOUTSET0))
		in := w.Load(f2s(rstmgr.SIDEBANDMGR_FLAGINSTATUS0))

		for port := 0; port < f2sdramPorts; port++ {
			ack := port*4 + rstmgr.FLAGIN_IDLEACK
			empty := port*4 + rstmgr.FLAGIN_RESPEMPTY

			switch {
			case f.F2SIdleAck:
				bits.Set(&in, ack)
			case bits.Get(&out, port*3+rstmgr.FLAGOUT_IDLEREQ, 1) == 1:
				bits.Set(&in, ack)
			default:
				bits.Clear(&in, ack)
			}

			stuck := f.ResponseQueue || bits.Get(&f.StuckQueues, port, 1) == 1

			if !stuck && bits.Get(&out, port*3+rstmgr.FLAGOUT_FORCE_DRAIN, 1) == 1 {
				bits.Set(&in, empty)
			} else {
				bits.Clear(&in, empty)
			}
		}

		w.Store(f2s(rstmgr.SIDEBANDMGR_FLAGINSTATUS0), in)
	}

	s.OnWrite(f2s(rstmgr.SIDEBANDMGR_FLAGOUTSET0), func(w mmio.Words, _ uint64, _ uint32) {
		sideband(w)
	})

	s.OnWrite(f2s(rstmgr.SIDEBANDMGR_FLAGOUTCLR0), func(w mmio.Words, addr uint64, val uint32) {
		w.Store(addr, 0)
		w.Store(f2s(rstmgr.SIDEBANDMGR_FLAGOUTSET0), w.Load(f2s(rstmgr.SIDEBANDMGR_FLAGOUTSET0))&^val)
		sideband(w)
	})

	klog.V(1).Infof("emu: %s bridge handshake model attached (faults: %+v)", p.Name, f)
}
