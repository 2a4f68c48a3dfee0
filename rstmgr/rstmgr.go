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

// Package rstmgr implements SoC FPGA Reset Manager control of the HPS to
// FPGA bridges.
//
// Bridges are moved between reset, enabled and disabled states through
// idle request/acknowledge handshakes with the CPU interconnect (NoC) and
// with the FPGA fabric (F2SDRAM sideband manager). Every handshake is
// polled with a fixed budget of 300 samples, 1ms apart.
//
// A timeout while resetting bridges is reported as fatal, the caller is
// expected to halt the boot. Timeouts while enabling or disabling bridges
// are reported but boot continues.
package rstmgr

import (
	"errors"
	"fmt"
	"time"

	"k8s.io/klog/v2"

	"github.com/transparency-dev/socfpga-firmware/internal/mmio"
)

const (
	// HandshakeAttempts is the number of samples taken when polling a
	// handshake acknowledge.
	HandshakeAttempts = 300
	// HandshakeInterval is the delay between handshake samples.
	HandshakeInterval = time.Millisecond

	settleDelay = 5 * time.Microsecond
)

// HandshakeError represents a bridge handshake which was not acknowledged
// within its polling budget.
type HandshakeError struct {
	// Op is the bridge operation (reset, enable, disable).
	Op string
	// Stage describes the handshake which timed out.
	Stage string
	// Fatal indicates that the boot must not continue.
	Fatal bool

	Err error
}

func (e *HandshakeError) Error() string {
	return fmt.Sprintf("bridge %s: %s: %v", e.Op, e.Stage, e.Err)
}

func (e *HandshakeError) Unwrap() error {
	return e.Err
}

// IsFatal reports whether err contains a fatal handshake failure.
func IsFatal(err error) bool {
	var he *HandshakeError

	if !errors.As(err, &he) {
		return false
	}

	return he.Fatal
}

// Manager drives the bridge handshakes of a platform. It holds no state
// across calls, bridge state lives exclusively in hardware registers.
type Manager struct {
	// Regs gives access to the Reset, System and F2SDRAM manager
	// registers.
	Regs mmio.Registers
	// Platform describes the bridge layout.
	Platform *Platform
	// Delay is used between polling samples, time.Sleep when nil.
	Delay mmio.Delay
}

func (m *Manager) delay(d time.Duration) {
	if m.Delay == nil {
		time.Sleep(d)
		return
	}

	m.Delay(d)
}

func (m *Manager) rstmgr(off uint64) uint64  { return m.Platform.RSTMGR + off }
func (m *Manager) sysmgr(off uint64) uint64  { return m.Platform.SYSMGR + off }
func (m *Manager) f2sdram(off uint64) uint64 { return m.Platform.F2SDRAMMGR + off }

// wait polls until the register bits selected by mask equal match.
func (m *Manager) wait(addr uint64, mask uint32, match uint32) error {
	return mmio.WaitFor(m.Regs, m.delay, HandshakeAttempts, HandshakeInterval, addr, mask, match)
}

// drain polls until the F2SDRAM response queues selected by respEmpty
// report empty on two consecutive samples.
func (m *Manager) drain(respEmpty uint32) error {
	if respEmpty == 0 {
		return nil
	}

	status := m.f2sdram(SIDEBANDMGR_FLAGINSTATUS0)

	return mmio.Poll(HandshakeAttempts, HandshakeInterval, m.delay, func() bool {
		if m.Regs.Read32(status)&respEmpty != respEmpty {
			return false
		}

		m.delay(settleDelay)

		return m.Regs.Read32(status)&respEmpty == respEmpty
	})
}

func (m *Manager) fail(op string, stage string, fatal bool, err error) error {
	if fatal {
		klog.Errorf("rstmgr: bridge %s: %s: %v (fatal)", op, stage, err)
	} else {
		klog.Errorf("rstmgr: bridge %s: %s: %v", op, stage, err)
	}

	return &HandshakeError{
		Op:    op,
		Stage: stage,
		Fatal: fatal,
		Err:   err,
	}
}

// Reset flushes and resets the bridges selected by mask, leaving them
// configured but idle. Interconnect bridges are released from reset,
// fabric bridges are also re-enabled.
//
// All selected domains are sequenced even when a handshake times out, any
// timeout is returned as a fatal *HandshakeError.
func (m *Manager) Reset(mask Domain) error {
	var errs []error

	klog.V(1).Infof("rstmgr: bridge reset (%s)", mask)

	if b := m.Platform.interconnect(mask); b.brg != 0 {
		hdskreq := m.rstmgr(RSTMGR_HDSKREQ)
		hdskack := m.rstmgr(RSTMGR_HDSKACK)

		// request flush handshakes to clear in-flight traffic
		for _, flush := range []uint32{HDSK_S2F_FLUSH, HDSK_LWS2F_FLUSH} {
			if b.flush&flush == 0 {
				continue
			}

			m.Regs.Set(hdskreq, flush)

			if err := m.wait(hdskack, flush, flush); err != nil {
				errs = append(errs, m.fail("reset", fmt.Sprintf("s2f flush ack %#x", flush), true, err))
			}
		}

		m.Regs.Set(m.rstmgr(RSTMGR_BRGMODRST), b.brg)
		m.Regs.Clear(hdskreq, b.flush)
		m.Regs.Clear(m.rstmgr(RSTMGR_BRGMODRST), b.brg)
	}

	if b := m.Platform.fabricBridge(mask); b.brg != 0 {
		errs = append(errs, m.quiesceFabric("reset", b, true)...)

		flagin := m.f2sdram(SIDEBANDMGR_FLAGINSTATUS0)
		flagset := m.f2sdram(SIDEBANDMGR_FLAGOUTSET0)

		m.Regs.Set(m.rstmgr(RSTMGR_BRGMODRST), b.brg)
		m.Regs.Clear(m.rstmgr(RSTMGR_HDSKREQ), HDSK_FPGAHS)
		m.Regs.Set(m.f2sdram(SIDEBANDMGR_FLAGOUTCLR0), b.idleReq)
		m.Regs.Clear(m.rstmgr(RSTMGR_BRGMODRST), b.brg)

		// re-enable
		m.Regs.Clear(flagset, b.idleReq)

		if err := m.wait(flagin, b.idleAck, 0); err != nil {
			errs = append(errs, m.fail("reset", "f2s idle ack release", true, err))
		}

		m.Regs.Clear(flagset, b.drain)
		m.delay(settleDelay)

		m.Regs.Set(flagset, b.enable)
		m.delay(settleDelay)
	}

	return errors.Join(errs...)
}

// quiesceFabric requests the FPGA handshake, disables the selected fabric
// bridges and drains their response queues.
func (m *Manager) quiesceFabric(op string, b fabricBridge, fatal bool) (errs []error) {
	flagset := m.f2sdram(SIDEBANDMGR_FLAGOUTSET0)

	m.Regs.Set(m.rstmgr(RSTMGR_HDSKEN), HDSK_FPGAHS)
	m.Regs.Set(m.rstmgr(RSTMGR_HDSKREQ), HDSK_FPGAHS)

	if err := m.wait(m.rstmgr(RSTMGR_HDSKACK), HDSK_FPGAHS, HDSK_FPGAHS); err != nil {
		errs = append(errs, m.fail(op, "fpga handshake ack", fatal, err))
	}

	m.Regs.Clear(flagset, b.enable)
	m.delay(settleDelay)

	m.Regs.Set(flagset, b.drain)
	m.delay(settleDelay)

	if err := m.drain(b.respEmpty); err != nil {
		errs = append(errs, m.fail(op, "f2s response queue empty", fatal, err))
	}

	return
}

// Enable releases the bridges selected by mask from reset and waits for
// their idle acknowledges to clear. Handshake timeouts are reported, as
// non-fatal errors, without rolling back partial progress.
func (m *Manager) Enable(mask Domain) error {
	var errs []error

	klog.V(1).Infof("rstmgr: bridge enable (%s)", mask)

	if b := m.Platform.interconnect(mask); b.brg != 0 {
		m.Regs.Set(m.sysmgr(SYSMGR_NOC_IDLEREQ_CLR), b.noc)
		m.Regs.Clear(m.rstmgr(RSTMGR_BRGMODRST), b.brg)

		if err := m.wait(m.sysmgr(SYSMGR_NOC_IDLEACK), b.noc, 0); err != nil {
			errs = append(errs, m.fail("enable", "s2f idle ack release", false, err))
		}
	}

	if b := m.Platform.fabricBridge(mask); b.brg != 0 {
		flagset := m.f2sdram(SIDEBANDMGR_FLAGOUTSET0)

		m.Regs.Clear(m.rstmgr(RSTMGR_BRGMODRST), b.brg)
		m.Regs.Clear(flagset, b.idleReq)

		if err := m.wait(m.f2sdram(SIDEBANDMGR_FLAGINSTATUS0), b.idleAck, 0); err != nil {
			errs = append(errs, m.fail("enable", "f2s idle ack release", false, err))
		}

		m.Regs.Clear(flagset, b.drain)
		m.delay(settleDelay)

		m.Regs.Set(flagset, b.enable)
		m.delay(settleDelay)
	}

	return errors.Join(errs...)
}

// Disable idles and places in reset the bridges selected by mask, fabric
// bridges are left disabled. Handshake timeouts are reported, as non-fatal
// errors, and the sequence carries on.
func (m *Manager) Disable(mask Domain) error {
	var errs []error

	klog.V(1).Infof("rstmgr: bridge disable (%s)", mask)

	if b := m.Platform.interconnect(mask); b.brg != 0 {
		m.Regs.Set(m.sysmgr(SYSMGR_NOC_IDLEREQ_SET), b.noc)
		m.Regs.Write32(m.sysmgr(SYSMGR_NOC_TIMEOUT), 1)

		if err := m.wait(m.sysmgr(SYSMGR_NOC_IDLEACK), b.noc, b.noc); err != nil {
			errs = append(errs, m.fail("disable", "s2f idle ack", false, err))
		}

		if err := m.wait(m.sysmgr(SYSMGR_NOC_IDLESTATUS), b.noc, b.noc); err != nil {
			errs = append(errs, m.fail("disable", "s2f idle status", false, err))
		}

		m.Regs.Set(m.rstmgr(RSTMGR_BRGMODRST), b.brg)
		m.Regs.Write32(m.sysmgr(SYSMGR_NOC_TIMEOUT), 0)
	}

	if b := m.Platform.fabricBridge(mask); b.brg != 0 {
		errs = append(errs, m.quiesceFabric("disable", b, false)...)

		// NeverAssert bits (FPGA2SOC on Stratix 10) must not be
		// written as 1 by software, see Platform.
		m.Regs.Set(m.rstmgr(RSTMGR_BRGMODRST), b.brg&^m.Platform.NeverAssert)
		m.Regs.Clear(m.rstmgr(RSTMGR_HDSKREQ), HDSK_FPGAHS)
		m.Regs.Set(m.f2sdram(SIDEBANDMGR_FLAGOUTCLR0), b.idleReq)
	}

	return errors.Join(errs...)
}
