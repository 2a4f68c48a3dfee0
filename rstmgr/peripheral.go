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
	"k8s.io/klog/v2"
)

// PER0MODRST fields
const (
	PER0_EMAC0    = 1 << 0
	PER0_EMAC1    = 1 << 1
	PER0_EMAC2    = 1 << 2
	PER0_USB0     = 1 << 3
	PER0_USB1     = 1 << 4
	PER0_NAND     = 1 << 5
	PER0_SOFTPHY  = 1 << 6
	PER0_SDMMC    = 1 << 7
	PER0_EMAC0OCP = 1 << 8
	PER0_EMAC1OCP = 1 << 9
	PER0_EMAC2OCP = 1 << 10
	PER0_USB0OCP  = 1 << 11
	PER0_USB1OCP  = 1 << 12
	PER0_NANDOCP  = 1 << 13
	PER0_SDMMCOCP = 1 << 15
	PER0_DMA      = 1 << 16
	PER0_SPIM0    = 1 << 17
	PER0_SPIM1    = 1 << 18
	PER0_SPIS0    = 1 << 19
	PER0_SPIS1    = 1 << 20
	PER0_DMAOCP   = 1 << 21
	PER0_EMACPTP  = 1 << 22
	PER0_DMAIF0   = 1 << 24
	PER0_DMAIF7   = 1 << 31

	// PER0_DMAIF covers the eight DMA interface resets.
	PER0_DMAIF = 0xff << 24
)

// PER1MODRST fields
const (
	PER1_WATCHDOG0   = 1 << 0
	PER1_WATCHDOG1   = 1 << 1
	PER1_WATCHDOG2   = 1 << 2
	PER1_WATCHDOG3   = 1 << 3
	PER1_L4SYSTIMER0 = 1 << 4
	PER1_L4SYSTIMER1 = 1 << 5
	PER1_SPTIMER0    = 1 << 6
	PER1_SPTIMER1    = 1 << 7
	PER1_I2C0        = 1 << 8
	PER1_I2C1        = 1 << 9
	PER1_I2C2        = 1 << 10
	PER1_I2C3        = 1 << 11
	PER1_I2C4        = 1 << 12
	PER1_WATCHDOG4   = 1 << 13
	PER1_I3C0        = 1 << 14
	PER1_I3C1        = 1 << 15
	PER1_UART0       = 1 << 16
	PER1_UART1       = 1 << 17
	PER1_UART2       = 1 << 18
	PER1_GPIO0       = 1 << 24
	PER1_GPIO1       = 1 << 25
)

const (
	per1Peripherals = PER1_WATCHDOG0 | PER1_WATCHDOG1 | PER1_WATCHDOG2 |
		PER1_WATCHDOG3 | PER1_WATCHDOG4 | PER1_L4SYSTIMER0 |
		PER1_L4SYSTIMER1 | PER1_SPTIMER0 | PER1_SPTIMER1 | PER1_I2C0 |
		PER1_I2C1 | PER1_I2C2 | PER1_I2C3 | PER1_I2C4 | PER1_I3C0 |
		PER1_I3C1 | PER1_UART0 | PER1_UART1 | PER1_UART2 | PER1_GPIO0 |
		PER1_GPIO1

	per0OCP = PER0_EMAC0OCP | PER0_EMAC1OCP | PER0_EMAC2OCP |
		PER0_USB0OCP | PER0_USB1OCP | PER0_NANDOCP | PER0_SDMMCOCP |
		PER0_DMAOCP

	per0Peripherals = PER0_EMAC0 | PER0_EMAC1 | PER0_EMAC2 | PER0_USB0 |
		PER0_USB1 | PER0_NAND | PER0_SOFTPHY | PER0_SDMMC | PER0_DMA |
		PER0_SPIM0 | PER0_SPIM1 | PER0_SPIS0 | PER0_SPIS1 |
		PER0_EMACPTP | PER0_DMAIF
)

// DeassertPeripheralReset releases the HPS peripherals from reset. Module
// ECC (OCP) resets are released before the peripherals themselves.
func (m *Manager) DeassertPeripheralReset() {
	klog.V(1).Info("rstmgr: releasing peripheral resets")

	m.Regs.Clear(m.rstmgr(RSTMGR_PER1MODRST), per1Peripherals)
	m.Regs.Clear(m.rstmgr(RSTMGR_PER0MODRST), per0OCP)
	m.Regs.Clear(m.rstmgr(RSTMGR_PER0MODRST), per0Peripherals)

	if m.Platform.MPFE {
		m.Regs.Clear(m.rstmgr(RSTMGR_BRGMODRST), BRG_MPFE)
	}
}

// ConfigureWarmResetHandshake enables the handshakes the Reset Manager
// performs with the EMIF, FPGA, ETR and debug interconnect before a warm
// reset.
func (m *Manager) ConfigureWarmResetHandshake() {
	m.Regs.Set(m.rstmgr(RSTMGR_HDSKEN),
		HDSK_EMIF_FLUSH|HDSK_FPGAHS|HDSK_ETRSTALLEN|
			HDSK_LWS2F_FLUSH|HDSK_L3NOC_DBG|HDSK_DEBUG_L3NOC)
}
