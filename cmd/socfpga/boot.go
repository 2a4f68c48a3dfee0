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

package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"k8s.io/klog/v2"

	"github.com/transparency-dev/socfpga-firmware/rstmgr"
)

var bootBridges string

var bootCmd = &cobra.Command{
	Use:   "boot",
	Short: "Run the early boot sequence",
	Long: `Release the HPS peripherals from reset, configure the warm reset
handshakes, then reset and enable the selected bridges.

A bridge reset handshake timeout halts the boot, enable timeouts are
reported and the boot completes.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dev, err := openDevice(cfg, devmemPath)

		if err != nil {
			return err
		}
		defer dev.Close()

		var mask rstmgr.Domain

		if bootBridges != "" {
			mask, err = bridgeDomains(dev.bridges.Platform, []string{bootBridges})
		} else {
			mask, err = bridgeDomains(dev.bridges.Platform, nil)
		}

		if err != nil {
			return err
		}

		return boot(dev.bridges, mask)
	},
}

func init() {
	bootCmd.Flags().StringVar(&bootBridges, "bridges", "", "Bridge domains to bring up (default all present)")
	rootCmd.AddCommand(bootCmd)
}

// boot performs the bridge bring-up, only reset failures stop it.
func boot(m *rstmgr.Manager, mask rstmgr.Domain) error {
	klog.Infof("socfpga: %s boot (bridges: %s)", m.Platform.Name, mask)

	m.DeassertPeripheralReset()
	m.ConfigureWarmResetHandshake()

	if err := m.Reset(mask); err != nil {
		if rstmgr.IsFatal(err) {
			klog.Errorf("socfpga: boot halted")
			return fmt.Errorf("boot halted, %w", err)
		}

		klog.Warningf("socfpga: bridge reset, %v", err)
	}

	if err := m.Enable(mask); err != nil {
		klog.Warningf("socfpga: bridge enable, %v", err)
	}

	klog.Infof("socfpga: boot complete")

	return nil
}
