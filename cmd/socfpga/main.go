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

// socfpga runs the SoC FPGA boot services: bridge sequencing, the boot
// flow and the SiP secure command service. Hardware registers are accessed
// through /dev/mem, or modelled in memory when no device is given.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"k8s.io/klog/v2"

	"github.com/transparency-dev/socfpga-firmware/internal/config"
)

var (
	Build    string
	Revision string
)

var (
	configPath   string
	platformName string
	devmemPath   string

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "socfpga",
	Short: "SoC FPGA boot services",
	Long: `socfpga drives the HPS to FPGA bridges and relays secure commands to the
Secure Device Manager of Intel SoC FPGA devices.

Without --devmem the Reset Manager, bridges and SDM are emulated.

Examples:
  socfpga boot --platform=stratix10
  socfpga bridge disable soc2fpga,fpga2soc --devmem=/dev/mem
  socfpga serve --config=socfpga.yaml`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) (err error) {
		if cfg, err = config.Load(configPath); err != nil {
			return err
		}

		if platformName != "" {
			cfg.Platform = platformName
		}

		return cfg.Validate()
	},
}

func init() {
	klog.InitFlags(nil)

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	rootCmd.PersistentFlags().StringVarP(&platformName, "platform", "p", "", "Device family (overrides config file)")
	rootCmd.PersistentFlags().StringVar(&devmemPath, "devmem", "", "Physical memory device, hardware is emulated when empty")
	rootCmd.PersistentFlags().AddGoFlagSet(flag.CommandLine)
}

func main() {
	err := rootCmd.Execute()
	klog.Flush()

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
