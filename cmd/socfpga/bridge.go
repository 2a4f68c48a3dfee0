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

	"github.com/transparency-dev/socfpga-firmware/rstmgr"
)

var bridgeCmd = &cobra.Command{
	Use:   "bridge",
	Short: "Reset, enable or disable HPS to FPGA bridges",
	Long: `Sequence the bridge idle handshakes for a set of bridge domains.

Domains are given as a comma separated list of soc2fpga, lwhps2fpga,
fpga2soc, f2sdram0, f2sdram1 and f2sdram2, or as one of the groups
interconnect, fabric and all (the default).

Examples:
  socfpga bridge reset all
  socfpga bridge disable soc2fpga,lwhps2fpga`,
}

func init() {
	for _, op := range []struct {
		name  string
		short string
		fn    func(*rstmgr.Manager) func(rstmgr.Domain) error
	}{
		{"reset", "Flush and reset bridges", func(m *rstmgr.Manager) func(rstmgr.Domain) error { return m.Reset }},
		{"enable", "Release bridges from reset", func(m *rstmgr.Manager) func(rstmgr.Domain) error { return m.Enable }},
		{"disable", "Idle and hold bridges in reset", func(m *rstmgr.Manager) func(rstmgr.Domain) error { return m.Disable }},
	} {
		op := op

		bridgeCmd.AddCommand(&cobra.Command{
			Use:   op.name + " [domains]",
			Short: op.short,
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				dev, err := openDevice(cfg, devmemPath)

				if err != nil {
					return err
				}
				defer dev.Close()

				mask, err := bridgeDomains(dev.bridges.Platform, args)

				if err != nil {
					return err
				}

				if err = op.fn(dev.bridges)(mask); err != nil {
					return fmt.Errorf("bridge %s (%s): %w", op.name, mask, err)
				}

				fmt.Printf("bridge %s (%s): ok\n", op.name, mask)

				return nil
			},
		})
	}

	rootCmd.AddCommand(bridgeCmd)
}

// bridgeDomains parses the optional domain argument, defaulting to all
// domains present on the platform.
func bridgeDomains(p *rstmgr.Platform, args []string) (rstmgr.Domain, error) {
	if len(args) == 0 {
		return p.Domains(), nil
	}

	return p.ParseDomain(args[0])
}
