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
	"errors"
	"fmt"

	"github.com/cheggaaa/pb/v3"
	"github.com/spf13/cobra"
	"k8s.io/klog/v2"

	"github.com/transparency-dev/socfpga-firmware/internal/mmio"
	"github.com/transparency-dev/socfpga-firmware/rstmgr"
)

var (
	soakIterations int
	soakBridges    string
)

var soakCmd = &cobra.Command{
	Use:   "soak",
	Short: "Repeatedly cycle bridges through disable, reset and enable",
	Long: `Cycle the selected bridges through disable, reset and enable, counting
handshake timeouts per operation.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dev, err := openDevice(cfg, devmemPath)

		if err != nil {
			return err
		}
		defer dev.Close()

		var domains []string

		if soakBridges != "" {
			domains = append(domains, soakBridges)
		}

		mask, err := bridgeDomains(dev.bridges.Platform, domains)

		if err != nil {
			return err
		}

		bar := pb.StartNew(soakIterations)
		res := soak(dev.bridges, mask, soakIterations, bar.Increment)
		bar.Finish()

		fmt.Print(res.String())

		if res.Reset > 0 {
			return errors.New("bridge reset timeouts detected")
		}

		return nil
	},
}

func init() {
	soakCmd.Flags().IntVarP(&soakIterations, "iterations", "n", 100, "Number of cycles")
	soakCmd.Flags().StringVar(&soakBridges, "bridges", "", "Bridge domains to cycle (default all present)")
	rootCmd.AddCommand(soakCmd)
}

// soakResult holds the number of cycles where each operation timed out.
type soakResult struct {
	Cycles  int
	Disable int
	Reset   int
	Enable  int
}

func (r soakResult) String() string {
	return fmt.Sprintf("cycles: %d, timeouts: disable %d, reset %d, enable %d\n",
		r.Cycles, r.Disable, r.Reset, r.Enable)
}

func soak(m *rstmgr.Manager, mask rstmgr.Domain, n int, done func() *pb.ProgressBar) (res soakResult) {
	count := func(op string, err error, c *int) {
		if errors.Is(err, mmio.ErrTimeout) {
			*c++
		}

		if err != nil {
			klog.V(1).Infof("socfpga: soak cycle %d: %s: %v", res.Cycles, op, err)
		}
	}

	for i := 0; i < n; i++ {
		count("disable", m.Disable(mask), &res.Disable)
		count("reset", m.Reset(mask), &res.Reset)
		count("enable", m.Enable(mask), &res.Enable)

		res.Cycles++

		if done != nil {
			done()
		}
	}

	return
}
