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
	"net/rpc"
	"os"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/spf13/cobra"

	"github.com/transparency-dev/socfpga-firmware/api"
	sipapi "github.com/transparency-dev/socfpga-firmware/api/rpc"
)

const (
	defaultSrc = 0x100000
	defaultDst = 0x200000

	// completion polling
	pollInterval = 100 * time.Millisecond
	pollRetries  = 50
)

var (
	inPath  string
	outPath string
	srcAddr uint64
	dstAddr uint64
	dstSize uint64
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the SiP service status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var s api.Status

		if err := call("SIP.Status", nil, &s); err != nil {
			return err
		}

		fmt.Println(s.Print())

		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the SiP service interface version",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var v string

		if err := call("SIP.Version", nil, &v); err != nil {
			return err
		}

		fmt.Println(v)

		return nil
	},
}

// bufferCmd returns a command filling the buffer at a given address.
func bufferCmd(use string, short string, method string) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <addr>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := parseUint(args[0])

			if err != nil {
				return err
			}

			res := &sipapi.Result{}

			if err = call(method, addr, res); err != nil {
				return err
			}

			if err = check(res); err != nil {
				return err
			}

			fmt.Printf("%d bytes written at %#x\n", res.Size, addr)

			return nil
		},
	}
}

var certCmd = &cobra.Command{
	Use:   "cert",
	Short: "Submit a certificate to the SDM",
	Long: `Stage the certificate file in emulated memory and submit it, or submit a
certificate already present in device memory with --src and --size.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := dial()

		if err != nil {
			return err
		}
		defer c.Close()

		size := dstSize

		if inPath != "" {
			if size, err = stage(c, inPath, srcAddr); err != nil {
				return err
			}
		}

		res := &sipapi.Result{}

		if err = c.Call("SIP.SendCertificate", sipapi.Buffer{Addr: srcAddr, Size: size}, res); err != nil {
			return err
		}

		if err = check(res); err != nil {
			return err
		}

		if _, err = wait(c, res.Token); err != nil {
			return err
		}

		fmt.Printf("certificate accepted (job %#x)\n", res.Token)

		return nil
	},
}

// transferCmd returns a command performing an encryption or decryption job
// on a staged file.
func transferCmd(use string, short string, method string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if inPath == "" || outPath == "" {
				return errors.New("--in and --out are required")
			}

			c, err := dial()

			if err != nil {
				return err
			}
			defer c.Close()

			size, err := stage(c, inPath, srcAddr)

			if err != nil {
				return err
			}

			t := sipapi.Transfer{
				Src:     srcAddr,
				SrcSize: size,
				Dst:     dstAddr,
				DstSize: dstSize,
			}

			if t.DstSize == 0 {
				t.DstSize = size + 0x100
			}

			res := &sipapi.Result{}

			if err = c.Call(method, t, res); err != nil {
				return err
			}

			if err = check(res); err != nil {
				return err
			}

			resp, err := wait(c, res.Token)

			if err != nil {
				return err
			}

			if len(resp) != 1 {
				return fmt.Errorf("unexpected response %v", resp)
			}

			var buf []byte

			if err = c.Call("Debug.Read", sipapi.Memory{Addr: dstAddr, Size: int(resp[0])}, &buf); err != nil {
				return err
			}

			if err = os.WriteFile(outPath, buf, 0600); err != nil {
				return err
			}

			fmt.Printf("%d bytes written to %s\n", len(buf), outPath)

			return nil
		},
	}
}

var resultCmd = &cobra.Command{
	Use:   "result <token>",
	Short: "Query the completion of an asynchronous job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		token, err := parseUint(args[0])

		if err != nil {
			return err
		}

		res := &sipapi.Result{}

		if err = call("SIP.Completion", uint32(token), res); err != nil {
			return err
		}

		fmt.Printf("status: %s, mailbox error: %#x, response: %#x\n",
			api.StatusText(res.Status), res.MailboxError, res.Response)

		return nil
	},
}

var bridgeCmd = &cobra.Command{
	Use:   "bridge <reset|enable|disable> [domains]",
	Short: "Reset, enable or disable HPS to FPGA bridges",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		methods := map[string]string{
			"reset":   "SIP.BridgeReset",
			"enable":  "SIP.BridgeEnable",
			"disable": "SIP.BridgeDisable",
		}

		method, ok := methods[strings.ToLower(args[0])]

		if !ok {
			return fmt.Errorf("unknown bridge operation %q", args[0])
		}

		b := sipapi.Bridge{Domains: "all"}

		if len(args) > 1 {
			b.Domains = args[1]
		}

		res := &sipapi.Result{}

		if err := call(method, b, res); err != nil {
			return err
		}

		return check(res)
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(bufferCmd("random", "Fill a buffer with SDM random data", "SIP.Random"))
	rootCmd.AddCommand(bufferCmd("provision", "Copy the SDM provisioning data to a buffer", "SIP.ProvisioningData"))
	rootCmd.AddCommand(resultCmd)
	rootCmd.AddCommand(bridgeCmd)

	certCmd.Flags().StringVar(&inPath, "in", "", "Certificate file to stage in emulated memory")
	certCmd.Flags().Uint64Var(&srcAddr, "src", defaultSrc, "Certificate address")
	certCmd.Flags().Uint64Var(&dstSize, "size", 0, "Certificate size, when not staged")
	rootCmd.AddCommand(certCmd)

	for _, cmd := range []*cobra.Command{
		transferCmd("encrypt", "Encrypt a file through the SDM", "SIP.Encrypt"),
		transferCmd("decrypt", "Decrypt an object through the SDM", "SIP.Decrypt"),
	} {
		cmd.Flags().StringVar(&inPath, "in", "", "Input file")
		cmd.Flags().StringVar(&outPath, "out", "", "Output file")
		cmd.Flags().Uint64Var(&srcAddr, "src", defaultSrc, "Source buffer address")
		cmd.Flags().Uint64Var(&dstAddr, "dst", defaultDst, "Destination buffer address")
		cmd.Flags().Uint64Var(&dstSize, "dst-size", 0, "Destination buffer size (default input size + 256)")
		rootCmd.AddCommand(cmd)
	}
}

// stage copies a file to emulated memory at addr, zero padded to a word
// multiple, returning the staged size.
func stage(c *rpc.Client, path string, addr uint64) (uint64, error) {
	buf, err := os.ReadFile(path)

	if err != nil {
		return 0, err
	}

	if pad := len(buf) % 4; pad != 0 {
		buf = append(buf, make([]byte, 4-pad)...)
	}

	if err = c.Call("Debug.Write", sipapi.Memory{Addr: addr, Data: buf}, nil); err != nil {
		return 0, fmt.Errorf("could not stage %s, %v", path, err)
	}

	return uint64(len(buf)), nil
}

// wait polls the completion of an asynchronous job.
func wait(c *rpc.Client, token uint32) ([]uint32, error) {
	var resp []uint32

	bo := backoff.WithMaxRetries(backoff.NewConstantBackOff(pollInterval), pollRetries)

	err := backoff.Retry(func() error {
		res := &sipapi.Result{}

		if err := c.Call("SIP.Completion", token, res); err != nil {
			return backoff.Permanent(err)
		}

		if res.Status == api.StatusBusy {
			return errors.New("job pending")
		}

		if err := check(res); err != nil {
			return backoff.Permanent(err)
		}

		resp = res.Response

		return nil
	}, bo)

	return resp, err
}
