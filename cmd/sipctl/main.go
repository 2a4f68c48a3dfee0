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

// sipctl issues SiP service calls to a running socfpga service.
package main

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/spf13/cobra"
	"k8s.io/klog/v2"

	"github.com/transparency-dev/socfpga-firmware/api"
	sipapi "github.com/transparency-dev/socfpga-firmware/api/rpc"
)

var (
	serverAddr  string
	dialTimeout time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "sipctl",
	Short: "SoC FPGA SiP service client",
	Long: `sipctl calls the SiP service exposed by "socfpga serve".

Examples:
  sipctl status
  sipctl random 0x1000
  sipctl encrypt --in plain.bin --out object.bin
  sipctl bridge disable fabric`,
	SilenceUsage: true,
}

func init() {
	klog.InitFlags(nil)

	rootCmd.PersistentFlags().StringVarP(&serverAddr, "server", "s", "localhost:4242", "SiP service address")
	rootCmd.PersistentFlags().DurationVar(&dialTimeout, "dial-timeout", 10*time.Second, "Maximum time spent connecting")
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

// dial connects to the service, retrying until dialTimeout expires.
func dial() (*rpc.Client, error) {
	var conn net.Conn

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = dialTimeout

	err := backoff.RetryNotify(func() (err error) {
		conn, err = net.Dial("tcp", serverAddr)
		return
	}, bo, func(err error, d time.Duration) {
		klog.V(1).Infof("sipctl: dial %s: %v, retrying in %v", serverAddr, err, d)
	})

	if err != nil {
		return nil, fmt.Errorf("could not connect to %s, %v", serverAddr, err)
	}

	return jsonrpc.NewClient(conn), nil
}

// call dials the service and performs a single call.
func call(method string, args any, reply any) error {
	c, err := dial()

	if err != nil {
		return err
	}
	defer c.Close()

	return c.Call(method, args, reply)
}

// check converts an unsuccessful result into an error.
func check(res *sipapi.Result) error {
	if res.Status == api.StatusOK {
		return nil
	}

	msg := fmt.Sprintf("status %s", api.StatusText(res.Status))

	if res.Fatal {
		msg = "fatal " + msg
	}

	if res.MailboxError != 0 {
		msg += fmt.Sprintf(", mailbox error %#x", res.MailboxError)
	}

	if res.Message != "" {
		msg += ": " + res.Message
	}

	return errors.New(msg)
}

func parseUint(s string) (uint64, error) {
	v, err := strconv.ParseUint(s, 0, 64)

	if err != nil {
		return 0, fmt.Errorf("invalid number %q", s)
	}

	return v, nil
}
