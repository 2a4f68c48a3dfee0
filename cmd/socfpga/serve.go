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
	"context"
	"errors"
	"fmt"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"

	"github.com/transparency-dev/socfpga-firmware/api"
	"github.com/transparency-dev/socfpga-firmware/internal/emu"
	"github.com/transparency-dev/socfpga-firmware/sip"
)

var (
	listenAddr string
	instanceID string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve SiP calls over JSON-RPC",
	Long: `Start the SiP service, exposing secure commands and bridge control as
JSON-RPC methods of the "SIP" service.

On emulated hardware the "Debug" service additionally gives access to the
emulated memory, so that callers can stage command buffers.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if listenAddr != "" {
			cfg.Listen = listenAddr
		}

		if instanceID == "" {
			instanceID = uuid.New().String()
		}

		dev, err := openDevice(cfg, devmemPath)

		if err != nil {
			return err
		}
		defer dev.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return serve(ctx, dev, cfg.Listen)
	},
}

func init() {
	serveCmd.Flags().StringVarP(&listenAddr, "listen", "l", "", "Address to listen on (overrides config file)")
	serveCmd.Flags().StringVarP(&instanceID, "instance-id", "i", "", "Service instance ID (default random UUID)")
	rootCmd.AddCommand(serveCmd)
}

func newServer(dev *device) (*rpc.Server, error) {
	srv := rpc.NewServer()

	s := &sip.RPC{
		FCS:     dev.fcs,
		Bridges: dev.bridges,
		Info: api.Status{
			Instance: instanceID,
			Build:    fmt.Sprintf("%s (%s)", Build, Revision),
			Runtime:  runtime.Version(),
			Emulated: dev.sim != nil,
		},
	}

	if err := srv.RegisterName("SIP", s); err != nil {
		return nil, err
	}

	if dev.sim != nil {
		if err := srv.RegisterName("Debug", &emu.Debug{Mem: dev.sim}); err != nil {
			return nil, err
		}
	}

	return srv, nil
}

func serve(ctx context.Context, dev *device, addr string) error {
	srv, err := newServer(dev)

	if err != nil {
		return err
	}

	l, err := net.Listen("tcp", addr)

	if err != nil {
		return fmt.Errorf("failed to listen on %q: %v", addr, err)
	}

	klog.Infof("socfpga: SiP service %s listening on %s", instanceID, l.Addr())

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		<-ctx.Done()
		klog.Info("socfpga: shutting down")
		return l.Close()
	})

	g.Go(func() error {
		for {
			conn, err := l.Accept()

			if errors.Is(err, net.ErrClosed) {
				return nil
			} else if err != nil {
				return err
			}

			klog.V(1).Infof("socfpga: connection from %s", conn.RemoteAddr())

			go srv.ServeCodec(jsonrpc.NewServerCodec(conn))
		}
	})

	return g.Wait()
}
