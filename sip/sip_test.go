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

package sip

import (
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/transparency-dev/socfpga-firmware/api"
	sipapi "github.com/transparency-dev/socfpga-firmware/api/rpc"
	"github.com/transparency-dev/socfpga-firmware/fcs"
	"github.com/transparency-dev/socfpga-firmware/internal/emu"
	"github.com/transparency-dev/socfpga-firmware/internal/mmio"
	"github.com/transparency-dev/socfpga-firmware/mailbox"
	"github.com/transparency-dev/socfpga-firmware/rstmgr"
)

func newRPC(t *testing.T, platform string, faults emu.Faults) (*RPC, *emu.SDM, *mmio.Sim) {
	t.Helper()

	p, err := rstmgr.Lookup(platform)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}

	mem := mmio.NewSim()
	emu.AttachBridges(mem, p, faults)

	sdm, err := emu.NewSDM(mem, make([]byte, 32))
	if err != nil {
		t.Fatalf("NewSDM: %v", err)
	}

	return &RPC{
		FCS: &fcs.Service{
			Regs:    mem,
			Mailbox: sdm,
			DDR:     fcs.Range{Base: 0, Size: 0x80000000},
		},
		Bridges: &rstmgr.Manager{
			Regs:     mem,
			Platform: p,
			Delay:    func(_ time.Duration) {},
		},
		Info: api.Status{Instance: "test"},
	}, sdm, mem
}

func TestRandom(t *testing.T) {
	r, _, _ := newRPC(t, "agilex", emu.Faults{})

	for _, test := range []struct {
		name       string
		dst        uint64
		wantStatus uint32
		wantSize   uint64
	}{
		{name: "ok", dst: 0x1000, wantStatus: api.StatusOK, wantSize: fcs.RandomSize},
		{name: "outside DDR", dst: 0x7ffffff8, wantStatus: api.StatusRejected},
	} {
		t.Run(test.name, func(t *testing.T) {
			res := &sipapi.Result{}

			if err := r.Random(test.dst, res); err != nil {
				t.Fatalf("Random: %v", err)
			}
			if res.Status != test.wantStatus || res.Size != test.wantSize {
				t.Errorf("Got status %d size %d, want status %d size %d", res.Status, res.Size, test.wantStatus, test.wantSize)
			}
		})
	}
}

func TestMailboxErrorPassthrough(t *testing.T) {
	r, sdm, _ := newRPC(t, "agilex", emu.Faults{})
	sdm.Error = mailbox.ErrCodeHWAccessFailed

	res := &sipapi.Result{}

	if err := r.ProvisioningData(0x1000, res); err != nil {
		t.Fatalf("ProvisioningData: %v", err)
	}
	if res.Status != api.StatusError || res.MailboxError != mailbox.ErrCodeHWAccessFailed {
		t.Errorf("Got status %d mailbox error %#x", res.Status, res.MailboxError)
	}
}

func TestCompletion(t *testing.T) {
	r, sdm, _ := newRPC(t, "agilex", emu.Faults{})
	sdm.Latency = 1

	res := &sipapi.Result{}

	if err := r.SendCertificate(sipapi.Buffer{Addr: 0x1000, Size: 0x20}, res); err != nil {
		t.Fatalf("SendCertificate: %v", err)
	}
	if res.Status != api.StatusOK {
		t.Fatalf("Got status %s: %s", api.StatusText(res.Status), res.Message)
	}

	token := res.Token

	for _, want := range []uint32{api.StatusBusy, api.StatusOK, api.StatusNoResponse} {
		res := &sipapi.Result{}

		if err := r.Completion(token, res); err != nil {
			t.Fatalf("Completion: %v", err)
		}
		if res.Status != want {
			t.Errorf("Got status %s, want %s", api.StatusText(res.Status), api.StatusText(want))
		}
	}
}

func TestBridges(t *testing.T) {
	for _, test := range []struct {
		name       string
		platform   string
		faults     emu.Faults
		call       func(r *RPC, b sipapi.Bridge, res *sipapi.Result) error
		domains    string
		wantStatus uint32
		wantFatal  bool
	}{
		{
			name:       "reset",
			platform:   "agilex",
			call:       (*RPC).BridgeReset,
			domains:    "all",
			wantStatus: api.StatusOK,
		}, {
			name:       "reset all n5x",
			platform:   "n5x",
			call:       (*RPC).BridgeReset,
			domains:    "all",
			wantStatus: api.StatusOK,
		}, {
			name:       "disable fabric agilex",
			platform:   "agilex",
			call:       (*RPC).BridgeDisable,
			domains:    "fabric",
			wantStatus: api.StatusOK,
		}, {
			name:       "enable",
			platform:   "stratix10",
			call:       (*RPC).BridgeEnable,
			domains:    "soc2fpga,f2sdram2",
			wantStatus: api.StatusOK,
		}, {
			name:       "unknown domain",
			platform:   "agilex",
			call:       (*RPC).BridgeDisable,
			domains:    "hps2fpga",
			wantStatus: api.StatusRejected,
		}, {
			name:       "domain not on platform",
			platform:   "n5x",
			call:       (*RPC).BridgeDisable,
			domains:    "f2sdram0",
			wantStatus: api.StatusRejected,
		}, {
			name:       "disable timeout",
			platform:   "agilex",
			faults:     emu.Faults{NoCIdle: true},
			call:       (*RPC).BridgeDisable,
			domains:    "interconnect",
			wantStatus: api.StatusError,
		}, {
			name:       "reset timeout",
			platform:   "agilex",
			faults:     emu.Faults{HandshakeAck: true},
			call:       (*RPC).BridgeReset,
			domains:    "all",
			wantStatus: api.StatusError,
			wantFatal:  true,
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			r, _, _ := newRPC(t, test.platform, test.faults)
			res := &sipapi.Result{}

			if err := test.call(r, sipapi.Bridge{Domains: test.domains}, res); err != nil {
				t.Fatalf("call: %v", err)
			}
			if res.Status != test.wantStatus {
				t.Errorf("Got status %s (%s), want %s", api.StatusText(res.Status), res.Message, api.StatusText(test.wantStatus))
			}
			if res.Fatal != test.wantFatal {
				t.Errorf("Got fatal %t, want %t", res.Fatal, test.wantFatal)
			}
		})
	}
}

func TestServe(t *testing.T) {
	r, _, _ := newRPC(t, "agilex5", emu.Faults{})

	srv := rpc.NewServer()
	if err := srv.RegisterName("SIP", r); err != nil {
		t.Fatalf("RegisterName: %v", err)
	}

	c, s := net.Pipe()
	go srv.ServeCodec(jsonrpc.NewServerCodec(s))

	client := jsonrpc.NewClient(c)
	defer client.Close()

	var version string
	if err := client.Call("SIP.Version", nil, &version); err != nil {
		t.Fatalf("SIP.Version: %v", err)
	}
	if version != "1.2.0" {
		t.Errorf("Got version %q, want 1.2.0", version)
	}

	var status api.Status
	if err := client.Call("SIP.Status", nil, &status); err != nil {
		t.Fatalf("SIP.Status: %v", err)
	}

	want := api.Status{
		Instance: "test",
		Platform: "agilex5",
		Version:  "1.2.0",
		DDRSize:  0x80000000,
		Bridges:  "soc2fpga,lwhps2fpga,fpga2soc,f2sdram0,f2sdram1,f2sdram2",
	}
	if diff := cmp.Diff(want, status); diff != "" {
		t.Errorf("Got diff: %s", diff)
	}

	res := &sipapi.Result{}
	if err := client.Call("SIP.Encrypt", sipapi.Transfer{Src: 0x1000, SrcSize: 3, Dst: 0x2000, DstSize: 0x100}, res); err != nil {
		t.Fatalf("SIP.Encrypt: %v", err)
	}
	if res.Status != api.StatusRejected {
		t.Errorf("Got status %s, want REJECTED", api.StatusText(res.Status))
	}
}
