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

// Package sip implements the SoC FPGA Silicon Provider (SiP) service calls
// made available to non-secure software, as a net/rpc receiver.
//
// Every call reports its outcome through an rpc.Result status code, errors
// returned by receiver methods are reserved for malformed requests.
package sip

import (
	"errors"
	"sync"

	"k8s.io/klog/v2"

	"github.com/transparency-dev/socfpga-firmware/api"
	"github.com/transparency-dev/socfpga-firmware/api/rpc"
	"github.com/transparency-dev/socfpga-firmware/fcs"
	"github.com/transparency-dev/socfpga-firmware/mailbox"
	"github.com/transparency-dev/socfpga-firmware/rstmgr"
)

var errInvalidArgument = errors.New("invalid argument")

// RPC represents a receiver for SiP service calls. Calls are serialized,
// the mailbox and the bridge handshakes admit a single operation in flight.
type RPC struct {
	// FCS relays secure commands to the SDM.
	FCS *fcs.Service
	// Bridges controls the HPS to FPGA bridges.
	Bridges *rstmgr.Manager
	// Info holds the static part of the service status.
	Info api.Status

	mu sync.Mutex
}

func result(res *rpc.Result, err error) {
	res.Status, res.MailboxError = fcs.Status(err)

	if err != nil {
		res.Message = err.Error()
	}
}

// Random fills the buffer at dst with random data.
func (r *RPC) Random(dst uint64, res *rpc.Result) error {
	if res == nil {
		return errInvalidArgument
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	n, err := r.FCS.RandomNumber(dst)
	res.Size = uint64(n)
	result(res, err)

	return nil
}

// SendCertificate submits a certificate to the SDM.
func (r *RPC) SendCertificate(buf rpc.Buffer, res *rpc.Result) error {
	if res == nil {
		return errInvalidArgument
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	token, err := r.FCS.SendCertificate(buf.Addr, buf.Size)
	res.Token = uint32(token)
	result(res, err)

	return nil
}

// ProvisioningData copies the SDM provisioning data at dst.
func (r *RPC) ProvisioningData(dst uint64, res *rpc.Result) error {
	if res == nil {
		return errInvalidArgument
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	n, err := r.FCS.ProvisioningData(dst)
	res.Size = uint64(n)
	result(res, err)

	return nil
}

// Encrypt submits an encryption job.
func (r *RPC) Encrypt(t rpc.Transfer, res *rpc.Result) error {
	if res == nil {
		return errInvalidArgument
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	token, err := r.FCS.Encrypt(t.Src, t.SrcSize, t.Dst, t.DstSize)
	res.Token = uint32(token)
	result(res, err)

	return nil
}

// Decrypt submits a decryption job.
func (r *RPC) Decrypt(t rpc.Transfer, res *rpc.Result) error {
	if res == nil {
		return errInvalidArgument
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	token, err := r.FCS.Decrypt(t.Src, t.SrcSize, t.Dst, t.DstSize)
	res.Token = uint32(token)
	result(res, err)

	return nil
}

// Completion returns the outcome of the asynchronous job identified by
// token, StatusBusy is reported while the job is pending.
func (r *RPC) Completion(token uint32, res *rpc.Result) error {
	if res == nil {
		return errInvalidArgument
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.FCS.Mailbox.(mailbox.Completer)

	if !ok {
		res.Status = api.StatusError
		res.Message = "mailbox does not support completion queries"
		return nil
	}

	resp, err := c.Response(mailbox.Token(token))

	var me *mailbox.Error

	if errors.As(err, &me) && me.Code == mailbox.ErrCodeNoResponse {
		res.Status = api.StatusNoResponse
		return nil
	}

	res.Token = token
	res.Response = resp
	result(res, err)

	return nil
}

func (r *RPC) bridges(op string, b rpc.Bridge, res *rpc.Result, fn func(rstmgr.Domain) error) error {
	if res == nil {
		return errInvalidArgument
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	mask, err := r.Bridges.Platform.ParseDomain(b.Domains)

	if err != nil {
		res.Status = api.StatusRejected
		res.Message = err.Error()
		return nil
	}

	klog.Infof("sip: bridge %s (%s)", op, mask)

	if err = fn(mask); err != nil {
		res.Status = api.StatusError
		res.Message = err.Error()
		res.Fatal = rstmgr.IsFatal(err)
	}

	return nil
}

// BridgeReset resets the selected bridges.
func (r *RPC) BridgeReset(b rpc.Bridge, res *rpc.Result) error {
	return r.bridges("reset", b, res, r.Bridges.Reset)
}

// BridgeEnable enables the selected bridges.
func (r *RPC) BridgeEnable(b rpc.Bridge, res *rpc.Result) error {
	return r.bridges("enable", b, res, r.Bridges.Enable)
}

// BridgeDisable disables the selected bridges.
func (r *RPC) BridgeDisable(b rpc.Bridge, res *rpc.Result) error {
	return r.bridges("disable", b, res, r.Bridges.Disable)
}

// Version returns the SiP service interface version.
func (r *RPC) Version(_ any, version *string) error {
	if version == nil {
		return errInvalidArgument
	}

	*version = api.ServiceVersion.String()

	return nil
}

// Status returns the SiP service status.
func (r *RPC) Status(_ any, status *api.Status) error {
	if status == nil {
		return errInvalidArgument
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	*status = r.Info
	status.Version = api.ServiceVersion.String()
	status.Platform = r.Bridges.Platform.Name
	status.Bridges = r.Bridges.Platform.Domains().String()
	status.DDRBase = r.FCS.DDR.Base
	status.DDRSize = r.FCS.DDR.Size

	return nil
}
