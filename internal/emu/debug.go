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

package emu

import (
	"errors"
	"fmt"

	"github.com/transparency-dev/socfpga-firmware/api/rpc"
	"github.com/transparency-dev/socfpga-firmware/internal/mmio"
)

// MaxTransfer is the maximum size of a single Debug memory access.
const MaxTransfer = 1 << 20

// Debug is an RPC receiver giving callers access to the simulated address
// space, used to stage command buffers and collect results.
type Debug struct {
	Mem *mmio.Sim
}

// Read returns m.Size bytes at m.Addr.
func (d *Debug) Read(m rpc.Memory, buf *[]byte) error {
	if buf == nil || m.Size < 0 || m.Size > MaxTransfer {
		return fmt.Errorf("invalid read size %d", m.Size)
	}

	*buf = d.Mem.ReadBytes(m.Addr, m.Size)

	return nil
}

// Write stores m.Data at m.Addr.
func (d *Debug) Write(m rpc.Memory, _ *bool) error {
	if len(m.Data) > MaxTransfer {
		return errors.New("write too large")
	}

	d.Mem.WriteBytes(m.Addr, m.Data)

	return nil
}
