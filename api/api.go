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

// Package api defines the SoC FPGA SiP service status codes and the status
// report shared by the service and its callers.
package api

import (
	"bytes"
	"fmt"

	"github.com/coreos/go-semver/semver"
)

// SiP service status codes
const (
	StatusOK         = 0x0
	StatusBusy       = 0x1
	StatusRejected   = 0x2
	StatusNoResponse = 0x3
	StatusError      = 0x4
)

// ServiceVersion is the SiP service interface version.
var ServiceVersion = semver.Version{Major: 1, Minor: 2}

// StatusText returns a name for a SiP status code.
func StatusText(code uint32) string {
	switch code {
	case StatusOK:
		return "OK"
	case StatusBusy:
		return "BUSY"
	case StatusRejected:
		return "REJECTED"
	case StatusNoResponse:
		return "NO_RESPONSE"
	case StatusError:
		return "ERROR"
	}

	return fmt.Sprintf("UNKNOWN(%#x)", code)
}

// Status represents the SiP service status.
type Status struct {
	// Instance uniquely identifies the running service.
	Instance string
	// Platform is the device family name.
	Platform string
	// Version is the SiP service interface version.
	Version string
	// Build holds the build information of the service binary.
	Build string
	// Runtime is the Go runtime version.
	Runtime string
	// Emulated is true when hardware is modelled rather than accessed.
	Emulated bool
	// DDRBase and DDRSize describe the memory range accepted for
	// secure command buffers.
	DDRBase uint64
	DDRSize uint64
	// Bridges lists the bridge domains present on the platform.
	Bridges string
}

// Print returns the SiP service status in textual format.
func (p *Status) Print() string {
	var status bytes.Buffer

	status.WriteString("------------------------------------------------------ SiP service ----\n")
	status.WriteString(fmt.Sprintf("Instance ...............: %s\n", p.Instance))
	status.WriteString(fmt.Sprintf("Platform ...............: %s\n", p.Platform))
	status.WriteString(fmt.Sprintf("Version ................: %s\n", p.Version))
	status.WriteString(fmt.Sprintf("Build ..................: %s\n", p.Build))
	status.WriteString(fmt.Sprintf("Runtime ................: %s\n", p.Runtime))
	status.WriteString(fmt.Sprintf("Emulated ...............: %v\n", p.Emulated))
	status.WriteString(fmt.Sprintf("DDR ....................: %#x-%#x\n", p.DDRBase, p.DDRBase+p.DDRSize))
	status.WriteString(fmt.Sprintf("Bridges ................: %s", p.Bridges))

	return status.String()
}
