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

// Package mailbox defines the command framing used to talk to the Secure
// Device Manager (SDM) co-processor, along with the transport interface
// the mailbox queue driver provides.
//
// Queue head/tail management and interrupt wiring live in the transport
// implementation, this package only describes requests and results.
package mailbox

import (
	"errors"
	"fmt"
)

// WordSize is the size in bytes of a mailbox payload word.
const WordSize = 4

// JobID identifies the boot firmware client on synchronous commands.
const JobID = 0x1

// SDM mailbox commands.
const (
	CmdVABSrcCert    = 0x0b
	CmdFCSProvision  = 0x7b
	CmdFCSEncryptReq = 0x7e
	CmdFCSDecryptReq = 0x7f
	CmdFCSRandomGen  = 0x80
)

// Mailbox error codes, as reported by the SDM in the response header.
const (
	ErrCodeInvalidCommand = 0x1
	ErrCodeUnknownBrst    = 0x2
	ErrCodeInvalidLength  = 0x3
	ErrCodeNotAllowed     = 0x4
	ErrCodeNoValidKey     = 0x5
	ErrCodeTimeout        = 0xb
	ErrCodeHWAccessFailed = 0xc
	ErrCodeNoResponse     = 0x84
	ErrCodeBusy           = 0x87
	// GenericResponseError is reserved for responses whose shape does not
	// match the command protocol.
	GenericResponseError = 0x3ff
)

// Mode selects how the SDM interprets a command payload.
type Mode int

const (
	// Casual commands carry inline arguments and return response data
	// directly.
	Casual Mode = iota
	// Direct commands reference a buffer the SDM reads in place.
	Direct
	// Indirect commands carry a descriptor (addresses and sizes) for
	// buffers the SDM operates on through DMA.
	Indirect
)

func (m Mode) String() string {
	switch m {
	case Casual:
		return "casual"
	case Direct:
		return "direct"
	case Indirect:
		return "indirect"
	}

	return fmt.Sprintf("mode(%d)", int(m))
}

// Token is the correlation identifier returned by an asynchronous command.
type Token uint32

// Request represents a mailbox command.
type Request struct {
	// Job is the client job ID, used by synchronous commands.
	Job uint32
	// Command is the SDM command code.
	Command uint32
	// Args holds the inline payload words.
	Args []uint32
	// Addr is the physical address of Len payload words, for Direct
	// requests (Args is ignored).
	Addr uint64
	// Len is the Direct payload length in words.
	Len int
	// Mode is the command mode.
	Mode Mode
}

// Words returns the payload length in words.
func (r *Request) Words() int {
	if r.Mode == Direct {
		return r.Len
	}

	return len(r.Args)
}

// Transport represents the mailbox queue driver.
type Transport interface {
	// Send issues a command and blocks until its response is available.
	Send(req *Request) (resp []uint32, err error)
	// SendAsync issues a command and returns immediately, the returned
	// token identifies the job for later completion queries.
	SendAsync(req *Request) (Token, error)
}

// Completer is implemented by transports able to report the outcome of
// asynchronous commands.
type Completer interface {
	// Response returns the response of the job identified by token, or
	// ErrBusy if the job has not completed yet.
	Response(t Token) (resp []uint32, err error)
}

// ErrBusy is returned when an asynchronous job has not completed.
var ErrBusy = errors.New("mailbox busy")

// Error represents a failure reported by the mailbox transport.
type Error struct {
	Code uint32
}

func (e *Error) Error() string {
	return fmt.Sprintf("mailbox error (%#x)", e.Code)
}
