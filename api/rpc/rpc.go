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

package rpc

// Buffer represents an RPC request referencing a single memory buffer.
type Buffer struct {
	Addr uint64
	Size uint64
}

// Transfer represents an RPC request for an encryption or decryption job.
type Transfer struct {
	Src     uint64
	SrcSize uint64
	Dst     uint64
	DstSize uint64
}

// Bridge represents an RPC bridge operation request, Domains is a comma
// separated list of bridge domain names.
type Bridge struct {
	Domains string
}

// Result represents the outcome of a SiP call.
type Result struct {
	// Status is the SiP status code.
	Status uint32
	// MailboxError holds the mailbox error code, if any.
	MailboxError uint32
	// Size is the number of bytes written by synchronous commands.
	Size uint64
	// Token identifies an asynchronous mailbox job.
	Token uint32
	// Response holds the response words of a completed job.
	Response []uint32
	// Message holds a textual error description.
	Message string
	// Fatal is set when a bridge reset timed out, the bridges are left in
	// an undefined state and boot must not proceed.
	Fatal bool
}

// Memory represents an RPC request for access to device memory.
type Memory struct {
	Addr uint64
	Data []byte
	Size int
}
