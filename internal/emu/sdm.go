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
	"bytes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"
	"sync"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
	"k8s.io/klog/v2"

	"github.com/transparency-dev/socfpga-firmware/internal/mmio"
	"github.com/transparency-dev/socfpga-firmware/mailbox"
)

// Encrypted object layout, as produced and consumed by the SDM model.
const (
	ObjectMagic      = 0x4a424f46 // "FOBJ"
	objectHeaderSize = 32
	ownerIDOffset    = 0xc
	nonceOffset      = 0x14
)

// SDM models the Secure Device Manager co-processor behind the mailbox, its
// buffers live in the DDR of the simulated address space.
type SDM struct {
	sync.Mutex

	// Mem is the simulated address space holding command buffers.
	Mem *mmio.Sim
	// Provisioning is returned by provisioning data requests.
	Provisioning []uint32
	// OwnerID identifies the owner of encrypted objects.
	OwnerID uint64
	// Latency is the number of completion queries answered with
	// mailbox.ErrBusy before an asynchronous job completes.
	Latency int
	// Error, when not zero, fails every command with this mailbox error
	// code.
	Error uint32

	key   []byte
	token mailbox.Token
	jobs  map[mailbox.Token]*job
	certs [][]byte
}

type job struct {
	resp    []uint32
	err     error
	pending int
}

// NewSDM returns an SDM model operating on mem, objects are sealed with
// per owner keys derived from key.
func NewSDM(mem *mmio.Sim, key []byte) (*SDM, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("invalid object key size %d", len(key))
	}

	return &SDM{
		Mem:  mem,
		key:  append([]byte{}, key...),
		jobs: make(map[mailbox.Token]*job),
	}, nil
}

// aead returns the object cipher for an owner.
func (s *SDM) aead(owner uint64) (cipher.AEAD, error) {
	info := make([]byte, 8)
	binary.LittleEndian.PutUint64(info, owner)

	k := make([]byte, chacha20poly1305.KeySize)

	if _, err := io.ReadFull(hkdf.New(sha256.New, s.key, nil, info), k); err != nil {
		return nil, err
	}

	return chacha20poly1305.New(k)
}

func mboxErr(code uint32) error {
	return &mailbox.Error{Code: code}
}

// Send implements mailbox.Transport.
func (s *SDM) Send(req *mailbox.Request) ([]uint32, error) {
	s.Lock()
	defer s.Unlock()

	klog.V(2).Infof("emu: sdm command %#x (%s)", req.Command, req.Mode)

	if s.Error != 0 {
		return nil, mboxErr(s.Error)
	}

	switch req.Command {
	case mailbox.CmdFCSRandomGen:
		buf := make([]byte, 4*mailbox.WordSize)

		if _, err := rand.Read(buf); err != nil {
			return nil, mboxErr(mailbox.ErrCodeHWAccessFailed)
		}

		resp := make([]uint32, len(buf)/mailbox.WordSize)

		for i := range resp {
			resp[i] = binary.LittleEndian.Uint32(buf[i*mailbox.WordSize:])
		}

		return resp, nil
	case mailbox.CmdFCSProvision:
		return append([]uint32{}, s.Provisioning...), nil
	}

	return nil, mboxErr(mailbox.ErrCodeInvalidCommand)
}

// SendAsync implements mailbox.Transport, the job is executed immediately
// and its outcome held until collected through Response.
func (s *SDM) SendAsync(req *mailbox.Request) (mailbox.Token, error) {
	s.Lock()
	defer s.Unlock()

	klog.V(2).Infof("emu: sdm async command %#x (%s)", req.Command, req.Mode)

	if s.Error != 0 {
		return 0, mboxErr(s.Error)
	}

	var resp []uint32
	var err error

	switch req.Command {
	case mailbox.CmdVABSrcCert:
		if req.Mode != mailbox.Direct {
			return 0, mboxErr(mailbox.ErrCodeInvalidCommand)
		}

		cert := s.Mem.ReadBytes(req.Addr, req.Words()*mailbox.WordSize)
		s.certs = append(s.certs, cert)
	case mailbox.CmdFCSEncryptReq:
		if len(req.Args) != 5 {
			return 0, mboxErr(mailbox.ErrCodeInvalidLength)
		}

		resp, err = s.encrypt(req.Args[1:])
	case mailbox.CmdFCSDecryptReq:
		if len(req.Args) != 7 {
			return 0, mboxErr(mailbox.ErrCodeInvalidLength)
		}

		resp, err = s.decrypt(uint64(req.Args[2])<<32|uint64(req.Args[1]), req.Args[3:])
	default:
		return 0, mboxErr(mailbox.ErrCodeInvalidCommand)
	}

	s.token++
	s.jobs[s.token] = &job{
		resp:    resp,
		err:     err,
		pending: s.Latency,
	}

	return s.token, nil
}

// Response implements mailbox.Completer.
func (s *SDM) Response(t mailbox.Token) ([]uint32, error) {
	s.Lock()
	defer s.Unlock()

	j, ok := s.jobs[t]

	if !ok {
		return nil, mboxErr(mailbox.ErrCodeNoResponse)
	}

	if j.pending > 0 {
		j.pending--
		return nil, mailbox.ErrBusy
	}

	delete(s.jobs, t)

	return j.resp, j.err
}

// Certificates returns the certificates received so far.
func (s *SDM) Certificates() [][]byte {
	s.Lock()
	defer s.Unlock()

	return append([][]byte(nil), s.certs...)
}

func (s *SDM) header(size int) []byte {
	hdr := make([]byte, objectHeaderSize)

	binary.LittleEndian.PutUint32(hdr[0:], ObjectMagic)
	binary.LittleEndian.PutUint32(hdr[8:], uint32(size))
	binary.LittleEndian.PutUint64(hdr[ownerIDOffset:], s.OwnerID)

	return hdr
}

// encrypt seals the source buffer into an object written at the
// destination, desc holds source and destination address and size.
func (s *SDM) encrypt(desc []uint32) ([]uint32, error) {
	src, srcSize := uint64(desc[0]), int(desc[1])
	dst, dstSize := uint64(desc[2]), int(desc[3])

	if objectHeaderSize+srcSize+chacha20poly1305.Overhead > dstSize {
		return nil, mboxErr(mailbox.ErrCodeInvalidLength)
	}

	aead, err := s.aead(s.OwnerID)

	if err != nil {
		return nil, mboxErr(mailbox.ErrCodeHWAccessFailed)
	}

	hdr := s.header(srcSize)

	if _, err := rand.Read(hdr[nonceOffset:objectHeaderSize]); err != nil {
		return nil, mboxErr(mailbox.ErrCodeHWAccessFailed)
	}

	obj := aead.Seal(hdr, hdr[nonceOffset:], s.Mem.ReadBytes(src, srcSize), hdr[:nonceOffset])
	s.Mem.WriteBytes(dst, obj)

	return []uint32{uint32(len(obj))}, nil
}

// decrypt opens the object at the source buffer into the destination, the
// object must belong to owner.
func (s *SDM) decrypt(owner uint64, desc []uint32) ([]uint32, error) {
	src, srcSize := uint64(desc[0]), int(desc[1])
	dst, dstSize := uint64(desc[2]), int(desc[3])

	if owner != s.OwnerID {
		return nil, mboxErr(mailbox.ErrCodeNotAllowed)
	}

	if srcSize < objectHeaderSize {
		return nil, mboxErr(mailbox.ErrCodeInvalidLength)
	}

	obj := s.Mem.ReadBytes(src, srcSize)
	hdr := obj[:objectHeaderSize]
	size := int(binary.LittleEndian.Uint32(hdr[8:]))

	if !bytes.Equal(hdr[:nonceOffset], s.header(size)[:nonceOffset]) {
		return nil, mboxErr(mailbox.ErrCodeNoValidKey)
	}

	end := objectHeaderSize + size + chacha20poly1305.Overhead

	if end > srcSize || size > dstSize {
		return nil, mboxErr(mailbox.ErrCodeInvalidLength)
	}

	aead, err := s.aead(owner)

	if err != nil {
		return nil, mboxErr(mailbox.ErrCodeHWAccessFailed)
	}

	buf, err := aead.Open(nil, hdr[nonceOffset:], obj[objectHeaderSize:end], hdr[:nonceOffset])

	if err != nil {
		return nil, mboxErr(mailbox.ErrCodeNoValidKey)
	}

	s.Mem.WriteBytes(dst, buf)

	return []uint32{uint32(len(buf))}, nil
}
