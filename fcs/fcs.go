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

// Package fcs implements the FPGA Crypto Service (FCS) secure commands,
// relayed to the Secure Device Manager (SDM) mailbox on behalf of
// non-secure callers.
//
// Caller supplied buffers are validated against the DDR range and for word
// alignment before the mailbox is contacted, such failures are reported as
// ErrRejected.
package fcs

import (
	"errors"
	"fmt"
	"math"

	"k8s.io/klog/v2"

	"github.com/transparency-dev/socfpga-firmware/api"
	"github.com/transparency-dev/socfpga-firmware/internal/mmio"
	"github.com/transparency-dev/socfpga-firmware/mailbox"
)

const (
	// RandomWords is the size in words of a random number response.
	RandomWords = 4
	// RandomSize is the size in bytes of a random number response.
	RandomSize = RandomWords * mailbox.WordSize

	// ProvDataWords is the maximum size in words of a provisioning data
	// response.
	ProvDataWords = 44
	// ProvDataSize is the maximum size in bytes of a provisioning data
	// response.
	ProvDataSize = ProvDataWords * mailbox.WordSize

	// OwnerIDOffset is the offset of the two word owner identifier
	// within an encrypted object.
	OwnerIDOffset = 0xc
	// OwnerIDSize is the size in bytes of the owner identifier.
	OwnerIDSize = 2 * mailbox.WordSize

	// EncryptTag and DecryptTag lead the encryption and decryption
	// request descriptors.
	EncryptTag = 0x10100
	DecryptTag = 0x10102
)

// ErrRejected is returned when a request fails local validation, the
// mailbox is never contacted in this case.
var ErrRejected = errors.New("request rejected")

// MismatchError represents a mailbox response whose size does not match
// the command protocol.
type MismatchError struct {
	Command uint32
	Got     int
	Want    int
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("command %#x: unexpected response size %d (want %d words)", e.Command, e.Got, e.Want)
}

// Status maps an error returned by Service into a SiP status code and a
// mailbox error code.
func Status(err error) (status uint32, mboxErr uint32) {
	var me *MismatchError
	var be *mailbox.Error

	switch {
	case err == nil:
		return api.StatusOK, 0
	case errors.Is(err, ErrRejected):
		return api.StatusRejected, 0
	case errors.Is(err, mailbox.ErrBusy):
		return api.StatusBusy, 0
	case errors.As(err, &me):
		return api.StatusError, mailbox.GenericResponseError
	case errors.As(err, &be):
		return api.StatusError, be.Code
	}

	return api.StatusError, 0
}

// Range represents a physical memory range.
type Range struct {
	Base uint64
	Size uint64
}

// Contains reports whether the size bytes at addr lie within the range.
func (r Range) Contains(addr uint64, size uint64) bool {
	if addr < r.Base || size > math.MaxUint64-addr {
		return false
	}

	return addr+size <= r.Base+r.Size
}

// Service relays secure commands to the SDM.
type Service struct {
	// Regs gives access to DDR for command buffers.
	Regs mmio.Registers
	// Mailbox is the SDM mailbox transport.
	Mailbox mailbox.Transport
	// DDR is the memory range accepted for caller buffers.
	DDR Range
}

func reject(op string, format string, args ...interface{}) error {
	err := fmt.Errorf("%s: %w (%s)", op, ErrRejected, fmt.Sprintf(format, args...))
	klog.V(1).Infof("fcs: %v", err)
	return err
}

func (s *Service) checkRange(op string, addr uint64, size uint64) error {
	if !s.DDR.Contains(addr, size) {
		return reject(op, "buffer %#x+%#x outside of DDR", addr, size)
	}

	return nil
}

func (s *Service) checkAligned(op string, size uint64) error {
	if size%mailbox.WordSize != 0 {
		return reject(op, "size %#x not word aligned", size)
	}

	return nil
}

// store writes response words at dst, then flushes the written range.
func (s *Service) store(dst uint64, words []uint32) int {
	n := len(words) * mailbox.WordSize

	for i, w := range words {
		s.Regs.Write32(dst+uint64(i*mailbox.WordSize), w)
	}

	if n > 0 {
		s.Regs.FlushCache(dst, uint64(n))
	}

	return n
}

// RandomNumber fills the RandomSize bytes at dst with SDM generated random
// data, returning the number of bytes written.
func (s *Service) RandomNumber(dst uint64) (int, error) {
	if err := s.checkRange("random", dst, RandomSize); err != nil {
		return 0, err
	}

	resp, err := s.Mailbox.Send(&mailbox.Request{
		Job:     mailbox.JobID,
		Command: mailbox.CmdFCSRandomGen,
		Mode:    mailbox.Casual,
	})

	if err != nil {
		return 0, fmt.Errorf("random: %w", err)
	}

	if len(resp) != RandomWords {
		return 0, &MismatchError{Command: mailbox.CmdFCSRandomGen, Got: len(resp), Want: RandomWords}
	}

	return s.store(dst, resp), nil
}

// SendCertificate submits the size bytes certificate at src to the SDM,
// returning the token identifying the job.
func (s *Service) SendCertificate(src uint64, size uint64) (mailbox.Token, error) {
	if err := s.checkRange("certificate", src, size); err != nil {
		return 0, err
	}

	if err := s.checkAligned("certificate", size); err != nil {
		return 0, err
	}

	token, err := s.Mailbox.SendAsync(&mailbox.Request{
		Command: mailbox.CmdVABSrcCert,
		Addr:    src,
		Len:     int(size / mailbox.WordSize),
		Mode:    mailbox.Direct,
	})

	if err != nil {
		return 0, fmt.Errorf("certificate: %w", err)
	}

	return token, nil
}

// ProvisioningData copies the SDM provisioning data at dst, up to
// ProvDataSize bytes, returning the number of bytes written.
func (s *Service) ProvisioningData(dst uint64) (int, error) {
	if err := s.checkRange("provisioning", dst, ProvDataSize); err != nil {
		return 0, err
	}

	resp, err := s.Mailbox.Send(&mailbox.Request{
		Job:     mailbox.JobID,
		Command: mailbox.CmdFCSProvision,
		Mode:    mailbox.Casual,
	})

	if err != nil {
		return 0, fmt.Errorf("provisioning: %w", err)
	}

	if len(resp) > ProvDataWords {
		return 0, &MismatchError{Command: mailbox.CmdFCSProvision, Got: len(resp), Want: ProvDataWords}
	}

	return s.store(dst, resp), nil
}

func (s *Service) checkTransfer(op string, src, srcSize, dst, dstSize uint64) error {
	if err := s.checkRange(op, src, srcSize); err != nil {
		return err
	}

	if err := s.checkRange(op, dst, dstSize); err != nil {
		return err
	}

	if err := s.checkAligned(op, srcSize); err != nil {
		return err
	}

	// destination size alignment is enforced too, not only the source
	if err := s.checkAligned(op, dstSize); err != nil {
		return err
	}

	// descriptor fields are 32-bit wide
	for _, v := range []uint64{src, srcSize, dst, dstSize} {
		if v > math.MaxUint32 {
			return reject(op, "descriptor field %#x exceeds 32 bits", v)
		}
	}

	return nil
}

// transfer invalidates the destination range and submits an indirect
// encryption or decryption descriptor.
func (s *Service) transfer(op string, cmd uint32, desc []uint32, dst, dstSize uint64) (mailbox.Token, error) {
	s.Regs.InvalidateCache(dst, dstSize)

	token, err := s.Mailbox.SendAsync(&mailbox.Request{
		Command: cmd,
		Args:    desc,
		Mode:    mailbox.Indirect,
	})

	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	klog.V(1).Infof("fcs: %s job %#x submitted", op, token)

	return token, nil
}

// Encrypt submits the encryption of srcSize bytes at src into the dstSize
// bytes buffer at dst, returning the token identifying the job.
func (s *Service) Encrypt(src, srcSize, dst, dstSize uint64) (mailbox.Token, error) {
	if err := s.checkTransfer("encrypt", src, srcSize, dst, dstSize); err != nil {
		return 0, err
	}

	desc := []uint32{
		EncryptTag,
		uint32(src),
		uint32(srcSize),
		uint32(dst),
		uint32(dstSize),
	}

	return s.transfer("encrypt", mailbox.CmdFCSEncryptReq, desc, dst, dstSize)
}

// Decrypt submits the decryption of the srcSize bytes encrypted object at
// src into the dstSize bytes buffer at dst, returning the token identifying
// the job. The object owner identifier is read from the source buffer and
// passed along to the SDM.
func (s *Service) Decrypt(src, srcSize, dst, dstSize uint64) (mailbox.Token, error) {
	if err := s.checkTransfer("decrypt", src, srcSize, dst, dstSize); err != nil {
		return 0, err
	}

	// a source too short to hold the owner ID is refused rather than read
	// past its end
	if srcSize < OwnerIDOffset+OwnerIDSize {
		return 0, reject("decrypt", "size %#x too small for owner ID", srcSize)
	}

	id := src + OwnerIDOffset

	desc := []uint32{
		DecryptTag,
		s.Regs.Read32(id),
		s.Regs.Read32(id + mailbox.WordSize),
		uint32(src),
		uint32(srcSize),
		uint32(dst),
		uint32(dstSize),
	}

	return s.transfer("decrypt", mailbox.CmdFCSDecryptReq, desc, dst, dstSize)
}
