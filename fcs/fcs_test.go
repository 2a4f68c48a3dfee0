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

package fcs

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/transparency-dev/socfpga-firmware/api"
	"github.com/transparency-dev/socfpga-firmware/internal/mmio"
	"github.com/transparency-dev/socfpga-firmware/mailbox"
)

const (
	ddrBase = 0x0
	ddrSize = 0x80000000
)

// fakeMailbox records requests and replies with canned responses.
type fakeMailbox struct {
	resp  []uint32
	token mailbox.Token
	err   error

	reqs []*mailbox.Request
}

func (f *fakeMailbox) Send(req *mailbox.Request) ([]uint32, error) {
	f.reqs = append(f.reqs, req)
	return f.resp, f.err
}

func (f *fakeMailbox) SendAsync(req *mailbox.Request) (mailbox.Token, error) {
	f.reqs = append(f.reqs, req)
	return f.token, f.err
}

func newService(mb *fakeMailbox) (*Service, *mmio.Sim) {
	s := mmio.NewSim()
	s.Trace = true

	return &Service{
		Regs:    s,
		Mailbox: mb,
		DDR:     Range{Base: ddrBase, Size: ddrSize},
	}, s
}

func TestRangeContains(t *testing.T) {
	r := Range{Base: 0x1000, Size: 0x1000}

	for _, test := range []struct {
		addr uint64
		size uint64
		want bool
	}{
		{addr: 0x1000, size: 0x1000, want: true},
		{addr: 0x1ffc, size: 4, want: true},
		{addr: 0x2000, size: 0, want: true},
		{addr: 0xffc, size: 8, want: false},
		{addr: 0x1ffc, size: 8, want: false},
		{addr: 0x1004, size: 0xffffffffffffffff, want: false},
	} {
		if got := r.Contains(test.addr, test.size); got != test.want {
			t.Errorf("Contains(%#x, %#x): got %v, want %v", test.addr, test.size, got, test.want)
		}
	}
}

func TestRejectedOutsideDDR(t *testing.T) {
	const (
		end = ddrBase + ddrSize
	)

	for _, test := range []struct {
		name string
		call func(s *Service) error
	}{
		{
			name: "random past end",
			call: func(s *Service) error {
				_, err := s.RandomNumber(end - RandomSize + 4)
				return err
			},
		}, {
			name: "provisioning past end",
			call: func(s *Service) error {
				_, err := s.ProvisioningData(end - 16)
				return err
			},
		}, {
			name: "certificate past end",
			call: func(s *Service) error {
				_, err := s.SendCertificate(end-0x100, 0x104)
				return err
			},
		}, {
			name: "certificate wraps",
			call: func(s *Service) error {
				_, err := s.SendCertificate(0x1000, 0xfffffffffffff000)
				return err
			},
		}, {
			name: "encrypt source",
			call: func(s *Service) error {
				_, err := s.Encrypt(end, 0x100, 0x2000, 0x100)
				return err
			},
		}, {
			name: "encrypt destination",
			call: func(s *Service) error {
				_, err := s.Encrypt(0x1000, 0x100, end-0x80, 0x100)
				return err
			},
		}, {
			name: "decrypt source",
			call: func(s *Service) error {
				_, err := s.Decrypt(end-0x80, 0x100, 0x2000, 0x100)
				return err
			},
		}, {
			name: "decrypt destination",
			call: func(s *Service) error {
				_, err := s.Decrypt(0x1000, 0x100, end, 4)
				return err
			},
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			mb := &fakeMailbox{}
			s, sim := newService(mb)

			err := test.call(s)

			if !errors.Is(err, ErrRejected) {
				t.Fatalf("Got %v, want ErrRejected", err)
			}
			if n := len(mb.reqs); n != 0 {
				t.Errorf("Got %d mailbox requests, want none", n)
			}
			if log := sim.Log(); len(log) != 0 {
				t.Errorf("Got memory accesses on rejected request: %v", log)
			}
			if status, mboxErr := Status(err); status != api.StatusRejected || mboxErr != 0 {
				t.Errorf("Status: got (%d, %#x), want (%d, 0)", status, mboxErr, api.StatusRejected)
			}
		})
	}
}

func TestRejectedBelowDDR(t *testing.T) {
	mb := &fakeMailbox{}
	s, _ := newService(mb)
	s.DDR = Range{Base: 0x80000000, Size: 0x40000000}

	if _, err := s.RandomNumber(0x7ffffff0); !errors.Is(err, ErrRejected) {
		t.Errorf("RandomNumber: got %v, want ErrRejected", err)
	}
	if _, err := s.SendCertificate(0x7ffffffc, 8); !errors.Is(err, ErrRejected) {
		t.Errorf("SendCertificate: got %v, want ErrRejected", err)
	}
	if len(mb.reqs) != 0 {
		t.Errorf("Got %d mailbox requests, want none", len(mb.reqs))
	}
}

func TestRejectedMisaligned(t *testing.T) {
	for _, size := range []uint64{1, 2, 3, 0x101, 0x102, 0x103} {
		mb := &fakeMailbox{}
		s, _ := newService(mb)

		if _, err := s.SendCertificate(0x1000, size); !errors.Is(err, ErrRejected) {
			t.Errorf("SendCertificate(size %#x): got %v, want ErrRejected", size, err)
		}
		if _, err := s.Encrypt(0x1000, size, 0x2000, 0x200); !errors.Is(err, ErrRejected) {
			t.Errorf("Encrypt(size %#x): got %v, want ErrRejected", size, err)
		}
		if _, err := s.Decrypt(0x1000, size, 0x2000, 0x200); !errors.Is(err, ErrRejected) {
			t.Errorf("Decrypt(size %#x): got %v, want ErrRejected", size, err)
		}
		if _, err := s.Encrypt(0x1000, 0x100, 0x2000, size); !errors.Is(err, ErrRejected) {
			t.Errorf("Encrypt(destination size %#x): got %v, want ErrRejected", size, err)
		}
		if len(mb.reqs) != 0 {
			t.Errorf("size %#x: got %d mailbox requests, want none", size, len(mb.reqs))
		}
	}
}

func TestRandomNumber(t *testing.T) {
	const dst = 0x4000

	random := []uint32{0x03020100, 0x07060504, 0x0b0a0908, 0x0f0e0d0c}
	mb := &fakeMailbox{resp: random}
	s, sim := newService(mb)

	n, err := s.RandomNumber(dst)
	if err != nil {
		t.Fatalf("RandomNumber: %v", err)
	}
	if n != RandomSize {
		t.Errorf("Got %d bytes, want %d", n, RandomSize)
	}

	want := []byte{
		0x00, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07,
		0x08, 0x09, 0x0a, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f,
	}
	if diff := cmp.Diff(want, sim.ReadBytes(dst, RandomSize)); diff != "" {
		t.Errorf("Got diff: %s", diff)
	}

	wantReq := []*mailbox.Request{{
		Job:     mailbox.JobID,
		Command: mailbox.CmdFCSRandomGen,
		Mode:    mailbox.Casual,
	}}
	if diff := cmp.Diff(wantReq, mb.reqs); diff != "" {
		t.Errorf("Got request diff: %s", diff)
	}

	wantLog := []mmio.Access{
		{Op: mmio.OpWrite, Addr: dst, Val: 0x03020100},
		{Op: mmio.OpWrite, Addr: dst + 4, Val: 0x07060504},
		{Op: mmio.OpWrite, Addr: dst + 8, Val: 0x0b0a0908},
		{Op: mmio.OpWrite, Addr: dst + 12, Val: 0x0f0e0d0c},
		{Op: mmio.OpFlush, Addr: dst, Val: RandomSize},
	}
	if diff := cmp.Diff(wantLog, sim.Log()); diff != "" {
		t.Errorf("Got access diff: %s", diff)
	}
}

func TestRandomNumberMismatch(t *testing.T) {
	for _, resp := range [][]uint32{nil, {1, 2, 3}, {1, 2, 3, 4, 5, 6, 7, 8}} {
		mb := &fakeMailbox{resp: resp}
		s, sim := newService(mb)

		n, err := s.RandomNumber(0x4000)

		var me *MismatchError
		if !errors.As(err, &me) {
			t.Fatalf("%d words: got %v, want *MismatchError", len(resp), err)
		}
		if n != 0 {
			t.Errorf("%d words: got %d bytes written", len(resp), n)
		}
		if log := sim.Log(); len(log) != 0 {
			t.Errorf("%d words: got memory accesses %v", len(resp), log)
		}
		if status, mboxErr := Status(err); status != api.StatusError || mboxErr != mailbox.GenericResponseError {
			t.Errorf("Status: got (%d, %#x), want (%d, %#x)", status, mboxErr, api.StatusError, mailbox.GenericResponseError)
		}
	}
}

func TestMailboxError(t *testing.T) {
	mbErr := &mailbox.Error{Code: mailbox.ErrCodeNotAllowed}

	for _, test := range []struct {
		name string
		call func(s *Service) error
	}{
		{
			name: "random",
			call: func(s *Service) error {
				_, err := s.RandomNumber(0x1000)
				return err
			},
		}, {
			name: "provisioning",
			call: func(s *Service) error {
				_, err := s.ProvisioningData(0x1000)
				return err
			},
		}, {
			name: "certificate",
			call: func(s *Service) error {
				_, err := s.SendCertificate(0x1000, 0x100)
				return err
			},
		}, {
			name: "encrypt",
			call: func(s *Service) error {
				_, err := s.Encrypt(0x1000, 0x100, 0x2000, 0x100)
				return err
			},
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			mb := &fakeMailbox{err: mbErr}
			s, _ := newService(mb)

			err := test.call(s)

			if !errors.Is(err, mbErr) {
				t.Fatalf("Got %v, want %v", err, mbErr)
			}
			if status, mboxErr := Status(err); status != api.StatusError || mboxErr != mailbox.ErrCodeNotAllowed {
				t.Errorf("Status: got (%d, %#x), want (%d, %#x)", status, mboxErr, api.StatusError, mailbox.ErrCodeNotAllowed)
			}
		})
	}
}

func TestProvisioningData(t *testing.T) {
	for _, test := range []struct {
		name    string
		words   int
		wantErr bool
	}{
		{name: "empty", words: 0},
		{name: "partial", words: 9},
		{name: "full", words: ProvDataWords},
		{name: "oversized", words: ProvDataWords + 1, wantErr: true},
	} {
		t.Run(test.name, func(t *testing.T) {
			const dst = 0x8000

			resp := make([]uint32, test.words)
			for i := range resp {
				resp[i] = 0xa5a50000 | uint32(i)
			}

			mb := &fakeMailbox{resp: resp}
			s, sim := newService(mb)

			n, err := s.ProvisioningData(dst)

			if gotErr := err != nil; gotErr != test.wantErr {
				t.Fatalf("Got %v, wantErr %t", err, test.wantErr)
			}
			if test.wantErr {
				return
			}
			if want := test.words * mailbox.WordSize; n != want {
				t.Errorf("Got %d bytes, want %d", n, want)
			}
			for i, w := range resp {
				if got := sim.Peek(dst + uint64(i*4)); got != w {
					t.Errorf("word %d: got %#x, want %#x", i, got, w)
				}
			}

			var flushed []mmio.Access
			for _, a := range sim.Log() {
				if a.Op == mmio.OpFlush {
					flushed = append(flushed, a)
				}
			}

			var want []mmio.Access
			if n > 0 {
				want = append(want, mmio.Access{Op: mmio.OpFlush, Addr: dst, Val: uint64(n)})
			}
			if diff := cmp.Diff(want, flushed); diff != "" {
				t.Errorf("Got flush diff: %s", diff)
			}
		})
	}
}

func TestSendCertificate(t *testing.T) {
	mb := &fakeMailbox{token: 0x42}
	s, sim := newService(mb)

	token, err := s.SendCertificate(0x10000, 0x400)
	if err != nil {
		t.Fatalf("SendCertificate: %v", err)
	}
	if token != 0x42 {
		t.Errorf("Got token %#x, want 0x42", token)
	}

	want := []*mailbox.Request{{
		Command: mailbox.CmdVABSrcCert,
		Addr:    0x10000,
		Len:     0x100,
		Mode:    mailbox.Direct,
	}}
	if diff := cmp.Diff(want, mb.reqs); diff != "" {
		t.Errorf("Got request diff: %s", diff)
	}
	if log := sim.Log(); len(log) != 0 {
		t.Errorf("Certificate buffer accessed: %v", log)
	}
}

func TestEncrypt(t *testing.T) {
	mb := &fakeMailbox{token: 7}
	s, sim := newService(mb)

	token, err := s.Encrypt(0x1000, 0x100, 0x2000, 0x140)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if token != 7 {
		t.Errorf("Got token %d, want 7", token)
	}

	want := []*mailbox.Request{{
		Command: mailbox.CmdFCSEncryptReq,
		Args:    []uint32{EncryptTag, 0x1000, 0x100, 0x2000, 0x140},
		Mode:    mailbox.Indirect,
	}}
	if diff := cmp.Diff(want, mb.reqs); diff != "" {
		t.Errorf("Got request diff: %s", diff)
	}

	wantLog := []mmio.Access{{Op: mmio.OpInvalidate, Addr: 0x2000, Val: 0x140}}
	if diff := cmp.Diff(wantLog, sim.Log()); diff != "" {
		t.Errorf("Got access diff: %s", diff)
	}
}

// invalidateOrder fails the test if the destination has not been
// invalidated when the request reaches the mailbox.
type invalidateOrder struct {
	fakeMailbox
	t   *testing.T
	sim *mmio.Sim
}

func (m *invalidateOrder) SendAsync(req *mailbox.Request) (mailbox.Token, error) {
	if log := m.sim.Log(); len(log) == 0 || log[len(log)-1].Op != mmio.OpInvalidate {
		m.t.Errorf("Request dispatched before cache invalidation: %v", log)
	}

	return m.fakeMailbox.SendAsync(req)
}

func TestDecrypt(t *testing.T) {
	const (
		src = 0x1000
		dst = 0x2000
	)

	sim := mmio.NewSim()
	sim.Trace = true
	sim.Poke(src+OwnerIDOffset, 0xcafe0001)
	sim.Poke(src+OwnerIDOffset+4, 0xcafe0002)

	mb := &invalidateOrder{t: t, sim: sim}
	s := &Service{Regs: sim, Mailbox: mb, DDR: Range{Base: ddrBase, Size: ddrSize}}

	if _, err := s.Decrypt(src, 256, dst, 256); err != nil {
		t.Fatalf("Decrypt: %v", err)
	}

	want := []*mailbox.Request{{
		Command: mailbox.CmdFCSDecryptReq,
		Args:    []uint32{DecryptTag, 0xcafe0001, 0xcafe0002, src, 256, dst, 256},
		Mode:    mailbox.Indirect,
	}}
	if diff := cmp.Diff(want, mb.reqs); diff != "" {
		t.Errorf("Got request diff: %s", diff)
	}
	if got := sim.Reads(src + OwnerIDOffset); got != 1 {
		t.Errorf("Got %d owner ID reads, want 1", got)
	}
}

func TestDecryptShortSource(t *testing.T) {
	mb := &fakeMailbox{}
	s, sim := newService(mb)

	if _, err := s.Decrypt(0x1000, OwnerIDOffset+4, 0x2000, 0x100); !errors.Is(err, ErrRejected) {
		t.Fatalf("Got %v, want ErrRejected", err)
	}
	if sim.Reads(0x1000+OwnerIDOffset) != 0 {
		t.Errorf("Owner ID read on rejected request")
	}
	if len(mb.reqs) != 0 {
		t.Errorf("Got %d mailbox requests, want none", len(mb.reqs))
	}
}

func TestTransferAbove4G(t *testing.T) {
	mb := &fakeMailbox{}
	s, _ := newService(mb)
	s.DDR = Range{Base: 0, Size: 1 << 36}

	if _, err := s.Encrypt(0x100000000, 0x100, 0x2000, 0x100); !errors.Is(err, ErrRejected) {
		t.Errorf("Got %v, want ErrRejected", err)
	}
	if len(mb.reqs) != 0 {
		t.Errorf("Got %d mailbox requests, want none", len(mb.reqs))
	}
}

func TestStatus(t *testing.T) {
	for _, test := range []struct {
		name       string
		err        error
		wantStatus uint32
		wantCode   uint32
	}{
		{name: "ok", wantStatus: api.StatusOK},
		{name: "busy", err: mailbox.ErrBusy, wantStatus: api.StatusBusy},
		{name: "other", err: errors.New("boom"), wantStatus: api.StatusError},
		{name: "mailbox", err: &mailbox.Error{Code: mailbox.ErrCodeTimeout}, wantStatus: api.StatusError, wantCode: mailbox.ErrCodeTimeout},
		{name: "mismatch", err: &MismatchError{}, wantStatus: api.StatusError, wantCode: mailbox.GenericResponseError},
	} {
		t.Run(test.name, func(t *testing.T) {
			status, code := Status(test.err)
			if status != test.wantStatus || code != test.wantCode {
				t.Errorf("Got (%d, %#x), want (%d, %#x)", status, code, test.wantStatus, test.wantCode)
			}
		})
	}
}
