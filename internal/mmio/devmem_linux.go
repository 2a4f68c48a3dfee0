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

//go:build linux
// +build linux

package mmio

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
	"k8s.io/klog/v2"
)

const pageSize = 0x1000

// DevMem accesses physical registers from Linux userspace through an
// uncached (O_SYNC) mapping of /dev/mem. Pages are mapped on first use.
type DevMem struct {
	sync.Mutex

	f     *os.File
	pages map[uint64][]byte
}

// OpenDevMem opens the physical memory device at path (normally /dev/mem).
func OpenDevMem(path string) (*DevMem, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_SYNC, 0)

	if err != nil {
		return nil, err
	}

	return &DevMem{
		f:     f,
		pages: make(map[uint64][]byte),
	}, nil
}

// Close unmaps all pages and closes the underlying device.
func (d *DevMem) Close() error {
	d.Lock()
	defer d.Unlock()

	for base, p := range d.pages {
		if err := unix.Munmap(p); err != nil {
			klog.Warningf("devmem: munmap %#x: %v", base, err)
		}
	}

	d.pages = make(map[uint64][]byte)

	return d.f.Close()
}

// Map maps the pages covering the register window at addr, so that
// mapping failures are reported before any register access.
func (d *DevMem) Map(addr uint64, size uint64) error {
	d.Lock()
	defer d.Unlock()

	for base := addr &^ (pageSize - 1); base < addr+size; base += pageSize {
		if _, err := d.page(base); err != nil {
			return err
		}
	}

	return nil
}

func (d *DevMem) page(base uint64) ([]byte, error) {
	if p, ok := d.pages[base]; ok {
		return p, nil
	}

	p, err := unix.Mmap(int(d.f.Fd()), int64(base), pageSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)

	if err != nil {
		return nil, fmt.Errorf("devmem: mmap %#x: %w", base, err)
	}

	klog.V(2).Infof("devmem: mapped page %#x", base)
	d.pages[base] = p

	return p, nil
}

// word returns the mapped register at addr. Registers has no error path,
// failures to map are fatal.
func (d *DevMem) word(addr uint64) *uint32 {
	if addr&3 != 0 {
		klog.Fatalf("devmem: unaligned register access %#x", addr)
	}

	d.Lock()
	defer d.Unlock()

	base := addr &^ (pageSize - 1)
	p, err := d.page(base)

	if err != nil {
		klog.Fatal(err)
	}

	return (*uint32)(unsafe.Pointer(&p[addr-base]))
}

// Read32 implements Registers.
func (d *DevMem) Read32(addr uint64) uint32 {
	return atomic.LoadUint32(d.word(addr))
}

// Write32 implements Registers.
func (d *DevMem) Write32(addr uint64, val uint32) {
	atomic.StoreUint32(d.word(addr), val)
}

// Set implements Registers.
func (d *DevMem) Set(addr uint64, mask uint32) {
	r := d.word(addr)
	atomic.StoreUint32(r, atomic.LoadUint32(r)|mask)
}

// Clear implements Registers.
func (d *DevMem) Clear(addr uint64, mask uint32) {
	r := d.word(addr)
	atomic.StoreUint32(r, atomic.LoadUint32(r)&^mask)
}

// FlushCache implements Registers, the mapping is uncached.
func (d *DevMem) FlushCache(_ uint64, _ uint64) {}

// InvalidateCache implements Registers, the mapping is uncached.
func (d *DevMem) InvalidateCache(_ uint64, _ uint64) {}
