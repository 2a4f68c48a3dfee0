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

// Package mmio provides access to memory mapped control and status
// registers, along with the bounded polling primitives used to wait on
// hardware handshakes.
//
// All polling is expressed as a fixed number of attempts separated by an
// injectable delay, rather than wall clock deadlines, so that the same code
// paths run on hardware and against the in-memory simulator.
package mmio

import (
	"errors"
	"time"
)

// ErrTimeout is returned when a bounded poll exhausts its retry budget.
var ErrTimeout = errors.New("timeout")

// Registers represents a 32-bit register address space, together with the
// data cache maintenance operations required for DMA visible buffers.
type Registers interface {
	// Read32 reads the register at addr.
	Read32(addr uint64) uint32
	// Write32 writes val to the register at addr.
	Write32(addr uint64, val uint32)
	// Set performs a read/modify/write setting the bits in mask.
	Set(addr uint64, mask uint32)
	// Clear performs a read/modify/write clearing the bits in mask.
	Clear(addr uint64, mask uint32)
	// FlushCache cleans the data cache lines covering [addr, addr+size).
	FlushCache(addr uint64, size uint64)
	// InvalidateCache invalidates the data cache lines covering
	// [addr, addr+size).
	InvalidateCache(addr uint64, size uint64)
}

// Delay suspends execution for (approximately) the given duration. Hardware
// builds use time.Sleep, tests substitute a counter.
type Delay func(time.Duration)

// Poll samples cond up to attempts times, invoking delay(interval) after
// every unsuccessful sample. It returns ErrTimeout if cond never held.
func Poll(attempts int, interval time.Duration, delay Delay, cond func() bool) error {
	if delay == nil {
		delay = time.Sleep
	}

	for i := 0; i < attempts; i++ {
		if cond() {
			return nil
		}

		delay(interval)
	}

	return ErrTimeout
}

// WaitFor polls the register at addr until the bits selected by mask equal
// match, for at most attempts samples spaced by interval.
func WaitFor(r Registers, delay Delay, attempts int, interval time.Duration, addr uint64, mask uint32, match uint32) error {
	return Poll(attempts, interval, delay, func() bool {
		return r.Read32(addr)&mask == match
	})
}
