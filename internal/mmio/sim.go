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

package mmio

import (
	"encoding/binary"
	"fmt"
	"sync"
)

// Op identifies a register access type recorded by Sim.
type Op int

const (
	OpWrite Op = iota
	OpSet
	OpClear
	OpFlush
	OpInvalidate
)

func (op Op) String() string {
	switch op {
	case OpWrite:
		return "write"
	case OpSet:
		return "set"
	case OpClear:
		return "clear"
	case OpFlush:
		return "flush"
	case OpInvalidate:
		return "invalidate"
	}

	return fmt.Sprintf("op(%d)", int(op))
}

// Access represents a single recorded register or cache operation, for cache
// operations Val holds the range size.
type Access struct {
	Op   Op
	Addr uint64
	Val  uint64
}

// Words is the backing store of a Sim, indexed by word aligned address.
type Words map[uint64]uint32

// Load returns the word at addr, unset words read as zero.
func (w Words) Load(addr uint64) uint32 {
	return w[addr&^3]
}

// Store sets the word at addr.
func (w Words) Store(addr uint64, val uint32) {
	w[addr&^3] = val
}

// Hook is invoked, with the Sim locked, after a write to the register it is
// registered on. It receives the resulting register value and can update
// any other word to model hardware side effects.
type Hook func(w Words, addr uint64, val uint32)

// Sim is an in-memory Registers implementation, it models both register
// windows and plain memory (e.g. DDR) as a sparse word array.
type Sim struct {
	sync.Mutex

	// Trace enables recording of all write and cache operations.
	Trace bool

	words Words
	hooks map[uint64]Hook
	reads map[uint64]int
	log   []Access
}

// NewSim returns an empty simulated address space.
func NewSim() *Sim {
	return &Sim{
		words: make(Words),
		hooks: make(map[uint64]Hook),
		reads: make(map[uint64]int),
	}
}

// OnWrite registers a hook on writes to the register at addr, replacing any
// previous hook.
func (s *Sim) OnWrite(addr uint64, h Hook) {
	s.Lock()
	defer s.Unlock()

	s.hooks[addr&^3] = h
}

func (s *Sim) record(op Op, addr uint64, val uint64) {
	if s.Trace {
		s.log = append(s.log, Access{Op: op, Addr: addr, Val: val})
	}
}

func (s *Sim) store(op Op, addr uint64, val uint32, arg uint32) {
	s.words.Store(addr, val)
	s.record(op, addr, uint64(arg))

	if h, ok := s.hooks[addr&^3]; ok {
		h(s.words, addr&^3, val)
	}
}

// Read32 implements Registers.
func (s *Sim) Read32(addr uint64) uint32 {
	s.Lock()
	defer s.Unlock()

	s.reads[addr&^3]++

	return s.words.Load(addr)
}

// Write32 implements Registers.
func (s *Sim) Write32(addr uint64, val uint32) {
	s.Lock()
	defer s.Unlock()

	s.store(OpWrite, addr, val, val)
}

// Set implements Registers.
func (s *Sim) Set(addr uint64, mask uint32) {
	s.Lock()
	defer s.Unlock()

	s.store(OpSet, addr, s.words.Load(addr)|mask, mask)
}

// Clear implements Registers.
func (s *Sim) Clear(addr uint64, mask uint32) {
	s.Lock()
	defer s.Unlock()

	s.store(OpClear, addr, s.words.Load(addr)&^mask, mask)
}

// FlushCache implements Registers, the operation is only recorded.
func (s *Sim) FlushCache(addr uint64, size uint64) {
	s.Lock()
	defer s.Unlock()

	s.record(OpFlush, addr, size)
}

// InvalidateCache implements Registers, the operation is only recorded.
func (s *Sim) InvalidateCache(addr uint64, size uint64) {
	s.Lock()
	defer s.Unlock()

	s.record(OpInvalidate, addr, size)
}

// Peek returns the word at addr without counting it as a read or invoking
// any model.
func (s *Sim) Peek(addr uint64) uint32 {
	s.Lock()
	defer s.Unlock()

	return s.words.Load(addr)
}

// Poke sets the word at addr without recording the access or triggering
// hooks.
func (s *Sim) Poke(addr uint64, val uint32) {
	s.Lock()
	defer s.Unlock()

	s.words.Store(addr, val)
}

// Reads returns the number of Read32 accesses to the register at addr.
func (s *Sim) Reads(addr uint64) int {
	s.Lock()
	defer s.Unlock()

	return s.reads[addr&^3]
}

// Log returns a copy of the recorded accesses (see Trace).
func (s *Sim) Log() []Access {
	s.Lock()
	defer s.Unlock()

	return append([]Access(nil), s.log...)
}

// Reset discards recorded accesses and read counters, register contents are
// preserved.
func (s *Sim) Reset() {
	s.Lock()
	defer s.Unlock()

	s.log = nil
	s.reads = make(map[uint64]int)
}

// Snapshot returns a copy of all non-zero words.
func (s *Sim) Snapshot() map[uint64]uint32 {
	s.Lock()
	defer s.Unlock()

	m := make(map[uint64]uint32, len(s.words))

	for addr, val := range s.words {
		if val != 0 {
			m[addr] = val
		}
	}

	return m
}

// ReadBytes copies size bytes starting at addr, words are little-endian.
func (s *Sim) ReadBytes(addr uint64, size int) []byte {
	s.Lock()
	defer s.Unlock()

	buf := make([]byte, size)
	var w [4]byte

	for i := 0; i < size; i++ {
		a := addr + uint64(i)
		binary.LittleEndian.PutUint32(w[:], s.words.Load(a))
		buf[i] = w[a&3]
	}

	return buf
}

// WriteBytes copies buf to memory starting at addr, words are
// little-endian. Hooks are not triggered.
func (s *Sim) WriteBytes(addr uint64, buf []byte) {
	s.Lock()
	defer s.Unlock()

	var w [4]byte

	for i, b := range buf {
		a := addr + uint64(i)
		binary.LittleEndian.PutUint32(w[:], s.words.Load(a))
		w[a&3] = b
		s.words.Store(a, binary.LittleEndian.Uint32(w[:]))
	}
}
