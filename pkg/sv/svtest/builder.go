// Copyright 2026 The gVisor Authors.
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

// Package svtest builds page tables in simulated physical memory for tests.
package svtest

import (
	"encoding/binary"
	"fmt"
	"sync/atomic"

	"svwalk.dev/svwalk/pkg/bits"
	"svwalk.dev/svwalk/pkg/physmem"
	"svwalk.dev/svwalk/pkg/sv"
)

// Builder allocates page tables from a RAM region and fills them in.
type Builder struct {
	// Space holds the RAM region the tables live in.
	Space *physmem.Space

	// Scheme is the layout of the tables.
	Scheme *sv.Scheme

	// Root is the PPN of the root table.
	Root uint64

	// next and end bound the free frames, as PPNs.
	next uint64
	end  uint64
}

// New returns a Builder with frames pages of RAM at physical address base,
// and allocates the root table from them.
//
// Precondition: base is page aligned.
func New(s *sv.Scheme, base uint64, frames uint64) *Builder {
	space := physmem.NewSpace()
	if err := space.Add(base, physmem.NewRAM(frames*uint64(s.PageSize))); err != nil {
		panic(fmt.Sprintf("adding RAM: %v", err))
	}
	b := &Builder{
		Space:  space,
		Scheme: s,
		next:   base / uint64(s.PageSize),
		end:    base/uint64(s.PageSize) + frames,
	}
	b.Root = b.NewTable()
	return b
}

// NewTable allocates a zeroed page and returns its PPN.
func (b *Builder) NewTable() uint64 {
	if b.next == b.end {
		panic("svtest: out of frames")
	}
	ppn := b.next
	b.next++
	return ppn
}

// SATP returns a satp value selecting b's scheme and root table.
func (b *Builder) SATP(asid uint16) uint64 {
	return sv.SATP{Mode: b.Scheme.Mode, ASID: asid, RootPPN: b.Root}.Encode()
}

// PTEAddr returns the physical address of entry index of the table at ppn.
func (b *Builder) PTEAddr(table, index uint64) uint64 {
	return table*uint64(b.Scheme.PageSize) + index*uint64(b.Scheme.EntrySize)
}

// SetPTE stores pte as entry index of the table at ppn.
func (b *Builder) SetPTE(table, index uint64, pte sv.PTE) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(pte))
	if err := b.Space.WritePhysical(b.PTEAddr(table, index), buf[:]); err != nil {
		panic(fmt.Sprintf("svtest: writing entry: %v", err))
	}
}

// PTE loads entry index of the table at ppn.
func (b *Builder) PTE(table, index uint64) sv.PTE {
	raw, err := b.Space.ReadPhysical(b.PTEAddr(table, index), uint32(b.Scheme.EntrySize))
	if err != nil {
		panic(fmt.Sprintf("svtest: reading entry: %v", err))
	}
	return sv.PTE(binary.LittleEndian.Uint64(raw))
}

// Index returns the table index va selects at level.
func (b *Builder) Index(va uint64, level int) uint64 {
	s := b.Scheme
	return bits.Register(va).Get(s.PageShift()+uint(level)*s.VPNWidth, s.VPNWidth)
}

// Map installs a leaf for va at level with the given PPN and flag bits,
// allocating intermediate tables as needed. FlagValid is always added.
func (b *Builder) Map(va uint64, level int, ppn uint64, flags uint64) error {
	return b.MapEntry(va, level, sv.MakePTE(ppn, flags|sv.FlagValid))
}

// MapEntry is like Map, but stores pte as is at level. This is used to
// plant malformed entries.
func (b *Builder) MapEntry(va uint64, level int, pte sv.PTE) error {
	table := b.Root
	for i := int(b.Scheme.Levels) - 1; i > level; i-- {
		index := b.Index(va, i)
		entry := b.PTE(table, index)
		switch {
		case !entry.Valid():
			next := b.NewTable()
			b.SetPTE(table, index, sv.MakePTE(next, sv.FlagValid))
			table = next
		case entry.IsLeaf():
			return fmt.Errorf("%#x is already mapped by a leaf at level %d", va, i)
		default:
			table = entry.PPN()
		}
	}
	b.SetPTE(table, b.Index(va, level), pte)
	return nil
}

// CountingReader counts the reads passed to a physmem.Reader.
type CountingReader struct {
	physmem.Reader
	reads atomic.Int64
}

// ReadPhysical implements physmem.Reader.ReadPhysical.
func (c *CountingReader) ReadPhysical(addr uint64, length uint32) ([]byte, error) {
	c.reads.Add(1)
	return c.Reader.ReadPhysical(addr, length)
}

// Reads returns the number of reads so far.
func (c *CountingReader) Reads() int64 {
	return c.reads.Load()
}
