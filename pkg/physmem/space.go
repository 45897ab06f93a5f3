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

package physmem

import (
	"fmt"
	"io"
	"sync"

	"github.com/google/btree"
)

// btreeDegree is the degree of the region index. Address spaces hold few
// regions, so a small degree keeps nodes compact.
const btreeDegree = 8

// mapping places a region at a physical base address.
type mapping struct {
	base   uint64
	region Region
}

// last returns the last address in the mapping. A mapping may end at the top
// of the address space, so the exclusive end is not representable.
func (m mapping) last() uint64 {
	return m.base + m.region.Size() - 1
}

func mappingLess(a, b mapping) bool {
	return a.base < b.base
}

// Space is a physical address space made of non-overlapping regions.
//
// Space is safe for concurrent use.
type Space struct {
	mu sync.RWMutex

	// regions is indexed by base address.
	regions *btree.BTreeG[mapping]
}

// NewSpace returns an empty address space.
func NewSpace() *Space {
	return &Space{
		regions: btree.NewG[mapping](btreeDegree, mappingLess),
	}
}

// Add places r at base.
//
// Precondition: r.Size() must not change while r is part of the space.
func (s *Space) Add(base uint64, r Region) error {
	size := r.Size()
	if size == 0 {
		return fmt.Errorf("empty region at %#x", base)
	}
	if size-1 > ^uint64(0)-base {
		return fmt.Errorf("region [%#x, +%#x) overflows the address space", base, size)
	}
	m := mapping{base: base, region: r}

	s.mu.Lock()
	defer s.mu.Unlock()

	// The closest region at or below base must end before it, and the
	// closest region above base must start after the new one ends.
	var conflict *mapping
	s.regions.DescendLessOrEqual(m, func(prev mapping) bool {
		if prev.last() >= base {
			conflict = &prev
		}
		return false
	})
	if conflict == nil {
		s.regions.AscendGreaterOrEqual(m, func(next mapping) bool {
			if next.base <= m.last() {
				conflict = &next
			}
			return false
		})
	}
	if conflict != nil {
		return fmt.Errorf("region [%#x, %#x] overlaps [%#x, %#x]", base, m.last(), conflict.base, conflict.last())
	}
	s.regions.ReplaceOrInsert(m)
	return nil
}

// Remove removes the region at base, returning it.
func (s *Space) Remove(base uint64) (Region, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.regions.Delete(mapping{base: base})
	if !ok {
		return nil, false
	}
	return m.region, true
}

// RegionInfo describes a region placed in a Space.
type RegionInfo struct {
	Base uint64
	Size uint64
}

// Regions returns the placed regions in address order.
func (s *Space) Regions() []RegionInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	infos := make([]RegionInfo, 0, s.regions.Len())
	s.regions.Ascend(func(m mapping) bool {
		infos = append(infos, RegionInfo{Base: m.base, Size: m.region.Size()})
		return true
	})
	return infos
}

// Close removes every region and closes those that implement io.Closer. It
// returns the first error encountered.
func (s *Space) Close() error {
	s.mu.Lock()
	old := s.regions
	s.regions = btree.NewG[mapping](btreeDegree, mappingLess)
	s.mu.Unlock()

	var firstErr error
	old.Ascend(func(m mapping) bool {
		if c, ok := m.region.(io.Closer); ok {
			if err := c.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		return true
	})
	return firstErr
}

// forEachChunk calls fn for each piece of [addr, addr+length) in address
// order, with the region holding it and the offset into that region. It
// fails with ErrUnmapped at the first byte that no region holds.
//
// Preconditions: s.mu must be locked.
func (s *Space) forEachChunk(addr, length uint64, fn func(m mapping, off, n, done uint64) error) error {
	if length > 0 && length-1 > ^uint64(0)-addr {
		return &AccessError{Addr: addr, Length: length, Err: ErrUnmapped}
	}
	var done uint64
	for done < length {
		cur := addr + done
		var (
			found bool
			m     mapping
		)
		s.regions.DescendLessOrEqual(mapping{base: cur}, func(prev mapping) bool {
			m, found = prev, prev.last() >= cur
			return false
		})
		if !found {
			return &AccessError{Addr: addr, Length: length, Err: fmt.Errorf("%w: %#x", ErrUnmapped, cur)}
		}
		off := cur - m.base
		n := m.region.Size() - off
		if rem := length - done; n > rem {
			n = rem
		}
		if err := fn(m, off, n, done); err != nil {
			return &AccessError{Addr: addr, Length: length, Err: err}
		}
		done += n
	}
	return nil
}

// ReadPhysical implements Reader.ReadPhysical. Reads may span adjacent
// regions.
func (s *Space) ReadPhysical(addr uint64, length uint32) ([]byte, error) {
	buf := make([]byte, length)
	s.mu.RLock()
	defer s.mu.RUnlock()
	err := s.forEachChunk(addr, uint64(length), func(m mapping, off, n, done uint64) error {
		got, err := m.region.ReadAt(buf[done:done+n], int64(off))
		if uint64(got) == n {
			// io.ReaderAt may report io.EOF along with a full read at the
			// end of a region.
			return nil
		}
		if err == nil {
			err = io.ErrUnexpectedEOF
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return buf, nil
}

// WritePhysical writes data at addr. Every region touched must implement
// io.WriterAt.
func (s *Space) WritePhysical(addr uint64, data []byte) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.forEachChunk(addr, uint64(len(data)), func(m mapping, off, n, done uint64) error {
		w, ok := m.region.(io.WriterAt)
		if !ok {
			return fmt.Errorf("region at %#x is read-only", m.base)
		}
		_, err := w.WriteAt(data[done:done+n], int64(off))
		return err
	})
}
