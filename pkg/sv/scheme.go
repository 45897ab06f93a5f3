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

// Package sv emulates the RISC-V Sv39/Sv48 virtual address translation.
//
// Walk resolves a virtual address the way the MMU would, reading page-table
// entries from a physical memory source supplied by the caller. All schemes
// share one walk; they differ only in their Scheme table.
package sv

import (
	"fmt"
	"math/bits"
	"strings"

	"github.com/mohae/deepcopy"

	svbits "svwalk.dev/svwalk/pkg/bits"
)

// Scheme describes a paged virtual-memory scheme.
//
// The package-level schemes are shared; treat them as read-only. Use
// LookupScheme for a private copy.
type Scheme struct {
	// Name is the lower-case scheme name, e.g. "sv39".
	Name string

	// Mode is the satp mode that selects this scheme.
	Mode Mode

	// EntrySize is the size of a page-table entry in bytes.
	EntrySize uint

	// Levels is the number of page-table levels.
	Levels uint

	// PageSize is the size of a base page (and of a page table) in bytes.
	PageSize uint

	// VPNWidth is the width of each virtual page number segment.
	VPNWidth uint

	// VAWidth is the number of meaningful virtual address bits.
	VAWidth uint

	// PPNSegmentWidths holds the width of the PPN segment of each level,
	// level 0 first.
	PPNSegmentWidths []uint
}

var (
	// Sv39 is the three-level scheme with 39-bit virtual addresses.
	Sv39 = &Scheme{
		Name:             "sv39",
		Mode:             ModeSv39,
		EntrySize:        8,
		Levels:           3,
		PageSize:         4096,
		VPNWidth:         9,
		VAWidth:          39,
		PPNSegmentWidths: []uint{9, 9, 26},
	}

	// Sv48 is the four-level scheme with 48-bit virtual addresses.
	Sv48 = &Scheme{
		Name:             "sv48",
		Mode:             ModeSv48,
		EntrySize:        8,
		Levels:           4,
		PageSize:         4096,
		VPNWidth:         9,
		VAWidth:          48,
		PPNSegmentWidths: []uint{9, 9, 9, 17},
	}

	// Sv57 is the five-level scheme with 57-bit virtual addresses.
	Sv57 = &Scheme{
		Name:             "sv57",
		Mode:             ModeSv57,
		EntrySize:        8,
		Levels:           5,
		PageSize:         4096,
		VPNWidth:         9,
		VAWidth:          57,
		PPNSegmentWidths: []uint{9, 9, 9, 9, 8},
	}
)

// schemes lists the supported schemes in mode order.
var schemes = []*Scheme{Sv39, Sv48, Sv57}

// Schemes returns copies of all supported schemes.
func Schemes() []*Scheme {
	out := make([]*Scheme, 0, len(schemes))
	for _, s := range schemes {
		out = append(out, s.Copy())
	}
	return out
}

// LookupScheme returns a copy of the scheme with the given name, which is
// case insensitive.
func LookupScheme(name string) (*Scheme, error) {
	for _, s := range schemes {
		if strings.EqualFold(s.Name, name) {
			return s.Copy(), nil
		}
	}
	return nil, fmt.Errorf("unknown translation scheme %q", name)
}

// SchemeForMode returns a copy of the scheme selected by a satp mode.
func SchemeForMode(m Mode) (*Scheme, error) {
	for _, s := range schemes {
		if s.Mode == m {
			return s.Copy(), nil
		}
	}
	return nil, fmt.Errorf("no translation scheme for satp mode %v", m)
}

// Copy returns a deep copy of s.
func (s *Scheme) Copy() *Scheme {
	return deepcopy.Copy(s).(*Scheme)
}

// String implements fmt.Stringer.
func (s *Scheme) String() string {
	return s.Name
}

// Validate checks that the scheme describes a walk Walk can perform.
func (s *Scheme) Validate() error {
	switch {
	case s.Levels < 1:
		return fmt.Errorf("%s: levels must be at least 1, got %d", s.Name, s.Levels)
	case uint(len(s.PPNSegmentWidths)) != s.Levels:
		return fmt.Errorf("%s: %d PPN segment widths for %d levels", s.Name, len(s.PPNSegmentWidths), s.Levels)
	case svbits.SumWidths(s.PPNSegmentWidths) != RootPPNBits:
		return fmt.Errorf("%s: PPN segment widths sum to %d, want %d", s.Name, svbits.SumWidths(s.PPNSegmentWidths), RootPPNBits)
	case s.EntrySize != pteSize:
		return fmt.Errorf("%s: entry size must be %d, got %d", s.Name, pteSize, s.EntrySize)
	case s.PageSize == 0 || s.PageSize&(s.PageSize-1) != 0:
		return fmt.Errorf("%s: page size %d is not a power of two", s.Name, s.PageSize)
	case s.VPNWidth == 0:
		return fmt.Errorf("%s: VPN width must be positive", s.Name)
	case s.PageShift()+s.Levels*s.VPNWidth > svbits.Width:
		return fmt.Errorf("%s: %d levels of %d-bit VPNs do not fit a 64-bit address", s.Name, s.Levels, s.VPNWidth)
	}
	return nil
}

// PageShift returns log2(PageSize).
func (s *Scheme) PageShift() uint {
	return uint(bits.TrailingZeros64(uint64(s.PageSize)))
}

// PPNWidthBelow returns the total width of the PPN segments of the levels
// below level.
func (s *Scheme) PPNWidthBelow(level int) uint {
	return svbits.SumWidths(s.PPNSegmentWidths[:level])
}

// PPNWidthFrom returns the total width of the PPN segments of level and the
// levels above it.
func (s *Scheme) PPNWidthFrom(level int) uint {
	return svbits.SumWidths(s.PPNSegmentWidths[level:])
}

// LevelPageSize returns the size of the region mapped by a leaf at level.
func (s *Scheme) LevelPageSize(level int) uint64 {
	return uint64(s.PageSize) << (uint(level) * s.VPNWidth)
}
