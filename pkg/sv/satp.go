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

package sv

import (
	"fmt"

	"svwalk.dev/svwalk/pkg/bits"
)

// Mode is the MODE field of the satp register.
type Mode uint8

// Architectural satp modes for RV64.
const (
	ModeBare Mode = 0
	ModeSv39 Mode = 8
	ModeSv48 Mode = 9
	ModeSv57 Mode = 10
)

// String implements fmt.Stringer.
func (m Mode) String() string {
	switch m {
	case ModeBare:
		return "bare"
	case ModeSv39:
		return "sv39"
	case ModeSv48:
		return "sv48"
	case ModeSv57:
		return "sv57"
	default:
		return fmt.Sprintf("reserved(%d)", uint8(m))
	}
}

// Translating returns true if the mode enables translation.
func (m Mode) Translating() bool {
	return m != ModeBare
}

// satp field layout (RV64).
const (
	satpPPNShift  = 0
	satpPPNBits   = 44
	satpASIDShift = 44
	satpASIDBits  = 16
	satpModeShift = 60
	satpModeBits  = 4
)

// RootPPNBits is the width of the root PPN field of satp. The PPN segment
// widths of every scheme sum to this.
const RootPPNBits = satpPPNBits

// SATP is a decoded snapshot of the satp register.
type SATP struct {
	Mode    Mode
	ASID    uint16
	RootPPN uint64
}

// DecodeSATP decodes a raw satp value.
func DecodeSATP(v uint64) SATP {
	r := bits.Register(v)
	return SATP{
		Mode:    Mode(r.Get(satpModeShift, satpModeBits)),
		ASID:    uint16(r.Get(satpASIDShift, satpASIDBits)),
		RootPPN: r.Get(satpPPNShift, satpPPNBits),
	}
}

// Encode returns the raw satp value. Fields wider than their slot are
// truncated.
func (s SATP) Encode() uint64 {
	var r bits.Register
	r.Set(satpModeShift, satpModeBits, uint64(s.Mode))
	r.Set(satpASIDShift, satpASIDBits, uint64(s.ASID))
	r.Set(satpPPNShift, satpPPNBits, s.RootPPN)
	return r.Value()
}

// RootTable returns the physical address of the root page table.
func (s SATP) RootTable(sc *Scheme) uint64 {
	return s.RootPPN * uint64(sc.PageSize)
}

// String implements fmt.Stringer.
func (s SATP) String() string {
	return fmt.Sprintf("mode=%v asid=%#x ppn=%#x", s.Mode, s.ASID, s.RootPPN)
}
