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
	"encoding/binary"
	"fmt"
	"strings"

	"svwalk.dev/svwalk/pkg/bits"
)

// pteSize is the size of an RV64 page-table entry.
const pteSize = 8

// PTE flag bits.
const (
	pteValid      = 0
	pteReadable   = 1
	pteWriteable  = 2
	pteExecutable = 3
	pteUser       = 4
	pteGlobal     = 5
	pteAccessed   = 6
	pteDirty      = 7
)

// Field positions within a PTE.
const (
	pteRSWShift = 8
	pteRSWBits  = 2
	ptePPNShift = 10
	ptePPNBits  = 44
)

// PTE is an RV64 page-table entry.
type PTE uint64

// ParsePTE decodes a little-endian entry.
func ParsePTE(b []byte) (PTE, error) {
	if len(b) != pteSize {
		return 0, fmt.Errorf("page-table entry must be %d bytes, got %d", pteSize, len(b))
	}
	return PTE(binary.LittleEndian.Uint64(b)), nil
}

// MakePTE returns an entry with the given PPN and flag bits. Only the low
// ten bits of flags are used.
func MakePTE(ppn uint64, flags uint64) PTE {
	return PTE(bits.Register(0).With(ptePPNShift, ptePPNBits, ppn).With(0, ptePPNShift, flags))
}

// Flag masks for MakePTE.
var (
	FlagValid      = bits.MaskOf64(pteValid)
	FlagRead       = bits.MaskOf64(pteReadable)
	FlagWrite      = bits.MaskOf64(pteWriteable)
	FlagExecute    = bits.MaskOf64(pteExecutable)
	FlagUser       = bits.MaskOf64(pteUser)
	FlagGlobal     = bits.MaskOf64(pteGlobal)
	FlagAccessed   = bits.MaskOf64(pteAccessed)
	FlagDirty      = bits.MaskOf64(pteDirty)
	FlagsReadWrite = bits.Mask64(pteValid, pteReadable, pteWriteable)
)

func (p PTE) bit(i int) bool {
	return bits.IsOn64(uint64(p), bits.MaskOf64(i))
}

// Register returns the entry as a bit-field register.
func (p PTE) Register() bits.Register {
	return bits.Register(p)
}

// Valid returns true if the V bit is set.
func (p PTE) Valid() bool { return p.bit(pteValid) }

// Readable returns true if the R bit is set.
func (p PTE) Readable() bool { return p.bit(pteReadable) }

// Writeable returns true if the W bit is set.
func (p PTE) Writeable() bool { return p.bit(pteWriteable) }

// Executable returns true if the X bit is set.
func (p PTE) Executable() bool { return p.bit(pteExecutable) }

// User returns true if the U bit is set.
func (p PTE) User() bool { return p.bit(pteUser) }

// Global returns true if the G bit is set.
func (p PTE) Global() bool { return p.bit(pteGlobal) }

// Accessed returns true if the A bit is set.
func (p PTE) Accessed() bool { return p.bit(pteAccessed) }

// Dirty returns true if the D bit is set.
func (p PTE) Dirty() bool { return p.bit(pteDirty) }

// RSW returns the two bits reserved for supervisor software.
func (p PTE) RSW() uint64 {
	return p.Register().Get(pteRSWShift, pteRSWBits)
}

// PPN returns the full 44-bit physical page number field.
func (p PTE) PPN() uint64 {
	return p.Register().Get(ptePPNShift, ptePPNBits)
}

// IsLeaf returns true if the entry maps memory rather than pointing to the
// next level: R or X is set.
func (p PTE) IsLeaf() bool {
	return bits.IsAnyOn64(uint64(p), bits.Mask64(pteReadable, pteExecutable))
}

// IsReservedEncoding returns true for the write-only encoding (W without R),
// which is reserved.
func (p PTE) IsReservedEncoding() bool {
	return p.Writeable() && !p.Readable()
}

// Access returns the rights granted by a leaf entry.
func (p PTE) Access() AccessType {
	return AccessType{
		Read:    p.Readable(),
		Write:   p.Writeable(),
		Execute: p.Executable(),
	}
}

// Flags returns the flag letters from D down to V, in the order of the
// architecture manual's PTE diagram. A '-' marks a clear bit.
func (p PTE) Flags() string {
	const letters = "vrwxugad"
	var b strings.Builder
	for i := len(letters) - 1; i >= 0; i-- {
		if p.bit(i) {
			b.WriteByte(letters[i])
		} else {
			b.WriteByte('-')
		}
	}
	return b.String()
}

// String implements fmt.Stringer.
func (p PTE) String() string {
	return fmt.Sprintf("%#016x [%s ppn=%#x]", uint64(p), p.Flags(), p.PPN())
}

// AccessType specifies memory access rights.
type AccessType struct {
	// Read is read access.
	Read bool

	// Write is write access.
	Write bool

	// Execute is executable access.
	Execute bool
}

// Any returns true iff at least one of Read, Write or Execute is true.
func (a AccessType) Any() bool {
	return a.Read || a.Write || a.Execute
}

// String returns a pretty representation of access. This looks like the
// familiar r-x, rw-, etc. and can be relied on as such.
func (a AccessType) String() string {
	var b [3]byte
	b[0], b[1], b[2] = '-', '-', '-'
	if a.Read {
		b[0] = 'r'
	}
	if a.Write {
		b[1] = 'w'
	}
	if a.Execute {
		b[2] = 'x'
	}
	return string(b[:])
}
