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

package bits

import "fmt"

// RangeError is the panic value for a field that does not fit in a
// Register.
type RangeError struct {
	BitIndex uint
	Size     uint
}

// Error implements error.Error.
func (e *RangeError) Error() string {
	return fmt.Sprintf("bit field [%d, %d) exceeds %d-bit register", e.BitIndex, e.BitIndex+e.Size, Width)
}

// CheckField returns a *RangeError if [bitIndex, bitIndex+size) does not fit
// in a Register.
func CheckField(bitIndex, size uint) error {
	// Compare without adding, so that huge arguments cannot wrap.
	if size > Width || bitIndex > Width-size {
		return &RangeError{BitIndex: bitIndex, Size: size}
	}
	return nil
}

func mustFit(bitIndex, size uint) {
	if err := CheckField(bitIndex, size); err != nil {
		panic(err)
	}
}

// Register is a 64-bit machine word accessed by contiguous bit fields.
//
// The zero value is a register with all bits clear. A Register is a plain
// value: copies are independent.
type Register uint64

// Value returns the full 64-bit word.
func (r Register) Value() uint64 {
	return uint64(r)
}

// Get returns bits [bitIndex, bitIndex+size) of r, right-aligned to bit 0.
//
// Get panics with a *RangeError if bitIndex+size exceeds 64.
func (r Register) Get(bitIndex, size uint) uint64 {
	mustFit(bitIndex, size)
	return (uint64(r) & FieldMask64(bitIndex, size)) >> bitIndex
}

// With returns a copy of r with bits [bitIndex, bitIndex+size) replaced by
// the low size bits of value. All other bits are unchanged.
//
// With panics with a *RangeError if bitIndex+size exceeds 64.
func (r Register) With(bitIndex, size uint, value uint64) Register {
	mustFit(bitIndex, size)
	mask := FieldMask64(bitIndex, size)
	return Register((uint64(r) &^ mask) | ((value << bitIndex) & mask))
}

// Set replaces bits [bitIndex, bitIndex+size) of r in place. See With.
func (r *Register) Set(bitIndex, size uint, value uint64) {
	*r = r.With(bitIndex, size, value)
}

// Bit returns whether bit i is set.
func (r Register) Bit(i uint) bool {
	return r.Get(i, 1) != 0
}

// String implements fmt.Stringer.
func (r Register) String() string {
	return fmt.Sprintf("%#016x", uint64(r))
}
