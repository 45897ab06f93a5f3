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
	"errors"
	"fmt"
)

// FaultKind classifies why a translation produced no physical address.
type FaultKind int

const (
	// TranslationDisabled means satp.MODE is bare: addresses are not
	// translated. This is a valid outcome rather than an error condition.
	TranslationDisabled FaultKind = iota

	// InvalidEntry means an entry failed the validity check, or the walk
	// ran out of levels without reaching a leaf. The hardware raises a
	// page fault.
	InvalidEntry

	// MisalignedSuperpage means a leaf above level 0 has non-zero PPN bits
	// below its level. The hardware raises a page fault.
	MisalignedSuperpage

	// AccessError means physical memory or the control register could not
	// be read.
	AccessError
)

// String implements fmt.Stringer.
func (k FaultKind) String() string {
	switch k {
	case TranslationDisabled:
		return "translation disabled"
	case InvalidEntry:
		return "invalid page-table entry"
	case MisalignedSuperpage:
		return "misaligned superpage"
	case AccessError:
		return "access error"
	default:
		return fmt.Sprintf("FaultKind(%d)", int(k))
	}
}

// Fault is the error returned by a failed translation.
type Fault struct {
	Kind FaultKind

	// Virtual is the address being translated.
	Virtual uint64

	// Level is the level of the entry at fault, or -1 if no entry was
	// involved.
	Level int

	// Addr is the physical address of the entry at fault.
	Addr uint64

	// PTE is the entry at fault, if one was read.
	PTE PTE

	// Err is the underlying error for AccessError.
	Err error
}

// Sentinels for errors.Is. A *Fault matches the sentinel of its kind.
var (
	ErrTranslationDisabled = &Fault{Kind: TranslationDisabled, Level: -1}
	ErrInvalidEntry        = &Fault{Kind: InvalidEntry, Level: -1}
	ErrMisalignedSuperpage = &Fault{Kind: MisalignedSuperpage, Level: -1}
	ErrAccess              = &Fault{Kind: AccessError, Level: -1}
)

// Error implements error.Error.
func (f *Fault) Error() string {
	switch {
	case f.Kind == TranslationDisabled:
		return "no translation or protection: satp mode is bare"
	case f.Level < 0 && f.Err != nil:
		return fmt.Sprintf("translating %#x: %v: %v", f.Virtual, f.Kind, f.Err)
	case f.Level < 0:
		return f.Kind.String()
	case f.Err != nil:
		return fmt.Sprintf("translating %#x: %v at level %d entry %#x: %v", f.Virtual, f.Kind, f.Level, f.Addr, f.Err)
	default:
		return fmt.Sprintf("translating %#x: %v at level %d entry %#x: %v", f.Virtual, f.Kind, f.Level, f.Addr, f.PTE)
	}
}

// Unwrap returns the underlying error.
func (f *Fault) Unwrap() error {
	return f.Err
}

// Is implements errors.Is by kind.
func (f *Fault) Is(target error) bool {
	t, ok := target.(*Fault)
	return ok && t.Kind == f.Kind
}

// IsTranslationDisabled returns true if err reports a bare satp mode.
func IsTranslationDisabled(err error) bool {
	return errors.Is(err, ErrTranslationDisabled)
}

// KindOf returns the fault kind of err, and false if err is not a *Fault.
func KindOf(err error) (FaultKind, bool) {
	var f *Fault
	if !errors.As(err, &f) {
		return 0, false
	}
	return f.Kind, true
}
