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
	"svwalk.dev/svwalk/pkg/log"
	"svwalk.dev/svwalk/pkg/physmem"
)

// Step is one page-table entry visited by a walk.
type Step struct {
	Level int
	Addr  uint64
	PTE   PTE
}

// Translation is a resolved virtual address.
type Translation struct {
	// Scheme is the name of the scheme used.
	Scheme string

	Virtual  uint64
	Physical uint64

	// Access is the rights of the leaf entry. They are reported, not
	// checked against any access type.
	Access AccessType

	// Level is the level of the leaf entry. Levels above 0 are superpages.
	Level int

	// PageSize is the size of the page mapped by the leaf.
	PageSize uint64

	// PTE and PTEAddr are the leaf entry and its physical address.
	PTE     PTE
	PTEAddr uint64

	// Steps holds the visited entries, root first.
	Steps []Step
}

// Walk translates va with the page tables rooted at satp, reading entries
// from mem.
//
// Walk reads at most s.Levels entries, each from an address computed from
// the previous one. Nothing is retried: a failed read is reported as an
// AccessError fault wrapping the reader's error. Walk holds no state between
// calls and may run concurrently if mem allows it.
//
// The returned error is always a *Fault. TranslationDisabled is returned
// without any read when satp.Mode is bare.
//
// Precondition: s.Validate() == nil.
func Walk(s *Scheme, satp SATP, va uint64, mem physmem.Reader) (*Translation, error) {
	if !satp.Mode.Translating() {
		return nil, &Fault{Kind: TranslationDisabled, Virtual: va, Level: -1}
	}

	vAddr := bits.Register(va)
	shift := s.PageShift()
	levels := int(s.Levels)

	// Split the virtual page number into per-level indices.
	vpn := make([]uint64, levels)
	for i := range vpn {
		vpn[i] = vAddr.Get(shift+uint(i)*s.VPNWidth, s.VPNWidth)
	}

	var (
		i     = levels - 1
		a     = satp.RootPPN * uint64(s.PageSize)
		pte   PTE
		addr  uint64
		steps = make([]Step, 0, levels)
	)
	for {
		addr = a + vpn[i]*uint64(s.EntrySize)
		raw, err := mem.ReadPhysical(addr, uint32(s.EntrySize))
		if err != nil {
			return nil, &Fault{Kind: AccessError, Virtual: va, Level: i, Addr: addr, Err: err}
		}
		if pte, err = ParsePTE(raw); err != nil {
			return nil, &Fault{Kind: AccessError, Virtual: va, Level: i, Addr: addr, Err: err}
		}
		steps = append(steps, Step{Level: i, Addr: addr, PTE: pte})

		if !pte.Valid() || pte.IsReservedEncoding() {
			return nil, &Fault{Kind: InvalidEntry, Virtual: va, Level: i, Addr: addr, PTE: pte}
		}
		if pte.IsLeaf() {
			break
		}

		// A pointer to the next level.
		if i == 0 {
			return nil, &Fault{Kind: InvalidEntry, Virtual: va, Level: i, Addr: addr, PTE: pte}
		}
		i--
		a = pte.PPN() * uint64(s.PageSize)
	}

	// A superpage must have the PPN bits below its level clear.
	low := uint(i) * s.VPNWidth
	if i > 0 && pte.Register().Get(ptePPNShift, low) != 0 {
		return nil, &Fault{Kind: MisalignedSuperpage, Virtual: va, Level: i, Addr: addr, PTE: pte}
	}

	// Reassemble: the page offset and, for superpages, the low VPN
	// segments come from va; the PPN segments of the leaf's level and
	// above come from the entry.
	var pAddr bits.Register
	pAddr.Set(0, shift, vAddr.Get(0, shift))
	if i > 0 {
		pAddr.Set(shift, low, vAddr.Get(shift, low))
	}
	sLow, sHigh := s.PPNWidthBelow(i), s.PPNWidthFrom(i)
	pAddr.Set(shift+sLow, sHigh, pte.Register().Get(ptePPNShift+sLow, sHigh))

	t := &Translation{
		Scheme:   s.Name,
		Virtual:  va,
		Physical: pAddr.Value(),
		Access:   pte.Access(),
		Level:    i,
		PageSize: s.LevelPageSize(i),
		PTE:      pte,
		PTEAddr:  addr,
		Steps:    steps,
	}
	if log.IsLogging(log.Debug) {
		log.Debugf("%s: %#x -> %#x (%v, level %d)", s.Name, va, t.Physical, t.Access, i)
	}
	return t, nil
}

// String implements fmt.Stringer.
func (t *Translation) String() string {
	return fmt.Sprintf("%#x -> %#x [%v, level %d]", t.Virtual, t.Physical, t.Access, t.Level)
}
