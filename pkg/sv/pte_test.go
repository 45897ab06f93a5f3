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

package sv_test

import (
	"testing"

	"svwalk.dev/svwalk/pkg/sv"
)

func TestParsePTE(t *testing.T) {
	p, err := sv.ParsePTE([]byte{0xcf, 0x05, 0, 0x20, 0, 0, 0, 0})
	if err != nil {
		t.Fatalf("ParsePTE failed: %v", err)
	}
	if got, want := uint64(p), uint64(0x200005cf); got != want {
		t.Errorf("got %#x, wanted %#x", got, want)
	}
	if got, want := p.PPN(), uint64(0x80001); got != want {
		t.Errorf("PPN() = %#x, wanted %#x", got, want)
	}
	if got, want := p.Flags(), "da--xwrv"; got != want {
		t.Errorf("Flags() = %q, wanted %q", got, want)
	}
	if got, want := p.RSW(), uint64(1); got != want {
		t.Errorf("RSW() = %d, wanted %d", got, want)
	}

	for _, b := range [][]byte{nil, make([]byte, 4), make([]byte, 9)} {
		if _, err := sv.ParsePTE(b); err == nil {
			t.Errorf("ParsePTE(%d bytes) succeeded", len(b))
		}
	}
}

func TestPTEClassification(t *testing.T) {
	for _, tc := range []struct {
		flags    uint64
		leaf     bool
		reserved bool
		access   string
	}{
		{sv.FlagValid, false, false, "---"},
		{sv.FlagValid | sv.FlagRead, true, false, "r--"},
		{sv.FlagValid | sv.FlagWrite, false, true, "-w-"},
		{sv.FlagsReadWrite, true, false, "rw-"},
		{sv.FlagValid | sv.FlagExecute, true, false, "--x"},
		{sv.FlagValid | sv.FlagWrite | sv.FlagExecute, true, true, "-wx"},
		{sv.FlagsReadWrite | sv.FlagExecute, true, false, "rwx"},
	} {
		p := sv.MakePTE(0x1234, tc.flags)
		if p.IsLeaf() != tc.leaf || p.IsReservedEncoding() != tc.reserved || p.Access().String() != tc.access {
			t.Errorf("%v: leaf %v reserved %v access %v, wanted %v %v %v",
				p, p.IsLeaf(), p.IsReservedEncoding(), p.Access(), tc.leaf, tc.reserved, tc.access)
		}
		if p.PPN() != 0x1234 {
			t.Errorf("%v: PPN() = %#x", p, p.PPN())
		}
	}
}

func TestPTEFlagAccessors(t *testing.T) {
	p := sv.MakePTE(0, sv.FlagUser|sv.FlagGlobal|sv.FlagAccessed|sv.FlagDirty)
	if p.Valid() || p.Readable() || p.Writeable() || p.Executable() {
		t.Errorf("%v: unexpected permission bits", p)
	}
	if !p.User() || !p.Global() || !p.Accessed() || !p.Dirty() {
		t.Errorf("%v: missing U, G, A or D", p)
	}
	if got, want := p.Flags(), "dagu----"; got != want {
		t.Errorf("Flags() = %q, wanted %q", got, want)
	}
}

func TestMakePTEMasks(t *testing.T) {
	// Flags above bit 9 and PPN bits above 44 are dropped.
	p := sv.MakePTE(1<<44|5, 1<<10|sv.FlagValid)
	if got, want := uint64(p), uint64(5<<10|1); got != want {
		t.Errorf("MakePTE = %#x, wanted %#x", got, want)
	}
}
