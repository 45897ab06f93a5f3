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

package cmd

import (
	"context"
	"io"

	"github.com/google/subcommands"
	"svwalk.dev/svwalk/pkg/sv"
	"svwalk.dev/svwalk/svwalk/cmd/util"
	"svwalk.dev/svwalk/svwalk/flag"
)

// PTE implements subcommands.Command for the "pte" command.
type PTE struct {
	output string
	stdout io.Writer
}

// Name implements subcommands.Command.Name.
func (*PTE) Name() string {
	return "pte"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*PTE) Synopsis() string {
	return "decode raw page-table entries"
}

// Usage implements subcommands.Command.Usage.
func (*PTE) Usage() string {
	return `pte [flags] <value>... - decode each value as a page-table entry.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (p *PTE) SetFlags(f *flag.FlagSet) {
	f.StringVar(&p.output, "o", outputAuto, outputUsage)
}

type pteRecord struct {
	Raw    string `json:"raw" yaml:"raw"`
	PPN    string `json:"ppn" yaml:"ppn"`
	Flags  string `json:"flags" yaml:"flags"`
	RSW    uint64 `json:"rsw" yaml:"rsw"`
	Kind   string `json:"kind" yaml:"kind"`
	Access string `json:"access,omitempty" yaml:"access,omitempty"`
}

// pteKind classifies an entry the way a walk would treat it.
func pteKind(p sv.PTE) string {
	switch {
	case !p.Valid():
		return "invalid"
	case p.IsReservedEncoding():
		return "reserved"
	case p.IsLeaf():
		return "leaf"
	default:
		return "pointer"
	}
}

func pteDocument(ptes []sv.PTE) *document {
	d := &document{header: []string{"PTE", "PPN", "FLAGS", "RSW", "KIND", "ACCESS"}}
	records := make([]pteRecord, 0, len(ptes))
	for _, p := range ptes {
		rec := pteRecord{
			Raw:   hex(uint64(p)),
			PPN:   hex(p.PPN()),
			Flags: p.Flags(),
			RSW:   p.RSW(),
			Kind:  pteKind(p),
		}
		if rec.Kind == "leaf" {
			rec.Access = p.Access().String()
		}
		records = append(records, rec)
		d.rows = append(d.rows, []string{rec.Raw, rec.PPN, rec.Flags, hex(rec.RSW), rec.Kind, rec.Access})
	}
	d.value = records
	return d
}

// Execute implements subcommands.Command.Execute.
func (p *PTE) Execute(_ context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	if f.NArg() == 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	vs, err := parseValues(f.Args())
	if err != nil {
		return util.Errorf("%v", err)
	}
	ptes := make([]sv.PTE, 0, len(vs))
	for _, v := range vs {
		ptes = append(ptes, sv.PTE(v))
	}
	w := stdout(p.stdout)
	out, err := lookupOutput(p.output, w)
	if err != nil {
		return util.Errorf("%v", err)
	}
	if err := out(w, pteDocument(ptes)); err != nil {
		return util.Errorf("writing output: %v", err)
	}
	return subcommands.ExitSuccess
}
