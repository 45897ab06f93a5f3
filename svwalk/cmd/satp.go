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
	"svwalk.dev/svwalk/svwalk/config"
	"svwalk.dev/svwalk/svwalk/flag"
)

// Satp implements subcommands.Command for the "satp" command.
type Satp struct {
	output string
	stdout io.Writer
}

// Name implements subcommands.Command.Name.
func (*Satp) Name() string {
	return "satp"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Satp) Synopsis() string {
	return "decode a satp register value"
}

// Usage implements subcommands.Command.Usage.
func (*Satp) Usage() string {
	return `satp [flags] [value] - decode value, or the --satp setting if no value is given.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (s *Satp) SetFlags(f *flag.FlagSet) {
	f.StringVar(&s.output, "o", outputAuto, outputUsage)
}

type satpRecord struct {
	Raw       string `json:"raw" yaml:"raw"`
	Mode      string `json:"mode" yaml:"mode"`
	ASID      uint16 `json:"asid" yaml:"asid"`
	RootPPN   string `json:"root_ppn" yaml:"root_ppn"`
	RootTable string `json:"root_table,omitempty" yaml:"root_table,omitempty"`
	Levels    uint   `json:"levels,omitempty" yaml:"levels,omitempty"`
}

// satpDocument describes raw. The root table address and level count are
// only known for modes with a scheme.
func satpDocument(raw uint64) *document {
	satp := sv.DecodeSATP(raw)
	rec := satpRecord{
		Raw:     hex(raw),
		Mode:    satp.Mode.String(),
		ASID:    satp.ASID,
		RootPPN: hex(satp.RootPPN),
	}
	if s, err := sv.SchemeForMode(satp.Mode); err == nil {
		rec.RootTable = hex(satp.RootTable(s))
		rec.Levels = s.Levels
	}
	rows := [][]string{
		{"raw", rec.Raw},
		{"mode", rec.Mode},
		{"asid", hex(uint64(rec.ASID))},
		{"root_ppn", rec.RootPPN},
	}
	switch {
	case !satp.Mode.Translating():
		rows = append(rows, []string{"translation", noTranslation})
	case rec.RootTable != "":
		rows = append(rows, []string{"root_table", rec.RootTable})
	default:
		rows = append(rows, []string{"translation", "unsupported mode"})
	}
	return &document{
		header: []string{"FIELD", "VALUE"},
		rows:   rows,
		value:  rec,
	}
}

// Execute implements subcommands.Command.Execute.
func (s *Satp) Execute(_ context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() > 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	conf := args[0].(*config.Config)

	raw := uint64(conf.SATP)
	if f.NArg() == 1 {
		vs, err := parseValues(f.Args())
		if err != nil {
			return util.Errorf("%v", err)
		}
		raw = vs[0]
	}
	w := stdout(s.stdout)
	out, err := lookupOutput(s.output, w)
	if err != nil {
		return util.Errorf("%v", err)
	}
	if err := out(w, satpDocument(raw)); err != nil {
		return util.Errorf("writing output: %v", err)
	}
	return subcommands.ExitSuccess
}
