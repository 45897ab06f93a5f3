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
	"fmt"
	"io"
	"strconv"

	"github.com/google/subcommands"
	"svwalk.dev/svwalk/pkg/sv"
	"svwalk.dev/svwalk/svwalk/cmd/util"
	"svwalk.dev/svwalk/svwalk/flag"
)

// Schemes implements subcommands.Command for the "schemes" command.
type Schemes struct {
	output string
	stdout io.Writer
}

// Name implements subcommands.Command.Name.
func (*Schemes) Name() string {
	return "schemes"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Schemes) Synopsis() string {
	return "print the supported translation schemes"
}

// Usage implements subcommands.Command.Usage.
func (*Schemes) Usage() string {
	return `schemes [flags] - print the page-table layout of each supported scheme.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (s *Schemes) SetFlags(f *flag.FlagSet) {
	f.StringVar(&s.output, "o", outputAuto, outputUsage)
}

type schemeRecord struct {
	Name             string `json:"name" yaml:"name"`
	Mode             uint8  `json:"mode" yaml:"mode"`
	Levels           uint   `json:"levels" yaml:"levels"`
	VAWidth          uint   `json:"va_bits" yaml:"va_bits"`
	PageSize         uint   `json:"page_size" yaml:"page_size"`
	EntrySize        uint   `json:"entry_size" yaml:"entry_size"`
	VPNWidth         uint   `json:"vpn_bits" yaml:"vpn_bits"`
	PPNSegmentWidths []uint `json:"ppn_segment_bits" yaml:"ppn_segment_bits"`
}

func schemesDocument(schemes []*sv.Scheme) *document {
	d := &document{header: []string{"NAME", "MODE", "LEVELS", "VA_BITS", "PAGE", "LARGEST", "PPN_SEGMENTS"}}
	records := make([]schemeRecord, 0, len(schemes))
	for _, s := range schemes {
		records = append(records, schemeRecord{
			Name:             s.Name,
			Mode:             uint8(s.Mode),
			Levels:           s.Levels,
			VAWidth:          s.VAWidth,
			PageSize:         s.PageSize,
			EntrySize:        s.EntrySize,
			VPNWidth:         s.VPNWidth,
			PPNSegmentWidths: s.PPNSegmentWidths,
		})
		d.rows = append(d.rows, []string{
			s.Name,
			strconv.Itoa(int(s.Mode)),
			strconv.FormatUint(uint64(s.Levels), 10),
			strconv.FormatUint(uint64(s.VAWidth), 10),
			sizeString(uint64(s.PageSize)),
			sizeString(s.LevelPageSize(int(s.Levels) - 1)),
			fmt.Sprint(s.PPNSegmentWidths),
		})
	}
	d.value = records
	return d
}

// Execute implements subcommands.Command.Execute.
func (s *Schemes) Execute(_ context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	w := stdout(s.stdout)
	out, err := lookupOutput(s.output, w)
	if err != nil {
		return util.Errorf("%v", err)
	}
	if err := out(w, schemesDocument(sv.Schemes())); err != nil {
		return util.Errorf("writing output: %v", err)
	}
	return subcommands.ExitSuccess
}
