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
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/google/subcommands"
	"svwalk.dev/svwalk/pkg/log"
	"svwalk.dev/svwalk/pkg/sv"
	"svwalk.dev/svwalk/svwalk/cmd/util"
	"svwalk.dev/svwalk/svwalk/config"
	"svwalk.dev/svwalk/svwalk/flag"
)

// noTranslation is reported for addresses of a target with translation
// disabled.
const noTranslation = "No translation or protection"

// Translate implements subcommands.Command for the "translate" command.
type Translate struct {
	output      string
	trace       bool
	parallelism int

	// stdout is where output is written, os.Stdout if nil.
	stdout io.Writer
}

// Name implements subcommands.Command.Name.
func (*Translate) Name() string {
	return "translate"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Translate) Synopsis() string {
	return "translate virtual addresses to physical addresses"
}

// Usage implements subcommands.Command.Usage.
func (*Translate) Usage() string {
	return `translate [flags] <vaddr>... - walk the page tables of the target described by --satp and --region for each address.

Addresses are read as Go integer literals, e.g. 0x80001000. Faults are
reported per address; the command fails if any address faults. A target with
translation disabled is not an error.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (t *Translate) SetFlags(f *flag.FlagSet) {
	f.StringVar(&t.output, "o", outputAuto, outputUsage)
	f.BoolVar(&t.trace, "trace", false, "show the page-table entries visited by each walk.")
	f.IntVar(&t.parallelism, "parallelism", 0, "maximum number of concurrent walks, 0 for no limit.")
}

// Execute implements subcommands.Command.Execute.
func (t *Translate) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() == 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	conf := args[0].(*config.Config)

	vas, err := parseValues(f.Args())
	if err != nil {
		return util.Errorf("%v", err)
	}
	w := stdout(t.stdout)
	out, err := lookupOutput(t.output, w)
	if err != nil {
		return util.Errorf("%v", err)
	}
	scheme, err := conf.TranslationScheme()
	if err != nil {
		return util.Errorf("%v", err)
	}
	space, err := conf.OpenSpace(ctx)
	if err != nil {
		return util.Errorf("%v", err)
	}
	defer space.Close()

	tr := &sv.Translator{
		Memory:  space,
		Control: sv.StaticControl(uint64(conf.SATP)),
	}
	results, err := tr.TranslateAll(ctx, scheme, vas, t.parallelism)
	if err != nil {
		return util.Errorf("translating: %v", err)
	}

	status := subcommands.ExitSuccess
	faultLog := log.RateLimitedLogger(log.Log(), conf.FaultLogInterval)
	for _, r := range results {
		if r.Err == nil || sv.IsTranslationDisabled(r.Err) {
			continue
		}
		faultLog.Warningf("%v", r.Err)
		status = subcommands.ExitFailure
	}

	if err := out(w, translationDocument(results, t.trace)); err != nil {
		return util.Errorf("writing output: %v", err)
	}
	return status
}

// translationRecord is the json and yaml form of a translation result.
type translationRecord struct {
	Virtual  string       `json:"virtual" yaml:"virtual"`
	Physical string       `json:"physical,omitempty" yaml:"physical,omitempty"`
	Scheme   string       `json:"scheme,omitempty" yaml:"scheme,omitempty"`
	Access   string       `json:"access,omitempty" yaml:"access,omitempty"`
	Level    int          `json:"level" yaml:"level"`
	PageSize uint64       `json:"page_size,omitempty" yaml:"page_size,omitempty"`
	PTE      string       `json:"pte,omitempty" yaml:"pte,omitempty"`
	PTEAddr  string       `json:"pte_addr,omitempty" yaml:"pte_addr,omitempty"`
	Fault    string       `json:"fault,omitempty" yaml:"fault,omitempty"`
	Error    string       `json:"error,omitempty" yaml:"error,omitempty"`
	Steps    []stepRecord `json:"steps,omitempty" yaml:"steps,omitempty"`
}

type stepRecord struct {
	Level int    `json:"level" yaml:"level"`
	Addr  string `json:"addr" yaml:"addr"`
	PTE   string `json:"pte" yaml:"pte"`
	Flags string `json:"flags" yaml:"flags"`
}

func newStepRecords(steps []sv.Step) []stepRecord {
	var rs []stepRecord
	for _, s := range steps {
		rs = append(rs, stepRecord{
			Level: s.Level,
			Addr:  hex(s.Addr),
			PTE:   hex(uint64(s.PTE)),
			Flags: s.PTE.Flags(),
		})
	}
	return rs
}

// newTranslationRecord converts a result. Steps are only included if trace
// is set.
func newTranslationRecord(r sv.Result, trace bool) translationRecord {
	rec := translationRecord{Virtual: hex(r.Virtual), Level: -1}
	if r.Err != nil {
		var f *sv.Fault
		switch {
		case sv.IsTranslationDisabled(r.Err):
			rec.Fault = noTranslation
		case errors.As(r.Err, &f):
			rec.Fault = f.Kind.String()
			rec.Error = f.Error()
			rec.Level = f.Level
			if f.Level >= 0 {
				rec.PTEAddr = hex(f.Addr)
				rec.PTE = hex(uint64(f.PTE))
			}
		default:
			rec.Error = r.Err.Error()
		}
		return rec
	}
	t := r.Translation
	rec.Physical = hex(t.Physical)
	rec.Scheme = t.Scheme
	rec.Access = t.Access.String()
	rec.Level = t.Level
	rec.PageSize = t.PageSize
	rec.PTE = hex(uint64(t.PTE))
	rec.PTEAddr = hex(t.PTEAddr)
	if trace {
		rec.Steps = newStepRecords(t.Steps)
	}
	return rec
}

// translationDocument builds the output for results. In table form, visited
// entries follow each address when trace is set.
func translationDocument(results []sv.Result, trace bool) *document {
	d := &document{
		header: []string{"VIRTUAL", "PHYSICAL", "ACCESS", "LEVEL", "PAGE", "DETAIL"},
	}
	records := make([]translationRecord, 0, len(results))
	for _, r := range results {
		rec := newTranslationRecord(r, trace)
		records = append(records, rec)

		level := ""
		if rec.Level >= 0 {
			level = strconv.Itoa(rec.Level)
		}
		var row []string
		switch {
		case rec.Fault == noTranslation:
			row = []string{rec.Virtual, "", "", "", "", noTranslation}
		case r.Err != nil:
			row = []string{rec.Virtual, "", "", level, "", rec.Error}
		default:
			row = []string{rec.Virtual, rec.Physical, rec.Access, level, sizeString(rec.PageSize), "pte " + r.Translation.PTE.String()}
		}
		d.rows = append(d.rows, row)

		if trace && r.Translation != nil {
			for _, s := range r.Translation.Steps {
				d.rows = append(d.rows, []string{"", "", "", strconv.Itoa(s.Level), "", fmt.Sprintf("entry %#x: %v", s.Addr, s.PTE)})
			}
		}
	}
	d.value = records
	return d
}
