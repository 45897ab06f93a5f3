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
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"golang.org/x/term"
	"gopkg.in/yaml.v2"
)

// document is the output of a command: a header and rows for the table and
// csv formats, and a value for the json and yaml formats.
type document struct {
	header []string
	rows   [][]string
	value  any
}

type outputFunc func(io.Writer, *document) error

// outputAuto selects table output on a terminal and json otherwise.
const outputAuto = "auto"

// A map of output type names to output functions.
var outputMap = map[string]outputFunc{
	"table": outputTable,
	"json":  outputJSON,
	"csv":   outputCSV,
	"yaml":  outputYAML,
}

const outputUsage = "Output format (auto, table, csv, json, yaml)."

// lookupOutput returns the output function for the named format, resolving
// auto against w.
func lookupOutput(name string, w io.Writer) (outputFunc, error) {
	if name == outputAuto {
		name = "json"
		if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
			name = "table"
		}
	}
	out, ok := outputMap[name]
	if !ok {
		return nil, fmt.Errorf("unsupported output format %q", name)
	}
	return out, nil
}

// outputTable outputs the document in tabular format.
func outputTable(w io.Writer, d *document) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if _, err := fmt.Fprintln(tw, strings.Join(d.header, "\t")); err != nil {
		return err
	}
	for _, row := range d.rows {
		if _, err := fmt.Fprintln(tw, strings.Join(row, "\t")); err != nil {
			return err
		}
	}
	return tw.Flush()
}

// outputJSON outputs the document in JSON format.
func outputJSON(w io.Writer, d *document) error {
	e := json.NewEncoder(w)
	e.SetIndent("", "  ")
	return e.Encode(d.value)
}

// outputCSV outputs the document rows in CSV format.
func outputCSV(w io.Writer, d *document) error {
	csvWriter := csv.NewWriter(w)
	header := make([]string, len(d.header))
	for i, h := range d.header {
		header[i] = strings.ToLower(h)
	}
	if err := csvWriter.Write(header); err != nil {
		return err
	}
	if err := csvWriter.WriteAll(d.rows); err != nil {
		return err
	}
	return csvWriter.Error()
}

// outputYAML outputs the document in YAML format.
func outputYAML(w io.Writer, d *document) error {
	b, err := yaml.Marshal(d.value)
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}
