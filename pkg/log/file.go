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

package log

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// FilePattern expands the variables of a log file pattern:
//
//	%TIMESTAMP%  start time of the command, as YYYYMMDD-HHMMSS.uuuuuu
//	%COMMAND%    name of the subcommand being run
//
// A pattern ending in '/' names a directory; a default file name built from
// both variables is appended.
type FilePattern struct {
	Command   string
	Timestamp time.Time
}

// Build constructs the log file path based on the given pattern.
func (p FilePattern) Build(logPattern string) string {
	if strings.HasSuffix(logPattern, "/") {
		logPattern += "svwalk.log.%TIMESTAMP%.%COMMAND%"
	}
	r := strings.NewReplacer(
		"%TIMESTAMP%", p.Timestamp.Format("20060102-150405.000000"),
		"%COMMAND%", p.Command,
	)
	return r.Replace(logPattern)
}

// OpenFile opens a log file using the specified flags. The path is built by
// expanding logPattern with p. An empty pattern returns a nil file.
func OpenFile(logPattern string, flags int, p FilePattern) (*os.File, error) {
	if len(logPattern) == 0 {
		return nil, nil
	}
	logPath := p.Build(logPattern)

	// Create parent directory if it doesn't exist.
	dir := filepath.Dir(logPath)
	if err := os.MkdirAll(dir, 0775); err != nil {
		return nil, fmt.Errorf("error creating dir %q: %v", dir, err)
	}

	f, err := os.OpenFile(logPath, flags, 0664)
	if err != nil {
		return nil, fmt.Errorf("error opening file %q: %v", logPath, err)
	}
	return f, nil
}
