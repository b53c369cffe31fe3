// Copyright 2026 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package orchestrator

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ExpandSweep turns command line overrides into one override list per job.
// A comma separated value sweeps over its items, and "\," is a literal
// comma. The jobs are the cartesian product of all overrides, with the last
// override varying fastest. No overrides yield a single job without
// overrides.
func ExpandSweep(overrides []string) ([][]string, error) {
	sweep := [][]string{nil}
	for _, o := range overrides {
		key, value, ok := strings.Cut(o, "=")
		if !ok || strings.TrimLeft(key, "+~") == "" {
			return nil, fmt.Errorf("invalid override %q, expected key=value", o)
		}
		values := splitValues(value)
		next := make([][]string, 0, len(sweep)*len(values))
		for _, job := range sweep {
			for _, v := range values {
				next = append(next, append(append([]string(nil), job...), key+"="+v))
			}
		}
		sweep = next
	}
	return sweep, nil
}

// splitValues splits a sweep value on unescaped commas. A backslash escapes
// a comma or another backslash and is kept before anything else.
func splitValues(value string) []string {
	var values []string
	var cur strings.Builder
	for i := 0; i < len(value); i++ {
		c := value[i]
		switch {
		case c == '\\' && i+1 < len(value) && (value[i+1] == ',' || value[i+1] == '\\'):
			i++
			cur.WriteByte(value[i])
		case c == ',':
			values = append(values, cur.String())
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}
	return append(values, cur.String())
}

// LoadSweepFile reads a YAML list of override lists, one per job.
func LoadSweepFile(path string) ([][]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read sweep file %q: %w", path, err)
	}
	var sweep [][]string
	if err := yaml.Unmarshal(b, &sweep); err != nil {
		return nil, fmt.Errorf("failed to parse sweep file %q: %w", path, err)
	}
	for i, job := range sweep {
		for _, o := range job {
			if !strings.Contains(o, "=") {
				return nil, fmt.Errorf("sweep file %q: job %d: invalid override %q, expected key=value", path, i, o)
			}
		}
	}
	return sweep, nil
}
