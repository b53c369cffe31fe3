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

package cluster

import (
	"fmt"
	"net"
	"strings"
)

// The ray CLI mixes progress output with the value we want, so both parsers
// scan from the last line backwards and take the first line that fits.

// parseHeadIP extracts the head node IP from `get-head-ip` output.
func parseHeadIP(out string) (string, error) {
	lines := strings.Split(out, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if net.ParseIP(line) != nil {
			return line, nil
		}
	}
	return "", fmt.Errorf("no IP address found in get-head-ip output: %q", out)
}

// parseRemotePath extracts an absolute path echoed by a remote command.
func parseRemotePath(out string) (string, error) {
	lines := strings.Split(out, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if strings.HasPrefix(line, "/") && !strings.ContainsAny(line, " \t") {
			return line, nil
		}
	}
	return "", fmt.Errorf("no absolute path found in remote output: %q", out)
}
