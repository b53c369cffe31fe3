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

package ray

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"ray-launcher/pkg/jobspec"
	"ray-launcher/pkg/logging"

	"github.com/otiai10/copy"
	"github.com/spf13/afero"
)

// EntryBinaryName is the file name of the uploaded entry point binary.
const EntryBinaryName = "ray-launcher"

// hostOS is the OS the running executable was built for.
var hostOS = runtime.GOOS

// stage is the local directory mirrored to the remote temp dir.
type stage struct {
	dir string
	// returnsDir receives the files synced back from the head node.
	returnsDir string
}

func newStage(parent string) (*stage, error) {
	dir, err := os.MkdirTemp(parent, "ray-launcher-")
	if err != nil {
		return nil, fmt.Errorf("failed to create staging dir: %w", err)
	}
	st := &stage{dir: filepath.Join(dir, "up"), returnsDir: filepath.Join(dir, "down")}
	for _, d := range []string{st.dir, st.returnsDir} {
		if err := os.MkdirAll(d, 0755); err != nil {
			os.RemoveAll(dir)
			return nil, fmt.Errorf("failed to create staging dir: %w", err)
		}
	}
	return st, nil
}

func (s *stage) cleanup() {
	root := filepath.Dir(s.dir)
	if err := os.RemoveAll(root); err != nil {
		logging.Warn("failed to remove staging dir %s: %v", root, err)
	}
}

func (s *stage) writeSpec(spec *jobspec.JobSpec) error {
	path, err := jobspec.WriteSpec(afero.NewOsFs(), s.dir, spec)
	if err != nil {
		return err
	}
	logging.Debug("job spec with %d jobs written to %s", len(spec.Jobs), path)
	return nil
}

// addBinary copies the entry point executable into the staging dir. An
// empty path means the running executable, which head nodes only run when it
// is a linux build.
func (s *stage) addBinary(path string) error {
	if path == "" {
		if hostOS != "linux" {
			return fmt.Errorf("the running executable is built for %s and cannot run on the head node; set remote.binary to a linux build or remote.command to an installed entry point", hostOS)
		}
		self, err := os.Executable()
		if err != nil {
			return fmt.Errorf("failed to locate the running executable: %w", err)
		}
		path = self
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("failed to stat entry binary: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("entry binary %s is a directory", path)
	}
	dst := filepath.Join(s.dir, EntryBinaryName)
	if err := copy.Copy(path, dst, copy.Options{PermissionControl: copy.AddPermission(0755)}); err != nil {
		return fmt.Errorf("failed to stage entry binary %s: %w", path, err)
	}
	logging.Debug("staged entry binary %s (%d bytes)", path, info.Size())
	return nil
}

// entryCommand is the shell command run on the head node.
func entryCommand(remoteDir, command string) string {
	if command == "" {
		command = shellQuote(remoteDir+"/"+EntryBinaryName) + " remote-invoke"
	}
	return command + " " + shellQuote(remoteDir)
}

// withSlash makes rsync copy a directory's contents rather than the directory.
func withSlash(dir string) string {
	if strings.HasSuffix(dir, "/") {
		return dir
	}
	return dir + "/"
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
