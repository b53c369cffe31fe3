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

// Package syncignore reads the ignore file of a code directory and turns it
// into rsync filters.
package syncignore

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"ray-launcher/pkg/logging"

	"github.com/moby/patternmatcher"
	"github.com/moby/patternmatcher/ignorefile"
)

// FileName is the ignore file looked up at the root of a synced directory.
const FileName = ".launcherignore"

// Ignore is the set of patterns excluded from a sync.
type Ignore struct {
	patterns []string
	matcher  *patternmatcher.PatternMatcher
}

// Load reads dir/.launcherignore, if present, on top of defaultPatterns.
func Load(dir string, defaultPatterns []string) (*Ignore, error) {
	ignorePath := filepath.Join(dir, FileName)

	patterns := make([]string, len(defaultPatterns))
	copy(patterns, defaultPatterns)

	if _, err := os.Stat(ignorePath); err == nil {
		file, err := os.Open(ignorePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s file %q: %w", FileName, ignorePath, err)
		}
		defer file.Close()

		filePatterns, err := ignorefile.ReadAll(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s file %q: %w", FileName, ignorePath, err)
		}
		patterns = append(patterns, filePatterns...)
		logging.Info("Found %d patterns in %s at %q", len(filePatterns), FileName, ignorePath)
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to stat %s file %q: %w", FileName, ignorePath, err)
	}

	matcher, err := patternmatcher.New(patterns)
	if err != nil {
		return nil, fmt.Errorf("failed to create pattern matcher: %w", err)
	}
	return &Ignore{patterns: patterns, matcher: matcher}, nil
}

// Patterns returns the patterns in the order they were read.
func (i *Ignore) Patterns() []string {
	return append([]string(nil), i.patterns...)
}

// Matches reports whether relPath, relative to the synced directory, is
// excluded.
func (i *Ignore) Matches(relPath string, isDir bool) (bool, error) {
	// Directory patterns such as "foo/" only match with a trailing slash.
	relPathSlash := filepath.ToSlash(relPath)
	if isDir && !strings.HasSuffix(relPathSlash, "/") {
		relPathSlash += "/"
	}
	return i.matcher.MatchesOrParentMatches(relPathSlash)
}

// RsyncFilters splits the patterns into rsync --include and --exclude
// values. Ignore patterns are relative to the synced root, so each one is
// anchored with a leading slash unless it starts with "**/". Negated patterns
// become includes, which rsync must see before the excludes they punch holes
// into, preceded by includes for their parent dirs so rsync descends to them.
func (i *Ignore) RsyncFilters() (include, exclude []string) {
	seen := make(map[string]bool)
	for _, p := range i.patterns {
		neg, negated := strings.CutPrefix(p, "!")
		if !negated {
			exclude = append(exclude, rsyncPattern(p)...)
			continue
		}
		for _, parent := range parentDirs(neg) {
			if !seen[parent] {
				seen[parent] = true
				include = append(include, parent)
			}
		}
		include = append(include, rsyncPattern(neg)...)
	}
	return include, exclude
}

// rsyncPattern translates an ignore pattern into the rsync patterns matching
// the path itself and everything below it.
func rsyncPattern(p string) []string {
	p = strings.Trim(filepath.ToSlash(p), "/")
	if rest, ok := strings.CutPrefix(p, "**/"); ok {
		p = rest
	} else {
		p = "/" + p
	}
	return []string{p, p + "/**"}
}

// parentDirs returns the anchored dir includes leading to an anchored
// pattern, outermost first.
func parentDirs(p string) []string {
	p = strings.Trim(filepath.ToSlash(p), "/")
	if strings.HasPrefix(p, "**/") {
		return nil
	}
	parts := strings.Split(p, "/")
	var dirs []string
	for n := 1; n < len(parts); n++ {
		dirs = append(dirs, "/"+strings.Join(parts[:n], "/")+"/")
	}
	return dirs
}

// Stats counts what a sync of dir would transfer.
type Stats struct {
	Files   int
	Ignored int
	Bytes   int64
}

// Scan walks dir and counts the files kept and skipped by the patterns. An
// ignored directory counts once and is not descended into.
func (i *Ignore) Scan(dir string) (Stats, error) {
	var st Stats
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		relPath, err := filepath.Rel(dir, path)
		if err != nil {
			return fmt.Errorf("failed to get relative path for %q: %w", path, err)
		}
		if relPath == "." {
			return nil
		}
		ignored, err := i.Matches(relPath, d.IsDir())
		if err != nil {
			return fmt.Errorf("failed to check ignore patterns for %q: %w", path, err)
		}
		if ignored {
			st.Ignored++
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() {
			info, err := d.Info()
			if err != nil {
				return err
			}
			st.Files++
			st.Bytes += info.Size()
		}
		return nil
	})
	if err != nil {
		return Stats{}, fmt.Errorf("failed to scan %s: %w", dir, err)
	}
	return st, nil
}
