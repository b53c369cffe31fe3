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

package jobspec

import (
	"bytes"
	"encoding/gob"
	"io"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

// Files start with a magic header followed by a zstd compressed gob stream.
var magic = []byte("RLJB")

// ErrBadFormat is returned for files that are not job spec or returns files,
// or that were written by an incompatible version.
var ErrBadFormat = errors.New("unrecognized job file format")

// Encode writes v to w.
func Encode(w io.Writer, v any) error {
	if _, err := w.Write(magic); err != nil {
		return errors.Wrap(err, "failed to write header")
	}
	zw, err := zstd.NewWriter(w)
	if err != nil {
		return errors.Wrap(err, "failed to create zstd writer")
	}
	if err := gob.NewEncoder(zw).Encode(v); err != nil {
		zw.Close()
		return errors.Wrap(err, "failed to encode")
	}
	return errors.Wrap(zw.Close(), "failed to flush zstd writer")
}

// Decode reads a value written by Encode into v.
func Decode(r io.Reader, v any) error {
	header := make([]byte, len(magic))
	if _, err := io.ReadFull(r, header); err != nil {
		return errors.Wrapf(ErrBadFormat, "short header: %v", err)
	}
	if !bytes.Equal(header, magic) {
		return errors.Wrapf(ErrBadFormat, "bad magic %q", header)
	}
	zr, err := zstd.NewReader(r)
	if err != nil {
		return errors.Wrap(err, "failed to create zstd reader")
	}
	defer zr.Close()
	if err := gob.NewDecoder(zr).Decode(v); err != nil {
		return errors.Wrapf(ErrBadFormat, "failed to decode: %v", err)
	}
	return nil
}

// writeFile encodes v into dir/name. The content goes to a temporary file
// first so a failed write never leaves a truncated file under name.
func writeFile(fs afero.Fs, dir, name string, v any) (string, error) {
	if err := fs.MkdirAll(dir, 0755); err != nil {
		return "", errors.Wrapf(err, "failed to create %s", dir)
	}
	path := filepath.Join(dir, name)
	tmp, err := afero.TempFile(fs, dir, name+".*.tmp")
	if err != nil {
		return "", errors.Wrapf(err, "failed to create temporary file in %s", dir)
	}
	if err := Encode(tmp, v); err != nil {
		tmp.Close()
		fs.Remove(tmp.Name())
		return "", errors.Wrapf(err, "failed to write %s", path)
	}
	if err := tmp.Close(); err != nil {
		fs.Remove(tmp.Name())
		return "", errors.Wrapf(err, "failed to close %s", tmp.Name())
	}
	if err := fs.Rename(tmp.Name(), path); err != nil {
		fs.Remove(tmp.Name())
		return "", errors.Wrapf(err, "failed to move %s into place", path)
	}
	return path, nil
}

func readFile(fs afero.Fs, path string, v any) error {
	f, err := fs.Open(path)
	if err != nil {
		return errors.Wrapf(err, "failed to open %s", path)
	}
	defer f.Close()
	return errors.Wrapf(Decode(f, v), "failed to read %s", path)
}

// WriteSpec writes the spec to dir and returns the file path.
func WriteSpec(fs afero.Fs, dir string, spec *JobSpec) (string, error) {
	return writeFile(fs, dir, SpecFileName, spec)
}

// ReadSpec reads the spec from dir. A missing file yields an error matching
// fs.ErrNotExist.
func ReadSpec(fs afero.Fs, dir string) (*JobSpec, error) {
	var spec JobSpec
	if err := readFile(fs, filepath.Join(dir, SpecFileName), &spec); err != nil {
		return nil, err
	}
	if spec.Version != FormatVersion {
		return nil, errors.Wrapf(ErrBadFormat, "job spec version %d, want %d", spec.Version, FormatVersion)
	}
	return &spec, nil
}

// WriteReturns writes the ordered results of a batch to dir.
func WriteReturns(fs afero.Fs, dir, batchID string, results []JobReturn) (string, error) {
	return writeFile(fs, dir, ReturnsFileName, &Returns{
		Version: FormatVersion,
		BatchID: batchID,
		Results: results,
	})
}

// ReadReturns reads the results written by WriteReturns. A missing file
// yields an error matching fs.ErrNotExist.
func ReadReturns(fs afero.Fs, dir string) (*Returns, error) {
	var returns Returns
	if err := readFile(fs, filepath.Join(dir, ReturnsFileName), &returns); err != nil {
		return nil, err
	}
	if returns.Version != FormatVersion {
		return nil, errors.Wrapf(ErrBadFormat, "job returns version %d, want %d", returns.Version, FormatVersion)
	}
	return &returns, nil
}
