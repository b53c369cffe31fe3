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

package image

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"ray-launcher/pkg/logging"
	"ray-launcher/pkg/shell"
	"ray-launcher/pkg/syncignore"

	"github.com/google/go-containerregistry/pkg/compression"
	"github.com/google/go-containerregistry/pkg/crane"
	"github.com/google/go-containerregistry/pkg/name"
	"github.com/google/go-containerregistry/pkg/v1/mutate"
	"github.com/google/go-containerregistry/pkg/v1/tarball"
)

// BuildOptions describes an image made of a base image plus one layer
// holding a code directory.
type BuildOptions struct {
	BaseImage  string
	ContextDir string
	// TargetDir is the absolute path of the code inside the image.
	TargetDir  string
	Repository string
	// Tag defaults to <user>-<random>-<timestamp>.
	Tag      string
	Platform DockerPlatform
	// Ignore filters the context; nothing is skipped when nil.
	Ignore *syncignore.Ignore
}

// Build appends the filtered context directory to the base image, pushes the
// result and returns it as a digest reference.
func Build(opts BuildOptions, craneOpts ...crane.Option) (string, error) {
	platform, err := ParsePlatform(string(opts.Platform))
	if err != nil {
		return "", err
	}
	craneOpts = append(craneOpts, crane.WithPlatform(&platform))
	if !path.IsAbs(opts.TargetDir) {
		return "", fmt.Errorf("image target dir %q must be absolute", opts.TargetDir)
	}

	tag := opts.Tag
	if tag == "" {
		tag = defaultTag()
	}
	imageRef, err := name.NewTag(opts.Repository + ":" + tag)
	if err != nil {
		return "", fmt.Errorf("failed to parse new image reference: %w", err)
	}

	logging.Info("Starting image build process for %s", imageRef)
	logging.Info("Base Docker Image: %s", opts.BaseImage)
	logging.Info("Context Directory: %s -> %s", opts.ContextDir, opts.TargetDir)

	// 1. Write the filtered context to a temporary tarball.
	tarPath, err := createFilteredTar(opts.ContextDir, opts.TargetDir, opts.Ignore)
	if err != nil {
		return "", fmt.Errorf("failed to create filtered tarball: %w", err)
	}
	defer os.Remove(tarPath)

	// 2. Turn it into a layer.
	layer, err := tarball.LayerFromOpener(func() (io.ReadCloser, error) {
		return os.Open(tarPath)
	}, tarball.WithCompression(compression.GZip))
	if err != nil {
		return "", fmt.Errorf("failed to create layer from tarball: %w", err)
	}

	// 3. Pull the base image and append the layer.
	base, err := crane.Pull(opts.BaseImage, craneOpts...)
	if err != nil {
		return "", fmt.Errorf("failed to pull base image %q: %w", opts.BaseImage, err)
	}
	img, err := mutate.AppendLayers(base, layer)
	if err != nil {
		return "", fmt.Errorf("failed to append layer: %w", err)
	}

	// 4. Push and pin.
	logging.Info("Uploading Container Image to %s", imageRef)
	if err := crane.Push(img, imageRef.String(), craneOpts...); err != nil {
		return "", fmt.Errorf("failed to push image %q: %w", imageRef, err)
	}
	digest, err := img.Digest()
	if err != nil {
		return "", fmt.Errorf("failed to compute digest of %q: %w", imageRef, err)
	}
	pinned := imageRef.Context().Digest(digest.String()).String()
	logging.Info("Image %s built and uploaded successfully.", pinned)
	return pinned, nil
}

func defaultTag() string {
	user := os.Getenv("USER")
	if user == "" {
		user = "unknown"
	}
	return fmt.Sprintf("%s-%s-%s", user, shell.RandomString(4), time.Now().Format("2006-01-02-15-04-05"))
}

// createFilteredTar writes the kept files of sourceDir, placed under
// targetDir, to a gzipped tarball and returns its path.
func createFilteredTar(sourceDir, targetDir string, ignore *syncignore.Ignore) (tarPath string, err error) {
	tmpFile, err := os.CreateTemp("", "ray-launcher-build-context-*.tar.gz")
	if err != nil {
		return "", fmt.Errorf("failed to create temporary file for tarball: %w", err)
	}
	defer func() {
		if closeErr := tmpFile.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
		if err != nil {
			os.Remove(tmpFile.Name())
		}
	}()

	gzipWriter := gzip.NewWriter(tmpFile)
	tarWriter := tar.NewWriter(gzipWriter)
	logging.Debug("Creating filtered tar from %s to temporary file %s", sourceDir, tmpFile.Name())

	err = filepath.Walk(sourceDir, func(p string, info fs.FileInfo, walkErr error) error {
		return addTarEntry(tarWriter, sourceDir, targetDir, ignore, p, info, walkErr)
	})
	if err != nil {
		return "", err
	}
	if err := tarWriter.Close(); err != nil {
		return "", fmt.Errorf("failed to close tar writer: %w", err)
	}
	if err := gzipWriter.Close(); err != nil {
		return "", fmt.Errorf("failed to close gzip writer: %w", err)
	}
	return tmpFile.Name(), nil
}

// addTarEntry adds one walked path to the tarball unless it is ignored.
func addTarEntry(tw *tar.Writer, sourceDir, targetDir string, ignore *syncignore.Ignore, p string, info fs.FileInfo, walkErr error) error {
	if walkErr != nil {
		return walkErr
	}
	relPath, err := filepath.Rel(sourceDir, p)
	if err != nil {
		return fmt.Errorf("failed to get relative path for %q: %w", p, err)
	}

	entry := targetDir
	if relPath != "." {
		if ignore != nil {
			ignored, err := ignore.Matches(relPath, info.IsDir())
			if err != nil {
				return fmt.Errorf("failed to check ignore patterns for %q: %w", p, err)
			}
			if ignored {
				if info.IsDir() {
					logging.Debug("Ignoring directory %q", relPath)
					return filepath.SkipDir
				}
				logging.Debug("Ignoring file %q", relPath)
				return nil
			}
		}
		entry = path.Join(targetDir, filepath.ToSlash(relPath))
	}
	if !info.IsDir() && !info.Mode().IsRegular() {
		logging.Debug("Skipping non-regular file %q", relPath)
		return nil
	}

	header, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return fmt.Errorf("failed to create tar header for %q: %w", p, err)
	}
	header.Name = strings.TrimPrefix(entry, "/")
	if header.Name == "" {
		return nil
	}
	if info.IsDir() {
		header.Name += "/"
	}
	if err := tw.WriteHeader(header); err != nil {
		return fmt.Errorf("failed to write tar header for %q: %w", p, err)
	}
	if info.IsDir() {
		return nil
	}

	file, err := os.Open(p)
	if err != nil {
		return fmt.Errorf("failed to open file %q: %w", p, err)
	}
	defer file.Close()
	if _, err := io.Copy(tw, file); err != nil {
		return fmt.Errorf("failed to write file content for %q: %w", p, err)
	}
	return nil
}
