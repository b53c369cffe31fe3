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

// Package image resolves container image references for docker-mode
// clusters.
package image

import (
	"fmt"
	"strings"

	"ray-launcher/pkg/logging"

	"github.com/google/go-containerregistry/pkg/crane"
	"github.com/google/go-containerregistry/pkg/name"
	v1 "github.com/google/go-containerregistry/pkg/v1"
)

// DockerPlatform represents the target platform of the cluster nodes.
type DockerPlatform string

const (
	LinuxAMD64 DockerPlatform = "linux/amd64"
	LinuxARM64 DockerPlatform = "linux/arm64"
)

// ParsePlatform converts a platform string (e.g., "linux/amd64") into a
// v1.Platform.
func ParsePlatform(platformStr string) (v1.Platform, error) {
	parts := strings.Split(platformStr, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return v1.Platform{}, fmt.Errorf("invalid platform format: %q, expected \"os/arch\"", platformStr)
	}
	return v1.Platform{
		OS:           parts[0],
		Architecture: parts[1],
	}, nil
}

// PinDigest resolves a tag reference to an immutable digest reference so
// that every node of the cluster pulls the same image. References that
// already carry a digest are returned unchanged.
func PinDigest(ref string, platform DockerPlatform, opts ...crane.Option) (string, error) {
	parsed, err := name.ParseReference(ref)
	if err != nil {
		return "", fmt.Errorf("failed to parse image reference %q: %w", ref, err)
	}
	if _, ok := parsed.(name.Digest); ok {
		return ref, nil
	}
	if platform != "" {
		p, err := ParsePlatform(string(platform))
		if err != nil {
			return "", err
		}
		opts = append(opts, crane.WithPlatform(&p))
	}

	digest, err := crane.Digest(parsed.String(), opts...)
	if err != nil {
		return "", fmt.Errorf("failed to resolve digest of %q: %w", ref, err)
	}
	pinned := parsed.Context().Digest(digest).String()
	logging.Info("Pinned image %s to %s", ref, pinned)
	return pinned, nil
}
