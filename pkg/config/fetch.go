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

package config

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"ray-launcher/pkg/logging"

	"github.com/hashicorp/go-getter"
)

// IsRemoteSource reports whether src needs to be downloaded, i.e. it carries
// a URL scheme or a go-getter forced getter prefix such as "s3::".
func IsRemoteSource(src string) bool {
	return strings.Contains(src, "://") || strings.Contains(src, "::")
}

// FetchClusterConfig returns a local path for the cluster config source.
// Local paths are returned unchanged; remote sources are downloaded into dir.
func FetchClusterConfig(ctx context.Context, src, dir string) (string, error) {
	if !IsRemoteSource(src) {
		return src, nil
	}

	dst := filepath.Join(dir, "cluster.yaml")
	logging.Info("Fetching cluster config from %s", src)
	client := &getter.Client{
		Ctx:  ctx,
		Src:  src,
		Dst:  dst,
		Mode: getter.ClientModeFile,
	}
	if err := client.Get(); err != nil {
		return "", fmt.Errorf("failed to fetch cluster config from %s: %w", src, err)
	}
	return dst, nil
}
