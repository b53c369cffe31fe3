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
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/go-containerregistry/pkg/crane"
	"github.com/google/go-containerregistry/pkg/registry"
	"github.com/google/go-containerregistry/pkg/v1/random"
)

func TestParsePlatform(t *testing.T) {
	tests := []struct {
		in      string
		wantOS  string
		wantArc string
		wantErr bool
	}{
		{in: "linux/amd64", wantOS: "linux", wantArc: "amd64"},
		{in: "linux/arm64", wantOS: "linux", wantArc: "arm64"},
		{in: "linux", wantErr: true},
		{in: "linux/", wantErr: true},
		{in: "linux/amd64/v8", wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			p, err := ParsePlatform(tc.in)
			if (err != nil) != tc.wantErr {
				t.Fatalf("ParsePlatform(%q) error = %v, wantErr %v", tc.in, err, tc.wantErr)
			}
			if err == nil && (p.OS != tc.wantOS || p.Architecture != tc.wantArc) {
				t.Errorf("ParsePlatform(%q) = %s/%s", tc.in, p.OS, p.Architecture)
			}
		})
	}
}

func TestPinDigest(t *testing.T) {
	srv := httptest.NewServer(registry.New())
	defer srv.Close()
	host := strings.TrimPrefix(srv.URL, "http://")

	img, err := random.Image(256, 1)
	if err != nil {
		t.Fatal(err)
	}
	ref := host + "/ray/worker:latest"
	if err := crane.Push(img, ref); err != nil {
		t.Fatalf("failed to push test image: %v", err)
	}
	want, err := img.Digest()
	if err != nil {
		t.Fatal(err)
	}

	pinned, err := PinDigest(ref, "")
	if err != nil {
		t.Fatalf("PinDigest() failed: %v", err)
	}
	if pinned != host+"/ray/worker@"+want.String() {
		t.Errorf("PinDigest() = %q, want %s/ray/worker@%s", pinned, host, want)
	}

	// Already pinned references are left alone.
	again, err := PinDigest(pinned, LinuxAMD64)
	if err != nil {
		t.Fatalf("PinDigest() on digest failed: %v", err)
	}
	if again != pinned {
		t.Errorf("PinDigest(%q) = %q, want unchanged", pinned, again)
	}
}

func TestPinDigestErrors(t *testing.T) {
	srv := httptest.NewServer(registry.New())
	defer srv.Close()
	host := strings.TrimPrefix(srv.URL, "http://")

	tests := []struct {
		name     string
		ref      string
		platform DockerPlatform
	}{
		{"bad reference", "UPPER/case:tag", ""},
		{"bad platform", host + "/x:1", "linux"},
		{"missing image", host + "/does/not:exist", ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := PinDigest(tc.ref, tc.platform); err == nil {
				t.Errorf("PinDigest(%q) succeeded, want error", tc.ref)
			}
		})
	}
}
