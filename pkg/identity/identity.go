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

// Package identity tells the head node who it is.
package identity

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"ray-launcher/pkg/logging"

	"github.com/aws/aws-sdk-go-v2/feature/ec2/imds"
)

// EnvOverride names the variable that replaces the metadata lookup, for
// clusters that do not run on EC2.
const EnvOverride = "LAUNCHER_INSTANCE_ID"

// DefaultTimeout bounds a single metadata lookup.
const DefaultTimeout = 10 * time.Second

// Provider returns the identity string of the current machine.
type Provider interface {
	InstanceID(ctx context.Context) (string, error)
}

// Static is a fixed identity.
type Static string

// InstanceID implements Provider.
func (s Static) InstanceID(context.Context) (string, error) {
	if s == "" {
		return "", errors.New("empty static instance id")
	}
	return string(s), nil
}

// IMDS reads the instance id from the EC2 instance metadata service.
type IMDS struct {
	Client  *imds.Client
	Timeout time.Duration
}

// NewIMDS creates a metadata provider. optFns adjust the client, for example
// to point it at a different endpoint.
func NewIMDS(optFns ...func(*imds.Options)) *IMDS {
	return &IMDS{
		Client:  imds.New(imds.Options{}, optFns...),
		Timeout: DefaultTimeout,
	}
}

// InstanceID implements Provider.
func (p *IMDS) InstanceID(ctx context.Context) (string, error) {
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}
	out, err := p.Client.GetMetadata(ctx, &imds.GetMetadataInput{Path: "instance-id"})
	if err != nil {
		return "", fmt.Errorf("failed to query instance metadata: %w", err)
	}
	defer out.Content.Close()
	b, err := io.ReadAll(out.Content)
	if err != nil {
		return "", fmt.Errorf("failed to read instance metadata: %w", err)
	}
	id := strings.TrimSpace(string(b))
	if id == "" {
		return "", errors.New("instance metadata returned an empty instance id")
	}
	return id, nil
}

type envProvider struct {
	fallback Provider
}

// WithEnvOverride returns a provider that prefers the value of EnvOverride
// and asks fallback otherwise.
func WithEnvOverride(fallback Provider) Provider {
	return envProvider{fallback: fallback}
}

func (p envProvider) InstanceID(ctx context.Context) (string, error) {
	if id := strings.TrimSpace(os.Getenv(EnvOverride)); id != "" {
		logging.Debug("instance id %s taken from %s", id, EnvOverride)
		return id, nil
	}
	return p.fallback.InstanceID(ctx)
}

// Default is the provider used by the remote entry point.
func Default() Provider {
	return WithEnvOverride(NewIMDS())
}
