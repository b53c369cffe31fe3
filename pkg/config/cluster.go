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
	"fmt"
	"os"
	"path/filepath"

	"github.com/mitchellh/go-homedir"
	"gopkg.in/yaml.v3"
)

// ClusterConfig is the subset of a ray cluster YAML that the launcher reads.
// The full document is kept so that it can be written back unchanged.
type ClusterConfig struct {
	ClusterName string         `yaml:"cluster_name"`
	Provider    ProviderConfig `yaml:"provider"`
	Auth        AuthConfig     `yaml:"auth"`
	Docker      DockerConfig   `yaml:"docker"`

	raw map[string]any
}

// ProviderConfig describes the cloud provider section.
type ProviderConfig struct {
	Type              string        `yaml:"type"`
	Region            string        `yaml:"region"`
	AvailabilityZone  string        `yaml:"availability_zone"`
	CacheStoppedNodes *bool         `yaml:"cache_stopped_nodes"`
	KeyPair           KeyPairConfig `yaml:"key_pair"`
}

// KeyPairConfig names the provider key pair used for ssh.
type KeyPairConfig struct {
	KeyName string `yaml:"key_name"`
}

// AuthConfig holds ssh credentials for the head node.
type AuthConfig struct {
	SSHUser       string `yaml:"ssh_user"`
	SSHPrivateKey string `yaml:"ssh_private_key"`
}

// DockerConfig is the container section of the cluster YAML.
type DockerConfig struct {
	Image         string `yaml:"image"`
	ContainerName string `yaml:"container_name"`
}

// LoadClusterConfig reads and parses a cluster YAML file.
func LoadClusterConfig(path string) (*ClusterConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read cluster config %q: %w", path, err)
	}
	return ParseClusterConfig(b)
}

// ParseClusterConfig parses cluster YAML content.
func ParseClusterConfig(b []byte) (*ClusterConfig, error) {
	var cfg ClusterConfig
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse cluster config: %w", err)
	}
	if err := yaml.Unmarshal(b, &cfg.raw); err != nil {
		return nil, fmt.Errorf("failed to parse cluster config: %w", err)
	}
	if cfg.raw == nil {
		cfg.raw = map[string]any{}
	}
	return &cfg, nil
}

// CacheStoppedNodes reports whether `down` stops rather than terminates
// nodes. Ray treats a missing value as true.
func (c *ClusterConfig) CacheStoppedNodes() bool {
	if c.Provider.CacheStoppedNodes == nil {
		return true
	}
	return *c.Provider.CacheStoppedNodes
}

// PrivateKeyPath derives the ssh key used to reach the head node: an explicit
// auth.ssh_private_key wins, then the provider key pair name, then the key
// ray creates for the region.
func (c *ClusterConfig) PrivateKeyPath() (string, error) {
	var path string
	switch {
	case c.Auth.SSHPrivateKey != "":
		path = c.Auth.SSHPrivateKey
	case c.Provider.KeyPair.KeyName != "":
		path = filepath.Join("~", ".ssh", c.Provider.KeyPair.KeyName+".pem")
	case c.Provider.Region != "":
		path = filepath.Join("~", ".ssh", "ray-autoscaler_"+c.Provider.Region+".pem")
	default:
		return "", fmt.Errorf("cluster config has neither auth.ssh_private_key, provider.key_pair.key_name nor provider.region")
	}
	expanded, err := homedir.Expand(path)
	if err != nil {
		return "", fmt.Errorf("failed to expand key path %q: %w", path, err)
	}
	return expanded, nil
}

// SetDockerImage replaces docker.image, keeping the rest of the document.
func (c *ClusterConfig) SetDockerImage(image string) {
	c.Docker.Image = image
	docker, ok := c.raw["docker"].(map[string]any)
	if !ok {
		docker = map[string]any{}
		c.raw["docker"] = docker
	}
	docker["image"] = image
}

// Marshal renders the full cluster document.
func (c *ClusterConfig) Marshal() ([]byte, error) {
	b, err := yaml.Marshal(c.raw)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal cluster config: %w", err)
	}
	return b, nil
}

// WriteTemp saves the cluster document to a new file in dir and returns its
// path. The CLI only accepts a path, so every invocation points at this file.
func (c *ClusterConfig) WriteTemp(dir string) (string, error) {
	b, err := c.Marshal()
	if err != nil {
		return "", err
	}
	f, err := os.CreateTemp(dir, "ray-cluster-*.yaml")
	if err != nil {
		return "", fmt.Errorf("failed to create temporary cluster config: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(b); err != nil {
		return "", fmt.Errorf("failed to write temporary cluster config %s: %w", f.Name(), err)
	}
	return f.Name(), nil
}
