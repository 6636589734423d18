/*
Copyright 2026 The Kubernetes Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package config loads the settings shared by the tgt plugin and tgtctl.
//
// Settings come from an optional YAML file; keys missing from the file keep
// their defaults and command line flags override both.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/kubernetes-csi/csi-driver-tgt/pkg/libiscsi"
	"github.com/kubernetes-csi/csi-driver-tgt/pkg/tgtlib"
)

// DefaultBackingDir holds the backing files of provisioned volumes.
const DefaultBackingDir = "/var/lib/tgt-csi"

// Duration is a time.Duration written as a string such as "30s" in YAML.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Duration returns the underlying time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

type TgtadmConfig struct {
	Path string `yaml:"path"`
	LLD  string `yaml:"lld"`
}

type LibiscsiConfig struct {
	LsPath  string `yaml:"lsPath"`
	InqPath string `yaml:"inqPath"`
}

// Config holds tool locations and provisioning settings.
type Config struct {
	Tgtadm   TgtadmConfig   `yaml:"tgtadm"`
	Libiscsi LibiscsiConfig `yaml:"libiscsi"`
	// CommandTimeout bounds every tool invocation. Zero waits for exit.
	CommandTimeout Duration `yaml:"commandTimeout"`
	IQNPrefix      string   `yaml:"iqnPrefix"`
	// Portal is the address initiators use to reach this tgtd.
	Portal     string `yaml:"portal"`
	BackingDir string `yaml:"backingDir"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Tgtadm: TgtadmConfig{
			Path: tgtlib.DefaultTgtadmPath,
			LLD:  tgtlib.DefaultLLD,
		},
		Libiscsi: LibiscsiConfig{
			LsPath:  libiscsi.DefaultLsPath,
			InqPath: libiscsi.DefaultInqPath,
		},
		IQNPrefix:  tgtlib.DefaultIQNPrefix,
		BackingDir: DefaultBackingDir,
	}
}

// Load reads the YAML file at path on fs over the defaults. An empty path
// returns the defaults.
func Load(fs afero.Fs, path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects settings no tool invocation could work with.
func (c *Config) Validate() error {
	switch {
	case c.Tgtadm.Path == "":
		return errors.New("tgtadm.path must not be empty")
	case c.Tgtadm.LLD == "":
		return errors.New("tgtadm.lld must not be empty")
	case c.Libiscsi.LsPath == "":
		return errors.New("libiscsi.lsPath must not be empty")
	case c.Libiscsi.InqPath == "":
		return errors.New("libiscsi.inqPath must not be empty")
	case c.CommandTimeout < 0:
		return errors.New("commandTimeout must not be negative")
	case c.IQNPrefix == "":
		return errors.New("iqnPrefix must not be empty")
	case !filepath.IsAbs(c.BackingDir):
		return errors.New("backingDir must be an absolute path")
	}
	return nil
}

// Save writes c as YAML to path on fs.
func (c *Config) Save(fs afero.Fs, path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return afero.WriteFile(fs, path, data, 0644)
}
