// Copyright (c) 2014-2015 The Notify Authors. All rights reserved.
// Use of this source code is governed by the MIT license that can be
// found in the LICENSE file.

package famd

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/JekaMas/fam"
)

// Config is the daemon configuration, usually read from a YAML file:
//
//	listen: 0.0.0.0:4321
//	roots:
//	  - /srv
//	  - /home
//	debug: on
type Config struct {
	Listen   string         `yaml:"listen"`   // address of the HTTP listener
	Path     string         `yaml:"path"`     // websocket endpoint
	Metrics  string         `yaml:"metrics"`  // prometheus endpoint, "-" disables it
	Roots    []string       `yaml:"roots"`    // exported trees, empty exports everything
	Debug    fam.DebugLevel `yaml:"debug"`    // debug level of client sessions
	Hostname string         `yaml:"hostname"` // reported in events, defaults to os.Hostname
	Buffer   uint           `yaml:"buffer"`   // fsnotify buffer of each client
}

// Default gives the configuration used for values missing from a file.
func Default() Config {
	return Config{
		Listen:  "127.0.0.1:4321",
		Path:    "/fam",
		Metrics: "/metrics",
		Buffer:  256,
	}
}

// Load reads the YAML file at path on top of the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrap(err, "famd: reading config")
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "famd: parsing %s", path)
	}
	return cfg, cfg.Validate()
}

// Validate checks the configuration for mistakes.
func (c Config) Validate() error {
	if c.Listen == "" {
		return errors.New("famd: no listen address")
	}
	if !strings.HasPrefix(c.Path, "/") {
		return errors.Errorf("famd: websocket path %q is not absolute", c.Path)
	}
	if c.Metrics != "-" && !strings.HasPrefix(c.Metrics, "/") {
		return errors.Errorf("famd: metrics path %q is not absolute", c.Metrics)
	}
	if c.Metrics == c.Path {
		return errors.Errorf("famd: websocket and metrics share path %q", c.Path)
	}
	for _, root := range c.Roots {
		if !filepath.IsAbs(root) {
			return errors.Errorf("famd: root %q is not absolute", root)
		}
	}
	if !c.Debug.Valid() {
		return errors.Errorf("famd: invalid debug level %s", c.Debug)
	}
	return nil
}

// Allowed reports whether clients may monitor p. Only absolute paths within
// one of the roots are allowed.
func (c Config) Allowed(p string) bool {
	if !filepath.IsAbs(p) {
		return false
	}
	if len(c.Roots) == 0 {
		return true
	}
	p = filepath.Clean(p)
	for _, root := range c.Roots {
		root = filepath.Clean(root)
		if p == root || strings.HasPrefix(p, strings.TrimSuffix(root, string(filepath.Separator))+string(filepath.Separator)) {
			return true
		}
	}
	return false
}
