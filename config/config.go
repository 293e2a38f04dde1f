// Package config loads the process-wide yaml configuration recognised by
// the keyserver daemon and CLI.
package config

import (
	"os"

	"github.com/pkg/errors"
	yaml "gopkg.in/yaml.v2"
)

// Backend describes one storage backend entry of the backends list.
type Backend struct {
	Name     string `yaml:"name"`
	Type     string `yaml:"type"` // registered backend name: "btree" or "fs"
	Location string `yaml:"location"`
	Hostname string `yaml:"hostname,omitempty"`
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
}

// Config is the top-level configuration document.
type Config struct {
	MaxKeys int `yaml:"maxkeys"`

	ThisSite   string   `yaml:"thissite"`
	SyncSites  []string `yaml:"syncsites"`
	AdminEmail string   `yaml:"adminemail"`
	MTA        string   `yaml:"mta"`

	LogFile string `yaml:"logfile"`

	UseKeyd bool   `yaml:"use_keyd"`
	SockDir string `yaml:"sock_dir"`

	BackendsDir string    `yaml:"backends_dir"`
	DBBackend   string    `yaml:"db_backend"`
	Backends    []Backend `yaml:"backends"`

	CheckSigHash  bool `yaml:"check_sighash"`
	CleanPolicies uint `yaml:"clean_policies"`
}

// Default mirrors onak's built-in defaults for the handful of settings
// that must never be zero-valued.
func Default() Config {
	return Config{
		MaxKeys:   100,
		DBBackend: "btree",
	}
}

// Load reads and parses a yaml config file at path, filling in defaults
// for any key the file leaves unset.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrap(err, "config: read")
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrap(err, "config: parse")
	}
	if cfg.MaxKeys <= 0 {
		cfg.MaxKeys = 100
	}
	return cfg, nil
}

// FindBackend returns the Backend entry named name, or ok=false.
func (c Config) FindBackend(name string) (Backend, bool) {
	for _, b := range c.Backends {
		if b.Name == name {
			return b, true
		}
	}
	return Backend{}, false
}
