// Package config loads the server's YAML configuration file. Flags
// passed on the command line (see cmd/pcache-server) take precedence
// over values loaded here, matching the flags-override-file
// convention the teacher's domain-stack sibling uses for its own
// coordinator.
package config

import (
	"fmt"
	"os"

	"github.com/c2h5oh/datasize"
	"gopkg.in/yaml.v3"
)

// Config is the server's on-disk configuration.
type Config struct {
	// MountPath is the directory containing the index and log pool
	// files ("pmem" and "log"), conventionally under /mnt/pmem0.
	MountPath string `yaml:"mount_path"`

	// IndexSize and LogSize are the fixed pool sizes, parsed from
	// human-readable strings (e.g. "256MB") via datasize.
	IndexSize datasize.ByteSize `yaml:"index_size"`
	LogSize   datasize.ByteSize `yaml:"log_size"`

	IBPort  uint8  `yaml:"ib_port"`
	TCPPort uint16 `yaml:"tcp_port"`
	RDMA    bool   `yaml:"rdma"`
}

// DefaultConfig returns the server's built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		MountPath: "/mnt/pmem0",
		IndexSize: 256 * datasize.MB,
		LogSize:   1 * datasize.GB,
		IBPort:    1,
	}
}

// Load reads and parses the YAML configuration file at path, starting
// from DefaultConfig so unset fields keep their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}
