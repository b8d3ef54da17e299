// Package config loads and validates the node's YAML configuration,
// the realization of the table in spec §6.
package config

import (
	"fmt"
	"net"
	"os"

	"gopkg.in/yaml.v3"
)

// Capture holds the ingest-pipeline tuning knobs of §6.
type Capture struct {
	MulticastAddr      string `yaml:"multicast_addr"`
	Port               uint16 `yaml:"port"`
	RingBufferSize     int    `yaml:"ring_buffer_size"`
	UDPBufferSize      int    `yaml:"udp_buffer_size"`
	SocketBufferSize   int    `yaml:"socket_buffer_size"`
	MaxBatchSize       int    `yaml:"max_batch_size"`
	OutputDir          string `yaml:"output_dir"`
	VerifyChecksums    bool   `yaml:"verify_checksums"`
	CoordinatorAddress string `yaml:"coordinator_address"`
}

// Logging controls the shared slog logger.
type Logging struct {
	Level string `yaml:"level"`
	Dir   string `yaml:"dir"`
}

// Catalog controls the Fleet Registry / Symbol Catalog sqlite database.
type Catalog struct {
	Path string `yaml:"path"`
}

// Node controls this node's own identity.
type Node struct {
	ID string `yaml:"id"`
}

// Config is the top-level configuration document.
type Config struct {
	Capture Capture `yaml:"capture"`
	Logging Logging `yaml:"logging"`
	Catalog Catalog `yaml:"catalog"`
	Node    Node    `yaml:"node"`
}

// Default returns a Config with every §6 default applied. OutputDir is
// left empty — it has no default and must be supplied.
func Default() Config {
	return Config{
		Capture: Capture{
			MulticastAddr:    "239.255.0.1",
			Port:             12345,
			RingBufferSize:   131072,
			UDPBufferSize:    262144,
			SocketBufferSize: 33554432,
			MaxBatchSize:     256,
			VerifyChecksums:  true,
		},
		Logging: Logging{Level: "info", Dir: "logs"},
	}
}

// Load reads and parses the YAML file at path onto the §6 defaults,
// applies environment overrides, and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	overrideWithEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks every field that would otherwise surface as a
// confusing runtime failure deep in the pipeline.
func (c *Config) Validate() error {
	if ip := net.ParseIP(c.Capture.MulticastAddr); ip == nil || ip.To4() == nil {
		return fmt.Errorf("multicast_addr %q is not a valid IPv4 address", c.Capture.MulticastAddr)
	}
	if c.Capture.Port == 0 {
		return fmt.Errorf("port must be nonzero")
	}
	if c.Capture.RingBufferSize <= 0 {
		return fmt.Errorf("ring_buffer_size must be positive")
	}
	if c.Capture.UDPBufferSize <= 0 {
		return fmt.Errorf("udp_buffer_size must be positive")
	}
	if c.Capture.MaxBatchSize <= 0 || c.Capture.MaxBatchSize > 256 {
		return fmt.Errorf("max_batch_size must be in (0, 256]")
	}
	if c.Capture.OutputDir == "" {
		return fmt.Errorf("output_dir is required")
	}
	return nil
}

// overrideWithEnv lets deployment secrets/paths be supplied without
// editing the checked-in YAML, mirroring the teacher's env override
// convention.
func overrideWithEnv(cfg *Config) {
	if v := os.Getenv("TICKCAPTURE_COORDINATOR_ADDRESS"); v != "" {
		cfg.Capture.CoordinatorAddress = v
	}
	if v := os.Getenv("TICKCAPTURE_OUTPUT_DIR"); v != "" {
		cfg.Capture.OutputDir = v
	}
}
