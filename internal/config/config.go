// Package config holds the radiolinkd config file schema for tooling:
// template generation and standalone validation. The daemon itself layers
// file values over built-in defaults at startup.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// FileConfig mirrors the keys accepted in a radiolinkd config.toml.
type FileConfig struct {
	AdminAddr            string   `toml:"admin_addr"`
	AdminToken           string   `toml:"admin_token"`
	CorsOrigins          []string `toml:"cors_origins"`
	EnableOnBoot         bool     `toml:"enable_on_boot"`
	BindRetryCount       int      `toml:"bind_retry_count"`
	BindRetryDelayMS     int64    `toml:"bind_retry_delay_ms"`
	FlowControlTimeoutMS int64    `toml:"flow_control_timeout_ms"`
	KeepaliveIntervalMS  int64    `toml:"keepalive_interval_ms"`
	SimFlowControl       bool     `toml:"simulator_flow_control"`
	SimKeepalive         bool     `toml:"simulator_keepalive"`
}

func Load(path string) (FileConfig, error) {
	var cfg FileConfig
	data, err := os.ReadFile(path)
	if err != nil {
		return FileConfig{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return FileConfig{}, fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	if err := Validate(cfg); err != nil {
		return FileConfig{}, err
	}
	return cfg, nil
}

func Validate(cfg FileConfig) error {
	if cfg.AdminAddr != "" && strings.TrimSpace(cfg.AdminAddr) == "" {
		return fmt.Errorf("admin_addr must not be blank")
	}
	if cfg.BindRetryCount < 0 {
		return fmt.Errorf("bind_retry_count must not be negative")
	}
	if cfg.BindRetryDelayMS < 0 || cfg.FlowControlTimeoutMS < 0 || cfg.KeepaliveIntervalMS < 0 {
		return fmt.Errorf("timing values must not be negative")
	}
	return nil
}
