package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/dkrutz/radiolink/internal/transport"
)

// SimulatorConfig controls the built-in simulated endpoint the daemon runs
// against when no real endpoint integration is compiled in.
type SimulatorConfig struct {
	FlowControl bool
	Keepalive   bool
}

// Config is the daemon runtime configuration.
type Config struct {
	AdminAddr    string
	AdminToken   string
	CorsOrigins  []string
	EnableOnBoot bool
	Transport    transport.Config
	Simulator    SimulatorConfig
}

func DefaultConfig() Config {
	return Config{
		AdminAddr:    ":9464",
		EnableOnBoot: true,
		Transport:    transport.DefaultConfig(),
		Simulator: SimulatorConfig{
			FlowControl: true,
			Keepalive:   true,
		},
	}
}

// radiolinkd config.toml key mapping to runtime settings.
type fileConfig struct {
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

// radiolinkd loader for TOML config with default overlay.
func loadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load radiolinkd config: %w", err)
	}

	if meta.IsDefined("admin_addr") {
		cfg.AdminAddr = strings.TrimSpace(raw.AdminAddr)
	}
	if meta.IsDefined("admin_token") {
		cfg.AdminToken = strings.TrimSpace(raw.AdminToken)
	}
	if meta.IsDefined("cors_origins") {
		cfg.CorsOrigins = raw.CorsOrigins
	}
	if meta.IsDefined("enable_on_boot") {
		cfg.EnableOnBoot = raw.EnableOnBoot
	}
	if meta.IsDefined("bind_retry_count") {
		cfg.Transport.BindRetryCount = raw.BindRetryCount
	}
	if meta.IsDefined("bind_retry_delay_ms") {
		cfg.Transport.BindRetryDelay = time.Duration(raw.BindRetryDelayMS) * time.Millisecond
	}
	if meta.IsDefined("flow_control_timeout_ms") {
		cfg.Transport.FlowControlTimeout = time.Duration(raw.FlowControlTimeoutMS) * time.Millisecond
	}
	if meta.IsDefined("keepalive_interval_ms") {
		cfg.Transport.KeepaliveInterval = time.Duration(raw.KeepaliveIntervalMS) * time.Millisecond
	}
	if meta.IsDefined("simulator_flow_control") {
		cfg.Simulator.FlowControl = raw.SimFlowControl
	}
	if meta.IsDefined("simulator_keepalive") {
		cfg.Simulator.Keepalive = raw.SimKeepalive
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validateConfig(cfg Config) error {
	if strings.TrimSpace(cfg.AdminAddr) == "" {
		return fmt.Errorf("radiolinkd config missing admin_addr")
	}
	if cfg.Transport.BindRetryCount < 0 {
		return fmt.Errorf("bind_retry_count must not be negative")
	}
	if cfg.Transport.BindRetryDelay < 0 ||
		cfg.Transport.FlowControlTimeout < 0 ||
		cfg.Transport.KeepaliveInterval < 0 {
		return fmt.Errorf("timing values must not be negative")
	}
	return nil
}
