package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/dkrutz/radiolink/internal/admin"
	"github.com/dkrutz/radiolink/internal/hal"
	"github.com/dkrutz/radiolink/internal/hal/simulator"
	"github.com/dkrutz/radiolink/internal/logging"
	"github.com/dkrutz/radiolink/internal/transport"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "path to radiolinkd config.toml")
	flag.Parse()

	logging.ConfigureRuntime()
	logger := log.With().Str("app", "radiolinkd").Logger()

	cfg := DefaultConfig()
	if configPath != "" {
		loaded, err := loadConfig(configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "radiolinkd: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	var options uint32
	if cfg.Simulator.FlowControl {
		options |= hal.OptionFlowControl
	}
	if cfg.Simulator.Keepalive {
		options |= hal.OptionKeepalive
	}
	endpoint := simulator.New(options)
	provider := simulator.NewProvider(endpoint)

	client := transport.New(provider, cfg.Transport, logger)
	defer client.Close()

	if cfg.EnableOnBoot {
		if !client.Enable() {
			logger.Error().Msg("transport enable failed on boot, staying disabled")
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := admin.NewServer(client, cfg.AdminAddr, cfg.AdminToken, cfg.CorsOrigins)
	logger.Info().Str("addr", cfg.AdminAddr).Msg("radiolinkd up")
	if err := srv.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "radiolinkd: %v\n", err)
		os.Exit(1)
	}
}
