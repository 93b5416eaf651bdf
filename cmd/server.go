// Package main is the devfest server command with host, port and backend overrides.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"

	"devfest/internal/camera"
	"devfest/internal/config"
	"devfest/internal/logger"
	"devfest/internal/server"
)

func main() {
	var (
		host    = flag.String("host", "", "server host (default: 0.0.0.0)")
		port    = flag.Int("port", 0, "server port (default: 8080)")
		backend = flag.String("camera", "", "camera backend (default: v4l2)")
		debug   = flag.Bool("debug", false, "human readable debug logs")
		help    = flag.Bool("help", false, "show help")
	)

	flag.Parse()

	if *help {
		fmt.Println("devfest scan & draw server")
		fmt.Println()
		fmt.Println("Usage:")
		fmt.Println("  server [options]")
		fmt.Println()
		fmt.Println("Options:")
		flag.PrintDefaults()
		fmt.Println()
		fmt.Println("Camera backends:", camera.NewFactory().Backends())
		os.Exit(0)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	if *host != "" {
		cfg.Server.Host = *host
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *backend != "" {
		cfg.Camera.Backend = *backend
	}
	if *debug {
		cfg.Server.Debug = true
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid flags")
	}

	logger.Init("devfest", cfg.Server.Debug)

	ctx := context.Background()

	srv, err := server.New(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build server")
	}

	log.Info().Str("addr", cfg.ServerAddress()).Msg("starting devfest server")
	if err := srv.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("server stopped with error")
	}
}
