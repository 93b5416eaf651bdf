package main

import (
	"context"

	"github.com/rs/zerolog/log"

	"devfest/internal/config"
	"devfest/internal/logger"
	"devfest/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	logger.Init("devfest", cfg.Server.Debug)

	ctx := context.Background()

	srv, err := server.New(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build server")
	}

	if err := srv.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("server stopped with error")
	}
}
