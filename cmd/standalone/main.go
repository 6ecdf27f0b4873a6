package main

import (
	"flag"
	"time"

	"github.com/rs/zerolog"

	"github.com/kmobs/zmk-softdevice-controller/pkg/config"
	"github.com/kmobs/zmk-softdevice-controller/pkg/logger"
	"github.com/kmobs/zmk-softdevice-controller/pkg/standalone"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	appLogger := logger.ComponentLogger("standalone")

	configFile := flag.String("config", "config.yaml", "Configuration file path")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		appLogger.Fatal().Err(err).Msg("failed to load configuration")
	}

	app := standalone.NewApp(cfg)

	appLogger.Info().Msg("starting subrate controller (standalone)")
	if err := app.Run(); err != nil {
		appLogger.Fatal().Err(err).Msg("application error")
	}
}
