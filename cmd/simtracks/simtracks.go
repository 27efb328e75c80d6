package main

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/travigo/simtracks/pkg/config"
	"github.com/travigo/simtracks/pkg/pipeline"
	"github.com/travigo/simtracks/pkg/vehicleusage"
	"github.com/urfave/cli/v2"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		log.Fatal().Err(err).Msg("Failed to load .env file")
	}

	if os.Getenv("SIMTRACKS_LOG_FORMAT") != "JSON" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}

	if os.Getenv("SIMTRACKS_DEBUG") == "YES" {
		log.Logger = log.Logger.Level(zerolog.DebugLevel)
	} else {
		log.Logger = log.Logger.Level(zerolog.InfoLevel)
	}

	app := &cli.App{
		Name:        "simtracks",
		Description: "Rebuild traveler movement tracks from MATSim simulation output",

		Commands: append(pipeline.RegisterCLI(), vehicleusage.RegisterCLI()),
	}

	err := app.Run(os.Args)
	if err != nil {
		log.Fatal().Err(err).Send()
	}
}
