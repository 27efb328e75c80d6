package vehicleusage

import (
	"github.com/rs/zerolog/log"
	"github.com/travigo/simtracks/pkg/formats/population"
	"github.com/urfave/cli/v2"
)

func RegisterCLI() *cli.Command {
	return &cli.Command{
		Name:  "vehicle-usage",
		Usage: "Report which vehicles the simulated travelers actually boarded",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "events",
				Usage:    "Events file (optionally compressed)",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "vehicles",
				Usage: "Transit vehicles file used for the total vehicle count",
			},
			&cli.StringFlag{
				Name:  "plans",
				Usage: "Plans or population file restricting the report to its travelers",
			},
			&cli.StringFlag{
				Name:  "output-dir",
				Usage: "Directory the report is written to",
				Value: ".",
			},
		},
		Action: func(c *cli.Context) error {
			options := Options{
				EventsPath:   c.String("events"),
				VehiclesPath: c.String("vehicles"),
				OutputDir:    c.String("output-dir"),
			}

			if plansPath := c.String("plans"); plansPath != "" {
				itineraries, _, err := population.ParseFile(plansPath)
				if err != nil {
					return err
				}

				options.Travelers = map[string]struct{}{}
				for _, itinerary := range itineraries {
					options.Travelers[itinerary.TravelerID] = struct{}{}
				}
			}

			result, err := Run(options)
			if err != nil {
				return err
			}

			log.Info().
				Int("total", result.TotalVehicles).
				Int("used", len(result.Usage)).
				Float64("compression", CompressionRatio(result.TotalVehicles, len(result.Usage))).
				Msg("Vehicle usage complete")

			return nil
		},
	}
}
