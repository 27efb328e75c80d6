package pipeline

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/kr/pretty"
	"github.com/rs/zerolog/log"
	"github.com/travigo/simtracks/pkg/config"
	"github.com/travigo/simtracks/pkg/formats/population"
	"github.com/travigo/simtracks/pkg/formats/transitschedule"
	"github.com/travigo/simtracks/pkg/model"
	"github.com/travigo/simtracks/pkg/util"
	"github.com/urfave/cli/v2"
)

func inputFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Usage:   "YAML configuration file",
			EnvVars: []string{"SIMTRACKS_CONFIG"},
		},
		&cli.StringFlag{
			Name:  "plans",
			Usage: "Plans file (output_plans.xml, optionally compressed)",
		},
		&cli.StringFlag{
			Name:  "population",
			Usage: "Population file used when no plans file is found",
		},
		&cli.StringFlag{
			Name:  "schedule",
			Usage: "Transit schedule file used to expand transit legs",
		},
		&cli.StringFlag{
			Name:  "malformed-payload",
			Usage: "Handling of undecodable transit payloads (ignore, warn, fail)",
		},
		&cli.StringFlag{
			Name:  "intermediate-start",
			Usage: "Schedule offset starting intermediate transit hops (departure, arrival)",
		},
	}
}

func buildFlags() []cli.Flag {
	return append(inputFlags(),
		&cli.StringFlag{
			Name:  "events",
			Usage: "Events file for the vehicle usage report",
		},
		&cli.StringFlag{
			Name:  "vehicles",
			Usage: "Transit vehicles file for the vehicle usage report",
		},
		&cli.StringFlag{
			Name:  "output-dir",
			Usage: "Directory the tables are written to",
		},
		&cli.StringFlag{
			Name:  "interval",
			Usage: "Sampling interval (seconds, 5s or PT5S)",
		},
		&cli.StringFlag{
			Name:  "include-modes",
			Usage: "Comma separated modes to sample",
		},
		&cli.StringFlag{
			Name:  "include-expr",
			Usage: "Boolean expression a leg row must satisfy to be sampled",
		},
		&cli.StringFlag{
			Name:  "export-formats",
			Usage: "Comma separated track table formats (csv, json)",
		},
		&cli.StringFlag{
			Name:  "metrics-file",
			Usage: "Write run metrics in the Prometheus text format to this file",
		},
		&cli.StringFlag{
			Name:  "coordinate-system",
			Usage: "Coordinate system of the inputs for lat/lon output (none, osgb36)",
		},
		&cli.BoolFlag{
			Name:  "export-filtered-events",
			Usage: "Also write the events of the travelers and the vehicles they rode",
		},
		&cli.BoolFlag{
			Name:  "no-activity-matching",
			Usage: "Skip matching track points to activities",
		},
		&cli.Float64Flag{
			Name:  "spatial-threshold",
			Usage: "Distance in meters under which a point matches its nearest activity",
		},
		&cli.IntFlag{
			Name:  "workers",
			Usage: "Travelers processed in parallel",
		},
	)
}

// loadConfig layers command line flags over the configuration file and
// environment, then validates the result.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}

	if err := applyFlags(c, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyFlags copies the flags set on the command line into cfg. Flags a
// command does not define are never set.
func applyFlags(c *cli.Context, cfg *config.Config) error {
	stringFlags := map[string]*string{
		"plans":              &cfg.PlansPath,
		"population":         &cfg.PopulationPath,
		"schedule":           &cfg.SchedulePath,
		"events":             &cfg.EventsPath,
		"vehicles":           &cfg.VehiclesPath,
		"output-dir":         &cfg.OutputDir,
		"include-expr":       &cfg.IncludeExpr,
		"metrics-file":       &cfg.MetricsFile,
		"malformed-payload":  &cfg.MalformedPayload,
		"intermediate-start": &cfg.IntermediateStart,
		"coordinate-system":  &cfg.CoordinateSystem,
	}
	for name, target := range stringFlags {
		if c.IsSet(name) {
			*target = c.String(name)
		}
	}

	listFlags := map[string]*[]string{
		"include-modes":  &cfg.IncludeModes,
		"export-formats": &cfg.ExportFormats,
	}
	for name, target := range listFlags {
		if c.IsSet(name) {
			*target = util.SplitList(c.String(name))
		}
	}

	if c.IsSet("interval") {
		seconds, err := config.ParseSeconds(c.String("interval"))
		if err != nil {
			return fmt.Errorf("%w: --interval: %w", config.ErrInvalid, err)
		}
		cfg.Interval = config.Seconds(seconds)
	}
	if c.Bool("export-filtered-events") {
		cfg.ExportFilteredEvents = true
	}
	if c.Bool("no-activity-matching") {
		cfg.ActivityMatching = false
	}
	if c.IsSet("spatial-threshold") {
		cfg.SpatialThresholdMeters = c.Float64("spatial-threshold")
	}
	if c.IsSet("workers") {
		cfg.Workers = c.Int("workers")
	}

	return nil
}

func RegisterCLI() []*cli.Command {
	return []*cli.Command{
		{
			Name:  "build",
			Usage: "Build the legs and track tables from simulation output",
			Flags: buildFlags(),
			Action: func(c *cli.Context) error {
				cfg, err := loadConfig(c)
				if err != nil {
					return err
				}

				ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
				defer stop()

				result, err := Run(ctx, cfg)
				if err != nil {
					return err
				}

				for key, path := range result.Outputs {
					log.Info().Str("output", key).Str("path", path).Send()
				}

				return nil
			},
		},
		{
			Name:  "inspect",
			Usage: "Print the itinerary and leg rows of a single traveler",
			Flags: append(inputFlags(),
				&cli.StringFlag{
					Name:     "traveler",
					Usage:    "ID of the traveler",
					Required: true,
				},
			),
			Action: func(c *cli.Context) error {
				cfg, err := config.Load(c.String("config"))
				if err != nil {
					return err
				}
				// inspect writes nothing
				if cfg.OutputDir == "" {
					cfg.OutputDir = "."
				}
				if err := applyFlags(c, cfg); err != nil {
					return err
				}
				if err := cfg.Validate(); err != nil {
					return err
				}

				return inspect(cfg, c.String("traveler"), os.Stdout)
			},
		},
	}
}

// inspect prints the itinerary of one traveler with the leg rows the build
// command would produce for it and the stop facilities those rows pass.
func inspect(cfg *config.Config, travelerID string, w io.Writer) error {
	source, err := cfg.PlansSource()
	if err != nil {
		return err
	}

	itineraries, _, err := population.ParseFile(source)
	if err != nil {
		return err
	}

	index, err := transitschedule.Load(cfg.SchedulePath)
	if err != nil {
		return err
	}

	stages, err := NewStages(cfg, index)
	if err != nil {
		return err
	}

	for _, it := range itineraries {
		if it.TravelerID != travelerID {
			continue
		}

		rows, stats, err := stages.Builder.Build(it)
		if err != nil {
			return err
		}

		pretty.Fprintf(w, "%# v\n", it)
		pretty.Fprintf(w, "%# v\n", rows)
		pretty.Fprintf(w, "%# v\n", segmentStops(index, rows))
		pretty.Fprintf(w, "%# v\n", stats)

		return nil
	}

	return fmt.Errorf("traveler %s not found in %s", travelerID, source)
}

func segmentStops(index *transitschedule.Index, rows []model.LegRow) []model.StopFacility {
	var stops []model.StopFacility
	seen := map[string]bool{}

	for _, row := range rows {
		for _, stopID := range []string{row.SegmentStartStop, row.SegmentEndStop} {
			if stopID == "" || seen[stopID] {
				continue
			}
			seen[stopID] = true

			if stop, exists := index.Stop(stopID); exists {
				stops = append(stops, stop)
			}
		}
	}

	return stops
}
