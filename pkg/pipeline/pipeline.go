package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/travigo/simtracks/pkg/config"
	"github.com/travigo/simtracks/pkg/export"
	"github.com/travigo/simtracks/pkg/formats/population"
	"github.com/travigo/simtracks/pkg/formats/transitschedule"
	"github.com/travigo/simtracks/pkg/legs"
	"github.com/travigo/simtracks/pkg/metrics"
	"github.com/travigo/simtracks/pkg/model"
	"github.com/travigo/simtracks/pkg/projection"
	"github.com/travigo/simtracks/pkg/vehicleusage"
)

// Result describes a completed run.
type Result struct {
	*Tables

	Itineraries     []*model.Itinerary
	PopulationStats population.Stats
	ScheduleStats   transitschedule.Stats

	ProjectionFailures int
	Outputs            map[string]string

	// Warnings lists the auxiliary steps that failed without failing the run
	Warnings []string
}

// Run reads the itineraries and schedule named by cfg, builds the legs and
// track tables and writes them to the output directory.
func Run(ctx context.Context, cfg *config.Config) (*Result, error) {
	collector := metrics.NewCollector(int(cfg.Interval), cfg.Workers)
	result := &Result{Outputs: map[string]string{}}

	system, err := projection.ParseCoordinateSystem(cfg.CoordinateSystem)
	if err != nil {
		return nil, err
	}

	// Itineraries
	started := time.Now()
	source, err := cfg.PlansSource()
	if err != nil {
		return nil, err
	}
	log.Info().Str("path", source).Msg("Loading itineraries")

	result.Itineraries, result.PopulationStats, err = population.ParseFile(source)
	if err != nil {
		return nil, err
	}
	collector.ItinerariesParsed.Add(float64(result.PopulationStats.Itineraries))
	collector.DegradedFields.Add(float64(result.PopulationStats.DegradedFields))
	collector.TimeStage("itineraries", started)

	if result.PopulationStats.DegradedFields > 0 {
		log.Warn().Int("fields", result.PopulationStats.DegradedFields).Msg("Some time or coordinate fields could not be parsed")
	}

	// Schedule
	started = time.Now()
	index, err := transitschedule.Load(cfg.SchedulePath)
	if err != nil {
		return nil, err
	}
	result.ScheduleStats = index.Stats()
	collector.TimeStage("schedule", started)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Legs, tracks and activities per traveler
	started = time.Now()
	stages, err := NewStages(cfg, index)
	if err != nil {
		return nil, err
	}

	result.Tables, err = stages.Process(ctx, result.Itineraries, cfg.Workers)
	if err != nil {
		return nil, err
	}
	collector.RecordLegs(result.LegStats)
	collector.RecordTracks(result.TrackStats)
	if stages.Matcher != nil {
		collector.RecordMatches(result.MatchStats)
	}
	collector.TimeStage("tracks", started)

	logTables(cfg, result.Tables)

	// Projection
	if system != projection.CoordinateSystemNone {
		result.ProjectionFailures = projection.Apply(result.Points, system)
	}

	// Export
	started = time.Now()
	outputs, err := export.WriteTables(cfg.OutputDir, int(cfg.Interval), result.LegRows, result.Points, cfg.ExportFormats)
	if err != nil {
		return nil, err
	}
	for key, path := range outputs {
		result.Outputs[key] = path
	}
	collector.TimeStage("export", started)

	// Auxiliary outputs never fail the run
	if cfg.EventsPath != "" {
		started = time.Now()
		if err := runVehicleUsage(cfg, result); err != nil {
			collector.AuxiliaryFailures.WithLabelValues("vehicle_usage").Inc()
			result.warn("vehicle_usage", err)
		}
		collector.TimeStage("vehicle_usage", started)

		if cfg.ExportFilteredEvents {
			started = time.Now()
			if err := runFilteredEvents(cfg, result); err != nil {
				collector.AuxiliaryFailures.WithLabelValues("filtered_events").Inc()
				result.warn("filtered_events", err)
			}
			collector.TimeStage("filtered_events", started)
		}
	}

	if cfg.MetricsFile != "" {
		if err := collector.WriteFile(cfg.MetricsFile); err != nil {
			result.warn("metrics", err)
		} else {
			result.Outputs["metrics"] = cfg.MetricsFile
		}
	}

	log.Info().
		Int("itineraries", len(result.Itineraries)).
		Int("legs", len(result.LegRows)).
		Int("points", len(result.Points)).
		Msg("Successfully built agent tracks")

	return result, nil
}

func (r *Result) warn(stage string, err error) {
	r.Warnings = append(r.Warnings, fmt.Sprintf("%s: %s", stage, err))
	log.Warn().Err(err).Str("stage", stage).Msg("Auxiliary step failed")
}

func (r *Result) travelers() map[string]struct{} {
	travelers := map[string]struct{}{}
	for _, it := range r.Itineraries {
		travelers[it.TravelerID] = struct{}{}
	}
	return travelers
}

func runVehicleUsage(cfg *config.Config, result *Result) error {
	travelers := result.travelers()

	usage, err := vehicleusage.Run(vehicleusage.Options{
		EventsPath:   cfg.EventsPath,
		VehiclesPath: cfg.VehiclesPath,
		OutputDir:    cfg.OutputDir,
		Travelers:    travelers,
	})
	if err != nil {
		return err
	}

	for key, path := range usage.Outputs {
		result.Outputs[key] = path
	}

	log.Info().
		Int("total", usage.TotalVehicles).
		Int("used", len(usage.Usage)).
		Msg("Vehicle usage complete")

	return nil
}

func runFilteredEvents(cfg *config.Config, result *Result) error {
	path, kept, err := vehicleusage.FilterFile(cfg.EventsPath, cfg.OutputDir, result.travelers())
	if err != nil {
		return err
	}
	if path == "" {
		return nil
	}

	result.Outputs["filtered_events_xml"] = path
	log.Info().Int("events", kept).Str("path", path).Msg("Filtered events written")

	return nil
}

func logTables(cfg *config.Config, tables *Tables) {
	legStats := tables.LegStats

	log.Info().
		Int("legs", legStats.Legs).
		Int("rows", legStats.Rows).
		Int("expanded", legStats.ExpandedLegs).
		Int("hops", legStats.ExpandedRows).
		Msg("Built legs table")

	for _, reason := range legStats.FallbackReasons() {
		log.Info().Str("reason", string(reason)).Int("legs", legStats.Fallbacks[reason]).Msg("Transit legs kept as single rows")
	}

	if legStats.MalformedPayloads > 0 && legs.MalformedPolicy(cfg.MalformedPayload) == legs.MalformedPolicyWarn {
		log.Warn().Int("payloads", legStats.MalformedPayloads).Msg("Transit route payloads could not be decoded")
	}
	if legStats.MissingStopPositions > 0 {
		log.Warn().Int("hops", legStats.MissingStopPositions).Msg("Expanded hops reference stops without a position")
	}
	if legStats.InvertedRows > 0 {
		log.Warn().Int("rows", legStats.InvertedRows).Msg("Leg rows end before they start")
	}

	trackStats := tables.TrackStats
	log.Info().
		Int("rows", trackStats.Rows).
		Int("sampled", trackStats.SampledRows).
		Int("points", trackStats.Points).
		Msg("Sampled track points")

	if trackStats.ExpressionFailures > 0 {
		log.Warn().Int("rows", trackStats.ExpressionFailures).Msg("Include expression failed to evaluate")
	}

	matchStats := tables.MatchStats
	if matchStats.Points > 0 {
		log.Info().
			Int("time", matchStats.TimeMatches).
			Int("spatial", matchStats.SpatialMatches).
			Int("unmatched", matchStats.Unmatched).
			Msg("Matched track points to activities")
	}
}
