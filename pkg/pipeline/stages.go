package pipeline

import (
	"context"

	"github.com/sourcegraph/conc/pool"
	"github.com/travigo/simtracks/pkg/activitymatch"
	"github.com/travigo/simtracks/pkg/config"
	"github.com/travigo/simtracks/pkg/legs"
	"github.com/travigo/simtracks/pkg/model"
	"github.com/travigo/simtracks/pkg/tracks"
)

// Stages are the per traveler steps of a run. The schedule index behind the
// builder is the only state shared between travelers.
type Stages struct {
	Builder *legs.Builder
	Sampler *tracks.Sampler

	// Matcher is nil when activity matching is disabled
	Matcher *activitymatch.Matcher
}

func NewStages(cfg *config.Config, index legs.StopIndex) (*Stages, error) {
	builder := legs.NewBuilder(index)
	builder.TransitModes = cfg.TransitModes
	builder.TransitRouteTypes = cfg.TransitRouteTypes
	builder.MalformedPolicy = legs.MalformedPolicy(cfg.MalformedPayload)
	builder.IntermediateStart = legs.IntermediateStart(cfg.IntermediateStart)

	sampler, err := tracks.NewSampler(int(cfg.Interval), cfg.IncludeModes, cfg.IncludeExpr)
	if err != nil {
		return nil, err
	}

	stages := &Stages{
		Builder: builder,
		Sampler: sampler,
	}
	if cfg.ActivityMatching {
		stages.Matcher = &activitymatch.Matcher{ThresholdMeters: cfg.SpatialThresholdMeters}
	}

	return stages, nil
}

// Tables are the merged outputs of every traveler, in their deterministic
// order.
type Tables struct {
	LegRows []model.LegRow
	Points  []model.TrackPoint

	LegStats   legs.Stats
	TrackStats tracks.Stats
	MatchStats activitymatch.Stats
}

type travelerTables struct {
	rows   []model.LegRow
	points []model.TrackPoint

	legStats   legs.Stats
	trackStats tracks.Stats
	matchStats activitymatch.Stats
}

func (s *Stages) processTraveler(it *model.Itinerary) (travelerTables, error) {
	var result travelerTables
	var err error

	result.rows, result.legStats, err = s.Builder.Build(it)
	if err != nil {
		return result, err
	}

	result.points, result.trackStats = s.Sampler.Sample(result.rows)

	if s.Matcher != nil {
		activities := map[string][]activitymatch.ActivityInfo{
			it.TravelerID: activitymatch.Activities(it),
		}
		result.points, result.matchStats, err = s.Matcher.Match(result.points, activities)
		if err != nil {
			return result, err
		}
	}

	return result, nil
}

// Process runs every itinerary through the stages on at most workers
// goroutines. The first failure cancels the remaining travelers.
func (s *Stages) Process(ctx context.Context, itineraries []*model.Itinerary, workers int) (*Tables, error) {
	if workers < 1 {
		workers = 1
	}

	p := pool.NewWithResults[travelerTables]().
		WithContext(ctx).
		WithCancelOnError().
		WithMaxGoroutines(workers)

	for _, it := range itineraries {
		p.Go(func(ctx context.Context) (travelerTables, error) {
			if err := ctx.Err(); err != nil {
				return travelerTables{}, err
			}
			return s.processTraveler(it)
		})
	}

	results, err := p.Wait()
	if err != nil {
		return nil, err
	}

	tables := &Tables{}
	tables.LegStats.Fallbacks = map[legs.FallbackReason]int{}
	for _, result := range results {
		tables.LegRows = append(tables.LegRows, result.rows...)
		tables.Points = append(tables.Points, result.points...)

		tables.LegStats.Add(result.legStats)
		tables.TrackStats.Add(result.trackStats)
		tables.MatchStats.Add(result.matchStats)
	}

	legs.Sort(tables.LegRows)
	tracks.Sort(tables.Points)

	if s.Matcher != nil {
		activitymatch.Summarise(tables.Points)
	}

	return tables, nil
}
