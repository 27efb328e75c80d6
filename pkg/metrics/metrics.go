package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/travigo/simtracks/pkg/activitymatch"
	"github.com/travigo/simtracks/pkg/legs"
	"github.com/travigo/simtracks/pkg/tracks"
)

// Collector holds the counters of one pipeline run on a private registry.
type Collector struct {
	reg *prometheus.Registry

	ItinerariesParsed prometheus.Counter
	DegradedFields    prometheus.Counter

	Legs              prometheus.Counter
	LegRows           prometheus.Counter
	ExpandedLegs      prometheus.Counter
	LegFallbacks      *prometheus.CounterVec // reason label
	MalformedPayloads prometheus.Counter

	TrackPoints   prometheus.Counter
	SkippedRows   *prometheus.CounterVec // reason label
	ActivityMatch *prometheus.CounterVec // method label: time|spatial|none

	AuxiliaryFailures *prometheus.CounterVec // stage label
	StageDuration     *prometheus.GaugeVec   // stage label, seconds

	SamplingInterval prometheus.Gauge // seconds
	Workers          prometheus.Gauge
}

func NewCollector(interval int, workers int) *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		ItinerariesParsed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "simtracks_itineraries_parsed_total",
			Help: "Selected itineraries read from the plans file.",
		}),
		DegradedFields: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "simtracks_degraded_fields_total",
			Help: "Time or coordinate fields that could not be parsed.",
		}),
		Legs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "simtracks_legs_total",
			Help: "Legs of the selected itineraries.",
		}),
		LegRows: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "simtracks_leg_rows_total",
			Help: "Rows written to the legs table.",
		}),
		ExpandedLegs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "simtracks_expanded_legs_total",
			Help: "Transit legs expanded into stop to stop rows.",
		}),
		LegFallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "simtracks_leg_fallbacks_total",
			Help: "Transit legs kept as a single row.",
		}, []string{"reason"}),
		MalformedPayloads: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "simtracks_malformed_payloads_total",
			Help: "Transit route payloads that could not be decoded.",
		}),
		TrackPoints: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "simtracks_track_points_total",
			Help: "Track points sampled from the legs table.",
		}),
		SkippedRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "simtracks_sampler_skipped_rows_total",
			Help: "Leg rows that produced no track points.",
		}, []string{"reason"}),
		ActivityMatch: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "simtracks_activity_matches_total",
			Help: "Track points by activity match method.",
		}, []string{"method"}),
		AuxiliaryFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "simtracks_auxiliary_failures_total",
			Help: "Auxiliary stages that failed without stopping the run.",
		}, []string{"stage"}),
		StageDuration: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "simtracks_stage_duration_seconds",
			Help: "Wall time spent in each pipeline stage.",
		}, []string{"stage"}),
		SamplingInterval: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "simtracks_sampling_interval_seconds",
			Help: "Track sampling interval in seconds.",
		}),
		Workers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "simtracks_workers",
			Help: "Number of concurrent per traveler workers.",
		}),
	}

	// Register
	reg.MustRegister(
		c.ItinerariesParsed, c.DegradedFields,
		c.Legs, c.LegRows, c.ExpandedLegs, c.LegFallbacks, c.MalformedPayloads,
		c.TrackPoints, c.SkippedRows, c.ActivityMatch,
		c.AuxiliaryFailures, c.StageDuration,
		c.SamplingInterval, c.Workers,
	)

	c.SamplingInterval.Set(float64(interval))
	c.Workers.Set(float64(workers))

	return c
}

func (c *Collector) RecordLegs(stats legs.Stats) {
	c.Legs.Add(float64(stats.Legs))
	c.LegRows.Add(float64(stats.Rows))
	c.ExpandedLegs.Add(float64(stats.ExpandedLegs))
	c.MalformedPayloads.Add(float64(stats.MalformedPayloads))

	for reason, count := range stats.Fallbacks {
		c.LegFallbacks.WithLabelValues(string(reason)).Add(float64(count))
	}
}

func (c *Collector) RecordTracks(stats tracks.Stats) {
	c.TrackPoints.Add(float64(stats.Points))

	c.SkippedRows.WithLabelValues("mode").Add(float64(stats.SkippedMode))
	c.SkippedRows.WithLabelValues("expression").Add(float64(stats.SkippedExpression))
	c.SkippedRows.WithLabelValues("missing_time").Add(float64(stats.MissingTime))
	c.SkippedRows.WithLabelValues("missing_position").Add(float64(stats.MissingPosition))
	c.SkippedRows.WithLabelValues("empty_window").Add(float64(stats.EmptyWindow))
}

func (c *Collector) RecordMatches(stats activitymatch.Stats) {
	c.ActivityMatch.WithLabelValues("time").Add(float64(stats.TimeMatches))
	c.ActivityMatch.WithLabelValues("spatial").Add(float64(stats.SpatialMatches))
	c.ActivityMatch.WithLabelValues("none").Add(float64(stats.Unmatched))
}

// TimeStage records how long a stage took. Use as
// defer c.TimeStage("legs", time.Now()).
func (c *Collector) TimeStage(stage string, started time.Time) {
	c.StageDuration.WithLabelValues(stage).Set(time.Since(started).Seconds())
}

// WriteFile writes the registry in the text exposition format, for the node
// exporter textfile collector.
func (c *Collector) WriteFile(path string) error {
	return prometheus.WriteToTextfile(path, c.reg)
}
