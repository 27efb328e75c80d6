package pipeline

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/travigo/simtracks/pkg/config"
	"github.com/travigo/simtracks/pkg/formats/population"
	"github.com/travigo/simtracks/pkg/formats/transitschedule"
	"github.com/travigo/simtracks/pkg/legs"
	"github.com/travigo/simtracks/pkg/model"
)

const plansDocument = `<?xml version="1.0" encoding="utf-8"?>
<population>
	<person id="walker">
		<plan selected="yes">
			<activity type="home" x="0" y="0" end_time="00:00:00"/>
			<leg mode="walk" dep_time="00:00:00" trav_time="00:00:20"/>
			<activity type="shop" x="100" y="0"/>
		</plan>
	</person>
	<person id="rider">
		<plan selected="yes">
			<activity type="home" x="0" y="0" end_time="00:16:40"/>
			<leg mode="pt" dep_time="00:16:40">
				<route type="default_pt" start_link="l1" end_link="l3">{"transitRouteId":"r1","transitLineId":"L1","accessFacilityId":"S1","egressFacilityId":"S3","boardingTime":"00:16:40"}</route>
			</leg>
			<activity type="work" x="600" y="0" start_time="00:26:40"/>
		</plan>
	</person>
	<person id="incomplete">
		<plan selected="yes">
			<activity type="home" x="0" y="0" end_time="00:33:20"/>
			<leg mode="pt" dep_time="00:33:20" trav_time="00:01:40">
				<route type="default_pt">{"transitRouteId":"r1","transitLineId":"L1"}</route>
			</leg>
			<activity type="work" x="50" y="0"/>
		</plan>
	</person>
	<person id="commuter">
		<plan selected="yes">
			<activity type="home" x="0" y="0" start_time="00:00:00" end_time="00:05:00"/>
			<leg mode="walk" dep_time="00:05:00"/>
			<activity type="work" x="5000" y="0" start_time="00:15:00" end_time="00:33:20"/>
		</plan>
	</person>
</population>`

const scheduleDocument = `<?xml version="1.0" encoding="UTF-8"?>
<transitSchedule>
	<transitStops>
		<stopFacility id="S1" x="0" y="0" linkRefId="l1" name="Central"/>
		<stopFacility id="S2" x="300" y="0"/>
		<stopFacility id="S3" x="600" y="0"/>
	</transitStops>
	<transitLine id="L1">
		<transitRoute id="r1">
			<transportMode>subway</transportMode>
			<routeProfile>
				<stop refId="S1" arrivalOffset="00:00:00" departureOffset="00:00:00"/>
				<stop refId="S2" arrivalOffset="00:05:00" departureOffset="00:05:10"/>
				<stop refId="S3" arrivalOffset="00:10:00"/>
			</routeProfile>
		</transitRoute>
	</transitLine>
</transitSchedule>`

func writeInputs(t *testing.T) (*config.Config, string) {
	t.Helper()
	dir := t.TempDir()

	plansPath := filepath.Join(dir, "output_plans.xml")
	require.NoError(t, os.WriteFile(plansPath, []byte(plansDocument), 0o644))

	schedulePath := filepath.Join(dir, "transitSchedule.xml")
	require.NoError(t, os.WriteFile(schedulePath, []byte(scheduleDocument), 0o644))

	cfg := config.Defaults()
	cfg.PlansPath = plansPath
	cfg.SchedulePath = schedulePath
	cfg.OutputDir = filepath.Join(dir, "out")
	cfg.Workers = 3
	require.NoError(t, cfg.Validate())

	return cfg, dir
}

func rowsOf(rows []model.LegRow, traveler string) []model.LegRow {
	var selected []model.LegRow
	for _, row := range rows {
		if row.TravelerID == traveler {
			selected = append(selected, row)
		}
	}
	return selected
}

func pointsOf(points []model.TrackPoint, traveler string) []model.TrackPoint {
	var selected []model.TrackPoint
	for _, point := range points {
		if point.TravelerID == traveler {
			selected = append(selected, point)
		}
	}
	return selected
}

func pointAt(t *testing.T, points []model.TrackPoint, time int) model.TrackPoint {
	t.Helper()
	for _, point := range points {
		if point.Time == time {
			return point
		}
	}
	t.Fatalf("no point at %d", time)
	return model.TrackPoint{}
}

func TestRun(t *testing.T) {
	cfg, _ := writeInputs(t)

	result, err := Run(context.Background(), cfg)
	require.NoError(t, err)

	assert.Len(t, result.Itineraries, 4)
	assert.Equal(t, 3, result.ScheduleStats.Stops)
	assert.Empty(t, result.Warnings)

	assert.FileExists(t, filepath.Join(cfg.OutputDir, "legs_table.csv"))
	assert.FileExists(t, filepath.Join(cfg.OutputDir, "tracks_dt5s.csv"))
	assert.Equal(t, filepath.Join(cfg.OutputDir, "legs_table.csv"), result.Outputs["legs_csv"])

	t.Run("walk leg is sampled every interval", func(t *testing.T) {
		points := pointsOf(result.Points, "walker")
		require.Len(t, points, 5)

		for i, point := range points {
			assert.Equal(t, i*5, point.Time)
			assert.InDelta(t, float64(i*25), point.Position.X(), 1e-9)
			assert.InDelta(t, 0.0, point.Position.Y(), 1e-9)
			assert.Equal(t, "walk", point.Mode)
		}
	})

	t.Run("transit leg is expanded per stop", func(t *testing.T) {
		rows := rowsOf(result.LegRows, "rider")
		require.Len(t, rows, 2)

		assert.Equal(t, 1000, *rows[0].StartTime)
		assert.Equal(t, 1300, *rows[0].EndTime)
		assert.Equal(t, "S1", rows[0].SegmentStartStop)
		assert.Equal(t, "S2", rows[0].SegmentEndStop)

		assert.Equal(t, 1310, *rows[1].StartTime)
		assert.Equal(t, 1600, *rows[1].EndTime)
		assert.Equal(t, "S2", rows[1].SegmentStartStop)
		assert.Equal(t, "S3", rows[1].SegmentEndStop)

		for _, row := range rows {
			assert.Equal(t, 0, row.LegIndex)
			assert.True(t, row.Expanded)
			assert.Equal(t, "subway", row.DisplayMode())
		}

		points := pointsOf(result.Points, "rider")
		assert.Len(t, points, 61+59)
		assert.Equal(t, "subway", points[0].Mode)
		assert.Equal(t, "pt", points[0].RawMode)
		assert.Equal(t, "L1", points[0].Transit.TransitLineID)
	})

	t.Run("incomplete transit payload keeps a single row", func(t *testing.T) {
		rows := rowsOf(result.LegRows, "incomplete")
		require.Len(t, rows, 1)
		assert.False(t, rows[0].Expanded)
		assert.Equal(t, 2000, *rows[0].StartTime)
		assert.Equal(t, 2100, *rows[0].EndTime)
		assert.Equal(t, 1, result.LegStats.Fallbacks[legs.FallbackNoAccessEgress])
	})

	t.Run("points between activities match only nearby activities", func(t *testing.T) {
		points := pointsOf(result.Points, "commuter")
		require.Len(t, points, 121)

		home := pointAt(t, points, 300)
		assert.Equal(t, model.MatchMethodTime, home.Activity.Method)
		assert.Equal(t, "home", home.Activity.Type)

		nearHome := pointAt(t, points, 320)
		assert.Equal(t, model.MatchMethodSpatial, nearHome.Activity.Method)
		assert.Equal(t, "home", nearHome.Activity.Type)
		require.NotNil(t, nearHome.Activity.DistanceKm)

		between := pointAt(t, points, 500)
		assert.Equal(t, model.MatchMethodNone, between.Activity.Method)
		assert.Empty(t, between.Activity.Type)

		work := pointAt(t, points, 900)
		assert.Equal(t, model.MatchMethodTime, work.Activity.Method)
		assert.Equal(t, "work", work.Activity.Type)

		assert.Equal(t, "home,work", between.ActivityTypes)
		require.NotNil(t, between.ActivityCount)
		assert.Equal(t, 2, *between.ActivityCount)
	})

	t.Run("every leg keeps its index", func(t *testing.T) {
		for _, it := range result.Itineraries {
			indexes := map[int]bool{}
			for _, row := range rowsOf(result.LegRows, it.TravelerID) {
				indexes[row.LegIndex] = true
			}
			assert.Len(t, indexes, len(it.Legs()), it.TravelerID)
		}
	})

	t.Run("track points are ordered", func(t *testing.T) {
		for i := 1; i < len(result.Points); i++ {
			previous, current := result.Points[i-1], result.Points[i]
			assert.LessOrEqual(t, previous.Time, current.Time)
			if previous.Time == current.Time {
				assert.LessOrEqual(t, previous.TravelerID, current.TravelerID)
			}
		}
	})
}

func TestRunIsDeterministic(t *testing.T) {
	cfg, _ := writeInputs(t)
	cfg.Workers = 1
	first, err := Run(context.Background(), cfg)
	require.NoError(t, err)

	cfg.Workers = 8
	second, err := Run(context.Background(), cfg)
	require.NoError(t, err)

	assert.Equal(t, first.LegRows, second.LegRows)
	assert.Equal(t, first.Points, second.Points)
}

func TestRunWithoutSchedule(t *testing.T) {
	cfg, _ := writeInputs(t)
	cfg.SchedulePath = ""

	result, err := Run(context.Background(), cfg)
	require.NoError(t, err)

	rows := rowsOf(result.LegRows, "rider")
	require.Len(t, rows, 1)
	assert.False(t, rows[0].Expanded)
	assert.Equal(t, 2, result.LegStats.Fallbacks[legs.FallbackNoStops])
}

func TestRunFallsBackToPopulation(t *testing.T) {
	cfg, dir := writeInputs(t)
	cfg.PopulationPath = cfg.PlansPath
	cfg.PlansPath = filepath.Join(dir, "missing_plans.xml")

	result, err := Run(context.Background(), cfg)
	require.NoError(t, err)
	assert.Len(t, result.Itineraries, 4)
}

func TestRunMissingInputs(t *testing.T) {
	cfg, dir := writeInputs(t)
	cfg.PlansPath = filepath.Join(dir, "missing.xml")

	_, err := Run(context.Background(), cfg)
	assert.Error(t, err)
	assert.NoDirExists(t, cfg.OutputDir)
}

func TestRunWithoutActivityMatching(t *testing.T) {
	cfg, _ := writeInputs(t)
	cfg.ActivityMatching = false
	cfg.ExportFormats = []string{"csv", "json"}

	result, err := Run(context.Background(), cfg)
	require.NoError(t, err)

	for _, point := range result.Points {
		assert.Equal(t, model.MatchMethodNone, point.Activity.Method)
		assert.Nil(t, point.ActivityCount)
	}
	assert.FileExists(t, filepath.Join(cfg.OutputDir, "tracks_dt5s.json"))
}

func TestRunAuxiliaryFailuresAreWarnings(t *testing.T) {
	cfg, dir := writeInputs(t)

	eventsPath := filepath.Join(dir, "output_events.xml")
	require.NoError(t, os.WriteFile(eventsPath, []byte(`<events><event type="PersonEntersVehicle"`), 0o644))
	cfg.EventsPath = eventsPath
	cfg.MetricsFile = filepath.Join(dir, "metrics.prom")

	result, err := Run(context.Background(), cfg)
	require.NoError(t, err)

	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "vehicle_usage")
	assert.FileExists(t, cfg.MetricsFile)
	assert.FileExists(t, filepath.Join(cfg.OutputDir, "legs_table.csv"))
}

func TestRunFilteredEventsFailureIsWarning(t *testing.T) {
	cfg, dir := writeInputs(t)

	eventsPath := filepath.Join(dir, "output_events.xml")
	require.NoError(t, os.WriteFile(eventsPath, []byte(`<events><event type="PersonEntersVehicle"`), 0o644))
	cfg.EventsPath = eventsPath
	cfg.ExportFilteredEvents = true

	result, err := Run(context.Background(), cfg)
	require.NoError(t, err)

	require.Len(t, result.Warnings, 2)
	assert.Contains(t, result.Warnings[1], "filtered_events")
	assert.NoFileExists(t, filepath.Join(cfg.OutputDir, "filtered_events.xml"))
}

func TestRunVehicleUsage(t *testing.T) {
	cfg, dir := writeInputs(t)

	eventsPath := filepath.Join(dir, "output_events.xml")
	require.NoError(t, os.WriteFile(eventsPath, []byte(`<events>
	<event time="1000" type="PersonEntersVehicle" person="rider" vehicle="veh_1_subway"/>
	<event time="1000" type="PersonEntersVehicle" person="pt_driver_1" vehicle="veh_2_subway"/>
	<event time="1300" type="VehicleArrivesAtFacility" vehicle="veh_1_subway" facility="S2"/>
	<event time="1600" type="PersonLeavesVehicle" person="rider" vehicle="veh_1_subway"/>
	<event time="1700" type="VehicleArrivesAtFacility" vehicle="veh_1_subway" facility="S1"/>
</events>`), 0o644))
	cfg.EventsPath = eventsPath

	result, err := Run(context.Background(), cfg)
	require.NoError(t, err)

	assert.Empty(t, result.Warnings)
	assert.FileExists(t, result.Outputs["filtered_vehicles_csv"])
	assert.FileExists(t, result.Outputs["vehicle_usage_report"])
	assert.NotContains(t, result.Outputs, "filtered_events_xml")

	cfg.ExportFilteredEvents = true
	result, err = Run(context.Background(), cfg)
	require.NoError(t, err)

	assert.Empty(t, result.Warnings)
	require.Contains(t, result.Outputs, "filtered_events_xml")

	data, err := os.ReadFile(result.Outputs["filtered_events_xml"])
	require.NoError(t, err)
	assert.Contains(t, string(data), `facility="S2"`)
	assert.NotContains(t, string(data), `facility="S1"`)
	assert.NotContains(t, string(data), "pt_driver_1")
}

func TestRunWarnsOnceForUnprojectedPoints(t *testing.T) {
	cfg, dir := writeInputs(t)

	plansPath := filepath.Join(dir, "offshore_plans.xml")
	require.NoError(t, os.WriteFile(plansPath, []byte(`<population>
	<person id="offshore">
		<plan selected="yes">
			<activity type="home" x="-100" y="0" end_time="00:00:00"/>
			<leg mode="walk" dep_time="00:00:00" trav_time="00:00:10"/>
			<activity type="shop" x="-50" y="0"/>
		</plan>
	</person>
</population>`), 0o644))
	cfg.PlansPath = plansPath
	cfg.CoordinateSystem = "osgb36"

	var buf bytes.Buffer
	previous := log.Logger
	log.Logger = zerolog.New(&buf).Level(zerolog.WarnLevel)
	defer func() { log.Logger = previous }()

	result, err := Run(context.Background(), cfg)
	require.NoError(t, err)

	require.NotEmpty(t, result.Points)
	assert.Equal(t, len(result.Points), result.ProjectionFailures)
	assert.Equal(t, 1, strings.Count(buf.String(), "British National Grid"))
}

func TestProcessFailsOnMalformedPayload(t *testing.T) {
	cfg, _ := writeInputs(t)
	cfg.MalformedPayload = string(legs.MalformedPolicyFail)

	it := &model.Itinerary{TravelerID: "broken"}
	it.AddLeg(&model.Leg{Mode: "pt", Route: &model.Route{Type: model.RouteTypeDefaultPT, Raw: "{not json"}})

	stages, err := NewStages(cfg, transitschedule.Empty())
	require.NoError(t, err)

	_, err = stages.Process(context.Background(), []*model.Itinerary{it}, 2)
	assert.ErrorIs(t, err, legs.ErrMalformedPayload)
}

func TestProcessCancelled(t *testing.T) {
	cfg, _ := writeInputs(t)

	itineraries, _, err := population.ParseFile(cfg.PlansPath)
	require.NoError(t, err)

	stages, err := NewStages(cfg, transitschedule.Empty())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = stages.Process(ctx, itineraries, 2)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewStagesRejectsBadExpression(t *testing.T) {
	cfg := config.Defaults()
	cfg.IncludeExpr = "Mode =="

	_, err := NewStages(cfg, transitschedule.Empty())
	assert.Error(t, err)
}
