package transitschedule

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/paulmach/orb"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/travigo/simtracks/pkg/model"
)

const scheduleDocument = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE transitSchedule SYSTEM "http://www.matsim.org/files/dtd/transitSchedule_v2.dtd">
<transitSchedule>
	<transitStops>
		<stopFacility id="S1" x="0" y="0" linkRefId="l1" name="First"/>
		<stopFacility id="S2" x="300" y="0"/>
		<stopFacility id="S3" x="600" y="0"/>
		<stopFacility id="S4" x="" y="10"/>
	</transitStops>
	<transitLine id="L1">
		<transportMode>rail</transportMode>
		<transitRoute id="r1">
			<transportMode>subway</transportMode>
			<routeProfile>
				<stop refId="S1" departureOffset="00:00:00"/>
				<stop refId="S2" arrivalOffset="00:05:00" departureOffset="00:05:10"/>
				<stop refId="S3" arrivalOffset="00:10:00"/>
			</routeProfile>
			<route><link refId="l1"/></route>
			<departures><departure id="d1" departureTime="08:00:00" vehicleRefId="v1"/></departures>
		</transitRoute>
		<transitRoute id="r2">
			<routeProfile>
				<stop refId="S3"/>
				<stop refId="S1" arrivalOffset="00:10:00" departureOffset="00:10:00"/>
			</routeProfile>
		</transitRoute>
		<transitRoute id="empty">
			<transportMode>bus</transportMode>
			<routeProfile/>
		</transitRoute>
	</transitLine>
	<transitLine id="L2">
		<transitRoute id="r1">
			<transportMode>tram</transportMode>
			<routeProfile>
				<stop refId="S2" departureOffset="00:00:00"/>
				<stop refId="S3" arrivalOffset="00:02:00"/>
			</routeProfile>
		</transitRoute>
	</transitLine>
</transitSchedule>`

func parse(t *testing.T) *Index {
	t.Helper()

	index, err := Parse(strings.NewReader(scheduleDocument))
	require.NoError(t, err)
	return index
}

func TestParseStops(t *testing.T) {
	index := parse(t)

	position, exists := index.StopPosition("S2")
	require.True(t, exists)
	assert.Equal(t, orb.Point{300, 0}, position)

	_, exists = index.StopPosition("S4")
	assert.False(t, exists, "stop with a missing coordinate is skipped")

	stop, exists := index.Stop("S1")
	require.True(t, exists)
	assert.Equal(t, "l1", stop.LinkRef)
	assert.Equal(t, "First", stop.Name)

	stats := index.Stats()
	assert.Equal(t, 3, stats.Stops)
	assert.Equal(t, 1, stats.SkippedStops)
}

func TestParseRouteStops(t *testing.T) {
	index := parse(t)

	stops, exists := index.RouteStops("L1", "r1")
	require.True(t, exists)
	assert.Equal(t, []model.RouteStop{
		{StopID: "S1", ArrivalOffset: 0, DepartureOffset: 0},
		{StopID: "S2", ArrivalOffset: 300, DepartureOffset: 310},
		{StopID: "S3", ArrivalOffset: 600, DepartureOffset: 600},
	}, stops)

	stops, exists = index.RouteStops("L2", "r1")
	require.True(t, exists)
	assert.Equal(t, "S2", stops[0].StopID)

	stops, exists = index.RouteStops("", "r1")
	require.True(t, exists)
	assert.Equal(t, "S1", stops[0].StopID, "bare route id resolves to the first line")

	stops, exists = index.RouteStops("unknown-line", "r2")
	require.True(t, exists)
	assert.Equal(t, model.RouteStop{StopID: "S3"}, stops[0])

	_, exists = index.RouteStops("L1", "empty")
	assert.False(t, exists, "routes without stops are omitted")

	_, exists = index.RouteStops("L1", "")
	assert.False(t, exists)

	stats := index.Stats()
	assert.Equal(t, 2, stats.Lines)
	assert.Equal(t, 3, stats.Routes)
	assert.Equal(t, 1, stats.RoutesWithoutStops)
	assert.Equal(t, 1, stats.DuplicateRouteIDs)
	assert.Equal(t, 5, stats.DefaultedOffsets)
}

func TestResolveMode(t *testing.T) {
	index := parse(t)

	tests := []struct {
		name   string
		line   string
		route  string
		expect string
	}{
		{"route mode overrides line", "L1", "r1", "subway"},
		{"route inherits line mode", "L1", "r2", "rail"},
		{"composite key", "L2", "r1", "tram"},
		{"bare route id", "", "r1", "subway"},
		{"unknown route falls back to line", "L1", "nope", "rail"},
		{"route without stops keeps its mode", "L1", "empty", "bus"},
		{"nothing known", "L9", "nope", ""},
		{"empty ids", "", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expect, index.ResolveMode(tt.line, tt.route))
		})
	}
}

func TestParseErrors(t *testing.T) {
	_, err := Parse(strings.NewReader(`<population/>`))
	assert.ErrorIs(t, err, ErrNoRoot)

	_, err = Parse(strings.NewReader(`<transitSchedule><transitLine id="x">`))
	assert.Error(t, err)
}

func TestLoadEmptyScheduleWarns(t *testing.T) {
	var buf bytes.Buffer
	previous := log.Logger
	log.Logger = zerolog.New(&buf).Level(zerolog.WarnLevel)
	defer func() { log.Logger = previous }()

	path := filepath.Join(t.TempDir(), "transitSchedule.xml")
	require.NoError(t, os.WriteFile(path, []byte(`<transitSchedule><transitStops/></transitSchedule>`), 0o644))

	index, err := Load(path)
	require.NoError(t, err)
	assert.True(t, index.IsEmpty())
	assert.Contains(t, buf.String(), "Transit schedule has no stops or routes")

	buf.Reset()
	_, err = Load("")
	require.NoError(t, err)
	assert.Empty(t, buf.String())
}

func TestLoad(t *testing.T) {
	index, err := Load("")
	require.NoError(t, err)
	assert.True(t, index.IsEmpty())

	index, err = Load(filepath.Join(t.TempDir(), "missing.xml"))
	require.NoError(t, err)
	assert.True(t, index.IsEmpty())

	path := filepath.Join(t.TempDir(), "transitSchedule.xml.gz")
	file, err := os.Create(path)
	require.NoError(t, err)
	writer := gzip.NewWriter(file)
	_, err = writer.Write([]byte(scheduleDocument))
	require.NoError(t, err)
	require.NoError(t, writer.Close())
	require.NoError(t, file.Close())

	index, err = Load(path)
	require.NoError(t, err)
	assert.False(t, index.IsEmpty())
	_, exists := index.RouteStops("L1", "r1")
	assert.True(t, exists)

	broken := filepath.Join(t.TempDir(), "broken.xml")
	require.NoError(t, os.WriteFile(broken, []byte(`<network/>`), 0o644))
	_, err = Load(broken)
	assert.ErrorIs(t, err, ErrNoRoot)
	assert.Contains(t, err.Error(), broken)
}
