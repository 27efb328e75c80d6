package population

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/travigo/simtracks/pkg/model"
)

const populationDocument = `<?xml version="1.0" encoding="utf-8"?>
<!DOCTYPE population SYSTEM "http://www.matsim.org/files/dtd/population_v6.dtd">
<population>
	<person id="p1">
		<plan selected="no">
			<activity type="ignored" x="9" y="9" end_time="01:00:00"/>
		</plan>
		<plan selected="yes">
			<activity type="home" x="0.0" y="0.0" link="l1" end_time="08:00:00"/>
			<leg mode="walk" dep_time="08:00:00" trav_time="00:05:00">
				<attributes>
					<attribute name="routingMode" class="java.lang.String">pt</attribute>
				</attributes>
				<route type="generic" start_link="l1" end_link="l2" distance="412.5"></route>
			</leg>
			<leg mode="pt" departure_time="08:05:00">
				<route type="default_pt" start_link="l2" end_link="l9" vehicleRefId="veh_1">{"transitRouteId":"r1","transitLineId":"L1","accessFacilityId":"S1","egressFacilityId":"S3","boardingTime":"08:06:00"}</route>
			</leg>
			<activity type="work" x="100" y="nope" link="l9" startTime="08:30:00" max_dur="08:00:00"/>
		</plan>
	</person>
	<person id="p2">
		<plan selected="no">
			<activity type="home" x="1" y="1"/>
		</plan>
	</person>
	<person id="p3">
		<plan selected="yes">
			<activity type="home" x="5" y="5" end_time="undefined"/>
		</plan>
		<plan selected="yes">
			<activity type="second" x="6" y="6"/>
		</plan>
	</person>
</population>`

func parseAll(t *testing.T, document string) ([]*model.Itinerary, Stats) {
	t.Helper()

	var itineraries []*model.Itinerary
	stats, err := Parse(strings.NewReader(document), func(it *model.Itinerary) error {
		itineraries = append(itineraries, it)
		return nil
	})
	require.NoError(t, err)

	return itineraries, stats
}

func TestParseSelectedPlans(t *testing.T) {
	itineraries, stats := parseAll(t, populationDocument)

	require.Len(t, itineraries, 2)
	assert.Equal(t, "p1", itineraries[0].TravelerID)
	assert.Equal(t, "p3", itineraries[1].TravelerID)

	assert.Equal(t, 3, stats.Persons)
	assert.Equal(t, 2, stats.Itineraries)
	assert.Equal(t, 3, stats.SkippedPlans)
	assert.Equal(t, 3, stats.Activities)
	assert.Equal(t, 2, stats.Legs)

	p3 := itineraries[1]
	require.Len(t, p3.Entries, 1)
	assert.Equal(t, "home", p3.Entries[0].Activity.Type)
	assert.Nil(t, p3.Entries[0].Activity.EndTime)
}

func TestParseEntries(t *testing.T) {
	itineraries, stats := parseAll(t, populationDocument)
	p1 := itineraries[0]

	require.Len(t, p1.Entries, 4)
	kinds := []model.EntryKind{}
	for _, entry := range p1.Entries {
		kinds = append(kinds, entry.Kind)
	}
	assert.Equal(t, []model.EntryKind{model.EntryActivity, model.EntryLeg, model.EntryLeg, model.EntryActivity}, kinds)

	home := p1.Entries[0].Activity
	require.NotNil(t, home.Position)
	assert.Equal(t, 0.0, home.Position.X())
	assert.Equal(t, "l1", home.Link)
	assert.Nil(t, home.StartTime)
	assert.Equal(t, 8*3600, *home.EndTime)

	walk := p1.Entries[1].Leg
	assert.Equal(t, "walk", walk.Mode)
	assert.Equal(t, 8*3600, *walk.DepartureTime)
	assert.Equal(t, 300, *walk.TravelTime)
	assert.Equal(t, map[string]string{"routingMode": "pt"}, walk.Attributes)
	require.NotNil(t, walk.Route)
	assert.Equal(t, "generic", walk.Route.Type)
	assert.Equal(t, "l1", walk.Route.StartLink)
	assert.Equal(t, "l2", walk.Route.EndLink)
	assert.Equal(t, 412.5, *walk.Route.Distance)

	pt := p1.Entries[2].Leg
	assert.Equal(t, 8*3600+300, *pt.DepartureTime)
	assert.Nil(t, pt.TravelTime)
	assert.Nil(t, pt.Attributes)
	assert.Equal(t, model.RouteTypeDefaultPT, pt.RouteType())
	assert.Equal(t, "veh_1", pt.Route.VehicleRef)
	assert.Contains(t, pt.Route.Raw, `"transitRouteId":"r1"`)

	work := p1.Entries[3].Activity
	assert.Nil(t, work.Position, "unparseable y degrades the position")
	assert.Equal(t, 8*3600+1800, *work.StartTime)
	assert.Nil(t, work.EndTime, "max_dur is not an end time")
	assert.Equal(t, 8*3600, *work.MaxDuration)

	assert.Equal(t, 1, stats.DegradedFields)
}

func TestParseLegacyAttributeNames(t *testing.T) {
	document := `<plans>
	<person id="legacy">
		<plan selected="yes">
			<act type="h" x="1" y="2" startTime="00:00:10" endTime="00:01:00"/>
			<leg mode="car" departureTime="60" travelTime="30.9">
				<route type="links" startLink="a" endLink="b">a b</route>
			</leg>
			<act type="w" x="3" y="4" start_time="00:01:30"/>
		</plan>
	</person>
</plans>`

	itineraries, _ := parseAll(t, document)
	require.Len(t, itineraries, 1)

	activities := itineraries[0].Activities()
	require.Len(t, activities, 2)
	assert.Equal(t, 10, *activities[0].StartTime)
	assert.Equal(t, 60, *activities[0].EndTime)

	legs := itineraries[0].Legs()
	require.Len(t, legs, 1)
	assert.Equal(t, 60, *legs[0].DepartureTime)
	assert.Equal(t, 30, *legs[0].TravelTime)
	assert.Equal(t, "a", legs[0].Route.StartLink)
	assert.Equal(t, "b", legs[0].Route.EndLink)
	assert.Equal(t, "a b", legs[0].Route.Raw)
}

func TestParsePlanAttributesStayOffLegs(t *testing.T) {
	document := `<population>
	<person id="p">
		<attributes><attribute name="age" class="java.lang.Integer">40</attribute></attributes>
		<plan selected="yes">
			<activity type="h" x="0" y="0" end_time="00:00:10"/>
			<leg mode="walk"/>
			<activity type="w" x="0" y="0">
				<attributes><attribute name="comment" class="java.lang.String">x</attribute></attributes>
			</activity>
		</plan>
	</person>
</population>`

	itineraries, _ := parseAll(t, document)
	require.Len(t, itineraries, 1)
	assert.Nil(t, itineraries[0].Legs()[0].Attributes)
}

func TestParseErrors(t *testing.T) {
	_, err := Parse(strings.NewReader(`<network><nodes/></network>`), func(*model.Itinerary) error { return nil })
	assert.ErrorIs(t, err, ErrNoRoot)

	_, err = Parse(strings.NewReader(``), func(*model.Itinerary) error { return nil })
	assert.ErrorIs(t, err, ErrNoRoot)

	_, err = Parse(strings.NewReader(`<population><person id="p"><plan selected="yes">`), func(*model.Itinerary) error { return nil })
	assert.Error(t, err)

	stop := errors.New("stop")
	_, err = Parse(strings.NewReader(populationDocument), func(*model.Itinerary) error { return stop })
	assert.ErrorIs(t, err, stop)
}

func TestParseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plans.xml")
	require.NoError(t, os.WriteFile(path, []byte(populationDocument), 0o644))

	itineraries, stats, err := ParseFile(path)
	require.NoError(t, err)
	assert.Len(t, itineraries, 2)
	assert.Equal(t, 2, stats.Itineraries)

	broken := filepath.Join(t.TempDir(), "broken.xml")
	require.NoError(t, os.WriteFile(broken, []byte(`<population><person`), 0o644))

	_, _, err = ParseFile(broken)
	require.Error(t, err)
	assert.Contains(t, err.Error(), broken)

	_, _, err = ParseFile(filepath.Join(t.TempDir(), "missing.xml"))
	assert.Error(t, err)
}
