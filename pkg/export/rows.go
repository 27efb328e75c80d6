package export

import (
	"strings"

	"github.com/paulmach/orb"
	"github.com/travigo/simtracks/pkg/model"
	"github.com/travigo/simtracks/pkg/util"
	"golang.org/x/exp/slices"
)

type legRecord struct {
	PersonID           string   `csv:"person_id"`
	LegIndex           int      `csv:"leg_index"`
	Mode               string   `csv:"mode"`
	StartTimeSeconds   *int     `csv:"start_time_s"`
	EndTimeSeconds     *int     `csv:"end_time_s"`
	TravelTimeSeconds  *int     `csv:"trav_time_s"`
	StartTime          string   `csv:"start_time"`
	EndTime            string   `csv:"end_time"`
	StartX             *float64 `csv:"start_x"`
	StartY             *float64 `csv:"start_y"`
	EndX               *float64 `csv:"end_x"`
	EndY               *float64 `csv:"end_y"`
	StartLink          string   `csv:"start_link"`
	EndLink            string   `csv:"end_link"`
	Distance           *float64 `csv:"distance"`
	VehicleRefID       string   `csv:"vehicleRefId"`
	RouteType          string   `csv:"route_type"`
	DisplayMode        string   `csv:"display_mode"`
	TransitLineID      string   `csv:"pt_transitLineId"`
	TransitRouteID     string   `csv:"pt_transitRouteId"`
	BoardingTime       *int     `csv:"pt_boardingTime_s"`
	AccessFacilityID   string   `csv:"pt_accessFacilityId"`
	EgressFacilityID   string   `csv:"pt_egressFacilityId"`
	TransportMode      string   `csv:"pt_transportMode"`
	ChainedDepartureID string   `csv:"pt_chainedDepartureId"`
	SegmentStartStop   string   `csv:"pt_segment_start_stop"`
	SegmentEndStop     string   `csv:"pt_segment_end_stop"`
	Expanded           bool     `csv:"expanded"`
	Attributes         string   `csv:"attributes"`
}

type trackRecord struct {
	TimeSeconds    int      `csv:"time_s"`
	Time           string   `csv:"time"`
	PersonID       string   `csv:"person_id"`
	Mode           string   `csv:"mode"`
	RawMode        string   `csv:"mode_original"`
	X              float64  `csv:"x"`
	Y              float64  `csv:"y"`
	Latitude       *float64 `csv:"lat"`
	Longitude      *float64 `csv:"lon"`
	LegIndex       int      `csv:"leg_index"`
	Status         string   `csv:"status"`
	VehicleRefID   string   `csv:"vehicleRefId"`
	TransitLineID  string   `csv:"pt_transitLineId"`
	TransitRouteID string   `csv:"pt_transitRouteId"`
	TransportMode  string   `csv:"pt_transportMode"`

	ActivityType     string   `csv:"activity_type"`
	ActivitySequence *int     `csv:"activity_sequence"`
	ActivityLink     string   `csv:"activity_link"`
	ActivityDistKm   *float64 `csv:"activity_dist_km"`
	ActivityMatch    string   `csv:"activity_match_type"`
	ActivityCount    *int     `csv:"activity_count"`
	ActivityTypes    string   `csv:"activity_types"`
}

func coordinates(point *orb.Point) (*float64, *float64) {
	if point == nil {
		return nil, nil
	}
	return util.Ptr(point.X()), util.Ptr(point.Y())
}

// joinAttributes flattens leg attributes into a stable "name=value;..." cell.
func joinAttributes(attributes map[string]string) string {
	if len(attributes) == 0 {
		return ""
	}

	names := make([]string, 0, len(attributes))
	for name := range attributes {
		names = append(names, name)
	}
	slices.Sort(names)

	pairs := make([]string, 0, len(names))
	for _, name := range names {
		pairs = append(pairs, name+"="+attributes[name])
	}
	return strings.Join(pairs, ";")
}

func newLegRecord(row model.LegRow) legRecord {
	startX, startY := coordinates(row.StartPosition)
	endX, endY := coordinates(row.EndPosition)

	return legRecord{
		PersonID:           row.TravelerID,
		LegIndex:           row.LegIndex,
		Mode:               row.Mode,
		StartTimeSeconds:   row.StartTime,
		EndTimeSeconds:     row.EndTime,
		TravelTimeSeconds:  row.TravelTime,
		StartTime:          util.FormatClock(row.StartTime),
		EndTime:            util.FormatClock(row.EndTime),
		StartX:             startX,
		StartY:             startY,
		EndX:               endX,
		EndY:               endY,
		StartLink:          row.StartLink,
		EndLink:            row.EndLink,
		Distance:           row.Distance,
		VehicleRefID:       row.VehicleRef,
		RouteType:          row.RouteType,
		DisplayMode:        row.DisplayMode(),
		TransitLineID:      row.Transit.TransitLineID,
		TransitRouteID:     row.Transit.TransitRouteID,
		BoardingTime:       row.Transit.BoardingTime,
		AccessFacilityID:   row.Transit.AccessStopID,
		EgressFacilityID:   row.Transit.EgressStopID,
		TransportMode:      row.Transit.TransportMode,
		ChainedDepartureID: row.Transit.ChainedDepartureID,
		SegmentStartStop:   row.SegmentStartStop,
		SegmentEndStop:     row.SegmentEndStop,
		Expanded:           row.Expanded,
		Attributes:         joinAttributes(row.Attributes),
	}
}

func newTrackRecord(point model.TrackPoint) trackRecord {
	return trackRecord{
		TimeSeconds:      point.Time,
		Time:             util.FormatClock(&point.Time),
		PersonID:         point.TravelerID,
		Mode:             point.Mode,
		RawMode:          point.RawMode,
		X:                point.Position.X(),
		Y:                point.Position.Y(),
		Latitude:         point.Latitude,
		Longitude:        point.Longitude,
		LegIndex:         point.LegIndex,
		Status:           point.Status,
		VehicleRefID:     point.VehicleRef,
		TransitLineID:    point.Transit.TransitLineID,
		TransitRouteID:   point.Transit.TransitRouteID,
		TransportMode:    point.Transit.TransportMode,
		ActivityType:     point.Activity.Type,
		ActivitySequence: point.Activity.Sequence,
		ActivityLink:     point.Activity.Link,
		ActivityDistKm:   point.Activity.DistanceKm,
		ActivityMatch:    string(point.Activity.Method),
		ActivityCount:    point.ActivityCount,
		ActivityTypes:    point.ActivityTypes,
	}
}

// TrackDocument is the JSON form of a track point. The basic group carries
// position and mode, detailed adds transit and activity data.
type TrackDocument struct {
	Time       int       `json:"time" groups:"basic,detailed"`
	TravelerID string    `json:"traveler_id" groups:"basic,detailed"`
	Mode       string    `json:"mode" groups:"basic,detailed"`
	LegIndex   int       `json:"leg_index" groups:"basic,detailed"`
	Position   []float64 `json:"position" groups:"basic,detailed"`
	LatLon     []float64 `json:"lat_lon,omitempty" groups:"basic,detailed"`

	RawMode    string            `json:"raw_mode" groups:"detailed"`
	VehicleRef string            `json:"vehicle_ref,omitempty" groups:"detailed"`
	Transit    *TransitDocument  `json:"transit,omitempty" groups:"detailed"`
	Activity   *ActivityDocument `json:"activity,omitempty" groups:"detailed"`
}

type TransitDocument struct {
	LineID             string `json:"line_id,omitempty" groups:"detailed"`
	RouteID            string `json:"route_id,omitempty" groups:"detailed"`
	TransportMode      string `json:"transport_mode,omitempty" groups:"detailed"`
	AccessStopID       string `json:"access_stop_id,omitempty" groups:"detailed"`
	EgressStopID       string `json:"egress_stop_id,omitempty" groups:"detailed"`
	BoardingTime       string `json:"boarding_time,omitempty" groups:"detailed"`
	ChainedDepartureID string `json:"chained_departure_id,omitempty" groups:"detailed"`
}

type ActivityDocument struct {
	Type       string   `json:"type" groups:"detailed"`
	Sequence   *int     `json:"sequence" groups:"detailed"`
	Link       string   `json:"link,omitempty" groups:"detailed"`
	DistanceKm *float64 `json:"distance_km,omitempty" groups:"detailed"`
	Method     string   `json:"method" groups:"detailed"`
}

func NewTrackDocument(point model.TrackPoint) TrackDocument {
	document := TrackDocument{
		Time:       point.Time,
		TravelerID: point.TravelerID,
		Mode:       point.Mode,
		LegIndex:   point.LegIndex,
		Position:   []float64{point.Position.X(), point.Position.Y()},
		RawMode:    point.RawMode,
		VehicleRef: point.VehicleRef,
	}

	if point.Latitude != nil && point.Longitude != nil {
		document.LatLon = []float64{*point.Latitude, *point.Longitude}
	}
	if point.Transit != (model.TransitInfo{}) {
		document.Transit = &TransitDocument{
			LineID:             point.Transit.TransitLineID,
			RouteID:            point.Transit.TransitRouteID,
			TransportMode:      point.Transit.TransportMode,
			AccessStopID:       point.Transit.AccessStopID,
			EgressStopID:       point.Transit.EgressStopID,
			BoardingTime:       util.FormatClock(point.Transit.BoardingTime),
			ChainedDepartureID: point.Transit.ChainedDepartureID,
		}
	}
	if point.Activity.Method != model.MatchMethodNone {
		document.Activity = &ActivityDocument{
			Type:       point.Activity.Type,
			Sequence:   point.Activity.Sequence,
			Link:       point.Activity.Link,
			DistanceKm: point.Activity.DistanceKm,
			Method:     string(point.Activity.Method),
		}
	}

	return document
}
