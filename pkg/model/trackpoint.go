package model

import "github.com/paulmach/orb"

type MatchMethod string

const (
	MatchMethodNone    MatchMethod = ""
	MatchMethodTime    MatchMethod = "time"
	MatchMethodSpatial MatchMethod = "spatial"
)

const TrackStatusInLeg = "in_leg"

// TrackPoint is one interpolated sample of a traveler's position.
type TrackPoint struct {
	Time       int
	TravelerID string
	Mode       string
	RawMode    string
	Position   orb.Point
	LegIndex   int
	Status     string
	VehicleRef string

	Transit TransitInfo

	// Geographic coordinates, only set when a projection is configured
	Latitude  *float64
	Longitude *float64

	Activity ActivityMatch

	// Per traveler summary of the matched activity types
	ActivityTypes string
	ActivityCount *int
}

type ActivityMatch struct {
	Type       string
	Sequence   *int
	Link       string
	DistanceKm *float64
	Method     MatchMethod
}
