package model

import "github.com/paulmach/orb"

// TransitPayload is the decoded routing description of a scheduled transit leg.
type TransitPayload struct {
	TransitRouteID     string
	TransitLineID      string
	AccessStopID       string
	EgressStopID       string
	BoardingTime       *int
	ChainedDepartureID string

	// Malformed is set when the payload text was present but could not be decoded
	Malformed bool
}

func (p *TransitPayload) HasAccessEgress() bool {
	return p != nil && p.AccessStopID != "" && p.EgressStopID != ""
}

// RouteStop is one stop of a transit route profile. Offsets are seconds from
// the start of the route trip, not wall clock.
type RouteStop struct {
	StopID          string
	ArrivalOffset   int
	DepartureOffset int
}

type StopFacility struct {
	ID       string
	Position orb.Point
	LinkRef  string
	Name     string
}
