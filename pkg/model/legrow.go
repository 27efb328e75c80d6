package model

import "github.com/paulmach/orb"

// TransitInfo is the transit enrichment carried by leg rows and track points.
// All fields are empty for non-transit legs.
type TransitInfo struct {
	TransitLineID  string
	TransitRouteID string
	TransportMode  string
	AccessStopID   string
	EgressStopID   string
	BoardingTime   *int

	ChainedDepartureID string
}

// LegRow is one row of the legs table. Expanded transit legs produce one row
// per stop-to-stop hop, all sharing the same LegIndex.
type LegRow struct {
	TravelerID string
	LegIndex   int
	Mode       string

	StartTime  *int
	EndTime    *int
	TravelTime *int

	StartPosition *orb.Point
	EndPosition   *orb.Point
	StartLink     string
	EndLink       string

	Distance   *float64
	VehicleRef string
	RouteType  string

	Transit    TransitInfo
	Attributes map[string]string

	SegmentStartStop string
	SegmentEndStop   string
	Expanded         bool

	// Sequence is the insertion order, used as the final sort tie-break
	Sequence int
}

// DisplayMode is the resolved transit mode when known, else the raw mode.
func (r *LegRow) DisplayMode() string {
	if r.Transit.TransportMode != "" {
		return r.Transit.TransportMode
	}
	return r.Mode
}
