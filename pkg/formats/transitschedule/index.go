package transitschedule

import (
	"github.com/paulmach/orb"
	"github.com/travigo/simtracks/pkg/model"
)

type Stats struct {
	Stops              int
	SkippedStops       int
	Lines              int
	Routes             int
	RoutesWithoutStops int
	DuplicateRouteIDs  int
	DefaultedOffsets   int
}

// Index is the read-only lookup built from a transit schedule. It is safe
// to share between goroutines once returned by Load or Parse.
type Index struct {
	stops map[string]model.StopFacility

	// Route data keyed by line+route first, then by the bare route id
	routeStops     map[routeKey][]model.RouteStop
	bareRouteStops map[string][]model.RouteStop
	routeModes     map[routeKey]string
	bareRouteModes map[string]string
	lineModes      map[string]string

	stats Stats
}

type routeKey struct {
	LineID  string
	RouteID string
}

func newIndex() *Index {
	return &Index{
		stops:          map[string]model.StopFacility{},
		routeStops:     map[routeKey][]model.RouteStop{},
		bareRouteStops: map[string][]model.RouteStop{},
		routeModes:     map[routeKey]string{},
		bareRouteModes: map[string]string{},
		lineModes:      map[string]string{},
	}
}

// Empty returns an index with no stops or routes. Transit legs resolved
// against it are never expanded.
func Empty() *Index {
	return newIndex()
}

func (i *Index) StopPosition(stopID string) (orb.Point, bool) {
	stop, exists := i.stops[stopID]
	if !exists {
		return orb.Point{}, false
	}
	return stop.Position, true
}

func (i *Index) Stop(stopID string) (model.StopFacility, bool) {
	stop, exists := i.stops[stopID]
	return stop, exists
}

// RouteStops returns the ordered stop profile of a route. A route that is
// unknown or has no stops reports false.
func (i *Index) RouteStops(lineID string, routeID string) ([]model.RouteStop, bool) {
	if routeID == "" {
		return nil, false
	}
	if lineID != "" {
		if stops, exists := i.routeStops[routeKey{LineID: lineID, RouteID: routeID}]; exists {
			return stops, true
		}
	}
	stops, exists := i.bareRouteStops[routeID]
	return stops, exists
}

// ResolveMode returns the declared transport mode of a route, falling back to
// the mode of its line. Empty when neither is known.
func (i *Index) ResolveMode(lineID string, routeID string) string {
	if routeID != "" {
		if mode, exists := i.routeModes[routeKey{LineID: lineID, RouteID: routeID}]; exists && lineID != "" {
			return mode
		}
		if mode, exists := i.bareRouteModes[routeID]; exists {
			return mode
		}
	}
	if lineID != "" {
		return i.lineModes[lineID]
	}
	return ""
}

func (i *Index) Stats() Stats {
	return i.stats
}

func (i *Index) IsEmpty() bool {
	return len(i.stops) == 0 && len(i.bareRouteStops) == 0 && len(i.lineModes) == 0
}
