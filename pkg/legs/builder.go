package legs

import (
	"fmt"
	"strings"

	"github.com/paulmach/orb"
	"github.com/rs/zerolog/log"
	"github.com/travigo/simtracks/pkg/model"
	"github.com/travigo/simtracks/pkg/util"
	"golang.org/x/exp/slices"
)

// IntermediateStart selects which schedule offset anchors the start of the
// hops after the first one of an expanded transit leg.
type IntermediateStart string

const (
	// IntermediateStartDeparture starts a hop when the vehicle leaves the stop
	IntermediateStartDeparture IntermediateStart = "departure"
	// IntermediateStartArrival starts a hop when the vehicle reaches the stop,
	// so consecutive hops share their boundary instant
	IntermediateStartArrival IntermediateStart = "arrival"
)

// StopIndex is the schedule lookup the builder resolves transit legs against.
type StopIndex interface {
	StopPosition(stopID string) (orb.Point, bool)
	RouteStops(lineID string, routeID string) ([]model.RouteStop, bool)
	ResolveMode(lineID string, routeID string) string
}

type Builder struct {
	Index StopIndex

	TransitModes      []string
	TransitRouteTypes []string

	MalformedPolicy   MalformedPolicy
	IntermediateStart IntermediateStart
}

// NewBuilder returns a builder with the default transit modes and route types.
func NewBuilder(index StopIndex) *Builder {
	return &Builder{
		Index:             index,
		TransitModes:      model.DefaultTransitModes,
		TransitRouteTypes: model.DefaultTransitRouteTypes,
		MalformedPolicy:   MalformedPolicyWarn,
		IntermediateStart: IntermediateStartDeparture,
	}
}

// legWindow is what the surrounding activities tell us about a leg
type legWindow struct {
	startPosition *orb.Point
	startLink     string
	endPosition   *orb.Point
	endLink       string
	endTime       *int
}

// Build produces the leg rows of one itinerary. Every leg yields at least one
// row and all rows of a leg share its LegIndex. Build does not modify the
// builder and may be called from several goroutines.
func (b *Builder) Build(it *model.Itinerary) ([]model.LegRow, Stats, error) {
	stats := newStats()
	stats.Itineraries++

	var rows []model.LegRow

	previousActivity := it.PreviousActivityIndex()
	nextActivity := it.NextActivityIndex()

	legIndex := 0
	for entryIndex, entry := range it.Entries {
		if entry.Kind != model.EntryLeg {
			continue
		}
		leg := entry.Leg
		stats.Legs++

		window := b.window(it, leg, previousActivity[entryIndex], nextActivity[entryIndex])

		var payload *model.TransitPayload
		if leg.Route != nil && slices.Contains(b.TransitRouteTypes, leg.Route.Type) {
			payload = DecodePayload(leg.Route.Type, leg.Route.Raw)
		}

		if payload != nil && payload.Malformed {
			stats.MalformedPayloads++

			switch b.MalformedPolicy {
			case MalformedPolicyFail:
				return nil, stats, fmt.Errorf("traveler %s leg %d: %w", it.TravelerID, legIndex, ErrMalformedPayload)
			case MalformedPolicyIgnore:
			default:
				log.Debug().
					Str("traveler", it.TravelerID).
					Int("leg", legIndex).
					Str("payload", leg.Route.Raw).
					Msg("Transit payload could not be decoded, leg will not be expanded")
			}
		}

		transit := b.transitInfo(payload)

		expanded, reason := b.expand(it.TravelerID, legIndex, leg, window, payload, transit, &stats)
		if expanded != nil {
			rows = append(rows, expanded...)
			stats.ExpandedLegs++
			stats.ExpandedRows += len(expanded)
		} else {
			if reason != "" {
				stats.Fallbacks[reason]++
				log.Debug().
					Str("traveler", it.TravelerID).
					Int("leg", legIndex).
					Str("reason", string(reason)).
					Msg("Transit leg kept as a single row")
			}
			rows = append(rows, singleRow(it.TravelerID, legIndex, leg, window, transit))
		}

		legIndex++
	}

	for i := range rows {
		rows[i].Sequence = i
		if rows[i].StartTime != nil && rows[i].EndTime != nil && *rows[i].EndTime < *rows[i].StartTime {
			stats.InvertedRows++
		}
	}
	stats.Rows = len(rows)

	return rows, stats, nil
}

func (b *Builder) window(it *model.Itinerary, leg *model.Leg, previous int, next int) legWindow {
	var window legWindow

	if previous >= 0 {
		activity := it.Entries[previous].Activity
		window.startPosition = activity.Position
		window.startLink = activity.Link
	}

	if next >= 0 {
		activity := it.Entries[next].Activity
		window.endPosition = activity.Position
		window.endLink = activity.Link
		window.endTime = activity.StartTime
	}

	if window.endTime == nil && leg.DepartureTime != nil && leg.TravelTime != nil {
		window.endTime = util.Ptr(*leg.DepartureTime + *leg.TravelTime)
	}

	return window
}

func (b *Builder) transitInfo(payload *model.TransitPayload) model.TransitInfo {
	if payload == nil || payload.Malformed {
		return model.TransitInfo{}
	}

	info := model.TransitInfo{
		TransitLineID:  payload.TransitLineID,
		TransitRouteID: payload.TransitRouteID,
		AccessStopID:   payload.AccessStopID,
		EgressStopID:   payload.EgressStopID,
		BoardingTime:   payload.BoardingTime,

		ChainedDepartureID: payload.ChainedDepartureID,
	}
	if b.Index != nil {
		info.TransportMode = b.Index.ResolveMode(payload.TransitLineID, payload.TransitRouteID)
	}

	return info
}

// expand returns the stop to stop rows of a transit leg, or the reason it
// could not be expanded. Legs that are not transit return neither.
func (b *Builder) expand(travelerID string, legIndex int, leg *model.Leg, window legWindow, payload *model.TransitPayload, transit model.TransitInfo, stats *Stats) ([]model.LegRow, FallbackReason) {
	if !slices.Contains(b.TransitModes, leg.Mode) {
		return nil, ""
	}

	switch {
	case payload == nil:
		return nil, FallbackNoRoute
	case payload.Malformed:
		return nil, FallbackMalformedPayload
	case payload.TransitRouteID == "":
		return nil, FallbackNoRoute
	}

	if b.Index == nil {
		return nil, FallbackNoStops
	}
	stops, exists := b.Index.RouteStops(payload.TransitLineID, payload.TransitRouteID)
	if !exists || len(stops) == 0 {
		return nil, FallbackNoStops
	}

	if !payload.HasAccessEgress() {
		return nil, FallbackNoAccessEgress
	}

	// The last occurrence wins when a stop repeats in the profile
	access, egress := -1, -1
	for i, stop := range stops {
		if stop.StopID == payload.AccessStopID {
			access = i
		}
		if stop.StopID == payload.EgressStopID {
			egress = i
		}
	}
	if access < 0 || egress < 0 {
		return nil, FallbackStopNotOnRoute
	}
	if access >= egress {
		return nil, FallbackInvertedStops
	}

	boarding := payload.BoardingTime
	if boarding == nil {
		boarding = leg.DepartureTime
	}

	var routeStartLink, routeEndLink string
	if leg.Route != nil {
		routeStartLink = leg.Route.StartLink
		routeEndLink = leg.Route.EndLink
	}

	rows := make([]model.LegRow, 0, egress-access)
	for hop := access; hop < egress; hop++ {
		from := stops[hop]
		to := stops[hop+1]

		row := model.LegRow{
			TravelerID:       travelerID,
			LegIndex:         legIndex,
			Mode:             leg.Mode,
			StartLink:        from.StopID,
			EndLink:          to.StopID,
			VehicleRef:       routeVehicle(leg),
			RouteType:        leg.RouteType(),
			Transit:          transit,
			Attributes:       leg.Attributes,
			SegmentStartStop: from.StopID,
			SegmentEndStop:   to.StopID,
			Expanded:         true,
		}

		if hop == access {
			row.StartLink = util.FirstNonEmpty(routeStartLink, window.startLink, from.StopID)
		}
		if hop == egress-1 {
			row.EndLink = util.FirstNonEmpty(routeEndLink, window.endLink, to.StopID)
		}

		if boarding != nil {
			origin := *boarding - stops[access].DepartureOffset

			if hop == access {
				row.StartTime = util.Ptr(*boarding)
			} else if b.IntermediateStart == IntermediateStartArrival {
				row.StartTime = util.Ptr(origin + from.ArrivalOffset)
			} else {
				row.StartTime = util.Ptr(origin + from.DepartureOffset)
			}
			row.EndTime = util.Ptr(origin + to.ArrivalOffset)

			if *row.EndTime >= *row.StartTime {
				row.TravelTime = util.Ptr(*row.EndTime - *row.StartTime)
			}
		}

		if position, exists := b.Index.StopPosition(from.StopID); exists {
			row.StartPosition = util.Ptr(position)
		} else {
			stats.MissingStopPositions++
		}
		if position, exists := b.Index.StopPosition(to.StopID); exists {
			row.EndPosition = util.Ptr(position)
		} else {
			stats.MissingStopPositions++
		}

		rows = append(rows, row)
	}

	return rows, ""
}

func singleRow(travelerID string, legIndex int, leg *model.Leg, window legWindow, transit model.TransitInfo) model.LegRow {
	row := model.LegRow{
		TravelerID:    travelerID,
		LegIndex:      legIndex,
		Mode:          leg.Mode,
		StartTime:     leg.DepartureTime,
		EndTime:       window.endTime,
		TravelTime:    leg.TravelTime,
		StartPosition: window.startPosition,
		EndPosition:   window.endPosition,
		StartLink:     window.startLink,
		EndLink:       window.endLink,
		VehicleRef:    routeVehicle(leg),
		RouteType:     leg.RouteType(),
		Transit:       transit,
		Attributes:    leg.Attributes,
	}

	if leg.Route != nil {
		row.StartLink = util.FirstNonEmpty(leg.Route.StartLink, window.startLink)
		row.EndLink = util.FirstNonEmpty(leg.Route.EndLink, window.endLink)
		row.Distance = leg.Route.Distance
	}

	return row
}

func routeVehicle(leg *model.Leg) string {
	if leg.Route == nil {
		return ""
	}
	return leg.Route.VehicleRef
}

// Sort orders rows by traveler, start time (unknown last) and leg index,
// keeping insertion order for ties.
func Sort(rows []model.LegRow) {
	slices.SortStableFunc(rows, func(a, b model.LegRow) int {
		if c := strings.Compare(a.TravelerID, b.TravelerID); c != 0 {
			return c
		}
		if c := compareOptional(a.StartTime, b.StartTime); c != 0 {
			return c
		}
		if a.LegIndex != b.LegIndex {
			return a.LegIndex - b.LegIndex
		}
		return a.Sequence - b.Sequence
	})
}

func compareOptional(a *int, b *int) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	case *a < *b:
		return -1
	case *a > *b:
		return 1
	}
	return 0
}
