package transitschedule

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/rs/zerolog/log"
	"github.com/travigo/simtracks/pkg/dataset"
	"github.com/travigo/simtracks/pkg/model"
	"github.com/travigo/simtracks/pkg/util"
	"golang.org/x/net/html/charset"
)

var ErrNoRoot = errors.New("document has no transitSchedule root element")

// Load reads a (possibly compressed) transit schedule. The schedule is
// optional: an empty path or a missing file yields an empty index.
func Load(path string) (*Index, error) {
	if path == "" {
		log.Info().Msg("No transit schedule configured, transit legs will not be expanded")
		return Empty(), nil
	}
	if !dataset.Exists(path) {
		log.Info().Str("path", path).Msg("Transit schedule not found, transit legs will not be expanded")
		return Empty(), nil
	}

	reader, err := dataset.Open(path)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	index, err := Parse(reader)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if index.IsEmpty() {
		log.Warn().Str("path", path).Msg("Transit schedule has no stops or routes, transit legs will not be expanded")
	}

	return index, nil
}

type parsedRoute struct {
	lineID string
	id     string
	mode   string
	stops  []model.RouteStop
}

// Parse builds an index from a transit schedule document.
func Parse(reader io.Reader) (*Index, error) {
	index := newIndex()

	d := xml.NewDecoder(reader)
	d.CharsetReader = charset.NewReaderLabel

	seenRoot := false
	lineID := ""
	var routes []*parsedRoute
	var currentRoute *parsedRoute
	inRouteProfile := false

	for {
		tok, err := d.Token()
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, fmt.Errorf("decoding token: %w", err)
		}

		switch ty := tok.(type) {
		case xml.StartElement:
			if !seenRoot {
				if ty.Name.Local != "transitSchedule" {
					return nil, fmt.Errorf("%w: found <%s>", ErrNoRoot, ty.Name.Local)
				}
				seenRoot = true
				continue
			}

			attrs := map[string]string{}
			for _, attr := range ty.Attr {
				attrs[attr.Name.Local] = attr.Value
			}

			switch ty.Name.Local {
			case "stopFacility":
				index.addStop(attrs)
			case "transitLine":
				lineID = attrs["id"]
				index.stats.Lines++
			case "transitRoute":
				currentRoute = &parsedRoute{lineID: lineID, id: attrs["id"]}
				routes = append(routes, currentRoute)
			case "routeProfile":
				inRouteProfile = currentRoute != nil
			case "stop":
				if inRouteProfile {
					currentRoute.stops = append(currentRoute.stops, index.routeStop(attrs))
				}
			case "transportMode":
				var mode string
				if err := d.DecodeElement(&mode, &ty); err != nil {
					return nil, fmt.Errorf("decoding transportMode of line %s: %w", lineID, err)
				}
				mode = strings.TrimSpace(mode)
				if currentRoute != nil {
					currentRoute.mode = mode
				} else if lineID != "" && mode != "" {
					index.lineModes[lineID] = mode
				}
			}
		case xml.EndElement:
			switch ty.Name.Local {
			case "routeProfile":
				inRouteProfile = false
			case "transitRoute":
				currentRoute = nil
			case "transitLine":
				lineID = ""
			}
		}
	}

	if !seenRoot {
		return nil, ErrNoRoot
	}

	for _, route := range routes {
		index.addRoute(route)
	}

	log.Info().Msgf("Successfully parsed transit schedule")
	log.Info().Msgf(" - Contains %d stop facilities", index.stats.Stops)
	log.Info().Msgf(" - Contains %d lines", index.stats.Lines)
	log.Info().Msgf(" - Contains %d routes with stops", index.stats.Routes)
	if index.stats.SkippedStops > 0 {
		log.Info().Int("count", index.stats.SkippedStops).Msg("Stop facilities without coordinates were skipped")
	}
	if index.stats.DuplicateRouteIDs > 0 {
		log.Info().Int("count", index.stats.DuplicateRouteIDs).Msg("Route ids are repeated across lines, lookups without a line id use the first")
	}

	return index, nil
}

func (i *Index) addStop(attrs map[string]string) {
	id := attrs["id"]
	x, xErr := strconv.ParseFloat(strings.TrimSpace(attrs["x"]), 64)
	y, yErr := strconv.ParseFloat(strings.TrimSpace(attrs["y"]), 64)

	if id == "" || xErr != nil || yErr != nil {
		i.stats.SkippedStops++
		log.Debug().Str("stop", id).Msg("Skipping stop facility without coordinates")
		return
	}

	i.stops[id] = model.StopFacility{
		ID:       id,
		Position: orb.Point{x, y},
		LinkRef:  attrs["linkRefId"],
		Name:     attrs["name"],
	}
	i.stats.Stops++
}

func (i *Index) routeStop(attrs map[string]string) model.RouteStop {
	arrival := util.ParseClock(attrs["arrivalOffset"])
	departure := util.ParseClock(attrs["departureOffset"])

	if arrival == nil || departure == nil {
		i.stats.DefaultedOffsets++
	}
	if arrival == nil {
		arrival = departure
	}
	if departure == nil {
		departure = arrival
	}

	return model.RouteStop{
		StopID:          attrs["refId"],
		ArrivalOffset:   util.IntOrZero(arrival),
		DepartureOffset: util.IntOrZero(departure),
	}
}

func (i *Index) addRoute(route *parsedRoute) {
	if route.id == "" {
		return
	}

	mode := route.mode
	if mode == "" {
		mode = i.lineModes[route.lineID]
	}
	key := routeKey{LineID: route.lineID, RouteID: route.id}

	if mode != "" {
		i.routeModes[key] = mode
		if _, exists := i.bareRouteModes[route.id]; !exists {
			i.bareRouteModes[route.id] = mode
		}
	}

	stops := route.stops
	util.InPlaceFilter(&stops, func(stop model.RouteStop) bool {
		return stop.StopID != ""
	})
	if len(stops) == 0 {
		i.stats.RoutesWithoutStops++
		return
	}

	i.stats.Routes++
	i.routeStops[key] = stops
	if _, exists := i.bareRouteStops[route.id]; exists {
		i.stats.DuplicateRouteIDs++
		log.Debug().Str("route", route.id).Str("line", route.lineID).Msg("Route id already used by another line")
		return
	}
	i.bareRouteStops[route.id] = stops
}
