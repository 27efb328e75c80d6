package population

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/travigo/simtracks/pkg/model"
	"github.com/travigo/simtracks/pkg/util"
	"golang.org/x/net/html/charset"
)

type xmlRoute struct {
	Type       string `xml:"type,attr"`
	StartLink  string `xml:"start_link,attr"`
	StartLink2 string `xml:"startLink,attr"`
	EndLink    string `xml:"end_link,attr"`
	EndLink2   string `xml:"endLink,attr"`
	Distance   string `xml:"distance,attr"`
	VehicleRef string `xml:"vehicleRefId,attr"`
	Text       string `xml:",chardata"`
}

type xmlAttribute struct {
	Name  string `xml:"name,attr"`
	Value string `xml:",chardata"`
}

// Parse streams a population or plans document and calls fn once per
// traveler that has a selected plan, in document order. Entries of plans that
// are not selected are never materialised.
func Parse(reader io.Reader, fn func(*model.Itinerary) error) (Stats, error) {
	var stats Stats

	d := xml.NewDecoder(reader)
	d.CharsetReader = charset.NewReaderLabel

	seenRoot := false
	personID := ""
	var itinerary *model.Itinerary
	inSelectedPlan := false
	var currentLeg *model.Leg

	for {
		tok, err := d.Token()
		if err == io.EOF {
			// EOF means we're done.
			break
		} else if err != nil {
			return stats, fmt.Errorf("decoding token: %w", err)
		}

		switch ty := tok.(type) {
		case xml.StartElement:
			if !seenRoot {
				if ty.Name.Local != "population" && ty.Name.Local != "plans" {
					return stats, fmt.Errorf("%w: found <%s>", ErrNoRoot, ty.Name.Local)
				}
				seenRoot = true
				continue
			}

			switch ty.Name.Local {
			case "person":
				stats.Persons++
				personID = newAttributes(ty.Attr)["id"]
				itinerary = nil
			case "plan":
				selected := newAttributes(ty.Attr)["selected"] == "yes"
				if selected && itinerary != nil {
					log.Debug().Str("person", personID).Msg("Person has more than one selected plan, keeping the first")
					selected = false
				}
				if !selected {
					stats.SkippedPlans++
					if err := d.Skip(); err != nil {
						return stats, fmt.Errorf("skipping plan of person %s: %w", personID, err)
					}
					continue
				}
				inSelectedPlan = true
				itinerary = &model.Itinerary{TravelerID: personID}
			case "activity", "act":
				if !inSelectedPlan {
					continue
				}
				itinerary.AddActivity(parseActivity(newAttributes(ty.Attr), &stats))
				stats.Activities++
			case "leg":
				if !inSelectedPlan {
					continue
				}
				currentLeg = parseLeg(newAttributes(ty.Attr), &stats)
				itinerary.AddLeg(currentLeg)
				stats.Legs++
			case "route":
				if currentLeg == nil {
					continue
				}
				var route xmlRoute
				if err := d.DecodeElement(&route, &ty); err != nil {
					return stats, fmt.Errorf("decoding route of person %s: %w", personID, err)
				}
				currentLeg.Route = convertRoute(route, &stats)
			case "attribute":
				if currentLeg == nil {
					continue
				}
				var attribute xmlAttribute
				if err := d.DecodeElement(&attribute, &ty); err != nil {
					return stats, fmt.Errorf("decoding leg attribute of person %s: %w", personID, err)
				}
				if currentLeg.Attributes == nil {
					currentLeg.Attributes = map[string]string{}
				}
				currentLeg.Attributes[attribute.Name] = strings.TrimSpace(attribute.Value)
			}
		case xml.EndElement:
			switch ty.Name.Local {
			case "leg":
				currentLeg = nil
			case "plan":
				inSelectedPlan = false
				currentLeg = nil
			case "person":
				if itinerary != nil {
					stats.Itineraries++
					if err := fn(itinerary); err != nil {
						return stats, err
					}
				}
				itinerary = nil
				personID = ""
			}
		default:
		}
	}

	if !seenRoot {
		return stats, ErrNoRoot
	}

	log.Info().Msgf("Successfully parsed population")
	log.Info().Msgf(" - Contains %d persons", stats.Persons)
	log.Info().Msgf(" - Contains %d selected itineraries", stats.Itineraries)
	log.Info().Msgf(" - Contains %d activities and %d legs", stats.Activities, stats.Legs)
	if stats.DegradedFields > 0 {
		log.Warn().Int("fields", stats.DegradedFields).Msg("Unparseable time or coordinate fields were treated as unknown")
	}

	return stats, nil
}

func parseActivity(attrs attributes, stats *Stats) *model.Activity {
	return &model.Activity{
		Type:        attrs["type"],
		Position:    attrs.position(stats),
		Link:        attrs["link"],
		Facility:    attrs["facility"],
		StartTime:   attrs.clock(stats, "start_time", "startTime"),
		EndTime:     attrs.clock(stats, "end_time", "endTime"),
		MaxDuration: attrs.clock(stats, "max_dur", "maxDur"),
	}
}

func parseLeg(attrs attributes, stats *Stats) *model.Leg {
	return &model.Leg{
		Mode:          attrs["mode"],
		DepartureTime: attrs.clock(stats, "dep_time", "departure_time", "departureTime"),
		TravelTime:    attrs.clock(stats, "trav_time", "travel_time", "travelTime"),
	}
}

func convertRoute(route xmlRoute, stats *Stats) *model.Route {
	attrs := attributes{"distance": route.Distance}

	return &model.Route{
		Type:       route.Type,
		StartLink:  util.FirstNonEmpty(route.StartLink, route.StartLink2),
		EndLink:    util.FirstNonEmpty(route.EndLink, route.EndLink2),
		Distance:   attrs.float(stats, "distance"),
		VehicleRef: route.VehicleRef,
		Raw:        strings.TrimSpace(route.Text),
	}
}
