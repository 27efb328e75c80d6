package vehicleusage

import (
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/travigo/simtracks/pkg/dataset"
	"golang.org/x/exp/slices"
	"golang.org/x/net/html/charset"
)

const (
	eventTypeEntersVehicle = "PersonEntersVehicle"

	ModeSubway  = "subway"
	ModeCar     = "car"
	ModeUnknown = "unknown"
)

// Vehicle summarises how travelers used one vehicle during the simulation.
type Vehicle struct {
	ID        string
	Mode      string
	FirstUse  int
	LastUse   int
	Travelers map[string]struct{}
}

func (v *Vehicle) TravelerCount() int {
	return len(v.Travelers)
}

func guessMode(vehicleID string) string {
	switch {
	case strings.Contains(vehicleID, ModeSubway):
		return ModeSubway
	case strings.Contains(vehicleID, ModeCar):
		return ModeCar
	default:
		return ModeUnknown
	}
}

// Usage maps vehicle ids to their usage.
type Usage map[string]*Vehicle

// Sorted returns the vehicles ordered by id.
func (u Usage) Sorted() []*Vehicle {
	ids := make([]string, 0, len(u))
	for id := range u {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	vehicles := make([]*Vehicle, 0, len(ids))
	for _, id := range ids {
		vehicles = append(vehicles, u[id])
	}
	return vehicles
}

func (u Usage) record(vehicleID string, travelerID string, time int) {
	vehicle, exists := u[vehicleID]
	if !exists {
		vehicle = &Vehicle{
			ID:        vehicleID,
			Mode:      guessMode(vehicleID),
			FirstUse:  time,
			LastUse:   time,
			Travelers: map[string]struct{}{},
		}
		u[vehicleID] = vehicle
	}

	vehicle.FirstUse = min(vehicle.FirstUse, time)
	vehicle.LastUse = max(vehicle.LastUse, time)
	vehicle.Travelers[travelerID] = struct{}{}
}

// LoadUsage streams an events file and collects the vehicles entered by the
// given travelers. A nil traveler set accepts every traveler.
func LoadUsage(path string, travelers map[string]struct{}) (Usage, error) {
	reader, err := dataset.Open(path)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	return ParseEvents(reader, travelers)
}

func ParseEvents(reader io.Reader, travelers map[string]struct{}) (Usage, error) {
	usage := Usage{}

	d := xml.NewDecoder(reader)
	d.CharsetReader = charset.NewReaderLabel

	for {
		tok, err := d.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("decoding events: %w", err)
		}

		element, ok := tok.(xml.StartElement)
		if !ok || element.Name.Local != "event" {
			continue
		}

		var eventType, person, vehicle, timeValue string
		for _, attr := range element.Attr {
			switch attr.Name.Local {
			case "type":
				eventType = attr.Value
			case "person":
				person = attr.Value
			case "vehicle":
				vehicle = attr.Value
			case "time":
				timeValue = attr.Value
			}
		}

		if eventType != eventTypeEntersVehicle || person == "" || vehicle == "" {
			continue
		}
		if travelers != nil {
			if _, known := travelers[person]; !known {
				continue
			}
		}

		time := 0
		if timeValue != "" {
			seconds, err := strconv.ParseFloat(timeValue, 64)
			if err != nil {
				log.Debug().Str("vehicle", vehicle).Str("time", timeValue).Msg("Unparseable event time")
			} else {
				time = int(seconds)
			}
		}

		usage.record(vehicle, person, time)
	}

	return usage, nil
}

// CountVehicles counts the vehicle definitions in a transit vehicles file,
// with or without the MATSim namespace.
func CountVehicles(path string) (int, error) {
	reader, err := dataset.Open(path)
	if err != nil {
		return 0, err
	}
	defer reader.Close()

	d := xml.NewDecoder(reader)
	d.CharsetReader = charset.NewReaderLabel

	count := 0
	for {
		tok, err := d.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, fmt.Errorf("decoding vehicles: %w", err)
		}

		if element, ok := tok.(xml.StartElement); ok && element.Name.Local == "vehicle" {
			count++
		}
	}

	return count, nil
}
