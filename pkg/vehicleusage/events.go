package vehicleusage

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/rs/zerolog/log"
	"github.com/travigo/simtracks/pkg/dataset"
	"golang.org/x/net/html/charset"
)

const (
	eventTypeLeavesVehicle = "PersonLeavesVehicle"

	FilteredEventsFileName = "filtered_events.xml"
)

var ErrNoTravelers = errors.New("no travelers to filter events by")

// TimeRange is one stay of a traveler aboard a vehicle, in seconds.
type TimeRange struct {
	Enter float64
	Leave float64
}

func (r TimeRange) Contains(time float64) bool {
	return r.Enter <= time && time <= r.Leave
}

type RangeKey struct {
	TravelerID string
	VehicleID  string
}

// TimeRanges holds the completed enter/leave pairs of every traveler and
// vehicle, in event order.
type TimeRanges map[RangeKey][]TimeRange

// ByVehicle merges the ranges of all travelers per vehicle.
func (t TimeRanges) ByVehicle() map[string][]TimeRange {
	vehicles := map[string][]TimeRange{}
	for key, ranges := range t {
		vehicles[key.VehicleID] = append(vehicles[key.VehicleID], ranges...)
	}
	return vehicles
}

type event struct {
	element xml.StartElement

	eventType string
	person    string
	vehicle   string
	time      *float64
}

func newEvent(element xml.StartElement) event {
	e := event{element: element}
	for _, attr := range element.Attr {
		switch attr.Name.Local {
		case "type":
			e.eventType = attr.Value
		case "person":
			e.person = attr.Value
		case "vehicle":
			e.vehicle = attr.Value
		case "time":
			if seconds, err := strconv.ParseFloat(attr.Value, 64); err == nil {
				e.time = &seconds
			}
		}
	}
	return e
}

// eachEvent calls fn for every <event> of an events document.
func eachEvent(reader io.Reader, fn func(event) error) error {
	d := xml.NewDecoder(reader)
	d.CharsetReader = charset.NewReaderLabel

	for {
		tok, err := d.Token()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("decoding events: %w", err)
		}

		element, ok := tok.(xml.StartElement)
		if !ok || element.Name.Local != "event" {
			continue
		}

		if err := fn(newEvent(element.Copy())); err != nil {
			return err
		}
		if err := d.Skip(); err != nil {
			return fmt.Errorf("decoding events: %w", err)
		}
	}
}

// ParseTimeRanges pairs every vehicle boarding of the given travelers with the
// following alighting from the same vehicle. Boardings that are never left
// produce no range. A nil traveler set accepts every traveler.
func ParseTimeRanges(reader io.Reader, travelers map[string]struct{}) (TimeRanges, error) {
	ranges := TimeRanges{}
	pending := map[RangeKey]float64{}

	err := eachEvent(reader, func(e event) error {
		if e.person == "" || e.vehicle == "" || e.time == nil {
			return nil
		}
		if travelers != nil {
			if _, known := travelers[e.person]; !known {
				return nil
			}
		}

		key := RangeKey{TravelerID: e.person, VehicleID: e.vehicle}
		switch e.eventType {
		case eventTypeEntersVehicle:
			pending[key] = *e.time
		case eventTypeLeavesVehicle:
			if enter, exists := pending[key]; exists {
				ranges[key] = append(ranges[key], TimeRange{Enter: enter, Leave: *e.time})
				delete(pending, key)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(pending) > 0 {
		log.Debug().Int("boardings", len(pending)).Msg("Vehicle boardings without a matching alighting")
	}

	return ranges, nil
}

func LoadTimeRanges(path string, travelers map[string]struct{}) (TimeRanges, error) {
	reader, err := dataset.Open(path)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	return ParseTimeRanges(reader, travelers)
}

// FilterEvents copies the events of the given travelers to w, together with
// the events of the vehicles they rode that happened while one of them was
// aboard. It returns the number of events kept.
func FilterEvents(reader io.Reader, w io.Writer, travelers map[string]struct{}, ranges TimeRanges) (int, error) {
	if len(travelers) == 0 {
		return 0, ErrNoTravelers
	}
	vehicles := ranges.ByVehicle()

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return 0, err
	}

	enc := xml.NewEncoder(w)
	enc.Indent("", "\t")

	root := xml.StartElement{
		Name: xml.Name{Local: "events"},
		Attr: []xml.Attr{{Name: xml.Name{Local: "version"}, Value: "1.0"}},
	}
	if err := enc.EncodeToken(root); err != nil {
		return 0, err
	}

	kept := 0
	err := eachEvent(reader, func(e event) error {
		if !keepEvent(e, travelers, vehicles) {
			return nil
		}
		kept++

		element := xml.StartElement{Name: xml.Name{Local: "event"}}
		for _, attr := range e.element.Attr {
			element.Attr = append(element.Attr, xml.Attr{Name: xml.Name{Local: attr.Name.Local}, Value: attr.Value})
		}
		if err := enc.EncodeToken(element); err != nil {
			return err
		}
		return enc.EncodeToken(element.End())
	})
	if err != nil {
		return kept, err
	}

	if err := enc.EncodeToken(root.End()); err != nil {
		return kept, err
	}
	if err := enc.Flush(); err != nil {
		return kept, err
	}
	_, err = io.WriteString(w, "\n")
	return kept, err
}

func keepEvent(e event, travelers map[string]struct{}, vehicles map[string][]TimeRange) bool {
	if _, known := travelers[e.person]; known && e.person != "" {
		return true
	}

	ranges, known := vehicles[e.vehicle]
	if !known || e.time == nil {
		return false
	}
	for _, r := range ranges {
		if r.Contains(*e.time) {
			return true
		}
	}
	return false
}

// FilterFile writes the filtered events of eventsPath into outputDir. A
// missing events file writes nothing and returns an empty path. The output
// only appears once it is complete.
func FilterFile(eventsPath string, outputDir string, travelers map[string]struct{}) (string, int, error) {
	if len(travelers) == 0 {
		return "", 0, ErrNoTravelers
	}
	if !dataset.Exists(eventsPath) {
		return "", 0, nil
	}

	ranges, err := LoadTimeRanges(eventsPath, travelers)
	if err != nil {
		return "", 0, err
	}

	reader, err := dataset.Open(eventsPath)
	if err != nil {
		return "", 0, err
	}
	defer reader.Close()

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", 0, err
	}

	path := filepath.Join(outputDir, FilteredEventsFileName)
	tmp, err := os.CreateTemp(outputDir, "."+FilteredEventsFileName+".*.tmp")
	if err != nil {
		return "", 0, err
	}

	kept, err := FilterEvents(reader, tmp, travelers, ranges)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err == nil {
		err = os.Rename(tmp.Name(), path)
	}
	if err != nil {
		os.Remove(tmp.Name())
		return "", 0, fmt.Errorf("writing %s: %w", path, err)
	}

	return path, kept, nil
}
