package population

import (
	"encoding/xml"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/travigo/simtracks/pkg/dataset"
	"github.com/travigo/simtracks/pkg/model"
	"github.com/travigo/simtracks/pkg/util"
)

var ErrNoRoot = errors.New("document has no population or plans root element")

// Stats summarises a parse run.
type Stats struct {
	Persons        int
	Itineraries    int
	Activities     int
	Legs           int
	SkippedPlans   int
	DegradedFields int
}

// ParseFile reads every selected itinerary of a (possibly compressed)
// population or plans file.
func ParseFile(path string) ([]*model.Itinerary, Stats, error) {
	reader, err := dataset.Open(path)
	if err != nil {
		return nil, Stats{}, err
	}
	defer reader.Close()

	var itineraries []*model.Itinerary
	stats, err := Parse(reader, func(it *model.Itinerary) error {
		itineraries = append(itineraries, it)
		return nil
	})
	if err != nil {
		return nil, stats, fmt.Errorf("parse %s: %w", path, err)
	}

	return itineraries, stats, nil
}

type attributes map[string]string

func newAttributes(attrs []xml.Attr) attributes {
	a := attributes{}
	for _, attr := range attrs {
		a[attr.Name.Local] = attr.Value
	}
	return a
}

// clock reads the first present spelling of a time attribute.
func (a attributes) clock(stats *Stats, names ...string) *int {
	for _, name := range names {
		value, exists := a[name]
		if !exists || strings.TrimSpace(value) == "" {
			continue
		}

		seconds := util.ParseClock(value)
		if seconds == nil && strings.TrimSpace(value) != "undefined" {
			stats.DegradedFields++
		}
		return seconds
	}
	return nil
}

func (a attributes) float(stats *Stats, name string) *float64 {
	value, exists := a[name]
	if !exists || strings.TrimSpace(value) == "" {
		return nil
	}

	parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		stats.DegradedFields++
		return nil
	}
	return &parsed
}

func (a attributes) position(stats *Stats) *orb.Point {
	x := a.float(stats, "x")
	y := a.float(stats, "y")
	if x == nil || y == nil {
		return nil
	}
	return &orb.Point{*x, *y}
}
