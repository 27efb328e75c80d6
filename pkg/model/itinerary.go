package model

import "github.com/paulmach/orb"

// Activity is a stationary period in a traveler's plan.
type Activity struct {
	Type     string
	Position *orb.Point
	Link     string
	Facility string

	StartTime   *int
	EndTime     *int
	MaxDuration *int
}

// Route is the routing sub-element of a leg.
type Route struct {
	Type       string
	StartLink  string
	EndLink    string
	Distance   *float64
	VehicleRef string

	// Raw text content, a serialised transit payload for transit legs
	Raw string
}

// Leg is a transport segment between two activities.
type Leg struct {
	Mode          string
	DepartureTime *int
	TravelTime    *int

	Attributes map[string]string
	Route      *Route
}

func (l *Leg) RouteType() string {
	if l.Route == nil {
		return ""
	}
	return l.Route.Type
}

type EntryKind int

const (
	EntryActivity EntryKind = iota
	EntryLeg
)

type Entry struct {
	Kind     EntryKind
	Activity *Activity
	Leg      *Leg
}

// Itinerary is the selected plan of one traveler.
type Itinerary struct {
	TravelerID string
	Entries    []Entry
}

func (it *Itinerary) AddActivity(a *Activity) {
	it.Entries = append(it.Entries, Entry{Kind: EntryActivity, Activity: a})
}

func (it *Itinerary) AddLeg(l *Leg) {
	it.Entries = append(it.Entries, Entry{Kind: EntryLeg, Leg: l})
}

func (it *Itinerary) Activities() []*Activity {
	var activities []*Activity
	for _, entry := range it.Entries {
		if entry.Kind == EntryActivity {
			activities = append(activities, entry.Activity)
		}
	}
	return activities
}

func (it *Itinerary) Legs() []*Leg {
	var legs []*Leg
	for _, entry := range it.Entries {
		if entry.Kind == EntryLeg {
			legs = append(legs, entry.Leg)
		}
	}
	return legs
}

// NextActivityIndex returns, for every entry, the index of the first activity
// strictly after it, or -1 when none follows. Built in one backwards pass.
func (it *Itinerary) NextActivityIndex() []int {
	next := make([]int, len(it.Entries))
	following := -1
	for i := len(it.Entries) - 1; i >= 0; i-- {
		next[i] = following
		if it.Entries[i].Kind == EntryActivity {
			following = i
		}
	}
	return next
}

// PreviousActivityIndex returns, for every entry, the index of the closest
// activity strictly before it, or -1.
func (it *Itinerary) PreviousActivityIndex() []int {
	previous := make([]int, len(it.Entries))
	preceding := -1
	for i, entry := range it.Entries {
		previous[i] = preceding
		if entry.Kind == EntryActivity {
			preceding = i
		}
	}
	return previous
}
