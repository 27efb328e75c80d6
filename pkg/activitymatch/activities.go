package activitymatch

import (
	"github.com/paulmach/orb"
	"github.com/travigo/simtracks/pkg/model"
	"github.com/travigo/simtracks/pkg/util"
	"golang.org/x/exp/slices"
)

// ActivityInfo is an activity of a traveler as seen by the matcher.
type ActivityInfo struct {
	Type      string
	Position  *orb.Point
	Link      string
	StartTime *int
	EndTime   *int

	// Sequence is the position of the activity among the plan's activities
	Sequence int
}

// Activities lists the activities of one itinerary ordered by start time,
// unknown starts counting as midnight. Ties keep plan order.
func Activities(it *model.Itinerary) []ActivityInfo {
	var activities []ActivityInfo
	for sequence, activity := range it.Activities() {
		activities = append(activities, ActivityInfo{
			Type:      activity.Type,
			Position:  activity.Position,
			Link:      activity.Link,
			StartTime: activity.StartTime,
			EndTime:   activity.EndTime,
			Sequence:  sequence,
		})
	}

	slices.SortStableFunc(activities, func(a, b ActivityInfo) int {
		return util.IntOrZero(a.StartTime) - util.IntOrZero(b.StartTime)
	})

	return activities
}

// ExtractActivities indexes the activities of every itinerary by traveler.
func ExtractActivities(itineraries []*model.Itinerary) map[string][]ActivityInfo {
	activities := map[string][]ActivityInfo{}
	for _, it := range itineraries {
		activities[it.TravelerID] = Activities(it)
	}
	return activities
}

func (a *ActivityInfo) contains(t int) bool {
	if a.StartTime == nil || a.EndTime == nil {
		return false
	}
	return *a.StartTime <= t && t <= *a.EndTime
}
