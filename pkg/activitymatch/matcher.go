package activitymatch

import (
	"fmt"
	"strings"

	"github.com/jinzhu/copier"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/tidwall/rtree"
	"github.com/travigo/simtracks/pkg/model"
	"github.com/travigo/simtracks/pkg/util"
	"golang.org/x/exp/slices"
)

const DefaultThresholdMeters = 500.0

type Stats struct {
	Points         int
	TimeMatches    int
	SpatialMatches int
	Unmatched      int
}

func (s *Stats) Add(other Stats) {
	s.Points += other.Points
	s.TimeMatches += other.TimeMatches
	s.SpatialMatches += other.SpatialMatches
	s.Unmatched += other.Unmatched
}

type Matcher struct {
	// ThresholdMeters bounds the spatial fallback, matches must be strictly closer
	ThresholdMeters float64
}

// travelerIndex holds the located activities of one traveler in an R-tree,
// keyed by their position in the time ordered activity list
type travelerIndex struct {
	tree    rtree.RTreeG[int]
	located int
}

func newTravelerIndex(activities []ActivityInfo) *travelerIndex {
	index := &travelerIndex{}
	for i, activity := range activities {
		if activity.Position == nil {
			continue
		}
		point := [2]float64{activity.Position.X(), activity.Position.Y()}
		index.tree.Insert(point, point, i)
		index.located++
	}
	return index
}

// nearest returns the closest located activity. Equidistant activities
// resolve to the one that starts first.
func (t *travelerIndex) nearest(position orb.Point) (int, bool) {
	if t.located == 0 {
		return -1, false
	}

	target := [2]float64{position.X(), position.Y()}
	best := -1
	bestDist := 0.0

	t.tree.Nearby(
		rtree.BoxDist[float64, int](target, target, nil),
		func(_, _ [2]float64, data int, dist float64) bool {
			if best < 0 {
				best, bestDist = data, dist
				return true
			}
			if dist > bestDist {
				return false
			}
			if data < best {
				best = data
			}
			return true
		},
	)

	return best, best >= 0
}

// Match returns a copy of points annotated with the activity each point
// belongs to: the earliest starting activity whose window holds the point's
// time, else the nearest activity when it lies within the threshold. The
// input slice is not modified and matching a matched table again gives the
// same result.
func (m Matcher) Match(points []model.TrackPoint, activities map[string][]ActivityInfo) ([]model.TrackPoint, Stats, error) {
	var stats Stats

	matched := []model.TrackPoint{}
	if len(points) == 0 {
		return matched, stats, nil
	}
	if err := copier.CopyWithOption(&matched, points, copier.Option{DeepCopy: true}); err != nil {
		return nil, stats, fmt.Errorf("copying track points: %w", err)
	}

	threshold := m.ThresholdMeters
	if threshold <= 0 {
		threshold = DefaultThresholdMeters
	}

	indexes := map[string]*travelerIndex{}

	for i := range matched {
		point := &matched[i]
		point.Activity = model.ActivityMatch{}
		stats.Points++

		travelerActivities, exists := activities[point.TravelerID]
		if !exists {
			stats.Unmatched++
			continue
		}

		if match, found := matchByTime(point.Time, travelerActivities); found {
			point.Activity = match
			stats.TimeMatches++
			continue
		}

		index, exists := indexes[point.TravelerID]
		if !exists {
			index = newTravelerIndex(travelerActivities)
			indexes[point.TravelerID] = index
		}

		nearest, found := index.nearest(point.Position)
		if !found {
			stats.Unmatched++
			continue
		}

		activity := travelerActivities[nearest]
		distance := planar.Distance(point.Position, *activity.Position)
		if distance >= threshold {
			stats.Unmatched++
			continue
		}

		point.Activity = model.ActivityMatch{
			Type:       activity.Type,
			Sequence:   util.Ptr(activity.Sequence),
			Link:       activity.Link,
			DistanceKm: util.Ptr(distance / 1000),
			Method:     model.MatchMethodSpatial,
		}
		stats.SpatialMatches++
	}

	return matched, stats, nil
}

func matchByTime(t int, activities []ActivityInfo) (model.ActivityMatch, bool) {
	for _, activity := range activities {
		if activity.contains(t) {
			return model.ActivityMatch{
				Type:     activity.Type,
				Sequence: util.Ptr(activity.Sequence),
				Link:     activity.Link,
				Method:   model.MatchMethodTime,
			}, true
		}
	}
	return model.ActivityMatch{}, false
}

// Summarise attaches to every point the sorted, comma separated set of
// activity types matched for its traveler and the size of that set.
func Summarise(points []model.TrackPoint) {
	types := map[string]map[string]bool{}
	for _, point := range points {
		if _, exists := types[point.TravelerID]; !exists {
			types[point.TravelerID] = map[string]bool{}
		}
		if point.Activity.Method != model.MatchMethodNone && point.Activity.Type != "" {
			types[point.TravelerID][point.Activity.Type] = true
		}
	}

	summaries := map[string]string{}
	counts := map[string]int{}
	for traveler, set := range types {
		names := make([]string, 0, len(set))
		for name := range set {
			names = append(names, name)
		}
		slices.Sort(names)

		summaries[traveler] = strings.Join(names, ",")
		counts[traveler] = len(names)
	}

	for i := range points {
		points[i].ActivityTypes = summaries[points[i].TravelerID]
		points[i].ActivityCount = util.Ptr(counts[points[i].TravelerID])
	}
}
