package legs

import (
	"golang.org/x/exp/slices"
)

// FallbackReason explains why a transit leg was kept as a single row.
type FallbackReason string

const (
	FallbackNoRoute          FallbackReason = "no_route"
	FallbackNoStops          FallbackReason = "no_stops"
	FallbackNoAccessEgress   FallbackReason = "no_access_egress"
	FallbackStopNotOnRoute   FallbackReason = "stop_not_on_route"
	FallbackInvertedStops    FallbackReason = "inverted_stops"
	FallbackMalformedPayload FallbackReason = "malformed_payload"
)

type Stats struct {
	Itineraries          int
	Legs                 int
	Rows                 int
	ExpandedLegs         int
	ExpandedRows         int
	MalformedPayloads    int
	MissingStopPositions int
	InvertedRows         int

	Fallbacks map[FallbackReason]int
}

func newStats() Stats {
	return Stats{Fallbacks: map[FallbackReason]int{}}
}

// Add accumulates the counts of other into s.
func (s *Stats) Add(other Stats) {
	s.Itineraries += other.Itineraries
	s.Legs += other.Legs
	s.Rows += other.Rows
	s.ExpandedLegs += other.ExpandedLegs
	s.ExpandedRows += other.ExpandedRows
	s.MalformedPayloads += other.MalformedPayloads
	s.MissingStopPositions += other.MissingStopPositions
	s.InvertedRows += other.InvertedRows

	if s.Fallbacks == nil {
		s.Fallbacks = map[FallbackReason]int{}
	}
	for reason, count := range other.Fallbacks {
		s.Fallbacks[reason] += count
	}
}

// FallbackReasons lists the recorded reasons in a stable order.
func (s *Stats) FallbackReasons() []FallbackReason {
	reasons := make([]FallbackReason, 0, len(s.Fallbacks))
	for reason := range s.Fallbacks {
		reasons = append(reasons, reason)
	}
	slices.Sort(reasons)
	return reasons
}
