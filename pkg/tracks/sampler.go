package tracks

import (
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/rs/zerolog/log"
	"github.com/travigo/simtracks/pkg/model"
	"golang.org/x/exp/slices"
)

// Env is what an include expression can see about a leg row.
type Env struct {
	Mode       string
	RawMode    string
	LegIndex   int
	TravelerID string
	Duration   int
}

type Stats struct {
	Rows               int
	SampledRows        int
	SkippedMode        int
	SkippedExpression  int
	MissingTime        int
	MissingPosition    int
	EmptyWindow        int
	ExpressionFailures int
	Points             int
}

func (s *Stats) Add(other Stats) {
	s.Rows += other.Rows
	s.SampledRows += other.SampledRows
	s.SkippedMode += other.SkippedMode
	s.SkippedExpression += other.SkippedExpression
	s.MissingTime += other.MissingTime
	s.MissingPosition += other.MissingPosition
	s.EmptyWindow += other.EmptyWindow
	s.ExpressionFailures += other.ExpressionFailures
	s.Points += other.Points
}

type Sampler struct {
	Interval     int
	IncludeModes []string

	program *vm.Program
}

// NewSampler returns a sampler for the given interval and mode set. An
// optional include expression further restricts the sampled rows.
func NewSampler(interval int, includeModes []string, includeExpr string) (*Sampler, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("sampling interval must be positive, got %d", interval)
	}
	if len(includeModes) == 0 {
		includeModes = model.DefaultIncludedModes
	}

	sampler := &Sampler{
		Interval:     interval,
		IncludeModes: includeModes,
	}

	if strings.TrimSpace(includeExpr) != "" {
		program, err := expr.Compile(includeExpr, expr.Env(Env{}), expr.AsBool())
		if err != nil {
			return nil, fmt.Errorf("compiling include expression: %w", err)
		}
		sampler.program = program
	}

	return sampler, nil
}

// Sample turns leg rows into track points. The result is ordered by time,
// traveler and leg index; rows sharing all three keep their input order.
func (s *Sampler) Sample(rows []model.LegRow) ([]model.TrackPoint, Stats) {
	var stats Stats
	var points []model.TrackPoint

	for _, row := range rows {
		stats.Rows++

		if row.StartTime == nil || row.EndTime == nil {
			stats.MissingTime++
			continue
		}

		mode := row.DisplayMode()
		if !slices.Contains(s.IncludeModes, mode) {
			stats.SkippedMode++
			continue
		}

		if s.program != nil && !s.evaluate(row, mode, &stats) {
			stats.SkippedExpression++
			continue
		}

		if row.StartPosition == nil || row.EndPosition == nil {
			stats.MissingPosition++
			continue
		}

		samples := Interpolate(*row.StartPosition, *row.EndPosition, *row.StartTime, *row.EndTime, s.Interval)
		if len(samples) == 0 {
			stats.EmptyWindow++
			continue
		}
		stats.SampledRows++

		for _, sample := range samples {
			points = append(points, model.TrackPoint{
				Time:       sample.Time,
				TravelerID: row.TravelerID,
				Mode:       mode,
				RawMode:    row.Mode,
				Position:   sample.Position,
				LegIndex:   row.LegIndex,
				Status:     model.TrackStatusInLeg,
				VehicleRef: row.VehicleRef,
				Transit:    row.Transit,
			})
		}
	}

	Sort(points)
	stats.Points = len(points)

	return points, stats
}

func (s *Sampler) evaluate(row model.LegRow, mode string, stats *Stats) bool {
	env := Env{
		Mode:       mode,
		RawMode:    row.Mode,
		LegIndex:   row.LegIndex,
		TravelerID: row.TravelerID,
		Duration:   *row.EndTime - *row.StartTime,
	}

	result, err := expr.Run(s.program, env)
	if err != nil {
		stats.ExpressionFailures++
		log.Debug().Err(err).Str("traveler", row.TravelerID).Int("leg", row.LegIndex).Msg("Include expression failed")
		return false
	}

	include, _ := result.(bool)
	return include
}

func Sort(points []model.TrackPoint) {
	slices.SortStableFunc(points, func(a, b model.TrackPoint) int {
		if a.Time != b.Time {
			return a.Time - b.Time
		}
		if c := strings.Compare(a.TravelerID, b.TravelerID); c != 0 {
			return c
		}
		return a.LegIndex - b.LegIndex
	})
}
