package tracks

import (
	"math"

	"github.com/paulmach/orb"
)

type Sample struct {
	Time     int
	Position orb.Point
}

// Interpolate samples the straight movement from a at t0 to b at t1 every dt
// seconds, both endpoints included. When dt does not divide the duration the
// steps are shortened evenly so the last sample lands on t1. Zero length and
// inverted windows produce no samples.
func Interpolate(a orb.Point, b orb.Point, t0 int, t1 int, dt int) []Sample {
	if dt <= 0 || t1 <= t0 {
		return nil
	}

	duration := t1 - t0
	steps := int(math.Ceil(float64(duration) / float64(dt)))

	samples := make([]Sample, 0, steps+1)
	for i := 0; i <= steps; i++ {
		fraction := float64(i) / float64(steps)

		samples = append(samples, Sample{
			Time: t0 + int(math.Round(float64(duration)*fraction)),
			Position: orb.Point{
				a[0] + (b[0]-a[0])*fraction,
				a[1] + (b[1]-a[1])*fraction,
			},
		})
	}

	return samples
}
