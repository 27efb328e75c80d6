package projection

import (
	"errors"
	"fmt"

	"github.com/paulcager/osgridref"
	"github.com/paulmach/orb"
	"github.com/rs/zerolog/log"
	"github.com/travigo/simtracks/pkg/model"
	"github.com/travigo/simtracks/pkg/util"
)

type CoordinateSystem string

const (
	CoordinateSystemNone   CoordinateSystem = "none"
	CoordinateSystemOSGB36 CoordinateSystem = "osgb36"
)

var (
	ErrUnknownCoordinateSystem = errors.New("unknown coordinate system")
	ErrOutOfGrid               = errors.New("grid reference out of range")
)

// Extent of the British National Grid in metres.
const (
	gridMaxEasting  = 700000
	gridMaxNorthing = 1300000
)

func ParseCoordinateSystem(value string) (CoordinateSystem, error) {
	switch CoordinateSystem(value) {
	case "", CoordinateSystemNone:
		return CoordinateSystemNone, nil
	case CoordinateSystemOSGB36:
		return CoordinateSystemOSGB36, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownCoordinateSystem, value)
	}
}

// ToLatLon converts a British National Grid easting/northing into WGS84
// latitude and longitude.
func ToLatLon(point orb.Point) (float64, float64, error) {
	if point.X() < 0 || point.X() > gridMaxEasting || point.Y() < 0 || point.Y() > gridMaxNorthing {
		return 0, 0, fmt.Errorf("%w: %.0f,%.0f", ErrOutOfGrid, point.X(), point.Y())
	}

	gridRef, err := osgridref.ParseOsGridRef(fmt.Sprintf("%.0f,%.0f", point.X(), point.Y()))
	if err != nil {
		return 0, 0, err
	}

	latitude, longitude := gridRef.ToLatLon()
	return latitude, longitude, nil
}

// Apply fills the geographic coordinates of every point. Points that cannot
// be converted keep empty coordinates and are counted in the result.
func Apply(points []model.TrackPoint, system CoordinateSystem) int {
	if system != CoordinateSystemOSGB36 {
		return 0
	}

	failed := 0
	for i := range points {
		latitude, longitude, err := ToLatLon(points[i].Position)
		if err != nil {
			failed++
			log.Debug().Err(err).Str("traveler", points[i].TravelerID).Int("time", points[i].Time).Msg("Could not convert grid reference")
			continue
		}

		points[i].Latitude = util.Ptr(latitude)
		points[i].Longitude = util.Ptr(longitude)
	}

	if failed > 0 {
		log.Warn().Int("points", failed).Msg("Track points outside the British National Grid have no latitude/longitude")
	}

	return failed
}
