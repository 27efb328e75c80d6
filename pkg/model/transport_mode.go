package model

type TransportMode string

const (
	TransportModeWalk    TransportMode = "walk"
	TransportModePT                    = "pt"
	TransportModeBus                   = "bus"
	TransportModeTram                  = "tram"
	TransportModeSubway                = "subway"
	TransportModeRail                  = "rail"
	TransportModeFerry                 = "ferry"
	TransportModeCar                   = "car"
	TransportModeBike                  = "bike"
	TransportModeUnknown               = "unknown"
)

// DefaultIncludedModes are sampled into tracks unless configured otherwise.
// Private road vehicles are left out to bound the output volume.
var DefaultIncludedModes = []string{
	string(TransportModeWalk),
	TransportModePT,
	TransportModeSubway,
	TransportModeRail,
	TransportModeBus,
	TransportModeTram,
}

// DefaultTransitModes are leg modes served by scheduled transit.
var DefaultTransitModes = []string{TransportModePT}

const (
	RouteTypeDefaultPT       = "default_pt"
	RouteTypeExperimentalPT1 = "experimentalPt1"
)

// DefaultTransitRouteTypes are route discriminators that carry a transit payload.
var DefaultTransitRouteTypes = []string{RouteTypeDefaultPT, RouteTypeExperimentalPT1}
