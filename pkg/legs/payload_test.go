package legs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/travigo/simtracks/pkg/model"
	"github.com/travigo/simtracks/pkg/util"
)

func TestDecodePayload(t *testing.T) {
	tests := []struct {
		name      string
		routeType string
		raw       string
		expect    *model.TransitPayload
	}{
		{
			name:      "empty",
			routeType: model.RouteTypeDefaultPT,
			raw:       "  ",
			expect:    nil,
		},
		{
			name:      "json with clock boarding time",
			routeType: model.RouteTypeDefaultPT,
			raw:       `{"transitRouteId":"r1","boardingTime":"08:06:00","transitLineId":"L1","accessFacilityId":"S1","egressFacilityId":"S3","chainedDepartureId":null}`,
			expect: &model.TransitPayload{
				TransitRouteID: "r1",
				TransitLineID:  "L1",
				AccessStopID:   "S1",
				EgressStopID:   "S3",
				BoardingTime:   util.Ptr(8*3600 + 360),
			},
		},
		{
			name:      "json with numeric boarding time",
			routeType: model.RouteTypeDefaultPT,
			raw:       `{"transitRouteId":"r1","boardingTime":1000.0}`,
			expect: &model.TransitPayload{
				TransitRouteID: "r1",
				BoardingTime:   util.Ptr(1000),
			},
		},
		{
			name:      "json without stops",
			routeType: model.RouteTypeDefaultPT,
			raw:       `{"transitRouteId":"r1","transitLineId":"L1"}`,
			expect: &model.TransitPayload{
				TransitRouteID: "r1",
				TransitLineID:  "L1",
			},
		},
		{
			name:      "broken json",
			routeType: model.RouteTypeDefaultPT,
			raw:       `{"transitRouteId":`,
			expect:    &model.TransitPayload{Malformed: true},
		},
		{
			name:      "experimental pt1",
			routeType: model.RouteTypeExperimentalPT1,
			raw:       "PT1===S1===L1===r1===S3",
			expect: &model.TransitPayload{
				TransitRouteID: "r1",
				TransitLineID:  "L1",
				AccessStopID:   "S1",
				EgressStopID:   "S3",
			},
		},
		{
			name:      "experimental pt1 detected from text",
			routeType: "",
			raw:       "PT1===S1===L1===r1===S3",
			expect: &model.TransitPayload{
				TransitRouteID: "r1",
				TransitLineID:  "L1",
				AccessStopID:   "S1",
				EgressStopID:   "S3",
			},
		},
		{
			name:      "experimental pt1 with missing parts",
			routeType: model.RouteTypeExperimentalPT1,
			raw:       "PT1===S1===L1",
			expect:    &model.TransitPayload{Malformed: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expect, DecodePayload(tt.routeType, tt.raw))
		})
	}
}
