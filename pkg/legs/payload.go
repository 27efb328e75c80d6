package legs

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"github.com/travigo/simtracks/pkg/model"
	"github.com/travigo/simtracks/pkg/util"
)

var ErrMalformedPayload = errors.New("malformed transit route payload")

type MalformedPolicy string

const (
	MalformedPolicyIgnore MalformedPolicy = "ignore"
	MalformedPolicyWarn   MalformedPolicy = "warn"
	MalformedPolicyFail   MalformedPolicy = "fail"
)

const experimentalPT1Separator = "==="

type jsonPayload struct {
	TransitRouteID     string          `json:"transitRouteId"`
	TransitLineID      string          `json:"transitLineId"`
	AccessFacilityID   string          `json:"accessFacilityId"`
	EgressFacilityID   string          `json:"egressFacilityId"`
	BoardingTime       json.RawMessage `json:"boardingTime"`
	ChainedDepartureID string          `json:"chainedDepartureId"`
}

// DecodePayload decodes the text of a transit route element. It returns nil
// when there is no payload text at all.
func DecodePayload(routeType string, raw string) *model.TransitPayload {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	if routeType == model.RouteTypeExperimentalPT1 || strings.HasPrefix(raw, "PT1"+experimentalPT1Separator) {
		return decodeExperimentalPT1(raw)
	}

	return decodeJSON(raw)
}

func decodeJSON(raw string) *model.TransitPayload {
	var decoded jsonPayload
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return &model.TransitPayload{Malformed: true}
	}

	return &model.TransitPayload{
		TransitRouteID:     decoded.TransitRouteID,
		TransitLineID:      decoded.TransitLineID,
		AccessStopID:       decoded.AccessFacilityID,
		EgressStopID:       decoded.EgressFacilityID,
		BoardingTime:       decodeBoardingTime(decoded.BoardingTime),
		ChainedDepartureID: decoded.ChainedDepartureID,
	}
}

// Boarding times are written as clock strings by current releases and as
// plain seconds by some older ones.
func decodeBoardingTime(raw json.RawMessage) *int {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}

	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return util.ParseClock(text)
	}

	var seconds float64
	if err := json.Unmarshal(raw, &seconds); err == nil {
		return util.ParseClock(strconv.FormatFloat(seconds, 'f', -1, 64))
	}

	return nil
}

// decodeExperimentalPT1 reads PT1===access===line===route===egress
func decodeExperimentalPT1(raw string) *model.TransitPayload {
	parts := strings.Split(raw, experimentalPT1Separator)
	if len(parts) != 5 || parts[0] != "PT1" {
		return &model.TransitPayload{Malformed: true}
	}

	return &model.TransitPayload{
		AccessStopID:   strings.TrimSpace(parts[1]),
		TransitLineID:  strings.TrimSpace(parts[2]),
		TransitRouteID: strings.TrimSpace(parts[3]),
		EgressStopID:   strings.TrimSpace(parts[4]),
	}
}
