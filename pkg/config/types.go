package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Config is the configuration of one pipeline run
type Config struct {
	PlansPath      string `yaml:"plans" validate:"required_without=PopulationPath"`
	PopulationPath string `yaml:"population"`
	SchedulePath   string `yaml:"schedule"`
	EventsPath     string `yaml:"events"`
	VehiclesPath   string `yaml:"vehicles"`

	ExportFilteredEvents bool `yaml:"export_filtered_events"`

	OutputDir     string   `yaml:"output_dir" validate:"required"`
	ExportFormats []string `yaml:"export_formats" validate:"min=1,dive,oneof=csv json"`
	MetricsFile   string   `yaml:"metrics_file"`

	Interval     Seconds  `yaml:"interval" validate:"gt=0"`
	IncludeModes []string `yaml:"include_modes" validate:"min=1,dive,required"`
	IncludeExpr  string   `yaml:"include_expr"`

	TransitModes      []string `yaml:"transit_modes" validate:"min=1,dive,required"`
	TransitRouteTypes []string `yaml:"transit_route_types" validate:"min=1,dive,required"`
	MalformedPayload  string   `yaml:"malformed_payload" validate:"oneof=ignore warn fail"`
	IntermediateStart string   `yaml:"intermediate_start" validate:"oneof=departure arrival"`

	ActivityMatching       bool    `yaml:"activity_matching"`
	SpatialThresholdMeters float64 `yaml:"spatial_threshold_meters" validate:"gt=0"`

	CoordinateSystem string `yaml:"coordinate_system" validate:"oneof=none osgb36"`

	Workers int `yaml:"workers" validate:"gte=1"`
}

// Seconds is a whole number of seconds. It is read from Go durations (5s),
// ISO-8601 durations (PT5S) or a bare number of seconds.
type Seconds int

func (s *Seconds) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: expected a duration", node.Line)
	}

	seconds, err := ParseSeconds(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}

	*s = Seconds(seconds)
	return nil
}
