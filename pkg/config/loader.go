package config

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	iso8601 "github.com/senseyeio/duration"
	"github.com/travigo/simtracks/pkg/model"
	"github.com/travigo/simtracks/pkg/util"
	"gopkg.in/yaml.v3"
)

const EnvironmentPrefix = "SIMTRACKS_"

var ErrInvalid = errors.New("invalid configuration")

// Defaults returns the built-in configuration
func Defaults() *Config {
	return &Config{
		ExportFormats:          []string{"csv"},
		Interval:               5,
		IncludeModes:           append([]string{}, model.DefaultIncludedModes...),
		TransitModes:           append([]string{}, model.DefaultTransitModes...),
		TransitRouteTypes:      append([]string{}, model.DefaultTransitRouteTypes...),
		MalformedPayload:       "warn",
		IntermediateStart:      "departure",
		ActivityMatching:       true,
		SpatialThresholdMeters: 500,
		CoordinateSystem:       "none",
		Workers:                runtime.NumCPU(),
	}
}

// LoadDotEnv loads variables from .env files into the process environment.
// Variables already set win and missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}

	for _, path := range paths {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("loading %s: %w", path, err)
		}
	}
	return nil
}

// Load layers the optional YAML file at path and the SIMTRACKS_ environment
// over the defaults. The result is not validated yet as command line flags
// may still override it.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}

	if err := cfg.ApplyEnvironment(util.GetEnvironmentVariables(EnvironmentPrefix)); err != nil {
		return nil, err
	}

	return cfg, nil
}

var environmentSetters = map[string]func(cfg *Config, value string) error{
	"PLANS":               func(cfg *Config, value string) error { cfg.PlansPath = value; return nil },
	"POPULATION":          func(cfg *Config, value string) error { cfg.PopulationPath = value; return nil },
	"SCHEDULE":            func(cfg *Config, value string) error { cfg.SchedulePath = value; return nil },
	"EVENTS":              func(cfg *Config, value string) error { cfg.EventsPath = value; return nil },
	"VEHICLES":            func(cfg *Config, value string) error { cfg.VehiclesPath = value; return nil },
	"OUTPUT_DIR":          func(cfg *Config, value string) error { cfg.OutputDir = value; return nil },
	"EXPORT_FORMATS":      func(cfg *Config, value string) error { cfg.ExportFormats = util.SplitList(value); return nil },
	"METRICS_FILE":        func(cfg *Config, value string) error { cfg.MetricsFile = value; return nil },
	"INCLUDE_MODES":       func(cfg *Config, value string) error { cfg.IncludeModes = util.SplitList(value); return nil },
	"INCLUDE_EXPR":        func(cfg *Config, value string) error { cfg.IncludeExpr = value; return nil },
	"TRANSIT_MODES":       func(cfg *Config, value string) error { cfg.TransitModes = util.SplitList(value); return nil },
	"TRANSIT_ROUTE_TYPES": func(cfg *Config, value string) error { cfg.TransitRouteTypes = util.SplitList(value); return nil },
	"MALFORMED_PAYLOAD":   func(cfg *Config, value string) error { cfg.MalformedPayload = value; return nil },
	"INTERMEDIATE_START":  func(cfg *Config, value string) error { cfg.IntermediateStart = value; return nil },
	"COORDINATE_SYSTEM":   func(cfg *Config, value string) error { cfg.CoordinateSystem = value; return nil },
	"INTERVAL": func(cfg *Config, value string) error {
		seconds, err := ParseSeconds(value)
		cfg.Interval = Seconds(seconds)
		return err
	},
	"EXPORT_FILTERED_EVENTS": func(cfg *Config, value string) error {
		enabled, err := strconv.ParseBool(value)
		cfg.ExportFilteredEvents = enabled
		return err
	},
	"ACTIVITY_MATCHING": func(cfg *Config, value string) error {
		enabled, err := strconv.ParseBool(value)
		cfg.ActivityMatching = enabled
		return err
	},
	"SPATIAL_THRESHOLD": func(cfg *Config, value string) error {
		threshold, err := strconv.ParseFloat(value, 64)
		cfg.SpatialThresholdMeters = threshold
		return err
	},
	"WORKERS": func(cfg *Config, value string) error {
		workers, err := strconv.Atoi(value)
		cfg.Workers = workers
		return err
	},
}

// ApplyEnvironment overrides fields from prefix stripped environment
// variables. Unknown keys are ignored.
func (cfg *Config) ApplyEnvironment(env map[string]string) error {
	for key, value := range env {
		setter, exists := environmentSetters[key]
		if !exists {
			continue
		}
		if err := setter(cfg, strings.TrimSpace(value)); err != nil {
			return fmt.Errorf("%w: %s%s: %w", ErrInvalid, EnvironmentPrefix, key, err)
		}
	}
	return nil
}

func (cfg *Config) Validate() error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}

// ParseSeconds reads a duration as a whole number of seconds.
func ParseSeconds(value string) (int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, errors.New("empty duration")
	}

	if seconds, err := strconv.Atoi(value); err == nil {
		return seconds, nil
	}

	var parsed time.Duration
	if strings.HasPrefix(strings.ToUpper(value), "P") {
		isoDuration, err := iso8601.ParseISO8601(strings.ToUpper(value))
		if err != nil {
			return 0, fmt.Errorf("parsing duration %q: %w", value, err)
		}
		if isoDuration.Y != 0 || isoDuration.M != 0 {
			return 0, fmt.Errorf("duration %q uses calendar years or months", value)
		}

		base := time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)
		parsed = isoDuration.Shift(base).Sub(base)
	} else {
		var err error
		parsed, err = time.ParseDuration(value)
		if err != nil {
			return 0, fmt.Errorf("parsing duration %q: %w", value, err)
		}
	}

	if parsed%time.Second != 0 {
		return 0, fmt.Errorf("duration %q is not a whole number of seconds", value)
	}
	if parsed.Seconds() > math.MaxInt32 {
		return 0, fmt.Errorf("duration %q is too long", value)
	}

	return int(parsed / time.Second), nil
}

// PlansSource picks the itinerary file to read: the plans file when it exists,
// else the population file.
func (cfg *Config) PlansSource() (string, error) {
	if cfg.PlansPath != "" {
		if _, err := os.Stat(cfg.PlansPath); err == nil {
			return cfg.PlansPath, nil
		}
	}
	if cfg.PopulationPath != "" {
		if _, err := os.Stat(cfg.PopulationPath); err == nil {
			return cfg.PopulationPath, nil
		}
	}
	return "", fmt.Errorf("neither plans (%q) nor population (%q) file could be found", cfg.PlansPath, cfg.PopulationPath)
}
