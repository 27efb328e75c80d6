package vehicleusage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/travigo/simtracks/pkg/dataset"
	"github.com/travigo/simtracks/pkg/util"
)

const (
	CSVFileName    = "filtered_vehicles.csv"
	ReportFileName = "vehicle_usage_report.txt"
)

type vehicleRecord struct {
	VehicleID     string `csv:"vehicle_id"`
	Mode          string `csv:"mode"`
	FirstUseTimeS int    `csv:"first_use_time_s"`
	LastUseTimeS  int    `csv:"last_use_time_s"`
	FirstUseTime  string `csv:"first_use_time"`
	LastUseTime   string `csv:"last_use_time"`
	TravelerCount int    `csv:"agent_count"`
}

func WriteCSV(w io.Writer, usage Usage) error {
	var records []vehicleRecord
	for _, vehicle := range usage.Sorted() {
		records = append(records, vehicleRecord{
			VehicleID:     vehicle.ID,
			Mode:          vehicle.Mode,
			FirstUseTimeS: vehicle.FirstUse,
			LastUseTimeS:  vehicle.LastUse,
			FirstUseTime:  util.FormatClock(&vehicle.FirstUse),
			LastUseTime:   util.FormatClock(&vehicle.LastUse),
			TravelerCount: vehicle.TravelerCount(),
		})
	}

	return gocsv.Marshal(records, w)
}

// CompressionRatio is the percentage of defined vehicles nobody used.
func CompressionRatio(total int, used int) float64 {
	if total <= 0 {
		return 0
	}
	return 100 * (1 - float64(used)/float64(total))
}

func WriteReport(w io.Writer, total int, usage Usage) error {
	rule := strings.Repeat("=", 70)
	thin := strings.Repeat("-", 70)
	used := len(usage)

	var b strings.Builder
	fmt.Fprintf(&b, "%s\nVEHICLE FILTERING REPORT\n%s\n\n", rule, rule)
	fmt.Fprintf(&b, "Total vehicles defined:        %d\n", total)
	fmt.Fprintf(&b, "Vehicles used by agents:       %d\n", used)
	fmt.Fprintf(&b, "Vehicles filtered out:         %d\n", total-used)
	fmt.Fprintf(&b, "Compression ratio:             %.1f%%\n\n", CompressionRatio(total, used))

	if used > 0 {
		fmt.Fprintf(&b, "AGENT-USED VEHICLES:\n%s\n", thin)
		fmt.Fprintf(&b, "%-30s %-10s %-8s %s\n", "Vehicle ID", "Mode", "Agents", "Time Range")
		fmt.Fprintf(&b, "%s\n", thin)

		for _, vehicle := range usage.Sorted() {
			timeRange := util.FormatClock(&vehicle.FirstUse) + " - " + util.FormatClock(&vehicle.LastUse)
			fmt.Fprintf(&b, "%-30s %-10s %-8d %s\n", vehicle.ID, vehicle.Mode, vehicle.TravelerCount(), timeRange)
		}
	}

	fmt.Fprintf(&b, "\n%s\n", rule)

	_, err := io.WriteString(w, b.String())
	return err
}

func writeFile(path string, write func(io.Writer) error) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}

	if err := write(file); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// Options configures a vehicle usage run.
type Options struct {
	EventsPath   string
	VehiclesPath string
	OutputDir    string

	// Travelers restricts the report to these traveler ids, nil accepts all
	Travelers map[string]struct{}
}

type Result struct {
	Usage         Usage
	TotalVehicles int
	Outputs       map[string]string
}

// Run builds the usage report. A missing events file or an events file with
// no matching boardings yields an empty result without writing anything.
func Run(options Options) (*Result, error) {
	result := &Result{Outputs: map[string]string{}}

	if !dataset.Exists(options.EventsPath) {
		return result, nil
	}

	usage, err := LoadUsage(options.EventsPath, options.Travelers)
	if err != nil {
		return nil, err
	}
	result.Usage = usage

	if len(usage) == 0 {
		return result, nil
	}

	if dataset.Exists(options.VehiclesPath) {
		total, err := CountVehicles(options.VehiclesPath)
		if err != nil {
			return nil, err
		}
		result.TotalVehicles = total
	} else {
		result.TotalVehicles = len(usage)
	}

	if err := os.MkdirAll(options.OutputDir, 0o755); err != nil {
		return nil, err
	}

	csvPath := filepath.Join(options.OutputDir, CSVFileName)
	if err := writeFile(csvPath, func(w io.Writer) error { return WriteCSV(w, usage) }); err != nil {
		return nil, fmt.Errorf("writing %s: %w", csvPath, err)
	}
	result.Outputs["filtered_vehicles_csv"] = csvPath

	reportPath := filepath.Join(options.OutputDir, ReportFileName)
	if err := writeFile(reportPath, func(w io.Writer) error { return WriteReport(w, result.TotalVehicles, usage) }); err != nil {
		return nil, fmt.Errorf("writing %s: %w", reportPath, err)
	}
	result.Outputs["vehicle_usage_report"] = reportPath

	return result, nil
}
