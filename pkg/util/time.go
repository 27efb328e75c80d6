package util

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

const undefinedClock = "undefined"

// ParseClock converts a simulation clock value into seconds since midnight.
// Accepts HH:MM:SS (hours may run past 24), HH:MM and raw second counts.
// Empty, "undefined" or unparseable values return nil.
func ParseClock(value string) *int {
	value = strings.TrimSpace(value)
	if value == "" || value == undefinedClock {
		return nil
	}

	parts := strings.Split(value, ":")
	if len(parts) == 1 {
		seconds, err := strconv.ParseFloat(value, 64)
		if err != nil || math.IsNaN(seconds) || math.IsInf(seconds, 0) {
			return nil
		}
		return Ptr(int(seconds))
	}

	if len(parts) != 2 && len(parts) != 3 {
		return nil
	}

	total := 0
	multipliers := []int{3600, 60, 1}
	for i, part := range parts {
		var number int
		var err error

		// Seconds may carry a fractional part (e.g. 07:30:00.5)
		if i == 2 {
			var fractional float64
			fractional, err = strconv.ParseFloat(part, 64)
			number = int(fractional)
		} else {
			number, err = strconv.Atoi(part)
		}
		if err != nil || number < 0 {
			return nil
		}

		total += number * multipliers[i]
	}

	return &total
}

// FormatClock renders seconds since midnight as zero padded HH:MM:SS.
func FormatClock(seconds *int) string {
	if seconds == nil {
		return ""
	}

	s := *seconds
	if s < 0 {
		s = 0
	}

	return fmt.Sprintf("%02d:%02d:%02d", s/3600, (s%3600)/60, s%60)
}
