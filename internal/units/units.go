// Package units provides shared constants, parsing, and conversion for vehicle speed units
package units

import (
	"fmt"
	"strconv"
	"strings"
)

// Unit constants
const (
	KMH = "kmh"
	MPS = "mps"
	MPH = "mph"
)

// ValidUnits contains all valid unit values
var ValidUnits = []string{KMH, MPS, MPH}

// IsValid checks if the given unit is in the list of valid units
func IsValid(unit string) bool {
	for _, u := range ValidUnits {
		if u == unit {
			return true
		}
	}
	return false
}

// GetValidUnitsString returns a comma-separated string of valid units for error messages
func GetValidUnitsString() string {
	return strings.Join(ValidUnits, ", ")
}

// ConvertSpeed converts a speed in km/h (the canonical unit for survey runs)
// to the specified units. Unknown units return the km/h value unchanged.
func ConvertSpeed(speedKMH float64, units string) float64 {
	switch units {
	case MPS:
		return speedKMH / 3.6
	case MPH:
		return speedKMH * 0.621371
	case KMH:
		return speedKMH
	default:
		return speedKMH
	}
}

// ParseSpeed parses a vehicle speed form value in km/h. An empty value
// falls back to the supplied default. Negative speeds are rejected.
func ParseSpeed(value string, fallback int) (int, error) {
	if strings.TrimSpace(value) == "" {
		return fallback, nil
	}
	speed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("invalid speed %q: %w", value, err)
	}
	if speed < 0 {
		return 0, fmt.Errorf("invalid speed %d: must not be negative", speed)
	}
	return speed, nil
}
