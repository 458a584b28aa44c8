package models

import (
	"fmt"
	"time"
)

// Observation is a single set of current conditions. Every field is always
// populated; missing provider data is replaced before it gets here.
type Observation struct {
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
	WindSpeed   float64 `json:"wind_speed"`
	Rain        float64 `json:"rainfall"`
}

var (
	// DemoObservation is served when no provider credential is configured.
	DemoObservation = Observation{Temperature: 22.0, Humidity: 45, WindSpeed: 3.5, Rain: 0}

	// FallbackObservation replaces a failed provider lookup.
	FallbackObservation = Observation{Temperature: 20.0, Humidity: 50, WindSpeed: 3.0, Rain: 0}
)

type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Label renders coordinates as a place name when the provider has none.
func (c Coordinates) Label() string {
	return fmt.Sprintf("%.2f, %.2f", c.Latitude, c.Longitude)
}

// Reading is what a provider returns for one lookup.
type Reading struct {
	Place       string
	Coordinates *Coordinates
	Observation Observation
	Source      string
	Timestamp   time.Time
}
