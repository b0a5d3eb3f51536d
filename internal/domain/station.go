package domain

import "time"

// MeasurementKind tags what a station measures.
type MeasurementKind string

const (
	StreamGauge MeasurementKind = "stream-gauge" // ANA station type 1 (fluviométrica)
	RainGauge   MeasurementKind = "rain-gauge"   // ANA station type 2 (pluviométrica)
	Weather     MeasurementKind = "weather"      // INMET meteorological station
)

// TelemetryClass distinguishes automated stations from manually read ones.
type TelemetryClass string

const (
	Telemetric   TelemetryClass = "telemetric"
	Conventional TelemetryClass = "conventional"
	AnyTelemetry TelemetryClass = "" // no filter: both classes
)

// Station is one monitoring point from a provider inventory. Immutable once
// parsed; coordinates are always numeric after normalization.
type Station struct {
	Code         string
	Name         string
	Latitude     float64
	Longitude    float64
	Altitude     float64
	State        string
	Municipality string
	Operator     string
	Kind         MeasurementKind
	Telemetry    TelemetryClass
	UpdatedAt    time.Time
}

// Inventory is a set of stations keyed by unique code.
type Inventory struct {
	Stations []Station
	byCode   map[string]int
}

// NewInventory builds an Inventory, keeping the first station seen for a
// duplicated code so the unique-key invariant holds.
func NewInventory(stations []Station) Inventory {
	inv := Inventory{byCode: make(map[string]int, len(stations))}
	for _, s := range stations {
		if _, dup := inv.byCode[s.Code]; dup {
			continue
		}
		inv.byCode[s.Code] = len(inv.Stations)
		inv.Stations = append(inv.Stations, s)
	}
	return inv
}

// Lookup returns the station with the given code.
func (inv Inventory) Lookup(code string) (Station, bool) {
	i, ok := inv.byCode[code]
	if !ok {
		return Station{}, false
	}
	return inv.Stations[i], true
}

// Len returns the number of stations in the inventory.
func (inv Inventory) Len() int { return len(inv.Stations) }

// Codes returns the station codes in inventory order.
func (inv Inventory) Codes() []string {
	codes := make([]string, len(inv.Stations))
	for i, s := range inv.Stations {
		codes[i] = s.Code
	}
	return codes
}
