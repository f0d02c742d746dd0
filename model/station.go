package model

// Point is a position in the shared, unitless plot coordinate space.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Station is a fixed emitter with a circular reach.
// A Reach of 0 is valid and serves only co-located devices.
type Station struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Reach float64 `json:"reach"`
}

// Position returns the station's location.
func (s Station) Position() Point { return Point{X: s.X, Y: s.Y} }

// Device is a receiver looking for the best station in range.
type Device struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Position returns the device's location.
func (d Device) Position() Point { return Point{X: d.X, Y: d.Y} }

// Scenario is the caller-supplied initial data for a widget.
type Scenario struct {
	Stations []Station `json:"stations"`
	Devices  []Device  `json:"devices"`
}
