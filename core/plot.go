package core

import (
	"fmt"

	"github.com/samber/lo"

	"github.com/signalsfoundry/coverage-sim/model"
)

const (
	// DefaultMaxCoord is the largest coordinate or reach a widget accepts.
	DefaultMaxCoord = 1000.0
	// DefaultMinPlotExtent keeps the plot from collapsing when every
	// entity sits near the origin.
	DefaultMinPlotExtent = 20.0
	// DefaultMarkerDiameterPx is the rendered size of a station/device marker.
	DefaultMarkerDiameterPx = 16.0
)

// ConfigError reports initial data whose extent or reach exceeds the
// configured coordinate bound. It is fatal: the widget refuses to render.
// Station is the offending station index for a reach violation, -1 otherwise.
type ConfigError struct {
	MaxCoord float64
	MaxPoint float64
	Station  int
	Reach    float64
}

func (e *ConfigError) Error() string {
	if e.Station >= 0 {
		return fmt.Sprintf("maximum reach is %v but station %d uses %v", e.MaxCoord, e.Station, e.Reach)
	}
	return fmt.Sprintf("maximum point is %v but scenario uses %v", e.MaxCoord, e.MaxPoint)
}

// MaxPoint returns the largest x or y across all stations and devices,
// floored at minExtent. Reach does not contribute.
func MaxPoint(stations []model.Station, devices []model.Device, minExtent float64) float64 {
	xs := lo.FlatMap(stations, func(s model.Station, _ int) []float64 { return []float64{s.X, s.Y} })
	xs = append(xs, lo.FlatMap(devices, func(d model.Device, _ int) []float64 { return []float64{d.X, d.Y} })...)
	return lo.Max(append(xs, minExtent))
}

// ValidateMaxPoint returns a *ConfigError when maxPoint exceeds maxCoord.
func ValidateMaxPoint(maxPoint, maxCoord float64) error {
	if maxPoint > maxCoord {
		return &ConfigError{MaxCoord: maxCoord, MaxPoint: maxPoint, Station: -1}
	}
	return nil
}

// ValidateReach returns a *ConfigError naming the first station whose reach
// exceeds maxCoord.
func ValidateReach(stations []model.Station, maxCoord float64) error {
	for i, st := range stations {
		if st.Reach > maxCoord {
			return &ConfigError{MaxCoord: maxCoord, Station: i, Reach: st.Reach}
		}
	}
	return nil
}

// PixelOffset is the top-left position of a marker inside the plot.
type PixelOffset struct {
	LeftPx float64 `json:"left_px"`
	TopPx  float64 `json:"top_px"`
}

// Scaler projects plot coordinates into a square plot of known width.
type Scaler struct {
	// MarkerDiameterPx centres markers on their point.
	MarkerDiameterPx float64
}

// NewScaler returns a Scaler for markers of the given diameter.
func NewScaler(markerDiameterPx float64) Scaler {
	return Scaler{MarkerDiameterPx: markerDiameterPx}
}

// MarkerRadiusPx is half the marker diameter.
func (s Scaler) MarkerRadiusPx() float64 {
	return s.MarkerDiameterPx / 2
}

// Project maps p onto a plot plotLengthPx wide. It returns false while
// the plot width is unknown (not yet measured); that is not an error.
func (s Scaler) Project(p model.Point, maxPoint, plotLengthPx float64) (PixelOffset, bool) {
	if plotLengthPx <= 0 {
		return PixelOffset{}, false
	}
	r := s.MarkerRadiusPx()
	return PixelOffset{
		LeftPx: ScalePoint(p.X, maxPoint)*plotLengthPx - r,
		TopPx:  ScalePoint(p.Y, maxPoint)*plotLengthPx - r,
	}, true
}

// RingRadiusPx is the on-screen radius of a station's coverage ring.
func (s Scaler) RingRadiusPx(reach, maxPoint, plotLengthPx float64) (float64, bool) {
	if plotLengthPx <= 0 {
		return 0, false
	}
	return ScalePoint(reach, maxPoint) * plotLengthPx, true
}
