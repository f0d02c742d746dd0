package state

import (
	"context"

	"github.com/samber/lo"

	"github.com/signalsfoundry/coverage-sim/core"
	"github.com/signalsfoundry/coverage-sim/model"
)

// StationView is everything a presentation layer needs to draw one station.
type StationView struct {
	Index   int           `json:"index"`
	Label   int           `json:"label"`
	Station model.Station `json:"station"`
	// Marker and RingRadiusPx are nil until a plot width is reported.
	Marker       *core.PixelOffset `json:"marker,omitempty"`
	RingRadiusPx *float64          `json:"ring_radius_px,omitempty"`
	// Serving is set when at least one device is assigned to the station.
	Serving bool `json:"serving"`
	// Dim is set for stations with zero reach.
	Dim     bool  `json:"dim"`
	Devices []int `json:"devices"`
}

// DeviceView is everything a presentation layer needs to draw one device.
type DeviceView struct {
	Index      int               `json:"index"`
	Label      int               `json:"label"`
	Device     model.Device      `json:"device"`
	Marker     *core.PixelOffset `json:"marker,omitempty"`
	Assignment *model.Assignment `json:"assignment,omitempty"`
	// Active is set when the device has a non-zero speed.
	Active bool `json:"active"`
}

// Layout is the per-entity projection of one snapshot of the lists.
type Layout struct {
	Renderable  bool          `json:"renderable"`
	PlotWidthPx float64       `json:"plot_width_px"`
	MaxPoint    float64       `json:"max_point"`
	Stations    []StationView `json:"stations"`
	Devices     []DeviceView  `json:"devices"`
}

// Snapshot is a coherent view of the lists and everything derived from them.
type Snapshot struct {
	Stations []model.Station
	Devices  []model.Device
	Coverage *core.CoverageIndex
	MaxPoint float64
	Layout   Layout
}

// Snapshot captures the current lists together with their coverage and
// layout, all computed from the same pair of list snapshots.
func (s *WidgetState) Snapshot(ctx context.Context) *Snapshot {
	stations, devices := s.store.Lists()
	d := s.derive(ctx, stations, devices)
	return &Snapshot{
		Stations: stations,
		Devices:  devices,
		Coverage: d.coverage,
		MaxPoint: d.maxPoint,
		Layout:   s.layout(stations, devices, d, s.PlotWidthPx()),
	}
}

// Layout projects the current lists onto the reported plot width.
func (s *WidgetState) Layout(ctx context.Context) Layout {
	return s.Snapshot(ctx).Layout
}

func (s *WidgetState) layout(stations []model.Station, devices []model.Device, d *derived, widthPx float64) Layout {
	_, renderable := s.scaler.Project(model.Point{}, d.maxPoint, widthPx)

	return Layout{
		Renderable:  renderable,
		PlotWidthPx: widthPx,
		MaxPoint:    d.maxPoint,
		Stations: lo.Map(stations, func(st model.Station, i int) StationView {
			v := StationView{
				Index:   i,
				Label:   i + 1,
				Station: st,
				Serving: d.coverage.StationHasDevices(i),
				Dim:     st.Reach == 0,
				Devices: d.coverage.DevicesOf(i),
			}
			if off, ok := s.scaler.Project(st.Position(), d.maxPoint, widthPx); ok {
				v.Marker = &off
			}
			if r, ok := s.scaler.RingRadiusPx(st.Reach, d.maxPoint, widthPx); ok {
				v.RingRadiusPx = &r
			}
			return v
		}),
		Devices: lo.Map(devices, func(dev model.Device, i int) DeviceView {
			v := DeviceView{Index: i, Label: i + 1, Device: dev}
			if a, ok := d.coverage.Assignment(i); ok {
				v.Assignment = &a
				v.Active = a.Speed != 0
			}
			if off, ok := s.scaler.Project(dev.Position(), d.maxPoint, widthPx); ok {
				v.Marker = &off
			}
			return v
		}),
	}
}
