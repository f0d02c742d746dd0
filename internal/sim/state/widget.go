// Package state hosts one coverage widget: the authoritative station and
// device lists plus everything derived from them.
package state

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/signalsfoundry/coverage-sim/core"
	"github.com/signalsfoundry/coverage-sim/internal/logging"
	"github.com/signalsfoundry/coverage-sim/internal/observability"
	"github.com/signalsfoundry/coverage-sim/kb"
	"github.com/signalsfoundry/coverage-sim/model"
)

// Re-export store sentinel errors so callers can depend on state.*
// instead of kb.* directly if they want to.
var (
	// ErrIndexOutOfRange indicates a remove or edit addressed a missing row.
	ErrIndexOutOfRange = kb.ErrIndexOutOfRange
	// ErrUnknownField indicates an edit named a field the entity lacks.
	ErrUnknownField = kb.ErrUnknownField
)

// Entity kinds used in logs and metric labels.
const (
	KindStation = "station"
	KindDevice  = "device"
)

// Settings are the static bounds a widget is created with.
type Settings struct {
	MaxCoord         float64
	MinPlotExtent    float64
	MarkerDiameterPx float64
}

// DefaultSettings mirrors the core package defaults.
func DefaultSettings() Settings {
	return Settings{
		MaxCoord:         core.DefaultMaxCoord,
		MinPlotExtent:    core.DefaultMinPlotExtent,
		MarkerDiameterPx: core.DefaultMarkerDiameterPx,
	}
}

// MetricsRecorder receives coverage updates.
type MetricsRecorder interface {
	SetEntityCounts(stations, devices int)
	ObserveResolve(d time.Duration, assigned int)
	IncRejectedEdit(kind, field string)
}

// WidgetState is the host for one widget. Coverage and maxPoint are pure
// functions of the current lists; they are memoized against the identity of
// the list slices and recomputed after any replacement, never patched.
type WidgetState struct {
	settings Settings
	scaler   core.Scaler
	store    *kb.Store

	mu          sync.Mutex
	plotWidthPx float64
	memo        *derived

	log     logging.Logger
	metrics MetricsRecorder

	unsubscribe func()
}

// derived caches values computed from one (stations, devices) pair.
type derived struct {
	stationsID listID
	devicesID  listID
	coverage   *core.CoverageIndex
	maxPoint   float64
}

// listID identifies a list snapshot. Lists are never written after being
// published by the store, so first-element address plus length is enough.
type listID struct {
	first any
	n     int
}

func stationsIdentity(l []model.Station) listID {
	if len(l) == 0 {
		return listID{}
	}
	return listID{first: &l[0], n: len(l)}
}

func devicesIdentity(l []model.Device) listID {
	if len(l) == 0 {
		return listID{}
	}
	return listID{first: &l[0], n: len(l)}
}

// Option customises WidgetState construction.
type Option func(*WidgetState)

// WithMetricsRecorder attaches an optional metrics recorder.
func WithMetricsRecorder(m MetricsRecorder) Option {
	return func(s *WidgetState) {
		s.metrics = m
	}
}

// NewWidgetState validates the initial data and builds the widget host.
// It returns a *core.ConfigError when any coordinate or reach exceeds the
// bound.
func NewWidgetState(settings Settings, initial model.Scenario, log logging.Logger, opts ...Option) (*WidgetState, error) {
	if log == nil {
		log = logging.Noop()
	}
	if !(settings.MaxCoord > 0) || !(settings.MinPlotExtent > 0) {
		return nil, fmt.Errorf("invalid widget settings %+v", settings)
	}

	maxPoint := core.MaxPoint(initial.Stations, initial.Devices, settings.MinPlotExtent)
	if err := core.ValidateMaxPoint(maxPoint, settings.MaxCoord); err != nil {
		return nil, err
	}
	if err := core.ValidateReach(initial.Stations, settings.MaxCoord); err != nil {
		return nil, err
	}

	s := &WidgetState{
		settings: settings,
		scaler:   core.NewScaler(settings.MarkerDiameterPx),
		store:    kb.NewStore(initial, settings.MaxCoord),
		log:      log,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	s.unsubscribe = s.store.Subscribe(s.onReplaced)
	if s.metrics != nil {
		s.metrics.SetEntityCounts(len(initial.Stations), len(initial.Devices))
	}
	log.Info(context.Background(), "widget initialised",
		logging.Int("stations", len(initial.Stations)),
		logging.Int("devices", len(initial.Devices)),
		logging.Float("max_point", maxPoint),
	)
	return s, nil
}

// Close detaches the state from its store.
func (s *WidgetState) Close() {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
}

// Settings returns the bounds the widget was created with.
func (s *WidgetState) Settings() Settings { return s.settings }

func (s *WidgetState) onReplaced(ev kb.Event) {
	if s.metrics != nil {
		s.metrics.SetEntityCounts(len(ev.Stations), len(ev.Devices))
	}
}

// Stations returns the current station list. Treat it as read-only.
func (s *WidgetState) Stations() []model.Station { return s.store.Stations() }

// Devices returns the current device list. Treat it as read-only.
func (s *WidgetState) Devices() []model.Device { return s.store.Devices() }

// AddStation appends a station at the origin with zero reach.
func (s *WidgetState) AddStation(ctx context.Context) {
	s.store.AddStation()
	s.log.Debug(ctx, "station added", logging.Int("count", len(s.store.Stations())))
}

// AddDevice appends a device at the origin.
func (s *WidgetState) AddDevice(ctx context.Context) {
	s.store.AddDevice()
	s.log.Debug(ctx, "device added", logging.Int("count", len(s.store.Devices())))
}

// RemoveStation removes a station. Every later station is renumbered.
func (s *WidgetState) RemoveStation(ctx context.Context, index int) error {
	if err := s.store.RemoveStation(index); err != nil {
		return err
	}
	s.log.Debug(ctx, "station removed", logging.Int("index", index))
	return nil
}

// RemoveDevice removes a device. Every later device is renumbered.
func (s *WidgetState) RemoveDevice(ctx context.Context, index int) error {
	if err := s.store.RemoveDevice(index); err != nil {
		return err
	}
	s.log.Debug(ctx, "device removed", logging.Int("index", index))
	return nil
}

// EditStationField sets x, y or reach of one station. Invalid values are
// rejected silently: applied is false and err is nil.
func (s *WidgetState) EditStationField(ctx context.Context, index int, field model.Field, raw float64) (applied bool, err error) {
	applied, err = s.store.EditStationField(index, field, raw)
	s.afterEdit(ctx, KindStation, index, field, raw, applied, err)
	return applied, err
}

// EditDeviceField sets x or y of one device; see EditStationField.
func (s *WidgetState) EditDeviceField(ctx context.Context, index int, field model.Field, raw float64) (applied bool, err error) {
	applied, err = s.store.EditDeviceField(index, field, raw)
	s.afterEdit(ctx, KindDevice, index, field, raw, applied, err)
	return applied, err
}

func (s *WidgetState) afterEdit(ctx context.Context, kind string, index int, field model.Field, raw float64, applied bool, err error) {
	fields := []logging.Field{
		logging.String("kind", kind),
		logging.Int("index", index),
		logging.String("field", string(field)),
		logging.Float("value", raw),
	}
	switch {
	case err != nil:
		s.log.Warn(ctx, "field edit failed", append(fields, logging.Err(err))...)
	case !applied:
		s.log.Debug(ctx, "field edit rejected", fields...)
		if s.metrics != nil {
			s.metrics.IncRejectedEdit(kind, string(field))
		}
	default:
		s.log.Debug(ctx, "field edited", fields...)
	}
}

// ReportPlotWidthPx records the rendered side length of the square plot.
// Non-positive or non-finite widths mark the plot as not yet measured.
func (s *WidgetState) ReportPlotWidthPx(px float64) {
	if math.IsNaN(px) || math.IsInf(px, 0) || px < 0 {
		px = 0
	}
	s.mu.Lock()
	s.plotWidthPx = px
	s.mu.Unlock()
}

// PlotWidthPx returns the last reported plot width, 0 when unknown.
func (s *WidgetState) PlotWidthPx() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.plotWidthPx
}

// Coverage returns the coverage index for the current lists.
func (s *WidgetState) Coverage(ctx context.Context) *core.CoverageIndex {
	stations, devices := s.store.Lists()
	return s.derive(ctx, stations, devices).coverage
}

// MaxPoint returns the plot extent for the current lists.
func (s *WidgetState) MaxPoint(ctx context.Context) float64 {
	stations, devices := s.store.Lists()
	return s.derive(ctx, stations, devices).maxPoint
}

func (s *WidgetState) derive(ctx context.Context, stations []model.Station, devices []model.Device) *derived {
	sid, did := stationsIdentity(stations), devicesIdentity(devices)

	s.mu.Lock()
	defer s.mu.Unlock()
	if m := s.memo; m != nil && m.stationsID == sid && m.devicesID == did {
		return m
	}

	_, span := observability.Tracer().Start(ctx, "coverage.Resolve")
	span.SetAttributes(
		attribute.Int("coverage.stations", len(stations)),
		attribute.Int("coverage.devices", len(devices)),
	)
	start := time.Now()
	idx := core.Resolve(stations, devices)
	elapsed := time.Since(start)
	span.SetAttributes(attribute.Int("coverage.assigned", idx.AssignedCount()))
	span.End()

	if s.metrics != nil {
		s.metrics.ObserveResolve(elapsed, idx.AssignedCount())
	}

	s.memo = &derived{
		stationsID: sid,
		devicesID:  did,
		coverage:   idx,
		maxPoint:   core.MaxPoint(stations, devices, s.settings.MinPlotExtent),
	}
	return s.memo
}

// IsConfigError reports whether err is the fatal initial-data bound error.
func IsConfigError(err error) bool {
	var cfgErr *core.ConfigError
	return errors.As(err, &cfgErr)
}
