package kb

import (
	"sync"

	"github.com/signalsfoundry/coverage-sim/model"
)

// EventType indicates which list was replaced.
type EventType int

const (
	EventStationsReplaced EventType = iota
	EventDevicesReplaced
)

// Event is emitted to subscribers after a list has been replaced.
type Event struct {
	Type     EventType
	Stations []model.Station
	Devices  []model.Device
}

// Store owns the authoritative station and device lists.
//
// Every mutation swaps in a brand-new slice; slices handed out by
// Stations/Devices are never written again, so callers may keep them as
// snapshots and compare them by identity.
type Store struct {
	mu sync.RWMutex

	maxCoord float64
	stations []model.Station
	devices  []model.Device

	nextSub int
	subs    map[int]func(Event)
}

// NewStore copies the initial lists into a new store. maxCoord bounds
// every value accepted by the Edit* methods.
func NewStore(initial model.Scenario, maxCoord float64) *Store {
	return &Store{
		maxCoord: maxCoord,
		stations: append([]model.Station{}, initial.Stations...),
		devices:  append([]model.Device{}, initial.Devices...),
		subs:     make(map[int]func(Event)),
	}
}

// MaxCoord returns the configured coordinate bound.
func (st *Store) MaxCoord() float64 { return st.maxCoord }

// Stations returns the current station list. Treat it as read-only.
func (st *Store) Stations() []model.Station {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.stations
}

// Devices returns the current device list. Treat it as read-only.
func (st *Store) Devices() []model.Device {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.devices
}

// Lists returns both lists observed under a single lock.
func (st *Store) Lists() ([]model.Station, []model.Device) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.stations, st.devices
}

// AddStation appends a default station.
func (st *Store) AddStation() {
	st.setStations(func(cur []model.Station) ([]model.Station, error) {
		return Add(cur, DefaultStation()), nil
	})
}

// AddDevice appends a default device.
func (st *Store) AddDevice() {
	st.setDevices(func(cur []model.Device) ([]model.Device, error) {
		return Add(cur, DefaultDevice()), nil
	})
}

// RemoveStation drops the station at index, renumbering later stations.
func (st *Store) RemoveStation(index int) error {
	_, err := st.setStations(func(cur []model.Station) ([]model.Station, error) {
		return Remove(cur, index)
	})
	return err
}

// RemoveDevice drops the device at index, renumbering later devices.
func (st *Store) RemoveDevice(index int) error {
	_, err := st.setDevices(func(cur []model.Device) ([]model.Device, error) {
		return Remove(cur, index)
	})
	return err
}

// EditStationField sets one field of one station. applied is false when the
// value was rejected; the list is then left as it was.
func (st *Store) EditStationField(index int, field model.Field, raw float64) (applied bool, err error) {
	return st.setStations(func(cur []model.Station) ([]model.Station, error) {
		next, ok, err := UpdateStationField(cur, index, field, raw, st.maxCoord)
		if err != nil || !ok {
			return nil, err
		}
		return next, nil
	})
}

// EditDeviceField sets one field of one device; see EditStationField.
func (st *Store) EditDeviceField(index int, field model.Field, raw float64) (applied bool, err error) {
	return st.setDevices(func(cur []model.Device) ([]model.Device, error) {
		next, ok, err := UpdateDeviceField(cur, index, field, raw, st.maxCoord)
		if err != nil || !ok {
			return nil, err
		}
		return next, nil
	})
}

// setStations applies fn to the current list. A nil result with a nil error
// means "no change".
func (st *Store) setStations(fn func([]model.Station) ([]model.Station, error)) (bool, error) {
	st.mu.Lock()
	next, err := fn(st.stations)
	if err != nil || next == nil {
		st.mu.Unlock()
		return false, err
	}
	st.stations = next
	ev := Event{Type: EventStationsReplaced, Stations: st.stations, Devices: st.devices}
	subs := st.subscribersLocked()
	st.mu.Unlock()

	notify(subs, ev)
	return true, nil
}

func (st *Store) setDevices(fn func([]model.Device) ([]model.Device, error)) (bool, error) {
	st.mu.Lock()
	next, err := fn(st.devices)
	if err != nil || next == nil {
		st.mu.Unlock()
		return false, err
	}
	st.devices = next
	ev := Event{Type: EventDevicesReplaced, Stations: st.stations, Devices: st.devices}
	subs := st.subscribersLocked()
	st.mu.Unlock()

	notify(subs, ev)
	return true, nil
}

func (st *Store) subscribersLocked() []func(Event) {
	subs := make([]func(Event), 0, len(st.subs))
	for id := 0; id < st.nextSub; id++ {
		if fn, ok := st.subs[id]; ok {
			subs = append(subs, fn)
		}
	}
	return subs
}

// Notify subscribers outside the lock to avoid deadlocks.
func notify(subs []func(Event), ev Event) {
	for _, sub := range subs {
		sub(ev)
	}
}

// Subscribe registers a callback invoked after every list replacement,
// in registration order. It returns an unsubscribe function.
func (st *Store) Subscribe(fn func(Event)) (unsubscribe func()) {
	st.mu.Lock()
	defer st.mu.Unlock()
	id := st.nextSub
	st.nextSub++
	st.subs[id] = fn

	return func() {
		st.mu.Lock()
		defer st.mu.Unlock()
		delete(st.subs, id)
	}
}
