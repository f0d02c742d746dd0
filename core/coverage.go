package core

import (
	"math"
	"sort"

	"github.com/signalsfoundry/coverage-sim/model"
)

// ConnectionSpeed scores a station/device pair. It reports false when the
// device is outside the station's reach. Inside reach the score is
// (reach-distance)^2 rounded half-up, so it is largest for co-located
// devices and falls to 0 at the reach boundary. Scores too large for an int
// saturate at math.MaxInt.
func ConnectionSpeed(distance, reach float64) (int, bool) {
	if distance > reach {
		return 0, false
	}
	gap := reach - distance
	return roundHalfUp(gap * gap), true
}

// roundHalfUp rounds a non-negative x to the nearest integer, ties upward.
// Adding 0.5 before flooring would round 0.49999999999999994 up.
func roundHalfUp(x float64) int {
	f := math.Floor(x)
	if x-f >= 0.5 {
		f++
	}
	if f >= math.MaxInt64 {
		return math.MaxInt
	}
	return int(f)
}

// CoverageIndex is the bidirectional device<->station view produced by
// Resolve. It is never mutated after construction; recompute it whenever
// either input list is replaced.
type CoverageIndex struct {
	deviceToAssignment map[int]model.Assignment
	stationToDevices   map[int]map[int]struct{}
}

func newCoverageIndex() *CoverageIndex {
	return &CoverageIndex{
		deviceToAssignment: make(map[int]model.Assignment),
		stationToDevices:   make(map[int]map[int]struct{}),
	}
}

// Resolve assigns every device to the in-range station offering the highest
// speed. Ties go to the lowest station index. Devices with no station in
// range are left unassigned.
func Resolve(stations []model.Station, devices []model.Device) *CoverageIndex {
	idx := newCoverageIndex()
	for di, d := range devices {
		best, bestSpeed := -1, 0
		for si, s := range stations {
			speed, ok := ConnectionSpeed(Distance(d.Position(), s.Position()), s.Reach)
			if !ok {
				continue
			}
			// Strictly greater keeps the earliest station on a tie.
			if best < 0 || speed > bestSpeed {
				best, bestSpeed = si, speed
			}
		}
		if best < 0 {
			continue
		}
		idx.assign(di, model.Assignment{StationIndex: best, Speed: bestSpeed})
	}
	return idx
}

func (c *CoverageIndex) assign(device int, a model.Assignment) {
	c.deviceToAssignment[device] = a
	served, ok := c.stationToDevices[a.StationIndex]
	if !ok {
		served = make(map[int]struct{})
		c.stationToDevices[a.StationIndex] = served
	}
	served[device] = struct{}{}
}

// Assignment returns the station serving device, if any.
func (c *CoverageIndex) Assignment(device int) (model.Assignment, bool) {
	if c == nil {
		return model.Assignment{}, false
	}
	a, ok := c.deviceToAssignment[device]
	return a, ok
}

// DevicesOf returns the indices of the devices served by station, ascending.
func (c *CoverageIndex) DevicesOf(station int) []int {
	if c == nil {
		return nil
	}
	served := c.stationToDevices[station]
	out := make([]int, 0, len(served))
	for d := range served {
		out = append(out, d)
	}
	sort.Ints(out)
	return out
}

// Serves reports whether station serves device.
func (c *CoverageIndex) Serves(station, device int) bool {
	if c == nil {
		return false
	}
	_, ok := c.stationToDevices[station][device]
	return ok
}

// StationHasDevices reports whether any device is assigned to station.
func (c *CoverageIndex) StationHasDevices(station int) bool {
	return c != nil && len(c.stationToDevices[station]) > 0
}

// AssignedCount is the number of devices with a serving station.
func (c *CoverageIndex) AssignedCount() int {
	if c == nil {
		return 0
	}
	return len(c.deviceToAssignment)
}

// ServingStationCount is the number of stations with at least one device.
func (c *CoverageIndex) ServingStationCount() int {
	if c == nil {
		return 0
	}
	return len(c.stationToDevices)
}

// Assignments returns a copy of the device -> assignment map.
func (c *CoverageIndex) Assignments() map[int]model.Assignment {
	out := make(map[int]model.Assignment)
	if c == nil {
		return out
	}
	for d, a := range c.deviceToAssignment {
		out[d] = a
	}
	return out
}

// StationDevices returns a copy of the station -> served devices map with
// each device list sorted ascending.
func (c *CoverageIndex) StationDevices() map[int][]int {
	out := make(map[int][]int)
	if c == nil {
		return out
	}
	for s := range c.stationToDevices {
		out[s] = c.DevicesOf(s)
	}
	return out
}

// Equal reports whether two indexes hold the same assignments.
func (c *CoverageIndex) Equal(other *CoverageIndex) bool {
	if c.AssignedCount() != other.AssignedCount() || c.ServingStationCount() != other.ServingStationCount() {
		return false
	}
	if c == nil || other == nil {
		return true
	}
	for d, a := range c.deviceToAssignment {
		if b, ok := other.deviceToAssignment[d]; !ok || a != b {
			return false
		}
	}
	for s, served := range c.stationToDevices {
		theirs := other.stationToDevices[s]
		if len(theirs) != len(served) {
			return false
		}
		for d := range served {
			if _, ok := theirs[d]; !ok {
				return false
			}
		}
	}
	return true
}
