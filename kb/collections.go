package kb

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/signalsfoundry/coverage-sim/model"
)

var (
	// ErrIndexOutOfRange indicates a remove or edit targeted a position
	// outside the list. This is a caller bug, not a user input problem.
	ErrIndexOutOfRange = errors.New("index out of range")
	// ErrUnknownField indicates an edit named a field the entity lacks.
	ErrUnknownField = errors.New("unknown field")
)

// DefaultStation is appended by AddStation.
func DefaultStation() model.Station { return model.Station{} }

// DefaultDevice is appended by AddDevice.
func DefaultDevice() model.Device { return model.Device{} }

// Add returns a new list with item appended. list is left untouched.
func Add[T any](list []T, item T) []T {
	out := make([]T, len(list), len(list)+1)
	copy(out, list)
	return append(out, item)
}

// Remove returns a new list without the element at index. Elements after
// index shift down by one, so any index-keyed data derived from list is
// stale afterwards.
func Remove[T any](list []T, index int) ([]T, error) {
	if index < 0 || index >= len(list) {
		return nil, fmt.Errorf("remove %d from list of %d: %w", index, len(list), ErrIndexOutOfRange)
	}
	out := make([]T, 0, len(list)-1)
	out = append(out, list[:index]...)
	return append(out, list[index+1:]...), nil
}

// replace returns a copy of list with element index swapped for item.
func replace[T any](list []T, index int, item T) []T {
	out := make([]T, len(list))
	copy(out, list)
	out[index] = item
	return out
}

// ValidValue reports whether raw is acceptable for any coordinate or reach:
// a finite whole number in [0, maxCoord].
func ValidValue(raw, maxCoord float64) bool {
	if math.IsNaN(raw) || math.IsInf(raw, 0) {
		return false
	}
	if raw != math.Trunc(raw) {
		return false
	}
	return raw >= 0 && raw <= maxCoord
}

// UpdateStationField returns a new list with one field of one station set
// to raw. An invalid raw value is rejected: the original list is returned
// with applied=false and a nil error.
func UpdateStationField(list []model.Station, index int, field model.Field, raw, maxCoord float64) (_ []model.Station, applied bool, err error) {
	if index < 0 || index >= len(list) {
		return list, false, fmt.Errorf("edit station %d of %d: %w", index, len(list), ErrIndexOutOfRange)
	}
	s := list[index]
	switch field {
	case model.FieldX:
		s.X = raw
	case model.FieldY:
		s.Y = raw
	case model.FieldReach:
		s.Reach = raw
	default:
		return list, false, fmt.Errorf("station field %q: %w", field, ErrUnknownField)
	}
	if !ValidValue(raw, maxCoord) {
		return list, false, nil
	}
	return replace(list, index, s), true, nil
}

// UpdateDeviceField is UpdateStationField for devices, which have no reach.
func UpdateDeviceField(list []model.Device, index int, field model.Field, raw, maxCoord float64) (_ []model.Device, applied bool, err error) {
	if index < 0 || index >= len(list) {
		return list, false, fmt.Errorf("edit device %d of %d: %w", index, len(list), ErrIndexOutOfRange)
	}
	d := list[index]
	switch field {
	case model.FieldX:
		d.X = raw
	case model.FieldY:
		d.Y = raw
	default:
		return list, false, fmt.Errorf("device field %q: %w", field, ErrUnknownField)
	}
	if !ValidValue(raw, maxCoord) {
		return list, false, nil
	}
	return replace(list, index, d), true, nil
}

// ParseValue converts form text to a candidate field value. Text that is
// not a number yields NaN, which ValidValue always rejects.
func ParseValue(raw string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return math.NaN()
	}
	return v
}
