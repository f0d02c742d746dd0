package model

// Assignment records which station serves a device and at what speed.
// StationIndex is a position in the station list, not a stable ID:
// removing a station renumbers everything after it.
type Assignment struct {
	StationIndex int `json:"station_index"`
	Speed        int `json:"speed"`
}

// Field names a numeric, user-editable attribute of a station or device.
type Field string

const (
	FieldX     Field = "x"
	FieldY     Field = "y"
	FieldReach Field = "reach"
)

// StationFields lists the editable station columns in display order.
var StationFields = []Field{FieldX, FieldY, FieldReach}

// DeviceFields lists the editable device columns in display order.
var DeviceFields = []Field{FieldX, FieldY}
