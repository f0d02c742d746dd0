// core/scenario_loader.go
package core

import (
	"encoding/json"
	"fmt"
	"io"
	"math"

	"github.com/signalsfoundry/coverage-sim/model"
)

// internal JSON shapes – keep them unexported so we’re free to evolve them.
type scenarioJSON struct {
	Stations []stationJSON `json:"stations"`
	Devices  []deviceJSON  `json:"devices"`
}

type stationJSON struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Reach float64 `json:"reach"`
}

type deviceJSON struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// LoadScenario decodes the initial station/device lists from r.
//
// It rejects negative or non-finite values. The coordinate bound itself
// is checked by the caller via MaxPoint/ValidateMaxPoint, since it depends
// on configuration.
func LoadScenario(r io.Reader) (model.Scenario, error) {
	var payload scenarioJSON
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&payload); err != nil {
		return model.Scenario{}, fmt.Errorf("LoadScenario: decode failed: %w", err)
	}

	sc := model.Scenario{
		Stations: make([]model.Station, 0, len(payload.Stations)),
		Devices:  make([]model.Device, 0, len(payload.Devices)),
	}
	for i, js := range payload.Stations {
		if err := checkValues(js.X, js.Y, js.Reach); err != nil {
			return model.Scenario{}, fmt.Errorf("LoadScenario: station %d: %w", i, err)
		}
		sc.Stations = append(sc.Stations, model.Station{X: js.X, Y: js.Y, Reach: js.Reach})
	}
	for i, jd := range payload.Devices {
		if err := checkValues(jd.X, jd.Y); err != nil {
			return model.Scenario{}, fmt.Errorf("LoadScenario: device %d: %w", i, err)
		}
		sc.Devices = append(sc.Devices, model.Device{X: jd.X, Y: jd.Y})
	}
	return sc, nil
}

func checkValues(vs ...float64) error {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return fmt.Errorf("value %v must be a finite, non-negative number", v)
		}
	}
	return nil
}
