package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/pterm/pterm"

	"github.com/signalsfoundry/coverage-sim/core"
	"github.com/signalsfoundry/coverage-sim/internal/config"
	"github.com/signalsfoundry/coverage-sim/internal/logging"
	"github.com/signalsfoundry/coverage-sim/internal/sim/state"
)

func main() {
	configPath := flag.String("config", "", "Path to a YAML config file")
	scenarioPath := flag.String("scenario", "", "Path to a JSON scenario (overrides config)")
	plotWidth := flag.Float64("plot-width", 0, "Plot side length in pixels; 0 skips marker positions")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		pterm.Error.Printfln("load config: %v", err)
		os.Exit(1)
	}
	if *scenarioPath != "" {
		cfg.ScenarioPath = *scenarioPath
	}
	if cfg.ScenarioPath == "" {
		pterm.Error.Println("no scenario given; use -scenario or COVERAGE_SCENARIO")
		os.Exit(2)
	}

	f, err := os.Open(cfg.ScenarioPath)
	if err != nil {
		pterm.Error.Printfln("open scenario: %v", err)
		os.Exit(1)
	}
	initial, err := core.LoadScenario(f)
	f.Close()
	if err != nil {
		pterm.Error.Println(err.Error())
		os.Exit(1)
	}

	log := logging.New(cfg.Log)
	ws, err := state.NewWidgetState(state.Settings{
		MaxCoord:         cfg.MaxCoord,
		MinPlotExtent:    cfg.MinPlotExtent,
		MarkerDiameterPx: cfg.MarkerDiameterPx,
	}, initial, log)
	if err != nil {
		pterm.Error.Println(err.Error())
		os.Exit(1)
	}
	defer ws.Close()
	ws.ReportPlotWidthPx(*plotWidth)

	snap := ws.Snapshot(context.Background())

	pterm.DefaultHeader.WithFullWidth().Println("Stations")
	if err := pterm.DefaultTable.WithHasHeader().WithData(stationRows(snap)).Render(); err != nil {
		pterm.Error.Println(err.Error())
	}
	pterm.DefaultHeader.WithFullWidth().Println("Devices")
	if err := pterm.DefaultTable.WithHasHeader().WithData(deviceRows(snap)).Render(); err != nil {
		pterm.Error.Println(err.Error())
	}
	pterm.Info.Printfln("max point %v; %d of %d device(s) covered",
		snap.MaxPoint, snap.Coverage.AssignedCount(), len(snap.Devices))
}

func stationRows(snap *state.Snapshot) pterm.TableData {
	data := pterm.TableData{{"#", "x", "y", "reach", "devices", "marker", "ring px"}}
	for _, v := range snap.Layout.Stations {
		devices := "-"
		if len(v.Devices) > 0 {
			devices = ""
			for i, d := range v.Devices {
				if i > 0 {
					devices += ","
				}
				devices += fmt.Sprint(d + 1)
			}
		}
		ring := "-"
		if v.RingRadiusPx != nil {
			ring = fmt.Sprintf("%.1f", *v.RingRadiusPx)
		}
		data = append(data, []string{
			fmt.Sprint(v.Label),
			fmt.Sprint(v.Station.X),
			fmt.Sprint(v.Station.Y),
			fmt.Sprint(v.Station.Reach),
			devices,
			marker(v.Marker),
			ring,
		})
	}
	return data
}

func deviceRows(snap *state.Snapshot) pterm.TableData {
	data := pterm.TableData{{"#", "x", "y", "speed", "station", "marker"}}
	for _, v := range snap.Layout.Devices {
		speed, station := "-", "-"
		if v.Assignment != nil {
			speed = fmt.Sprint(v.Assignment.Speed)
			station = fmt.Sprint(v.Assignment.StationIndex + 1)
		}
		data = append(data, []string{
			fmt.Sprint(v.Label),
			fmt.Sprint(v.Device.X),
			fmt.Sprint(v.Device.Y),
			speed,
			station,
			marker(v.Marker),
		})
	}
	return data
}

func marker(off *core.PixelOffset) string {
	if off == nil {
		return "-"
	}
	return fmt.Sprintf("%.1f,%.1f", off.LeftPx, off.TopPx)
}
