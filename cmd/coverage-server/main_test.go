package main

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/signalsfoundry/coverage-sim/internal/config"
	"github.com/signalsfoundry/coverage-sim/internal/logging"
	"github.com/signalsfoundry/coverage-sim/internal/sim/state"
)

func writeScenario(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.json")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write scenario: %v", err)
	}
	return path
}

func TestCoverageServerStartupSmoke(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen: %v", err)
	}

	cfg := config.Default()
	cfg.MetricsAddr = ""
	cfg.ScenarioPath = writeScenario(t, `{"stations":[{"x":0,"y":0,"reach":10}],"devices":[{"x":6,"y":8}]}`)

	log := logging.New(logging.Config{Level: "warn"})

	errCh := make(chan error, 1)
	go func() {
		errCh <- run(ctx, cfg, log, lis, prometheus.NewRegistry())
	}()

	url := "http://" + lis.Addr().String() + "/api/v1/state"
	var resp *http.Response
	for i := 0; i < 50; i++ {
		resp, err = http.Get(url)
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("GET state: %v", err)
	}
	defer resp.Body.Close()

	var body struct {
		Assignments []*struct {
			StationIndex int `json:"station_index"`
		} `json:"assignments"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Assignments) != 1 || body.Assignments[0] == nil || body.Assignments[0].StationIndex != 0 {
		t.Fatalf("unexpected assignments %+v", body.Assignments)
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("run returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("run did not stop after cancel")
	}
}

func TestRunRefusesOversizedScenario(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen: %v", err)
	}
	defer lis.Close()

	cfg := config.Default()
	cfg.MetricsAddr = ""
	cfg.ScenarioPath = writeScenario(t, `{"devices":[{"x":1200,"y":0}]}`)

	err = run(context.Background(), cfg, logging.Noop(), lis, prometheus.NewRegistry())
	if !state.IsConfigError(err) {
		t.Fatalf("run err = %v, want config error", err)
	}
}

func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen: %v", err)
	}
	addr := l.Addr().String()
	l.Close()
	return addr
}

func assertAddrFree(t *testing.T, addr string) {
	t.Helper()
	l, err := net.Listen("tcp", addr)
	if err != nil {
		t.Fatalf("metrics address %s still bound after run returned: %v", addr, err)
	}
	l.Close()
}

func TestRunFailedStartupLeavesMetricsAddrFree(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen: %v", err)
	}
	defer lis.Close()

	cfg := config.Default()
	cfg.MetricsAddr = freeAddr(t)
	cfg.ScenarioPath = filepath.Join(t.TempDir(), "missing.json")

	if err := run(context.Background(), cfg, logging.Noop(), lis, prometheus.NewRegistry()); err == nil {
		t.Fatalf("run should fail when the scenario is missing")
	}
	assertAddrFree(t, cfg.MetricsAddr)
}

func TestRunShutsDownMetricsServer(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen: %v", err)
	}

	cfg := config.Default()
	cfg.MetricsAddr = freeAddr(t)
	cfg.ScenarioPath = ""

	errCh := make(chan error, 1)
	go func() {
		errCh <- run(ctx, cfg, logging.Noop(), lis, prometheus.NewRegistry())
	}()

	var resp *http.Response
	for i := 0; i < 50; i++ {
		resp, err = http.Get("http://" + cfg.MetricsAddr + "/metrics")
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET /metrics status = %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("run returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("run did not stop after cancel")
	}
	assertAddrFree(t, cfg.MetricsAddr)
}
