package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/signalsfoundry/coverage-sim/internal/logging"
	"github.com/signalsfoundry/coverage-sim/internal/sim/state"
	"github.com/signalsfoundry/coverage-sim/model"
)

type recordedCall struct {
	route, method string
	code          int
}

type fakeHTTPMetrics struct {
	calls []recordedCall
}

func (f *fakeHTTPMetrics) ObserveHTTP(route, method string, code int, _ time.Duration) {
	f.calls = append(f.calls, recordedCall{route, method, code})
}

type decodedState struct {
	Applied        *bool               `json:"applied"`
	Stations       []model.Station     `json:"stations"`
	Devices        []model.Device      `json:"devices"`
	Assignments    []*model.Assignment `json:"assignments"`
	StationDevices [][]int             `json:"station_devices"`
	MaxPoint       float64             `json:"max_point"`
	Layout         state.Layout        `json:"layout"`
}

func newTestServer(t *testing.T, sc model.Scenario) (*httptest.Server, *fakeHTTPMetrics) {
	t.Helper()
	ws, err := state.NewWidgetState(state.DefaultSettings(), sc, logging.Noop())
	if err != nil {
		t.Fatalf("NewWidgetState: %v", err)
	}
	t.Cleanup(ws.Close)

	metrics := &fakeHTTPMetrics{}
	srv := httptest.NewServer(NewServer(ws, logging.Noop(), metrics).Handler())
	t.Cleanup(srv.Close)
	return srv, metrics
}

func do(t *testing.T, srv *httptest.Server, method, path string, body any) (*http.Response, decodedState) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, srv.URL+path, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	var out decodedState
	if resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
	return resp, out
}

func TestGetState(t *testing.T) {
	srv, metrics := newTestServer(t, model.Scenario{
		Stations: []model.Station{{X: 0, Y: 0, Reach: 10}},
		Devices:  []model.Device{{X: 6, Y: 8}, {X: 50, Y: 50}},
	})

	resp, st := do(t, srv, http.MethodGet, "/api/v1/state", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if resp.Header.Get(RequestIDHeader) == "" {
		t.Fatalf("missing %s header", RequestIDHeader)
	}
	if len(st.Assignments) != 2 || st.Assignments[0] == nil || st.Assignments[0].Speed != 0 || st.Assignments[1] != nil {
		t.Fatalf("assignments = %+v", st.Assignments)
	}
	if len(st.StationDevices) != 1 || len(st.StationDevices[0]) != 1 || st.StationDevices[0][0] != 0 {
		t.Fatalf("station_devices = %+v", st.StationDevices)
	}
	if st.MaxPoint != 50 || st.Layout.Renderable {
		t.Fatalf("max_point=%v renderable=%v", st.MaxPoint, st.Layout.Renderable)
	}
	if len(metrics.calls) != 1 || metrics.calls[0].route != "/api/v1/state" || metrics.calls[0].code != 200 {
		t.Fatalf("metrics calls = %+v", metrics.calls)
	}
}

func TestRequestIDIsEchoed(t *testing.T) {
	srv, _ := newTestServer(t, model.Scenario{})
	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/v1/state", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if got := resp.Header.Get(RequestIDHeader); got != "abc-123" {
		t.Fatalf("request id = %q, want abc-123", got)
	}
}

func TestMutations(t *testing.T) {
	srv, _ := newTestServer(t, model.Scenario{})

	resp, st := do(t, srv, http.MethodPost, "/api/v1/stations", nil)
	if resp.StatusCode != http.StatusCreated || len(st.Stations) != 1 {
		t.Fatalf("add station: status=%d stations=%d", resp.StatusCode, len(st.Stations))
	}
	resp, st = do(t, srv, http.MethodPost, "/api/v1/devices", nil)
	if resp.StatusCode != http.StatusCreated || len(st.Devices) != 1 {
		t.Fatalf("add device: status=%d devices=%d", resp.StatusCode, len(st.Devices))
	}

	resp, st = do(t, srv, http.MethodPatch, "/api/v1/stations/0", map[string]any{"field": "reach", "value": 10})
	if resp.StatusCode != http.StatusOK || st.Applied == nil || !*st.Applied {
		t.Fatalf("edit reach: status=%d applied=%v", resp.StatusCode, st.Applied)
	}
	if st.Assignments[0] == nil || st.Assignments[0].Speed != 100 {
		t.Fatalf("assignment after edit = %+v", st.Assignments[0])
	}

	resp, st = do(t, srv, http.MethodPatch, "/api/v1/devices/0", map[string]any{"field": "x", "value": "6"})
	if resp.StatusCode != http.StatusOK || !*st.Applied || st.Devices[0].X != 6 {
		t.Fatalf("edit device x from text: status=%d body=%+v", resp.StatusCode, st)
	}

	resp, st = do(t, srv, http.MethodDelete, "/api/v1/stations/0", nil)
	if resp.StatusCode != http.StatusOK || len(st.Stations) != 0 || st.Assignments[0] != nil {
		t.Fatalf("remove station: status=%d body=%+v", resp.StatusCode, st)
	}

	resp, st = do(t, srv, http.MethodDelete, "/api/v1/devices/0", nil)
	if resp.StatusCode != http.StatusOK || len(st.Devices) != 0 {
		t.Fatalf("remove device: status=%d body=%+v", resp.StatusCode, st)
	}
}

func TestRejectedEditReportsNotApplied(t *testing.T) {
	srv, _ := newTestServer(t, model.Scenario{Stations: []model.Station{{X: 5, Y: 5}}})

	for _, value := range []any{-1, 1001, 2.5, "abc"} {
		resp, st := do(t, srv, http.MethodPatch, "/api/v1/stations/0", map[string]any{"field": "reach", "value": value})
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("value %v: status = %d", value, resp.StatusCode)
		}
		if st.Applied == nil || *st.Applied {
			t.Fatalf("value %v: applied = %v, want false", value, st.Applied)
		}
		if st.Stations[0] != (model.Station{X: 5, Y: 5}) {
			t.Fatalf("value %v: station changed to %+v", value, st.Stations[0])
		}
	}
}

func TestErrorStatuses(t *testing.T) {
	srv, _ := newTestServer(t, model.Scenario{Devices: []model.Device{{}}})

	cases := []struct {
		method, path string
		body         any
		want         int
	}{
		{http.MethodDelete, "/api/v1/stations/0", nil, http.StatusNotFound},
		{http.MethodDelete, "/api/v1/devices/x", nil, http.StatusBadRequest},
		{http.MethodPatch, "/api/v1/devices/4", map[string]any{"field": "x", "value": 1}, http.StatusNotFound},
		{http.MethodPatch, "/api/v1/devices/0", map[string]any{"field": "reach", "value": 1}, http.StatusBadRequest},
		{http.MethodPatch, "/api/v1/devices/0", map[string]any{"colour": "red"}, http.StatusBadRequest},
		{http.MethodPut, "/api/v1/layout", map[string]any{"width": 10}, http.StatusBadRequest},
	}
	for _, tc := range cases {
		resp, _ := do(t, srv, tc.method, tc.path, tc.body)
		if resp.StatusCode != tc.want {
			t.Errorf("%s %s: status = %d, want %d", tc.method, tc.path, resp.StatusCode, tc.want)
		}
	}
}

func TestPutLayout(t *testing.T) {
	srv, _ := newTestServer(t, model.Scenario{
		Stations: []model.Station{{X: 10, Y: 10, Reach: 5}},
	})

	resp, st := do(t, srv, http.MethodPut, "/api/v1/layout", map[string]any{"plot_width_px": 200})
	if resp.StatusCode != http.StatusOK || !st.Layout.Renderable {
		t.Fatalf("status=%d renderable=%v", resp.StatusCode, st.Layout.Renderable)
	}
	v := st.Layout.Stations[0]
	if v.Marker == nil || v.Marker.LeftPx != 92 || v.RingRadiusPx == nil || *v.RingRadiusPx != 50 {
		t.Fatalf("station view = %+v", v)
	}
}

type brokenWriter struct {
	header http.Header
	status int
}

func (b *brokenWriter) Header() http.Header {
	if b.header == nil {
		b.header = http.Header{}
	}
	return b.header
}

func (b *brokenWriter) WriteHeader(status int) { b.status = status }

func (b *brokenWriter) Write([]byte) (int, error) {
	return 0, errors.New("connection reset by peer")
}

func TestWriteJSONLogsEncodeFailure(t *testing.T) {
	var buf bytes.Buffer
	log := logging.NewWithWriter(&buf, logging.Config{Level: "debug", Format: "text"})
	s := NewServer(nil, log, nil)

	w := &brokenWriter{}
	s.writeJSON(w, httptest.NewRequest(http.MethodGet, "/api/v1/state", nil), http.StatusOK, map[string]int{"n": 1})

	if w.status != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.status)
	}
	out := buf.String()
	if !strings.Contains(out, "failed to write response") || !strings.Contains(out, "connection reset by peer") {
		t.Fatalf("expected encode failure to be logged, got %q", out)
	}
}
