package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestObserveHTTPRecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewCoverageCollector(reg)
	if err != nil {
		t.Fatalf("NewCoverageCollector: %v", err)
	}

	collector.ObserveHTTP("/api/v1/state", http.MethodGet, http.StatusOK, 3*time.Millisecond)

	if got := testutil.ToFloat64(collector.HTTPRequests.WithLabelValues("/api/v1/state", "GET", "200")); got != 1 {
		t.Fatalf("coverage_http_requests_total = %v, want 1", got)
	}
	if count := histogramSampleCount(t, reg, "coverage_http_request_duration_seconds", map[string]string{
		"route":  "/api/v1/state",
		"method": "GET",
	}); count != 1 {
		t.Fatalf("coverage_http_request_duration_seconds sample_count = %d, want 1", count)
	}
}

func TestObserveResolveAndRejections(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewCoverageCollector(reg)
	if err != nil {
		t.Fatalf("NewCoverageCollector: %v", err)
	}

	collector.ObserveResolve(time.Microsecond, 4)
	collector.ObserveResolve(time.Microsecond, 2)
	collector.IncRejectedEdit("station", "reach")

	if got := testutil.ToFloat64(collector.Resolves); got != 2 {
		t.Fatalf("coverage_resolves_total = %v, want 2", got)
	}
	if got := testutil.ToFloat64(collector.AssignedDevices); got != 2 {
		t.Fatalf("coverage_assigned_devices = %v, want 2", got)
	}
	if got := testutil.ToFloat64(collector.RejectedEdits.WithLabelValues("station", "reach")); got != 1 {
		t.Fatalf("coverage_rejected_edits_total = %v, want 1", got)
	}
}

func TestNilCollectorIsSafe(t *testing.T) {
	var c *CoverageCollector
	c.SetEntityCounts(1, 2)
	c.ObserveResolve(time.Millisecond, 1)
	c.IncRejectedEdit("device", "x")
	c.ObserveHTTP("/", "GET", 200, time.Millisecond)
}

func TestRegisterTwiceReusesCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewCoverageCollector(reg)
	if err != nil {
		t.Fatalf("first NewCoverageCollector: %v", err)
	}
	second, err := NewCoverageCollector(reg)
	if err != nil {
		t.Fatalf("second NewCoverageCollector: %v", err)
	}
	first.SetEntityCounts(7, 0)
	if got := testutil.ToFloat64(second.Stations); got != 7 {
		t.Fatalf("re-registered gauge not shared: %v", got)
	}
}

func TestMetricsHandlerExposesCoverageGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewCoverageCollector(reg)
	if err != nil {
		t.Fatalf("NewCoverageCollector: %v", err)
	}
	collector.SetEntityCounts(3, 5)
	collector.ObserveResolve(time.Millisecond, 4)
	collector.IncRejectedEdit("device", "x")
	collector.ObserveHTTP("/api/v1/state", "GET", 200, time.Millisecond)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	collector.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("/metrics status = %d, want 200", rr.Code)
	}
	body := rr.Body.String()
	for _, metric := range []string{
		"coverage_http_requests_total",
		"coverage_http_request_duration_seconds",
		"coverage_resolves_total",
		"coverage_resolve_duration_seconds",
		"coverage_rejected_edits_total",
		"coverage_stations 3",
		"coverage_devices 5",
		"coverage_assigned_devices 4",
	} {
		if !strings.Contains(body, metric) {
			t.Fatalf("expected %q in /metrics output", metric)
		}
	}
}

func histogramSampleCount(t *testing.T, gatherer prometheus.Gatherer, name string, labels map[string]string) uint64 {
	t.Helper()

	metrics, err := gatherer.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range metrics {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.Metric {
			if matchLabels(m.GetLabel(), labels) && m.GetHistogram() != nil {
				return m.GetHistogram().GetSampleCount()
			}
		}
	}
	return 0
}

func matchLabels(got []*dto.LabelPair, want map[string]string) bool {
	if len(got) < len(want) {
		return false
	}
	matched := 0
	for _, lp := range got {
		if val, ok := want[lp.GetName()]; ok && val == lp.GetValue() {
			matched++
		}
	}
	return matched == len(want)
}
