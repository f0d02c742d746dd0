// Package httpapi exposes a WidgetState to an external presentation layer
// as JSON over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/signalsfoundry/coverage-sim/internal/logging"
	"github.com/signalsfoundry/coverage-sim/internal/observability"
	"github.com/signalsfoundry/coverage-sim/internal/sim/state"
	"github.com/signalsfoundry/coverage-sim/kb"
	"github.com/signalsfoundry/coverage-sim/model"
)

// RequestIDHeader carries the request id in and out of the API.
const RequestIDHeader = "X-Request-ID"

// HTTPMetrics records per-request counters.
type HTTPMetrics interface {
	ObserveHTTP(route, method string, code int, d time.Duration)
}

// Server routes API requests to one widget.
type Server struct {
	state   *state.WidgetState
	log     logging.Logger
	metrics HTTPMetrics
}

// NewServer builds a Server. metrics may be nil.
func NewServer(ws *state.WidgetState, log logging.Logger, metrics HTTPMetrics) *Server {
	if log == nil {
		log = logging.Noop()
	}
	return &Server{state: ws, log: log, metrics: metrics}
}

// Handler returns the API routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/state", s.getState)
		r.Put("/layout", s.putLayout)

		r.Post("/stations", s.addStation)
		r.Delete("/stations/{index}", s.removeStation)
		r.Patch("/stations/{index}", s.editStation)

		r.Post("/devices", s.addDevice)
		r.Delete("/devices/{index}", s.removeDevice)
		r.Patch("/devices/{index}", s.editDevice)
	})
	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if id := r.Header.Get(RequestIDHeader); id != "" {
			ctx = logging.ContextWithRequestID(ctx, id)
		}
		ctx, log := logging.WithRequestLogger(ctx, s.log)
		w.Header().Set(RequestIDHeader, logging.RequestIDFromContext(ctx))

		ctx = otel.GetTextMapPropagator().Extract(ctx, propagation.HeaderCarrier(r.Header))
		ctx, span := observability.Tracer().Start(ctx, "HTTP "+r.Method, trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r.WithContext(ctx))
		elapsed := time.Since(start)

		route := ""
		if rc := chi.RouteContext(r.Context()); rc != nil {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		span.SetName(fmt.Sprintf("HTTP %s %s", r.Method, route))
		span.SetAttributes(
			attribute.String("http.request.method", r.Method),
			attribute.String("http.route", route),
			attribute.Int("http.response.status_code", status),
			attribute.String("request_id", logging.RequestIDFromContext(ctx)),
		)
		if status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(status))
		}
		if s.metrics != nil {
			s.metrics.ObserveHTTP(route, r.Method, status, elapsed)
		}
		log.Debug(ctx, "handled request",
			logging.String("method", r.Method),
			logging.String("route", route),
			logging.Int("status", status),
			logging.Any("duration", elapsed),
		)
	})
}

// stateResponse is the body of GET /api/v1/state and of every mutation.
type stateResponse struct {
	Applied  *bool           `json:"applied,omitempty"`
	Stations []model.Station `json:"stations"`
	Devices  []model.Device  `json:"devices"`
	// Assignments is aligned with Devices; null marks an unassigned device.
	Assignments []*model.Assignment `json:"assignments"`
	// StationDevices is aligned with Stations.
	StationDevices [][]int      `json:"station_devices"`
	MaxPoint       float64      `json:"max_point"`
	Layout         state.Layout `json:"layout"`
}

func (s *Server) writeState(w http.ResponseWriter, r *http.Request, status int, applied *bool) {
	snap := s.state.Snapshot(r.Context())

	resp := stateResponse{
		Applied:        applied,
		Stations:       snap.Stations,
		Devices:        snap.Devices,
		Assignments:    make([]*model.Assignment, len(snap.Devices)),
		StationDevices: make([][]int, len(snap.Stations)),
		MaxPoint:       snap.MaxPoint,
		Layout:         snap.Layout,
	}
	for i := range snap.Devices {
		if a, ok := snap.Coverage.Assignment(i); ok {
			resp.Assignments[i] = &a
		}
	}
	for i := range snap.Stations {
		resp.StationDevices[i] = snap.Coverage.DevicesOf(i)
	}
	s.writeJSON(w, r, status, resp)
}

func (s *Server) getState(w http.ResponseWriter, r *http.Request) {
	s.writeState(w, r, http.StatusOK, nil)
}

type layoutRequest struct {
	PlotWidthPx float64 `json:"plot_width_px"`
}

func (s *Server) putLayout(w http.ResponseWriter, r *http.Request) {
	var req layoutRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	s.state.ReportPlotWidthPx(req.PlotWidthPx)
	s.writeState(w, r, http.StatusOK, nil)
}

func (s *Server) addStation(w http.ResponseWriter, r *http.Request) {
	s.state.AddStation(r.Context())
	s.writeState(w, r, http.StatusCreated, nil)
}

func (s *Server) addDevice(w http.ResponseWriter, r *http.Request) {
	s.state.AddDevice(r.Context())
	s.writeState(w, r, http.StatusCreated, nil)
}

func (s *Server) removeStation(w http.ResponseWriter, r *http.Request) {
	s.remove(w, r, s.state.RemoveStation)
}

func (s *Server) removeDevice(w http.ResponseWriter, r *http.Request) {
	s.remove(w, r, s.state.RemoveDevice)
}

func (s *Server) remove(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, index int) error) {
	index, err := indexParam(r)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	if err := fn(r.Context(), index); err != nil {
		s.writeError(w, r, statusFor(err), err)
		return
	}
	s.writeState(w, r, http.StatusOK, nil)
}

// editRequest carries a field edit. Value may be a JSON number or the raw
// text of a form input; text that does not parse is rejected like any
// other invalid value.
type editRequest struct {
	Field string          `json:"field"`
	Value json.RawMessage `json:"value"`
}

func (req editRequest) rawValue() float64 {
	var n float64
	if err := json.Unmarshal(req.Value, &n); err == nil {
		return n
	}
	var text string
	if err := json.Unmarshal(req.Value, &text); err == nil {
		return kb.ParseValue(text)
	}
	return kb.ParseValue("")
}

func (s *Server) editStation(w http.ResponseWriter, r *http.Request) {
	s.edit(w, r, s.state.EditStationField)
}

func (s *Server) editDevice(w http.ResponseWriter, r *http.Request) {
	s.edit(w, r, s.state.EditDeviceField)
}

func (s *Server) edit(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, index int, field model.Field, raw float64) (bool, error)) {
	index, err := indexParam(r)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	var req editRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	applied, err := fn(r.Context(), index, model.Field(req.Field), req.rawValue())
	if err != nil {
		s.writeError(w, r, statusFor(err), err)
		return
	}
	s.writeState(w, r, http.StatusOK, &applied)
}

func indexParam(r *http.Request) (int, error) {
	raw := chi.URLParam(r, "index")
	index, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid index %q", raw)
	}
	return index, nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, state.ErrIndexOutOfRange):
		return http.StatusNotFound
	case errors.Is(err, state.ErrUnknownField):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("decode request body: %w", err)
	}
	return nil
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	s.writeJSON(w, r, status, errorResponse{Error: err.Error()})
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logging.FromContext(r.Context(), s.log).Warn(r.Context(), "failed to write response",
			logging.Int("status", status),
			logging.Err(err),
		)
	}
}
