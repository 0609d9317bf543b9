package apihttp

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	alertapp "safewatch-cloud/internal/alerts/application"
	"safewatch-cloud/internal/health"
	"safewatch-cloud/internal/observability/metrics"
	"safewatch-cloud/internal/query"
	telemetry "safewatch-cloud/internal/telemetry/domain"
)

const timeLayout = time.RFC3339

// ChartHandler serves GET /api/v1/chart.
type ChartHandler struct {
	engine *query.Engine
	logger *zap.Logger
}

// NewChartHandler constructs a ChartHandler.
func NewChartHandler(engine *query.Engine, logger *zap.Logger) (*ChartHandler, error) {
	if engine == nil {
		return nil, errors.New("apihttp: nil engine")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChartHandler{engine: engine, logger: logger}, nil
}

// ServeHTTP answers a chart series query.
func (h *ChartHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	start := time.Now()

	deviceID := r.URL.Query().Get("device_id")
	if deviceID == "" {
		http.Error(w, "device_id is required", http.StatusBadRequest)
		return
	}
	window, err := parseWindow(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	series, err := h.engine.ChartSeries(r.Context(), deviceID, window)
	if err != nil {
		metrics.ObserveQuery("chart", "error", time.Since(start))
		h.logger.Error("chart query failed", zap.String("device_id", deviceID), zap.Error(err))
		http.Error(w, "chart query error", http.StatusInternalServerError)
		return
	}

	metrics.ObserveQuery("chart", "success", time.Since(start))
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(series)
}

// ExplorerHandler serves GET /api/v1/explorer.
type ExplorerHandler struct {
	engine *query.Engine
	logger *zap.Logger
}

// NewExplorerHandler constructs an ExplorerHandler.
func NewExplorerHandler(engine *query.Engine, logger *zap.Logger) (*ExplorerHandler, error) {
	if engine == nil {
		return nil, errors.New("apihttp: nil engine")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExplorerHandler{engine: engine, logger: logger}, nil
}

// ServeHTTP answers a generic explorer query. A store failure yields an empty
// page with total 0 plus the error, never a partial page.
func (h *ExplorerHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	start := time.Now()

	req, err := parseExplorerRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	page, err := h.engine.Explore(r.Context(), req)
	w.Header().Set("Content-Type", "application/json")
	if err != nil {
		metrics.ObserveQuery("explorer", "error", time.Since(start))
		h.logger.Error("explorer query failed", zap.String("kind", string(req.Kind)), zap.Error(err))
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": "explorer query error",
			"data":  []telemetry.Record{},
			"total": 0,
		})
		return
	}

	metrics.ObserveQuery("explorer", "success", time.Since(start))
	_ = json.NewEncoder(w).Encode(page)
}

// HealthHandler serves GET /api/v1/health.
type HealthHandler struct {
	tracker *health.Tracker
	deriver *alertapp.Deriver
}

// NewHealthHandler constructs a HealthHandler.
func NewHealthHandler(tracker *health.Tracker, deriver *alertapp.Deriver) (*HealthHandler, error) {
	if tracker == nil {
		return nil, errors.New("apihttp: nil tracker")
	}
	return &HealthHandler{tracker: tracker, deriver: deriver}, nil
}

// ServeHTTP classifies one device by heartbeat recency. The handler never
// fails over missing data; an unseen device reports WARN.
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	deviceID := r.URL.Query().Get("device_id")
	if deviceID == "" {
		http.Error(w, "device_id is required", http.StatusBadRequest)
		return
	}

	report := h.tracker.Report(deviceID)
	if h.deriver != nil {
		if status, ok := h.deriver.LastStatus(deviceID); ok {
			report.SafeStatus = string(status)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(report)
}

// LatestHandler serves GET /api/v1/latest.
type LatestHandler struct {
	engine *query.Engine
	logger *zap.Logger
}

// NewLatestHandler constructs a LatestHandler.
func NewLatestHandler(engine *query.Engine, logger *zap.Logger) (*LatestHandler, error) {
	if engine == nil {
		return nil, errors.New("apihttp: nil engine")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LatestHandler{engine: engine, logger: logger}, nil
}

// ServeHTTP returns the most recent record of a kind for a device.
func (h *LatestHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	kind := telemetry.Kind(r.URL.Query().Get("kind"))
	deviceID := r.URL.Query().Get("device_id")
	if !kind.Valid() || deviceID == "" {
		http.Error(w, "kind and device_id are required", http.StatusBadRequest)
		return
	}

	record, err := h.engine.Latest(r.Context(), kind, deviceID)
	if err != nil {
		h.logger.Error("latest query failed", zap.String("kind", string(kind)), zap.Error(err))
		http.Error(w, "latest query error", http.StatusInternalServerError)
		return
	}
	if record == nil {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(record)
}

func parseWindow(r *http.Request) (query.Window, error) {
	window := query.Window{Granularity: query.GranularityHour}
	if raw := r.URL.Query().Get("granularity"); raw != "" {
		window.Granularity = query.Granularity(raw)
		if !window.Granularity.Valid() {
			return window, errors.New("granularity must be hour or second")
		}
	}
	var err error
	if window.From, err = parseTimeQuery(r, "from"); err != nil {
		return window, err
	}
	if window.To, err = parseTimeQuery(r, "to"); err != nil {
		return window, err
	}
	if raw := r.URL.Query().Get("sensors"); raw != "" {
		for _, name := range strings.Split(raw, ",") {
			sensor := telemetry.SensorType(strings.TrimSpace(name))
			if !sensor.Valid() {
				return window, errors.New("unknown sensor type: " + string(sensor))
			}
			window.Sensors = append(window.Sensors, sensor)
		}
	}
	return window, nil
}

func parseExplorerRequest(r *http.Request) (query.Request, error) {
	values := r.URL.Query()
	req := query.Request{
		Kind:      telemetry.Kind(values.Get("kind")),
		DeviceID:  values.Get("device_id"),
		SortField: values.Get("sort"),
		SortDir:   query.SortDir(values.Get("dir")),
	}
	if !req.Kind.Valid() {
		return req, errors.New("kind must be sensor, status, rotation or event")
	}
	if req.SortDir == "" {
		req.SortDir = query.SortAsc
	}
	if req.SortDir != query.SortAsc && req.SortDir != query.SortDesc {
		return req, errors.New("dir must be asc or desc")
	}

	var err error
	if req.From, err = parseTimeQuery(r, "from"); err != nil {
		return req, err
	}
	if req.To, err = parseTimeQuery(r, "to"); err != nil {
		return req, err
	}
	if req.Limit, err = parseIntQuery(r, "limit"); err != nil {
		return req, err
	}
	if req.Offset, err = parseIntQuery(r, "offset"); err != nil {
		return req, err
	}

	req.Filters = make(map[string]string)
	for _, field := range []string{"sensorType", "status", "type", "severity", "unit"} {
		if value := values.Get(field); value != "" {
			req.Filters[field] = value
		}
	}
	return req, nil
}

func parseTimeQuery(r *http.Request, key string) (time.Time, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return time.Time{}, nil
	}
	parsed, err := time.Parse(timeLayout, raw)
	if err != nil {
		return time.Time{}, errors.New(key + " must be RFC3339")
	}
	return parsed.UTC(), nil
}

func parseIntQuery(r *http.Request, key string) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, nil
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed < 0 {
		return 0, errors.New(key + " must be a non-negative integer")
	}
	return parsed, nil
}
