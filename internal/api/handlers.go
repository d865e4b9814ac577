package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/LEE-CHIEN-AN/wiolink-uploader/internal/db"
	"github.com/LEE-CHIEN-AN/wiolink-uploader/internal/repository"
	"go.uber.org/zap"
)

// Repository is the read side the HTTP surface needs
type Repository interface {
	Ping(ctx context.Context) error
	QueryReadings(ctx context.Context, q repository.ReadingQuery) ([]repository.ReadingPoint, error)
	ListDevices(ctx context.Context) ([]db.Device, error)
	ListMetrics(ctx context.Context) ([]db.Metric, error)
}

type handlers struct {
	repo        Repository
	serviceName string
	logger      *zap.Logger
}

type deviceResponse struct {
	Name     string  `json:"device_name"`
	Source   string  `json:"source"`
	Location *string `json:"location"`
	IsActive bool    `json:"is_active"`
}

type metricResponse struct {
	Key       string `json:"metric_key"`
	ValueType string `json:"value_type"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	body := map[string]string{
		"status":   "ok",
		"service":  h.serviceName,
		"database": "ok",
	}
	if err := h.repo.Ping(ctx); err != nil {
		h.logger.Warn("health check failed", zap.Error(err))
		status = http.StatusServiceUnavailable
		body["status"] = "degraded"
		body["database"] = "unreachable"
	}

	writeJSON(w, status, body)
}

// readings handles GET /api/readings?device=&metric=a,b&start=&end=&order=&limit=
func (h *handlers) readings(w http.ResponseWriter, r *http.Request) {
	q, err := parseReadingQuery(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	if err := q.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	points, err := h.repo.QueryReadings(r.Context(), q)
	if err != nil {
		h.logger.Error("failed to query readings", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to query readings"})
		return
	}
	if points == nil {
		points = []repository.ReadingPoint{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":  points,
		"count": len(points),
	})
}

func (h *handlers) devices(w http.ResponseWriter, r *http.Request) {
	devices, err := h.repo.ListDevices(r.Context())
	if err != nil {
		h.logger.Error("failed to list devices", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to list devices"})
		return
	}

	out := make([]deviceResponse, 0, len(devices))
	for _, d := range devices {
		out = append(out, deviceResponse{Name: d.Name, Source: d.Source, Location: d.Location, IsActive: d.IsActive})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handlers) metrics(w http.ResponseWriter, r *http.Request) {
	metrics, err := h.repo.ListMetrics(r.Context())
	if err != nil {
		h.logger.Error("failed to list metrics", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to list metrics"})
		return
	}

	out := make([]metricResponse, 0, len(metrics))
	for _, m := range metrics {
		out = append(out, metricResponse{Key: m.Key, ValueType: m.ValueType.String()})
	}
	writeJSON(w, http.StatusOK, out)
}

func parseReadingQuery(r *http.Request) (repository.ReadingQuery, error) {
	params := r.URL.Query()
	q := repository.ReadingQuery{
		Device: strings.TrimSpace(params.Get("device")),
		Order:  strings.ToLower(params.Get("order")),
	}

	if raw := params.Get("metric"); raw != "" {
		for _, key := range strings.Split(raw, ",") {
			if key = strings.TrimSpace(key); key != "" {
				q.Metrics = append(q.Metrics, key)
			}
		}
	}

	var err error
	if q.Start, err = parseTime(params.Get("start")); err != nil {
		return q, err
	}
	if q.End, err = parseTime(params.Get("end")); err != nil {
		return q, err
	}

	if raw := params.Get("limit"); raw != "" {
		if q.Limit, err = strconv.Atoi(raw); err != nil {
			return q, &paramError{name: "limit", value: raw}
		}
	}

	return q, nil
}

func parseTime(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, &paramError{name: "time", value: raw}
	}
	return t.UTC(), nil
}

type paramError struct {
	name  string
	value string
}

func (e *paramError) Error() string {
	return "invalid " + e.name + " parameter: " + e.value
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
