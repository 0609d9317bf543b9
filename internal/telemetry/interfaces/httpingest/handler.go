package httpingest

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"safewatch-cloud/internal/telemetry/application"
	telemetry "safewatch-cloud/internal/telemetry/domain"
)

// Handler ingests telemetry over REST. It serves POST /ingest/{sensor,status,rotation}.
type Handler struct {
	normalizer *application.Normalizer
	logger     *zap.Logger
}

// NewHandler constructs an ingest handler.
func NewHandler(normalizer *application.Normalizer, logger *zap.Logger) (*Handler, error) {
	if normalizer == nil {
		return nil, errors.New("httpingest: nil normalizer")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{normalizer: normalizer, logger: logger}, nil
}

// ServeHTTP ingests one telemetry message.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	kind := telemetry.Kind(strings.TrimPrefix(r.URL.Path, "/ingest/"))
	switch kind {
	case telemetry.KindSensor, telemetry.KindStatus, telemetry.KindRotation:
	default:
		http.NotFound(w, r)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "read body error", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	record, err := h.normalizer.Ingest(r.Context(), kind, body)
	if err != nil {
		var verr *application.ValidationError
		if errors.As(err, &verr) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"error": string(verr.Kind),
				"field": verr.Field,
			})
			return
		}
		h.logger.Error("ingest failed", zap.String("kind", string(kind)), zap.Error(err))
		http.Error(w, "ingest error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"accepted": true,
		"kind":     record.Kind,
		"deviceId": record.DeviceID(),
	})
}
