package commandshttp

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"
)

// Publisher delivers a command to a device. Command handling itself is a
// pass-through to the transport; there is no command state in this service.
type Publisher interface {
	PublishCommand(deviceID, command string) error
}

// Handler serves POST /api/v1/commands.
type Handler struct {
	publisher Publisher
	logger    *zap.Logger
}

// NewHandler constructs a command handler.
func NewHandler(publisher Publisher, logger *zap.Logger) (*Handler, error) {
	if publisher == nil {
		return nil, errors.New("commands: nil publisher")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{publisher: publisher, logger: logger}, nil
}

type commandRequest struct {
	DeviceID string `json:"deviceId"`
	Command  string `json:"command"`
}

// ServeHTTP publishes one command.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.DeviceID == "" || req.Command == "" {
		http.Error(w, "deviceId and command are required", http.StatusBadRequest)
		return
	}

	if err := h.publisher.PublishCommand(req.DeviceID, req.Command); err != nil {
		h.logger.Error("command publish failed",
			zap.String("device_id", req.DeviceID),
			zap.String("command", req.Command),
			zap.Error(err))
		http.Error(w, "publish error", http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]any{"published": true})
}
