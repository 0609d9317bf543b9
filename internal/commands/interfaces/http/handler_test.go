package commandshttp

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubPublisher struct {
	deviceID string
	command  string
	err      error
}

func (p *stubPublisher) PublishCommand(deviceID, command string) error {
	p.deviceID = deviceID
	p.command = command
	return p.err
}

func TestPublishCommand(t *testing.T) {
	publisher := &stubPublisher{}
	handler, err := NewHandler(publisher, zap.NewNop())
	require.NoError(t, err)

	body := `{"deviceId":"safe-001","command":"lock"}`
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/api/v1/commands", strings.NewReader(body)))

	require.Equal(t, http.StatusAccepted, resp.Code)
	require.Equal(t, "safe-001", publisher.deviceID)
	require.Equal(t, "lock", publisher.command)
}

func TestPublishCommandValidation(t *testing.T) {
	handler, err := NewHandler(&stubPublisher{}, zap.NewNop())
	require.NoError(t, err)

	for _, body := range []string{`not json`, `{"deviceId":"safe-001"}`, `{"command":"lock"}`} {
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/api/v1/commands", strings.NewReader(body)))
		require.Equal(t, http.StatusBadRequest, resp.Code)
	}

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/commands", nil))
	require.Equal(t, http.StatusMethodNotAllowed, resp.Code)
}

func TestPublishCommandTransportFailure(t *testing.T) {
	handler, err := NewHandler(&stubPublisher{err: errors.New("broker unreachable")}, zap.NewNop())
	require.NoError(t, err)

	body := `{"deviceId":"safe-001","command":"lock"}`
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/api/v1/commands", strings.NewReader(body)))
	require.Equal(t, http.StatusBadGateway, resp.Code)
}
