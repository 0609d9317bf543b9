package apihttp

import (
	"context"
	"encoding/csv"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	telemetry "safewatch-cloud/internal/telemetry/domain"
	"safewatch-cloud/internal/telemetry/infrastructure/memory"
)

func seedExportData(t *testing.T, store *memory.Store, base time.Time) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, store.AppendSample(ctx, telemetry.SensorSample{
			DeviceID: "safe-001", Sensor: telemetry.SensorVibration,
			Value: float64(100 * (i + 1)), Unit: "mg",
			TS: base.Add(time.Duration(i) * time.Minute),
		}))
	}
	require.NoError(t, store.AppendEvent(ctx, telemetry.EventLogEntry{
		ID: "evt-1", DeviceID: "safe-001", Type: "Hit",
		Content:  "vibration reading 3500.00 exceeded threshold 3000.00",
		Severity: telemetry.SeverityWarning, TS: base,
	}))
}

func TestExportExplorerCSV(t *testing.T) {
	store := memory.NewStore()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	seedExportData(t, store, base)

	handler, err := NewExportExplorerCSVHandler(newTestEngine(t, store), zap.NewNop())
	require.NoError(t, err)

	url := fmt.Sprintf("/api/v1/exports/explorer.csv?kind=sensor&from=%s&to=%s",
		base.Format(time.RFC3339), base.Add(time.Hour).Format(time.RFC3339))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, url, nil))

	require.Equal(t, http.StatusOK, resp.Code)
	require.Contains(t, resp.Header().Get("Content-Type"), "text/csv")
	require.Contains(t, resp.Header().Get("Content-Disposition"), "explorer.csv")

	rows, err := csv.NewReader(strings.NewReader(resp.Body.String())).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 4) // header + 3 samples
	require.Equal(t, []string{"deviceId", "sensorType", "value", "unit", "timestamp"}, rows[0])
	require.Equal(t, "safe-001", rows[1][0])
	require.Equal(t, "vibration", rows[1][1])
	require.Equal(t, "100", rows[1][2])
}

func TestExportExplorerCSVRejectsBadKind(t *testing.T) {
	handler, err := NewExportExplorerCSVHandler(newTestEngine(t, memory.NewStore()), zap.NewNop())
	require.NoError(t, err)

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/exports/explorer.csv?kind=firmware", nil))
	require.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestExportExplorerXLSX(t *testing.T) {
	store := memory.NewStore()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	seedExportData(t, store, base)

	handler, err := NewExportExplorerXLSXHandler(newTestEngine(t, store), zap.NewNop())
	require.NoError(t, err)

	url := fmt.Sprintf("/api/v1/exports/explorer.xlsx?kind=sensor&from=%s&to=%s",
		base.Format(time.RFC3339), base.Add(time.Hour).Format(time.RFC3339))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, url, nil))

	require.Equal(t, http.StatusOK, resp.Code)
	require.Contains(t, resp.Header().Get("Content-Type"), "spreadsheetml")
	require.NotEmpty(t, resp.Body.Bytes())
	// XLSX is a zip container.
	require.Equal(t, "PK", resp.Body.String()[:2])
}

func TestExportEventsPDF(t *testing.T) {
	store := memory.NewStore()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	seedExportData(t, store, base)

	handler, err := NewExportEventsPDFHandler(newTestEngine(t, store), zap.NewNop())
	require.NoError(t, err)

	url := fmt.Sprintf("/api/v1/exports/events.pdf?device_id=safe-001&from=%s&to=%s",
		base.Format(time.RFC3339), base.Add(time.Hour).Format(time.RFC3339))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, url, nil))

	require.Equal(t, http.StatusOK, resp.Code)
	require.Equal(t, "application/pdf", resp.Header().Get("Content-Type"))
	require.True(t, strings.HasPrefix(resp.Body.String(), "%PDF"))
}

func TestExportEventsPDFRequiresDevice(t *testing.T) {
	handler, err := NewExportEventsPDFHandler(newTestEngine(t, memory.NewStore()), zap.NewNop())
	require.NoError(t, err)

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/exports/events.pdf", nil))
	require.Equal(t, http.StatusBadRequest, resp.Code)
}
