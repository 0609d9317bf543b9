package apihttp

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"safewatch-cloud/internal/query"
	telemetry "safewatch-cloud/internal/telemetry/domain"
)

// exportLimit caps export pages; exports reuse the explorer query but are not
// paginated by the caller.
const exportLimit = 10000

// ExportExplorerCSVHandler serves GET /api/v1/exports/explorer.csv.
type ExportExplorerCSVHandler struct {
	engine *query.Engine
	logger *zap.Logger
}

// NewExportExplorerCSVHandler constructs the CSV export handler.
func NewExportExplorerCSVHandler(engine *query.Engine, logger *zap.Logger) (*ExportExplorerCSVHandler, error) {
	if engine == nil {
		return nil, errors.New("apihttp: nil engine")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportExplorerCSVHandler{engine: engine, logger: logger}, nil
}

// ServeHTTP streams the current explorer query as CSV.
func (h *ExportExplorerCSVHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	req, err := parseExplorerRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	req.Limit = exportLimit
	req.Offset = 0

	page, err := h.engine.Explore(r.Context(), req)
	if err != nil {
		h.logger.Error("csv export failed", zap.String("kind", string(req.Kind)), zap.Error(err))
		http.Error(w, "export query error", http.StatusInternalServerError)
		return
	}

	columns := exportColumns(req.Kind)
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="explorer.csv"`)
	writer := csv.NewWriter(w)
	_ = writer.Write(columns)
	for _, record := range page.Records {
		_ = writer.Write(exportRow(record, columns))
	}
	writer.Flush()
}

// ExportExplorerXLSXHandler serves GET /api/v1/exports/explorer.xlsx.
type ExportExplorerXLSXHandler struct {
	engine *query.Engine
	logger *zap.Logger
}

// NewExportExplorerXLSXHandler constructs the XLSX export handler.
func NewExportExplorerXLSXHandler(engine *query.Engine, logger *zap.Logger) (*ExportExplorerXLSXHandler, error) {
	if engine == nil {
		return nil, errors.New("apihttp: nil engine")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportExplorerXLSXHandler{engine: engine, logger: logger}, nil
}

// ServeHTTP renders the current explorer query as a workbook.
func (h *ExportExplorerXLSXHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	req, err := parseExplorerRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	req.Limit = exportLimit
	req.Offset = 0

	page, err := h.engine.Explore(r.Context(), req)
	if err != nil {
		h.logger.Error("xlsx export failed", zap.String("kind", string(req.Kind)), zap.Error(err))
		http.Error(w, "export query error", http.StatusInternalServerError)
		return
	}

	data, err := buildExplorerXLSX(req.Kind, page.Records)
	if err != nil {
		h.logger.Error("xlsx render failed", zap.Error(err))
		http.Error(w, "export render error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="explorer.xlsx"`)
	_, _ = w.Write(data)
}

// ExportEventsPDFHandler serves GET /api/v1/exports/events.pdf.
type ExportEventsPDFHandler struct {
	engine *query.Engine
	logger *zap.Logger
}

// NewExportEventsPDFHandler constructs the event report handler.
func NewExportEventsPDFHandler(engine *query.Engine, logger *zap.Logger) (*ExportEventsPDFHandler, error) {
	if engine == nil {
		return nil, errors.New("apihttp: nil engine")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportEventsPDFHandler{engine: engine, logger: logger}, nil
}

// ServeHTTP renders the event log for one device as a PDF report.
func (h *ExportEventsPDFHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	deviceID := r.URL.Query().Get("device_id")
	if deviceID == "" {
		http.Error(w, "device_id is required", http.StatusBadRequest)
		return
	}
	from, err := parseTimeQuery(r, "from")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	to, err := parseTimeQuery(r, "to")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	page, err := h.engine.Explore(r.Context(), query.Request{
		Kind:     telemetry.KindEvent,
		DeviceID: deviceID,
		From:     from,
		To:       to,
		SortDir:  query.SortDesc,
		Limit:    exportLimit,
	})
	if err != nil {
		h.logger.Error("pdf export failed", zap.String("device_id", deviceID), zap.Error(err))
		http.Error(w, "export query error", http.StatusInternalServerError)
		return
	}

	data, err := buildEventsPDF(deviceID, page.Records)
	if err != nil {
		h.logger.Error("pdf render failed", zap.Error(err))
		http.Error(w, "export render error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="events.pdf"`)
	_, _ = w.Write(data)
}

func exportColumns(kind telemetry.Kind) []string {
	switch kind {
	case telemetry.KindSensor:
		return []string{"deviceId", "sensorType", "value", "unit", "timestamp"}
	case telemetry.KindStatus:
		return []string{"deviceId", "status", "timestamp"}
	case telemetry.KindRotation:
		return []string{"deviceId", "alpha", "beta", "gamma", "timestamp"}
	default:
		return []string{"deviceId", "type", "severity", "content", "timestamp"}
	}
}

func exportRow(record telemetry.Record, columns []string) []string {
	row := make([]string, len(columns))
	for i, column := range columns {
		value, ok := record.Field(column)
		if !ok {
			continue
		}
		switch v := value.(type) {
		case time.Time:
			row[i] = v.UTC().Format(time.RFC3339)
		case float64:
			row[i] = strconv.FormatFloat(v, 'f', -1, 64)
		case string:
			row[i] = v
		}
	}
	return row
}

func buildExplorerXLSX(kind telemetry.Kind, records []telemetry.Record) ([]byte, error) {
	f := excelize.NewFile()
	sheet := string(kind)
	f.SetSheetName("Sheet1", sheet)

	columns := exportColumns(kind)
	for i, column := range columns {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return nil, err
		}
		_ = f.SetCellValue(sheet, cell, column)
	}
	for rowIdx, record := range records {
		row := exportRow(record, columns)
		for colIdx, value := range row {
			cell, err := excelize.CoordinatesToCellName(colIdx+1, rowIdx+2)
			if err != nil {
				return nil, err
			}
			_ = f.SetCellValue(sheet, cell, value)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func buildEventsPDF(deviceID string, records []telemetry.Record) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Event Log Report")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Device: %s", deviceID))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Generated: %s", time.Now().UTC().Format(time.RFC3339)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Events: %d", len(records)))
	pdf.Ln(8)

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(45, 6, "Time", "1", 0, "C", false, 0, "")
	pdf.CellFormat(35, 6, "Type", "1", 0, "C", false, 0, "")
	pdf.CellFormat(25, 6, "Severity", "1", 0, "C", false, 0, "")
	pdf.CellFormat(85, 6, "Content", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 9)
	for _, record := range records {
		event := record.Event
		if event == nil {
			continue
		}
		pdf.CellFormat(45, 6, event.TS.UTC().Format("2006-01-02 15:04:05"), "1", 0, "L", false, 0, "")
		pdf.CellFormat(35, 6, event.Type, "1", 0, "L", false, 0, "")
		pdf.CellFormat(25, 6, string(event.Severity), "1", 0, "C", false, 0, "")
		pdf.CellFormat(85, 6, event.Content, "1", 0, "L", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
