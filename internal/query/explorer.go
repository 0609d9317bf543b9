package query

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	telemetry "safewatch-cloud/internal/telemetry/domain"
)

// SortDir orders explorer results.
type SortDir string

const (
	SortAsc  SortDir = "asc"
	SortDesc SortDir = "desc"
)

// Request is a generic explorer query over one record kind.
type Request struct {
	Kind      telemetry.Kind
	DeviceID  string
	From      time.Time
	To        time.Time
	Filters   map[string]string
	SortField string
	SortDir   SortDir
	Limit     int
	Offset    int
}

// Page is one explorer result page. Total is the pre-pagination count.
type Page struct {
	Records []telemetry.Record `json:"data"`
	Total   int                `json:"total"`
}

const defaultPageLimit = 50

// Explore filters, sorts and paginates records of one kind. The store may
// return its rows in any order; the engine owns the final deterministic
// ordering. On a store error the page is empty with Total 0.
func (e *Engine) Explore(ctx context.Context, req Request) (Page, error) {
	empty := Page{Records: []telemetry.Record{}}
	if e == nil || e.store == nil {
		return empty, errors.New("query: nil engine")
	}
	if !req.Kind.Valid() {
		return empty, telemetry.ErrUnknownKind
	}

	to := req.To
	if to.IsZero() {
		to = time.Now().UTC()
	}
	from := req.From
	if from.IsZero() {
		from = to.Add(-e.defaultRange)
	}
	if !to.After(from) {
		return empty, errors.New("query: window end must be after start")
	}

	records, err := e.queryRange(ctx, req.Kind, telemetry.RangeFilter{DeviceID: req.DeviceID}, from, to)
	if err != nil {
		return empty, fmt.Errorf("query: explore %s: %w", req.Kind, err)
	}

	filtered := records[:0:len(records)]
	for _, record := range records {
		if matchesFilters(record, req.Filters) {
			filtered = append(filtered, record)
		}
	}

	sortField := req.SortField
	if sortField == "" {
		sortField = "timestamp"
	}
	desc := req.SortDir == SortDesc
	sort.SliceStable(filtered, func(i, j int) bool {
		less := fieldLess(filtered[i], filtered[j], sortField)
		if desc {
			return fieldLess(filtered[j], filtered[i], sortField)
		}
		return less
	})

	total := len(filtered)
	limit := req.Limit
	if limit <= 0 {
		limit = defaultPageLimit
	}
	offset := req.Offset
	if offset < 0 {
		offset = 0
	}
	if offset >= total {
		return Page{Records: []telemetry.Record{}, Total: total}, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	page := make([]telemetry.Record, end-offset)
	copy(page, filtered[offset:end])
	return Page{Records: page, Total: total}, nil
}

func matchesFilters(record telemetry.Record, filters map[string]string) bool {
	for field, want := range filters {
		if want == "" {
			continue
		}
		value, ok := record.Field(field)
		if !ok {
			return false
		}
		if fieldString(value) != want {
			return false
		}
	}
	return true
}

// fieldLess compares two records by one field: instants as instants, numbers
// numerically, everything else as case-sensitive strings. Records missing the
// field order first ascending and last descending, keeping their relative
// order (the sort is stable).
func fieldLess(a, b telemetry.Record, field string) bool {
	av, aok := a.Field(field)
	bv, bok := b.Field(field)
	if !aok || !bok {
		return !aok && bok
	}
	switch left := av.(type) {
	case time.Time:
		if right, ok := bv.(time.Time); ok {
			return left.Before(right)
		}
	case float64:
		if right, ok := bv.(float64); ok {
			return left < right
		}
	}
	return fieldString(av) < fieldString(bv)
}

func fieldString(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case time.Time:
		return v.UTC().Format(time.RFC3339Nano)
	default:
		return fmt.Sprintf("%v", v)
	}
}
