package query

import (
	"context"
	"errors"
	"math"
	"sort"
	"time"

	telemetry "safewatch-cloud/internal/telemetry/domain"
)

// Granularity is the chart bucket width.
type Granularity string

const (
	GranularityHour   Granularity = "hour"
	GranularitySecond Granularity = "second"
)

// Valid returns true when the granularity is supported.
func (g Granularity) Valid() bool {
	return g == GranularityHour || g == GranularitySecond
}

// Window bounds a chart query. Sensors limits the plotted fields; when empty,
// every sensor type observed in range becomes a field.
type Window struct {
	From        time.Time
	To          time.Time
	Granularity Granularity
	Sensors     []telemetry.SensorType
}

// ChartBucket is one aggregated point of a chart series. A field with no
// samples in the bucket carries a nil value, never zero, so the UI can tell
// "no data" from "value 0".
type ChartBucket struct {
	Bucket time.Time           `json:"bucket"`
	Values map[string]*float64 `json:"values"`
}

// ChartSeries aggregates sensor samples into time buckets and averages each
// field per bucket, rounded to two decimals. The result is ordered ascending
// by bucket time; an empty range yields an empty slice, not an error.
func (e *Engine) ChartSeries(ctx context.Context, deviceID string, window Window) ([]ChartBucket, error) {
	if e == nil || e.store == nil {
		return nil, errors.New("query: nil engine")
	}
	if deviceID == "" {
		return nil, errors.New("query: device id required")
	}
	if !window.Granularity.Valid() {
		return nil, errors.New("query: invalid granularity")
	}
	to := window.To
	if to.IsZero() {
		to = time.Now().UTC()
	}
	from := window.From
	if from.IsZero() {
		from = to.Add(-e.defaultRange)
	}
	if !to.After(from) {
		return nil, errors.New("query: window end must be after start")
	}

	records, err := e.queryRange(ctx, telemetry.KindSensor, telemetry.RangeFilter{DeviceID: deviceID}, from, to)
	if err != nil {
		return nil, err
	}

	wanted := make(map[string]bool, len(window.Sensors))
	for _, sensor := range window.Sensors {
		wanted[string(sensor)] = true
	}

	type accumulator struct {
		sum   float64
		count int
	}
	buckets := make(map[time.Time]map[string]*accumulator)
	fields := make(map[string]bool)

	for _, record := range records {
		if record.Kind != telemetry.KindSensor || record.Sample == nil {
			continue
		}
		field := string(record.Sample.Sensor)
		if len(wanted) > 0 && !wanted[field] {
			continue
		}
		fields[field] = true
		key := truncate(record.Sample.TS, window.Granularity)
		group := buckets[key]
		if group == nil {
			group = make(map[string]*accumulator)
			buckets[key] = group
		}
		acc := group[field]
		if acc == nil {
			acc = &accumulator{}
			group[field] = acc
		}
		acc.sum += record.Sample.Value
		acc.count++
	}

	if len(buckets) == 0 {
		return []ChartBucket{}, nil
	}
	// Requested sensors always appear as fields, even when nothing was
	// sampled for them in the whole range.
	for field := range wanted {
		fields[field] = true
	}

	keys := make([]time.Time, 0, len(buckets))
	for key := range buckets {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Before(keys[j]) })

	series := make([]ChartBucket, 0, len(keys))
	for _, key := range keys {
		values := make(map[string]*float64, len(fields))
		for field := range fields {
			if acc, ok := buckets[key][field]; ok && acc.count > 0 {
				mean := round2(acc.sum / float64(acc.count))
				values[field] = &mean
			} else {
				values[field] = nil
			}
		}
		series = append(series, ChartBucket{Bucket: key, Values: values})
	}
	return series, nil
}

func truncate(ts time.Time, granularity Granularity) time.Time {
	switch granularity {
	case GranularityHour:
		return ts.UTC().Truncate(time.Hour)
	default:
		return ts.UTC().Truncate(time.Second)
	}
}

func round2(value float64) float64 {
	return math.Round(value*100) / 100
}
