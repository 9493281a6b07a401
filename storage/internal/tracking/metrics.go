// Package tracking records OpenTelemetry metrics for storage backends.
package tracking

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	storageMeterName = "analyticbot/storage"

	metricOperationDuration = "storage.operation.duration" // Histogram in seconds
	metricLookupMiss        = "storage.lookup.miss"        // Counter

	attrBackend   = "storage.backend"
	attrOperation = "storage.operation"
	attrErrorType = "error.type"
)

// Operation names
const (
	OpGet    = "get"
	OpSet    = "set"
	OpDelete = "delete"
	OpHealth = "ping"
)

var (
	storageMeter  metric.Meter
	meterOnce     sync.Once
	meterInitMu   sync.Mutex
	metricsInited bool

	operationDuration metric.Float64Histogram
	missCounter       metric.Int64Counter
)

func logMetricError(metricName string, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "WARNING: Failed to initialize storage metric %s: %v\n", metricName, err)
	}
}

func initStorageMeter() {
	meterInitMu.Lock()
	defer meterInitMu.Unlock()

	if storageMeter != nil {
		return
	}

	storageMeter = otel.Meter(storageMeterName)

	var err error
	operationDuration, err = storageMeter.Float64Histogram(
		metricOperationDuration,
		metric.WithDescription("Duration of storage backend operations"),
		metric.WithUnit("s"),
	)
	logMetricError(metricOperationDuration, err)

	missCounter, err = storageMeter.Int64Counter(
		metricLookupMiss,
		metric.WithDescription("Number of lookups for missing keys"),
		metric.WithUnit("{miss}"),
	)
	logMetricError(metricLookupMiss, err)

	metricsInited = true
}

func ensureMeterInitialized() {
	meterOnce.Do(initStorageMeter)
}

// RecordOperation records one backend operation. A miss is a Get for a
// missing key; it is counted separately and not reported as an error.
func RecordOperation(ctx context.Context, backend, operation string, duration time.Duration, miss bool, err error) {
	ensureMeterInitialized()

	attrs := []attribute.KeyValue{
		attribute.String(attrBackend, backend),
		attribute.String(attrOperation, operation),
	}
	if err != nil {
		attrs = append(attrs, attribute.String(attrErrorType, classifyError(err)))
	}

	if operationDuration != nil {
		operationDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	}
	if miss && missCounter != nil {
		missCounter.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

func classifyError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "connection"), strings.Contains(msg, "connect:"):
		return "connection_error"
	case strings.Contains(msg, "timeout"):
		return "timeout"
	case strings.Contains(msg, "closed"):
		return "closed"
	default:
		return "error"
	}
}

// IsInitialized returns true if storage metrics have been initialized.
func IsInitialized() bool {
	meterInitMu.Lock()
	defer meterInitMu.Unlock()
	return metricsInited
}

// ResetForTesting resets the metric state for testing purposes.
func ResetForTesting() {
	meterInitMu.Lock()
	defer meterInitMu.Unlock()

	storageMeter = nil
	operationDuration = nil
	missCounter = nil
	metricsInited = false
	meterOnce = sync.Once{}
}
