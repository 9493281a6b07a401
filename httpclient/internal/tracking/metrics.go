// Package tracking records OpenTelemetry metrics for API client calls.
package tracking

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	clientMeterName = "analyticbot/httpclient"

	metricRequestDuration = "http.client.request.duration"     // Histogram in seconds
	metricRetries         = "analyticbot.client.retries"        // Counter
	metricTokenRefreshes  = "analyticbot.client.token_refreshes" // Counter

	attrMethod       = "http.request.method"
	attrStatusCode   = "http.response.status_code"
	attrErrorType    = "error.type"
	attrEndpoint     = "analyticbot.endpoint.group"
	attrRetryReason  = "analyticbot.retry.reason"
	attrTrigger      = "analyticbot.refresh.trigger"
	attrOutcome      = "analyticbot.refresh.outcome"
	outcomeSuccess   = "success"
	outcomeFailure   = "failure"
	TriggerProactive = "proactive"
	TriggerReactive  = "reactive"
)

var (
	clientMeter   metric.Meter
	meterOnce     sync.Once
	meterInitMu   sync.Mutex
	metricsInited bool

	requestDuration metric.Float64Histogram
	retryCounter    metric.Int64Counter
	refreshCounter  metric.Int64Counter
)

func logMetricError(metricName string, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "WARNING: Failed to initialize client metric %s: %v\n", metricName, err)
	}
}

func initClientMeter() {
	meterInitMu.Lock()
	defer meterInitMu.Unlock()

	if clientMeter != nil {
		return
	}

	clientMeter = otel.Meter(clientMeterName)

	var err error
	requestDuration, err = clientMeter.Float64Histogram(
		metricRequestDuration,
		metric.WithDescription("Duration of a single API request attempt"),
		metric.WithUnit("s"),
	)
	logMetricError(metricRequestDuration, err)

	retryCounter, err = clientMeter.Int64Counter(
		metricRetries,
		metric.WithDescription("Number of retried API request attempts"),
		metric.WithUnit("{retry}"),
	)
	logMetricError(metricRetries, err)

	refreshCounter, err = clientMeter.Int64Counter(
		metricTokenRefreshes,
		metric.WithDescription("Number of access token refreshes started by the client"),
		metric.WithUnit("{refresh}"),
	)
	logMetricError(metricTokenRefreshes, err)

	metricsInited = true
}

func ensureMeterInitialized() {
	meterOnce.Do(initClientMeter)
}

// RecordAttempt records one request attempt. status is 0 when no response
// arrived; errorType is empty for successful attempts.
func RecordAttempt(ctx context.Context, method, endpointGroup string, status int, errorType string, duration time.Duration) {
	ensureMeterInitialized()
	if requestDuration == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrMethod, method),
		attribute.String(attrEndpoint, endpointGroup),
	}
	if status > 0 {
		attrs = append(attrs, attribute.Int(attrStatusCode, status))
	}
	if errorType != "" {
		attrs = append(attrs, attribute.String(attrErrorType, errorType))
	}
	requestDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordRetry counts a retry scheduled after a failed attempt.
func RecordRetry(ctx context.Context, method, endpointGroup, reason string) {
	ensureMeterInitialized()
	if retryCounter == nil {
		return
	}
	retryCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrMethod, method),
		attribute.String(attrEndpoint, endpointGroup),
		attribute.String(attrRetryReason, reason),
	))
}

// RecordRefresh counts a token refresh by trigger and outcome.
func RecordRefresh(ctx context.Context, trigger string, err error) {
	ensureMeterInitialized()
	if refreshCounter == nil {
		return
	}
	outcome := outcomeSuccess
	if err != nil {
		outcome = outcomeFailure
	}
	refreshCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrTrigger, trigger),
		attribute.String(attrOutcome, outcome),
	))
}

// IsInitialized returns true if client metrics have been initialized.
func IsInitialized() bool {
	meterInitMu.Lock()
	defer meterInitMu.Unlock()
	return metricsInited
}

// ResetForTesting resets the metric state for testing purposes.
func ResetForTesting() {
	meterInitMu.Lock()
	defer meterInitMu.Unlock()

	clientMeter = nil
	requestDuration = nil
	retryCounter = nil
	refreshCounter = nil
	metricsInited = false
	meterOnce = sync.Once{}
}
