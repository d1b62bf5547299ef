package core

import (
	"context"
	"sort"
	"strings"
	"time"
)

// operationObserver is embedded by every component that reports operation
// outcomes through the shared logger and metrics recorder.
type operationObserver struct {
	logger          Logger
	metricsRecorder MetricsRecorder
	metricPrefix    string
}

func (o *operationObserver) observeOperation(
	ctx context.Context,
	startedAt time.Time,
	operation string,
	err error,
	fields map[string]any,
) {
	if o == nil {
		return
	}
	operation = normalizeOperation(operation)
	if operation == "" {
		operation = "unknown"
	}
	status := "success"
	if err != nil {
		status = "failure"
	}

	contextFields := cloneFields(fields)
	contextFields["event_type"] = operation
	contextFields["status"] = status
	contextFields["duration_ms"] = time.Since(startedAt).Milliseconds()
	if err != nil {
		contextFields["error"] = err.Error()
		contextFields["error_kind"] = KindOf(err).String()
	}

	tags := operationMetricTags(operation, status, contextFields)
	elapsed := time.Since(startedAt).Milliseconds()
	o.recordCounter(ctx, operationMetricName(o.metricPrefix, operation, metricSuffixTotal), 1, tags)
	o.recordHistogram(ctx, operationMetricName(o.metricPrefix, operation, metricSuffixDuration), float64(elapsed), tags)

	if err != nil {
		o.logError(ctx, operation+" failed", contextFields)
		return
	}
	o.logInfo(ctx, operation+" succeeded", contextFields)
}

func (o *operationObserver) logInfo(ctx context.Context, message string, fields map[string]any) {
	o.logWithLevel(ctx, "info", message, fields)
}

func (o *operationObserver) logError(ctx context.Context, message string, fields map[string]any) {
	o.logWithLevel(ctx, "error", message, fields)
}

func (o *operationObserver) logWithLevel(ctx context.Context, level string, message string, fields map[string]any) {
	if o == nil || o.logger == nil {
		return
	}
	logger := o.logger
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	if fieldsLogger, ok := logger.(FieldsLogger); ok {
		logger = fieldsLogger.WithFields(cloneFields(fields))
	}
	args := flattenFields(fields)
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "error":
		logger.Error(message, args...)
	case "debug":
		logger.Debug(message, args...)
	default:
		logger.Info(message, args...)
	}
}

func (o *operationObserver) recordCounter(ctx context.Context, name string, value int64, tags map[string]string) {
	if o == nil || o.metricsRecorder == nil {
		return
	}
	o.metricsRecorder.IncCounter(ctx, strings.TrimSpace(name), value, cloneTags(tags))
}

func (o *operationObserver) recordHistogram(ctx context.Context, name string, value float64, tags map[string]string) {
	if o == nil || o.metricsRecorder == nil {
		return
	}
	o.metricsRecorder.ObserveHistogram(ctx, strings.TrimSpace(name), value, cloneTags(tags))
}

func cloneFields(fields map[string]any) map[string]any {
	if len(fields) == 0 {
		return map[string]any{}
	}
	copied := make(map[string]any, len(fields))
	for key, value := range fields {
		copied[key] = value
	}
	return copied
}

func flattenFields(fields map[string]any) []any {
	if len(fields) == 0 {
		return nil
	}
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	args := make([]any, 0, len(keys)*2)
	for _, key := range keys {
		args = append(args, key, fields[key])
	}
	return args
}

func normalizeOperation(operation string) string {
	operation = strings.TrimSpace(strings.ToLower(operation))
	operation = strings.ReplaceAll(operation, " ", "_")
	operation = strings.ReplaceAll(operation, "-", "_")
	return operation
}

// OperationObserver exposes the shared reporting path to packages built on
// top of core.
type OperationObserver struct {
	operationObserver
}

func NewOperationObserver(logger Logger, metricsRecorder MetricsRecorder, metricPrefix string) *OperationObserver {
	return &OperationObserver{operationObserver{
		logger:          logger,
		metricsRecorder: metricsRecorder,
		metricPrefix:    metricPrefix,
	}}
}

func (o *OperationObserver) ObserveOperation(ctx context.Context, startedAt time.Time, operation string, err error, fields map[string]any) {
	if o == nil {
		return
	}
	o.observeOperation(ctx, startedAt, operation, err, fields)
}

func (o *OperationObserver) Logger() Logger {
	if o == nil {
		return nil
	}
	return o.logger
}
