package core

import (
	"context"
	"fmt"
	"maps"
	"strings"
)

// Operation metrics are named <prefix>.<operation>.<suffix>.
const (
	defaultMetricPrefix  = "accounts"
	metricSuffixTotal    = "total"
	metricSuffixDuration = "duration_ms"
)

// metricTagKeys are the operation fields promoted to metric tags. Anything
// else stays in the log line only.
var metricTagKeys = []string{"scope_key", "client_id", "key_id", "error_kind"}

type NopMetricsRecorder struct{}

func (NopMetricsRecorder) IncCounter(context.Context, string, int64, map[string]string) {}

func (NopMetricsRecorder) ObserveHistogram(context.Context, string, float64, map[string]string) {}

func operationMetricName(prefix, operation, suffix string) string {
	prefix = strings.Trim(strings.TrimSpace(prefix), ".")
	if prefix == "" {
		prefix = defaultMetricPrefix
	}
	return prefix + "." + operation + "." + suffix
}

func operationMetricTags(operation, status string, fields map[string]any) map[string]string {
	tags := map[string]string{
		"operation": operation,
		"status":    status,
	}
	for _, key := range metricTagKeys {
		raw, ok := fields[key]
		if !ok || raw == nil {
			continue
		}
		if value := strings.TrimSpace(fmt.Sprint(raw)); value != "" {
			tags[key] = value
		}
	}
	return tags
}

func cloneTags(tags map[string]string) map[string]string {
	if len(tags) == 0 {
		return map[string]string{}
	}
	return maps.Clone(tags)
}

var _ MetricsRecorder = NopMetricsRecorder{}
