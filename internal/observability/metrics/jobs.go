// Package metrics emits the service's StatsD metrics with consistent tags.
package metrics

import (
	"time"

	obserrors "github.com/target/mmk-analysis-api/internal/observability/errors"
	"github.com/target/mmk-analysis-api/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultNoop    = "noop"
)

// JobMetric captures details about an analysis job transition.
type JobMetric struct {
	Transition string
	Result     string
	Duration   time.Duration
	Err        error
}

// EmitJobLifecycle emits analysis job lifecycle metrics.
func EmitJobLifecycle(sink statsd.Sink, in JobMetric) {
	if sink == nil {
		return
	}

	tags := map[string]string{
		"transition": in.Transition,
		"result":     in.Result,
	}

	if in.Err != nil && in.Result == ResultError {
		if class := obserrors.Classify(in.Err); class != "" {
			tags["error_class"] = class
		}
	}

	sink.Count("analysis.transition", 1, tags)

	if in.Duration > 0 {
		sink.Timing("analysis.duration", in.Duration, CloneTags(tags))
	}
}

// DeliveryMetric captures one webhook delivery attempt.
type DeliveryMetric struct {
	Event      string
	Status     string
	StatusCode int
	Duration   time.Duration
	Err        error
}

// EmitDeliveryAttempt emits webhook delivery attempt metrics.
func EmitDeliveryAttempt(sink statsd.Sink, in DeliveryMetric) {
	if sink == nil {
		return
	}

	tags := map[string]string{
		"event":  in.Event,
		"status": in.Status,
	}
	if in.StatusCode > 0 {
		tags["status_class"] = statusClass(in.StatusCode)
	}
	if in.Err != nil {
		if class := obserrors.Classify(in.Err); class != "" {
			tags["error_class"] = class
		}
	}

	sink.Count("webhook.delivery.attempt", 1, tags)
	if in.Duration > 0 {
		sink.Timing("webhook.delivery.duration", in.Duration, CloneTags(tags))
	}
}

func statusClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	case code >= 200:
		return "2xx"
	default:
		return "1xx"
	}
}

// CloneTags creates a shallow copy of a tag map, filtering out empty keys.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
