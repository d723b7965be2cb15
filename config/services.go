package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ServiceMode represents the available service modes.
type ServiceMode string

const (
	// ServiceModeHTTP runs the JSON API.
	ServiceModeHTTP ServiceMode = "http"
	// ServiceModeAnalysisWorker runs the analysis queue worker.
	ServiceModeAnalysisWorker ServiceMode = "analysis-worker"
	// ServiceModeDeliveryRunner polls and attempts due webhook deliveries.
	ServiceModeDeliveryRunner ServiceMode = "delivery-runner"
	// ServiceModeReaper runs retention sweeps.
	ServiceModeReaper ServiceMode = "reaper"
)

// ValidServiceModes returns all valid service mode names.
func ValidServiceModes() []ServiceMode {
	return []ServiceMode{
		ServiceModeHTTP,
		ServiceModeAnalysisWorker,
		ServiceModeDeliveryRunner,
		ServiceModeReaper,
	}
}

// ParseServices parses a comma-delimited string of service names and returns the enabled services.
// It validates that all service names are valid and returns an error if any are invalid.
func ParseServices(servicesStr string) (map[ServiceMode]bool, error) {
	services := make(map[ServiceMode]bool)

	if servicesStr == "" {
		return services, errors.New("at least one service must be specified")
	}

	for part := range strings.SplitSeq(servicesStr, ",") {
		serviceName := strings.TrimSpace(part)
		if serviceName == "" {
			continue
		}

		mode := ServiceMode(serviceName)
		switch mode {
		case ServiceModeHTTP,
			ServiceModeAnalysisWorker,
			ServiceModeDeliveryRunner,
			ServiceModeReaper:
			services[mode] = true
		default:
			return nil, fmt.Errorf(
				"invalid service name: %q (valid options: http, analysis-worker, delivery-runner, reaper)",
				serviceName,
			)
		}
	}

	if len(services) == 0 {
		return nil, errors.New("at least one valid service must be specified")
	}

	return services, nil
}

// AnalysisConfig controls submission behaviour of the analysis queue.
type AnalysisConfig struct {
	// EstimatedCredits is echoed back on submission; billing happens elsewhere.
	EstimatedCredits int `env:"ANALYSIS_ESTIMATED_CREDITS" envDefault:"10"`

	// EstimatedJobDuration is the fixed per-job duration used for queue ETAs.
	EstimatedJobDuration time.Duration `env:"ANALYSIS_ESTIMATED_JOB_DURATION" envDefault:"2m"`

	// IdempotencyTTL is how long an Idempotency-Key maps to its job.
	IdempotencyTTL time.Duration `env:"ANALYSIS_IDEMPOTENCY_TTL" envDefault:"24h"`
}

// Sanitize applies guardrails to analysis configuration values.
func (a *AnalysisConfig) Sanitize() {
	if a.EstimatedCredits < 0 {
		a.EstimatedCredits = 0
	}
	if a.EstimatedJobDuration < time.Second {
		a.EstimatedJobDuration = time.Second
	}
	if a.IdempotencyTTL < time.Minute {
		a.IdempotencyTTL = time.Minute
	}
}

// AnalysisWorkerConfig contains analysis worker configuration.
type AnalysisWorkerConfig struct {
	// Concurrency is the number of worker goroutines.
	Concurrency int `env:"ANALYSIS_WORKER_CONCURRENCY" envDefault:"1"`

	// PollInterval is the fallback poll when no notification arrives.
	PollInterval time.Duration `env:"ANALYSIS_WORKER_POLL_INTERVAL" envDefault:"5s"`

	// JobTimeout bounds validator plus analyzer time for a single job.
	JobTimeout time.Duration `env:"ANALYSIS_WORKER_JOB_TIMEOUT" envDefault:"10m"`
}

// Sanitize applies guardrails to analysis worker configuration values.
func (a *AnalysisWorkerConfig) Sanitize() {
	if a.Concurrency < 1 {
		a.Concurrency = 1
	}
	if a.PollInterval < 100*time.Millisecond {
		a.PollInterval = 100 * time.Millisecond
	}
	if a.JobTimeout < time.Second {
		a.JobTimeout = time.Second
	}
}

// DeliveryConfig contains webhook delivery configuration.
type DeliveryConfig struct {
	// PollInterval is how often the runner looks for due deliveries.
	PollInterval time.Duration `env:"DELIVERY_POLL_INTERVAL" envDefault:"1s"`

	// Concurrency bounds in-flight HTTP attempts per runner.
	Concurrency int `env:"DELIVERY_CONCURRENCY" envDefault:"8"`

	// BatchSize is the maximum number of deliveries handled per poll. They are
	// claimed Concurrency at a time, so one lease only has to cover one attempt.
	BatchSize int `env:"DELIVERY_BATCH_SIZE" envDefault:"32"`

	// Lease is how long a claimed delivery is hidden from other runners.
	Lease time.Duration `env:"DELIVERY_LEASE" envDefault:"1m"`

	// Timeout is the hard per-attempt HTTP timeout.
	Timeout time.Duration `env:"DELIVERY_TIMEOUT" envDefault:"30s"`

	// UserAgent is sent on every webhook POST.
	UserAgent string `env:"DELIVERY_USER_AGENT" envDefault:"mmk-analysis-webhooks/1.0"`
}

// Sanitize applies guardrails to delivery configuration values.
func (d *DeliveryConfig) Sanitize() {
	if d.PollInterval < 100*time.Millisecond {
		d.PollInterval = 100 * time.Millisecond
	}
	if d.Concurrency < 1 {
		d.Concurrency = 1
	}
	if d.BatchSize < 1 {
		d.BatchSize = 1
	}
	if d.Timeout <= 0 || d.Timeout > 30*time.Second {
		d.Timeout = 30 * time.Second
	}
	// The lease must outlive an attempt or a slow endpoint gets a second POST.
	if d.Lease < d.Timeout+5*time.Second {
		d.Lease = d.Timeout + 5*time.Second
	}
	d.UserAgent = strings.TrimSpace(d.UserAgent)
	if d.UserAgent == "" {
		d.UserAgent = "mmk-analysis-webhooks/1.0"
	}
}

// RetryConfig controls explicit retry of failed analyses.
type RetryConfig struct {
	MaxRetries int           `env:"RETRY_MAX_RETRIES" envDefault:"3"`
	BaseDelay  time.Duration `env:"RETRY_BASE_DELAY"  envDefault:"1m"`
	MaxDelay   time.Duration `env:"RETRY_MAX_DELAY"   envDefault:"1h"`
}

// Sanitize applies guardrails to retry configuration values.
func (r *RetryConfig) Sanitize() {
	if r.MaxRetries < 0 {
		r.MaxRetries = 0
	}
	if r.BaseDelay <= 0 {
		r.BaseDelay = time.Minute
	}
	if r.MaxDelay < r.BaseDelay {
		r.MaxDelay = r.BaseDelay
	}
}

// ReaperConfig contains retention service configuration.
type ReaperConfig struct {
	// Interval is the reaper tick interval.
	Interval time.Duration `env:"REAPER_INTERVAL" envDefault:"5m"`

	// ProcessingTimeout fails jobs stuck in processing, e.g. after a worker crash.
	ProcessingTimeout time.Duration `env:"REAPER_PROCESSING_TIMEOUT" envDefault:"15m"`

	CompletedJobTTL   time.Duration `env:"REAPER_COMPLETED_JOB_TTL"   envDefault:"720h"`
	FailedJobTTL      time.Duration `env:"REAPER_FAILED_JOB_TTL"      envDefault:"720h"`
	DeliveredTTL      time.Duration `env:"REAPER_DELIVERED_TTL"       envDefault:"168h"`
	FailedDeliveryTTL time.Duration `env:"REAPER_FAILED_DELIVERY_TTL" envDefault:"720h"`

	// BatchSize is the maximum number of rows to process per operation.
	// Batching prevents long locks and I/O spikes on large tables.
	BatchSize int `env:"REAPER_BATCH_SIZE" envDefault:"1000"`
}

// Sanitize applies guardrails to reaper configuration values.
func (r *ReaperConfig) Sanitize() {
	// Enforce minimum intervals to prevent excessive database load
	if r.Interval < 1*time.Minute {
		r.Interval = 1 * time.Minute
	}
	if r.ProcessingTimeout < 5*time.Minute {
		r.ProcessingTimeout = 5 * time.Minute
	}
	for _, ttl := range []*time.Duration{&r.CompletedJobTTL, &r.FailedJobTTL, &r.DeliveredTTL, &r.FailedDeliveryTTL} {
		if *ttl < time.Hour {
			*ttl = time.Hour
		}
	}

	if r.BatchSize < 1 {
		r.BatchSize = 1
	}
	if r.BatchSize > 10000 {
		r.BatchSize = 10000
	}
}
