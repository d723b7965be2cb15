package config

import (
	"os"
	"strings"
	"time"
)

// AppConfig is the main application configuration struct that composes
// domain-specific configuration from separate files.
//
// Configuration is loaded from environment variables using the
// github.com/caarlos0/env library. See individual domain config
// files for details on available environment variables:
//   - database.go: Database and Redis configuration
//   - http.go: HTTP server configuration
//   - services.go: Service mode, queue, delivery and reaper configuration
//   - providers.go: Repository host and analyzer configuration
type AppConfig struct {
	// IsDev enables text logging and other local conveniences.
	// Set DEV=true or APP_ENV=development for development mode.
	IsDev bool `env:"DEV" envDefault:"false"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Database configuration
	Postgres DBConfig    `envPrefix:"DB_"`
	Redis    RedisConfig `envPrefix:"REDIS_"`

	// HTTP server configuration
	HTTP HTTPConfig

	// Service mode configuration
	Services string `env:"SERVICES" envDefault:"http"`

	Analysis       AnalysisConfig
	AnalysisWorker AnalysisWorkerConfig
	Delivery       DeliveryConfig
	Retry          RetryConfig
	Reaper         ReaperConfig

	// External collaborators
	Repository RepositoryProviderConfig
	Analyzer   AnalyzerConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// staleProcessingMargin covers the final status write after a job times out.
const staleProcessingMargin = 5 * time.Minute

// Sanitize applies guardrails to configuration values loaded from env.
// This should be called after loading configuration from environment variables.
func (c *AppConfig) Sanitize() {
	c.HTTP.Sanitize()

	c.Analysis.Sanitize()
	c.AnalysisWorker.Sanitize()
	c.Delivery.Sanitize()
	c.Retry.Sanitize()
	c.Reaper.Sanitize()
	c.Repository.Sanitize()
	c.Analyzer.Sanitize()
	c.Observability.Sanitize()

	// The reaper must not fail a job its worker is still allowed to run.
	if minStale := c.AnalysisWorker.JobTimeout + staleProcessingMargin; c.Reaper.ProcessingTimeout < minStale {
		c.Reaper.ProcessingTimeout = minStale
	}

	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	c.detectDevMode()
}

// detectDevMode checks both DEV and APP_ENV environment variables.
func (c *AppConfig) detectDevMode() {
	if !c.IsDev {
		appEnv := strings.ToLower(os.Getenv("APP_ENV"))
		c.IsDev = appEnv == "development" || appEnv == "dev"
	}
}

// GetEnabledServices returns the enabled services based on the Services field.
func (c *AppConfig) GetEnabledServices() (map[ServiceMode]bool, error) {
	return ParseServices(c.Services)
}

func (c *AppConfig) isEnabled(mode ServiceMode) bool {
	services, err := c.GetEnabledServices()
	if err != nil {
		return false
	}
	return services[mode]
}

// IsHTTPServerEnabled returns true if the HTTP server service is enabled.
func (c *AppConfig) IsHTTPServerEnabled() bool { return c.isEnabled(ServiceModeHTTP) }

// IsAnalysisWorkerEnabled returns true if the analysis worker is enabled.
func (c *AppConfig) IsAnalysisWorkerEnabled() bool { return c.isEnabled(ServiceModeAnalysisWorker) }

// IsDeliveryRunnerEnabled returns true if the webhook delivery runner is enabled.
func (c *AppConfig) IsDeliveryRunnerEnabled() bool { return c.isEnabled(ServiceModeDeliveryRunner) }

// IsReaperEnabled returns true if the reaper service is enabled.
func (c *AppConfig) IsReaperEnabled() bool { return c.isEnabled(ServiceModeReaper) }
