package bootstrap

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/target/mmk-analysis-api/config"
	"github.com/target/mmk-analysis-api/internal/adapters/analyzer"
	redisadapter "github.com/target/mmk-analysis-api/internal/adapters/redis"
	"github.com/target/mmk-analysis-api/internal/adapters/repovalidator"
	"github.com/target/mmk-analysis-api/internal/core"
	"github.com/target/mmk-analysis-api/internal/data"
	"github.com/target/mmk-analysis-api/internal/domain/queue"
	"github.com/target/mmk-analysis-api/internal/observability/statsd"
	"github.com/target/mmk-analysis-api/internal/service"
)

// ServiceContainer holds all application services.
type ServiceContainer struct {
	Analyses   *service.AnalysisQueueService
	Retry      *service.RetryService
	Webhooks   *service.WebhookService
	Deliveries *service.DeliveryDispatcher
	Retention  core.RetentionRepository
	// Notifier feeds LISTEN/NOTIFY wake-ups to the analysis worker and the
	// delivery runner. Nil in processes that run neither.
	Notifier      queue.Notifier
	Observability ObservabilityContainer
}

// ObservabilityContainer groups shared observability dependencies.
type ObservabilityContainer struct {
	MetricsSink   *statsd.Client
	MetricsConfig config.ObservabilityMetricsConfig
}

// Sink returns the metrics sink, or nil when metrics are disabled. The nil
// check keeps a typed-nil *statsd.Client out of the statsd.Sink interface.
//
//nolint:ireturn // services accept the Sink interface.
func (o ObservabilityContainer) Sink() statsd.Sink {
	if o.MetricsSink == nil {
		return nil
	}
	return o.MetricsSink
}

// ServiceDeps groups dependencies for service initialization.
type ServiceDeps struct {
	Config      *config.AppConfig
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

// serviceRepositories groups data adapters backing service ports.
type serviceRepositories struct {
	Jobs        *data.AnalysisJobRepo
	Webhooks    *data.WebhookRepo
	Deliveries  *data.DeliveryRepo
	Retention   *data.RetentionRepo
	Idempotency core.IdempotencyStore
}

// buildObservability configures the metrics sink. A statsd dial failure is
// logged and leaves metrics disabled. Every metric carries the roles this
// process runs so split worker and API deployments can be told apart.
func buildObservability(logger *slog.Logger, cfg config.ObservabilityConfig, roles []string) ObservabilityContainer {
	obs := ObservabilityContainer{MetricsConfig: cfg.Metrics}
	if !cfg.Metrics.IsEnabled() {
		return obs
	}

	client, err := statsd.NewClient(statsd.Config{
		Enabled: true,
		Address: cfg.Metrics.StatsdAddress,
		Prefix:  cfg.Metrics.Prefix,
		Logger:  logger,
		Tags:    map[string]string{"roles": strings.Join(roles, "+")},
	})
	if err != nil {
		logger.Error("failed to initialise statsd client", "error", err)
		return obs
	}
	if client.Enabled() {
		logger.Info("statsd metrics enabled", "address", cfg.Metrics.StatsdAddress, "roles", roles)
	}
	obs.MetricsSink = client
	return obs
}

// buildRepositories builds repositories backing service ports; no business rules here.
func buildRepositories(db *sql.DB, rdb redis.UniversalClient, logger *slog.Logger) *serviceRepositories {
	repoCfg := data.RepoConfig{Logger: logger}
	repos := &serviceRepositories{
		Jobs:       data.NewAnalysisJobRepo(db, repoCfg),
		Webhooks:   data.NewWebhookRepo(db, repoCfg),
		Deliveries: data.NewDeliveryRepo(db, repoCfg),
		Retention:  data.NewRetentionRepo(db, repoCfg),
	}
	if rdb != nil {
		repos.Idempotency = redisadapter.NewIdempotencyStore(rdb)
	}
	return repos
}

// BuildRepositoryValidator wires the GitHub and GitLab providers behind a domain router.
func BuildRepositoryValidator(cfg config.RepositoryProviderConfig, logger *slog.Logger) (*repovalidator.Router, error) {
	gh, err := repovalidator.NewGitHub(repovalidator.GitHubOptions{
		Token:   cfg.GitHubToken,
		BaseURL: cfg.GitHubBaseURL,
		Timeout: cfg.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("github provider: %w", err)
	}

	gl, err := repovalidator.NewGitLab(repovalidator.GitLabOptions{
		Token:   cfg.GitLabToken,
		BaseURL: cfg.GitLabBaseURL,
		Timeout: cfg.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("gitlab provider: %w", err)
	}

	return repovalidator.NewRouter(repovalidator.Options{
		GitHub:        gh,
		GitHubDomains: cfg.GitHubDomains,
		GitLab:        gl,
		GitLabDomains: cfg.GitLabDomains,
		Logger:        logger,
	})
}

func newDeliveryDispatcher(repos *serviceRepositories, cfg config.DeliveryConfig, deps serviceBuildDeps) *service.DeliveryDispatcher {
	return service.MustNewDeliveryDispatcher(service.DeliveryDispatcherOptions{
		Webhooks:   repos.Webhooks,
		Deliveries: repos.Deliveries,
		Config: service.DeliveryDispatcherConfig{
			Timeout:     cfg.Timeout,
			UserAgent:   cfg.UserAgent,
			Concurrency: cfg.Concurrency,
			Lease:       cfg.Lease,
		},
		Logger:  deps.logger,
		Metrics: deps.metrics,
	})
}

func newRetryService(repo core.AnalysisJobRepository, cfg config.RetryConfig, deps serviceBuildDeps) *service.RetryService {
	return service.MustNewRetryService(service.RetryServiceOptions{
		Repo: repo,
		Config: service.RetryPolicy{
			MaxRetries: cfg.MaxRetries,
			BaseDelay:  cfg.BaseDelay,
			MaxDelay:   cfg.MaxDelay,
		},
		Logger:  deps.logger,
		Metrics: deps.metrics,
	})
}

// newNotifier is only built in processes that run a queue consumer. One
// waiter serves both the analysis and delivery channels.
func newNotifier(repos *serviceRepositories, cfg *config.AppConfig) (queue.Notifier, error) {
	if !cfg.IsAnalysisWorkerEnabled() && !cfg.IsDeliveryRunnerEnabled() {
		return nil, nil
	}
	n, err := queue.NewNotifier(queue.NotifierOptions{
		Waiter:     repos.Jobs,
		WaitWindow: cfg.AnalysisWorker.PollInterval,
	})
	if err != nil {
		return nil, fmt.Errorf("analysis notifier: %w", err)
	}
	return n, nil
}

type serviceBuildDeps struct {
	logger  *slog.Logger
	metrics statsd.Sink
}

// NewServices wires repositories, providers, and services from configuration.
func NewServices(deps *ServiceDeps) (ServiceContainer, error) {
	if deps == nil || deps.Config == nil || deps.DB == nil {
		return ServiceContainer{}, errors.New("config and database are required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := deps.Config

	obs := buildObservability(logger, cfg.Observability, GetEnabledServices(cfg))
	build := serviceBuildDeps{logger: logger, metrics: obs.Sink()}
	repos := buildRepositories(deps.DB, deps.RedisClient, logger)

	validator, err := BuildRepositoryValidator(cfg.Repository, logger)
	if err != nil {
		return ServiceContainer{}, err
	}
	analyzerClient, err := analyzer.NewClient(analyzer.Config{
		URL:     cfg.Analyzer.URL,
		Token:   cfg.Analyzer.Token,
		Timeout: cfg.Analyzer.Timeout,
		Logger:  logger,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("analyzer client: %w", err)
	}
	notifier, err := newNotifier(repos, cfg)
	if err != nil {
		return ServiceContainer{}, err
	}

	dispatcher := newDeliveryDispatcher(repos, cfg.Delivery, build)

	analyses := service.MustNewAnalysisQueueService(service.AnalysisQueueServiceOptions{
		Repo: repos.Jobs,
		Config: service.AnalysisQueueConfig{
			EstimatedCredits:     cfg.Analysis.EstimatedCredits,
			EstimatedJobDuration: cfg.Analysis.EstimatedJobDuration,
			IdempotencyTTL:       cfg.Analysis.IdempotencyTTL,
			JobTimeout:           cfg.AnalysisWorker.JobTimeout,
		},
		Validator:   validator,
		Analyzer:    analyzerClient,
		Events:      dispatcher,
		Idempotency: repos.Idempotency,
		Notifier:    notifier,
		Logger:      logger,
		Metrics:     build.metrics,
	})

	return ServiceContainer{
		Analyses:      analyses,
		Retry:         newRetryService(repos.Jobs, cfg.Retry, build),
		Webhooks:      service.NewWebhookService(service.WebhookServiceOptions{Repo: repos.Webhooks, Logger: logger}),
		Deliveries:    dispatcher,
		Retention:     repos.Retention,
		Notifier:      notifier,
		Observability: obs,
	}, nil
}
