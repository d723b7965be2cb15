// Package repovalidator checks that a submitted repository exists and is
// public before it is analyzed. Providers are chosen by registrable domain.
package repovalidator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/target/mmk-analysis-api/internal/core"
	"github.com/target/mmk-analysis-api/internal/domain/model"
	apperrors "github.com/target/mmk-analysis-api/internal/errors"
)

// Provider validates repositories hosted by one service.
type Provider interface {
	Name() string
	Validate(ctx context.Context, ref model.RepositoryRef, branch *string) (*model.RepositoryMetadata, error)
}

// Options configures the Router.
type Options struct {
	GitHub        Provider
	GitHubDomains []string
	GitLab        Provider
	GitLabDomains []string
	Logger        *slog.Logger
}

// Router dispatches validation to the provider serving the repository's domain.
type Router struct {
	byDomain map[string]Provider
	logger   *slog.Logger
}

var _ core.RepositoryValidator = (*Router)(nil)

// NewRouter builds a Router. At least one provider with a domain is required.
func NewRouter(opts Options) (*Router, error) {
	byDomain := make(map[string]Provider)
	register := func(p Provider, domains []string) {
		if p == nil {
			return
		}
		for _, d := range domains {
			if d = strings.ToLower(strings.TrimSpace(d)); d != "" {
				byDomain[d] = p
			}
		}
	}
	register(opts.GitHub, opts.GitHubDomains)
	register(opts.GitLab, opts.GitLabDomains)
	if len(byDomain) == 0 {
		return nil, errors.New("at least one repository provider is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{byDomain: byDomain, logger: logger.With("component", "repository_validator")}, nil
}

// Validate implements core.RepositoryValidator.
func (r *Router) Validate(ctx context.Context, ref model.RepositoryRef, branch *string) (*model.RepositoryMetadata, error) {
	p, ok := r.byDomain[ref.Domain]
	if !ok {
		return nil, apperrors.Permanent(apperrors.KindUnsupportedProvider, nil,
			"repository host %s is not supported", ref.Host)
	}

	meta, err := p.Validate(ctx, ref, branch)
	if err != nil {
		r.logger.DebugContext(ctx, "repository validation failed",
			"provider", p.Name(), "repository", ref.FullPath(), "error", err)
		return nil, err
	}
	return meta, nil
}

// classifyResponse tags a provider API failure. status is 0 when no response arrived.
func classifyResponse(ctx context.Context, provider, what string, status int, header http.Header, err error) error {
	switch {
	case status == http.StatusNotFound:
		return apperrors.Permanent(apperrors.KindRepoNotFound, nil, "%s not found on %s", what, provider)
	case status == http.StatusTooManyRequests || (status == http.StatusForbidden && rateLimitExhausted(header)):
		return apperrors.Transient(apperrors.KindRateLimited, err, "%s rate limit exceeded", provider)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return apperrors.Permanent(apperrors.KindRepoAccessDenied, nil, "access to %s denied by %s", what, provider)
	case status >= 500:
		return apperrors.Transient(apperrors.KindProviderError, err, "%s returned status %d", provider, status)
	case status != 0:
		return apperrors.Permanent(apperrors.KindProviderError, err, "%s returned status %d", provider, status)
	}

	// No response: the caller's deadline or shutdown speaks for itself.
	if ctx.Err() != nil {
		return err
	}
	return apperrors.Transient(apperrors.KindNetworkError, err, "network error contacting %s", provider)
}

func rateLimitExhausted(h http.Header) bool {
	if h == nil {
		return false
	}
	for _, key := range []string{"X-RateLimit-Remaining", "RateLimit-Remaining"} {
		if v := h.Get(key); v != "" {
			n, err := strconv.Atoi(v)
			return err == nil && n == 0
		}
	}
	return false
}

func privateRepository(provider string, ref model.RepositoryRef) error {
	return apperrors.Permanent(apperrors.KindRepoAccessDenied, nil,
		"repository %s on %s is private", ref.FullPath(), provider)
}

func branchOrDefault(branch *string, def string) string {
	if branch != nil && *branch != "" {
		return *branch
	}
	return def
}

func describe(ref model.RepositoryRef, branch string) string {
	if branch == "" {
		return fmt.Sprintf("repository %s", ref.FullPath())
	}
	return fmt.Sprintf("branch %s of repository %s", branch, ref.FullPath())
}
