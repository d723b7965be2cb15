package repovalidator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/go-github/v55/github"
	"golang.org/x/oauth2"

	"github.com/target/mmk-analysis-api/internal/domain/model"
	apperrors "github.com/target/mmk-analysis-api/internal/errors"
)

// GitHubOptions configures a GitHub provider.
type GitHubOptions struct {
	Token string
	// BaseURL selects a GitHub Enterprise API; empty means api.github.com.
	BaseURL string
	Timeout time.Duration
	// HTTPClient overrides the transport. Token auth wraps it when Token is set.
	HTTPClient *http.Client
}

// GitHub validates repositories through the GitHub REST API.
type GitHub struct {
	client *github.Client
}

// NewGitHub builds a GitHub provider.
func NewGitHub(opts GitHubOptions) (*GitHub, error) {
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: opts.Timeout}
	}
	if opts.Token != "" {
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, hc)
		hc = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: opts.Token}))
		if opts.Timeout > 0 {
			hc.Timeout = opts.Timeout
		}
	}

	client := github.NewClient(hc)
	if base := strings.TrimSpace(opts.BaseURL); base != "" {
		var err error
		if client, err = client.WithEnterpriseURLs(base, base); err != nil {
			return nil, fmt.Errorf("github base url: %w", err)
		}
	}
	return &GitHub{client: client}, nil
}

func (g *GitHub) Name() string { return "GitHub" }

// Validate confirms the repository is public and resolves the branch head.
func (g *GitHub) Validate(ctx context.Context, ref model.RepositoryRef, branch *string) (*model.RepositoryMetadata, error) {
	// GitHub has no nested namespaces.
	if strings.Contains(ref.Owner, "/") {
		return nil, apperrors.Permanent(apperrors.KindInvalidRepositoryURL, nil,
			"%s is not a GitHub repository path", ref.FullPath())
	}

	repo, resp, err := g.client.Repositories.Get(ctx, ref.Owner, ref.Name)
	if err != nil {
		return nil, g.classify(ctx, describe(ref, ""), resp, err)
	}
	if repo.GetPrivate() {
		return nil, privateRepository(g.Name(), ref)
	}

	name := branchOrDefault(branch, repo.GetDefaultBranch())
	meta := &model.RepositoryMetadata{
		FullName:      repo.GetFullName(),
		DefaultBranch: repo.GetDefaultBranch(),
	}
	if name == "" {
		return meta, nil
	}

	sha, resp, err := g.client.Repositories.GetCommitSHA1(ctx, ref.Owner, ref.Name, name, "")
	if err != nil {
		// An unknown ref answers 422 rather than 404.
		if resp != nil && resp.StatusCode == http.StatusUnprocessableEntity {
			return nil, apperrors.Permanent(apperrors.KindRepoNotFound, nil, "%s not found on GitHub", describe(ref, name))
		}
		return nil, g.classify(ctx, describe(ref, name), resp, err)
	}
	meta.CommitSHA = sha
	return meta, nil
}

func (g *GitHub) classify(ctx context.Context, what string, resp *github.Response, err error) error {
	var rateErr *github.RateLimitError
	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &rateErr) || errors.As(err, &abuseErr) {
		return apperrors.Transient(apperrors.KindRateLimited, err, "GitHub rate limit exceeded")
	}

	status := 0
	var header http.Header
	if resp != nil && resp.Response != nil {
		status = resp.StatusCode
		header = resp.Header
	}
	return classifyResponse(ctx, g.Name(), what, status, header, err)
}
