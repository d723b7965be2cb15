package repovalidator

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	gitlab "gitlab.com/gitlab-org/api/client-go"

	"github.com/target/mmk-analysis-api/internal/domain/model"
)

// GitLabOptions configures a GitLab provider.
type GitLabOptions struct {
	Token string
	// BaseURL is the instance root, e.g. https://gitlab.com.
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// GitLab validates projects through the GitLab v4 API. Nested groups are supported.
type GitLab struct {
	client *gitlab.Client
}

// NewGitLab builds a GitLab provider.
func NewGitLab(opts GitLabOptions) (*GitLab, error) {
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: opts.Timeout}
	}
	base := strings.TrimSuffix(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		base = "https://gitlab.com"
	}

	// The worker owns retries; the client must surface the first failure.
	client, err := gitlab.NewClient(opts.Token,
		gitlab.WithBaseURL(base+"/api/v4"),
		gitlab.WithHTTPClient(hc),
		gitlab.WithoutRetries(),
	)
	if err != nil {
		return nil, fmt.Errorf("gitlab client: %w", err)
	}
	return &GitLab{client: client}, nil
}

func (g *GitLab) Name() string { return "GitLab" }

// Validate confirms the project is public and resolves the branch head.
func (g *GitLab) Validate(ctx context.Context, ref model.RepositoryRef, branch *string) (*model.RepositoryMetadata, error) {
	pid := ref.FullPath()
	project, resp, err := g.client.Projects.GetProject(pid, nil, gitlab.WithContext(ctx))
	if err != nil {
		return nil, g.classify(ctx, describe(ref, ""), resp, err)
	}
	if project.Visibility != gitlab.PublicVisibility {
		return nil, privateRepository(g.Name(), ref)
	}

	name := branchOrDefault(branch, project.DefaultBranch)
	meta := &model.RepositoryMetadata{
		FullName:      project.PathWithNamespace,
		DefaultBranch: project.DefaultBranch,
	}
	if name == "" {
		return meta, nil
	}

	b, resp, err := g.client.Branches.GetBranch(pid, name, gitlab.WithContext(ctx))
	if err != nil {
		return nil, g.classify(ctx, describe(ref, name), resp, err)
	}
	if b.Commit != nil {
		meta.CommitSHA = b.Commit.ID
	}
	return meta, nil
}

func (g *GitLab) classify(ctx context.Context, what string, resp *gitlab.Response, err error) error {
	status := 0
	var header http.Header
	if resp != nil && resp.Response != nil {
		status = resp.StatusCode
		header = resp.Header
	}
	return classifyResponse(ctx, g.Name(), what, status, header, err)
}
