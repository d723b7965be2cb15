package config

import (
	"strings"
	"time"
)

// RepositoryProviderConfig configures the repository hosts used to validate submissions.
type RepositoryProviderConfig struct {
	// GitHubToken is optional; anonymous calls are heavily rate limited.
	GitHubToken string `env:"GITHUB_TOKEN"`
	// GitHubBaseURL points at a GitHub Enterprise API, e.g. https://ghe.example.com/api/v3/.
	GitHubBaseURL string `env:"GITHUB_BASE_URL"`
	// GitHubDomains are registrable domains served by the GitHub client.
	GitHubDomains []string `env:"GITHUB_DOMAINS" envDefault:"github.com"`

	GitLabToken   string   `env:"GITLAB_TOKEN"`
	GitLabBaseURL string   `env:"GITLAB_BASE_URL" envDefault:"https://gitlab.com"`
	GitLabDomains []string `env:"GITLAB_DOMAINS"  envDefault:"gitlab.com"`

	// Timeout bounds a single provider API call.
	Timeout time.Duration `env:"REPOSITORY_PROVIDER_TIMEOUT" envDefault:"15s"`
}

// Sanitize lower-cases domains and applies a minimum timeout.
func (c *RepositoryProviderConfig) Sanitize() {
	c.GitHubToken = strings.TrimSpace(c.GitHubToken)
	c.GitLabToken = strings.TrimSpace(c.GitLabToken)
	c.GitHubBaseURL = strings.TrimSpace(c.GitHubBaseURL)
	c.GitLabBaseURL = strings.TrimSpace(c.GitLabBaseURL)
	c.GitHubDomains = normalizeDomains(c.GitHubDomains)
	c.GitLabDomains = normalizeDomains(c.GitLabDomains)
	if c.Timeout < time.Second {
		c.Timeout = time.Second
	}
}

// AnalyzerConfig configures the opaque analysis provider.
type AnalyzerConfig struct {
	URL     string        `env:"ANALYZER_URL"     envDefault:"http://localhost:9090/v1/analyze"`
	Token   string        `env:"ANALYZER_TOKEN"`
	Timeout time.Duration `env:"ANALYZER_TIMEOUT" envDefault:"5m"`
}

// Sanitize trims values and applies a minimum timeout.
func (c *AnalyzerConfig) Sanitize() {
	c.URL = strings.TrimSpace(c.URL)
	c.Token = strings.TrimSpace(c.Token)
	if c.Timeout < time.Second {
		c.Timeout = time.Second
	}
}

func normalizeDomains(in []string) []string {
	out := make([]string, 0, len(in))
	for _, d := range in {
		if d = strings.ToLower(strings.TrimSpace(d)); d != "" {
			out = append(out, d)
		}
	}
	return out
}
