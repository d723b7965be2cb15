package model

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
)

const maxRepositoryURLLen = 2048

// RepositoryRef is a parsed repository URL.
type RepositoryRef struct {
	// URL is the normalized repository URL (scheme://host/owner/name).
	URL string
	// Host is the lower-cased hostname without port.
	Host string
	// Domain is the registrable domain (eTLD+1) of Host, e.g. "github.com".
	Domain string
	// Owner is everything before the final path segment (GitLab groups may be nested).
	Owner string
	// Name is the repository name without a trailing ".git".
	Name string
}

// FullPath returns "owner/name".
func (r RepositoryRef) FullPath() string {
	return r.Owner + "/" + r.Name
}

// RepositoryMetadata is returned by a repository validator.
type RepositoryMetadata struct {
	FullName      string `json:"fullName"`
	DefaultBranch string `json:"defaultBranch"`
	CommitSHA     string `json:"commitSha,omitempty"`
	Private       bool   `json:"private"`
}

// ParseRepositoryURL validates and normalizes a repository URL. It requires an
// http(s) scheme, a host with a registrable domain and an owner/name path.
func ParseRepositoryURL(raw string) (RepositoryRef, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return RepositoryRef{}, errors.New("repository url is required")
	}
	if len(raw) > maxRepositoryURLLen {
		return RepositoryRef{}, fmt.Errorf("repository url must be at most %d characters", maxRepositoryURLLen)
	}

	u, err := url.Parse(raw)
	if err != nil {
		return RepositoryRef{}, fmt.Errorf("repository url is malformed: %w", err)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return RepositoryRef{}, errors.New("repository url must use http or https")
	}
	if u.User != nil {
		return RepositoryRef{}, errors.New("repository url must not contain credentials")
	}

	host := strings.ToLower(u.Hostname())
	if host == "" {
		return RepositoryRef{}, errors.New("repository url must include a host")
	}
	if net.ParseIP(host) != nil {
		return RepositoryRef{}, errors.New("repository url host must be a domain name")
	}
	domain, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return RepositoryRef{}, fmt.Errorf("repository url host %q has no registrable domain", host)
	}

	segments := splitPath(u.Path)
	if len(segments) < 2 {
		return RepositoryRef{}, errors.New("repository url must include owner and repository name")
	}
	name := strings.TrimSuffix(segments[len(segments)-1], ".git")
	if name == "" {
		return RepositoryRef{}, errors.New("repository name is empty")
	}
	owner := strings.Join(segments[:len(segments)-1], "/")

	return RepositoryRef{
		URL:    fmt.Sprintf("%s://%s/%s/%s", scheme, strings.ToLower(u.Host), owner, name),
		Host:   host,
		Domain: domain,
		Owner:  owner,
		Name:   name,
	}, nil
}

func splitPath(p string) []string {
	parts := strings.Split(strings.Trim(p, "/"), "/")
	out := parts[:0]
	for _, s := range parts {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
