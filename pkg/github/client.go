// Package github is the slice of the GitHub REST API used by discovery:
// code and repository search, repository details and contents listings.
package github

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/go-github/v57/github"
	"github.com/pkg/errors"
	"golang.org/x/oauth2"

	"github.com/skillfetch/skillfetch/pkg/logger"
)

const (
	// DefaultTimeout bounds every request.
	DefaultTimeout = 30 * time.Second

	perPage = 100
)

// Repository is the subset of repository details discovery looks at.
type Repository struct {
	FullName      string
	HTMLURL       string
	DefaultBranch string
	Description   string
	Stars         int
	// License is the SPDX identifier, empty when GitHub reports none.
	License string
}

// Entry is one item of a contents listing.
type Entry struct {
	Name string
	Path string
	Type string // "file", "dir", "symlink" or "submodule"
}

// IsDir reports whether the entry is a directory.
func (e Entry) IsDir() bool {
	return e.Type == "dir"
}

// Client wraps the GitHub API client
type Client struct {
	client *github.Client
}

type clientOptions struct {
	baseURL string
	timeout time.Duration
}

// Option configures a Client.
type Option func(*clientOptions)

// WithBaseURL points the client at a different API root, such as a GitHub
// Enterprise instance or a test server.
func WithBaseURL(baseURL string) Option {
	return func(o *clientOptions) {
		o.baseURL = baseURL
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(o *clientOptions) {
		o.timeout = timeout
	}
}

// NewClient creates a new GitHub client, authenticated when token is set.
func NewClient(ctx context.Context, token string, opts ...Option) (*Client, error) {
	log := logger.G(ctx)

	o := clientOptions{timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(&o)
	}

	var httpClient *http.Client
	if token == "" {
		log.Warn("No GitHub token provided - API rate limits will be restricted")
		httpClient = &http.Client{}
	} else {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		httpClient = oauth2.NewClient(ctx, ts)
		log.Debug("GitHub client initialized with authentication")
	}
	httpClient.Timeout = o.timeout

	client := github.NewClient(httpClient)
	if o.baseURL != "" {
		base := o.baseURL
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		u, err := url.Parse(base)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid GitHub API URL %q", o.baseURL)
		}
		client.BaseURL = u
	}

	return &Client{client: client}, nil
}

// GetClient returns the underlying GitHub client
func (c *Client) GetClient() *github.Client {
	return c.client
}

// SearchCode runs a code search and returns the full names of the
// repositories holding the matches, in result order and without repeats.
func (c *Client) SearchCode(ctx context.Context, query string) ([]string, error) {
	result, _, err := c.client.Search.Code(ctx, query, &github.SearchOptions{
		ListOptions: github.ListOptions{PerPage: perPage},
	})
	if err != nil {
		return nil, errors.Wrapf(err, "code search %q", query)
	}

	var names []string
	seen := make(map[string]bool)
	for _, item := range result.CodeResults {
		name := item.GetRepository().GetFullName()
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	return names, nil
}

// SearchRepositories runs a repository search sorted by stars, most starred
// first, and returns the repository full names.
func (c *Client) SearchRepositories(ctx context.Context, query string) ([]string, error) {
	result, _, err := c.client.Search.Repositories(ctx, query, &github.SearchOptions{
		Sort:        "stars",
		Order:       "desc",
		ListOptions: github.ListOptions{PerPage: perPage},
	})
	if err != nil {
		return nil, errors.Wrapf(err, "repository search %q", query)
	}

	names := make([]string, 0, len(result.Repositories))
	for _, repo := range result.Repositories {
		if name := repo.GetFullName(); name != "" {
			names = append(names, name)
		}
	}
	return names, nil
}

// GetRepository fetches repository details for an "owner/repo" name.
func (c *Client) GetRepository(ctx context.Context, fullName string) (*Repository, error) {
	owner, repo, err := splitFullName(fullName)
	if err != nil {
		return nil, err
	}

	r, _, err := c.client.Repositories.Get(ctx, owner, repo)
	if err != nil {
		return nil, errors.Wrapf(err, "get repository %s", fullName)
	}

	return &Repository{
		FullName:      r.GetFullName(),
		HTMLURL:       r.GetHTMLURL(),
		DefaultBranch: r.GetDefaultBranch(),
		Description:   r.GetDescription(),
		Stars:         r.GetStargazersCount(),
		License:       r.GetLicense().GetSPDXID(),
	}, nil
}

// ListDir lists a directory of the default branch. An empty path lists the
// repository root. A path that is a file yields no entries.
func (c *Client) ListDir(ctx context.Context, fullName, path string) ([]Entry, error) {
	owner, repo, err := splitFullName(fullName)
	if err != nil {
		return nil, err
	}

	_, dir, _, err := c.client.Repositories.GetContents(ctx, owner, repo, path, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "list %s/%s", fullName, path)
	}

	entries := make([]Entry, 0, len(dir))
	for _, item := range dir {
		entries = append(entries, Entry{
			Name: item.GetName(),
			Path: item.GetPath(),
			Type: item.GetType(),
		})
	}
	return entries, nil
}

// FileExists reports whether path exists on the default branch. A 404 is a
// definite "no"; any other failure is returned as an error.
func (c *Client) FileExists(ctx context.Context, fullName, path string) (bool, error) {
	owner, repo, err := splitFullName(fullName)
	if err != nil {
		return false, err
	}

	_, _, resp, err := c.client.Repositories.GetContents(ctx, owner, repo, path, nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return false, nil
		}
		return false, errors.Wrapf(err, "check %s/%s", fullName, path)
	}
	return true, nil
}

func splitFullName(fullName string) (string, string, error) {
	owner, repo, ok := strings.Cut(fullName, "/")
	if !ok || owner == "" || repo == "" || strings.Contains(repo, "/") {
		return "", "", errors.Errorf("invalid repository name %q, expected owner/repo", fullName)
	}
	return owner, repo, nil
}
