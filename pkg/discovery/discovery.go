// Package discovery searches GitHub for repositories that look like skill
// sources and records qualifying candidates for manual review. It never
// touches the registry.
package discovery

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/skillfetch/skillfetch/pkg/github"
	"github.com/skillfetch/skillfetch/pkg/logger"
	"github.com/skillfetch/skillfetch/pkg/registry"
	"github.com/skillfetch/skillfetch/pkg/skills"
)

// ErrDisabled is returned when the registry has discovery switched off.
var ErrDisabled = errors.New("discovery is disabled")

const (
	// DefaultInterval is the pause after every search request and every
	// analyzed repository: ten requests a minute.
	DefaultInterval = 6 * time.Second

	// NoAssertion is the SPDX value GitHub reports for unrecognised licenses.
	// Such repositories are always accepted.
	NoAssertion = "NOASSERTION"

	defaultBranch     = "main"
	defaultSkillsPath = "skills"
)

// SkillDirs are the top-level directory names probed for skills.
var SkillDirs = []string{"skills", ".claude", "skill"}

// API is the part of the GitHub API the engine needs.
type API interface {
	SearchCode(ctx context.Context, query string) ([]string, error)
	SearchRepositories(ctx context.Context, query string) ([]string, error)
	GetRepository(ctx context.Context, fullName string) (*github.Repository, error)
	ListDir(ctx context.Context, fullName, path string) ([]github.Entry, error)
	FileExists(ctx context.Context, fullName, path string) (bool, error)
}

// Candidate is a repository that passed every filter.
type Candidate struct {
	Name         string `json:"name"`
	URL          string `json:"url"`
	Branch       string `json:"branch"`
	SkillsPath   string `json:"skills_path"`
	Stars        int    `json:"stars"`
	License      string `json:"license"`
	Description  string `json:"description"`
	SkillCount   int    `json:"skill_count"`
	DiscoveredAt string `json:"discovered_at"`
}

// Engine runs discovery scans.
type Engine struct {
	api      API
	interval time.Duration
	sleep    func(ctx context.Context, d time.Duration) error
	now      func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithInterval sets the pause between requests.
func WithInterval(d time.Duration) Option {
	return func(e *Engine) {
		e.interval = d
	}
}

// WithSleep replaces the pacing sleep.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(e *Engine) {
		e.sleep = sleep
	}
}

// WithClock replaces the clock used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// NewEngine creates an Engine over api.
func NewEngine(api API, opts ...Option) *Engine {
	e := &Engine{
		api:      api,
		interval: DefaultInterval,
		sleep:    sleepContext,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (e *Engine) pace(ctx context.Context) error {
	return e.sleep(ctx, e.interval)
}

// Discover runs every configured query, filters the repositories found and
// returns the qualifying candidates in the order they were found. Names in
// existing are never reported. Remote failures are logged and treated as no
// data; only cancellation stops a scan early.
func (e *Engine) Discover(ctx context.Context, cfg registry.DiscoveryConfig, existing map[string]bool) ([]Candidate, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	log := logger.G(ctx)
	log.WithFields(logrus.Fields{
		"queries":          len(cfg.SearchQueries) + len(cfg.RepositoryQueries),
		"min_stars":        cfg.MinStars,
		"allowed_licenses": strings.Join(cfg.AllowedLicenses, ", "),
	}).Info("starting discovery")

	var found []string
	seen := make(map[string]bool)
	collect := func(names []string) {
		for _, name := range names {
			if name == "" || seen[name] || existing[name] {
				continue
			}
			seen[name] = true
			found = append(found, name)
		}
	}

	for _, query := range cfg.SearchQueries {
		names, err := e.api.SearchCode(ctx, query)
		if err != nil {
			log.WithField("query", query).WithError(err).Warn("code search failed")
		} else {
			log.WithField("query", query).Infof("found %d repositories", len(names))
		}
		collect(names)
		if err := e.pace(ctx); err != nil {
			return nil, err
		}
	}

	for _, query := range cfg.RepositoryQueries {
		names, err := e.api.SearchRepositories(ctx, query)
		if err != nil {
			log.WithField("query", query).WithError(err).Warn("repository search failed")
		} else {
			log.WithField("query", query).Infof("found %d repositories", len(names))
		}
		collect(names)
		if err := e.pace(ctx); err != nil {
			return nil, err
		}
	}

	log.Infof("analyzing %d unique repositories", len(found))

	var candidates []Candidate
	for _, name := range found {
		candidate := e.analyze(ctx, cfg, name)
		if candidate != nil {
			candidates = append(candidates, *candidate)
		}
		if err := e.pace(ctx); err != nil {
			return nil, err
		}
	}

	return candidates, nil
}

func (e *Engine) analyze(ctx context.Context, cfg registry.DiscoveryConfig, name string) *Candidate {
	log := logger.G(ctx).WithField("repo", name)

	repo, err := e.api.GetRepository(ctx, name)
	if err != nil {
		log.WithError(err).Warn("failed to fetch repository details")
		return nil
	}

	if repo.Stars < cfg.MinStars {
		log.Infof("skipped: %d stars < %d", repo.Stars, cfg.MinStars)
		return nil
	}
	if !LicenseAllowed(repo.License, cfg.AllowedLicenses) {
		log.Infof("skipped: license %q not in allowed list", repo.License)
		return nil
	}

	paths := e.probe(ctx, name)
	if len(paths) == 0 {
		log.Info("skipped: no valid skill structure found")
		return nil
	}

	log.Infof("found %d skills, %d stars, %s license", len(paths), repo.Stars, repo.License)

	branch := repo.DefaultBranch
	if branch == "" {
		branch = defaultBranch
	}
	url := repo.HTMLURL
	if url == "" {
		url = "https://github.com/" + name
	}

	return &Candidate{
		Name:         name,
		URL:          url,
		Branch:       branch,
		SkillsPath:   InferSkillsPath(paths[0]),
		Stars:        repo.Stars,
		License:      repo.License,
		Description:  repo.Description,
		SkillCount:   len(paths),
		DiscoveredAt: e.now().Format(time.RFC3339),
	}
}

// probe returns the repository paths of detected skills: subdirectories of
// the recognised top-level directories holding a SKILL.md, then "." when the
// repository root holds one.
func (e *Engine) probe(ctx context.Context, name string) []string {
	log := logger.G(ctx).WithField("repo", name)

	root, err := e.api.ListDir(ctx, name, "")
	if err != nil {
		log.WithError(err).Warn("failed to list repository root")
		return nil
	}
	if len(root) == 0 {
		return nil
	}

	var paths []string
	for _, entry := range root {
		if !entry.IsDir() || !isSkillDir(entry.Name) {
			continue
		}

		children, err := e.api.ListDir(ctx, name, entry.Path)
		if err != nil {
			log.WithError(err).WithField("path", entry.Path).Warn("failed to list directory")
			continue
		}
		for _, child := range children {
			if !child.IsDir() {
				continue
			}
			ok, err := e.api.FileExists(ctx, name, child.Path+"/"+skills.FileName)
			if err != nil {
				log.WithError(err).WithField("path", child.Path).Debug("failed to check for descriptor")
				continue
			}
			if ok {
				paths = append(paths, child.Path)
			}
		}
	}

	ok, err := e.api.FileExists(ctx, name, skills.FileName)
	if err != nil {
		log.WithError(err).Debug("failed to check for root descriptor")
	}
	if ok {
		paths = append(paths, registry.RootPath)
	}

	return paths
}

func isSkillDir(name string) bool {
	for _, dir := range SkillDirs {
		if name == dir {
			return true
		}
	}
	return false
}

// LicenseAllowed reports whether a repository license passes the filter.
// NOASSERTION always passes.
func LicenseAllowed(license string, allowed []string) bool {
	if license == NoAssertion {
		return true
	}
	for _, a := range allowed {
		if license == a {
			return true
		}
	}
	return false
}

// InferSkillsPath derives a source skills path from the first detected skill
// path: its parent directory, or "skills" when it has none.
func InferSkillsPath(first string) string {
	i := strings.LastIndex(first, "/")
	if i <= 0 {
		return defaultSkillsPath
	}
	return first[:i]
}

// SortByStars returns the candidates ordered by stars, most starred first.
func SortByStars(candidates []Candidate) []Candidate {
	sorted := make([]Candidate, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Stars > sorted[j].Stars })
	return sorted
}
