// Package gitrepo keeps local working copies of source repositories under a
// cache root. A copy is cloned shallow and single-branch the first time and
// afterwards fetched and hard reset to the remote branch tip, discarding any
// local modification.
package gitrepo

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	gogit "github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/pkg/errors"

	"github.com/skillfetch/skillfetch/pkg/logger"
	"github.com/skillfetch/skillfetch/pkg/registry"
)

const remoteName = "origin"

// CachePath returns the working copy location for a source name. Path
// separators in the name are replaced so the name stays a single segment.
func CachePath(cacheRoot, name string) string {
	segment := strings.NewReplacer("/", "_", "\\", "_").Replace(name)
	return filepath.Join(cacheRoot, segment)
}

// Materializer clones and updates working copies.
type Materializer struct {
	cacheRoot string
	depth     int
}

// Option configures a Materializer.
type Option func(*Materializer)

// WithDepth sets the clone and fetch depth. Zero fetches full history.
func WithDepth(depth int) Option {
	return func(m *Materializer) {
		m.depth = depth
	}
}

// New creates a Materializer rooted at cacheRoot.
func New(cacheRoot string, opts ...Option) *Materializer {
	m := &Materializer{
		cacheRoot: cacheRoot,
		depth:     1,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Materialize makes the working copy for src reflect the tip of its branch
// and returns its path. The path is returned even when the git operation
// fails; callers log the error and scan whatever is on disk.
func (m *Materializer) Materialize(ctx context.Context, src registry.Source) (string, error) {
	dir := CachePath(m.cacheRoot, src.Name)
	log := logger.G(ctx).WithField("repo", src.Name)

	if _, err := os.Stat(dir); err == nil {
		repo, err := gogit.PlainOpen(dir)
		if err == nil {
			log.WithField("branch", src.Branch).Info("updating working copy")
			return dir, m.update(ctx, repo, src.Branch)
		}

		// left behind by an interrupted clone
		log.WithError(err).Warn("cached copy is not a repository, recloning")
		if err := os.RemoveAll(dir); err != nil {
			return dir, errors.Wrapf(err, "failed to remove %s", dir)
		}
	}

	log.WithField("branch", src.Branch).Info("cloning")
	return dir, m.clone(ctx, dir, src)
}

func (m *Materializer) clone(ctx context.Context, dir string, src registry.Source) error {
	if err := os.MkdirAll(m.cacheRoot, 0o755); err != nil {
		return errors.Wrap(err, "failed to create cache directory")
	}

	_, err := gogit.PlainCloneContext(ctx, dir, false, &gogit.CloneOptions{
		URL:           src.URL,
		RemoteName:    remoteName,
		ReferenceName: plumbing.NewBranchReferenceName(src.Branch),
		SingleBranch:  true,
		Depth:         m.depth,
		Tags:          gogit.NoTags,
	})
	if err != nil {
		return errors.Wrapf(err, "failed to clone %s", src.URL)
	}
	return nil
}

func (m *Materializer) update(ctx context.Context, repo *gogit.Repository, branch string) error {
	refSpec := gitconfig.RefSpec(fmt.Sprintf("+refs/heads/%s:refs/remotes/%s/%s", branch, remoteName, branch))

	err := repo.FetchContext(ctx, &gogit.FetchOptions{
		RemoteName: remoteName,
		RefSpecs:   []gitconfig.RefSpec{refSpec},
		Depth:      m.depth,
		Tags:       gogit.NoTags,
		Force:      true,
	})
	if err != nil && !errors.Is(err, gogit.NoErrAlreadyUpToDate) {
		return errors.Wrap(err, "failed to fetch")
	}

	ref, err := repo.Reference(plumbing.NewRemoteReferenceName(remoteName, branch), true)
	if err != nil {
		return errors.Wrapf(err, "failed to resolve %s/%s", remoteName, branch)
	}

	wt, err := repo.Worktree()
	if err != nil {
		return errors.Wrap(err, "failed to open worktree")
	}

	if err := wt.Reset(&gogit.ResetOptions{Commit: ref.Hash(), Mode: gogit.HardReset}); err != nil {
		return errors.Wrapf(err, "failed to reset to %s", ref.Hash())
	}
	return nil
}
