package aggregate

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/skillfetch/skillfetch/pkg/logger"
	"github.com/skillfetch/skillfetch/pkg/registry"
	"github.com/skillfetch/skillfetch/pkg/skills"
)

// Copier materialises validated skills into the destination collection.
type Copier struct {
	destRoot string
	copyFile func(src, dst string, mode os.FileMode) error
}

// NewCopier creates a Copier writing under destRoot.
func NewCopier(destRoot string) *Copier {
	return &Copier{destRoot: destRoot, copyFile: copyFile}
}

// Copy replaces destRoot/destName with a copy of srcDir and returns the
// record parsed from the copied descriptor. repoDir is the working copy
// srcDir was found in: symlinks are only followed when they resolve inside
// it. A descriptor that no longer parses after the copy yields a nil record
// and no error. A failed copy leaves nothing behind at the destination.
func (c *Copier) Copy(ctx context.Context, repoDir, srcDir, destName string, src registry.Source) (*skills.Record, error) {
	dest := filepath.Join(c.destRoot, destName)

	if repoDir == "" {
		repoDir = srcDir
	}
	root, err := filepath.EvalSymlinks(repoDir)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to resolve working copy %s", repoDir)
	}
	resolvedSrc, err := filepath.EvalSymlinks(srcDir)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to resolve %s", srcDir)
	}
	if !within(root, resolvedSrc) {
		return nil, errors.Errorf("%s resolves outside the working copy", srcDir)
	}

	if err := os.RemoveAll(dest); err != nil {
		return nil, errors.Wrapf(err, "failed to remove existing %s", dest)
	}

	tree := &treeCopy{
		ctx:      logger.WithField(ctx, "dest", destName),
		root:     root,
		active:   make(map[string]bool),
		copyFile: c.copyFile,
	}
	if err := tree.copyDir(srcDir, resolvedSrc, dest); err != nil {
		if rmErr := os.RemoveAll(dest); rmErr != nil {
			logger.G(ctx).WithError(rmErr).WithField("dest", destName).Warn("failed to remove partial copy")
		}
		return nil, errors.Wrapf(err, "failed to copy %s", srcDir)
	}

	d, err := skills.Parse(dest)
	if err != nil {
		logger.G(ctx).WithError(err).WithField("dest", destName).Debug("copied descriptor did not parse")
		return nil, nil
	}

	record := skills.NewRecord(destName, d, src)
	return &record, nil
}

// treeCopy copies one skill directory. Symlinks are followed as regular
// content when their target stays under root; links leaving root, broken
// links and links back into a directory being copied are skipped.
type treeCopy struct {
	ctx      context.Context
	root     string
	active   map[string]bool // resolved directories on the current path
	copyFile func(src, dst string, mode os.FileMode) error
}

func (t *treeCopy) copyDir(src, realPath, dst string) error {
	t.active[realPath] = true
	defer delete(t.active, realPath)

	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dst, info.Mode().Perm()|0o700); err != nil {
		return err
	}

	entries, err := os.ReadDir(src)
	if err != nil {
		return err
	}

	log := logger.G(t.ctx)
	for _, entry := range entries {
		from := filepath.Join(src, entry.Name())
		to := filepath.Join(dst, entry.Name())
		target := filepath.Join(realPath, entry.Name())

		info, err := os.Lstat(from)
		if err != nil {
			return err
		}

		if info.Mode()&os.ModeSymlink != 0 {
			resolved, err := filepath.EvalSymlinks(from)
			if err != nil {
				log.WithError(err).WithField("path", from).Warn("skipping broken symlink")
				continue
			}
			if !within(t.root, resolved) {
				log.WithField("path", from).Warn("skipping symlink that points outside the working copy")
				continue
			}
			if info, err = os.Stat(resolved); err != nil {
				return err
			}
			target = resolved
		}

		switch {
		case info.IsDir():
			if t.active[target] {
				log.WithField("path", from).Warn("skipping symlink loop")
				continue
			}
			if err := t.copyDir(from, target, to); err != nil {
				return err
			}
		case info.Mode().IsRegular():
			if err := t.copyFile(from, to, info.Mode().Perm()); err != nil {
				return err
			}
		default:
			log.WithField("path", from).Debug("skipping special file")
		}
	}
	return nil
}

// within reports whether path is root or below it. Both must be resolved.
func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func copyFile(src, dst string, mode os.FileMode) error {
	srcFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer srcFile.Close()

	dstFile, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return err
	}

	if _, err := io.Copy(dstFile, srcFile); err != nil {
		dstFile.Close()
		return err
	}
	return dstFile.Close()
}
