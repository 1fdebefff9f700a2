// Package aggregate drives the aggregation pipeline: it materialises each
// source repository, walks the configured skills paths, and copies every
// valid skill into one flat, prefix-namespaced collection. Every candidate
// directory yields an Outcome so callers can see exactly what happened to it.
package aggregate

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/skillfetch/skillfetch/pkg/logger"
	"github.com/skillfetch/skillfetch/pkg/registry"
	"github.com/skillfetch/skillfetch/pkg/skills"
)

// ErrUnknownSource is returned when a run is restricted to a source the
// registry does not list.
var ErrUnknownSource = errors.New("unknown source")

// Materializer provides the local working copy of a source repository.
type Materializer interface {
	Materialize(ctx context.Context, src registry.Source) (string, error)
}

// OutcomeKind classifies what happened to one candidate directory.
type OutcomeKind int

const (
	// Copied means the skill was copied and a record produced.
	Copied OutcomeKind = iota
	// Skipped means the directory was deliberately left out.
	Skipped
	// Failed means copying the skill returned an error.
	Failed
)

func (k OutcomeKind) String() string {
	switch k {
	case Copied:
		return "copied"
	case Skipped:
		return "skipped"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Skip reasons.
const (
	ReasonDuplicate   = "already processed"
	ReasonExcluded    = "excluded"
	ReasonHidden      = "hidden directory"
	ReasonInvalid     = "not a skill"
	ReasonUnparseable = "descriptor did not parse after copy"
)

// Outcome is the result for one candidate directory.
type Outcome struct {
	Path     string // path relative to the working copy
	DirName  string // bare directory name, the dedup key
	DestName string
	Kind     OutcomeKind
	Reason   string
	Record   *skills.Record
	Err      error
}

// SourceReport collects everything that happened while processing one source.
type SourceReport struct {
	Source   string
	RepoDir  string
	Outcomes []Outcome
	Records  []skills.Record
	// FetchErr is the clone or update failure, if any. Processing continues
	// with whatever the working copy holds.
	FetchErr error
	// Err aborted processing of the source.
	Err error
}

// Aggregator copies skills from source working copies into the collection.
type Aggregator struct {
	destRoot     string
	materializer Materializer
	copier       *Copier
}

// New creates an Aggregator writing the collection to destRoot.
func New(destRoot string, materializer Materializer) *Aggregator {
	return &Aggregator{
		destRoot:     destRoot,
		materializer: materializer,
		copier:       NewCopier(destRoot),
	}
}

// DestName is the collection directory name for a skill directory.
func DestName(prefix, dirName string) string {
	if prefix == "" {
		return dirName
	}
	return prefix + "-" + dirName
}

// ProcessSource copies every valid skill of one source. Immediate
// subdirectories of each skills path are candidates; a candidate that is not
// a skill itself is searched exactly one level deeper for nested skills.
func (a *Aggregator) ProcessSource(ctx context.Context, src registry.Source) SourceReport {
	ctx = logger.WithField(ctx, "source", src.Name)
	log := logger.G(ctx)
	report := SourceReport{Source: src.Name}

	repoDir, err := a.materializer.Materialize(ctx, src)
	report.RepoDir = repoDir
	if err != nil {
		log.WithError(err).Warn("working copy may be missing or stale")
		report.FetchErr = err
	}

	processed := make(map[string]bool)

	for _, skillsPath := range src.SkillsPaths {
		root := repoDir
		if skillsPath != registry.RootPath {
			root = filepath.Join(repoDir, skillsPath)
		}

		if info, err := os.Stat(root); err != nil || !info.IsDir() {
			log.WithField("path", skillsPath).Warn("skills path not found")
			continue
		}
		log.WithField("path", skillsPath).Info("scanning")

		entries, err := os.ReadDir(root)
		if err != nil {
			report.Err = errors.Wrapf(err, "failed to read %s", skillsPath)
			return report
		}

		for _, entry := range entries {
			dir := filepath.Join(root, entry.Name())
			if !isDir(dir) {
				continue
			}
			rel := filepath.ToSlash(filepath.Join(skillsPath, entry.Name()))
			a.processCandidate(ctx, &report, processed, src, dir, rel)
		}
	}

	return report
}

func (a *Aggregator) processCandidate(ctx context.Context, report *SourceReport, processed map[string]bool, src registry.Source, dir, rel string) {
	name := filepath.Base(dir)
	if reason, skip := skipReason(processed, src, name); skip {
		if reason == ReasonExcluded {
			logger.G(ctx).WithField("skill", name).Info("skipping excluded")
		}
		report.Outcomes = append(report.Outcomes, Outcome{Path: rel, DirName: name, Kind: Skipped, Reason: reason})
		return
	}

	if skills.Validate(ctx, dir) {
		a.copyOne(ctx, report, processed, src, dir, rel)
		return
	}

	nested := nestedSkills(ctx, dir)
	if len(nested) == 0 {
		report.Outcomes = append(report.Outcomes, Outcome{Path: rel, DirName: name, Kind: Skipped, Reason: ReasonInvalid})
		return
	}

	for _, nestedDir := range nested {
		nestedName := filepath.Base(nestedDir)
		nestedRel := rel + "/" + nestedName
		if reason, skip := skipReason(processed, src, nestedName); skip {
			report.Outcomes = append(report.Outcomes, Outcome{Path: nestedRel, DirName: nestedName, Kind: Skipped, Reason: reason})
			continue
		}
		a.copyOne(ctx, report, processed, src, nestedDir, nestedRel)
	}
}

func (a *Aggregator) copyOne(ctx context.Context, report *SourceReport, processed map[string]bool, src registry.Source, dir, rel string) {
	name := filepath.Base(dir)
	dest := DestName(src.Prefix, name)
	log := logger.G(ctx).WithFields(logrus.Fields{"skill": rel, "dest": dest})
	outcome := Outcome{Path: rel, DirName: name, DestName: dest}

	record, err := a.copier.Copy(ctx, report.RepoDir, dir, dest, src)
	switch {
	case err != nil:
		log.WithError(err).Error("failed to copy skill")
		outcome.Kind = Failed
		outcome.Err = err
	case record == nil:
		outcome.Kind = Skipped
		outcome.Reason = ReasonUnparseable
	default:
		log.Info("copied")
		outcome.Kind = Copied
		outcome.Record = record
		report.Records = append(report.Records, *record)
		processed[name] = true
	}

	report.Outcomes = append(report.Outcomes, outcome)
}

func skipReason(processed map[string]bool, src registry.Source, name string) (string, bool) {
	switch {
	case processed[name]:
		return ReasonDuplicate, true
	case src.Excludes(name):
		return ReasonExcluded, true
	case strings.HasPrefix(name, "."):
		return ReasonHidden, true
	}
	return "", false
}

// nestedSkills returns the valid skill directories directly inside dir.
func nestedSkills(ctx context.Context, dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}

	var nested []string
	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())
		if isDir(path) && skills.Validate(ctx, path) {
			nested = append(nested, path)
		}
	}
	return nested
}

// isDir follows symlinks.
func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// RunOptions selects what a Run does.
type RunOptions struct {
	// Clean deletes the whole collection before processing.
	Clean bool
	// Only restricts the run to the named source.
	Only string
}

// RunResult is the outcome of a whole aggregation run.
type RunResult struct {
	Reports          []SourceReport
	Records          []skills.Record
	SourcesProcessed int
	// Err holds the per-source failures. It never stops a run.
	Err error
}

// Run processes every selected source in registry order. A failing source is
// logged and recorded in the result; the remaining sources still run.
//
// When two sources produce the same destination name the later source wins
// on disk and the earlier record is dropped so the records match the
// collection.
func (a *Aggregator) Run(ctx context.Context, sources []registry.Source, opts RunOptions) (*RunResult, error) {
	selected := sources
	if opts.Only != "" {
		selected = nil
		for _, src := range sources {
			if src.Name == opts.Only {
				selected = append(selected, src)
			}
		}
		if len(selected) == 0 {
			return nil, errors.Wrapf(ErrUnknownSource, "%q", opts.Only)
		}
	}

	if opts.Clean {
		logger.G(ctx).WithField("dir", a.destRoot).Info("cleaning skills directory")
		if err := os.RemoveAll(a.destRoot); err != nil {
			return nil, errors.Wrap(err, "failed to clean skills directory")
		}
	}
	if err := os.MkdirAll(a.destRoot, 0o755); err != nil {
		return nil, errors.Wrap(err, "failed to create skills directory")
	}

	result := &RunResult{}
	owners := make(map[string]string)
	var merr *multierror.Error

	for _, src := range selected {
		report := a.ProcessSource(ctx, src)
		result.Reports = append(result.Reports, report)
		result.SourcesProcessed++

		if report.Err != nil {
			logger.G(ctx).WithField("source", src.Name).WithError(report.Err).Error("error processing source")
			merr = multierror.Append(merr, errors.Wrapf(report.Err, "source %s", src.Name))
		}

		for _, record := range report.Records {
			if previous, ok := owners[record.Name]; ok && previous != src.Name {
				logger.G(ctx).WithFields(logrus.Fields{
					"dest":     record.Name,
					"source":   src.Name,
					"replaced": previous,
				}).Warn("destination name collides with another source, keeping the later copy")
				result.Records = dropRecord(result.Records, record.Name)
			}
			owners[record.Name] = src.Name
			result.Records = append(result.Records, record)
		}
	}

	result.Err = merr.ErrorOrNil()
	return result, nil
}

func dropRecord(records []skills.Record, name string) []skills.Record {
	kept := records[:0]
	for _, r := range records {
		if r.Name != name {
			kept = append(kept, r)
		}
	}
	return kept
}
