package main

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/skillfetch/skillfetch/pkg/aggregate"
	"github.com/skillfetch/skillfetch/pkg/config"
	"github.com/skillfetch/skillfetch/pkg/docs"
	"github.com/skillfetch/skillfetch/pkg/gitrepo"
	"github.com/skillfetch/skillfetch/pkg/logger"
	"github.com/skillfetch/skillfetch/pkg/presenter"
	"github.com/skillfetch/skillfetch/pkg/registry"
)

// FetchConfig holds the aggregation flags
type FetchConfig struct {
	Discover bool
	Clean    bool
	Source   string
}

// NewFetchConfig creates a FetchConfig with default values
func NewFetchConfig() *FetchConfig {
	return &FetchConfig{
		Discover: false,
		Clean:    false,
		Source:   "",
	}
}

func init() {
	defaults := NewFetchConfig()
	rootCmd.Flags().Bool("discover", defaults.Discover, "Run GitHub discovery after aggregation")
	rootCmd.Flags().Bool("clean", defaults.Clean, "Delete the whole skills collection before fetching")
	rootCmd.Flags().String("source", defaults.Source, "Only process the named source (owner/repo)")
}

func getFetchConfigFromFlags(cmd *cobra.Command) *FetchConfig {
	fetchConfig := NewFetchConfig()
	if discover, err := cmd.Flags().GetBool("discover"); err == nil {
		fetchConfig.Discover = discover
	}
	if clean, err := cmd.Flags().GetBool("clean"); err == nil {
		fetchConfig.Clean = clean
	}
	if source, err := cmd.Flags().GetString("source"); err == nil {
		fetchConfig.Source = source
	}
	return fetchConfig
}

// runFetch runs one aggregation: every source is materialised and scanned,
// then the catalog, license document and run metadata are regenerated. An
// error means the run could not start or its outputs could not be written;
// failures of individual sources are only reported.
func runFetch(ctx context.Context, settings config.Settings, cfg *FetchConfig) error {
	reg, err := registry.Load(settings.SourcesFile)
	if err != nil {
		return errors.Wrap(err, "failed to load source registry")
	}

	lock, err := aggregate.AcquireLock(settings.LockFile)
	if err != nil {
		return err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			logger.G(ctx).WithError(err).Warn("failed to release lock")
		}
	}()

	presenter.Separator()
	presenter.Info("Skills Aggregation")
	presenter.Separator()

	agg := aggregate.New(settings.SkillsDir, gitrepo.New(settings.CacheDir))
	result, err := agg.Run(ctx, reg.Sources, aggregate.RunOptions{
		Clean: cfg.Clean,
		Only:  cfg.Source,
	})
	if err != nil {
		return err
	}
	reportRun(result)

	now := time.Now().UTC()
	if err := docs.NewGenerator().Write(ctx, settings.CatalogFile, settings.LicensesFile, result.Records, reg.Sources, now); err != nil {
		return err
	}
	if err := aggregate.WriteRunMetadata(settings.MetadataFile, result, now); err != nil {
		return err
	}

	presenter.Separator()
	presenter.Success(fmt.Sprintf("Total skills: %d", len(result.Records)))
	presenter.Info(fmt.Sprintf("Skills directory: %s", settings.SkillsDir))
	presenter.Separator()

	if cfg.Discover {
		return runDiscover(ctx, settings, reg)
	}
	return nil
}

func reportRun(result *aggregate.RunResult) {
	for _, report := range result.Reports {
		presenter.Section(report.Source)
		if report.FetchErr != nil {
			presenter.Warning(fmt.Sprintf("could not clone or update: %v", report.FetchErr))
		}

		var copied, skipped, failed int
		for _, o := range report.Outcomes {
			switch o.Kind {
			case aggregate.Copied:
				copied++
			case aggregate.Skipped:
				skipped++
			case aggregate.Failed:
				failed++
				presenter.Error(o.Err, o.Path)
			}
		}
		if report.Err != nil {
			presenter.Error(report.Err, report.Source)
		}

		presenter.Info(fmt.Sprintf("Copied %d skills (%d skipped, %d failed)", copied, skipped, failed))
	}
}
