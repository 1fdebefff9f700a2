package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/skillfetch/skillfetch/pkg/config"
	"github.com/skillfetch/skillfetch/pkg/discovery"
	"github.com/skillfetch/skillfetch/pkg/docs"
	"github.com/skillfetch/skillfetch/pkg/github"
	"github.com/skillfetch/skillfetch/pkg/presenter"
	"github.com/skillfetch/skillfetch/pkg/registry"
)

const summaryDescriptionLength = 80

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Search GitHub for new skill repositories",
	Long: `Search GitHub for repositories that look like skill sources, filter them by
stars and license, and write the candidates to the discovery output file for
manual review. The source registry is never modified.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		ctx, cancel := signalContext(cmd.Context())
		defer cancel()

		settings := mustLoadSettings()
		reg, err := registry.Load(settings.SourcesFile)
		if err != nil {
			presenter.Error(err, "Failed to load source registry")
			os.Exit(1)
		}

		if err := runDiscover(ctx, settings, reg); err != nil {
			presenter.Error(err, "Discovery failed")
			os.Exit(1)
		}
	},
}

func runDiscover(ctx context.Context, settings config.Settings, reg *registry.Registry) error {
	client, err := github.NewClient(ctx, settings.GitHubToken,
		github.WithBaseURL(settings.GitHubAPIURL),
		github.WithTimeout(settings.RequestTimeout),
	)
	if err != nil {
		return err
	}

	engine := discovery.NewEngine(client, discovery.WithInterval(settings.RequestInterval))
	return discover(ctx, engine, discovery.NewStore(settings.DiscoveredFile), reg, time.Now)
}

func discover(ctx context.Context, engine *discovery.Engine, store *discovery.Store, reg *registry.Registry, now func() time.Time) error {
	presenter.Separator()
	presenter.Info("Skills Discovery")
	presenter.Separator()

	candidates, err := engine.Discover(ctx, reg.Discovery, reg.Names())
	if errors.Is(err, discovery.ErrDisabled) {
		presenter.Warning("Discovery is disabled in the source registry")
		return nil
	}
	if err != nil {
		return err
	}

	if err := store.Save(candidates, now()); err != nil {
		return err
	}

	presenter.Success(fmt.Sprintf("New repositories found: %d", len(candidates)))
	if len(candidates) == 0 {
		return nil
	}

	presenter.Info("New sources to potentially add:")
	for _, c := range discovery.SortByStars(candidates) {
		presenter.Item(
			fmt.Sprintf("%s (%d stars, %s)", c.Name, c.Stars, c.License),
			docs.Truncate(c.Description, summaryDescriptionLength),
		)
	}
	presenter.Info(fmt.Sprintf("Results saved to: %s", store.Path()))
	presenter.Info("Review and manually add approved sources to the registry")
	return nil
}
