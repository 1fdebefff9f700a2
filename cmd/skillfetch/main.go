package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/skillfetch/skillfetch/pkg/config"
	"github.com/skillfetch/skillfetch/pkg/logger"
	"github.com/skillfetch/skillfetch/pkg/presenter"
)

func init() {
	viper.SetEnvPrefix(config.EnvPrefix)
	viper.AutomaticEnv()

	viper.SetConfigName("skillfetch")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("$HOME/.skillfetch")
	viper.AddConfigPath(".")

	config.SetDefaults(viper.GetViper())
}

var rootCmd = &cobra.Command{
	Use:   "skillfetch",
	Short: "Aggregate agent skills from many repositories into one collection",
	Long: `skillfetch clones or updates every repository listed in the source registry,
copies each valid skill (a directory with a SKILL.md descriptor) into one flat,
prefix-namespaced collection, and regenerates the catalog, the third-party
license summary and the run metadata.

Examples:
  skillfetch
  skillfetch --clean
  skillfetch --source anthropics/skills
  skillfetch --discover`,
	Args:              cobra.NoArgs,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
	Run: func(cmd *cobra.Command, _ []string) {
		ctx, cancel := signalContext(cmd.Context())
		defer cancel()

		settings := mustLoadSettings()
		if err := runFetch(ctx, settings, getFetchConfigFromFlags(cmd)); err != nil {
			presenter.Error(err, "Aggregation failed")
			os.Exit(1)
		}
	},
}

// setup reads the optional config file and configures logging before any
// command runs.
func setup(cmd *cobra.Command, _ []string) error {
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		viper.SetConfigFile(path)
		if err := viper.ReadInConfig(); err != nil {
			return errors.Wrapf(err, "failed to read config file %s", path)
		}
	} else if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return errors.Wrap(err, "failed to read config file")
		}
	}

	return logger.Configure(viper.GetString("log_level"), viper.GetString("log_format"))
}

func mustLoadSettings() config.Settings {
	settings, err := config.Load(viper.GetViper())
	if err != nil {
		presenter.Error(err, "Invalid configuration")
		os.Exit(1)
	}
	return settings
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func main() {
	rootCmd.PersistentFlags().String("root", ".", "Collection root; relative paths resolve against it")
	rootCmd.PersistentFlags().String("config", "", "Path to a skillfetch.yaml config file")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "Log format (text or json)")

	viper.BindPFlag("root", rootCmd.PersistentFlags().Lookup("root"))
	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log_format", rootCmd.PersistentFlags().Lookup("log-format"))

	rootCmd.AddCommand(discoverCmd)
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.Execute(); err != nil {
		presenter.Error(err, "")
		os.Exit(1)
	}
}
