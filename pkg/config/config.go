// Package config resolves the run settings for skillfetch from viper: the
// repository layout (skills collection, cache, registry, generated documents),
// GitHub access and request pacing. Settings are resolved once and handed to
// each component at construction.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of every environment variable viper reads.
const EnvPrefix = "SKILLFETCH"

// Settings holds everything a run needs to know about its environment.
type Settings struct {
	Root           string `mapstructure:"root"`
	SkillsDir      string `mapstructure:"skills_dir"`
	CacheDir       string `mapstructure:"cache_dir"`
	SourcesFile    string `mapstructure:"sources_file"`
	DiscoveredFile string `mapstructure:"discovered_file"`
	CatalogFile    string `mapstructure:"catalog_file"`
	LicensesFile   string `mapstructure:"licenses_file"`
	MetadataFile   string `mapstructure:"metadata_file"`
	LockFile       string `mapstructure:"lock_file"`

	GitHubToken     string        `mapstructure:"github_token"`
	GitHubAPIURL    string        `mapstructure:"github_api_url"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	RequestInterval time.Duration `mapstructure:"request_interval"`

	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
}

// SetDefaults registers the default layout on v. The defaults mirror the
// layout of a skills collection repository checked out at root.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("root", ".")
	v.SetDefault("skills_dir", "skills")
	v.SetDefault("cache_dir", ".cache")
	v.SetDefault("sources_file", filepath.Join("scripts", "sources.json"))
	v.SetDefault("discovered_file", filepath.Join("scripts", "discovered.json"))
	v.SetDefault("catalog_file", "CATALOG.md")
	v.SetDefault("licenses_file", "THIRD_PARTY_LICENSES.md")
	v.SetDefault("metadata_file", ".skill_metadata.json")
	v.SetDefault("lock_file", ".skillfetch.lock")
	v.SetDefault("github_token", "")
	v.SetDefault("github_api_url", "")
	v.SetDefault("request_timeout", "30s")
	// 10 requests per minute keeps unauthenticated search within budget
	v.SetDefault("request_interval", "6s")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
}

// Load decodes the settings held by v and resolves every relative path
// against the root directory.
func Load(v *viper.Viper) (Settings, error) {
	var s Settings

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &s,
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return s, errors.Wrap(err, "failed to create settings decoder")
	}
	if err := decoder.Decode(v.AllSettings()); err != nil {
		return s, errors.Wrap(err, "failed to decode settings")
	}

	if s.Root == "" {
		s.Root = "."
	}
	root, err := filepath.Abs(s.Root)
	if err != nil {
		return s, errors.Wrapf(err, "failed to resolve root %q", s.Root)
	}
	s.Root = root

	for _, p := range []*string{
		&s.SkillsDir, &s.CacheDir, &s.SourcesFile, &s.DiscoveredFile,
		&s.CatalogFile, &s.LicensesFile, &s.MetadataFile, &s.LockFile,
	} {
		*p = resolve(root, *p)
	}

	if s.GitHubToken == "" {
		s.GitHubToken = os.Getenv("GITHUB_TOKEN")
	}
	if s.RequestTimeout <= 0 {
		return s, errors.Errorf("request_timeout must be positive, got %s", s.RequestTimeout)
	}
	if s.RequestInterval < 0 {
		return s, errors.Errorf("request_interval must not be negative, got %s", s.RequestInterval)
	}

	return s, nil
}

func resolve(root, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(root, p)
}
