package main

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillfetch/skillfetch/pkg/aggregate"
	"github.com/skillfetch/skillfetch/pkg/config"
	"github.com/skillfetch/skillfetch/pkg/discovery"
	"github.com/skillfetch/skillfetch/pkg/github"
	"github.com/skillfetch/skillfetch/pkg/registry"
)

func testSettings(t *testing.T) config.Settings {
	t.Helper()
	root := t.TempDir()
	return config.Settings{
		Root:            root,
		SkillsDir:       filepath.Join(root, "skills"),
		CacheDir:        filepath.Join(root, ".cache"),
		SourcesFile:     filepath.Join(root, "scripts", "sources.json"),
		DiscoveredFile:  filepath.Join(root, "scripts", "discovered.json"),
		CatalogFile:     filepath.Join(root, "CATALOG.md"),
		LicensesFile:    filepath.Join(root, "THIRD_PARTY_LICENSES.md"),
		MetadataFile:    filepath.Join(root, ".skill_metadata.json"),
		LockFile:        filepath.Join(root, ".skillfetch.lock"),
		RequestTimeout:  time.Second,
		RequestInterval: 0,
	}
}

func writeRegistry(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestGetFetchConfigFromFlags(t *testing.T) {
	defer func() {
		rootCmd.Flags().Set("discover", "false")
		rootCmd.Flags().Set("clean", "false")
		rootCmd.Flags().Set("source", "")
	}()

	fetchConfig := getFetchConfigFromFlags(rootCmd)
	assert.Equal(t, NewFetchConfig(), fetchConfig)

	require.NoError(t, rootCmd.Flags().Set("clean", "true"))
	require.NoError(t, rootCmd.Flags().Set("source", "anthropics/skills"))
	fetchConfig = getFetchConfigFromFlags(rootCmd)
	assert.True(t, fetchConfig.Clean)
	assert.False(t, fetchConfig.Discover)
	assert.Equal(t, "anthropics/skills", fetchConfig.Source)
}

func TestRunFetchMissingRegistry(t *testing.T) {
	settings := testSettings(t)

	err := runFetch(context.Background(), settings, NewFetchConfig())
	require.Error(t, err)
	assert.True(t, errors.Is(err, registry.ErrNotFound))
	assert.NoFileExists(t, settings.MetadataFile)
}

func TestRunFetchUnknownSource(t *testing.T) {
	settings := testSettings(t)
	writeRegistry(t, settings.SourcesFile, `{"sources":[]}`)

	cfg := NewFetchConfig()
	cfg.Source = "nobody/nothing"
	err := runFetch(context.Background(), settings, cfg)
	require.Error(t, err)
	assert.True(t, errors.Is(err, aggregate.ErrUnknownSource))
}

func TestRunFetchLocked(t *testing.T) {
	settings := testSettings(t)
	writeRegistry(t, settings.SourcesFile, `{"sources":[]}`)

	lock, err := aggregate.AcquireLock(settings.LockFile)
	require.NoError(t, err)
	defer lock.Release()

	err = runFetch(context.Background(), settings, NewFetchConfig())
	assert.True(t, errors.Is(err, aggregate.ErrLocked))
}

func TestRunFetchWritesOutputsDespiteSourceFailure(t *testing.T) {
	settings := testSettings(t)
	missing := filepath.Join(settings.Root, "no-such-upstream")
	writeRegistry(t, settings.SourcesFile, `{"sources":[
		{"name":"broken/source","url":"`+missing+`","license":"MIT","description":"Unreachable"}
	]}`)

	require.NoError(t, runFetch(context.Background(), settings, NewFetchConfig()))

	data, err := os.ReadFile(settings.MetadataFile)
	require.NoError(t, err)
	var meta aggregate.RunMetadata
	require.NoError(t, json.Unmarshal(data, &meta))
	assert.Equal(t, 1, meta.SourcesProcessed)
	assert.Equal(t, 0, meta.SkillCount)

	assert.FileExists(t, settings.CatalogFile)
	licenses, err := os.ReadFile(settings.LicensesFile)
	require.NoError(t, err)
	assert.Contains(t, string(licenses), "### broken/source")
	assert.DirExists(t, settings.SkillsDir)
}

// stubAPI answers every search with nothing.
type stubAPI struct{}

func (stubAPI) SearchCode(context.Context, string) ([]string, error)         { return nil, nil }
func (stubAPI) SearchRepositories(context.Context, string) ([]string, error) { return nil, nil }
func (stubAPI) GetRepository(context.Context, string) (*github.Repository, error) {
	return nil, errors.New("unexpected call")
}
func (stubAPI) ListDir(context.Context, string, string) ([]github.Entry, error) {
	return nil, errors.New("unexpected call")
}
func (stubAPI) FileExists(context.Context, string, string) (bool, error) {
	return false, errors.New("unexpected call")
}

func TestDiscoverDisabledWritesNothing(t *testing.T) {
	settings := testSettings(t)
	store := discovery.NewStore(settings.DiscoveredFile)
	engine := discovery.NewEngine(stubAPI{}, discovery.WithInterval(0))

	reg, err := registry.Parse([]byte(`{"sources":[]}`), ".json")
	require.NoError(t, err)

	require.NoError(t, discover(context.Background(), engine, store, reg, time.Now))
	assert.NoFileExists(t, settings.DiscoveredFile)
}

func TestDiscoverSavesScan(t *testing.T) {
	settings := testSettings(t)
	store := discovery.NewStore(settings.DiscoveredFile)
	engine := discovery.NewEngine(stubAPI{}, discovery.WithInterval(0))

	reg, err := registry.Parse([]byte(`{"sources":[],"discovery":{"enabled":true,"search_queries":["filename:SKILL.md"]}}`), ".json")
	require.NoError(t, err)

	scanned := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	require.NoError(t, discover(context.Background(), engine, store, reg, func() time.Time { return scanned }))

	out, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, out.Repositories)
	require.NotNil(t, out.LastScan)
	assert.Equal(t, "2026-10-16T12:00:00Z", *out.LastScan)
}
