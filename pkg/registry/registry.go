// Package registry loads the Source Registry: the list of repositories skills
// are aggregated from, plus the optional discovery settings. The registry is
// read-only input; nothing in skillfetch writes it back.
package registry

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// RootPath is the skills path sentinel meaning the repository root.
const RootPath = "."

const (
	defaultBranch     = "main"
	defaultSkillsPath = "skills"
	defaultMinStars   = 5
)

// ErrNotFound is returned when the registry file does not exist.
var ErrNotFound = errors.New("registry file not found")

// Registry is the in-memory form of sources.json.
type Registry struct {
	Sources   []Source        `json:"sources" yaml:"sources"`
	Discovery DiscoveryConfig `json:"discovery" yaml:"discovery"`
}

// Source describes one remote repository holding skill directories.
type Source struct {
	Name        string     `json:"name" yaml:"name"`
	URL         string     `json:"url" yaml:"url"`
	Branch      string     `json:"branch,omitempty" yaml:"branch,omitempty"`
	SkillsPaths StringList `json:"skills_paths,omitempty" yaml:"skills_paths,omitempty"`
	// SkillsPath is the single-path form older registries use.
	SkillsPath  string   `json:"skills_path,omitempty" yaml:"skills_path,omitempty"`
	Prefix      string   `json:"prefix,omitempty" yaml:"prefix,omitempty"`
	Exclude     []string `json:"exclude,omitempty" yaml:"exclude,omitempty"`
	License     string   `json:"license,omitempty" yaml:"license,omitempty"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`

	excludeGlobs []glob.Glob
}

// DiscoveryConfig controls the GitHub discovery pipeline.
type DiscoveryConfig struct {
	Enabled           bool     `json:"enabled" yaml:"enabled"`
	SearchQueries     []string `json:"search_queries,omitempty" yaml:"search_queries,omitempty"`
	RepositoryQueries []string `json:"repository_queries,omitempty" yaml:"repository_queries,omitempty"`
	MinStars          int      `json:"min_stars" yaml:"min_stars"`
	AllowedLicenses   []string `json:"allowed_licenses" yaml:"allowed_licenses"`
}

// DefaultDiscoveryConfig returns the discovery settings used for absent keys.
func DefaultDiscoveryConfig() DiscoveryConfig {
	return DiscoveryConfig{
		MinStars:        defaultMinStars,
		AllowedLicenses: []string{"MIT", "Apache-2.0"},
	}
}

// Load reads the registry at path. Files ending in .yaml or .yml are parsed
// as YAML, everything else as JSON. Defaults are applied and every source is
// validated before Load returns.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(ErrNotFound, "%s", path)
		}
		return nil, errors.Wrapf(err, "failed to read registry %s", path)
	}

	return Parse(data, filepath.Ext(path))
}

// Parse decodes registry content. ext selects the format as in Load.
func Parse(data []byte, ext string) (*Registry, error) {
	reg := &Registry{Discovery: DefaultDiscoveryConfig()}

	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, reg); err != nil {
			return nil, errors.Wrap(err, "invalid YAML registry")
		}
	default:
		if err := json.Unmarshal(data, reg); err != nil {
			return nil, errors.Wrap(err, "invalid JSON registry")
		}
	}

	if err := reg.normalize(); err != nil {
		return nil, err
	}
	return reg, nil
}

func (r *Registry) normalize() error {
	seen := make(map[string]bool, len(r.Sources))
	for i := range r.Sources {
		src := &r.Sources[i]
		if src.Name == "" {
			return errors.Errorf("source #%d has no name", i+1)
		}
		if src.URL == "" {
			return errors.Errorf("source %q has no url", src.Name)
		}
		if seen[src.Name] {
			return errors.Errorf("duplicate source %q", src.Name)
		}
		seen[src.Name] = true

		if src.Branch == "" {
			src.Branch = defaultBranch
		}
		if len(src.SkillsPaths) == 0 {
			if src.SkillsPath != "" {
				src.SkillsPaths = StringList{src.SkillsPath}
			} else {
				src.SkillsPaths = StringList{defaultSkillsPath}
			}
		}
		if err := src.compileExcludes(); err != nil {
			return err
		}
	}

	if r.Discovery.MinStars < 0 {
		return errors.Errorf("discovery.min_stars must not be negative, got %d", r.Discovery.MinStars)
	}
	return nil
}

func (s *Source) compileExcludes() error {
	s.excludeGlobs = s.excludeGlobs[:0]
	for _, pattern := range s.Exclude {
		if !strings.ContainsAny(pattern, "*?[{") {
			continue
		}
		g, err := glob.Compile(pattern)
		if err != nil {
			return errors.Wrapf(err, "source %q: invalid exclude pattern %q", s.Name, pattern)
		}
		s.excludeGlobs = append(s.excludeGlobs, g)
	}
	return nil
}

// Excludes reports whether a skill directory name is on the exclude list,
// either verbatim or through a glob pattern.
func (s *Source) Excludes(dirName string) bool {
	for _, name := range s.Exclude {
		if name == dirName {
			return true
		}
	}
	for _, g := range s.excludeGlobs {
		if g.Match(dirName) {
			return true
		}
	}
	return false
}

// Names returns the set of registered source names.
func (r *Registry) Names() map[string]bool {
	names := make(map[string]bool, len(r.Sources))
	for _, src := range r.Sources {
		names[src.Name] = true
	}
	return names
}

// Find returns the source with the given name.
func (r *Registry) Find(name string) (Source, bool) {
	for _, src := range r.Sources {
		if src.Name == name {
			return src, true
		}
	}
	return Source{}, false
}

// StringList accepts either a single string or a list of strings.
type StringList []string

// UnmarshalJSON implements json.Unmarshaler.
func (l *StringList) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*l = StringList{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return errors.Wrap(err, "expected a string or a list of strings")
	}
	*l = many
	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (l *StringList) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		*l = StringList{value.Value}
		return nil
	}
	var many []string
	if err := value.Decode(&many); err != nil {
		return errors.Wrap(err, "expected a string or a list of strings")
	}
	*l = many
	return nil
}
