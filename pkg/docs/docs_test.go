package docs

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillfetch/skillfetch/pkg/registry"
	"github.com/skillfetch/skillfetch/pkg/skills"
)

var fixedNow = time.Date(2026, 10, 16, 14, 5, 0, 0, time.UTC)

func TestTruncate(t *testing.T) {
	long := strings.Repeat("a", 150)
	short := strings.Repeat("b", 50)

	assert.Equal(t, strings.Repeat("a", 100)+"...", Truncate(long, 100))
	assert.Equal(t, short, Truncate(short, 100))
	assert.Equal(t, strings.Repeat("c", 100), Truncate(strings.Repeat("c", 100), 100))

	multibyte := strings.Repeat("é", 101)
	assert.Equal(t, strings.Repeat("é", 100)+"...", Truncate(multibyte, 100))
}

func TestTableCell(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain", in: "Does foo", want: "Does foo"},
		{name: "pipes escaped", in: "a | b", want: `a \| b`},
		{name: "newlines collapsed", in: "line one\nline two\r\n  line three", want: "line one line two line three"},
		{name: "truncated before escaping", in: strings.Repeat("x", 99) + "||", want: strings.Repeat("x", 99) + `\|...`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TableCell(tt.in, 100))
		})
	}
}

func TestRenderCatalog(t *testing.T) {
	records := []skills.Record{
		{Name: "zeta", Description: "Last alphabetically", Source: "org/b"},
		{Name: "fx-beta", Description: "Second", Source: "org/a"},
		{Name: "fx-alpha", Description: strings.Repeat("d", 150), Source: "org/a"},
	}

	out, err := RenderCatalog(records, fixedNow)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(out, "# Skills Catalog\n\n*Last updated: 2026-10-16 14:05 UTC*\n\nTotal skills: **3**\n\n## Skills by Source\n\n"))

	wantGroups := "### org/a\n\n" +
		"| Skill | Description |\n" +
		"|-------|-------------|\n" +
		"| `fx-alpha` | " + strings.Repeat("d", 100) + "... |\n" +
		"| `fx-beta` | Second |\n" +
		"\n" +
		"### org/b\n\n" +
		"| Skill | Description |\n" +
		"|-------|-------------|\n" +
		"| `zeta` | Last alphabetically |\n" +
		"\n" +
		"## Installation\n"
	assert.Contains(t, out, wantGroups)
	assert.Contains(t, out, "cp -r skills/SKILL_NAME ~/.claude/skills/")
	assert.NotContains(t, out, strings.Repeat("d", 101))
}

func TestRenderCatalogEmpty(t *testing.T) {
	out, err := RenderCatalog(nil, fixedNow)
	require.NoError(t, err)
	assert.Contains(t, out, "Total skills: **0**")
	assert.Contains(t, out, "## Skills by Source\n\n## Installation")
	assert.NotContains(t, out, "###")
}

func TestRenderLicenses(t *testing.T) {
	sources := []registry.Source{
		{Name: "org/b", URL: "https://github.com/org/b", License: "Apache-2.0", Description: "B skills"},
		{Name: "org/a", URL: "https://github.com/org/a"},
	}
	records := []skills.Record{
		{Name: "one", Source: "org/b", License: "MIT"},
		{Name: "two", Source: "org/b", License: "Apache-2.0"},
		{Name: "three", Source: "org/a", License: "MIT"},
		{Name: "four", Source: "org/a", License: skills.UnknownLicense},
	}

	out, err := RenderLicenses(records, sources, fixedNow)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(out, "# Third-Party Licenses\n"))
	assert.Contains(t, out, "*Last updated: 2026-10-16 14:05 UTC*")
	assert.Contains(t, out, "### org/b\n\n- **URL:** https://github.com/org/b\n- **License:** Apache-2.0\n- **Description:** B skills\n")
	assert.Contains(t, out, "### org/a\n\n- **URL:** https://github.com/org/a\n- **License:** See repository\n")
	assert.Less(t, strings.Index(out, "### org/b"), strings.Index(out, "### org/a"), "sources keep registry order")

	assert.Contains(t, out, "|---------|-------|\n| Apache-2.0 | 1 |\n| MIT | 2 |\n| Unknown | 1 |\n\n## Full License Texts")
	assert.Contains(t, out, "Permission is hereby granted, free of charge")
	assert.Contains(t, out, "See: https://www.apache.org/licenses/LICENSE-2.0")
}

func TestNewCatalogDataUnknownSource(t *testing.T) {
	data := NewCatalogData([]skills.Record{{Name: "orphan"}}, fixedNow)
	require.Len(t, data.Groups, 1)
	assert.Equal(t, "Unknown", data.Groups[0].Source)
}

func TestGeneratorWrite(t *testing.T) {
	dir := t.TempDir()
	catalogPath := filepath.Join(dir, "CATALOG.md")
	licensesPath := filepath.Join(dir, "docs", "THIRD_PARTY_LICENSES.md")
	require.NoError(t, os.WriteFile(catalogPath, []byte("stale"), 0o644))

	records := []skills.Record{{Name: "foo", Description: "Does foo", Source: "org/a", License: "MIT"}}
	sources := []registry.Source{{Name: "org/a", URL: "https://github.com/org/a"}}

	require.NoError(t, NewGenerator().Write(context.Background(), catalogPath, licensesPath, records, sources, fixedNow))

	catalog, err := os.ReadFile(catalogPath)
	require.NoError(t, err)
	assert.Contains(t, string(catalog), "| `foo` | Does foo |")
	assert.NotContains(t, string(catalog), "stale")

	licenses, err := os.ReadFile(licensesPath)
	require.NoError(t, err)
	assert.Contains(t, string(licenses), "| MIT | 1 |")
}
