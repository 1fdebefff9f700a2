// Package docs renders the human-readable documents that accompany the
// skills collection: the catalog and the third-party license summary.
package docs

import (
	"bytes"
	"context"
	"embed"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/template"
	"time"

	"github.com/pkg/errors"

	"github.com/skillfetch/skillfetch/pkg/logger"
	"github.com/skillfetch/skillfetch/pkg/registry"
	"github.com/skillfetch/skillfetch/pkg/skills"
)

// Template files
//
//go:embed templates/*
var TemplateFS embed.FS

const (
	CatalogTemplate  = "templates/catalog.md.tmpl"
	LicensesTemplate = "templates/licenses.md.tmpl"

	// MaxDescriptionLength is the number of characters of a description
	// shown in the catalog before it is cut short.
	MaxDescriptionLength = 100

	// TimestampLayout formats the "Last updated" line. Times are rendered in UTC.
	TimestampLayout = "2006-01-02 15:04 UTC"

	unspecifiedLicense = "See repository"
	unknownSource      = "Unknown"
)

// CatalogRow is one skill line in the catalog.
type CatalogRow struct {
	Name        string
	Description string
}

// SourceGroup holds the catalog rows of one source.
type SourceGroup struct {
	Source string
	Skills []CatalogRow
}

// CatalogData is the input of the catalog template.
type CatalogData struct {
	LastUpdated string
	Total       int
	Groups      []SourceGroup
}

// SourceEntry is one source section of the license document.
type SourceEntry struct {
	Name        string
	URL         string
	License     string
	Description string
}

// LicenseCount is one row of the license summary table.
type LicenseCount struct {
	License string
	Count   int
}

// LicensesData is the input of the license template.
type LicensesData struct {
	LastUpdated string
	Sources     []SourceEntry
	Licenses    []LicenseCount
}

// NewCatalogData groups records by source. Groups are sorted by source name
// and rows by destination name.
func NewCatalogData(records []skills.Record, now time.Time) CatalogData {
	bySource := make(map[string][]CatalogRow)
	for _, r := range records {
		source := r.Source
		if source == "" {
			source = unknownSource
		}
		bySource[source] = append(bySource[source], CatalogRow{
			Name:        r.Name,
			Description: TableCell(r.Description, MaxDescriptionLength),
		})
	}

	groups := make([]SourceGroup, 0, len(bySource))
	for source, rows := range bySource {
		sort.SliceStable(rows, func(i, j int) bool { return rows[i].Name < rows[j].Name })
		groups = append(groups, SourceGroup{Source: source, Skills: rows})
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Source < groups[j].Source })

	return CatalogData{
		LastUpdated: now.UTC().Format(TimestampLayout),
		Total:       len(records),
		Groups:      groups,
	}
}

// NewLicensesData lists every registry source in registry order and counts
// the effective license of every record.
func NewLicensesData(records []skills.Record, sources []registry.Source, now time.Time) LicensesData {
	entries := make([]SourceEntry, 0, len(sources))
	for _, src := range sources {
		license := src.License
		if license == "" {
			license = unspecifiedLicense
		}
		entries = append(entries, SourceEntry{
			Name:        src.Name,
			URL:         src.URL,
			License:     license,
			Description: src.Description,
		})
	}

	counts := make(map[string]int)
	for _, r := range records {
		license := r.License
		if license == "" {
			license = skills.UnknownLicense
		}
		counts[license]++
	}
	licenses := make([]LicenseCount, 0, len(counts))
	for license, count := range counts {
		licenses = append(licenses, LicenseCount{License: license, Count: count})
	}
	sort.Slice(licenses, func(i, j int) bool { return licenses[i].License < licenses[j].License })

	return LicensesData{
		LastUpdated: now.UTC().Format(TimestampLayout),
		Sources:     entries,
		Licenses:    licenses,
	}
}

// Truncate shortens s to limit characters, appending "..." when anything was
// cut.
func Truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}

// TableCell makes s safe for a single markdown table cell: whitespace runs
// including newlines collapse to one space, the result is truncated to limit
// characters and pipes are escaped.
func TableCell(s string, limit int) string {
	s = strings.Join(strings.Fields(s), " ")
	s = Truncate(s, limit)
	return strings.ReplaceAll(s, "|", `\|`)
}

// RenderCatalog renders the skills catalog.
func RenderCatalog(records []skills.Record, now time.Time) (string, error) {
	return render(CatalogTemplate, NewCatalogData(records, now))
}

// RenderLicenses renders the third-party license document.
func RenderLicenses(records []skills.Record, sources []registry.Source, now time.Time) (string, error) {
	return render(LicensesTemplate, NewLicensesData(records, sources, now))
}

func render(name string, data interface{}) (string, error) {
	tmplContent, err := TemplateFS.ReadFile(name)
	if err != nil {
		return "", errors.Wrap(err, "failed to read template file")
	}

	tmpl, err := template.New(filepath.Base(name)).Parse(string(tmplContent))
	if err != nil {
		return "", errors.Wrap(err, "failed to parse template")
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", errors.Wrap(err, "failed to execute template")
	}

	return buf.String(), nil
}

// Generator writes the catalog and license documents.
type Generator struct{}

// NewGenerator creates a Generator.
func NewGenerator() *Generator {
	return &Generator{}
}

// Write renders both documents and replaces the files at the given paths.
func (g *Generator) Write(ctx context.Context, catalogPath, licensesPath string, records []skills.Record, sources []registry.Source, now time.Time) error {
	catalog, err := RenderCatalog(records, now)
	if err != nil {
		return errors.Wrap(err, "failed to render catalog")
	}
	if err := writeFile(catalogPath, catalog); err != nil {
		return err
	}
	logger.G(ctx).WithField("path", catalogPath).Info("generated catalog")

	licenses, err := RenderLicenses(records, sources, now)
	if err != nil {
		return errors.Wrap(err, "failed to render license document")
	}
	if err := writeFile(licensesPath, licenses); err != nil {
		return err
	}
	logger.G(ctx).WithField("path", licensesPath).Info("generated license document")

	return nil
}

func writeFile(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(err, "failed to create directory for %s", path)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return errors.Wrapf(err, "failed to write %s", path)
	}
	return nil
}
