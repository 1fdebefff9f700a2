// Package skills recognises skill packages: directories containing a SKILL.md
// file whose YAML frontmatter names and describes the skill. It also defines
// the metadata record produced for every skill copied into the collection.
package skills

import (
	"github.com/skillfetch/skillfetch/pkg/registry"
)

// FileName is the descriptor every skill directory must contain.
const FileName = "SKILL.md"

// UnknownLicense is recorded when neither the skill nor its source declares one.
const UnknownLicense = "Unknown"

// Descriptor is the parsed content of a SKILL.md file.
type Descriptor struct {
	Name        string                 // name from frontmatter
	Description string                 // description from frontmatter
	License     string                 // optional license from frontmatter
	Fields      map[string]interface{} // complete frontmatter mapping
	Body        string                 // markdown after the frontmatter
}

// Record describes one skill copied into the collection.
type Record struct {
	Name         string `json:"name"`
	OriginalName string `json:"original_name"`
	Description  string `json:"description"`
	Source       string `json:"source"`
	SourceURL    string `json:"source_url"`
	License      string `json:"license"`
}

// NewRecord builds the metadata record for a skill copied under destName.
// The license falls back from the descriptor to the source, then to Unknown.
func NewRecord(destName string, d *Descriptor, src registry.Source) Record {
	license := d.License
	if license == "" {
		license = src.License
	}
	if license == "" {
		license = UnknownLicense
	}

	return Record{
		Name:         destName,
		OriginalName: d.Name,
		Description:  d.Description,
		Source:       src.Name,
		SourceURL:    src.URL,
		License:      license,
	}
}
