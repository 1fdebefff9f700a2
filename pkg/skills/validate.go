package skills

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/skillfetch/skillfetch/pkg/logger"
)

const frontmatterDelimiter = "---"

var (
	// ErrNoDescriptor means the directory has no SKILL.md.
	ErrNoDescriptor = errors.New("missing " + FileName)
	// ErrNoFrontmatter means SKILL.md does not open and close a frontmatter block.
	ErrNoFrontmatter = errors.New("missing frontmatter")
	// ErrMissingName means the frontmatter has no usable name.
	ErrMissingName = errors.New("skill name is required in frontmatter")
	// ErrMissingDescription means the frontmatter has no usable description.
	ErrMissingDescription = errors.New("skill description is required in frontmatter")
)

// MalformedError reports frontmatter that is not a valid YAML mapping.
type MalformedError struct {
	Path string
	Err  error
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("malformed frontmatter in %s: %v", e.Path, e.Err)
}

func (e *MalformedError) Unwrap() error { return e.Err }

// Parse reads dir/SKILL.md and returns its descriptor. It fails unless the
// file starts with a frontmatter block whose mapping has a non-empty name and
// description.
func Parse(dir string) (*Descriptor, error) {
	path := filepath.Join(dir, FileName)
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoDescriptor
		}
		return nil, errors.Wrap(err, "failed to read skill file")
	}

	frontmatter, body, ok := splitFrontmatter(string(content))
	if !ok {
		return nil, ErrNoFrontmatter
	}

	var fields map[string]interface{}
	if err := yaml.Unmarshal([]byte(frontmatter), &fields); err != nil {
		return nil, &MalformedError{Path: path, Err: err}
	}
	if fields == nil {
		fields = map[string]interface{}{}
	}

	name := scalarField(fields, "name")
	description := scalarField(fields, "description")
	if name == "" {
		return nil, ErrMissingName
	}
	if description == "" {
		return nil, ErrMissingDescription
	}

	return &Descriptor{
		Name:        name,
		Description: description,
		License:     scalarField(fields, "license"),
		Fields:      fields,
		Body:        body,
	}, nil
}

// Validate reports whether dir is a well-formed skill. Malformed frontmatter
// is logged as a warning; every other rejection is logged at debug level.
func Validate(ctx context.Context, dir string) bool {
	_, err := Parse(dir)
	if err == nil {
		return true
	}

	log := logger.G(ctx).WithField("dir", dir)
	var malformed *MalformedError
	if errors.As(err, &malformed) {
		log.WithError(err).Warn("could not parse skill frontmatter")
	} else {
		log.WithError(err).Debug("not a skill directory")
	}
	return false
}

// scalarField returns a frontmatter value as trimmed text. Mappings and
// sequences are not usable as names or descriptions and yield "".
func scalarField(fields map[string]interface{}, key string) string {
	switch v := fields[key].(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case map[interface{}]interface{}, map[string]interface{}, []interface{}:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

// splitFrontmatter returns the text between the opening and closing
// delimiter lines and the body after them. ok is false when the content does
// not open with a delimiter line or never closes the block.
func splitFrontmatter(content string) (string, string, bool) {
	if !strings.HasPrefix(content, frontmatterDelimiter) {
		return "", "", false
	}

	lines := strings.Split(content, "\n")
	if strings.TrimSpace(lines[0]) != frontmatterDelimiter {
		return "", "", false
	}

	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) != frontmatterDelimiter {
			continue
		}
		block := make([]string, 0, i-1)
		for _, line := range lines[1:i] {
			block = append(block, strings.TrimSuffix(line, "\r"))
		}
		body := strings.TrimLeft(strings.Join(lines[i+1:], "\n"), "\r\n")
		return strings.Join(block, "\n"), body, true
	}

	return "", "", false
}
