package aggregate

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/rogpeppe/go-internal/lockedfile"

	"github.com/skillfetch/skillfetch/pkg/skills"
)

// RunMetadata is the machine-readable summary written after every run.
type RunMetadata struct {
	LastUpdated      string          `json:"last_updated"`
	SkillCount       int             `json:"skill_count"`
	SourcesProcessed int             `json:"sources_processed"`
	Skills           []skills.Record `json:"skills"`
}

// NewRunMetadata summarises a run at the given time.
func NewRunMetadata(result *RunResult, now time.Time) RunMetadata {
	records := result.Records
	if records == nil {
		records = []skills.Record{}
	}
	return RunMetadata{
		LastUpdated:      now.Format(time.RFC3339),
		SkillCount:       len(records),
		SourcesProcessed: result.SourcesProcessed,
		Skills:           records,
	}
}

// WriteRunMetadata writes the run summary as indented JSON, replacing any
// previous file.
func WriteRunMetadata(path string, result *RunResult, now time.Time) error {
	data, err := json.MarshalIndent(NewRunMetadata(result, now), "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal run metadata")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, "failed to create metadata directory")
	}
	if err := lockedfile.Write(path, bytes.NewReader(append(data, '\n')), 0o644); err != nil {
		return errors.Wrapf(err, "failed to write %s", path)
	}
	return nil
}
