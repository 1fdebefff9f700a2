package discovery

import (
	"bytes"
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/rogpeppe/go-internal/lockedfile"
)

// Output is the discovery output file.
type Output struct {
	Repositories []Candidate `json:"repositories"`
	LastScan     *string     `json:"last_scan"`
}

// Store reads and writes the discovery output file.
type Store struct {
	path string
}

// NewStore creates a Store for the file at path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the output file location.
func (s *Store) Path() string {
	return s.path
}

// Load reads the previous scan. A missing file is an empty output with no
// last scan.
func (s *Store) Load() (*Output, error) {
	data, err := lockedfile.Read(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return &Output{Repositories: []Candidate{}}, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", s.path)
	}

	var out Output
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, errors.Wrapf(err, "failed to parse %s", s.path)
	}
	if out.Repositories == nil {
		out.Repositories = []Candidate{}
	}
	return &out, nil
}

// Save replaces the output file with candidates and the scan time. Earlier
// results are never merged in.
func (s *Store) Save(candidates []Candidate, scannedAt time.Time) error {
	if candidates == nil {
		candidates = []Candidate{}
	}
	lastScan := scannedAt.Format(time.RFC3339)
	data, err := json.MarshalIndent(Output{Repositories: candidates, LastScan: &lastScan}, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal discovery output")
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return errors.Wrap(err, "failed to create discovery output directory")
	}
	if err := lockedfile.Write(s.path, bytes.NewReader(append(data, '\n')), 0o644); err != nil {
		return errors.Wrapf(err, "failed to write %s", s.path)
	}
	return nil
}
