package datasource

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/quantfleet/quantfleet/pkg/models"
)

// FileSource serves rows from per-trigger-time JSON dumps dropped by an
// external fetcher. Layout: <dir>/<source key>/<trigger time>.json with
// spaces mapped to "_" and colons to "-" in the filename. A missing file
// means "no rows for this trigger time", not an error, so the pipeline can
// run against partial dumps.
type FileSource struct {
	name string
	dir  string
}

// NewFileSource creates a source reading from dir.
func NewFileSource(name, dir string) *FileSource {
	return &FileSource{name: name, dir: dir}
}

// Name implements Source.
func (s *FileSource) Name() string { return s.name }

// GetData implements Source.
func (s *FileSource) GetData(_ context.Context, triggerTime string) ([]models.Document, error) {
	stem := strings.ReplaceAll(strings.ReplaceAll(triggerTime, " ", "_"), ":", "-")
	path := filepath.Join(s.dir, s.name, stem+".json")

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read source dump %s: %w", path, err)
	}
	var rows []models.Document
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("source dump corrupt %s: %w", path, err)
	}
	return rows, nil
}
