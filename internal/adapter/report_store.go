package adapter

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	m "github.com/mouse-blink/subshift/internal/model"
)

// ReportStore persists and reloads decision models so an analyze run can be
// inspected later or fed into a migrate run.
type ReportStore interface {
	Save(path m.Path, model *m.DecisionModel) error
	Load(path m.Path) (*m.DecisionModel, error)
}

// FileReportStore writes decision models to disk, choosing the encoding from
// the file extension: .yaml/.yml for YAML, anything else JSON.
type FileReportStore struct{}

// NewReportStore constructs a FileReportStore.
func NewReportStore() *FileReportStore {
	return &FileReportStore{}
}

// Save encodes the model and writes it to path, creating parent directories.
func (s *FileReportStore) Save(path m.Path, model *m.DecisionModel) error {
	var (
		data []byte
		err  error
	)

	if isYAMLPath(path) {
		data, err = yaml.Marshal(model)
	} else {
		data, err = json.MarshalIndent(model, "", "  ")
	}

	if err != nil {
		return fmt.Errorf("encode decision model: %w", err)
	}

	if dir := filepath.Dir(string(path)); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create report directory: %w", err)
		}
	}

	if err := os.WriteFile(string(path), data, 0o600); err != nil {
		return fmt.Errorf("write report %s: %w", path, err)
	}

	return nil
}

// Load reads and decodes a previously saved decision model.
func (s *FileReportStore) Load(path m.Path) (*m.DecisionModel, error) {
	data, err := os.ReadFile(string(path))
	if err != nil {
		return nil, fmt.Errorf("read report %s: %w", path, err)
	}

	model := m.NewDecisionModel()

	if isYAMLPath(path) {
		err = yaml.Unmarshal(data, model)
	} else {
		err = json.Unmarshal(data, model)
	}

	if err != nil {
		return nil, fmt.Errorf("decode report %s: %w", path, err)
	}

	return model, nil
}

func isYAMLPath(path m.Path) bool {
	switch strings.ToLower(filepath.Ext(string(path))) {
	case ".yaml", ".yml":
		return true
	default:
		return false
	}
}
