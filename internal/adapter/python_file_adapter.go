package adapter

import (
	"path/filepath"
	"strings"

	m "github.com/mouse-blink/subshift/internal/model"
)

// PythonFileAdapter encapsulates Python-specific parsing so the domain layer
// can focus on strategy rules while delegating syntax details to an
// infrastructure component.
type PythonFileAdapter interface {
	// Parse builds a module tree from the provided filename/source pair.
	// Constructs outside the recognized subset parse to raw nodes; Parse
	// never fails on syntactically plausible Python.
	Parse(filename string, src []byte) *m.Module

	// IsTestFile reports whether the filename follows a unittest/pytest
	// test module naming convention.
	IsTestFile(filename string) bool
}

// LocalPythonFileAdapter provides a concrete PythonFileAdapter backed by the
// built-in tokenizer and parser.
type LocalPythonFileAdapter struct{}

// NewLocalPythonFileAdapter constructs a LocalPythonFileAdapter.
func NewLocalPythonFileAdapter() *LocalPythonFileAdapter {
	return &LocalPythonFileAdapter{}
}

// Parse tokenizes and parses the source into a Module named after the file.
func (a *LocalPythonFileAdapter) Parse(filename string, src []byte) *m.Module {
	return parseModule(moduleName(filename), src)
}

// IsTestFile matches the test_*.py and *_test.py conventions.
func (a *LocalPythonFileAdapter) IsTestFile(filename string) bool {
	base := filepath.Base(filename)

	if !strings.HasSuffix(base, ".py") {
		return false
	}

	stem := strings.TrimSuffix(base, ".py")

	return strings.HasPrefix(stem, "test_") || strings.HasSuffix(stem, "_test")
}

func moduleName(filename string) string {
	return strings.TrimSuffix(filepath.Base(filename), ".py")
}
