// Package adapter contains parsing and infrastructure adapters for the
// subshift CLI.
package adapter

import (
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	m "github.com/mouse-blink/subshift/internal/model"
)

// SourceFSAdapter abstracts filesystem-specific operations that the domain
// layer relies on when scanning Python projects. It intentionally hides
// direct `os` access so the workflow logic can be tested without touching
// the disk.
type SourceFSAdapter interface {
	// DiscoverTestFiles walks root and returns the Python test files under
	// it, sorted by path. Paths matching any exclude pattern are skipped.
	// When recursive is false only the root directory itself is scanned.
	DiscoverTestFiles(root m.Path, recursive bool, excludes []*regexp.Regexp) ([]m.SourceFile, error)

	// ReadFile loads a file from disk and returns its contents.
	ReadFile(path m.Path) ([]byte, error)

	// WriteFile writes content to a file with the given permissions.
	WriteFile(path m.Path, content []byte, perm os.FileMode) error

	// BackupFile copies the file at path to path + ".bak" before a rewrite
	// touches it.
	BackupFile(path m.Path) (m.Path, error)

	// HashFile returns a stable fingerprint (SHA-256) for the file at path.
	HashFile(path m.Path) (string, error)

	// FileInfo returns metadata for a path so the domain can check existence
	// or distinguish between files and directories when necessary.
	FileInfo(path m.Path) (os.FileInfo, error)

	// RelPath returns the relative path from base to target.
	RelPath(base, target m.Path) (m.Path, error)

	// JoinPath joins path elements into a single path.
	JoinPath(elem ...string) m.Path
}

// skipDirs are directory names never worth descending into.
var skipDirs = map[string]struct{}{
	".git": {}, ".hg": {}, ".tox": {}, ".venv": {}, "venv": {},
	"__pycache__": {}, "node_modules": {}, ".mypy_cache": {}, ".pytest_cache": {},
}

// LocalSourceFSAdapter is the concrete implementation backing the
// SourceFSAdapter interface with direct filesystem access.
type LocalSourceFSAdapter struct {
	files PythonFileAdapter
}

// NewLocalSourceFSAdapter constructs a LocalSourceFSAdapter ready to be
// wired into the workflow.
func NewLocalSourceFSAdapter(files PythonFileAdapter) *LocalSourceFSAdapter {
	return &LocalSourceFSAdapter{files: files}
}

// DiscoverTestFiles walks root collecting Python test files. A root that is
// itself a file is returned as-is when it matches the naming convention.
func (a *LocalSourceFSAdapter) DiscoverTestFiles(
	root m.Path, recursive bool, excludes []*regexp.Regexp,
) ([]m.SourceFile, error) {
	rootStr := string(root)

	info, err := os.Stat(rootStr)
	if err != nil {
		return nil, err
	}

	if !info.IsDir() {
		if !a.files.IsTestFile(rootStr) {
			return nil, fmt.Errorf("%s is not a Python test file", root)
		}

		file, err := a.sourceFile(root, rootStr)
		if err != nil {
			return nil, err
		}

		return []m.SourceFile{file}, nil
	}

	var found []m.SourceFile

	err = filepath.Walk(rootStr, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if info.IsDir() {
			if path == rootStr {
				return nil
			}

			if !recursive {
				return filepath.SkipDir
			}

			if _, skip := skipDirs[filepath.Base(path)]; skip {
				return filepath.SkipDir
			}

			return nil
		}

		if !a.files.IsTestFile(path) {
			return nil
		}

		for _, re := range excludes {
			if re.MatchString(path) {
				return nil
			}
		}

		file, err := a.sourceFile(root, path)
		if err != nil {
			return err
		}

		found = append(found, file)

		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(found, func(i, j int) bool {
		return found[i].FullPath < found[j].FullPath
	})

	return found, nil
}

func (a *LocalSourceFSAdapter) sourceFile(root m.Path, path string) (m.SourceFile, error) {
	hash, err := a.HashFile(m.Path(path))
	if err != nil {
		return m.SourceFile{}, err
	}

	short, err := filepath.Rel(filepath.Dir(string(root)), path)
	if err != nil || strings.HasPrefix(short, "..") {
		short = path
	}

	return m.SourceFile{
		FullPath:  m.Path(path),
		ShortPath: m.Path(short),
		Hash:      hash,
	}, nil
}

// ReadFile loads file contents from disk.
func (a *LocalSourceFSAdapter) ReadFile(path m.Path) ([]byte, error) {
	return os.ReadFile(string(path))
}

// WriteFile writes content to a file with the given permissions.
func (a *LocalSourceFSAdapter) WriteFile(path m.Path, content []byte, perm os.FileMode) error {
	return os.WriteFile(string(path), content, perm)
}

// BackupFile writes a sibling .bak copy preserving the original mode.
func (a *LocalSourceFSAdapter) BackupFile(path m.Path) (m.Path, error) {
	info, err := os.Stat(string(path))
	if err != nil {
		return "", err
	}

	content, err := os.ReadFile(string(path))
	if err != nil {
		return "", err
	}

	backup := m.Path(string(path) + ".bak")
	if err := os.WriteFile(string(backup), content, info.Mode()); err != nil {
		return "", err
	}

	return backup, nil
}

// HashFile returns the SHA-256 hash of the file at the provided path.
func (a *LocalSourceFSAdapter) HashFile(path m.Path) (string, error) {
	f, err := os.Open(string(path))
	if err != nil {
		return "", err
	}

	defer func() {
		_ = f.Close()
	}()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}

	return fmt.Sprintf("%x", h.Sum(nil)), nil
}

// FileInfo returns os.FileInfo metadata for the given path.
func (a *LocalSourceFSAdapter) FileInfo(path m.Path) (os.FileInfo, error) {
	return os.Stat(string(path))
}

// RelPath returns the relative path from base to target.
func (a *LocalSourceFSAdapter) RelPath(base, target m.Path) (m.Path, error) {
	rel, err := filepath.Rel(string(base), string(target))
	if err != nil {
		return "", err
	}

	return m.Path(rel), nil
}

// JoinPath joins path elements into a single path.
func (a *LocalSourceFSAdapter) JoinPath(elem ...string) m.Path {
	return m.Path(filepath.Join(elem...))
}
