package app

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"

	"github.com/ludo-technologies/pyqc/internal/config"
	"github.com/ludo-technologies/pyqc/internal/constants"
)

// FileHelper collects the Python files a run covers
type FileHelper struct {
	root      string
	recursive bool
	ignorer   *ignore.GitIgnore
}

// NewFileHelper creates a FileHelper rooted at root. Exclude patterns use
// gitignore syntax and are matched against paths relative to root; with
// RespectGitignore the project's .gitignore applies too.
func NewFileHelper(root string, analysis config.AnalysisConfig) *FileHelper {
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}
	h := &FileHelper{root: root, recursive: analysis.Recursive}

	gitignore := filepath.Join(root, ".gitignore")
	if analysis.RespectGitignore {
		if _, err := os.Stat(gitignore); err == nil {
			if gi, err := ignore.CompileIgnoreFileAndLines(gitignore, analysis.ExcludePatterns...); err == nil {
				h.ignorer = gi
				return h
			}
		}
	}
	if len(analysis.ExcludePatterns) > 0 {
		h.ignorer = ignore.CompileIgnoreLines(analysis.ExcludePatterns...)
	}
	return h
}

// CollectPythonFiles expands paths into Python files. Explicitly named
// files are kept even when an exclude pattern matches them; files found by
// walking a directory are filtered.
func (h *FileHelper) CollectPythonFiles(paths []string) ([]string, error) {
	if len(paths) == 0 {
		paths = []string{h.root}
	}

	var files []string
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, err
		}

		if !info.IsDir() {
			if IsPythonFile(path) {
				files = append(files, path)
			}
			continue
		}

		if !h.recursive {
			entries, err := os.ReadDir(path)
			if err != nil {
				return nil, err
			}
			for _, entry := range entries {
				filePath := filepath.Join(path, entry.Name())
				if !entry.IsDir() && IsPythonFile(filePath) && !h.Excluded(filePath) {
					files = append(files, filePath)
				}
			}
			continue
		}

		err = filepath.WalkDir(path, func(filePath string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}

			// Skip excluded directories early
			if d.IsDir() {
				if filePath != path && (slices.Contains(constants.DefaultExcludeDirs, d.Name()) || h.Excluded(filePath)) {
					return filepath.SkipDir
				}
				return nil
			}

			if IsPythonFile(filePath) && !h.Excluded(filePath) {
				files = append(files, filePath)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	return files, nil
}

// Excluded reports whether path matches an exclude pattern or .gitignore
func (h *FileHelper) Excluded(path string) bool {
	if h.ignorer == nil {
		return false
	}
	rel := path
	if abs, err := filepath.Abs(path); err == nil && h.root != "" {
		if r, err := filepath.Rel(h.root, abs); err == nil && !strings.HasPrefix(r, "..") {
			rel = r
		}
	}
	return h.ignorer.MatchesPath(filepath.ToSlash(rel))
}

// Accepts reports whether an edited file should be checked
func (h *FileHelper) Accepts(path string) bool {
	if !IsPythonFile(path) || h.Excluded(path) {
		return false
	}
	for _, part := range strings.Split(filepath.ToSlash(filepath.Dir(path)), "/") {
		if slices.Contains(constants.DefaultExcludeDirs, part) {
			return false
		}
	}
	return true
}

// FileExists checks if a regular file exists
func FileExists(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return !info.IsDir(), nil
}

// IsPythonFile checks the extension
func IsPythonFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".py" || ext == ".pyi"
}
