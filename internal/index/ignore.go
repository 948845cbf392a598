package index

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
)

// DefaultIgnorePatterns are always excluded from a walk.
var DefaultIgnorePatterns = []string{
	".git",
	"node_modules",
	"__pycache__",
	"*.pyc",
	".DS_Store",
	"*.lock",
	"*.log",
	"vendor",
	"dist",
	"build",
	".idea",
	".vscode",
}

// IgnoreFilter matches paths against the default patterns and the root's
// .gitignore and .riceignore files.
type IgnoreFilter struct {
	root     string
	patterns []gitignore.Pattern
}

// NewIgnoreFilter creates a filter for root. Missing ignore files are fine.
func NewIgnoreFilter(root string, extra ...string) (*IgnoreFilter, error) {
	f := &IgnoreFilter{root: root}

	for _, p := range DefaultIgnorePatterns {
		f.patterns = append(f.patterns, gitignore.ParsePattern(p, nil))
	}
	for _, p := range extra {
		f.patterns = append(f.patterns, gitignore.ParsePattern(p, nil))
	}

	for _, name := range []string{".gitignore", ".riceignore"} {
		if err := f.loadFile(filepath.Join(root, name)); err != nil {
			return nil, err
		}
	}

	return f, nil
}

func (f *IgnoreFilter) loadFile(path string) error {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		f.patterns = append(f.patterns, gitignore.ParsePattern(line, nil))
	}
	return scanner.Err()
}

// ShouldIgnore reports whether path is excluded. Later patterns win, so a
// negated pattern can re-include a path.
func (f *IgnoreFilter) ShouldIgnore(path string, isDir bool) bool {
	relPath, err := filepath.Rel(f.root, path)
	if err != nil || relPath == "." {
		return false
	}

	parts := strings.Split(filepath.ToSlash(relPath), "/")
	ignored := false
	for _, pattern := range f.patterns {
		switch pattern.Match(parts, isDir) {
		case gitignore.Exclude:
			ignored = true
		case gitignore.Include:
			ignored = false
		}
	}
	return ignored
}
