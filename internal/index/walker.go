package index

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ricesearch/rice-chunk/internal/pkg/errors"
)

// WalkConfig configures repository discovery.
type WalkConfig struct {
	// Extensions whitelists file extensions (with leading dot). Empty means
	// any extension.
	Extensions []string

	// Ignore holds extra gitignore-style patterns.
	Ignore []string
}

// Walk returns the slash-separated paths, relative to root, of files that
// pass the ignore filter and the extension whitelist, sorted.
func Walk(root string, cfg WalkConfig) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, errors.IOError("stat repository root", err).WithDetail("root", root)
	}
	if !info.IsDir() {
		return nil, errors.ValidationError("repository root is not a directory").WithDetail("root", root)
	}

	filter, err := NewIgnoreFilter(root, cfg.Ignore...)
	if err != nil {
		return nil, errors.IOError("load ignore files", err)
	}

	allowed := make(map[string]bool, len(cfg.Extensions))
	for _, ext := range cfg.Extensions {
		allowed[strings.ToLower(ext)] = true
	}

	var files []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if filter.ShouldIgnore(path, d.IsDir()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if !d.Type().IsRegular() {
			return nil
		}

		if len(allowed) > 0 && !allowed[strings.ToLower(filepath.Ext(path))] {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, errors.IOError("walk repository", err).WithDetail("root", root)
	}

	sort.Strings(files)
	return files, nil
}

// ReadDocument loads a file below root. Files larger than maxSize are not
// read; the returned document carries only the size so validation rejects it.
func ReadDocument(root, rel string, maxSize int64) (*Document, error) {
	full := filepath.Join(root, filepath.FromSlash(rel))

	info, err := os.Stat(full)
	if err != nil {
		return nil, errors.IOError("stat file", err).WithDetail("path", rel)
	}
	if maxSize > 0 && info.Size() > maxSize {
		doc := NewDocument(rel, "")
		doc.Size = info.Size()
		return doc, nil
	}

	data, err := os.ReadFile(full)
	if err != nil {
		return nil, errors.IOError("read file", err).WithDetail("path", rel)
	}
	return NewDocument(rel, string(data)), nil
}
