// Package index walks a repository and turns its files into chunk records.
package index

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ricesearch/rice-chunk/internal/ast"
	"github.com/ricesearch/rice-chunk/internal/pkg/errors"
	"github.com/ricesearch/rice-chunk/internal/pkg/hash"
)

// Document represents a source file to be chunked.
type Document struct {
	Path     string `json:"path"` // slash-separated, relative to the repository root
	Content  string `json:"content"`
	Language string `json:"language"`
	Hash     string `json:"hash"`
	Size     int64  `json:"size"`
}

// NewDocument creates a new document from path and content.
func NewDocument(path, content string) *Document {
	return &Document{
		Path:     filepath.ToSlash(path),
		Content:  content,
		Language: ast.DetectLanguage(path),
		Hash:     hash.SHA256String(content),
		Size:     int64(len(content)),
	}
}

// FileName returns the base name of the document path.
func (d *Document) FileName() string {
	return filepath.Base(filepath.FromSlash(d.Path))
}

// Content limits
const (
	MaxDocumentSize = 10 * 1024 * 1024 // 10MB
	MaxPathLength   = 1024
)

// ValidateDocument validates a document for chunking. maxSize <= 0 uses
// MaxDocumentSize.
func ValidateDocument(doc *Document, maxSize int64) error {
	if maxSize <= 0 {
		maxSize = MaxDocumentSize
	}

	if doc.Path == "" {
		return errors.ValidationError("document path cannot be empty")
	}

	if len(doc.Path) > MaxPathLength {
		return errors.ValidationError(fmt.Sprintf("path exceeds maximum length of %d", MaxPathLength))
	}

	if doc.Size > maxSize {
		return errors.ValidationError(fmt.Sprintf("document size %d exceeds maximum of %d bytes", doc.Size, maxSize))
	}

	return nil
}

// RepoName derives a repository name from its root directory.
func RepoName(root string) string {
	abs, err := filepath.Abs(root)
	if err != nil {
		abs = root
	}
	name := filepath.Base(filepath.Clean(abs))
	if name == "." || name == string(filepath.Separator) || name == "" {
		return "repo"
	}
	return strings.TrimSuffix(name, ".git")
}
