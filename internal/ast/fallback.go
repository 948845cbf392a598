//go:build !cgo

package ast

import "log/slog"

// Without cgo there are no tree-sitter grammars. Files in those languages
// still chunk, as a single run of glue text.
func treeSitterParsers() []Parser {
	slog.Warn("Tree-Sitter not available (CGO disabled), only markdown is parsed")
	return nil
}
