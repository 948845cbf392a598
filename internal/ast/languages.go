package ast

import (
	"path/filepath"
	"sort"
	"strings"
)

// Language constants used throughout the AST package
const (
	LangGo         = "go"
	LangPython     = "python"
	LangTypeScript = "typescript"
	LangJavaScript = "javascript"
	LangJava       = "java"
	LangRust       = "rust"
	LangMarkdown   = "markdown"
	LangVerilog    = "verilog"
	LangUnknown    = "unknown"
)

var languageExtensions = map[string]string{
	".go":       LangGo,
	".py":       LangPython,
	".ts":       LangTypeScript,
	".tsx":      LangTypeScript,
	".js":       LangJavaScript,
	".jsx":      LangJavaScript,
	".mjs":      LangJavaScript,
	".java":     LangJava,
	".rs":       LangRust,
	".md":       LangMarkdown,
	".markdown": LangMarkdown,
	".v":        LangVerilog,
	".sv":       LangVerilog,
	".svh":      LangVerilog,
}

// DetectLanguage detects the language tag from a file extension.
func DetectLanguage(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if lang, ok := languageExtensions[ext]; ok {
		return lang
	}
	return LangUnknown
}

// Extensions returns every extension DetectLanguage recognizes.
func Extensions() []string {
	exts := make([]string, 0, len(languageExtensions))
	for ext := range languageExtensions {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}
