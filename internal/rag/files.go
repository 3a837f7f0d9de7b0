// Package rag builds and queries the per-repository semantic index used to
// give the model context beyond the diff.
package rag

import (
	"bytes"
	"path/filepath"
	"slices"
	"strings"
	"unicode/utf8"
)

// File is a source file to be indexed, path relative to the repository root.
type File struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

var binaryExts = map[string]bool{
	"png": true, "jpg": true, "jpeg": true, "gif": true, "bmp": true, "ico": true, "webp": true, "svg": true,
	"pdf": true, "zip": true, "gz": true, "tgz": true, "tar": true, "bz2": true, "xz": true, "7z": true, "rar": true,
	"exe": true, "dll": true, "so": true, "dylib": true, "a": true, "o": true, "bin": true, "class": true, "jar": true,
	"woff": true, "woff2": true, "ttf": true, "otf": true, "eot": true,
	"mp3": true, "mp4": true, "mov": true, "avi": true, "wav": true, "ogg": true, "webm": true,
	"pyc": true, "wasm": true, "db": true, "sqlite": true, "lock": true,
}

var excludedNames = []string{"package-lock.json", "yarn.lock", "pnpm-lock.yaml", "go.sum"}

// DefaultExcludeDirs are skipped in every repository.
var DefaultExcludeDirs = []string{"node_modules", "vendor", "dist", "build", "target", "__pycache__"}

// IsIndexable reports whether a file should be embedded: binary and
// generated files are skipped by name, and content is sniffed for NUL bytes
// and invalid UTF-8.
func IsIndexable(path string, content []byte) bool {
	name := filepath.Base(path)
	if slices.Contains(excludedNames, name) {
		return false
	}
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	if binaryExts[ext] {
		return false
	}
	if len(bytes.TrimSpace(content)) == 0 {
		return false
	}
	sniff := content
	if len(sniff) > 8000 {
		sniff = sniff[:8000]
	}
	if bytes.IndexByte(sniff, 0) >= 0 {
		return false
	}
	return utf8.Valid(sniff) || utf8.Valid(sniff[:lastRuneBoundary(sniff)])
}

// lastRuneBoundary trims a possibly cut multi-byte rune at the end of b.
func lastRuneBoundary(b []byte) int {
	for i := len(b); i > 0 && i > len(b)-utf8.UTFMax; i-- {
		if utf8.RuneStart(b[i-1]) {
			return i - 1
		}
	}
	return len(b)
}

// IsExcludedDir reports whether a directory name is skipped. Hidden
// directories are always skipped.
func IsExcludedDir(name string, excludes []string) bool {
	if strings.HasPrefix(name, ".") && name != "." {
		return true
	}
	return slices.Contains(DefaultExcludeDirs, name) || slices.Contains(excludes, name)
}

// IsExcludedExt reports whether a file extension is in excludes. The leading
// dot in excludes is optional.
func IsExcludedExt(name string, excludes []string) bool {
	ext := strings.TrimPrefix(filepath.Ext(name), ".")
	if ext == "" {
		return false
	}
	for _, ex := range excludes {
		if strings.EqualFold(ext, strings.TrimPrefix(ex, ".")) {
			return true
		}
	}
	return false
}
