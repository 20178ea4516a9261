// Package pathutil converts between absolute and relative paths.
//
// The core stores and compares everything internally as workspace-relative
// paths (walker output, pattern locations, manifest keys); this package is
// the conversion layer for the few places an absolute path needs to become
// relative for display or storage, and back.
package pathutil

import (
	"path/filepath"
	"strings"
)

// ToRelative converts an absolute path to relative based on a root
// directory. Falls back to the original path if conversion fails, the path
// is already relative, or the path resolves outside rootDir.
//
// Examples:
//   - ToRelative("/home/user/project/src/main.go", "/home/user/project") → "src/main.go"
//   - ToRelative("/other/location/file.go", "/home/user/project") → "/other/location/file.go"
//   - ToRelative("src/main.go", "/home/user/project") → "src/main.go"
func ToRelative(absPath, rootDir string) string {
	if absPath == "" || rootDir == "" {
		return absPath
	}
	if !filepath.IsAbs(absPath) {
		return absPath
	}

	absPath = filepath.Clean(absPath)
	rootDir = filepath.Clean(rootDir)

	relPath, err := filepath.Rel(rootDir, absPath)
	if err != nil {
		return absPath
	}
	if strings.HasPrefix(relPath, "..") {
		return absPath
	}
	return relPath
}

// ToAbsolute converts a workspace-relative path to absolute against root.
// Already-absolute paths are returned unchanged.
func ToAbsolute(relPath, rootDir string) string {
	if relPath == "" {
		return relPath
	}
	if filepath.IsAbs(relPath) {
		return relPath
	}
	return filepath.Clean(filepath.Join(rootDir, relPath))
}
