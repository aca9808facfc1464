package config

import (
	"path/filepath"
	"strings"
)

// configDir is the directory relative runtime paths are anchored to: the
// directory of the loaded config file, or the working directory when no file
// was read.
func configDir(path string, read bool) string {
	if !read {
		return ""
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Dir(path)
	}
	return filepath.Dir(abs)
}

// resolvePath anchors a relative path from the config file at base. Empty
// input stays empty so callers can fall back to their own defaults.
func resolvePath(raw, base string) string {
	target := strings.TrimSpace(raw)
	if target == "" {
		return ""
	}
	if filepath.IsAbs(target) || base == "" {
		return filepath.Clean(target)
	}
	return filepath.Join(base, target)
}
