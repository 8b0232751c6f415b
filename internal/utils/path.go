package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ResolvePath turns a path from a flag or the config file into an absolute,
// cleaned one. Environment variables and a leading ~ are expanded; a
// relative result is taken from the working directory. Empty stays empty,
// which callers read as "use the default location".
func ResolvePath(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	path = os.ExpandEnv(path)

	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("cannot expand %q: %w", path, err)
		}
		path = filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return filepath.Abs(path)
}

// ResolveFile resolves path and checks that it names a regular file.
// Chat attachments are stored by path, so a directory or a missing file is
// rejected before a message refers to it.
func ResolveFile(path string) (string, error) {
	resolved, err := ResolvePath(path)
	if err != nil {
		return "", err
	}
	if resolved == "" {
		return "", fmt.Errorf("no file given")
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return "", err
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("%s is not a regular file", resolved)
	}
	return resolved, nil
}
