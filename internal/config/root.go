package config

import (
	"errors"
	"os"
	"path/filepath"
)

var errNoModuleRoot = errors.New("no go.mod above start directory")

// moduleRoot walks up from start to the first directory holding a go.mod, so
// binaries run from cmd/* still find the repository's .env.
func moduleRoot(start string) (string, error) {
	if start == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", err
		}
		start = wd
	}

	for dir := filepath.Clean(start); ; dir = filepath.Dir(dir) {
		if info, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil && !info.IsDir() {
			return dir, nil
		}
		if dir == filepath.Dir(dir) {
			return "", errNoModuleRoot
		}
	}
}
