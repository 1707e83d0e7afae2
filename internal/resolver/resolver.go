// Package resolver locates service executables on disk. Candidates are tried
// in order; the first hit wins. A candidate may be a bare command name
// (resolved through PATH), an absolute or relative path, or a glob pattern
// such as "~/tools/prometheus-*/prometheus" where the lexically greatest
// match is preferred so that versioned install directories resolve to the
// newest version.
package resolver

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
)

// ErrNotFound is returned when no candidate resolves to an existing
// executable.
var ErrNotFound = errors.New("executable not found")

// Resolver resolves an ordered candidate list to a concrete executable path.
type Resolver interface {
	Resolve(candidates []string) (string, error)
}

// FileSystemResolver is the production Resolver backed by the local
// filesystem and PATH.
type FileSystemResolver struct{}

// NewFileSystemResolver returns a Resolver backed by the local filesystem.
func NewFileSystemResolver() *FileSystemResolver {
	return &FileSystemResolver{}
}

// Resolve returns the first candidate that names an existing executable, or
// ErrNotFound wrapped with the candidate list for the operator-facing hint.
func (r *FileSystemResolver) Resolve(candidates []string) (string, error) {
	for _, candidate := range candidates {
		candidate = expandHome(candidate)

		// Bare command names go through PATH.
		if !strings.ContainsAny(candidate, `/\`) {
			if path, err := exec.LookPath(candidate); err == nil {
				return path, nil
			}
			continue
		}

		if hasGlobMeta(candidate) {
			if path, ok := resolveGlob(candidate); ok {
				return path, nil
			}
			continue
		}

		if isExecutable(candidate) {
			return candidate, nil
		}
	}
	return "", ErrNotFound
}

// resolveGlob expands the pattern and returns the lexically greatest match
// that is executable. Versioned directories sort so that the newest release
// wins (e.g. prometheus-3.2.0 over prometheus-3.1.0).
func resolveGlob(pattern string) (string, bool) {
	matches, err := filepath.Glob(pattern)
	if err != nil || len(matches) == 0 {
		return "", false
	}
	sort.Sort(sort.Reverse(sort.StringSlice(matches)))
	for _, match := range matches {
		if isExecutable(match) {
			return match, true
		}
	}
	return "", false
}

func hasGlobMeta(path string) bool {
	return strings.ContainsAny(path, "*?[")
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return false
	}
	if runtime.GOOS == "windows" {
		return true
	}
	return info.Mode().Perm()&0o111 != 0
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if path == "~" {
		return homeDir
	}
	return filepath.Join(homeDir, path[2:])
}
