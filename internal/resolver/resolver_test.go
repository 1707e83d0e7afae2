package resolver

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeExecutable(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"), 0o755))
}

func TestResolveFirstExistingCandidateWins(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "a", "prometheus")
	second := filepath.Join(dir, "b", "prometheus")
	writeExecutable(t, first)
	writeExecutable(t, second)

	r := NewFileSystemResolver()
	path, err := r.Resolve([]string{first, second})
	require.NoError(t, err)
	assert.Equal(t, first, path)
}

func TestResolveSkipsMissingCandidates(t *testing.T) {
	dir := t.TempDir()
	present := filepath.Join(dir, "bin", "prometheus")
	writeExecutable(t, present)

	r := NewFileSystemResolver()
	path, err := r.Resolve([]string{
		filepath.Join(dir, "missing", "prometheus"),
		present,
	})
	require.NoError(t, err)
	assert.Equal(t, present, path)
}

func TestResolveGlobPrefersLatestVersionDirectory(t *testing.T) {
	dir := t.TempDir()
	older := filepath.Join(dir, "prometheus-3.1.0", "prometheus")
	newer := filepath.Join(dir, "prometheus-3.2.0", "prometheus")
	writeExecutable(t, older)
	writeExecutable(t, newer)

	r := NewFileSystemResolver()
	path, err := r.Resolve([]string{filepath.Join(dir, "prometheus-*", "prometheus")})
	require.NoError(t, err)
	assert.Equal(t, newer, path)
}

func TestResolveNotFound(t *testing.T) {
	dir := t.TempDir()

	r := NewFileSystemResolver()
	_, err := r.Resolve([]string{
		filepath.Join(dir, "nope", "prometheus"),
		filepath.Join(dir, "nope-*", "prometheus"),
	})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResolveEmptyCandidates(t *testing.T) {
	r := NewFileSystemResolver()
	_, err := r.Resolve(nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResolveRejectsNonExecutableFiles(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("executable bits are not meaningful on windows")
	}
	dir := t.TempDir()
	plain := filepath.Join(dir, "prometheus")
	require.NoError(t, os.WriteFile(plain, []byte("data"), 0o644))

	r := NewFileSystemResolver()
	_, err := r.Resolve([]string{plain})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResolveBareNameUsesPATH(t *testing.T) {
	dir := t.TempDir()
	binary := filepath.Join(dir, "obsd")
	writeExecutable(t, binary)
	t.Setenv("PATH", dir)

	r := NewFileSystemResolver()
	path, err := r.Resolve([]string{"obsd"})
	require.NoError(t, err)
	assert.Equal(t, binary, path)
}
