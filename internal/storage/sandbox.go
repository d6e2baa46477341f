// Package storage provides the artifact arena for vidarr projects.
// Every stage reads and writes through a Sandbox rooted at the project's
// artifact directory, so path traversal cannot escape it and partially
// written artifacts are never visible under their final name.
package storage

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Sandbox provides sandboxed file operations within a base directory.
// All relative paths are resolved against the base and rejected if they
// would escape it.
type Sandbox struct {
	baseDir string
}

// NewSandbox creates a new Sandbox rooted at the given base directory.
// The base directory is created if it doesn't exist.
func NewSandbox(baseDir string) (*Sandbox, error) {
	absPath, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("getting absolute path: %w", err)
	}

	if err := os.MkdirAll(absPath, 0750); err != nil {
		return nil, fmt.Errorf("creating base directory: %w", err)
	}

	return &Sandbox{baseDir: absPath}, nil
}

// BaseDir returns the absolute path to the sandbox base directory.
func (s *Sandbox) BaseDir() string {
	return s.baseDir
}

// ResolvePath resolves a relative path within the sandbox.
// Returns an error if the path is absolute or would escape the sandbox.
func (s *Sandbox) ResolvePath(relativePath string) (string, error) {
	if filepath.IsAbs(relativePath) {
		return "", fmt.Errorf("path escapes sandbox: %s (absolute paths not allowed)", relativePath)
	}

	absPath, err := filepath.Abs(filepath.Join(s.baseDir, filepath.Clean(relativePath)))
	if err != nil {
		return "", fmt.Errorf("getting absolute path: %w", err)
	}

	if !strings.HasPrefix(absPath, s.baseDir+string(filepath.Separator)) && absPath != s.baseDir {
		return "", fmt.Errorf("path escapes sandbox: %s", relativePath)
	}

	return absPath, nil
}

// Exists checks if a path exists within the sandbox.
func (s *Sandbox) Exists(relativePath string) (bool, error) {
	path, err := s.ResolvePath(relativePath)
	if err != nil {
		return false, err
	}

	_, err = os.Stat(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking path: %w", err)
	}
	return true, nil
}

// MkdirAll creates a directory and all parent directories within the sandbox.
func (s *Sandbox) MkdirAll(relativePath string) error {
	path, err := s.ResolvePath(relativePath)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(path, 0750); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}
	return nil
}

// WriteFile writes data to a file within the sandbox, creating parents.
func (s *Sandbox) WriteFile(relativePath string, data []byte) error {
	path, err := s.ResolvePath(relativePath)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("creating parent directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0640); err != nil {
		return fmt.Errorf("writing file: %w", err)
	}
	return nil
}

// ReadFile reads a file from within the sandbox.
func (s *Sandbox) ReadFile(relativePath string) ([]byte, error) {
	path, err := s.ResolvePath(relativePath)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	return data, nil
}

// OpenFile opens a file within the sandbox with the given flags and permissions.
func (s *Sandbox) OpenFile(relativePath string, flag int, perm os.FileMode) (*os.File, error) {
	path, err := s.ResolvePath(relativePath)
	if err != nil {
		return nil, err
	}

	if flag&(os.O_CREATE|os.O_WRONLY|os.O_RDWR) != 0 {
		if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
			return nil, fmt.Errorf("creating parent directory: %w", err)
		}
	}

	file, err := os.OpenFile(path, flag, perm)
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}
	return file, nil
}

// Remove removes a file or empty directory within the sandbox.
func (s *Sandbox) Remove(relativePath string) error {
	path, err := s.ResolvePath(relativePath)
	if err != nil {
		return err
	}

	if err := os.Remove(path); err != nil {
		return fmt.Errorf("removing path: %w", err)
	}
	return nil
}

// RemoveAll removes a path and all its contents within the sandbox.
// The base directory itself cannot be removed through this method.
func (s *Sandbox) RemoveAll(relativePath string) error {
	path, err := s.ResolvePath(relativePath)
	if err != nil {
		return err
	}

	if path == s.baseDir {
		return fmt.Errorf("cannot remove sandbox base directory")
	}

	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("removing path: %w", err)
	}
	return nil
}

// Rename renames/moves a file within the sandbox.
func (s *Sandbox) Rename(oldPath, newPath string) error {
	oldAbs, err := s.ResolvePath(oldPath)
	if err != nil {
		return fmt.Errorf("resolving old path: %w", err)
	}

	newAbs, err := s.ResolvePath(newPath)
	if err != nil {
		return fmt.Errorf("resolving new path: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(newAbs), 0750); err != nil {
		return fmt.Errorf("creating parent directory: %w", err)
	}

	if err := os.Rename(oldAbs, newAbs); err != nil {
		return fmt.Errorf("renaming file: %w", err)
	}
	return nil
}

// AtomicWrite writes data to a file atomically within the sandbox.
// It writes to a temporary file first, then renames it to the target, so
// the artifact is either completely written or absent.
func (s *Sandbox) AtomicWrite(relativePath string, data []byte) error {
	targetPath, err := s.ResolvePath(relativePath)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(targetPath), 0750); err != nil {
		return fmt.Errorf("creating parent directory: %w", err)
	}

	tempPath := tempSibling(targetPath)
	if err := os.WriteFile(tempPath, data, 0640); err != nil {
		return fmt.Errorf("writing temporary file: %w", err)
	}

	if err := os.Rename(tempPath, targetPath); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("renaming to target: %w", err)
	}

	return nil
}

// AtomicWriteReader writes data from a reader to a file atomically within
// the sandbox. Used for downloads (stock footage, thumbnails) where the
// payload should never be visible half-written.
func (s *Sandbox) AtomicWriteReader(relativePath string, r io.Reader) error {
	targetPath, err := s.ResolvePath(relativePath)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(targetPath), 0750); err != nil {
		return fmt.Errorf("creating parent directory: %w", err)
	}

	tempPath := tempSibling(targetPath)
	if err := copyToFile(tempPath, r); err != nil {
		return err
	}

	if err := os.Rename(tempPath, targetPath); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("renaming to target: %w", err)
	}

	return nil
}

// AtomicPublish atomically publishes a file from an external absolute path
// (typically an encoder temp output) to a location within the sandbox. It
// first tries a direct rename, then falls back to copy-then-rename for
// cross-filesystem scenarios.
func (s *Sandbox) AtomicPublish(srcAbsPath, destRelativePath string) error {
	targetPath, err := s.ResolvePath(destRelativePath)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(targetPath), 0750); err != nil {
		return fmt.Errorf("creating parent directory: %w", err)
	}

	if err := os.Rename(srcAbsPath, targetPath); err == nil {
		return nil
	}

	srcFile, err := os.Open(srcAbsPath)
	if err != nil {
		return fmt.Errorf("opening source file: %w", err)
	}
	defer srcFile.Close()

	tempPath := tempSibling(targetPath)
	if err := copyToFile(tempPath, srcFile); err != nil {
		return err
	}

	if err := os.Rename(tempPath, targetPath); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("renaming to target: %w", err)
	}

	return nil
}

// CreateTemp creates a new temporary file in the sandbox.
// The caller is responsible for closing and removing the file.
func (s *Sandbox) CreateTemp(dir, pattern string) (*os.File, error) {
	if dir == "" {
		dir = "temp"
	}

	absDir, err := s.ResolvePath(dir)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(absDir, 0750); err != nil {
		return nil, fmt.Errorf("creating temp directory: %w", err)
	}

	file, err := os.CreateTemp(absDir, pattern)
	if err != nil {
		return nil, fmt.Errorf("creating temp file: %w", err)
	}
	return file, nil
}

// List returns the entries of a directory within the sandbox.
func (s *Sandbox) List(relativePath string) ([]os.DirEntry, error) {
	path, err := s.ResolvePath(relativePath)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("reading directory: %w", err)
	}
	return entries, nil
}

// Walk walks the file tree within the sandbox, calling fn for each entry
// with a sandbox-relative path.
func (s *Sandbox) Walk(relativePath string, fn filepath.WalkFunc) error {
	path, err := s.ResolvePath(relativePath)
	if err != nil {
		return err
	}

	return filepath.Walk(path, func(walkPath string, info os.FileInfo, err error) error {
		relPath, relErr := filepath.Rel(s.baseDir, walkPath)
		if relErr != nil {
			relPath = walkPath
		}
		return fn(relPath, info, err)
	})
}

// Stat returns file info for a path within the sandbox.
func (s *Sandbox) Stat(relativePath string) (os.FileInfo, error) {
	path, err := s.ResolvePath(relativePath)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("getting file info: %w", err)
	}
	return info, nil
}

// Size returns the size of a file within the sandbox.
func (s *Sandbox) Size(relativePath string) (int64, error) {
	info, err := s.Stat(relativePath)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// SubSandbox creates a new Sandbox within a subdirectory of this sandbox.
func (s *Sandbox) SubSandbox(relativePath string) (*Sandbox, error) {
	path, err := s.ResolvePath(relativePath)
	if err != nil {
		return nil, err
	}

	return NewSandbox(path)
}

// tempSibling returns a hidden temp file path next to the target so the
// final rename stays on one filesystem.
func tempSibling(targetPath string) string {
	return filepath.Join(filepath.Dir(targetPath),
		fmt.Sprintf(".%s.%s.tmp", filepath.Base(targetPath), randomHex(8)))
}

// copyToFile copies a reader into a freshly created file, removing the
// file again on any error.
func copyToFile(path string, r io.Reader) error {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0640)
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}

	_, err = io.Copy(file, r)
	closeErr := file.Close()

	if err != nil {
		os.Remove(path)
		return fmt.Errorf("writing to temp file: %w", err)
	}
	if closeErr != nil {
		os.Remove(path)
		return fmt.Errorf("closing temp file: %w", closeErr)
	}
	return nil
}

// randomHex generates a random hex string of the specified length.
func randomHex(n int) string {
	bytes := make([]byte, n/2+1)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("%d", os.Getpid())
	}
	return hex.EncodeToString(bytes)[:n]
}
