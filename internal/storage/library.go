package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrNotFound indicates no artifact with the requested filename exists.
var ErrNotFound = errors.New("storage: artifact not found")

// ErrInvalidFilename indicates the requested name is not a bare filename.
var ErrInvalidFilename = errors.New("storage: invalid filename")

// qualityDir is the renderer's fixed per-quality subdirectory.
const qualityDir = "1080p60"

// Library locates rendered video artifacts on the local filesystem. The
// renderer lays them out as <base>/videos/<scene-dir>/1080p60/<filename>,
// one scene directory per rendered source file.
type Library struct {
	basePath string
}

// NewLibrary initializes a Library rooted at the renderer's media dir.
func NewLibrary(basePath string) (*Library, error) {
	basePath = strings.TrimSpace(basePath)
	if basePath == "" {
		return nil, errors.New("storage: base path is required")
	}
	if err := os.MkdirAll(filepath.Join(basePath, "videos"), 0o755); err != nil {
		return nil, fmt.Errorf("storage: ensure videos dir: %w", err)
	}
	return &Library{basePath: basePath}, nil
}

// BasePath returns the configured media root.
func (l *Library) BasePath() string {
	return l.basePath
}

// Find walks the scene directories and returns the artifact path plus its
// containing scene directory. Filenames are restricted to a bare name so a
// caller cannot traverse outside the library.
func (l *Library) Find(filename string) (path, sceneDir string, err error) {
	if err := validFilename(filename); err != nil {
		return "", "", err
	}
	root := filepath.Join(l.basePath, "videos")
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return "", "", ErrNotFound
		}
		return "", "", fmt.Errorf("storage: read videos dir: %w", err)
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(root, entry.Name())
		candidate := filepath.Join(dir, qualityDir, filename)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, dir, nil
		}
	}
	return "", "", ErrNotFound
}

// Open returns a readable handle on the artifact for download streaming.
func (l *Library) Open(filename string) (*os.File, error) {
	path, _, err := l.Find(filename)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("storage: open artifact: %w", err)
	}
	return f, nil
}

// Remove deletes the artifact's entire scene directory, matching the
// renderer's one-directory-per-render layout.
func (l *Library) Remove(filename string) error {
	_, sceneDir, err := l.Find(filename)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(sceneDir); err != nil {
		return fmt.Errorf("storage: remove scene dir: %w", err)
	}
	return nil
}

func validFilename(filename string) error {
	if filename == "" {
		return ErrInvalidFilename
	}
	if filename != filepath.Base(filename) || strings.HasPrefix(filename, ".") {
		return ErrInvalidFilename
	}
	return nil
}
