package config

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/lexiaoyao20/i18n-app/internal/apperr"
)

// DataDir holds the tool's working files inside the project root.
const DataDir = ".i18n-app"

// ErrNotFound is returned by FindRoot when no configuration file exists in
// the start directory or any of its parents.
var ErrNotFound = errors.New("could not find project root (no " + FileName + " found)")

// Project is a loaded configuration together with the directory holding it.
type Project struct {
	Root   string
	Config Config
}

// CacheDir is the scratch directory used while pushing and pulling.
func (p Project) CacheDir() string {
	return filepath.Join(p.Root, DataDir, "cache")
}

// PreviewDir is the default destination of download.
func (p Project) PreviewDir() string {
	return filepath.Join(p.Root, DataDir, "preview")
}

// FindRoot walks up from start looking for the configuration file.
func FindRoot(fs afero.Fs, start string) (string, error) {
	dir := filepath.Clean(start)
	for {
		ok, err := afero.Exists(fs, filepath.Join(dir, FileName))
		if err != nil {
			return "", fmt.Errorf("%w: %w", apperr.ErrLocalIO, err)
		}
		if ok {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", ErrNotFound
		}
		dir = parent
	}
}

// Open locates and loads the project containing start. When there is none,
// a default configuration is written to start and ErrCreated is returned.
func Open(fs afero.Fs, start string) (Project, error) {
	root, err := FindRoot(fs, start)
	if errors.Is(err, ErrNotFound) {
		path, err := Init(fs, start)
		if err != nil {
			return Project{}, err
		}
		return Project{}, fmt.Errorf("%w: %s", ErrCreated, path)
	}
	if err != nil {
		return Project{}, err
	}

	cfg, err := Load(fs, filepath.Join(root, FileName))
	if err != nil {
		return Project{}, err
	}
	return Project{Root: root, Config: cfg}, nil
}
