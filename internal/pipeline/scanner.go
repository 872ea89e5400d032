package pipeline

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rkusa/wimg/internal/codec"
	"github.com/rkusa/wimg/internal/rawimage"
)

// ErrOutsideBaseDir is returned for inputs that do not resolve to a path
// strictly inside the base directory.
var ErrOutsideBaseDir = errors.New("outside of the base directory")

// Source represents a resolved input image.
type Source struct {
	// AbsPath is the symlink-free absolute path to the file on disk.
	AbsPath string
	// RelPath is the slash-separated path relative to the base directory.
	// It keys the manifest and mirrors into the output directory.
	RelPath string
	// Format is the container format guessed from the extension.
	Format rawimage.Format
	// Size is the file size in bytes.
	Size int64
}

// ResolveBaseDir returns the absolute, symlink-free base directory. An
// empty dir means the working directory.
func ResolveBaseDir(dir string) (string, error) {
	if dir == "" {
		dir = "."
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", fmt.Errorf("--base-dir is not a valid directory: %w", err)
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return "", fmt.Errorf("--base-dir is not a valid directory: %w", err)
	}
	if !info.IsDir() {
		return "", errors.New("--base-dir is not a valid directory")
	}
	return resolved, nil
}

// ResolveSources turns the given paths into sources under baseDir, which
// must already be resolved (see ResolveBaseDir). Directories are walked
// for supported image files, skipping hidden directories. Any path that
// escapes baseDir is an error. Duplicates are dropped, order is kept.
func ResolveSources(paths []string, baseDir string) ([]Source, error) {
	var sources []Source
	seen := map[string]bool{}

	add := func(path string, explicit bool) error {
		src, err := resolveFile(path, baseDir)
		if err != nil {
			return err
		}
		if src == nil {
			if explicit {
				return fmt.Errorf("%s is not a valid file", path)
			}
			return nil
		}
		if !seen[src.AbsPath] {
			seen[src.AbsPath] = true
			sources = append(sources, *src)
		}
		return nil
	}

	for _, path := range paths {
		abs, err := filepath.Abs(path)
		if err != nil {
			return nil, err
		}
		info, err := os.Stat(abs)
		if err != nil {
			return nil, fmt.Errorf("%s is not a valid file", path)
		}
		if !info.IsDir() {
			if err := add(abs, true); err != nil {
				return nil, err
			}
			continue
		}

		err = filepath.WalkDir(abs, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if p != abs && strings.HasPrefix(d.Name(), ".") {
					return filepath.SkipDir
				}
				return nil
			}
			if !codec.IsInputExtension(filepath.Ext(p)) {
				return nil
			}
			return add(p, false)
		})
		if err != nil {
			return nil, err
		}
	}

	return sources, nil
}

// resolveFile returns nil for anything that is not a regular file after
// resolving symlinks.
func resolveFile(path, baseDir string) (*Source, error) {
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		return nil, fmt.Errorf("%s is not a valid file", path)
	}
	info, err := os.Stat(resolved)
	if err != nil || !info.Mode().IsRegular() {
		return nil, nil
	}

	rel, err := filepath.Rel(baseDir, resolved)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return nil, fmt.Errorf("%s is %w", path, ErrOutsideBaseDir)
	}

	format, err := codec.FormatForPath(resolved)
	if err != nil {
		return nil, err
	}

	return &Source{
		AbsPath: resolved,
		RelPath: filepath.ToSlash(rel),
		Format:  format,
		Size:    info.Size(),
	}, nil
}
