package loader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// DirSource serves files from a directory on the local filesystem.
type DirSource struct {
	root string
}

// NewDirSource returns a source rooted at root. The directory must exist.
func NewDirSource(root string) (*DirSource, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve static root %q: %w", root, err)
	}

	abs, err = filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("static root %q: %w", root, err)
	}

	fi, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("static root %q: %w", root, err)
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf("static root %q is not a directory", root)
	}

	return &DirSource{root: abs}, nil
}

// Root returns the absolute root directory.
func (d *DirSource) Root() string {
	return d.root
}

// Name implements Source.
func (d *DirSource) Name() string {
	return "dir"
}

// full maps key onto the filesystem with symlinks resolved. Anything whose
// real path lies outside the root is ErrNotFound, so a link cannot be used to
// reach files the root does not contain.
func (d *DirSource) full(key string) (string, error) {
	rel := path.Clean(key)
	if rel == "." || rel == "/" {
		return d.root, nil
	}
	rel = strings.TrimPrefix(rel, "/")
	if escapes(rel) {
		return "", ErrNotFound
	}

	resolved, err := filepath.EvalSymlinks(filepath.Join(d.root, filepath.FromSlash(rel)))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("%w: %w", ErrNotFound, err)
	}

	inside, err := filepath.Rel(d.root, resolved)
	if err != nil || escapes(filepath.ToSlash(inside)) {
		return "", ErrNotFound
	}
	return resolved, nil
}

func escapes(rel string) bool {
	return rel == ".." || strings.HasPrefix(rel, "../")
}

// Stat implements Source.
func (d *DirSource) Stat(_ context.Context, key string) (Info, error) {
	p, err := d.full(key)
	if err != nil {
		return Info{}, err
	}

	// Any stat failure, permission errors included, reads as "not there".
	fi, err := os.Stat(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Info{}, ErrNotFound
		}
		return Info{}, fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	return Info{Size: fi.Size(), IsDir: fi.IsDir()}, nil
}

// Read implements Source.
func (d *DirSource) Read(_ context.Context, key string) ([]byte, error) {
	p, err := d.full(key)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("open %s: %w", key, err)
	}
	defer func() { _ = f.Close() }()

	fi, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", key, err)
	}
	if fi.IsDir() {
		return nil, ErrIsDirectory
	}

	var buf bytes.Buffer
	buf.Grow(int(fi.Size()))
	if _, err := io.Copy(&buf, f); err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return buf.Bytes(), nil
}

var _ Source = (*DirSource)(nil)
