// Package loader turns a resolved key into file bytes, consulting the
// single-slot cache when the gate is on.
//
// The bytes come from a Source. DirSource serves a local directory and is the
// default; pkg/loader/s3 serves objects from a bucket.
package loader

import (
	"context"
	"errors"
)

var (
	// ErrNotFound means the key does not name anything in the source.
	ErrNotFound = errors.New("loader: not found")

	// ErrIsDirectory means the key names a directory, which is never served.
	ErrIsDirectory = errors.New("loader: is a directory")
)

// Info describes a key in a Source.
type Info struct {
	Size  int64
	IsDir bool
}

// Source is a read-only file origin. Keys are slash-separated, relative,
// already cleaned, and never escape the root; "." is the root itself.
type Source interface {
	// Stat returns ErrNotFound for a missing key.
	Stat(ctx context.Context, key string) (Info, error)

	// Read returns the whole content of key. It returns ErrNotFound for a
	// missing key and ErrIsDirectory for a directory.
	Read(ctx context.Context, key string) ([]byte, error)

	// Name labels the source in logs and metrics, e.g. "dir" or "s3".
	Name() string
}
