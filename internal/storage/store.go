// Package storage persists uploaded files under generated keys.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"
)

var (
	ErrNotFound   = errors.New("object not found")
	ErrInvalidKey = errors.New("invalid storage key")
	ErrExists     = errors.New("object already exists")
)

// FileStore is implemented by the local filesystem store and the GCS store.
type FileStore interface {
	// Save writes r under key and fails with ErrExists if the key is taken.
	Save(ctx context.Context, key string, r io.Reader) (int64, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}

// NewKey builds "<dir>/<unix-nano>_<sanitized name>".
func NewKey(dir, originalName string, now time.Time) (string, error) {
	name, err := SanitizeFileName(originalName)
	if err != nil {
		return "", err
	}
	return path.Join(dir, fmt.Sprintf("%d_%s", now.UnixNano(), name)), nil
}

// SanitizeFileName strips directory components and replaces characters that
// are unsafe in object names.
func SanitizeFileName(name string) (string, error) {
	name = strings.ReplaceAll(strings.TrimSpace(name), `\`, "/")
	name = path.Base(name)
	if name == "" || name == "." || name == ".." || name == "/" {
		return "", fmt.Errorf("%w: empty file name", ErrInvalidKey)
	}
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-', r == '_', r == '.':
			return r
		default:
			return '_'
		}
	}, name)
	return name, nil
}

// CleanKey rejects absolute keys and keys escaping the store root.
func CleanKey(key string) (string, error) {
	clean := path.Clean(strings.ReplaceAll(key, `\`, "/"))
	if clean == "." || strings.HasPrefix(clean, "/") || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", ErrInvalidKey
	}
	return clean, nil
}
