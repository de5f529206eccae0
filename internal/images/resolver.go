// Package images copies captured customer images into the statically served directory.
package images

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/kozaktomas/customer-recognition/internal/constants"
	"github.com/kozaktomas/customer-recognition/internal/logging"
	"github.com/m-mizutani/goerr/v2"
)

var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
}

// IsImage reports whether name has a supported image extension.
func IsImage(name string) bool {
	return imageExtensions[strings.ToLower(filepath.Ext(name))]
}

// Resolver finds captured images of a customer and publishes them under /static/images/.
type Resolver struct {
	captureDir string
	staticDir  string
	maxSize    int
}

// NewResolver creates a resolver. Images larger than maxSize are downscaled on copy.
func NewResolver(captureDir, staticDir string, maxSize int) *Resolver {
	return &Resolver{
		captureDir: captureDir,
		staticDir:  staticDir,
		maxSize:    maxSize,
	}
}

// StaticDir returns the directory served under /static/images/.
func (r *Resolver) StaticDir() string {
	return r.staticDir
}

// URL returns the public URL of a published file.
func URL(name string) string {
	return constants.StaticImagesPrefix + filepath.Base(name)
}

// Resolve publishes the newest capture named "<customerID>_*" and returns its URL.
// An empty URL with a nil error means the customer has no captured image.
func (r *Resolver) Resolve(ctx context.Context, customerID string) (string, error) {
	entries, err := os.ReadDir(r.captureDir)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", goerr.Wrap(err, "read capture directory", goerr.V("dir", r.captureDir))
	}

	prefix := customerID + "_"
	var newest string
	for _, e := range entries {
		name := e.Name()
		// names end with a sortable capture timestamp
		if !e.IsDir() && strings.HasPrefix(name, prefix) && IsImage(name) && name > newest {
			newest = name
		}
	}
	if newest == "" {
		return "", nil
	}

	return r.Publish(ctx, filepath.Join(r.captureDir, newest))
}

// Publish copies the image at path into the static directory unless it is
// already there, and returns its URL. A missing source yields an empty URL.
func (r *Resolver) Publish(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", goerr.Wrap(err, "publish image")
	}

	dest := filepath.Join(r.staticDir, filepath.Base(path))
	if _, err := os.Stat(dest); err == nil {
		return URL(dest), nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", goerr.Wrap(err, "read captured image", goerr.V("path", path))
	}

	if resized, changed, err := ResizeImage(data, r.maxSize); err != nil {
		logging.From(ctx).Warn("copying image without resizing", "path", path, logging.ErrAttr(err))
	} else if changed {
		data = resized
	}

	if err := writeAtomic(dest, data); err != nil {
		return "", err
	}
	return URL(dest), nil
}

// SyncAll publishes every captured image not yet in the static directory.
func (r *Resolver) SyncAll(ctx context.Context) (int, error) {
	entries, err := os.ReadDir(r.captureDir)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, goerr.Wrap(err, "read capture directory", goerr.V("dir", r.captureDir))
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && IsImage(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	copied := 0
	for _, name := range names {
		if _, err := os.Stat(filepath.Join(r.staticDir, name)); err == nil {
			continue
		}
		if _, err := r.Publish(ctx, filepath.Join(r.captureDir, name)); err != nil {
			logging.From(ctx).Warn("failed to copy captured image", "file", name, logging.ErrAttr(err))
			continue
		}
		copied++
	}
	return copied, nil
}

func writeAtomic(dest string, data []byte) error {
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return goerr.Wrap(err, "create static directory", goerr.V("dir", dir))
	}

	tmp, err := os.CreateTemp(dir, ".copy-*")
	if err != nil {
		return goerr.Wrap(err, "create temp image", goerr.V("dir", dir))
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return goerr.Wrap(err, "write temp image", goerr.V("path", tmpName))
	}
	if err := tmp.Close(); err != nil {
		return goerr.Wrap(err, "close temp image", goerr.V("path", tmpName))
	}
	if err := os.Rename(tmpName, dest); err != nil {
		return goerr.Wrap(err, "move image into place", goerr.V("path", dest))
	}
	return nil
}
