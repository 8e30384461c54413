// Package acquire resolves a user-chosen image into a local resource
// locator.
package acquire

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// ErrCancelled is returned by a Picker when the user dismissed it without
// choosing an image. It is not a failure.
var ErrCancelled = errors.New("image selection cancelled")

// Locator points at a local image: a filesystem path or a file:// URI.
type Locator string

// Path returns the filesystem path the locator refers to.
func (l Locator) Path() (string, error) {
	s := strings.TrimSpace(string(l))
	if s == "" {
		return "", errors.New("empty locator")
	}
	if strings.HasPrefix(s, "file://") {
		u, err := url.Parse(s)
		if err != nil {
			return "", fmt.Errorf("invalid file uri %q: %w", s, err)
		}
		return filepath.FromSlash(u.Path), nil
	}
	if strings.Contains(s, "://") {
		return "", fmt.Errorf("unsupported locator %q: only local files are readable", s)
	}
	return s, nil
}

// Name is the base name of the referenced file, for display.
func (l Locator) Name() string {
	p, err := l.Path()
	if err != nil {
		return string(l)
	}
	return filepath.Base(p)
}

func (l Locator) String() string { return string(l) }

// Open opens the referenced image for reading.
func Open(l Locator) (io.ReadCloser, error) {
	p, err := l.Path()
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to stat image: %w", err)
	}
	if info.IsDir() {
		f.Close()
		return nil, fmt.Errorf("%s is a directory", p)
	}
	return f, nil
}

// Picker presents a way for the user to choose an image.
type Picker interface {
	Pick(ctx context.Context) (Locator, error)
}

// PickerFunc adapts a function to the Picker interface.
type PickerFunc func(ctx context.Context) (Locator, error)

func (f PickerFunc) Pick(ctx context.Context) (Locator, error) { return f(ctx) }

// EnsureReadable checks that dir can be listed before a picker is shown on
// it. It is the filesystem counterpart of a media-library permission.
func EnsureReadable(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("picker directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("picker directory %s is not a directory", dir)
	}
	f, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("picker directory not readable: %w", err)
	}
	defer f.Close()
	if _, err := f.Readdirnames(1); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("picker directory not readable: %w", err)
	}
	return nil
}

// PathPicker "picks" a path chosen up front, e.g. on the command line.
// Paths are resolved relative to Dir. An empty Path is a cancellation.
type PathPicker struct {
	Dir        string
	Path       string
	Extensions []string
}

func (p PathPicker) Pick(ctx context.Context) (Locator, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	raw := strings.TrimSpace(p.Path)
	if raw == "" {
		return "", ErrCancelled
	}
	loc := Locator(raw)
	path, err := loc.Path()
	if err != nil {
		return "", err
	}
	if !filepath.IsAbs(path) && p.Dir != "" {
		if err := EnsureReadable(p.Dir); err != nil {
			return "", err
		}
		path = filepath.Join(p.Dir, path)
	}
	if !HasExtension(path, p.Extensions) {
		return "", fmt.Errorf("%s: unsupported file type (want %s)", filepath.Base(path), strings.Join(p.Extensions, ", "))
	}
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("image not found: %w", err)
	}
	return Locator(path), nil
}

// HasExtension reports whether path ends in one of exts (case-insensitive).
// An empty list accepts everything.
func HasExtension(path string, exts []string) bool {
	if len(exts) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range exts {
		e = strings.ToLower(e)
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		if ext == e {
			return true
		}
	}
	return false
}
