// Package archive lays out captures on disk as root/YYYY-MM-DD/prefix-TIMESTAMP.jpg
// and writes them atomically.
package archive

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/yihou/highway-crawler/guard"
)

const (
	dateLayout  = "2006-01-02"
	stampLayout = "2006-01-02T15:04:05.000Z"
)

// DefaultExtension is used when New receives an empty extension.
const DefaultExtension = ".jpg"

// PersistenceError reports a directory or file write failure.
type PersistenceError struct {
	Op   string // mkdir | create | write | sync | rename | exists
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("archive: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Builder derives archive paths under a fixed root.
type Builder struct {
	root   string
	prefix string
	ext    string

	beforeCommit func(final string) // test hook, runs once the temp file is complete
}

// New validates prefix and extension and returns a Builder rooted at root.
// The root itself is not created until the first Build.
func New(root, prefix, ext string) (*Builder, error) {
	if root == "" {
		return nil, fmt.Errorf("archive: empty root")
	}
	if err := guard.ValidateIdentifier(prefix); err != nil {
		return nil, fmt.Errorf("archive: prefix: %w", err)
	}
	if ext == "" {
		ext = DefaultExtension
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	if err := guard.ValidateIdentifier(strings.TrimPrefix(ext, ".")); err != nil {
		return nil, fmt.Errorf("archive: extension: %w", err)
	}
	return &Builder{root: filepath.Clean(root), prefix: prefix, ext: ext}, nil
}

// Root returns the cleaned archive root.
func (b *Builder) Root() string { return b.root }

// DateDir returns the date partition for now, in UTC.
func DateDir(now time.Time) string {
	return now.UTC().Format(dateLayout)
}

// Stamp returns the ISO-8601 millisecond timestamp of now with ':' and '.'
// replaced by '-', e.g. 2025-11-03T10-20-30-123Z.
func Stamp(now time.Time) string {
	s := now.UTC().Format(stampLayout)
	return strings.NewReplacer(":", "-", ".", "-").Replace(s)
}

// Filename returns prefix-STAMP.ext for now.
func (b *Builder) Filename(now time.Time) string {
	return b.prefix + "-" + Stamp(now) + b.ext
}

// Build returns the directory and file name for a capture taken at now.
// The directory exists when Build returns nil.
func (b *Builder) Build(now time.Time) (dir, name string, err error) {
	dir = filepath.Join(b.root, DateDir(now))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", &PersistenceError{Op: "mkdir", Path: dir, Err: err}
	}
	return dir, b.Filename(now), nil
}

// Rel returns the path of dir/name relative to the root, for logs and events.
func (b *Builder) Rel(dir, name string) string {
	full := filepath.Join(dir, name)
	rel, err := filepath.Rel(b.root, full)
	if err != nil {
		return full
	}
	return filepath.ToSlash(rel)
}

// Write stores data at dir/name. Bytes go to a hidden temp file in dir that
// is synced and then hard-linked to the final name, so a crash mid-write
// never leaves a truncated capture under the final name. The link fails if
// the name exists, so an existing file is never replaced, even one created
// after the first check.
func (b *Builder) Write(dir, name string, data []byte) (err error) {
	final := filepath.Join(dir, name)
	if _, statErr := os.Lstat(final); statErr == nil {
		return &PersistenceError{Op: "exists", Path: final, Err: fs.ErrExist}
	} else if !errors.Is(statErr, fs.ErrNotExist) {
		return &PersistenceError{Op: "exists", Path: final, Err: statErr}
	}

	tmp, err := os.CreateTemp(dir, "."+name+".*.part")
	if err != nil {
		return &PersistenceError{Op: "create", Path: final, Err: err}
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmpName)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return &PersistenceError{Op: "write", Path: tmpName, Err: err}
	}
	if err = tmp.Sync(); err != nil {
		return &PersistenceError{Op: "sync", Path: tmpName, Err: err}
	}
	if err = tmp.Close(); err != nil {
		return &PersistenceError{Op: "close", Path: tmpName, Err: err}
	}
	if err = os.Chmod(tmpName, 0o644); err != nil {
		return &PersistenceError{Op: "chmod", Path: tmpName, Err: err}
	}
	if b.beforeCommit != nil {
		b.beforeCommit(final)
	}
	if err = os.Link(tmpName, final); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return &PersistenceError{Op: "exists", Path: final, Err: fs.ErrExist}
		}
		return &PersistenceError{Op: "link", Path: final, Err: err}
	}
	os.Remove(tmpName)
	return nil
}
