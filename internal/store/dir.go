package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// tmpPrefix marks in-progress writes. Files with this prefix are never listed.
const tmpPrefix = ".tmp-"

// Dir stores each key as a file under a root directory. Key segments map to
// nested directories.
type Dir struct {
	root string
}

// OpenDir creates root if needed and returns a Dir store rooted there.
func OpenDir(root string) (*Dir, error) {
	if err := os.MkdirAll(root, 0o775); err != nil {
		return nil, fmt.Errorf("failed to create storage dir: %w", err)
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve storage dir: %w", err)
	}
	return &Dir{root: abs}, nil
}

// Root returns the absolute root directory.
func (d *Dir) Root() string { return d.root }

func (d *Dir) path(key string) string {
	return filepath.Join(d.root, filepath.FromSlash(key))
}

// Write stores data via a temporary file in the target directory and renames it
// into place, so a crash mid-write leaves no file under key.
func (d *Dir) Write(ctx context.Context, key string, data []byte) error {
	if err := validateKey(key); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}

	target := d.path(key)
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o775); err != nil {
		return fmt.Errorf("write %s: mkdir: %w", key, err)
	}

	tmp, err := os.CreateTemp(dir, tmpPrefix+"*")
	if err != nil {
		return fmt.Errorf("write %s: create temp: %w", key, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // No-op after successful rename

	n, err := tmp.Write(data)
	if err == nil && n != len(data) {
		err = fmt.Errorf("short write: wrote %d of %d bytes", n, len(data))
	}
	if err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write %s: close temp: %w", key, err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		return fmt.Errorf("write %s: rename: %w", key, err)
	}
	return nil
}

// List walks the directory holding prefix. Order follows the filesystem walk
// (lexical), which callers must not rely on.
func (d *Dir) List(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("list %s: %w", prefix, err)
	}

	// Walk from the deepest directory fully named by the prefix.
	base := ""
	if i := strings.LastIndex(prefix, "/"); i >= 0 {
		base = prefix[:i]
	}
	start := d.root
	if base != "" {
		start = d.path(base)
	}

	keys := []string{}
	err := filepath.WalkDir(start, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return fs.SkipDir
			}
			return err
		}
		if entry.IsDir() || strings.HasPrefix(entry.Name(), tmpPrefix) {
			return nil
		}
		rel, err := filepath.Rel(d.root, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("list %s: %w", prefix, err)
	}
	return keys, nil
}

func (d *Dir) Read(ctx context.Context, key string) ([]byte, error) {
	if err := validateKey(key); err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	data, err := os.ReadFile(d.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("read %s: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return data, nil
}

// Delete removes every file whose key starts with prefix, then prunes
// directories left empty.
func (d *Dir) Delete(ctx context.Context, prefix string) error {
	keys, err := d.List(ctx, prefix)
	if err != nil {
		return fmt.Errorf("delete %s: %w", prefix, err)
	}
	dirs := map[string]struct{}{}
	for _, key := range keys {
		p := d.path(key)
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("delete %s: %w", key, err)
		}
		dirs[filepath.Dir(p)] = struct{}{}
	}
	for dir := range dirs {
		// Fails harmlessly when the directory still has entries.
		for dir != d.root && os.Remove(dir) == nil {
			dir = filepath.Dir(dir)
		}
	}
	return nil
}

// Close is a no-op; files stay on disk.
func (d *Dir) Close() error { return nil }
