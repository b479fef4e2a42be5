package substrate

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrNotFound reports that a substrate file does not exist yet. It is
// distinguishable from other I/O failures so callers can degrade to an empty
// document instead of surfacing an error.
var ErrNotFound = errors.New("substrate file not found")

// Store is the read/write/append contract the core needs from the substrate.
type Store interface {
	Read(f FileType) (string, error)
	Write(f FileType, content string) error
	Append(f FileType, entry string) error
}

// Dir is a Store backed by a directory of markdown files.
type Dir struct {
	root string
}

// NewDir creates the substrate directory if needed and returns a store over it.
func NewDir(root string) (*Dir, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create substrate dir: %w", err)
	}
	return &Dir{root: root}, nil
}

// Root returns the substrate directory path.
func (d *Dir) Root() string {
	return d.root
}

func (d *Dir) path(f FileType) string {
	return filepath.Join(d.root, f.Filename())
}

// Read returns the full content of f. Missing files yield ErrNotFound.
func (d *Dir) Read(f FileType) (string, error) {
	if !f.Valid() {
		return "", fmt.Errorf("unknown substrate file %q", f)
	}
	data, err := os.ReadFile(d.path(f))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%s: %w", f, ErrNotFound)
		}
		return "", fmt.Errorf("read %s: %w", f, err)
	}
	return string(data), nil
}

// Write atomically replaces the full content of f.
func (d *Dir) Write(f FileType, content string) error {
	if !f.Valid() {
		return fmt.Errorf("unknown substrate file %q", f)
	}
	return AtomicWriteFile(d.path(f), []byte(content))
}

// Append adds one entry to the end of f, creating it if needed. A newline is
// added when the entry does not carry its own.
func (d *Dir) Append(f FileType, entry string) error {
	if !f.Valid() {
		return fmt.Errorf("unknown substrate file %q", f)
	}
	file, err := os.OpenFile(d.path(f), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open %s for append: %w", f, err)
	}
	defer file.Close()
	if !strings.HasSuffix(entry, "\n") {
		entry += "\n"
	}
	if _, err := file.WriteString(entry); err != nil {
		return fmt.Errorf("append to %s: %w", f, err)
	}
	return nil
}

// AtomicWriteFile writes data to a temp file in the target directory and
// renames it into place, so readers never observe a partial file. The parent
// directory is created if needed.
func AtomicWriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dir for %s: %w", filepath.Base(path), err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
