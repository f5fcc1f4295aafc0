// Package configfs wraps the directory-and-attribute-file interface the
// kernel exposes under /sys/kernel/config. Writing a value to an attribute
// file is the sole configuration primitive; everything else is mkdir,
// symlink and rmdir.
package configfs

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Op kinds reported through Tree.Trace.
const (
	OpMkdir     = "mkdir"
	OpWriteAttr = "write"
	OpSymlink   = "symlink"
	OpRemove    = "remove"
)

// Op describes a single mutation of the tree.
type Op struct {
	Kind  string
	Path  string // tree-relative
	Value string // attribute value for OpWriteAttr
}

// Tree performs filesystem operations relative to a root directory,
// normally the configfs mountpoint. All paths passed to its methods are
// relative to that root.
type Tree struct {
	root string

	// Trace, if set, is called after every successful mutation.
	Trace func(Op)
}

// NewTree returns a Tree rooted at dir.
func NewTree(dir string) *Tree {
	return &Tree{root: dir}
}

// Root returns the directory the tree is rooted at.
func (t *Tree) Root() string {
	return t.root
}

// Abs returns the absolute path for a tree-relative one.
func (t *Tree) Abs(rel string) string {
	return filepath.Join(t.root, rel)
}

func (t *Tree) trace(op Op) {
	if t.Trace != nil {
		t.Trace(op)
	}
}

// Mkdir creates a single directory. An existing directory is an error;
// node creation is deliberately not idempotent.
func (t *Tree) Mkdir(rel string) error {
	if err := os.Mkdir(t.Abs(rel), 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", rel, err)
	}
	t.trace(Op{Kind: OpMkdir, Path: rel})
	return nil
}

// EnsureDir creates a directory, tolerating one that already exists.
// Used for groups configfs pre-creates itself, like a function's lun.0.
func (t *Tree) EnsureDir(rel string) error {
	err := os.Mkdir(t.Abs(rel), 0755)
	if err != nil && !errors.Is(err, fs.ErrExist) {
		return fmt.Errorf("failed to create %s: %w", rel, err)
	}
	if err == nil {
		t.trace(Op{Kind: OpMkdir, Path: rel})
	}
	return nil
}

// WriteAttr writes a string value to an attribute file.
func (t *Tree) WriteAttr(rel, value string) error {
	return t.WriteAttrBytes(rel, []byte(value))
}

// WriteAttrBytes writes raw bytes to an attribute file. Needed for binary
// attributes such as a HID report descriptor.
func (t *Tree) WriteAttrBytes(rel string, value []byte) error {
	if err := os.WriteFile(t.Abs(rel), value, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", rel, err)
	}
	t.trace(Op{Kind: OpWriteAttr, Path: rel, Value: string(value)})
	return nil
}

// ReadAttr reads an attribute file, trimming the trailing newline the
// kernel appends on read-back.
func (t *Tree) ReadAttr(rel string) (string, error) {
	data, err := os.ReadFile(t.Abs(rel))
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", rel, err)
	}
	return strings.TrimRight(string(data), "\n"), nil
}

// Symlink links targetRel into linkRel. Configfs resolves the link through
// absolute paths, so both sides are absolutized against the root.
func (t *Tree) Symlink(targetRel, linkRel string) error {
	if err := os.Symlink(t.Abs(targetRel), t.Abs(linkRel)); err != nil {
		return fmt.Errorf("failed to link %s into %s: %w", targetRel, linkRel, err)
	}
	t.trace(Op{Kind: OpSymlink, Path: linkRel, Value: targetRel})
	return nil
}

// Remove deletes a file, symlink or empty directory. A missing entry is
// not an error; teardown has to cope with partially built trees.
func (t *Tree) Remove(rel string) error {
	err := os.Remove(t.Abs(rel))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to remove %s: %w", rel, err)
	}
	t.trace(Op{Kind: OpRemove, Path: rel})
	return nil
}

// RemoveDir deletes a directory. Configfs sheds a directory's attribute
// files and default groups on rmdir; a regular filesystem does not, so a
// not-empty directory falls back to a recursive remove.
func (t *Tree) RemoveDir(rel string) error {
	abs := t.Abs(rel)
	err := os.Remove(abs)
	if err == nil {
		t.trace(Op{Kind: OpRemove, Path: rel})
		return nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}

	if err := os.RemoveAll(abs); err != nil {
		return fmt.Errorf("failed to remove %s: %w", rel, err)
	}
	t.trace(Op{Kind: OpRemove, Path: rel})
	return nil
}

// Exists reports whether a tree entry is present.
func (t *Tree) Exists(rel string) bool {
	_, err := os.Lstat(t.Abs(rel))
	return err == nil
}

// List returns the entry names of a directory, empty if it is missing.
func (t *Tree) List(rel string) ([]string, error) {
	entries, err := os.ReadDir(t.Abs(rel))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", rel, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names, nil
}
