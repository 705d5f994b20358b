// Package content stores uploaded file bytes in a single flat directory.
package content

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/crypto/sha3"
)

const (
	DirPerms  os.FileMode = 0o755
	FilePerms os.FileMode = 0o644
)

var (
	// ErrTooLarge is returned when a write exceeds its byte limit. Nothing is
	// left on disk.
	ErrTooLarge = errors.New("content exceeds size limit")
	// ErrExists is returned when the target name is already taken.
	ErrExists = errors.New("content already exists")
	// ErrInvalidName is returned for names that are not a single path element.
	ErrInvalidName = errors.New("invalid content name")
)

// Store is a flat directory of content files.
type Store struct {
	root string
}

// Written describes a completed write.
type Written struct {
	Path     string
	Size     int64
	Checksum string // SHA3-256, hex
}

// Entry is a file found by List.
type Entry struct {
	Name    string
	Size    int64
	ModTime time.Time
}

// New opens the directory at root, creating it if needed.
func New(root string) (*Store, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("content root: %w", err)
	}
	if err := os.MkdirAll(abs, DirPerms); err != nil {
		return nil, fmt.Errorf("create content dir: %w", err)
	}
	return &Store{root: abs}, nil
}

// Root returns the absolute directory path.
func (s *Store) Root() string {
	return s.root
}

func validName(name string) bool {
	return name != "" &&
		name == filepath.Base(name) &&
		!strings.HasPrefix(name, ".") &&
		!strings.ContainsAny(name, `/\`)
}

// Path returns the absolute path for name.
func (s *Store) Path(name string) (string, error) {
	if !validName(name) {
		return "", ErrInvalidName
	}
	return filepath.Join(s.root, name), nil
}

// Write streams r into a new file called name, reading at most limit bytes.
// The file is created exclusively: an existing name fails with ErrExists
// rather than being overwritten. On any failure the partial file is removed.
func (s *Store) Write(name string, r io.Reader, limit int64) (*Written, error) {
	path, err := s.Path(name)
	if err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, FilePerms)
	if errors.Is(err, fs.ErrExist) {
		return nil, ErrExists
	}
	if err != nil {
		return nil, fmt.Errorf("create content file: %w", err)
	}

	h := sha3.New256()
	n, err := io.Copy(io.MultiWriter(f, h), io.LimitReader(r, limit+1))
	if err == nil && n > limit {
		err = ErrTooLarge
	}
	if cerr := f.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("close content file: %w", cerr)
	}
	if err != nil {
		os.Remove(path)
		if errors.Is(err, ErrTooLarge) {
			return nil, ErrTooLarge
		}
		return nil, fmt.Errorf("write content file: %w", err)
	}

	return &Written{
		Path:     path,
		Size:     n,
		Checksum: hex.EncodeToString(h.Sum(nil)),
	}, nil
}

// Open opens name for reading. A missing file yields an error matching
// fs.ErrNotExist.
func (s *Store) Open(name string) (*os.File, error) {
	path, err := s.Path(name)
	if err != nil {
		return nil, err
	}
	return os.Open(path)
}

// Remove deletes name. Removing a file that does not exist is not an error.
func (s *Store) Remove(name string) error {
	path, err := s.Path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove content file: %w", err)
	}
	return nil
}

// List returns the regular files in the directory.
func (s *Store) List() ([]Entry, error) {
	dirEntries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("list content dir: %w", err)
	}
	var entries []Entry
	for _, de := range dirEntries {
		if !de.Type().IsRegular() || !validName(de.Name()) {
			continue
		}
		info, err := de.Info()
		if err != nil {
			// Removed between ReadDir and Info.
			continue
		}
		entries = append(entries, Entry{Name: de.Name(), Size: info.Size(), ModTime: info.ModTime()})
	}
	return entries, nil
}
