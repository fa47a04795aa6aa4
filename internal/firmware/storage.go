// internal/firmware/storage.go

// Package firmware installs a downloaded gateway image and restarts into it.
package firmware

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sys/unix"
)

var (
	ErrInsufficientSpace = errors.New("firmware: insufficient space")
	ErrIncompleteWrite   = errors.New("firmware: incomplete write")
	ErrNotStarted        = errors.New("firmware: no update in progress")
	ErrInvalidSize       = errors.New("firmware: size must be > 0")
)

// FileStorage stages an image next to Target and renames it into place.
// It is pre-sized and append-only; End verifies the byte count.
type FileStorage struct {
	dir    string
	target string

	// reports free bytes in dir
	freeSpace func(dir string) (uint64, error)

	mu       sync.Mutex
	f        *os.File
	size     int64
	written  int64
	finished bool
}

// NewFileStorage stages in dir. dir should be on the same filesystem as
// target so the final rename is atomic.
func NewFileStorage(dir, target string) (*FileStorage, error) {
	if target == "" {
		return nil, errors.New("firmware: target path required")
	}
	if dir == "" {
		dir = filepath.Dir(target)
	}
	return &FileStorage{
		dir:       dir,
		target:    target,
		freeSpace: statfsFree,
	}, nil
}

func statfsFree(dir string) (uint64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(dir, &st); err != nil {
		return 0, fmt.Errorf("firmware: statfs %s: %w", dir, err)
	}
	return uint64(st.Bavail) * uint64(st.Bsize), nil
}

// Begin reserves size bytes. Any previous unfinished staging is discarded.
func (s *FileStorage) Begin(size int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if size <= 0 {
		return ErrInvalidSize
	}
	s.abortLocked()
	s.finished = false

	free, err := s.freeSpace(s.dir)
	if err != nil {
		return err
	}
	if free < uint64(size) {
		return fmt.Errorf("%w: need %d bytes, have %d", ErrInsufficientSpace, size, free)
	}

	f, err := os.CreateTemp(s.dir, ".gateway-update-*")
	if err != nil {
		return fmt.Errorf("firmware: stage: %w", err)
	}
	if err := f.Truncate(size); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return fmt.Errorf("firmware: pre-size: %w", err)
	}

	s.f = f
	s.size = size
	s.written = 0
	return nil
}

// WriteStream appends from r, never beyond the declared size.
// It returns the bytes written by this call.
func (s *FileStorage) WriteStream(r io.Reader) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.f == nil {
		return 0, ErrNotStarted
	}

	n, err := io.Copy(s.f, io.LimitReader(r, s.size-s.written))
	s.written += n
	if err != nil {
		return n, fmt.Errorf("firmware: write: %w", err)
	}
	return n, nil
}

// End verifies the image is complete and installs it over the target.
// On any failure the staging file is removed.
func (s *FileStorage) End() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.f == nil {
		return ErrNotStarted
	}
	if s.written != s.size {
		err := fmt.Errorf("%w: %d of %d bytes", ErrIncompleteWrite, s.written, s.size)
		s.abortLocked()
		return err
	}

	staged := s.f.Name()
	if err := s.f.Sync(); err != nil {
		s.abortLocked()
		return fmt.Errorf("firmware: sync: %w", err)
	}
	if err := s.f.Close(); err != nil {
		s.f = nil
		_ = os.Remove(staged)
		return fmt.Errorf("firmware: close: %w", err)
	}
	s.f = nil

	if err := os.Chmod(staged, 0o755); err != nil {
		_ = os.Remove(staged)
		return fmt.Errorf("firmware: chmod: %w", err)
	}
	if err := os.Rename(staged, s.target); err != nil {
		_ = os.Remove(staged)
		return fmt.Errorf("firmware: install: %w", err)
	}
	syncDir(filepath.Dir(s.target))

	s.finished = true
	return nil
}

// IsFinished reports whether the last End installed a complete image.
func (s *FileStorage) IsFinished() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finished
}

// Written returns bytes staged so far.
func (s *FileStorage) Written() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.written
}

// Abort discards a staged image.
func (s *FileStorage) Abort() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.abortLocked()
}

func (s *FileStorage) abortLocked() {
	if s.f == nil {
		return
	}
	name := s.f.Name()
	_ = s.f.Close()
	_ = os.Remove(name)
	s.f = nil
}

func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}
