// internal/firmware/firmware_test.go
package firmware

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gotest.tools/v3/assert"
)

func newStorage(t *testing.T) (*FileStorage, string) {
	t.Helper()
	dir := t.TempDir()
	target := filepath.Join(dir, "gateway")
	assert.NilError(t, os.WriteFile(target, []byte("old image"), 0o755))

	s, err := NewFileStorage(dir, target)
	assert.NilError(t, err)
	return s, target
}

func stagedFiles(t *testing.T, dir string) []string {
	t.Helper()
	m, err := filepath.Glob(filepath.Join(dir, ".gateway-update-*"))
	assert.NilError(t, err)
	return m
}

func TestStorage_Install(t *testing.T) {
	s, target := newStorage(t)
	img := bytes.Repeat([]byte{0xE9}, 4096)

	assert.NilError(t, s.Begin(int64(len(img))))

	n, err := s.WriteStream(bytes.NewReader(img[:1000]))
	assert.NilError(t, err)
	assert.Equal(t, n, int64(1000))

	n, err = s.WriteStream(bytes.NewReader(img[1000:]))
	assert.NilError(t, err)
	assert.Equal(t, n, int64(len(img)-1000))

	assert.NilError(t, s.End())
	assert.Assert(t, s.IsFinished())

	got, err := os.ReadFile(target)
	assert.NilError(t, err)
	assert.Assert(t, bytes.Equal(got, img))

	fi, err := os.Stat(target)
	assert.NilError(t, err)
	assert.Equal(t, fi.Mode().Perm(), os.FileMode(0o755))
	assert.Equal(t, len(stagedFiles(t, filepath.Dir(target))), 0)
}

func TestStorage_Incomplete(t *testing.T) {
	s, target := newStorage(t)

	assert.NilError(t, s.Begin(500))
	n, err := s.WriteStream(strings.NewReader("short"))
	assert.NilError(t, err)
	assert.Equal(t, n, int64(5))

	err = s.End()
	assert.Assert(t, errors.Is(err, ErrIncompleteWrite))
	assert.Assert(t, !s.IsFinished())

	got, err := os.ReadFile(target)
	assert.NilError(t, err)
	assert.Equal(t, string(got), "old image")
	assert.Equal(t, len(stagedFiles(t, filepath.Dir(target))), 0)
}

func TestStorage_NeverWritesPastSize(t *testing.T) {
	s, _ := newStorage(t)

	assert.NilError(t, s.Begin(4))
	n, err := s.WriteStream(strings.NewReader("abcdefgh"))
	assert.NilError(t, err)
	assert.Equal(t, n, int64(4))
	assert.Equal(t, s.Written(), int64(4))
}

func TestStorage_InsufficientSpace(t *testing.T) {
	s, _ := newStorage(t)
	s.freeSpace = func(string) (uint64, error) { return 100, nil }

	err := s.Begin(101)
	assert.Assert(t, errors.Is(err, ErrInsufficientSpace))

	_, err = s.WriteStream(strings.NewReader("x"))
	assert.Assert(t, errors.Is(err, ErrNotStarted))
}

func TestStorage_InvalidSize(t *testing.T) {
	s, _ := newStorage(t)
	assert.Assert(t, errors.Is(s.Begin(0), ErrInvalidSize))
}

func TestStorage_Abort(t *testing.T) {
	s, target := newStorage(t)

	assert.NilError(t, s.Begin(10))
	assert.Equal(t, len(stagedFiles(t, filepath.Dir(target))), 1)

	s.Abort()
	assert.Equal(t, len(stagedFiles(t, filepath.Dir(target))), 0)
	assert.Assert(t, errors.Is(s.End(), ErrNotStarted))
}

func TestNewFileStorage_DefaultsDir(t *testing.T) {
	s, err := NewFileStorage("", "/opt/gateway/bin/gateway")
	assert.NilError(t, err)
	assert.Equal(t, s.dir, "/opt/gateway/bin")

	_, err = NewFileStorage("/tmp", "")
	assert.ErrorContains(t, err, "target path required")
}

func TestRestarter_FallsBackToExit(t *testing.T) {
	var (
		execPath string
		code     = -1
		before   bool
	)
	r := &ExecRestarter{
		Path:   "/opt/gateway/bin/gateway",
		Args:   []string{"gateway", "run"},
		Before: func() { before = true },
		exec: func(path string, args, env []string) error {
			execPath = path
			return errors.New("exec format error")
		},
		exit: func(c int) { code = c },
	}

	r.Restart()

	assert.Assert(t, before)
	assert.Equal(t, execPath, "/opt/gateway/bin/gateway")
	assert.Equal(t, code, ExitCodeRestart)
}
