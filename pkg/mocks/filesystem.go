package mocks

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/user/framemux/pkg/ports"
)

// FileSystem is an in-memory implementation of ports.FileSystem.
type FileSystem struct {
	mu    sync.RWMutex
	files map[string]*File
	dirs  map[string]bool

	CreateFunc   func(path string) (ports.OutputFile, error)
	ReadFileFunc func(path string) ([]byte, error)
	OpenFunc     func(path string) (io.ReadSeekCloser, error)
	MkdirAllFunc func(path string) error
	ExistsFunc   func(path string) (bool, error)
	RemoveFunc   func(path string) error

	// Recorded calls for verification
	CreateCalls []string
	RemoveCalls []string
	OpenCalls   []string
}

// NewFileSystem creates a new mock FileSystem.
func NewFileSystem() *FileSystem {
	return &FileSystem{
		files: make(map[string]*File),
		dirs:  make(map[string]bool),
	}
}

func (m *FileSystem) Create(path string) (ports.OutputFile, error) {
	m.mu.Lock()
	m.CreateCalls = append(m.CreateCalls, path)
	m.mu.Unlock()
	if m.CreateFunc != nil {
		return m.CreateFunc(path)
	}
	f := &File{}
	m.mu.Lock()
	m.files[path] = f
	m.mu.Unlock()
	return f, nil
}

func (m *FileSystem) ReadFile(path string) ([]byte, error) {
	if m.ReadFileFunc != nil {
		return m.ReadFileFunc(path)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if f, ok := m.files[path]; ok {
		return f.Bytes(), nil
	}
	return nil, fmt.Errorf("file not found: %s", path)
}

// Open returns a reader over a snapshot of the file.
func (m *FileSystem) Open(path string) (io.ReadSeekCloser, error) {
	m.mu.Lock()
	m.OpenCalls = append(m.OpenCalls, path)
	m.mu.Unlock()
	if m.OpenFunc != nil {
		return m.OpenFunc(path)
	}
	data, err := m.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return &reader{Reader: bytes.NewReader(data)}, nil
}

type reader struct {
	*bytes.Reader
	closed bool
}

func (r *reader) Close() error {
	if r.closed {
		return ErrClosed
	}
	r.closed = true
	return nil
}

func (m *FileSystem) MkdirAll(path string) error {
	if m.MkdirAllFunc != nil {
		return m.MkdirAllFunc(path)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dirs[path] = true
	return nil
}

func (m *FileSystem) Exists(path string) (bool, error) {
	if m.ExistsFunc != nil {
		return m.ExistsFunc(path)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.files[path]; ok {
		return true, nil
	}
	return m.dirs[path], nil
}

func (m *FileSystem) Remove(path string) error {
	m.mu.Lock()
	m.RemoveCalls = append(m.RemoveCalls, path)
	m.mu.Unlock()
	if m.RemoveFunc != nil {
		return m.RemoveFunc(path)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, path)
	delete(m.dirs, path)
	return nil
}

// GetFile returns the contents of a file (for test verification).
func (m *FileSystem) GetFile(path string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.files[path]
	if !ok {
		return nil, false
	}
	return f.Bytes(), true
}

// AddFile stores data at path.
func (m *FileSystem) AddFile(path string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[path] = &File{data: append([]byte(nil), data...)}
}

var _ ports.FileSystem = (*FileSystem)(nil)

// ErrClosed is returned by writes to a closed File.
var ErrClosed = errors.New("mocks: file closed")

// File is an in-memory ports.OutputFile.
type File struct {
	mu     sync.Mutex
	data   []byte
	closed bool

	// WriteErr, when set, fails every write once FailAfter bytes were written.
	WriteErr  error
	FailAfter int
	SyncErr   error

	Syncs int
}

func (f *File) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check(len(f.data)); err != nil {
		return 0, err
	}
	f.data = append(f.data, p...)
	return len(p), nil
}

func (f *File) WriteAt(p []byte, off int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check(int(off)); err != nil {
		return 0, err
	}
	if off < 0 {
		return 0, io.ErrShortWrite
	}
	end := int(off) + len(p)
	if end > len(f.data) {
		f.data = append(f.data, make([]byte, end-len(f.data))...)
	}
	copy(f.data[off:], p)
	return len(p), nil
}

func (f *File) check(pos int) error {
	if f.closed {
		return ErrClosed
	}
	if f.WriteErr != nil && pos >= f.FailAfter {
		return f.WriteErr
	}
	return nil
}

func (f *File) Sync() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Syncs++
	return f.SyncErr
}

func (f *File) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrClosed
	}
	f.closed = true
	return nil
}

// Bytes returns a copy of the file contents.
func (f *File) Bytes() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]byte(nil), f.data...)
}

// Closed reports whether Close was called.
func (f *File) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

var _ ports.OutputFile = (*File)(nil)
