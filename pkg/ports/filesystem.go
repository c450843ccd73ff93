package ports

import "io"

// FileSystem abstracts file system operations.
type FileSystem interface {
	// Create creates or truncates a file for writing.
	Create(path string) (OutputFile, error)

	// ReadFile reads the entire contents of a file.
	ReadFile(path string) ([]byte, error)

	// Open opens a file for reading.
	Open(path string) (io.ReadSeekCloser, error)

	// MkdirAll creates a directory and all parent directories.
	MkdirAll(path string) error

	// Exists checks if a file or directory exists.
	Exists(path string) (bool, error)

	// Remove deletes a file or empty directory.
	Remove(path string) error
}

// OutputFile is a container file being written. WriteAt is used to patch
// headers once the final sizes are known.
type OutputFile interface {
	io.Writer
	io.WriterAt
	io.Closer
	Sync() error
}
