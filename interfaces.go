// Package omnifs mediates access to heterogeneous storage backends through
// one uniform operation set.
//
// Multiple backends (local filesystem, S3, SFTP, in-memory, etc.) are
// registered under names in a Registry, which lazily establishes and caches
// one Operator per backend, tracks health, and resolves a default backend
// when callers omit a name. A Dispatcher executes file operations against
// resolved backends, enforcing read-only policy and orchestrating copies
// that may span two different backends.
//
// Basic usage:
//
//	reg := omnifs.NewRegistry()
//	_ = reg.Register(ctx, omnifs.Descriptor{Name: "scratch", URL: "memory://"})
//	disp := omnifs.NewDispatcher(reg)
//	_ = disp.Write(ctx, "/notes.txt", []byte("hi"), "")
package omnifs

import (
	"context"
	"io"
	"time"
)

// Operator is the opaque capability performing actual I/O against one
// backend's namespace. One Operator exists per backend connection string;
// construction is owned by the Registry's cache slot for that backend.
//
// Operators are safe for concurrent use by multiple goroutines. All
// blocking methods accept a context.Context. Failures are distinguishable
// via errors.Is against ErrPathNotFound, ErrPermissionDenied, and the
// generic transport errors each implementation wraps.
type Operator interface {
	// List returns the entries directly contained in the directory at path.
	// Returns ErrPathNotFound if the directory does not exist.
	List(ctx context.Context, path string) ([]Entry, error)

	// NewReader opens the object at path for streaming reads.
	// Returns ErrPathNotFound if the path does not exist.
	// The returned reader must be closed after use.
	NewReader(ctx context.Context, path string) (io.ReadCloser, error)

	// NewWriter opens the object at path for streaming writes, creating or
	// truncating it. The returned writer must be closed to flush the object.
	NewWriter(ctx context.Context, path string) (io.WriteCloser, error)

	// Stat returns metadata for the object or directory at path.
	Stat(ctx context.Context, path string) (Entry, error)

	// Exists reports whether path exists.
	Exists(ctx context.Context, path string) (bool, error)

	// Copy duplicates an object from src to dst within this backend,
	// using a server-side copy when the transport supports one.
	Copy(ctx context.Context, src, dst string) error

	// Rename moves an object from src to dst within this backend.
	Rename(ctx context.Context, src, dst string) error

	// Mkdir creates the directory at path, including missing parents.
	Mkdir(ctx context.Context, path string) error

	// Delete removes the object at path. Deleting a missing path is a no-op.
	Delete(ctx context.Context, path string) error

	// Close releases any resources held by the operator.
	// After Close, all other methods return ErrOperatorClosed.
	Close() error
}

// Entry describes one object or directory in a backend's namespace.
type Entry struct {
	// Name is the entry's base name.
	Name string `json:"name"`

	// Path is the entry's path relative to the backend root.
	Path string `json:"path"`

	// IsDir reports whether the entry is a directory.
	IsDir bool `json:"is_dir"`

	// Size is the object size in bytes, or 0 for directories.
	Size int64 `json:"size"`

	// Modified is the last modification time, zero if unknown.
	Modified time.Time `json:"modified"`

	// ContentType is a MIME type hint, empty if unknown.
	ContentType string `json:"content_type,omitempty"`
}

// Policy carries the per-backend transport policy handed to operator
// construction. Enforcement is the operator's responsibility; the core
// performs no retries or timeouts of its own.
type Policy struct {
	// Timeout bounds individual transport calls. Zero means the
	// transport default.
	Timeout time.Duration

	// RetryAttempts is the operator's retry budget for failed calls.
	RetryAttempts int
}

// ReadAll reads the full content of the object at path through op.
func ReadAll(ctx context.Context, op Operator, path string) ([]byte, error) {
	r, err := op.NewReader(ctx, path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = r.Close() }()

	return io.ReadAll(r)
}

// WriteAll writes data to the object at path through op, creating or
// truncating it.
func WriteAll(ctx context.Context, op Operator, path string, data []byte) error {
	w, err := op.NewWriter(ctx, path)
	if err != nil {
		return err
	}

	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return err
	}

	return w.Close()
}
