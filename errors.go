package omnifs

import (
	"errors"
	"fmt"
)

// Common errors returned by the registry and dispatcher. Operator failures
// are wrapped in an *OpError carrying the backend name, operation, and path
// alongside one of these sentinels.
var (
	// ErrInvalidName is returned when a backend name fails the allowed
	// pattern (letters, digits, hyphens, underscores).
	ErrInvalidName = errors.New("omnifs: invalid backend name")

	// ErrInvalidURL is returned when a backend URL cannot be parsed or its
	// scheme matches no registered backend kind.
	ErrInvalidURL = errors.New("omnifs: invalid backend URL")

	// ErrNameConflict is returned when registering a name that already exists.
	ErrNameConflict = errors.New("omnifs: backend name already registered")

	// ErrNotFound is returned when a backend name is unknown to the registry.
	ErrNotFound = errors.New("omnifs: backend not found")

	// ErrNoDefaultBackend is returned for default-relative operations when
	// no default backend is configured.
	ErrNoDefaultBackend = errors.New("omnifs: no default backend set")

	// ErrDefaultBackendInUse is returned when removing the default backend
	// while others remain, without force.
	ErrDefaultBackendInUse = errors.New("omnifs: backend is the current default")

	// ErrConnection is returned when operator construction or a connectivity
	// probe fails.
	ErrConnection = errors.New("omnifs: backend connection failed")

	// ErrReadOnly is returned when a mutating operation targets a backend
	// registered as read-only. The underlying operator is never invoked.
	ErrReadOnly = errors.New("omnifs: backend is read-only")

	// ErrPathNotFound is returned when a path does not exist on a backend.
	ErrPathNotFound = errors.New("omnifs: path not found")

	// ErrPermissionDenied is returned when the backend denies access to a path.
	ErrPermissionDenied = errors.New("omnifs: permission denied")

	// ErrBackend is the catch-all for transport failures that are neither
	// not-found nor permission errors.
	ErrBackend = errors.New("omnifs: backend operation failed")

	// ErrPartialCopy is returned by recursive copies with mixed per-entry
	// outcomes. Inspect the accompanying CopyResult for details.
	ErrPartialCopy = errors.New("omnifs: copy partially failed")

	// ErrNotSupported is returned when an operation is not supported by the
	// backend transport.
	ErrNotSupported = errors.New("omnifs: operation not supported")

	// ErrOperatorClosed is returned when operating on a closed operator.
	ErrOperatorClosed = errors.New("omnifs: operator closed")

	// ErrInvalidPath is returned when a path is empty or escapes the
	// backend root.
	ErrInvalidPath = errors.New("omnifs: invalid path")
)

// IsNotFound returns true if the error indicates an unknown backend name.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsPathNotFound returns true if the error indicates a missing path.
func IsPathNotFound(err error) bool {
	return errors.Is(err, ErrPathNotFound)
}

// IsReadOnly returns true if the error indicates a read-only violation.
func IsReadOnly(err error) bool {
	return errors.Is(err, ErrReadOnly)
}

// IsConnection returns true if the error indicates a construction or probe
// failure.
func IsConnection(err error) bool {
	return errors.Is(err, ErrConnection)
}

// OpError records a failed operation against a named backend. It preserves
// the underlying cause for errors.Is/As while adding the backend name,
// operation, and path a caller needs to decide whether to retry, pick a
// different backend, or abort.
type OpError struct {
	// Backend is the registry name of the backend involved.
	Backend string

	// Op is the operation that failed ("read", "write", "copy", ...).
	Op string

	// Path is the path (or "src -> dst" pair) the operation targeted.
	Path string

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *OpError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("omnifs: %s on backend %q: %v", e.Op, e.Backend, e.Err)
	}
	return fmt.Sprintf("omnifs: %s %q on backend %q: %v", e.Op, e.Path, e.Backend, e.Err)
}

// Unwrap returns the underlying cause.
func (e *OpError) Unwrap() error {
	return e.Err
}
