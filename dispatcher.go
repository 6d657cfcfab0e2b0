package omnifs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/grokify/mogo/log/slogutil"
)

// Dispatcher executes file operations against registry backends. Every
// operation takes a backend name that defaults to the registry's default
// backend when empty. Mutating operations are rejected with ErrReadOnly
// before any I/O when the target backend is registered read-only.
//
// The dispatcher is safe for concurrent use.
type Dispatcher struct {
	reg    *Registry
	logger *slog.Logger
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithDispatcherLogger sets the dispatcher's structured logger.
// If unset, a null logger is used (no logging).
func WithDispatcherLogger(logger *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// NewDispatcher creates a dispatcher over reg.
func NewDispatcher(reg *Registry, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		reg:    reg,
		logger: slogutil.Null(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Registry returns the dispatcher's backend registry.
func (d *Dispatcher) Registry() *Registry {
	return d.reg
}

// List returns the entries directly contained in the directory at path.
func (d *Dispatcher) List(ctx context.Context, path, backend string) ([]Entry, error) {
	desc, op, err := d.reg.Resolve(ctx, backend)
	if err != nil {
		return nil, err
	}

	entries, err := op.List(ctx, path)
	if err != nil {
		return nil, opError(desc.Name, "list", path, err)
	}
	return entries, nil
}

// Read returns the full content of the object at path.
func (d *Dispatcher) Read(ctx context.Context, path, backend string) ([]byte, error) {
	desc, op, err := d.reg.Resolve(ctx, backend)
	if err != nil {
		return nil, err
	}

	data, err := ReadAll(ctx, op, path)
	if err != nil {
		return nil, opError(desc.Name, "read", path, err)
	}

	d.logger.Debug("read file",
		slog.String("backend", desc.Name),
		slog.String("path", path),
		slog.Int("bytes", len(data)),
	)
	return data, nil
}

// NewReader opens the object at path for streaming reads.
func (d *Dispatcher) NewReader(ctx context.Context, path, backend string) (io.ReadCloser, error) {
	desc, op, err := d.reg.Resolve(ctx, backend)
	if err != nil {
		return nil, err
	}

	r, err := op.NewReader(ctx, path)
	if err != nil {
		return nil, opError(desc.Name, "read", path, err)
	}
	return r, nil
}

// Stat returns metadata for the object or directory at path.
func (d *Dispatcher) Stat(ctx context.Context, path, backend string) (Entry, error) {
	desc, op, err := d.reg.Resolve(ctx, backend)
	if err != nil {
		return Entry{}, err
	}

	entry, err := op.Stat(ctx, path)
	if err != nil {
		return Entry{}, opError(desc.Name, "stat", path, err)
	}
	return entry, nil
}

// Exists reports whether path exists on the backend.
func (d *Dispatcher) Exists(ctx context.Context, path, backend string) (bool, error) {
	desc, op, err := d.reg.Resolve(ctx, backend)
	if err != nil {
		return false, err
	}

	ok, err := op.Exists(ctx, path)
	if err != nil {
		return false, opError(desc.Name, "exists", path, err)
	}
	return ok, nil
}

// Write stores data at path, creating or truncating the object.
func (d *Dispatcher) Write(ctx context.Context, path string, data []byte, backend string) error {
	desc, op, err := d.resolveMutable(ctx, backend, "write", path)
	if err != nil {
		return err
	}

	if err := WriteAll(ctx, op, path, data); err != nil {
		return opError(desc.Name, "write", path, err)
	}

	d.logger.Debug("wrote file",
		slog.String("backend", desc.Name),
		slog.String("path", path),
		slog.Int("bytes", len(data)),
	)
	return nil
}

// Mkdir creates the directory at path, including missing parents.
func (d *Dispatcher) Mkdir(ctx context.Context, path, backend string) error {
	desc, op, err := d.resolveMutable(ctx, backend, "mkdir", path)
	if err != nil {
		return err
	}

	if err := op.Mkdir(ctx, path); err != nil {
		return opError(desc.Name, "mkdir", path, err)
	}
	return nil
}

// Rename moves an object from src to dst within one backend.
func (d *Dispatcher) Rename(ctx context.Context, src, dst, backend string) error {
	desc, op, err := d.resolveMutable(ctx, backend, "rename", src)
	if err != nil {
		return err
	}

	if err := op.Rename(ctx, src, dst); err != nil {
		return opError(desc.Name, "rename", src+" -> "+dst, err)
	}

	d.logger.Debug("renamed",
		slog.String("backend", desc.Name),
		slog.String("src", src),
		slog.String("dst", dst),
	)
	return nil
}

// Delete removes the object at path.
func (d *Dispatcher) Delete(ctx context.Context, path, backend string) error {
	desc, op, err := d.resolveMutable(ctx, backend, "delete", path)
	if err != nil {
		return err
	}

	if err := op.Delete(ctx, path); err != nil {
		return opError(desc.Name, "delete", path, err)
	}
	return nil
}

// Copy copies a single object from src on srcBackend to dst on dstBackend.
// Either backend name may be empty to use the default.
//
// When source and destination resolve to the same backend, the operator's
// native copy primitive runs, preserving backend-side optimizations such as
// server-side copy. Otherwise the content is streamed from the source
// reader to the destination writer without buffering the whole object.
// Copies are not transactional: a destination failure after a successful
// source open leaves the source untouched and no destination rollback is
// attempted beyond what the operator itself guarantees.
func (d *Dispatcher) Copy(ctx context.Context, src, dst, srcBackend, dstBackend string) error {
	srcInfo, err := d.reg.Lookup(srcBackend)
	if err != nil {
		return err
	}
	dstInfo, err := d.reg.Lookup(dstBackend)
	if err != nil {
		return err
	}

	// Destination readonly is rejected before either operator is touched.
	// Source readonness is irrelevant: copy only writes to the destination.
	if dstInfo.ReadOnly {
		return &OpError{Backend: dstInfo.Name, Op: "copy", Path: dst, Err: ErrReadOnly}
	}

	d.logger.Info("copying",
		slog.String("src", src),
		slog.String("dst", dst),
		slog.String("src_backend", srcInfo.Name),
		slog.String("dst_backend", dstInfo.Name),
	)

	if srcInfo.Name == dstInfo.Name {
		desc, op, err := d.reg.Resolve(ctx, srcInfo.Name)
		if err != nil {
			return err
		}
		if err := op.Copy(ctx, src, dst); err != nil {
			return opError(desc.Name, "copy", src+" -> "+dst, err)
		}
		return nil
	}

	_, srcOp, err := d.reg.Resolve(ctx, srcInfo.Name)
	if err != nil {
		return err
	}
	_, dstOp, err := d.reg.Resolve(ctx, dstInfo.Name)
	if err != nil {
		return err
	}

	return d.streamCopy(ctx, srcOp, dstOp, src, dst, srcInfo.Name, dstInfo.Name)
}

// streamCopy transfers one object across backends through the dispatcher.
func (d *Dispatcher) streamCopy(ctx context.Context, srcOp, dstOp Operator, src, dst, srcName, dstName string) error {
	r, err := srcOp.NewReader(ctx, src)
	if err != nil {
		return opError(srcName, "copy", src, err)
	}
	defer func() { _ = r.Close() }()

	w, err := dstOp.NewWriter(ctx, dst)
	if err != nil {
		return opError(dstName, "copy", dst, err)
	}

	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return opError(dstName, "copy", src+" -> "+dst, err)
	}

	if err := w.Close(); err != nil {
		return opError(dstName, "copy", dst, err)
	}
	return nil
}

// resolveMutable resolves a backend for a mutating operation, rejecting
// read-only backends before the operator is constructed or invoked.
func (d *Dispatcher) resolveMutable(ctx context.Context, backend, op, path string) (Descriptor, Operator, error) {
	info, err := d.reg.Lookup(backend)
	if err != nil {
		return Descriptor{}, nil, err
	}
	if info.ReadOnly {
		return Descriptor{}, nil, &OpError{Backend: info.Name, Op: op, Path: path, Err: ErrReadOnly}
	}
	return d.reg.Resolve(ctx, info.Name)
}

// opError wraps an operator failure with backend/op/path context, folding
// unclassified transport errors into ErrBackend.
func opError(backend, op, path string, err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, ErrPathNotFound),
		errors.Is(err, ErrPermissionDenied),
		errors.Is(err, ErrNotSupported),
		errors.Is(err, ErrOperatorClosed),
		errors.Is(err, ErrInvalidPath),
		errors.Is(err, ErrReadOnly):
	default:
		err = fmt.Errorf("%w: %v", ErrBackend, err)
	}

	return &OpError{Backend: backend, Op: op, Path: path, Err: err}
}
