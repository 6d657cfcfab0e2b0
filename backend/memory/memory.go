// Package memory provides an in-memory operator for omnifs.
//
// The memory operator is useful for:
//   - Unit testing without network or filesystem access
//   - Temporary scratch backends
//   - Development and prototyping
//
// Data is stored in RAM and lost when the operator is closed or the process
// exits. Each constructed operator owns an independent namespace.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/omnifs/omnifs"
)

func init() {
	omnifs.RegisterScheme("memory", New)
}

// object is one stored file or directory marker.
type object struct {
	data     []byte
	modTime  time.Time
	isDir    bool
	mimeType string
}

// Operator implements omnifs.Operator over an in-memory object map.
type Operator struct {
	mu      sync.RWMutex
	objects map[string]*object
	closed  bool
}

// New creates a memory operator. The URL and policy are accepted for the
// factory contract but carry no options.
func New(_ *url.URL, _ omnifs.Policy) (omnifs.Operator, error) {
	return NewOperator(), nil
}

// NewOperator creates an empty memory operator.
func NewOperator() *Operator {
	return &Operator{objects: make(map[string]*object)}
}

// List returns the direct children of the directory at p. The root ("" or
// "/") always lists successfully, even when empty.
func (o *Operator) List(ctx context.Context, p string) ([]omnifs.Entry, error) {
	if err := o.checkClosed(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dir := normalizePath(p)

	o.mu.RLock()
	defer o.mu.RUnlock()

	if dir != "" {
		obj, exists := o.objects[dir]
		if !exists {
			return nil, omnifs.ErrPathNotFound
		}
		if !obj.isDir {
			return nil, fmt.Errorf("%w: not a directory: %s", omnifs.ErrInvalidPath, p)
		}
	}

	prefix := dir
	if prefix != "" {
		prefix += "/"
	}

	var entries []omnifs.Entry
	for objPath, obj := range o.objects {
		if !strings.HasPrefix(objPath, prefix) || objPath == dir {
			continue
		}
		rest := objPath[len(prefix):]
		if strings.Contains(rest, "/") {
			continue // not a direct child
		}
		entries = append(entries, entryFor(objPath, obj))
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

// NewReader opens the object at p for reading.
func (o *Operator) NewReader(ctx context.Context, p string) (io.ReadCloser, error) {
	if err := o.checkClosed(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validatePath(p); err != nil {
		return nil, err
	}

	o.mu.RLock()
	obj, exists := o.objects[normalizePath(p)]
	o.mu.RUnlock()

	if !exists {
		return nil, omnifs.ErrPathNotFound
	}
	if obj.isDir {
		return nil, fmt.Errorf("%w: is a directory: %s", omnifs.ErrInvalidPath, p)
	}

	// Copy so a concurrent overwrite never mutates an open reader.
	data := make([]byte, len(obj.data))
	copy(data, obj.data)

	return io.NopCloser(bytes.NewReader(data)), nil
}

// NewWriter opens the object at p for writing. The object materializes on
// Close.
func (o *Operator) NewWriter(ctx context.Context, p string) (io.WriteCloser, error) {
	if err := o.checkClosed(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validatePath(p); err != nil {
		return nil, err
	}

	return &memoryWriter{
		op:     o,
		path:   normalizePath(p),
		buffer: &bytes.Buffer{},
	}, nil
}

// Stat returns metadata for the object or directory at p.
func (o *Operator) Stat(ctx context.Context, p string) (omnifs.Entry, error) {
	if err := o.checkClosed(); err != nil {
		return omnifs.Entry{}, err
	}
	if err := ctx.Err(); err != nil {
		return omnifs.Entry{}, err
	}
	if err := validatePath(p); err != nil {
		return omnifs.Entry{}, err
	}

	o.mu.RLock()
	obj, exists := o.objects[normalizePath(p)]
	o.mu.RUnlock()

	if !exists {
		return omnifs.Entry{}, omnifs.ErrPathNotFound
	}
	return entryFor(normalizePath(p), obj), nil
}

// Exists reports whether p exists.
func (o *Operator) Exists(ctx context.Context, p string) (bool, error) {
	if err := o.checkClosed(); err != nil {
		return false, err
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if err := validatePath(p); err != nil {
		return false, err
	}

	o.mu.RLock()
	_, exists := o.objects[normalizePath(p)]
	o.mu.RUnlock()
	return exists, nil
}

// Copy duplicates the object at src to dst.
func (o *Operator) Copy(ctx context.Context, src, dst string) error {
	if err := o.checkClosed(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validatePath(src); err != nil {
		return err
	}
	if err := validatePath(dst); err != nil {
		return err
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	srcObj, exists := o.objects[normalizePath(src)]
	if !exists {
		return omnifs.ErrPathNotFound
	}
	if srcObj.isDir {
		return fmt.Errorf("%w: cannot copy directory: %s", omnifs.ErrInvalidPath, src)
	}

	data := make([]byte, len(srcObj.data))
	copy(data, srcObj.data)

	o.objects[normalizePath(dst)] = &object{
		data:     data,
		modTime:  time.Now(),
		mimeType: srcObj.mimeType,
	}
	return nil
}

// Rename moves the object at src to dst.
func (o *Operator) Rename(ctx context.Context, src, dst string) error {
	if err := o.checkClosed(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validatePath(src); err != nil {
		return err
	}
	if err := validatePath(dst); err != nil {
		return err
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	srcPath := normalizePath(src)
	srcObj, exists := o.objects[srcPath]
	if !exists {
		return omnifs.ErrPathNotFound
	}

	o.objects[normalizePath(dst)] = &object{
		data:     srcObj.data,
		modTime:  time.Now(),
		isDir:    srcObj.isDir,
		mimeType: srcObj.mimeType,
	}
	delete(o.objects, srcPath)
	return nil
}

// Mkdir creates the directory at p and any missing parents.
func (o *Operator) Mkdir(ctx context.Context, p string) error {
	if err := o.checkClosed(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	dir := normalizePath(p)
	if dir == "" {
		return nil // root always exists
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	parts := strings.Split(dir, "/")
	for i := range parts {
		dirPath := strings.Join(parts[:i+1], "/")
		if _, exists := o.objects[dirPath]; !exists {
			o.objects[dirPath] = &object{isDir: true, modTime: time.Now()}
		}
	}
	return nil
}

// Delete removes the object at p. Deleting a missing path is a no-op.
func (o *Operator) Delete(ctx context.Context, p string) error {
	if err := o.checkClosed(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validatePath(p); err != nil {
		return err
	}

	o.mu.Lock()
	delete(o.objects, normalizePath(p))
	o.mu.Unlock()
	return nil
}

// Close releases the object map. Subsequent calls fail with
// ErrOperatorClosed.
func (o *Operator) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed = true
	o.objects = nil
	return nil
}

// Count returns the number of stored files, excluding directory markers.
func (o *Operator) Count() int {
	o.mu.RLock()
	defer o.mu.RUnlock()

	count := 0
	for _, obj := range o.objects {
		if !obj.isDir {
			count++
		}
	}
	return count
}

func (o *Operator) checkClosed() error {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.closed {
		return omnifs.ErrOperatorClosed
	}
	return nil
}

func entryFor(p string, obj *object) omnifs.Entry {
	size := int64(len(obj.data))
	if obj.isDir {
		size = 0
	}
	return omnifs.Entry{
		Name:        path.Base(p),
		Path:        p,
		IsDir:       obj.isDir,
		Size:        size,
		Modified:    obj.modTime,
		ContentType: obj.mimeType,
	}
}

func validatePath(p string) error {
	if p == "" {
		return omnifs.ErrInvalidPath
	}
	cleaned := path.Clean(p)
	if strings.HasPrefix(cleaned, "..") || strings.Contains(cleaned, "/../") {
		return omnifs.ErrInvalidPath
	}
	return nil
}

func normalizePath(p string) string {
	if p == "" {
		return ""
	}
	p = strings.TrimPrefix(path.Clean(p), "/")
	if p == "." {
		return ""
	}
	return p
}

// memoryWriter buffers writes and stores the object on Close.
type memoryWriter struct {
	op     *Operator
	path   string
	buffer *bytes.Buffer
	closed bool
	mu     sync.Mutex
}

func (w *memoryWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return 0, omnifs.ErrOperatorClosed
	}
	return w.buffer.Write(p)
}

func (w *memoryWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	w.op.mu.Lock()
	defer w.op.mu.Unlock()

	if w.op.closed {
		return omnifs.ErrOperatorClosed
	}

	// Materialize parent directories so listings see the file.
	if dir := path.Dir(w.path); dir != "." && dir != "/" {
		parts := strings.Split(dir, "/")
		for i := range parts {
			dirPath := strings.Join(parts[:i+1], "/")
			if _, exists := w.op.objects[dirPath]; !exists {
				w.op.objects[dirPath] = &object{isDir: true, modTime: time.Now()}
			}
		}
	}

	w.op.objects[w.path] = &object{
		data:    w.buffer.Bytes(),
		modTime: time.Now(),
	}
	return nil
}

// Ensure Operator implements omnifs.Operator.
var _ omnifs.Operator = (*Operator)(nil)
