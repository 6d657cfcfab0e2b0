// Package file provides a local filesystem operator for omnifs.
//
// The connection URL's path selects the root directory; all operation paths
// are confined beneath it:
//
//	fs:///var/data
//	fs:///srv/share?create_dirs=false
package file

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/omnifs/omnifs"
)

func init() {
	omnifs.RegisterScheme("fs", New)
}

// Config holds configuration for the file operator.
type Config struct {
	// Root is the directory all operations are confined to.
	Root string

	// CreateDirs controls whether parent directories are created
	// automatically on write. Default: true.
	CreateDirs bool

	// DirPermissions is the mode for created directories. Default: 0755.
	DirPermissions os.FileMode

	// FilePermissions is the mode for created files. Default: 0644.
	FilePermissions os.FileMode
}

// Operator implements omnifs.Operator over a local directory tree.
type Operator struct {
	config Config
	closed bool
	mu     sync.RWMutex
}

// New creates a file operator from a parsed fs:// URL.
// Supported query parameters:
//   - create_dirs: "false" disables automatic parent creation
func New(u *url.URL, _ omnifs.Policy) (omnifs.Operator, error) {
	cfg := Config{
		Root:            u.Path,
		CreateDirs:      true,
		DirPermissions:  0755,
		FilePermissions: 0644,
	}
	if cfg.Root == "" {
		cfg.Root = "."
	}
	if u.Query().Get("create_dirs") == "false" {
		cfg.CreateDirs = false
	}
	return NewOperator(cfg), nil
}

// NewOperator creates a file operator with the given configuration.
func NewOperator(cfg Config) *Operator {
	if cfg.Root == "" {
		cfg.Root = "."
	}
	if cfg.DirPermissions == 0 {
		cfg.DirPermissions = 0755
	}
	if cfg.FilePermissions == 0 {
		cfg.FilePermissions = 0644
	}
	return &Operator{config: cfg}
}

// List returns the direct children of the directory at p.
func (o *Operator) List(ctx context.Context, p string) ([]omnifs.Entry, error) {
	if err := o.checkClosed(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	full, err := o.fullPath(p)
	if err != nil {
		return nil, err
	}

	dirEntries, err := os.ReadDir(full)
	if err != nil {
		return nil, translateError(err, p)
	}

	entries := make([]omnifs.Entry, 0, len(dirEntries))
	for _, de := range dirEntries {
		info, err := de.Info()
		if err != nil {
			continue // entry vanished between readdir and stat
		}
		entries = append(entries, omnifs.Entry{
			Name:     de.Name(),
			Path:     joinRel(p, de.Name()),
			IsDir:    de.IsDir(),
			Size:     sizeOf(info),
			Modified: info.ModTime(),
		})
	}
	return entries, nil
}

// NewReader opens the file at p for reading.
func (o *Operator) NewReader(ctx context.Context, p string) (io.ReadCloser, error) {
	if err := o.checkClosed(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	full, err := o.fullPath(p)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(full)
	if err != nil {
		return nil, translateError(err, p)
	}
	return f, nil
}

// NewWriter opens the file at p for writing, creating or truncating it.
func (o *Operator) NewWriter(ctx context.Context, p string) (io.WriteCloser, error) {
	if err := o.checkClosed(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	full, err := o.fullPath(p)
	if err != nil {
		return nil, err
	}

	if o.config.CreateDirs {
		dir := filepath.Dir(full)
		if err := os.MkdirAll(dir, o.config.DirPermissions); err != nil {
			return nil, fmt.Errorf("creating directory %s: %w", dir, err)
		}
	}

	f, err := os.OpenFile(full, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, o.config.FilePermissions)
	if err != nil {
		return nil, translateError(err, p)
	}
	return f, nil
}

// Stat returns metadata for the file or directory at p.
func (o *Operator) Stat(ctx context.Context, p string) (omnifs.Entry, error) {
	if err := o.checkClosed(); err != nil {
		return omnifs.Entry{}, err
	}
	if err := ctx.Err(); err != nil {
		return omnifs.Entry{}, err
	}

	full, err := o.fullPath(p)
	if err != nil {
		return omnifs.Entry{}, err
	}

	info, err := os.Stat(full)
	if err != nil {
		return omnifs.Entry{}, translateError(err, p)
	}

	return omnifs.Entry{
		Name:     info.Name(),
		Path:     strings.TrimPrefix(filepath.ToSlash(filepath.Clean(p)), "/"),
		IsDir:    info.IsDir(),
		Size:     sizeOf(info),
		Modified: info.ModTime(),
	}, nil
}

// Exists reports whether p exists.
func (o *Operator) Exists(ctx context.Context, p string) (bool, error) {
	if err := o.checkClosed(); err != nil {
		return false, err
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	full, err := o.fullPath(p)
	if err != nil {
		return false, err
	}

	_, err = os.Stat(full)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, translateError(err, p)
}

// Copy duplicates the file at src to dst within the root.
func (o *Operator) Copy(ctx context.Context, src, dst string) error {
	if err := o.checkClosed(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	r, err := o.NewReader(ctx, src)
	if err != nil {
		return err
	}
	defer func() { _ = r.Close() }()

	w, err := o.NewWriter(ctx, dst)
	if err != nil {
		return err
	}

	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return fmt.Errorf("copying %s to %s: %w", src, dst, err)
	}
	return w.Close()
}

// Rename moves the file or directory at src to dst.
func (o *Operator) Rename(ctx context.Context, src, dst string) error {
	if err := o.checkClosed(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	srcFull, err := o.fullPath(src)
	if err != nil {
		return err
	}
	dstFull, err := o.fullPath(dst)
	if err != nil {
		return err
	}

	if o.config.CreateDirs {
		if err := os.MkdirAll(filepath.Dir(dstFull), o.config.DirPermissions); err != nil {
			return fmt.Errorf("creating directory: %w", err)
		}
	}

	if err := os.Rename(srcFull, dstFull); err != nil {
		return translateError(err, src)
	}
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

	full, err := o.fullPath(p)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(full, o.config.DirPermissions); err != nil {
		return translateError(err, p)
	}
	return nil
}

// Delete removes the file at p. Deleting a missing path is a no-op.
func (o *Operator) Delete(ctx context.Context, p string) error {
	if err := o.checkClosed(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	full, err := o.fullPath(p)
	if err != nil {
		return err
	}

	err = os.Remove(full)
	if err == nil || os.IsNotExist(err) {
		return nil
	}
	return translateError(err, p)
}

// Close marks the operator closed. It holds no OS resources between calls.
func (o *Operator) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed = true
	return nil
}

// fullPath maps an operation path beneath the root, rejecting traversal.
func (o *Operator) fullPath(p string) (string, error) {
	if p == "" {
		return "", omnifs.ErrInvalidPath
	}
	cleaned := filepath.Clean(filepath.FromSlash(strings.TrimPrefix(p, "/")))
	if cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return "", omnifs.ErrInvalidPath
	}
	return filepath.Join(o.config.Root, cleaned), nil
}

func (o *Operator) checkClosed() error {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.closed {
		return omnifs.ErrOperatorClosed
	}
	return nil
}

func joinRel(dir, name string) string {
	dir = strings.TrimPrefix(strings.TrimSuffix(dir, "/"), "/")
	if dir == "" || dir == "." {
		return name
	}
	return dir + "/" + name
}

func sizeOf(info os.FileInfo) int64 {
	if info.IsDir() {
		return 0
	}
	return info.Size()
}

// translateError converts os errors to omnifs errors.
func translateError(err error, p string) error {
	if err == nil {
		return nil
	}
	if os.IsNotExist(err) {
		return omnifs.ErrPathNotFound
	}
	if os.IsPermission(err) {
		return omnifs.ErrPermissionDenied
	}
	return fmt.Errorf("fs: %s: %w", p, err)
}

// Ensure Operator implements omnifs.Operator.
var _ omnifs.Operator = (*Operator)(nil)
