package omnifs

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"time"
)

// CopyEntryError records one failed entry within a recursive copy.
type CopyEntryError struct {
	// Path is the source path that failed.
	Path string `json:"path"`

	// Op is the step that failed ("copy" or "mkdir").
	Op string `json:"op"`

	// Err is the cause.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e CopyEntryError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

// Unwrap returns the cause.
func (e CopyEntryError) Unwrap() error {
	return e.Err
}

// CopyResult reports the per-entry outcomes of a recursive copy. Partial
// success is a first-class outcome: callers can distinguish "nothing
// happened" from "most things happened" without parsing error strings.
type CopyResult struct {
	// Copied lists every source path copied successfully, in visit order.
	Copied []string `json:"copied"`

	// Failed lists every entry that failed, with its specific cause.
	Failed []CopyEntryError `json:"failed"`

	// Duration is the wall time of the whole copy.
	Duration time.Duration `json:"duration"`
}

// Success returns true if every entry copied.
func (r *CopyResult) Success() bool {
	return len(r.Failed) == 0
}

// Err returns nil on full success, or an error wrapping ErrPartialCopy
// summarizing the mixed outcome.
func (r *CopyResult) Err() error {
	if r.Success() {
		return nil
	}
	return fmt.Errorf("%w: %d copied, %d failed (first: %v)",
		ErrPartialCopy, len(r.Copied), len(r.Failed), r.Failed[0])
}

// CopyTree recursively copies the directory at src on srcBackend to dst on
// dstBackend. Either backend name may be empty to use the default.
//
// Directory semantics are delegated to the source operator's listing:
// each listed entry is copied individually (directories recurse), and a
// failure on one entry is recorded in the result rather than aborting the
// remainder. The returned error is non-nil only when the copy could not
// start at all (unknown backend, read-only destination, unlistable root).
func (d *Dispatcher) CopyTree(ctx context.Context, src, dst, srcBackend, dstBackend string) (*CopyResult, error) {
	start := time.Now()

	srcInfo, err := d.reg.Lookup(srcBackend)
	if err != nil {
		return nil, err
	}
	dstInfo, err := d.reg.Lookup(dstBackend)
	if err != nil {
		return nil, err
	}
	if dstInfo.ReadOnly {
		return nil, &OpError{Backend: dstInfo.Name, Op: "copy", Path: dst, Err: ErrReadOnly}
	}

	_, srcOp, err := d.reg.Resolve(ctx, srcInfo.Name)
	if err != nil {
		return nil, err
	}
	_, dstOp, err := d.reg.Resolve(ctx, dstInfo.Name)
	if err != nil {
		return nil, err
	}

	sameBackend := srcInfo.Name == dstInfo.Name

	result := &CopyResult{}
	if err := d.copyDir(ctx, srcOp, dstOp, src, dst, srcInfo.Name, dstInfo.Name, sameBackend, result); err != nil {
		return nil, err
	}

	result.Duration = time.Since(start)
	d.logger.Info("tree copy finished",
		slog.String("src_backend", srcInfo.Name),
		slog.String("dst_backend", dstInfo.Name),
		slog.String("src", src),
		slog.Int("copied", len(result.Copied)),
		slog.Int("failed", len(result.Failed)),
	)
	return result, nil
}

// copyDir copies one directory level. The root listing failing is fatal
// (returned error); entry-level failures are accumulated in result.
func (d *Dispatcher) copyDir(ctx context.Context, srcOp, dstOp Operator, src, dst, srcName, dstName string, sameBackend bool, result *CopyResult) error {
	entries, err := srcOp.List(ctx, src)
	if err != nil {
		return opError(srcName, "list", src, err)
	}

	if err := dstOp.Mkdir(ctx, dst); err != nil {
		return opError(dstName, "mkdir", dst, err)
	}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}

		srcPath := entry.Path
		if srcPath == "" {
			srcPath = path.Join(src, entry.Name)
		}
		dstPath := path.Join(dst, entry.Name)

		if entry.IsDir {
			// Subdirectory listing failures degrade to a recorded entry
			// failure so siblings still copy.
			if err := d.copyDir(ctx, srcOp, dstOp, srcPath, dstPath, srcName, dstName, sameBackend, result); err != nil {
				result.Failed = append(result.Failed, CopyEntryError{
					Path: srcPath, Op: "copy", Err: err,
				})
			}
			continue
		}

		if err := d.copyEntry(ctx, srcOp, dstOp, srcPath, dstPath, srcName, dstName, sameBackend); err != nil {
			result.Failed = append(result.Failed, CopyEntryError{
				Path: srcPath, Op: "copy", Err: err,
			})
			continue
		}
		result.Copied = append(result.Copied, srcPath)
	}

	return nil
}

// copyEntry copies one file, via native copy on a shared backend or a
// streamed transfer across backends.
func (d *Dispatcher) copyEntry(ctx context.Context, srcOp, dstOp Operator, src, dst, srcName, dstName string, sameBackend bool) error {
	if sameBackend {
		if err := srcOp.Copy(ctx, src, dst); err != nil {
			return opError(srcName, "copy", src+" -> "+dst, err)
		}
		return nil
	}
	return d.streamCopy(ctx, srcOp, dstOp, src, dst, srcName, dstName)
}
