package memory

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/omnifs/omnifs"
)

func writeFile(t *testing.T, op *Operator, path string, data []byte) {
	t.Helper()
	w, err := op.NewWriter(context.Background(), path)
	if err != nil {
		t.Fatalf("NewWriter(%q): %v", path, err)
	}
	if _, err := w.Write(data); err != nil {
		t.Fatalf("Write(%q): %v", path, err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close(%q): %v", path, err)
	}
}

func TestWriteRead(t *testing.T) {
	op := NewOperator()
	ctx := context.Background()

	want := []byte("in-memory content")
	writeFile(t, op, "dir/file.txt", want)

	r, err := op.NewReader(ctx, "dir/file.txt")
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	_ = r.Close()

	if !bytes.Equal(got, want) {
		t.Errorf("read = %q, want %q", got, want)
	}
	if op.Count() != 1 {
		t.Errorf("Count() = %d, want 1", op.Count())
	}
}

func TestReadMissing(t *testing.T) {
	op := NewOperator()

	_, err := op.NewReader(context.Background(), "nope.txt")
	if !errors.Is(err, omnifs.ErrPathNotFound) {
		t.Errorf("NewReader missing = %v, want ErrPathNotFound", err)
	}
}

func TestListDirectChildrenOnly(t *testing.T) {
	op := NewOperator()
	ctx := context.Background()

	writeFile(t, op, "a/one.txt", []byte("1"))
	writeFile(t, op, "a/two.txt", []byte("2"))
	writeFile(t, op, "a/b/nested.txt", []byte("3"))
	writeFile(t, op, "elsewhere.txt", []byte("4"))

	entries, err := op.List(ctx, "a")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("List(a) returned %d entries, want 3", len(entries))
	}
	// Entries come back name-sorted.
	wantNames := []string{"b", "one.txt", "two.txt"}
	for i, e := range entries {
		if e.Name != wantNames[i] {
			t.Errorf("entries[%d].Name = %q, want %q", i, e.Name, wantNames[i])
		}
	}
}

func TestListRootAlwaysSucceeds(t *testing.T) {
	op := NewOperator()

	entries, err := op.List(context.Background(), "/")
	if err != nil {
		t.Fatalf("List(/) on empty store: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("empty store listed %d entries", len(entries))
	}
}

func TestListFileFails(t *testing.T) {
	op := NewOperator()
	writeFile(t, op, "plain.txt", []byte("x"))

	_, err := op.List(context.Background(), "plain.txt")
	if !errors.Is(err, omnifs.ErrInvalidPath) {
		t.Errorf("List on file = %v, want ErrInvalidPath", err)
	}
}

func TestStatAndExists(t *testing.T) {
	op := NewOperator()
	ctx := context.Background()

	writeFile(t, op, "f.bin", []byte("12345"))

	entry, err := op.Stat(ctx, "f.bin")
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if entry.Size != 5 || entry.IsDir || entry.Name != "f.bin" {
		t.Errorf("Stat = %+v", entry)
	}

	ok, err := op.Exists(ctx, "f.bin")
	if err != nil || !ok {
		t.Errorf("Exists = %v, %v", ok, err)
	}
	ok, err = op.Exists(ctx, "missing")
	if err != nil || ok {
		t.Errorf("Exists missing = %v, %v", ok, err)
	}
}

func TestCopyIsolatesContent(t *testing.T) {
	op := NewOperator()
	ctx := context.Background()

	writeFile(t, op, "src.txt", []byte("original"))
	if err := op.Copy(ctx, "src.txt", "dst.txt"); err != nil {
		t.Fatalf("Copy: %v", err)
	}

	// Overwriting the source must not alter the copy.
	writeFile(t, op, "src.txt", []byte("changed"))

	r, err := op.NewReader(ctx, "dst.txt")
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	got, _ := io.ReadAll(r)
	_ = r.Close()
	if string(got) != "original" {
		t.Errorf("copy content = %q, want %q", got, "original")
	}
}

func TestRename(t *testing.T) {
	op := NewOperator()
	ctx := context.Background()

	writeFile(t, op, "old.txt", []byte("x"))
	if err := op.Rename(ctx, "old.txt", "new.txt"); err != nil {
		t.Fatalf("Rename: %v", err)
	}

	if ok, _ := op.Exists(ctx, "old.txt"); ok {
		t.Error("source exists after rename")
	}
	if ok, _ := op.Exists(ctx, "new.txt"); !ok {
		t.Error("destination missing after rename")
	}

	if err := op.Rename(ctx, "ghost", "x"); !errors.Is(err, omnifs.ErrPathNotFound) {
		t.Errorf("Rename missing = %v, want ErrPathNotFound", err)
	}
}

func TestMkdirCreatesParents(t *testing.T) {
	op := NewOperator()
	ctx := context.Background()

	if err := op.Mkdir(ctx, "a/b/c"); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	for _, dir := range []string{"a", "a/b", "a/b/c"} {
		entry, err := op.Stat(ctx, dir)
		if err != nil || !entry.IsDir {
			t.Errorf("Stat(%q) = %+v, %v, want directory", dir, entry, err)
		}
	}
}

func TestDeleteIdempotent(t *testing.T) {
	op := NewOperator()
	ctx := context.Background()

	writeFile(t, op, "f.txt", []byte("x"))
	if err := op.Delete(ctx, "f.txt"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := op.Delete(ctx, "f.txt"); err != nil {
		t.Errorf("second Delete = %v, want nil", err)
	}
}

func TestPathValidation(t *testing.T) {
	op := NewOperator()
	ctx := context.Background()

	for _, p := range []string{"", "../escape", "a/../../escape"} {
		if _, err := op.NewReader(ctx, p); !errors.Is(err, omnifs.ErrInvalidPath) {
			t.Errorf("NewReader(%q) = %v, want ErrInvalidPath", p, err)
		}
	}
}

func TestClosedOperator(t *testing.T) {
	op := NewOperator()
	if err := op.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	ctx := context.Background()
	if _, err := op.List(ctx, "/"); !errors.Is(err, omnifs.ErrOperatorClosed) {
		t.Errorf("List after close = %v, want ErrOperatorClosed", err)
	}
	if _, err := op.NewWriter(ctx, "f"); !errors.Is(err, omnifs.ErrOperatorClosed) {
		t.Errorf("NewWriter after close = %v, want ErrOperatorClosed", err)
	}
}
