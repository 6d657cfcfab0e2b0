package file

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/omnifs/omnifs"
)

func newTestOperator(t *testing.T) *Operator {
	t.Helper()
	return NewOperator(Config{Root: t.TempDir()})
}

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
	op := newTestOperator(t)
	ctx := context.Background()

	want := []byte("on disk")
	writeFile(t, op, "sub/dir/file.txt", want)

	r, err := op.NewReader(ctx, "sub/dir/file.txt")
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	got, err := io.ReadAll(r)
	_ = r.Close()
	if err != nil || !bytes.Equal(got, want) {
		t.Errorf("read = %q, %v, want %q", got, err, want)
	}
}

func TestCreateDirsDisabled(t *testing.T) {
	op := NewOperator(Config{Root: t.TempDir(), CreateDirs: false})

	_, err := op.NewWriter(context.Background(), "missing/parent/f.txt")
	if err == nil {
		t.Error("NewWriter under missing parent succeeded with CreateDirs disabled")
	}
}

func TestList(t *testing.T) {
	op := newTestOperator(t)
	ctx := context.Background()

	writeFile(t, op, "d/a.txt", []byte("1"))
	writeFile(t, op, "d/b.txt", []byte("22"))
	if err := op.Mkdir(ctx, "d/sub"); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}

	entries, err := op.List(ctx, "d")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("List returned %d entries, want 3", len(entries))
	}

	byName := make(map[string]omnifs.Entry)
	for _, e := range entries {
		byName[e.Name] = e
	}
	if e := byName["b.txt"]; e.Size != 2 || e.IsDir {
		t.Errorf("b.txt entry = %+v", e)
	}
	if e := byName["sub"]; !e.IsDir || e.Size != 0 {
		t.Errorf("sub entry = %+v", e)
	}
	if got := byName["a.txt"].Path; got != "d/a.txt" {
		t.Errorf("a.txt path = %q, want %q", got, "d/a.txt")
	}

	if _, err := op.List(ctx, "missing"); !errors.Is(err, omnifs.ErrPathNotFound) {
		t.Errorf("List missing = %v, want ErrPathNotFound", err)
	}
}

func TestStat(t *testing.T) {
	op := newTestOperator(t)
	ctx := context.Background()

	writeFile(t, op, "f.bin", []byte("abc"))

	entry, err := op.Stat(ctx, "f.bin")
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if entry.Name != "f.bin" || entry.Size != 3 || entry.IsDir {
		t.Errorf("Stat = %+v", entry)
	}
	if entry.Modified.IsZero() {
		t.Error("Modified not populated")
	}

	if _, err := op.Stat(ctx, "missing"); !errors.Is(err, omnifs.ErrPathNotFound) {
		t.Errorf("Stat missing = %v, want ErrPathNotFound", err)
	}
}

func TestTraversalRejected(t *testing.T) {
	root := t.TempDir()
	op := NewOperator(Config{Root: root})
	ctx := context.Background()

	// Plant a file outside the root to prove it stays unreachable.
	outside := filepath.Join(filepath.Dir(root), "outside.txt")
	if err := os.WriteFile(outside, []byte("secret"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Remove(outside) })

	for _, p := range []string{"", "../outside.txt", "a/../../outside.txt"} {
		if _, err := op.NewReader(ctx, p); !errors.Is(err, omnifs.ErrInvalidPath) {
			t.Errorf("NewReader(%q) = %v, want ErrInvalidPath", p, err)
		}
	}
}

func TestCopyAndRename(t *testing.T) {
	op := newTestOperator(t)
	ctx := context.Background()

	writeFile(t, op, "src.txt", []byte("payload"))

	if err := op.Copy(ctx, "src.txt", "copies/dst.txt"); err != nil {
		t.Fatalf("Copy: %v", err)
	}
	if ok, _ := op.Exists(ctx, "copies/dst.txt"); !ok {
		t.Error("copy destination missing")
	}
	if ok, _ := op.Exists(ctx, "src.txt"); !ok {
		t.Error("copy source vanished")
	}

	if err := op.Rename(ctx, "src.txt", "moved/src.txt"); err != nil {
		t.Fatalf("Rename: %v", err)
	}
	if ok, _ := op.Exists(ctx, "src.txt"); ok {
		t.Error("rename source still present")
	}
	if ok, _ := op.Exists(ctx, "moved/src.txt"); !ok {
		t.Error("rename destination missing")
	}
}

func TestDeleteIdempotent(t *testing.T) {
	op := newTestOperator(t)
	ctx := context.Background()

	writeFile(t, op, "f.txt", []byte("x"))
	if err := op.Delete(ctx, "f.txt"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := op.Delete(ctx, "f.txt"); err != nil {
		t.Errorf("second Delete = %v, want nil", err)
	}
}

func TestClosedOperator(t *testing.T) {
	op := newTestOperator(t)
	if err := op.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := op.List(context.Background(), "/"); !errors.Is(err, omnifs.ErrOperatorClosed) {
		t.Errorf("List after close = %v, want ErrOperatorClosed", err)
	}
}
