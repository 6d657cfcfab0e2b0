package omnifs_test

import (
	"context"
	"errors"
	"io"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/omnifs/omnifs"
	"github.com/omnifs/omnifs/backend/memory"
)

// Test-only schemes. "counting" tracks operator constructions, "broken"
// always fails to construct, and "flaky" fails reads and copies on paths
// containing "broken".
func init() {
	omnifs.RegisterScheme("counting", func(_ *url.URL, _ omnifs.Policy) (omnifs.Operator, error) {
		constructions.Add(1)
		return memory.NewOperator(), nil
	})
	omnifs.RegisterScheme("broken", func(_ *url.URL, _ omnifs.Policy) (omnifs.Operator, error) {
		return nil, errors.New("constructor always fails")
	})
	omnifs.RegisterScheme("flaky", func(_ *url.URL, _ omnifs.Policy) (omnifs.Operator, error) {
		return &flakyOperator{Operator: memory.NewOperator()}, nil
	})
}

var constructions atomic.Int64

var errFlaky = errors.New("simulated transfer failure")

// flakyOperator behaves like a memory operator except that reading or
// copying any path containing "broken" fails.
type flakyOperator struct {
	*memory.Operator
}

func (f *flakyOperator) NewReader(ctx context.Context, p string) (io.ReadCloser, error) {
	if strings.Contains(p, "broken") {
		return nil, errFlaky
	}
	return f.Operator.NewReader(ctx, p)
}

func (f *flakyOperator) Copy(ctx context.Context, src, dst string) error {
	if strings.Contains(src, "broken") {
		return errFlaky
	}
	return f.Operator.Copy(ctx, src, dst)
}

// mustRegister registers a backend and fails the test on error.
func mustRegister(t *testing.T, reg *omnifs.Registry, name, rawURL string, opts ...omnifs.RegisterOption) {
	t.Helper()
	desc := omnifs.Descriptor{Name: name, URL: rawURL}
	if err := reg.Register(context.Background(), desc, opts...); err != nil {
		t.Fatalf("Register(%q, %q): %v", name, rawURL, err)
	}
}

// mustWrite writes data through the dispatcher and fails the test on error.
func mustWrite(t *testing.T, d *omnifs.Dispatcher, path, backend string, data []byte) {
	t.Helper()
	if err := d.Write(context.Background(), path, data, backend); err != nil {
		t.Fatalf("Write(%q, backend %q): %v", path, backend, err)
	}
}
