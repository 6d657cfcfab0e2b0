package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/omnifs/omnifs"
	_ "github.com/omnifs/omnifs/backend/memory"
)

const sampleYAML = `
backends:
  - name: scratch
    url: memory://scratch
    description: fast scratch space
  - name: archive
    url: memory://archive
    default: true
    readonly: true
    timeout: 45s
    retry_attempts: 5
  - name: lazy
    url: memory://lazy
    validate_connection: false
`

func TestParseYAML(t *testing.T) {
	cfg, err := Parse([]byte(sampleYAML))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(cfg.Backends) != 3 {
		t.Fatalf("got %d backends, want 3", len(cfg.Backends))
	}

	b := cfg.Backends[1]
	if b.Name != "archive" || !b.Default || !b.ReadOnly {
		t.Errorf("archive entry = %+v", b)
	}
	if time.Duration(b.Timeout) != 45*time.Second {
		t.Errorf("Timeout = %v, want 45s", time.Duration(b.Timeout))
	}
	if b.RetryAttempts != 5 {
		t.Errorf("RetryAttempts = %d, want 5", b.RetryAttempts)
	}

	lazy := cfg.Backends[2]
	if lazy.ValidateConnection == nil || *lazy.ValidateConnection {
		t.Errorf("lazy ValidateConnection = %v, want false", lazy.ValidateConnection)
	}
}

func TestParseJSON(t *testing.T) {
	// JSON is a YAML subset, so legacy JSON config files keep working.
	data := []byte(`{"backends": [{"name": "j", "url": "memory://j", "timeout": 30}]}`)

	cfg, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse JSON: %v", err)
	}
	if len(cfg.Backends) != 1 || cfg.Backends[0].Name != "j" {
		t.Errorf("backends = %+v", cfg.Backends)
	}
	// Bare numbers read as seconds.
	if got := time.Duration(cfg.Backends[0].Timeout); got != 30*time.Second {
		t.Errorf("numeric timeout = %v, want 30s", got)
	}
}

func TestParseErrors(t *testing.T) {
	if _, err := Parse([]byte("backends: []")); !errors.Is(err, ErrNoBackends) {
		t.Errorf("empty list = %v, want ErrNoBackends", err)
	}
	if _, err := Parse([]byte("{not yaml")); err == nil {
		t.Error("malformed input parsed without error")
	}
}

func TestValidate(t *testing.T) {
	cfg := &Config{Backends: []Backend{
		{Name: "a", URL: "memory://a"},
		{Name: "a", URL: "memory://b"},
	}}
	if err := cfg.Validate(); !errors.Is(err, omnifs.ErrNameConflict) {
		t.Errorf("duplicate names = %v, want ErrNameConflict", err)
	}

	cfg = &Config{Backends: []Backend{{Name: "bad name", URL: "memory://x"}}}
	if err := cfg.Validate(); !errors.Is(err, omnifs.ErrInvalidName) {
		t.Errorf("bad name = %v, want ErrInvalidName", err)
	}

	cfg = &Config{Backends: []Backend{{Name: "ok", URL: "memory://x"}}}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate = %v, want nil", err)
	}
}

func TestLoadAndApply(t *testing.T) {
	path := filepath.Join(t.TempDir(), "backends.yaml")
	if err := os.WriteFile(path, []byte(sampleYAML), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	reg := omnifs.NewRegistry()
	defer func() { _ = reg.Close() }()

	if err := cfg.Apply(context.Background(), reg); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	// The default: true entry wins over first-registered.
	if got := reg.DefaultName(); got != "archive" {
		t.Errorf("DefaultName = %q, want %q", got, "archive")
	}

	infos := reg.ListAll()
	if len(infos) != 3 {
		t.Fatalf("registered %d backends, want 3", len(infos))
	}
	if !infos[1].ReadOnly {
		t.Error("archive not registered readonly")
	}
	// validate_connection: false leaves the backend unprobed.
	if infos[2].Health != omnifs.HealthUnknown {
		t.Errorf("lazy health = %v, want unknown", infos[2].Health)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("Load on missing file succeeded")
	}
}

func TestApplyAbortsOnFailure(t *testing.T) {
	cfg := &Config{Backends: []Backend{
		{Name: "good", URL: "memory://good"},
		{Name: "bad name", URL: "memory://x"},
		{Name: "never", URL: "memory://never"},
	}}

	reg := omnifs.NewRegistry()
	defer func() { _ = reg.Close() }()

	err := cfg.Apply(context.Background(), reg)
	if !errors.Is(err, omnifs.ErrInvalidName) {
		t.Fatalf("Apply = %v, want ErrInvalidName", err)
	}

	// Entries before the failure stay registered; later ones never run.
	if _, lookErr := reg.Lookup("good"); lookErr != nil {
		t.Errorf("good missing after partial apply: %v", lookErr)
	}
	if _, lookErr := reg.Lookup("never"); !errors.Is(lookErr, omnifs.ErrNotFound) {
		t.Errorf("never = %v, want ErrNotFound", lookErr)
	}
}
