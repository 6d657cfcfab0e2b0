package s3

import (
	"errors"
	"net/url"
	"testing"
)

func mustParse(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("url.Parse(%q): %v", raw, err)
	}
	return u
}

func TestConfigFromURL(t *testing.T) {
	cfg := ConfigFromURL(mustParse(t, "s3://my-bucket/backups/daily?region=eu-west-1"))

	if cfg.Bucket != "my-bucket" {
		t.Errorf("Bucket = %q, want %q", cfg.Bucket, "my-bucket")
	}
	if cfg.Prefix != "backups/daily" {
		t.Errorf("Prefix = %q, want %q", cfg.Prefix, "backups/daily")
	}
	if cfg.Region != "eu-west-1" {
		t.Errorf("Region = %q, want %q", cfg.Region, "eu-west-1")
	}
	if cfg.PartSize != 5*1024*1024 {
		t.Errorf("PartSize = %d, want default 5MB", cfg.PartSize)
	}
	if cfg.Concurrency != 5 {
		t.Errorf("Concurrency = %d, want default 5", cfg.Concurrency)
	}
}

func TestConfigFromURLCompatEndpoint(t *testing.T) {
	raw := "s3://data?endpoint=http://localhost:9000&use_path_style=true" +
		"&access_key_id=minio&secret_access_key=minio123&part_size=10485760&concurrency=8"
	cfg := ConfigFromURL(mustParse(t, raw))

	if cfg.Endpoint != "http://localhost:9000" {
		t.Errorf("Endpoint = %q", cfg.Endpoint)
	}
	if !cfg.UsePathStyle {
		t.Error("UsePathStyle = false, want true")
	}
	if cfg.AccessKeyID != "minio" || cfg.SecretAccessKey != "minio123" {
		t.Errorf("credentials = %q/%q", cfg.AccessKeyID, cfg.SecretAccessKey)
	}
	if cfg.PartSize != 10485760 {
		t.Errorf("PartSize = %d, want 10485760", cfg.PartSize)
	}
	if cfg.Concurrency != 8 {
		t.Errorf("Concurrency = %d, want 8", cfg.Concurrency)
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); !errors.Is(err, ErrBucketRequired) {
		t.Errorf("Validate without bucket = %v, want ErrBucketRequired", err)
	}

	cfg.Bucket = "ok"
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate = %v, want nil", err)
	}
}

func TestFullKey(t *testing.T) {
	tests := []struct {
		prefix, path, want string
	}{
		{"", "a/b.txt", "a/b.txt"},
		{"", "/", ""},
		{"root", "a/b.txt", "root/a/b.txt"},
		{"root", "/a/b.txt", "root/a/b.txt"},
		{"root", "/", "root"},
		{"nested/prefix", "f", "nested/prefix/f"},
	}
	for _, tt := range tests {
		op := &Operator{config: Config{Prefix: tt.prefix}}
		if got := op.fullKey(tt.path); got != tt.want {
			t.Errorf("fullKey(%q) with prefix %q = %q, want %q", tt.path, tt.prefix, got, tt.want)
		}
	}
}
