package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadEmptyPathReturnsZeroValue(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") error = %v", err)
	}
	if cfg != (Config{}) {
		t.Errorf("Load(\"\") = %+v, want zero value", cfg)
	}
}

func TestLoadParsesYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	contents := `
max_inflight_hint: 50
global_filter_bits: 1000000
conn_timeout: 3s
max_body_bytes: 4194304
log_level: debug
s3_output: s3://bucket/key
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.MaxInFlightHint != 50 {
		t.Errorf("MaxInFlightHint = %d, want 50", cfg.MaxInFlightHint)
	}
	if cfg.GlobalFilterBits != 1000000 {
		t.Errorf("GlobalFilterBits = %d, want 1000000", cfg.GlobalFilterBits)
	}
	if cfg.ConnTimeout != 3*time.Second {
		t.Errorf("ConnTimeout = %v, want 3s", cfg.ConnTimeout)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
	if cfg.S3Output != "s3://bucket/key" {
		t.Errorf("S3Output = %q, want s3://bucket/key", cfg.S3Output)
	}
}

func TestLoadMissingFileErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err == nil {
		t.Fatal("Load() error = nil, want an error for a missing file")
	}
}
