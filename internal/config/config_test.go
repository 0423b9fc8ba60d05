package config

import (
	"path/filepath"
	"testing"
)

func TestGenerateThenLoadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	if err := Generate(path); err != nil {
		t.Fatalf("Generate: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Common.HTTPPort != 80 {
		t.Errorf("HTTPPort = %d, want 80", cfg.Common.HTTPPort)
	}
	if cfg.I2CPorts.External != "i2c-1" || cfg.I2CPorts.Internal != "i2c-3" {
		t.Errorf("unexpected i2c ports: %+v", cfg.I2CPorts)
	}
}

func TestGenerateRefusesToOverwrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	if err := Generate(path); err != nil {
		t.Fatalf("first Generate: %v", err)
	}
	if err := Generate(path); err == nil {
		t.Fatal("expected second Generate to fail, got nil error")
	}
}

func TestLoadMissingFileFails(t *testing.T) {
	dir := t.TempDir()
	if _, err := Load(filepath.Join(dir, "missing.json")); err == nil {
		t.Fatal("expected error loading missing config")
	}
}

func TestValidateRejectsOutOfRangeLatitude(t *testing.T) {
	cfg := Default()
	cfg.Location.Latitude = 200
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for latitude=200")
	}
}

func TestValidateRejectsNegativeTimeReserve(t *testing.T) {
	cfg := Default()
	cfg.Common.TimeReserve = -1
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for negative time_reserve")
	}
}

func TestValidateAcceptsDefault(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default() should validate cleanly, got %v", err)
	}
}
