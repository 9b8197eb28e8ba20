package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Database.Driver != "sqlite" {
		t.Errorf("Driver = %q, expected sqlite", cfg.Database.Driver)
	}
	if cfg.Promotion.MinReasonLength != 10 {
		t.Errorf("MinReasonLength = %d, expected 10", cfg.Promotion.MinReasonLength)
	}
	if cfg.Fields.StrictChoices {
		t.Error("StrictChoices should default to false")
	}
	if GlobalConfig != cfg {
		t.Error("GlobalConfig should point at the loaded config")
	}
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "server:\n  port: \"9090\"\npromotion:\n  min_reason_length: 20\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("Port = %q, expected 9090", cfg.Server.Port)
	}
	if cfg.Promotion.MinReasonLength != 20 {
		t.Errorf("MinReasonLength = %d, expected 20", cfg.Promotion.MinReasonLength)
	}
	if cfg.Promotion.WonStatus != "closed_won" {
		t.Errorf("WonStatus = %q, expected closed_won", cfg.Promotion.WonStatus)
	}
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("Host = %q, expected default 0.0.0.0", cfg.Server.Host)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("DB_DRIVER", "postgres")
	t.Setenv("AUTH_ENABLED", "true")
	t.Setenv("FIELDS_STRICT_CHOICES", "1")
	t.Setenv("IMPORT_MAX_ROWS", "250")
	t.Setenv("CORS_ALLOW_ORIGINS", "https://a.example.com, https://b.example.com")

	cfg, err := Load(filepath.Join(t.TempDir(), "none.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Database.Driver != "postgres" {
		t.Errorf("Driver = %q, expected postgres", cfg.Database.Driver)
	}
	if !cfg.JWT.Enabled {
		t.Error("JWT.Enabled should be true")
	}
	if !cfg.Fields.StrictChoices {
		t.Error("StrictChoices should be true")
	}
	if cfg.Import.MaxRows != 250 {
		t.Errorf("MaxRows = %d, expected 250", cfg.Import.MaxRows)
	}
	if len(cfg.CORS.AllowOrigins) != 2 || cfg.CORS.AllowOrigins[1] != "https://b.example.com" {
		t.Errorf("AllowOrigins = %v", cfg.CORS.AllowOrigins)
	}
}

func TestLoad_InvalidEnvIgnored(t *testing.T) {
	t.Setenv("IMPORT_MAX_ROWS", "lots")

	cfg, err := Load(filepath.Join(t.TempDir(), "none.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Import.MaxRows != 10000 {
		t.Errorf("MaxRows = %d, expected default 10000", cfg.Import.MaxRows)
	}
}

func TestSave_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := DefaultConfig()
	cfg.Promotion.InitialStatus = "prospect"

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.Promotion.InitialStatus != "prospect" {
		t.Errorf("InitialStatus = %q, expected prospect", loaded.Promotion.InitialStatus)
	}
}
