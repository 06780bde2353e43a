package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.CRM.BaseURL != "https://services.leadconnectorhq.com" {
		t.Errorf("CRM.BaseURL = %q", cfg.CRM.BaseURL)
	}
	if cfg.CRM.PageSize != 100 {
		t.Errorf("CRM.PageSize = %d, want 100", cfg.CRM.PageSize)
	}
	if got := cfg.CRM.PageDelay(); got != 50*time.Millisecond {
		t.Errorf("CRM.PageDelay() = %v, want 50ms", got)
	}
	if got := cfg.Export.Retention(); got != time.Hour {
		t.Errorf("Export.Retention() = %v, want 1h", got)
	}
	if got := cfg.Export.ReapInterval(); got != 5*time.Minute {
		t.Errorf("Export.ReapInterval() = %v, want 5m", got)
	}
	if cfg.Storage.Type != "local" {
		t.Errorf("Storage.Type = %q, want local", cfg.Storage.Type)
	}
	if cfg.Database.Driver != "sqlite" {
		t.Errorf("Database.Driver = %q, want sqlite", cfg.Database.Driver)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  port: 9999
  mode: release
crm:
  page_size: 25
export:
  retention_minutes: 10
storage:
  type: s3
  bucket: custom-bucket
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9999 || cfg.Server.Mode != "release" {
		t.Errorf("Server = %+v", cfg.Server)
	}
	if cfg.CRM.PageSize != 25 {
		t.Errorf("CRM.PageSize = %d, want 25", cfg.CRM.PageSize)
	}
	if got := cfg.Export.Retention(); got != 10*time.Minute {
		t.Errorf("Export.Retention() = %v, want 10m", got)
	}
	if cfg.Storage.Type != "s3" || cfg.Storage.Bucket != "custom-bucket" {
		t.Errorf("Storage = %+v", cfg.Storage)
	}

	// Defaults still apply for keys the file omits
	if cfg.CRM.PageDelayMs != 50 {
		t.Errorf("CRM.PageDelayMs = %d, want default 50", cfg.CRM.PageDelayMs)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("CRM_CLIENT_ID", "env-client-id")
	t.Setenv("CRM_CLIENT_SECRET", "env-secret")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.CRM.ClientID != "env-client-id" {
		t.Errorf("CRM.ClientID = %q, want env override", cfg.CRM.ClientID)
	}
	if cfg.CRM.ClientSecret != "env-secret" {
		t.Errorf("CRM.ClientSecret = %q, want env override", cfg.CRM.ClientSecret)
	}
}
