package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dvloznov/mail-ledger/internal/apperrors"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_FileWithDefaults(t *testing.T) {
	path := writeConfig(t, `
retry:
  max_attempts: 5
  delay: 250ms
ledger:
  backend: sqlite
  sqlite:
    path: /tmp/ledger.db
gmail:
  processed_label: procesado
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Retry.MaxAttempts != 5 {
		t.Errorf("MaxAttempts = %d, want 5", cfg.Retry.MaxAttempts)
	}
	if cfg.Retry.Delay != 250*time.Millisecond {
		t.Errorf("Delay = %s, want 250ms", cfg.Retry.Delay)
	}
	if cfg.Ledger.SQLite.Path != "/tmp/ledger.db" {
		t.Errorf("SQLite.Path = %q", cfg.Ledger.SQLite.Path)
	}
	if cfg.Gmail.ProcessedLabel != "procesado" {
		t.Errorf("ProcessedLabel = %q", cfg.Gmail.ProcessedLabel)
	}
	// Defaults fill what the file leaves out.
	if cfg.Gmail.User != "me" {
		t.Errorf("Gmail.User = %q, want default me", cfg.Gmail.User)
	}
	if cfg.PDF.Renderer != RendererAuto {
		t.Errorf("PDF.Renderer = %q, want %q", cfg.PDF.Renderer, RendererAuto)
	}
	if cfg.App.Timezone != "America/Mexico_City" {
		t.Errorf("Timezone = %q, want America/Mexico_City", cfg.App.Timezone)
	}
	if cfg.App.PollInterval != 5*time.Minute {
		t.Errorf("PollInterval = %s, want 5m", cfg.App.PollInterval)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
retry:
  max_attempts: 2
`)
	t.Setenv("RETRY_MAX_ATTEMPTS", "7")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Retry.MaxAttempts != 7 {
		t.Errorf("MaxAttempts = %d, want 7 from env", cfg.Retry.MaxAttempts)
	}
}

func TestLoad_InvalidBackend(t *testing.T) {
	path := writeConfig(t, `
ledger:
  backend: excel
`)

	_, err := Load(path)
	if !errors.Is(err, apperrors.ErrInvalidConfig) {
		t.Fatalf("Load() error = %v, want ErrInvalidConfig", err)
	}
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			App:    App{PollInterval: time.Minute},
			Retry:  Retry{MaxAttempts: 3, Delay: time.Second},
			Ledger: Ledger{Backend: BackendSQLite, SQLite: SQLite{Path: "ledger.db"}},
			PDF:    PDF{Renderer: RendererLocal},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"zero attempts", func(c *Config) { c.Retry.MaxAttempts = 0 }, true},
		{"zero poll interval", func(c *Config) { c.App.PollInterval = 0 }, true},
		{"negative delay", func(c *Config) { c.Retry.Delay = -time.Second }, true},
		{"bigquery without project", func(c *Config) {
			c.Ledger.Backend = BackendBigQuery
			c.Ledger.BigQuery = BigQuery{Dataset: "requests", Table: "ledger"}
		}, true},
		{"bigquery complete", func(c *Config) {
			c.Ledger.Backend = BackendBigQuery
			c.Ledger.BigQuery = BigQuery{ProjectID: "p", Dataset: "requests", Table: "ledger"}
		}, false},
		{"unknown renderer", func(c *Config) { c.PDF.Renderer = "ocr" }, true},
		{"known timezone", func(c *Config) { c.App.Timezone = "America/Mexico_City" }, false},
		{"unknown timezone", func(c *Config) { c.App.Timezone = "Mars/Olympus_Mons" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestPath(t *testing.T) {
	t.Setenv("CONFIG_PATH", "/etc/ledger.yaml")

	if got := Path("local.yaml"); got != "local.yaml" {
		t.Errorf("Path(flag) = %q, want flag value", got)
	}
	if got := Path(""); got != "/etc/ledger.yaml" {
		t.Errorf("Path(\"\") = %q, want CONFIG_PATH", got)
	}
}
