package config

import (
	"encoding/base64"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadYAMLOverDefaults(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
db_path: /var/lib/vault.sqlite
encryption_key: abc
sensitive_fields:
  - password
  - ssn
diagnostics:
  schedule: "@every 1h"
  auto_fix: true
log:
  level: debug
  console: true
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.DBPath != "/var/lib/vault.sqlite" {
		t.Fatalf("db_path not applied: %q", cfg.DBPath)
	}
	if len(cfg.SensitiveFields) != 2 || cfg.SensitiveFields[1] != "ssn" {
		t.Fatalf("sensitive_fields not applied: %v", cfg.SensitiveFields)
	}
	if cfg.Diagnostics.Schedule != "@every 1h" || !cfg.Diagnostics.AutoFix {
		t.Fatalf("diagnostics not applied: %+v", cfg.Diagnostics)
	}
	if cfg.Log.Level != "debug" || !cfg.Log.Console {
		t.Fatalf("log config not applied: %+v", cfg.Log)
	}
}

func TestLoadKeepsDefaultsForOmittedFields(t *testing.T) {
	path := writeConfig(t, "config.yaml", "encryption_key: abc\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.DBPath != Default().DBPath {
		t.Fatalf("default db_path lost: %q", cfg.DBPath)
	}
	if cfg.Diagnostics.Schedule != "@every 15m" {
		t.Fatalf("default schedule lost: %q", cfg.Diagnostics.Schedule)
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	path := writeConfig(t, "config.yaml", "db_path: x\nencrpytion_key: typo\n")

	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "unknown field") {
		t.Fatalf("expected unknown-field error, got %v", err)
	}
}

func TestLoadJSON(t *testing.T) {
	path := writeConfig(t, "config.json", `{"db_path": "x.sqlite", "encryption_key": "abc"}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.DBPath != "x.sqlite" {
		t.Fatalf("db_path not applied: %q", cfg.DBPath)
	}
}

func TestKeyAcceptsHexAndBase64(t *testing.T) {
	raw := make([]byte, 32)
	for i := range raw {
		raw[i] = byte(i)
	}

	for _, encoded := range []string{hex.EncodeToString(raw), base64.StdEncoding.EncodeToString(raw)} {
		cfg := Config{EncryptionKey: encoded}
		key, err := cfg.Key()
		if err != nil {
			t.Fatalf("key rejected %q: %v", encoded, err)
		}
		if len(key) != 32 || key[31] != 31 {
			t.Fatalf("key decoded wrong: %x", key)
		}
	}

	for _, bad := range []string{"", "short", hex.EncodeToString(raw[:16])} {
		if _, err := (Config{EncryptionKey: bad}).Key(); err == nil {
			t.Fatalf("key accepted %q", bad)
		}
	}
}

func TestValidate(t *testing.T) {
	raw := make([]byte, 32)
	good := Config{DBPath: "x.sqlite", EncryptionKey: hex.EncodeToString(raw)}
	if err := good.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	if err := (Config{EncryptionKey: good.EncryptionKey}).Validate(); err == nil {
		t.Fatal("missing db_path accepted")
	}
	if err := (Config{DBPath: "x.sqlite"}).Validate(); err == nil {
		t.Fatal("missing key accepted")
	}
}
