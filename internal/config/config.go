// Package config loads the engine configuration from a YAML or JSON file.
// YAML is converted to JSON first so one strict decoder
// (DisallowUnknownFields) covers both formats.
package config

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	yaml "go.yaml.in/yaml/v3"
)

type Config struct {
	DBPath        string `json:"db_path"`
	EncryptionKey string `json:"encryption_key"`

	// SensitiveFields overrides the built-in sensitive-field name policy.
	SensitiveFields []string `json:"sensitive_fields,omitempty"`

	BootstrapPrincipal string `json:"bootstrap_principal,omitempty"`

	Diagnostics DiagnosticsConfig `json:"diagnostics"`
	Log         LogConfig         `json:"log"`
}

type DiagnosticsConfig struct {
	// Schedule is a cron expression for periodic diagnostics in watch mode.
	Schedule string `json:"schedule,omitempty"`
	// AutoFix makes watch mode run the repair sequence whenever a scheduled
	// diagnostic reports issues.
	AutoFix bool `json:"auto_fix,omitempty"`
}

type LogConfig struct {
	Level   string `json:"level,omitempty"`
	Console bool   `json:"console,omitempty"`
}

func Default() Config {
	return Config{
		DBPath: "./recordvault.sqlite",
		Diagnostics: DiagnosticsConfig{
			Schedule: "@every 15m",
		},
		Log: LogConfig{Level: "info"},
	}
}

func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	jsonBytes, format, err := coerceToJSONBytes(path, data)
	if err != nil {
		return Config{}, err
	}

	cfg := Default()
	dec := json.NewDecoder(bytes.NewReader(jsonBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode %s config: %w", format, err)
	}
	return cfg, nil
}

// Key decodes the configured encryption key. Hex and base64 encodings of a
// 32-byte key are both accepted.
func (c Config) Key() ([]byte, error) {
	s := strings.TrimSpace(c.EncryptionKey)
	if s == "" {
		return nil, fmt.Errorf("encryption_key is required")
	}
	if raw, err := hex.DecodeString(s); err == nil && len(raw) == 32 {
		return raw, nil
	}
	if raw, err := base64.StdEncoding.DecodeString(s); err == nil && len(raw) == 32 {
		return raw, nil
	}
	return nil, fmt.Errorf("encryption_key must decode to 32 bytes of hex or base64")
}

func (c Config) Validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("db_path is required")
	}
	if _, err := c.Key(); err != nil {
		return err
	}
	return nil
}

// coerceToJSONBytes converts YAML config to JSON bytes. Returns the bytes
// and the detected format name for error messages.
func coerceToJSONBytes(path string, data []byte) ([]byte, string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return data, "json", nil
	}

	var v any
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, "yaml", fmt.Errorf("yaml unmarshal: %w", err)
	}

	v = normalizeYAML(v)

	j, err := json.Marshal(v)
	if err != nil {
		return nil, "yaml", fmt.Errorf("yaml->json marshal: %w", err)
	}
	return j, "yaml", nil
}

// normalizeYAML ensures all map keys are strings so the result can be
// JSON-marshaled.
func normalizeYAML(in any) any {
	switch x := in.(type) {
	case map[any]any:
		m := make(map[string]any, len(x))
		for k, v := range x {
			m[fmt.Sprint(k)] = normalizeYAML(v)
		}
		return m
	case map[string]any:
		m := make(map[string]any, len(x))
		for k, v := range x {
			m[k] = normalizeYAML(v)
		}
		return m
	case []any:
		for i := range x {
			x[i] = normalizeYAML(x[i])
		}
		return x
	default:
		return in
	}
}
