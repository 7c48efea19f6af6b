package config

import (
	"os"
	"path/filepath"
	"testing"
)

func clearEnv(t *testing.T, names ...string) {
	t.Helper()
	for _, n := range names {
		old, had := os.LookupEnv(n)
		os.Unsetenv(n)
		t.Cleanup(func() {
			if had {
				os.Setenv(n, old)
			}
		})
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t, "HOST", "PORT", "CONFIG_FILE", "VECTOR_BACKEND", "DATABASE_URL")
	os.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Host != "0.0.0.0" || cfg.Port != 8085 {
		t.Fatalf("unexpected host/port: %s:%d", cfg.Host, cfg.Port)
	}
	if cfg.Databases.Vector.Backend != "memory" {
		t.Fatalf("expected memory backend fallback when no DSN, got %q", cfg.Databases.Vector.Backend)
	}
	if cfg.Tenancy.DefaultRRFK != 60 {
		t.Fatalf("expected default RRF k of 60, got %d", cfg.Tenancy.DefaultRRFK)
	}
	if cfg.Capacity.TotalSlots != 16 {
		t.Fatalf("expected default capacity of 16 slots, got %d", cfg.Capacity.TotalSlots)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t, "HOST", "PORT", "CONFIG_FILE", "VECTOR_BACKEND", "DATABASE_URL", "OPENAI_API_KEY")
	os.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	os.Setenv("HOST", "127.0.0.1")
	os.Setenv("PORT", "9090")
	os.Setenv("VECTOR_BACKEND", "qdrant")
	os.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Host != "127.0.0.1" || cfg.Port != 9090 {
		t.Fatalf("unexpected host/port: %s:%d", cfg.Host, cfg.Port)
	}
	if cfg.Databases.Vector.Backend != "qdrant" {
		t.Fatalf("expected explicit vector backend to win, got %q", cfg.Databases.Vector.Backend)
	}
	if cfg.LLMClient.OpenAI.APIKey != "sk-test" {
		t.Fatalf("expected openai api key from env, got %q", cfg.LLMClient.OpenAI.APIKey)
	}
}

func TestLoad_YAMLFillsUnsetFields(t *testing.T) {
	clearEnv(t, "HOST", "PORT", "CONFIG_FILE", "VECTOR_BACKEND", "DATABASE_URL")
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yamlBody := `
host: fromyaml
tenancy:
  default_rrf_k: 80
databases:
  vector:
    backend: postgres
    dimensions: 1536
`
	if err := os.WriteFile(path, []byte(yamlBody), 0o644); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	os.Setenv("CONFIG_FILE", path)
	// Env still wins when set.
	os.Setenv("PORT", "7000")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Host != "fromyaml" {
		t.Fatalf("expected YAML to fill unset host, got %q", cfg.Host)
	}
	if cfg.Port != 7000 {
		t.Fatalf("expected env port to win over YAML default, got %d", cfg.Port)
	}
	if cfg.Tenancy.DefaultRRFK != 80 {
		t.Fatalf("expected YAML rrf_k override, got %d", cfg.Tenancy.DefaultRRFK)
	}
	if cfg.Databases.Vector.Backend != "postgres" || cfg.Databases.Vector.Dimensions != 1536 {
		t.Fatalf("expected YAML vector backend/dimensions, got %+v", cfg.Databases.Vector)
	}
}
