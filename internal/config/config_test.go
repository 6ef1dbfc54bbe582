package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const minimalEnvYAML = `
server:
  port: "8080"
request:
  timeout: "30s"
store:
  backend: "memory"
retrieval:
  interpolation: "floor"
  sources:
    - hazard_type: "RiverineInundation"
      pattern: "inundation/wri/v2/inunriver_{scenario}_{indicator}_{year}"
cache:
  backend: "memory"
reliability:
  retry_max_attempts: 3
  retry_base_delay: "100ms"
  retry_max_delay: "2s"
  rate_limit_rps: 5
  rate_limit_burst: 10
shutdown:
  timeout: "10s"
`

func chdirTemp(t *testing.T, content string) {
	t.Helper()
	origWd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	dir := t.TempDir()
	writeEnvFile(t, dir, content)
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(origWd) })
}

func writeEnvFile(t *testing.T, dir, content string) {
	t.Helper()
	configDir := filepath.Join(dir, "config")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		t.Fatalf("mkdir config: %v", err)
	}
	if err := os.WriteFile(filepath.Join(configDir, "dev.yaml"), []byte(content), 0644); err != nil {
		t.Fatalf("write config file: %v", err)
	}
}

func writeSecretsFile(t *testing.T, content string) {
	t.Helper()
	cwd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	if err := os.WriteFile(filepath.Join(cwd, "config", "secrets.yaml"), []byte(content), 0644); err != nil {
		t.Fatalf("write secrets file: %v", err)
	}
}

func TestLoad_Defaults(t *testing.T) {
	chdirTemp(t, minimalEnvYAML)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ServerPort != "8080" {
		t.Errorf("ServerPort = %q, want 8080", cfg.ServerPort)
	}
	if cfg.Interpolation != "floor" {
		t.Errorf("Interpolation = %q, want floor", cfg.Interpolation)
	}
	if cfg.Workers != 8 {
		t.Errorf("Workers = %d, want default 8", cfg.Workers)
	}
	if cfg.FloodAPIEnabled {
		t.Error("FloodAPIEnabled = true, want false when omitted")
	}
	if cfg.FloodMaxRequests != 100 || cfg.FloodBatchSize != 100 || cfg.FloodConcurrency != 8 {
		t.Errorf("flood defaults = %d/%d/%d, want 100/100/8",
			cfg.FloodMaxRequests, cfg.FloodBatchSize, cfg.FloodConcurrency)
	}
	if cfg.GeocoderBackend != "static" {
		t.Errorf("GeocoderBackend = %q, want static", cfg.GeocoderBackend)
	}
	if len(cfg.Sources) != 1 || cfg.Sources[0].HazardType != "RiverineInundation" {
		t.Errorf("Sources = %+v", cfg.Sources)
	}
	if cfg.ShutdownTimeout != 10*time.Second {
		t.Errorf("ShutdownTimeout = %v, want 10s", cfg.ShutdownTimeout)
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	origWd, _ := os.Getwd()
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatalf("Chdir: %v", err)
	}
	defer func() { _ = os.Chdir(origWd) }()

	cfg, err := Load()
	if err == nil {
		t.Fatal("Load() expected error for missing config file, got nil")
	}
	if cfg != nil {
		t.Fatalf("Load() expected nil config on error, got %+v", cfg)
	}
	if !strings.Contains(err.Error(), "not found") {
		t.Errorf("Load() error = %v, want message about config file not found", err)
	}
}

func TestLoad_InvalidConfigYAML(t *testing.T) {
	chdirTemp(t, "not: valid: yaml: [[[")

	cfg, err := Load()
	if err == nil {
		t.Fatal("Load() expected error for invalid YAML, got nil")
	}
	if cfg != nil {
		t.Fatalf("Load() expected nil config on error, got %+v", cfg)
	}
}

func TestLoad_FloodAPIRequiresKey(t *testing.T) {
	savedKey := os.Getenv("FLOOD_API_KEY")
	os.Unsetenv("FLOOD_API_KEY")
	defer func() {
		if savedKey != "" {
			os.Setenv("FLOOD_API_KEY", savedKey)
		}
	}()

	chdirTemp(t, minimalEnvYAML+`
flood_api:
  enabled: true
  url: "https://api.example.com"
`)

	cfg, err := Load()
	if err == nil {
		t.Fatal("Load() expected error when flood API enabled without key, got nil")
	}
	if cfg != nil {
		t.Fatalf("Load() expected nil config on error, got %+v", cfg)
	}
	if !strings.Contains(err.Error(), "FLOOD_API_KEY") {
		t.Errorf("Load() error = %v, want message containing FLOOD_API_KEY", err)
	}
}

func TestLoad_FloodAPIKeyFromSecrets(t *testing.T) {
	savedKey := os.Getenv("FLOOD_API_KEY")
	os.Unsetenv("FLOOD_API_KEY")
	defer func() {
		if savedKey != "" {
			os.Setenv("FLOOD_API_KEY", savedKey)
		}
	}()

	chdirTemp(t, minimalEnvYAML+`
flood_api:
  enabled: true
  url: "https://api.example.com"
  max_requests: 50
  hazard_types: ["RiverineInundation", "PluvialInundation"]
`)
	writeSecretsFile(t, "flood_api_key: key-from-secrets-file\n")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.FloodAPIKey != "key-from-secrets-file" {
		t.Errorf("FloodAPIKey = %q, want key from secrets file", cfg.FloodAPIKey)
	}
	if cfg.FloodMaxRequests != 50 {
		t.Errorf("FloodMaxRequests = %d, want 50", cfg.FloodMaxRequests)
	}
	if len(cfg.RemoteHazardTypes) != 2 {
		t.Errorf("RemoteHazardTypes = %v", cfg.RemoteHazardTypes)
	}
}

func TestLoad_InvalidInterpolation(t *testing.T) {
	chdirTemp(t, strings.Replace(minimalEnvYAML, `interpolation: "floor"`, `interpolation: "bilinear"`, 1))

	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "interpolation") {
		t.Fatalf("Load() error = %v, want interpolation validation failure", err)
	}
}

func TestLoad_InvalidBackends(t *testing.T) {
	chdirTemp(t, strings.Replace(minimalEnvYAML, `store:
  backend: "memory"`, `store:
  backend: "postgres"`, 1))
	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "store.backend") {
		t.Fatalf("Load() error = %v, want store backend validation failure", err)
	}

	chdirTemp(t, strings.Replace(minimalEnvYAML, `cache:
  backend: "memory"`, `cache:
  backend: "redis"`, 1))
	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "cache.backend") {
		t.Fatalf("Load() error = %v, want cache backend validation failure", err)
	}
}

func TestLoad_GoogleGeocoderRequiresKey(t *testing.T) {
	savedKey := os.Getenv("GOOGLE_API_KEY")
	os.Unsetenv("GOOGLE_API_KEY")
	defer func() {
		if savedKey != "" {
			os.Setenv("GOOGLE_API_KEY", savedKey)
		}
	}()

	chdirTemp(t, minimalEnvYAML+`
geocoder:
  backend: "google"
`)

	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "GOOGLE_API_KEY") {
		t.Fatalf("Load() error = %v, want message containing GOOGLE_API_KEY", err)
	}
}

func TestLoad_InvalidDurationFallsBackToDefault(t *testing.T) {
	chdirTemp(t, strings.Replace(minimalEnvYAML, `timeout: "30s"`, `timeout: "invalid"`, 1))

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.RequestTimeout != 30*time.Second {
		t.Errorf("RequestTimeout = %v, want default 30s", cfg.RequestTimeout)
	}
}

func TestLoad_TestingModeTrue(t *testing.T) {
	chdirTemp(t, minimalEnvYAML+"\ntesting_mode: true\n")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !cfg.TestingMode {
		t.Error("TestingMode = false, want true")
	}
}
