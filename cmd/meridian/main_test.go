package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/meridian-obs/meridian-core/internal/engine"
)

// TestRun_InvalidConfig verifies run fails with invalid config path.
func TestRun_InvalidConfig(t *testing.T) {
	originalEnv := os.Getenv("MERIDIAN_CONFIG")
	defer os.Setenv("MERIDIAN_CONFIG", originalEnv)

	os.Setenv("MERIDIAN_CONFIG", "/nonexistent/path/config.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := run(ctx)
	if err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
}

// TestRun_MissingDatabasePath verifies run fails when database path is invalid.
func TestRun_MissingDatabasePath(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test-config.yaml")

	configContent := `
site:
  id: gemini-south

sequences:
  dir: "` + tmpDir + `"

database:
  path: ""
  wal_mode: true
  busy_timeout: 5

mqtt:
  enabled: false

influxdb:
  enabled: false

logging:
  level: info
  format: text
  output: stdout
`
	if err := os.WriteFile(configPath, []byte(configContent), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	originalEnv := os.Getenv("MERIDIAN_CONFIG")
	defer os.Setenv("MERIDIAN_CONFIG", originalEnv)
	os.Setenv("MERIDIAN_CONFIG", configPath)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := run(ctx)
	if err == nil {
		t.Fatal("run() should fail with empty database path")
	}
}

// TestRun_SimStartupAndShutdown tests full startup in simulated mode with
// MQTT and InfluxDB disabled, then clean shutdown on context timeout.
func TestRun_SimStartupAndShutdown(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test-config.yaml")
	dbPath := filepath.Join(tmpDir, "test.db")

	configContent := `
site:
  id: gemini-south

instruments:
  mode: sim
  sim:
    config_latency: 10
    exposure_tick: 50

sequences:
  dir: "` + tmpDir + `"

database:
  path: "` + dbPath + `"
  wal_mode: true
  busy_timeout: 5

mqtt:
  enabled: false

influxdb:
  enabled: false

api:
  host: "127.0.0.1"
  port: 38090
  timeouts:
    read: 30
    write: 60
    idle: 120

logging:
  level: info
  format: text
  output: stdout
`
	if err := os.WriteFile(configPath, []byte(configContent), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	originalEnv := os.Getenv("MERIDIAN_CONFIG")
	defer os.Setenv("MERIDIAN_CONFIG", originalEnv)
	os.Setenv("MERIDIAN_CONFIG", configPath)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := run(ctx); err != nil {
		t.Errorf("run() returned error on clean shutdown: %v", err)
	}
}

// TestGetConfigPath_Default verifies default config path.
func TestGetConfigPath_Default(t *testing.T) {
	originalEnv := os.Getenv("MERIDIAN_CONFIG")
	defer os.Setenv("MERIDIAN_CONFIG", originalEnv)

	os.Unsetenv("MERIDIAN_CONFIG")

	path := getConfigPath()
	if path != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", path, defaultConfigPath)
	}
}

// TestGetConfigPath_EnvOverride verifies environment variable override.
func TestGetConfigPath_EnvOverride(t *testing.T) {
	originalEnv := os.Getenv("MERIDIAN_CONFIG")
	defer os.Setenv("MERIDIAN_CONFIG", originalEnv)

	expected := "/custom/path/config.yaml"
	os.Setenv("MERIDIAN_CONFIG", expected)

	path := getConfigPath()
	if path != expected {
		t.Errorf("getConfigPath() = %q, want %q", path, expected)
	}
}

// TestSiteInstruments verifies the site complement split.
func TestSiteInstruments(t *testing.T) {
	north := siteInstruments("gemini-north")
	for _, r := range north {
		if r == engine.ResourceGmosS {
			t.Error("gmos_s in the northern complement")
		}
	}

	south := siteInstruments("gemini-south")
	foundGmosS := false
	for _, r := range south {
		if r == engine.ResourceGmosS {
			foundGmosS = true
		}
	}
	if !foundGmosS {
		t.Error("gmos_s missing from the southern complement")
	}
}
