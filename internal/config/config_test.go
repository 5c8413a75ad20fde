package config

import (
	"os"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	tmpfile, err := os.CreateTemp(t.TempDir(), "config-*.yaml")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := tmpfile.Write([]byte(content)); err != nil {
		t.Fatal(err)
	}
	if err := tmpfile.Close(); err != nil {
		t.Fatal(err)
	}
	return tmpfile.Name()
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
  host: "127.0.0.1"

export:
  appName: "Cutroom"
  defaultFormat: "webm"
  defaultFPS: 30

redis:
  enabled: true
  host: "cache"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Export.AppName != "Cutroom" {
		t.Errorf("Expected app name Cutroom, got %s", cfg.Export.AppName)
	}
	if cfg.Export.DefaultFormat != "webm" {
		t.Errorf("Expected default format webm, got %s", cfg.Export.DefaultFormat)
	}
	if cfg.Export.DefaultFPS != 30 {
		t.Errorf("Expected default fps 30, got %d", cfg.Export.DefaultFPS)
	}
	if !cfg.Redis.Enabled || cfg.Redis.Host != "cache" {
		t.Errorf("Expected redis enabled on host cache, got %+v", cfg.Redis)
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Failed to load defaults: %v", err)
	}

	if cfg.Export.DefaultResolution != "1920x1080" {
		t.Errorf("Expected default resolution 1920x1080, got %s", cfg.Export.DefaultResolution)
	}
	if cfg.Export.DefaultCRF != 23 {
		t.Errorf("Expected default crf 23, got %d", cfg.Export.DefaultCRF)
	}
	if cfg.Export.DefaultPreset != "veryfast" {
		t.Errorf("Expected default preset veryfast, got %s", cfg.Export.DefaultPreset)
	}
	if cfg.Export.DiskSafetyMarginBytes != 200*1024*1024 {
		t.Errorf("Expected 200MB safety margin, got %d", cfg.Export.DiskSafetyMarginBytes)
	}
	if cfg.Export.LogRingSize != 200 {
		t.Errorf("Expected log ring size 200, got %d", cfg.Export.LogRingSize)
	}
	if cfg.Export.ValidationToleranceSeconds != 0.5 {
		t.Errorf("Expected tolerance 0.5, got %f", cfg.Export.ValidationToleranceSeconds)
	}
	if cfg.Redis.JobTTL != 24*time.Hour {
		t.Errorf("Expected redis job TTL 24h, got %s", cfg.Redis.JobTTL)
	}
	if cfg.Server.ShutdownTimeout != 10*time.Second {
		t.Errorf("Expected shutdown timeout 10s, got %s", cfg.Server.ShutdownTimeout)
	}
	if cfg.Server.AuthSecret != "" {
		t.Errorf("Expected authentication off by default")
	}
	if cfg.Server.EnqueueRate != 1 || cfg.Server.EnqueueBurst != 5 {
		t.Errorf("Expected enqueue limit 1/s burst 5, got %v/%d", cfg.Server.EnqueueRate, cfg.Server.EnqueueBurst)
	}
}

func TestLoadEnvironmentOverride(t *testing.T) {
	t.Setenv("VEDIT_EXPORT_DEFAULTPRESET", "slow")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Export.DefaultPreset != "slow" {
		t.Errorf("Expected env override preset slow, got %s", cfg.Export.DefaultPreset)
	}
}

func TestLoadRejectsInvalidRingSize(t *testing.T) {
	path := writeConfig(t, `
export:
  logRingSize: 0
`)

	if _, err := Load(path); err == nil {
		t.Error("Expected error for zero log ring size")
	}
}

func TestLoadNonExistentFile(t *testing.T) {
	_, err := Load("nonexistent.yaml")
	if err == nil {
		t.Error("Expected error when loading nonexistent file")
	}
}

func TestLoadWebhook(t *testing.T) {
	path := writeConfig(t, `
webhook:
  enabled: true
  urls:
    - "http://localhost:8080/hooks/vedit"
  secret: "s3cret"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if len(cfg.Webhook.URLs) != 1 || cfg.Webhook.URLs[0] != "http://localhost:8080/hooks/vedit" {
		t.Errorf("Unexpected webhook urls %v", cfg.Webhook.URLs)
	}
	if cfg.Webhook.Timeout != 10*time.Second {
		t.Errorf("Expected default webhook timeout 10s, got %v", cfg.Webhook.Timeout)
	}
	if cfg.Webhook.MaxRetries != 3 {
		t.Errorf("Expected default max retries 3, got %d", cfg.Webhook.MaxRetries)
	}

	path = writeConfig(t, `
webhook:
  enabled: true
`)
	if _, err := Load(path); err == nil {
		t.Error("Expected error for enabled webhook without urls")
	}
}
