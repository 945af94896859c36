package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadConfig(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "smyd-config-test")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tempDir)

	t.Run("Valid TCP Config", func(t *testing.T) {
		configContent := `
link:
  kind: "tcp"
  address: "192.168.1.40:5025"
  auto_connect: true
  status_timeout_ms: 400

device:
  strict_verify: false
  benign_codes: [32, 53]

auto_modulation:
  enabled: true
  am_from_mhz: 118.0
  am_to_mhz: 137.0

hopping:
  default_dwell_ms: 1500

web:
  port: 8090
  bind_address: "127.0.0.1"

storage:
  database_path: "/tmp/smyd.db"
  max_events: 5000

logging:
  level: "debug"
  console: true
`
		configPath := filepath.Join(tempDir, "valid.yaml")
		if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
			t.Fatalf("Failed to write config file: %v", err)
		}

		config, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}

		if config.Link.Kind != "tcp" {
			t.Errorf("Expected link kind tcp, got %s", config.Link.Kind)
		}
		if config.Link.Address != "192.168.1.40:5025" {
			t.Errorf("Expected address 192.168.1.40:5025, got %s", config.Link.Address)
		}
		if config.Link.StatusTimeoutMs != 400 {
			t.Errorf("Expected status timeout 400ms, got %d", config.Link.StatusTimeoutMs)
		}
		if len(config.Device.BenignCodes) != 2 || config.Device.BenignCodes[0] != 32 {
			t.Errorf("Benign codes parsed wrong: %v", config.Device.BenignCodes)
		}
		if !config.AutoModulation.Enabled || config.AutoModulation.AMFromMHz != 118.0 {
			t.Errorf("Auto modulation parsed wrong: %+v", config.AutoModulation)
		}
		if config.Hopping.DefaultDwellMs != 1500 {
			t.Errorf("Expected dwell 1500ms, got %d", config.Hopping.DefaultDwellMs)
		}
		if config.Web.Port != 8090 {
			t.Errorf("Expected web port 8090, got %d", config.Web.Port)
		}
		if config.Storage.MaxEvents != 5000 {
			t.Errorf("Expected max events 5000, got %d", config.Storage.MaxEvents)
		}

		if err := config.Validate(); err != nil {
			t.Errorf("Expected valid config, got: %v", err)
		}
	})

	t.Run("Defaults", func(t *testing.T) {
		configContent := `
link:
  kind: "serial"
  port: "/dev/ttyUSB0"
`
		configPath := filepath.Join(tempDir, "defaults.yaml")
		if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
			t.Fatalf("Failed to write config file: %v", err)
		}

		config, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}

		if config.Link.BaudRate != 9600 {
			t.Errorf("Expected default baud rate 9600, got %d", config.Link.BaudRate)
		}
		if config.Link.CommandTimeoutMs != 5000 {
			t.Errorf("Expected default command timeout 5000ms, got %d", config.Link.CommandTimeoutMs)
		}
		if config.Link.StatusTimeoutMs != 500 {
			t.Errorf("Expected default status timeout 500ms, got %d", config.Link.StatusTimeoutMs)
		}
		if config.Hopping.DefaultDwellMs != 2000 {
			t.Errorf("Expected default dwell 2000ms, got %d", config.Hopping.DefaultDwellMs)
		}
		if config.Web.Port != 8080 {
			t.Errorf("Expected default web port 8080, got %d", config.Web.Port)
		}
		if config.Storage.MaxEvents != 10000 {
			t.Errorf("Expected default max events 10000, got %d", config.Storage.MaxEvents)
		}
		if config.Logging.Level != "info" {
			t.Errorf("Expected default log level info, got %s", config.Logging.Level)
		}

		if err := config.Validate(); err != nil {
			t.Errorf("Expected valid config, got: %v", err)
		}
	})

	t.Run("Missing File", func(t *testing.T) {
		if _, err := LoadConfig(filepath.Join(tempDir, "nope.yaml")); err == nil {
			t.Errorf("Expected error for missing file")
		}
	})

	t.Run("Invalid YAML", func(t *testing.T) {
		configPath := filepath.Join(tempDir, "broken.yaml")
		if err := os.WriteFile(configPath, []byte("link: [unclosed"), 0644); err != nil {
			t.Fatalf("Failed to write config file: %v", err)
		}
		if _, err := LoadConfig(configPath); err == nil {
			t.Errorf("Expected error for invalid YAML")
		}
	})
}

func TestValidate(t *testing.T) {
	t.Run("TCP Without Address", func(t *testing.T) {
		var c Config
		c.Link.Kind = "tcp"
		c.Hopping.DefaultDwellMs = 2000
		if err := c.Validate(); err == nil || !strings.Contains(err.Error(), "address") {
			t.Errorf("Expected address error, got: %v", err)
		}
	})

	t.Run("Serial Without Port", func(t *testing.T) {
		var c Config
		c.Link.Kind = "serial"
		c.Link.BaudRate = 9600
		c.Hopping.DefaultDwellMs = 2000
		if err := c.Validate(); err == nil || !strings.Contains(err.Error(), "port") {
			t.Errorf("Expected port error, got: %v", err)
		}
	})

	t.Run("Unknown Link Kind", func(t *testing.T) {
		var c Config
		c.Link.Kind = "gpib"
		c.Hopping.DefaultDwellMs = 2000
		if err := c.Validate(); err == nil {
			t.Errorf("Expected error for unknown link kind")
		}
	})

	t.Run("AM Band Swapped", func(t *testing.T) {
		var c Config
		c.Link.Kind = "tcp"
		c.Link.Address = "10.0.0.5"
		c.Hopping.DefaultDwellMs = 2000
		c.AutoModulation.Enabled = true
		c.AutoModulation.AMFromMHz = 137
		c.AutoModulation.AMToMHz = 118
		if err := c.Validate(); err != nil {
			t.Fatalf("Expected valid config, got: %v", err)
		}
		if c.AutoModulation.AMFromMHz != 118 || c.AutoModulation.AMToMHz != 137 {
			t.Errorf("Expected band normalized to [118,137], got [%g,%g]",
				c.AutoModulation.AMFromMHz, c.AutoModulation.AMToMHz)
		}
	})
}
