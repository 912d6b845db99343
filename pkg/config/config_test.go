package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadConfig(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "catd-config-test")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tempDir)

	t.Run("Valid Config", func(t *testing.T) {
		configContent := `
radio:
  model: "IC-9700"
  device: "/dev/ttyUSB0"
  baud_rate: 19200
  command_sets: "/etc/catd/rigs"
  read_timeout_ms: 500

server:
  port: 4533
  bind_address: "127.0.0.1"

supervisor:
  interval_ms: 1000

web:
  enabled: true
  port: 9000

storage:
  journal_path: "/tmp/catd.db"
  max_entries: 500

logging:
  level: "debug"
  file: "/tmp/catd.log"
  console: true
  structured: true
`
		configPath := filepath.Join(tempDir, "valid.yaml")
		if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
			t.Fatalf("Failed to write config file: %v", err)
		}

		config, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}

		if config.Radio.Model != "IC-9700" {
			t.Errorf("Expected radio model IC-9700, got %s", config.Radio.Model)
		}
		if config.Radio.Device != "/dev/ttyUSB0" {
			t.Errorf("Expected device /dev/ttyUSB0, got %s", config.Radio.Device)
		}
		if config.Radio.BaudRate != 19200 {
			t.Errorf("Expected baud rate 19200, got %d", config.Radio.BaudRate)
		}
		if config.Radio.CommandSets != "/etc/catd/rigs" {
			t.Errorf("Expected command sets dir /etc/catd/rigs, got %s", config.Radio.CommandSets)
		}
		if config.ReadTimeout() != 500*time.Millisecond {
			t.Errorf("Expected read timeout 500ms, got %v", config.ReadTimeout())
		}
		if config.ServerAddress() != "127.0.0.1:4533" {
			t.Errorf("Expected server address 127.0.0.1:4533, got %s", config.ServerAddress())
		}
		if config.SupervisorInterval() != time.Second {
			t.Errorf("Expected supervisor interval 1s, got %v", config.SupervisorInterval())
		}
		if !config.Web.Enabled || config.Web.Port != 9000 {
			t.Errorf("Expected web enabled on 9000, got %v on %d", config.Web.Enabled, config.Web.Port)
		}
		if config.Storage.MaxEntries != 500 {
			t.Errorf("Expected max entries 500, got %d", config.Storage.MaxEntries)
		}
		if !config.Logging.Structured || !config.Logging.Console {
			t.Error("Expected structured console logging")
		}
	})

	t.Run("Config With Defaults", func(t *testing.T) {
		configContent := `
radio:
  model: "FT-817"
  device: "/dev/ttyUSB1"
`
		configPath := filepath.Join(tempDir, "minimal.yaml")
		if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
			t.Fatalf("Failed to write config file: %v", err)
		}

		config, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}

		if config.Radio.BaudRate != 0 {
			t.Errorf("Expected baud rate left to the command set, got %d", config.Radio.BaudRate)
		}
		if config.Radio.CommandSets != "rigs" {
			t.Errorf("Expected default command sets dir rigs, got %s", config.Radio.CommandSets)
		}
		if config.ReadTimeout() != time.Second {
			t.Errorf("Expected default read timeout 1s, got %v", config.ReadTimeout())
		}
		if config.ResyncWindow() != 100*time.Millisecond {
			t.Errorf("Expected default resync window 100ms, got %v", config.ResyncWindow())
		}
		if config.OpenSettle() != 300*time.Millisecond {
			t.Errorf("Expected default open settle 300ms, got %v", config.OpenSettle())
		}
		if config.Server.Port != 4532 {
			t.Errorf("Expected default port 4532, got %d", config.Server.Port)
		}
		if config.SupervisorInterval() != 2*time.Second {
			t.Errorf("Expected default supervisor interval 2s, got %v", config.SupervisorInterval())
		}
		if config.Web.Enabled {
			t.Error("Expected web API disabled by default")
		}
		if config.Logging.Level != "warn" {
			t.Errorf("Expected default log level warn, got %s", config.Logging.Level)
		}
	})

	t.Run("Empty Path", func(t *testing.T) {
		config, err := LoadConfig("")
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		if config.Server.Port != 4532 {
			t.Errorf("Expected default port 4532, got %d", config.Server.Port)
		}
	})

	t.Run("File Not Found", func(t *testing.T) {
		_, err := LoadConfig(filepath.Join(tempDir, "nonexistent.yaml"))
		if err == nil {
			t.Fatal("Expected error for nonexistent file")
		}
		if !strings.Contains(err.Error(), "failed to read config file") {
			t.Errorf("Expected read error, got: %v", err)
		}
	})

	t.Run("Invalid YAML", func(t *testing.T) {
		configPath := filepath.Join(tempDir, "invalid.yaml")
		if err := os.WriteFile(configPath, []byte("radio:\n  model: [unclosed\n"), 0644); err != nil {
			t.Fatalf("Failed to write config file: %v", err)
		}

		_, err := LoadConfig(configPath)
		if err == nil {
			t.Fatal("Expected error for invalid YAML")
		}
		if !strings.Contains(err.Error(), "failed to parse config file") {
			t.Errorf("Expected parse error, got: %v", err)
		}
	})
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		c := Default()
		c.Radio.Model = "IC-9700"
		c.Radio.Device = "/dev/ttyUSB0"
		return c
	}

	t.Run("Valid Config", func(t *testing.T) {
		if err := valid().Validate(); err != nil {
			t.Errorf("Expected no error, got: %v", err)
		}
	})

	tests := []struct {
		name   string
		mutate func(c *Config)
		errMsg string
	}{
		{"Missing Model", func(c *Config) { c.Radio.Model = "" }, "radio model is required"},
		{"Missing Device", func(c *Config) { c.Radio.Device = "" }, "radio device is required"},
		{"Negative Baud Rate", func(c *Config) { c.Radio.BaudRate = -1 }, "invalid baud rate"},
		{"Port Out Of Range", func(c *Config) { c.Server.Port = 70000 }, "server port"},
		{"Web Port Out Of Range", func(c *Config) { c.Web.Enabled = true; c.Web.Port = -5 }, "web port"},
		{"Negative Timing", func(c *Config) { c.Radio.ReadTimeout = -1 }, "serial timings"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := valid()
			tc.mutate(c)
			err := c.Validate()
			if err == nil {
				t.Fatal("Expected validation error")
			}
			if !strings.Contains(err.Error(), tc.errMsg) {
				t.Errorf("Expected error containing %q, got: %v", tc.errMsg, err)
			}
		})
	}
}

func TestExampleConfig(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join("..", "..", "catd.example.yaml"))
	if err != nil {
		t.Fatalf("Failed to load example config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Example config is invalid: %v", err)
	}
	if cfg.Radio.Model != "IC-9700" {
		t.Errorf("Expected model IC-9700, got %s", cfg.Radio.Model)
	}
	if cfg.ReadTimeout() != time.Second {
		t.Errorf("Expected 1s read timeout, got %v", cfg.ReadTimeout())
	}
}
