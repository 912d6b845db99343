package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Config represents the catd configuration
type Config struct {
	Radio struct {
		// Model is a command set name (file name without extension) or its numeric id
		Model       string `yaml:"model"`
		Device      string `yaml:"device"`
		BaudRate    int    `yaml:"baud_rate"`
		CommandSets string `yaml:"command_sets"`

		// Serial timing (milliseconds)
		ReadTimeout  int `yaml:"read_timeout_ms"`
		ResyncWindow int `yaml:"resync_window_ms"`
		OpenSettle   int `yaml:"open_settle_ms"`
	} `yaml:"radio"`

	Server struct {
		Port        int    `yaml:"port"`
		BindAddress string `yaml:"bind_address"`
	} `yaml:"server"`

	Supervisor struct {
		Interval int `yaml:"interval_ms"`
	} `yaml:"supervisor"`

	Web struct {
		Enabled     bool   `yaml:"enabled"`
		Port        int    `yaml:"port"`
		BindAddress string `yaml:"bind_address"`
	} `yaml:"web"`

	Storage struct {
		JournalPath string `yaml:"journal_path"`
		MaxEntries  int    `yaml:"max_entries"`
	} `yaml:"storage"`

	Logging struct {
		Level      string `yaml:"level"`
		File       string `yaml:"file"`
		Console    bool   `yaml:"console"`
		Structured bool   `yaml:"structured"`
		MaxSize    int    `yaml:"max_size"`
		MaxBackups int    `yaml:"max_backups"`
		MaxAge     int    `yaml:"max_age"`
		Compress   bool   `yaml:"compress"`
	} `yaml:"logging"`
}

// Default returns a configuration with every default applied
func Default() *Config {
	var config Config
	config.applyDefaults()
	return &config
}

// LoadConfig loads configuration from a YAML file. An empty path yields the defaults.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyDefaults()
	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Radio.CommandSets == "" {
		c.Radio.CommandSets = "rigs"
	}
	if c.Radio.ReadTimeout == 0 {
		c.Radio.ReadTimeout = 1000
	}
	if c.Radio.ResyncWindow == 0 {
		c.Radio.ResyncWindow = 100
	}
	if c.Radio.OpenSettle == 0 {
		c.Radio.OpenSettle = 300
	}
	if c.Server.Port == 0 {
		c.Server.Port = 4532
	}
	if c.Server.BindAddress == "" {
		c.Server.BindAddress = "0.0.0.0"
	}
	if c.Supervisor.Interval == 0 {
		c.Supervisor.Interval = 2000
	}
	if c.Web.Port == 0 {
		c.Web.Port = 8532
	}
	if c.Web.BindAddress == "" {
		c.Web.BindAddress = "127.0.0.1"
	}
	if c.Storage.MaxEntries == 0 {
		c.Storage.MaxEntries = 10000
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "warn"
	}
	if c.Logging.MaxSize == 0 {
		c.Logging.MaxSize = 10
	}
	if c.Logging.MaxBackups == 0 {
		c.Logging.MaxBackups = 5
	}
	if c.Logging.MaxAge == 0 {
		c.Logging.MaxAge = 30
	}
}

// Validate checks if the configuration is valid for running the daemon
func (c *Config) Validate() error {
	if c.Radio.Model == "" {
		return fmt.Errorf("radio model is required")
	}
	if c.Radio.Device == "" {
		return fmt.Errorf("radio device is required")
	}
	if c.Radio.BaudRate < 0 {
		return fmt.Errorf("invalid baud rate: %d", c.Radio.BaudRate)
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Web.Enabled && (c.Web.Port < 1 || c.Web.Port > 65535) {
		return fmt.Errorf("web port must be between 1 and 65535, got %d", c.Web.Port)
	}
	if c.Radio.ReadTimeout < 0 || c.Radio.ResyncWindow < 0 || c.Radio.OpenSettle < 0 {
		return fmt.Errorf("serial timings must not be negative")
	}
	if c.Supervisor.Interval < 0 {
		return fmt.Errorf("supervisor interval must not be negative")
	}
	return nil
}

// ReadTimeout returns the per-read serial timeout
func (c *Config) ReadTimeout() time.Duration {
	return time.Duration(c.Radio.ReadTimeout) * time.Millisecond
}

// ResyncWindow returns the window used to drain a mismatched reply
func (c *Config) ResyncWindow() time.Duration {
	return time.Duration(c.Radio.ResyncWindow) * time.Millisecond
}

// OpenSettle returns the pause after opening the serial port
func (c *Config) OpenSettle() time.Duration {
	return time.Duration(c.Radio.OpenSettle) * time.Millisecond
}

// SupervisorInterval returns the supervisor polling interval
func (c *Config) SupervisorInterval() time.Duration {
	return time.Duration(c.Supervisor.Interval) * time.Millisecond
}

// ServerAddress returns the rigctld listener address
func (c *Config) ServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.BindAddress, c.Server.Port)
}

// WebAddress returns the status API listener address
func (c *Config) WebAddress() string {
	return fmt.Sprintf("%s:%d", c.Web.BindAddress, c.Web.Port)
}
