package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// Config represents the smyd configuration
type Config struct {
	Link struct {
		// Kind selects the transport: "tcp" (SCPI raw socket / LAN-GPIB
		// bridge) or "serial".
		Kind     string `yaml:"kind"`
		Address  string `yaml:"address"` // tcp: host[:port]
		Port     string `yaml:"port"`    // serial: device path
		BaudRate int    `yaml:"baud_rate"`

		// AutoConnect makes the daemon try the instrument at startup; a
		// failure is logged and left to the API to retry.
		AutoConnect bool `yaml:"auto_connect"`

		CommandTimeoutMs int `yaml:"command_timeout_ms"`
		StatusTimeoutMs  int `yaml:"status_timeout_ms"`
		PollTimeoutMs    int `yaml:"poll_timeout_ms"`
	} `yaml:"link"`

	Device struct {
		// StrictVerify turns status-query timeouts into failures instead of
		// optimistic successes.
		StrictVerify bool `yaml:"strict_verify"`

		// BenignCodes overrides the per-identity benign ESR code set.
		BenignCodes []int `yaml:"benign_codes"`
	} `yaml:"device"`

	AutoModulation struct {
		// When enabled, frequencies inside [AMFromMHz, AMToMHz] get AM and
		// everything else gets FM at the entry's bandwidth.
		Enabled   bool    `yaml:"enabled"`
		AMFromMHz float64 `yaml:"am_from_mhz"`
		AMToMHz   float64 `yaml:"am_to_mhz"`
	} `yaml:"auto_modulation"`

	Hopping struct {
		DefaultDwellMs int `yaml:"default_dwell_ms"`
	} `yaml:"hopping"`

	Web struct {
		Port        int    `yaml:"port"`
		BindAddress string `yaml:"bind_address"`
	} `yaml:"web"`

	Storage struct {
		DatabasePath string `yaml:"database_path"`
		MaxEvents    int    `yaml:"max_events"`
	} `yaml:"storage"`

	Logging struct {
		Level      string `yaml:"level"`
		File       string `yaml:"file"`
		Console    bool   `yaml:"console"`
		Structured bool   `yaml:"structured"`
		MaxSize    int    `yaml:"max_size"` // megabytes
		MaxBackups int    `yaml:"max_backups"`
		MaxAge     int    `yaml:"max_age"` // days
		Compress   bool   `yaml:"compress"`
	} `yaml:"logging"`
}

// LoadConfig loads configuration from a YAML file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Set defaults
	if config.Link.Kind == "" {
		config.Link.Kind = "tcp"
	}
	if config.Link.BaudRate == 0 {
		config.Link.BaudRate = 9600
	}
	if config.Link.CommandTimeoutMs == 0 {
		config.Link.CommandTimeoutMs = 5000
	}
	if config.Link.StatusTimeoutMs == 0 {
		config.Link.StatusTimeoutMs = 500
	}
	if config.Link.PollTimeoutMs == 0 {
		config.Link.PollTimeoutMs = 1000
	}
	if config.Hopping.DefaultDwellMs == 0 {
		config.Hopping.DefaultDwellMs = 2000
	}
	if config.Web.Port == 0 {
		config.Web.Port = 8080
	}
	if config.Web.BindAddress == "" {
		config.Web.BindAddress = "0.0.0.0"
	}
	if config.Storage.MaxEvents == 0 {
		config.Storage.MaxEvents = 10000
	}
	if config.Logging.Level == "" {
		config.Logging.Level = "info"
	}
	if config.Logging.MaxSize == 0 {
		config.Logging.MaxSize = 10
	}
	if config.Logging.MaxBackups == 0 {
		config.Logging.MaxBackups = 3
	}
	if config.Logging.MaxAge == 0 {
		config.Logging.MaxAge = 28
	}

	return &config, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	switch c.Link.Kind {
	case "tcp":
		if c.Link.Address == "" {
			return fmt.Errorf("link address is required for tcp links")
		}
	case "serial":
		if c.Link.Port == "" {
			return fmt.Errorf("link port is required for serial links")
		}
		if c.Link.BaudRate <= 0 {
			return fmt.Errorf("invalid baud rate %d", c.Link.BaudRate)
		}
	default:
		return fmt.Errorf("unknown link kind %q (want tcp or serial)", c.Link.Kind)
	}

	if c.AutoModulation.Enabled && c.AutoModulation.AMFromMHz > c.AutoModulation.AMToMHz {
		c.AutoModulation.AMFromMHz, c.AutoModulation.AMToMHz =
			c.AutoModulation.AMToMHz, c.AutoModulation.AMFromMHz
	}
	if c.Hopping.DefaultDwellMs <= 0 {
		return fmt.Errorf("default dwell must be positive, got %d ms", c.Hopping.DefaultDwellMs)
	}

	return nil
}
