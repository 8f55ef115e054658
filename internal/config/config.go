// internal/config/config.go
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Device  DeviceConfig  `yaml:"device"`
	HTTP    HTTPConfig    `yaml:"http"`
	Log     LogConfig     `yaml:"log"`
	Metrics MetricsConfig `yaml:"metrics"`
	Mirror  MirrorConfig  `yaml:"mirror"`
}

// ---- DEVICE ----

type DeviceConfig struct {
	Port          string  `yaml:"port"`
	BaudRate      int     `yaml:"baud_rate"`
	ReadTimeoutMs int     `yaml:"read_timeout_ms"`
	UpdateRateHz  float64 `yaml:"update_rate_hz"`
	StaleAfterMs  int     `yaml:"stale_after_ms"`

	// Handshake retry policy
	IdentifyTries   int `yaml:"identify_tries"`
	PropertiesTries int `yaml:"properties_tries"`
	RetryDelayMs    int `yaml:"retry_delay_ms"`
}

// ---- HTTP ----

type HTTPConfig struct {
	Listen string `yaml:"listen"` // empty disables the HTTP front end
}

// ---- LOG ----

type LogConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"` // text | json
	Output   string `yaml:"output"` // stdout | file
	FilePath string `yaml:"file_path"`
}

// ---- METRICS ----

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// ---- MIRROR (optional, opt-in) ----

type MirrorConfig struct {
	Endpoint   string `yaml:"endpoint"` // empty disables the mirror
	UnitID     uint8  `yaml:"unit_id"`
	BaseSlot   uint16 `yaml:"base_slot"`
	DeviceName string `yaml:"device_name"`
	TimeoutMs  int    `yaml:"timeout_ms"`
}

// Enabled reports whether the register mirror is configured.
func (m MirrorConfig) Enabled() bool {
	return m.Endpoint != ""
}

// Load reads a YAML config file.
// It does not validate or apply defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	return &cfg, nil
}
