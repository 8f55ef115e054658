// internal/device/config.go
package device

import (
	"time"

	"github.com/tamzrod/mightywatt/internal/config"
	"github.com/tamzrod/mightywatt/internal/handshake"
	"github.com/tamzrod/mightywatt/internal/poller"
	"github.com/tamzrod/mightywatt/internal/transport"
)

// Config is the per-instance device configuration.
type Config struct {
	Port        string
	BaudRate    int
	ReadTimeout time.Duration
	UpdateRate  float64 // Hz
	StaleAfter  time.Duration
	Handshake   handshake.Config
}

func (c Config) withDefaults() Config {
	if c.BaudRate == 0 {
		c.BaudRate = transport.DefaultBaudRate
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = transport.DefaultReadTimeout
	}
	if c.UpdateRate == 0 {
		c.UpdateRate = poller.DefaultRate
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = DefaultStaleAfter
	}
	if c.Handshake.LineTimeout <= 0 {
		c.Handshake.LineTimeout = c.ReadTimeout
	}
	return c
}

// FromConfig maps a normalized config section onto a device Config.
func FromConfig(dc config.DeviceConfig) Config {
	return Config{
		Port:        dc.Port,
		BaudRate:    dc.BaudRate,
		ReadTimeout: time.Duration(dc.ReadTimeoutMs) * time.Millisecond,
		UpdateRate:  dc.UpdateRateHz,
		StaleAfter:  time.Duration(dc.StaleAfterMs) * time.Millisecond,
		Handshake: handshake.Config{
			IdentifyTries:   dc.IdentifyTries,
			PropertiesTries: dc.PropertiesTries,
			RetryDelay:      time.Duration(dc.RetryDelayMs) * time.Millisecond,
		},
	}
}
