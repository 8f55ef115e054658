// internal/config/validate.go
package config

import (
	"fmt"
	"math"

	"github.com/tamzrod/mightywatt/internal/status"
)

// Rate limits mirrored from the poller: strictly above 1.2 Hz, period >= 5ms.
const (
	minUpdateRateHz = 1.2
	maxUpdateRateHz = 200
)

// Validate checks configuration correctness.
// It performs declarative validation only; zero values mean "default".
// It MUST NOT mutate configuration.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config: nil config")
	}

	// ------------------------------------------------------------
	// DEVICE
	// ------------------------------------------------------------

	d := cfg.Device

	if d.Port == "" {
		return fmt.Errorf("device: port is required")
	}
	if d.BaudRate < 0 {
		return fmt.Errorf("device: baud_rate %d must be positive", d.BaudRate)
	}
	if d.ReadTimeoutMs < 0 {
		return fmt.Errorf("device: read_timeout_ms %d must not be negative", d.ReadTimeoutMs)
	}
	if d.UpdateRateHz != 0 {
		if math.IsNaN(d.UpdateRateHz) || d.UpdateRateHz <= minUpdateRateHz || d.UpdateRateHz > maxUpdateRateHz {
			return fmt.Errorf(
				"device: update_rate_hz %v must be above %v and at most %v",
				d.UpdateRateHz,
				minUpdateRateHz,
				maxUpdateRateHz,
			)
		}
	}
	if d.StaleAfterMs < 0 {
		return fmt.Errorf("device: stale_after_ms %d must not be negative", d.StaleAfterMs)
	}
	if d.IdentifyTries < 0 || d.PropertiesTries < 0 {
		return fmt.Errorf("device: handshake tries must not be negative")
	}
	if d.RetryDelayMs < 0 {
		return fmt.Errorf("device: retry_delay_ms %d must not be negative", d.RetryDelayMs)
	}

	// ------------------------------------------------------------
	// LOG
	// ------------------------------------------------------------

	switch cfg.Log.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("log: format %q must be text or json", cfg.Log.Format)
	}
	switch cfg.Log.Output {
	case "", "stdout":
	case "file":
		if cfg.Log.FilePath == "" {
			return fmt.Errorf("log: output is file but file_path is empty")
		}
	default:
		return fmt.Errorf("log: output %q must be stdout or file", cfg.Log.Output)
	}

	// ------------------------------------------------------------
	// MIRROR (OPT-IN)
	// ------------------------------------------------------------

	m := cfg.Mirror

	// device_name sanity (ASCII only)
	for i := 0; i < len(m.DeviceName); i++ {
		if m.DeviceName[i] > 0x7F {
			return fmt.Errorf("mirror: device_name must contain ASCII characters only")
		}
	}

	if !m.Enabled() {
		return nil
	}

	if m.TimeoutMs < 0 {
		return fmt.Errorf("mirror: timeout_ms %d must not be negative", m.TimeoutMs)
	}

	// the status block must fit the 16-bit address space
	if (uint32(m.BaseSlot)+1)*status.SlotsPerDevice > 0x10000 {
		return fmt.Errorf("mirror: base_slot %d puts the status block past address 65535", m.BaseSlot)
	}

	return nil
}
