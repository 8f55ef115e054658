// internal/config/normalize.go
package config

// Defaults applied by Normalize.
const (
	DefaultBaudRate      = 115200
	DefaultReadTimeoutMs = 100
	DefaultUpdateRateHz  = 10
	DefaultStaleAfterMs  = 1000
	DefaultTries         = 20
	DefaultRetryDelayMs  = 100
	DefaultLogLevel      = "info"
	DefaultLogFormat     = "text"
	DefaultLogOutput     = "stdout"
	DefaultMirrorTimeout = 1000

	deviceNameMaxChars = 16
)

// Normalize applies post-validation normalization.
// It is allowed to mutate configuration.
// It MUST be called only after Validate().
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}

	d := &cfg.Device
	if d.BaudRate == 0 {
		d.BaudRate = DefaultBaudRate
	}
	if d.ReadTimeoutMs == 0 {
		d.ReadTimeoutMs = DefaultReadTimeoutMs
	}
	if d.UpdateRateHz == 0 {
		d.UpdateRateHz = DefaultUpdateRateHz
	}
	if d.StaleAfterMs == 0 {
		d.StaleAfterMs = DefaultStaleAfterMs
	}
	if d.IdentifyTries == 0 {
		d.IdentifyTries = DefaultTries
	}
	if d.PropertiesTries == 0 {
		d.PropertiesTries = DefaultTries
	}
	if d.RetryDelayMs == 0 {
		d.RetryDelayMs = DefaultRetryDelayMs
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = DefaultLogOutput
	}

	// ------------------------------------------------------------
	// MIRROR NORMALIZATION (OPT-IN)
	// ------------------------------------------------------------

	if !cfg.Mirror.Enabled() {
		return
	}

	if cfg.Mirror.TimeoutMs == 0 {
		cfg.Mirror.TimeoutMs = DefaultMirrorTimeout
	}

	// device_name is ASCII (validated); keep at most 16 characters
	if len(cfg.Mirror.DeviceName) > deviceNameMaxChars {
		cfg.Mirror.DeviceName = cfg.Mirror.DeviceName[:deviceNameMaxChars]
	}
}

// Default returns a normalized config for port with no file behind it.
func Default(port string) *Config {
	cfg := &Config{Device: DeviceConfig{Port: port}}
	Normalize(cfg)
	return cfg
}
