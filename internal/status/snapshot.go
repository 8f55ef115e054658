// internal/status/snapshot.go
package status

import "time"

// Snapshot is one decoded status record plus derived values.
// It is replaced wholesale every tick and never mutated after publication.
type Snapshot struct {
	Current              float64  `json:"current"`
	Voltage              float64  `json:"voltage"`
	Temperature          int      `json:"temperature"`
	TemperatureThreshold int      `json:"temperatureThreshold"`
	RemoteStatus         bool     `json:"remoteStatus"`
	Remote               bool     `json:"remote"`
	CurrentStatus        Fault    `json:"currentStatus"`
	Faults               []string `json:"faults"`
	Power                float64  `json:"power"`
	Resistance           float64  `json:"resistance"`

	// Time is seconds since the device was opened.
	Time float64   `json:"time"`
	At   time.Time `json:"-"`
}

// Properties are the static device properties read once at handshake.
type Properties struct {
	FirmwareVersion      string  `json:"FW_VERSION"`
	BoardRevision        string  `json:"BOARD_REVISION"`
	MaxCurrentDAC        float64 `json:"maxIdac"`
	MaxCurrentADC        float64 `json:"maxIadc"`
	MaxVoltageDAC        float64 `json:"maxVdac"`
	MaxVoltageADC        float64 `json:"maxVadc"`
	MaxPower             float64 `json:"MAX_POWER"`
	DVMInputResistance   int     `json:"DVM_INPUT_RESISTANCE"`
	TemperatureThreshold int     `json:"temperatureThreshold"`
	MaxTemperature       int     `json:"MAX_TEMPERATURE"`
	MinTemperature       int     `json:"MIN_TEMPERATURE"`
}
