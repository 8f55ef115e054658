// internal/protocol/command.go
package protocol

import (
	"errors"
	"fmt"
	"math"
)

// ErrProtocol marks malformed or mismatched device responses.
var ErrProtocol = errors.New("protocol: malformed response")

// ErrValidation marks arguments rejected before any I/O.
var ErrValidation = errors.New("protocol: invalid argument")

// Single-byte queries.
const (
	IdentifyQuery byte = 0x1F
	PropertyQuery byte = 0x1E
	PollByte      byte = 0x8F

	Identity   = "Mighty Watt"
	LineEnding = "\r\n"
)

// Header layout: bit 7 set, bits 5-6 payload length, bits 0-4 command id.
const (
	headerFlag     = 0x80
	headerLenShift = 5
	headerLenMask  = 0x03
	headerIDMask   = 0x1F

	u16Max = 1<<16 - 1
	u24Max = 1<<24 - 1

	// maxMilli is the largest milli-unit value a float64 holds exactly;
	// larger setpoints are rejected instead of wrapping.
	maxMilli = 1 << 53
)

// Mode is a setpoint command (constant current/voltage/power/resistance).
type Mode uint8

const (
	ModeCC Mode = 0
	ModeCV Mode = 1
	ModeCP Mode = 2
	ModeCR Mode = 3
)

// ids that are not setpoint modes
const (
	idTemperatureThreshold = 4
	idRemote               = 5
)

var modeWidth = map[Mode]int{
	ModeCC: 2,
	ModeCV: 2,
	ModeCP: 3,
	ModeCR: 3,
}

var modeNames = map[Mode]string{
	ModeCC: "cc",
	ModeCV: "cv",
	ModeCP: "cp",
	ModeCR: "cr",
}

func (m Mode) String() string {
	if n, ok := modeNames[m]; ok {
		return n
	}
	return fmt.Sprintf("mode(%d)", uint8(m))
}

// ParseMode maps "cc", "cv", "cp", "cr" to a Mode.
func ParseMode(s string) (Mode, error) {
	for m, n := range modeNames {
		if n == s {
			return m, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown mode %q", ErrValidation, s)
}

// Header returns the command header byte for id with an n-byte payload.
func Header(id uint8, n int) byte {
	return id | headerFlag | byte(n)<<headerLenShift
}

// Header returns the header byte for the mode.
func (m Mode) Header() byte {
	return Header(uint8(m), modeWidth[m])
}

// ToMilli converts a physical value to fixed-point milli-units.
// Halves round to even.
func ToMilli(v float64) int64 {
	return int64(math.RoundToEven(v * 1000))
}

// EncodeSetpoint encodes a setpoint command.
// Two-byte modes reject values that do not fit; three-byte modes keep the
// low 24 bits of the milli-unit value (values above 2^24-1 wrap). Values
// past 2^53 milli-units are ErrValidation in every mode.
func EncodeSetpoint(m Mode, v float64) ([]byte, error) {
	width, ok := modeWidth[m]
	if !ok {
		return nil, fmt.Errorf("%w: unknown mode %d", ErrValidation, uint8(m))
	}
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return nil, fmt.Errorf("%w: %s setpoint %v", ErrValidation, m, v)
	}

	if v*1000 > maxMilli {
		return nil, fmt.Errorf("%w: %s setpoint %v out of range", ErrValidation, m, v)
	}
	milli := ToMilli(v)

	switch width {
	case 2:
		if milli > u16Max {
			return nil, fmt.Errorf("%w: %s setpoint %v exceeds %d milli-units", ErrValidation, m, v, u16Max)
		}
		return []byte{m.Header(), byte(milli >> 8), byte(milli)}, nil
	default:
		return []byte{m.Header(), byte(milli >> 16 & 0xFF), byte(milli >> 8 & 0xFF), byte(milli & 0xFF)}, nil
	}
}

// EncodeRemote selects remote (true) or local (false) voltage sensing.
func EncodeRemote(remote bool) []byte {
	var b byte
	if remote {
		b = 1
	}
	return []byte{Header(idRemote, 1), b}
}

// EncodeTemperatureThreshold sets the overheat threshold (one byte).
func EncodeTemperatureThreshold(v float64) ([]byte, error) {
	if math.IsNaN(v) {
		return nil, fmt.Errorf("%w: temperature threshold NaN", ErrValidation)
	}
	t := math.RoundToEven(v)
	if t < 0 || t > 255 {
		return nil, fmt.Errorf("%w: temperature threshold %v out of range 0..255", ErrValidation, v)
	}
	return []byte{Header(idTemperatureThreshold, 1), byte(t)}, nil
}

// Command is a decoded outgoing command.
type Command struct {
	ID    uint8
	Mode  Mode
	Value float64 // physical units for setpoints, raw byte otherwise
	Raw   []byte
}

// IsSetpoint reports whether the command carries a CC/CV/CP/CR setpoint.
func (c Command) IsSetpoint() bool {
	_, ok := modeWidth[Mode(c.ID)]
	return ok
}

func (c Command) String() string {
	switch {
	case len(c.Raw) == 1 && c.Raw[0] == PollByte:
		return "poll"
	case c.IsSetpoint():
		return fmt.Sprintf("%s=%g", c.Mode, c.Value)
	case c.ID == idRemote:
		if c.Value != 0 {
			return "sensing=remote"
		}
		return "sensing=local"
	case c.ID == idTemperatureThreshold:
		return fmt.Sprintf("temperature-threshold=%g", c.Value)
	}
	return fmt.Sprintf("% x", c.Raw)
}

// DecodeCommand parses an encoded command back into its parts.
func DecodeCommand(b []byte) (Command, error) {
	if len(b) == 0 {
		return Command{}, fmt.Errorf("%w: empty command", ErrProtocol)
	}
	if len(b) == 1 && b[0] == PollByte {
		return Command{ID: PollByte & headerIDMask, Raw: b}, nil
	}

	h := b[0]
	if h&headerFlag == 0 {
		return Command{}, fmt.Errorf("%w: header 0x%02x has no command flag", ErrProtocol, h)
	}
	n := int(h >> headerLenShift & headerLenMask)
	if len(b) != 1+n {
		return Command{}, fmt.Errorf("%w: header 0x%02x wants %d payload bytes, got %d", ErrProtocol, h, n, len(b)-1)
	}

	var raw uint32
	for _, v := range b[1:] {
		raw = raw<<8 | uint32(v)
	}

	c := Command{ID: h & headerIDMask, Raw: b}
	if c.IsSetpoint() {
		c.Mode = Mode(c.ID)
		c.Value = float64(raw) / 1000
		return c, nil
	}
	c.Value = float64(raw)
	return c, nil
}
