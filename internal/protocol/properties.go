// internal/protocol/properties.go
package protocol

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tamzrod/mightywatt/internal/status"
)

// PropertyLines is the number of lines in a property query reply.
const PropertyLines = 11

// IsIdentity reports whether line is the exact identify reply.
func IsIdentity(line string) bool {
	return line == Identity+LineEnding
}

// ParseProperties parses the positional property reply.
// Lines may still carry their CRLF terminator.
func ParseProperties(lines []string) (status.Properties, error) {
	if len(lines) != PropertyLines {
		return status.Properties{}, fmt.Errorf("%w: property reply has %d lines, want %d", ErrProtocol, len(lines), PropertyLines)
	}

	p := parser{lines: lines}
	props := status.Properties{
		FirmwareVersion:      p.text(0),
		BoardRevision:        p.text(1),
		MaxCurrentDAC:        p.milli(2),
		MaxCurrentADC:        p.milli(3),
		MaxVoltageDAC:        p.milli(4),
		MaxVoltageADC:        p.milli(5),
		MaxPower:             p.milli(6),
		DVMInputResistance:   p.integer(7),
		TemperatureThreshold: p.integer(8),
		MaxTemperature:       p.integer(9),
		MinTemperature:       p.integer(10),
	}
	if p.err != nil {
		return status.Properties{}, p.err
	}
	return props, nil
}

// parser keeps the first conversion error.
type parser struct {
	lines []string
	err   error
}

func (p *parser) text(i int) string {
	return strings.TrimSpace(p.lines[i])
}

func (p *parser) integer(i int) int {
	s := strings.TrimSpace(p.lines[i])
	v, err := strconv.Atoi(s)
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("%w: property line %d: %q is not an integer", ErrProtocol, i, s)
	}
	return v
}

func (p *parser) milli(i int) float64 {
	return float64(p.integer(i)) / 1000
}
