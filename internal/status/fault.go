// internal/status/fault.go
package status

// Fault is the device status byte. Bits are independent flags.
type Fault uint8

const (
	Ready           Fault = 0
	CurrentOverload Fault = 1
	VoltageOverload Fault = 2
	PowerOverload   Fault = 4
	Overheat        Fault = 8
)

var faultNames = []struct {
	bit  Fault
	name string
}{
	{CurrentOverload, "CURRENT_OVERLOAD"},
	{VoltageOverload, "VOLTAGE_OVERLOAD"},
	{PowerOverload, "POWER_OVERLOAD"},
	{Overheat, "OVERHEAT"},
}

// Has reports whether every bit of flag is set.
func (f Fault) Has(flag Fault) bool {
	return flag != Ready && f&flag == flag
}

// Names lists the set conditions, or READY when none is set.
// Bits without a name are skipped.
func (f Fault) Names() []string {
	if f == Ready {
		return []string{"READY"}
	}
	var out []string
	for _, fn := range faultNames {
		if f&fn.bit != 0 {
			out = append(out, fn.name)
		}
	}
	return out
}
