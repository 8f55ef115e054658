// internal/status/encode.go
package status

import "math"

// Encode converts a Snapshot into the live part of a status block.
// Slot 11 is reserved and the name slots are left zero; see EncodeDeviceName.
// No IO. No side effects.
func Encode(s Snapshot, health uint16) []uint16 {
	regs := make([]uint16, SlotsPerDevice)

	regs[SlotHealthCode] = health
	regs[SlotFaultBits] = uint16(s.CurrentStatus)
	regs[SlotCurrent] = clampU16(s.Current * 1000)
	regs[SlotVoltage] = clampU16(s.Voltage * 1000)
	regs[SlotTemperature] = uint16(uint8(s.Temperature))
	regs[SlotTemperatureThreshold] = uint16(uint8(s.TemperatureThreshold))
	if s.Remote {
		regs[SlotRemote] = 1
	}

	p := clampU32(s.Power * 1000)
	regs[SlotPowerHi] = uint16(p >> 16)
	regs[SlotPowerLo] = uint16(p)

	r := clampU32(s.Resistance * 1000)
	regs[SlotResistanceHi] = uint16(r >> 16)
	regs[SlotResistanceLo] = uint16(r)

	return regs
}

// EncodeDeviceName packs up to 16 ASCII characters into 8 registers.
// Each register stores two ASCII bytes in big-endian order.
func EncodeDeviceName(name string) []uint16 {
	out := make([]uint16, SlotDeviceNameSlots)

	b := []byte(name)
	if len(b) > DeviceNameMaxChars {
		b = b[:DeviceNameMaxChars]
	}

	// sanitize to printable ASCII
	for i := 0; i < len(b); i++ {
		if b[i] < 0x20 || b[i] > 0x7E {
			b[i] = '?'
		}
	}

	for i := 0; i < DeviceNameMaxChars; i += 2 {
		var hi, lo byte
		if i < len(b) {
			hi = b[i]
		}
		if i+1 < len(b) {
			lo = b[i+1]
		}
		out[i/2] = uint16(hi)<<8 | uint16(lo)
	}

	return out
}

func clampU16(v float64) uint16 {
	v = math.Round(v)
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > math.MaxUint16:
		return math.MaxUint16
	}
	return uint16(v)
}

func clampU32(v float64) uint32 {
	v = math.Round(v)
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > math.MaxUint32:
		return math.MaxUint32
	}
	return uint32(v)
}
