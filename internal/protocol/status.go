// internal/protocol/status.go
package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/tamzrod/mightywatt/internal/status"
)

// record is the wire layout of a status update (big-endian).
type record struct {
	CurrentMilliamps     uint16
	VoltageMillivolts    uint16
	Temperature          uint8
	TemperatureThreshold uint8
	RemoteFlags          uint8
	StatusBits           uint8
}

// RecordSize is the exact length of a status update.
var RecordSize = binary.Size(record{})

const remoteFlag = 0x01

// DecodeStatus decodes one status record.
// Resistance falls back to dvmInputResistance when current is exactly zero.
// The caller stamps At and Time.
func DecodeStatus(raw []byte, dvmInputResistance int) (status.Snapshot, error) {
	if len(raw) != RecordSize {
		return status.Snapshot{}, fmt.Errorf("%w: status record is %d bytes, want %d", ErrProtocol, len(raw), RecordSize)
	}

	var r record
	if err := binary.Read(bytes.NewReader(raw), binary.BigEndian, &r); err != nil {
		return status.Snapshot{}, fmt.Errorf("%w: status record: %v", ErrProtocol, err)
	}

	s := status.Snapshot{
		Current:              float64(r.CurrentMilliamps) / 1000,
		Voltage:              float64(r.VoltageMillivolts) / 1000,
		Temperature:          int(r.Temperature),
		TemperatureThreshold: int(r.TemperatureThreshold),
		RemoteStatus:         r.RemoteFlags&remoteFlag != 0,
		CurrentStatus:        status.Fault(r.StatusBits),
	}
	s.Remote = s.RemoteStatus
	s.Faults = s.CurrentStatus.Names()
	s.Power = s.Voltage * s.Current
	if s.Current != 0 {
		s.Resistance = s.Voltage / s.Current
	} else {
		s.Resistance = float64(dvmInputResistance)
	}

	return s, nil
}

// EncodeStatus is the inverse of DecodeStatus for the raw fields.
// Device simulators and tests use it to build replies.
func EncodeStatus(currentMilliamps, voltageMillivolts uint16, temperature, threshold uint8, remote bool, bits status.Fault) []byte {
	r := record{
		CurrentMilliamps:     currentMilliamps,
		VoltageMillivolts:    voltageMillivolts,
		Temperature:          temperature,
		TemperatureThreshold: threshold,
		StatusBits:           uint8(bits),
	}
	if remote {
		r.RemoteFlags = remoteFlag
	}

	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.BigEndian, r)
	return buf.Bytes()
}
