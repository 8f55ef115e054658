// internal/mirror/block_writer.go
package mirror

import (
	"fmt"

	"github.com/tamzrod/mightywatt/internal/status"
)

// blockWriter owns one device status block on the endpoint.
// The first write, and the first write after any failure, re-asserts the
// whole block including the device name. Otherwise only changed live slots
// are rewritten.
type blockWriter struct {
	cli    endpointClient
	unitID uint8
	base   uint16

	needFull bool
	last     []uint16
	nameRegs []uint16
}

func newBlockWriter(cli endpointClient, unitID uint8, baseSlot uint16, deviceName string) *blockWriter {
	return &blockWriter{
		cli:      cli,
		unitID:   unitID,
		base:     baseSlot * status.SlotsPerDevice,
		needFull: true,
		nameRegs: status.EncodeDeviceName(deviceName),
	}
}

// write delivers one encoded block (as produced by status.Encode).
func (w *blockWriter) write(regs []uint16) error {
	if w.needFull {
		full := make([]uint16, status.SlotsPerDevice)
		copy(full, regs[:status.SlotLiveEnd+1])
		copy(full[status.SlotDeviceNameStart:], w.nameRegs)

		if err := w.cli.WriteRegisters(w.unitID, w.base, full); err != nil {
			return fmt.Errorf("mirror: full block write failed: %w", err)
		}

		w.needFull = false
		w.last = full
		return nil
	}

	// smallest contiguous range covering every changed live slot
	first, lastIdx := -1, -1
	for i := 0; i <= status.SlotLiveEnd; i++ {
		if regs[i] != w.last[i] {
			if first < 0 {
				first = i
			}
			lastIdx = i
		}
	}
	if first < 0 {
		return nil
	}

	if err := w.cli.WriteRegisters(w.unitID, w.base+uint16(first), regs[first:lastIdx+1]); err != nil {
		// any failure introduces doubt; re-assert on next success
		w.needFull = true
		return fmt.Errorf("mirror: slots %d..%d write failed: %w", first, lastIdx, err)
	}

	copy(w.last[first:], regs[first:lastIdx+1])
	return nil
}
