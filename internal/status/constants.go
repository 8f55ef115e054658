// internal/status/constants.go
package status

// Status block layout constants for the register mirror.
// These values define the block layout and MUST NOT be configurable.

// ---- BLOCK GEOMETRY ----

// SlotsPerDevice is the fixed number of register slots per device.
const SlotsPerDevice = 20

// ---- SLOT INDICES ----

// SlotHealthCode holds the link health state.
const SlotHealthCode = 0

// SlotFaultBits holds the raw device status byte.
const SlotFaultBits = 1

// SlotCurrent holds current in mA.
const SlotCurrent = 2

// SlotVoltage holds voltage in mV.
const SlotVoltage = 3

// SlotTemperature holds the device temperature.
const SlotTemperature = 4

// SlotTemperatureThreshold holds the overheat threshold.
const SlotTemperatureThreshold = 5

// SlotRemote is 1 when remote sensing is active.
const SlotRemote = 6

// SlotPowerHi and SlotPowerLo hold power in mW as a big-endian uint32.
const SlotPowerHi = 7
const SlotPowerLo = 8

// SlotResistanceHi and SlotResistanceLo hold resistance in mOhm as a big-endian uint32.
const SlotResistanceHi = 9
const SlotResistanceLo = 10

// SlotLiveEnd is the last slot rewritten on every update (inclusive).
const SlotLiveEnd = SlotResistanceLo

// ---- DEVICE NAME ----

// SlotDeviceNameStart is the first slot used for the device name.
// Device name is always placed at the END of the status block.
const SlotDeviceNameStart = 12

// SlotDeviceNameSlots is the number of slots reserved for the device name.
const SlotDeviceNameSlots = 8

// SlotDeviceNameEnd is the last slot used for the device name (inclusive).
const SlotDeviceNameEnd = SlotDeviceNameStart + SlotDeviceNameSlots - 1

// ---- LIMITS ----

// DeviceNameMaxChars is the maximum number of ASCII characters stored for device name.
const DeviceNameMaxChars = 16

// ---- HEALTH CODES ----

// HealthUnknown represents an unknown or boot state.
const HealthUnknown uint16 = 0

// HealthOK represents a healthy link.
const HealthOK uint16 = 1

// HealthError represents a failed poll tick.
const HealthError uint16 = 2

// HealthStale represents a stale data state.
const HealthStale uint16 = 3
