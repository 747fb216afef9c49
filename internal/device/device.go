package device

import (
	"encoding/hex"
	"fmt"

	"github.com/hatlabs/halpid/internal/hardware"
	"github.com/hatlabs/halpid/internal/protocol"
)

// Device is the typed facade (C3) over hardware.Transport. It is not
// safe for concurrent use on its own — callers must serialize access
// through a single owner (see Owner in this package), matching the
// single-arbiter discipline spec.md requires of the I²C bus.
//
// Every successful primitive call is, as a side effect of the
// controller firmware, an implicit feed of the hardware watchdog. The
// state machine relies on this: it does not call FeedWatchdog
// explicitly during normal polling.
type Device struct {
	t hardware.Transport

	hardwareVersion *protocol.Version
	firmwareVersion *protocol.Version
}

// New wraps t in a Device facade.
func New(t hardware.Transport) *Device {
	return &Device{t: t}
}

// Close releases the underlying transport.
func (d *Device) Close() error {
	return d.t.Close()
}

// GetMeasurements performs the combined read spec.md describes: five
// analog words plus the watchdog-elapsed byte plus the state byte. Any
// single sub-read failing discards the whole result — partial
// measurements are never returned.
func (d *Device) GetMeasurements() (Measurements, error) {
	dcin, err := d.readAnalogWord(protocol.RegDCInVoltage, protocol.DCInFullScaleVolts)
	if err != nil {
		return Measurements{}, fmt.Errorf("device: get measurements: %w", err)
	}
	vcap, err := d.readAnalogWord(protocol.RegSupercapVoltage, protocol.SupercapFullScaleVolts)
	if err != nil {
		return Measurements{}, fmt.Errorf("device: get measurements: %w", err)
	}
	iin, err := d.readAnalogWord(protocol.RegInputCurrent, protocol.InputCurrentFullScaleA)
	if err != nil {
		return Measurements{}, fmt.Errorf("device: get measurements: %w", err)
	}
	mcuK, err := d.readTempWord(protocol.RegMCUTemp)
	if err != nil {
		return Measurements{}, fmt.Errorf("device: get measurements: %w", err)
	}
	pcbK, err := d.readTempWord(protocol.RegPCBTemp)
	if err != nil {
		return Measurements{}, fmt.Errorf("device: get measurements: %w", err)
	}
	elapsedRaw, err := d.t.ReadByte(protocol.RegWatchdogElapsed)
	if err != nil {
		return Measurements{}, fmt.Errorf("device: get measurements: %w", err)
	}
	state, err := d.GetPowerState()
	if err != nil {
		return Measurements{}, fmt.Errorf("device: get measurements: %w", err)
	}

	return Measurements{
		DCInVoltage:     dcin,
		SupercapVoltage: vcap,
		InputCurrent:    iin,
		MCUTempCelsius:  protocol.KelvinToCelsius(mcuK),
		PCBTempCelsius:  protocol.KelvinToCelsius(pcbK),
		PowerState:      state,
		WatchdogElapsed: float64(elapsedRaw) * 0.1,
	}, nil
}

// GetPowerState reads the current power state; an out-of-range byte is
// a protocol error, surfaced immediately (not retried).
func (d *Device) GetPowerState() (protocol.PowerState, error) {
	b, err := d.t.ReadByte(protocol.RegPowerState)
	if err != nil {
		return 0, fmt.Errorf("device: get power state: %w", err)
	}
	state, err := protocol.PowerStateFromByte(b)
	if err != nil {
		return 0, fmt.Errorf("device: get power state: %w", err)
	}
	return state, nil
}

// SetWatchdogTimeout arms the hardware watchdog; 0 disables it.
func (d *Device) SetWatchdogTimeout(ms uint16) error {
	if err := d.t.WriteBytes(protocol.RegWatchdogTimeout, protocol.EncodeWord(ms)); err != nil {
		return fmt.Errorf("device: set watchdog timeout: %w", err)
	}
	return nil
}

// GetWatchdogTimeout reads back the armed timeout, in ms.
func (d *Device) GetWatchdogTimeout() (uint16, error) {
	b, err := d.t.ReadBytes(protocol.RegWatchdogTimeout, 2)
	if err != nil {
		return 0, fmt.Errorf("device: get watchdog timeout: %w", err)
	}
	v, err := protocol.DecodeWord(b)
	if err != nil {
		return 0, fmt.Errorf("device: get watchdog timeout: %w", err)
	}
	return v, nil
}

// FeedWatchdog explicitly resets the watchdog elapsed counter. Normal
// polling never needs this — any successful I²C call already feeds it
// — but it is exposed for callers that want to be explicit (e.g. tests,
// or a future poll path with no other register traffic).
func (d *Device) FeedWatchdog() error {
	if err := d.t.WriteByte(protocol.RegWatchdogElapsed, 0x01); err != nil {
		return fmt.Errorf("device: feed watchdog: %w", err)
	}
	return nil
}

// SetPowerOnThreshold writes the power-on threshold, in volts.
func (d *Device) SetPowerOnThreshold(volts float64) error {
	return d.writeAnalogWord(protocol.RegPowerOnThresh, volts, protocol.SupercapFullScaleVolts)
}

// GetPowerOnThreshold reads the power-on threshold, in volts.
func (d *Device) GetPowerOnThreshold() (float64, error) {
	return d.readAnalogWord(protocol.RegPowerOnThresh, protocol.SupercapFullScaleVolts)
}

// SetSoloOffThreshold writes the solo-poweroff threshold, in volts.
func (d *Device) SetSoloOffThreshold(volts float64) error {
	return d.writeAnalogWord(protocol.RegSoloOffThresh, volts, protocol.SupercapFullScaleVolts)
}

// GetSoloOffThreshold reads the solo-poweroff threshold, in volts.
func (d *Device) GetSoloOffThreshold() (float64, error) {
	return d.readAnalogWord(protocol.RegSoloOffThresh, protocol.SupercapFullScaleVolts)
}

// SetUSBPortState masks value to the lower 4 bits before writing —
// higher bits are not defined on the wire.
func (d *Device) SetUSBPortState(bits byte) error {
	if err := d.t.WriteByte(protocol.RegPowerControl, bits&0x0F); err != nil {
		return fmt.Errorf("device: set usb port state: %w", err)
	}
	return nil
}

// GetUSBPortState reads the raw 4-bit USB power bitmask.
func (d *Device) GetUSBPortState() (byte, error) {
	b, err := d.t.ReadByte(protocol.RegPowerControl)
	if err != nil {
		return 0, fmt.Errorf("device: get usb port state: %w", err)
	}
	return b & 0x0F, nil
}

// GetUSBPorts reads and decodes the USB bitmask into named fields.
func (d *Device) GetUSBPorts() (USBPorts, error) {
	bits, err := d.GetUSBPortState()
	if err != nil {
		return USBPorts{}, err
	}
	return usbPortsFromBits(bits), nil
}

// SetUSBPorts encodes and writes named USB port fields.
func (d *Device) SetUSBPorts(p USBPorts) error {
	return d.SetUSBPortState(usbBitsFromPorts(p))
}

// RequestShutdown writes the fixed request value to the shutdown
// register. No other value is defined on the wire.
func (d *Device) RequestShutdown() error {
	if err := d.t.WriteByte(protocol.RegShutdownReq, protocol.RequestValue); err != nil {
		return fmt.Errorf("device: request shutdown: %w", err)
	}
	return nil
}

// RequestStandby writes the fixed request value to the standby
// register.
func (d *Device) RequestStandby() error {
	if err := d.t.WriteByte(protocol.RegStandbyReq, protocol.RequestValue); err != nil {
		return fmt.Errorf("device: request standby: %w", err)
	}
	return nil
}

// GetHardwareVersion returns the hardware version, caching it after the
// first successful read — the hardware version cannot change within a
// process lifetime, the same reasoning spec.md gives for the firmware
// version cache.
func (d *Device) GetHardwareVersion() (protocol.Version, error) {
	if d.hardwareVersion != nil {
		return *d.hardwareVersion, nil
	}
	b, err := d.t.ReadBytes(protocol.RegHardwareVersion, 4)
	if err != nil {
		return protocol.Version{}, fmt.Errorf("device: get hardware version: %w", err)
	}
	v, err := protocol.VersionFromBytes(b)
	if err != nil {
		return protocol.Version{}, fmt.Errorf("device: get hardware version: %w", err)
	}
	d.hardwareVersion = &v
	return v, nil
}

// GetFirmwareVersion returns the firmware version, caching it after the
// first successful read. A firmware version can only change via a DFU
// session this daemon orchestrates itself, so the cache is safe for the
// lifetime of the process per spec.md's Design Notes.
func (d *Device) GetFirmwareVersion() (protocol.Version, error) {
	if d.firmwareVersion != nil {
		return *d.firmwareVersion, nil
	}
	b, err := d.t.ReadBytes(protocol.RegFirmwareVersion, 4)
	if err != nil {
		return protocol.Version{}, fmt.Errorf("device: get firmware version: %w", err)
	}
	v, err := protocol.VersionFromBytes(b)
	if err != nil {
		return protocol.Version{}, fmt.Errorf("device: get firmware version: %w", err)
	}
	d.firmwareVersion = &v
	return v, nil
}

// GetDeviceID returns the controller's 8-byte identifier, hex-encoded.
func (d *Device) GetDeviceID() (string, error) {
	b, err := d.t.ReadBytes(protocol.RegDeviceID, 8)
	if err != nil {
		return "", fmt.Errorf("device: get device id: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// SetLEDBrightness writes the LED brightness register (0-255).
func (d *Device) SetLEDBrightness(v byte) error {
	if err := d.t.WriteByte(protocol.RegLEDBrightness, v); err != nil {
		return fmt.Errorf("device: set led brightness: %w", err)
	}
	return nil
}

// GetLEDBrightness reads the LED brightness register.
func (d *Device) GetLEDBrightness() (byte, error) {
	b, err := d.t.ReadByte(protocol.RegLEDBrightness)
	if err != nil {
		return 0, fmt.Errorf("device: get led brightness: %w", err)
	}
	return b, nil
}

// SetAutoRestart writes the auto-restart flag.
func (d *Device) SetAutoRestart(enabled bool) error {
	var v byte
	if enabled {
		v = 1
	}
	if err := d.t.WriteByte(protocol.RegAutoRestart, v); err != nil {
		return fmt.Errorf("device: set auto restart: %w", err)
	}
	return nil
}

// GetAutoRestart reads the auto-restart flag.
func (d *Device) GetAutoRestart() (bool, error) {
	b, err := d.t.ReadByte(protocol.RegAutoRestart)
	if err != nil {
		return false, fmt.Errorf("device: get auto restart: %w", err)
	}
	return b != 0, nil
}

// SetSoloDepletingTimeout writes the solo-depleting timeout, in ms.
func (d *Device) SetSoloDepletingTimeout(ms uint32) error {
	if err := d.t.WriteBytes(protocol.RegSoloDepleteTO, protocol.EncodeU32(ms)); err != nil {
		return fmt.Errorf("device: set solo depleting timeout: %w", err)
	}
	return nil
}

// GetSoloDepletingTimeout reads the solo-depleting timeout, in ms.
func (d *Device) GetSoloDepletingTimeout() (uint32, error) {
	b, err := d.t.ReadBytes(protocol.RegSoloDepleteTO, 4)
	if err != nil {
		return 0, fmt.Errorf("device: get solo depleting timeout: %w", err)
	}
	v, err := protocol.DecodeU32(b)
	if err != nil {
		return 0, fmt.Errorf("device: get solo depleting timeout: %w", err)
	}
	return v, nil
}

// GetThresholds reads every register GET /config surfaces, in the
// caller-facing units (seconds, volts).
func (d *Device) GetThresholds() (Thresholds, error) {
	wdt, err := d.GetWatchdogTimeout()
	if err != nil {
		return Thresholds{}, err
	}
	pOn, err := d.GetPowerOnThreshold()
	if err != nil {
		return Thresholds{}, err
	}
	pOff, err := d.GetSoloOffThreshold()
	if err != nil {
		return Thresholds{}, err
	}
	led, err := d.GetLEDBrightness()
	if err != nil {
		return Thresholds{}, err
	}
	auto, err := d.GetAutoRestart()
	if err != nil {
		return Thresholds{}, err
	}
	depl, err := d.GetSoloDepletingTimeout()
	if err != nil {
		return Thresholds{}, err
	}
	return Thresholds{
		WatchdogTimeoutSeconds: float64(wdt) / 1000.0,
		PowerOnThresholdVolts:  pOn,
		SoloOffThresholdVolts:  pOff,
		LEDBrightness:          led,
		AutoRestart:            auto,
		SoloDepletingTimeout:   float64(depl) / 1000.0,
	}, nil
}

func (d *Device) readAnalogWord(reg byte, scale float64) (float64, error) {
	b, err := d.t.ReadBytes(reg, 2)
	if err != nil {
		return 0, err
	}
	w, err := protocol.DecodeWord(b)
	if err != nil {
		return 0, err
	}
	return protocol.AnalogWordToFloat(w, scale), nil
}

func (d *Device) writeAnalogWord(reg byte, value, scale float64) error {
	w := protocol.FloatToAnalogWord(value, scale)
	if err := d.t.WriteBytes(reg, protocol.EncodeWord(w)); err != nil {
		return fmt.Errorf("device: write %#02x: %w", reg, err)
	}
	return nil
}

func (d *Device) readTempWord(reg byte) (float64, error) {
	b, err := d.t.ReadBytes(reg, 2)
	if err != nil {
		return 0, err
	}
	w, err := protocol.DecodeWord(b)
	if err != nil {
		return 0, err
	}
	return protocol.AnalogWordToKelvin(w), nil
}
