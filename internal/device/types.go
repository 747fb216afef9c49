// Package device implements the typed facade over the I²C transport:
// measurements, versions, thresholds, watchdog control, and the
// shutdown/standby/USB operations the state machine and HTTP control
// plane both call through a single owner.
package device

import "github.com/hatlabs/halpid/internal/protocol"

// Measurements is one combined snapshot read from the controller.
// Temperatures are reported in Celsius at this layer; the wire format
// is Kelvin-scaled analog words (see protocol.AnalogWordToKelvin).
type Measurements struct {
	DCInVoltage      float64
	SupercapVoltage  float64
	InputCurrent     float64
	MCUTempCelsius   float64
	PCBTempCelsius   float64
	PowerState       protocol.PowerState
	WatchdogElapsed  float64 // seconds
}

// Thresholds is the controller-side configuration surfaced through
// GET/PUT /config — distinct from the daemon's own Config record (see
// spec's Design Notes: "Do not unify them").
type Thresholds struct {
	WatchdogTimeoutSeconds float64
	PowerOnThresholdVolts  float64
	SoloOffThresholdVolts  float64
	LEDBrightness          byte
	AutoRestart            bool
	SoloDepletingTimeout   float64 // seconds
}

// USBPorts is the 4-bit USB power bitmask decoded into named fields.
type USBPorts struct {
	Port0, Port1, Port2, Port3 bool
}

func usbPortsFromBits(bits byte) USBPorts {
	return USBPorts{
		Port0: bits&0x01 != 0,
		Port1: bits&0x02 != 0,
		Port2: bits&0x04 != 0,
		Port3: bits&0x08 != 0,
	}
}

func usbBitsFromPorts(p USBPorts) byte {
	var bits byte
	if p.Port0 {
		bits |= 0x01
	}
	if p.Port1 {
		bits |= 0x02
	}
	if p.Port2 {
		bits |= 0x04
	}
	if p.Port3 {
		bits |= 0x08
	}
	return bits
}
