// Package protocol defines the wire contract of the power controller's
// I²C register map: addresses, widths, analog scaling, and the enum
// byte encodings used by the firmware.
package protocol

// Register addresses, per the controller's register map.
const (
	RegHardwareVersion byte = 0x03
	RegFirmwareVersion byte = 0x04
	RegDeviceID        byte = 0x05
	RegPowerControl    byte = 0x10
	RegWatchdogTimeout byte = 0x12
	RegPowerOnThresh   byte = 0x13
	RegSoloOffThresh   byte = 0x14
	RegPowerState      byte = 0x15
	RegWatchdogElapsed byte = 0x16
	RegLEDBrightness   byte = 0x17
	RegAutoRestart     byte = 0x18
	RegSoloDepleteTO   byte = 0x19
	RegDCInVoltage     byte = 0x20
	RegSupercapVoltage byte = 0x21
	RegInputCurrent    byte = 0x22
	RegMCUTemp         byte = 0x23
	RegPCBTemp         byte = 0x24
	RegShutdownReq     byte = 0x30
	RegStandbyReq      byte = 0x31
	RegDFUStart        byte = 0x40
	RegDFUUploadBlock  byte = 0x41
	RegDFUCommit       byte = 0x42
	RegDFUAbort        byte = 0x43
	RegDFUState        byte = 0x44
	RegDFUError        byte = 0x45
)

// RequestValue is the only value that may be written to the shutdown and
// standby request registers; spec leaves all other values unspecified.
const RequestValue byte = 0x01

// DFUActionValue is the fixed payload for the DFU commit and abort
// registers; the controller only cares that the register was written,
// but the wire contract fixes the value at 0x00 (confirmed in
// original_source/halpid/src/i2c/dfu.rs — not 0x01 like the
// shutdown/standby request registers).
const DFUActionValue byte = 0x00

// FlashBlockSize is the maximum payload size of a single DFU block.
const FlashBlockSize = 4096

// Analog full-scale constants. A raw 16-bit word r encodes
// scale * r / 65536 in the register's unit.
const (
	SupercapFullScaleVolts  = 11.0
	DCInFullScaleVolts      = 40.0
	InputCurrentFullScaleA  = 3.3
	TempFullScaleKelvinLow  = 233.15
	TempFullScaleKelvinHigh = 373.15
)

// WatchdogTimeoutAtStart is the timeout the daemon arms on entry to the
// Start state: strictly larger than the 100ms poll interval so a single
// missed tick cannot starve the watchdog.
const WatchdogTimeoutAtStart = 10000
