package protocol

import (
	"encoding/binary"
	"fmt"
)

// DecodeWord decodes a big-endian 16-bit register value.
func DecodeWord(b []byte) (uint16, error) {
	if len(b) != 2 {
		return 0, fmt.Errorf("protocol: decode word: need 2 bytes, got %d", len(b))
	}
	return binary.BigEndian.Uint16(b), nil
}

// EncodeWord encodes a 16-bit register value as big-endian bytes.
func EncodeWord(v uint16) []byte {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, v)
	return b
}

// DecodeU32 decodes a big-endian 32-bit register value.
func DecodeU32(b []byte) (uint32, error) {
	if len(b) != 4 {
		return 0, fmt.Errorf("protocol: decode u32: need 4 bytes, got %d", len(b))
	}
	return binary.BigEndian.Uint32(b), nil
}

// EncodeU32 encodes a 32-bit register value as big-endian bytes.
func EncodeU32(v uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return b
}

// AnalogWordToFloat converts a raw 16-bit analog register word to its
// scaled float value: scale * r / 65536.
func AnalogWordToFloat(r uint16, scale float64) float64 {
	return scale * float64(r) / 65536.0
}

// FloatToAnalogWord converts a scaled float value back to a raw 16-bit
// analog register word: truncate(65536 * value / scale). Values outside
// the representable range are clamped to the u16 bounds.
func FloatToAnalogWord(value, scale float64) uint16 {
	raw := 65536.0 * value / scale
	if raw < 0 {
		return 0
	}
	if raw > 65535 {
		return 65535
	}
	return uint16(raw)
}

// KelvinToAnalogWord encodes a Kelvin temperature into the same analog
// word format, scaled over the controller's representable temperature
// range rather than a voltage/current full scale.
func KelvinToAnalogWord(kelvin float64) uint16 {
	span := TempFullScaleKelvinHigh - TempFullScaleKelvinLow
	fraction := (kelvin - TempFullScaleKelvinLow) / span
	return FloatToAnalogWord(fraction, 1.0)
}

// AnalogWordToKelvin decodes a temperature register word back to Kelvin.
func AnalogWordToKelvin(r uint16) float64 {
	fraction := AnalogWordToFloat(r, 1.0)
	span := TempFullScaleKelvinHigh - TempFullScaleKelvinLow
	return TempFullScaleKelvinLow + fraction*span
}

// KelvinToCelsius is a simple affine conversion.
func KelvinToCelsius(k float64) float64 {
	return k - 273.15
}

// CelsiusToKelvin is the inverse affine conversion.
func CelsiusToKelvin(c float64) float64 {
	return c + 273.15
}
