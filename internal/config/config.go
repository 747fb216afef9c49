// Package config defines the daemon's own configuration record — distinct
// from controller-side config exposed over /config, which lives in
// device registers and is never unified with this record (see
// internal/api's config handlers).
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultConfigPath is probed when --conf is not given; a missing file at
// this path is not an error.
const DefaultConfigPath = "/etc/halpid/halpid.conf"

// DefaultSocketPath is used when Socket is empty.
const DefaultSocketPath = "/run/halpid/halpid.sock"

const (
	defaultI2CBus               = 1
	defaultI2CAddr              = 0x6D
	defaultBlackoutTimeLimit    = 5.0
	defaultBlackoutVoltageLimit = 9.0
	defaultSocketGroup          = "adm"
	defaultPoweroff             = "/sbin/poweroff"
)

// Record is the daemon's configuration: defaults < file < CLI flags.
type Record struct {
	I2CBus               uint8   `yaml:"i2c-bus"`
	I2CAddr              uint8   `yaml:"i2c-addr"`
	BlackoutTimeLimit    float64 `yaml:"blackout-time-limit"`
	BlackoutVoltageLimit float64 `yaml:"blackout-voltage-limit"`
	Socket               string  `yaml:"socket,omitempty"`
	SocketGroup          string  `yaml:"socket-group"`
	Poweroff             string  `yaml:"poweroff"`
}

// Default returns the built-in defaults.
func Default() Record {
	return Record{
		I2CBus:               defaultI2CBus,
		I2CAddr:              defaultI2CAddr,
		BlackoutTimeLimit:    defaultBlackoutTimeLimit,
		BlackoutVoltageLimit: defaultBlackoutVoltageLimit,
		SocketGroup:          defaultSocketGroup,
		Poweroff:             defaultPoweroff,
	}
}

// SocketPath returns the configured socket path, or DefaultSocketPath if
// unset.
func (r Record) SocketPath() string {
	if r.Socket == "" {
		return DefaultSocketPath
	}
	return r.Socket
}

// Load reads and strictly decodes a YAML config file. Unknown keys are
// rejected.
func Load(path string) (Record, error) {
	r := Default()
	f, err := os.Open(path)
	if err != nil {
		return Record{}, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&r); err != nil {
		return Record{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return r, nil
}

// LoadOrDefault behaves like Load, except a missing file yields the
// defaults rather than an error.
func LoadOrDefault(path string) (Record, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Default(), nil
	}
	return Load(path)
}

// Validate rejects out-of-range values before the daemon starts.
func (r Record) Validate() error {
	if r.BlackoutTimeLimit <= 0 || r.BlackoutTimeLimit > 3600 {
		return fmt.Errorf("config: blackout-time-limit %g out of range (0, 3600]", r.BlackoutTimeLimit)
	}
	if r.BlackoutVoltageLimit < 5 || r.BlackoutVoltageLimit > 15 {
		return fmt.Errorf("config: blackout-voltage-limit %g out of range [5, 15]", r.BlackoutVoltageLimit)
	}
	return nil
}

// FlagOverrides holds the CLI flag values that may override the loaded
// record. A nil pointer means the flag was not declared; ApplyFlags' set
// argument names which flags the user actually passed (via flag.Visit), so only those values
// are applied — this is not the Rust merge's "differs from the compiled-in
// default" heuristic, which would wrongly treat a user explicitly choosing
// the default value as "unset".
type FlagOverrides struct {
	I2CBus               *uint
	I2CAddr              *uint
	Socket               *string
	BlackoutTimeLimit    *float64
	BlackoutVoltageLimit *float64
	Poweroff             *string
}

// ApplyFlags overlays only the flags present in set (flag names as passed
// to the flag package) onto r.
func (r *Record) ApplyFlags(set map[string]bool, o FlagOverrides) {
	if set["i2c-bus"] && o.I2CBus != nil {
		r.I2CBus = uint8(*o.I2CBus)
	}
	if set["i2c-addr"] && o.I2CAddr != nil {
		r.I2CAddr = uint8(*o.I2CAddr)
	}
	if set["socket"] && o.Socket != nil {
		r.Socket = *o.Socket
	}
	if set["blackout-time-limit"] && o.BlackoutTimeLimit != nil {
		r.BlackoutTimeLimit = *o.BlackoutTimeLimit
	}
	if set["blackout-voltage-limit"] && o.BlackoutVoltageLimit != nil {
		r.BlackoutVoltageLimit = *o.BlackoutVoltageLimit
	}
	if set["poweroff"] && o.Poweroff != nil {
		r.Poweroff = *o.Poweroff
	}
}
