package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/hatlabs/halpid/internal/config"
)

func TestDefaultMatchesKnownValues(t *testing.T) {
	d := config.Default()
	if d.I2CBus != 1 {
		t.Errorf("I2CBus = %d, want 1", d.I2CBus)
	}
	if d.I2CAddr != 0x6D {
		t.Errorf("I2CAddr = %#02x, want 0x6D", d.I2CAddr)
	}
	if d.BlackoutTimeLimit != 5.0 {
		t.Errorf("BlackoutTimeLimit = %v, want 5.0", d.BlackoutTimeLimit)
	}
	if d.BlackoutVoltageLimit != 9.0 {
		t.Errorf("BlackoutVoltageLimit = %v, want 9.0", d.BlackoutVoltageLimit)
	}
	if d.SocketGroup != "adm" {
		t.Errorf("SocketGroup = %q, want adm", d.SocketGroup)
	}
	if d.Poweroff != "/sbin/poweroff" {
		t.Errorf("Poweroff = %q, want /sbin/poweroff", d.Poweroff)
	}
}

func TestSocketPathFallsBackToDefault(t *testing.T) {
	r := config.Default()
	if r.SocketPath() != config.DefaultSocketPath {
		t.Errorf("SocketPath() = %q, want %q", r.SocketPath(), config.DefaultSocketPath)
	}
	r.Socket = "/tmp/custom.sock"
	if r.SocketPath() != "/tmp/custom.sock" {
		t.Errorf("SocketPath() = %q, want /tmp/custom.sock", r.SocketPath())
	}
}

func TestValidateRejectsOutOfRangeValues(t *testing.T) {
	cases := []struct {
		name string
		mod  func(*config.Record)
	}{
		{"zero time limit", func(r *config.Record) { r.BlackoutTimeLimit = 0 }},
		{"negative time limit", func(r *config.Record) { r.BlackoutTimeLimit = -1 }},
		{"huge time limit", func(r *config.Record) { r.BlackoutTimeLimit = 3601 }},
		{"low voltage limit", func(r *config.Record) { r.BlackoutVoltageLimit = 4.9 }},
		{"high voltage limit", func(r *config.Record) { r.BlackoutVoltageLimit = 15.1 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := config.Default()
			tc.mod(&r)
			if err := r.Validate(); err == nil {
				t.Errorf("Validate() = nil, want error for %s", tc.name)
			}
		})
	}
}

func TestValidateAcceptsDefaults(t *testing.T) {
	if err := config.Default().Validate(); err != nil {
		t.Errorf("Validate() on defaults = %v, want nil", err)
	}
}

func TestLoadOrDefaultMissingFileYieldsDefaults(t *testing.T) {
	dir := t.TempDir()
	r, err := config.LoadOrDefault(filepath.Join(dir, "does-not-exist.conf"))
	if err != nil {
		t.Fatalf("LoadOrDefault: %v", err)
	}
	if r != config.Default() {
		t.Errorf("LoadOrDefault(missing) = %+v, want defaults", r)
	}
}

func TestLoadParsesKebabCaseYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "halpid.conf")
	yaml := `
i2c-bus: 3
i2c-addr: 109
blackout-time-limit: 8.5
blackout-voltage-limit: 10.0
socket: /run/halpid/custom.sock
socket-group: dialout
poweroff: /usr/sbin/poweroff
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	r, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if r.I2CBus != 3 || r.I2CAddr != 109 {
		t.Errorf("I2CBus/I2CAddr = %d/%d, want 3/109", r.I2CBus, r.I2CAddr)
	}
	if r.BlackoutTimeLimit != 8.5 || r.BlackoutVoltageLimit != 10.0 {
		t.Errorf("thresholds = %v/%v, want 8.5/10.0", r.BlackoutTimeLimit, r.BlackoutVoltageLimit)
	}
	if r.Socket != "/run/halpid/custom.sock" || r.SocketGroup != "dialout" {
		t.Errorf("socket/group = %q/%q", r.Socket, r.SocketGroup)
	}
	if r.Poweroff != "/usr/sbin/poweroff" {
		t.Errorf("poweroff = %q", r.Poweroff)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "halpid.conf")
	yaml := "i2c-bus: 1\nbogus-field: true\n"
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if _, err := config.Load(path); err == nil {
		t.Error("Load() with unknown key = nil error, want strict rejection")
	}
}

func TestApplyFlagsOnlyAppliesVisitedFlags(t *testing.T) {
	r := config.Default()
	bus := uint(4)
	poweroff := "/bin/true"

	visited := map[string]bool{"i2c-bus": true} // poweroff flag declared but NOT visited
	r.ApplyFlags(visited, config.FlagOverrides{
		I2CBus:   &bus,
		Poweroff: &poweroff,
	})

	if r.I2CBus != 4 {
		t.Errorf("I2CBus = %d, want 4 (flag was visited)", r.I2CBus)
	}
	if r.Poweroff != "/sbin/poweroff" {
		t.Errorf("Poweroff = %q, want unchanged default (flag was not visited)", r.Poweroff)
	}
}
