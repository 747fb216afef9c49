// Package statemachine implements the power-management control loop (C5):
// a fixed 10 Hz poll of DC-in voltage that distinguishes short glitches from
// sustained blackouts and drives the host toward an orderly shutdown.
package statemachine

import (
	"context"
	"log/slog"
	"os/exec"
	"time"

	"github.com/hatlabs/halpid/internal/config"
	"github.com/hatlabs/halpid/internal/device"
	"github.com/hatlabs/halpid/internal/protocol"
)

// pollInterval is the fixed tick rate. It is deliberately shorter than the
// watchdog timeout armed at Start so a single missed tick cannot starve it.
const pollInterval = 100 * time.Millisecond

// DaemonState is the power controller's own state, distinct from the
// microcontroller's PowerState enum.
type DaemonState int

const (
	Start DaemonState = iota
	Ok
	Blackout
	Shutdown
	Dead
)

func (s DaemonState) String() string {
	switch s {
	case Start:
		return "Start"
	case Ok:
		return "Ok"
	case Blackout:
		return "Blackout"
	case Shutdown:
		return "Shutdown"
	case Dead:
		return "Dead"
	default:
		return "Unknown"
	}
}

// Machine runs the state machine loop against a shared device owner and a
// live-reloadable config record.
type Machine struct {
	owner *device.Owner
	cfg   *config.Watcher

	state         DaemonState
	blackoutStart time.Time // zero iff state != Blackout
}

// New returns a Machine in its initial Start state.
func New(owner *device.Owner, cfg *config.Watcher) *Machine {
	return &Machine{owner: owner, cfg: cfg, state: Start}
}

// State returns the current daemon state.
func (m *Machine) State() DaemonState { return m.state }

// BlackoutStart returns the instant the current blackout began, and whether
// one is in progress.
func (m *Machine) BlackoutStart() (time.Time, bool) {
	if m.state != Blackout {
		return time.Time{}, false
	}
	return m.blackoutStart, true
}

// Run ticks at pollInterval until ctx is cancelled. A missed tick is never
// compensated for — the ticker's own catch-up-free semantics apply.
func (m *Machine) Run(ctx context.Context) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	slog.Info("state machine starting")
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.tick(); err != nil {
				slog.Error("state machine tick failed", "state", m.state, "err", err)
			}
		}
	}
}

// tick executes one iteration. On error, the state is left unchanged and the
// next tick retries — a transient I2C error must never by itself initiate
// shutdown.
func (m *Machine) tick() error {
	cfg := m.cfg.Get()

	switch m.state {
	case Start:
		return m.owner.Do(func(d *device.Device) error {
			if err := d.SetWatchdogTimeout(protocol.WatchdogTimeoutAtStart); err != nil {
				return err
			}
			m.transition(Ok)
			return nil
		})

	case Ok:
		vIn, err := m.readDCInVoltage()
		if err != nil {
			return err
		}
		if vIn < cfg.BlackoutVoltageLimit {
			slog.Warn("blackout detected", "v_in", vIn, "limit", cfg.BlackoutVoltageLimit)
			m.blackoutStart = now()
			m.transition(Blackout)
		}
		return nil

	case Blackout:
		vIn, err := m.readDCInVoltage()
		if err != nil {
			return err
		}
		if vIn > cfg.BlackoutVoltageLimit {
			slog.Info("power resumed", "v_in", vIn)
			m.blackoutStart = time.Time{}
			m.transition(Ok)
			return nil
		}
		elapsed := now().Sub(m.blackoutStart).Seconds()
		if elapsed > cfg.BlackoutTimeLimit {
			slog.Warn("blacked out past limit, initiating shutdown", "elapsed_s", elapsed)
			m.blackoutStart = time.Time{}
			m.transition(Shutdown)
			return nil
		}
		return nil

	case Shutdown:
		if err := m.owner.Do(func(d *device.Device) error { return d.RequestShutdown() }); err != nil {
			slog.Error("request_shutdown failed", "err", err)
		}

		if cfg.Poweroff != "" {
			slog.Info("executing poweroff command", "cmd", cfg.Poweroff)
			if spawnErr := exec.Command("sh", "-c", cfg.Poweroff).Start(); spawnErr != nil {
				slog.Error("failed to spawn poweroff command", "err", spawnErr)
			}
		} else {
			slog.Warn("poweroff command empty, dry run")
		}

		m.transition(Dead)
		return nil

	case Dead:
		// Terminal: touch nothing, not even I2C. Starving the watchdog
		// guarantees the controller cuts power even if the host hangs
		// mid-shutdown.
		return nil
	}
	return nil
}

func (m *Machine) readDCInVoltage() (float64, error) {
	var vIn float64
	err := m.owner.Do(func(d *device.Device) error {
		meas, err := d.GetMeasurements()
		if err != nil {
			return err
		}
		vIn = meas.DCInVoltage
		return nil
	})
	return vIn, err
}

func (m *Machine) transition(to DaemonState) {
	slog.Info("state transition", "from", m.state, "to", to)
	m.state = to
}

// now is a seam so tests can control elapsed time without sleeping.
var now = time.Now
