package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hatlabs/halpid/internal/device"
	"github.com/hatlabs/halpid/internal/protocol"
)

// root answers the plain-text compatibility probe.
func (h *Handlers) root(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("halpid\n"))
}

func (h *Handlers) getVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"daemon_version": h.version})
}

type valuesSnapshot struct {
	Measurements    device.Measurements
	HardwareVersion protocol.Version
	FirmwareVersion protocol.Version
	DeviceID        string
}

// snapshot performs the one combined device read §4.6 requires, under the
// shared lock. Version/device-id reads fall back to sentinel values on
// failure (matching device.rs's behavior) so a controller that hasn't
// finished booting its identity registers doesn't block measurements.
func (h *Handlers) snapshot() (valuesSnapshot, error) {
	var snap valuesSnapshot
	err := h.owner.Do(func(d *device.Device) error {
		meas, err := d.GetMeasurements()
		if err != nil {
			return err
		}
		snap.Measurements = meas

		if hv, err := d.GetHardwareVersion(); err == nil {
			snap.HardwareVersion = hv
		} else {
			snap.HardwareVersion = protocol.UnavailableVersion
		}
		if fv, err := d.GetFirmwareVersion(); err == nil {
			snap.FirmwareVersion = fv
		} else {
			snap.FirmwareVersion = protocol.UnavailableVersion
		}
		if id, err := d.GetDeviceID(); err == nil {
			snap.DeviceID = id
		} else {
			snap.DeviceID = "0000000000000000"
		}
		return nil
	})
	return snap, err
}

func (snap valuesSnapshot) toMap(daemonVersion string) map[string]any {
	return map[string]any{
		"daemon_version":   daemonVersion,
		"hardware_version": snap.HardwareVersion.String(),
		"firmware_version": snap.FirmwareVersion.String(),
		"device_id":        snap.DeviceID,
		"V_in":             snap.Measurements.DCInVoltage,
		"V_cap":            snap.Measurements.SupercapVoltage,
		"I_in":             snap.Measurements.InputCurrent,
		"T_mcu":            snap.Measurements.MCUTempCelsius,
		"T_pcb":            snap.Measurements.PCBTempCelsius,
		"state":            snap.Measurements.PowerState.String(),
		"watchdog_elapsed": snap.Measurements.WatchdogElapsed,
	}
}

func (h *Handlers) getAllValues(w http.ResponseWriter, r *http.Request) {
	snap, err := h.snapshot()
	if err != nil {
		writeError(w, errInternal(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, snap.toMap(h.version))
}

func (h *Handlers) getValue(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	if key == "daemon_version" {
		writeJSON(w, http.StatusOK, h.version)
		return
	}

	values := map[string]bool{
		"hardware_version": true, "firmware_version": true, "device_id": true,
		"V_in": true, "V_cap": true, "I_in": true, "T_mcu": true, "T_pcb": true,
		"state": true, "watchdog_elapsed": true,
	}
	if !values[key] {
		writeError(w, errNotFound("unknown key: "+key))
		return
	}

	snap, err := h.snapshot()
	if err != nil {
		writeError(w, errInternal(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, snap.toMap(h.version)[key])
}
