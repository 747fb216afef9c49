package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hatlabs/halpid/internal/device"
)

// configKeys enumerates the controller-side config exposed by GET/PUT
// /config/{key}. Unknown keys are 404 in both directions, matching
// config.rs's fixed key set.
var configKeys = map[string]bool{
	"watchdog_timeout":       true,
	"power_on_threshold":     true,
	"solo_power_off_threshold": true,
	"led_brightness":         true,
	"auto_restart":           true,
	"solo_depleting_timeout": true,
}

func thresholdsToMap(t device.Thresholds) map[string]any {
	return map[string]any{
		"watchdog_timeout":         t.WatchdogTimeoutSeconds,
		"power_on_threshold":       t.PowerOnThresholdVolts,
		"solo_power_off_threshold": t.SoloOffThresholdVolts,
		"led_brightness":           t.LEDBrightness,
		"auto_restart":             t.AutoRestart,
		"solo_depleting_timeout":   t.SoloDepletingTimeout,
	}
}

func (h *Handlers) getAllConfig(w http.ResponseWriter, r *http.Request) {
	var thresholds device.Thresholds
	err := h.owner.Do(func(d *device.Device) error {
		t, err := d.GetThresholds()
		if err != nil {
			return err
		}
		thresholds = t
		return nil
	})
	if err != nil {
		writeError(w, errInternal(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, thresholdsToMap(thresholds))
}

func (h *Handlers) getConfig(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if !configKeys[key] {
		writeError(w, errNotFound("unknown config key: "+key))
		return
	}

	var thresholds device.Thresholds
	err := h.owner.Do(func(d *device.Device) error {
		t, err := d.GetThresholds()
		if err != nil {
			return err
		}
		thresholds = t
		return nil
	})
	if err != nil {
		writeError(w, errInternal(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, thresholdsToMap(thresholds)[key])
}

func (h *Handlers) putConfig(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if !configKeys[key] {
		writeError(w, errNotFound("unknown config key: "+key))
		return
	}

	var raw json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		writeError(w, errBadRequest("invalid json body: "+err.Error()))
		return
	}

	err := h.owner.Do(func(d *device.Device) error {
		switch key {
		case "watchdog_timeout":
			var seconds float64
			if err := json.Unmarshal(raw, &seconds); err != nil {
				return errBadRequest("watchdog_timeout must be a number of seconds")
			}
			return d.SetWatchdogTimeout(uint16(seconds * 1000))
		case "power_on_threshold":
			var volts float64
			if err := json.Unmarshal(raw, &volts); err != nil {
				return errBadRequest("power_on_threshold must be a number of volts")
			}
			return d.SetPowerOnThreshold(volts)
		case "solo_power_off_threshold":
			var volts float64
			if err := json.Unmarshal(raw, &volts); err != nil {
				return errBadRequest("solo_power_off_threshold must be a number of volts")
			}
			return d.SetSoloOffThreshold(volts)
		case "led_brightness":
			var v int
			if err := json.Unmarshal(raw, &v); err != nil || v < 0 || v > 255 {
				return errBadRequest("led_brightness must be an integer 0-255")
			}
			return d.SetLEDBrightness(byte(v))
		case "auto_restart":
			var enabled bool
			if err := json.Unmarshal(raw, &enabled); err != nil {
				return errBadRequest("auto_restart must be a boolean")
			}
			return d.SetAutoRestart(enabled)
		case "solo_depleting_timeout":
			var seconds float64
			if err := json.Unmarshal(raw, &seconds); err != nil {
				return errBadRequest("solo_depleting_timeout must be a number of seconds")
			}
			return d.SetSoloDepletingTimeout(uint32(seconds * 1000))
		}
		return nil
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeNoContent(w)
}
