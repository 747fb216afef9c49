package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hatlabs/halpid/internal/device"
)

func usbPortsToMap(p device.USBPorts) map[string]bool {
	return map[string]bool{
		"usb0": p.Port0,
		"usb1": p.Port1,
		"usb2": p.Port2,
		"usb3": p.Port3,
	}
}

func (h *Handlers) getAllUSB(w http.ResponseWriter, r *http.Request) {
	var ports device.USBPorts
	err := h.owner.Do(func(d *device.Device) error {
		p, err := d.GetUSBPorts()
		if err != nil {
			return err
		}
		ports = p
		return nil
	})
	if err != nil {
		writeError(w, errInternal(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, usbPortsToMap(ports))
}

// putAllUSB applies a partial update: only the fields present in the
// JSON body change; omitted fields keep their current value.
func (h *Handlers) putAllUSB(w http.ResponseWriter, r *http.Request) {
	var body struct {
		USB0 *bool `json:"usb0"`
		USB1 *bool `json:"usb1"`
		USB2 *bool `json:"usb2"`
		USB3 *bool `json:"usb3"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, errBadRequest("invalid json body: "+err.Error()))
		return
	}

	err := h.owner.Do(func(d *device.Device) error {
		current, err := d.GetUSBPorts()
		if err != nil {
			return err
		}
		if body.USB0 != nil {
			current.Port0 = *body.USB0
		}
		if body.USB1 != nil {
			current.Port1 = *body.USB1
		}
		if body.USB2 != nil {
			current.Port2 = *body.USB2
		}
		if body.USB3 != nil {
			current.Port3 = *body.USB3
		}
		return d.SetUSBPorts(current)
	})
	if err != nil {
		writeError(w, errInternal(err.Error()))
		return
	}
	writeNoContent(w)
}

func parsePort(s string) (int, error) {
	port, err := strconv.Atoi(s)
	if err != nil || port < 0 || port > 3 {
		return 0, errBadRequest("port must be 0-3")
	}
	return port, nil
}

func (h *Handlers) getUSB(w http.ResponseWriter, r *http.Request) {
	port, err := parsePort(chi.URLParam(r, "port"))
	if err != nil {
		writeError(w, err)
		return
	}

	var ports device.USBPorts
	derr := h.owner.Do(func(d *device.Device) error {
		p, err := d.GetUSBPorts()
		if err != nil {
			return err
		}
		ports = p
		return nil
	})
	if derr != nil {
		writeError(w, errInternal(derr.Error()))
		return
	}
	writeJSON(w, http.StatusOK, usbPortsToMap(ports)[portKey(port)])
}

// putUSB takes a bare JSON boolean body, not a wrapped object.
func (h *Handlers) putUSB(w http.ResponseWriter, r *http.Request) {
	port, perr := parsePort(chi.URLParam(r, "port"))
	if perr != nil {
		writeError(w, perr)
		return
	}

	var enabled bool
	if err := json.NewDecoder(r.Body).Decode(&enabled); err != nil {
		writeError(w, errBadRequest("body must be a json boolean"))
		return
	}

	err := h.owner.Do(func(d *device.Device) error {
		current, err := d.GetUSBPorts()
		if err != nil {
			return err
		}
		setPort(&current, port, enabled)
		return d.SetUSBPorts(current)
	})
	if err != nil {
		writeError(w, errInternal(err.Error()))
		return
	}
	writeNoContent(w)
}

func portKey(port int) string {
	return [...]string{"usb0", "usb1", "usb2", "usb3"}[port]
}

func setPort(p *device.USBPorts, port int, enabled bool) {
	switch port {
	case 0:
		p.Port0 = enabled
	case 1:
		p.Port1 = enabled
	case 2:
		p.Port2 = enabled
	case 3:
		p.Port3 = enabled
	}
}
