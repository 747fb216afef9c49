package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"os/exec"
	"strconv"
	"time"

	"github.com/hatlabs/halpid/internal/device"
)

func (h *Handlers) postShutdown(w http.ResponseWriter, r *http.Request) {
	err := h.owner.Do(func(d *device.Device) error {
		return d.RequestShutdown()
	})
	if err != nil {
		writeError(w, errInternal(err.Error()))
		return
	}
	writeNoContent(w)
}

// standbyRequest accepts either a relative delay or an absolute wakeup
// time, matching shutdown.rs's untagged enum body.
type standbyRequest struct {
	Delay    *float64 `json:"delay"`
	Datetime *string  `json:"datetime"`
}

const standbyDatetimeLayout = "2006-01-02 15:04:05"

func (h *Handlers) postStandby(w http.ResponseWriter, r *http.Request) {
	var body standbyRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, errBadRequest("invalid json body: "+err.Error()))
		return
	}

	wakeAt, err := standbyWakeTime(body)
	if err != nil {
		writeError(w, err)
		return
	}

	cmd := exec.Command("rtcwake", "-m", "no", "-t", strconv.FormatInt(wakeAt.Unix(), 10))
	out, err := cmd.CombinedOutput()
	if err != nil {
		slog.Error("rtcwake failed", "err", err, "output", string(out))
		writeError(w, errInternal("rtcwake failed: "+err.Error()))
		return
	}

	doErr := h.owner.Do(func(d *device.Device) error {
		return d.RequestStandby()
	})
	if doErr != nil {
		writeError(w, errInternal(doErr.Error()))
		return
	}
	writeNoContent(w)
}

func standbyWakeTime(body standbyRequest) (time.Time, error) {
	switch {
	case body.Delay != nil:
		return time.Now().Add(time.Duration(*body.Delay * float64(time.Second))), nil
	case body.Datetime != nil:
		if t, err := time.Parse(time.RFC3339, *body.Datetime); err == nil {
			return t, nil
		}
		t, err := time.ParseInLocation(standbyDatetimeLayout, *body.Datetime, time.Local)
		if err != nil {
			return time.Time{}, errBadRequest("datetime must be RFC3339 or \"2006-01-02 15:04:05\"")
		}
		return t, nil
	default:
		return time.Time{}, errBadRequest("standby request needs either delay or datetime")
	}
}
