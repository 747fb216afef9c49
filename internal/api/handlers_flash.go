package api

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/hatlabs/halpid/internal/dfu"
)

const maxFirmwareUploadBytes = 8 << 20 // generous ceiling; real images are far smaller

// postFlash accepts a multipart upload with a single "firmware" field
// and drives a full DFU session. The device lock is held for the
// entire upload — this is the one long-held exception to the
// one-critical-section-per-call discipline the rest of the control
// plane follows.
func (h *Handlers) postFlash(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxFirmwareUploadBytes); err != nil {
		writeError(w, errBadRequest("invalid multipart form: "+err.Error()))
		return
	}

	file, _, err := r.FormFile("firmware")
	if err != nil {
		writeError(w, errBadRequest("missing firmware field: "+err.Error()))
		return
	}
	defer file.Close()

	firmware, err := io.ReadAll(io.LimitReader(file, maxFirmwareUploadBytes+1))
	if err != nil {
		writeError(w, errInternal("reading firmware upload: "+err.Error()))
		return
	}
	if len(firmware) == 0 {
		writeError(w, errBadRequest("firmware upload is empty"))
		return
	}
	if len(firmware) > maxFirmwareUploadBytes {
		writeError(w, errBadRequest("firmware upload too large"))
		return
	}

	dev, unlock := h.owner.Lock()
	defer unlock()

	engine := dfu.New(dev)
	progress := func(blocksWritten, totalBlocks int) {
		slog.Debug("dfu upload progress", "blocks_written", blocksWritten, "total_blocks", totalBlocks)
	}
	if err := engine.UploadFirmware(firmware, progress); err != nil {
		writeError(w, errInternal("firmware upload failed: "+err.Error()))
		return
	}
	writeNoContent(w)
}
