package device

import (
	"fmt"

	"github.com/hatlabs/halpid/internal/protocol"
)

// The DFU register primitives the dfu package layers its block-upload
// protocol on top of. These are thin C3 wrappers around C2 + the
// codec, exactly like every other Device operation — the protocol
// state machine itself lives in internal/dfu.

// StartDFU writes the total firmware size to begin a DFU session.
func (d *Device) StartDFU(totalSize uint32) error {
	if err := d.t.WriteBytes(protocol.RegDFUStart, protocol.EncodeU32(totalSize)); err != nil {
		return fmt.Errorf("device: start dfu: %w", err)
	}
	return nil
}

// WriteDFUBlock writes one pre-framed block (CRC32 + block_num +
// block_len + data) to the upload-block register.
func (d *Device) WriteDFUBlock(frame []byte) error {
	if err := d.t.WriteBytes(protocol.RegDFUUploadBlock, frame); err != nil {
		return fmt.Errorf("device: write dfu block: %w", err)
	}
	return nil
}

// GetDFUStatus reads and validates the controller's DFU state.
func (d *Device) GetDFUStatus() (protocol.DfuState, error) {
	b, err := d.t.ReadByte(protocol.RegDFUState)
	if err != nil {
		return 0, fmt.Errorf("device: get dfu status: %w", err)
	}
	s, err := protocol.DfuStateFromByte(b)
	if err != nil {
		return 0, fmt.Errorf("device: get dfu status: %w", err)
	}
	return s, nil
}

// CommitDFU finalizes a DFU session. The wire value for commit is
// fixed; the controller ignores the payload.
func (d *Device) CommitDFU() error {
	if err := d.t.WriteByte(protocol.RegDFUCommit, protocol.DFUActionValue); err != nil {
		return fmt.Errorf("device: commit dfu: %w", err)
	}
	return nil
}

// AbortDFU cancels the in-progress DFU session, best-effort.
func (d *Device) AbortDFU() error {
	if err := d.t.WriteByte(protocol.RegDFUAbort, protocol.DFUActionValue); err != nil {
		return fmt.Errorf("device: abort dfu: %w", err)
	}
	return nil
}
