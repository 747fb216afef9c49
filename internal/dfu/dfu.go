// Package dfu implements the block-oriented device firmware update
// engine (C4): a CRC32-checksummed upload protocol layered on top of
// the device facade's DFU registers.
package dfu

import (
	"fmt"
	"hash/crc32"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hatlabs/halpid/internal/device"
	"github.com/hatlabs/halpid/internal/protocol"
)

const (
	queueFullMaxRetries = 10
	queueFullRetryDelay = 100 * time.Millisecond
)

// ProgressFunc is invoked after each accepted block, for UI/log purposes
// only — it has no effect on the protocol.
type ProgressFunc func(blocksWritten, totalBlocks int)

// Engine drives the DFU protocol over a single Device. Callers must
// hold the device's Owner lock for the Engine's entire lifetime — a
// firmware upload is the one long-held exception to the
// one-critical-section-per-call rule (see device.Owner).
type Engine struct {
	dev *device.Device
}

// New returns an Engine bound to dev, which the caller must already
// hold exclusively (e.g. via device.Owner.Lock).
func New(dev *device.Device) *Engine {
	return &Engine{dev: dev}
}

// StartDFU begins a session: the controller transitions
// Idle -> Preparing -> Updating.
func (e *Engine) StartDFU(totalSize uint32) error {
	return e.dev.StartDFU(totalSize)
}

// frameBlock builds the wire frame for one block:
// [CRC32:4B][block_num:2B][block_len:2B][data]. The CRC32 (IEEE
// polynomial) covers block_num||block_len||data, not the CRC field
// itself.
func frameBlock(blockNum uint16, data []byte) ([]byte, error) {
	if len(data) > protocol.FlashBlockSize {
		return nil, &BlockTooLargeError{Size: len(data)}
	}
	payload := make([]byte, 0, 4+len(data))
	payload = append(payload, protocol.EncodeWord(blockNum)...)
	payload = append(payload, protocol.EncodeWord(uint16(len(data)))...)
	payload = append(payload, data...)

	sum := crc32.ChecksumIEEE(payload)

	frame := make([]byte, 0, 4+len(payload))
	frame = append(frame, protocol.EncodeU32(sum)...)
	frame = append(frame, payload...)
	return frame, nil
}

// UploadBlock writes one framed block. It does not itself handle
// queue-full retry or status inspection — see uploadBlockWithRetry for
// the orchestration spec.md describes.
func (e *Engine) UploadBlock(blockNum uint16, data []byte) error {
	frame, err := frameBlock(blockNum, data)
	if err != nil {
		return err
	}
	return e.dev.WriteDFUBlock(frame)
}

// Status reads the controller's current DFU state.
func (e *Engine) Status() (protocol.DfuState, error) {
	return e.dev.GetDFUStatus()
}

// CommitDFU finalizes the session.
func (e *Engine) CommitDFU() error {
	return e.dev.CommitDFU()
}

// AbortDFU cancels the session, best-effort — failures are returned to
// the caller but the engine's own abort-on-error path never lets an
// AbortDFU failure mask the original error.
func (e *Engine) AbortDFU() error {
	return e.dev.AbortDFU()
}

// UploadFirmware runs the full protocol end to end: start, upload every
// block (with queue-full retry), verify ReadyToCommit, commit. On any
// error it has already called AbortDFU (best-effort) before returning.
func (e *Engine) UploadFirmware(firmware []byte, progress ProgressFunc) error {
	sessionID := uuid.New().String()
	log := slog.With("dfu_session", sessionID)

	totalBlocks := (len(firmware) + protocol.FlashBlockSize - 1) / protocol.FlashBlockSize
	log.Info("starting firmware upload", "bytes", len(firmware), "blocks", totalBlocks)

	if err := e.StartDFU(uint32(len(firmware))); err != nil {
		log.Error("start dfu failed", "err", err)
		e.bestEffortAbort(log)
		return fmt.Errorf("dfu: start: %w", err)
	}

	for i := 0; i < totalBlocks; i++ {
		start := i * protocol.FlashBlockSize
		end := start + protocol.FlashBlockSize
		if end > len(firmware) {
			end = len(firmware)
		}
		chunk := firmware[start:end]

		status, err := e.uploadBlockWithRetry(uint16(i), chunk, log)
		if err != nil {
			e.bestEffortAbort(log)
			return err
		}
		if status.IsErrorState() {
			log.Error("controller reported dfu error", "state", status, "block", i)
			e.bestEffortAbort(log)
			return &StateError{State: status}
		}

		if progress != nil {
			progress(i+1, totalBlocks)
		}
	}

	final, err := e.Status()
	if err != nil {
		e.bestEffortAbort(log)
		return fmt.Errorf("dfu: final status: %w", err)
	}
	if final != protocol.DfuReadyToCommit {
		log.Error("unexpected final dfu state", "state", final)
		e.bestEffortAbort(log)
		return &UnexpectedStateError{Expected: protocol.DfuReadyToCommit, Actual: final}
	}

	if err := e.CommitDFU(); err != nil {
		e.bestEffortAbort(log)
		return fmt.Errorf("dfu: commit: %w", err)
	}
	log.Info("firmware upload committed")
	return nil
}

// uploadBlockWithRetry uploads the same block up to queueFullMaxRetries
// times while the controller reports QueueFull, waiting
// queueFullRetryDelay between attempts. Updating or ReadyToCommit (the
// controller accepted the block) and the DFU error states are returned
// as the status with a nil error, for the caller to act on; any other
// status is returned immediately as an unexpected-state error without
// further retry.
func (e *Engine) uploadBlockWithRetry(blockNum uint16, data []byte, log *slog.Logger) (protocol.DfuState, error) {
	for attempt := 0; attempt < queueFullMaxRetries; attempt++ {
		if err := e.UploadBlock(blockNum, data); err != nil {
			return 0, fmt.Errorf("dfu: upload block %d: %w", blockNum, err)
		}
		status, err := e.Status()
		if err != nil {
			return 0, fmt.Errorf("dfu: status after block %d: %w", blockNum, err)
		}

		switch {
		case status == protocol.DfuQueueFull:
			if attempt == queueFullMaxRetries-1 {
				return 0, &QueueFullTimeoutError{BlockNum: blockNum}
			}
			log.Warn("dfu queue full, retrying block", "block", blockNum, "attempt", attempt+1)
			time.Sleep(queueFullRetryDelay)
			continue
		case status == protocol.DfuUpdating, status == protocol.DfuReadyToCommit:
			return status, nil
		case status.IsErrorState():
			return status, nil
		default:
			return 0, &UnexpectedStateError{Expected: protocol.DfuUpdating, Actual: status}
		}
	}
	return 0, &QueueFullTimeoutError{BlockNum: blockNum}
}

func (e *Engine) bestEffortAbort(log *slog.Logger) {
	if err := e.AbortDFU(); err != nil {
		log.Warn("best-effort dfu abort failed", "err", err)
	}
}
