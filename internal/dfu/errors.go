package dfu

import (
	"fmt"

	"github.com/hatlabs/halpid/internal/protocol"
)

// StateError reports that the controller reported one of the DFU
// protocol error states (CrcError, DataLengthError, WriteError,
// ProtocolError). The session has already been aborted by the time
// this is returned.
type StateError struct {
	State protocol.DfuState
}

func (e *StateError) Error() string {
	return fmt.Sprintf("dfu: controller reported %s", e.State)
}

// UnexpectedStateError reports that the controller's status didn't
// match what the protocol expects at this point (e.g. not
// ReadyToCommit after the last block).
type UnexpectedStateError struct {
	Expected, Actual protocol.DfuState
}

func (e *UnexpectedStateError) Error() string {
	return fmt.Sprintf("dfu: expected state %s, got %s", e.Expected, e.Actual)
}

// QueueFullTimeoutError reports that the controller stayed QueueFull
// for longer than the retry budget allows.
type QueueFullTimeoutError struct {
	BlockNum uint16
}

func (e *QueueFullTimeoutError) Error() string {
	return fmt.Sprintf("dfu: queue full timeout on block %d", e.BlockNum)
}

// BlockTooLargeError reports a caller-supplied block exceeding
// protocol.FlashBlockSize.
type BlockTooLargeError struct {
	Size int
}

func (e *BlockTooLargeError) Error() string {
	return fmt.Sprintf("dfu: block size %d exceeds max %d", e.Size, protocol.FlashBlockSize)
}
