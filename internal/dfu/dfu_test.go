package dfu_test

import (
	"errors"
	"hash/crc32"
	"testing"

	"github.com/hatlabs/halpid/internal/device"
	"github.com/hatlabs/halpid/internal/dfu"
	"github.com/hatlabs/halpid/internal/hardware"
	"github.com/hatlabs/halpid/internal/protocol"
)

func newEngine(t *testing.T) (*dfu.Engine, *hardware.MockTransport) {
	t.Helper()
	m := hardware.NewMockTransport()
	m.SetReg(protocol.RegDFUState, []byte{byte(protocol.DfuUpdating)})
	dev := device.New(m)
	return dfu.New(dev), m
}

func TestFlashBlockSizeConstant(t *testing.T) {
	if protocol.FlashBlockSize != 4096 {
		t.Errorf("FlashBlockSize = %d, want 4096", protocol.FlashBlockSize)
	}
}

func TestUploadFirmwareHappyPath(t *testing.T) {
	engine, m := newEngine(t)

	firmware := make([]byte, 3*protocol.FlashBlockSize)
	for i := range firmware {
		firmware[i] = byte(i)
	}

	// First two status reads report Updating (accepted), the third
	// (after the final block) must be ReadyToCommit.
	statuses := []protocol.DfuState{protocol.DfuUpdating, protocol.DfuUpdating, protocol.DfuReadyToCommit}
	call := 0
	m.SetReg(protocol.RegDFUState, []byte{byte(statuses[0])})

	progressCalls := 0
	var lastWritten int
	progress := func(written, total int) {
		progressCalls++
		lastWritten = written
		if total != 3 {
			t.Errorf("total blocks = %d, want 3", total)
		}
		if call+1 < len(statuses) {
			call++
			m.SetReg(protocol.RegDFUState, []byte{byte(statuses[call])})
		}
	}

	if err := engine.UploadFirmware(firmware, progress); err != nil {
		t.Fatalf("UploadFirmware: %v", err)
	}
	if progressCalls != 3 {
		t.Errorf("progress called %d times, want 3", progressCalls)
	}
	if lastWritten != 3 {
		t.Errorf("last progress written = %d, want 3", lastWritten)
	}

	commit := m.GetReg(protocol.RegDFUCommit)
	if len(commit) != 1 || commit[0] != protocol.DFUActionValue {
		t.Errorf("commit register = %v, want [0x00]", commit)
	}
	abort := m.GetReg(protocol.RegDFUAbort)
	if len(abort) != 0 {
		t.Errorf("abort should not have been written on happy path, got %v", abort)
	}
}

func TestUploadBlockFramingAndCRC(t *testing.T) {
	engine, m := newEngine(t)

	data := []byte{1, 2, 3, 4, 5}
	if err := engine.UploadBlock(7, data); err != nil {
		t.Fatalf("UploadBlock: %v", err)
	}

	frame := m.GetReg(protocol.RegDFUUploadBlock)
	if len(frame) != 4+4+len(data) {
		t.Fatalf("frame length = %d, want %d", len(frame), 4+4+len(data))
	}

	payload := frame[4:]
	wantCRC := crc32.ChecksumIEEE(payload)
	gotCRC, err := protocol.DecodeU32(frame[:4])
	if err != nil {
		t.Fatalf("DecodeU32: %v", err)
	}
	if gotCRC != wantCRC {
		t.Errorf("crc = %#x, want %#x", gotCRC, wantCRC)
	}

	blockNum, _ := protocol.DecodeWord(payload[0:2])
	blockLen, _ := protocol.DecodeWord(payload[2:4])
	if blockNum != 7 {
		t.Errorf("block_num = %d, want 7", blockNum)
	}
	if int(blockLen) != len(data) {
		t.Errorf("block_len = %d, want %d", blockLen, len(data))
	}
}

func TestUploadBlockTooLarge(t *testing.T) {
	engine, _ := newEngine(t)
	data := make([]byte, protocol.FlashBlockSize+1)
	if err := engine.UploadBlock(0, data); err == nil {
		t.Error("expected error for oversized block")
	}
}

func TestUploadFirmwareQueueFullRetries(t *testing.T) {
	engine, m := newEngine(t)
	firmware := make([]byte, 10) // one block

	// Block 0: QueueFull twice, then Updating. Final status read (after
	// the loop) reports ReadyToCommit.
	m.SetRegSequence(protocol.RegDFUState,
		[]byte{byte(protocol.DfuQueueFull)},
		[]byte{byte(protocol.DfuQueueFull)},
		[]byte{byte(protocol.DfuUpdating)},
		[]byte{byte(protocol.DfuReadyToCommit)},
	)

	if err := engine.UploadFirmware(firmware, nil); err != nil {
		t.Fatalf("UploadFirmware: %v", err)
	}

	abort := m.GetReg(protocol.RegDFUAbort)
	if len(abort) != 0 {
		t.Errorf("abort should not have been written, got %v", abort)
	}
	commit := m.GetReg(protocol.RegDFUCommit)
	if len(commit) != 1 {
		t.Errorf("expected a commit write, got %v", commit)
	}
}

func TestUploadFirmwareQueueFullExhaustsRetries(t *testing.T) {
	engine, m := newEngine(t)
	firmware := make([]byte, 10)
	m.SetReg(protocol.RegDFUState, []byte{byte(protocol.DfuQueueFull)}) // never progresses

	err := engine.UploadFirmware(firmware, nil)
	if err == nil {
		t.Fatal("expected error when queue stays full past the retry budget")
	}
	var qfErr *dfu.QueueFullTimeoutError
	if !errors.As(err, &qfErr) {
		t.Errorf("expected QueueFullTimeoutError, got %v (%T)", err, err)
	}
}

func TestUploadFirmwareCrcErrorAborts(t *testing.T) {
	engine, m := newEngine(t)
	firmware := make([]byte, protocol.FlashBlockSize*2)
	m.SetReg(protocol.RegDFUState, []byte{byte(protocol.DfuCrcError)})

	err := engine.UploadFirmware(firmware, nil)
	if err == nil {
		t.Fatal("expected error on crc error status")
	}
	var stateErr *dfu.StateError
	if !errors.As(err, &stateErr) {
		t.Fatalf("expected StateError, got %v (%T)", err, err)
	}
	if stateErr.State != protocol.DfuCrcError {
		t.Errorf("state = %v, want CrcError", stateErr.State)
	}

	abort := m.GetReg(protocol.RegDFUAbort)
	if len(abort) != 1 || abort[0] != protocol.DFUActionValue {
		t.Errorf("abort register = %v, want [0x00]", abort)
	}
	commit := m.GetReg(protocol.RegDFUCommit)
	if len(commit) != 0 {
		t.Errorf("commit should never be written after a crc error, got %v", commit)
	}
}

func TestUploadFirmwareUnexpectedFinalStateAborts(t *testing.T) {
	engine, m := newEngine(t)
	firmware := make([]byte, 10)
	// Single block; status stays Updating forever instead of reaching
	// ReadyToCommit after the last block.
	m.SetReg(protocol.RegDFUState, []byte{byte(protocol.DfuUpdating)})

	err := engine.UploadFirmware(firmware, nil)
	if err == nil {
		t.Fatal("expected error when final status is not ReadyToCommit")
	}
	var unexpected *dfu.UnexpectedStateError
	if !errors.As(err, &unexpected) {
		t.Fatalf("expected UnexpectedStateError, got %v (%T)", err, err)
	}

	abort := m.GetReg(protocol.RegDFUAbort)
	if len(abort) != 1 {
		t.Errorf("expected abort to be written, got %v", abort)
	}
}
