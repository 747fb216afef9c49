package hardware

import (
	"fmt"
	"sync"
)

// mockTransportRaw is an in-memory fake bus for tests: a register map
// plus a hook to simulate transient failures, mirroring the role the
// teacher's hardware.Mock plays for its own register set. It implements
// RawTransport (one attempt per call); MockTransport wraps it with the
// same retry policy real hardware gets.
type mockTransportRaw struct {
	mu   sync.Mutex
	regs map[byte][]byte

	// sequences holds, per register, a queue of values to return one at
	// a time before falling back to regs — lets tests script a register
	// changing value across successive reads (e.g. DFU status
	// progressing QueueFull -> QueueFull -> Updating).
	sequences map[byte][][]byte

	// failNext, when > 0, makes the next N calls fail with a transient
	// error before decrementing back toward zero.
	failNext int
}

func (m *mockTransportRaw) nextValue(reg byte) []byte {
	if seq, ok := m.sequences[reg]; ok && len(seq) > 0 {
		v := seq[0]
		m.sequences[reg] = seq[1:]
		return v
	}
	return m.regs[reg]
}

func (m *mockTransportRaw) consumeFailure() error {
	if m.failNext > 0 {
		m.failNext--
		return Transient(fmt.Errorf("mock: simulated transient bus error"))
	}
	return nil
}

func (m *mockTransportRaw) RawReadByte(reg byte) (byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.consumeFailure(); err != nil {
		return 0, err
	}
	b := m.nextValue(reg)
	if len(b) == 0 {
		return 0, nil
	}
	return b[0], nil
}

func (m *mockTransportRaw) RawReadBytes(reg byte, n int) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.consumeFailure(); err != nil {
		return nil, err
	}
	b := m.nextValue(reg)
	out := make([]byte, n)
	copy(out, b)
	return out, nil
}

func (m *mockTransportRaw) RawWriteByte(reg, value byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.consumeFailure(); err != nil {
		return err
	}
	m.regs[reg] = []byte{value}
	return nil
}

func (m *mockTransportRaw) RawWriteBytes(reg byte, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.consumeFailure(); err != nil {
		return err
	}
	buf := make([]byte, len(payload))
	copy(buf, payload)
	m.regs[reg] = buf
	return nil
}

func (m *mockTransportRaw) Close() error { return nil }

var _ RawTransport = (*mockTransportRaw)(nil)

// MockTransport is a retry-wrapped mock Transport with test-only
// inspection and fault-injection hooks.
type MockTransport struct {
	Transport
	raw *mockTransportRaw
}

// NewMockTransport returns a mock bus with all registers zeroed.
func NewMockTransport() *MockTransport {
	raw := &mockTransportRaw{regs: make(map[byte][]byte), sequences: make(map[byte][][]byte)}
	return &MockTransport{Transport: WithRetry(raw), raw: raw}
}

// SetRegSequence scripts reg to return each value in order on
// successive reads, one value per read call, before falling back to
// whatever SetReg last established.
func (m *MockTransport) SetRegSequence(reg byte, values ...[]byte) {
	m.raw.mu.Lock()
	defer m.raw.mu.Unlock()
	seq := make([][]byte, len(values))
	copy(seq, values)
	m.raw.sequences[reg] = seq
}

// SetReg seeds register reg with the given bytes, for test setup.
func (m *MockTransport) SetReg(reg byte, value []byte) {
	m.raw.mu.Lock()
	defer m.raw.mu.Unlock()
	buf := make([]byte, len(value))
	copy(buf, value)
	m.raw.regs[reg] = buf
}

// GetReg returns the raw bytes currently stored at reg, for assertions.
func (m *MockTransport) GetReg(reg byte) []byte {
	m.raw.mu.Lock()
	defer m.raw.mu.Unlock()
	return append([]byte(nil), m.raw.regs[reg]...)
}

// SetFailNext arranges for the next n transport calls to fail with a
// transient bus error, to exercise the retry policy.
func (m *MockTransport) SetFailNext(n int) {
	m.raw.mu.Lock()
	defer m.raw.mu.Unlock()
	m.raw.failNext = n
}

var _ Transport = (*MockTransport)(nil)
