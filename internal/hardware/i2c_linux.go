//go:build linux

package hardware

import (
	"context"
	"fmt"
	"os"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
	"golang.org/x/time/rate"
)

const (
	i2cRDWR      = 0x0707 // I2C_RDWR ioctl
	i2cMRD       = 0x0001 // I2C_M_RD: this message is a read
	maxOpsPerSec = 200
)

// i2cMsg mirrors struct i2c_msg from <linux/i2c.h>.
type i2cMsg struct {
	addr   uint16
	flags  uint16
	length uint16
	buf    uintptr
}

// i2cRdwrData mirrors struct i2c_rdwr_ioctl_data from <linux/i2c-dev.h>.
type i2cRdwrData struct {
	msgs uintptr
	nmsg uint32
}

// i2cBusRaw is the single-attempt Linux driver for the power controller,
// talking to /dev/i2c-<bus> with the slave address fixed for the
// lifetime of the handle. Every primitive is one combined I2C_RDWR
// ioctl, so the kernel driver observes exactly one transaction per call
// even when the retry wrapper re-issues it.
type i2cBusRaw struct {
	mu      sync.Mutex
	f       *os.File
	addr    uint16
	limiter *rate.Limiter
}

// OpenI2CBus opens /dev/i2c-<bus> for the controller at addr (7-bit) and
// returns a retry-wrapped Transport.
func OpenI2CBus(bus int, addr byte) (Transport, error) {
	path := fmt.Sprintf("/dev/i2c-%d", bus)
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("i2c: open %s: %w", path, err)
	}
	raw := &i2cBusRaw{
		f:       f,
		addr:    uint16(addr),
		limiter: rate.NewLimiter(rate.Limit(maxOpsPerSec), 1),
	}
	return WithRetry(raw), nil
}

func (b *i2cBusRaw) Close() error {
	return b.f.Close()
}

// transact performs one combined ioctl with the given set of messages,
// rate-limited to maxOpsPerSec.
func (b *i2cBusRaw) transact(msgs []i2cMsg) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	_ = b.limiter.Wait(context.Background()) //nolint:errcheck // background wait never errors

	data := i2cRdwrData{
		msgs: uintptr(unsafe.Pointer(&msgs[0])),
		nmsg: uint32(len(msgs)),
	}
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, b.f.Fd(), uintptr(i2cRDWR), uintptr(unsafe.Pointer(&data)))
	if errno != 0 {
		return Transient(errno)
	}
	return nil
}

func (b *i2cBusRaw) RawReadByte(reg byte) (byte, error) {
	out := make([]byte, 1)
	msgs := []i2cMsg{
		{addr: b.addr, flags: 0, length: 1, buf: uintptr(unsafe.Pointer(&reg))},
		{addr: b.addr, flags: i2cMRD, length: 1, buf: uintptr(unsafe.Pointer(&out[0]))},
	}
	if err := b.transact(msgs); err != nil {
		return 0, err
	}
	return out[0], nil
}

func (b *i2cBusRaw) RawReadBytes(reg byte, n int) ([]byte, error) {
	out := make([]byte, n)
	msgs := []i2cMsg{
		{addr: b.addr, flags: 0, length: 1, buf: uintptr(unsafe.Pointer(&reg))},
		{addr: b.addr, flags: i2cMRD, length: uint16(n), buf: uintptr(unsafe.Pointer(&out[0]))},
	}
	if err := b.transact(msgs); err != nil {
		return nil, err
	}
	return out, nil
}

func (b *i2cBusRaw) RawWriteByte(reg, value byte) error {
	payload := []byte{reg, value}
	msgs := []i2cMsg{
		{addr: b.addr, flags: 0, length: uint16(len(payload)), buf: uintptr(unsafe.Pointer(&payload[0]))},
	}
	return b.transact(msgs)
}

func (b *i2cBusRaw) RawWriteBytes(reg byte, payload []byte) error {
	frame := make([]byte, 0, len(payload)+1)
	frame = append(frame, reg)
	frame = append(frame, payload...)
	msgs := []i2cMsg{
		{addr: b.addr, flags: 0, length: uint16(len(frame)), buf: uintptr(unsafe.Pointer(&frame[0]))},
	}
	return b.transact(msgs)
}

var _ RawTransport = (*i2cBusRaw)(nil)
