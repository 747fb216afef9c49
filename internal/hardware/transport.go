// Package hardware implements the I²C transport layer: atomic
// transactions against the power controller, with bounded retry on
// transient bus errors.
package hardware

import (
	"errors"
	"fmt"
	"time"
)

const (
	maxRetries  = 3
	retryDelay  = 10 * time.Millisecond
)

// Transport is the atomic I²C primitive set every higher layer builds
// on. Each call is one critical section: callers never interleave
// half-transactions, and a retried call re-issues a fresh transaction
// rather than resuming a partial one.
type Transport interface {
	ReadByte(reg byte) (byte, error)
	// ReadBytes performs a combined write-register-then-read-n-bytes
	// transaction so the controller latches the right register.
	ReadBytes(reg byte, n int) ([]byte, error)
	WriteByte(reg, value byte) error
	WriteBytes(reg byte, payload []byte) error
	Close() error
}

// RawTransport performs exactly one attempt at each primitive, with no
// retry — the single-shot core that both the real Linux driver and the
// mock implement. WithRetry wraps either into the public Transport.
type RawTransport interface {
	RawReadByte(reg byte) (byte, error)
	RawReadBytes(reg byte, n int) ([]byte, error)
	RawWriteByte(reg, value byte) error
	RawWriteBytes(reg byte, payload []byte) error
	Close() error
}

// WithRetry wraps a RawTransport with the bounded-retry policy (3
// retries, 10ms backoff, transient errors only) shared by every
// transport implementation.
func WithRetry(raw RawTransport) Transport {
	return &retrying{raw: raw}
}

type retrying struct {
	raw RawTransport
}

func (r *retrying) ReadByte(reg byte) (byte, error) {
	var result byte
	err := withRetry(reg, "read", func() error {
		b, err := r.raw.RawReadByte(reg)
		if err != nil {
			return err
		}
		result = b
		return nil
	})
	return result, err
}

func (r *retrying) ReadBytes(reg byte, n int) ([]byte, error) {
	var result []byte
	err := withRetry(reg, "read", func() error {
		b, err := r.raw.RawReadBytes(reg, n)
		if err != nil {
			return err
		}
		result = b
		return nil
	})
	return result, err
}

func (r *retrying) WriteByte(reg, value byte) error {
	return withRetry(reg, "write", func() error {
		return r.raw.RawWriteByte(reg, value)
	})
}

func (r *retrying) WriteBytes(reg byte, payload []byte) error {
	return withRetry(reg, "write", func() error {
		return r.raw.RawWriteBytes(reg, payload)
	})
}

func (r *retrying) Close() error { return r.raw.Close() }

var _ Transport = (*retrying)(nil)

// TransientError marks a bus error as retryable. Protocol decode errors
// (bad enum byte, short read) are never wrapped in this and surface
// immediately without retry.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// Transient wraps err as a retryable transient bus error.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

func isTransient(err error) bool {
	var t *TransientError
	return errors.As(err, &t)
}

// withRetry runs op up to maxRetries+1 times, sleeping retryDelay
// between attempts, but only when the failure is transient. The final
// error returned carries register and direction context for
// diagnostics.
func withRetry(reg byte, direction string, op func() error) error {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(retryDelay)
		}
		err := op()
		if err == nil {
			return nil
		}
		lastErr = err
		if !isTransient(err) {
			return fmt.Errorf("i2c: %s reg=%#02x: %w", direction, reg, err)
		}
	}
	return fmt.Errorf("i2c: %s reg=%#02x: exhausted %d retries: %w", direction, reg, maxRetries, lastErr)
}
