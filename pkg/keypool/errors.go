package keypool

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidKey is returned when a handle is used in a way that
	// contradicts its allocation state: releasing a handle that is not
	// allocated, giving back a handle that is already free, or naming a
	// handle outside the pool's domain.
	ErrInvalidKey = errors.New("invalid key")

	// ErrPoolExhausted is returned by allocation when no free handle is left.
	// It can only happen when the domain was bounded with WithCeiling. The
	// default domain ends at math.MaxInt64, which cannot be exhausted in
	// practice.
	ErrPoolExhausted = errors.New("key pool exhausted")

	// ErrPartition is reported by Audit when a handle is both free and
	// allocated, or neither.
	ErrPartition = errors.New("free/allocated partition violated")

	// ErrAuditWindow is returned by Audit for a window above MaxAuditWindow.
	ErrAuditWindow = errors.New("audit window too large")
)

// KeyError records the operation and handle that failed.
type KeyError struct {
	Op     string
	Handle Handle
	Err    error
}

func (e *KeyError) Error() string {
	return fmt.Sprintf("keypool: %s %d: %s", e.Op, e.Handle, e.Err.Error())
}

func (e *KeyError) Unwrap() error {
	return e.Err
}

func keyErr(op string, h Handle, err error) error {
	return &KeyError{Op: op, Handle: h, Err: err}
}
