package bufcache

import (
	"errors"
	"fmt"
)

var (
	// ErrIO is matched by every *IOError.
	ErrIO = errors.New("block i/o failed")

	// ErrAllInUse is wrapped by the *CapacityError Get panics with.
	ErrAllInUse = errors.New("all slots in use")

	// ErrBusy is returned when a reconfiguration finds pinned slots.
	ErrBusy = errors.New("cache busy")

	// ErrInvalidArgument is returned for unusable sizes.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrMemoryLimit is returned when the pool does not fit the resource
	// controller's memory budget.
	ErrMemoryLimit = errors.New("memory limit exceeded")

	// ErrNotMounted is returned for I/O on a device that is not mounted.
	ErrNotMounted = errors.New("device not mounted")

	// ErrAlreadyMounted is returned by Mount for a device id in use.
	ErrAlreadyMounted = errors.New("device already mounted")

	// ErrDeviceBusy is returned when a device still has pinned blocks.
	ErrDeviceBusy = errors.New("device busy")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("cache closed")
)

// IOError reports a failed or short transfer of one block.
//
// The original underlying error can be accessed via errors.Unwrap.
type IOError struct {
	Op    string
	Dev   DevID
	Block BlockNo
	Err   error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s#%d: %v", e.Op, e.Dev, e.Block, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// Is makes every IOError match ErrIO.
func (e *IOError) Is(target error) bool { return target == ErrIO }

// CapacityError is the panic value of a Get that finds every slot pinned.
type CapacityError struct {
	Slots int
	Want  BlockID
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("bufcache: all %d slots in use, cannot load %s", e.Slots, e.Want)
}

func (e *CapacityError) Unwrap() error { return ErrAllInUse }

// ConfigError reports a rejected pool configuration.
type ConfigError struct {
	Op     string
	Slots  int
	Size   int
	Pinned int
	cause  error
}

func (e *ConfigError) Error() string {
	if e.Pinned > 0 {
		return fmt.Sprintf("%s: %d slots pinned: %v", e.Op, e.Pinned, e.cause)
	}
	return fmt.Sprintf("%s (slots=%d, block size=%d): %v", e.Op, e.Slots, e.Size, e.cause)
}

func (e *ConfigError) Unwrap() error { return e.cause }

func ioError(op string, id BlockID, err error) *IOError {
	return &IOError{Op: op, Dev: id.Dev, Block: id.Block, Err: err}
}
