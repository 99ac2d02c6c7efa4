package gas

import "errors"

var (
	// ErrInvalidArgument indicates an out-of-range unit, unknown team,
	// unbound segment, oversized element count, or a transport call
	// that rejected its arguments.
	ErrInvalidArgument = errors.New("pgas: invalid argument")
	// ErrNotFound indicates a lookup that walked off the end of a
	// registry or locality tree.
	ErrNotFound = errors.New("pgas: not found")
	// ErrOther indicates a synchronization or window failure surfaced
	// by the transport.
	ErrOther = errors.New("pgas: operation failed")
	// ErrFinalized indicates the runtime has already been torn down.
	ErrFinalized = errors.New("pgas: runtime finalized")
)

// ErrInvalidHandle indicates a nil or torn-down resource was used.
type ErrInvalidHandle struct {
	Resource string
}

func (e ErrInvalidHandle) Error() string {
	return "pgas: invalid or closed " + e.Resource + " handle"
}
