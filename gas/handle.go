package gas

import (
	"fmt"

	"github.com/hpcgo/pgas-go/transport"
)

// Handle identifies the in-flight sub-requests of one non-blocking
// RMA operation. A handle holds at most two sub-requests (the chunk
// transfer and the remainder). Handles are owned exclusively by the
// caller and must be driven to completion by the wait or test family;
// a nil handle is a completed no-op for all of them.
type Handle struct {
	rt         *Runtime
	dest       int
	win        transport.Window
	needsFlush bool
	reqs       []transport.Request
}

// Wait blocks until the operation has completed locally and, for
// operations owing a flush, remotely. On return the handle is
// released and *hp is nil.
func (rt *Runtime) Wait(hp **Handle) error {
	if hp == nil || *hp == nil {
		return nil
	}
	h := *hp
	if len(h.reqs) > 0 {
		if err := rt.tp.Waitall(h.reqs); err != nil {
			return fmt.Errorf("%w: wait: %v", ErrInvalidArgument, err)
		}
		if h.needsFlush {
			if err := h.win.Flush(h.dest); err != nil {
				return fmt.Errorf("%w: wait flush: %v", ErrInvalidArgument, err)
			}
		}
	}
	*hp = nil
	return nil
}

// WaitLocal blocks until the operation has completed locally. Remote
// completion of puts is not established; a later flush is owed. On
// return the handle is released and *hp is nil.
func (rt *Runtime) WaitLocal(hp **Handle) error {
	if hp == nil || *hp == nil {
		return nil
	}
	h := *hp
	if len(h.reqs) > 0 {
		if err := rt.tp.Waitall(h.reqs); err != nil {
			return fmt.Errorf("%w: wait_local: %v", ErrInvalidArgument, err)
		}
	}
	*hp = nil
	return nil
}

// Waitall drives every handle in the slice to local and remote
// completion and sets all entries to nil.
func (rt *Runtime) Waitall(handles []*Handle) error {
	if len(handles) == 0 {
		return nil
	}
	reqs := make([]transport.Request, 0, 2*len(handles))
	for _, h := range handles {
		if h != nil {
			reqs = append(reqs, h.reqs...)
		}
	}
	if len(reqs) > 0 {
		if err := rt.tp.Waitall(reqs); err != nil {
			return fmt.Errorf("%w: waitall: %v", ErrInvalidArgument, err)
		}
		for _, h := range handles {
			if h != nil && h.needsFlush {
				if err := h.win.Flush(h.dest); err != nil {
					return fmt.Errorf("%w: waitall flush: %v", ErrInvalidArgument, err)
				}
			}
		}
	}
	for i := range handles {
		handles[i] = nil
	}
	return nil
}

// WaitallLocal awaits local completion of every handle and sets all
// entries to nil. Remote completion of puts is not established.
func (rt *Runtime) WaitallLocal(handles []*Handle) error {
	if len(handles) == 0 {
		return nil
	}
	reqs := make([]transport.Request, 0, 2*len(handles))
	for _, h := range handles {
		if h != nil {
			reqs = append(reqs, h.reqs...)
		}
	}
	if len(reqs) > 0 {
		if err := rt.tp.Waitall(reqs); err != nil {
			return fmt.Errorf("%w: waitall_local: %v", ErrInvalidArgument, err)
		}
	}
	for i := range handles {
		handles[i] = nil
	}
	return nil
}

// TestLocal reports whether the operation has completed locally. When
// it has, the handle is released and *hp set to nil; otherwise the
// handle stays active.
func (rt *Runtime) TestLocal(hp **Handle) (bool, error) {
	if hp == nil || *hp == nil || len((*hp).reqs) == 0 {
		if hp != nil {
			*hp = nil
		}
		return true, nil
	}
	done, err := rt.tp.Testall((*hp).reqs)
	if err != nil {
		return false, fmt.Errorf("%w: test_local: %v", ErrOther, err)
	}
	if done {
		*hp = nil
	}
	return done, nil
}

// TestallLocal reports whether every handle has completed locally.
// When all have, the handles are released and the entries set to nil;
// otherwise every handle stays active.
func (rt *Runtime) TestallLocal(handles []*Handle) (bool, error) {
	if len(handles) == 0 {
		return true, nil
	}
	reqs := make([]transport.Request, 0, 2*len(handles))
	for _, h := range handles {
		if h != nil {
			reqs = append(reqs, h.reqs...)
		}
	}
	if len(reqs) == 0 {
		for i := range handles {
			handles[i] = nil
		}
		return true, nil
	}
	done, err := rt.tp.Testall(reqs)
	if err != nil {
		return false, fmt.Errorf("%w: testall_local: %v", ErrOther, err)
	}
	if done {
		for i := range handles {
			handles[i] = nil
		}
	}
	return done, nil
}
