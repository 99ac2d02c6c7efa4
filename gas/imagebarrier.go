package gas

import "fmt"

// imageBarrierTag is the fixed runtime-owned tag of the subset
// barrier, distinct from any tag surfaced through Send and Recv.
const imageBarrierTag = 10016

// BarrierImages blocks until every unit of the subset has entered the
// call; units not in the subset return immediately. The rendezvous
// runs over two-sided messages in two phases rooted at the smallest
// id of the subset: every other participant signals the root, then
// the root releases them. On return every participant has observed
// every other participant reach the call.
func (rt *Runtime) BarrierImages(units []UnitID) error {
	if rt == nil {
		return ErrInvalidHandle{"runtime"}
	}
	if rt.finalized.Load() {
		return ErrFinalized
	}
	me := UnitID(rt.myUnit)
	participant := false
	root := UnitID(0)
	first := true
	for _, u := range units {
		if int(u) >= rt.numUnits {
			return fmt.Errorf("%w: unit %d out of range", ErrInvalidArgument, u)
		}
		if u == me {
			participant = true
		}
		if first || u < root {
			root = u
			first = false
		}
	}
	if !participant {
		return nil
	}

	byteType := rt.types.entries[Byte].native
	buf := make([]byte, 1)

	if me == root {
		for _, u := range units {
			if u == root {
				continue
			}
			if err := rt.world.Recv(buf, 1, byteType, int(u), imageBarrierTag); err != nil {
				return fmt.Errorf("%w: image barrier gather: %v", ErrInvalidArgument, err)
			}
		}
	} else {
		if err := rt.world.Send(buf, 1, byteType, int(root), imageBarrierTag); err != nil {
			return fmt.Errorf("%w: image barrier signal: %v", ErrInvalidArgument, err)
		}
	}

	if me == root {
		for _, u := range units {
			if u == root {
				continue
			}
			if err := rt.world.Send(buf, 1, byteType, int(u), imageBarrierTag); err != nil {
				return fmt.Errorf("%w: image barrier release: %v", ErrInvalidArgument, err)
			}
		}
	} else {
		if err := rt.world.Recv(buf, 1, byteType, int(root), imageBarrierTag); err != nil {
			return fmt.Errorf("%w: image barrier release: %v", ErrInvalidArgument, err)
		}
	}
	rt.logEvent("image_barrier", logKV("root", root), logKV("participants", len(units)))
	return nil
}
