package gas

import (
	"fmt"

	"github.com/hpcgo/pgas-go/transport"
)

// Every transfer splits its element count into full chunks of the
// precomputed aggregate type plus a remainder of the native type, so
// any count up to chunk^2 elements completes in at most two transport
// calls. Chunks go first in address order.
type chunkFn func(buf []byte, count int, dt transport.DataType, disp int64) error

func (rt *Runtime) chunked(buf []byte, nelem int, entry typeEntry, disp int64, fn chunkFn) error {
	nchunks := nelem / rt.chunkElems
	remainder := nelem % rt.chunkElems
	if nchunks > 0 {
		nbytes := nchunks * rt.chunkElems * entry.size
		if err := fn(buf[:nbytes], nchunks, entry.chunk, disp); err != nil {
			return err
		}
		buf = buf[nbytes:]
		disp += int64(nbytes)
	}
	if remainder > 0 {
		return fn(buf[:remainder*entry.size], remainder, entry.native, disp)
	}
	return nil
}

func (rt *Runtime) checkBuffer(buf []byte, nelem int, entry typeEntry) (int, error) {
	nbytes := nelem * entry.size
	if len(buf) < nbytes {
		return 0, fmt.Errorf("%w: buffer of %d bytes for %d elements of %d bytes",
			ErrInvalidArgument, len(buf), nelem, entry.size)
	}
	return nbytes, nil
}

// Get copies nelem elements from the global address into dst,
// blocking until the data is locally visible. Co-located targets and
// the calling unit itself are served by a direct memory copy.
func (rt *Runtime) Get(dst []byte, ptr GlobPtr, nelem int, kind Kind) error {
	team, entry, nbytes, err := rt.prepare(dst, ptr, nelem, kind)
	if err != nil {
		rt.metricRMAFailed("get", err, logKV("team", ptr.Team))
		return err
	}

	if base := rt.sharedBase(team, ptr); base != nil {
		if err := copyShared(dst[:nbytes], base, ptr.Offset); err != nil {
			rt.metricRMAFailed("get", err, logKV("team", ptr.Team))
			return err
		}
		rt.logEvent("get_shared", logKV("unit", ptr.Unit), logKV("nelem", nelem))
		rt.metricRMACompleted("get", logKV("path", "shared"))
		return nil
	}

	win, disp, err := rt.windowFor(team, ptr)
	if err != nil {
		rt.metricRMAFailed("get", err, logKV("team", ptr.Team))
		return err
	}
	disp += int64(ptr.Offset)

	if team.myRank == int(ptr.Unit) {
		copy(dst[:nbytes], win.Base()[disp:])
		rt.metricRMACompleted("get", logKV("path", "local"))
		return nil
	}

	var reqs []transport.Request
	err = rt.chunked(dst, nelem, entry, disp, func(buf []byte, count int, dt transport.DataType, d int64) error {
		req, err := win.RGet(buf, count, dt, int(ptr.Unit), d)
		if err != nil {
			return fmt.Errorf("%w: rget: %v", ErrInvalidArgument, err)
		}
		reqs = append(reqs, req)
		return nil
	})
	if err == nil {
		if werr := rt.tp.Waitall(reqs); werr != nil {
			err = fmt.Errorf("%w: waitall: %v", ErrInvalidArgument, werr)
		}
	}
	if err != nil {
		rt.metricRMAFailed("get", err, logKV("team", ptr.Team))
		return err
	}
	rt.logEvent("get", logKV("unit", ptr.Unit), logKV("nelem", nelem), logKV("segment", ptr.Segment))
	rt.metricRMACompleted("get", logKV("path", "remote"))
	return nil
}

// Put issues a transfer of nelem elements from src to the global
// address. It returns once the transport has accepted the transfer;
// remote visibility requires a subsequent flush on the target.
func (rt *Runtime) Put(ptr GlobPtr, src []byte, nelem int, kind Kind) error {
	team, entry, nbytes, err := rt.prepare(src, ptr, nelem, kind)
	if err != nil {
		rt.metricRMAFailed("put", err, logKV("team", ptr.Team))
		return err
	}

	if base := rt.sharedBase(team, ptr); base != nil {
		if err := copySharedTo(base, ptr.Offset, src[:nbytes]); err != nil {
			rt.metricRMAFailed("put", err, logKV("team", ptr.Team))
			return err
		}
		rt.logEvent("put_shared", logKV("unit", ptr.Unit), logKV("nelem", nelem))
		rt.metricRMACompleted("put", logKV("path", "shared"))
		return nil
	}

	win, disp, err := rt.windowFor(team, ptr)
	if err != nil {
		rt.metricRMAFailed("put", err, logKV("team", ptr.Team))
		return err
	}
	disp += int64(ptr.Offset)

	if team.myRank == int(ptr.Unit) {
		copy(win.Base()[disp:], src[:nbytes])
		rt.metricRMACompleted("put", logKV("path", "local"))
		return nil
	}

	err = rt.chunked(src, nelem, entry, disp, func(buf []byte, count int, dt transport.DataType, d int64) error {
		if err := win.Put(buf, count, dt, int(ptr.Unit), d); err != nil {
			return fmt.Errorf("%w: put: %v", ErrInvalidArgument, err)
		}
		return nil
	})
	if err != nil {
		rt.metricRMAFailed("put", err, logKV("team", ptr.Team))
		return err
	}
	rt.logEvent("put", logKV("unit", ptr.Unit), logKV("nelem", nelem), logKV("segment", ptr.Segment))
	rt.metricRMACompleted("put", logKV("path", "remote"))
	return nil
}

// PutBlocking transfers like Put and then flushes the target, so the
// write is remotely visible on return.
func (rt *Runtime) PutBlocking(ptr GlobPtr, src []byte, nelem int, kind Kind) error {
	if err := rt.Put(ptr, src, nelem, kind); err != nil {
		return err
	}
	return rt.Flush(ptr)
}

// Accumulate reduces nelem elements of values into the target memory
// with the operator. No fast paths: element-wise atomicity is only
// guaranteed through the transport.
func (rt *Runtime) Accumulate(ptr GlobPtr, values []byte, nelem int, kind Kind, op Op) error {
	team, entry, _, err := rt.prepare(values, ptr, nelem, kind)
	if err != nil {
		rt.metricRMAFailed("accumulate", err, logKV("team", ptr.Team))
		return err
	}
	win, disp, err := rt.windowFor(team, ptr)
	if err != nil {
		rt.metricRMAFailed("accumulate", err, logKV("team", ptr.Team))
		return err
	}
	disp += int64(ptr.Offset)

	err = rt.chunked(values, nelem, entry, disp, func(buf []byte, count int, dt transport.DataType, d int64) error {
		if err := win.Accumulate(buf, count, dt, int(ptr.Unit), d, op); err != nil {
			return fmt.Errorf("%w: accumulate: %v", ErrInvalidArgument, err)
		}
		return nil
	})
	if err != nil {
		rt.metricRMAFailed("accumulate", err, logKV("team", ptr.Team))
		return err
	}
	rt.logEvent("accumulate", logKV("unit", ptr.Unit), logKV("nelem", nelem), logKV("op", op))
	rt.metricRMACompleted("accumulate", logKV("op", op))
	return nil
}

// FetchAndOp atomically applies the operator to a single element at
// the target and stores the pre-op value into result.
func (rt *Runtime) FetchAndOp(ptr GlobPtr, value, result []byte, kind Kind, op Op) error {
	team, entry, _, err := rt.prepare(result, ptr, 1, kind)
	if err != nil {
		rt.metricRMAFailed("fetch_and_op", err, logKV("team", ptr.Team))
		return err
	}
	if _, err := rt.checkBuffer(value, 1, entry); err != nil {
		rt.metricRMAFailed("fetch_and_op", err, logKV("team", ptr.Team))
		return err
	}
	win, disp, err := rt.windowFor(team, ptr)
	if err != nil {
		rt.metricRMAFailed("fetch_and_op", err, logKV("team", ptr.Team))
		return err
	}
	if err := win.FetchAndOp(value, result, entry.native, int(ptr.Unit), disp+int64(ptr.Offset), op); err != nil {
		err = fmt.Errorf("%w: fetch_and_op: %v", ErrInvalidArgument, err)
		rt.metricRMAFailed("fetch_and_op", err, logKV("team", ptr.Team))
		return err
	}
	rt.logEvent("fetch_and_op", logKV("unit", ptr.Unit), logKV("op", op))
	rt.metricRMACompleted("fetch_and_op", logKV("op", op))
	return nil
}

// CompareAndSwap atomically replaces the target element with value if
// it equals expected, storing the pre-swap value into result. Only
// integral kinds up to 64 bits are supported.
func (rt *Runtime) CompareAndSwap(ptr GlobPtr, value, expected, result []byte, kind Kind) error {
	if !kind.Integral() {
		err := fmt.Errorf("%w: compare-and-swap is only valid on integral kinds, got %s",
			ErrInvalidArgument, kind)
		rt.metricRMAFailed("compare_and_swap", err, logKV("team", ptr.Team))
		return err
	}
	team, entry, _, err := rt.prepare(result, ptr, 1, kind)
	if err != nil {
		rt.metricRMAFailed("compare_and_swap", err, logKV("team", ptr.Team))
		return err
	}
	win, disp, err := rt.windowFor(team, ptr)
	if err != nil {
		rt.metricRMAFailed("compare_and_swap", err, logKV("team", ptr.Team))
		return err
	}
	if err := win.CompareAndSwap(value, expected, result, entry.native, int(ptr.Unit), disp+int64(ptr.Offset)); err != nil {
		err = fmt.Errorf("%w: compare_and_swap: %v", ErrInvalidArgument, err)
		rt.metricRMAFailed("compare_and_swap", err, logKV("team", ptr.Team))
		return err
	}
	rt.logEvent("compare_and_swap", logKV("unit", ptr.Unit))
	rt.metricRMACompleted("compare_and_swap")
	return nil
}

// GetHandle issues the transfer of Get without awaiting it and
// returns a handle for the in-flight sub-requests. When the
// shared-memory fast path serves the transfer the returned handle is
// nil: the operation has already completed.
func (rt *Runtime) GetHandle(dst []byte, ptr GlobPtr, nelem int, kind Kind) (*Handle, error) {
	team, entry, nbytes, err := rt.prepare(dst, ptr, nelem, kind)
	if err != nil {
		rt.metricRMAFailed("get", err, logKV("team", ptr.Team))
		return nil, err
	}

	if base := rt.sharedBase(team, ptr); base != nil {
		if err := copyShared(dst[:nbytes], base, ptr.Offset); err != nil {
			rt.metricRMAFailed("get", err, logKV("team", ptr.Team))
			return nil, err
		}
		rt.metricRMACompleted("get", logKV("path", "shared"))
		return nil, nil
	}

	win, disp, err := rt.windowFor(team, ptr)
	if err != nil {
		rt.metricRMAFailed("get", err, logKV("team", ptr.Team))
		return nil, err
	}
	disp += int64(ptr.Offset)

	handle := &Handle{rt: rt, dest: int(ptr.Unit), win: win}
	err = rt.chunked(dst, nelem, entry, disp, func(buf []byte, count int, dt transport.DataType, d int64) error {
		req, err := win.RGet(buf, count, dt, int(ptr.Unit), d)
		if err != nil {
			return fmt.Errorf("%w: rget: %v", ErrInvalidArgument, err)
		}
		handle.reqs = append(handle.reqs, req)
		return nil
	})
	if err != nil {
		rt.metricRMAFailed("get", err, logKV("team", ptr.Team))
		return nil, err
	}
	rt.logEvent("get_handle", logKV("unit", ptr.Unit), logKV("nelem", nelem))
	return handle, nil
}

// PutHandle issues the transfer of Put without awaiting it. The
// returned handle owes a flush: remote completion is established by
// Wait or Waitall. A nil handle reports a transfer already completed
// through the shared-memory fast path.
func (rt *Runtime) PutHandle(ptr GlobPtr, src []byte, nelem int, kind Kind) (*Handle, error) {
	team, entry, nbytes, err := rt.prepare(src, ptr, nelem, kind)
	if err != nil {
		rt.metricRMAFailed("put", err, logKV("team", ptr.Team))
		return nil, err
	}

	if base := rt.sharedBase(team, ptr); base != nil {
		if err := copySharedTo(base, ptr.Offset, src[:nbytes]); err != nil {
			rt.metricRMAFailed("put", err, logKV("team", ptr.Team))
			return nil, err
		}
		rt.metricRMACompleted("put", logKV("path", "shared"))
		return nil, nil
	}

	win, disp, err := rt.windowFor(team, ptr)
	if err != nil {
		rt.metricRMAFailed("put", err, logKV("team", ptr.Team))
		return nil, err
	}
	disp += int64(ptr.Offset)

	handle := &Handle{rt: rt, dest: int(ptr.Unit), win: win, needsFlush: true}
	err = rt.chunked(src, nelem, entry, disp, func(buf []byte, count int, dt transport.DataType, d int64) error {
		req, err := win.RPut(buf, count, dt, int(ptr.Unit), d)
		if err != nil {
			return fmt.Errorf("%w: rput: %v", ErrInvalidArgument, err)
		}
		handle.reqs = append(handle.reqs, req)
		return nil
	})
	if err != nil {
		rt.metricRMAFailed("put", err, logKV("team", ptr.Team))
		return nil, err
	}
	rt.logEvent("put_handle", logKV("unit", ptr.Unit), logKV("nelem", nelem))
	return handle, nil
}

// prepare performs the checks shared by all RMA entry points.
func (rt *Runtime) prepare(buf []byte, ptr GlobPtr, nelem int, kind Kind) (*Team, typeEntry, int, error) {
	if rt == nil {
		return nil, typeEntry{}, 0, ErrInvalidHandle{"runtime"}
	}
	if rt.finalized.Load() {
		return nil, typeEntry{}, 0, ErrFinalized
	}
	team, err := rt.resolveTeam(ptr)
	if err != nil {
		return nil, typeEntry{}, 0, err
	}
	entry, err := rt.types.lookup(kind)
	if err != nil {
		return nil, typeEntry{}, 0, err
	}
	nbytes, err := rt.checkBuffer(buf, nelem, entry)
	if err != nil {
		return nil, typeEntry{}, 0, err
	}
	return team, entry, nbytes, nil
}

func copyShared(dst []byte, base []byte, offset uint64) error {
	if offset+uint64(len(dst)) > uint64(len(base)) {
		return fmt.Errorf("%w: shared window access [%d, %d) outside region of %d bytes",
			ErrInvalidArgument, offset, offset+uint64(len(dst)), len(base))
	}
	copy(dst, base[offset:])
	return nil
}

func copySharedTo(base []byte, offset uint64, src []byte) error {
	if offset+uint64(len(src)) > uint64(len(base)) {
		return fmt.Errorf("%w: shared window access [%d, %d) outside region of %d bytes",
			ErrInvalidArgument, offset, offset+uint64(len(src)), len(base))
	}
	copy(base[offset:], src)
	return nil
}
