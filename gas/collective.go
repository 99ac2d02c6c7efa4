package gas

import (
	"fmt"

	"github.com/hpcgo/pgas-go/transport"
)

// Bcast, Scatter, Gather and Allgather split their element count into
// chunks as the RMA engine does; Allgatherv, Allreduce and Reduce issue
// a single transport call and reject counts past the chunk capacity.
// Every member of the team invokes them in the same order; root must
// be a valid team rank.

func (t *Team) checkRoot(root int) error {
	if root < 0 || root >= t.Size() {
		return fmt.Errorf("%w: root %d out of range 0 <= r < %d",
			ErrInvalidArgument, root, t.Size())
	}
	return nil
}

func (t *Team) collectivePrep(nelem int, kind Kind) (typeEntry, error) {
	if t == nil {
		return typeEntry{}, ErrInvalidHandle{"team"}
	}
	if t.rt.finalized.Load() {
		return typeEntry{}, ErrFinalized
	}
	entry, err := t.rt.types.lookup(kind)
	if err != nil {
		return typeEntry{}, err
	}
	if nelem < 0 {
		return typeEntry{}, fmt.Errorf("%w: negative element count", ErrInvalidArgument)
	}
	return entry, nil
}

// Barrier blocks until every member of the team has entered it.
func (t *Team) Barrier() error {
	if t == nil {
		return ErrInvalidHandle{"team"}
	}
	if err := t.comm.Barrier(); err != nil {
		err = fmt.Errorf("%w: barrier: %v", ErrInvalidArgument, err)
		t.rt.metricCollectiveFailed("barrier", err, logKV("team", t.id))
		return err
	}
	t.rt.metricCollectiveCompleted("barrier", logKV("team", t.id))
	return nil
}

// Bcast replicates nelem elements from root's buffer into every
// member's buffer.
func (t *Team) Bcast(buf []byte, nelem int, kind Kind, root int) error {
	entry, err := t.collectivePrep(nelem, kind)
	if err == nil {
		err = t.checkRoot(root)
	}
	if err != nil {
		t.rt.metricCollectiveFailed("bcast", err, logKV("team", t.id))
		return err
	}
	err = t.chunkedCollective(buf, nelem, entry, func(b []byte, count int, dt transport.DataType) error {
		return t.comm.Bcast(b, count, dt, root)
	})
	if err != nil {
		err = fmt.Errorf("%w: bcast: %v", ErrInvalidArgument, err)
		t.rt.metricCollectiveFailed("bcast", err, logKV("team", t.id))
		return err
	}
	t.rt.metricCollectiveCompleted("bcast", logKV("team", t.id))
	return nil
}

// Scatter distributes nelem elements to each member from root's send
// buffer.
func (t *Team) Scatter(send, recv []byte, nelem int, kind Kind, root int) error {
	entry, err := t.collectivePrep(nelem, kind)
	if err == nil {
		err = t.checkRoot(root)
	}
	if err != nil {
		t.rt.metricCollectiveFailed("scatter", err, logKV("team", t.id))
		return err
	}
	err = t.chunkedRooted(send, recv, nelem, entry, func(s, r []byte, count int, dt transport.DataType) error {
		return t.comm.Scatter(s, r, count, dt, root)
	})
	if err != nil {
		err = fmt.Errorf("%w: scatter: %v", ErrInvalidArgument, err)
		t.rt.metricCollectiveFailed("scatter", err, logKV("team", t.id))
		return err
	}
	t.rt.metricCollectiveCompleted("scatter", logKV("team", t.id))
	return nil
}

// Gather collects nelem elements from every member into root's
// receive buffer.
func (t *Team) Gather(send, recv []byte, nelem int, kind Kind, root int) error {
	entry, err := t.collectivePrep(nelem, kind)
	if err == nil {
		err = t.checkRoot(root)
	}
	if err != nil {
		t.rt.metricCollectiveFailed("gather", err, logKV("team", t.id))
		return err
	}
	err = t.chunkedRooted(send, recv, nelem, entry, func(s, r []byte, count int, dt transport.DataType) error {
		return t.comm.Gather(s, r, count, dt, root)
	})
	if err != nil {
		err = fmt.Errorf("%w: gather: %v", ErrInvalidArgument, err)
		t.rt.metricCollectiveFailed("gather", err, logKV("team", t.id))
		return err
	}
	t.rt.metricCollectiveCompleted("gather", logKV("team", t.id))
	return nil
}

// Allgather collects nelem elements from every member into every
// member's receive buffer.
func (t *Team) Allgather(send, recv []byte, nelem int, kind Kind) error {
	entry, err := t.collectivePrep(nelem, kind)
	if err != nil {
		t.rt.metricCollectiveFailed("allgather", err, logKV("team", t.id))
		return err
	}
	err = t.chunkedRooted(send, recv, nelem, entry, func(s, r []byte, count int, dt transport.DataType) error {
		return t.comm.Allgather(s, r, count, dt)
	})
	if err != nil {
		err = fmt.Errorf("%w: allgather: %v", ErrInvalidArgument, err)
		t.rt.metricCollectiveFailed("allgather", err, logKV("team", t.id))
		return err
	}
	t.rt.metricCollectiveCompleted("allgather", logKV("team", t.id))
	return nil
}

// Allgatherv collects a variable element count from every member.
// Per-member counts and displacements are bounded by the transport's
// single-call element limit.
func (t *Team) Allgatherv(send []byte, nsend int, kind Kind, recv []byte, recvCounts, recvDispls []int) error {
	entry, err := t.collectivePrep(nsend, kind)
	if err != nil {
		t.rt.metricCollectiveFailed("allgatherv", err, logKV("team", t.id))
		return err
	}
	if nsend > t.rt.chunkElems {
		err = fmt.Errorf("%w: allgatherv send count %d exceeds %d",
			ErrInvalidArgument, nsend, t.rt.chunkElems)
		t.rt.metricCollectiveFailed("allgatherv", err, logKV("team", t.id))
		return err
	}
	if len(recvCounts) < t.Size() || len(recvDispls) < t.Size() {
		err = fmt.Errorf("%w: allgatherv needs %d counts and displacements",
			ErrInvalidArgument, t.Size())
		t.rt.metricCollectiveFailed("allgatherv", err, logKV("team", t.id))
		return err
	}
	for i := 0; i < t.Size(); i++ {
		if recvCounts[i] > t.rt.chunkElems || recvDispls[i] > t.rt.chunkElems {
			err = fmt.Errorf("%w: allgatherv count/displacement of rank %d exceeds %d",
				ErrInvalidArgument, i, t.rt.chunkElems)
			t.rt.metricCollectiveFailed("allgatherv", err, logKV("team", t.id))
			return err
		}
	}
	if err := t.comm.Allgatherv(send, nsend, entry.native, recv, recvCounts, recvDispls); err != nil {
		err = fmt.Errorf("%w: allgatherv: %v", ErrInvalidArgument, err)
		t.rt.metricCollectiveFailed("allgatherv", err, logKV("team", t.id))
		return err
	}
	t.rt.metricCollectiveCompleted("allgatherv", logKV("team", t.id))
	return nil
}

// Allreduce reduces nelem elements element-wise across all members
// into every member's receive buffer. Reductions are not chunked:
// counts past the single-call limit fail.
func (t *Team) Allreduce(send, recv []byte, nelem int, kind Kind, op Op) error {
	entry, err := t.collectivePrep(nelem, kind)
	if err != nil {
		t.rt.metricCollectiveFailed("allreduce", err, logKV("team", t.id))
		return err
	}
	if nelem > t.rt.chunkElems {
		err = fmt.Errorf("%w: allreduce count %d exceeds %d",
			ErrInvalidArgument, nelem, t.rt.chunkElems)
		t.rt.metricCollectiveFailed("allreduce", err, logKV("team", t.id))
		return err
	}
	if err := t.comm.Allreduce(send, recv, nelem, entry.native, op); err != nil {
		err = fmt.Errorf("%w: allreduce: %v", ErrInvalidArgument, err)
		t.rt.metricCollectiveFailed("allreduce", err, logKV("team", t.id))
		return err
	}
	t.rt.metricCollectiveCompleted("allreduce", logKV("team", t.id))
	return nil
}

// Reduce reduces nelem elements element-wise into root's receive
// buffer. Reductions are not chunked: counts past the single-call
// limit fail.
func (t *Team) Reduce(send, recv []byte, nelem int, kind Kind, op Op, root int) error {
	entry, err := t.collectivePrep(nelem, kind)
	if err == nil {
		err = t.checkRoot(root)
	}
	if err != nil {
		t.rt.metricCollectiveFailed("reduce", err, logKV("team", t.id))
		return err
	}
	if nelem > t.rt.chunkElems {
		err = fmt.Errorf("%w: reduce count %d exceeds %d",
			ErrInvalidArgument, nelem, t.rt.chunkElems)
		t.rt.metricCollectiveFailed("reduce", err, logKV("team", t.id))
		return err
	}
	if err := t.comm.Reduce(send, recv, nelem, entry.native, op, root); err != nil {
		err = fmt.Errorf("%w: reduce: %v", ErrInvalidArgument, err)
		t.rt.metricCollectiveFailed("reduce", err, logKV("team", t.id))
		return err
	}
	t.rt.metricCollectiveCompleted("reduce", logKV("team", t.id))
	return nil
}

// chunkedCollective runs a single-buffer collective chunk by chunk.
func (t *Team) chunkedCollective(buf []byte, nelem int, entry typeEntry, fn func(b []byte, count int, dt transport.DataType) error) error {
	nchunks := nelem / t.rt.chunkElems
	remainder := nelem % t.rt.chunkElems
	if nchunks > 0 {
		nbytes := nchunks * t.rt.chunkElems * entry.size
		if err := fn(buf[:nbytes], nchunks, entry.chunk); err != nil {
			return err
		}
		buf = buf[nbytes:]
	}
	if remainder > 0 {
		return fn(buf[:remainder*entry.size], remainder, entry.native)
	}
	return nil
}

// chunkedRooted runs a send/recv collective chunk by chunk, advancing
// both buffers in step. Buffers that only the root reads or writes
// may be nil on the other members.
func (t *Team) chunkedRooted(send, recv []byte, nelem int, entry typeEntry, fn func(s, r []byte, count int, dt transport.DataType) error) error {
	nchunks := nelem / t.rt.chunkElems
	remainder := nelem % t.rt.chunkElems
	if nchunks > 0 {
		nbytes := nchunks * t.rt.chunkElems * entry.size
		if err := fn(send, recv, nchunks, entry.chunk); err != nil {
			return err
		}
		send = advance(send, nbytes)
		recv = advance(recv, nbytes)
	}
	if remainder > 0 {
		return fn(send, recv, remainder, entry.native)
	}
	return nil
}

func advance(b []byte, n int) []byte {
	if len(b) < n {
		return nil
	}
	return b[n:]
}

// Send transmits nelem elements to a unit of the all-units team. The
// tag is passed through to the transport opaquely.
func (rt *Runtime) Send(buf []byte, nelem int, kind Kind, tag int, unit UnitID) error {
	entry, err := rt.p2pPrep(buf, nelem, kind, unit)
	if err != nil {
		rt.metricCollectiveFailed("send", err, logKV("unit", unit))
		return err
	}
	if err := rt.world.Send(buf, nelem, entry.native, int(unit), tag); err != nil {
		err = fmt.Errorf("%w: send: %v", ErrInvalidArgument, err)
		rt.metricCollectiveFailed("send", err, logKV("unit", unit))
		return err
	}
	rt.metricCollectiveCompleted("send", logKV("unit", unit))
	return nil
}

// Recv receives nelem elements from a unit of the all-units team.
func (rt *Runtime) Recv(buf []byte, nelem int, kind Kind, tag int, unit UnitID) error {
	entry, err := rt.p2pPrep(buf, nelem, kind, unit)
	if err != nil {
		rt.metricCollectiveFailed("recv", err, logKV("unit", unit))
		return err
	}
	if err := rt.world.Recv(buf, nelem, entry.native, int(unit), tag); err != nil {
		err = fmt.Errorf("%w: recv: %v", ErrInvalidArgument, err)
		rt.metricCollectiveFailed("recv", err, logKV("unit", unit))
		return err
	}
	rt.metricCollectiveCompleted("recv", logKV("unit", unit))
	return nil
}

// Sendrecv combines a send to dest with a receive from src.
func (rt *Runtime) Sendrecv(send []byte, sendElems int, sendKind Kind, sendTag int, dest UnitID,
	recv []byte, recvElems int, recvKind Kind, recvTag int, src UnitID) error {
	sendEntry, err := rt.p2pPrep(send, sendElems, sendKind, dest)
	if err != nil {
		rt.metricCollectiveFailed("sendrecv", err, logKV("unit", dest))
		return err
	}
	recvEntry, err := rt.p2pPrep(recv, recvElems, recvKind, src)
	if err != nil {
		rt.metricCollectiveFailed("sendrecv", err, logKV("unit", src))
		return err
	}
	if err := rt.world.Sendrecv(send, sendElems, sendEntry.native, int(dest), sendTag,
		recv, recvElems, recvEntry.native, int(src), recvTag); err != nil {
		err = fmt.Errorf("%w: sendrecv: %v", ErrInvalidArgument, err)
		rt.metricCollectiveFailed("sendrecv", err, logKV("unit", dest))
		return err
	}
	rt.metricCollectiveCompleted("sendrecv", logKV("unit", dest))
	return nil
}

func (rt *Runtime) p2pPrep(buf []byte, nelem int, kind Kind, unit UnitID) (typeEntry, error) {
	if rt == nil {
		return typeEntry{}, ErrInvalidHandle{"runtime"}
	}
	if rt.finalized.Load() {
		return typeEntry{}, ErrFinalized
	}
	entry, err := rt.types.lookup(kind)
	if err != nil {
		return typeEntry{}, err
	}
	if nelem > rt.chunkElems {
		return typeEntry{}, fmt.Errorf("%w: count %d exceeds %d",
			ErrInvalidArgument, nelem, rt.chunkElems)
	}
	if int(unit) >= rt.numUnits {
		return typeEntry{}, fmt.Errorf("%w: unit %d out of range 0 <= u < %d",
			ErrInvalidArgument, unit, rt.numUnits)
	}
	if _, err := rt.checkBuffer(buf, nelem, entry); err != nil {
		return typeEntry{}, err
	}
	return entry, nil
}
