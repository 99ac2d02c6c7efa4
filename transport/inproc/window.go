package inproc

import (
	"fmt"
	"sync"

	"github.com/hpcgo/pgas-go/transport"
)

// windowShared holds one region per communicator member. A single
// mutex orders all accesses, which also gives the atomics their
// atomicity.
type windowShared struct {
	mu      sync.Mutex
	regions [][]byte
}

type window struct {
	w    *World
	comm *comm
	sh   *windowShared
	rank int
}

func (win *window) target(rank int, disp int64, nbytes int) ([]byte, error) {
	if rank < 0 || rank >= len(win.sh.regions) {
		return nil, fmt.Errorf("inproc: window rank %d out of range", rank)
	}
	region := win.sh.regions[rank]
	if disp < 0 || disp+int64(nbytes) > int64(len(region)) {
		return nil, fmt.Errorf("inproc: window access [%d, %d) outside region of %d bytes",
			disp, disp+int64(nbytes), len(region))
	}
	return region[disp : disp+int64(nbytes)], nil
}

func (win *window) Get(dst []byte, count int, dt transport.DataType, rank int, disp int64) error {
	nbytes, _, err := payloadBytes(count, dt)
	if err != nil {
		return err
	}
	win.sh.mu.Lock()
	defer win.sh.mu.Unlock()
	src, err := win.target(rank, disp, nbytes)
	if err != nil {
		return err
	}
	copy(dst[:nbytes], src)
	return nil
}

func (win *window) Put(src []byte, count int, dt transport.DataType, rank int, disp int64) error {
	nbytes, _, err := payloadBytes(count, dt)
	if err != nil {
		return err
	}
	win.sh.mu.Lock()
	defer win.sh.mu.Unlock()
	dst, err := win.target(rank, disp, nbytes)
	if err != nil {
		return err
	}
	copy(dst, src[:nbytes])
	return nil
}

func (win *window) Accumulate(src []byte, count int, dt transport.DataType, rank int, disp int64, op transport.Op) error {
	nbytes, d, err := payloadBytes(count, dt)
	if err != nil {
		return err
	}
	win.sh.mu.Lock()
	defer win.sh.mu.Unlock()
	dst, err := win.target(rank, disp, nbytes)
	if err != nil {
		return err
	}
	return combineBuf(op, d.kind, dst, src[:nbytes], count*d.elems)
}

func (win *window) RGet(dst []byte, count int, dt transport.DataType, rank int, disp int64) (transport.Request, error) {
	if err := win.Get(dst, count, dt, rank, disp); err != nil {
		return nil, err
	}
	return doneRequest{}, nil
}

func (win *window) RPut(src []byte, count int, dt transport.DataType, rank int, disp int64) (transport.Request, error) {
	if err := win.Put(src, count, dt, rank, disp); err != nil {
		return nil, err
	}
	return doneRequest{}, nil
}

func (win *window) FetchAndOp(value, result []byte, dt transport.DataType, rank int, disp int64, op transport.Op) error {
	d, err := asDataType(dt)
	if err != nil {
		return err
	}
	es := d.kind.Size()
	win.sh.mu.Lock()
	defer win.sh.mu.Unlock()
	dst, err := win.target(rank, disp, es)
	if err != nil {
		return err
	}
	old := loadBits(d.kind, dst)
	storeBits(d.kind, result, old)
	if op == transport.OpNoOp {
		return nil
	}
	next, err := combineElem(op, d.kind, old, loadBits(d.kind, value))
	if err != nil {
		return err
	}
	storeBits(d.kind, dst, next)
	return nil
}

func (win *window) CompareAndSwap(value, compare, result []byte, dt transport.DataType, rank int, disp int64) error {
	d, err := asDataType(dt)
	if err != nil {
		return err
	}
	es := d.kind.Size()
	win.sh.mu.Lock()
	defer win.sh.mu.Unlock()
	dst, err := win.target(rank, disp, es)
	if err != nil {
		return err
	}
	old := loadBits(d.kind, dst)
	storeBits(d.kind, result, old)
	if old == loadBits(d.kind, compare) {
		storeBits(d.kind, dst, loadBits(d.kind, value))
	}
	return nil
}

// The flush family is a memory barrier here: operations apply eagerly
// under the window mutex, so completion is immediate.

func (win *window) Flush(rank int) error {
	if rank < 0 || rank >= len(win.sh.regions) {
		return fmt.Errorf("inproc: flush rank %d out of range", rank)
	}
	win.sh.mu.Lock()
	win.sh.mu.Unlock() //nolint:staticcheck // barrier only
	return nil
}

func (win *window) FlushAll() error { return win.Flush(win.rank) }

func (win *window) FlushLocal(rank int) error { return win.Flush(rank) }

func (win *window) FlushLocalAll() error { return win.FlushAll() }

func (win *window) Sync() error {
	win.sh.mu.Lock()
	win.sh.mu.Unlock() //nolint:staticcheck // barrier only
	return nil
}

func (win *window) Base() []byte { return win.sh.regions[win.rank] }

func (win *window) SharedBase(rank int) ([]byte, bool) {
	if rank < 0 || rank >= len(win.sh.regions) {
		return nil, false
	}
	my := win.w.group[win.comm.worldRank()]
	if my < 0 || win.w.group[win.comm.sh.members[rank]] != my {
		return nil, false
	}
	return win.sh.regions[rank], true
}

func (win *window) Free() error { return nil }
