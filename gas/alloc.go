package gas

import (
	"fmt"
	"sort"
)

const allocAlign = 8

// allocator hands out byte ranges of a fixed-capacity pool with a
// first-fit free list. Team windows and the local pool both draw from
// one; collective calls run in the same order on every member, so the
// resulting displacements are identical everywhere.
type allocator struct {
	capacity int64
	free     []allocSpan // sorted by offset, coalesced
	live     map[int64]int64
}

type allocSpan struct {
	off int64
	len int64
}

func newAllocator(capacity int64) *allocator {
	return &allocator{
		capacity: capacity,
		free:     []allocSpan{{0, capacity}},
		live:     make(map[int64]int64),
	}
}

func alignUp(n int64) int64 {
	return (n + allocAlign - 1) &^ (allocAlign - 1)
}

func (a *allocator) alloc(nbytes int64) (int64, error) {
	if nbytes < 0 {
		return 0, fmt.Errorf("%w: negative allocation", ErrInvalidArgument)
	}
	n := alignUp(nbytes)
	if n == 0 {
		n = allocAlign
	}
	for i, s := range a.free {
		if s.len < n {
			continue
		}
		off := s.off
		if s.len == n {
			a.free = append(a.free[:i], a.free[i+1:]...)
		} else {
			a.free[i] = allocSpan{s.off + n, s.len - n}
		}
		a.live[off] = n
		return off, nil
	}
	return 0, fmt.Errorf("%w: pool exhausted (%d bytes requested)", ErrInvalidArgument, nbytes)
}

func (a *allocator) release(off int64) error {
	n, ok := a.live[off]
	if !ok {
		return fmt.Errorf("%w: offset %d is not allocated", ErrInvalidArgument, off)
	}
	delete(a.live, off)
	i := sort.Search(len(a.free), func(i int) bool { return a.free[i].off > off })
	a.free = append(a.free, allocSpan{})
	copy(a.free[i+1:], a.free[i:])
	a.free[i] = allocSpan{off, n}
	a.coalesce(i)
	return nil
}

func (a *allocator) coalesce(i int) {
	if i+1 < len(a.free) && a.free[i].off+a.free[i].len == a.free[i+1].off {
		a.free[i].len += a.free[i+1].len
		a.free = append(a.free[:i+1], a.free[i+2:]...)
	}
	if i > 0 && a.free[i-1].off+a.free[i-1].len == a.free[i].off {
		a.free[i-1].len += a.free[i].len
		a.free = append(a.free[:i], a.free[i+1:]...)
	}
}
