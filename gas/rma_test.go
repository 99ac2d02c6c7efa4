package gas

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"testing"
)

func u32Pattern(n int, seed func(i int) uint32) []byte {
	buf := make([]byte, n*4)
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint32(buf[i*4:], seed(i))
	}
	return buf
}

func TestSegmentPutGetPattern(t *testing.T) {
	runWorld(t, 4, nil, nil, func(rt *Runtime) error {
		team := rt.TeamAll()
		ptr, err := team.Alloc(1000, Uint32)
		if err != nil {
			return err
		}
		me := team.MyRank()

		mine := u32Pattern(1000, func(i int) uint32 { return uint32(me*1000 + i) })
		self := ptr.WithUnit(UnitID(me))
		if err := rt.Put(self, mine, 1000, Uint32); err != nil {
			return err
		}
		if err := rt.Flush(self); err != nil {
			return err
		}
		if err := team.Barrier(); err != nil {
			return err
		}

		if me != 0 {
			const offset = 500
			out := make([]byte, 100*4)
			src := ptr.WithUnit(0).Inc(offset * 4)
			if err := rt.Get(out, src, 100, Uint32); err != nil {
				return err
			}
			for i := 0; i < 100; i++ {
				want := uint32(0*1000 + offset + i)
				if got := binary.LittleEndian.Uint32(out[i*4:]); got != want {
					return fmt.Errorf("unit %d: element %d = %d, want %d", me, i, got, want)
				}
			}
		}
		if err := team.Barrier(); err != nil {
			return err
		}
		return team.Free(ptr.Segment)
	})
}

func TestPutGetRoundTripRemote(t *testing.T) {
	runWorld(t, 4, twoHosts(4), nil, func(rt *Runtime) error {
		team := rt.TeamAll()
		ptr, err := team.Alloc(256, Byte)
		if err != nil {
			return err
		}
		me := team.MyRank()

		if me == 0 {
			// Unit 2 lives on the other synthetic host.
			dst := ptr.WithUnit(2)
			payload := make([]byte, 256)
			for i := range payload {
				payload[i] = byte(i ^ 0x5a)
			}
			if err := rt.Put(dst, payload, 256, Byte); err != nil {
				return err
			}
			if err := rt.Flush(dst); err != nil {
				return err
			}
			back := make([]byte, 256)
			if err := rt.Get(back, dst, 256, Byte); err != nil {
				return err
			}
			if !bytes.Equal(payload, back) {
				return errors.New("round trip mismatch")
			}
		}
		return team.Barrier()
	})
}

func TestChunkedTransfer(t *testing.T) {
	// A small chunk capacity drives the two-call path: 21 elements
	// split into 2 chunks of 8 plus a remainder of 5.
	const chunk = 8
	const n = 2*chunk + 5
	runWorld(t, 2, twoHosts(2), []Option{withChunkElems(chunk)}, func(rt *Runtime) error {
		team := rt.TeamAll()
		ptr, err := team.Alloc(n, Byte)
		if err != nil {
			return err
		}
		if team.MyRank() == 0 {
			dst := ptr.WithUnit(1)
			payload := make([]byte, n)
			for i := range payload {
				payload[i] = byte(i + 1)
			}
			if err := rt.Put(dst, payload, n, Byte); err != nil {
				return err
			}
			if err := rt.Flush(dst); err != nil {
				return err
			}
		}
		if err := team.Barrier(); err != nil {
			return err
		}
		if team.MyRank() == 1 {
			got := make([]byte, n)
			self := ptr.WithUnit(1)
			if err := rt.Get(got, self, n, Byte); err != nil {
				return err
			}
			for i := range got {
				if got[i] != byte(i+1) {
					return fmt.Errorf("element %d = %d, want %d", i, got[i], byte(i+1))
				}
			}
		}
		return team.Barrier()
	})
}

func TestCoLocationEquivalence(t *testing.T) {
	// The observable bytes of a put/get pair must not depend on
	// whether the shared-memory fast path fired.
	read := func(t *testing.T, shared bool) []byte {
		t.Helper()
		results := newGatherResults[[]byte]()
		cfg := DefaultConfig()
		cfg.SharedWindows = shared
		runWorld(t, 2, nil, []Option{WithConfig(cfg)}, func(rt *Runtime) error {
			team := rt.TeamAll()
			ptr, err := team.Alloc(64, Byte)
			if err != nil {
				return err
			}
			if team.MyRank() == 0 {
				payload := make([]byte, 64)
				for i := range payload {
					payload[i] = byte(3*i + 7)
				}
				dst := ptr.WithUnit(1)
				if err := rt.Put(dst, payload, 64, Byte); err != nil {
					return err
				}
				if err := rt.Flush(dst); err != nil {
					return err
				}
			}
			if err := team.Barrier(); err != nil {
				return err
			}
			if team.MyRank() == 0 {
				got := make([]byte, 64)
				if err := rt.Get(got, ptr.WithUnit(1), 64, Byte); err != nil {
					return err
				}
				results.put(0, got)
			}
			return team.Barrier()
		})
		return results.get(0)
	}

	fast := read(t, true)
	slow := read(t, false)
	if !bytes.Equal(fast, slow) {
		t.Fatalf("fast path result differs from transport path:\n%v\n%v", fast, slow)
	}
	if len(fast) != 64 {
		t.Fatalf("missing result, got %d bytes", len(fast))
	}
}

func TestLocalPoolCrossUnit(t *testing.T) {
	runWorld(t, 4, nil, nil, func(rt *Runtime) error {
		team := rt.TeamAll()
		me := int(rt.MyUnit())

		ptr, err := rt.MemAlloc(64, Byte)
		if err != nil {
			return err
		}
		payload := make([]byte, 64)
		for i := range payload {
			payload[i] = byte(me*100 + i)
		}
		if err := rt.Put(ptr, payload, 64, Byte); err != nil {
			return err
		}
		if err := rt.Flush(ptr); err != nil {
			return err
		}

		// Exchange pointers through the wire format; every unit reads
		// its right neighbour's local allocation.
		mine := make([]byte, GlobPtrSize)
		ptr.Encode(mine)
		all := make([]byte, GlobPtrSize*team.Size())
		if err := team.Allgather(mine, all, GlobPtrSize, Byte); err != nil {
			return err
		}
		next := (me + 1) % team.Size()
		remote := DecodeGlobPtr(all[next*GlobPtrSize : (next+1)*GlobPtrSize])
		got := make([]byte, 64)
		if err := rt.Get(got, remote, 64, Byte); err != nil {
			return err
		}
		for i := range got {
			if got[i] != byte(next*100+i) {
				return fmt.Errorf("unit %d: neighbour byte %d = %d, want %d",
					me, i, got[i], byte(next*100+i))
			}
		}
		if err := team.Barrier(); err != nil {
			return err
		}
		return rt.MemFree(ptr)
	})
}

func TestCompareAndSwapSequence(t *testing.T) {
	runWorld(t, 2, nil, nil, func(rt *Runtime) error {
		team := rt.TeamAll()
		ptr, err := team.Alloc(1, Uint64)
		if err != nil {
			return err
		}
		target := ptr.WithUnit(0)
		me := team.MyRank()

		if me == 0 {
			seed := make([]byte, 8)
			binary.LittleEndian.PutUint64(seed, 7)
			if err := rt.Put(target, seed, 1, Uint64); err != nil {
				return err
			}
			if err := rt.Flush(target); err != nil {
				return err
			}
		}
		if err := team.Barrier(); err != nil {
			return err
		}

		u64 := func(v uint64) []byte {
			b := make([]byte, 8)
			binary.LittleEndian.PutUint64(b, v)
			return b
		}
		result := make([]byte, 8)

		if me == 0 {
			if err := rt.CompareAndSwap(target, u64(9), u64(7), result, Uint64); err != nil {
				return err
			}
			if got := binary.LittleEndian.Uint64(result); got != 7 {
				return fmt.Errorf("unit 0 pre-swap value %d, want 7", got)
			}
		}
		if err := team.Barrier(); err != nil {
			return err
		}
		if me == 1 {
			if err := rt.CompareAndSwap(target, u64(11), u64(7), result, Uint64); err != nil {
				return err
			}
			if got := binary.LittleEndian.Uint64(result); got != 9 {
				return fmt.Errorf("unit 1 pre-swap value %d, want 9", got)
			}
		}
		if err := team.Barrier(); err != nil {
			return err
		}

		mem := make([]byte, 8)
		if err := rt.Get(mem, target, 1, Uint64); err != nil {
			return err
		}
		if got := binary.LittleEndian.Uint64(mem); got != 9 {
			return fmt.Errorf("unit %d observes %d, want 9", me, got)
		}
		return team.Barrier()
	})
}

func TestCompareAndSwapConcurrent(t *testing.T) {
	const n = 4
	runWorld(t, n, nil, nil, func(rt *Runtime) error {
		team := rt.TeamAll()
		ptr, err := team.Alloc(1, Uint64)
		if err != nil {
			return err
		}
		target := ptr.WithUnit(0)
		if err := team.Barrier(); err != nil {
			return err
		}

		one := make([]byte, 8)
		binary.LittleEndian.PutUint64(one, 1)
		zero := make([]byte, 8)
		result := make([]byte, 8)
		if err := rt.CompareAndSwap(target, one, zero, result, Uint64); err != nil {
			return err
		}
		won := uint32(0)
		if binary.LittleEndian.Uint64(result) == 0 {
			won = 1
		}

		mine := make([]byte, 4)
		binary.LittleEndian.PutUint32(mine, won)
		total := make([]byte, 4)
		if err := team.Allreduce(mine, total, 1, Uint32, OpSum); err != nil {
			return err
		}
		if got := binary.LittleEndian.Uint32(total); got != 1 {
			return fmt.Errorf("%d units won the swap, want exactly 1", got)
		}
		return nil
	})
}

func TestCompareAndSwapRejectsFloats(t *testing.T) {
	runWorld(t, 1, nil, nil, func(rt *Runtime) error {
		team := rt.TeamAll()
		ptr, err := team.Alloc(1, Float64)
		if err != nil {
			return err
		}
		buf := make([]byte, 8)
		err = rt.CompareAndSwap(ptr.WithUnit(0), buf, buf, buf, Float64)
		if !errors.Is(err, ErrInvalidArgument) {
			return fmt.Errorf("expected ErrInvalidArgument, got %v", err)
		}
		return nil
	})
}

func TestFetchAndOpSum(t *testing.T) {
	const n = 4
	runWorld(t, n, nil, nil, func(rt *Runtime) error {
		team := rt.TeamAll()
		ptr, err := team.Alloc(1, Uint64)
		if err != nil {
			return err
		}
		target := ptr.WithUnit(0)
		if err := team.Barrier(); err != nil {
			return err
		}

		one := make([]byte, 8)
		binary.LittleEndian.PutUint64(one, 1)
		pre := make([]byte, 8)
		if err := rt.FetchAndOp(target, one, pre, Uint64, OpSum); err != nil {
			return err
		}
		if got := binary.LittleEndian.Uint64(pre); got >= n {
			return fmt.Errorf("pre-op value %d out of range", got)
		}
		if err := team.Barrier(); err != nil {
			return err
		}

		mem := make([]byte, 8)
		if err := rt.Get(mem, target, 1, Uint64); err != nil {
			return err
		}
		if got := binary.LittleEndian.Uint64(mem); got != n {
			return fmt.Errorf("counter = %d, want %d", got, n)
		}
		return team.Barrier()
	})
}

func TestAccumulateSum(t *testing.T) {
	const n = 4
	const elems = 16
	runWorld(t, n, nil, nil, func(rt *Runtime) error {
		team := rt.TeamAll()
		ptr, err := team.Alloc(elems, Uint32)
		if err != nil {
			return err
		}
		target := ptr.WithUnit(0)
		if err := team.Barrier(); err != nil {
			return err
		}

		ones := u32Pattern(elems, func(int) uint32 { return 1 })
		if err := rt.Accumulate(target, ones, elems, Uint32, OpSum); err != nil {
			return err
		}
		if err := rt.Flush(target); err != nil {
			return err
		}
		if err := team.Barrier(); err != nil {
			return err
		}

		if team.MyRank() == 0 {
			got := make([]byte, elems*4)
			if err := rt.Get(got, target, elems, Uint32); err != nil {
				return err
			}
			for i := 0; i < elems; i++ {
				if v := binary.LittleEndian.Uint32(got[i*4:]); v != n {
					return fmt.Errorf("element %d = %d, want %d", i, v, n)
				}
			}
		}
		return team.Barrier()
	})
}

func TestRMAArgumentValidation(t *testing.T) {
	runWorld(t, 2, nil, nil, func(rt *Runtime) error {
		team := rt.TeamAll()
		ptr, err := team.Alloc(8, Byte)
		if err != nil {
			return err
		}
		buf := make([]byte, 8)

		if err := rt.Get(buf, GlobPtr{Team: 99, Segment: 1}, 8, Byte); !errors.Is(err, ErrInvalidArgument) {
			return fmt.Errorf("unknown team: got %v", err)
		}
		if err := rt.Get(buf, ptr.WithUnit(7), 8, Byte); !errors.Is(err, ErrInvalidArgument) {
			return fmt.Errorf("unit out of range: got %v", err)
		}
		badSeg := ptr
		badSeg.Segment = 42
		if err := rt.Get(buf, badSeg, 8, Byte); !errors.Is(err, ErrInvalidArgument) {
			return fmt.Errorf("unbound segment: got %v", err)
		}
		if err := rt.Get(buf[:2], ptr, 8, Byte); !errors.Is(err, ErrInvalidArgument) {
			return fmt.Errorf("short buffer: got %v", err)
		}
		return team.Barrier()
	})
}

func TestStatsCounters(t *testing.T) {
	runWorld(t, 2, nil, nil, func(rt *Runtime) error {
		team := rt.TeamAll()
		ptr, err := team.Alloc(4, Byte)
		if err != nil {
			return err
		}
		buf := make([]byte, 4)
		if err := rt.Put(ptr.WithUnit(0), buf, 4, Byte); err != nil {
			return err
		}
		if err := rt.Flush(ptr.WithUnit(0)); err != nil {
			return err
		}
		if err := rt.Get(buf, ptr.WithUnit(0), 4, Byte); err != nil {
			return err
		}
		stats := rt.Stats()
		if stats.PutsCompleted == 0 || stats.GetsCompleted == 0 || stats.FlushesCompleted == 0 {
			return fmt.Errorf("counters not advanced: %+v", stats)
		}
		return team.Barrier()
	})
}
