package inproc

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"testing"

	"github.com/hpcgo/pgas-go/transport"
)

func TestWorldValidation(t *testing.T) {
	if _, err := New(0); err == nil {
		t.Fatal("zero-size world must fail")
	}
	if _, err := New(2, WithHostInfo([]transport.HostInfo{{Host: "a"}})); err == nil {
		t.Fatal("mismatched host info must fail")
	}
	if _, err := New(2, WithLocalityGroups([][]int{{0, 5}})); err == nil {
		t.Fatal("out-of-range group rank must fail")
	}
}

func TestTypeConstruction(t *testing.T) {
	w, err := New(1)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	tp := w.Transport(0)

	u32, err := tp.NativeType(transport.KindUint32)
	if err != nil {
		t.Fatalf("NativeType: %v", err)
	}
	if u32.Size() != 4 {
		t.Fatalf("uint32 size %d", u32.Size())
	}
	agg, err := tp.Contiguous(16, u32)
	if err != nil {
		t.Fatalf("Contiguous: %v", err)
	}
	if agg.Size() != 64 {
		t.Fatalf("aggregate size %d, want 64", agg.Size())
	}
	if _, err := tp.NativeType(transport.KindUndefined); err == nil {
		t.Fatal("undefined kind must fail")
	}
	if err := tp.FreeType(agg); err != nil {
		t.Fatalf("FreeType: %v", err)
	}
}

func TestCollectives(t *testing.T) {
	err := Run(4, func(tp transport.Transport) error {
		c := tp.World()
		u8, _ := tp.NativeType(transport.KindUint8)

		// Bcast
		buf := make([]byte, 4)
		if c.Rank() == 1 {
			copy(buf, []byte{1, 2, 3, 4})
		}
		if err := c.Bcast(buf, 4, u8, 1); err != nil {
			return err
		}
		if !bytes.Equal(buf, []byte{1, 2, 3, 4}) {
			return fmt.Errorf("rank %d bcast got %v", c.Rank(), buf)
		}

		// Allgather
		mine := []byte{byte(c.Rank())}
		all := make([]byte, c.Size())
		if err := c.Allgather(mine, all, 1, u8); err != nil {
			return err
		}
		if !bytes.Equal(all, []byte{0, 1, 2, 3}) {
			return fmt.Errorf("rank %d allgather got %v", c.Rank(), all)
		}

		// Allreduce: integer product, then float sum.
		u64, _ := tp.NativeType(transport.KindUint64)
		v := make([]byte, 8)
		binary.LittleEndian.PutUint64(v, uint64(c.Rank()+1))
		out := make([]byte, 8)
		if err := c.Allreduce(v, out, 1, u64, transport.OpProd); err != nil {
			return err
		}
		if got := binary.LittleEndian.Uint64(out); got != 24 {
			return fmt.Errorf("prod = %d, want 24", got)
		}
		f64, _ := tp.NativeType(transport.KindFloat64)
		fv := make([]byte, 8)
		binary.LittleEndian.PutUint64(fv, uint64(0x3ff0000000000000)) // 1.0
		fout := make([]byte, 8)
		if err := c.Allreduce(fv, fout, 1, f64, transport.OpSum); err != nil {
			return err
		}
		if got := binary.LittleEndian.Uint64(fout); got != 0x4010000000000000 { // 4.0
			return fmt.Errorf("float sum bits = %#x", got)
		}
		return c.Barrier()
	})
	if err != nil {
		t.Fatalf("collectives: %v", err)
	}
}

func TestTaggedMessaging(t *testing.T) {
	err := Run(2, func(tp transport.Transport) error {
		c := tp.World()
		u8, _ := tp.NativeType(transport.KindUint8)
		if c.Rank() == 0 {
			if err := c.Send([]byte{42}, 1, u8, 1, 5); err != nil {
				return err
			}
			if err := c.Send([]byte{43}, 1, u8, 1, 6); err != nil {
				return err
			}
		} else {
			// Receive out of send order, selected by tag.
			buf := make([]byte, 1)
			if err := c.Recv(buf, 1, u8, 0, 6); err != nil {
				return err
			}
			if buf[0] != 43 {
				return fmt.Errorf("tag 6 payload %d", buf[0])
			}
			if err := c.Recv(buf, 1, u8, 0, 5); err != nil {
				return err
			}
			if buf[0] != 42 {
				return fmt.Errorf("tag 5 payload %d", buf[0])
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("messaging: %v", err)
	}
}

func TestWindowRMAAndAtomics(t *testing.T) {
	err := Run(2, func(tp transport.Transport) error {
		c := tp.World()
		win, err := tp.AllocWindow(c, 64)
		if err != nil {
			return err
		}
		u64, _ := tp.NativeType(transport.KindUint64)
		u8, _ := tp.NativeType(transport.KindUint8)

		if c.Rank() == 0 {
			payload := bytes.Repeat([]byte{7}, 16)
			if err := win.Put(payload, 16, u8, 1, 8); err != nil {
				return err
			}
			if err := win.Flush(1); err != nil {
				return err
			}
			back := make([]byte, 16)
			if err := win.Get(back, 16, u8, 1, 8); err != nil {
				return err
			}
			if !bytes.Equal(back, payload) {
				return errors.New("window round trip mismatch")
			}

			// Atomics against rank 1's region.
			one := make([]byte, 8)
			binary.LittleEndian.PutUint64(one, 1)
			pre := make([]byte, 8)
			if err := win.FetchAndOp(one, pre, u64, 1, 32, transport.OpSum); err != nil {
				return err
			}
			res := make([]byte, 8)
			two := make([]byte, 8)
			binary.LittleEndian.PutUint64(two, 2)
			if err := win.CompareAndSwap(two, one, res, u64, 1, 32); err != nil {
				return err
			}
			if got := binary.LittleEndian.Uint64(res); got != 1 {
				return fmt.Errorf("cas pre-value %d, want 1", got)
			}

			// Out-of-range access is rejected.
			if err := win.Put(payload, 16, u8, 1, 60); err == nil {
				return errors.New("out-of-bounds put must fail")
			}
			if err := win.Put(payload, 16, u8, 5, 0); err == nil {
				return errors.New("bad rank must fail")
			}
		}
		return c.Barrier()
	})
	if err != nil {
		t.Fatalf("window: %v", err)
	}
}

func TestSharedRanksAndBases(t *testing.T) {
	infos := []transport.HostInfo{
		{Host: "a", Core: 0},
		{Host: "a", Core: 1},
		{Host: "b", Core: 0},
	}
	err := Run(3, func(tp transport.Transport) error {
		c := tp.World()
		shared := c.SharedRanks()
		switch c.Rank() {
		case 0, 1:
			want := []int{0, 1, -1}
			for i, w := range want {
				if shared[i] != w {
					return fmt.Errorf("rank %d shared[%d] = %d, want %d", c.Rank(), i, shared[i], w)
				}
			}
		case 2:
			if shared[0] != -1 || shared[1] != -1 || shared[2] != 0 {
				return fmt.Errorf("rank 2 shared = %v", shared)
			}
		}

		win, err := tp.AllocWindow(c, 16)
		if err != nil {
			return err
		}
		if c.Rank() == 0 {
			if _, ok := win.SharedBase(1); !ok {
				return errors.New("co-located base must resolve")
			}
			if _, ok := win.SharedBase(2); ok {
				return errors.New("remote base must not resolve")
			}
		}
		return c.Barrier()
	}, WithHostInfo(infos))
	if err != nil {
		t.Fatalf("shared ranks: %v", err)
	}
}

func TestCreateGroupSubset(t *testing.T) {
	err := Run(4, func(tp transport.Transport) error {
		c := tp.World()
		sub, err := c.CreateGroup([]int{1, 3})
		if err != nil {
			return err
		}
		switch c.Rank() {
		case 1:
			if sub == nil || sub.Rank() != 0 || sub.Size() != 2 {
				return fmt.Errorf("rank 1: bad subgroup %v", sub)
			}
		case 3:
			if sub == nil || sub.Rank() != 1 {
				return fmt.Errorf("rank 3: bad subgroup %v", sub)
			}
		default:
			if sub != nil {
				return fmt.Errorf("rank %d must not be a member", c.Rank())
			}
		}
		if sub != nil {
			if err := sub.Barrier(); err != nil {
				return err
			}
		}
		return c.Barrier()
	})
	if err != nil {
		t.Fatalf("create group: %v", err)
	}
}

func TestCombineElemOps(t *testing.T) {
	cases := []struct {
		op   transport.Op
		k    transport.Kind
		a, b uint64
		want uint64
	}{
		{transport.OpMin, transport.KindInt8, 0xff /* -1 */, 1, 0xffffffffffffffff},
		{transport.OpMax, transport.KindInt8, 0xff /* -1 */, 1, 1},
		{transport.OpMin, transport.KindUint8, 0xff, 1, 1},
		{transport.OpSum, transport.KindUint32, 10, 20, 30},
		{transport.OpBAnd, transport.KindUint8, 0b1100, 0b1010, 0b1000},
		{transport.OpBOr, transport.KindUint8, 0b1100, 0b1010, 0b1110},
		{transport.OpBXor, transport.KindUint8, 0b1100, 0b1010, 0b0110},
		{transport.OpLAnd, transport.KindUint8, 2, 3, 1},
		{transport.OpLOr, transport.KindUint8, 0, 0, 0},
		{transport.OpLXor, transport.KindUint8, 5, 0, 1},
		{transport.OpReplace, transport.KindUint64, 1, 2, 2},
		{transport.OpNoOp, transport.KindUint64, 1, 2, 1},
	}
	for _, tc := range cases {
		got, err := combineElem(tc.op, tc.k, tc.a, tc.b)
		if err != nil {
			t.Fatalf("%s/%s: %v", tc.op, tc.k, err)
		}
		if got != tc.want {
			t.Fatalf("%s/%s: got %#x, want %#x", tc.op, tc.k, got, tc.want)
		}
	}

	if _, err := combineElem(transport.OpBAnd, transport.KindFloat64, 0, 0); err == nil {
		t.Fatal("bitwise op on float must fail")
	}
}
