package inproc

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/hpcgo/pgas-go/transport"
)

// Element values cross the window boundary as little-endian bytes,
// matching the global-pointer wire format.

func loadBits(k transport.Kind, b []byte) uint64 {
	switch k.Size() {
	case 1:
		return uint64(b[0])
	case 2:
		return uint64(binary.LittleEndian.Uint16(b))
	case 4:
		return uint64(binary.LittleEndian.Uint32(b))
	default:
		return binary.LittleEndian.Uint64(b)
	}
}

func storeBits(k transport.Kind, b []byte, v uint64) {
	switch k.Size() {
	case 1:
		b[0] = byte(v)
	case 2:
		binary.LittleEndian.PutUint16(b, uint16(v))
	case 4:
		binary.LittleEndian.PutUint32(b, uint32(v))
	default:
		binary.LittleEndian.PutUint64(b, v)
	}
}

func signExtend(k transport.Kind, v uint64) int64 {
	switch k.Size() {
	case 1:
		return int64(int8(v))
	case 2:
		return int64(int16(v))
	case 4:
		return int64(int32(v))
	default:
		return int64(v)
	}
}

func signedKind(k transport.Kind) bool {
	switch k {
	case transport.KindInt8, transport.KindInt16, transport.KindInt32, transport.KindInt64:
		return true
	default:
		return false
	}
}

func boolBits(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

// combineElem applies op to one accumulator/operand element pair and
// returns the new accumulator value, all in raw little-endian bits.
func combineElem(op transport.Op, k transport.Kind, acc, operand uint64) (uint64, error) {
	switch op {
	case transport.OpReplace:
		return operand, nil
	case transport.OpNoOp:
		return acc, nil
	}

	switch op {
	case transport.OpBAnd, transport.OpBOr, transport.OpBXor,
		transport.OpLAnd, transport.OpLOr, transport.OpLXor:
		if !k.Integral() {
			return 0, fmt.Errorf("inproc: op %s undefined for %s", op, k)
		}
	}

	switch op {
	case transport.OpBAnd:
		return acc & operand, nil
	case transport.OpBOr:
		return acc | operand, nil
	case transport.OpBXor:
		return acc ^ operand, nil
	case transport.OpLAnd:
		return boolBits(acc != 0 && operand != 0), nil
	case transport.OpLOr:
		return boolBits(acc != 0 || operand != 0), nil
	case transport.OpLXor:
		return boolBits((acc != 0) != (operand != 0)), nil
	}

	switch k {
	case transport.KindFloat32:
		a := math.Float32frombits(uint32(acc))
		o := math.Float32frombits(uint32(operand))
		var r float32
		switch op {
		case transport.OpMin:
			r = a
			if o < a {
				r = o
			}
		case transport.OpMax:
			r = a
			if o > a {
				r = o
			}
		case transport.OpSum:
			r = a + o
		case transport.OpProd:
			r = a * o
		default:
			return 0, fmt.Errorf("inproc: op %s undefined for %s", op, k)
		}
		return uint64(math.Float32bits(r)), nil
	case transport.KindFloat64:
		a := math.Float64frombits(acc)
		o := math.Float64frombits(operand)
		var r float64
		switch op {
		case transport.OpMin:
			r = math.Min(a, o)
		case transport.OpMax:
			r = math.Max(a, o)
		case transport.OpSum:
			r = a + o
		case transport.OpProd:
			r = a * o
		default:
			return 0, fmt.Errorf("inproc: op %s undefined for %s", op, k)
		}
		return math.Float64bits(r), nil
	}

	if signedKind(k) {
		a, o := signExtend(k, acc), signExtend(k, operand)
		var r int64
		switch op {
		case transport.OpMin:
			r = a
			if o < a {
				r = o
			}
		case transport.OpMax:
			r = a
			if o > a {
				r = o
			}
		case transport.OpSum:
			r = a + o
		case transport.OpProd:
			r = a * o
		default:
			return 0, fmt.Errorf("inproc: op %s undefined for %s", op, k)
		}
		return uint64(r), nil
	}

	var r uint64
	switch op {
	case transport.OpMin:
		r = acc
		if operand < acc {
			r = operand
		}
	case transport.OpMax:
		r = acc
		if operand > acc {
			r = operand
		}
	case transport.OpSum:
		r = acc + operand
	case transport.OpProd:
		r = acc * operand
	default:
		return 0, fmt.Errorf("inproc: op %s undefined for %s", op, k)
	}
	return r, nil
}

// combineBuf folds operand into acc element-wise. Both buffers hold
// nelems elements of kind k.
func combineBuf(op transport.Op, k transport.Kind, acc, operand []byte, nelems int) error {
	es := k.Size()
	for i := 0; i < nelems; i++ {
		a := acc[i*es : (i+1)*es]
		o := operand[i*es : (i+1)*es]
		r, err := combineElem(op, k, loadBits(k, a), loadBits(k, o))
		if err != nil {
			return err
		}
		storeBits(k, a, r)
	}
	return nil
}
