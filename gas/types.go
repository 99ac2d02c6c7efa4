package gas

import (
	"fmt"

	"github.com/hpcgo/pgas-go/transport"
)

// Kind re-exports the transport element kinds for consumers of the
// runtime API.
type Kind = transport.Kind

const (
	Byte    = transport.KindByte
	Int8    = transport.KindInt8
	Int16   = transport.KindInt16
	Int32   = transport.KindInt32
	Int64   = transport.KindInt64
	Uint8   = transport.KindUint8
	Uint16  = transport.KindUint16
	Uint32  = transport.KindUint32
	Uint64  = transport.KindUint64
	Float32 = transport.KindFloat32
	Float64 = transport.KindFloat64

	LongLong   = transport.KindLongLong
	LongDouble = transport.KindLongDouble
)

// Op re-exports the reduction operators.
type Op = transport.Op

const (
	OpMin     = transport.OpMin
	OpMax     = transport.OpMax
	OpSum     = transport.OpSum
	OpProd    = transport.OpProd
	OpBAnd    = transport.OpBAnd
	OpBOr     = transport.OpBOr
	OpBXor    = transport.OpBXor
	OpLAnd    = transport.OpLAnd
	OpLOr     = transport.OpLOr
	OpLXor    = transport.OpLXor
	OpReplace = transport.OpReplace
	OpNoOp    = transport.OpNoOp
)

// typeEntry caches the committed transport types of one element kind:
// the native single-element type and the precomputed aggregate of
// chunkSize contiguous elements that lets any transfer of up to
// chunkSize^2 elements complete in at most two transport calls.
type typeEntry struct {
	native transport.DataType
	chunk  transport.DataType
	size   int
}

type typeRegistry struct {
	tp        transport.Transport
	entries   [transport.KindFloat64 + 1]typeEntry
	chunkSize int
}

func newTypeRegistry(tp transport.Transport, chunkSize int) (*typeRegistry, error) {
	reg := &typeRegistry{tp: tp, chunkSize: chunkSize}
	for k := transport.KindByte; k <= transport.KindFloat64; k++ {
		native, err := tp.NativeType(k)
		if err != nil {
			return nil, fmt.Errorf("pgas: native type for %s: %w", k, err)
		}
		chunk, err := tp.Contiguous(chunkSize, native)
		if err != nil {
			return nil, fmt.Errorf("pgas: chunk type for %s: %w", k, err)
		}
		reg.entries[k] = typeEntry{native: native, chunk: chunk, size: native.Size()}
	}
	return reg, nil
}

func (r *typeRegistry) close() error {
	for k := transport.KindByte; k <= transport.KindFloat64; k++ {
		if err := r.tp.FreeType(r.entries[k].chunk); err != nil {
			return err
		}
		if err := r.tp.FreeType(r.entries[k].native); err != nil {
			return err
		}
	}
	return nil
}

func (r *typeRegistry) lookup(k Kind) (typeEntry, error) {
	if k < transport.KindByte || k > transport.KindFloat64 {
		return typeEntry{}, fmt.Errorf("%w: unknown element kind %d", ErrInvalidArgument, k)
	}
	return r.entries[k], nil
}
