// Package transport defines the contract between the PGAS runtime and
// the underlying message-passing layer. The runtime consumes process
// groups (Comm), one-sided windows with per-rank displacement
// addressing (Window), request-based completion, and committed data
// types built from a closed set of element kinds. Any layer providing
// these semantics can back the runtime; the inproc subpackage ships a
// reference implementation used by the tests.
package transport

// MaxContigElements is the largest element count a single transport
// call accepts. Larger transfers are chunked by the runtime.
const MaxContigElements = 1<<31 - 1

// Kind identifies a base element type.
type Kind uint8

const (
	KindUndefined Kind = iota
	KindByte
	KindInt8
	KindInt16
	KindInt32
	KindInt64
	KindUint8
	KindUint16
	KindUint32
	KindUint64
	KindFloat32
	KindFloat64

	kindCount
)

// Aliases for the wider native C types of the original interface.
const (
	KindLongLong   = KindInt64
	KindLongDouble = KindFloat64
)

// NumKinds reports the number of distinct base kinds.
func NumKinds() int { return int(kindCount) }

// Size returns the element size of the kind in bytes, or 0 for
// KindUndefined.
func (k Kind) Size() int {
	switch k {
	case KindByte, KindInt8, KindUint8:
		return 1
	case KindInt16, KindUint16:
		return 2
	case KindInt32, KindUint32, KindFloat32:
		return 4
	case KindInt64, KindUint64, KindFloat64:
		return 8
	default:
		return 0
	}
}

// Integral reports whether the kind is an integer type of at most 64
// bits. Compare-and-swap is restricted to these kinds.
func (k Kind) Integral() bool {
	switch k {
	case KindByte, KindInt8, KindInt16, KindInt32, KindInt64,
		KindUint8, KindUint16, KindUint32, KindUint64:
		return true
	default:
		return false
	}
}

func (k Kind) String() string {
	switch k {
	case KindByte:
		return "byte"
	case KindInt8:
		return "int8"
	case KindInt16:
		return "int16"
	case KindInt32:
		return "int32"
	case KindInt64:
		return "int64"
	case KindUint8:
		return "uint8"
	case KindUint16:
		return "uint16"
	case KindUint32:
		return "uint32"
	case KindUint64:
		return "uint64"
	case KindFloat32:
		return "float32"
	case KindFloat64:
		return "float64"
	default:
		return "undefined"
	}
}

// Op identifies a reduction operator applied element-wise by
// Accumulate, FetchAndOp, Allreduce and Reduce.
type Op uint8

const (
	OpUndefined Op = iota
	OpMin
	OpMax
	OpSum
	OpProd
	OpBAnd
	OpBOr
	OpBXor
	OpLAnd
	OpLOr
	OpLXor
	OpReplace
	OpNoOp
)

func (o Op) String() string {
	switch o {
	case OpMin:
		return "min"
	case OpMax:
		return "max"
	case OpSum:
		return "sum"
	case OpProd:
		return "prod"
	case OpBAnd:
		return "band"
	case OpBOr:
		return "bor"
	case OpBXor:
		return "bxor"
	case OpLAnd:
		return "land"
	case OpLOr:
		return "lor"
	case OpLXor:
		return "lxor"
	case OpReplace:
		return "replace"
	case OpNoOp:
		return "noop"
	default:
		return "undefined"
	}
}

// DataType is a committed transport type handle. Handles are created
// through NativeType and Contiguous and released with FreeType.
type DataType interface {
	// Size reports the extent of one element of the type in bytes.
	Size() int
}

// Request identifies one in-flight non-blocking operation. Requests
// are completed through Waitall or Testall on the owning Transport.
type Request interface {
	// Done reports whether the operation has locally completed.
	Done() bool
}

// HostInfo describes the hardware location of the calling process,
// exchanged at team creation to build the locality tree.
type HostInfo struct {
	Host   string
	Module int
	NUMA   int
	Core   int
}

// Comm is a process group with collective and tagged two-sided
// operations. Rank order is stable for the lifetime of the Comm.
type Comm interface {
	Rank() int
	Size() int

	// CreateGroup is collective over the Comm. Members whose world
	// rank appears in worldRanks receive the new Comm; all other
	// callers receive nil.
	CreateGroup(worldRanks []int) (Comm, error)
	Free() error

	Barrier() error
	Bcast(buf []byte, count int, dt DataType, root int) error
	Scatter(send, recv []byte, count int, dt DataType, root int) error
	Gather(send, recv []byte, count int, dt DataType, root int) error
	Allgather(send, recv []byte, count int, dt DataType) error
	Allgatherv(send []byte, sendCount int, dt DataType, recv []byte, recvCounts, recvDispls []int) error
	Allreduce(send, recv []byte, count int, dt DataType, op Op) error
	Reduce(send, recv []byte, count int, dt DataType, op Op, root int) error

	Send(buf []byte, count int, dt DataType, rank, tag int) error
	Recv(buf []byte, count int, dt DataType, rank, tag int) error
	Sendrecv(send []byte, sendCount int, sendType DataType, dest, sendTag int,
		recv []byte, recvCount int, recvType DataType, src, recvTag int) error

	// Iprobe polls for incoming two-sided traffic without receiving,
	// driving transport progress.
	Iprobe() (bool, error)

	// SharedRanks reports, for every member, the member's rank within
	// the caller's shared-memory group, or -1 for remote members.
	SharedRanks() []int
}

// Window is a remotely accessible memory region owned collectively by
// a Comm. Displacements are byte offsets into the target rank's
// region; counts are elements of the call's DataType. One-sided
// writes become remotely visible after Flush on the target rank.
type Window interface {
	Get(dst []byte, count int, dt DataType, rank int, disp int64) error
	Put(src []byte, count int, dt DataType, rank int, disp int64) error
	Accumulate(src []byte, count int, dt DataType, rank int, disp int64, op Op) error
	RGet(dst []byte, count int, dt DataType, rank int, disp int64) (Request, error)
	RPut(src []byte, count int, dt DataType, rank int, disp int64) (Request, error)
	FetchAndOp(value, result []byte, dt DataType, rank int, disp int64, op Op) error
	CompareAndSwap(value, compare, result []byte, dt DataType, rank int, disp int64) error

	Flush(rank int) error
	FlushAll() error
	FlushLocal(rank int) error
	FlushLocalAll() error
	Sync() error

	// Base exposes the caller's own region of the window.
	Base() []byte
	// SharedBase exposes the region of a co-located member for direct
	// load/store access, when the transport supports it.
	SharedBase(rank int) ([]byte, bool)

	Free() error
}

// Transport is the root handle of the message-passing layer.
type Transport interface {
	// World returns the communicator spanning all units.
	World() Comm

	NativeType(k Kind) (DataType, error)
	// Contiguous builds a committed aggregate of count contiguous
	// elements of base.
	Contiguous(count int, base DataType) (DataType, error)
	FreeType(dt DataType) error

	// AllocWindow is collective over comm: every member contributes a
	// region of nbytes bytes.
	AllocWindow(comm Comm, nbytes int) (Window, error)

	Waitall(reqs []Request) error
	Testall(reqs []Request) (bool, error)

	// Hardware describes the calling unit's location for locality
	// tree construction.
	Hardware() HostInfo
}
