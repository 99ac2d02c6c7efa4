package gas

import (
	"encoding/binary"
	"fmt"
)

// UnitID identifies a unit by its rank within a team.
type UnitID uint16

// TeamID identifies a team within one runtime instance.
type TeamID uint16

// SegmentID identifies an allocation within a team's window. Segment
// 0 is the per-unit local allocation pool; positive ids name
// collective allocations.
type SegmentID int16

// TeamAll is the id of the team spanning all units.
const TeamAll TeamID = 0

// TeamUndefined names no team: lookups of it fail with
// ErrInvalidArgument. It is recorded as the parent of the all-units
// team.
const TeamUndefined TeamID = 0xffff

// GlobPtr names one address in the partitioned global address space:
// a byte offset into a segment owned by a unit of a team. It is a
// pure value; arithmetic only ever changes the offset.
type GlobPtr struct {
	Unit    UnitID
	Team    TeamID
	Segment SegmentID
	Flags   uint16
	Offset  uint64
}

// GlobPtrSize is the size of the wire encoding in bytes.
const GlobPtrSize = 16

// NullPtr returns the null global pointer.
func NullPtr() GlobPtr { return GlobPtr{} }

// IsNull reports whether every field of the pointer is zero.
func (p GlobPtr) IsNull() bool { return p == GlobPtr{} }

// Inc advances the pointer by a byte count.
func (p GlobPtr) Inc(bytes uint64) GlobPtr {
	p.Offset += bytes
	return p
}

// WithUnit redirects the pointer at another unit of the same team.
func (p GlobPtr) WithUnit(unit UnitID) GlobPtr {
	p.Unit = unit
	return p
}

// Encode writes the 16-byte little-endian wire form into dst.
// The encoding is only meaningful within the runtime instance that
// produced the pointer.
func (p GlobPtr) Encode(dst []byte) {
	binary.LittleEndian.PutUint16(dst[0:], uint16(p.Unit))
	binary.LittleEndian.PutUint16(dst[2:], uint16(p.Team))
	binary.LittleEndian.PutUint16(dst[4:], uint16(p.Segment))
	binary.LittleEndian.PutUint16(dst[6:], p.Flags)
	binary.LittleEndian.PutUint64(dst[8:], p.Offset)
}

// DecodeGlobPtr reads the 16-byte wire form.
func DecodeGlobPtr(src []byte) GlobPtr {
	return GlobPtr{
		Unit:    UnitID(binary.LittleEndian.Uint16(src[0:])),
		Team:    TeamID(binary.LittleEndian.Uint16(src[2:])),
		Segment: SegmentID(binary.LittleEndian.Uint16(src[4:])),
		Flags:   binary.LittleEndian.Uint16(src[6:]),
		Offset:  binary.LittleEndian.Uint64(src[8:]),
	}
}

func (p GlobPtr) String() string {
	return fmt.Sprintf("gptr{u:%d t:%d s:%d o:%d}", p.Unit, p.Team, p.Segment, p.Offset)
}
