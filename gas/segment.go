package gas

import (
	"encoding/binary"
	"fmt"
)

// segment is one collective allocation within a team's window: a
// per-member displacement, the optional shared-memory view of each
// co-located member, and the element geometry.
type segment struct {
	id       SegmentID
	disps    []int64
	bases    [][]byte // nil entry: member not co-located
	nelem    int
	elemSize int
}

// segmentTable is the per-team registry of collective allocations,
// replicated with identical contents on every member.
type segmentTable struct {
	segs    map[SegmentID]*segment
	nextID  SegmentID
	freeIDs []SegmentID
}

func newSegmentTable() *segmentTable {
	return &segmentTable{segs: make(map[SegmentID]*segment), nextID: 1}
}

func (t *segmentTable) allocID() SegmentID {
	if n := len(t.freeIDs); n > 0 {
		id := t.freeIDs[n-1]
		t.freeIDs = t.freeIDs[:n-1]
		return id
	}
	id := t.nextID
	t.nextID++
	return id
}

func (t *segmentTable) insert(seg *segment) {
	t.segs[seg.id] = seg
}

func (t *segmentTable) lookup(id SegmentID) (*segment, error) {
	seg, ok := t.segs[id]
	if !ok {
		return nil, fmt.Errorf("%w: unbound segment %d", ErrInvalidArgument, id)
	}
	return seg, nil
}

func (t *segmentTable) disp(id SegmentID, rank int) (int64, error) {
	seg, err := t.lookup(id)
	if err != nil {
		return 0, err
	}
	return seg.disps[rank], nil
}

func (t *segmentTable) sharedBase(id SegmentID, rank int) ([]byte, error) {
	seg, err := t.lookup(id)
	if err != nil {
		return nil, err
	}
	return seg.bases[rank], nil
}

func (t *segmentTable) remove(id SegmentID) error {
	if _, ok := t.segs[id]; !ok {
		return fmt.Errorf("%w: unbound segment %d", ErrInvalidArgument, id)
	}
	delete(t.segs, id)
	t.freeIDs = append(t.freeIDs, id)
	return nil
}

// Alloc is collective over the team: every member contributes nelem
// elements of the kind to a new segment. The returned pointer
// addresses element 0 on team rank 0.
func (t *Team) Alloc(nelem int, kind Kind) (ptr GlobPtr, err error) {
	if t == nil {
		return NullPtr(), ErrInvalidHandle{"team"}
	}
	span := t.rt.startSpan("pgas-segment-alloc",
		TraceAttribute{Key: "team", Value: int(t.id)},
		TraceAttribute{Key: "nelem", Value: nelem})
	defer func() { spanEnd(span, err) }()
	entry, err := t.rt.types.lookup(kind)
	if err != nil {
		return NullPtr(), err
	}
	nbytes := int64(nelem) * int64(entry.size)
	disp, err := t.pool.alloc(nbytes)
	if err != nil {
		return NullPtr(), err
	}

	// Exchange displacements; pool state is replicated, but the
	// table stores what each member actually reserved.
	mine := make([]byte, 8)
	binary.LittleEndian.PutUint64(mine, uint64(disp))
	all := make([]byte, 8*t.Size())
	byteType := t.rt.types.entries[Byte].native
	if err := t.comm.Allgather(mine, all, 8, byteType); err != nil {
		return NullPtr(), fmt.Errorf("%w: segment displacement exchange: %v", ErrInvalidArgument, err)
	}

	seg := &segment{
		id:       t.segments.allocID(),
		disps:    make([]int64, t.Size()),
		bases:    make([][]byte, t.Size()),
		nelem:    nelem,
		elemSize: entry.size,
	}
	for r := 0; r < t.Size(); r++ {
		seg.disps[r] = int64(binary.LittleEndian.Uint64(all[r*8:]))
		if t.sharedRanks[r] >= 0 {
			if base, ok := t.win.SharedBase(r); ok {
				seg.bases[r] = base[seg.disps[r]:]
			}
		}
	}
	t.segments.insert(seg)
	t.rt.logEvent("segment_alloc",
		logKV("team", t.id), logKV("segment", seg.id),
		logKV("nelem", nelem), logKV("kind", kind))

	return GlobPtr{Team: t.id, Segment: seg.id}, nil
}

// Free is collective over the team and releases a segment created by
// Alloc. Global pointers into the segment must no longer be held.
func (t *Team) Free(id SegmentID) error {
	if t == nil {
		return ErrInvalidHandle{"team"}
	}
	seg, err := t.segments.lookup(id)
	if err != nil {
		return err
	}
	if err := t.comm.Barrier(); err != nil {
		return fmt.Errorf("%w: segment free barrier: %v", ErrInvalidArgument, err)
	}
	if err := t.pool.release(seg.disps[t.myRank]); err != nil {
		return err
	}
	if err := t.segments.remove(id); err != nil {
		return err
	}
	t.rt.logEvent("segment_free", logKV("team", t.id), logKV("segment", id))
	return nil
}
