package gas

import (
	"encoding/binary"
	"fmt"

	"github.com/hpcgo/pgas-go/locality"
	"github.com/hpcgo/pgas-go/transport"
)

// Team is an ordered subset of units sharing a sub-communicator, a
// collective-allocation window, a segment table, and a locality tree.
// Teams form a forest rooted at the all-units team; a team is created
// collectively from a parent and dissolved, never resized.
type Team struct {
	rt          *Runtime
	id          TeamID
	parent      TeamID
	members     []UnitID // global unit ids in rank order
	myRank      int
	comm        transport.Comm
	win         transport.Window
	pool        *allocator
	segments    *segmentTable
	sharedRanks []int // team rank -> rank in local shared-memory group, or -1
	tree        *locality.Domain
}

// ID returns the team id.
func (t *Team) ID() TeamID { return t.id }

// Size reports the number of members.
func (t *Team) Size() int { return len(t.members) }

// MyRank reports the calling unit's rank within the team.
func (t *Team) MyRank() int { return t.myRank }

// Members returns the ordered global unit ids of the team.
func (t *Team) Members() []UnitID {
	return append([]UnitID(nil), t.members...)
}

// GlobalUnit translates a team rank to a global unit id.
func (t *Team) GlobalUnit(rank int) (UnitID, error) {
	if rank < 0 || rank >= len(t.members) {
		return 0, fmt.Errorf("%w: rank %d out of range", ErrInvalidArgument, rank)
	}
	return t.members[rank], nil
}

// Locality returns the root of the team's locality tree.
func (t *Team) Locality() (*locality.Domain, error) {
	if t == nil {
		return nil, ErrInvalidHandle{"team"}
	}
	if t.tree == nil {
		return nil, fmt.Errorf("%w: team %d carries no locality tree", ErrNotFound, t.id)
	}
	return t.tree, nil
}

// newTeam assembles the per-team state over an existing communicator.
// Collective over the members of comm.
func (rt *Runtime) newTeam(id, parent TeamID, members []UnitID, comm transport.Comm) (*Team, error) {
	win, err := rt.tp.AllocWindow(comm, rt.cfg.SegmentPoolBytes)
	if err != nil {
		return nil, fmt.Errorf("pgas: team %d window: %w", id, err)
	}
	team := &Team{
		rt:          rt,
		id:          id,
		parent:      parent,
		members:     append([]UnitID(nil), members...),
		myRank:      comm.Rank(),
		comm:        comm,
		win:         win,
		pool:        newAllocator(int64(rt.cfg.SegmentPoolBytes)),
		segments:    newSegmentTable(),
		sharedRanks: comm.SharedRanks(),
	}
	if rt.numTrees < rt.cfg.MaxTeamDomains {
		tree, err := team.buildLocality()
		if err != nil {
			return nil, err
		}
		team.tree = tree
		rt.numTrees++
	}
	rt.teams[id] = team
	rt.logEvent("team_create", logKV("team", id), logKV("size", team.Size()),
		logKV("rank", team.myRank))
	return team, nil
}

// CreateSubteam is collective over the parent team: every member
// calls it with the same ordered subset of global unit ids. Members
// of the subset receive the new team; all other callers receive nil.
func (t *Team) CreateSubteam(globalIDs []UnitID) (sub *Team, err error) {
	if t == nil {
		return nil, ErrInvalidHandle{"team"}
	}
	rt := t.rt
	if rt.finalized.Load() {
		return nil, ErrFinalized
	}
	span := rt.startSpan("pgas-subteam-create",
		TraceAttribute{Key: "parent", Value: int(t.id)},
		TraceAttribute{Key: "size", Value: len(globalIDs)})
	defer func() { spanEnd(span, err) }()
	if len(globalIDs) == 0 {
		return nil, fmt.Errorf("%w: empty member set", ErrInvalidArgument)
	}
	worldRanks := make([]int, len(globalIDs))
	for i, u := range globalIDs {
		if int(u) >= rt.numUnits {
			return nil, fmt.Errorf("%w: unit %d out of range", ErrInvalidArgument, u)
		}
		worldRanks[i] = int(u)
	}

	// Every caller advances the id counter, so the id assignment is
	// consistent without extra communication.
	id := rt.nextTeam
	rt.nextTeam++

	comm, err := t.comm.CreateGroup(worldRanks)
	if err != nil {
		return nil, fmt.Errorf("%w: subteam group: %v", ErrInvalidArgument, err)
	}
	if comm == nil {
		return nil, nil
	}
	return rt.newTeam(id, t.id, globalIDs, comm)
}

// Destroy is collective over the team and releases its window,
// communicator and locality tree. The all-units team can only be
// released by Finalize.
func (t *Team) Destroy() error {
	if t == nil {
		return ErrInvalidHandle{"team"}
	}
	if t.id == TeamAll {
		return fmt.Errorf("%w: the all-units team cannot be destroyed", ErrInvalidArgument)
	}
	if err := t.comm.Barrier(); err != nil {
		return fmt.Errorf("%w: destroy barrier: %v", ErrInvalidArgument, err)
	}
	if err := t.release(); err != nil {
		return err
	}
	delete(t.rt.teams, t.id)
	return nil
}

func (t *Team) release() error {
	if t.tree != nil {
		t.tree = nil
		t.rt.numTrees--
	}
	if err := t.win.Free(); err != nil {
		return fmt.Errorf("%w: team %d window: %v", ErrOther, t.id, err)
	}
	if t.id != TeamAll {
		if err := t.comm.Free(); err != nil {
			return fmt.Errorf("%w: team %d comm: %v", ErrOther, t.id, err)
		}
	}
	t.rt.logEvent("team_destroy", logKV("team", t.id))
	return nil
}

// Hardware info record exchanged at team creation: a fixed-size host
// name plus module, NUMA and core indices.
const (
	hostNameBytes  = 64
	hostInfoRecord = hostNameBytes + 3*4
)

func (t *Team) buildLocality() (*locality.Domain, error) {
	hw := t.rt.tp.Hardware()
	mine := make([]byte, hostInfoRecord)
	copy(mine[:hostNameBytes], hw.Host)
	binary.LittleEndian.PutUint32(mine[hostNameBytes:], uint32(hw.Module))
	binary.LittleEndian.PutUint32(mine[hostNameBytes+4:], uint32(hw.NUMA))
	binary.LittleEndian.PutUint32(mine[hostNameBytes+8:], uint32(hw.Core))

	all := make([]byte, hostInfoRecord*t.Size())
	byteType := t.rt.types.entries[Byte].native
	if err := t.comm.Allgather(mine, all, hostInfoRecord, byteType); err != nil {
		return nil, fmt.Errorf("%w: hardware info exchange: %v", ErrInvalidArgument, err)
	}

	infos := make([]locality.UnitInfo, t.Size())
	for r := range infos {
		rec := all[r*hostInfoRecord : (r+1)*hostInfoRecord]
		host := rec[:hostNameBytes]
		end := 0
		for end < len(host) && host[end] != 0 {
			end++
		}
		infos[r] = locality.UnitInfo{
			Unit:   int(t.members[r]),
			Host:   string(host[:end]),
			Module: int(int32(binary.LittleEndian.Uint32(rec[hostNameBytes:]))),
			NUMA:   int(int32(binary.LittleEndian.Uint32(rec[hostNameBytes+4:]))),
			Core:   int(int32(binary.LittleEndian.Uint32(rec[hostNameBytes+8:]))),
		}
	}
	return locality.BuildTree(int(t.id), infos), nil
}
