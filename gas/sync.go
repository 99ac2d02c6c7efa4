package gas

import (
	"fmt"

	"github.com/hpcgo/pgas-go/transport"
)

// Flush forces remote completion of prior one-sided operations
// targeting the pointer's unit on the window implied by its segment,
// then synchronizes the window for memory-model coherence and polls
// the transport for progress.
func (rt *Runtime) Flush(ptr GlobPtr) error {
	team, err := rt.resolveTeam(ptr)
	if err != nil {
		rt.metricFlushFailed(err, logKV("team", ptr.Team))
		return err
	}
	win, _, err := rt.windowFor(team, ptr)
	if err != nil {
		rt.metricFlushFailed(err, logKV("team", ptr.Team))
		return err
	}
	if err := win.Flush(int(ptr.Unit)); err != nil {
		err = fmt.Errorf("%w: flush: %v", ErrOther, err)
		rt.metricFlushFailed(err, logKV("team", ptr.Team))
		return err
	}
	if err := win.Sync(); err != nil {
		err = fmt.Errorf("%w: window sync: %v", ErrOther, err)
		rt.metricFlushFailed(err, logKV("team", ptr.Team))
		return err
	}
	rt.progress(team, ptr)
	rt.logEvent("flush", logKV("unit", ptr.Unit), logKV("segment", ptr.Segment))
	rt.metricFlushCompleted(logKV("scope", "unit"))
	return nil
}

// FlushAll forces remote completion on all peers of the window
// implied by the pointer's segment.
func (rt *Runtime) FlushAll(ptr GlobPtr) error {
	team, win, err := rt.flushWindow(ptr)
	if err != nil {
		rt.metricFlushFailed(err, logKV("team", ptr.Team))
		return err
	}
	if err := win.FlushAll(); err != nil {
		err = fmt.Errorf("%w: flush_all: %v", ErrOther, err)
		rt.metricFlushFailed(err, logKV("team", ptr.Team))
		return err
	}
	if err := win.Sync(); err != nil {
		err = fmt.Errorf("%w: window sync: %v", ErrOther, err)
		rt.metricFlushFailed(err, logKV("team", ptr.Team))
		return err
	}
	rt.progress(team, ptr)
	rt.metricFlushCompleted(logKV("scope", "all"))
	return nil
}

// FlushLocal guarantees local completion of prior operations
// targeting the pointer's unit: source buffers may be reused, remote
// visibility is not promised.
func (rt *Runtime) FlushLocal(ptr GlobPtr) error {
	team, err := rt.resolveTeam(ptr)
	if err != nil {
		rt.metricFlushFailed(err, logKV("team", ptr.Team))
		return err
	}
	win, _, err := rt.windowFor(team, ptr)
	if err != nil {
		rt.metricFlushFailed(err, logKV("team", ptr.Team))
		return err
	}
	if err := win.FlushLocal(int(ptr.Unit)); err != nil {
		err = fmt.Errorf("%w: flush_local: %v", ErrOther, err)
		rt.metricFlushFailed(err, logKV("team", ptr.Team))
		return err
	}
	rt.progress(team, ptr)
	rt.metricFlushCompleted(logKV("scope", "unit_local"))
	return nil
}

// FlushLocalAll guarantees local completion of prior operations on
// all peers of the window implied by the pointer's segment.
func (rt *Runtime) FlushLocalAll(ptr GlobPtr) error {
	team, win, err := rt.flushWindow(ptr)
	if err != nil {
		rt.metricFlushFailed(err, logKV("team", ptr.Team))
		return err
	}
	if err := win.FlushLocalAll(); err != nil {
		err = fmt.Errorf("%w: flush_local_all: %v", ErrOther, err)
		rt.metricFlushFailed(err, logKV("team", ptr.Team))
		return err
	}
	rt.progress(team, ptr)
	rt.metricFlushCompleted(logKV("scope", "all_local"))
	return nil
}

// flushWindow resolves the window of a whole-window flush. Unlike the
// single-unit variants, the unit field is not validated.
func (rt *Runtime) flushWindow(ptr GlobPtr) (*Team, transport.Window, error) {
	team, ok := rt.teams[ptr.Team]
	if !ok {
		return nil, nil, fmt.Errorf("%w: unknown team %d", ErrInvalidArgument, ptr.Team)
	}
	if ptr.Segment != 0 {
		if _, err := team.segments.lookup(ptr.Segment); err != nil {
			return nil, nil, err
		}
		return team, team.win, nil
	}
	return team, rt.localWin, nil
}

// progress pokes the transport's two-sided progress engine.
func (rt *Runtime) progress(team *Team, ptr GlobPtr) {
	comm := rt.world
	if ptr.Segment != 0 {
		comm = team.comm
	}
	_, _ = comm.Iprobe()
}
