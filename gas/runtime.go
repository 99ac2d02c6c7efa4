// Package gas is the core of a partitioned global address space
// runtime: a uniform global-pointer abstraction over a transport
// offering one-sided windows and two-sided messaging. Units allocate
// memory collectively on teams, address any element of any unit
// through 128-bit global pointers, and move data with blocking and
// non-blocking RMA that transparently chunks transfers past the
// transport's per-call element limit.
package gas

import (
	"fmt"
	"sort"
	"sync/atomic"

	"github.com/hpcgo/pgas-go/transport"
)

// Option adjusts runtime construction.
type Option func(*initOptions)

type initOptions struct {
	cfg        Config
	cfgSet     bool
	configFile string
	logger     Logger
	structured StructuredLogger
	tracer     Tracer
	metrics    MetricHook
	chunkElems int
}

// WithConfig supplies a complete configuration, bypassing environment
// and file loading.
func WithConfig(cfg Config) Option {
	return func(o *initOptions) {
		o.cfg = cfg
		o.cfgSet = true
	}
}

// WithConfigFile loads options from the given file in addition to the
// environment.
func WithConfigFile(path string) Option {
	return func(o *initOptions) {
		o.configFile = path
	}
}

// WithLogger installs a printf-style debug logger.
func WithLogger(l Logger) Option {
	return func(o *initOptions) {
		o.logger = l
		if s, ok := l.(StructuredLogger); ok && o.structured == nil {
			o.structured = s
		}
	}
}

// WithStructuredLogger installs a key/value debug logger.
func WithStructuredLogger(l StructuredLogger) Option {
	return func(o *initOptions) {
		o.structured = l
	}
}

// WithTracer installs a span factory wrapping collective phases.
func WithTracer(t Tracer) Option {
	return func(o *initOptions) {
		o.tracer = t
	}
}

// WithMetrics installs a telemetry hook.
func WithMetrics(m MetricHook) Option {
	return func(o *initOptions) {
		o.metrics = m
	}
}

// withChunkElems overrides the transport chunk capacity; tests use it
// to drive the multi-chunk path with small buffers.
func withChunkElems(n int) Option {
	return func(o *initOptions) {
		o.chunkElems = n
	}
}

// Runtime is the process-wide state of one unit: the team registry,
// the datatype registry, and the local allocation pool. Init is
// collective over all units of the transport.
type Runtime struct {
	tp               transport.Transport
	cfg              Config
	chunkElems       int
	logger           Logger
	structuredLogger StructuredLogger
	tracer           Tracer
	metrics          MetricHook

	types     *typeRegistry
	world     transport.Comm
	myUnit    int
	numUnits  int
	localWin  transport.Window
	localPool *allocator

	teams     map[TeamID]*Team
	nextTeam  TeamID
	numTrees  int
	finalized atomic.Bool

	stats runtimeStats
}

// Init builds the runtime over the transport. Every unit must call
// Init collectively with an equivalent configuration.
func Init(tp transport.Transport, opts ...Option) (*Runtime, error) {
	if tp == nil {
		return nil, ErrInvalidHandle{"transport"}
	}
	var o initOptions
	for _, opt := range opts {
		opt(&o)
	}
	cfg := o.cfg
	if !o.cfgSet {
		var err error
		cfg, err = LoadConfig(o.configFile)
		if err != nil {
			return nil, err
		}
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	chunkElems := o.chunkElems
	if chunkElems <= 0 {
		chunkElems = transport.MaxContigElements
	}

	types, err := newTypeRegistry(tp, chunkElems)
	if err != nil {
		return nil, err
	}

	world := tp.World()
	rt := &Runtime{
		tp:               tp,
		cfg:              cfg,
		chunkElems:       chunkElems,
		logger:           o.logger,
		structuredLogger: o.structured,
		tracer:           o.tracer,
		metrics:          o.metrics,
		types:            types,
		world:            world,
		myUnit:           world.Rank(),
		numUnits:         world.Size(),
		teams:            make(map[TeamID]*Team),
		nextTeam:         TeamAll + 1,
	}

	rt.localWin, err = tp.AllocWindow(world, cfg.LocalPoolBytes)
	if err != nil {
		return nil, fmt.Errorf("pgas: local pool window: %w", err)
	}
	rt.localPool = newAllocator(int64(cfg.LocalPoolBytes))

	members := make([]UnitID, rt.numUnits)
	for i := range members {
		members[i] = UnitID(i)
	}
	if _, err := rt.newTeam(TeamAll, TeamUndefined, members, world); err != nil {
		return nil, err
	}

	rt.logEvent("init", logKV("units", rt.numUnits), logKV("unit", rt.myUnit))
	return rt, nil
}

// Finalize releases every team, window and committed type. The
// runtime is unusable afterwards.
func (rt *Runtime) Finalize() error {
	if rt == nil {
		return ErrInvalidHandle{"runtime"}
	}
	if !rt.finalized.CompareAndSwap(false, true) {
		return ErrFinalized
	}

	ids := make([]int, 0, len(rt.teams))
	for id := range rt.teams {
		ids = append(ids, int(id))
	}
	// Destroy children before parents.
	sort.Sort(sort.Reverse(sort.IntSlice(ids)))
	for _, id := range ids {
		team := rt.teams[TeamID(id)]
		if err := team.release(); err != nil {
			return err
		}
		delete(rt.teams, TeamID(id))
	}
	if err := rt.localWin.Free(); err != nil {
		return fmt.Errorf("%w: local window: %v", ErrOther, err)
	}
	if err := rt.types.close(); err != nil {
		return fmt.Errorf("%w: type registry: %v", ErrOther, err)
	}
	rt.logEvent("finalize")
	return nil
}

// MyUnit reports the calling unit's global id.
func (rt *Runtime) MyUnit() UnitID { return UnitID(rt.myUnit) }

// NumUnits reports the total number of units.
func (rt *Runtime) NumUnits() int { return rt.numUnits }

// TeamAll returns the team spanning all units.
func (rt *Runtime) TeamAll() *Team { return rt.teams[TeamAll] }

// Team resolves a team id to its record.
func (rt *Runtime) Team(id TeamID) (*Team, error) {
	team, ok := rt.teams[id]
	if !ok {
		return nil, fmt.Errorf("%w: unknown team %d", ErrInvalidArgument, id)
	}
	return team, nil
}

// MemAlloc reserves nelem elements of the given kind in the calling
// unit's local pool (segment id 0). The returned pointer addresses
// the caller and is valid on every unit.
func (rt *Runtime) MemAlloc(nelem int, kind Kind) (GlobPtr, error) {
	if rt.finalized.Load() {
		return NullPtr(), ErrFinalized
	}
	entry, err := rt.types.lookup(kind)
	if err != nil {
		return NullPtr(), err
	}
	off, err := rt.localPool.alloc(int64(nelem) * int64(entry.size))
	if err != nil {
		return NullPtr(), err
	}
	rt.logEvent("memalloc", logKV("nelem", nelem), logKV("kind", kind), logKV("offset", off))
	return GlobPtr{
		Unit:   UnitID(rt.myUnit),
		Team:   TeamAll,
		Offset: uint64(off),
	}, nil
}

// MemFree releases a local pool allocation previously returned by
// MemAlloc on this unit.
func (rt *Runtime) MemFree(ptr GlobPtr) error {
	if ptr.Segment != 0 || int(ptr.Unit) != rt.myUnit {
		return fmt.Errorf("%w: %v is not a local allocation of unit %d",
			ErrInvalidArgument, ptr, rt.myUnit)
	}
	return rt.localPool.release(int64(ptr.Offset))
}

// resolveTeam maps a global pointer to its team and validates the
// target unit.
func (rt *Runtime) resolveTeam(ptr GlobPtr) (*Team, error) {
	team, ok := rt.teams[ptr.Team]
	if !ok {
		return nil, fmt.Errorf("%w: unknown team %d", ErrInvalidArgument, ptr.Team)
	}
	if int(ptr.Unit) >= team.Size() {
		return nil, fmt.Errorf("%w: unit %d out of range 0 <= u < %d",
			ErrInvalidArgument, ptr.Unit, team.Size())
	}
	return team, nil
}

// windowFor resolves the window and base displacement addressed by a
// pointer: the team window plus the segment displacement for
// collective allocations, the local-pool window for segment 0.
func (rt *Runtime) windowFor(team *Team, ptr GlobPtr) (transport.Window, int64, error) {
	if ptr.Segment != 0 {
		disp, err := team.segments.disp(ptr.Segment, int(ptr.Unit))
		if err != nil {
			return nil, 0, err
		}
		return team.win, disp, nil
	}
	return rt.localWin, 0, nil
}

// sharedBase resolves the directly addressable memory of a co-located
// target, when the shared-memory fast path applies.
func (rt *Runtime) sharedBase(team *Team, ptr GlobPtr) []byte {
	if !rt.cfg.SharedWindows {
		return nil
	}
	if team.sharedRanks[ptr.Unit] < 0 {
		return nil
	}
	if ptr.Segment != 0 {
		base, err := team.segments.sharedBase(ptr.Segment, int(ptr.Unit))
		if err != nil {
			return nil
		}
		return base
	}
	base, ok := rt.localWin.SharedBase(int(ptr.Unit))
	if !ok {
		return nil
	}
	return base
}
