// Package inproc implements the transport contract inside a single
// process: every unit runs as a goroutine, windows are slices of the
// shared heap, and collectives rendezvous through per-communicator
// exchanges. It exists to make the runtime fully testable without an
// external launcher and doubles as the reference for the contract's
// semantics.
package inproc

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/hpcgo/pgas-go/transport"
)

// ErrForeignType indicates a DataType not created by this transport.
var ErrForeignType = errors.New("inproc: data type not owned by this transport")

// Option adjusts world construction.
type Option func(*World)

// WithHostInfo assigns per-rank hardware descriptions used by the
// locality tree. Units reporting the same host are co-located.
func WithHostInfo(infos []transport.HostInfo) Option {
	return func(w *World) {
		w.hardware = infos
	}
}

// WithLocalityGroups overrides co-location: each inner slice lists
// the world ranks sharing memory. Ranks absent from every group are
// co-located with no rank, not even themselves: their SharedRanks
// entries are all -1 and SharedBase resolves no member.
func WithLocalityGroups(groups [][]int) Option {
	return func(w *World) {
		w.groups = groups
	}
}

// World owns the shared state of an in-process unit ensemble.
type World struct {
	n        int
	hardware []transport.HostInfo
	groups   [][]int
	group    []int // rank -> group index

	box        mailbox
	nextCommID atomic.Int64
	worldComm  *commShared
}

// New builds a world of n units.
func New(n int, opts ...Option) (*World, error) {
	if n <= 0 {
		return nil, fmt.Errorf("inproc: world size must be positive, got %d", n)
	}
	w := &World{n: n}
	for _, opt := range opts {
		opt(w)
	}
	if w.hardware == nil {
		w.hardware = make([]transport.HostInfo, n)
		for i := range w.hardware {
			w.hardware[i] = transport.HostInfo{Host: "node0", Core: i}
		}
	}
	if len(w.hardware) != n {
		return nil, fmt.Errorf("inproc: %d host infos for %d units", len(w.hardware), n)
	}
	if w.groups == nil {
		byHost := make(map[string][]int)
		order := []string{}
		for r, hi := range w.hardware {
			if _, ok := byHost[hi.Host]; !ok {
				order = append(order, hi.Host)
			}
			byHost[hi.Host] = append(byHost[hi.Host], r)
		}
		for _, h := range order {
			w.groups = append(w.groups, byHost[h])
		}
	}
	w.group = make([]int, n)
	for i := range w.group {
		w.group[i] = -1
	}
	for gi, g := range w.groups {
		for _, r := range g {
			if r < 0 || r >= n {
				return nil, fmt.Errorf("inproc: locality group rank %d out of range", r)
			}
			w.group[r] = gi
		}
	}
	w.box.init()

	members := make([]int, n)
	for i := range members {
		members[i] = i
	}
	w.worldComm = &commShared{
		id:      int(w.nextCommID.Add(1)),
		members: members,
		ex:      newExchange(n),
	}
	return w, nil
}

// Size reports the number of units.
func (w *World) Size() int { return w.n }

// Transport returns the unit-local view of the world for one rank.
func (w *World) Transport(rank int) transport.Transport {
	return &unitTransport{w: w, rank: rank}
}

// Run spawns one goroutine per unit and waits for all of them,
// returning the first error.
func Run(n int, body func(tp transport.Transport) error, opts ...Option) error {
	w, err := New(n, opts...)
	if err != nil {
		return err
	}
	errs := make([]error, n)
	var wg sync.WaitGroup
	for r := 0; r < n; r++ {
		wg.Add(1)
		go func(rank int) {
			defer wg.Done()
			errs[rank] = body(w.Transport(rank))
		}(r)
	}
	wg.Wait()
	return errors.Join(errs...)
}

// dataType is the inproc committed-type handle: elems base elements
// of kind, size bytes total per element of the aggregate.
type dataType struct {
	kind  transport.Kind
	elems int
	size  int
}

func (d *dataType) Size() int { return d.size }

func asDataType(dt transport.DataType) (*dataType, error) {
	d, ok := dt.(*dataType)
	if !ok || d == nil {
		return nil, ErrForeignType
	}
	return d, nil
}

type doneRequest struct{}

func (doneRequest) Done() bool { return true }

type unitTransport struct {
	w    *World
	rank int
}

func (t *unitTransport) World() transport.Comm {
	return &comm{w: t.w, sh: t.w.worldComm, rank: t.rank}
}

func (t *unitTransport) NativeType(k transport.Kind) (transport.DataType, error) {
	if k.Size() == 0 {
		return nil, fmt.Errorf("inproc: no native type for kind %s", k)
	}
	return &dataType{kind: k, elems: 1, size: k.Size()}, nil
}

func (t *unitTransport) Contiguous(count int, base transport.DataType) (transport.DataType, error) {
	b, err := asDataType(base)
	if err != nil {
		return nil, err
	}
	if count <= 0 {
		return nil, fmt.Errorf("inproc: contiguous count must be positive, got %d", count)
	}
	return &dataType{kind: b.kind, elems: b.elems * count, size: b.size * count}, nil
}

func (t *unitTransport) FreeType(dt transport.DataType) error {
	_, err := asDataType(dt)
	return err
}

func (t *unitTransport) AllocWindow(c transport.Comm, nbytes int) (transport.Window, error) {
	cm, ok := c.(*comm)
	if !ok || cm.w != t.w {
		return nil, errors.New("inproc: communicator not owned by this world")
	}
	shared, slots, err := cm.sh.ex.run(cm.rank, nbytes, func(slots []any) (any, error) {
		sh := &windowShared{regions: make([][]byte, len(slots))}
		for i, s := range slots {
			sh.regions[i] = make([]byte, s.(int))
		}
		return sh, nil
	})
	_ = slots
	if err != nil {
		return nil, err
	}
	return &window{w: t.w, comm: cm, sh: shared.(*windowShared), rank: cm.rank}, nil
}

func (t *unitTransport) Waitall(reqs []transport.Request) error {
	for _, r := range reqs {
		if r != nil && !r.Done() {
			return errors.New("inproc: request cannot complete")
		}
	}
	return nil
}

func (t *unitTransport) Testall(reqs []transport.Request) (bool, error) {
	for _, r := range reqs {
		if r != nil && !r.Done() {
			return false, nil
		}
	}
	return true, nil
}

func (t *unitTransport) Hardware() transport.HostInfo {
	return t.w.hardware[t.rank]
}
