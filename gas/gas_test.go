package gas

import (
	"sync"
	"testing"

	"github.com/hpcgo/pgas-go/transport"
	"github.com/hpcgo/pgas-go/transport/inproc"
)

// runWorld spins up n units, initializes a runtime on each, runs the
// body collectively, and finalizes. Options apply to every unit's
// runtime; worldOpts shape the in-process world.
func runWorld(t *testing.T, n int, worldOpts []inproc.Option, rtOpts []Option, body func(rt *Runtime) error) {
	t.Helper()
	opts := append([]Option{WithConfig(DefaultConfig())}, rtOpts...)
	err := inproc.Run(n, func(tp transport.Transport) error {
		rt, err := Init(tp, opts...)
		if err != nil {
			return err
		}
		if err := body(rt); err != nil {
			return err
		}
		return rt.Finalize()
	}, worldOpts...)
	if err != nil {
		t.Fatalf("world failed: %v", err)
	}
}

// twoHosts places the first half of the units on one synthetic node
// and the rest on another, forcing the transport path between the
// halves.
func twoHosts(n int) []inproc.Option {
	infos := make([]transport.HostInfo, n)
	for i := range infos {
		host := "node0"
		if i >= n/2 {
			host = "node1"
		}
		infos[i] = transport.HostInfo{Host: host, Core: i % (n / 2)}
	}
	return []inproc.Option{inproc.WithHostInfo(infos)}
}

// gatherResults collects one value per unit for cross-unit
// assertions made after the world finishes.
type gatherResults[T any] struct {
	mu   sync.Mutex
	vals map[int]T
}

func newGatherResults[T any]() *gatherResults[T] {
	return &gatherResults[T]{vals: make(map[int]T)}
}

func (g *gatherResults[T]) put(unit int, v T) {
	g.mu.Lock()
	g.vals[unit] = v
	g.mu.Unlock()
}

func (g *gatherResults[T]) get(unit int) T {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.vals[unit]
}
