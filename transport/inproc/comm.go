package inproc

import (
	"fmt"
	"sync"

	"github.com/hpcgo/pgas-go/transport"
)

type msgKey struct {
	comm int
	src  int
	dst  int
	tag  int
}

// mailbox routes tagged two-sided messages between units. Sends are
// buffered, receives block until a matching message arrives.
type mailbox struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queues map[msgKey][][]byte
}

func (b *mailbox) init() {
	b.cond = sync.NewCond(&b.mu)
	b.queues = make(map[msgKey][][]byte)
}

func (b *mailbox) send(key msgKey, payload []byte) {
	msg := append([]byte(nil), payload...)
	b.mu.Lock()
	b.queues[key] = append(b.queues[key], msg)
	b.cond.Broadcast()
	b.mu.Unlock()
}

func (b *mailbox) recv(key msgKey, buf []byte) {
	b.mu.Lock()
	for len(b.queues[key]) == 0 {
		b.cond.Wait()
	}
	msg := b.queues[key][0]
	if rest := b.queues[key][1:]; len(rest) > 0 {
		b.queues[key] = rest
	} else {
		delete(b.queues, key)
	}
	b.mu.Unlock()
	copy(buf, msg)
}

func (b *mailbox) probe(commID, dst int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for key, q := range b.queues {
		if key.comm == commID && key.dst == dst && len(q) > 0 {
			return true
		}
	}
	return false
}

// commShared is the state common to all members of one communicator.
type commShared struct {
	id      int
	members []int // comm rank -> world rank
	ex      *exchange
}

type comm struct {
	w    *World
	sh   *commShared
	rank int
}

func (c *comm) Rank() int { return c.rank }
func (c *comm) Size() int { return len(c.sh.members) }

func (c *comm) worldRank() int { return c.sh.members[c.rank] }

func (c *comm) CreateGroup(worldRanks []int) (transport.Comm, error) {
	for _, r := range worldRanks {
		if r < 0 || r >= c.w.n {
			return nil, fmt.Errorf("inproc: group rank %d out of range", r)
		}
	}
	shared, _, err := c.sh.ex.run(c.rank, nil, func([]any) (any, error) {
		return &commShared{
			id:      int(c.w.nextCommID.Add(1)),
			members: append([]int(nil), worldRanks...),
			ex:      newExchange(len(worldRanks)),
		}, nil
	})
	if err != nil {
		return nil, err
	}
	sh := shared.(*commShared)
	for i, r := range sh.members {
		if r == c.worldRank() {
			return &comm{w: c.w, sh: sh, rank: i}, nil
		}
	}
	return nil, nil
}

func (c *comm) Free() error { return nil }

func (c *comm) Barrier() error {
	_, _, err := c.sh.ex.run(c.rank, nil, nil)
	return err
}

func payloadBytes(count int, dt transport.DataType) (int, *dataType, error) {
	d, err := asDataType(dt)
	if err != nil {
		return 0, nil, err
	}
	return count * d.size, d, nil
}

func (c *comm) Bcast(buf []byte, count int, dt transport.DataType, root int) error {
	nbytes, _, err := payloadBytes(count, dt)
	if err != nil {
		return err
	}
	var contrib any
	if c.rank == root {
		contrib = append([]byte(nil), buf[:nbytes]...)
	}
	_, slots, err := c.sh.ex.run(c.rank, contrib, nil)
	if err != nil {
		return err
	}
	if c.rank != root {
		copy(buf[:nbytes], slots[root].([]byte))
	}
	return nil
}

func (c *comm) Scatter(send, recv []byte, count int, dt transport.DataType, root int) error {
	nbytes, _, err := payloadBytes(count, dt)
	if err != nil {
		return err
	}
	var contrib any
	if c.rank == root {
		contrib = append([]byte(nil), send[:nbytes*c.Size()]...)
	}
	_, slots, err := c.sh.ex.run(c.rank, contrib, nil)
	if err != nil {
		return err
	}
	full := slots[root].([]byte)
	copy(recv[:nbytes], full[c.rank*nbytes:(c.rank+1)*nbytes])
	return nil
}

func (c *comm) Gather(send, recv []byte, count int, dt transport.DataType, root int) error {
	nbytes, _, err := payloadBytes(count, dt)
	if err != nil {
		return err
	}
	_, slots, err := c.sh.ex.run(c.rank, append([]byte(nil), send[:nbytes]...), nil)
	if err != nil {
		return err
	}
	if c.rank == root {
		for i, s := range slots {
			copy(recv[i*nbytes:(i+1)*nbytes], s.([]byte))
		}
	}
	return nil
}

func (c *comm) Allgather(send, recv []byte, count int, dt transport.DataType) error {
	nbytes, _, err := payloadBytes(count, dt)
	if err != nil {
		return err
	}
	_, slots, err := c.sh.ex.run(c.rank, append([]byte(nil), send[:nbytes]...), nil)
	if err != nil {
		return err
	}
	for i, s := range slots {
		copy(recv[i*nbytes:(i+1)*nbytes], s.([]byte))
	}
	return nil
}

func (c *comm) Allgatherv(send []byte, sendCount int, dt transport.DataType, recv []byte, recvCounts, recvDispls []int) error {
	nbytes, d, err := payloadBytes(sendCount, dt)
	if err != nil {
		return err
	}
	if len(recvCounts) < c.Size() || len(recvDispls) < c.Size() {
		return fmt.Errorf("inproc: allgatherv needs %d counts and displacements", c.Size())
	}
	_, slots, err := c.sh.ex.run(c.rank, append([]byte(nil), send[:nbytes]...), nil)
	if err != nil {
		return err
	}
	for i, s := range slots {
		off := recvDispls[i] * d.size
		n := recvCounts[i] * d.size
		copy(recv[off:off+n], s.([]byte))
	}
	return nil
}

func (c *comm) reduceSlots(send []byte, count int, dt transport.DataType, op transport.Op) ([]byte, error) {
	nbytes, d, err := payloadBytes(count, dt)
	if err != nil {
		return nil, err
	}
	nelems := count * d.elems
	shared, _, err := c.sh.ex.run(c.rank, append([]byte(nil), send[:nbytes]...), func(slots []any) (any, error) {
		acc := append([]byte(nil), slots[0].([]byte)...)
		for _, s := range slots[1:] {
			if err := combineBuf(op, d.kind, acc, s.([]byte), nelems); err != nil {
				return nil, err
			}
		}
		return acc, nil
	})
	if err != nil {
		return nil, err
	}
	return shared.([]byte), nil
}

func (c *comm) Allreduce(send, recv []byte, count int, dt transport.DataType, op transport.Op) error {
	acc, err := c.reduceSlots(send, count, dt, op)
	if err != nil {
		return err
	}
	copy(recv[:len(acc)], acc)
	return nil
}

func (c *comm) Reduce(send, recv []byte, count int, dt transport.DataType, op transport.Op, root int) error {
	acc, err := c.reduceSlots(send, count, dt, op)
	if err != nil {
		return err
	}
	if c.rank == root {
		copy(recv[:len(acc)], acc)
	}
	return nil
}

func (c *comm) Send(buf []byte, count int, dt transport.DataType, rank, tag int) error {
	nbytes, _, err := payloadBytes(count, dt)
	if err != nil {
		return err
	}
	if rank < 0 || rank >= c.Size() {
		return fmt.Errorf("inproc: send rank %d out of range", rank)
	}
	c.w.box.send(msgKey{comm: c.sh.id, src: c.rank, dst: rank, tag: tag}, buf[:nbytes])
	return nil
}

func (c *comm) Recv(buf []byte, count int, dt transport.DataType, rank, tag int) error {
	nbytes, _, err := payloadBytes(count, dt)
	if err != nil {
		return err
	}
	if rank < 0 || rank >= c.Size() {
		return fmt.Errorf("inproc: recv rank %d out of range", rank)
	}
	c.w.box.recv(msgKey{comm: c.sh.id, src: rank, dst: c.rank, tag: tag}, buf[:nbytes])
	return nil
}

func (c *comm) Sendrecv(send []byte, sendCount int, sendType transport.DataType, dest, sendTag int,
	recv []byte, recvCount int, recvType transport.DataType, src, recvTag int) error {
	if err := c.Send(send, sendCount, sendType, dest, sendTag); err != nil {
		return err
	}
	return c.Recv(recv, recvCount, recvType, src, recvTag)
}

func (c *comm) Iprobe() (bool, error) {
	return c.w.box.probe(c.sh.id, c.rank), nil
}

func (c *comm) SharedRanks() []int {
	my := c.w.group[c.worldRank()]
	shared := make([]int, c.Size())
	local := 0
	for i, wr := range c.sh.members {
		if my >= 0 && c.w.group[wr] == my {
			shared[i] = local
			local++
		} else {
			shared[i] = -1
		}
	}
	return shared
}
