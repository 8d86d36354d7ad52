// Package txqueue implements the priority-ordered queue of outbound frames
// awaiting transmission. Ordering is priority ascending with FIFO tie-break among
// equal priorities, which guarantees bounded latency and fairness among
// equal-priority publishers- the same arbitration the physical bus applies.
package txqueue

import (
	"time"

	"github.com/cockroachdb/errors"

	"github.com/busrt/busrt/blockpool"
	"github.com/busrt/busrt/frame"
)

const listEnd int32 = -1

// item is one queued frame. Payload bytes live in a pool block; the item record
// itself lives in the queue's fixed slot array, linked into one FIFO list per
// priority level.
type item struct {
	frame    frame.Frame
	block    blockpool.Block
	deadline time.Time
	next     int32
}

// Queue is the outbound frame queue for one execution context. Enqueue and
// dequeue are O(1): each priority level keeps an intrusive FIFO list, and a
// bitmask locates the highest non-empty level. Nothing in the queue blocks or
// locks; it is thread-confined like the pool that backs it.
type Queue struct {
	pool *blockpool.Pool

	items    []item
	freeHead int32

	heads [frame.NumPriorities]int32
	tails [frame.NumPriorities]int32

	nonEmpty uint8
	count    int
}

// New builds a queue whose slot count matches the pool's capacity, so the pool is
// always the binding constraint on queue growth.
func New(pool *blockpool.Pool) (*Queue, error) {
	if pool == nil {
		return nil, errors.New("a Queue requires a backing block pool")
	}

	q := &Queue{
		pool:     pool,
		items:    make([]item, pool.Capacity()),
		freeHead: 0,
	}

	for i := 0; i < len(q.items)-1; i++ {
		q.items[i].next = int32(i + 1)
	}
	q.items[len(q.items)-1].next = listEnd

	for p := 0; p < frame.NumPriorities; p++ {
		q.heads[p] = listEnd
		q.tails[p] = listEnd
	}

	return q, nil
}

// Push enqueues one frame with the given transmission deadline, copying the
// payload into a pool block. It fails with blockpool.ErrExhausted when the pool
// cannot supply a block; the publish call fails, it never blocks.
//
// Deadlines must be non-decreasing across Push calls (the node derives them from
// a monotonic clock plus a fixed TTL), which is what lets PurgeExpired stop at
// the first live item of each priority list.
func (q *Queue) Push(f frame.Frame, deadline time.Time) error {
	if err := f.Validate(); err != nil {
		return err
	}

	block, err := q.pool.Allocate()
	if err != nil {
		return err
	}

	slot := q.freeHead
	q.freeHead = q.items[slot].next

	stored := block.Bytes()[:len(f.Payload)]
	copy(stored, f.Payload)
	f.Payload = stored

	q.items[slot] = item{
		frame:    f,
		block:    block,
		deadline: deadline,
		next:     listEnd,
	}

	p := f.Priority
	if q.tails[p] == listEnd {
		q.heads[p] = slot
	} else {
		q.items[q.tails[p]].next = slot
	}
	q.tails[p] = slot
	q.nonEmpty |= 1 << p
	q.count++

	return nil
}

// Peek returns the highest-priority ready frame without removing it, for handoff
// to a non-blocking driver send. The frame's payload points into pool storage and
// is valid until the matching Pop.
func (q *Queue) Peek() (frame.Frame, bool) {
	p, ok := q.topPriority()
	if !ok {
		return frame.Frame{}, false
	}
	return q.items[q.heads[p]].frame, true
}

// Pop removes the frame last returned by Peek after a successful driver handoff,
// releasing its block.
func (q *Queue) Pop() {
	p, ok := q.topPriority()
	if !ok {
		return
	}
	q.remove(p)
}

// PurgeExpired drops every queued frame whose deadline has passed, without
// transmission, releasing blocks. It returns the number of frames dropped. An
// unreachable bus therefore cannot grow the queue without bound.
func (q *Queue) PurgeExpired(now time.Time) int {
	dropped := 0
	for p := frame.Priority(0); p < frame.NumPriorities; p++ {
		for q.heads[p] != listEnd && !now.Before(q.items[q.heads[p]].deadline) {
			q.remove(p)
			dropped++
		}
	}
	return dropped
}

// Len returns the number of queued frames.
func (q *Queue) Len() int {
	return q.count
}

func (q *Queue) topPriority() (frame.Priority, bool) {
	if q.nonEmpty == 0 {
		return 0, false
	}
	for p := frame.Priority(0); p < frame.NumPriorities; p++ {
		if q.nonEmpty&(1<<p) != 0 {
			return p, true
		}
	}
	return 0, false
}

func (q *Queue) remove(p frame.Priority) {
	slot := q.heads[p]
	q.heads[p] = q.items[slot].next
	if q.heads[p] == listEnd {
		q.tails[p] = listEnd
		q.nonEmpty &^= 1 << p
	}

	_ = q.pool.Free(q.items[slot].block)
	q.items[slot] = item{next: q.freeHead}
	q.freeHead = slot
	q.count--
}
