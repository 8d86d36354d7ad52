package node

import (
	"sort"
	"time"

	"github.com/pkg/errors"
)

// ErrTimerTableFull is returned from ScheduleTimer when every timer slot is
// occupied. The table's capacity is a configuration constant, like every other
// bound in the core.
var ErrTimerTableFull error = errors.New("timer table is at capacity")

// TimerID names one scheduled timer for cancellation.
type TimerID int32

// TimerFunc is a timer callback. It runs synchronously inside the spin cycle and
// must not block.
type TimerFunc func(now time.Time)

type timerEntry struct {
	inUse    bool
	id       TimerID
	deadline time.Time
	period   time.Duration
	seq      uint64
	fn       TimerFunc
}

// dueRef pins one timer selected to fire this pass. The id is captured alongside
// the slot because a callback may cancel a later due timer and schedule a new one
// into the freed slot; the replacement must wait for its own deadline.
type dueRef struct {
	slot int32
	id   TimerID
}

// timerTable is the scheduler's bounded timer store. Due timers fire in
// non-decreasing deadline order with ties broken by registration order; a zero
// period means one-shot.
type timerTable struct {
	entries []timerEntry
	count   int
	nextID  TimerID
	nextSeq uint64

	// due is reused scratch for collecting the timers to fire this pass.
	due []dueRef
}

func newTimerTable(capacity int) *timerTable {
	return &timerTable{
		entries: make([]timerEntry, capacity),
		due:     make([]dueRef, 0, capacity),
	}
}

func (t *timerTable) schedule(now time.Time, delay, period time.Duration, fn TimerFunc) (TimerID, error) {
	if delay < 0 {
		delay = 0
	}

	for i := range t.entries {
		if t.entries[i].inUse {
			continue
		}

		t.nextID++
		t.nextSeq++
		t.entries[i] = timerEntry{
			inUse:    true,
			id:       t.nextID,
			deadline: now.Add(delay),
			period:   period,
			seq:      t.nextSeq,
			fn:       fn,
		}
		t.count++
		return t.nextID, nil
	}

	return 0, errors.WithStack(ErrTimerTableFull)
}

func (t *timerTable) cancel(id TimerID) bool {
	for i := range t.entries {
		if t.entries[i].inUse && t.entries[i].id == id {
			t.entries[i] = timerEntry{}
			t.count--
			return true
		}
	}
	return false
}

func (t *timerTable) nearest() (time.Time, bool) {
	var best time.Time
	found := false
	for i := range t.entries {
		if !t.entries[i].inUse {
			continue
		}
		if !found || t.entries[i].deadline.Before(best) {
			best = t.entries[i].deadline
			found = true
		}
	}
	return best, found
}

// fireDue runs every timer whose deadline has passed, in non-decreasing deadline
// order, ties by registration order. Timers scheduled by a firing callback never
// run in the same pass, so a callback cannot extend the pass unboundedly.
func (t *timerTable) fireDue(now time.Time) int {
	t.due = t.due[:0]
	for i := range t.entries {
		if t.entries[i].inUse && !now.Before(t.entries[i].deadline) {
			t.due = append(t.due, dueRef{slot: int32(i), id: t.entries[i].id})
		}
	}

	sort.Slice(t.due, func(a, b int) bool {
		ea, eb := &t.entries[t.due[a].slot], &t.entries[t.due[b].slot]
		if ea.deadline.Equal(eb.deadline) {
			return ea.seq < eb.seq
		}
		return ea.deadline.Before(eb.deadline)
	})

	fired := 0
	for _, ref := range t.due {
		entry := &t.entries[ref.slot]
		if !entry.inUse || entry.id != ref.id {
			// Canceled by an earlier callback in this pass; the slot may already
			// hold a fresh timer, which waits for its own deadline.
			continue
		}

		fn := entry.fn
		if entry.period > 0 {
			entry.deadline = entry.deadline.Add(entry.period)
			if !entry.deadline.After(now) {
				// The deadline fell far behind; realign rather than burst.
				entry.deadline = now.Add(entry.period)
			}
		} else {
			t.remove(ref.slot)
		}

		fn(now)
		fired++
	}

	return fired
}

func (t *timerTable) remove(slot int32) {
	t.entries[slot] = timerEntry{}
	t.count--
}
