//go:build unix
// +build unix

package ioasync

import (
	"container/heap"
	"time"
)

// TimerID identifies an enqueued timer. Ids stay safe to cancel after
// the timer has fired; cancelling an unknown id is a no-op.
type TimerID uint64

type timerEntry struct {
	deadline  time.Time
	code      func()
	id        TimerID
	cancelled bool
	index     int
}

// timerQueue orders one-shot callbacks by monotonic deadline. Timers
// sharing a deadline fire in enqueue order. Cancellation is lazy:
// entries are marked and discarded when they surface.
type timerQueue struct {
	entries timerHeap
	byID    map[TimerID]*timerEntry
	lastID  TimerID
}

func newTimerQueue() *timerQueue {
	return &timerQueue{
		byID: make(map[TimerID]*timerEntry),
	}
}

func (q *timerQueue) enqueue(delay time.Duration, code func()) TimerID {
	q.lastID++
	e := &timerEntry{
		deadline: time.Now().Add(delay),
		code:     code,
		id:       q.lastID,
	}
	q.byID[e.id] = e
	heap.Push(&q.entries, e)
	return e.id
}

func (q *timerQueue) cancel(id TimerID) {
	if e, ok := q.byID[id]; ok {
		e.cancelled = true
		delete(q.byID, id)
	}
}

func (q *timerQueue) nextDeadline() (time.Time, bool) {
	for q.entries.Len() > 0 {
		e := q.entries[0]
		if !e.cancelled {
			return e.deadline, true
		}
		heap.Pop(&q.entries)
	}
	return time.Time{}, false
}

// fireExpired invokes every pending timer whose deadline has passed.
// The batch is extracted before any callback runs, so timers enqueued
// by a callback wait for a later pass; timers cancelled by a callback
// in the same batch are skipped.
func (q *timerQueue) fireExpired(now time.Time) int {
	var batch []*timerEntry
	for q.entries.Len() > 0 {
		e := q.entries[0]
		if e.cancelled {
			heap.Pop(&q.entries)
			continue
		}
		if e.deadline.After(now) {
			break
		}
		heap.Pop(&q.entries)
		batch = append(batch, e)
	}

	fired := 0
	for _, e := range batch {
		if e.cancelled {
			continue
		}
		delete(q.byID, e.id)
		fired++
		e.code()
	}
	return fired
}

func (q *timerQueue) pending() int {
	return len(q.byID)
}

type timerHeap []*timerEntry

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool {
	if h[i].deadline.Equal(h[j].deadline) {
		return h[i].id < h[j].id
	}
	return h[i].deadline.Before(h[j].deadline)
}

func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x interface{}) {
	e := x.(*timerEntry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *timerHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}
